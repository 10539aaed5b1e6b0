package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "greetbot/pkg/logx"
)

// fileStore keeps schedules in one JSON object file:
//
//	{
//	    "123456": "08:00",
//	    "-100200:5": "21:30"
//	}
//
// Every mutation is a read-modify-write of the whole file under mu, so
// concurrent updates for different users never lose each other.
type fileStore struct {
	log  logx.Logger
	path string

	mu     sync.Mutex
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("storage: create dir: %w", err)
	}
	return &fileStore{log: log, path: path}, nil
}

func (s *fileStore) Path() string { return s.path }

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) Load(ctx context.Context) (Entries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	entries, err := s.readLocked()
	if errors.Is(err, fs.ErrNotExist) {
		if werr := s.writeLocked(Entries{}); werr != nil {
			return nil, fmt.Errorf("storage: create %s: %w", s.path, werr)
		}
		s.log.Info("schedule file created", logx.String("path", s.path))
		return Entries{}, nil
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *fileStore) Save(ctx context.Context, userID string, t FireTime) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	entries, err := s.readLocked()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if entries == nil {
		entries = Entries{}
	}
	entries[userID] = t.String()
	return s.writeLocked(entries)
}

func (s *fileStore) Remove(ctx context.Context, userID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}

	entries, err := s.readLocked()
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, ok := entries[userID]; !ok {
		return false, nil
	}
	delete(entries, userID)
	return true, s.writeLocked(entries)
}

// readLocked returns fs.ErrNotExist for a missing file and other read
// errors as-is. Content problems are logged and yield an empty mapping.
func (s *fileStore) readLocked() (Entries, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("storage: read %s: %w", s.path, err)
	}
	return decodeEntries(b, s.log.With(logx.String("path", s.path))), nil
}

// decodeEntries accepts only a top-level JSON object. Individual values
// that are not strings are dropped.
func decodeEntries(b []byte, log logx.Logger) Entries {
	out := Entries{}
	if len(bytes.TrimSpace(b)) == 0 {
		log.Warn("schedule file is empty; treating as no schedules")
		return out
	}
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		log.Warn("schedule file is not valid JSON; treating as no schedules", logx.Err(err))
		return out
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		log.Warn("schedule file is not a JSON object; treating as no schedules", logx.String("type", fmt.Sprintf("%T", raw)))
		return out
	}
	for user, v := range obj {
		str, ok := v.(string)
		if !ok {
			log.Warn("schedule entry dropped: value is not a string", logx.String("user", user))
			continue
		}
		out[user] = str
	}
	return out
}

func (s *fileStore) writeLocked(entries Entries) error {
	b, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return fmt.Errorf("storage: encode: %w", err)
	}
	b = append(b, '\n')

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("storage: temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("storage: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("storage: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("storage: close: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("storage: chmod: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("storage: replace %s: %w", s.path, err)
	}
	return nil
}
