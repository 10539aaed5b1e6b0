package storage

import (
	"context"
	"errors"
	"strings"

	logx "greetbot/pkg/logx"
)

// DefaultPath is used when Config.Path is empty.
const DefaultPath = "./data/scheduled_greetings.json"

// Store persists the user -> time-of-day mapping.
type Store interface {
	// Load returns every persisted entry. Unreadable content loads as empty.
	Load(ctx context.Context) (Entries, error)
	// Save sets one user's entry, keeping all others.
	Save(ctx context.Context, userID string, t FireTime) error
	// Remove deletes one user's entry and reports whether it existed.
	Remove(ctx context.Context, userID string) (bool, error)
	Path() string
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
