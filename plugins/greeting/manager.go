package greeting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"greetbot/internal/storage"
	"greetbot/internal/transport"
	logx "greetbot/pkg/logx"
)

var (
	// ErrPersist marks a change whose trigger side took effect but whose
	// store write failed.
	ErrPersist = errors.New("greeting schedule not persisted")
	// ErrStopped rejects Set between DisarmAll and the next Reconcile.
	ErrStopped = errors.New("greeting schedules stopped")
)

// Trigger arms per-user daily triggers. Names are user ids; the plugin base
// namespaces them.
type Trigger interface {
	Daily(name string, hour, minute int, job func(ctx context.Context) error) (string, error)
	Unschedule(name string) bool
}

// Schedules is the only writer of both the store and the triggers. Its
// mutex serialises every mutation so the two never disagree.
type Schedules struct {
	mu      sync.Mutex
	log     logx.Logger
	store   storage.Store
	trigger Trigger
	job     func(userID string) func(ctx context.Context) error
	armed   map[string]storage.FireTime
	stopped bool
}

func NewSchedules(store storage.Store, trigger Trigger, job func(userID string) func(ctx context.Context) error, log logx.Logger) *Schedules {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Schedules{log: log, store: store, trigger: trigger, job: job, armed: map[string]storage.FireTime{}}
}

// Reconcile arms a trigger for every valid persisted entry. Invalid entries
// are skipped with a warning. It also lifts a previous DisarmAll.
func (s *Schedules) Reconcile(ctx context.Context) (int, error) {
	s.mu.Lock()
	s.stopped = false
	s.mu.Unlock()

	entries, err := s.store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load schedules: %w", err)
	}

	users := make([]string, 0, len(entries))
	for u := range entries {
		users = append(users, u)
	}
	sort.Strings(users)

	s.mu.Lock()
	defer s.mu.Unlock()
	armed := 0
	for _, user := range users {
		raw := entries[user]
		if _, err := transport.ParseUserID(user); err != nil {
			s.log.Warn("skipping schedule with invalid user id", logx.String("user_id", user), logx.Err(err))
			continue
		}
		t, err := storage.ParseFireTime(raw)
		if err != nil {
			s.log.Warn("skipping schedule with invalid time", logx.String("user_id", user), logx.String("time", raw), logx.Err(err))
			continue
		}
		if err := s.armLocked(user, t); err != nil {
			s.log.Warn("skipping schedule that failed to arm", logx.String("user_id", user), logx.Err(err))
			continue
		}
		armed++
	}
	s.log.Info("greeting schedules reconciled", logx.Int("armed", armed), logx.Int("entries", len(entries)))
	return armed, nil
}

// Set validates raw, arms the trigger, then persists it. A persistence
// failure returns an ErrPersist error while the trigger stays armed.
func (s *Schedules) Set(ctx context.Context, userID, raw string) (storage.FireTime, error) {
	t, err := storage.ParseFireTime(raw)
	if err != nil {
		return storage.FireTime{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return storage.FireTime{}, ErrStopped
	}
	if err := s.armLocked(userID, t); err != nil {
		return storage.FireTime{}, fmt.Errorf("arm %s: %w", userID, err)
	}
	if err := s.store.Save(ctx, userID, t); err != nil {
		s.log.Error("greeting armed but not persisted", logx.String("user_id", userID), logx.String("time", t.String()), logx.Err(err))
		return t, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	s.log.Info("greeting scheduled", logx.String("user_id", userID), logx.String("time", t.String()))
	return t, nil
}

// Unset disarms the trigger, then removes the persisted entry. It reports
// whether either existed. A failed removal returns an ErrPersist error: the
// trigger is gone but the entry comes back on the next Reconcile.
func (s *Schedules) Unset(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, wasArmed := s.armed[userID]
	s.trigger.Unschedule(userID)
	delete(s.armed, userID)

	stored, err := s.store.Remove(ctx, userID)
	if err != nil {
		s.log.Error("greeting disarmed but not removed", logx.String("user_id", userID), logx.Err(err))
		return wasArmed, fmt.Errorf("%w: remove %s: %w", ErrPersist, userID, err)
	}
	if wasArmed || stored {
		s.log.Info("greeting cancelled", logx.String("user_id", userID))
	}
	return wasArmed || stored, nil
}

// Get returns the persisted time for userID.
func (s *Schedules) Get(ctx context.Context, userID string) (storage.FireTime, bool, error) {
	entries, err := s.store.Load(ctx)
	if err != nil {
		return storage.FireTime{}, false, err
	}
	raw, ok := entries[userID]
	if !ok {
		return storage.FireTime{}, false, nil
	}
	t, err := storage.ParseFireTime(raw)
	if err != nil {
		return storage.FireTime{}, false, nil
	}
	return t, true, nil
}

// Armed returns a copy of the live triggers.
func (s *Schedules) Armed() map[string]storage.FireTime {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]storage.FireTime, len(s.armed))
	for k, v := range s.armed {
		out[k] = v
	}
	return out
}

// DisarmAll removes every live trigger and leaves the store untouched.
// Set fails with ErrStopped until the next Reconcile.
func (s *Schedules) DisarmAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	n := 0
	for user := range s.armed {
		if s.trigger.Unschedule(user) {
			n++
		}
	}
	clear(s.armed)
	return n
}

func (s *Schedules) armLocked(userID string, t storage.FireTime) error {
	if _, err := s.trigger.Daily(userID, t.Hour, t.Minute, s.job(userID)); err != nil {
		return err
	}
	s.armed[userID] = t
	return nil
}
