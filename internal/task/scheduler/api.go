package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"greetbot/internal/eventbus"
	"greetbot/internal/task/engine"
	logx "greetbot/pkg/logx"
)

var (
	ErrNameRequired = errors.New("schedule name required")
	ErrInvalidTime  = errors.New("invalid time of day")
)

// AddDaily arms name to fire every day at hour:minute in the scheduler
// timezone. Re-adding an existing name replaces its trigger.
func (s *Service) AddDaily(name string, hour, minute int, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return "", fmt.Errorf("%w: %02d:%02d", ErrInvalidTime, hour, minute)
	}
	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	return s.AddCronOpt(name, spec, timeout, engine.TaskOptions{Overlap: engine.OverlapSkipIfRunning}, job)
}

func (s *Service) AddCron(name, spec string, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	return s.AddCronOpt(name, spec, timeout, engine.TaskOptions{Overlap: engine.OverlapSkipIfRunning}, job)
}

func (s *Service) AddCronOpt(name, spec string, timeout time.Duration, opt engine.TaskOptions, job func(ctx context.Context) error) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameRequired
	}
	if job == nil {
		return "", errors.New("job required")
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return "", fmt.Errorf("schedule %s: %w", name, err)
	}
	return s.upsert(&scheduleDef{name: name, spec: spec, kind: kindCron, sched: sched, timeout: timeout, job: job, opt: opt})
}

func (s *Service) AddInterval(name string, every, timeout time.Duration, job func(ctx context.Context) error) (string, error) {
	return s.AddIntervalOpt(name, every, timeout, engine.TaskOptions{Overlap: engine.OverlapSkipIfRunning}, job)
}

func (s *Service) AddIntervalOpt(name string, every, timeout time.Duration, opt engine.TaskOptions, job func(ctx context.Context) error) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameRequired
	}
	if job == nil {
		return "", errors.New("job required")
	}
	if every < time.Second {
		return "", fmt.Errorf("schedule %s: interval must be >= 1s", name)
	}
	spec := "@every " + every.String()
	return s.upsert(&scheduleDef{name: name, spec: spec, kind: kindInterval, every: every, timeout: timeout, job: job, opt: opt})
}

func (s *Service) upsert(d *scheduleDef) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := s.removeLocked(d.name)
	s.gen++
	d.gen = s.gen
	s.defs[d.name] = d
	if s.c != nil {
		s.registerLocked(d)
	}

	fields := []logx.Field{logx.String("name", d.name), logx.String("spec", d.spec), logx.Bool("replaced", replaced)}
	if next := s.nextLocked(d); !next.IsZero() {
		fields = append(fields, logx.Time("next", next))
	}
	s.log.Debug("schedule armed", fields...)
	s.bus.Publish(eventbus.Event{Type: eventbus.ScheduleArmed, Data: d.name})
	return d.name, nil
}

// Remove disarms name. It reports whether a trigger existed.
// Safe before Start and after Stop.
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	s.mu.Lock()
	removed := s.removeLocked(name)
	s.mu.Unlock()

	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
		s.bus.Publish(eventbus.Event{Type: eventbus.ScheduleRemoved, Data: name})
	}
	return removed
}

// Has reports whether name currently has a trigger.
func (s *Service) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.defs[strings.TrimSpace(name)]
	return ok
}

// Len returns the number of armed triggers.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.defs)
}

// Next returns the next planned fire time for name.
func (s *Service) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[strings.TrimSpace(name)]
	if !ok {
		return time.Time{}, false
	}
	return s.nextLocked(d), true
}

func (s *Service) nextLocked(d *scheduleDef) time.Time {
	if s.c != nil && d.entryID != 0 {
		if e := s.c.Entry(d.entryID); !e.Next.IsZero() {
			return e.Next
		}
	}
	if d.sched != nil {
		return d.sched.Next(s.now().In(s.cfg.Location))
	}
	return time.Time{}
}

func (s *Service) removeLocked(name string) bool {
	d, ok := s.defs[name]
	if !ok {
		return false
	}
	if s.c != nil && d.entryID != 0 {
		s.c.Remove(d.entryID)
	}
	delete(s.defs, name)
	return true
}

func (s *Service) registerLocked(d *scheduleDef) {
	name, gen := d.name, d.gen
	job := cron.FuncJob(func() { s.fire(name, gen) })
	switch d.kind {
	case kindInterval:
		d.entryID = s.c.Schedule(spreadInterval(d.every, s.now(), name), job)
	default:
		d.entryID = s.c.Schedule(d.sched, job)
	}
}
