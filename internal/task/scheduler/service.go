package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"greetbot/internal/eventbus"
	logx "greetbot/pkg/logx"
)

func New(cfg Config, eng Enqueuer, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Service{
		cfg:    normalize(cfg),
		log:    log,
		bus:    bus,
		engine: eng,
		now:    time.Now,
		// SecondOptional allows both 5-field and 6-field (with seconds) specs.
		parser:      cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		defs:        map[string]*scheduleDef{},
		lastEnqWarn: map[string]time.Time{},
	}
}

func normalize(cfg Config) Config {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MisfireGrace <= 0 {
		cfg.MisfireGrace = DefaultMisfireGrace
	}
	return cfg
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps settings. A timezone change while running re-registers every
// trigger in the new zone.
func (s *Service) Apply(cfg Config) {
	cfg = normalize(cfg)
	s.mu.Lock()
	defer s.mu.Unlock()

	oldLoc := s.cfg.Location.String()
	s.cfg = cfg
	if s.c != nil && oldLoc != cfg.Location.String() {
		s.restartLocked()
	}
}

// Start begins triggering. Definitions added before Start are registered now.
func (s *Service) Start(ctx context.Context) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled; triggers kept but not armed", logx.Int("schedules", len(s.defs)))
		return
	}
	s.c = s.newCronLocked()
	for _, d := range s.defs {
		s.registerLocked(d)
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.cfg.Location.String()), logx.Int("schedules", len(s.defs)), logx.Duration("misfire_grace", s.cfg.MisfireGrace))
}

// Stop stops triggering and waits for running cron callbacks (which only
// enqueue) until ctx ends. Definitions stay for the next Start.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	s.c = nil
	for _, d := range s.defs {
		d.entryID = 0
	}
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) newCronLocked() *cron.Cron {
	return cron.New(cron.WithParser(s.parser), cron.WithLocation(s.cfg.Location))
}

// restartLocked does not wait for in-flight callbacks: they take s.mu.
func (s *Service) restartLocked() {
	s.c.Stop()
	s.c = s.newCronLocked()
	for _, d := range s.defs {
		d.entryID = 0
		s.registerLocked(d)
	}
	s.c.Start()
	s.log.Info("scheduler restarted", logx.String("tz", s.cfg.Location.String()), logx.Int("schedules", len(s.defs)))
}
