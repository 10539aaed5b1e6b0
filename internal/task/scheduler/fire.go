package scheduler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"greetbot/internal/eventbus"
	"greetbot/internal/task/engine"
	logx "greetbot/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

// Misfire describes a dropped late trigger.
type Misfire struct {
	Name    string
	Planned time.Time
	Late    time.Duration
}

// fire is the cron callback for (name, gen). It never runs the job itself.
func (s *Service) fire(name string, gen uint64) {
	s.mu.Lock()
	d, ok := s.defs[name]
	if !ok || d.gen != gen {
		s.mu.Unlock()
		s.log.Debug("stale trigger ignored", logx.String("schedule", name))
		return
	}
	kind, sched, job, timeout, opt := d.kind, d.sched, d.job, d.timeout, d.opt
	grace, loc := s.cfg.MisfireGrace, s.cfg.Location
	eng := s.engine
	s.mu.Unlock()

	if kind == kindCron {
		if planned, ok := plannedWithin(sched, s.now().In(loc), grace); !ok {
			late := s.now().Sub(planned)
			s.log.Warn("trigger misfired; skipped", logx.String("schedule", name), logx.Duration("grace", grace), logx.Time("planned", planned))
			s.bus.Publish(eventbus.Event{Type: eventbus.ScheduleMisfired, Data: Misfire{Name: name, Planned: planned, Late: late}})
			return
		}
	}

	if eng == nil {
		return
	}
	// A superseded generation still queued or running must not gate this one.
	if opt.OverlapKey == "" {
		opt.OverlapKey = name + "#" + strconv.FormatUint(gen, 10)
	}
	err := eng.Enqueue(engine.Task{
		Name:    name,
		Timeout: timeout,
		Opt:     opt,
		Run: func(ctx context.Context) error {
			// The trigger may have been superseded while queued.
			if !s.current(name, gen) {
				s.log.Debug("superseded task discarded", logx.String("schedule", name))
				return nil
			}
			return job(ctx)
		},
	})
	if err != nil {
		s.reportEnqueueError(name, err)
	}
}

func (s *Service) current(name string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[name]
	return ok && d.gen == gen
}

// plannedWithin reports whether sched has a planned instant in
// [now-grace, now]. When it does not, the returned time is the most recent
// planned instant found before the window (zero when unknown).
func plannedWithin(sched cron.Schedule, now time.Time, grace time.Duration) (time.Time, bool) {
	// Next is strictly-after with second resolution, so step back one more second.
	windowStart := now.Add(-grace - time.Second)
	cand := sched.Next(windowStart)
	if !cand.IsZero() && !cand.After(now) {
		return cand, true
	}
	return lastBefore(sched, windowStart), false
}

// lastBefore finds the latest planned instant at or before t, looking back
// up to one week.
func lastBefore(sched cron.Schedule, t time.Time) time.Time {
	var last time.Time
	for cur := sched.Next(t.Add(-7 * 24 * time.Hour)); !cur.IsZero() && !cur.After(t); cur = sched.Next(cur) {
		last = cur
	}
	return last
}

func (s *Service) reportEnqueueError(name string, err error) {
	if errors.Is(err, engine.ErrOverlapSkip) {
		s.log.Debug("schedule trigger skipped", logx.String("schedule", name), logx.Err(err))
		return
	}

	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[name]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[name] = now
	s.enqMu.Unlock()

	s.log.Warn("schedule failed to enqueue task", logx.String("schedule", name), logx.Err(err))
}
