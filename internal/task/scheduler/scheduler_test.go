package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"greetbot/internal/eventbus"
	"greetbot/internal/task/engine"
	logx "greetbot/pkg/logx"
)

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []engine.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(t engine.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, t)
	return nil
}

func (f *fakeEnqueuer) taken() []engine.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.Task(nil), f.tasks...)
}

var shanghai = time.FixedZone("CST", 8*3600)

func newTestService(t *testing.T, now time.Time) (*Service, *fakeEnqueuer, eventbus.Bus) {
	t.Helper()
	enq := &fakeEnqueuer{}
	bus := eventbus.New()
	s := New(Config{Enabled: true, Location: shanghai}, enq, logx.Nop(), bus)
	clock := now
	s.now = func() time.Time { return clock }
	return s, enq, bus
}

func genOf(t *testing.T, s *Service, name string) uint64 {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[name]
	if !ok {
		t.Fatalf("schedule %q not armed", name)
	}
	return d.gen
}

func noop(context.Context) error { return nil }

func TestAddDailyRejectsOutOfRange(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestService(t, time.Now())
	cases := []struct{ h, m int }{{24, 0}, {-1, 0}, {0, 60}, {12, -5}}
	for _, tc := range cases {
		if _, err := s.AddDaily("g", tc.h, tc.m, 0, noop); !errors.Is(err, ErrInvalidTime) {
			t.Fatalf("AddDaily(%d,%d) err = %v, want ErrInvalidTime", tc.h, tc.m, err)
		}
	}
	if s.Len() != 0 {
		t.Fatalf("Len = %d, want 0", s.Len())
	}
}

func TestAddRequiresName(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestService(t, time.Now())
	if _, err := s.AddDaily("  ", 8, 0, 0, noop); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("err = %v, want ErrNameRequired", err)
	}
	if _, err := s.AddInterval("tick", 10*time.Millisecond, 0, noop); err == nil {
		t.Fatalf("sub-second interval accepted")
	}
}

func TestArmBeforeStartAndNext(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 7, 30, 0, 0, shanghai)
	s, _, _ := newTestService(t, now)
	if _, err := s.AddDaily("greeting:1", 8, 0, 0, noop); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	if !s.Has("greeting:1") {
		t.Fatalf("Has = false")
	}
	next, ok := s.Next("greeting:1")
	want := time.Date(2026, 3, 1, 8, 0, 0, 0, shanghai)
	if !ok || !next.Equal(want) {
		t.Fatalf("Next = %v %v, want %v", next, ok, want)
	}
	if _, ok := s.Next("missing"); ok {
		t.Fatalf("Next(missing) ok")
	}
}

func TestSupersedeDropsStaleTrigger(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 5, 0, shanghai)
	s, enq, _ := newTestService(t, now)
	if _, err := s.AddDaily("greeting:1", 8, 0, 0, noop); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	oldGen := genOf(t, s, "greeting:1")
	if _, err := s.AddDaily("greeting:1", 9, 0, 0, noop); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	newGen := genOf(t, s, "greeting:1")
	if newGen == oldGen {
		t.Fatalf("generation not bumped")
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}

	s.fire("greeting:1", oldGen)
	if n := len(enq.taken()); n != 0 {
		t.Fatalf("stale trigger enqueued %d tasks", n)
	}
	s.fire("greeting:1", newGen)
	if n := len(enq.taken()); n != 1 {
		t.Fatalf("current trigger enqueued %d tasks, want 1", n)
	}
}

func TestFireKeysOverlapByGeneration(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 8, 0, 1, 0, shanghai)
	s, enq, _ := newTestService(t, now)
	if _, err := s.AddDaily("greeting:1", 8, 0, 0, noop); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	s.fire("greeting:1", genOf(t, s, "greeting:1"))
	if _, err := s.AddDaily("greeting:1", 8, 0, 0, noop); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	s.fire("greeting:1", genOf(t, s, "greeting:1"))

	tasks := enq.taken()
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(tasks))
	}
	for _, task := range tasks {
		if task.Name != "greeting:1" || task.Opt.Overlap != engine.OverlapSkipIfRunning {
			t.Fatalf("task = %q overlap %v", task.Name, task.Opt.Overlap)
		}
	}
	if tasks[0].Opt.OverlapKey == "" || tasks[0].Opt.OverlapKey == tasks[1].Opt.OverlapKey {
		t.Fatalf("overlap keys = %q, %q", tasks[0].Opt.OverlapKey, tasks[1].Opt.OverlapKey)
	}
}

func TestQueuedTaskDiscardedAfterSupersede(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 8, 0, 1, 0, shanghai)
	s, enq, _ := newTestService(t, now)
	ran := 0
	job := func(context.Context) error { ran++; return nil }
	if _, err := s.AddDaily("greeting:1", 8, 0, 0, job); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	s.fire("greeting:1", genOf(t, s, "greeting:1"))
	tasks := enq.taken()
	if len(tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(tasks))
	}

	s.Remove("greeting:1")
	if err := tasks[0].Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ran != 0 {
		t.Fatalf("removed trigger ran its job")
	}
}

func TestMisfireGrace(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		now  time.Time
		run  bool
	}{
		{"on time", time.Date(2026, 3, 1, 8, 0, 0, 0, shanghai), true},
		{"within grace", time.Date(2026, 3, 1, 8, 0, 59, 0, shanghai), true},
		{"too late", time.Date(2026, 3, 1, 8, 2, 0, 0, shanghai), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s, enq, bus := newTestService(t, tc.now)
			events, unsubscribe := bus.Subscribe(8)
			defer unsubscribe()
			if _, err := s.AddDaily("greeting:1", 8, 0, 0, noop); err != nil {
				t.Fatalf("AddDaily: %v", err)
			}
			s.fire("greeting:1", genOf(t, s, "greeting:1"))

			got := len(enq.taken()) == 1
			if got != tc.run {
				t.Fatalf("enqueued = %v, want %v", got, tc.run)
			}
			if tc.run {
				return
			}
			for {
				select {
				case e := <-events:
					if e.Type != eventbus.ScheduleMisfired {
						continue
					}
					m, ok := e.Data.(Misfire)
					if !ok || m.Name != "greeting:1" {
						t.Fatalf("misfire data = %#v", e.Data)
					}
					if want := time.Date(2026, 3, 1, 8, 0, 0, 0, shanghai); !m.Planned.Equal(want) {
						t.Fatalf("planned = %v, want %v", m.Planned, want)
					}
					return
				case <-time.After(time.Second):
					t.Fatalf("no misfire event")
				}
			}
		})
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()

	s, enq, _ := newTestService(t, time.Date(2026, 3, 1, 8, 0, 0, 0, shanghai))
	if _, err := s.AddDaily("greeting:1", 8, 0, 0, noop); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	gen := genOf(t, s, "greeting:1")
	if !s.Remove("greeting:1") {
		t.Fatalf("Remove = false")
	}
	if s.Remove("greeting:1") {
		t.Fatalf("second Remove = true")
	}
	s.fire("greeting:1", gen)
	if n := len(enq.taken()); n != 0 {
		t.Fatalf("removed trigger enqueued %d tasks", n)
	}
}

func TestEnqueueErrorDoesNotPanic(t *testing.T) {
	t.Parallel()

	s, enq, _ := newTestService(t, time.Date(2026, 3, 1, 8, 0, 0, 0, shanghai))
	enq.err = engine.ErrQueueFull
	if _, err := s.AddDaily("greeting:1", 8, 0, 0, noop); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	gen := genOf(t, s, "greeting:1")
	s.fire("greeting:1", gen)
	s.fire("greeting:1", gen)
}

func TestStartStopKeepsDefinitions(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestService(t, time.Now())
	if _, err := s.AddDaily("greeting:1", 8, 0, 0, noop); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	s.Start(context.Background())
	if snap := s.Snapshot(); !snap.Running || len(snap.Schedules) != 1 || snap.Schedules[0].Next.IsZero() {
		t.Fatalf("snapshot after Start = %+v", snap)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	snap := s.Snapshot()
	if snap.Running || len(snap.Schedules) != 1 {
		t.Fatalf("snapshot after Stop = %+v", snap)
	}
	if snap.Timezone != "CST" || snap.MisfireGrace != DefaultMisfireGrace {
		t.Fatalf("snapshot settings = %+v", snap)
	}
}

func TestIntervalSpreadFirstRun(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	sched := spreadInterval(time.Minute, now, "health")
	first := sched.Next(now)
	if first.Before(now.Add(time.Minute)) || !first.Before(now.Add(time.Minute+maxStartupSpread)) {
		t.Fatalf("first = %v", first)
	}
	if second := sched.Next(first); !second.After(first) {
		t.Fatalf("second = %v, first = %v", second, first)
	}
}
