package system

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"greetbot/internal/notifier"
	"greetbot/internal/plugin"
	"greetbot/internal/task/engine"
	"greetbot/internal/task/scheduler"
	"greetbot/internal/transport"
	"greetbot/internal/transport/telegram/router"
	logx "greetbot/pkg/logx"
)

type fakeRuntime struct {
	checks  int
	plugins plugin.Snapshot
	sched   scheduler.Snapshot
}

func (f *fakeRuntime) StartedAt() time.Time                    { return time.Now().Add(-time.Hour) }
func (f *fakeRuntime) SchedulerSnapshot() scheduler.Snapshot   { return f.sched }
func (f *fakeRuntime) EngineSnapshot() engine.Snapshot         { return engine.Snapshot{Workers: 2, QueueCap: 256} }
func (f *fakeRuntime) NotifierHistory() []notifier.HistoryItem { return nil }
func (f *fakeRuntime) PluginSnapshot() plugin.Snapshot         { return f.plugins }
func (f *fakeRuntime) CheckPlugins(context.Context) []plugin.HealthResult {
	f.checks++
	return nil
}

type sent struct {
	text string
	opt  *transport.SendOptions
}

type fakeAdapter struct {
	mu   sync.Mutex
	sent []sent
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Message) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                            { return nil }
func (f *fakeAdapter) SendText(_ context.Context, _ transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{text: text, opt: opt})
	return transport.MessageRef{}, nil
}

func (f *fakeAdapter) last(t *testing.T) sent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatalf("nothing sent")
	}
	return f.sent[len(f.sent)-1]
}

func newPlugin(t *testing.T, rt plugin.RuntimeInfo) *Plugin {
	t.Helper()
	p := New()
	if err := p.Init(context.Background(), plugin.Deps{Logger: logx.Nop(), Runtime: rt}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return p
}

func req(a transport.Adapter, args ...string) *router.Request {
	return &router.Request{Chat: transport.ChatTarget{ChatID: 1}, Args: args, Adapter: a, Logger: logx.Nop()}
}

func TestSchedList(t *testing.T) {
	t.Parallel()

	rt := &fakeRuntime{sched: scheduler.Snapshot{
		Enabled:  true,
		Timezone: "CST",
		Schedules: []scheduler.ScheduleInfo{
			{Name: "greeting:42", Spec: "0 8 * * *", Next: time.Now().Add(time.Hour)},
		},
	}}
	p := newPlugin(t, rt)
	a := &fakeAdapter{}
	if err := p.cmdSchedList(context.Background(), req(a)); err != nil {
		t.Fatalf("cmdSchedList: %v", err)
	}
	got := a.last(t)
	if got.opt == nil || got.opt.ParseMode != "HTML" {
		t.Fatalf("options = %+v", got.opt)
	}
	if !strings.Contains(got.text, "<code>greeting:42</code>") || !strings.Contains(got.text, "0 8 * * *") {
		t.Fatalf("text = %q", got.text)
	}

	rt.sched.Enabled = false
	_ = p.cmdSchedList(context.Background(), req(a))
	if a.last(t).text != "scheduler is disabled" {
		t.Fatalf("disabled text = %q", a.last(t).text)
	}
}

func TestHealthDegradedAndCheck(t *testing.T) {
	t.Parallel()

	rt := &fakeRuntime{plugins: plugin.Snapshot{Plugins: []plugin.Status{
		{Name: "greeting", Enabled: true, Running: true, LastHealth: plugin.HealthResult{Status: "ok (2 armed)"}},
		{Name: "broken", Enabled: true, Quarantined: true, QuarantineErr: "init <failed>"},
	}}}
	p := newPlugin(t, rt)
	a := &fakeAdapter{}

	if err := p.cmdHealth(context.Background(), req(a)); err != nil {
		t.Fatalf("cmdHealth: %v", err)
	}
	if rt.checks != 0 {
		t.Fatalf("probed without check arg")
	}
	text := a.last(t).text
	for _, want := range []string{"Degraded", "ok (2 armed)", "quarantined: init &lt;failed&gt;", "workers=2"} {
		if !strings.Contains(text, want) {
			t.Fatalf("health text missing %q: %q", want, text)
		}
	}

	_ = p.cmdHealth(context.Background(), req(a, "check"))
	if rt.checks != 1 {
		t.Fatalf("checks = %d", rt.checks)
	}
}

func TestWithoutRuntime(t *testing.T) {
	t.Parallel()

	p := newPlugin(t, nil)
	a := &fakeAdapter{}
	_ = p.cmdHealth(context.Background(), req(a))
	if a.last(t).text != textNoRuntime {
		t.Fatalf("text = %q", a.last(t).text)
	}
	if err := p.cmdSysinfo(context.Background(), req(a)); err != nil {
		t.Fatalf("cmdSysinfo: %v", err)
	}
	if !strings.Contains(a.last(t).text, "goroutines") {
		t.Fatalf("sysinfo = %q", a.last(t).text)
	}
}

func TestCommandAccess(t *testing.T) {
	t.Parallel()

	owner := map[string]bool{}
	for _, c := range New().Commands() {
		owner[c.Name] = c.Access == router.AccessOwnerOnly
	}
	if owner["ping"] || owner["uptime"] || !owner["sysinfo"] || !owner["sched_list"] || !owner["health"] {
		t.Fatalf("access = %v", owner)
	}
}
