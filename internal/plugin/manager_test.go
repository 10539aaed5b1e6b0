package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"greetbot/internal/config"
	"greetbot/internal/transport"
	"greetbot/internal/transport/telegram/router"
	logx "greetbot/pkg/logx"
)

type fakePlugin struct {
	Base
	mu       sync.Mutex
	inits    int
	starts   int
	stops    int
	configs  []string
	failWith error
}

func (p *fakePlugin) Name() string { return "fake" }

func (p *fakePlugin) Init(_ context.Context, deps Deps) error {
	p.InitBase(deps, p.Name())
	p.mu.Lock()
	p.inits++
	p.mu.Unlock()
	return nil
}

func (p *fakePlugin) Start(ctx context.Context) error {
	p.StartBase(ctx)
	p.mu.Lock()
	p.starts++
	p.mu.Unlock()
	return nil
}

func (p *fakePlugin) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.stops++
	p.mu.Unlock()
	return p.StopBase(ctx)
}

func (p *fakePlugin) Commands() []router.Command {
	return []router.Command{{Name: "ping", Handle: func(context.Context, *router.Request) error { return nil }}}
}

func (p *fakePlugin) OnConfigChange(_ context.Context, raw json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.configs = append(p.configs, string(raw))
	return nil
}

type fakeRegistry struct {
	mu   sync.Mutex
	last []router.Command
}

func (r *fakeRegistry) SetCommands(cmds []router.Command) []transport.BotCommand {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = cmds
	return nil
}

func (r *fakeRegistry) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.last {
		out = append(out, c.Plugin+"/"+c.Name)
	}
	return out
}

func plugins(enabled bool, cfg string) map[string]config.PluginConfigRaw {
	return map[string]config.PluginConfigRaw{"fake": {Enabled: enabled, Config: json.RawMessage(cfg)}}
}

func TestReconcileLifecycle(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{}
	p := &fakePlugin{}
	pm := NewManager(logx.Nop(), Deps{}, reg, nil)
	pm.Register(p)
	ctx := context.Background()

	pm.Reconcile(ctx, plugins(true, `{"a":1}`))
	if got := reg.names(); len(got) != 1 || got[0] != "fake/ping" {
		t.Fatalf("commands = %v", got)
	}

	// Same config with different formatting must not be reapplied.
	pm.Reconcile(ctx, plugins(true, `{ "a" : 1 }`))
	pm.Reconcile(ctx, plugins(true, `{"a":2}`))
	pm.Reconcile(ctx, plugins(false, `{"a":2}`))
	pm.Reconcile(ctx, plugins(true, `{"a":2}`))

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inits != 1 || p.starts != 2 || p.stops != 1 {
		t.Fatalf("inits=%d starts=%d stops=%d", p.inits, p.starts, p.stops)
	}
	if len(p.configs) != 3 {
		t.Fatalf("configs = %v", p.configs)
	}
}

func TestQuarantineUntilConfigChanges(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{}
	p := &fakePlugin{failWith: errors.New("bad config")}
	pm := NewManager(logx.Nop(), Deps{}, reg, nil)
	pm.Register(p)
	ctx := context.Background()

	pm.Reconcile(ctx, plugins(true, `{"a":1}`))
	snap := pm.Snapshot()
	if len(snap.Plugins) != 1 || snap.Plugins[0].Running || !snap.Plugins[0].Quarantined {
		t.Fatalf("snapshot = %+v", snap)
	}
	if len(reg.names()) != 0 {
		t.Fatalf("quarantined plugin exposed commands")
	}

	p.mu.Lock()
	p.failWith = nil
	p.mu.Unlock()
	pm.Reconcile(ctx, plugins(true, `{"a":1}`))
	if pm.Snapshot().Plugins[0].Running {
		t.Fatalf("quarantined plugin restarted without config change")
	}
	pm.Reconcile(ctx, plugins(true, `{"a":3}`))
	if !pm.Snapshot().Plugins[0].Running {
		t.Fatalf("plugin not restarted after config change")
	}

	sctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	pm.StopAll(sctx)
	if pm.Snapshot().Plugins[0].Running {
		t.Fatalf("plugin still running after StopAll")
	}
}

func TestCheckHealth(t *testing.T) {
	t.Parallel()

	p := &fakePlugin{}
	pm := NewManager(logx.Nop(), Deps{}, &fakeRegistry{}, nil)
	pm.Register(p)
	pm.Reconcile(context.Background(), plugins(true, ""))

	res := pm.CheckHealth(context.Background())
	if len(res) != 1 || res[0].Status != "ok" || res[0].Err != "" {
		t.Fatalf("health = %+v", res)
	}
}

func TestDecodePluginConfigStrict(t *testing.T) {
	t.Parallel()

	type cfg struct {
		URL string `json:"url"`
	}
	got, err := DecodePluginConfig[cfg](json.RawMessage(`{"url":"x"}`))
	if err != nil || got.URL != "x" {
		t.Fatalf("decode = %+v, %v", got, err)
	}
	if _, err := DecodePluginConfig[cfg](json.RawMessage(`{"uri":"x"}`)); err == nil {
		t.Fatalf("unknown field accepted")
	}
	if got, err := DecodePluginConfig[cfg](nil); err != nil || got.URL != "" {
		t.Fatalf("empty decode = %+v, %v", got, err)
	}
}

func TestBaseNamespace(t *testing.T) {
	t.Parallel()

	var b Base
	b.InitBase(Deps{}, "greeting")
	if got := b.NS("42"); got != "greeting:42" {
		t.Fatalf("NS = %q", got)
	}
	if _, err := b.Daily("42", 8, 0, func(context.Context) error { return nil }); !errors.Is(err, ErrNoScheduler) {
		t.Fatalf("Daily err = %v", err)
	}
}
