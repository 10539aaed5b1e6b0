package plugin

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"greetbot/internal/config"
	"greetbot/internal/eventbus"
	"greetbot/internal/transport"
	"greetbot/internal/transport/telegram/router"
	logx "greetbot/pkg/logx"
)

const (
	callTimeout   = 10 * time.Second
	healthTimeout = 3 * time.Second
	menuTimeout   = 5 * time.Second
)

// CommandRegistry receives the commands of running plugins.
// *router.Router implements it.
type CommandRegistry interface {
	SetCommands(cmds []router.Command) []transport.BotCommand
}

type quarantineState struct {
	rawHash uint64
	err     string
}

// Manager starts, reconfigures and stops registered plugins according to
// the plugins section of the config.
type Manager struct {
	mu sync.Mutex

	log      logx.Logger
	deps     Deps
	registry CommandRegistry
	menu     transport.CommandMenuUpdater

	order      []string
	reg        map[string]Plugin
	run        map[string]bool
	inited     map[string]bool
	lastHash   map[string]uint64
	pcancel    map[string]context.CancelFunc
	quarantine map[string]quarantineState
	health     map[string]HealthResult
	enabled    map[string]bool

	// baseCtx outlives the call-scoped contexts passed to Reconcile.
	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// NewManager builds a manager. menu may be nil.
func NewManager(log logx.Logger, deps Deps, registry CommandRegistry, menu transport.CommandMenuUpdater) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.Nop{}
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Manager{
		log:        log,
		deps:       deps,
		registry:   registry,
		menu:       menu,
		reg:        map[string]Plugin{},
		run:        map[string]bool{},
		inited:     map[string]bool{},
		lastHash:   map[string]uint64{},
		pcancel:    map[string]context.CancelFunc{},
		quarantine: map[string]quarantineState{},
		health:     map[string]HealthResult{},
		enabled:    map[string]bool{},
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}
}

func (pm *Manager) Register(p ...Plugin) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, pl := range p {
		name := pl.Name()
		if _, ok := pm.reg[name]; !ok {
			pm.order = append(pm.order, name)
		}
		pm.reg[name] = pl
	}
}

// SetTaskTimeout updates the job timeout handed to plugins started later.
func (pm *Manager) SetTaskTimeout(d time.Duration) {
	pm.mu.Lock()
	pm.deps.TaskTimeout = d
	pm.mu.Unlock()
}

func (pm *Manager) emit(typ string, e pluginEvent) {
	pm.deps.Bus.Publish(eventbus.Event{Type: typ, Data: e})
}

// Reconcile brings the running set in line with plugins: enabling,
// disabling and pushing changed config blobs. Failing plugins are
// quarantined until their config changes; they never stop the app.
func (pm *Manager) Reconcile(ctx context.Context, plugins map[string]config.PluginConfigRaw) {
	type op struct {
		name    string
		p       Plugin
		raw     config.PluginConfigRaw
		hash    uint64
		enabled bool
		running bool
	}
	pm.mu.Lock()
	ops := make([]op, 0, len(pm.order))
	for _, name := range pm.order {
		raw, ok := plugins[name]
		pm.enabled[name] = ok && raw.Enabled
		ops = append(ops, op{name: name, p: pm.reg[name], raw: raw, hash: canonicalHashJSON(raw.Config), enabled: ok && raw.Enabled, running: pm.run[name]})
	}
	pm.mu.Unlock()

	for _, o := range ops {
		switch {
		case o.enabled && !o.running:
			if pm.isQuarantined(o.name, o.hash) {
				pm.log.Warn("plugin enable skipped (quarantined)", logx.String("plugin", o.name))
				continue
			}
			pm.start(ctx, o.name, o.p, o.raw, o.hash)
		case !o.enabled && o.running:
			sctx, cancel := context.WithTimeout(ctx, callTimeout)
			pm.stopOne(sctx, o.name)
			cancel()
		case o.enabled && o.running:
			pm.reconfigure(ctx, o.name, o.p, o.raw, o.hash)
		}
	}
	pm.refreshCommands(ctx)
}

func (pm *Manager) start(ctx context.Context, name string, p Plugin, raw config.PluginConfigRaw, hash uint64) {
	start := time.Now()
	pm.mu.Lock()
	deps := pm.deps
	needInit := !pm.inited[name]
	pm.mu.Unlock()

	if needInit {
		ictx, cancel := context.WithTimeout(ctx, callTimeout)
		err := pm.safeCall("init", name, func() error { return p.Init(ictx, deps) })
		cancel()
		if err != nil {
			pm.fail(name, hash, "init", err)
			return
		}
		pm.mu.Lock()
		pm.inited[name] = true
		pm.mu.Unlock()
	}

	if err := pm.applyConfig(ctx, name, p, raw); err != nil {
		pm.fail(name, hash, "config", err)
		return
	}

	pctx, pcancel := context.WithCancel(pm.baseCtx)
	if err := pm.safeCall("start", name, func() error { return p.Start(pctx) }); err != nil {
		pcancel()
		pm.fail(name, hash, "start", err)
		return
	}

	pm.mu.Lock()
	pm.run[name] = true
	pm.pcancel[name] = pcancel
	pm.lastHash[name] = hash
	delete(pm.quarantine, name)
	pm.mu.Unlock()

	took := time.Since(start)
	pm.log.Info("plugin started", logx.String("plugin", name), logx.Duration("took", took))
	pm.emit(eventbus.PluginStarted, pluginEvent{Plugin: name, TookMS: took.Milliseconds()})
}

func (pm *Manager) reconfigure(ctx context.Context, name string, p Plugin, raw config.PluginConfigRaw, hash uint64) {
	pm.mu.Lock()
	old := pm.lastHash[name]
	pm.mu.Unlock()
	if hash == old {
		pm.log.Debug("plugin config unchanged; skipping", logx.String("plugin", name))
		return
	}
	if err := pm.applyConfig(ctx, name, p, raw); err != nil {
		pm.fail(name, hash, "config", err)
		sctx, cancel := context.WithTimeout(ctx, callTimeout)
		pm.stopOne(sctx, name)
		cancel()
		return
	}
	pm.mu.Lock()
	pm.lastHash[name] = hash
	pm.mu.Unlock()
	pm.log.Info("plugin config applied", logx.String("plugin", name))
}

func (pm *Manager) applyConfig(ctx context.Context, name string, p Plugin, raw config.PluginConfigRaw) error {
	cctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	if v, ok := p.(ConfigValidator); ok {
		if err := pm.safeCall("validate", name, func() error { return v.ValidateConfig(cctx, raw.Config) }); err != nil {
			return fmt.Errorf("config validate: %w", err)
		}
	}
	if cp, ok := p.(ConfigurablePlugin); ok {
		if err := pm.safeCall("config", name, func() error { return cp.OnConfigChange(cctx, raw.Config) }); err != nil {
			return fmt.Errorf("config apply: %w", err)
		}
	}
	return nil
}

func (pm *Manager) fail(name string, hash uint64, stage string, err error) {
	pm.mu.Lock()
	pm.quarantine[name] = quarantineState{rawHash: hash, err: err.Error()}
	pm.mu.Unlock()
	pm.log.Error("plugin quarantined", logx.String("plugin", name), logx.String("stage", stage), logx.Err(err))
	pm.emit(eventbus.PluginFailed, pluginEvent{Plugin: name, Stage: stage, Err: err.Error()})
}

// isQuarantined clears a stale quarantine once the config changed.
func (pm *Manager) isQuarantined(name string, hash uint64) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	q, ok := pm.quarantine[name]
	if !ok {
		return false
	}
	if q.rawHash != hash {
		delete(pm.quarantine, name)
		return false
	}
	return true
}

func (pm *Manager) stopOne(ctx context.Context, name string) {
	pm.mu.Lock()
	p := pm.reg[name]
	running := pm.run[name]
	cancel := pm.pcancel[name]
	pm.mu.Unlock()
	if !running || p == nil {
		return
	}

	start := time.Now()
	if cancel != nil {
		cancel()
	}
	// A misbehaving Stop must not block shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pm.safeCall("stop", name, func() error { return p.Stop(ctx) })
	}()
	select {
	case <-done:
	case <-ctx.Done():
		pm.log.Warn("plugin stop timeout (continuing)", logx.String("plugin", name), logx.Err(ctx.Err()))
	}

	pm.mu.Lock()
	pm.run[name] = false
	delete(pm.pcancel, name)
	delete(pm.lastHash, name)
	pm.health[name] = HealthResult{Plugin: name, At: time.Now(), Status: "stopped"}
	pm.mu.Unlock()

	took := time.Since(start)
	pm.log.Info("plugin stopped", logx.String("plugin", name), logx.Duration("took", took))
	pm.emit(eventbus.PluginStopped, pluginEvent{Plugin: name, TookMS: took.Milliseconds()})
}

// StopAll stops every running plugin in reverse registration order.
func (pm *Manager) StopAll(ctx context.Context) {
	pm.mu.Lock()
	names := append([]string(nil), pm.order...)
	pm.mu.Unlock()
	for i := len(names) - 1; i >= 0; i-- {
		pm.stopOne(ctx, names[i])
	}
	pm.baseCancel()
	pm.refreshCommands(ctx)
}

func (pm *Manager) refreshCommands(ctx context.Context) {
	pm.mu.Lock()
	var cmds []router.Command
	for _, name := range pm.order {
		if !pm.run[name] {
			continue
		}
		for _, c := range pm.safeCommands(name, pm.reg[name]) {
			c.Plugin = name
			cmds = append(cmds, c)
		}
	}
	pm.mu.Unlock()

	if pm.registry == nil {
		return
	}
	menu := pm.registry.SetCommands(cmds)
	if pm.menu == nil || ctx.Err() != nil {
		return
	}
	go func() {
		mctx, cancel := context.WithTimeout(pm.baseCtx, menuTimeout)
		defer cancel()
		if err := pm.menu.UpdateMenuCommands(mctx, menu); err != nil {
			pm.log.Debug("menu update failed", logx.Err(err))
		}
	}()
}

func (pm *Manager) safeCall(stage, name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			pm.log.Error("panic in plugin call",
				logx.String("plugin", name),
				logx.String("call", stage),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic in %s.%s: %v", name, stage, r)
		}
	}()
	return fn()
}

func (pm *Manager) safeCommands(name string, p Plugin) (out []router.Command) {
	defer func() {
		if r := recover(); r != nil {
			pm.log.Error("panic in plugin Commands()", logx.String("plugin", name), logx.Any("panic", r))
			out = nil
		}
	}()
	return p.Commands()
}

// ValidateConfig runs plugin validators for every enabled plugin in cfg.
// It is installed as the config reload validator.
func (pm *Manager) ValidateConfig(ctx context.Context, cfg *config.Config) error {
	pm.mu.Lock()
	type target struct {
		name string
		v    ConfigValidator
		raw  config.PluginConfigRaw
	}
	var targets []target
	for _, name := range pm.order {
		raw, ok := cfg.Plugins[name]
		v, isV := pm.reg[name].(ConfigValidator)
		if ok && raw.Enabled && isV {
			targets = append(targets, target{name: name, v: v, raw: raw})
		}
	}
	pm.mu.Unlock()

	for _, t := range targets {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := pm.safeCall("validate", t.name, func() error { return t.v.ValidateConfig(cctx, t.raw.Config) })
		cancel()
		if err != nil {
			return fmt.Errorf("plugin %s: %w", t.name, err)
		}
	}
	return nil
}

func (pm *Manager) Snapshot() Snapshot {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	names := append([]string(nil), pm.order...)
	sort.Strings(names)
	out := Snapshot{Time: time.Now(), Plugins: make([]Status, 0, len(names))}
	for _, name := range names {
		q, qok := pm.quarantine[name]
		out.Plugins = append(out.Plugins, Status{
			Name:          name,
			Enabled:       pm.enabled[name],
			Running:       pm.run[name],
			Quarantined:   qok,
			QuarantineErr: q.err,
			LastHealth:    pm.health[name],
		})
	}
	return out
}

// CheckHealth probes every running plugin implementing HealthChecker.
func (pm *Manager) CheckHealth(ctx context.Context) []HealthResult {
	type target struct {
		name string
		hc   HealthChecker
	}
	pm.mu.Lock()
	var targets []target
	for _, name := range pm.order {
		if hc, ok := pm.reg[name].(HealthChecker); ok && pm.run[name] {
			targets = append(targets, target{name: name, hc: hc})
		}
	}
	pm.mu.Unlock()

	results := make([]HealthResult, 0, len(targets))
	for _, t := range targets {
		hctx, cancel := context.WithTimeout(ctx, healthTimeout)
		var status string
		err := pm.safeCall("health", t.name, func() error {
			var e error
			status, e = t.hc.Health(hctx)
			return e
		})
		cancel()

		pm.mu.Lock()
		r := HealthResult{Plugin: t.name, At: time.Now(), Status: status}
		if err != nil {
			r.Err = err.Error()
			r.Fails = pm.health[t.name].Fails + 1
		}
		pm.health[t.name] = r
		pm.mu.Unlock()
		results = append(results, r)
	}
	return results
}
