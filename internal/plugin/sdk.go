// Package plugin hosts feature plugins: lifecycle, per-plugin config, and
// the namespaced helpers plugins use to reach shared services.
package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"greetbot/internal/eventbus"
	"greetbot/internal/notifier"
	rtsup "greetbot/internal/runtime/supervisor"
	"greetbot/internal/storage"
	"greetbot/internal/task/engine"
	"greetbot/internal/task/scheduler"
	"greetbot/internal/transport/telegram/router"
	logx "greetbot/pkg/logx"
)

var (
	ErrNoScheduler = errors.New("scheduler not available")
	ErrNoNotifier  = errors.New("notifier not available")
)

type Plugin interface {
	Name() string
	Init(ctx context.Context, deps Deps) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Commands() []router.Command
}

// ConfigurablePlugin receives its config blob before Start and on every
// change while running.
type ConfigurablePlugin interface {
	OnConfigChange(ctx context.Context, raw json.RawMessage) error
}

// ConfigValidator is an optional hook to reject a plugin config before a
// reload is committed.
type ConfigValidator interface {
	ValidateConfig(ctx context.Context, raw json.RawMessage) error
}

// HealthChecker is polled by Manager.CheckHealth.
type HealthChecker interface {
	Health(ctx context.Context) (status string, err error)
}

// SchedulerPort is the part of the scheduler plugins may use.
type SchedulerPort interface {
	AddDaily(name string, hour, minute int, timeout time.Duration, job func(ctx context.Context) error) (string, error)
	AddInterval(name string, every, timeout time.Duration, job func(ctx context.Context) error) (string, error)
	Remove(name string) bool
	Has(name string) bool
	Next(name string) (time.Time, bool)
}

type NotifierPort interface {
	Notify(ctx context.Context, n notifier.Notification) error
}

// RuntimeInfo is read-only runtime state for operator commands.
type RuntimeInfo interface {
	StartedAt() time.Time
	SchedulerSnapshot() scheduler.Snapshot
	EngineSnapshot() engine.Snapshot
	NotifierHistory() []notifier.HistoryItem
	PluginSnapshot() Snapshot
	CheckPlugins(ctx context.Context) []HealthResult
}

type Deps struct {
	Logger    logx.Logger
	Scheduler SchedulerPort
	Notifier  NotifierPort
	Store     storage.Store
	Bus       eventbus.Bus
	// Runtime may be nil.
	Runtime RuntimeInfo
	// TaskTimeout bounds each scheduled job.
	TaskTimeout time.Duration
}

// Base is embedded by plugins for logging, a per-plugin supervisor and
// namespaced scheduling.
type Base struct {
	Log    logx.Logger
	Deps   Deps
	Runner *rtsup.Supervisor
	name   string
	ctx    context.Context
}

func (b *Base) InitBase(deps Deps, name string) {
	b.Deps = deps
	b.name = name
	log := deps.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	b.Log = log.With(logx.String("plugin", name))
	if b.Deps.Bus == nil {
		b.Deps.Bus = eventbus.Nop{}
	}
}

// StartBase creates a per-plugin supervisor tied to ctx.
func (b *Base) StartBase(ctx context.Context) {
	b.ctx = ctx
	b.Runner = rtsup.NewSupervisor(ctx, rtsup.WithLogger(b.Log), rtsup.WithCancelOnError(false))
}

// StopBase cancels the runner and waits bounded by ctx.
func (b *Base) StopBase(ctx context.Context) error {
	if b.Runner == nil {
		return nil
	}
	b.Runner.Cancel()
	err := b.Runner.Wait(ctx)
	b.Runner = nil
	return err
}

// Context returns the plugin runtime context (canceled on stop).
func (b *Base) Context() context.Context {
	if b.ctx == nil {
		return context.Background()
	}
	return b.ctx
}

func (b *Base) Health(ctx context.Context) (string, error) {
	if b.ctx == nil {
		return "not_started", nil
	}
	if err := b.ctx.Err(); err != nil {
		return "stopped", err
	}
	return "ok", nil
}

// NS prefixes name with the plugin name ("greeting:42").
func (b *Base) NS(name string) string {
	switch {
	case b.name == "":
		return name
	case name == "":
		return b.name
	}
	return b.name + ":" + name
}

func (b *Base) Daily(name string, hour, minute int, job func(ctx context.Context) error) (string, error) {
	if b.Deps.Scheduler == nil {
		return "", ErrNoScheduler
	}
	return b.Deps.Scheduler.AddDaily(b.NS(name), hour, minute, b.Deps.TaskTimeout, job)
}

func (b *Base) Every(name string, every time.Duration, job func(ctx context.Context) error) (string, error) {
	if b.Deps.Scheduler == nil {
		return "", ErrNoScheduler
	}
	return b.Deps.Scheduler.AddInterval(b.NS(name), every, b.Deps.TaskTimeout, job)
}

func (b *Base) Unschedule(name string) bool {
	if b.Deps.Scheduler == nil {
		return false
	}
	return b.Deps.Scheduler.Remove(b.NS(name))
}

func (b *Base) Scheduled(name string) bool {
	return b.Deps.Scheduler != nil && b.Deps.Scheduler.Has(b.NS(name))
}

func (b *Base) Notify(ctx context.Context, n notifier.Notification) error {
	if b.Deps.Notifier == nil {
		return ErrNoNotifier
	}
	return b.Deps.Notifier.Notify(ctx, n)
}

// PublishEvent is non-blocking.
func (b *Base) PublishEvent(typ string, data any) {
	b.Deps.Bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// DecodePluginConfig strictly decodes a plugin config blob. An empty blob
// yields the zero T.
func DecodePluginConfig[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
