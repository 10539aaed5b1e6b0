// Package app builds the bot from its config file and owns the lifecycle of
// every long-lived component.
package app

import (
	"context"
	"fmt"
	"time"

	"greetbot/internal/config"
	"greetbot/internal/eventbus"
	"greetbot/internal/notifier"
	"greetbot/internal/plugin"
	rtsup "greetbot/internal/runtime/supervisor"
	"greetbot/internal/storage"
	"greetbot/internal/task/engine"
	"greetbot/internal/task/scheduler"
	"greetbot/internal/transport"
	telegram "greetbot/internal/transport/telegram/adapter"
	"greetbot/internal/transport/telegram/router"
	logx "greetbot/pkg/logx"
)

const (
	updatesBuffer = 256
	healthEvery   = 5 * time.Minute
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter
	engine  *engine.Service
	sched   *scheduler.Service
	notif   *notifier.Service
	router  *router.Router
	pm      *plugin.Manager

	updates chan transport.Message
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", cfgPath, err)
	}

	// The chat sink needs the adapter, which needs a logger: start without a
	// sender and attach it once the adapter exists.
	logSvc, root := logx.New(logConfig(cfg.Logging), nil)
	log := root.With(logx.String("comp", "app"))

	pollTimeout, err := cfg.PollTimeout()
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, root.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}
	logSvc.SetSender(logx.SenderFunc(func(ctx context.Context, chatID int64, threadID int, text string) error {
		_, err := ad.SendText(ctx, transport.ChatTarget{ChatID: chatID, ThreadID: threadID}, text, &transport.SendOptions{DisablePreview: true})
		return err
	}))

	bus := eventbus.New()

	sc, err := storageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", store.Path()))

	engCfg, err := engineConfig(cfg)
	if err != nil {
		return nil, err
	}
	engineSvc := engine.New(engCfg, root.With(logx.String("comp", "taskengine")), bus)

	schedCfg, err := schedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	schedSvc := scheduler.New(schedCfg, engineSvc, root.With(logx.String("comp", "scheduler")), bus)

	ncfg, err := notifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notifSvc := notifier.New(ncfg, ad, root.With(logx.String("comp", "notifier")), bus)

	rt := router.New(root.With(logx.String("comp", "commands")), ad, cfg.Telegram.OwnerUserIDs)

	info := &runtimeInfo{started: time.Now(), sched: schedSvc, engine: engineSvc, notif: notifSvc}
	pm := plugin.NewManager(root.With(logx.String("comp", "plugins")), plugin.Deps{
		Logger:      root,
		Scheduler:   schedSvc,
		Notifier:    notifSvc,
		Store:       store,
		Bus:         bus,
		Runtime:     info,
		TaskTimeout: engCfg.DefaultTimeout,
	}, rt, ad)
	info.pm = pm

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		engine:  engineSvc,
		sched:   schedSvc,
		notif:   notifSvc,
		router:  rt,
		pm:      pm,
		updates: make(chan transport.Message, updatesBuffer),
	}, nil
}

func (a *App) Plugins() *plugin.Manager { return a.pm }

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validate)

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return err
	}
	if a.notif.Enabled() {
		a.notif.Start(runCtx)
	}
	a.engine.Start(runCtx)
	if a.sched.Enabled() {
		a.sched.Start(runCtx)
	}

	cfg := a.cfgm.Get()
	a.pm.Reconcile(runCtx, cfg.Plugins)

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})
	a.sup.Go0("eventbus.log", a.logEvents)
	a.sup.Go0("plugins.health", a.watchHealth)
	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.Int("plugins", len(a.pm.Snapshot().Plugins)))
	return nil
}

// validate gates every hot reload before it is committed.
func (a *App) validate(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return a.pm.ValidateConfig(ctx, cfg)
}

func (a *App) logEvents(ctx context.Context) {
	events, unsubscribe := a.bus.Subscribe(128)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

func (a *App) watchHealth(ctx context.Context) {
	t := time.NewTicker(healthEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, h := range a.pm.CheckHealth(ctx) {
				if h.Err != "" {
					a.log.Warn("plugin unhealthy", logx.String("plugin", h.Plugin), logx.String("status", h.Status), logx.String("err", h.Err))
				}
			}
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	// Plugins first: they disarm triggers and may still notify.
	a.step(ctx, "plugins", 4*time.Second, func(c context.Context) error { a.pm.StopAll(c); return nil })
	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "taskengine", 3*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	a.step(ctx, "notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	a.step(ctx, "adapter", 2*time.Second, a.adapter.Stop)
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	return a.logs.Close()
}
