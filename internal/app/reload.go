package app

import (
	"context"
	"strings"
	"time"

	"greetbot/internal/config"
	"greetbot/internal/eventbus"
	logx "greetbot/pkg/logx"
)

const toggleStopTimeout = 3 * time.Second

// reloadLoop applies every committed config to the running components.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)

	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			newCfg = drainLatest(sub, newCfg)
			a.apply(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// drainLatest coalesces a burst of reloads into the newest one.
func drainLatest(sub <-chan *config.Config, cfg *config.Config) *config.Config {
	for {
		select {
		case newer, ok := <-sub:
			if !ok {
				return cfg
			}
			if newer != nil {
				cfg = newer
			}
		default:
			return cfg
		}
	}
}

func (a *App) apply(ctx context.Context, oldCfg, newCfg *config.Config) {
	if newCfg == nil {
		return
	}
	sections, attrs, pluginChanged := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(pluginChanged) > 0 {
		a.log.Debug("plugin config changes detected", logx.Any("plugins", pluginChanged))
	}
	for _, s := range restartOnly(oldCfg, newCfg) {
		a.log.Warn("config section changed; restart required", logx.String("section", s))
	}

	a.logs.Apply(logConfig(newCfg.Logging))
	a.router.SetOwners(newCfg.Telegram.OwnerUserIDs)

	if ecfg, err := engineConfig(newCfg); err != nil {
		a.log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(ctx, ecfg)
		a.pm.SetTaskTimeout(ecfg.DefaultTimeout)
	}

	if scfg, err := schedulerConfig(newCfg); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		wasEnabled := a.sched.Enabled()
		a.sched.Apply(scfg)
		switch {
		case wasEnabled && !scfg.Enabled:
			a.log.Info("scheduler disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, toggleStopTimeout)
			a.sched.Stop(stopCtx)
			cancel()
		case !wasEnabled && scfg.Enabled:
			a.log.Info("scheduler enabled via config")
			a.sched.Start(ctx)
		}
	}

	if ncfg, err := notifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		wasEnabled := a.notif.Enabled()
		a.notif.Apply(ncfg)
		switch {
		case wasEnabled && !ncfg.Enabled:
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, toggleStopTimeout)
			a.notif.Stop(stopCtx)
			cancel()
		case !wasEnabled && ncfg.Enabled:
			a.log.Info("notifier enabled via config")
			a.notif.Start(ctx)
		}
	}

	a.pm.Reconcile(ctx, newCfg.Plugins)
	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: sections})

	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
