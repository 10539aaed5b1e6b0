package app

import (
	"context"
	"time"

	"greetbot/internal/notifier"
	"greetbot/internal/plugin"
	"greetbot/internal/task/engine"
	"greetbot/internal/task/scheduler"
)

// runtimeInfo backs plugin.RuntimeInfo. pm is set once the manager exists.
type runtimeInfo struct {
	started time.Time
	sched   *scheduler.Service
	engine  *engine.Service
	notif   *notifier.Service
	pm      *plugin.Manager
}

func (r *runtimeInfo) StartedAt() time.Time                    { return r.started }
func (r *runtimeInfo) SchedulerSnapshot() scheduler.Snapshot   { return r.sched.Snapshot() }
func (r *runtimeInfo) EngineSnapshot() engine.Snapshot         { return r.engine.Snapshot() }
func (r *runtimeInfo) NotifierHistory() []notifier.HistoryItem { return r.notif.History() }

func (r *runtimeInfo) PluginSnapshot() plugin.Snapshot {
	if r.pm == nil {
		return plugin.Snapshot{Time: time.Now()}
	}
	return r.pm.Snapshot()
}

func (r *runtimeInfo) CheckPlugins(ctx context.Context) []plugin.HealthResult {
	if r.pm == nil {
		return nil
	}
	return r.pm.CheckHealth(ctx)
}
