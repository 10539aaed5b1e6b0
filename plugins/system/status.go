package system

import (
	"context"
	"fmt"
	"strings"

	"greetbot/internal/plugin"
	"greetbot/internal/transport/telegram/router"
	"greetbot/pkg/tgui"
)

// cmdHealth reports cached plugin health; "/health check" probes first.
func (p *Plugin) cmdHealth(ctx context.Context, req *router.Request) error {
	rt := p.Deps.Runtime
	if rt == nil {
		return req.Reply(ctx, textNoRuntime)
	}
	if len(req.Args) > 0 && strings.EqualFold(req.Args[0], "check") {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		rt.CheckPlugins(cctx)
		cancel()
	}
	return sendHTML(ctx, req, renderHealth(rt))
}

func renderHealth(rt plugin.RuntimeInfo) tgui.H {
	snap := rt.PluginSnapshot()
	degraded := false
	pluginLines := make([]tgui.H, 0, len(snap.Plugins))
	for _, st := range snap.Plugins {
		state := "stopped"
		switch {
		case st.Quarantined:
			state = "quarantined: " + tgui.TruncRunes(st.QuarantineErr, 80)
			degraded = true
		case st.Running && st.LastHealth.Err != "":
			state = "unhealthy: " + tgui.TruncRunes(st.LastHealth.Err, 80)
			degraded = true
		case st.Running && st.LastHealth.Status != "":
			state = st.LastHealth.Status
		case st.Running:
			state = "running"
		case !st.Enabled:
			state = "disabled"
		}
		pluginLines = append(pluginLines, tgui.Esc("- ")+tgui.Code(st.Name)+tgui.Esc(" "+state))
	}

	status := "Running"
	if degraded {
		status = "Degraded"
	}

	sched := rt.SchedulerSnapshot()
	eng := rt.EngineSnapshot()
	sent := rt.NotifierHistory()

	parts := []tgui.H{
		tgui.KV("status", status),
		tgui.KV("scheduler", fmt.Sprintf("enabled=%t running=%t schedules=%d tz=%s", sched.Enabled, sched.Running, len(sched.Schedules), sched.Timezone)),
		tgui.KV("task engine", fmt.Sprintf("workers=%d queue=%d/%d in_flight=%d dropped=%d", eng.Workers, eng.QueueLen, eng.QueueCap, eng.InFlight, eng.Dropped)),
		tgui.KV("notifier", fmt.Sprintf("recent=%d", len(sent))),
		tgui.B(fmt.Sprintf("plugins (%d)", len(snap.Plugins))),
	}
	return tgui.Lines(append(parts, pluginLines...)...)
}
