// Package system provides operator commands for inspecting the running bot.
package system

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"greetbot/internal/plugin"
	"greetbot/internal/transport"
	"greetbot/internal/transport/telegram/router"
	"greetbot/pkg/tgui"
)

const (
	Name          = "system"
	checkTimeout  = 12 * time.Second
	listLimit     = 30
	timeLayout    = "2006-01-02 15:04:05"
	textNoRuntime = "runtime info unavailable"
)

type Plugin struct {
	plugin.Base
	startedAt time.Time
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return Name }

func (p *Plugin) Init(ctx context.Context, deps plugin.Deps) error {
	p.InitBase(deps, Name)
	p.startedAt = time.Now()
	if deps.Runtime != nil {
		p.startedAt = deps.Runtime.StartedAt()
	}
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	p.StartBase(ctx)
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error { return p.StopBase(ctx) }

func (p *Plugin) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "ping",
			Description: "存活检查",
			Usage:       "/ping",
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, "pong")
			},
		},
		{
			Name:        "uptime",
			Aliases:     []string{"up"},
			Description: "运行时长",
			Usage:       "/uptime",
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, "uptime: "+tgui.Rel(time.Since(p.startedAt)))
			},
		},
		{
			Name:        "sysinfo",
			Description: "运行时信息（仅管理员）",
			Usage:       "/sysinfo",
			Access:      router.AccessOwnerOnly,
			Handle:      p.cmdSysinfo,
		},
		{
			Name:        "sched_list",
			Aliases:     []string{"tasks"},
			Description: "已注册的定时任务（仅管理员）",
			Usage:       "/sched_list",
			Access:      router.AccessOwnerOnly,
			Handle:      p.cmdSchedList,
		},
		{
			Name:        "health",
			Description: "插件与服务状态（仅管理员）",
			Usage:       "/health [check]",
			Access:      router.AccessOwnerOnly,
			Handle:      p.cmdHealth,
		},
	}
}

func sendHTML(ctx context.Context, req *router.Request, body tgui.H) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, body.String(), &transport.SendOptions{ParseMode: tgui.ParseMode, DisablePreview: true})
	return err
}

func (p *Plugin) cmdSysinfo(ctx context.Context, req *router.Request) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mod := "-"
	if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
		mod = bi.Main.Path + " " + bi.Main.Version
	}
	return sendHTML(ctx, req, tgui.Lines(
		tgui.B("sysinfo"),
		tgui.KV("go", runtime.Version()),
		tgui.KV("module", mod),
		tgui.KV("goroutines", runtime.NumGoroutine()),
		tgui.KV("mem_alloc", tgui.Bytes(m.Alloc)),
		tgui.KV("mem_sys", tgui.Bytes(m.Sys)),
		tgui.KV("uptime", tgui.Rel(time.Since(p.startedAt))),
	))
}

func (p *Plugin) cmdSchedList(ctx context.Context, req *router.Request) error {
	rt := p.Deps.Runtime
	if rt == nil {
		return req.Reply(ctx, textNoRuntime)
	}
	snap := rt.SchedulerSnapshot()
	if !snap.Enabled {
		return req.Reply(ctx, "scheduler is disabled")
	}
	if len(snap.Schedules) == 0 {
		return req.Reply(ctx, "no scheduled tasks")
	}

	now := time.Now()
	lines := []tgui.H{
		tgui.B(fmt.Sprintf("scheduled tasks (%s, %d)", snap.Timezone, len(snap.Schedules))),
	}
	for i, s := range snap.Schedules {
		if i == listLimit {
			lines = append(lines, tgui.I(fmt.Sprintf("… %d more", len(snap.Schedules)-listLimit)))
			break
		}
		next := "-"
		if !s.Next.IsZero() {
			next = s.Next.In(now.Location()).Format(timeLayout)
			if s.Next.After(now) {
				next += " (" + tgui.Rel(s.Next.Sub(now)) + ")"
			}
		}
		lines = append(lines, tgui.Code(s.Name)+tgui.Esc(" "+s.Spec+" next="+next))
	}
	return sendHTML(ctx, req, tgui.Lines(lines...))
}
