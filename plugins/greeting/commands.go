package greeting

import (
	"context"
	"errors"
	"fmt"

	"greetbot/internal/storage"
	"greetbot/internal/transport/telegram/router"
	logx "greetbot/pkg/logx"
)

const (
	textSetOK        = "设置成功！将在每天%s向您发送问候。"
	textBadFormat    = "请按照HH:MM格式输入时间。"
	textPersistFail  = "设置已生效，但保存失败，重启后将丢失。"
	textSetFail      = "设置失败，请稍后再试。"
	textUnsetOK      = "已取消每日问候。"
	textUnsetPartial = "已取消，但保存失败，重启后将恢复。"
	textUnsetFail    = "取消失败，请稍后再试。"
	textNotSet       = "您还没有设置每日问候。"
	textMyTime       = "您的每日问候时间为 %s。"
	textLookupFailed = "查询失败，请稍后再试。"
)

func (p *Plugin) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "stime",
			Description: "设置每日问候时间",
			Usage:       "/stime HH:MM",
			Handle:      p.handleSet,
		},
		{
			Name:        "nihao",
			Description: "立即获取一条一言",
			Usage:       "/nihao",
			Handle:      p.handleNow,
		},
		{
			Name:        "dtime",
			Description: "取消每日问候",
			Usage:       "/dtime",
			Handle:      p.handleUnset,
		},
		{
			Name:        "mytime",
			Description: "查看每日问候时间",
			Usage:       "/mytime",
			Handle:      p.handleShow,
		},
	}
}

func (p *Plugin) handleSet(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		return req.Reply(ctx, textBadFormat)
	}
	t, err := p.schedules.Set(ctx, req.UserID(), req.Args[0])
	switch {
	case err == nil:
		return req.Reply(ctx, fmt.Sprintf(textSetOK, t.String()))
	case errors.Is(err, storage.ErrInvalidTime):
		return req.Reply(ctx, textBadFormat)
	case errors.Is(err, ErrPersist):
		return req.Reply(ctx, textPersistFail)
	default:
		req.Logger.Error("greeting set failed", logx.Err(err))
		return req.Reply(ctx, textSetFail)
	}
}

func (p *Plugin) handleNow(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, p.disp.FetchText(ctx))
}

func (p *Plugin) handleUnset(ctx context.Context, req *router.Request) error {
	existed, err := p.schedules.Unset(ctx, req.UserID())
	switch {
	case err != nil && existed:
		req.Logger.Error("greeting unset not persisted", logx.Err(err))
		return req.Reply(ctx, textUnsetPartial)
	case err != nil:
		req.Logger.Error("greeting unset failed", logx.Err(err))
		return req.Reply(ctx, textUnsetFail)
	case !existed:
		return req.Reply(ctx, textNotSet)
	default:
		return req.Reply(ctx, textUnsetOK)
	}
}

func (p *Plugin) handleShow(ctx context.Context, req *router.Request) error {
	t, ok, err := p.schedules.Get(ctx, req.UserID())
	switch {
	case err != nil:
		req.Logger.Error("greeting lookup failed", logx.Err(err))
		return req.Reply(ctx, textLookupFailed)
	case !ok:
		return req.Reply(ctx, textNotSet)
	default:
		return req.Reply(ctx, fmt.Sprintf(textMyTime, t.String()))
	}
}
