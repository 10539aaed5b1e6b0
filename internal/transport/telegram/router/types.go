// Package router dispatches chat commands to handlers on a bounded worker pool.
package router

import (
	"context"
	"time"

	"greetbot/internal/transport"
	logx "greetbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

const DefaultCommandTimeout = 15 * time.Second

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	// Name is the command word without the leading slash, e.g. "stime".
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access

	Plugin  string
	Timeout time.Duration // zero means DefaultCommandTimeout
	Handle  HandlerFunc
}

type Request struct {
	Message transport.Message
	Chat    transport.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string

	Adapter transport.Adapter
	Logger  logx.Logger
}

// UserID is the persisted subscription key of the requesting conversation.
func (r *Request) UserID() string { return r.Chat.UserID() }

// Reply sends text to the conversation the command came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &transport.SendOptions{DisablePreview: true})
	return err
}
