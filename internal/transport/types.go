// Package transport holds the chat-platform neutral message types and the
// Adapter contract implemented by platform adapters.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

// Target returns the conversation the message came from.
func (m Message) Target() ChatTarget {
	return ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
}

// ChatTarget identifies a conversation. Its UserID form is the stable key
// used for persisted greeting subscriptions.
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

var ErrBadUserID = errors.New("invalid user id")

// UserID encodes t as "<chat_id>" or "<chat_id>:<thread_id>".
func (t ChatTarget) UserID() string {
	if t.ThreadID == 0 {
		return strconv.FormatInt(t.ChatID, 10)
	}
	return strconv.FormatInt(t.ChatID, 10) + ":" + strconv.Itoa(t.ThreadID)
}

func (t ChatTarget) String() string { return t.UserID() }

// ParseUserID is the inverse of ChatTarget.UserID.
func ParseUserID(s string) (ChatTarget, error) {
	s = strings.TrimSpace(s)
	chat, thread, hasThread := strings.Cut(s, ":")
	id, err := strconv.ParseInt(chat, 10, 64)
	if err != nil || id == 0 {
		return ChatTarget{}, fmt.Errorf("%w: %q", ErrBadUserID, s)
	}
	t := ChatTarget{ChatID: id}
	if hasThread {
		th, err := strconv.Atoi(thread)
		if err != nil || th < 0 {
			return ChatTarget{}, fmt.Errorf("%w: %q", ErrBadUserID, s)
		}
		t.ThreadID = th
	}
	return t, nil
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// ReplyTo is the message id to reply to (0 for none).
	ReplyTo int
}

type Adapter interface {
	// Start begins receiving messages into out. It returns once polling runs.
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
