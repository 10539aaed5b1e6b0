package notifier

import (
	"context"
	"time"

	"greetbot/internal/transport"
)

// Config controls the async notification pipeline.
type Config struct {
	Enabled       bool
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

// Sender delivers text. transport.Adapter implements it.
type Sender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

type Notification struct {
	Target  transport.ChatTarget
	Text    string
	Options *transport.SendOptions
	// Tag labels the notification in events and logs, e.g. a schedule name.
	Tag string
}

type HistoryItem struct {
	At     time.Time
	Target transport.ChatTarget
	Tag    string
}

// NotificationEvent is the Data of notifier.* bus events.
type NotificationEvent struct {
	ChatID   int64     `json:"chat_id"`
	ThreadID int       `json:"thread_id,omitempty"`
	Tag      string    `json:"tag,omitempty"`
	Attempts int       `json:"attempts,omitempty"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}
