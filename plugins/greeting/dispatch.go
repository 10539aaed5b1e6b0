package greeting

import (
	"context"
	"errors"
	"sync/atomic"

	"greetbot/internal/eventbus"
	"greetbot/internal/notifier"
	"greetbot/internal/task/engine"
	"greetbot/internal/transport"
	"greetbot/pkg/hitokoto"
	logx "greetbot/pkg/logx"
)

// FetchFailedText is sent in place of a quote when the API call fails.
const FetchFailedText = "err"

type QuoteSource interface {
	Fetch(ctx context.Context) (hitokoto.Quote, error)
}

type Sender interface {
	Notify(ctx context.Context, n notifier.Notification) error
}

// Delivered is the Data of a greeting.sent event.
type Delivered struct {
	UserID string
	Text   string
}

type Dispatcher struct {
	quotes atomic.Pointer[QuoteSource]
	sender Sender
	bus    eventbus.Bus
	log    logx.Logger
}

func NewDispatcher(quotes QuoteSource, sender Sender, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	d := &Dispatcher{sender: sender, bus: bus, log: log}
	d.SetQuotes(quotes)
	return d
}

// SetQuotes swaps the quote source used by later fetches.
func (d *Dispatcher) SetQuotes(q QuoteSource) { d.quotes.Store(&q) }

// FetchText returns one formatted quote, or FetchFailedText on any error.
func (d *Dispatcher) FetchText(ctx context.Context) string {
	q, err := (*d.quotes.Load()).Fetch(ctx)
	if err != nil {
		d.log.Error("quote fetch failed", logx.Err(err))
		return FetchFailedText
	}
	return q.Format()
}

// Dispatch fetches a quote and queues it for userID. It is the job of every
// armed greeting trigger.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string) error {
	to, err := transport.ParseUserID(userID)
	if err != nil {
		return engine.NoRetry(err)
	}
	text := d.FetchText(ctx)
	err = d.sender.Notify(ctx, notifier.Notification{Target: to, Text: text, Tag: "greeting:" + userID})
	switch {
	case err == nil:
	case errors.Is(err, notifier.ErrQueueFull):
		return err
	default:
		return engine.NoRetry(err)
	}
	d.bus.Publish(eventbus.Event{Type: eventbus.GreetingSent, Data: Delivered{UserID: userID, Text: text}})
	return nil
}
