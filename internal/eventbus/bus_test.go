package eventbus

import (
	"testing"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()

	b := New()
	a, unsubA := b.Subscribe(2)
	c, unsubC := b.Subscribe(2)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: ScheduleArmed, Data: "42"})

	for _, ch := range []<-chan Event{a, c} {
		ev := <-ch
		if ev.Type != ScheduleArmed || ev.Data != "42" {
			t.Fatalf("unexpected event %+v", ev)
		}
		if ev.Time.IsZero() {
			t.Fatalf("publish must stamp time")
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	unsub()

	var got []string
	for ev := range ch {
		got = append(got, ev.Type)
	}
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("got %v, want [a]", got)
	}
	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: "c"})
}
