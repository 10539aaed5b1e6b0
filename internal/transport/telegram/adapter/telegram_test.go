package adapter

import (
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	"greetbot/internal/transport"
	logx "greetbot/pkg/logx"
)

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Token: "  "}, logx.Nop()); !errors.Is(err, ErrNoToken) {
		t.Fatalf("err = %v, want ErrNoToken", err)
	}
}

func TestSplitText(t *testing.T) {
	t.Parallel()

	if got := splitText("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short = %q", got)
	}

	long := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitText(long, 10)
	if len(got) != 2 || got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("newline split = %q", got)
	}

	runes := strings.Repeat("问", 25)
	got = splitText(runes, 10)
	if len(got) != 3 {
		t.Fatalf("chunks = %d, want 3", len(got))
	}
	for _, c := range got {
		if n := len([]rune(c)); n > 10 {
			t.Fatalf("chunk has %d runes", n)
		}
	}
}

func TestToMessage(t *testing.T) {
	t.Parallel()

	m := &tele.Message{
		ID:       5,
		Text:     "/stime 08:00",
		ThreadID: 3,
		Chat:     &tele.Chat{ID: -100, Type: tele.ChatSuperGroup},
		Sender:   &tele.User{ID: 9, Username: "alice"},
	}
	got := toMessage(m)
	want := transport.Message{ID: 5, ChatID: -100, ThreadID: 3, FromID: 9, FromUsername: "alice", Text: "/stime 08:00", IsGroup: true}
	if got != want {
		t.Fatalf("toMessage = %+v, want %+v", got, want)
	}
	if got.Target().UserID() != "-100:3" {
		t.Fatalf("user id = %q", got.Target().UserID())
	}
}

func TestMenuHashChanges(t *testing.T) {
	t.Parallel()

	a := menuHash([]transport.BotCommand{{Command: "stime", Description: "set"}})
	b := menuHash([]transport.BotCommand{{Command: "stime", Description: "set time"}})
	if a == b {
		t.Fatalf("hash did not change")
	}
}
