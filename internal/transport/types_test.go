package transport

import (
	"errors"
	"testing"
)

func TestUserIDRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   ChatTarget
		want string
	}{
		{ChatTarget{ChatID: 42}, "42"},
		{ChatTarget{ChatID: -1001234, ThreadID: 7}, "-1001234:7"},
	}
	for _, tc := range cases {
		if got := tc.in.UserID(); got != tc.want {
			t.Fatalf("UserID(%+v) = %q, want %q", tc.in, got, tc.want)
		}
		back, err := ParseUserID(tc.want)
		if err != nil || back != tc.in {
			t.Fatalf("ParseUserID(%q) = %+v, %v", tc.want, back, err)
		}
	}
}

func TestParseUserIDRejects(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "abc", "0", "12:x", "12:-3", "1.5"} {
		if _, err := ParseUserID(in); !errors.Is(err, ErrBadUserID) {
			t.Fatalf("ParseUserID(%q) err = %v", in, err)
		}
	}
}
