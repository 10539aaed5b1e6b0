package hitokoto

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func serve(t *testing.T, status int, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "*/*" {
			t.Errorf("Accept = %q", got)
		}
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("missing User-Agent")
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL, time.Second)
}

func TestFetchFormat(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want string
	}{
		{"full", `{"hitokoto":"Q","from":"Book","from_who":"Author"}`, "Q\n    ---Book Author"},
		{"null author", `{"hitokoto":"Q","from":"Book","from_who":null}`, "Q\n    ---Book "},
		{"both null", `{"hitokoto":"Q","from":null,"from_who":null,"id":7}`, "Q\n    --- "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			q, err := serve(t, http.StatusOK, tc.body).Fetch(context.Background())
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if got := q.Format(); got != tc.want {
				t.Fatalf("Format = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFetchErrors(t *testing.T) {
	t.Parallel()

	if _, err := serve(t, http.StatusServiceUnavailable, "busy").Fetch(context.Background()); !errors.Is(err, ErrStatus) {
		t.Fatalf("err = %v, want ErrStatus", err)
	}
	if _, err := serve(t, http.StatusOK, "not json").Fetch(context.Background()); err == nil {
		t.Fatalf("bad body accepted")
	}

	c := New("http://127.0.0.1:1", 200*time.Millisecond)
	if _, err := c.Fetch(context.Background()); err == nil {
		t.Fatalf("unreachable endpoint returned no error")
	}
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	c := New("", 0)
	if c.URL != DefaultURL || c.HTTP.Timeout != DefaultTimeout {
		t.Fatalf("client = %+v", c)
	}
}
