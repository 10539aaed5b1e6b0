// Package hitokoto is a small client for the hitokoto quote API.
package hitokoto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultURL     = "https://v1.hitokoto.cn/?c=i&c=d&encode=json&charset=utf-8"
	DefaultTimeout = 5 * time.Second

	userAgent   = "Apifox/1.0.0 (https://apifox.com)"
	maxBodySize = 64 << 10
)

// ErrStatus is wrapped when the API answers with a non-200 status.
var ErrStatus = errors.New("hitokoto: unexpected status")

// Quote is one API answer. From and FromWho are nil when the API sends null.
type Quote struct {
	Hitokoto string  `json:"hitokoto"`
	From     *string `json:"from"`
	FromWho  *string `json:"from_who"`
}

// Format renders the quote followed by its attribution line.
func (q Quote) Format() string {
	return q.Hitokoto + "\n    ---" + deref(q.From) + " " + deref(q.FromWho)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type Client struct {
	URL  string
	HTTP *http.Client
}

// New returns a client for url (DefaultURL when empty) whose requests are
// bounded by timeout (DefaultTimeout when <= 0).
func New(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{URL: url, HTTP: &http.Client{Timeout: timeout}}
}

// Fetch performs one GET and decodes the answer.
func (c *Client) Fetch(ctx context.Context) (Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("hitokoto: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Connection", "keep-alive")

	hc := c.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("hitokoto: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return Quote{}, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	var q Quote
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&q); err != nil {
		return Quote{}, fmt.Errorf("hitokoto: decode: %w", err)
	}
	return q, nil
}
