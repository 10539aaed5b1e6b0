// Package greeting delivers a daily quote to every conversation that asked
// for one with /stime.
package greeting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"greetbot/internal/config"
	"greetbot/internal/plugin"
	"greetbot/pkg/hitokoto"
	logx "greetbot/pkg/logx"
)

const (
	Name               = "greeting"
	DefaultHealthEvery = 10 * time.Minute
	healthJob          = "store_health"
)

type Config struct {
	QuoteURL     string `json:"quote_url"`
	QuoteTimeout string `json:"quote_timeout"`
	HealthEvery  string `json:"health_every"`
}

type settings struct {
	quoteURL     string
	quoteTimeout time.Duration
	healthEvery  time.Duration
}

func parseConfig(raw json.RawMessage) (settings, error) {
	c, err := plugin.DecodePluginConfig[Config](raw)
	if err != nil {
		return settings{}, fmt.Errorf("decode: %w", err)
	}
	timeout, err := config.ParseDurationOrDefault("quote_timeout", c.QuoteTimeout, hitokoto.DefaultTimeout)
	if err != nil {
		return settings{}, err
	}
	every, err := config.ParseDurationOrDefault("health_every", c.HealthEvery, DefaultHealthEvery)
	if err != nil {
		return settings{}, err
	}
	if every < time.Second {
		return settings{}, errors.New("health_every must be >= 1s")
	}
	url := strings.TrimSpace(c.QuoteURL)
	if url != "" && !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return settings{}, fmt.Errorf("quote_url must be an http(s) URL: %q", url)
	}
	return settings{quoteURL: url, quoteTimeout: timeout, healthEvery: every}, nil
}

type Plugin struct {
	plugin.Base

	mu        sync.Mutex
	set       settings
	schedules *Schedules
	disp      *Dispatcher

	healthMu  sync.Mutex
	healthErr error
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return Name }

func (p *Plugin) Init(ctx context.Context, deps plugin.Deps) error {
	p.InitBase(deps, Name)
	if deps.Store == nil {
		return errors.New("greeting: store required")
	}
	p.set = settings{quoteTimeout: hitokoto.DefaultTimeout, healthEvery: DefaultHealthEvery}
	p.disp = NewDispatcher(hitokoto.New("", hitokoto.DefaultTimeout), &p.Base, p.Deps.Bus, p.Log)
	p.schedules = NewSchedules(deps.Store, &p.Base, func(userID string) func(ctx context.Context) error {
		return func(ctx context.Context) error { return p.disp.Dispatch(ctx, userID) }
	}, p.Log)
	return nil
}

func (p *Plugin) ValidateConfig(ctx context.Context, raw json.RawMessage) error {
	_, err := parseConfig(raw)
	return err
}

func (p *Plugin) OnConfigChange(ctx context.Context, raw json.RawMessage) error {
	s, err := parseConfig(raw)
	if err != nil {
		return err
	}
	p.mu.Lock()
	old := p.set
	p.set = s
	p.mu.Unlock()

	p.disp.SetQuotes(hitokoto.New(s.quoteURL, s.quoteTimeout))
	if old.healthEvery != s.healthEvery && p.Scheduled(healthJob) {
		if err := p.armHealth(s.healthEvery); err != nil {
			return err
		}
	}
	p.Log.Debug("greeting config applied", logx.String("quote_url", s.quoteURL), logx.Duration("quote_timeout", s.quoteTimeout), logx.Duration("health_every", s.healthEvery))
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	p.StartBase(ctx)
	if _, err := p.schedules.Reconcile(ctx); err != nil {
		// An unreadable store must not keep the commands offline.
		p.Log.Error("greeting reconcile failed", logx.Err(err))
	}
	p.mu.Lock()
	every := p.set.healthEvery
	p.mu.Unlock()
	return p.armHealth(every)
}

func (p *Plugin) Stop(ctx context.Context) error {
	p.Unschedule(healthJob)
	n := p.schedules.DisarmAll()
	p.Log.Debug("greeting triggers disarmed", logx.Int("count", n))
	return p.StopBase(ctx)
}

func (p *Plugin) armHealth(every time.Duration) error {
	_, err := p.Every(healthJob, every, p.checkStore)
	return err
}

// checkStore reloads the store and reports drift against the live triggers.
func (p *Plugin) checkStore(ctx context.Context) error {
	entries, err := p.Deps.Store.Load(ctx)
	p.healthMu.Lock()
	p.healthErr = err
	p.healthMu.Unlock()
	if err != nil {
		p.Log.Warn("greeting store unreadable", logx.Err(err))
		return err
	}
	armed := p.schedules.Armed()
	missing := 0
	for user := range entries {
		if _, ok := armed[user]; !ok {
			missing++
		}
	}
	if missing > 0 || len(armed) > len(entries) {
		p.Log.Warn("greeting store and triggers differ", logx.Int("stored", len(entries)), logx.Int("armed", len(armed)), logx.Int("unarmed", missing))
	}
	return nil
}

func (p *Plugin) Health(ctx context.Context) (string, error) {
	if status, err := p.Base.Health(ctx); status != "ok" {
		return status, err
	}
	p.healthMu.Lock()
	err := p.healthErr
	p.healthMu.Unlock()
	if err != nil {
		return "store_error", err
	}
	return fmt.Sprintf("ok (%d armed)", len(p.schedules.Armed())), nil
}
