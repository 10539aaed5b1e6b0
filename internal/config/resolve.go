package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultMisfireGrace   = 60 * time.Second
	DefaultTaskTimeout    = 30 * time.Second
	DefaultPollTimeout    = 10 * time.Second
	DefaultStorageDriver  = "file"
	DefaultSchedulePath   = "./data/scheduled_greetings.json"
	defaultEngineWorkers  = 2
	defaultEngineQueue    = 256
	defaultEngineHistory  = 200
	defaultNotifyWorkers  = 2
	defaultNotifyQueue    = 512
	defaultNotifyRate     = 3
	defaultNotifyRetryMax = 3
)

// SchedulerSettings is the resolved scheduler block.
type SchedulerSettings struct {
	Enabled      bool
	Location     *time.Location
	MisfireGrace time.Duration
}

// EngineSettings is the resolved task_engine block.
type EngineSettings struct {
	Workers        int
	QueueSize      int
	DefaultTimeout time.Duration
	HistorySize    int
	RetryMax       int
}

// NotifierSettings is the resolved notifier block.
type NotifierSettings struct {
	Enabled       bool
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

// StorageSettings is the resolved storage block.
type StorageSettings struct {
	Driver string
	Path   string
}

func (c *Config) SchedulerSettings() (SchedulerSettings, error) {
	loc, err := ParseLocation("scheduler.timezone", c.Scheduler.Timezone)
	if err != nil {
		return SchedulerSettings{}, err
	}
	grace, err := ParseDurationOrDefault("scheduler.misfire_grace", c.Scheduler.MisfireGrace, DefaultMisfireGrace)
	if err != nil {
		return SchedulerSettings{}, err
	}
	return SchedulerSettings{Enabled: c.Scheduler.Enabled, Location: loc, MisfireGrace: grace}, nil
}

func (c *Config) EngineSettings() (EngineSettings, error) {
	te := TaskEngineConfig{}
	if c.TaskEngine != nil {
		te = *c.TaskEngine
	}
	timeout, err := ParseDurationOrDefault("task_engine.default_timeout", te.DefaultTimeout, DefaultTaskTimeout)
	if err != nil {
		return EngineSettings{}, err
	}
	if te.RetryMax < 0 {
		return EngineSettings{}, errors.New("task_engine.retry_max must be >= 0")
	}
	return EngineSettings{
		Workers:        positiveOr(te.Workers, defaultEngineWorkers),
		QueueSize:      positiveOr(te.QueueSize, defaultEngineQueue),
		DefaultTimeout: timeout,
		HistorySize:    positiveOr(te.HistorySize, defaultEngineHistory),
		RetryMax:       te.RetryMax,
	}, nil
}

func (c *Config) NotifierSettings() (NotifierSettings, error) {
	n := NotifierConfig{Enabled: true}
	if c.Notifier != nil {
		n = *c.Notifier
	}
	base, err := ParseDurationOrDefault("notifier.retry_base", n.RetryBase, 500*time.Millisecond)
	if err != nil {
		return NotifierSettings{}, err
	}
	maxDelay, err := ParseDurationOrDefault("notifier.retry_max_delay", n.RetryMaxDelay, 10*time.Second)
	if err != nil {
		return NotifierSettings{}, err
	}
	retryMax := n.RetryMax
	if c.Notifier == nil || retryMax < 0 {
		retryMax = defaultNotifyRetryMax
	}
	return NotifierSettings{
		Enabled:       n.Enabled,
		Workers:       positiveOr(n.Workers, defaultNotifyWorkers),
		QueueSize:     positiveOr(n.QueueSize, defaultNotifyQueue),
		RatePerSec:    positiveOr(n.RatePerSec, defaultNotifyRate),
		RetryMax:      retryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
	}, nil
}

func (c *Config) StorageSettings() (StorageSettings, error) {
	s := StorageSettings{Driver: DefaultStorageDriver, Path: DefaultSchedulePath}
	if c.Storage == nil {
		return s, nil
	}
	if d := strings.ToLower(strings.TrimSpace(c.Storage.Driver)); d != "" {
		s.Driver = d
	}
	if p := strings.TrimSpace(c.Storage.Path); p != "" {
		s.Path = p
	}
	if s.Driver != DefaultStorageDriver {
		return StorageSettings{}, fmt.Errorf("storage.driver: unsupported driver %q", s.Driver)
	}
	return s, nil
}

func (c *Config) PollTimeout() (time.Duration, error) {
	return ParseDurationOrDefault("telegram.poll_timeout", c.Telegram.PollTimeout, DefaultPollTimeout)
}

// Validate resolves every section and reports the first problem.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if _, err := c.PollTimeout(); err != nil {
		return err
	}
	if _, err := c.SchedulerSettings(); err != nil {
		return err
	}
	if _, err := c.EngineSettings(); err != nil {
		return err
	}
	if _, err := c.NotifierSettings(); err != nil {
		return err
	}
	if _, err := c.StorageSettings(); err != nil {
		return err
	}
	return nil
}

// IsOwner reports whether userID is listed in telegram.owner_user_ids.
func (c *Config) IsOwner(userID int64) bool {
	for _, id := range c.Telegram.OwnerUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
