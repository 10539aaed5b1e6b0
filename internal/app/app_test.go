package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"greetbot/internal/config"
	logx "greetbot/pkg/logx"
)

func baseConfig() *config.Config {
	return &config.Config{
		Telegram:  config.TelegramConfig{Token: "t"},
		Scheduler: config.SchedulerConfig{Enabled: true, Timezone: "UTC"},
	}
}

func TestComponentConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	ec, err := engineConfig(cfg)
	if err != nil {
		t.Fatalf("engineConfig: %v", err)
	}
	if !ec.Enabled || ec.Workers != 2 || ec.QueueSize != 256 || ec.DefaultTimeout != config.DefaultTaskTimeout {
		t.Fatalf("engine = %+v", ec)
	}

	sc, err := schedulerConfig(cfg)
	if err != nil {
		t.Fatalf("schedulerConfig: %v", err)
	}
	if !sc.Enabled || sc.Location.String() != "UTC" || sc.MisfireGrace != config.DefaultMisfireGrace {
		t.Fatalf("scheduler = %+v", sc)
	}

	nc, err := notifierConfig(cfg)
	if err != nil {
		t.Fatalf("notifierConfig: %v", err)
	}
	if !nc.Enabled || nc.RatePerSec <= 0 {
		t.Fatalf("notifier = %+v", nc)
	}

	st, err := storageConfig(cfg)
	if err != nil {
		t.Fatalf("storageConfig: %v", err)
	}
	if st.Driver != "file" || st.Path != config.DefaultSchedulePath {
		t.Fatalf("storage = %+v", st)
	}
}

func TestComponentConfigErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*config.Config){
		"timezone": func(c *config.Config) { c.Scheduler.Timezone = "Mars/Base" },
		"grace":    func(c *config.Config) { c.Scheduler.MisfireGrace = "a while" },
		"driver":   func(c *config.Config) { c.Storage = &config.StorageConfig{Driver: "sqlite"} },
		"engine":   func(c *config.Config) { c.TaskEngine = &config.TaskEngineConfig{DefaultTimeout: "x"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := baseConfig()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("Validate accepted %s", name)
			}
		})
	}
}

func TestLogConfigMapsChatSink(t *testing.T) {
	t.Parallel()

	lc := logConfig(config.LoggingConfig{
		Level: "debug",
		Chat:  config.LoggingChat{Enabled: true, ChatID: -100, ThreadID: 3, MinLevel: "error", RatePerSec: 2},
	})
	if lc.Level != "debug" || !lc.Chat.Enabled || lc.Chat.ChatID != -100 || lc.Chat.ThreadID != 3 || lc.Chat.MinLevel != "error" {
		t.Fatalf("log config = %+v", lc)
	}
}

func TestRestartOnly(t *testing.T) {
	t.Parallel()

	oldCfg := baseConfig()
	newCfg := baseConfig()
	if got := restartOnly(oldCfg, newCfg); len(got) != 0 {
		t.Fatalf("unchanged = %v", got)
	}
	newCfg.Telegram.Token = "other"
	newCfg.Storage = &config.StorageConfig{Path: "/tmp/x.json"}
	got := restartOnly(oldCfg, newCfg)
	if len(got) != 2 || got[0] != "telegram" || got[1] != "storage" {
		t.Fatalf("changed = %v", got)
	}
}

func TestDrainLatest(t *testing.T) {
	t.Parallel()

	sub := make(chan *config.Config, 4)
	first, second, third := baseConfig(), baseConfig(), baseConfig()
	sub <- second
	sub <- third
	if got := drainLatest(sub, first); got != third {
		t.Fatalf("drainLatest did not return the newest config")
	}
	if len(sub) != 0 {
		t.Fatalf("queue not drained")
	}
}

func TestStepBoundsSlowComponents(t *testing.T) {
	t.Parallel()

	a := &App{log: logx.Nop()}
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	a.step(context.Background(), "slow", 50*time.Millisecond, func(context.Context) error {
		<-release
		return nil
	})
	if took := time.Since(start); took > time.Second {
		t.Fatalf("step blocked for %v", took)
	}

	ran := false
	a.step(context.Background(), "error", time.Second, func(context.Context) error {
		ran = true
		return errors.New("boom")
	})
	if !ran {
		t.Fatalf("step did not run")
	}

	a.step(context.Background(), "panic", time.Second, func(context.Context) error {
		panic("boom")
	})
}
