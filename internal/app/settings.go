package app

import (
	"greetbot/internal/config"
	"greetbot/internal/notifier"
	"greetbot/internal/storage"
	"greetbot/internal/task/engine"
	"greetbot/internal/task/scheduler"
	logx "greetbot/pkg/logx"
)

func logConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    c.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    c.Chat.Enabled,
			ChatID:     c.Chat.ChatID,
			ThreadID:   c.Chat.ThreadID,
			MinLevel:   c.Chat.MinLevel,
			RatePerSec: c.Chat.RatePerSec,
		},
	}
}

// The engine always runs: every armed trigger depends on it.
func engineConfig(cfg *config.Config) (engine.Config, error) {
	es, err := cfg.EngineSettings()
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Enabled:        true,
		Workers:        es.Workers,
		QueueSize:      es.QueueSize,
		DefaultTimeout: es.DefaultTimeout,
		HistorySize:    es.HistorySize,
		RetryMax:       es.RetryMax,
	}, nil
}

func schedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	ss, err := cfg.SchedulerSettings()
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:      ss.Enabled,
		Location:     ss.Location,
		MisfireGrace: ss.MisfireGrace,
	}, nil
}

func notifierConfig(cfg *config.Config) (notifier.Config, error) {
	ns, err := cfg.NotifierSettings()
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:       ns.Enabled,
		Workers:       ns.Workers,
		QueueSize:     ns.QueueSize,
		RatePerSec:    ns.RatePerSec,
		RetryMax:      ns.RetryMax,
		RetryBase:     ns.RetryBase,
		RetryMaxDelay: ns.RetryMaxDelay,
	}, nil
}

func storageConfig(cfg *config.Config) (storage.Config, error) {
	st, err := cfg.StorageSettings()
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: st.Driver, Path: st.Path}, nil
}

// restartOnly lists config changes that are not applied live.
func restartOnly(oldCfg, newCfg *config.Config) []string {
	var out []string
	if oldCfg == nil || newCfg == nil {
		return out
	}
	if oldCfg.Telegram.Token != newCfg.Telegram.Token || oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout {
		out = append(out, "telegram")
	}
	oldSt, err1 := storageConfig(oldCfg)
	newSt, err2 := storageConfig(newCfg)
	if err1 == nil && err2 == nil && oldSt != newSt {
		out = append(out, "storage")
	}
	return out
}
