package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleJSON = `{
  "telegram": {"token": "t", "owner_user_ids": [7], "poll_timeout": "15s"},
  "logging": {"level": "debug", "console": true},
  "scheduler": {"enabled": true, "timezone": "UTC", "misfire_grace": "90s"},
  "storage": {"driver": "file", "path": "./x.json"},
  "plugins": {"greeting": {"enabled": true, "config": {"quote_timeout": "3s"}}}
}`

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	cfg, err := Decode("config.json", []byte(sampleJSON))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	ss, err := cfg.SchedulerSettings()
	if err != nil {
		t.Fatalf("SchedulerSettings: %v", err)
	}
	if ss.MisfireGrace != 90*time.Second || ss.Location != time.UTC {
		t.Fatalf("scheduler settings = %+v", ss)
	}
	st, _ := cfg.StorageSettings()
	if st.Path != "./x.json" {
		t.Fatalf("storage path = %q", st.Path)
	}
	if !cfg.IsOwner(7) || cfg.IsOwner(8) {
		t.Fatalf("IsOwner mismatch")
	}
}

func TestDecodeYAML(t *testing.T) {
	t.Parallel()

	y := `
telegram:
  token: t
scheduler:
  enabled: true
plugins:
  greeting:
    enabled: true
    config:
      quote_url: http://example.invalid
`
	cfg, err := Decode("config.yaml", []byte(y))
	if err != nil {
		t.Fatalf("Decode yaml: %v", err)
	}
	raw := cfg.Plugins["greeting"].Config
	var pc map[string]string
	if err := json.Unmarshal(raw, &pc); err != nil || pc["quote_url"] != "http://example.invalid" {
		t.Fatalf("plugin config = %s (%v)", raw, err)
	}
}

func TestDecodeRejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()

	if _, err := Decode("c.json", []byte(`{"telegram":{"token":"t"},"bogus":1}`)); err == nil {
		t.Fatalf("expected unknown field error")
	}
	if _, err := Decode("c.json", []byte(`{"telegram":{"token":"t"}} {}`)); err == nil {
		t.Fatalf("expected trailing data error")
	}
	if _, err := Decode("c.json", []byte(`{"plugins":{"g":{"enabled":true,"timeout":"1s"}}}`)); err == nil {
		t.Fatalf("expected unknown plugin field error")
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{Telegram: TelegramConfig{Token: "t"}}
	ss, err := cfg.SchedulerSettings()
	if err != nil || ss.MisfireGrace != DefaultMisfireGrace || ss.Location != time.Local {
		t.Fatalf("scheduler defaults = %+v, %v", ss, err)
	}
	es, _ := cfg.EngineSettings()
	if es.Workers != 2 || es.QueueSize != 256 || es.DefaultTimeout != DefaultTaskTimeout {
		t.Fatalf("engine defaults = %+v", es)
	}
	ns, _ := cfg.NotifierSettings()
	if !ns.Enabled || ns.RetryMax != 3 || ns.RatePerSec != 3 {
		t.Fatalf("notifier defaults = %+v", ns)
	}
	st, _ := cfg.StorageSettings()
	if st.Driver != "file" || st.Path != DefaultSchedulePath {
		t.Fatalf("storage defaults = %+v", st)
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{"token", Config{}, "telegram.token"},
		{"tz", Config{Telegram: TelegramConfig{Token: "t"}, Scheduler: SchedulerConfig{Timezone: "Mars/Olympus"}}, "scheduler.timezone"},
		{"grace", Config{Telegram: TelegramConfig{Token: "t"}, Scheduler: SchedulerConfig{MisfireGrace: "soon"}}, "scheduler.misfire_grace"},
		{"driver", Config{Telegram: TelegramConfig{Token: "t"}, Storage: &StorageConfig{Driver: "sqlite"}}, "storage.driver"},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: err = %v, want mention of %q", tc.name, err, tc.want)
		}
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	a, _ := Decode("a.json", []byte(sampleJSON))
	b, _ := Decode("b.json", []byte(sampleJSON))
	b.Scheduler.MisfireGrace = "30s"
	b.Plugins["greeting"] = PluginConfigRaw{Enabled: true, Config: json.RawMessage(`{ "quote_timeout" : "3s" }`)}

	changed, _, plugins := SummarizeConfigChange(a, b)
	if len(changed) != 1 || changed[0] != "scheduler" {
		t.Fatalf("changed = %v", changed)
	}
	if len(plugins) != 0 {
		t.Fatalf("whitespace-only plugin edit reported as change: %v", plugins)
	}
}

func TestManagerLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(sampleJSON), 0o600); err != nil {
		t.Fatal(err)
	}
	m := NewConfigManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatalf("Get should return committed config")
	}
}
