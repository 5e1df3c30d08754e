package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	t.Setenv(SecretKeyEnv, "abc123")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != "127.0.0.1:8080" || cfg.LookupRetry.Count != 1 || cfg.LookupRetry.DelayMs != 2000 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.SecretKey != "abc123" {
		t.Errorf("SecretKey = %q", cfg.SecretKey)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o", perm)
	}
	data, _ := os.ReadFile(path)
	if string(data) == "" || strings.Contains(string(data), "abc123") {
		t.Errorf("config file leaked secret or is empty:\n%s", data)
	}
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
listen: ":9000"
relays: ["wss://relay.example"]
timeouts:
  lookup_ms: 1500
lookup_retry:
  count: 0
week_start: friday
ics:
  - id: club
    url: https://example.com/club.ics
    owner: ownerpub
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9000" || len(cfg.Relays) != 1 {
		t.Errorf("listen/relays = %q %v", cfg.Listen, cfg.Relays)
	}
	if cfg.Timeouts.LookupMs != 1500 || cfg.Timeouts.CalendarMs != 10000 {
		t.Errorf("timeouts = %+v", cfg.Timeouts)
	}
	if cfg.LookupRetry.Count != 0 || cfg.LookupRetry.DelayMs != 2000 {
		t.Errorf("retry = %+v", cfg.LookupRetry)
	}
	if cfg.WeekStart != "monday" || cfg.FirstWeekday() != time.Monday {
		t.Errorf("week start = %q", cfg.WeekStart)
	}
	if len(cfg.ICS) != 1 || cfg.ICS[0].Owner != "ownerpub" {
		t.Errorf("ics = %+v", cfg.ICS)
	}
}

func TestLoadKeepsDefaultRetryWhenOmitted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen: \":9000\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LookupRetry.Count != 1 {
		t.Errorf("retry count = %d", cfg.LookupRetry.Count)
	}
}

func TestLocationFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Not/AZone"
	if cfg.Location() != time.UTC {
		t.Errorf("Location = %v", cfg.Location())
	}
}
