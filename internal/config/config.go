package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// SecretKeyEnv names the environment variable holding the hex secret key
// used to sign published records. It is never written to the YAML file.
const SecretKeyEnv = "ROLLCALL_SECRET_KEY"

// ICSConfig describes an ICS feed whose entries are offered for import.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// Owner is the pubkey allowed to import this feed's entries.
	Owner string `yaml:"owner" json:"owner"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// TimeoutsConfig bounds each relay call site, in milliseconds.
type TimeoutsConfig struct {
	LookupMs   int `yaml:"lookup_ms" json:"lookup_ms"`
	CalendarMs int `yaml:"calendar_ms" json:"calendar_ms"`
	DetailsMs  int `yaml:"details_ms" json:"details_ms"`
	PublishMs  int `yaml:"publish_ms" json:"publish_ms"`
}

// RetryConfig is the not-yet-indexed event lookup retry policy.
type RetryConfig struct {
	Count   int `yaml:"count" json:"count"`
	DelayMs int `yaml:"delay_ms" json:"delay_ms"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Timezone is the IANA timezone used for day buckets, date filters and
	// CSV timestamps.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "monday" (default) or "sunday" for this-week filters.
	WeekStart string `yaml:"week_start" json:"week_start"`

	// Relays are the websocket URLs queried and published to.
	Relays []string `yaml:"relays" json:"relays"`

	// RefreshCron is a cron schedule (e.g. "*/15 * * * *") for refreshing
	// the calendar import listing.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays is how far ahead ICS feed entries are expanded.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	Timeouts    TimeoutsConfig `yaml:"timeouts" json:"timeouts"`
	LookupRetry RetryConfig    `yaml:"lookup_retry" json:"lookup_retry"`

	// ICS is the list of subscribed ICS feeds.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// CacheDir holds the ICS HTTP cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// FrontendURL is the public web app base URL; poster capture is
	// disabled when empty.
	FrontendURL string `yaml:"frontend_url" json:"frontend_url"`

	// CORSOrigins lists allowed browser origins; empty allows all.
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// SecretKey is read from SecretKeyEnv, never from YAML.
	SecretKey string `yaml:"-" json:"-"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{LookupRetry: RetryConfig{Count: 1}}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = "monday"
	}
	if len(c.Relays) == 0 {
		c.Relays = []string{"wss://relay.damus.io", "wss://nos.lol", "wss://relay.nostr.band"}
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = 90
	}

	if c.Timeouts.LookupMs <= 0 {
		c.Timeouts.LookupMs = 5000
	}
	if c.Timeouts.CalendarMs <= 0 {
		c.Timeouts.CalendarMs = 10000
	}
	if c.Timeouts.DetailsMs <= 0 {
		c.Timeouts.DetailsMs = 8000
	}
	if c.Timeouts.PublishMs <= 0 {
		c.Timeouts.PublishMs = 5000
	}

	// Zero retries is a valid choice; only negative values are reset.
	if c.LookupRetry.Count < 0 {
		c.LookupRetry.Count = 1
	}
	if c.LookupRetry.DelayMs <= 0 {
		c.LookupRetry.DelayMs = 2000
	}

	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.CacheDir == "" {
		c.CacheDir = "./var/ics-cache"
	}
	if c.CORSOrigins == nil {
		c.CORSOrigins = []string{}
	}
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FirstWeekday returns the configured first day of the week.
func (c *Config) FirstWeekday() time.Weekday {
	if c.WeekStart == "sunday" {
		return time.Sunday
	}
	return time.Monday
}

// Ms converts a millisecond config value to a Duration.
func Ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//
// In both cases SecretKey is taken from the environment.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			cfg.SecretKey = os.Getenv(SecretKeyEnv)
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	// A missing lookup_retry block keeps the default single retry.
	cfg := Config{LookupRetry: RetryConfig{Count: 1}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	cfg.SecretKey = os.Getenv(SecretKeyEnv)

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".rollcall-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
