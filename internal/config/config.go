package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config is the worker's on-disk configuration. YAML and JSON are both
// accepted; YAML is coerced to JSON and decoded strictly, so unknown keys are
// rejected in either format.
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Queue    QueueConfig    `json:"queue"`
	Dispatch DispatchConfig `json:"dispatch,omitempty"`
	Janitor  JanitorConfig  `json:"janitor,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console *bool  `json:"console,omitempty"`
	File    struct {
		Enabled bool   `json:"enabled,omitempty"`
		Path    string `json:"path,omitempty"`
	} `json:"file,omitempty"`
}

type StorageConfig struct {
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path"`
	// BusyTimeout is a Go duration string (e.g. "5s").
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type QueueConfig struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

// DispatchConfig tunes the campaign dispatcher.
//
// Defaults (when fields are omitted/zero):
//   - default_rate_per_min: 10
//   - warm_cache_limit: 1000
//   - discover_limit: 0 (no cap)
//   - send_timeout: "0s" (disabled)
type DispatchConfig struct {
	DefaultRatePerMin int `json:"default_rate_per_min,omitempty"`
	WarmCacheLimit    int `json:"warm_cache_limit,omitempty"`
	DiscoverLimit     int `json:"discover_limit,omitempty"`

	// SendTimeout bounds one transport call. "0s" disables it.
	SendTimeout string `json:"send_timeout,omitempty"`
}

// JanitorConfig controls the stale-run sweep. Off unless enabled.
type JanitorConfig struct {
	Enabled  bool   `json:"enabled,omitempty"`
	Schedule string `json:"schedule,omitempty"` // cron expression, default hourly
	// StuckAfter marks campaigns still "running" after this long as stopped.
	StuckAfter string `json:"stuck_after,omitempty"`
	// RetainEvents trims event rows older than this. "0s" keeps everything.
	RetainEvents string `json:"retain_events,omitempty"`
}

// Load reads, coerces, and strictly decodes the config file, then applies
// defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, format, err := coerceToJSONBytes(path, raw)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config %s (%s): %w", path, format, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Console == nil {
		v := true
		c.Logging.Console = &v
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Queue.Name == "" {
		c.Queue.Name = "campaign_runs"
	}
	if c.Dispatch.DefaultRatePerMin <= 0 {
		c.Dispatch.DefaultRatePerMin = 10
	}
	if c.Dispatch.WarmCacheLimit <= 0 {
		c.Dispatch.WarmCacheLimit = 1000
	}
	if c.Janitor.Schedule == "" {
		c.Janitor.Schedule = "@hourly"
	}
	if c.Janitor.StuckAfter == "" {
		c.Janitor.StuckAfter = "24h"
	}
}

func (c *Config) validate() error {
	if c.Storage.Driver != "none" && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Queue.URL == "" {
		return fmt.Errorf("queue.url is required")
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("dispatch.send_timeout", c.Dispatch.SendTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("janitor.stuck_after", c.Janitor.StuckAfter); err != nil {
		return err
	}
	if _, err := ParseDurationField("janitor.retain_events", c.Janitor.RetainEvents); err != nil {
		return err
	}
	return nil
}

// ConsoleEnabled reports the effective console flag.
func (c *Config) ConsoleEnabled() bool {
	return c.Logging.Console == nil || *c.Logging.Console
}

// BusyTimeout returns the parsed storage busy timeout.
func (c *Config) BusyTimeout() time.Duration {
	d, _ := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	return d
}
