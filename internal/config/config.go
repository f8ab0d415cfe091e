package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"holidaylet/internal/stay"
)

const DefaultPath = "configs/config.yaml"

type Config struct {
	Server struct {
		Address               string `yaml:"address"`
		RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
		Timezone              string `yaml:"timezone"`
	} `yaml:"server"`

	Auth struct {
		AdminPassword string `yaml:"admin_password"`
		SessionSecret string `yaml:"session_secret"`
		SessionDays   int    `yaml:"session_days"`
		SecureCookie  bool   `yaml:"secure_cookie"`
	} `yaml:"auth"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address        string `yaml:"address"`
		Password       string `yaml:"password"`
		DB             int    `yaml:"db"`
		LockKey        string `yaml:"lock_key"`
		LockTTLSeconds int    `yaml:"lock_ttl_seconds"`
	} `yaml:"redis"`

	Telegram struct {
		BotToken    string `yaml:"bot_token"`
		OwnerChatID int64  `yaml:"owner_chat_id"`
		Debug       bool   `yaml:"debug"`
	} `yaml:"telegram"`

	// Digest is the owner's daily arrivals message, sent through Telegram.
	Digest struct {
		Enabled bool `yaml:"enabled"`
		Hour    int  `yaml:"hour"`
		Minute  int  `yaml:"minute"`
	} `yaml:"digest"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Stay struct {
		MinNights int      `yaml:"min_nights"`
		Patterns  []string `yaml:"patterns"`
	} `yaml:"stay"`

	Import struct {
		ChunkSize int `yaml:"chunk_size"`
	} `yaml:"import"`

	Rates struct {
		SeedPath             string `yaml:"seed_path"`
		WatchIntervalSeconds int    `yaml:"watch_interval_seconds"`
	} `yaml:"rates"`

	Guests struct {
		RequestsPerMinute int `yaml:"requests_per_minute"`
		Burst             int `yaml:"burst"`
	} `yaml:"guests"`
}

// Load reads the YAML file at path, expanding ${ENV_VAR} placeholders, and
// fills in defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a config document and applies defaults.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	if _, err := cfg.StayPolicy(); err != nil {
		return nil, err
	}
	if _, err := cfg.Location(); err != nil {
		return nil, fmt.Errorf("server.timezone: %w", err)
	}
	if cfg.Digest.Hour < 0 || cfg.Digest.Hour > 23 || cfg.Digest.Minute < 0 || cfg.Digest.Minute > 59 {
		return nil, fmt.Errorf("digest: invalid time %02d:%02d", cfg.Digest.Hour, cfg.Digest.Minute)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/holidaylet.db"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = filepath.Join(filepath.Dir(c.Database.Path), "backups")
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Redis.LockKey == "" {
		c.Redis.LockKey = "holidaylet:booking-writer"
	}
	if c.Rates.SeedPath == "" {
		c.Rates.SeedPath = "configs/rates.yaml"
	}
}

// EnsureDirs creates the directories the database and backups live in.
func (c *Config) EnsureDirs() error {
	if err := os.MkdirAll(filepath.Dir(c.Database.Path), 0o755); err != nil {
		return err
	}
	if c.Backup.Enabled {
		return os.MkdirAll(c.Backup.Path, 0o755)
	}
	return nil
}

// StayPolicy builds the guest stay rules. An empty pattern list keeps the
// default patterns.
func (c *Config) StayPolicy() (stay.Policy, error) {
	p := stay.DefaultPolicy()
	if c.Stay.MinNights > 0 {
		p.MinNights = c.Stay.MinNights
	}
	if len(c.Stay.Patterns) == 0 {
		return p, nil
	}
	p.Patterns = p.Patterns[:0]
	for i, s := range c.Stay.Patterns {
		pat, err := stay.ParsePattern(s)
		if err != nil {
			return stay.Policy{}, fmt.Errorf("stay.patterns[%d]: %w", i, err)
		}
		p.Patterns = append(p.Patterns, pat)
	}
	return p, nil
}

// Location is the zone "today" is computed in. Empty means local time.
func (c *Config) Location() (*time.Location, error) {
	if c.Server.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Server.Timezone)
}

func (c *Config) RequestTimeout() time.Duration {
	if c.Server.RequestTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	if c.Auth.SessionDays <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(c.Auth.SessionDays) * 24 * time.Hour
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) BackupRetention() time.Duration {
	if c.Backup.RetentionDays <= 0 {
		return 14 * 24 * time.Hour
	}
	return time.Duration(c.Backup.RetentionDays) * 24 * time.Hour
}

func (c *Config) LockTTL() time.Duration {
	if c.Redis.LockTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Redis.LockTTLSeconds) * time.Second
}

func (c *Config) RatesWatchInterval() time.Duration {
	if c.Rates.WatchIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Rates.WatchIntervalSeconds) * time.Second
}

// GuestRate is the sustained number of guest booking requests allowed per
// second from one address, and the burst on top of it.
func (c *Config) GuestRate() (perSecond float64, burst int) {
	perMinute := c.Guests.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 6
	}
	burst = c.Guests.Burst
	if burst <= 0 {
		burst = 3
	}
	return float64(perMinute) / 60, burst
}
