package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token string `yaml:"token"`
	Mode  string `yaml:"mode"` // polling | webhook
	// WebhookSecret is compared against X-Telegram-Bot-Api-Secret-Token on
	// every pushed update.
	WebhookSecret      string `yaml:"webhook_secret"`
	WebhookPath        string `yaml:"webhook_path"`
	Language           string `yaml:"language"` // reply locale, en|ru
	Workers            int    `yaml:"workers"`  // per-chat dispatch workers
	PollTimeoutSeconds int    `yaml:"poll_timeout_seconds"`
	PollBatchSize      int    `yaml:"poll_batch_size"`
	// FloodLimitPerMinute caps slash commands accepted per user per minute;
	// throttled commands are consumed without effect.
	FloodLimitPerMinute int `yaml:"flood_limit_per_minute"`
}

type EngineConfig struct {
	// CommitRetries bounds reload-and-retry cycles after a version conflict.
	CommitRetries int           `yaml:"commit_retries"`
	GracePeriod   time.Duration `yaml:"grace_period"` // shutdown drain budget
}

type SenderConfig struct {
	RatePerSecond     int           `yaml:"rate_per_second"` // global ceiling
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseBackoff       time.Duration `yaml:"base_backoff"`
	QueueSize         int           `yaml:"queue_size"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"` // stuck-pending rescan
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port       int           `yaml:"port"`
	JWTSecret  string        `yaml:"jwt_secret"`
	Password   string        `yaml:"password"` // login credential for token mint
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // dedup cache retention
}

type SecurityConfig struct {
	// EncryptionKey enables AES-GCM at-rest encryption of archived text when
	// set to a 32-byte value.
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	Engine   EngineConfig   `yaml:"engine"`
	Sender   SenderConfig   `yaml:"sender"`
	Log      LogConfig      `yaml:"log"`
	Admin    AdminConfig    `yaml:"admin"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Security SecurityConfig `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads and validates the YAML config at path.
func LoadConfig(path string, dev bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Bot.Token == "" {
		return errors.New("bot.token is required")
	}
	switch c.Bot.Mode {
	case "", "polling":
		c.Bot.Mode = "polling"
	case "webhook":
		if c.Bot.WebhookSecret == "" {
			return errors.New("bot.webhook_secret is required in webhook mode")
		}
		if c.Bot.WebhookPath == "" {
			c.Bot.WebhookPath = "/telegram/webhook"
		}
	default:
		return fmt.Errorf("bot.mode %q not supported (polling|webhook)", c.Bot.Mode)
	}
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}

	// Safe defaults for everything tunable.
	if c.Bot.Workers <= 0 {
		c.Bot.Workers = 8
	}
	if c.Bot.Language == "" {
		c.Bot.Language = "en"
	}
	if c.Bot.PollTimeoutSeconds <= 0 {
		c.Bot.PollTimeoutSeconds = 30
	}
	if c.Bot.PollBatchSize <= 0 {
		c.Bot.PollBatchSize = 100
	}
	if c.Bot.FloodLimitPerMinute <= 0 {
		c.Bot.FloodLimitPerMinute = 20
	}
	if c.Engine.CommitRetries <= 0 {
		c.Engine.CommitRetries = 3
	}
	if c.Engine.GracePeriod <= 0 {
		c.Engine.GracePeriod = 10 * time.Second
	}
	if c.Sender.RatePerSecond <= 0 {
		c.Sender.RatePerSecond = 30 // Telegram's documented global ceiling
	}
	if c.Sender.MaxAttempts <= 0 {
		c.Sender.MaxAttempts = 5
	}
	if c.Sender.BaseBackoff <= 0 {
		c.Sender.BaseBackoff = time.Second
	}
	if c.Sender.QueueSize <= 0 {
		c.Sender.QueueSize = 256
	}
	if c.Sender.ReconcileInterval <= 0 {
		c.Sender.ReconcileInterval = time.Minute
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	if c.Redis.TTL <= 0 {
		c.Redis.TTL = time.Hour
	}
	if c.Admin.Port <= 0 {
		c.Admin.Port = 8000
	}
	if c.Admin.SessionTTL <= 0 {
		c.Admin.SessionTTL = 30 * time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	return nil
}
