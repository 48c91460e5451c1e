package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token    string `yaml:"token"`
	Username string `yaml:"username"`
	// ChatID is the community chat members are approved into and removed from.
	ChatID int64 `yaml:"chat_id"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Addr          string        `yaml:"addr"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	WebhookSecret string        `yaml:"webhook_secret"`
	JWTSecret     string        `yaml:"jwt_secret"`

	// WebhookRateLimit caps payment deliveries per remote host per WebhookRateWindow
	// when Redis is configured. Zero disables the cap.
	WebhookRateLimit  int           `yaml:"webhook_rate_limit"`
	WebhookRateWindow time.Duration `yaml:"webhook_rate_window"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxConns       int32  `yaml:"max_conns"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type KnowledgeConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	SpaceID string `yaml:"space_id"`
}

type StorageConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	Bucket       string `yaml:"bucket"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	Prefix       string `yaml:"prefix"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

type AccessConfig struct {
	Timeout       time.Duration   `yaml:"timeout"`         // per external call
	RatePerSecond float64         `yaml:"rate_per_second"` // per system
	Burst         int             `yaml:"burst"`
	Knowledge     KnowledgeConfig `yaml:"knowledge"`
	Storage       StorageConfig   `yaml:"storage"`
}

type SchedulerConfig struct {
	Interval        time.Duration `yaml:"interval"`
	PassTimeout     time.Duration `yaml:"pass_timeout"`
	Concurrency     int           `yaml:"concurrency"`
	BatchSize       int           `yaml:"batch_size"`
	RetryAccess     bool          `yaml:"retry_access"`
	DistributedLock bool          `yaml:"distributed_lock"`
	LockTTL         time.Duration `yaml:"lock_ttl"`
}

type LocaleConfig struct {
	Lang       string `yaml:"lang"`
	DateFormat string `yaml:"date_format"`
}

type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Access    AccessConfig    `yaml:"access"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Locale    LocaleConfig    `yaml:"locale"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path. A .env file in the working
// directory, if present, is loaded first and ${VAR} references in the YAML are
// expanded from the environment.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse expands environment references in raw YAML, applies defaults and validates.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Scheduler.DistributedLock && cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required when scheduler.distributed_lock is set")
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.ReadTimeout <= 0 {
		cfg.HTTP.ReadTimeout = 10 * time.Second
	}
	if cfg.HTTP.WriteTimeout <= 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.WebhookRateWindow <= 0 {
		cfg.HTTP.WebhookRateWindow = time.Minute
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Access.Timeout <= 0 {
		cfg.Access.Timeout = 10 * time.Second
	}
	if cfg.Access.RatePerSecond <= 0 {
		cfg.Access.RatePerSecond = 5
	}
	if cfg.Access.Burst <= 0 {
		cfg.Access.Burst = 5
	}
	if cfg.Access.Storage.Prefix == "" {
		cfg.Access.Storage.Prefix = "grants/"
	}
	if cfg.Scheduler.Interval <= 0 {
		cfg.Scheduler.Interval = time.Hour
	}
	if cfg.Scheduler.PassTimeout <= 0 {
		cfg.Scheduler.PassTimeout = 30 * time.Minute
	}
	if cfg.Scheduler.Concurrency <= 0 {
		cfg.Scheduler.Concurrency = 4
	}
	if cfg.Scheduler.BatchSize <= 0 {
		cfg.Scheduler.BatchSize = 500
	}
	if cfg.Scheduler.LockTTL <= 0 {
		cfg.Scheduler.LockTTL = cfg.Scheduler.PassTimeout
	}
	if cfg.Locale.Lang == "" {
		cfg.Locale.Lang = "en"
	}
	if cfg.Locale.DateFormat == "" {
		cfg.Locale.DateFormat = "2006-01-02"
	}
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
