// Package config loads the rewardsd configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cartloom/rewards/internal/app/policy"
)

// Server holds HTTP listener settings.
type Server struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimitRPS    int           `yaml:"rate_limit_rps"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
}

// Database selects and configures the persistence backend.
type Database struct {
	// Driver is "memory" or "postgres".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Redis configures the optional summary cache. An empty Addr disables it.
type Redis struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// TierSeed is one row of the startup tier table.
type TierSeed struct {
	Name          string `yaml:"name"`
	DisplayName   string `yaml:"display_name"`
	MinSpendCents int64  `yaml:"min_spend_cents"`
}

// Notify configures the outbound webhook notifier. An empty Endpoint keeps
// the logging notifier.
type Notify struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

// Config is the full rewardsd configuration.
type Config struct {
	Server         Server              `yaml:"server"`
	Database       Database            `yaml:"database"`
	Redis          Redis               `yaml:"redis"`
	Policy         policy.Policy       `yaml:"policy"`
	Tiers          []TierSeed          `yaml:"tiers"`
	Benefits       map[string][]string `yaml:"benefits"`
	Notify         Notify              `yaml:"notify"`
	PollInterval   time.Duration       `yaml:"poll_interval"`
	ResyncSchedule string              `yaml:"resync_schedule"`
	LogLevel       string              `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimitRPS:    50,
			RateLimitBurst:  100,
		},
		Database: Database{Driver: "memory"},
		Redis:    Redis{TTL: 5 * time.Minute},
		Policy:   policy.Default(),
		Tiers: []TierSeed{
			{Name: "bronze", DisplayName: "Bronze", MinSpendCents: 0},
			{Name: "silver", DisplayName: "Silver", MinSpendCents: 5000},
			{Name: "gold", DisplayName: "Gold", MinSpendCents: 20000},
		},
		Benefits: map[string][]string{
			"bronze": {"member pricing"},
			"silver": {"member pricing", "free shipping"},
			"gold":   {"member pricing", "free shipping", "priority support"},
		},
		PollInterval:   10 * time.Second,
		ResyncSchedule: "@daily",
		LogLevel:       "info",
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path loads defaults plus environment only.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	if len(c.Tiers) == 0 {
		return fmt.Errorf("at least one tier is required")
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	setString("REWARDS_ADDR", &cfg.Server.Addr)
	setInt("REWARDS_RATE_LIMIT_RPS", &cfg.Server.RateLimitRPS)
	setInt("REWARDS_RATE_LIMIT_BURST", &cfg.Server.RateLimitBurst)
	setString("REWARDS_DB_DRIVER", &cfg.Database.Driver)
	setString("REWARDS_DB_DSN", &cfg.Database.DSN)
	setString("REWARDS_REDIS_ADDR", &cfg.Redis.Addr)
	setString("REWARDS_REDIS_PASSWORD", &cfg.Redis.Password)
	setInt("REWARDS_REDIS_DB", &cfg.Redis.DB)
	setDuration("REWARDS_REDIS_TTL", &cfg.Redis.TTL)
	setString("REWARDS_NOTIFY_ENDPOINT", &cfg.Notify.Endpoint)
	setString("REWARDS_NOTIFY_API_KEY", &cfg.Notify.APIKey)
	setDuration("REWARDS_POLL_INTERVAL", &cfg.PollInterval)
	setString("REWARDS_RESYNC_SCHEDULE", &cfg.ResyncSchedule)
	setString("REWARDS_LOG_LEVEL", &cfg.LogLevel)
}
