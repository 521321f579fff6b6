package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/mridulgoel03/ETF-trading-project/internal/engine"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Sim     SimConfig     `mapstructure:"sim"`
	Journal JournalConfig `mapstructure:"journal"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int     `mapstructure:"port"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

type SimConfig struct {
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
	FeeRate        string          `mapstructure:"fee_rate"`
	MinOrderValue  string          `mapstructure:"min_order_value"`
	Workers        int             `mapstructure:"workers"`
	QueueSize      int             `mapstructure:"queue_size"`
	IdempotencyTTL time.Duration   `mapstructure:"idempotency_ttl"`
}

type RateLimitConfig struct {
	Cap    int    `mapstructure:"cap"`
	Window int64  `mapstructure:"window"`
	Scope  string `mapstructure:"scope"`
}

type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the given file (or the default search
// paths), layered under ETFSIM_* environment variables. A `.env` file in the
// working directory is folded into the environment first.
func Load(configPath string) (*Config, error) {
	// Missing .env is the normal case
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/etfsim")
	}

	v.SetEnvPrefix("ETFSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit_rps", 50.0)
	v.SetDefault("server.rate_limit_burst", 100)

	v.SetDefault("sim.rate_limit.cap", 100)
	v.SetDefault("sim.rate_limit.window", 10)
	v.SetDefault("sim.rate_limit.scope", "global")
	v.SetDefault("sim.fee_rate", "0.001")
	v.SetDefault("sim.min_order_value", "0")
	v.SetDefault("sim.workers", 8)
	v.SetDefault("sim.queue_size", 1024)
	v.SetDefault("sim.idempotency_ttl", "24h")

	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.dir", "./data/journal")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks field ranges and enumerations
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.RateLimitRPS <= 0 {
		return fmt.Errorf("server.rate_limit_rps must be positive: %v", c.Server.RateLimitRPS)
	}
	if c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("server.rate_limit_burst must be at least 1: %d", c.Server.RateLimitBurst)
	}

	if c.Sim.RateLimit.Cap < 1 {
		return fmt.Errorf("sim.rate_limit.cap must be at least 1: %d", c.Sim.RateLimit.Cap)
	}
	if c.Sim.RateLimit.Window < 1 {
		return fmt.Errorf("sim.rate_limit.window must be at least 1: %d", c.Sim.RateLimit.Window)
	}
	switch c.Sim.RateLimit.Scope {
	case "global", "per_index":
	default:
		return fmt.Errorf("sim.rate_limit.scope must be global or per_index: %q", c.Sim.RateLimit.Scope)
	}

	if _, err := decimal.NewFromString(c.Sim.FeeRate); err != nil {
		return fmt.Errorf("sim.fee_rate is not a decimal: %q", c.Sim.FeeRate)
	}
	if _, err := decimal.NewFromString(c.Sim.MinOrderValue); err != nil {
		return fmt.Errorf("sim.min_order_value is not a decimal: %q", c.Sim.MinOrderValue)
	}

	if c.Sim.Workers < 1 {
		return fmt.Errorf("sim.workers must be at least 1: %d", c.Sim.Workers)
	}
	if c.Sim.QueueSize < 1 {
		return fmt.Errorf("sim.queue_size must be at least 1: %d", c.Sim.QueueSize)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json: %q", c.Log.Format)
	}

	return nil
}

// EngineConfig converts the sim section into an engine configuration
func (c *Config) EngineConfig() (*engine.Config, error) {
	feeRate, err := decimal.NewFromString(c.Sim.FeeRate)
	if err != nil {
		return nil, fmt.Errorf("sim.fee_rate is not a decimal: %q", c.Sim.FeeRate)
	}
	if feeRate.IsNegative() {
		return nil, fmt.Errorf("sim.fee_rate must not be negative: %s", feeRate)
	}

	minOrderValue, err := decimal.NewFromString(c.Sim.MinOrderValue)
	if err != nil {
		return nil, fmt.Errorf("sim.min_order_value is not a decimal: %q", c.Sim.MinOrderValue)
	}
	if minOrderValue.IsNegative() {
		return nil, fmt.Errorf("sim.min_order_value must not be negative: %s", minOrderValue)
	}

	scope := engine.ScopeGlobal
	if c.Sim.RateLimit.Scope == "per_index" {
		scope = engine.ScopePerIndex
	}

	return &engine.Config{
		Workers:         c.Sim.Workers,
		QueueSize:       c.Sim.QueueSize,
		IdempotencyTTL:  c.Sim.IdempotencyTTL,
		RateLimitCap:    c.Sim.RateLimit.Cap,
		RateLimitWindow: c.Sim.RateLimit.Window,
		RateLimitScope:  scope,
		FeeRate:         feeRate,
		MinOrderValue:   minOrderValue,
	}, nil
}
