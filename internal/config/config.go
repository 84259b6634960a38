package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Env            string        `mapstructure:"ENV"`
	Port           string        `mapstructure:"PORT"`
	StoreDriver    string        `mapstructure:"STORE_DRIVER"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	SeedFile       string        `mapstructure:"SEED_FILE"`
	AdminKey       string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed    string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`

	LookupTimeout         time.Duration `mapstructure:"LOOKUP_TIMEOUT"`
	AppendTimeout         time.Duration `mapstructure:"APPEND_TIMEOUT"`
	PartialMatchThreshold float64       `mapstructure:"PARTIAL_MATCH_THRESHOLD"`
	MaxAlternatives       int           `mapstructure:"MAX_ALTERNATIVES"`
	LockTTL               time.Duration `mapstructure:"LOCK_TTL"`

	AnalyticsCron     string `mapstructure:"ANALYTICS_CRON"`
	AnalyticsTimezone string `mapstructure:"ANALYTICS_TIMEZONE"`

	RateLimitRPM   int `mapstructure:"RATE_LIMIT_RPM"`
	RateLimitBurst int `mapstructure:"RATE_LIMIT_BURST"`
}

// Load reads .env when present, then the process environment, which wins.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("SEED_FILE", "")
	v.SetDefault("ADMIN_KEY", "")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("LOOKUP_TIMEOUT", "3s")
	v.SetDefault("APPEND_TIMEOUT", "5s")
	v.SetDefault("PARTIAL_MATCH_THRESHOLD", 0.5)
	v.SetDefault("MAX_ALTERNATIVES", 3)
	v.SetDefault("LOCK_TTL", "10s")
	v.SetDefault("ANALYTICS_CRON", "15 0 * * *")
	v.SetDefault("ANALYTICS_TIMEZONE", "UTC")
	v.SetDefault("RATE_LIMIT_RPM", 120)
	v.SetDefault("RATE_LIMIT_BURST", 20)
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for store driver %q", c.StoreDriver)
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.PartialMatchThreshold < 0 || c.PartialMatchThreshold > 1 {
		return fmt.Errorf("PARTIAL_MATCH_THRESHOLD must be within [0,1], got %v", c.PartialMatchThreshold)
	}
	if c.MaxAlternatives < 0 {
		return fmt.Errorf("MAX_ALTERNATIVES must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves ANALYTICS_TIMEZONE, the zone in which analytics days start.
func (c Config) Location() (*time.Location, error) {
	tz := c.AnalyticsTimezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid ANALYTICS_TIMEZONE %q: %w", tz, err)
	}
	return loc, nil
}

func (c Config) CORSOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowed, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
