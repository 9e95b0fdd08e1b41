package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageSQLite = "sqlite"
	StorageBolt   = "bolt"

	SyncMemory = "memory"
	SyncNATS   = "nats"
)

type Config struct {
	HTTP struct {
		Port          string   `mapstructure:"port"`
		CORSOrigins   []string `mapstructure:"cors_origins"`
		PublicBaseURL string   `mapstructure:"public_base_url"`
	} `mapstructure:"http"`
	Storage struct {
		Driver        string `mapstructure:"driver"`
		SQLitePath    string `mapstructure:"sqlite_path"`
		BoltPath      string `mapstructure:"bolt_path"`
		MigrationsDir string `mapstructure:"migrations_dir"`
	} `mapstructure:"storage"`
	Auth struct {
		JWTSecret string        `mapstructure:"jwt_secret"`
		TokenTTL  time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`
	Sync struct {
		Driver        string `mapstructure:"driver"`
		NATSURL       string `mapstructure:"nats_url"`
		SubjectPrefix string `mapstructure:"subject_prefix"`
	} `mapstructure:"sync"`
	Display struct {
		Timezone string `mapstructure:"timezone"`
	} `mapstructure:"display"`
	Log struct {
		Level  string `mapstructure:"level"`
		Pretty bool   `mapstructure:"pretty"`
	} `mapstructure:"log"`
}

// Load reads path (YAML, optional) and applies TIMER_* environment
// overrides, e.g. TIMER_HTTP_PORT or TIMER_STORAGE_DRIVER.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("timer")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("load config: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.HTTP.CORSOrigins = cleanList(cfg.HTTP.CORSOrigins)
	cfg.HTTP.PublicBaseURL = strings.TrimRight(cfg.HTTP.PublicBaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageSQLite, StorageBolt:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Sync.Driver {
	case SyncMemory, SyncNATS:
	default:
		return fmt.Errorf("unknown sync driver %q", c.Sync.Driver)
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	if _, err := time.LoadLocation(c.Display.Timezone); err != nil {
		return fmt.Errorf("display.timezone: %w", err)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	return nil
}

// Location is the zone used when rendering wall-clock times in previews.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Display.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.cors_origins", []string{"http://localhost:5173", "http://127.0.0.1:5173"})
	v.SetDefault("http.public_base_url", "http://localhost:5173")

	v.SetDefault("storage.driver", StorageSQLite)
	v.SetDefault("storage.sqlite_path", "./data/timers.db")
	v.SetDefault("storage.bolt_path", "./data/timers.bolt")
	v.SetDefault("storage.migrations_dir", "./migrations")

	v.SetDefault("auth.jwt_secret", "change-this-secret")
	v.SetDefault("auth.token_ttl", "72h")

	v.SetDefault("sync.driver", SyncMemory)
	v.SetDefault("sync.nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("sync.subject_prefix", "timers.events")

	v.SetDefault("display.timezone", "UTC")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

func cleanList(values []string) []string {
	items := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				items = append(items, trimmed)
			}
		}
	}
	return items
}
