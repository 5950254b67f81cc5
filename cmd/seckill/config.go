package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the runtime configuration, read from seckill.yaml, SECKILL_*
// environment variables and flags, in increasing order of precedence.
type Config struct {
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	DB struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"db"`
	HTTP struct {
		Addr    string        `mapstructure:"addr"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"http"`
	Lock struct {
		TTL time.Duration `mapstructure:"ttl"`
	} `mapstructure:"lock"`
	Cache struct {
		TTL        time.Duration `mapstructure:"ttl"`
		MaxEntries int64         `mapstructure:"maxentries"`
	} `mapstructure:"cache"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Trace struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"trace"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("db.dsn", "seckill.db")
	v.SetDefault("http.addr", ":8081")
	v.SetDefault("http.timeout", 10*time.Second)
	v.SetDefault("lock.ttl", 10*time.Second)
	v.SetDefault("cache.ttl", 2*time.Second)
	v.SetDefault("cache.maxentries", 10000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("trace.enabled", false)
}

func loadConfig(v *viper.Viper, file string) (*Config, error) {
	setDefaults(v)
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("seckill")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}
	v.SetEnvPrefix("SECKILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || file != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := validateLockTTL("lock.ttl", cfg.Lock.TTL); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validateLockTTL keeps lock expiry at whole-second granularity (SET EX).
func validateLockTTL(name string, ttl time.Duration) error {
	if ttl < time.Second {
		return fmt.Errorf("%s must be at least 1s, got %s", name, ttl)
	}
	return nil
}

func newLogger(cfg *Config) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Log.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("log.format: unknown format %q", cfg.Log.Format)
	}
}
