package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mirkobrombin/go-seckill/v1/adapter"
)

var (
	cfgFile string
	v       = viper.New()
	cfg     *Config
)

var rootCmd = &cobra.Command{
	Use:          "seckill",
	Short:        "Flash-sale voucher orders guarded by a Redis lock",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = loadConfig(v, cfgFile); err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		slog.SetDefault(log)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default \"seckill.yaml\")")
	rootCmd.PersistentFlags().String("redis-addr", "127.0.0.1:6379", "Redis address")
	rootCmd.PersistentFlags().String("db-dsn", "seckill.db", "SQLite database file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level, can be one of: debug, info, warn, error")
	_ = v.BindPFlag("redis.addr", rootCmd.PersistentFlags().Lookup("redis-addr"))
	_ = v.BindPFlag("db.dsn", rootCmd.PersistentFlags().Lookup("db-dsn"))
	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(serveCmd(), voucherCmd(), lockCmd())
}

func openRedis(ctx context.Context, cfg *Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
	}
	return client, nil
}

func openStore(cfg *Config) (*adapter.GormStore, error) {
	db, err := gorm.Open(sqlite.Open(cfg.DB.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DB.DSN, err)
	}
	return adapter.NewGormStore(db)
}

// setupTracing installs a stdout exporter when tracing is enabled. The
// returned function flushes pending spans.
func setupTracing(cfg *Config) (func(context.Context) error, error) {
	if !cfg.Trace.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
