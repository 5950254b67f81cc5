package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mirkobrombin/go-seckill/v1/adapter"
	"github.com/mirkobrombin/go-seckill/v1/api"
	"github.com/mirkobrombin/go-seckill/v1/cache"
	"github.com/mirkobrombin/go-seckill/v1/idgen"
	"github.com/mirkobrombin/go-seckill/v1/lock"
	"github.com/mirkobrombin/go-seckill/v1/metrics"
	"github.com/mirkobrombin/go-seckill/v1/seckill"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the seckill HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("addr", ":8081", "HTTP listen address")
	cmd.Flags().Bool("trace", false, "Print OpenTelemetry spans to stdout")
	_ = v.BindPFlag("http.addr", cmd.Flags().Lookup("addr"))
	_ = v.BindPFlag("trace.enabled", cmd.Flags().Lookup("trace"))
	return cmd
}

func serve(ctx context.Context, cfg *Config) error {
	shutdownTracing, err := setupTracing(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	client, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	vouchers, err := cache.NewRistretto[adapter.Voucher](cache.WithMaxEntries(cfg.Cache.MaxEntries))
	if err != nil {
		return err
	}
	defer vouchers.Close()

	svc := seckill.NewService(store,
		func(name string) lock.Locker { return lock.NewRedis(name, client) },
		idgen.NewRedis(client),
		seckill.WithLockTTL(cfg.Lock.TTL),
		seckill.WithVoucherCache(vouchers, cfg.Cache.TTL),
	)

	reg := metrics.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.RegisterLockMetrics(reg)
	metrics.RegisterOrderMetrics(reg)

	h := api.New(svc, reg, &api.Config{Addr: cfg.HTTP.Addr, Timeout: cfg.HTTP.Timeout})
	slog.Info("seckill ready", "instance", lock.InstanceID(), "redis", cfg.Redis.Addr, "db", cfg.DB.DSN)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(h.Start)
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down", "subsystem", h.String())
		return h.Stop()
	})
	return g.Wait()
}
