// Package api exposes the seckill operation over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mirkobrombin/go-seckill/v1/seckill"
)

// Seckiller is the order operation served by the API.
type Seckiller interface {
	Seckill(ctx context.Context, userID, voucherID int64) (int64, error)
}

var _ Seckiller = (*seckill.Service)(nil)

// Config holds the HTTP listener settings.
type Config struct {
	Addr    string
	Timeout time.Duration
}

// Http serves the seckill API.
type Http struct {
	config *Config
	server *http.Server
}

// New builds the router. A nil gatherer disables /metrics.
func New(svc Seckiller, gatherer prometheus.Gatherer, config *Config) *Http {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog())
	s := &server{svc: svc}

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	r.POST("/voucher-order/seckill/:id", requireUser(), s.seckillVoucher)

	return &Http{
		config: config,
		server: &http.Server{
			Addr:    config.Addr,
			Handler: r,
		},
	}
}

// Handler returns the router.
func (h *Http) Handler() http.Handler {
	return h.server.Handler
}

// Start serves until Stop is called.
func (h *Http) Start() error {
	slog.Info("starting http server", "addr", h.config.Addr)
	if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down, waiting at most Config.Timeout.
func (h *Http) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	return h.server.Shutdown(ctx)
}

func (h *Http) String() string {
	return "http"
}

type server struct {
	svc Seckiller
}
