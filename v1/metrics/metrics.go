package metrics

import "github.com/prometheus/client_golang/prometheus"

// Result labels shared by the lock collectors.
const (
	ResultAcquired  = "acquired"
	ResultContended = "contended"
	ResultReleased  = "released"
	ResultNoop      = "noop"
	ResultError     = "error"
)

var (
	// LockAcquireCounter tracks TryLock outcomes by result.
	LockAcquireCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seckill_lock_acquire_total",
		Help: "Total number of lock acquisition attempts by result",
	}, []string{"result"})
	// LockReleaseCounter tracks Unlock outcomes by result.
	LockReleaseCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seckill_lock_release_total",
		Help: "Total number of lock releases by result",
	}, []string{"result"})
	// LockHeldHistogram observes how long a lock was held by Do.
	LockHeldHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "seckill_lock_held_seconds",
		Help:    "Time spent inside lock-guarded critical sections",
		Buckets: prometheus.DefBuckets,
	})
	// OrderCounter tracks seckill order attempts by outcome.
	OrderCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seckill_orders_total",
		Help: "Total number of seckill order attempts by outcome",
	}, []string{"outcome"})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterLockMetrics registers the lock collectors on the provided registry.
func RegisterLockMetrics(reg prometheus.Registerer) {
	reg.MustRegister(LockAcquireCounter, LockReleaseCounter, LockHeldHistogram)
}

// RegisterOrderMetrics registers the order collectors on the provided registry.
func RegisterOrderMetrics(reg prometheus.Registerer) {
	reg.MustRegister(OrderCounter)
}
