package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ticksTotal counts completed ticks
	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flocksim_ticks_total",
		Help: "Total completed simulation ticks",
	})

	// tickDuration tracks wall time per tick by backend
	tickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flocksim_tick_duration_seconds",
		Help:    "Tick duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10us to ~2.6s
	}, []string{"backend"})

	// kernelDispatches counts behavior dispatches by kernel and result
	kernelDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flocksim_kernel_dispatch_total",
		Help: "Total kernel dispatches by backend, kernel and result",
	}, []string{"backend", "kernel", "result"})

	// nonFiniteDeltas counts per-agent deltas that were NaN or infinite
	nonFiniteDeltas = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flocksim_non_finite_deltas_total",
		Help: "Per-agent behavior deltas that were not finite, by behavior",
	}, []string{"behavior"})
)
