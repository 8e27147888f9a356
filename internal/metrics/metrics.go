// Package metrics defines the prometheus metrics exported by an exchange pool.
package metrics

import (
	"math/big"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the prometheus collectors for one pool. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	Reserve     *prometheus.GaugeVec
	TotalShares prometheus.Gauge

	SwapVolume     *prometheus.CounterVec
	RewardsPaid    prometheus.Counter
	RewardsSkipped prometheus.Counter
}

// New creates and registers the pool metrics with reg.
func New(reg prometheus.Registerer, poolName string) *Metrics {
	return &Metrics{
		OperationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			ConstLabels: prometheus.Labels{"pool": poolName},
			Name:        "tswap_pool_operations_total",
			Help:        "Completed pool operations, labeled by operation.",
		}, []string{"op"}),

		ErrorsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			ConstLabels: prometheus.Labels{"pool": poolName},
			Name:        "tswap_pool_errors_total",
			Help:        "Rejected pool operations, labeled by operation and error kind.",
		}, []string{"op", "kind"}),

		OperationDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			ConstLabels: prometheus.Labels{"pool": poolName},
			Name:        "tswap_pool_operation_duration_seconds",
			Help:        "Time spent executing a pool operation, transfers included.",
			Buckets:     prometheus.DefBuckets,
		}, []string{"op"}),

		Reserve: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			ConstLabels: prometheus.Labels{"pool": poolName},
			Name:        "tswap_pool_reserve",
			Help:        "Pool reserve after the last operation, labeled by side (base or quote).",
		}, []string{"side"}),

		TotalShares: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			ConstLabels: prometheus.Labels{"pool": poolName},
			Name:        "tswap_pool_total_shares",
			Help:        "Outstanding liquidity shares.",
		}),

		SwapVolume: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			ConstLabels: prometheus.Labels{"pool": poolName},
			Name:        "tswap_pool_swap_volume_total",
			Help:        "Swapped input amount in raw units, labeled by input side.",
		}, []string{"side"}),

		RewardsPaid: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			ConstLabels: prometheus.Labels{"pool": poolName},
			Name:        "tswap_pool_rewards_paid_total",
			Help:        "Number of payouts made from the rewards reserve.",
		}),

		RewardsSkipped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			ConstLabels: prometheus.Labels{"pool": poolName},
			Name:        "tswap_pool_rewards_skipped_total",
			Help:        "Payouts that were due but could not be made.",
		}),
	}
}

// ObserveOperation records a completed operation and its duration.
func (m *Metrics) ObserveOperation(op string, started time.Time) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(op).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// ObserveError records a rejected operation.
func (m *Metrics) ObserveError(op, kind string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(op, kind).Inc()
}

// SetState publishes reserves and share supply.
func (m *Metrics) SetState(reserveBase, reserveQuote, totalShares *big.Int) {
	if m == nil {
		return
	}
	m.Reserve.WithLabelValues("base").Set(toFloat(reserveBase))
	m.Reserve.WithLabelValues("quote").Set(toFloat(reserveQuote))
	m.TotalShares.Set(toFloat(totalShares))
}

// AddSwapVolume adds amountIn to the volume of the given input side.
func (m *Metrics) AddSwapVolume(side string, amountIn *big.Int) {
	if m == nil {
		return
	}
	m.SwapVolume.WithLabelValues(side).Add(toFloat(amountIn))
}

// IncRewardsPaid counts one rewards payout.
func (m *Metrics) IncRewardsPaid() {
	if m == nil {
		return
	}
	m.RewardsPaid.Inc()
}

// IncRewardsSkipped counts a payout that was due but not made.
func (m *Metrics) IncRewardsSkipped() {
	if m == nil {
		return
	}
	m.RewardsSkipped.Inc()
}

// Gauges are float64; precision loss on very large amounts is acceptable.
func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
