package observability

import (
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	fassetMetricsOnce sync.Once
	fassetRegistry    *AssetManagerMetrics
)

// AssetManagerMetrics captures activity of the f-asset engine.
type AssetManagerMetrics struct {
	operations        *prometheus.CounterVec
	latency           *prometheus.HistogramVec
	volume            *prometheus.CounterVec
	agents            *prometheus.GaugeVec
	liquidationFactor prometheus.Histogram
}

// FAssetMetrics returns the lazily-initialised registry for the asset
// manager.
func FAssetMetrics() *AssetManagerMetrics {
	fassetMetricsOnce.Do(func() {
		fassetRegistry = &AssetManagerMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fasset",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Count of asset manager operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "fasset",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution of asset manager operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			volume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fasset",
				Subsystem: "engine",
				Name:      "volume_uba_total",
				Help:      "Underlying base amount moved by minting, redemption and liquidation.",
			}, []string{"kind"}),
			agents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "fasset",
				Subsystem: "engine",
				Name:      "agents",
				Help:      "Number of agent vaults by status.",
			}, []string{"status"}),
			liquidationFactor: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "fasset",
				Subsystem: "engine",
				Name:      "liquidation_factor_bips",
				Help:      "Total liquidation factor paid out per liquidation.",
				Buckets:   []float64{10_000, 11_000, 12_000, 13_000, 14_000, 15_000, 20_000},
			}),
		}
		prometheus.MustRegister(
			fassetRegistry.operations,
			fassetRegistry.latency,
			fassetRegistry.volume,
			fassetRegistry.agents,
			fassetRegistry.liquidationFactor,
		)
	})
	return fassetRegistry
}

// RecordOperation counts one engine operation and its latency. Errors are
// recorded with the "error" outcome.
func (m *AssetManagerMetrics) RecordOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	operation = strings.TrimSpace(operation)
	if operation == "" {
		operation = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// AddVolume adds an underlying amount to the counter of the given kind
// ("minted", "redeemed", "liquidated").
func (m *AssetManagerMetrics) AddVolume(kind string, uba *big.Int) {
	if m == nil || uba == nil || uba.Sign() <= 0 {
		return
	}
	value, _ := new(big.Float).SetInt(uba).Float64()
	m.volume.WithLabelValues(kind).Add(value)
}

// AgentStatusChanged moves one agent between status gauges. An empty status
// means the agent did not exist before or no longer exists.
func (m *AssetManagerMetrics) AgentStatusChanged(from, to string) {
	if m == nil || from == to {
		return
	}
	if from != "" {
		m.agents.WithLabelValues(from).Dec()
	}
	if to != "" {
		m.agents.WithLabelValues(to).Inc()
	}
}

// ObserveLiquidationFactor records the total factor of a liquidation payout.
func (m *AssetManagerMetrics) ObserveLiquidationFactor(bips uint64) {
	if m == nil {
		return
	}
	m.liquidationFactor.Observe(float64(bips))
}
