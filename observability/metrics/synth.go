package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SynthMetrics tracks the engine's mutating surface.
type SynthMetrics struct {
	operations       *prometheus.CounterVec
	liquidations     prometheus.Counter
	healthRejections prometheus.Counter
	oracleRejections *prometheus.CounterVec
	paused           prometheus.Gauge
}

var (
	synthOnce     sync.Once
	synthRegistry *SynthMetrics
)

// Synth returns the process-wide engine metrics, registering them on first
// use.
func Synth() *SynthMetrics {
	synthOnce.Do(func() {
		synthRegistry = &SynthMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "synth_operations_total",
				Help: "Count of engine operations by kind and result.",
			}, []string{"op", "result"}),
			liquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "synth_liquidations_total",
				Help: "Count of successful liquidations.",
			}),
			healthRejections: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "synth_health_rejections_total",
				Help: "Operations rejected because the resulting health factor broke the minimum.",
			}),
			oracleRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "synth_oracle_rejections_total",
				Help: "Price quotes rejected by the adapter, by reason.",
			}, []string{"reason"}),
			paused: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "synth_protocol_paused",
				Help: "1 while the protocol pause gate is set.",
			}),
		}
		prometheus.MustRegister(
			synthRegistry.operations,
			synthRegistry.liquidations,
			synthRegistry.healthRejections,
			synthRegistry.oracleRejections,
			synthRegistry.paused,
		)
	})
	return synthRegistry
}

// RecordOperation counts one engine operation outcome.
func (m *SynthMetrics) RecordOperation(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(op, result).Inc()
}

// RecordLiquidation counts a successful liquidation.
func (m *SynthMetrics) RecordLiquidation() {
	if m == nil {
		return
	}
	m.liquidations.Inc()
}

// RecordHealthRejection counts an operation blocked by the solvency check.
func (m *SynthMetrics) RecordHealthRejection() {
	if m == nil {
		return
	}
	m.healthRejections.Inc()
}

// RecordOracleRejection counts a rejected quote by reason.
func (m *SynthMetrics) RecordOracleRejection(reason string) {
	if m == nil {
		return
	}
	m.oracleRejections.WithLabelValues(reason).Inc()
}

// SetPaused reflects the pause gate position.
func (m *SynthMetrics) SetPaused(paused bool) {
	if m == nil {
		return
	}
	if paused {
		m.paused.Set(1)
		return
	}
	m.paused.Set(0)
}
