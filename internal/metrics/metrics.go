// Package metrics exposes program metrics in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Klingon-tech/pumpbox/internal/events"
	"github.com/Klingon-tech/pumpbox/internal/state"
	"github.com/Klingon-tech/pumpbox/pkg/types"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "pumpbox"

// phaseInactive labels reclaimed records in the phase gauge.
const phaseInactive = "inactive"

// Metrics holds the program collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// Requests
	RequestsTotal   *prometheus.CounterVec
	RequestErrors   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	LockWait        prometheus.Histogram

	// Tokens
	TokensCreated  prometheus.Counter
	RecordsByPhase *prometheus.GaugeVec

	// Trading
	TradesTotal   *prometheus.CounterVec
	TradeVolume   *prometheus.CounterVec
	FeesCollected prometheus.Counter

	// RPC
	RPCRequests *prometheus.CounterVec
}

// New creates the collectors and registers them with a fresh registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "program",
			Name:      "requests_total",
			Help:      "Processed requests by instruction and result",
		}, []string{"instruction", "result"}),
		RequestErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "program",
			Name:      "request_errors_total",
			Help:      "Rejected requests by error kind",
		}, []string{"kind", "class"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "program",
			Name:      "request_duration_seconds",
			Help:      "Request execution time including commit",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"instruction"}),
		LockWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "program",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for account locks",
			Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
		}),

		TokensCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tokens",
			Name:      "created_total",
			Help:      "Mystery boxes created",
		}),
		RecordsByPhase: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tokens",
			Name:      "records",
			Help:      "Token records by lifecycle phase",
		}, []string{"phase"}),

		TradesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "curve",
			Name:      "trades_total",
			Help:      "Settled trades by side",
		}, []string{"side"}),
		TradeVolume: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "curve",
			Name:      "volume_base_units_total",
			Help:      "Base currency moved by trades, fees included",
		}, []string{"side"}),
		FeesCollected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "curve",
			Name:      "fees_base_units_total",
			Help:      "Trade fees paid to the fee recipient",
		}),

		RPCRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "JSON-RPC requests by method",
		}, []string{"method"}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records the outcome of one processed request.
func (m *Metrics) ObserveRequest(instruction string, err error, took time.Duration) {
	m.RequestDuration.WithLabelValues(instruction).Observe(took.Seconds())
	if err == nil {
		m.RequestsTotal.WithLabelValues(instruction, "ok").Inc()
		return
	}
	m.RequestsTotal.WithLabelValues(instruction, "error").Inc()
	kind, class := "internal", state.ClassUnknown
	if pe, ok := state.AsError(err); ok {
		kind, class = pe.Kind, pe.Class
	}
	m.RequestErrors.WithLabelValues(kind, class.String()).Inc()
}

// ObserveLockWait records how long a request waited for its locks.
func (m *Metrics) ObserveLockWait(d time.Duration) {
	m.LockWait.Observe(d.Seconds())
}

// SetPhaseCounts seeds the phase gauge from committed state.
func (m *Metrics) SetPhaseCounts(records []*state.TokenRecord) {
	m.RecordsByPhase.Reset()
	for _, p := range []types.Phase{types.PhasePendingGeneration, types.PhaseTrading, types.PhaseFairLaunch, types.PhaseOpen} {
		m.RecordsByPhase.WithLabelValues(p.String()).Set(0)
	}
	m.RecordsByPhase.WithLabelValues(phaseInactive).Set(0)
	for _, r := range records {
		m.RecordsByPhase.WithLabelValues(phaseLabel(r.Phase, r.Inactive)).Inc()
	}
}

// ObserveEvent updates token and trade collectors. Subscribe it to
// events.TopicAll.
func (m *Metrics) ObserveEvent(ev *events.Event) {
	switch ev.Topic {
	case events.TopicCreated:
		m.TokensCreated.Inc()
		m.RecordsByPhase.WithLabelValues(types.PhasePendingGeneration.String()).Inc()
	case events.TopicFulfilled:
		m.movePhase(types.PhasePendingGeneration.String(), types.PhaseTrading.String())
	case events.TopicReclaimed:
		m.movePhase(types.PhasePendingGeneration.String(), phaseInactive)
	case events.TopicLaunchStarted:
		m.movePhase(types.PhaseTrading.String(), types.PhaseFairLaunch.String())
	case events.TopicLaunchFinalized:
		m.movePhase(types.PhaseFairLaunch.String(), types.PhaseOpen.String())
	case events.TopicTrade:
		if ev.Trade == nil {
			return
		}
		side, volume := "buy", ev.Trade.BaseIn
		if ev.Trade.TokensIn > 0 {
			side, volume = "sell", ev.Trade.BaseOut+ev.Trade.Fee
		}
		m.TradesTotal.WithLabelValues(side).Inc()
		m.TradeVolume.WithLabelValues(side).Add(float64(volume))
		m.FeesCollected.Add(float64(ev.Trade.Fee))
	}
}

// ObserveRPC counts one JSON-RPC call.
func (m *Metrics) ObserveRPC(method string) {
	m.RPCRequests.WithLabelValues(method).Inc()
}

func (m *Metrics) movePhase(from, to string) {
	m.RecordsByPhase.WithLabelValues(from).Dec()
	m.RecordsByPhase.WithLabelValues(to).Inc()
}

func phaseLabel(p types.Phase, inactive bool) string {
	if inactive {
		return phaseInactive
	}
	return p.String()
}
