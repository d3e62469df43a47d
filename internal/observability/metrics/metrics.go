package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics exposes counters/histograms for the conversation engine.
type EngineMetrics struct {
	executionsTotal  *prometheus.CounterVec
	executionLatency *prometheus.HistogramVec
	errorsTotal      *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	sessionsTotal    prometheus.Counter
	activeSessions   prometheus.Gauge
	conversions      *prometheus.CounterVec
	sinkDropped      prometheus.Counter
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		executionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "engine",
			Name:      "node_executions_total",
			Help:      "Total node executions by agent and outcome",
		}, []string{"agent", "status"}),
		executionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leadflow",
			Subsystem: "engine",
			Name:      "node_latency_seconds",
			Help:      "Latency of node executions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"agent"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "engine",
			Name:      "errors_total",
			Help:      "Errors recorded by component",
		}, []string{"component", "recovered"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "engine",
			Name:      "phase_transitions_total",
			Help:      "Phase transitions by source and target phase",
		}, []string{"from", "to"}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "engine",
			Name:      "sessions_total",
			Help:      "Sessions started",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "leadflow",
			Subsystem: "engine",
			Name:      "active_sessions",
			Help:      "Sessions currently in progress",
		}),
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "engine",
			Name:      "conversions_total",
			Help:      "Sessions handed off to sales by tier",
		}, []string{"tier"}),
		sinkDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "monitor",
			Name:      "sink_dropped_total",
			Help:      "Monitor entries dropped because the sink buffer was full",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.executionsTotal, m.executionLatency, m.errorsTotal, m.transitionsTotal,
		m.sessionsTotal, m.activeSessions, m.conversions, m.sinkDropped)
	return m
}

func (m *EngineMetrics) ObserveExecution(agent, status string, seconds float64) {
	if m == nil {
		return
	}
	m.executionsTotal.WithLabelValues(agent, status).Inc()
	m.executionLatency.WithLabelValues(agent).Observe(seconds)
}

func (m *EngineMetrics) ObserveError(component string, recovered bool) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(component, strconv.FormatBool(recovered)).Inc()
}

func (m *EngineMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *EngineMetrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsTotal.Inc()
	m.activeSessions.Inc()
}

func (m *EngineMetrics) SessionEnded() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *EngineMetrics) ObserveConversion(tier string) {
	if m == nil {
		return
	}
	m.conversions.WithLabelValues(tier).Inc()
}

func (m *EngineMetrics) SinkDropped() {
	if m == nil {
		return
	}
	m.sinkDropped.Inc()
}
