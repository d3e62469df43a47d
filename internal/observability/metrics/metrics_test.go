package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestEngineMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(reg)
	m.ObserveExecution("greeting", "completed", 0.02)
	m.ObserveExecution("greeting", "completed", 0.03)
	m.ObserveError("discovery", false)
	m.ObserveTransition("greeting", "discovery")
	m.SessionStarted()
	m.SessionStarted()
	m.SessionEnded()
	m.ObserveConversion("hot")
	m.SinkDropped()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	got := map[string]*dto.MetricFamily{}
	for _, f := range families {
		got[f.GetName()] = f
	}

	execs := got["leadflow_engine_node_executions_total"]
	if execs == nil || execs.GetMetric()[0].GetCounter().GetValue() != 2 {
		t.Fatalf("expected 2 executions, got %v", execs)
	}
	active := got["leadflow_engine_active_sessions"]
	if active == nil || active.GetMetric()[0].GetGauge().GetValue() != 1 {
		t.Fatalf("expected 1 active session, got %v", active)
	}
	hist := got["leadflow_engine_node_latency_seconds"]
	if hist == nil || hist.GetMetric()[0].GetHistogram().GetSampleCount() != 2 {
		t.Fatalf("expected 2 latency samples, got %v", hist)
	}
}

func TestEngineMetricsDefaultRegistry(t *testing.T) {
	m := NewEngineMetrics(nil)
	m.ObserveExecution("closing", "failed", 0.1)
	prometheus.DefaultRegisterer.Unregister(m.executionsTotal)
	prometheus.DefaultRegisterer.Unregister(m.executionLatency)
	prometheus.DefaultRegisterer.Unregister(m.errorsTotal)
	prometheus.DefaultRegisterer.Unregister(m.transitionsTotal)
	prometheus.DefaultRegisterer.Unregister(m.sessionsTotal)
	prometheus.DefaultRegisterer.Unregister(m.activeSessions)
	prometheus.DefaultRegisterer.Unregister(m.conversions)
	prometheus.DefaultRegisterer.Unregister(m.sinkDropped)
}

func TestEngineMetricsNilSafe(t *testing.T) {
	var m *EngineMetrics
	m.ObserveExecution("a", "b", 0.1)
	m.ObserveError("c", true)
	m.ObserveTransition("d", "e")
	m.SessionStarted()
	m.SessionEnded()
	m.ObserveConversion("hot")
	m.SinkDropped()
}
