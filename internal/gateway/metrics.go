package gateway

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flemzord/codeclaw/internal/approval"
	"github.com/flemzord/codeclaw/internal/tool"
)

const metricsNamespace = "codeclaw"

// Call outcomes used as the "outcome" label.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
)

// Metrics exports tool, approval and turn counters on its own registry.
type Metrics struct {
	registry  *prometheus.Registry
	toolCalls *prometheus.CounterVec
	approvals *prometheus.CounterVec
	pending   prometheus.Gauge
	turns     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tool_calls_total",
			Help:      "Finished tool calls by tool and outcome.",
		}, []string{"tool", "outcome"}),
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "approvals_total",
			Help:      "Resolved approval requests by decision.",
		}, []string{"decision"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "approvals_pending",
			Help:      "Approval requests waiting for a decision.",
		}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "turns_total",
			Help:      "Completed conversation turns by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.toolCalls,
		m.approvals,
		m.pending,
		m.turns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveCall counts a finished tool call.
func (m *Metrics) ObserveCall(c tool.Call) {
	outcome := OutcomeOK
	switch {
	case c.Rejected():
		outcome = OutcomeRejected
	case c.State == tool.StateOutputError:
		outcome = OutcomeError
	}
	m.toolCalls.WithLabelValues(string(c.Name), outcome).Inc()
}

// ObserveTurn counts a finished turn.
func (m *Metrics) ObserveTurn(err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.turns.WithLabelValues(outcome).Inc()
}

// GateOptions returns the hooks that keep the approval series current.
func (m *Metrics) GateOptions() []approval.Option {
	return []approval.Option{
		approval.OnRequest(func(approval.Request) { m.pending.Inc() }),
		approval.OnResolve(func(_ approval.Request, d approval.Decision) {
			m.pending.Dec()
			m.approvals.WithLabelValues(string(d)).Inc()
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
