// Package metrics exports Prometheus metrics for engine runs and LLM calls.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spinup/spinup/internal/orchestrator"
	"github.com/spinup/spinup/internal/provider"
)

const namespace = "spinup"

// Metrics is an orchestrator.Observer that records run, decision and action
// metrics into its own registry.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	runsInFlight   prometheus.Gauge
	runDuration    *prometheus.HistogramVec
	runRounds      prometheus.Histogram
	decisionsTotal prometheus.Counter
	actionsTotal   *prometheus.CounterVec
	actionRetries  *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	llmCompletions *prometheus.CounterVec
	llmTokens      *prometheus.CounterVec
	llmLatency     *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_total",
			Help: "Runs finished, by status and error kind.",
		}, []string{"status", "error_kind"}),
		runsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "runs_in_flight",
			Help: "Runs currently executing.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "run_duration_seconds",
			Help:    "Wall-clock duration of runs.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"status"}),
		runRounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "run_rounds",
			Help:    "Decision rounds used per finished run.",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 20, 50},
		}),
		decisionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "decisions_total",
			Help: "Decisions received from the decider.",
		}),
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "actions_total",
			Help: "Action attempts, by action and outcome.",
		}, []string{"action", "outcome"}),
		actionRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "action_retries_total",
			Help: "Action attempts that failed and were retried.",
		}, []string{"action"}),
		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "action_duration_seconds",
			Help:    "Duration of successful action attempts.",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
		llmCompletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_completions_total",
			Help: "LLM completion calls, by model and outcome.",
		}, []string{"model", "outcome"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_tokens_total",
			Help: "LLM tokens, by model and direction.",
		}, []string{"model", "direction"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "llm_latency_seconds",
			Help:    "LLM completion latency.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"model"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runsTotal, m.runsInFlight, m.runDuration, m.runRounds, m.decisionsTotal,
		m.actionsTotal, m.actionRetries, m.actionDuration,
		m.llmCompletions, m.llmTokens, m.llmLatency,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) OnEvent(_ context.Context, ev orchestrator.Event) {
	switch ev.Kind {
	case orchestrator.EventRunStarted:
		m.runsInFlight.Inc()
	case orchestrator.EventDecision:
		m.decisionsTotal.Inc()
	case orchestrator.EventActionCompleted:
		m.actionsTotal.WithLabelValues(ev.ActionID, "success").Inc()
		m.actionDuration.WithLabelValues(ev.ActionID).Observe(ev.Elapsed.Seconds())
	case orchestrator.EventActionRetry:
		m.actionsTotal.WithLabelValues(ev.ActionID, "retry").Inc()
		m.actionRetries.WithLabelValues(ev.ActionID).Inc()
	case orchestrator.EventRunCompleted:
		m.finishRun("done", "", ev)
	case orchestrator.EventRunFailed:
		var actErr *orchestrator.ActionError
		if errors.As(ev.Err, &actErr) {
			m.actionsTotal.WithLabelValues(actErr.ActionID, "failure").Inc()
		}
		m.finishRun("failed", string(ev.ErrKind), ev)
	}
}

func (m *Metrics) finishRun(status, kind string, ev orchestrator.Event) {
	m.runsInFlight.Dec()
	m.runsTotal.WithLabelValues(status, kind).Inc()
	m.runDuration.WithLabelValues(status).Observe(ev.Elapsed.Seconds())
	m.runRounds.Observe(float64(ev.Round))
}

// InstrumentLLM wraps an LLM client, recording calls, latency and token use.
func (m *Metrics) InstrumentLLM(next orchestrator.LLMClient) orchestrator.LLMClient {
	return &instrumentedLLM{next: next, m: m}
}

type instrumentedLLM struct {
	next orchestrator.LLMClient
	m    *Metrics
}

func (l *instrumentedLLM) Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionResponse, error) {
	start := time.Now()
	resp, err := l.next.Complete(ctx, req)
	l.m.llmLatency.WithLabelValues(req.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		l.m.llmCompletions.WithLabelValues(req.Model, "error").Inc()
		return nil, err
	}
	l.m.llmCompletions.WithLabelValues(req.Model, "success").Inc()
	l.m.llmTokens.WithLabelValues(req.Model, "input").Add(float64(resp.Usage.InputTokens))
	l.m.llmTokens.WithLabelValues(req.Model, "output").Add(float64(resp.Usage.OutputTokens))
	return resp, nil
}
