// File: internal/observability/metrics.go
package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const metricsNamespace = "webpilot"

// Metrics collects agent counters on a private registry. A nil *Metrics is a
// valid no-op collector, so components can take it unconditionally.
type Metrics struct {
	registry *prometheus.Registry

	jobsTotal          *prometheus.CounterVec
	jobAttemptsTotal   *prometheus.CounterVec
	labelAttemptsTotal *prometheus.CounterVec
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	promptsTotal       *prometheus.CounterVec
}

// NewMetrics creates a collector with its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		jobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "jobs_total",
			Help:      "Browser jobs by kind and final status.",
		}, []string{"kind", "status"}),
		jobAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "job_attempts_total",
			Help:      "Individual job attempts, including retries.",
		}, []string{"kind"}),
		labelAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "label_attempts_total",
			Help:      "Label negotiation rounds by outcome.",
		}, []string{"outcome"}),
		llmRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "llm_requests_total",
			Help:      "Completion requests by tier and status.",
		}, []string{"tier", "status"}),
		llmRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Completion request latency in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"tier"}),
		promptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "prompts_total",
			Help:      "Prompts received from the in-page prompt box by route.",
		}, []string{"route"}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordJob(kind string, err error) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(kind, statusOf(err)).Inc()
}

func (m *Metrics) RecordJobAttempt(kind string) {
	if m == nil {
		return
	}
	m.jobAttemptsTotal.WithLabelValues(kind).Inc()
}

// RecordLabelAttempt counts one negotiation round; outcome is "hit" or "miss".
func (m *Metrics) RecordLabelAttempt(outcome string) {
	if m == nil {
		return
	}
	m.labelAttemptsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordLLMRequest(tier string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.llmRequestsTotal.WithLabelValues(tier, statusOf(err)).Inc()
	m.llmRequestDuration.WithLabelValues(tier).Observe(duration.Seconds())
}

func (m *Metrics) RecordPrompt(route string) {
	if m == nil {
		return
	}
	m.promptsTotal.WithLabelValues(route).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving metrics.", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
