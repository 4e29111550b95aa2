// Package metrics exports turn-loop counters for Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/felixgeelhaar/recall/internal/runtime"
)

const namespace = "recall"

// Metrics groups all Prometheus instruments fed by the event bus.
type Metrics struct {
	TurnEvents       *prometheus.CounterVec
	ToolCalls        *prometheus.CounterVec
	ExternalFailures *prometheus.CounterVec
	RetrievalHits    prometheus.Histogram
	TurnLatency      prometheus.Histogram
	FlushedTurns     prometheus.Counter

	mu      sync.Mutex
	started map[string]time.Time
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TurnEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_events_total",
			Help:      "Turn-loop transitions by event.",
		}, []string{"event"}),
		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Dispatched commands by tag.",
		}, []string{"tag"}),
		ExternalFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Reported failures by kind.",
		}, []string{"kind"}),
		RetrievalHits: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_hits",
			Help:      "Memories resolved per retrieval.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		TurnLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_latency_seconds",
			Help:      "Time from persisting the user turn to finalizing the reply.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		FlushedTurns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushed_turns_total",
			Help:      "Turns embedded and indexed at session flush.",
		}),
		started: make(map[string]time.Time),
	}
}

// Subscribe feeds every event on bus into the instruments.
func (m *Metrics) Subscribe(bus *runtime.EventBus) {
	bus.SubscribeAll(m.observe)
}

func (m *Metrics) observe(e runtime.Event) {
	m.TurnEvents.WithLabelValues(string(e.Type)).Inc()

	switch e.Type {
	case runtime.EventTurnPersisted:
		m.mu.Lock()
		m.started[e.TurnID] = e.Timestamp
		m.mu.Unlock()
	case runtime.EventRetrieved:
		if hits, ok := e.Data["hits"].(int); ok {
			m.RetrievalHits.Observe(float64(hits))
		}
	case runtime.EventDispatching:
		if tag, ok := e.Data["tag"].(string); ok {
			m.ToolCalls.WithLabelValues(tag).Inc()
		}
	case runtime.EventExternalFailure:
		kind, _ := e.Data["kind"].(string)
		if kind == "" {
			kind, _ = e.Data["stage"].(string)
		}
		m.ExternalFailures.WithLabelValues(kind).Inc()
	case runtime.EventFinalized:
		m.mu.Lock()
		start, ok := m.started[e.TurnID]
		delete(m.started, e.TurnID)
		m.mu.Unlock()
		if ok {
			m.TurnLatency.Observe(e.Timestamp.Sub(start).Seconds())
		}
	case runtime.EventSessionFlushed:
		if n, ok := e.Data["indexed"].(int); ok {
			m.FlushedTurns.Add(float64(n))
		}
	}
}

// Router serves /metrics from gatherer and a /healthz probe.
func Router(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

// Serve runs the metrics endpoint on addr until ctx ends.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
