// Package metrics exports prometheus metrics derived from session events.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/aira/pkg/events"
)

const namespace = "aira"

// Metrics is an events.EventSink that keeps counters about sends and
// threads in its own registry.
type Metrics struct {
	registry *prometheus.Registry

	sendsStarted prometheus.Counter
	sends        *prometheus.CounterVec
	sendDuration prometheus.Histogram
	pending      prometheus.Gauge
	threads      prometheus.Gauge
	messages     *prometheus.CounterVec

	mu   sync.Mutex
	seen map[string]struct{}
}

var _ events.EventSink = &Metrics{}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		seen:     map[string]struct{}{},
		sendsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_started_total",
			Help:      "Number of sends that reached the backend call.",
		}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Number of resolved sends by outcome.",
		}, []string{"outcome"}),
		sendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "Backend round trip time of sends.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "send_pending",
			Help:      "1 while a send is waiting for the backend.",
		}),
		threads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threads",
			Help:      "Number of conversation threads in the session.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages appended to threads by sender.",
		}, []string{"sender"}),
	}

	m.registry.MustRegister(
		m.sendsStarted,
		m.sends,
		m.sendDuration,
		m.pending,
		m.threads,
		m.messages,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) PublishEvent(e events.Event) error {
	switch p := e.(type) {
	case *events.EventThreadCreated:
		m.trackThread(p.Metadata().ThreadID)
	case *events.EventMessageAppended:
		m.messages.WithLabelValues(string(p.Message.Sender)).Inc()
	case *events.EventSendStarted:
		m.sendsStarted.Inc()
		m.pending.Set(1)
	case *events.EventSendFinished:
		m.sends.WithLabelValues("success").Inc()
		m.sendDuration.Observe(msToSeconds(p.DurationMs))
		m.pending.Set(0)
	case *events.EventSendFailed:
		outcome := "error"
		if p.Timeout {
			outcome = "timeout"
		}
		m.sends.WithLabelValues(outcome).Inc()
		m.sendDuration.Observe(msToSeconds(p.DurationMs))
		m.pending.Set(0)
	}
	return nil
}

func (m *Metrics) trackThread(id string) {
	if id == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[id]; ok {
		return
	}
	m.seen[id] = struct{}{}
	m.threads.Set(float64(len(m.seen)))
}

func msToSeconds(ms int64) float64 {
	return (time.Duration(ms) * time.Millisecond).Seconds()
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "metrics server failed")
	}
}
