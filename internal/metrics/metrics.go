// Package metrics exposes Prometheus instrumentation for message sends and
// the stored conversation collection.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gwi.com/wonderland-chat/internal/core"
	"gwi.com/wonderland-chat/internal/store"
)

const namespace = "wonderland_chat"

// Metrics owns a private registry so tests and multiple instances never
// collide on the global one.
type Metrics struct {
	registry      *prometheus.Registry
	sends         *prometheus.CounterVec
	sendDuration  *prometheus.HistogramVec
	conversations prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Messages sent to a backend, by mode and outcome.",
		}, []string{"mode", "outcome"}),
		sendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "Time spent waiting for a backend reply.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"mode"}),
		conversations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "conversations",
			Help:      "Conversations currently stored.",
		}),
	}
	m.registry.MustRegister(
		m.sends,
		m.sendDuration,
		m.conversations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveConversations is a repository observer.
func (m *Metrics) ObserveConversations(n int) {
	m.conversations.Set(float64(n))
}

// Instrument wraps next so every send is counted and timed.
func (m *Metrics) Instrument(next core.Exchanger) core.Exchanger {
	return &instrumented{next: next, m: m}
}

type instrumented struct {
	next core.Exchanger
	m    *Metrics
}

func (i *instrumented) Send(ctx context.Context, history []store.Message, content string, mode store.Mode) (string, error) {
	start := time.Now()
	reply, err := i.next.Send(ctx, history, content, mode)
	i.m.sendDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	i.m.sends.WithLabelValues(string(mode), outcome(err)).Inc()
	return reply, err
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := core.ErrorKind(err); kind != "" {
		return kind
	}
	return "error"
}
