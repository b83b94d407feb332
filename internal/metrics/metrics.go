package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mention_dispatch"

// Tick outcomes
const (
	TickOK          = "ok"
	TickFetchError  = "fetch_error"
	TickBackoff     = "backoff_skip"
	TickInterrupted = "interrupted"
	TickThrottled   = "throttled"
)

// Metrics holds the dispatcher's Prometheus collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	Ticks           *prometheus.CounterVec
	Replies         *prometheus.CounterVec
	Skipped         *prometheus.CounterVec
	Fallbacks       prometheus.Counter
	WebhookFailures prometheus.Counter
	SeenSize        prometheus.Gauge
	TickDuration    prometheus.Histogram
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Dispatch ticks by outcome.",
		}, []string{"result"}),
		Replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Reply attempts by delivery status.",
		}, []string{"status"}),
		Skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_skipped_total",
			Help:      "Fetched messages that produced no reply, by reason.",
		}, []string{"reason"}),
		Fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_fallbacks_total",
			Help:      "Generated replies replaced by the static template.",
		}),
		WebhookFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_failures_total",
			Help:      "Reply events the webhook endpoint did not accept.",
		}),
		SeenSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "seen_set_size",
			Help:      "Message ids currently remembered.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one dispatch tick.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		}),
	}

	m.registry.MustRegister(
		m.Ticks,
		m.Replies,
		m.Skipped,
		m.Fallbacks,
		m.WebhookFailures,
		m.SeenSize,
		m.TickDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
