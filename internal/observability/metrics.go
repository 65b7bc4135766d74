package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests       *prometheus.CounterVec
	SessionsCreated    *prometheus.CounterVec
	Generations        *prometheus.CounterVec
	GenerationDuration prometheus.Histogram
	QueueDepth         prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thumbnail_http_requests_total",
				Help: "HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "status"},
		),
		SessionsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thumbnail_sessions_created_total",
				Help: "Sessions issued by login method",
			},
			[]string{"method"},
		),
		Generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "thumbnail_generations_total",
				Help: "Thumbnails that reached a terminal status",
			},
			[]string{"outcome"},
		),
		GenerationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "thumbnail_generation_duration_seconds",
			Help:    "Time from a worker picking up a job to its terminal status",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "thumbnail_generation_queue_depth",
			Help: "Generation jobs waiting for a worker",
		}),
	}
	reg.MustRegister(m.HTTPRequests, m.SessionsCreated, m.Generations, m.GenerationDuration, m.QueueDepth)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveRequest(route, method string, status int) {
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}

func (m *Metrics) SessionCreated(method string) {
	m.SessionsCreated.WithLabelValues(method).Inc()
}

func (m *Metrics) ObserveGeneration(outcome string, d time.Duration) {
	m.Generations.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.GenerationDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	m.QueueDepth.Set(float64(n))
}
