package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Tab metrics
	TabsOpen       prometheus.Gauge
	LiveViews      prometheus.Gauge
	TabsCreated    prometheus.Counter
	TabsClosed     prometheus.Counter
	TabsEvicted    prometheus.Counter
	LimitRejected  prometheus.Counter
	LoadErrors     *prometheus.CounterVec
	PageLoadTime   prometheus.Histogram
	BackgroundStop prometheus.Counter

	// Session metrics
	SessionsSaved    prometheus.Counter
	SessionsRestored prometheus.Counter
	TabsRestored     prometheus.Counter
}

// New creates a collector set registered on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabkeeper_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tabkeeper_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),

		TabsOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "tabkeeper_tabs_open",
			Help: "Number of tabs in the tab table",
		}),
		LiveViews: f.NewGauge(prometheus.GaugeOpts{
			Name: "tabkeeper_tabs_live_views",
			Help: "Number of tabs backed by a live browser page",
		}),
		TabsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "tabkeeper_tabs_created_total",
			Help: "Total number of tabs opened",
		}),
		TabsClosed: f.NewCounter(prometheus.CounterOpts{
			Name: "tabkeeper_tabs_closed_total",
			Help: "Total number of tabs closed",
		}),
		TabsEvicted: f.NewCounter(prometheus.CounterOpts{
			Name: "tabkeeper_tabs_evicted_total",
			Help: "Total number of tab views dropped under memory pressure",
		}),
		LimitRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "tabkeeper_tab_limit_rejections_total",
			Help: "Total number of tab creations refused at the tab limit",
		}),
		LoadErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabkeeper_load_errors_total",
				Help: "Total number of queued page load errors",
			},
			[]string{"code"},
		),
		PageLoadTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tabkeeper_page_load_seconds",
			Help:    "Main-frame page load time in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		BackgroundStop: f.NewCounter(prometheus.CounterOpts{
			Name: "tabkeeper_background_load_stops_total",
			Help: "Total number of times background loading was stopped after the timeout",
		}),

		SessionsSaved: f.NewCounter(prometheus.CounterOpts{
			Name: "tabkeeper_sessions_saved_total",
			Help: "Total number of session saves",
		}),
		SessionsRestored: f.NewCounter(prometheus.CounterOpts{
			Name: "tabkeeper_sessions_restored_total",
			Help: "Total number of session restores",
		}),
		TabsRestored: f.NewCounter(prometheus.CounterOpts{
			Name: "tabkeeper_tabs_restored_total",
			Help: "Total number of tabs rebuilt from a saved session",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, status string, d time.Duration) {
	m.RequestsTotal.WithLabelValues(method, status).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// SetTabCounts updates the tab gauges.
func (m *Metrics) SetTabCounts(open, live int) {
	m.TabsOpen.Set(float64(open))
	m.LiveViews.Set(float64(live))
}
