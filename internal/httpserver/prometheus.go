package httpserver

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skobkin/conntop-web/internal/dashboard"
	"github.com/skobkin/conntop-web/internal/snapshot"
)

const metricsNamespace = "conntop"

func (s *Server) registerPrometheus(r chi.Router) {
	registry := prometheus.NewRegistry()
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "active_connections",
			Help:      "Current number of active WebSocket clients.",
		}, func() float64 {
			return float64(s.wsActive.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "connections_total",
			Help:      "Total WebSocket connections accepted since start.",
		}, func() float64 {
			return float64(s.wsTotal.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "rejected_total",
			Help:      "Total WebSocket connection attempts rejected due to capacity.",
		}, func() float64 {
			return float64(s.wsRejected.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "messages_sent_total",
			Help:      "Total WebSocket messages sent to clients.",
		}, func() float64 {
			return float64(s.wsSent.Load())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ws",
			Name:      "messages_dropped_total",
			Help:      "Total WebSocket messages dropped due to backpressure.",
		}, func() float64 {
			return float64(s.wsDropped.Load())
		}),
	}

	if s.dashboard != nil {
		collectors = append(collectors, newDashboardCollector(s.dashboard))
	}

	for _, collector := range collectors {
		registry.MustRegister(collector)
	}

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

// dashboardCollector exposes poll health and the currently published model.
type dashboardCollector struct {
	controller *dashboard.Controller

	polls               *prometheus.Desc
	failures            *prometheus.Desc
	consecutiveFailures *prometheus.Desc
	lastDuration        *prometheus.Desc
	lastSuccess         *prometheus.Desc
	modelAge            *prometheus.Desc
	connections         *prometheus.Desc
	processes           *prometheus.Desc
	bytes               *prometheus.Desc
}

func newDashboardCollector(controller *dashboard.Controller) *dashboardCollector {
	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, subsystem, name),
			help,
			labels,
			nil,
		)
	}

	return &dashboardCollector{
		controller:          controller,
		polls:               desc("poll", "total", "Total backend polls attempted."),
		failures:            desc("poll", "failures_total", "Total backend polls that failed."),
		consecutiveFailures: desc("poll", "consecutive_failures", "Failed polls since the last successful one."),
		lastDuration:        desc("poll", "last_duration_seconds", "Duration of the most recent poll."),
		lastSuccess:         desc("poll", "last_success_timestamp_seconds", "Unix timestamp of the most recent successful poll."),
		modelAge:            desc("model", "age_seconds", "Seconds elapsed since the published model was fetched."),
		connections:         desc("model", "connections", "Connections in the published model.", "transport"),
		processes:           desc("model", "processes", "Processes in the published model."),
		bytes:               desc("model", "bytes", "Sum of byte counters across published connections.", "direction"),
	}
}

func (c *dashboardCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.polls
	ch <- c.failures
	ch <- c.consecutiveFailures
	ch <- c.lastDuration
	ch <- c.lastSuccess
	ch <- c.modelAge
	ch <- c.connections
	ch <- c.processes
	ch <- c.bytes
}

func (c *dashboardCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.controller.Stats()
	ch <- prometheus.MustNewConstMetric(c.polls, prometheus.CounterValue, float64(stats.Polls))
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(stats.Failures))
	ch <- prometheus.MustNewConstMetric(c.consecutiveFailures, prometheus.GaugeValue, float64(stats.ConsecutiveFailures))
	ch <- prometheus.MustNewConstMetric(c.lastDuration, prometheus.GaugeValue, stats.LastDuration.Seconds())
	if !stats.LastSuccess.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.lastSuccess, prometheus.GaugeValue, float64(stats.LastSuccess.Unix()))
	}

	if !c.controller.Ready() {
		return
	}

	model := c.controller.Results()
	age := time.Since(model.FetchedAt).Seconds()
	if age < 0 {
		age = 0
	}
	ch <- prometheus.MustNewConstMetric(c.modelAge, prometheus.GaugeValue, age)

	perTransport := map[snapshot.TransportType]int{
		snapshot.TransportTCP: 0,
		snapshot.TransportUDP: 0,
	}
	var downloaded, uploaded float64
	for _, conn := range model.Connections {
		perTransport[conn.TransportType]++
		downloaded += float64(conn.BytesDownloaded)
		uploaded += float64(conn.BytesUploaded)
	}
	for transport, count := range perTransport {
		ch <- prometheus.MustNewConstMetric(c.connections, prometheus.GaugeValue, float64(count), string(transport))
	}
	ch <- prometheus.MustNewConstMetric(c.processes, prometheus.GaugeValue, float64(len(model.Processes)))
	ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, downloaded, "downloaded")
	ch <- prometheus.MustNewConstMetric(c.bytes, prometheus.GaugeValue, uploaded, "uploaded")
}
