// Package metrics exposes browser activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pkt.systems/webtabs/schema"
)

const namespace = "webtabs"

// Metrics holds the collectors of one server instance.
type Metrics struct {
	registry *prometheus.Registry

	// Browser metrics
	TabsOpen   prometheus.Gauge
	TabEvents  *prometheus.CounterVec
	LoadStates *prometheus.CounterVec
	Notices    *prometheus.CounterVec

	// History and download metrics
	HistoryEntries prometheus.Gauge
	Downloads      *prometheus.CounterVec
	DownloadBytes  prometheus.Counter

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	StreamClients   prometheus.Gauge
}

// New registers collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		TabsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tabs_open",
			Help:      "Number of open tabs",
		}),
		TabEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tab_events_total",
			Help:      "Tab lifecycle events by type",
		}, []string{"type"}),
		LoadStates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_state_transitions_total",
			Help:      "Load state transitions by state",
		}, []string{"state"}),
		Notices: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notices_total",
			Help:      "User notices by level",
		}, []string{"level"}),
		HistoryEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_entries",
			Help:      "Entries currently held in history",
		}),
		Downloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Downloads by source and result",
		}, []string{"source", "result"}),
		DownloadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Bytes written by completed downloads",
		}),
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "path"}),
		StreamClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Connected event stream clients",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// OnTabEvent tracks open tabs.
func (m *Metrics) OnTabEvent(event schema.TabEvent) {
	if m == nil {
		return
	}
	m.TabEvents.WithLabelValues(string(event.Type)).Inc()
	switch event.Type {
	case schema.TabEventCreated:
		m.TabsOpen.Inc()
	case schema.TabEventClosed:
		m.TabsOpen.Dec()
	}
}

// OnLoadState counts load transitions.
func (m *Metrics) OnLoadState(event schema.LoadStateEvent) {
	if m == nil {
		return
	}
	m.LoadStates.WithLabelValues(string(event.State)).Inc()
}

// OnNotice counts notices.
func (m *Metrics) OnNotice(event schema.NoticeEvent) {
	if m == nil {
		return
	}
	m.Notices.WithLabelValues(string(event.Level)).Inc()
}

// ObserveDownload records a finished transfer. source is "blob" or "url".
func (m *Metrics) ObserveDownload(source string, record schema.DownloadRecord, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	} else {
		m.DownloadBytes.Add(float64(record.Size))
	}
	m.Downloads.WithLabelValues(source, result).Inc()
}

// SetHistoryEntries publishes the history size.
func (m *Metrics) SetHistoryEntries(n int) {
	if m == nil {
		return
	}
	m.HistoryEntries.Set(float64(n))
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
