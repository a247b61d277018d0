package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thesyncim/mediastream"
	"github.com/thesyncim/mediastream/internal/ingest"
)

const namespace = "mediastream"

// Metrics contains all Prometheus metrics for the daemon
type Metrics struct {
	registry *prometheus.Registry

	// Stream engine metrics
	TracksAdded         *prometheus.CounterVec
	TracksRemoved       *prometheus.CounterVec
	EventsDispatched    *prometheus.CounterVec
	ActivityTransitions *prometheus.CounterVec
	RegisteredStreams   prometheus.Gauge

	// Ingest metrics
	Publishers       prometheus.Gauge
	PublishesStarted prometheus.Counter
	PacketsForwarded *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests *prometheus.CounterVec
}

// New creates the metrics on a fresh registry that also carries the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers every metric on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,

		TracksAdded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracks_added_total",
			Help:      "Tracks added to streams, by origin of the change",
		}, []string{"origin"}),
		TracksRemoved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracks_removed_total",
			Help:      "Tracks removed from streams, by origin of the change",
		}, []string{"origin"}),
		EventsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dispatched_total",
			Help:      "Stream events delivered to listeners, by event type",
		}, []string{"type"}),
		ActivityTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_transitions_total",
			Help:      "Stream active/inactive transitions",
		}, []string{"state"}),
		RegisteredStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_streams",
			Help:      "Streams currently in the registry",
		}),

		Publishers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "publishers",
			Help:      "RTMP publishers currently connected",
		}),
		PublishesStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "publishes_started_total",
			Help:      "RTMP publishes accepted",
		}),
		PacketsForwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "packets_total",
			Help:      "RTP packets handed to platform tracks, by kind",
		}, []string{"kind"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "HTTP API requests",
		}, []string{"method", "route", "status_code"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TrackAdded implements mediastream.Recorder.
func (m *Metrics) TrackAdded(origin mediastream.Origin) {
	m.TracksAdded.WithLabelValues(origin.String()).Inc()
}

// TrackRemoved implements mediastream.Recorder.
func (m *Metrics) TrackRemoved(origin mediastream.Origin) {
	m.TracksRemoved.WithLabelValues(origin.String()).Inc()
}

// ActiveChanged implements mediastream.Recorder.
func (m *Metrics) ActiveChanged(active bool) {
	state := "inactive"
	if active {
		state = "active"
	}
	m.ActivityTransitions.WithLabelValues(state).Inc()
}

// EventDispatched implements mediastream.Recorder.
func (m *Metrics) EventDispatched(t mediastream.EventType) {
	m.EventsDispatched.WithLabelValues(string(t)).Inc()
}

// StreamRegistered and StreamUnregistered report the registry size.
func (m *Metrics) StreamRegistered(total int)   { m.RegisteredStreams.Set(float64(total)) }
func (m *Metrics) StreamUnregistered(total int) { m.RegisteredStreams.Set(float64(total)) }

// PublishStarted implements ingest.Recorder.
func (m *Metrics) PublishStarted() {
	m.Publishers.Inc()
	m.PublishesStarted.Inc()
}

// PublishEnded implements ingest.Recorder.
func (m *Metrics) PublishEnded() { m.Publishers.Dec() }

// PacketForwarded counts one RTP packet handed to a track.
func (m *Metrics) PacketForwarded(kind string) {
	m.PacketsForwarded.WithLabelValues(kind).Inc()
}

// RequestServed records one HTTP API request.
func (m *Metrics) RequestServed(method, route string, status int) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

var (
	_ mediastream.Recorder = (*Metrics)(nil)
	_ ingest.Recorder      = (*Metrics)(nil)
)
