package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the domain counters of the connection and messaging engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	DiscoveryDuration prometheus.Histogram
	MatchesFound      *prometheus.CounterVec
	RequestsTotal     *prometheus.CounterVec
	ChatsCreated      prometheus.Counter
	MessagesSent      *prometheus.CounterVec
	WSConnections     prometheus.Gauge
	AuthEvents        *prometheus.CounterVec
}

// NewMetrics registers the domain metrics on reg (the default registerer
// when nil) under namespace.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		DiscoveryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_discovery_duration_seconds",
			Help:      "Time taken to compute matches for one journey",
			Buckets:   prometheus.DefBuckets,
		}),
		MatchesFound: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_found_total",
			Help:      "Raw matches returned by discovery, by kind",
		}, []string{"kind"}),
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_requests_total",
			Help:      "Match request lifecycle events, by outcome",
		}, []string{"outcome"}),
		ChatsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chats_created_total",
			Help:      "Chats created by accepted match requests",
		}),
		MessagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Persisted chat messages, by transport",
		}, []string{"transport"}),
		WSConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open realtime connections",
		}),
		AuthEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_events_total",
			Help:      "Authentication events, by kind and result",
		}, []string{"event", "result"}),
	}
}

// ObserveDiscovery records one discovery run.
func (m *Metrics) ObserveDiscovery(d time.Duration, sameFlights, layovers int) {
	if m == nil {
		return
	}
	m.DiscoveryDuration.Observe(d.Seconds())
	m.MatchesFound.WithLabelValues("same_flight").Add(float64(sameFlights))
	m.MatchesFound.WithLabelValues("layover").Add(float64(layovers))
}

// Request counts a request lifecycle outcome (sent, duplicate, accepted, rejected, dismissed).
func (m *Metrics) Request(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// ChatCreated counts a new chat.
func (m *Metrics) ChatCreated() {
	if m == nil {
		return
	}
	m.ChatsCreated.Inc()
}

// MessageSent counts a persisted message.
func (m *Metrics) MessageSent(transport string) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(transport).Inc()
}

// ConnOpened and ConnClosed track live realtime connections.
func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// Auth counts an authentication event.
func (m *Metrics) Auth(event string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "fail"
	}
	m.AuthEvents.WithLabelValues(event, result).Inc()
}
