package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the form relay service
type Metrics struct {
	// HTTP front-end metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec

	// Datagram forwarding metrics
	Forwarded     prometheus.Counter
	ForwardErrors prometheus.Counter

	// Relay server metrics
	PacketsReceived  prometheus.Counter
	PacketSize       prometheus.Histogram
	PacketsTruncated prometheus.Counter

	// Storage metrics
	MessagesStored prometheus.Counter
	ParseErrors    prometheus.Counter
	StoreErrors    prometheus.Counter
	StoreDuration  prometheus.Histogram
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "formrelay_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formrelay_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "formrelay_http_errors_total",
			Help: "Total number of HTTP responses with an error status",
		}, []string{"method", "route", "type"}),

		Forwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "formrelay_forwarded_total",
			Help: "Total number of form bodies forwarded to the relay",
		}),
		ForwardErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "formrelay_forward_errors_total",
			Help: "Total number of form bodies that could not be read or forwarded",
		}),

		PacketsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "formrelay_packets_received_total",
			Help: "Total number of datagrams received by the relay",
		}),
		PacketSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "formrelay_packet_size_bytes",
			Help:    "Size of received datagrams",
			Buckets: []float64{64, 128, 256, 512, 768, 1024, 4096},
		}),
		PacketsTruncated: factory.NewCounter(prometheus.CounterOpts{
			Name: "formrelay_packets_truncated_total",
			Help: "Total number of datagrams that filled the receive buffer",
		}),

		MessagesStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "formrelay_messages_stored_total",
			Help: "Total number of messages inserted into the document store",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "formrelay_parse_errors_total",
			Help: "Total number of messages dropped because the form body was malformed",
		}),
		StoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "formrelay_store_errors_total",
			Help: "Total number of messages dropped because of a document store failure",
		}),
		StoreDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "formrelay_store_duration_seconds",
			Help:    "Time spent handling one message, connection setup included",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, route, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, route, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, route, errorType string) {
	m.HTTPErrors.WithLabelValues(method, route, errorType).Inc()
}

// RecordForwarded increments the forwarded counter
func (m *Metrics) RecordForwarded() {
	m.Forwarded.Inc()
}

// RecordForwardError increments the forward errors counter
func (m *Metrics) RecordForwardError() {
	m.ForwardErrors.Inc()
}

// RecordPacketReceived records a received datagram and whether it filled the buffer
func (m *Metrics) RecordPacketReceived(sizeBytes int, truncated bool) {
	m.PacketsReceived.Inc()
	m.PacketSize.Observe(float64(sizeBytes))
	if truncated {
		m.PacketsTruncated.Inc()
	}
}

// RecordMessageStored records a successful insert
func (m *Metrics) RecordMessageStored(durationSeconds float64) {
	m.MessagesStored.Inc()
	m.StoreDuration.Observe(durationSeconds)
}

// RecordParseError increments the parse errors counter
func (m *Metrics) RecordParseError() {
	m.ParseErrors.Inc()
}

// RecordStoreError records a failed store attempt
func (m *Metrics) RecordStoreError(durationSeconds float64) {
	m.StoreErrors.Inc()
	m.StoreDuration.Observe(durationSeconds)
}
