package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "helium"

// Metrics holds the server's prometheus collectors. All methods are safe
// for concurrent use by the acceptor loop and every worker.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	parseErrors     *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	dropped         prometheus.Counter
	collisions      prometheus.Counter
	ioErrors        *prometheus.CounterVec
	workersAlive    prometheus.Gauge
	queueDepth      prometheus.Gauge
	inFlight        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg gets a private registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Responses produced by workers, by status code",
		}, []string{"status"}),
		parseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Requests rejected by the parser, by reason",
		}, []string{"reason"}),
		handlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handler_duration_seconds",
			Help:      "Time spent executing route handlers",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"route"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_dropped_total",
			Help:      "Responses discarded because their connection was no longer in the table",
		}),
		collisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_collisions_total",
			Help:      "Correlation keys that overwrote an in-flight connection",
		}),
		ioErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "io_errors_total",
			Help:      "Connections abandoned on I/O failure, by operation",
		}, []string{"op"}),
		workersAlive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers_alive",
			Help:      "Workers still running their loop",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Work items waiting for a worker",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_in_flight",
			Help:      "Connections waiting for their response",
		}),
	}

	reg.MustRegister(
		m.requests,
		m.parseErrors,
		m.handlerDuration,
		m.dropped,
		m.collisions,
		m.ioErrors,
		m.workersAlive,
		m.queueDepth,
		m.inFlight,
	)
	return m
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordResponse counts a response by status code
func (m *Metrics) RecordResponse(status int) {
	m.requests.WithLabelValues(strconv.Itoa(status)).Inc()
}

// RecordParseError counts a parser rejection
func (m *Metrics) RecordParseError(reason string) {
	m.parseErrors.WithLabelValues(reason).Inc()
}

// ObserveHandler records one handler execution
func (m *Metrics) ObserveHandler(route string, d time.Duration) {
	m.handlerDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordDropped counts a response whose connection was gone
func (m *Metrics) RecordDropped() {
	m.dropped.Inc()
}

// RecordCollision counts a correlation key overwrite
func (m *Metrics) RecordCollision() {
	m.collisions.Inc()
}

// RecordIOError counts an abandoned connection; op is accept, read,
// write, read_timeout or write_timeout
func (m *Metrics) RecordIOError(op string) {
	m.ioErrors.WithLabelValues(op).Inc()
}

// SetWorkersAlive updates the live worker gauge
func (m *Metrics) SetWorkersAlive(n int) {
	m.workersAlive.Set(float64(n))
}

// SetQueueDepth updates the queue depth gauge
func (m *Metrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

// SetInFlight updates the in-flight connection gauge
func (m *Metrics) SetInFlight(n int) {
	m.inFlight.Set(float64(n))
}
