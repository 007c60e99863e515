package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the Station. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Diagnostics HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Protocol metrics
	MessagesOut    *prometheus.CounterVec
	CommandsIn     *prometheus.CounterVec
	SendFailures   prometheus.Counter
	BreakerState   prometheus.Gauge
	InboundDropped *prometheus.CounterVec

	// Session metrics
	Launches         *prometheus.CounterVec
	StateTransitions *prometheus.CounterVec
	HeadsetStatus    *prometheus.GaugeVec
	Restarts         prometheus.Counter

	// Monitoring loop metrics
	TickDuration *prometheus.HistogramVec
	Temperature  prometheus.Gauge

	// WebSocket metrics
	WSConnections prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON diagnostics API
type Snapshot struct {
	MessagesOut   int64   `json:"messages_out"`
	CommandsIn    int64   `json:"commands_in"`
	SendFailures  int64   `json:"send_failures"`
	Launches      int64   `json:"launches"`
	LaunchFailed  int64   `json:"launch_failures"`
	Temperature   float64 `json:"temperature"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// NewMetrics creates a collector with its own registry so several
// Stations (or tests) can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "station_http_requests_total",
				Help: "Total number of diagnostics HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "station_http_request_duration_seconds",
				Help:    "Diagnostics HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		MessagesOut: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "station_messages_out_total",
				Help: "Outbound messages by kind",
			},
			[]string{"kind"},
		),
		CommandsIn: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "station_commands_in_total",
				Help: "Inbound commands by namespace",
			},
			[]string{"namespace"},
		),
		SendFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "station_send_failures_total",
				Help: "Outbound sends that failed or were rejected by the breaker",
			},
		),
		BreakerState: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "station_sender_breaker_state",
				Help: "Outbound breaker state (0 closed, 1 half-open, 2 open)",
			},
		),
		InboundDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "station_inbound_dropped_total",
				Help: "Inbound connections dropped before dispatch",
			},
			[]string{"reason"},
		),

		Launches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "station_experience_launches_total",
				Help: "Experience launches by wrapper and result",
			},
			[]string{"wrapper", "result"},
		),
		StateTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "station_state_transitions_total",
				Help: "Session state labels set",
			},
			[]string{"state"},
		),
		HeadsetStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "station_headset_status",
				Help: "1 for the current composite headset status",
			},
			[]string{"status"},
		),
		Restarts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "station_session_restarts_total",
				Help: "Session restart sequences executed",
			},
		),

		TickDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "station_monitor_tick_duration_seconds",
				Help:    "Monitoring loop tick duration",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"loop"},
		),
		Temperature: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "station_temperature_celsius",
				Help: "Last sampled Station temperature",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "station_ws_connections",
				Help: "Open diagnostics event stream connections",
			},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "station_uptime_seconds",
				Help: "Station uptime in seconds",
			},
		),
	}

	return m
}

// Registry returns the registry metrics are collected in
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// UpdateUptime refreshes the uptime gauge. The HTTP layer calls it
// before serving metrics.
func (m *Metrics) UpdateUptime() {
	if m == nil {
		return
	}
	up := time.Since(m.startTime).Seconds()
	m.Uptime.Set(up)
	m.mu.Lock()
	m.snapshot.UptimeSeconds = up
	m.mu.Unlock()
}

// RecordHTTPRequest records a diagnostics HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordMessageOut records an outbound message of kind
func (m *Metrics) RecordMessageOut(kind string) {
	if m == nil {
		return
	}
	m.MessagesOut.WithLabelValues(kind).Inc()
	m.mu.Lock()
	m.snapshot.MessagesOut++
	m.mu.Unlock()
}

// RecordCommand records an inbound command
func (m *Metrics) RecordCommand(namespace string) {
	if m == nil {
		return
	}
	m.CommandsIn.WithLabelValues(namespace).Inc()
	m.mu.Lock()
	m.snapshot.CommandsIn++
	m.mu.Unlock()
}

// RecordSendFailure records a failed outbound send
func (m *Metrics) RecordSendFailure() {
	if m == nil {
		return
	}
	m.SendFailures.Inc()
	m.mu.Lock()
	m.snapshot.SendFailures++
	m.mu.Unlock()
}

// SetBreakerState records the sender breaker state
func (m *Metrics) SetBreakerState(state int) {
	if m == nil {
		return
	}
	m.BreakerState.Set(float64(state))
}

// RecordInboundDropped records an inbound connection dropped for reason
func (m *Metrics) RecordInboundDropped(reason string) {
	if m == nil {
		return
	}
	m.InboundDropped.WithLabelValues(reason).Inc()
}

// RecordLaunch records an experience launch attempt result
func (m *Metrics) RecordLaunch(wrapper, result string) {
	if m == nil {
		return
	}
	m.Launches.WithLabelValues(wrapper, result).Inc()
	m.mu.Lock()
	m.snapshot.Launches++
	if result != "launching" && result != "launched" {
		m.snapshot.LaunchFailed++
	}
	m.mu.Unlock()
}

// RecordState records a session state label
func (m *Metrics) RecordState(state string) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(state).Inc()
}

// SetHeadsetStatus marks status as the current composite headset status
func (m *Metrics) SetHeadsetStatus(status string) {
	if m == nil {
		return
	}
	m.HeadsetStatus.Reset()
	m.HeadsetStatus.WithLabelValues(status).Set(1)
}

// IncRestarts increments the executed restart counter
func (m *Metrics) IncRestarts() {
	if m == nil {
		return
	}
	m.Restarts.Inc()
}

// ObserveTick records the duration of one monitoring loop tick
func (m *Metrics) ObserveTick(loop string, d time.Duration) {
	if m == nil {
		return
	}
	m.TickDuration.WithLabelValues(loop).Observe(d.Seconds())
}

// SetTemperature records the last sampled temperature
func (m *Metrics) SetTemperature(celsius float64) {
	if m == nil {
		return
	}
	m.Temperature.Set(celsius)
	m.mu.Lock()
	m.snapshot.Temperature = celsius
	m.mu.Unlock()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// Snapshot returns the current values for the JSON API
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.UpdateUptime()
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
