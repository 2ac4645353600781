package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "interview_gateway_active_connections",
		Help: "Number of active voice connections",
	})

	totalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_gateway_connections_total",
		Help: "Total number of voice connections handled",
	})

	connectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interview_gateway_connection_duration_seconds",
		Help:    "Duration of voice connections in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	// Turn metrics
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_gateway_turns_total",
		Help: "Total number of interview turns processed",
	}, []string{"outcome"}) // completed, cancelled, failed

	turnsInterrupted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_gateway_interrupts_total",
		Help: "Total number of turns interrupted by new user speech",
	})

	// Response backend metrics
	backendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_gateway_backend_requests_total",
		Help: "Total number of response backend requests",
	}, []string{"status"})

	backendLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interview_gateway_backend_latency_seconds",
		Help:    "Response backend latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	})

	// Synthesis metrics
	synthesisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_gateway_synthesis_requests_total",
		Help: "Total number of speech synthesis requests",
	}, []string{"status"})

	synthesisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interview_gateway_synthesis_latency_seconds",
		Help:    "Speech synthesis latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	// Recognition metrics
	recognitionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_gateway_recognition_events_total",
		Help: "Total number of recognition events received",
	}, []string{"type"})

	recognitionKeepalives = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_gateway_recognition_keepalives_total",
		Help: "Total number of silence keepalive frames sent to the recognizer",
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_gateway_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "interview_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// Metrics tracks metrics for a single connection
type Metrics struct {
	startTime        time.Time
	backendStartTime time.Time
	synthStartTime   time.Time
	mu               sync.Mutex
}

// NewConnectionMetrics creates a new metrics tracker for a connection
func NewConnectionMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// RecordConnectionStart records the start of a connection
func (m *Metrics) RecordConnectionStart() {
	activeConnections.Inc()
	totalConnections.Inc()
}

// RecordConnectionEnd records the end of a connection
func (m *Metrics) RecordConnectionEnd() {
	activeConnections.Dec()
	connectionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordTurn records the outcome of a turn task
func (m *Metrics) RecordTurn(outcome string) {
	turnsTotal.WithLabelValues(outcome).Inc()
}

// RecordInterrupt records a user interruption of an in-flight turn
func (m *Metrics) RecordInterrupt() {
	turnsInterrupted.Inc()
}

// RecordBackendStart records the start of a response backend call
func (m *Metrics) RecordBackendStart() {
	m.mu.Lock()
	m.backendStartTime = time.Now()
	m.mu.Unlock()
}

// RecordBackendEnd records the end of a response backend call
func (m *Metrics) RecordBackendEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.backendStartTime.IsZero() {
		backendLatency.Observe(time.Since(m.backendStartTime).Seconds())
	}

	status := "success"
	if !success {
		status = "error"
	}
	backendRequests.WithLabelValues(status).Inc()
}

// RecordSynthesisStart records the start of speech synthesis
func (m *Metrics) RecordSynthesisStart() {
	m.mu.Lock()
	m.synthStartTime = time.Now()
	m.mu.Unlock()
}

// RecordSynthesisEnd records the end of speech synthesis
func (m *Metrics) RecordSynthesisEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.synthStartTime.IsZero() {
		synthesisLatency.Observe(time.Since(m.synthStartTime).Seconds())
	}

	status := "success"
	if !success {
		status = "error"
	}
	synthesisRequests.WithLabelValues(status).Inc()
}

// RecordRecognitionEvent records a recognition event by type
func (m *Metrics) RecordRecognitionEvent(eventType string) {
	recognitionEvents.WithLabelValues(eventType).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records audio bytes processed
func (m *Metrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// RecordKeepalive records a silence keepalive frame sent to the recognizer
func RecordKeepalive() {
	recognitionKeepalives.Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
