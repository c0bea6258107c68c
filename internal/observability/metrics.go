package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "session_gateway_active_sessions",
		Help: "Number of connected sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_gateway_sessions_total",
		Help: "Total number of sessions connected",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "session_gateway_session_duration_seconds",
		Help:    "Duration of connected sessions in seconds",
		Buckets: []float64{30, 60, 300, 900, 1800, 3000, 3600, 5400},
	})

	// Transcript metrics
	transcriptEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_gateway_transcript_entries_total",
		Help: "Transcript entries applied",
	}, []string{"kind"}) // kind: "interim" or "final"

	detectedTerms = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_gateway_detected_terms_total",
		Help: "Clinical terms detected in finalized utterances",
	}, []string{"term"})

	suggestions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_gateway_suggestions_total",
		Help: "Note suggestions emitted and consumed",
	}, []string{"action"}) // action: "emitted" or "consumed"

	// Upstream STT metrics
	sttStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "session_gateway_stt_streams_active",
		Help: "Open upstream speech-to-text streams",
	})

	sttRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_gateway_stt_requests_total",
		Help: "Total number of upstream STT stream sessions",
	}, []string{"provider", "status"})

	sttLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "session_gateway_stt_first_result_seconds",
		Help:    "Time from stream start to the first transcript result",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	// Event publishing
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_gateway_events_published_total",
		Help: "Session events handed to the event bus",
	}, []string{"type", "status"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "session_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_gateway_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in", "out" or "dropped"
)

// Metrics tracks metrics for a single session or gateway stream
type Metrics struct {
	sessionID    string
	startTime    time.Time
	sttStartTime time.Time
	firstResult  bool
	ended        bool
	mu           sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records a session transitioning to connected
func (m *Metrics) RecordSessionStart() {
	m.mu.Lock()
	m.startTime = time.Now()
	m.ended = false
	m.mu.Unlock()
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records a session leaving the connected state. Repeated calls are ignored.
func (m *Metrics) RecordSessionEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return
	}
	m.ended = true
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordTranscriptEntry counts an applied transcript entry
func (m *Metrics) RecordTranscriptEntry(isFinal bool) {
	kind := "interim"
	if isFinal {
		kind = "final"
	}
	transcriptEntries.WithLabelValues(kind).Inc()
}

// RecordTerm counts a detected term
func (m *Metrics) RecordTerm(term string) {
	detectedTerms.WithLabelValues(term).Inc()
}

// RecordSuggestion counts a suggestion lifecycle action
func (m *Metrics) RecordSuggestion(action string) {
	suggestions.WithLabelValues(action).Inc()
}

// RecordSTTStart records the start of an upstream STT stream
func (m *Metrics) RecordSTTStart() {
	m.mu.Lock()
	m.sttStartTime = time.Now()
	m.firstResult = false
	m.mu.Unlock()
	sttStreams.Inc()
}

// RecordSTTResult observes first-result latency once per stream
func (m *Metrics) RecordSTTResult() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.firstResult || m.sttStartTime.IsZero() {
		return
	}
	m.firstResult = true
	sttLatency.Observe(time.Since(m.sttStartTime).Seconds())
}

// RecordSTTEnd records the end of an upstream STT stream
func (m *Metrics) RecordSTTEnd(provider string, success bool) {
	sttStreams.Dec()
	status := "success"
	if !success {
		status = "error"
	}
	sttRequests.WithLabelValues(provider, status).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records audio bytes processed
func (m *Metrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// RecordEventPublished counts an event handed to the event bus
func RecordEventPublished(eventType string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	eventsPublished.WithLabelValues(eventType, status).Inc()
}

// RecordError records an error outside of a session scope
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
