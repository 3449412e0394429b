package session

import (
	"sync"
	"sync/atomic"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const AlertRefreshFailureSpike AlertType = "refresh_failure_spike"

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

// Stats is a snapshot of session counters.
type Stats struct {
	// RefreshCalls counts refresh requests that reached the transport.
	RefreshCalls     int64
	RefreshSucceeded int64
	RefreshRejected  int64
	RefreshFailed    int64
	// Waiters counts callers that joined an in-flight refresh instead of
	// starting one.
	Waiters int64
	// Retries counts requests resent after a 401.
	Retries int64
}

// metricsCollector keeps session counters and a sliding window of refresh
// failures for alerting.
type metricsCollector struct {
	refreshCalls     atomic.Int64
	refreshSucceeded atomic.Int64
	refreshRejected  atomic.Int64
	refreshFailed    atomic.Int64
	waiters          atomic.Int64
	retries          atomic.Int64

	mu               sync.Mutex
	failures         []time.Time
	failureWindow    time.Duration
	failureThreshold int
	alertFn          AlertFunc
}

const (
	defaultRefreshFailureWindow    = 5 * time.Minute
	defaultRefreshFailureThreshold = 5
)

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		failureWindow:    defaultRefreshFailureWindow,
		failureThreshold: defaultRefreshFailureThreshold,
		alertFn:          alertFn,
	}
}

// recordEvent updates counters for audit events that carry a metric.
func (m *metricsCollector) recordEvent(event AuditEvent) {
	switch event {
	case AuditRefreshSucceeded:
		m.refreshSucceeded.Add(1)
	case AuditRefreshRejected:
		m.refreshRejected.Add(1)
		m.recordFailure()
	case AuditRefreshFailed:
		m.refreshFailed.Add(1)
		m.recordFailure()
	}
}

func (m *metricsCollector) recordFailure() {
	if m.alertFn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.failures = append(m.failures, now)
	m.failures = trimWindow(m.failures, now, m.failureWindow)

	if len(m.failures) >= m.failureThreshold {
		m.alertFn(AlertEvent{
			Type:      AlertRefreshFailureSpike,
			Message:   "refresh failure rate exceeds threshold",
			Count:     len(m.failures),
			Threshold: m.failureThreshold,
			Timestamp: now,
		})
		// Reset to avoid repeated alerts within the same spike.
		m.failures = m.failures[:0]
	}
}

func (m *metricsCollector) snapshot() Stats {
	return Stats{
		RefreshCalls:     m.refreshCalls.Load(),
		RefreshSucceeded: m.refreshSucceeded.Load(),
		RefreshRejected:  m.refreshRejected.Load(),
		RefreshFailed:    m.refreshFailed.Load(),
		Waiters:          m.waiters.Load(),
		Retries:          m.retries.Load(),
	}
}

// trimWindow removes entries older than (now - window) from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	return times[start:]
}
