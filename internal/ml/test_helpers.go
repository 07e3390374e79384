package ml

import "sync"

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu         sync.Mutex
	calls      int
	failures   int
	timeouts   int
	latencySum float64
}

func (m *MockMetrics) ScriptCallsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
}

func (m *MockMetrics) ScriptFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) ScriptTimeoutsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts++
}

func (m *MockMetrics) ScriptLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

// Counts returns calls, failures and timeouts recorded so far.
func (m *MockMetrics) Counts() (calls, failures, timeouts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, m.failures, m.timeouts
}
