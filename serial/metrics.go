package serial

import (
	"sync/atomic"
	"time"
)

// Metrics tracks device and event loop statistics for one Manager.
type Metrics struct {
	// Device lifecycle
	DevicesOpened atomic.Int64 // Successful opens
	DevicesClosed atomic.Int64 // Closes that released a handle
	OpenFailures  atomic.Int64 // Failed opens, including absent devices
	LockConflicts atomic.Int64 // Opens refused because another process holds the lock
	Reopens       atomic.Int64 // Timer driven reopens
	ReopenErrors  atomic.Int64 // Reopens that lost the device

	// Read Operations
	ReadOperations atomic.Int64 // Receive calls
	BytesRead      atomic.Int64 // Total bytes read
	ReadErrors     atomic.Int64 // Fatal read errors
	EOFs           atomic.Int64 // End of stream on file/command sources
	LastReadTime   atomic.Int64 // Unix nano of the last non-empty read

	// Write Operations
	WriteOperations atomic.Int64 // Send calls with data
	BytesWritten    atomic.Int64 // Total bytes written
	WriteErrors     atomic.Int64 // Failed sends
	TotalWriteTime  atomic.Int64 // Total time spent writing (ns)
	MaxWriteTime    atomic.Int64 // Slowest send (ns)
	LastWriteTime   atomic.Int64 // Unix nano of the last send

	// Event loop
	LoopIterations atomic.Int64 // Readiness waits performed
	Callbacks      atomic.Int64 // Data-ready callbacks dispatched
	Wakeups        atomic.Int64 // Wakeups through the self-pipe

	// Buffer Pool Metrics
	BufferPoolHits   atomic.Int64 // Buffer pool cache hits
	BufferPoolMisses atomic.Int64 // Buffer pool cache misses

	// Health Indicators
	ConsecutiveFailures atomic.Int64 // I/O failures since the last success
	LastErrorTime       atomic.Int64 // Unix nano of the last failure
}

// HealthStatus represents the overall health of the manager.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDown      HealthStatus = "down"
)

// Snapshot is a point in time copy of Metrics plus derived values.
type Snapshot struct {
	Timestamp     time.Time
	Running       bool
	ActiveDevices int
	UptimeSeconds float64

	DevicesOpened int64
	DevicesClosed int64
	OpenFailures  int64
	LockConflicts int64
	Reopens       int64
	ReopenErrors  int64

	TotalReads   int64
	BytesRead    int64
	ReadErrors   int64
	EOFs         int64
	TotalWrites  int64
	BytesWritten int64
	WriteErrors  int64

	AverageWriteLatency time.Duration
	MaxWriteLatency     time.Duration

	LoopIterations int64
	Callbacks      int64
	Wakeups        int64

	BufferPoolHitRatio  float64
	BufferAllocations   int64   // read buffers the pool had to allocate
	ErrorRate           float64 // percent of I/O operations that failed
	ConsecutiveFailures int64

	HealthStatus HealthStatus
	HealthScore  float64
}

func (m *Metrics) recordRead(n int, failed bool) {
	m.ReadOperations.Add(1)
	if n > 0 {
		m.BytesRead.Add(int64(n))
		m.LastReadTime.Store(time.Now().UnixNano())
	}
	if failed {
		m.ReadErrors.Add(1)
		m.recordFailure()
		return
	}
	if n > 0 {
		m.ConsecutiveFailures.Store(0)
	}
}

func (m *Metrics) recordWrite(n int, elapsed time.Duration, err error) {
	m.WriteOperations.Add(1)
	m.BytesWritten.Add(int64(n))
	m.TotalWriteTime.Add(int64(elapsed))
	m.LastWriteTime.Store(time.Now().UnixNano())
	for {
		cur := m.MaxWriteTime.Load()
		if int64(elapsed) <= cur || m.MaxWriteTime.CompareAndSwap(cur, int64(elapsed)) {
			break
		}
	}
	if err != nil {
		m.WriteErrors.Add(1)
		m.recordFailure()
		return
	}
	m.ConsecutiveFailures.Store(0)
}

func (m *Metrics) recordFailure() {
	m.ConsecutiveFailures.Add(1)
	m.LastErrorTime.Store(time.Now().UnixNano())
}

func (m *Metrics) calculateAverageWriteLatency() time.Duration {
	writes := m.WriteOperations.Load()
	if writes == 0 {
		return 0
	}
	return time.Duration(m.TotalWriteTime.Load() / writes)
}

func (m *Metrics) calculateErrorRate() float64 {
	ops := m.ReadOperations.Load() + m.WriteOperations.Load()
	if ops == 0 {
		return 0.0
	}
	errs := m.ReadErrors.Load() + m.WriteErrors.Load()
	return float64(errs) / float64(ops) * 100
}

func (m *Metrics) calculateBufferPoolHitRatio() float64 {
	total := m.BufferPoolHits.Load() + m.BufferPoolMisses.Load()
	if total == 0 {
		return 100.0
	}
	return float64(m.BufferPoolHits.Load()) / float64(total) * 100
}

func assessHealthStatus(s *Snapshot) HealthStatus {
	if !s.Running {
		return HealthStatusDown
	}

	if s.ErrorRate > 50.0 || s.ConsecutiveFailures > 5 {
		return HealthStatusUnhealthy
	}

	if s.ErrorRate > 10.0 || s.ConsecutiveFailures > 3 || s.ReopenErrors > 0 || s.ActiveDevices == 0 {
		return HealthStatusDegraded
	}

	return HealthStatusHealthy
}

func calculateHealthScore(s *Snapshot) float64 {
	if !s.Running {
		return 0.0
	}

	score := 100.0
	score -= s.ErrorRate * 2
	score -= float64(s.ConsecutiveFailures) * 10
	if s.ActiveDevices == 0 {
		score -= 25
	}

	if score < 0 {
		score = 0
	}
	return score
}
