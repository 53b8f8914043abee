package serial

import (
	"errors"
	"testing"
	"time"
)

// ----- Recording -----

func TestMetrics_RecordWriteTracksMaximum(t *testing.T) {
	var m Metrics
	m.recordWrite(3, 2*time.Millisecond, nil)
	m.recordWrite(5, 7*time.Millisecond, nil)
	m.recordWrite(1, time.Millisecond, nil)

	if got := m.MaxWriteTime.Load(); got != int64(7*time.Millisecond) {
		t.Fatalf("Expected max write time 7ms, got %v", time.Duration(got))
	}
	if got := m.BytesWritten.Load(); got != 9 {
		t.Fatalf("Expected 9 bytes written, got %d", got)
	}
	if got := m.calculateAverageWriteLatency(); got != 10*time.Millisecond/3 {
		t.Fatalf("Unexpected average write latency %v", got)
	}
}

func TestMetrics_FailuresResetOnSuccess(t *testing.T) {
	var m Metrics
	m.recordWrite(0, 0, errors.New("EIO"))
	m.recordRead(0, true)
	if got := m.ConsecutiveFailures.Load(); got != 2 {
		t.Fatalf("Expected 2 consecutive failures, got %d", got)
	}
	if m.LastErrorTime.Load() == 0 {
		t.Fatal("Last error time should be set")
	}

	// An empty read is not a success.
	m.recordRead(0, false)
	if got := m.ConsecutiveFailures.Load(); got != 2 {
		t.Fatalf("Expected failures to survive an empty read, got %d", got)
	}

	m.recordRead(4, false)
	if got := m.ConsecutiveFailures.Load(); got != 0 {
		t.Fatalf("Expected failures to reset, got %d", got)
	}
	if got := m.calculateErrorRate(); got != 50.0 {
		t.Fatalf("Expected 50%% error rate, got %.1f", got)
	}
}

func TestMetrics_EmptyRatios(t *testing.T) {
	var m Metrics
	if got := m.calculateErrorRate(); got != 0 {
		t.Fatalf("Expected 0 error rate without operations, got %f", got)
	}
	if got := m.calculateBufferPoolHitRatio(); got != 100 {
		t.Fatalf("Expected 100%% hit ratio without lookups, got %f", got)
	}
}

// ----- Health -----

func TestMetrics_HealthStatus(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want HealthStatus
	}{
		{"stopped", Snapshot{}, HealthStatusDown},
		{"healthy", Snapshot{Running: true, ActiveDevices: 1}, HealthStatusHealthy},
		{"no devices", Snapshot{Running: true}, HealthStatusDegraded},
		{"reopen lost a device", Snapshot{Running: true, ActiveDevices: 2, ReopenErrors: 1}, HealthStatusDegraded},
		{"some errors", Snapshot{Running: true, ActiveDevices: 1, ErrorRate: 20}, HealthStatusDegraded},
		{"many errors", Snapshot{Running: true, ActiveDevices: 1, ErrorRate: 60}, HealthStatusUnhealthy},
		{"failing repeatedly", Snapshot{Running: true, ActiveDevices: 1, ConsecutiveFailures: 6}, HealthStatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := assessHealthStatus(&tt.snap); got != tt.want {
				t.Fatalf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestMetrics_HealthScore(t *testing.T) {
	if got := calculateHealthScore(&Snapshot{}); got != 0 {
		t.Fatalf("Expected 0 for a stopped manager, got %f", got)
	}
	if got := calculateHealthScore(&Snapshot{Running: true, ActiveDevices: 1}); got != 100 {
		t.Fatalf("Expected 100, got %f", got)
	}
	if got := calculateHealthScore(&Snapshot{Running: true, ErrorRate: 10, ConsecutiveFailures: 2}); got != 35 {
		t.Fatalf("Expected 35, got %f", got)
	}
	if got := calculateHealthScore(&Snapshot{Running: true, ErrorRate: 90}); got != 0 {
		t.Fatalf("Expected score clamped to 0, got %f", got)
	}
}
