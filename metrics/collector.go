// Package metrics exports manager and telegram statistics to Prometheus.
package metrics

import (
	"net/http"

	"github.com/Station-Manager/wmbus/serial"
	"github.com/Station-Manager/wmbus/telegram"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wmbus"

type counterDesc struct {
	desc  *prometheus.Desc
	value func(s *serial.Snapshot) int64
}

func newCounter(name, help string, value func(s *serial.Snapshot) int64) counterDesc {
	return counterDesc{
		desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "serial", name), help, nil, nil),
		value: value,
	}
}

// Collector reads a Manager snapshot on every scrape.
type Collector struct {
	manager *serial.Manager
	dedup   *telegram.Dedup
	hub     *telegram.Hub

	counters    []counterDesc
	running     *prometheus.Desc
	active      *prometheus.Desc
	health      *prometheus.Desc
	poolHits    *prometheus.Desc
	writeMax    *prometheus.Desc
	duplicates  *prometheus.Desc
	wsClients   *prometheus.Desc
	healthNames []serial.HealthStatus
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector over m. dedup and hub may be nil.
func NewCollector(m *serial.Manager, dedup *telegram.Dedup, hub *telegram.Hub) *Collector {
	fq := func(sub, name string) string { return prometheus.BuildFQName(namespace, sub, name) }
	return &Collector{
		manager: m,
		dedup:   dedup,
		hub:     hub,
		counters: []counterDesc{
			newCounter("devices_opened_total", "Devices opened.", func(s *serial.Snapshot) int64 { return s.DevicesOpened }),
			newCounter("devices_closed_total", "Devices closed.", func(s *serial.Snapshot) int64 { return s.DevicesClosed }),
			newCounter("open_failures_total", "Failed device opens.", func(s *serial.Snapshot) int64 { return s.OpenFailures }),
			newCounter("lock_conflicts_total", "Opens refused because the device was locked.", func(s *serial.Snapshot) int64 { return s.LockConflicts }),
			newCounter("reopens_total", "Timer driven tty reopens.", func(s *serial.Snapshot) int64 { return s.Reopens }),
			newCounter("reopen_errors_total", "Reopens that lost the device.", func(s *serial.Snapshot) int64 { return s.ReopenErrors }),
			newCounter("reads_total", "Receive calls.", func(s *serial.Snapshot) int64 { return s.TotalReads }),
			newCounter("read_bytes_total", "Bytes received.", func(s *serial.Snapshot) int64 { return s.BytesRead }),
			newCounter("read_errors_total", "Fatal read errors.", func(s *serial.Snapshot) int64 { return s.ReadErrors }),
			newCounter("eofs_total", "End of stream on file and command sources.", func(s *serial.Snapshot) int64 { return s.EOFs }),
			newCounter("writes_total", "Send calls.", func(s *serial.Snapshot) int64 { return s.TotalWrites }),
			newCounter("written_bytes_total", "Bytes sent.", func(s *serial.Snapshot) int64 { return s.BytesWritten }),
			newCounter("write_errors_total", "Failed sends.", func(s *serial.Snapshot) int64 { return s.WriteErrors }),
			newCounter("loop_iterations_total", "Readiness waits performed.", func(s *serial.Snapshot) int64 { return s.LoopIterations }),
			newCounter("callbacks_total", "Data-ready callbacks dispatched.", func(s *serial.Snapshot) int64 { return s.Callbacks }),
			newCounter("read_buffer_allocations_total", "Read buffers allocated because the pool was empty.", func(s *serial.Snapshot) int64 { return s.BufferAllocations }),
			newCounter("wakeups_total", "Event loop wakeups through the self-pipe.", func(s *serial.Snapshot) int64 { return s.Wakeups }),
		},
		running:    prometheus.NewDesc(fq("serial", "running"), "1 while the event loop runs.", nil, nil),
		active:     prometheus.NewDesc(fq("serial", "active_devices"), "Open devices.", nil, nil),
		health:     prometheus.NewDesc(fq("serial", "health"), "1 for the current health status.", []string{"status"}, nil),
		poolHits:   prometheus.NewDesc(fq("serial", "buffer_pool_hit_ratio"), "Read buffer pool hit ratio.", nil, nil),
		writeMax:   prometheus.NewDesc(fq("serial", "write_latency_max_seconds"), "Slowest send.", nil, nil),
		duplicates: prometheus.NewDesc(fq("telegram", "duplicates_total"), "Telegrams dropped as duplicates.", nil, nil),
		wsClients:  prometheus.NewDesc(fq("telegram", "websocket_clients"), "Connected websocket clients.", nil, nil),
		healthNames: []serial.HealthStatus{
			serial.HealthStatusHealthy,
			serial.HealthStatusDegraded,
			serial.HealthStatusUnhealthy,
			serial.HealthStatusDown,
		},
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
	ch <- c.running
	ch <- c.active
	ch <- c.health
	ch <- c.poolHits
	ch <- c.writeMax
	if c.dedup != nil {
		ch <- c.duplicates
	}
	if c.hub != nil {
		ch <- c.wsClients
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.manager.Stats()
	for _, cd := range c.counters {
		ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, float64(cd.value(&s)))
	}

	running := 0.0
	if s.Running {
		running = 1
	}
	ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, running)
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(s.ActiveDevices))
	for _, name := range c.healthNames {
		v := 0.0
		if s.HealthStatus == name {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.health, prometheus.GaugeValue, v, string(name))
	}
	ch <- prometheus.MustNewConstMetric(c.poolHits, prometheus.GaugeValue, s.BufferPoolHitRatio)
	ch <- prometheus.MustNewConstMetric(c.writeMax, prometheus.GaugeValue, s.MaxWriteLatency.Seconds())

	if c.dedup != nil {
		ch <- prometheus.MustNewConstMetric(c.duplicates, prometheus.CounterValue, float64(c.dedup.Dropped()))
	}
	if c.hub != nil {
		ch <- prometheus.MustNewConstMetric(c.wsClients, prometheus.GaugeValue, float64(c.hub.Clients()))
	}
}

// NewRegistry returns a registry with the Go runtime collectors and cs.
func NewRegistry(cs ...prometheus.Collector) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
