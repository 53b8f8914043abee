package serial

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// Manager owns a set of open devices and runs the single event loop that
// waits for any of them to become readable.
type Manager struct {
	log      zerolog.Logger
	metrics  *Metrics
	readPool *BufferPool

	loopTimeout      time.Duration
	stopPollInterval time.Duration

	devicesMu sync.Mutex
	devices   []Device
	maxFd     int

	running     atomic.Bool
	expectWork  atomic.Bool
	startTime   time.Time
	exitAfter   atomic.Duration
	reopenAfter atomic.Duration

	// wakeR/wakeW form the self-pipe that interrupts a readiness wait.
	wakeMu     sync.RWMutex
	wakeR      int
	wakeW      int
	wakeClosed bool

	gate      chan struct{}
	gateOnce  sync.Once
	done      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
}

// NewManager creates a manager and starts its event loop goroutine. The loop
// stays parked until StartEventLoop unless opts.StartEventLoop is set.
func NewManager(opts Options) (*Manager, error) {
	if err := ValidateOptions(&opts); err != nil {
		return nil, fmt.Errorf("invalid manager options: %w", err)
	}
	opts.applyDefaults()

	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, fmt.Errorf("creating wake pipe: %w", err)
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(p[0])
			_ = unix.Close(p[1])
			return nil, fmt.Errorf("creating wake pipe: %w", err)
		}
	}

	metrics := &Metrics{}
	m := &Manager{
		log:              opts.Logger.With().Str("component", "serial").Logger(),
		metrics:          metrics,
		readPool:         NewBufferPool(ReadChunkSize, metrics),
		loopTimeout:      opts.LoopTimeout,
		stopPollInterval: opts.StopPollInterval,
		maxFd:            noFd,
		startTime:        time.Now(),
		wakeR:            p[0],
		wakeW:            p[1],
		gate:             make(chan struct{}),
		done:             make(chan struct{}),
		loopDone:         make(chan struct{}),
	}
	m.running.Store(true)
	m.exitAfter.Store(opts.ExitAfter)
	m.reopenAfter.Store(opts.ReopenAfter)

	go m.eventLoop()
	if opts.StartEventLoop {
		m.StartEventLoop()
	}
	return m, nil
}

// Logger returns the manager's logger, for drivers built on top of it.
func (m *Manager) Logger() zerolog.Logger { return m.log }

// CreateTTY returns an unopened serial port device for path.
func (m *Manager) CreateTTY(path string, baudRate int) *TTYDevice {
	d := &TTYDevice{path: path, baudRate: baudRate}
	d.deviceBase = newDeviceBase(m, path, KindTTY)
	d.self = d
	d.ascii = true
	return d
}

// CreateCommand returns a device running "/bin/sh -c command args..." with
// envs appended to the environment. onExit, when set, runs once the command
// has terminated.
func (m *Manager) CreateCommand(command string, args, envs []string, onExit func()) *CommandDevice {
	d := &CommandDevice{command: command, args: args, envs: envs, onExit: onExit}
	d.deviceBase = newDeviceBase(m, command, KindCommand)
	d.self = d
	d.eofCloses = true
	d.ascii = true
	return d
}

// CreateFile returns a device reading path, or the process stdin when path
// is StdinPath.
func (m *Manager) CreateFile(path string) *FileDevice {
	d := &FileDevice{path: path}
	d.deviceBase = newDeviceBase(m, path, KindFile)
	d.self = d
	d.eofCloses = true
	return d
}

// CreateSimulator returns a device fed through Fill instead of a handle.
func (m *Manager) CreateSimulator() *SimulatorDevice {
	d := &SimulatorDevice{}
	d.deviceBase = newDeviceBase(m, "simulator", KindSimulator)
	d.self = d
	return d
}

// ListenTo registers cb as the data-ready callback of dev. Each device
// accepts exactly one listener, and only devices created by m are accepted.
func (m *Manager) ListenTo(dev Device, cb func()) error {
	mb, ok := dev.(member)
	if !ok || mb.base().manager != m {
		m.log.Error().Str("device", deviceName(dev)).Msg("listen on a device from another manager")
		return ErrForeignDevice
	}
	if cb == nil {
		return errors.New("serial: nil listener")
	}
	if err := mb.base().setCallback(cb); err != nil {
		return fmt.Errorf("listening to %s: %w", dev.Name(), err)
	}
	m.wake()
	return nil
}

func deviceName(dev Device) string {
	if dev == nil {
		return ErrMsgNilDevice
	}
	return dev.Name()
}

func (m *Manager) opened(dev Device) {
	if dev.Fd() < 0 {
		return
	}
	m.devicesMu.Lock()
	found := false
	for _, d := range m.devices {
		if d == dev {
			found = true
			break
		}
	}
	if !found {
		m.devices = append(m.devices, dev)
	}
	m.recomputeMaxFdLocked()
	m.devicesMu.Unlock()
	m.wake()
}

func (m *Manager) closed(dev Device) {
	m.devicesMu.Lock()
	for i, d := range m.devices {
		if d == dev {
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			break
		}
	}
	m.recomputeMaxFdLocked()
	empty := len(m.devices) == 0
	m.devicesMu.Unlock()

	if empty && m.expectWork.Load() {
		m.log.Debug().Msg("no devices left")
		m.Stop()
		return
	}
	m.wake()
}

// refresh recomputes the wait bound after a device changed its handle.
func (m *Manager) refresh() {
	m.devicesMu.Lock()
	m.recomputeMaxFdLocked()
	m.devicesMu.Unlock()
	m.wake()
}

func (m *Manager) recomputeMaxFdLocked() {
	m.maxFd = noFd
	for _, d := range m.devices {
		if fd := d.Fd(); fd > m.maxFd {
			m.maxFd = fd
		}
	}
}

func (m *Manager) snapshot() []Device {
	m.devicesMu.Lock()
	defer m.devicesMu.Unlock()
	out := make([]Device, len(m.devices))
	copy(out, m.devices)
	return out
}

// DeviceCount returns the number of open devices.
func (m *Manager) DeviceCount() int {
	m.devicesMu.Lock()
	defer m.devicesMu.Unlock()
	return len(m.devices)
}

// Devices returns the names of the open devices.
func (m *Manager) Devices() []string {
	devs := m.snapshot()
	names := make([]string, 0, len(devs))
	for _, d := range devs {
		names = append(names, d.Name())
	}
	return names
}

// Stop makes the event loop exit and releases WaitForStop. Only the first
// call has any effect.
func (m *Manager) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	m.log.Debug().Msg("stopping")
	close(m.done)
	m.wake()
}

// StartEventLoop releases the event loop from its parked state.
func (m *Manager) StartEventLoop() {
	m.gateOnce.Do(func() { close(m.gate) })
}

// IsRunning reports whether Stop has not been called yet.
func (m *Manager) IsRunning() bool { return m.running.Load() }

// Done is closed when the manager stops.
func (m *Manager) Done() <-chan struct{} { return m.done }

// SetReopenAfter changes the reopen interval of every TTY device.
func (m *Manager) SetReopenAfter(d time.Duration) { m.reopenAfter.Store(d) }

// ReopenAfter returns the current TTY reopen interval, zero when disabled.
func (m *Manager) ReopenAfter() time.Duration { return m.reopenAfter.Load() }

// SetExitAfter sets a deadline, counted from construction, after which the
// manager stops by itself.
func (m *Manager) SetExitAfter(d time.Duration) {
	m.exitAfter.Store(d)
	m.wake()
}

// WaitForStop blocks until no devices are left or the manager stopped, then
// waits for the event loop to exit and closes any remaining device. From
// here on losing the last device stops the manager.
func (m *Manager) WaitForStop() {
	m.expectWork.Store(true)

	ticker := time.NewTicker(m.stopPollInterval)
	defer ticker.Stop()
	for m.IsRunning() && m.DeviceCount() > 0 {
		select {
		case <-m.done:
		case <-ticker.C:
		}
	}

	m.Stop()
	<-m.loopDone
	m.closeAll()
}

func (m *Manager) closeAll() {
	for _, d := range m.snapshot() {
		if err := d.Close(); err != nil {
			m.log.Warn().Err(err).Str("device", d.Name()).Msg("closing device")
		}
	}
}

// Close shuts the manager down: all devices are closed, the loop is stopped
// and joined and the wake pipe is released.
func (m *Manager) Close() error {
	m.closeAll()
	m.Stop()
	<-m.loopDone

	var err error
	m.closeOnce.Do(func() {
		m.wakeMu.Lock()
		defer m.wakeMu.Unlock()
		m.wakeClosed = true
		err = errors.Join(unix.Close(m.wakeR), unix.Close(m.wakeW))
	})
	return err
}

func (m *Manager) wake() {
	m.wakeMu.RLock()
	defer m.wakeMu.RUnlock()
	if m.wakeClosed {
		return
	}
	_, err := unix.Write(m.wakeW, []byte{0})
	if err != nil && !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EBADF) {
		m.log.Debug().Err(err).Msg("wake")
	}
}

func (m *Manager) drainWake() {
	var buf [64]byte
	for {
		n, err := unix.Read(m.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// Stats returns a metrics snapshot with health assessment.
func (m *Manager) Stats() Snapshot {
	s := Snapshot{
		Timestamp:     time.Now(),
		Running:       m.IsRunning(),
		ActiveDevices: m.DeviceCount(),
		UptimeSeconds: time.Since(m.startTime).Seconds(),

		DevicesOpened: m.metrics.DevicesOpened.Load(),
		DevicesClosed: m.metrics.DevicesClosed.Load(),
		OpenFailures:  m.metrics.OpenFailures.Load(),
		LockConflicts: m.metrics.LockConflicts.Load(),
		Reopens:       m.metrics.Reopens.Load(),
		ReopenErrors:  m.metrics.ReopenErrors.Load(),

		TotalReads:   m.metrics.ReadOperations.Load(),
		BytesRead:    m.metrics.BytesRead.Load(),
		ReadErrors:   m.metrics.ReadErrors.Load(),
		EOFs:         m.metrics.EOFs.Load(),
		TotalWrites:  m.metrics.WriteOperations.Load(),
		BytesWritten: m.metrics.BytesWritten.Load(),
		WriteErrors:  m.metrics.WriteErrors.Load(),

		AverageWriteLatency: m.metrics.calculateAverageWriteLatency(),
		MaxWriteLatency:     time.Duration(m.metrics.MaxWriteTime.Load()),

		LoopIterations: m.metrics.LoopIterations.Load(),
		Callbacks:      m.metrics.Callbacks.Load(),
		Wakeups:        m.metrics.Wakeups.Load(),

		BufferPoolHitRatio:  m.metrics.calculateBufferPoolHitRatio(),
		BufferAllocations:   m.readPool.Stats().Creates,
		ErrorRate:           m.metrics.calculateErrorRate(),
		ConsecutiveFailures: m.metrics.ConsecutiveFailures.Load(),
	}
	s.HealthStatus = assessHealthStatus(&s)
	s.HealthScore = calculateHealthScore(&s)
	return s
}
