package serial

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// selectFdLimit is FD_SETSIZE, the first handle select cannot watch.
const selectFdLimit = 1024

// eventLoop is the single goroutine waiting on all devices. Any device that
// stops working ends the whole session.
func (m *Manager) eventLoop() {
	defer close(m.loopDone)

	select {
	case <-m.gate:
	case <-m.done:
		return
	}
	m.log.Debug().Msg("event loop started")
	defer m.log.Debug().Msg("event loop stopped")

	for m.IsRunning() {
		devices := m.snapshot()
		for _, d := range devices {
			if !d.Working() {
				m.log.Info().Str("device", d.Name()).Msg("device stopped working")
				m.Stop()
				return
			}
		}

		timeout := m.loopTimeout
		if exitAfter := m.exitAfter.Load(); exitAfter > 0 {
			remaining := exitAfter - time.Since(m.startTime)
			if remaining <= 0 {
				m.log.Info().Dur("exit_after", exitAfter).Msg("exit deadline reached")
				m.Stop()
				return
			}
			if remaining < timeout {
				timeout = remaining
			}
		}

		for _, d := range devices {
			d.CheckIfShouldReopen()
		}

		var rset unix.FdSet
		rset.Zero()
		rset.Set(m.wakeR)
		nfd := m.wakeR

		m.devicesMu.Lock()
		if len(m.devices) == 0 && m.expectWork.Load() {
			m.devicesMu.Unlock()
			m.log.Debug().Msg("no devices to wait for")
			m.Stop()
			return
		}
		for _, d := range m.devices {
			fd := d.Fd()
			if fd < 0 || !d.(member).base().listening() {
				continue
			}
			if fd >= selectFdLimit {
				if d.(member).base().fdWarned.CompareAndSwap(false, true) {
					m.log.Error().Str("device", d.Name()).Int("fd", fd).Msg("handle too large to wait on, device is ignored")
				}
				continue
			}
			rset.Set(fd)
		}
		if bound := min(m.maxFd, selectFdLimit-1); bound > nfd {
			nfd = bound
		}
		m.devicesMu.Unlock()

		m.metrics.LoopIterations.Add(1)
		tv := unix.NsecToTimeval(timeout.Nanoseconds())
		n, err := unix.Select(nfd+1, &rset, nil, nil, &tv)
		if err != nil {
			// EBADF means a device closed while we were preparing the wait,
			// the next round sees the updated set.
			if !errors.Is(err, unix.EINTR) && !errors.Is(err, unix.EBADF) {
				m.log.Warn().Err(err).Msg("select failed")
				time.Sleep(10 * time.Millisecond)
			}
			continue
		}
		if !m.IsRunning() {
			break
		}

		if n > 0 {
			if rset.IsSet(m.wakeR) {
				m.metrics.Wakeups.Add(1)
				m.drainWake()
			}

			var ready []Device
			m.devicesMu.Lock()
			for _, d := range m.devices {
				if fd := d.Fd(); fd >= 0 && fd < selectFdLimit && rset.IsSet(fd) {
					ready = append(ready, d)
				}
			}
			m.devicesMu.Unlock()

			// Callbacks run without the device lock so they may open or
			// close devices themselves.
			for _, d := range ready {
				if cb := d.(member).base().callback(); cb != nil {
					m.metrics.Callbacks.Add(1)
					cb()
				}
			}
		}

		closedAny := false
		for _, d := range m.snapshot() {
			if !d.Working() {
				m.log.Info().Str("device", d.Name()).Msg("closing device that stopped working")
				_ = d.Close()
				closedAny = true
			}
		}
		if closedAny {
			m.Stop()
			return
		}
	}
}
