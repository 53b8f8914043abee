package driver

import (
	"strings"
	"time"

	"github.com/Station-Manager/wmbus/serial"
	"github.com/rs/zerolog"
)

// Dongles need a moment to answer a probe.
var (
	culProbeDelay   = 100 * time.Millisecond
	culVersionDelay = 200 * time.Millisecond
)

// DetectCUL reports whether a CUL stick answers on path. The stick replies
// to the unknown command "-" with a usage line starting with '?'.
func DetectCUL(m *serial.Manager, path string) bool {
	return detectCUL(m.Logger(), m.CreateTTY(path, culBaudRate.Int()))
}

func detectCUL(log zerolog.Logger, dev serial.Device) bool {
	if err := dev.Open(false); err != nil {
		log.Debug().Err(err).Str("device", dev.Name()).Msg("cul probe: could not open")
		return false
	}
	defer dev.Close()

	if err := dev.Send([]byte("-\r\n")); err != nil {
		log.Debug().Err(err).Str("device", dev.Name()).Msg("cul probe: send failed")
		return false
	}
	time.Sleep(culProbeDelay)
	reply := dev.Receive()
	if len(reply) == 0 || reply[0] != '?' {
		log.Debug().Str("device", dev.Name()).Str("reply", serial.SafeString(reply)).Msg("no cul answered")
		return false
	}

	// V returns the firmware version, e.g. "V 1.67 nanoCUL868".
	if err := dev.Send([]byte("V\n\r")); err == nil {
		time.Sleep(culVersionDelay)
		version := strings.TrimSpace(string(dev.Receive()))
		log.Info().Str("device", dev.Name()).Str("version", version).Msg("cul answered")
	}
	return true
}

// DetectRawTTY reports whether path can be opened at baudRate. A raw
// receiver does not answer anything, so that is all there is to check.
func DetectRawTTY(m *serial.Manager, path string, baudRate int) bool {
	dev := m.CreateTTY(path, baudRate)
	if err := dev.Open(false); err != nil {
		log := m.Logger()
		log.Debug().Err(err).Str("device", path).Msg("rawtty probe: could not open")
		return false
	}
	_ = dev.Close()
	return true
}
