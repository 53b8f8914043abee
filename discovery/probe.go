package discovery

import (
	"github.com/Station-Manager/wmbus/driver"
	"github.com/Station-Manager/wmbus/serial"
)

// Dongle types reported by Probe.
const (
	TypeCUL    = "cul"
	TypeRawTTY = "rawtty"
)

// ProbeResult is what was found on one port. Type is empty when nothing
// answered.
type ProbeResult struct {
	Path string
	Type string
	Baud int
}

// allow tests to replace the hardware probes
var (
	detectCUL    = driver.DetectCUL
	detectRawTTY = driver.DetectRawTTY
)

// Probe checks each path for a CUL stick first, then for a raw receiver at
// rawBaud. Paths are probed one after the other.
func Probe(m *serial.Manager, paths []string, rawBaud int) []ProbeResult {
	results := make([]ProbeResult, 0, len(paths))
	for _, p := range paths {
		r := ProbeResult{Path: p}
		switch {
		case detectCUL(m, p):
			r.Type, r.Baud = TypeCUL, serial.Baud38400.Int()
		case detectRawTTY(m, p, rawBaud):
			r.Type, r.Baud = TypeRawTTY, rawBaud
		}
		results = append(results, r)
	}
	return results
}
