// Package discovery finds serial ports that may carry a wM-Bus dongle and
// probes them with the driver detect functions.
package discovery

import (
	"fmt"
	"sort"

	bugserial "go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Port is one serial port reported by the operating system.
type Port struct {
	Path         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// USBID returns "vid:pid", or an empty string for non USB ports.
func (p Port) USBID() string {
	if !p.IsUSB {
		return ""
	}
	return p.VID + ":" + p.PID
}

// allow tests to override enumeration
var (
	detailedPorts = enumerator.GetDetailedPortsList
	plainPorts    = bugserial.GetPortsList
)

// ListPorts enumerates the serial ports, with USB details where the
// platform provides them.
func ListPorts() ([]Port, error) {
	var ports []Port
	details, err := detailedPorts()
	if err == nil {
		for _, d := range details {
			ports = append(ports, Port{
				Path:         d.Name,
				IsUSB:        d.IsUSB,
				VID:          d.VID,
				PID:          d.PID,
				SerialNumber: d.SerialNumber,
				Product:      d.Product,
			})
		}
	} else {
		names, perr := plainPorts()
		if perr != nil {
			return nil, fmt.Errorf("listing serial ports: %w", perr)
		}
		for _, n := range names {
			ports = append(ports, Port{Path: n})
		}
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Path < ports[j].Path })
	return ports, nil
}
