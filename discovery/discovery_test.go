package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Station-Manager/wmbus/serial"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
)

func TestListPorts_Detailed(t *testing.T) {
	defer func(d func() ([]*enumerator.PortDetails, error)) { detailedPorts = d }(detailedPorts)
	detailedPorts = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyUSB1", IsUSB: true, VID: "0403", PID: "6001", Product: "FT232R"},
			{Name: "/dev/ttyACM0", IsUSB: true, VID: "03eb", PID: "204b", Product: "CUL868"},
			{Name: "/dev/ttyS0"},
		}, nil
	}

	ports, err := ListPorts()
	require.NoError(t, err)
	require.Len(t, ports, 3)
	assert.Equal(t, "/dev/ttyACM0", ports[0].Path)
	assert.Equal(t, "03eb:204b", ports[0].USBID())
	assert.Equal(t, "", ports[1].USBID())
}

func TestListPorts_FallsBackToNames(t *testing.T) {
	defer func(d func() ([]*enumerator.PortDetails, error), p func() ([]string, error)) {
		detailedPorts, plainPorts = d, p
	}(detailedPorts, plainPorts)
	detailedPorts = func() ([]*enumerator.PortDetails, error) { return nil, errors.New("no sysfs") }
	plainPorts = func() ([]string, error) { return []string{"/dev/ttyUSB0"}, nil }

	ports, err := ListPorts()
	require.NoError(t, err)
	assert.Equal(t, []Port{{Path: "/dev/ttyUSB0"}}, ports)

	plainPorts = func() ([]string, error) { return nil, errors.New("boom") }
	_, err = ListPorts()
	assert.Error(t, err)
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := Watch(ctx, zerolog.Nop(), dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notatty"), nil, 0o600))
	node := filepath.Join(dir, "ttyUSB7")
	require.NoError(t, os.WriteFile(node, nil, 0o600))

	next := func() Event {
		select {
		case ev := <-events:
			return ev
		case <-time.After(3 * time.Second):
			t.Fatal("no hotplug event")
			return Event{}
		}
	}
	assert.Equal(t, Event{Path: node, Added: true}, next())

	require.NoError(t, os.Remove(node))
	assert.Equal(t, Event{Path: node, Added: false}, next())

	cancel()
	select {
	case _, ok := <-events:
		assert.False(t, ok, "channel closes after cancel")
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatch_MissingDir(t *testing.T) {
	_, err := Watch(context.Background(), zerolog.Nop(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestProbe(t *testing.T) {
	defer func(c func(*serial.Manager, string) bool, r func(*serial.Manager, string, int) bool) {
		detectCUL, detectRawTTY = c, r
	}(detectCUL, detectRawTTY)
	detectCUL = func(_ *serial.Manager, p string) bool { return p == "/dev/ttyACM0" }
	detectRawTTY = func(_ *serial.Manager, p string, _ int) bool { return p == "/dev/ttyUSB0" }

	m, err := serial.NewManager(serial.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer m.Close()

	got := Probe(m, []string{"/dev/ttyACM0", "/dev/ttyUSB0", "/dev/ttyS0"}, 9600)
	assert.Equal(t, []ProbeResult{
		{Path: "/dev/ttyACM0", Type: TypeCUL, Baud: 38400},
		{Path: "/dev/ttyUSB0", Type: TypeRawTTY, Baud: 9600},
		{Path: "/dev/ttyS0"},
	}, got)
}

func TestProbe_MissingDevices(t *testing.T) {
	m, err := serial.NewManager(serial.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer m.Close()

	got := Probe(m, []string{"/dev/ttyWMBUSMISSING0"}, 9600)
	assert.Equal(t, []ProbeResult{{Path: "/dev/ttyWMBUSMISSING0"}}, got)
}
