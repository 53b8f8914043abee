package serial

import (
	"bytes"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// overrideSys swaps the raw read/write calls for the duration of a test.
func overrideSys(t *testing.T, read, write func(int, []byte) (int, error)) {
	t.Helper()
	origRead, origWrite := sysRead, sysWrite
	if read != nil {
		sysRead = read
	}
	if write != nil {
		sysWrite = write
	}
	t.Cleanup(func() {
		sysRead = origRead
		sysWrite = origWrite
	})
}

// fakeBase returns a device base with made-up handles, for use with overrideSys.
func fakeBase(t *testing.T, m *Manager) *deviceBase {
	t.Helper()
	b := newDeviceBase(m, "fake", KindTTY)
	b.fd.Store(1000)
	b.wfd.Store(1000)
	return b
}

func TestSend_EmptyIsNoop(t *testing.T) {
	m := newTestManager(t, Options{})
	b := fakeBase(t, m)

	calls := 0
	overrideSys(t, nil, func(int, []byte) (int, error) {
		calls++
		return 0, nil
	})
	require.NoError(t, b.send(nil))
	assert.Zero(t, calls)
}

func TestSend_RetriesInterruptedAndShortWrites(t *testing.T) {
	m := newTestManager(t, Options{})
	b := fakeBase(t, m)

	var out []byte
	calls := 0
	overrideSys(t, nil, func(_ int, p []byte) (int, error) {
		calls++
		switch calls {
		case 1:
			return -1, unix.EINTR
		case 2:
			return -1, unix.EAGAIN
		}
		n := min(2, len(p))
		out = append(out, p[:n]...)
		return n, nil
	})

	require.NoError(t, b.send([]byte("brc\n\r")))
	assert.Equal(t, []byte("brc\n\r"), out)
}

func TestSend_FatalError(t *testing.T) {
	m := newTestManager(t, Options{})
	b := fakeBase(t, m)

	overrideSys(t, nil, func(int, []byte) (int, error) { return -1, unix.EIO })

	err := b.send([]byte("X01\n\r"))
	require.ErrorIs(t, err, unix.EIO)
	assert.Equal(t, int64(1), m.Stats().WriteErrors)
}

func TestSend_ClosedDevice(t *testing.T) {
	m := newTestManager(t, Options{})
	dev := m.CreateTTY("/dev/ttyUSB0", 38400)
	assert.ErrorIs(t, dev.Send([]byte("V\n\r")), ErrClosed)
}

// Two goroutines sending through a writer that accepts a few bytes per call
// must still produce one message followed by the other.
func TestSend_ConcurrentCallersDoNotInterleave(t *testing.T) {
	m := newTestManager(t, Options{})
	b := fakeBase(t, m)

	var mu sync.Mutex
	var stream []byte
	overrideSys(t, nil, func(_ int, p []byte) (int, error) {
		n := min(3, len(p))
		mu.Lock()
		stream = append(stream, p[:n]...)
		mu.Unlock()
		time.Sleep(100 * time.Microsecond)
		return n, nil
	})

	a := bytes.Repeat([]byte("A"), 64)
	z := bytes.Repeat([]byte("Z"), 64)

	var wg sync.WaitGroup
	for _, msg := range [][]byte{a, z} {
		wg.Add(1)
		go func(msg []byte) {
			defer wg.Done()
			assert.NoError(t, b.send(msg))
		}(msg)
	}
	wg.Wait()

	az := append(append([]byte(nil), a...), z...)
	za := append(append([]byte(nil), z...), a...)
	if !bytes.Equal(stream, az) && !bytes.Equal(stream, za) {
		t.Fatalf("sends interleaved: %q", stream)
	}
}

func TestReceive_DrainsUntilWouldBlock(t *testing.T) {
	m := newTestManager(t, Options{})
	b := fakeBase(t, m)
	b.self = &FileDevice{deviceBase: b}

	chunks := [][]byte{[]byte("abc"), nil, []byte("def")}
	errs := []error{nil, unix.EINTR, nil}
	i := 0
	overrideSys(t, func(_ int, p []byte) (int, error) {
		if i >= len(chunks) {
			return -1, unix.EAGAIN
		}
		c, err := chunks[i], errs[i]
		i++
		if err != nil {
			return -1, err
		}
		return copy(p, c), nil
	}, nil)

	got := b.receive()
	assert.Equal(t, []byte("abcdef"), got)
	assert.Equal(t, 1000, b.Fd(), "would-block is not end of stream")
}

func TestReceive_ReadErrorIsRecordedOnce(t *testing.T) {
	m := newTestManager(t, Options{})
	b := fakeBase(t, m)

	calls := 0
	overrideSys(t, func(_ int, p []byte) (int, error) {
		calls++
		if calls == 1 {
			return copy(p, "abc"), nil
		}
		return -1, unix.EIO
	}, nil)

	assert.Equal(t, []byte("abc"), b.receive())

	s := m.Stats()
	assert.Equal(t, int64(1), s.TotalReads)
	assert.Equal(t, int64(3), s.BytesRead)
	assert.Equal(t, int64(1), s.ReadErrors)
	assert.Equal(t, int64(1), s.ConsecutiveFailures)
}

func TestReceive_BadDescriptorCloses(t *testing.T) {
	m := newTestManager(t, Options{})
	dev := m.CreateFile(writeTempFile(t, nil))
	require.NoError(t, dev.Open(true))
	require.Equal(t, 1, m.DeviceCount())

	overrideSys(t, func(int, []byte) (int, error) { return -1, unix.EBADF }, nil)

	assert.Empty(t, dev.Receive())
	assert.Equal(t, -1, dev.Fd())
	assert.Equal(t, 0, m.DeviceCount())
}

func TestSimulator_FillThenReceive(t *testing.T) {
	m := newTestManager(t, Options{})
	sim := m.CreateSimulator()

	data := []byte{0x1e, 0x44, 0x2d, 0x2c, 0x99, 0x87}
	sim.Fill(data)

	if diff := cmp.Diff(data, sim.Receive()); diff != "" {
		t.Fatalf("first receive mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, sim.Receive())
	assert.False(t, sim.Working())
	assert.Equal(t, -1, sim.Fd())
}

func TestSimulator_FillRunsListener(t *testing.T) {
	m := newTestManager(t, Options{})
	sim := m.CreateSimulator()

	var got []byte
	require.NoError(t, m.ListenTo(sim, func() { got = sim.Receive() }))
	sim.Fill([]byte("TMODE\r\n"))
	assert.Equal(t, []byte("TMODE\r\n"), got)
}

func TestCommand_OutputAndExit(t *testing.T) {
	m := newTestManager(t, Options{StartEventLoop: true})

	exited := make(chan struct{})
	dev := m.CreateCommand("printf '%s' \"$GREETING\"; cat >/dev/null", nil, []string{"GREETING=hello"}, func() { close(exited) })
	c := &collector{dev: dev}
	require.NoError(t, m.ListenTo(dev, c.onData))
	require.NoError(t, dev.Open(true))
	assert.NotZero(t, dev.Pid())
	assert.True(t, dev.Working())

	require.Eventually(t, func() bool { return string(c.bytes()) == "hello" }, 2*time.Second, 5*time.Millisecond)

	// cat keeps the command alive until Close kills it.
	require.NoError(t, dev.Close())
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("onExit was not called")
	}
	assert.False(t, dev.Working())
}

func TestCommand_WorkingUntilOutputDrained(t *testing.T) {
	m := newTestManager(t, Options{})

	exited := make(chan struct{})
	dev := m.CreateCommand("printf abc", nil, nil, func() { close(exited) })
	require.NoError(t, dev.Open(true))
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("command did not exit")
	}

	assert.True(t, dev.Working(), "output is still queued")
	assert.Equal(t, []byte("abc"), dev.Receive())
	assert.False(t, dev.Working())
	assert.Equal(t, 0, m.DeviceCount())
}

func TestInputPending_CountsQueuedBytes(t *testing.T) {
	var p [2]int
	require.NoError(t, unix.Pipe(p[:]))
	defer unix.Close(p[0])
	defer unix.Close(p[1])

	n, err := inputPending(p[0])
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = unix.Write(p[1], []byte("CMODE\r\n"))
	require.NoError(t, err)
	n, err = inputPending(p[0])
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestLockExclusive_SecondHolderIsRefused(t *testing.T) {
	path := writeTempFile(t, nil)

	fd1, err := unix.Open(path, unix.O_RDWR, 0)
	require.NoError(t, err)
	fd2, err := unix.Open(path, unix.O_RDWR, 0)
	require.NoError(t, err)
	defer unix.Close(fd2)

	require.NoError(t, lockExclusive(fd1))
	assert.ErrorIs(t, lockExclusive(fd2), ErrDeviceLocked)

	require.NoError(t, closeLocked(fd1))
	assert.NoError(t, lockExclusive(fd2))
}

func TestTTY_UnsupportedBaudRate(t *testing.T) {
	m := newTestManager(t, Options{})
	dev := m.CreateTTY("/dev/ttyUSB0", 12345)
	assert.ErrorIs(t, dev.Open(false), ErrUnsupportedBaudRate)
}

func TestTTY_MissingDevice(t *testing.T) {
	m := newTestManager(t, Options{})
	dev := m.CreateTTY("/dev/ttyDOESNOTEXIST0", 38400)

	err := dev.Open(false)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.False(t, dev.Working())
	assert.NoError(t, dev.Close())
}

func TestTTY_RegularFileIsNotACharacterDevice(t *testing.T) {
	m := newTestManager(t, Options{})
	dev := m.CreateTTY(writeTempFile(t, nil), 38400)

	err := dev.Open(false)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDeviceNotFound)
}

func TestSafeString(t *testing.T) {
	assert.Equal(t, "CMODE<0d><0a>", SafeString([]byte("CMODE\r\n")))
}

func TestMain(m *testing.M) {
	ttyOpenRetryDelay = 10 * time.Millisecond
	os.Exit(m.Run())
}
