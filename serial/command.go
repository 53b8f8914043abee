package serial

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// shellPath runs command devices.
var shellPath = "/bin/sh"

// CommandDevice talks to a shell command over its stdin and stdout.
type CommandDevice struct {
	*deviceBase
	command string
	args    []string
	envs    []string
	onExit  func()

	cmd    *exec.Cmd
	exited atomic.Bool
}

var _ Device = (*CommandDevice)(nil)

// Command returns the shell command line.
func (d *CommandDevice) Command() string { return d.command }

// Pid returns the process id of the running command, or 0.
func (d *CommandDevice) Pid() int {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if d.cmd == nil || d.cmd.Process == nil {
		return 0
	}
	return d.cmd.Process.Pid
}

// Open starts the command with its stdin and stdout connected to the device.
func (d *CommandDevice) Open(failHard bool) error {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	if d.Fd() >= 0 {
		return nil
	}
	if !d.manager.IsRunning() {
		return d.openFailed(failHard, fmt.Errorf("opening %s: %w", d.name, ErrManagerStopped))
	}

	// out carries the child's stdout to us, in carries our writes to its stdin.
	var out, in [2]int
	if err := unix.Pipe(out[:]); err != nil {
		return d.openFailed(failHard, fmt.Errorf("pipe: %w", err))
	}
	if err := unix.Pipe(in[:]); err != nil {
		_ = unix.Close(out[0])
		_ = unix.Close(out[1])
		return d.openFailed(failHard, fmt.Errorf("pipe: %w", err))
	}
	for _, fd := range []int{out[0], in[1]} {
		unix.CloseOnExec(fd)
		_ = unix.SetNonblock(fd, true)
	}

	childStdout := os.NewFile(uintptr(out[1]), "stdout")
	childStdin := os.NewFile(uintptr(in[0]), "stdin")

	cmd := exec.Command(shellPath, append([]string{"-c", d.command}, d.args...)...)
	cmd.Env = append(os.Environ(), d.envs...)
	cmd.Stdin = childStdin
	cmd.Stdout = childStdout

	err := cmd.Start()
	_ = childStdout.Close()
	_ = childStdin.Close()
	if err != nil {
		_ = unix.Close(out[0])
		_ = unix.Close(in[1])
		return d.openFailed(failHard, fmt.Errorf("starting %q: %w", d.command, err))
	}

	d.cmd = cmd
	d.exited.Store(false)
	d.fd.Store(int32(out[0]))
	d.wfd.Store(int32(in[1]))
	d.manager.metrics.DevicesOpened.Add(1)
	d.manager.opened(d)
	d.log.Info().Str("command", d.command).Int("pid", cmd.Process.Pid).Msg("started")

	go d.wait(cmd)
	return nil
}

func (d *CommandDevice) wait(cmd *exec.Cmd) {
	err := cmd.Wait()
	d.exited.Store(true)

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		d.log.Info().Msg("command exited")
	case errors.As(err, &exitErr):
		d.log.Info().Int("code", exitErr.ExitCode()).Msg("command exited")
	default:
		d.log.Warn().Err(err).Msg("waiting for command")
	}

	if d.onExit != nil {
		d.onExit()
	}
	d.manager.wake()
}

// Close kills the command if it is still running and closes both pipes.
func (d *CommandDevice) Close() error {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	if d.Fd() >= 0 && d.cmd != nil && d.cmd.Process != nil && !d.exited.Load() {
		if err := d.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			d.log.Warn().Err(err).Msg("killing command")
		}
	}
	released, err := d.release(unix.Close)
	if released {
		d.log.Info().Msg("closed")
	}
	return err
}

func (d *CommandDevice) Send(data []byte) error { return d.send(data) }

func (d *CommandDevice) Receive() []byte { return d.receive() }

// Working is false once the command has exited and its remaining output
// has been read.
func (d *CommandDevice) Working() bool {
	fd := d.Fd()
	if fd < 0 {
		return false
	}
	if !d.exited.Load() {
		return true
	}
	pending, err := inputPending(fd)
	return err == nil && pending > 0
}
