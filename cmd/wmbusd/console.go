package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/Station-Manager/wmbus/serial"
	"github.com/spf13/cobra"
)

func newConsoleCmd() *cobra.Command {
	var device string
	var baud int
	var level string
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Talk to a dongle: print what it sends, send lines typed on stdin",
		Long: "Opens the device, prints everything received, and sends each line read " +
			"from stdin terminated by \\n\\r, the way culfw expects commands.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, closer, err := cliLogger(level)
			if err != nil {
				return err
			}
			defer closer.Close()

			m, err := serial.NewManager(serial.Options{Logger: log, StartEventLoop: true})
			if err != nil {
				return err
			}
			defer m.Close()

			dev := m.CreateTTY(device, baud)
			return console(m, dev, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&device, "device", "d", "/dev/ttyACM0", "serial device path")
	cmd.Flags().IntVarP(&baud, "baud", "b", serial.Baud38400.Int(), "baud rate")
	cmd.Flags().StringVar(&level, "log-level", "warn", "log level")
	return cmd
}

// console copies dev output to out and lines from in to dev until in ends
// or the device goes away.
func console(m *serial.Manager, dev serial.Device, in io.Reader, out, prompt io.Writer) error {
	if err := m.ListenTo(dev, func() {
		if data := dev.Receive(); len(data) > 0 {
			_, _ = out.Write(data)
		}
	}); err != nil {
		return err
	}
	if err := dev.Open(true); err != nil {
		return err
	}
	defer dev.Close()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Fprintln(prompt, "Type commands, Ctrl+D to exit.")
	for {
		select {
		case <-m.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if err := dev.Send([]byte(line + "\n\r")); err != nil {
				return err
			}
		}
	}
}
