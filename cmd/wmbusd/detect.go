package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Station-Manager/wmbus/discovery"
	"github.com/Station-Manager/wmbus/internal/config"
	"github.com/Station-Manager/wmbus/internal/logging"
	"github.com/Station-Manager/wmbus/serial"
	"github.com/fatih/color"
	"github.com/rodaine/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func cliLogger(level string) (zerolog.Logger, io.Closer, error) {
	return logging.New(config.Log{Level: level, Format: "auto"}, os.Stderr)
}

func newDetectCmd() *cobra.Command {
	var rawBaud int
	var level string
	cmd := &cobra.Command{
		Use:   "detect [path...]",
		Short: "Probe serial ports for wM-Bus dongles",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, closer, err := cliLogger(level)
			if err != nil {
				return err
			}
			defer closer.Close()

			paths := args
			if len(paths) == 0 {
				ports, err := discovery.ListPorts()
				if err != nil {
					return err
				}
				for _, p := range ports {
					paths = append(paths, p.Path)
				}
			}
			if len(paths) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No serial ports found")
				return nil
			}

			m, err := serial.NewManager(serial.Options{Logger: log})
			if err != nil {
				return err
			}
			defer m.Close()

			printProbeResults(cmd.OutOrStdout(), discovery.Probe(m, paths, rawBaud))
			return nil
		},
	}
	cmd.Flags().IntVar(&rawBaud, "baud", config.DefaultRawTTYBaud, "baud rate tried for raw receivers")
	cmd.Flags().StringVar(&level, "log-level", "warn", "log level")
	return cmd
}

func newTable(w io.Writer, columns ...interface{}) table.Table {
	header := color.New(color.FgGreen, color.Underline).SprintfFunc()
	return table.New(columns...).WithWriter(w).WithHeaderFormatter(header)
}

func printProbeResults(w io.Writer, results []discovery.ProbeResult) {
	found := color.New(color.FgGreen).SprintFunc()
	tbl := newTable(w, "Path", "Dongle", "Baud")
	for _, r := range results {
		if r.Type == "" {
			tbl.AddRow(r.Path, "-", "-")
			continue
		}
		tbl.AddRow(r.Path, found(r.Type), r.Baud)
	}
	tbl.Print()
}

func newPortsCmd() *cobra.Command {
	var watch bool
	var level string
	cmd := &cobra.Command{
		Use:   "ports",
		Short: "List serial ports, optionally watching for hotplug",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := discovery.ListPorts()
			if err != nil {
				return err
			}
			printPorts(cmd.OutOrStdout(), ports)
			if !watch {
				return nil
			}

			log, closer, err := cliLogger(level)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watchPorts(ctx, cmd.OutOrStdout(), log, discovery.DevDir)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep running and report ports as they come and go")
	cmd.Flags().StringVar(&level, "log-level", "warn", "log level")
	return cmd
}

func printPorts(w io.Writer, ports []discovery.Port) {
	if len(ports) == 0 {
		fmt.Fprintln(w, "No serial ports found")
		return
	}
	tbl := newTable(w, "Path", "USB ID", "Serial", "Product")
	for _, p := range ports {
		tbl.AddRow(p.Path, p.USBID(), p.SerialNumber, p.Product)
	}
	tbl.Print()
}

func watchPorts(ctx context.Context, w io.Writer, log zerolog.Logger, dir string) error {
	events, err := discovery.Watch(ctx, log, dir)
	if err != nil {
		return err
	}
	added := color.New(color.FgGreen).SprintFunc()
	removed := color.New(color.FgRed).SprintFunc()
	for ev := range events {
		if ev.Added {
			fmt.Fprintln(w, added("+"), ev.Path)
		} else {
			fmt.Fprintln(w, removed("-"), ev.Path)
		}
	}
	return nil
}
