package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Station-Manager/wmbus/driver"
	"github.com/Station-Manager/wmbus/internal/config"
	"github.com/Station-Manager/wmbus/internal/logging"
	"github.com/Station-Manager/wmbus/metrics"
	"github.com/Station-Manager/wmbus/serial"
	"github.com/Station-Manager/wmbus/telegram"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	linkModeTimeout = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Listen to the configured dongles until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log, closer, err := logging.New(cfg.Log, nil)
			if err != nil {
				return err
			}
			defer closer.Close()

			if err := run(cmd.Context(), cfg, log); err != nil {
				log.Error().Err(err).Msg("wmbusd stopped")
				return err
			}
			return nil
		},
	}
}

func run(parent context.Context, cfg *config.Config, log zerolog.Logger) error {
	if len(cfg.Devices) == 0 {
		return fmt.Errorf("no devices configured in %s", configPath)
	}

	m, err := serial.NewManager(serial.Options{
		Logger:      log,
		ExitAfter:   cfg.ExitAfter.Std(),
		ReopenAfter: cfg.ReopenAfter.Std(),
	})
	if err != nil {
		return err
	}
	defer m.Close()

	hub := telegram.NewHub(log)
	defer hub.Close()
	counter := metrics.NewTelegramCounter()
	sinks := telegram.Multi{telegram.LogSink{Log: log}, counter, hub}
	if cfg.Store.Path != "" {
		store, err := telegram.OpenStore(cfg.Store.Path, log)
		if err != nil {
			return err
		}
		defer store.Close()
		sinks = append(sinks, store)
	}
	dedup := telegram.NewDedup(sinks, cfg.Dedup.Window.Std())

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	buses := make([]driver.Bus, 0, len(cfg.Devices))
	for _, dc := range cfg.Devices {
		bus, err := openBus(m, dc, dedup)
		if err != nil {
			return fmt.Errorf("device %s: %w", dc.DisplayName(), err)
		}
		buses = append(buses, bus)
	}

	m.StartEventLoop()
	for i, bus := range buses {
		if err := configureLinkModes(ctx, bus, cfg.Devices[i]); err != nil {
			return fmt.Errorf("device %s: %w", cfg.Devices[i].DisplayName(), err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.HTTP.Listen != "" {
		reg, err := metrics.NewRegistry(metrics.NewCollector(m, dedup, hub), counter)
		if err != nil {
			return err
		}
		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		mux.Handle("/metrics", metrics.Handler(reg))
		srv := &http.Server{Addr: cfg.HTTP.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			log.Info().Str("listen", cfg.HTTP.Listen).Msg("serving /ws and /metrics")
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			hub.Close()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		m.Stop()
		return nil
	})
	g.Go(func() error {
		m.WaitForStop()
		log.Info().Int("devices", m.DeviceCount()).Msg("serial manager stopped")
		stop()
		return nil
	})
	return g.Wait()
}

// openBus attaches the driver for dc. Non tty sources are passed to the
// driver as an override device.
func openBus(m *serial.Manager, dc config.Device, h telegram.Handler) (driver.Bus, error) {
	var override serial.Device
	switch {
	case dc.Path == config.SourceStdin:
		override = m.CreateFile(serial.StdinPath)
	case strings.HasPrefix(dc.Path, config.SourceFilePrefix):
		override = m.CreateFile(strings.TrimPrefix(dc.Path, config.SourceFilePrefix))
	case strings.HasPrefix(dc.Path, config.SourceCmdPrefix):
		command := strings.TrimSpace(strings.TrimPrefix(dc.Path, config.SourceCmdPrefix))
		override = m.CreateCommand(command, nil, nil, nil)
	}

	switch dc.Type {
	case config.TypeCUL:
		d, err := driver.OpenCUL(m, dc.Path, h, override)
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.TypeRawTTY:
		d, err := driver.OpenRawTTY(m, dc.Path, dc.Baud, h, override)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, fmt.Errorf("unknown device type %q", dc.Type)
}

func configureLinkModes(ctx context.Context, bus driver.Bus, dc config.Device) error {
	if dc.LinkModes == "" {
		return nil
	}
	lms, err := driver.ParseLinkModes(dc.LinkModes)
	if err != nil {
		return err
	}
	sctx, cancel := context.WithTimeout(ctx, linkModeTimeout)
	defer cancel()
	return bus.SetLinkModes(sctx, lms)
}
