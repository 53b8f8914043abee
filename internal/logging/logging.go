// Package logging builds the process logger from the log configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Station-Manager/wmbus/internal/config"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultMaxSizeMB  = 20
	defaultMaxBackups = 5
	defaultMaxAgeDays = 28
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger writing to out, or stdout when out is nil, plus the
// rotating file from cfg.File if one is configured. The closer releases the
// file.
func New(cfg config.Log, out io.Writer) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("log level: %w", err)
		}
		level = l
	}
	if out == nil {
		out = os.Stdout
	}

	writers := []io.Writer{consoleOrJSON(cfg.Format, out)}
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, defaultMaxSizeMB),
			MaxBackups: orDefault(cfg.MaxBackups, defaultMaxBackups),
			MaxAge:     orDefault(cfg.MaxAgeDays, defaultMaxAgeDays),
			Compress:   true,
		}
		writers = append(writers, lj)
		closer = lj
	}

	var w io.Writer = writers[0]
	if len(writers) > 1 {
		w = zerolog.MultiLevelWriter(writers...)
	}
	log := zerolog.New(w).Level(level).With().Timestamp().Logger()
	return log, closer, nil
}

// consoleOrJSON picks human readable output for terminals. "auto" decides by
// looking at out.
func consoleOrJSON(format string, out io.Writer) io.Writer {
	switch format {
	case "json":
		return out
	case "console":
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime, NoColor: !isTerminal(out)}
	}
	if !isTerminal(out) {
		return out
	}
	f := out.(*os.File)
	return zerolog.ConsoleWriter{Out: colorable.NewColorable(f), TimeFormat: time.DateTime}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
