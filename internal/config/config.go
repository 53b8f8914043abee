// Package config loads the wmbusd configuration from TOML or YAML, applies
// WMBUS_* environment overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	TypeCUL    = "cul"
	TypeRawTTY = "rawtty"

	DefaultRawTTYBaud  = 9600
	DefaultHTTPListen  = "127.0.0.1:9412"
	DefaultDedupWindow = 10 * time.Second

	envPrefix = "WMBUS_"
)

// Device sources other than a tty path.
const (
	SourceStdin      = "stdin"
	SourceFilePrefix = "file:"
	SourceCmdPrefix  = "cmd:"
)

var ErrUnknownFormat = errors.New("config: unknown file format")

type Config struct {
	Devices     []Device `toml:"devices" yaml:"devices" validate:"dive"`
	ExitAfter   Duration `toml:"exit_after" yaml:"exit_after" validate:"gte=0"`
	ReopenAfter Duration `toml:"reopen_after" yaml:"reopen_after" validate:"eq=0|gte=1000000000"`
	Log         Log      `toml:"log" yaml:"log"`
	Store       Store    `toml:"store" yaml:"store"`
	HTTP        HTTP     `toml:"http" yaml:"http"`
	Dedup       Dedup    `toml:"dedup" yaml:"dedup"`
}

// Device is one dongle. Path is a tty, "stdin", "file:<path>" or
// "cmd:<shell command>".
type Device struct {
	Name      string `toml:"name" yaml:"name" validate:"max=64"`
	Type      string `toml:"type" yaml:"type" validate:"required,oneof=cul rawtty"`
	Path      string `toml:"path" yaml:"path" validate:"required,source"`
	Baud      int    `toml:"baud,omitempty" yaml:"baud,omitempty" validate:"omitempty,baud"`
	LinkModes string `toml:"linkmodes,omitempty" yaml:"linkmodes,omitempty" validate:"omitempty,linkmodes"`
}

// DisplayName is Name, or Path when no name was given.
func (d Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Path
}

type Log struct {
	Level      string `toml:"level" yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Format     string `toml:"format" yaml:"format" validate:"omitempty,oneof=auto console json"`
	File       string `toml:"file,omitempty" yaml:"file,omitempty"`
	MaxSizeMB  int    `toml:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty" validate:"gte=0"`
	MaxBackups int    `toml:"max_backups,omitempty" yaml:"max_backups,omitempty" validate:"gte=0"`
	MaxAgeDays int    `toml:"max_age_days,omitempty" yaml:"max_age_days,omitempty" validate:"gte=0"`
}

// Store configures the SQLite telegram store. An empty Path disables it.
type Store struct {
	Path string `toml:"path" yaml:"path"`
}

// HTTP configures the websocket and metrics listener. An empty Listen
// disables it.
type HTTP struct {
	Listen string `toml:"listen" yaml:"listen" validate:"omitempty,hostname_port"`
}

type Dedup struct {
	Window Duration `toml:"window" yaml:"window" validate:"gte=0"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Log:   Log{Level: "info", Format: "auto"},
		HTTP:  HTTP{Listen: DefaultHTTPListen},
		Dedup: Dedup{Window: Duration(DefaultDedupWindow)},
	}
}

// Load reads path, picking the decoder by extension. A missing file yields
// the defaults. Environment overrides are applied before validation.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	return nil
}

func (c *Config) applyDefaults() {
	for i := range c.Devices {
		d := &c.Devices[i]
		d.Type = strings.ToLower(strings.TrimSpace(d.Type))
		if d.Baud == 0 && d.Type == TypeRawTTY {
			d.Baud = DefaultRawTTYBaud
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "auto"
	}
}

// applyEnv overrides scalar settings from WMBUS_* variables.
func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"LOG_LEVEL":   &cfg.Log.Level,
		"LOG_FORMAT":  &cfg.Log.Format,
		"LOG_FILE":    &cfg.Log.File,
		"STORE_PATH":  &cfg.Store.Path,
		"HTTP_LISTEN": &cfg.HTTP.Listen,
	}
	for k, p := range strs {
		if v, ok := os.LookupEnv(envPrefix + k); ok {
			*p = v
		}
	}

	durations := map[string]*Duration{
		"EXIT_AFTER":   &cfg.ExitAfter,
		"REOPEN_AFTER": &cfg.ReopenAfter,
		"DEDUP_WINDOW": &cfg.Dedup.Window,
	}
	for k, p := range durations {
		v, ok := os.LookupEnv(envPrefix + k)
		if !ok {
			continue
		}
		if err := p.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, k, err)
		}
	}
	return nil
}

// WriteDefault writes a commented starting point to path as TOML. An
// existing file is left alone.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cfg := Default()
	cfg.Devices = []Device{{Name: "cul", Type: TypeCUL, Path: "/dev/ttyACM0", LinkModes: "t1"}}
	if _, err := fmt.Fprintln(f, "# wmbusd configuration"); err != nil {
		return err
	}
	return toml.NewEncoder(f).Encode(cfg)
}
