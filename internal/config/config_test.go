package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "wmbusd.toml"))
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "wmbusd.toml", `
exit_after = "1h"
reopen_after = "90s"

[log]
level = "debug"
format = "json"

[store]
path = "/var/lib/wmbusd/telegrams.db"

[dedup]
window = "5s"

[[devices]]
name = "kitchen"
type = "CUL"
path = "/dev/ttyACM0"
linkmodes = "t1"

[[devices]]
type = "rawtty"
path = "/dev/ttyUSB0"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, time.Hour, cfg.ExitAfter.Std())
	assert.Equal(t, 90*time.Second, cfg.ReopenAfter.Std())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5*time.Second, cfg.Dedup.Window.Std())
	assert.Equal(t, DefaultHTTPListen, cfg.HTTP.Listen)
	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, Device{Name: "kitchen", Type: TypeCUL, Path: "/dev/ttyACM0", LinkModes: "t1"}, cfg.Devices[0])
	assert.Equal(t, DefaultRawTTYBaud, cfg.Devices[1].Baud)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Devices[1].DisplayName())
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "wmbusd.yaml", `
devices:
  - type: rawtty
    path: "cmd:cat /tmp/capture.bin"
    baud: 38400
  - type: cul
    path: stdin
http:
  listen: ":9999"
dedup:
  window: 0s
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, 38400, cfg.Devices[0].Baud)
	assert.Equal(t, SourceStdin, cfg.Devices[1].Path)
	assert.Equal(t, ":9999", cfg.HTTP.Listen)
	assert.Zero(t, cfg.Dedup.Window)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WMBUS_LOG_LEVEL", "warn")
	t.Setenv("WMBUS_HTTP_LISTEN", "")
	t.Setenv("WMBUS_EXIT_AFTER", "2m")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Empty(t, cfg.HTTP.Listen)
	assert.Equal(t, 2*time.Minute, cfg.ExitAfter.Std())

	t.Setenv("WMBUS_DEDUP_WINDOW", "soon")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown type":   "[[devices]]\ntype = \"amb\"\npath = \"/dev/ttyUSB0\"\n",
		"bad baud":       "[[devices]]\ntype = \"rawtty\"\npath = \"/dev/ttyUSB0\"\nbaud = 1234\n",
		"bad linkmode":   "[[devices]]\ntype = \"cul\"\npath = \"/dev/ttyUSB0\"\nlinkmodes = \"q9\"\n",
		"bad path":       "[[devices]]\ntype = \"cul\"\npath = \"/etc/passwd\"\n",
		"empty command":  "[[devices]]\ntype = \"cul\"\npath = \"cmd: \"\n",
		"short reopen":   "reopen_after = \"10ms\"\n",
		"bad log level":  "[log]\nlevel = \"loud\"\n",
		"missing path":   "[[devices]]\ntype = \"cul\"\n",
		"bad listen":     "[http]\nlisten = \"nope\"\n",
		"negative dedup": "[dedup]\nwindow = \"-1s\"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "wmbusd.toml", content))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad_UnknownExtension(t *testing.T) {
	_, err := Load(writeFile(t, "wmbusd.ini", "x=1"))
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestLoad_SyntaxError(t *testing.T) {
	_, err := Load(writeFile(t, "wmbusd.toml", "[log\n"))
	assert.Error(t, err)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "wmbusd.toml")
	require.NoError(t, WriteDefault(path))
	assert.Error(t, WriteDefault(path), "existing file is kept")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Devices, 1)
	assert.Equal(t, TypeCUL, cfg.Devices[0].Type)
	assert.Equal(t, DefaultDedupWindow, cfg.Dedup.Window.Std())
}
