package config

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)

	c, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "usb", c.Transport)
	assert.Equal(t, 10*time.Second, c.USB.Timeout)
	assert.Equal(t, "auto", c.BLE.Generation)
	assert.Equal(t, "public", c.BLE.AddressType)
	assert.Equal(t, filepath.Join(home, ".ttwatch", "ttwatch.log"), c.Log.File)
	assert.Equal(t, 10, c.Log.MaxSizeMB)
}

func TestLoad_Precedence(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".ttwatch")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
transport: ble
ble:
  address: "E4:04:39:12:34:56"
  passcode: 123456
  packet_delay: 15ms
log:
  max_backups: 7
`), 0o644))

	c, err := Load(newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, "ble", c.Transport)
	assert.Equal(t, "E4:04:39:12:34:56", c.BLE.Address)
	assert.Equal(t, uint32(123456), c.BLE.Passcode)
	assert.Equal(t, 15*time.Millisecond, c.BLE.PacketDelay)
	assert.Equal(t, 7, c.Log.MaxBackups)

	t.Setenv("TTWATCH_BLE_ADDRESS", "E4:04:39:00:00:01")
	c, err = Load(newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, "E4:04:39:00:00:01", c.BLE.Address)

	c, err = Load(newFlags(t, "--ble-address", "E4:04:39:00:00:02", "--transport", "usb", "-v"))
	require.NoError(t, err)
	assert.Equal(t, "E4:04:39:00:00:02", c.BLE.Address)
	assert.Equal(t, "usb", c.Transport)
	assert.True(t, c.Trace)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	home := isolate(t)
	_, err := Load(newFlags(t, "--config", filepath.Join(home, "nope.yaml")))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Transport: "ble",
			USB:       USB{Timeout: time.Second},
			BLE:       BLE{Address: "E4:04:39:12:34:56", AddressType: "random", Generation: "2", Passcode: 999999, Timeout: time.Second},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"transport", func(c *Config) { c.Transport = "serial" }},
		{"address", func(c *Config) { c.BLE.Address = "E4:04:39" }},
		{"address type", func(c *Config) { c.BLE.AddressType = "static" }},
		{"generation", func(c *Config) { c.BLE.Generation = "3" }},
		{"passcode", func(c *Config) { c.BLE.Passcode = 1000000 }},
		{"timeout", func(c *Config) { c.USB.Timeout = 0 }},
		{"delay", func(c *Config) { c.BLE.PacketDelay = -time.Millisecond }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestState(t *testing.T) {
	dir := t.TempDir()
	logger := log.New(io.Discard, "", 0)

	s := LoadState(dir, logger)
	assert.Empty(t, s.LastWatch())
	assert.False(t, s.IsKnown("E4:04:39:12:34:56"))

	require.NoError(t, s.Remember("E4:04:39:12:34:56", "Runner"))
	require.NoError(t, s.Remember("E4:04:39:00:00:01", "Spare"))

	s = LoadState(dir, logger)
	assert.Equal(t, "E4:04:39:00:00:01", s.LastWatch())
	assert.True(t, s.IsKnown("E4:04:39:12:34:56"))
	assert.Equal(t, "Runner", s.Name("E4:04:39:12:34:56"))
	assert.Equal(t, []string{"E4:04:39:00:00:01", "E4:04:39:12:34:56"}, s.Known())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "state.json"), []byte("{"), 0o644))
	s = LoadState(dir, logger)
	assert.Empty(t, s.Known())
	assert.Panics(t, func() { LoadState(dir, nil) })
}
