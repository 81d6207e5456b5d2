// Package config loads ttwatch settings from flags, environment and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lowaak/ttwatch/internal/att"
)

// EnvPrefix prefixes environment overrides, e.g. TTWATCH_BLE_ADDRESS.
const EnvPrefix = "TTWATCH"

// Config is the resolved configuration.
type Config struct {
	Transport string
	Trace     bool

	USB USB
	BLE BLE
	Log Log
}

type USB struct {
	Serial  string
	Timeout time.Duration
}

type BLE struct {
	Address     string
	AddressType string
	// Generation is "auto", "1" or "2".
	Generation  string
	Passcode    uint32
	NewPairing  bool
	Timeout     time.Duration
	PacketDelay time.Duration
}

type Log struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Stderr     bool
}

// DefaultDir is where the config file and state live.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".ttwatch")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("transport", "usb")
	v.SetDefault("trace", false)
	v.SetDefault("usb.serial", "")
	v.SetDefault("usb.timeout", 10*time.Second)
	v.SetDefault("ble.address", "")
	v.SetDefault("ble.address_type", "public")
	v.SetDefault("ble.generation", "auto")
	v.SetDefault("ble.passcode", 0)
	v.SetDefault("ble.new_pairing", false)
	v.SetDefault("ble.timeout", 10*time.Second)
	v.SetDefault("ble.packet_delay", time.Duration(0))
	v.SetDefault("log.file", filepath.Join(DefaultDir(), "ttwatch.log"))
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.stderr", false)
}

// RegisterFlags adds the flags that override configuration keys to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (default $HOME/.ttwatch/config.yaml)")
	fs.String("transport", "usb", "connection to the watch: usb or ble")
	fs.BoolP("trace", "v", false, "log every packet exchanged with the watch")
	fs.String("usb-serial", "", "serial number of the USB watch to open")
	fs.String("ble-address", "", "Bluetooth address of the watch")
	fs.String("ble-address-type", "public", "Bluetooth address type: public or random")
	fs.String("ble-generation", "auto", "BLE protocol generation: auto, 1 or 2")
	fs.Uint32("passcode", 0, "six digit pairing code shown by the watch")
	fs.Bool("new-pairing", false, "the passcode was just shown by the watch")
	fs.String("log-file", "", "log file path")
	fs.Bool("log-stderr", false, "also log to stderr")
}

var flagKeys = map[string]string{
	"transport":        "transport",
	"trace":            "trace",
	"usb-serial":       "usb.serial",
	"ble-address":      "ble.address",
	"ble-address-type": "ble.address_type",
	"ble-generation":   "ble.generation",
	"passcode":         "ble.passcode",
	"new-pairing":      "ble.new_pairing",
	"log-file":         "log.file",
	"log-stderr":       "log.stderr",
}

// Load resolves the configuration from, in priority order, the flags in fs,
// the environment, the config file and the defaults. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var file string
	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
		file, _ = fs.GetString("config")
	}

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultDir())
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	c := &Config{
		Transport: strings.ToLower(v.GetString("transport")),
		Trace:     v.GetBool("trace"),
		USB: USB{
			Serial:  v.GetString("usb.serial"),
			Timeout: v.GetDuration("usb.timeout"),
		},
		BLE: BLE{
			Address:     v.GetString("ble.address"),
			AddressType: strings.ToLower(v.GetString("ble.address_type")),
			Generation:  strings.ToLower(v.GetString("ble.generation")),
			Passcode:    v.GetUint32("ble.passcode"),
			NewPairing:  v.GetBool("ble.new_pairing"),
			Timeout:     v.GetDuration("ble.timeout"),
			PacketDelay: v.GetDuration("ble.packet_delay"),
		},
		Log: Log{
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
			Stderr:     v.GetBool("log.stderr"),
		},
	}
	return c, c.Validate()
}

// Validate rejects settings the watch connection cannot use.
func (c *Config) Validate() error {
	var errs []error
	switch c.Transport {
	case "usb", "ble":
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}
	if c.BLE.Address != "" {
		if _, err := att.ParseAddress(c.BLE.Address); err != nil {
			errs = append(errs, fmt.Errorf("ble.address: %w", err))
		}
	}
	if _, err := att.ParseAddressType(c.BLE.AddressType); err != nil {
		errs = append(errs, fmt.Errorf("ble.address_type: %w", err))
	}
	switch c.BLE.Generation {
	case "auto", "1", "2":
	default:
		errs = append(errs, fmt.Errorf("unknown ble.generation %q", c.BLE.Generation))
	}
	if c.BLE.Passcode > 999999 {
		errs = append(errs, fmt.Errorf("passcode %d has more than six digits", c.BLE.Passcode))
	}
	if c.USB.Timeout <= 0 || c.BLE.Timeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.BLE.PacketDelay < 0 {
		errs = append(errs, errors.New("ble.packet_delay must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
