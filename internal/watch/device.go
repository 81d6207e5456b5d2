// Package watch is the transport independent handle to a watch: file access,
// cached settings files and activity helpers on top of a FileChannel.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/ttwatch/internal/download"
	"github.com/lowaak/ttwatch/internal/fileid"
	"github.com/lowaak/ttwatch/internal/ttbin"
	"github.com/lowaak/ttwatch/internal/ttble"
	"github.com/lowaak/ttwatch/internal/ttusb"
)

// Transport is the kind of connection to a watch.
type Transport int

const (
	TransportUSB Transport = iota + 1
	TransportBLE
)

func (t Transport) String() string {
	switch t {
	case TransportUSB:
		return "usb"
	case TransportBLE:
		return "ble"
	default:
		return fmt.Sprintf("transport(%d)", int(t))
	}
}

// Info identifies a connected watch.
type Info struct {
	Transport    Transport
	SerialNumber string
	ProductID    uint32
	ModelName    string
	Firmware     string
	BLEVersion   uint32
}

// DefaultPacketDelay paces BLE writes when the connection parameters cannot
// be read.
const DefaultPacketDelay = 20 * time.Millisecond

// Device is an open watch. Preferences and manifest are read once and
// written back by Close when modified.
type Device struct {
	mu     sync.Mutex
	ch     FileChannel
	info   Info
	logger *log.Logger

	prefs         []byte
	prefsDirty    bool
	manifest      []byte
	manifestDirty bool
}

// New wraps an initialized channel.
func New(ch FileChannel, info Info, logger *log.Logger) *Device {
	if ch == nil {
		panic("Watch: channel cannot be nil")
	}
	if logger == nil {
		panic("Watch: logger cannot be nil")
	}
	return &Device{ch: ch, info: info, logger: logger}
}

// OpenUSB sends the startup message group and reads the identity of the
// watch behind c.
func OpenUSB(ctx context.Context, c *ttusb.Channel, serial string, logger *log.Logger) (*Device, error) {
	if err := c.SendStartupGroup(ctx); err != nil {
		return nil, fmt.Errorf("startup: %w", err)
	}
	info := Info{Transport: TransportUSB, SerialNumber: serial}
	var err error
	if info.ProductID, err = c.ProductID(ctx); err != nil {
		return nil, err
	}
	if info.Firmware, err = c.FirmwareVersion(ctx); err != nil {
		return nil, err
	}
	if info.BLEVersion, err = c.BLEVersion(ctx); err != nil {
		return nil, err
	}
	logger.Printf("Watch: USB %s product 0x%04x firmware %s BLE %d", serial, info.ProductID, info.Firmware, info.BLEVersion)
	return New(USB(c), info, logger), nil
}

// OpenBLE checks the firmware of an authorized session. A zero delay is
// derived from the watch's preferred connection interval.
func OpenBLE(ctx context.Context, s *ttble.Session, delay time.Duration, closeFn func() error, logger *log.Logger) (*Device, error) {
	ti, err := s.CheckDeviceVersion(ctx)
	if err != nil {
		return nil, err
	}
	if delay == 0 {
		delay = DefaultPacketDelay
		if p, err := s.ConnectionParams(ctx); err != nil {
			logger.Printf("Watch: connection parameters: %v, using %v", err, delay)
		} else if d := p.InterPacketDelay(); d > 0 {
			delay = d
		}
	}
	info := Info{
		Transport:    TransportBLE,
		SerialNumber: ti.SerialNumber,
		ModelName:    ti.ModelName,
		Firmware:     ti.Firmware.String(),
	}
	logger.Printf("Watch: BLE %s %s firmware %s, packet delay %v", ti.ModelName, ti.SerialNumber, info.Firmware, delay)
	return New(BLE(s, delay, closeFn), info, logger), nil
}

// Info returns the identity of the watch.
func (d *Device) Info() Info { return d.info }

// ReadFile reads a whole file.
func (d *Device) ReadFile(ctx context.Context, id fileid.ID) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ch.ReadFile(ctx, id)
}

// WriteFile replaces a whole file. Writing a cached settings file drops the
// cached copy.
func (d *Device) WriteFile(ctx context.Context, id fileid.ID, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forget(id)
	return d.ch.WriteFile(ctx, id, data)
}

// DeleteFile removes a file.
func (d *Device) DeleteFile(ctx context.Context, id fileid.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.forget(id)
	return d.ch.DeleteFile(ctx, id)
}

// ListFiles returns the files of type typ.
func (d *Device) ListFiles(ctx context.Context, typ fileid.ID) ([]fileid.ID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ch.ListFiles(ctx, typ)
}

func (d *Device) forget(id fileid.ID) {
	switch id {
	case fileid.Preferences:
		d.prefs, d.prefsDirty = nil, false
	case fileid.Manifest:
		d.manifest, d.manifestDirty = nil, false
	}
}

// Flush writes back modified settings files.
func (d *Device) Flush(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flush(ctx)
}

func (d *Device) flush(ctx context.Context) error {
	if d.prefsDirty {
		if err := d.ch.WriteFile(ctx, fileid.Preferences, d.prefs); err != nil {
			return fmt.Errorf("write preferences: %w", err)
		}
		d.prefsDirty = false
		d.logger.Printf("Watch: preferences written")
	}
	if d.manifestDirty {
		if err := d.ch.WriteFile(ctx, fileid.Manifest, d.manifest); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
		d.manifestDirty = false
		d.logger.Printf("Watch: manifest written")
	}
	return nil
}

// Close flushes modified settings and closes the channel. The channel is
// closed even when the flush fails.
func (d *Device) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return errors.Join(d.flush(ctx), d.ch.Close())
}

// Activities returns the activity files on the watch.
func (d *Device) Activities(ctx context.Context) ([]fileid.ID, error) {
	return d.ListFiles(ctx, fileid.TypeTTBIN)
}

// Races returns the race definitions on the watch.
func (d *Device) Races(ctx context.Context) ([]fileid.ID, error) {
	return d.ListFiles(ctx, fileid.TypeRace)
}

// ReadActivity reads and parses an activity file.
func (d *Device) ReadActivity(ctx context.Context, id fileid.ID) (*ttbin.File, error) {
	if !id.Is(fileid.TypeTTBIN) {
		return nil, fmt.Errorf("%s is not an activity", id)
	}
	data, err := d.ReadFile(ctx, id)
	if err != nil {
		return nil, err
	}
	f, err := ttbin.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("activity %s: %w", id, err)
	}
	return f, nil
}

// RewriteActivity serializes f and stores it as id.
func (d *Device) RewriteActivity(ctx context.Context, id fileid.ID, f *ttbin.File) error {
	data, err := f.Bytes()
	if err != nil {
		return err
	}
	return d.WriteFile(ctx, id, data)
}

// UpdateGPSQuickFix downloads GPS assistance data and stores it on the
// watch, restarting the GPS receiver when the channel supports it.
func (d *Device) UpdateGPSQuickFix(ctx context.Context, f download.Fetcher, url string) error {
	data, err := f.Fetch(ctx, url)
	if err != nil {
		return err
	}
	if err := d.WriteFile(ctx, fileid.GPSQuickFix, data); err != nil {
		return fmt.Errorf("write quickfix: %w", err)
	}
	d.logger.Printf("Watch: GPS quickfix updated (%d bytes)", len(data))

	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.ch.(GPSResetter); ok {
		return r.ResetGPSProcessor(ctx)
	}
	return nil
}
