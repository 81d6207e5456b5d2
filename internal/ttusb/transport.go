package ttusb

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/gousb"
)

// Transport moves whole interrupt packets to and from a watch.
type Transport interface {
	WritePacket(ctx context.Context, p []byte) error
	ReadPacket(ctx context.Context, p []byte) (int, error)
	Close() error
}

// DeviceInfo describes an attached watch found on the bus.
type DeviceInfo struct {
	Bus     int
	Address int
	Product uint16
	Serial  string
}

func isWatch(desc *gousb.DeviceDesc) bool {
	if uint16(desc.Vendor) != VendorID {
		return false
	}
	switch uint16(desc.Product) {
	case ProductMultiSport, ProductSparkMusic, ProductSparkCardio:
		return true
	}
	return false
}

// USBTransport is a Transport over libusb interrupt endpoints.
type USBTransport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	done func()
	in   *gousb.InEndpoint
	out  *gousb.OutEndpoint

	Info DeviceInfo
}

var _ Transport = (*USBTransport)(nil)

// ListUSB returns the watches attached to the host.
func ListUSB() ([]DeviceInfo, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	devs, err := ctx.OpenDevices(isWatch)
	defer func() {
		for _, d := range devs {
			d.Close()
		}
	}()
	if err != nil && len(devs) == 0 {
		return nil, fmt.Errorf("could not enumerate USB devices: %w", err)
	}

	infos := make([]DeviceInfo, 0, len(devs))
	for _, d := range devs {
		serial, _ := d.SerialNumber()
		infos = append(infos, DeviceInfo{
			Bus:     d.Desc.Bus,
			Address: d.Desc.Address,
			Product: uint16(d.Desc.Product),
			Serial:  serial,
		})
	}
	return infos, nil
}

// OpenUSB opens the watch with the given serial number, or the first watch
// found when serial is empty.
func OpenUSB(serial string) (*USBTransport, error) {
	ctx := gousb.NewContext()

	devs, err := ctx.OpenDevices(isWatch)
	if err != nil && len(devs) == 0 {
		ctx.Close()
		return nil, fmt.Errorf("could not enumerate USB devices: %w", err)
	}

	var (
		dev *gousb.Device
		sn  string
	)
	for _, d := range devs {
		if dev != nil {
			d.Close()
			continue
		}
		s, _ := d.SerialNumber()
		if serial == "" || s == serial {
			dev, sn = d, s
			continue
		}
		d.Close()
	}
	if dev == nil {
		ctx.Close()
		if serial != "" {
			return nil, fmt.Errorf("watch with serial %q not found", serial)
		}
		return nil, errors.New("no watch found")
	}

	t, err := openInterface(ctx, dev)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}
	t.Info = DeviceInfo{
		Bus:     dev.Desc.Bus,
		Address: dev.Desc.Address,
		Product: uint16(dev.Desc.Product),
		Serial:  sn,
	}
	return t, nil
}

func openInterface(ctx *gousb.Context, dev *gousb.Device) (*USBTransport, error) {
	_ = dev.SetAutoDetach(true)

	cfg, err := dev.Config(1)
	if err != nil {
		return nil, fmt.Errorf("failed to get config 1: %w", err)
	}
	intf, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		return nil, fmt.Errorf("failed to claim interface 0: %w", err)
	}
	done := func() {
		intf.Close()
		cfg.Close()
	}

	out, err := intf.OutEndpoint(EndpointOut)
	if err != nil {
		done()
		return nil, fmt.Errorf("failed to open out endpoint 0x%02x: %w", EndpointOut, err)
	}
	in, err := intf.InEndpoint(EndpointIn & 0x0f)
	if err != nil {
		done()
		return nil, fmt.Errorf("failed to open in endpoint 0x%02x: %w", EndpointIn, err)
	}

	return &USBTransport{ctx: ctx, dev: dev, done: done, in: in, out: out}, nil
}

func (t *USBTransport) WritePacket(ctx context.Context, p []byte) error {
	n, err := t.out.WriteContext(ctx, p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(p))
	}
	return nil
}

func (t *USBTransport) ReadPacket(ctx context.Context, p []byte) (int, error) {
	return t.in.ReadContext(ctx, p)
}

// Close releases the interface, the device and the libusb context.
func (t *USBTransport) Close() error {
	if t.done != nil {
		t.done()
		t.done = nil
	}
	var err error
	if t.dev != nil {
		err = t.dev.Close()
		t.dev = nil
	}
	if t.ctx != nil {
		if cerr := t.ctx.Close(); err == nil {
			err = cerr
		}
		t.ctx = nil
	}
	return err
}
