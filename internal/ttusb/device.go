package ttusb

import (
	"bytes"
	"context"
	"encoding/binary"
	"time"
)

// Device queries and housekeeping. None of these may be interleaved with an
// open file, so they share the channel lock like every other request.

func (c *Channel) word(ctx context.Context, op byte) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.sendPacket(ctx, op, nil, wordSize)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(resp), nil
}

// CurrentTime returns the watch clock.
func (c *Channel) CurrentTime(ctx context.Context) (time.Time, error) {
	secs, err := c.word(ctx, OpGetCurrentTime)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(secs), 0).UTC(), nil
}

// ProductID returns the product identifier reported by the watch.
func (c *Channel) ProductID(ctx context.Context) (uint32, error) {
	return c.word(ctx, OpGetProductID)
}

// BLEVersion returns the version of the BLE radio firmware.
func (c *Channel) BLEVersion(ctx context.Context) (uint32, error) {
	return c.word(ctx, OpGetBLEVersion)
}

// FirmwareVersion returns the system firmware version string, e.g. "1.8.42".
func (c *Channel) FirmwareVersion(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.sendPacket(ctx, OpGetFirmwareVersion, nil, stringSize)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(resp, 0); i >= 0 {
		resp = resp[:i]
	}
	return string(resp), nil
}

// ResetDevice reboots the watch. The watch drops off the bus without
// replying, so the channel is unusable afterwards.
func (c *Channel) ResetDevice(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Printf("USBChannel: resetting device")
	return c.sendOnly(ctx, OpResetDevice, nil)
}

// ResetGPSProcessor restarts the GPS chip, which makes it reload the
// quickfix data.
func (c *Channel) ResetGPSProcessor(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.sendPacket(ctx, OpResetGPSProcessor, nil, 0)
	return err
}

// SendStartupGroup sends the message group the firmware expects at the start
// of every session.
func (c *Channel) SendStartupGroup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendGroup(ctx, startupGroup)
}

// SendFirmwareGroup sends the message group that follows a firmware update.
func (c *Channel) SendFirmwareGroup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendGroup(ctx, firmwareGroup)
}
