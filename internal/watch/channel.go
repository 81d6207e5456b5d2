package watch

import (
	"context"
	"time"

	"github.com/lowaak/ttwatch/internal/fileid"
	"github.com/lowaak/ttwatch/internal/ttble"
	"github.com/lowaak/ttwatch/internal/ttusb"
)

// FileChannel is the file protocol of one watch connection.
type FileChannel interface {
	ReadFile(ctx context.Context, id fileid.ID) ([]byte, error)
	WriteFile(ctx context.Context, id fileid.ID, data []byte) error
	DeleteFile(ctx context.Context, id fileid.ID) error
	// ListFiles returns the files of type typ, in no particular order.
	ListFiles(ctx context.Context, typ fileid.ID) ([]fileid.ID, error)
	Close() error
}

// GPSResetter is implemented by channels that can restart the GPS receiver
// after new quickfix data was written.
type GPSResetter interface {
	ResetGPSProcessor(ctx context.Context) error
}

type usbChannel struct {
	c *ttusb.Channel
}

var (
	_ FileChannel = usbChannel{}
	_ GPSResetter = usbChannel{}
)

// USB adapts a USB channel.
func USB(c *ttusb.Channel) FileChannel { return usbChannel{c: c} }

func (u usbChannel) ReadFile(ctx context.Context, id fileid.ID) ([]byte, error) {
	return u.c.ReadWholeFile(ctx, id)
}

func (u usbChannel) WriteFile(ctx context.Context, id fileid.ID, data []byte) error {
	return u.c.WriteWholeFile(ctx, id, data)
}

func (u usbChannel) DeleteFile(ctx context.Context, id fileid.ID) error {
	return u.c.DeleteFile(ctx, id)
}

func (u usbChannel) ListFiles(ctx context.Context, typ fileid.ID) ([]fileid.ID, error) {
	entries, err := u.c.ListFiles(ctx, typ)
	if err != nil {
		return nil, err
	}
	ids := make([]fileid.ID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids, nil
}

func (u usbChannel) ResetGPSProcessor(ctx context.Context) error {
	return u.c.ResetGPSProcessor(ctx)
}

func (u usbChannel) Close() error { return u.c.Close() }

type bleChannel struct {
	s     *ttble.Session
	delay time.Duration
	close func() error
}

var _ FileChannel = bleChannel{}

// BLE adapts a BLE session. Writes are paced by delay; closeFn releases the
// underlying connection and may be nil.
func BLE(s *ttble.Session, delay time.Duration, closeFn func() error) FileChannel {
	return bleChannel{s: s, delay: delay, close: closeFn}
}

func (b bleChannel) ReadFile(ctx context.Context, id fileid.ID) ([]byte, error) {
	return b.s.ReadFile(ctx, id)
}

func (b bleChannel) WriteFile(ctx context.Context, id fileid.ID, data []byte) error {
	return b.s.WriteFile(ctx, id, data, b.delay)
}

func (b bleChannel) DeleteFile(ctx context.Context, id fileid.ID) error {
	return b.s.DeleteFile(ctx, id)
}

func (b bleChannel) ListFiles(ctx context.Context, typ fileid.ID) ([]fileid.ID, error) {
	return b.s.ListSubFiles(ctx, typ)
}

func (b bleChannel) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}
