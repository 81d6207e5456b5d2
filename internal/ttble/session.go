package ttble

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/ttwatch/internal/att"
)

// Client is the ATT surface a Session needs. *att.Client implements it.
type Client interface {
	Read(ctx context.Context, handle uint16) ([]byte, error)
	WriteRequest(ctx context.Context, handle uint16, data []byte) error
	WriteCommand(handle uint16, data []byte) error
	ReadNotification(ctx context.Context) (att.Notification, error)
}

var _ Client = (*att.Client)(nil)

// Session is a file protocol session with one watch over BLE.
type Session struct {
	mu         sync.Mutex
	client     Client
	logger     *log.Logger
	generation Generation
	handles    Handles

	// Trace logs every checkpoint of a transfer.
	Trace bool
}

// NewSession creates a Session for a watch of generation g.
func NewSession(client Client, g Generation, logger *log.Logger) (*Session, error) {
	if client == nil {
		panic("BLESession: client cannot be nil")
	}
	if logger == nil {
		panic("BLESession: logger cannot be nil")
	}
	h, ok := HandlesFor(g)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownGeneration, g)
	}
	return &Session{
		client:     client,
		logger:     logger,
		generation: g,
		handles:    h,
	}, nil
}

// Generation returns the protocol generation of the session.
func (s *Session) Generation() Generation { return s.generation }

// DetectGeneration probes the v1 magic handle. Watches of the second
// generation have no attribute there.
func DetectGeneration(ctx context.Context, client Client) (Generation, error) {
	_, err := client.Read(ctx, handleTables[GenerationV1].Magic)
	switch {
	case err == nil:
		return GenerationV1, nil
	case errors.Is(err, att.ErrInvalidHandle), errors.Is(err, att.ErrAttributeNotFound):
		return GenerationV2, nil
	}
	return 0, fmt.Errorf("detect generation: %w", err)
}

var enableNotifications = []byte{0x01, 0x00}

// Authorize unlocks the file protocol with a six digit passcode. A new
// pairing additionally enables passcode notifications so that the watch
// accepts a code it has not seen before.
//
// The write order is the one the vendor's phone app uses, recorded from its
// pairing exchange. Watches reject the passcode when it arrives in any other
// order, so it is kept exactly: magic value, passcode CCCD (new pairing
// only), the CCCDs of command, length, transfer and check, then the code.
func (s *Session) Authorize(ctx context.Context, code uint32, newPairing bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.handles
	s.logger.Printf("BLESession: authorizing (%v, new pairing: %t)", s.generation, newPairing)

	if err := s.client.WriteRequest(ctx, h.Magic, h.MagicValue); err != nil {
		return fmt.Errorf("authorize: magic: %w", err)
	}
	if newPairing {
		if err := s.client.WriteRequest(ctx, cccd(h.Passcode), enableNotifications); err != nil {
			return fmt.Errorf("authorize: passcode notifications: %w", err)
		}
	}
	for _, handle := range []uint16{h.Command, h.Length, h.Transfer, h.Check} {
		if err := s.client.WriteRequest(ctx, cccd(handle), enableNotifications); err != nil {
			return fmt.Errorf("authorize: enable notifications on 0x%04x: %w", handle, err)
		}
	}

	if err := s.client.WriteRequest(ctx, h.Passcode, binary.BigEndian.AppendUint32(nil, code)); err != nil {
		return fmt.Errorf("authorize: passcode: %w", err)
	}
	v, err := s.client.Read(ctx, h.Passcode)
	if err != nil {
		return fmt.Errorf("authorize: read back: %w", err)
	}
	if beUint(v) != 1 {
		return ErrUnauthorized
	}
	s.logger.Printf("BLESession: authorized")
	return nil
}

// ConnectionParams are the peripheral preferred connection parameters.
type ConnectionParams struct {
	MinInterval uint16 // 1.25 ms units
	MaxInterval uint16 // 1.25 ms units
	Latency     uint16
	Timeout     uint16 // 10 ms units
}

// ConnectionParams reads the PPCP characteristic.
func (s *Session) ConnectionParams(ctx context.Context) (ConnectionParams, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.client.Read(ctx, s.handles.PPCP)
	if err != nil {
		return ConnectionParams{}, fmt.Errorf("read connection parameters: %w", err)
	}
	if len(v) < 8 {
		return ConnectionParams{}, fmt.Errorf("read connection parameters: %w: %d bytes", att.ErrShortPDU, len(v))
	}
	return ConnectionParams{
		MinInterval: binary.LittleEndian.Uint16(v[0:]),
		MaxInterval: binary.LittleEndian.Uint16(v[2:]),
		Latency:     binary.LittleEndian.Uint16(v[4:]),
		Timeout:     binary.LittleEndian.Uint16(v[6:]),
	}, nil
}

// InterPacketDelay is the write pacing for these parameters: one packet per
// minimum connection interval.
func (p ConnectionParams) InterPacketDelay() time.Duration {
	return time.Duration(p.MinInterval) * 1250 * time.Microsecond
}

// beUint decodes up to four bytes as a big-endian unsigned value.
func beUint(v []byte) uint32 {
	var n uint32
	for _, b := range v[:min(len(v), 4)] {
		n = n<<8 | uint32(b)
	}
	return n
}
