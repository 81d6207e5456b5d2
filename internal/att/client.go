package att

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// MaxValueSize is the largest attribute value a single PDU can carry at the
// default MTU.
const MaxValueSize = DefaultMTU - 3

// maxPDU bounds a received PDU; servers may not send more than the MTU but
// the buffer tolerates a larger negotiated one.
const maxPDU = 517

// ErrValueTooLong is returned for writes that do not fit in one PDU.
var ErrValueTooLong = errors.New("att: value too long")

// Conn is a packet connection on the ATT channel. Each Read returns exactly
// one PDU and each Write sends one.
type Conn interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
}

// Notification is a handle value notification.
type Notification struct {
	Handle uint16
	Value  []byte
}

// Client issues ATT requests over a Conn. Requests are serialized;
// notifications that arrive while a request waits for its response are
// queued for ReadNotification.
type Client struct {
	mu      sync.Mutex
	conn    Conn
	logger  *log.Logger
	timeout time.Duration
	queue   []Notification

	// Trace hex-dumps every PDU through the logger.
	Trace bool
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds every receive.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewClient creates a Client over conn.
func NewClient(conn Conn, logger *log.Logger, opts ...Option) *Client {
	if conn == nil {
		panic("ATTClient: conn cannot be nil")
	}
	if logger == nil {
		panic("ATTClient: logger cannot be nil")
	}
	c := &Client{
		conn:    conn,
		logger:  logger,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Read reads the value of handle.
func (c *Client) Read(ctx context.Context, handle uint16) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pdu := binary.LittleEndian.AppendUint16([]byte{OpReadRequest}, handle)
	return c.request(ctx, pdu, handle, OpReadResponse)
}

// WriteRequest writes data to handle and waits for the write response.
func (c *Client) WriteRequest(ctx context.Context, handle uint16, data []byte) error {
	if len(data) > MaxValueSize {
		return fmt.Errorf("%w: %d bytes", ErrValueTooLong, len(data))
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	pdu := binary.LittleEndian.AppendUint16([]byte{OpWriteRequest}, handle)
	_, err := c.request(ctx, append(pdu, data...), handle, OpWriteResponse)
	return err
}

// WriteCommand writes data to handle without waiting for a response.
func (c *Client) WriteCommand(handle uint16, data []byte) error {
	if len(data) > MaxValueSize {
		return fmt.Errorf("%w: %d bytes", ErrValueTooLong, len(data))
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	pdu := binary.LittleEndian.AppendUint16([]byte{OpWriteCommand}, handle)
	return c.send(append(pdu, data...))
}

// ReadNotification returns the next handle value notification.
func (c *Client) ReadNotification(ctx context.Context) (Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) > 0 {
		n := c.queue[0]
		c.queue = c.queue[1:]
		return n, nil
	}

	pdu, err := c.receive(ctx)
	if err != nil {
		return Notification{}, err
	}
	switch pdu[0] {
	case OpNotification:
		return decodeNotification(pdu)
	case OpError:
		return Notification{}, decodeError(pdu)
	default:
		return Notification{}, &OpcodeError{Expected: OpNotification, Actual: pdu[0]}
	}
}

func decodeNotification(pdu []byte) (Notification, error) {
	if len(pdu) < 3 {
		return Notification{}, fmt.Errorf("%w: notification of %d bytes", ErrShortPDU, len(pdu))
	}
	return Notification{
		Handle: binary.LittleEndian.Uint16(pdu[1:3]),
		Value:  pdu[3:],
	}, nil
}

func decodeError(pdu []byte) error {
	if len(pdu) < errorResponseSize {
		return fmt.Errorf("%w: error response of %d bytes", ErrShortPDU, len(pdu))
	}
	return &ResponseError{
		Request: pdu[1],
		Handle:  binary.LittleEndian.Uint16(pdu[2:4]),
		Code:    ErrorCode(pdu[4]),
	}
}

func (c *Client) request(ctx context.Context, pdu []byte, handle uint16, want byte) ([]byte, error) {
	if err := c.send(pdu); err != nil {
		return nil, err
	}

	for {
		resp, err := c.receive(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s on handle 0x%04x: %w", opcodeName(pdu[0]), handle, err)
		}

		switch resp[0] {
		case want:
			return resp[1:], nil
		case OpNotification:
			n, err := decodeNotification(resp)
			if err != nil {
				return nil, err
			}
			c.queue = append(c.queue, n)
		case OpError:
			return nil, decodeError(resp)
		default:
			return nil, &OpcodeError{Expected: want, Actual: resp[0]}
		}
	}
}

func (c *Client) send(pdu []byte) error {
	if c.Trace {
		c.logger.Printf("ATTClient: TX %s", hex.EncodeToString(pdu))
	}
	if _, err := c.conn.Write(pdu); err != nil {
		return fmt.Errorf("att: send %s: %w", opcodeName(pdu[0]), err)
	}
	return nil
}

func (c *Client) receive(ctx context.Context) ([]byte, error) {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("att: set deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Unix(1, 0))
	})
	defer stop()

	buf := make([]byte, maxPDU)
	n, err := c.conn.Read(buf)
	switch {
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, os.ErrDeadlineExceeded):
		return nil, ErrTimeout
	case err != nil:
		return nil, fmt.Errorf("att: receive: %w", err)
	case n == 0:
		return nil, fmt.Errorf("att: receive: %w", io.EOF)
	}

	if c.Trace {
		c.logger.Printf("ATTClient: RX %s", hex.EncodeToString(buf[:n]))
	}
	return buf[:n], nil
}
