package att

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn answers each written PDU through respond.
type fakeConn struct {
	mu       sync.Mutex
	rx       [][]byte
	tx       [][]byte
	deadline time.Time
	respond  func(pdu []byte) [][]byte
	closed   bool
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tx = append(c.tx, append([]byte(nil), p...))
	if c.respond != nil {
		c.rx = append(c.rx, c.respond(p)...)
	}
	return len(p), nil
}

func (c *fakeConn) Read(p []byte) (int, error) {
	for {
		c.mu.Lock()
		if len(c.rx) > 0 {
			pdu := c.rx[0]
			c.rx = c.rx[1:]
			c.mu.Unlock()
			return copy(p, pdu), nil
		}
		expired := !c.deadline.IsZero() && time.Now().After(c.deadline)
		c.mu.Unlock()
		if expired {
			return 0, os.ErrDeadlineExceeded
		}
		time.Sleep(time.Millisecond)
	}
}

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline = t
	return nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func (c *fakeConn) push(pdu ...byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rx = append(c.rx, pdu)
}

func newTestClient(conn *fakeConn) *Client {
	return NewClient(conn, log.New(io.Discard, "", 0), WithTimeout(50*time.Millisecond))
}

func TestClient_Read(t *testing.T) {
	conn := &fakeConn{respond: func(pdu []byte) [][]byte {
		return [][]byte{{OpReadResponse, 'a', 'b', 'c'}}
	}}
	c := newTestClient(conn)

	v, err := c.Read(context.Background(), 0x001e)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), v)
	assert.Equal(t, []byte{OpReadRequest, 0x1e, 0x00}, conn.tx[0])
}

func TestClient_WriteRequestAndCommand(t *testing.T) {
	conn := &fakeConn{respond: func(pdu []byte) [][]byte {
		if pdu[0] == OpWriteRequest {
			return [][]byte{{OpWriteResponse}}
		}
		return nil
	}}
	c := newTestClient(conn)

	require.NoError(t, c.WriteRequest(context.Background(), 0x0026, []byte{1, 0}))
	require.NoError(t, c.WriteCommand(0x002b, []byte{9, 9}))
	assert.Equal(t, [][]byte{
		{OpWriteRequest, 0x26, 0x00, 1, 0},
		{OpWriteCommand, 0x2b, 0x00, 9, 9},
	}, conn.tx)

	err := c.WriteCommand(0x002b, make([]byte, MaxValueSize+1))
	assert.ErrorIs(t, err, ErrValueTooLong)
}

func TestClient_ErrorResponse(t *testing.T) {
	conn := &fakeConn{respond: func(pdu []byte) [][]byte {
		return [][]byte{{OpError, OpReadRequest, 0x35, 0x00, byte(ErrInvalidHandle)}}
	}}
	c := newTestClient(conn)

	_, err := c.Read(context.Background(), 0x0035)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidHandle)

	var re *ResponseError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, uint16(0x0035), re.Handle)
	assert.Equal(t, byte(OpReadRequest), re.Request)
	assert.Contains(t, err.Error(), "invalid handle")
}

func TestClient_UnexpectedOpcode(t *testing.T) {
	conn := &fakeConn{respond: func(pdu []byte) [][]byte {
		return [][]byte{{OpWriteResponse}}
	}}
	c := newTestClient(conn)

	_, err := c.Read(context.Background(), 1)
	var oe *OpcodeError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, byte(OpReadResponse), oe.Expected)
	assert.Equal(t, byte(OpWriteResponse), oe.Actual)
}

func TestClient_NotificationsQueuedDuringRequest(t *testing.T) {
	conn := &fakeConn{respond: func(pdu []byte) [][]byte {
		return [][]byte{
			{OpNotification, 0x25, 0x00, 7},
			{OpWriteResponse},
		}
	}}
	c := newTestClient(conn)

	require.NoError(t, c.WriteRequest(context.Background(), 0x0025, []byte{1}))

	n, err := c.ReadNotification(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Notification{Handle: 0x0025, Value: []byte{7}}, n)

	conn.push(OpNotification, 0x28, 0x00, 1, 2, 3, 4)
	n, err = c.ReadNotification(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0028), n.Handle)
	assert.Equal(t, []byte{1, 2, 3, 4}, n.Value)
}

func TestClient_ReadNotificationErrors(t *testing.T) {
	conn := &fakeConn{}
	c := newTestClient(conn)

	_, err := c.ReadNotification(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)

	conn.push(OpReadResponse, 1)
	_, err = c.ReadNotification(context.Background())
	var oe *OpcodeError
	assert.True(t, errors.As(err, &oe))

	conn.push(OpNotification, 0x25)
	_, err = c.ReadNotification(context.Background())
	assert.ErrorIs(t, err, ErrShortPDU)

	conn.push(OpError, OpWriteRequest, 0x25, 0x00, byte(ErrInvalidHandle))
	_, err = c.ReadNotification(context.Background())
	assert.ErrorIs(t, err, ErrInvalidHandle)
	var re *ResponseError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, uint16(0x0025), re.Handle)
	assert.Equal(t, byte(OpWriteRequest), re.Request)

	conn.push(OpError, OpWriteRequest, 0x25)
	_, err = c.ReadNotification(context.Background())
	assert.ErrorIs(t, err, ErrShortPDU)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.ReadNotification(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_Trace(t *testing.T) {
	var buf bytes.Buffer
	conn := &fakeConn{respond: func(pdu []byte) [][]byte {
		return [][]byte{{OpReadResponse, 0x01}}
	}}
	c := NewClient(conn, log.New(&buf, "", 0))
	c.Trace = true

	_, err := c.Read(context.Background(), 0x0032)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "ATTClient: TX 0a3200")
	assert.Contains(t, buf.String(), "ATTClient: RX 0b01")
}

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("e4:04:39:12:34:5F")
	require.NoError(t, err)
	assert.Equal(t, Address{0xe4, 0x04, 0x39, 0x12, 0x34, 0x5f}, a)
	assert.Equal(t, "E4:04:39:12:34:5F", a.String())

	for _, bad := range []string{"", "e4:04:39:12:34", "e4:04:39:12:34:5", "zz:04:39:12:34:56"} {
		_, err := ParseAddress(bad)
		assert.Error(t, err, bad)
	}

	typ, err := ParseAddressType("random")
	require.NoError(t, err)
	assert.Equal(t, AddressRandom, typ)
	_, err = ParseAddressType("static")
	assert.Error(t, err)
}
