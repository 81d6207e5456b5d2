package ttusb

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lowaak/ttwatch/internal/fileid"
)

// OpenMode selects how a file is opened.
type OpenMode int

const (
	ModeRead OpenMode = iota + 1
	ModeWrite
)

func (m OpenMode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	default:
		return fmt.Sprintf("OpenMode(%d)", int(m))
	}
}

// FileState is the open-file state of a session: either closed, or one
// file open in one mode.
type FileState struct {
	Open bool
	ID   fileid.ID
	Mode OpenMode
}

// Channel is a framed request/response session with one watch over USB.
//
// Requests are strictly sequential. At most one file can be open at a time
// and every file operation checks that precondition.
type Channel struct {
	mu        sync.Mutex
	transport Transport
	logger    *log.Logger
	config    Config

	counter byte
	state   FileState

	// Trace hex-dumps every frame through the logger.
	Trace bool
}

// NewChannel creates a Channel over t.
func NewChannel(t Transport, logger *log.Logger, opts ...Option) *Channel {
	if t == nil {
		panic("USBChannel: transport cannot be nil")
	}
	if logger == nil {
		panic("USBChannel: logger cannot be nil")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Channel{
		transport: t,
		logger:    logger,
		config:    cfg,
	}
}

// State returns the current open-file state.
func (c *Channel) State() FileState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close closes any open file and the underlying transport.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Open {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
		if err := c.closeFile(ctx); err != nil {
			c.logger.Printf("USBChannel: close %s on shutdown: %v", c.state.ID, err)
		}
		cancel()
	}
	return c.transport.Close()
}

// SendPacket sends one request and returns the validated response payload.
// respLen is the expected response payload length.
func (c *Channel) SendPacket(ctx context.Context, opcode byte, payload []byte, respLen int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendPacket(ctx, opcode, payload, respLen)
}

func (c *Channel) sendPacket(ctx context.Context, opcode byte, payload []byte, respLen int) ([]byte, error) {
	c.counter++
	counter := c.counter

	frame, err := EncodeRequest(counter, opcode, payload)
	if err != nil {
		return nil, err
	}
	if c.Trace {
		c.logger.Printf("USBChannel: TX %s", hex.EncodeToString(frame[:int(frame[1])+2]))
	}
	if err := c.transport.WritePacket(ctx, frame); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSend, opcodeName(opcode), err)
	}

	rctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp := make([]byte, PacketSize)
	n, err := c.transport.ReadPacket(rctx, resp)
	if err != nil {
		if ctx.Err() == nil && (rctx.Err() != nil || errors.Is(err, context.DeadlineExceeded)) {
			return nil, fmt.Errorf("%w: %s after %v", ErrTimeout, opcodeName(opcode), c.config.Timeout)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrReceive, opcodeName(opcode), err)
	}
	resp = resp[:n]
	if c.Trace {
		c.logger.Printf("USBChannel: RX %s", hex.EncodeToString(resp))
	}

	return DecodeResponse(resp, counter, opcode, respLen)
}

// sendOnly sends a request whose reply never comes, such as a reset.
func (c *Channel) sendOnly(ctx context.Context, opcode byte, payload []byte) error {
	c.counter++
	frame, err := EncodeRequest(c.counter, opcode, payload)
	if err != nil {
		return err
	}
	if err := c.transport.WritePacket(ctx, frame); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSend, opcodeName(opcode), err)
	}
	return nil
}

func (c *Channel) sendGroup(ctx context.Context, group []housekeeping) error {
	for _, m := range group {
		if _, err := c.sendPacket(ctx, m.op, nil, m.respLen); err != nil {
			return err
		}
	}
	return nil
}

func idPayload(id fileid.ID, extra int) []byte {
	p := make([]byte, 4, 4+extra)
	binary.BigEndian.PutUint32(p, uint32(id))
	return p
}

// checkStatus decodes an (id, reserved, status) reply.
func checkStatus(op string, id fileid.ID, resp []byte) error {
	if len(resp) < fileStatusSize {
		return &FrameError{Kind: KindLength, Expected: fileStatusSize, Actual: len(resp)}
	}
	if status := binary.BigEndian.Uint32(resp[8:12]); status != 0 {
		return &DeviceError{Op: op, ID: id, Status: status}
	}
	return nil
}

// OpenFile opens id for reading or writing. It fails with ErrFileOpen when
// another file is already open.
func (c *Channel) OpenFile(ctx context.Context, id fileid.ID, mode OpenMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Open {
		return fmt.Errorf("open %s: %w (%s)", id, ErrFileOpen, c.state.ID)
	}

	var op byte
	switch mode {
	case ModeRead:
		op = OpOpenFileRead
	case ModeWrite:
		op = OpOpenFileWrite
	default:
		return fmt.Errorf("open %s: %w: mode %v", id, ErrInvalidArgument, mode)
	}

	resp, err := c.sendPacket(ctx, op, idPayload(id, 0), fileStatusSize)
	if err != nil {
		return err
	}
	if err := checkStatus("open", id, resp); err != nil {
		return err
	}
	c.state = FileState{Open: true, ID: id, Mode: mode}
	return nil
}

// CloseFile closes the open file.
func (c *Channel) CloseFile(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeFile(ctx)
}

func (c *Channel) closeFile(ctx context.Context) error {
	if !c.state.Open {
		return fmt.Errorf("close: %w", ErrFileNotOpen)
	}
	id := c.state.ID
	resp, err := c.sendPacket(ctx, OpCloseFile, idPayload(id, 0), fileStatusSize)
	// The watch releases the handle whatever the reply looks like.
	c.state = FileState{}
	if err != nil {
		return err
	}
	return checkStatus("close", id, resp)
}

// DeleteFile removes id from the watch. No file may be open.
func (c *Channel) DeleteFile(ctx context.Context, id fileid.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Open {
		return fmt.Errorf("delete %s: %w (%s)", id, ErrFileOpen, c.state.ID)
	}
	resp, err := c.sendPacket(ctx, OpDeleteFile, idPayload(id, 0), fileStatusSize)
	if err != nil {
		return err
	}
	return checkStatus("delete", id, resp)
}

// FileSize returns the size of the open file.
func (c *Channel) FileSize(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Open {
		return 0, fmt.Errorf("file size: %w", ErrFileNotOpen)
	}
	resp, err := c.sendPacket(ctx, OpGetFileSize, idPayload(c.state.ID, 0), fileStatusSize)
	if err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint32(resp[8:12])), nil
}

// ReadChunk reads up to ReadChunkSize bytes from the open file.
func (c *Channel) ReadChunk(ctx context.Context, n int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Open {
		return nil, fmt.Errorf("read: %w", ErrFileNotOpen)
	}
	if c.state.Mode != ModeRead {
		return nil, fmt.Errorf("read %s: %w: file open for %s", c.state.ID, ErrInvalidArgument, c.state.Mode)
	}
	if n <= 0 || n > ReadChunkSize {
		return nil, fmt.Errorf("read %s: %w: chunk of %d bytes", c.state.ID, ErrInvalidArgument, n)
	}

	req := idPayload(c.state.ID, 4)
	req = binary.BigEndian.AppendUint32(req, uint32(n))
	resp, err := c.sendPacket(ctx, OpReadFileData, req, readHeaderSize+n)
	if err != nil {
		return nil, err
	}
	if len(resp) < readHeaderSize {
		return nil, &FrameError{Kind: KindLength, Opcode: OpReadFileData, Expected: readHeaderSize + n, Actual: len(resp)}
	}
	got := int(binary.BigEndian.Uint32(resp[4:8]))
	if got > n || readHeaderSize+got > len(resp) {
		return nil, &FrameError{Kind: KindLength, Opcode: OpReadFileData, Expected: n, Actual: got}
	}
	return append([]byte(nil), resp[readHeaderSize:readHeaderSize+got]...), nil
}

// WriteChunk writes up to WriteChunkSize bytes to the open file.
func (c *Channel) WriteChunk(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.Open {
		return fmt.Errorf("write: %w", ErrFileNotOpen)
	}
	if c.state.Mode != ModeWrite {
		return fmt.Errorf("write %s: %w: file open for %s", c.state.ID, ErrInvalidArgument, c.state.Mode)
	}
	if len(data) == 0 || len(data) > WriteChunkSize {
		return fmt.Errorf("write %s: %w: chunk of %d bytes", c.state.ID, ErrInvalidArgument, len(data))
	}

	req := append(idPayload(c.state.ID, len(data)), data...)
	resp, err := c.sendPacket(ctx, OpWriteFileData, req, fileStatusSize)
	if err != nil {
		return err
	}
	return checkStatus("write", c.state.ID, resp)
}

// FileEntry is one entry of the watch's file table.
type FileEntry struct {
	ID   fileid.ID
	Size int
}

func decodeFind(resp []byte) (FileEntry, bool) {
	entry := FileEntry{
		ID:   fileid.ID(binary.BigEndian.Uint32(resp[0:4])),
		Size: int(binary.BigEndian.Uint32(resp[8:12])),
	}
	return entry, binary.BigEndian.Uint32(resp[12:16]) != 0
}

// FindFirst starts a file table enumeration. end reports that the table is
// exhausted and entry is not valid.
func (c *Channel) FindFirst(ctx context.Context) (entry FileEntry, end bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Open {
		return FileEntry{}, false, fmt.Errorf("find first: %w (%s)", ErrFileOpen, c.state.ID)
	}
	resp, err := c.sendPacket(ctx, OpFindFirstFile, make([]byte, 8), findResponseSize)
	if err != nil {
		return FileEntry{}, false, err
	}
	entry, end = decodeFind(resp)
	return entry, end, nil
}

// FindNext continues an enumeration started by FindFirst.
func (c *Channel) FindNext(ctx context.Context) (entry FileEntry, end bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Open {
		return FileEntry{}, false, fmt.Errorf("find next: %w (%s)", ErrFileOpen, c.state.ID)
	}
	resp, err := c.sendPacket(ctx, OpFindNextFile, nil, findResponseSize)
	if err != nil {
		return FileEntry{}, false, err
	}
	entry, end = decodeFind(resp)
	return entry, end, nil
}

// FindClose ends an enumeration and sends the message group the watch
// expects after every file list.
func (c *Channel) FindClose(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.sendPacket(ctx, OpFindClose, nil, 0); err != nil {
		return err
	}
	return c.sendGroup(ctx, fileListGroup)
}

// Config holds the channel configuration.
type Config struct {
	// Timeout bounds every blocking receive.
	Timeout time.Duration
}

func defaultConfig() Config {
	return Config{Timeout: 10 * time.Second}
}

// Option is a functional option for configuring a Channel.
type Option func(*Config)

// WithTimeout sets the receive timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.Timeout = timeout
		}
	}
}
