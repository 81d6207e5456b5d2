package ttusb

import (
	"errors"
	"fmt"

	"github.com/lowaak/ttwatch/internal/fileid"
)

// Transport errors.
var (
	ErrSend    = errors.New("ttusb: send failed")
	ErrReceive = errors.New("ttusb: receive failed")
	ErrTimeout = errors.New("ttusb: receive timed out")
)

// Framing errors, matched by *FrameError through errors.Is.
var (
	ErrInvalidMarker   = errors.New("ttusb: invalid response marker")
	ErrWrongLength     = errors.New("ttusb: wrong response length")
	ErrCounterMismatch = errors.New("ttusb: message counter out of sync")
	ErrUnexpectedOp    = errors.New("ttusb: unexpected response opcode")
)

// Session precondition errors.
var (
	ErrFileOpen        = errors.New("ttusb: a file is already open")
	ErrFileNotOpen     = errors.New("ttusb: no file is open")
	ErrInvalidArgument = errors.New("ttusb: invalid argument")
)

// FrameKind tells which validated field of a response frame was wrong.
type FrameKind int

const (
	KindMarker FrameKind = iota + 1
	KindLength
	KindCounter
	KindOpcode
)

func (k FrameKind) String() string {
	switch k {
	case KindMarker:
		return "marker"
	case KindLength:
		return "length"
	case KindCounter:
		return "counter"
	case KindOpcode:
		return "opcode"
	default:
		return fmt.Sprintf("FrameKind(%d)", int(k))
	}
}

// FrameError reports a response frame that failed validation.
type FrameError struct {
	Kind     FrameKind
	Opcode   byte // request opcode
	Expected int
	Actual   int
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("ttusb: %s: invalid response %s: got 0x%02x, expected 0x%02x",
		opcodeName(e.Opcode), e.Kind, e.Actual, e.Expected)
}

func (e *FrameError) Is(target error) bool {
	switch target {
	case ErrInvalidMarker:
		return e.Kind == KindMarker
	case ErrWrongLength:
		return e.Kind == KindLength
	case ErrCounterMismatch:
		return e.Kind == KindCounter
	case ErrUnexpectedOp:
		return e.Kind == KindOpcode
	}
	return false
}

// DeviceError reports a non-zero status word returned by the watch.
type DeviceError struct {
	Op     string
	ID     fileid.ID
	Status uint32
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("ttusb: %s %s: device status 0x%08x", e.Op, e.ID, e.Status)
}

// VerifyError indicates that a file read back after writing differs from
// the bytes written.
type VerifyError struct {
	ID       fileid.ID
	Offset   int // first differing byte, or the shorter length
	Written  int
	ReadBack int
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("ttusb: verify %s: mismatch at offset %d (wrote %d bytes, read back %d)",
		e.ID, e.Offset, e.Written, e.ReadBack)
}
