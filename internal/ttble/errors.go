package ttble

import (
	"errors"
	"fmt"

	"github.com/lowaak/ttwatch/internal/fileid"
)

var (
	// ErrUnauthorized is returned when the watch rejects the passcode.
	ErrUnauthorized = errors.New("ttble: passcode rejected")
	// ErrOverrun is returned when a notification crosses a checkpoint
	// boundary or the end of the file.
	ErrOverrun = errors.New("ttble: transfer overran checkpoint")
	// ErrMalformedList is returned for a sub-file list that does not match
	// its entry count.
	ErrMalformedList = errors.New("ttble: malformed file list")
	// ErrUnknownGeneration is returned for a generation without a handle
	// table.
	ErrUnknownGeneration = errors.New("ttble: unknown protocol generation")
)

// ChecksumError reports a checkpoint window whose CRC residue is not zero.
type ChecksumError struct {
	Offset int // file offset of the window start
	Length int // window length including the CRC
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("ttble: checksum mismatch in %d byte window at offset %d", e.Length, e.Offset)
}

// CounterError reports a checkpoint acknowledgement with the wrong counter.
type CounterError struct {
	Expected uint32
	Actual   uint32
}

func (e *CounterError) Error() string {
	return fmt.Sprintf("ttble: checkpoint counter %d, expected %d", e.Actual, e.Expected)
}

// HandleError reports a notification on an unexpected handle.
type HandleError struct {
	Expected uint16
	Actual   uint16
}

func (e *HandleError) Error() string {
	return fmt.Sprintf("ttble: notification on handle 0x%04x, expected 0x%04x", e.Actual, e.Expected)
}

// StatusError reports an unexpected status notified by the watch.
type StatusError struct {
	Op     string
	ID     fileid.ID
	Status uint32
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ttble: %s %s: status %d", e.Op, e.ID, e.Status)
}

// FirmwareTooOldError is returned by CheckDeviceVersion for firmware below
// the supported floor.
type FirmwareTooOldError struct {
	Version Version
	Minimum Version
}

func (e *FirmwareTooOldError) Error() string {
	return fmt.Sprintf("ttble: firmware %s is older than the minimum supported %s", e.Version, e.Minimum)
}
