package ttbin

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingSetup is returned for a result or progress record that
	// appears before the setup record it refers to.
	ErrMissingSetup = errors.New("ttbin: record without preceding setup")
	// ErrUnknownTag is returned for a record whose tag is not declared in
	// the header.
	ErrUnknownTag = errors.New("ttbin: tag not declared in header")
	// ErrTruncated is returned when the data ends inside a record.
	ErrTruncated = errors.New("ttbin: truncated data")
	// ErrTooManyTags is returned when a file uses more record types than
	// the header can declare.
	ErrTooManyTags = errors.New("ttbin: too many record types")
)

// FormatError describes malformed TTBIN data.
type FormatError struct {
	Offset int
	Tag    Tag
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("ttbin: %s at offset %d", e.Tag, e.Offset)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error { return e.Err }
