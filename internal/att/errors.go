package att

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when no PDU arrives before the read deadline.
	ErrTimeout = errors.New("att: receive timed out")
	// ErrShortPDU is returned for a PDU too short for its opcode.
	ErrShortPDU = errors.New("att: short PDU")
)

// ResponseError is an error response from the server.
type ResponseError struct {
	Request byte // opcode of the failed request
	Handle  uint16
	Code    ErrorCode
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("att: %s on handle 0x%04x failed: %s",
		opcodeName(e.Request), e.Handle, e.Code.name())
}

func (e *ResponseError) Unwrap() error { return e.Code }

// OpcodeError reports a PDU that is not the expected reply.
type OpcodeError struct {
	Expected byte
	Actual   byte
}

func (e *OpcodeError) Error() string {
	return fmt.Sprintf("att: unexpected PDU: got %s, expected %s",
		opcodeName(e.Actual), opcodeName(e.Expected))
}
