// Package att is a minimal Attribute Protocol client: handle reads, write
// requests and commands, and handle value notifications, over an L2CAP
// connection on the fixed ATT channel.
package att

import "fmt"

// PDU opcodes.
const (
	OpError         = 0x01
	OpReadRequest   = 0x0a
	OpReadResponse  = 0x0b
	OpWriteRequest  = 0x12
	OpWriteResponse = 0x13
	OpNotification  = 0x1b
	OpWriteCommand  = 0x52
)

// CID is the fixed L2CAP channel of the Attribute Protocol.
const CID = 0x0004

// DefaultMTU is the ATT MTU before any exchange. A notification carries at
// most DefaultMTU-3 bytes of value.
const DefaultMTU = 23

// errorResponseSize is opcode, request opcode, handle and error code.
const errorResponseSize = 5

// ErrorCode is an ATT error code carried by an error response. It
// implements error so that callers can match with errors.Is.
type ErrorCode byte

const (
	ErrInvalidHandle                 ErrorCode = 0x01
	ErrReadNotPermitted              ErrorCode = 0x02
	ErrWriteNotPermitted             ErrorCode = 0x03
	ErrInvalidPDU                    ErrorCode = 0x04
	ErrInsufficientAuthentication    ErrorCode = 0x05
	ErrRequestNotSupported           ErrorCode = 0x06
	ErrInvalidOffset                 ErrorCode = 0x07
	ErrInsufficientAuthorization     ErrorCode = 0x08
	ErrPrepareQueueFull              ErrorCode = 0x09
	ErrAttributeNotFound             ErrorCode = 0x0a
	ErrAttributeNotLong              ErrorCode = 0x0b
	ErrInsufficientEncryptionKeySize ErrorCode = 0x0c
	ErrInvalidAttributeValueLength   ErrorCode = 0x0d
	ErrUnlikely                      ErrorCode = 0x0e
	ErrInsufficientEncryption        ErrorCode = 0x0f
	ErrUnsupportedGroupType          ErrorCode = 0x10
	ErrInsufficientResources         ErrorCode = 0x11
)

var errorNames = map[ErrorCode]string{
	ErrInvalidHandle:                 "invalid handle",
	ErrReadNotPermitted:              "read not permitted",
	ErrWriteNotPermitted:             "write not permitted",
	ErrInvalidPDU:                    "invalid PDU",
	ErrInsufficientAuthentication:    "insufficient authentication",
	ErrRequestNotSupported:           "request not supported",
	ErrInvalidOffset:                 "invalid offset",
	ErrInsufficientAuthorization:     "insufficient authorization",
	ErrPrepareQueueFull:              "prepare queue full",
	ErrAttributeNotFound:             "attribute not found",
	ErrAttributeNotLong:              "attribute not long",
	ErrInsufficientEncryptionKeySize: "insufficient encryption key size",
	ErrInvalidAttributeValueLength:   "invalid attribute value length",
	ErrUnlikely:                      "unlikely error",
	ErrInsufficientEncryption:        "insufficient encryption",
	ErrUnsupportedGroupType:          "unsupported group type",
	ErrInsufficientResources:         "insufficient resources",
}

func (c ErrorCode) name() string {
	if name, ok := errorNames[c]; ok {
		return name
	}
	return fmt.Sprintf("error code 0x%02x", byte(c))
}

func (c ErrorCode) Error() string { return "att: " + c.name() }

func opcodeName(op byte) string {
	switch op {
	case OpError:
		return "error response"
	case OpReadRequest:
		return "read request"
	case OpReadResponse:
		return "read response"
	case OpWriteRequest:
		return "write request"
	case OpWriteResponse:
		return "write response"
	case OpNotification:
		return "notification"
	case OpWriteCommand:
		return "write command"
	default:
		return fmt.Sprintf("opcode 0x%02x", op)
	}
}
