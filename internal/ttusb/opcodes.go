package ttusb

import "fmt"

// USB identification of the watches.
const (
	VendorID = 0x1390

	ProductMultiSport  = 0x7474
	ProductSparkMusic  = 0x7475
	ProductSparkCardio = 0x7477

	// EndpointOut and EndpointIn are the interrupt endpoint addresses.
	EndpointOut = 0x05
	EndpointIn  = 0x84
)

// Frame layout.
const (
	PacketSize     = 64
	RequestMarker  = 0x09
	ResponseMarker = 0x01

	headerSize = 4

	// MaxPayload is the largest payload one frame can carry.
	MaxPayload = PacketSize - headerSize

	// largeResponse is the frame length at and above which a response is
	// treated as variable sized and its length byte is not checked.
	largeResponse = 60
)

// Transfer chunk limits.
const (
	ReadChunkSize  = 50
	WriteChunkSize = 54
)

// Opcodes.
const (
	OpOpenFileWrite        = 0x02
	OpDeleteFile           = 0x03
	OpWriteFileData        = 0x04
	OpGetFileSize          = 0x05
	OpOpenFileRead         = 0x06
	OpReadFileData         = 0x07
	OpReadFileDataResponse = 0x09
	OpFindClose            = 0x0a
	OpCloseFile            = 0x0c
	OpUnknown0D            = 0x0d
	OpFormatWatch          = 0x0e
	OpResetDevice          = 0x10
	OpFindFirstFile        = 0x11
	OpFindNextFile         = 0x12
	OpGetCurrentTime       = 0x14
	OpUnknown1A            = 0x1a
	OpResetGPSProcessor    = 0x1d
	OpUnknown1F            = 0x1f
	OpGetProductID         = 0x20
	OpGetFirmwareVersion   = 0x21
	OpUnknown22            = 0x22
	OpUnknown23            = 0x23
	OpGetBLEVersion        = 0x28
)

// Response payload sizes.
const (
	fileStatusSize   = 12 // id, reserved, status
	findResponseSize = 16 // id, reserved, size, end-of-list
	readHeaderSize   = 8  // id, length
	wordSize         = 4
	housekeepingSize = 20
	stringSize       = 58
)

// responseOpcode returns the opcode a reply to op must carry.
func responseOpcode(op byte) byte {
	if op == OpReadFileData {
		return OpReadFileDataResponse
	}
	return op
}

type housekeeping struct {
	op      byte
	respLen int
}

// Fixed message groups the firmware expects at certain points of a session.
var (
	startupGroup = []housekeeping{
		{OpUnknown0D, housekeepingSize},
		{OpUnknown22, wordSize},
		{OpUnknown0D, housekeepingSize},
		{OpUnknown1F, wordSize},
	}
	fileListGroup = []housekeeping{
		{OpUnknown0D, housekeepingSize},
	}
	firmwareGroup = []housekeeping{
		{OpUnknown23, wordSize},
		{OpUnknown1A, wordSize},
	}
)

func opcodeName(op byte) string {
	switch op {
	case OpOpenFileWrite:
		return "open file (write)"
	case OpDeleteFile:
		return "delete file"
	case OpWriteFileData:
		return "write file data"
	case OpGetFileSize:
		return "get file size"
	case OpOpenFileRead:
		return "open file (read)"
	case OpReadFileData:
		return "read file data"
	case OpReadFileDataResponse:
		return "read file data response"
	case OpFindClose:
		return "find close"
	case OpCloseFile:
		return "close file"
	case OpFormatWatch:
		return "format watch"
	case OpResetDevice:
		return "reset device"
	case OpFindFirstFile:
		return "find first file"
	case OpFindNextFile:
		return "find next file"
	case OpGetCurrentTime:
		return "get current time"
	case OpResetGPSProcessor:
		return "reset gps processor"
	case OpGetProductID:
		return "get product id"
	case OpGetFirmwareVersion:
		return "get firmware version"
	case OpGetBLEVersion:
		return "get ble version"
	default:
		return fmt.Sprintf("opcode 0x%02x", op)
	}
}
