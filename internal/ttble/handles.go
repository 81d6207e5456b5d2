// Package ttble implements the watch file protocol over BLE: authorization,
// checkpointed file transfers on top of ATT notifications, and the device
// information checks that gate a session.
package ttble

import "fmt"

// Generation selects the GATT layout of a watch. Each generation has its
// own fixed handle numbers.
type Generation int

const (
	GenerationV1 Generation = 1
	GenerationV2 Generation = 2
)

func (g Generation) String() string {
	switch g {
	case GenerationV1:
		return "v1"
	case GenerationV2:
		return "v2"
	default:
		return fmt.Sprintf("Generation(%d)", int(g))
	}
}

// Handles holds the attribute handles of one generation.
type Handles struct {
	Command  uint16 // command writes, status notifications
	Length   uint16 // transfer length notifications and writes
	Transfer uint16 // data stream
	Check    uint16 // checkpoint counter
	Passcode uint16
	Magic    uint16
	PPCP     uint16 // peripheral preferred connection parameters

	MagicValue []byte
}

// cccd returns the client characteristic configuration descriptor of the
// characteristic value at h.
func cccd(h uint16) uint16 { return h + 1 }

var handleTables = map[Generation]Handles{
	GenerationV1: {
		Command:    0x0025,
		Length:     0x0028,
		Transfer:   0x002b,
		Check:      0x002e,
		Passcode:   0x0032,
		Magic:      0x0035,
		PPCP:       0x000b,
		MagicValue: []byte{0x01, 0x13, 0x00, 0x00, 0x01, 0x12, 0x00, 0x00},
	},
	GenerationV2: {
		Command:    0x0072,
		Length:     0x0075,
		Transfer:   0x0078,
		Check:      0x007b,
		Passcode:   0x0082,
		Magic:      0x0085,
		PPCP:       0x000b,
		MagicValue: []byte{0x01, 0x19, 0x00, 0x00, 0x01, 0x17, 0x00, 0x00},
	},
}

// HandlesFor returns the handle table of g.
func HandlesFor(g Generation) (Handles, bool) {
	h, ok := handleTables[g]
	return h, ok
}

// Device information characteristics.
const (
	HandleUserName     = 0x0003
	HandleModelName    = 0x0014
	HandleSerialNumber = 0x0016
	HandleModelNumber  = 0x001a
	HandleFirmware     = 0x001c
	HandleManufacturer = 0x001e
)

// File command opcodes written to the command handle.
const (
	cmdWrite  = 0x00
	cmdRead   = 0x01
	cmdList   = 0x03
	cmdDelete = 0x04
)

// Transfer framing.
const (
	// PacketSize is the value size of one notification or write command.
	PacketSize = 20
	// CheckpointPackets is the number of packets per checkpoint window.
	CheckpointPackets = 256
	// CheckpointData is the data carried by a full window; the last two
	// bytes of every window are its CRC.
	CheckpointData = CheckpointPackets*PacketSize - 2
)

// Status values notified on the command handle.
const (
	statusDone  = 0
	statusReady = 1
)

// command encodes a file command. The id bytes are sent in the order the
// firmware expects: bits 16-23, 0-7, then 8-15.
func command(op byte, id uint32) []byte {
	return []byte{op, byte(id >> 16), byte(id), byte(id >> 8)}
}
