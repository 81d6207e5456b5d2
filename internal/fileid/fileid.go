// Package fileid describes the 32-bit identifiers of the watch's flat file
// table. The high 16 bits select the file type and the low 16 bits the
// instance within that type.
package fileid

import (
	"fmt"
	"strconv"
	"strings"
)

// ID identifies one file on the watch.
type ID uint32

// TypeMask selects the file type bits of an ID.
const TypeMask ID = 0xffff0000

// File types, already shifted into the high half.
const (
	// AnyType matches every file when used as a type filter.
	AnyType ID = 0xffffffff

	TypeFirmware       ID = 0x00000000
	TypeGPSQuickFix    ID = 0x00010000
	TypeRace           ID = 0x00710000
	TypeRaceHistory    ID = 0x00720000
	TypeHistoryData    ID = 0x00730000
	TypeHistorySummary ID = 0x00830000
	TypeManifest       ID = 0x00850000
	TypeTTBIN          ID = 0x00910000
	TypePreferences    ID = 0x00f20000
)

// Well-known files.
const (
	SystemFirmware ID = 0x000000f0
	GPSFirmware    ID = 0x00000010
	BLEFirmware    ID = 0x00000012
	GPSQuickFix    ID = 0x00010100
	Manifest       ID = 0x00850000
	Preferences    ID = 0x00f20000
)

// New builds an ID from a type and an instance number.
func New(typ ID, instance uint16) ID {
	return typ&TypeMask | ID(instance)
}

// Type returns the file type bits of id.
func (id ID) Type() ID { return id & TypeMask }

// Instance returns the instance bits of id.
func (id ID) Instance() uint16 { return uint16(id) }

// Is reports whether id belongs to file type typ. Every id is of AnyType.
func (id ID) Is(typ ID) bool {
	return typ == AnyType || id.Type() == typ&TypeMask
}

// Parse parses a hexadecimal file id, with or without a 0x prefix.
func Parse(s string) (ID, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid file id %q: %w", s, err)
	}
	return ID(v), nil
}

func (id ID) String() string {
	return fmt.Sprintf("0x%08x", uint32(id))
}

// TypeName returns a short description of the file type.
func (id ID) TypeName() string {
	switch id.Type() {
	case TypeFirmware:
		return "firmware"
	case TypeGPSQuickFix:
		return "gps quickfix"
	case TypeRace:
		return "race"
	case TypeRaceHistory:
		return "race history"
	case TypeHistoryData:
		return "history data"
	case TypeHistorySummary:
		return "history summary"
	case TypeManifest:
		return "manifest"
	case TypeTTBIN:
		return "activity"
	case TypePreferences:
		return "preferences"
	default:
		return "unknown"
	}
}
