package att

import (
	"fmt"
	"strconv"
	"strings"
)

// Address is a Bluetooth device address in display order,
// e.g. "E4:04:39:12:34:56" is {0xe4, 0x04, 0x39, 0x12, 0x34, 0x56}.
type Address [6]byte

// AddressType distinguishes public from random LE addresses.
type AddressType uint8

const (
	AddressPublic AddressType = 1
	AddressRandom AddressType = 2
)

// ParseAddressType parses "public" or "random".
func ParseAddressType(s string) (AddressType, error) {
	switch strings.ToLower(s) {
	case "public", "":
		return AddressPublic, nil
	case "random":
		return AddressRandom, nil
	}
	return 0, fmt.Errorf("invalid address type %q", s)
}

// ParseAddress parses a colon separated Bluetooth address.
func ParseAddress(s string) (Address, error) {
	var a Address
	parts := strings.Split(s, ":")
	if len(parts) != len(a) {
		return a, fmt.Errorf("invalid bluetooth address %q", s)
	}
	for i, p := range parts {
		if len(p) != 2 {
			return Address{}, fmt.Errorf("invalid bluetooth address %q", s)
		}
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return Address{}, fmt.Errorf("invalid bluetooth address %q: %w", s, err)
		}
		a[i] = byte(v)
	}
	return a, nil
}

func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}
