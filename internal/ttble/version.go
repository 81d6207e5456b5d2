package ttble

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Version is a dotted firmware version.
type Version [3]int

// ParseVersion parses "major.minor.build".
func ParseVersion(s string) (Version, error) {
	var v Version
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != len(v) {
		return v, fmt.Errorf("invalid firmware version %q", s)
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("invalid firmware version %q", s)
		}
		v[i] = n
	}
	return v, nil
}

// Compare returns -1, 0 or +1 as v is older than, equal to or newer
// than o.
func (v Version) Compare(o Version) int {
	return slices.Compare(v[:], o[:])
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2])
}

type firmwareRange struct {
	minimum Version
	newest  Version // newest version tested against
}

var firmwareRanges = map[Generation]firmwareRange{
	GenerationV1: {minimum: Version{1, 8, 34}, newest: Version{1, 8, 52}},
	GenerationV2: {minimum: Version{1, 1, 19}, newest: Version{1, 1, 19}},
}

var testedModels = []string{"1001", "1002", "1003", "1004", "1005", "1006", "1007"}

// Info is the device information table of a watch.
type Info struct {
	Manufacturer string
	SerialNumber string
	UserName     string
	ModelName    string
	ModelNumber  string
	Firmware     Version
}

// ReadInfo reads the device information characteristics.
func (s *Session) ReadInfo(ctx context.Context) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		info Info
		fw   string
	)
	fields := []struct {
		handle uint16
		dst    *string
	}{
		{HandleManufacturer, &info.Manufacturer},
		{HandleSerialNumber, &info.SerialNumber},
		{HandleUserName, &info.UserName},
		{HandleModelName, &info.ModelName},
		{HandleModelNumber, &info.ModelNumber},
		{HandleFirmware, &fw},
	}
	for _, f := range fields {
		v, err := s.client.Read(ctx, f.handle)
		if err != nil {
			return Info{}, fmt.Errorf("read device info 0x%04x: %w", f.handle, err)
		}
		*f.dst = strings.TrimRight(string(v), "\x00")
	}

	ver, err := ParseVersion(fw)
	if err != nil {
		return Info{}, err
	}
	info.Firmware = ver
	return info, nil
}

// CheckDeviceVersion reads the device information and rejects firmware
// below the supported floor of the session's generation. Firmware newer
// than the newest tested version and untested models are only logged.
func (s *Session) CheckDeviceVersion(ctx context.Context) (Info, error) {
	info, err := s.ReadInfo(ctx)
	if err != nil {
		return Info{}, err
	}

	r := firmwareRanges[s.generation]
	if info.Firmware.Compare(r.minimum) < 0 {
		return info, &FirmwareTooOldError{Version: info.Firmware, Minimum: r.minimum}
	}
	if info.Firmware.Compare(r.newest) > 0 {
		s.logger.Printf("BLESession: WARNING: firmware %s is newer than the newest tested %s", info.Firmware, r.newest)
	}
	if !slices.Contains(testedModels, info.ModelNumber) {
		s.logger.Printf("BLESession: WARNING: model %q has not been tested", info.ModelNumber)
	}
	return info, nil
}
