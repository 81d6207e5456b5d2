package ttbin

import (
	"bytes"
	"fmt"
)

// headerSize is the fixed part of the header record, excluding the tag byte
// and the length table.
//
// Every length in the table counts the record's tag byte, so a GPS record
// is declared as 28 bytes and carries a 27 byte payload.
const headerSize = 117

// Parse decodes a complete TTBIN file. It never returns a partially parsed
// file: any error discards everything decoded so far.
func Parse(data []byte) (*File, error) {
	if len(data) == 0 || Tag(data[0]) != TagHeader {
		return nil, &FormatError{Offset: 0, Tag: TagHeader, Reason: "missing file header"}
	}
	h, lengths, off, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	f := NewFile(h, 0)
	var (
		sawSummary bool
		seen       = make(map[Tag]bool)
	)
	for off < len(data) {
		tag := Tag(data[off])
		size, ok := lengths[tag]
		if !ok {
			return nil, &FormatError{Offset: off, Tag: tag, Err: ErrUnknownTag}
		}
		if tag == TagHeader {
			return nil, &FormatError{Offset: off, Tag: tag, Reason: "repeated file header"}
		}
		if size < 1 {
			return nil, &FormatError{Offset: off, Tag: tag, Reason: fmt.Sprintf("declared length %d", size)}
		}
		if off+size > len(data) {
			return nil, &FormatError{Offset: off, Tag: tag, Err: ErrTruncated}
		}
		payload := data[off+1 : off+size]

		if need, ok := prerequisite[tag]; ok && !seen[need] {
			return nil, &FormatError{Offset: off, Tag: tag, Reason: "no " + need.String() + " record", Err: ErrMissingSetup}
		}
		seen[tag] = true

		decode, known := decoders[tag]
		if !known {
			f.Append(&Unknown{Type: tag, Data: bytes.Clone(payload)})
			off += size
			continue
		}
		if len(payload) < recordSize[tag] {
			return nil, &FormatError{
				Offset: off,
				Tag:    tag,
				Reason: fmt.Sprintf("declared length %d, want at least %d", size, 1+recordSize[tag]),
			}
		}
		p := decode(&fieldReader{b: payload}, h.UTCOffset)
		off += size
		switch p := p.(type) {
		case nil:
		case *Summary:
			f.Summary = *p
			sawSummary = true
		default:
			f.Append(p)
		}
	}

	if !sawSummary {
		if st := f.Status(); len(st) > 0 {
			f.Summary.Activity = st[0].Activity
		}
		f.UpdateSummary()
	}
	return f, nil
}

// prerequisite maps a record tag to the setup tag that must appear earlier
// in the stream.
var prerequisite = map[Tag]Tag{
	TagRaceResult:     TagRaceSetup,
	TagGoalProgress:   TagTrainingSetup,
	TagIntervalFinish: TagIntervalSetup,
}

func parseHeader(data []byte) (Header, map[Tag]int, int, error) {
	var h Header
	if len(data) < 1+headerSize {
		return h, nil, 0, &FormatError{Offset: 0, Tag: TagHeader, Err: ErrTruncated}
	}
	r := &fieldReader{b: data, off: 1}
	h.FileVersion = r.u16()
	r.bytes(h.FirmwareVersion[:])
	h.ProductID = r.u16()
	start := r.u32()
	r.bytes(h.SoftwareVersion[:])
	r.bytes(h.GPSFirmwareVersion[:])
	watch := r.u32()
	h.UTCOffset = r.i32()
	h.Reserved = r.u8()
	h.StartTime = toUTC(start, h.UTCOffset)
	h.WatchTime = toUTC(watch, h.UTCOffset)

	count := int(r.u8())
	if count > MaxTags {
		return h, nil, 0, &FormatError{Offset: r.off - 1, Tag: TagHeader, Reason: fmt.Sprintf("%d record types", count), Err: ErrTooManyTags}
	}
	if len(data) < r.off+3*count {
		return h, nil, 0, &FormatError{Offset: 0, Tag: TagHeader, Err: ErrTruncated}
	}
	lengths := make(map[Tag]int, count)
	for range count {
		tag := Tag(r.u8())
		lengths[tag] = int(r.u16())
	}
	return h, lengths, r.off, nil
}
