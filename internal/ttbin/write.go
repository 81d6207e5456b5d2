package ttbin

import (
	"bytes"
	"fmt"
	"io"
	"slices"
)

type tableEntry struct {
	tag  Tag
	size int // payload bytes, without the tag
}

// lengthTable lists every tag the file will contain, sorted by tag.
func (f *File) lengthTable() ([]tableEntry, error) {
	sizes := map[Tag]int{TagSummary: recordSize[TagSummary]}
	for _, p := range f.Records() {
		tag := p.Tag()
		if tag == TagHeader {
			return nil, fmt.Errorf("ttbin: header tag used as a record")
		}
		size, known := recordSize[tag]
		if u, ok := p.(*Unknown); ok {
			size = len(u.Data)
			known = false
		}
		if prev, ok := sizes[tag]; ok {
			if !known && prev != size {
				return nil, fmt.Errorf("ttbin: %s records of %d and %d bytes", tag, prev, size)
			}
			continue
		}
		sizes[tag] = size
	}
	if len(sizes)+1 > MaxTags {
		return nil, fmt.Errorf("%w: %d", ErrTooManyTags, len(sizes)+1)
	}

	table := make([]tableEntry, 0, len(sizes)+1)
	table = append(table, tableEntry{tag: TagHeader})
	for tag, size := range sizes {
		table = append(table, tableEntry{tag: tag, size: size})
	}
	slices.SortFunc(table, func(a, b tableEntry) int { return int(a.tag) - int(b.tag) })
	table[0].size = headerSize + 3*len(table)
	return table, nil
}

// Bytes serializes the file, ending with a summary record built from
// f.Summary.
func (f *File) Bytes() ([]byte, error) {
	table, err := f.lengthTable()
	if err != nil {
		return nil, err
	}

	off := f.UTCOffset
	b := make([]byte, 0, 1+table[0].size+f.Len()*28)
	b = append(b, byte(TagHeader))
	b = appendU16(b, f.FileVersion)
	b = append(b, f.FirmwareVersion[:]...)
	b = appendU16(b, f.ProductID)
	b = appendU32(b, toLocal(f.StartTime, off))
	b = append(b, f.SoftwareVersion[:]...)
	b = append(b, f.GPSFirmwareVersion[:]...)
	b = appendU32(b, toLocal(f.WatchTime, off))
	b = appendU32(b, uint32(off))
	b = append(b, f.Reserved, byte(len(table)))
	for _, e := range table {
		b = appendU16(append(b, byte(e.tag)), uint16(1+e.size))
	}

	for _, p := range f.Records() {
		b = p.appendTo(append(b, byte(p.Tag())), off)
	}
	b = f.Summary.appendTo(append(b, byte(TagSummary)), off)
	return b, nil
}

// WriteTo writes the serialized file to w.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	b, err := f.Bytes()
	if err != nil {
		return 0, err
	}
	return bytes.NewReader(b).WriteTo(w)
}
