package watch

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"github.com/lowaak/ttwatch/internal/fileid"
)

var (
	// ErrNoWatchName is returned when the preferences carry no watch name.
	ErrNoWatchName = errors.New("watch: no watch name in preferences")
	// ErrNoManifestEntry is returned for a manifest index that is not
	// present.
	ErrNoManifestEntry = errors.New("watch: no such manifest entry")
	// ErrMalformedManifest is returned when the manifest is too short for
	// its declared entry count.
	ErrMalformedManifest = errors.New("watch: malformed manifest")
)

const (
	nameOpen      = "<watchName>"
	nameClose     = "</watchName>"
	prefsClose    = "</preferences>"
	manifestHead  = 4
	manifestEntry = 6
)

func (d *Device) preferences(ctx context.Context) ([]byte, error) {
	if d.prefs == nil {
		data, err := d.ch.ReadFile(ctx, fileid.Preferences)
		if err != nil {
			return nil, fmt.Errorf("read preferences: %w", err)
		}
		d.prefs = data
	}
	return d.prefs, nil
}

// Preferences returns the preferences XML.
func (d *Device) Preferences(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.preferences(ctx)
	return bytes.Clone(p), err
}

// WatchName returns the name shown by the watch.
func (d *Device) WatchName(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := d.preferences(ctx)
	if err != nil {
		return "", err
	}
	s := string(p)
	start := strings.Index(s, nameOpen)
	if start < 0 {
		return "", ErrNoWatchName
	}
	start += len(nameOpen)
	end := strings.Index(s[start:], nameClose)
	if end < 0 {
		return "", ErrNoWatchName
	}
	var name string
	if err := xml.Unmarshal([]byte(nameOpen+s[start:start+end]+nameClose), &name); err != nil {
		return "", fmt.Errorf("watch name: %w", err)
	}
	return name, nil
}

// SetWatchName changes the watch name. The preferences are written back by
// Flush or Close.
func (d *Device) SetWatchName(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := d.preferences(ctx)
	if err != nil {
		return err
	}
	var esc bytes.Buffer
	if err := xml.EscapeText(&esc, []byte(name)); err != nil {
		return err
	}
	elem := nameOpen + esc.String() + nameClose

	s := string(p)
	if start := strings.Index(s, nameOpen); start >= 0 {
		if end := strings.Index(s[start:], nameClose); end >= 0 {
			s = s[:start] + elem + s[start+end+len(nameClose):]
		} else {
			return ErrNoWatchName
		}
	} else if i := strings.LastIndex(s, prefsClose); i >= 0 {
		s = s[:i] + elem + s[i:]
	} else {
		return ErrNoWatchName
	}
	d.prefs = []byte(s)
	d.prefsDirty = true
	return nil
}

func (d *Device) manifestData(ctx context.Context) ([]byte, error) {
	if d.manifest == nil {
		data, err := d.ch.ReadFile(ctx, fileid.Manifest)
		if err != nil {
			return nil, fmt.Errorf("read manifest: %w", err)
		}
		if len(data) < manifestHead {
			return nil, fmt.Errorf("%w: %d bytes", ErrMalformedManifest, len(data))
		}
		count := int(binary.LittleEndian.Uint16(data[2:]))
		if len(data) < manifestHead+count*manifestEntry {
			return nil, fmt.Errorf("%w: %d entries in %d bytes", ErrMalformedManifest, count, len(data))
		}
		d.manifest = data
	}
	return d.manifest, nil
}

// findEntry returns the offset of the value of manifest entry index.
func findEntry(m []byte, index uint16) (int, bool) {
	count := int(binary.LittleEndian.Uint16(m[2:]))
	for i := range count {
		off := manifestHead + i*manifestEntry
		if binary.LittleEndian.Uint16(m[off:]) == index {
			return off + 2, true
		}
	}
	return 0, false
}

// ManifestEntry returns the value of setting index.
func (d *Device) ManifestEntry(ctx context.Context, index uint16) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, err := d.manifestData(ctx)
	if err != nil {
		return 0, err
	}
	off, ok := findEntry(m, index)
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrNoManifestEntry, index)
	}
	return binary.LittleEndian.Uint32(m[off:]), nil
}

// SetManifestEntry changes the value of an existing setting. The manifest
// is written back by Flush or Close.
func (d *Device) SetManifestEntry(ctx context.Context, index uint16, value uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, err := d.manifestData(ctx)
	if err != nil {
		return err
	}
	off, ok := findEntry(m, index)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoManifestEntry, index)
	}
	binary.LittleEndian.PutUint32(m[off:], value)
	d.manifestDirty = true
	return nil
}
