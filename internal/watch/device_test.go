package watch

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/ttwatch/internal/fileid"
	"github.com/lowaak/ttwatch/internal/ttbin"
)

var errMissing = errors.New("no such file")

// memChannel is a FileChannel over an in-memory file table.
type memChannel struct {
	files   map[fileid.ID][]byte
	writes  []fileid.ID
	resets  int
	closed  bool
	failing bool
}

func newMemChannel() *memChannel {
	return &memChannel{files: make(map[fileid.ID][]byte)}
}

func (m *memChannel) ReadFile(_ context.Context, id fileid.ID) ([]byte, error) {
	data, ok := m.files[id]
	if !ok {
		return nil, errMissing
	}
	return bytes.Clone(data), nil
}

func (m *memChannel) WriteFile(_ context.Context, id fileid.ID, data []byte) error {
	if m.failing {
		return errors.New("write failed")
	}
	m.files[id] = bytes.Clone(data)
	m.writes = append(m.writes, id)
	return nil
}

func (m *memChannel) DeleteFile(_ context.Context, id fileid.ID) error {
	if _, ok := m.files[id]; !ok {
		return errMissing
	}
	delete(m.files, id)
	return nil
}

func (m *memChannel) ListFiles(_ context.Context, typ fileid.ID) ([]fileid.ID, error) {
	var ids []fileid.ID
	for id := range m.files {
		if id.Is(typ) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *memChannel) ResetGPSProcessor(context.Context) error {
	m.resets++
	return nil
}

func (m *memChannel) Close() error {
	m.closed = true
	return nil
}

type fetchFunc func(ctx context.Context, url string) ([]byte, error)

func (f fetchFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

func newTestDevice(t *testing.T) (*Device, *memChannel) {
	t.Helper()
	ch := newMemChannel()
	return New(ch, Info{Transport: TransportUSB}, log.New(io.Discard, "", 0)), ch
}

const testPrefs = `<?xml version="1.0" encoding="UTF-8"?>
<preferences version="1" modified="seconds since 1970">
<ephemeris modified="1700000000"/>
<watchName>Runner</watchName>
</preferences>
`

func manifest(entries ...uint32) []byte {
	b := binary.LittleEndian.AppendUint16(nil, 1)
	b = binary.LittleEndian.AppendUint16(b, uint16(len(entries)/2))
	for i := 0; i+1 < len(entries); i += 2 {
		b = binary.LittleEndian.AppendUint16(b, uint16(entries[i]))
		b = binary.LittleEndian.AppendUint32(b, entries[i+1])
	}
	return b
}

func TestNew_Panics(t *testing.T) {
	assert.Panics(t, func() { New(nil, Info{}, log.Default()) })
	assert.Panics(t, func() { New(newMemChannel(), Info{}, nil) })
}

func TestWatchName(t *testing.T) {
	ctx := context.Background()
	d, ch := newTestDevice(t)
	ch.files[fileid.Preferences] = []byte(testPrefs)

	name, err := d.WatchName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Runner", name)

	require.NoError(t, d.SetWatchName(ctx, "Tom & Jerry"))
	name, err = d.WatchName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Tom & Jerry", name)
	assert.Empty(t, ch.writes, "written before flush")

	require.NoError(t, d.Close(ctx))
	assert.True(t, ch.closed)
	assert.Equal(t, []fileid.ID{fileid.Preferences}, ch.writes)
	assert.Contains(t, string(ch.files[fileid.Preferences]), "<watchName>Tom &amp; Jerry</watchName>")
	assert.Contains(t, string(ch.files[fileid.Preferences]), `<ephemeris modified="1700000000"/>`)
}

func TestSetWatchName_Inserted(t *testing.T) {
	ctx := context.Background()
	d, ch := newTestDevice(t)
	ch.files[fileid.Preferences] = []byte("<preferences></preferences>")

	_, err := d.WatchName(ctx)
	assert.ErrorIs(t, err, ErrNoWatchName)

	require.NoError(t, d.SetWatchName(ctx, "Mine"))
	require.NoError(t, d.Flush(ctx))
	assert.Equal(t, "<preferences><watchName>Mine</watchName></preferences>", string(ch.files[fileid.Preferences]))

	// A clean cache is not written again.
	require.NoError(t, d.Flush(ctx))
	assert.Len(t, ch.writes, 1)
}

func TestPreferences_ReadError(t *testing.T) {
	d, _ := newTestDevice(t)
	_, err := d.WatchName(context.Background())
	assert.ErrorIs(t, err, errMissing)
}

func TestManifest(t *testing.T) {
	ctx := context.Background()
	d, ch := newTestDevice(t)
	ch.files[fileid.Manifest] = manifest(0, 1, 12, 300, 22, 7)

	v, err := d.ManifestEntry(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, uint32(300), v)

	_, err = d.ManifestEntry(ctx, 13)
	assert.ErrorIs(t, err, ErrNoManifestEntry)
	assert.ErrorIs(t, d.SetManifestEntry(ctx, 13, 1), ErrNoManifestEntry)

	require.NoError(t, d.SetManifestEntry(ctx, 22, 0x01020304))
	require.NoError(t, d.Close(ctx))
	assert.Equal(t, manifest(0, 1, 12, 300, 22, 0x01020304), ch.files[fileid.Manifest])
}

func TestManifest_Malformed(t *testing.T) {
	ctx := context.Background()
	d, ch := newTestDevice(t)

	ch.files[fileid.Manifest] = []byte{1, 0}
	_, err := d.ManifestEntry(ctx, 0)
	assert.ErrorIs(t, err, ErrMalformedManifest)

	ch.files[fileid.Manifest] = manifest(0, 1)[:8]
	_, err = d.ManifestEntry(ctx, 0)
	assert.ErrorIs(t, err, ErrMalformedManifest)
}

func TestWriteFile_DropsCache(t *testing.T) {
	ctx := context.Background()
	d, ch := newTestDevice(t)
	ch.files[fileid.Preferences] = []byte(testPrefs)

	require.NoError(t, d.SetWatchName(ctx, "Cached"))
	require.NoError(t, d.WriteFile(ctx, fileid.Preferences, []byte("<preferences><watchName>Direct</watchName></preferences>")))

	name, err := d.WatchName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Direct", name)
	require.NoError(t, d.Close(ctx))
	assert.Len(t, ch.writes, 1)
}

func TestClose_FlushError(t *testing.T) {
	ctx := context.Background()
	d, ch := newTestDevice(t)
	ch.files[fileid.Preferences] = []byte(testPrefs)
	require.NoError(t, d.SetWatchName(ctx, "x"))

	ch.failing = true
	assert.Error(t, d.Close(ctx))
	assert.True(t, ch.closed)
}

func activity(t *testing.T) *ttbin.File {
	t.Helper()
	start := time.Unix(1700000000, 0).UTC()
	f := ttbin.NewFile(ttbin.Header{FileVersion: 10, StartTime: start, WatchTime: start}, ttbin.ActivityRunning)
	f.Append(&ttbin.Status{Activity: ttbin.ActivityRunning, Timestamp: start})
	for i := range 5 {
		f.Append(&ttbin.GPS{
			Latitude:           52,
			Longitude:          4,
			Timestamp:          start.Add(time.Duration(i) * time.Second),
			CumulativeDistance: float32(i * 3),
		})
	}
	f.UpdateSummary()
	return f
}

func TestActivities(t *testing.T) {
	ctx := context.Background()
	d, ch := newTestDevice(t)
	ch.files[fileid.Preferences] = []byte(testPrefs)
	ch.files[fileid.New(fileid.TypeRace, 1)] = []byte{0}

	id := fileid.New(fileid.TypeTTBIN, 3)
	require.NoError(t, d.RewriteActivity(ctx, id, activity(t)))

	ids, err := d.Activities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []fileid.ID{id}, ids)

	races, err := d.Races(ctx)
	require.NoError(t, err)
	assert.Equal(t, []fileid.ID{fileid.New(fileid.TypeRace, 1)}, races)

	f, err := d.ReadActivity(ctx, id)
	require.NoError(t, err)
	assert.Len(t, f.GPS(), 5)
	assert.Equal(t, float32(12), f.Summary.Distance)
	assert.Equal(t, uint32(4), f.Summary.Duration)

	_, err = d.ReadActivity(ctx, fileid.Preferences)
	assert.Error(t, err)

	ch.files[fileid.New(fileid.TypeTTBIN, 4)] = []byte{0x55}
	_, err = d.ReadActivity(ctx, fileid.New(fileid.TypeTTBIN, 4))
	var fe *ttbin.FormatError
	assert.ErrorAs(t, err, &fe)
}

func TestUpdateGPSQuickFix(t *testing.T) {
	ctx := context.Background()
	d, ch := newTestDevice(t)

	var got string
	fetch := fetchFunc(func(_ context.Context, url string) ([]byte, error) {
		got = url
		return []byte("almanac"), nil
	})
	require.NoError(t, d.UpdateGPSQuickFix(ctx, fetch, "https://example.invalid/qf.bin"))
	assert.Equal(t, "https://example.invalid/qf.bin", got)
	assert.Equal(t, []byte("almanac"), ch.files[fileid.GPSQuickFix])
	assert.Equal(t, 1, ch.resets)

	failed := fetchFunc(func(context.Context, string) ([]byte, error) { return nil, io.ErrUnexpectedEOF })
	assert.ErrorIs(t, d.UpdateGPSQuickFix(ctx, failed, "x"), io.ErrUnexpectedEOF)
	assert.Equal(t, 1, ch.resets)
}

func TestDeleteFile(t *testing.T) {
	ctx := context.Background()
	d, ch := newTestDevice(t)
	ch.files[fileid.New(fileid.TypeTTBIN, 1)] = []byte{1}

	require.NoError(t, d.DeleteFile(ctx, fileid.New(fileid.TypeTTBIN, 1)))
	assert.Empty(t, ch.files)
	assert.ErrorIs(t, d.DeleteFile(ctx, fileid.New(fileid.TypeTTBIN, 1)), errMissing)
}

func TestTransportString(t *testing.T) {
	assert.Equal(t, "usb", TransportUSB.String())
	assert.Equal(t, "ble", TransportBLE.String())
}
