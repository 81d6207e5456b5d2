package main

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/ttwatch/internal/ttbin"
)

var testStart = time.Unix(1700000000, 0).UTC()

func testActivity(laps bool) *ttbin.File {
	f := ttbin.NewFile(ttbin.Header{FileVersion: 10, StartTime: testStart, WatchTime: testStart, UTCOffset: 3600}, ttbin.ActivityTrailRunning)
	f.Append(&ttbin.Status{Activity: ttbin.ActivityTrailRunning, Timestamp: testStart})
	for i := range 6 {
		f.Append(&ttbin.GPS{
			Latitude:           52.25,
			Longitude:          4.5,
			Timestamp:          testStart.Add(time.Duration(10*i) * time.Second),
			Calories:           uint16(i),
			CumulativeDistance: float32(100 * i),
		})
		if laps && i == 3 {
			f.Append(&ttbin.Lap{TotalTime: 30, TotalDistance: 300, TotalCalories: 3})
		}
	}
	f.UpdateSummary()
	return f
}

func writeActivity(t *testing.T, f *ttbin.File) string {
	t.Helper()
	data, err := f.Bytes()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "run.ttbin")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func readBack(t *testing.T, path string) *ttbin.File {
	t.Helper()
	f, err := readActivityFile(path)
	require.NoError(t, err)
	return f
}

var discard = log.New(io.Discard, "", 0)

func TestFlags(t *testing.T) {
	var o options
	fs := newFlagSet(&o)
	require.NoError(t, fs.Parse([]string{"--update-gps", "--read", "0x00910000", "out.bin", "--transport", "ble"}))
	assert.Equal(t, defaultQuickFixURL, o.updateGPS)
	assert.Equal(t, "0x00910000", o.read)
	assert.Equal(t, []string{"out.bin"}, fs.Args())
	assert.True(t, o.needsWatch())

	o = options{}
	fs = newFlagSet(&o)
	require.NoError(t, fs.Parse([]string{"--convert", "a.ttbin"}))
	assert.False(t, o.needsWatch())
}

func TestParseDistances(t *testing.T) {
	d, err := parseDistances("1000, 400.5,200")
	require.NoError(t, err)
	assert.Equal(t, []float32{1000, 400.5, 200}, d)

	_, err = parseDistances("1000,abc")
	assert.Error(t, err)
	_, err = parseDistances("1000,0")
	assert.Error(t, err)
}

func TestParseSetting(t *testing.T) {
	i, v, err := parseSetting("12=0x20")
	require.NoError(t, err)
	assert.Equal(t, uint16(12), i)
	assert.Equal(t, uint32(0x20), v)

	for _, bad := range []string{"12", "x=1", "1=y", "70000=1"} {
		_, _, err := parseSetting(bad)
		assert.Error(t, err, bad)
	}
}

func TestDownloadName(t *testing.T) {
	assert.Equal(t, "trail_running_2023-11-14_23-13-20", downloadName(testActivity(false)))
	assert.Equal(t, "dir/run.fit", replaceExt("dir/run.ttbin", "fit"))
}

func TestRunOffline_None(t *testing.T) {
	handled, err := runOffline(&options{info: true}, nil, discard)
	assert.False(t, handled)
	assert.NoError(t, err)
}

func TestRunOffline_TruncateLaps(t *testing.T) {
	path := writeActivity(t, testActivity(true))

	handled, err := runOffline(&options{truncateLaps: path}, nil, discard)
	assert.True(t, handled)
	require.NoError(t, err)

	f := readBack(t, path)
	gps := f.GPS()
	require.Len(t, gps, 5, "cut at the first position record after the lap")
	assert.Len(t, f.Laps(), 1)
	assert.Equal(t, float32(400), f.Summary.Distance)
	assert.Equal(t, uint32(40), f.Summary.Duration)
}

func TestRunOffline_TruncateWithoutMarker(t *testing.T) {
	path := writeActivity(t, testActivity(false))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = runOffline(&options{truncateRace: path}, nil, discard)
	assert.ErrorContains(t, err, "no race result")

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "file untouched on error")
}

func TestRunOffline_ReplaceLaps(t *testing.T) {
	path := writeActivity(t, testActivity(true))

	_, err := runOffline(&options{replaceLaps: "200"}, nil, discard)
	assert.Error(t, err, "activity file argument missing")

	_, err = runOffline(&options{replaceLaps: "200"}, []string{path}, discard)
	require.NoError(t, err)
	assert.Len(t, readBack(t, path).Laps(), 2)
}

func TestRunOffline_Convert(t *testing.T) {
	path := writeActivity(t, testActivity(true))

	_, err := runOffline(&options{convert: path}, nil, discard)
	require.NoError(t, err)
	info, err := os.Stat(replaceExt(path, "fit"))
	require.NoError(t, err)
	assert.NotZero(t, info.Size())

	out := filepath.Join(t.TempDir(), "other.fit")
	_, err = runOffline(&options{convert: path, fit: out}, nil, discard)
	require.NoError(t, err)
	assert.FileExists(t, out)
}
