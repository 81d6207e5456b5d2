package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/muktihari/fit/decoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/ttwatch/internal/ttbin"
)

func testRun() *ttbin.File {
	start := time.Unix(1700000000, 0).UTC()
	f := ttbin.NewFile(ttbin.Header{StartTime: start, ProductID: 0xe001}, ttbin.ActivityRunning)
	f.Append(&ttbin.Status{Activity: ttbin.ActivityRunning, Timestamp: start})
	for i := range 6 {
		ts := start.Add(time.Duration(i) * time.Second)
		f.Append(&ttbin.GPS{
			Latitude:           52.37,
			Longitude:          4.89,
			Speed:              3,
			Timestamp:          ts,
			Calories:           uint16(i),
			CumulativeDistance: float32(3 * i),
		})
		f.Append(&ttbin.HeartRate{HeartRate: uint8(120 + i), Timestamp: ts})
		if i == 3 {
			f.Append(&ttbin.Lap{TotalTime: 3, TotalDistance: 9, TotalCalories: 3})
		}
	}
	f.UpdateSummary()
	return f
}

func byNum(fit *proto.FIT, num typedef.MesgNum) []proto.Message {
	var out []proto.Message
	for _, m := range fit.Messages {
		if m.Num == num {
			out = append(out, m)
		}
	}
	return out
}

func TestFITExport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, FIT{SerialNumber: 42}.Export(&buf, testRun()))

	fit, err := decoder.New(&buf).Decode()
	require.NoError(t, err)

	records := byNum(fit, typedef.MesgNumRecord)
	require.Len(t, records, 6, "heart rate merged into the GPS record of the same second")
	last := mesgdef.NewRecord(&records[5])
	assert.Equal(t, uint8(125), last.HeartRate)
	assert.Equal(t, uint32(1500), last.Distance)

	laps := byNum(fit, typedef.MesgNumLap)
	require.Len(t, laps, 2)
	second := mesgdef.NewLap(&laps[1])
	assert.Equal(t, uint32(2000), second.TotalElapsedTime)
	assert.Equal(t, uint32(600), second.TotalDistance)

	sessions := byNum(fit, typedef.MesgNumSession)
	require.Len(t, sessions, 1)
	s := mesgdef.NewSession(&sessions[0])
	assert.Equal(t, typedef.SportRunning, s.Sport)
	assert.Equal(t, uint32(1500), s.TotalDistance)
	assert.Equal(t, uint32(5000), s.TotalElapsedTime)
	assert.Equal(t, uint16(2), s.NumLaps)
}

func TestFITExport_Empty(t *testing.T) {
	f := ttbin.NewFile(ttbin.Header{}, ttbin.ActivityRunning)
	assert.ErrorIs(t, FIT{}.Export(&bytes.Buffer{}, f), ErrEmptyActivity)
	assert.Equal(t, "fit", FIT{}.Extension())
}

func TestSportOf(t *testing.T) {
	assert.Equal(t, sport{typedef.SportRunning, typedef.SubSportTreadmill}, sportOf(ttbin.ActivityTreadmill))
	assert.Equal(t, sport{typedef.SportGeneric, typedef.SubSportGeneric}, sportOf(ttbin.ActivityFreestyle))
}
