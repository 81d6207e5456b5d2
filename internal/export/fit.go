package export

import (
	"errors"
	"io"
	"time"

	"github.com/muktihari/fit/encoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
	"github.com/muktihari/fit/proto"

	"github.com/lowaak/ttwatch/internal/ttbin"
)

const degreesToSemicircles = 2147483648.0 / 180.0

// ErrEmptyActivity is returned for an activity without timed records.
var ErrEmptyActivity = errors.New("export: activity has no records")

// FIT writes Garmin FIT activity files.
type FIT struct {
	SerialNumber uint32
}

var _ Exporter = FIT{}

func (FIT) Extension() string { return "fit" }

type sport struct {
	sport    typedef.Sport
	subSport typedef.SubSport
}

var sports = map[ttbin.ActivityType]sport{
	ttbin.ActivityRunning:       {typedef.SportRunning, typedef.SubSportGeneric},
	ttbin.ActivityTrailRunning:  {typedef.SportRunning, typedef.SubSportTrail},
	ttbin.ActivityTreadmill:     {typedef.SportRunning, typedef.SubSportTreadmill},
	ttbin.ActivityCycling:       {typedef.SportCycling, typedef.SubSportGeneric},
	ttbin.ActivityIndoorCycling: {typedef.SportCycling, typedef.SubSportIndoorCycling},
	ttbin.ActivitySwimming:      {typedef.SportSwimming, typedef.SubSportLapSwimming},
	ttbin.ActivityGym:           {typedef.SportTraining, typedef.SubSportGeneric},
	ttbin.ActivityHiking:        {typedef.SportHiking, typedef.SubSportGeneric},
	ttbin.ActivitySkiing:        {typedef.SportAlpineSkiing, typedef.SubSportGeneric},
	ttbin.ActivitySnowboarding:  {typedef.SportSnowboarding, typedef.SubSportGeneric},
}

func sportOf(a ttbin.ActivityType) sport {
	if s, ok := sports[a]; ok {
		return s
	}
	return sport{typedef.SportGeneric, typedef.SubSportGeneric}
}

// fitRecords merges the timed records of f into one FIT record per second.
func fitRecords(f *ttbin.File) []*mesgdef.Record {
	var (
		out  []*mesgdef.Record
		last *mesgdef.Record
	)
	at := func(ts time.Time) *mesgdef.Record {
		if last != nil && last.Timestamp.Equal(ts) {
			return last
		}
		last = mesgdef.NewRecord(nil)
		last.Timestamp = ts
		out = append(out, last)
		return last
	}
	for _, p := range f.Records() {
		switch p := p.(type) {
		case *ttbin.GPS:
			r := at(p.Timestamp)
			if !p.NoFix() {
				r.PositionLat = int32(p.Latitude * degreesToSemicircles)
				r.PositionLong = int32(p.Longitude * degreesToSemicircles)
			}
			r.Distance = uint32(p.CumulativeDistance * 100)
			r.EnhancedSpeed = uint32(p.Speed * 1000)
			r.Calories = p.Calories
		case *ttbin.HeartRate:
			at(p.Timestamp).HeartRate = p.HeartRate
		case *ttbin.Treadmill:
			r := at(p.Timestamp)
			r.Distance = uint32(p.Distance * 100)
			r.Calories = p.Calories
		case *ttbin.Swim:
			r := at(p.Timestamp)
			r.Distance = uint32(p.TotalDistance * 100)
			r.Calories = p.TotalCalories
		case *ttbin.Gym:
			at(p.Timestamp).Calories = p.TotalCalories
		}
	}
	return out
}

// Export encodes f as a FIT activity.
func (x FIT) Export(w io.Writer, f *ttbin.File) error {
	records := fitRecords(f)
	if len(records) == 0 {
		return ErrEmptyActivity
	}
	end := records[len(records)-1].Timestamp
	sp := sportOf(f.Summary.Activity)

	fit := proto.FIT{}
	fileID := mesgdef.FileId{
		Type:         typedef.FileActivity,
		Manufacturer: typedef.ManufacturerDevelopment,
		Product:      f.ProductID,
		SerialNumber: x.SerialNumber,
		TimeCreated:  f.StartTime,
	}
	fit.Messages = append(fit.Messages, fileID.ToMesg(nil))
	start := mesgdef.Event{
		Timestamp: f.StartTime,
		Event:     typedef.EventTimer,
		EventType: typedef.EventTypeStart,
	}
	fit.Messages = append(fit.Messages, start.ToMesg(nil))
	for _, r := range records {
		fit.Messages = append(fit.Messages, r.ToMesg(nil))
	}
	stop := mesgdef.Event{
		Timestamp: end,
		Event:     typedef.EventTimer,
		EventType: typedef.EventTypeStopAll,
	}
	fit.Messages = append(fit.Messages, stop.ToMesg(nil))

	laps := f.Laps()
	var prev ttbin.Lap
	for _, l := range laps {
		fit.Messages = append(fit.Messages, lapMesg(f, prev, *l, sp).ToMesg(nil))
		prev = *l
	}
	final := ttbin.Lap{TotalTime: f.Summary.Duration, TotalDistance: f.Summary.Distance, TotalCalories: f.Summary.Calories}
	if len(laps) == 0 || final.TotalTime > prev.TotalTime {
		fit.Messages = append(fit.Messages, lapMesg(f, prev, final, sp).ToMesg(nil))
		laps = append(laps, &final)
	}

	elapsed := f.Summary.Duration * 1000
	session := mesgdef.Session{
		Timestamp:        end,
		StartTime:        f.StartTime,
		TotalElapsedTime: elapsed,
		TotalTimerTime:   elapsed,
		TotalDistance:    uint32(f.Summary.Distance * 100),
		TotalCalories:    f.Summary.Calories,
		NumLaps:          uint16(len(laps)),
		Sport:            sp.sport,
		SubSport:         sp.subSport,
		Event:            typedef.EventSession,
		EventType:        typedef.EventTypeStop,
		Trigger:          typedef.SessionTriggerActivityEnd,
	}
	fit.Messages = append(fit.Messages, session.ToMesg(nil))
	activity := mesgdef.Activity{
		Timestamp:      end,
		TotalTimerTime: elapsed,
		NumSessions:    1,
		Type:           typedef.ActivityManual,
		Event:          typedef.EventActivity,
		EventType:      typedef.EventTypeStop,
	}
	fit.Messages = append(fit.Messages, activity.ToMesg(nil))

	return encoder.New(w).Encode(&fit)
}

// lapMesg describes the lap from prev to l; lap records carry totals since
// the start of the activity.
func lapMesg(f *ttbin.File, prev, l ttbin.Lap, sp sport) *mesgdef.Lap {
	start := f.StartTime.Add(time.Duration(prev.TotalTime) * time.Second)
	elapsed := (l.TotalTime - prev.TotalTime) * 1000
	return &mesgdef.Lap{
		Timestamp:        f.StartTime.Add(time.Duration(l.TotalTime) * time.Second),
		StartTime:        start,
		TotalElapsedTime: elapsed,
		TotalTimerTime:   elapsed,
		TotalDistance:    uint32((l.TotalDistance - prev.TotalDistance) * 100),
		TotalCalories:    l.TotalCalories - min(l.TotalCalories, prev.TotalCalories),
		Sport:            sp.sport,
		Event:            typedef.EventLap,
		EventType:        typedef.EventTypeStop,
	}
}
