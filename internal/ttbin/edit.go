package ttbin

import (
	"errors"
	"time"
)

// ErrNoLaps is returned by ReplaceLaps for an empty or non-positive lap list.
var ErrNoLaps = errors.New("ttbin: lap distances must be positive")

// totals extracts the running totals carried by a position record. Records
// without a fix report false.
func totals(p Payload) (ts time.Time, distance float32, calories uint16, ok bool) {
	switch p := p.(type) {
	case *GPS:
		if p.NoFix() {
			return time.Time{}, 0, 0, false
		}
		return p.Timestamp, p.CumulativeDistance, p.Calories, true
	case *Swim:
		return p.Timestamp, p.TotalDistance, p.TotalCalories, true
	case *Treadmill:
		return p.Timestamp, p.Distance, p.Calories, true
	case *Gym:
		return p.Timestamp, 0, p.TotalCalories, true
	}
	return time.Time{}, 0, 0, false
}

func (f *File) elapsed(ts time.Time) uint32 {
	if ts.Before(f.StartTime) {
		return 0
	}
	return uint32(ts.Sub(f.StartTime) / time.Second)
}

// UpdateSummary recomputes the summary totals from the last position record
// that has a fix.
func (f *File) UpdateSummary() {
	tag, ok := f.Summary.Activity.PositionTag()
	if !ok {
		return
	}
	ids := f.IDs(tag)
	for i := len(ids) - 1; i >= 0; i-- {
		ts, dist, cal, ok := totals(f.nodes[ids[i]].payload)
		if !ok {
			continue
		}
		f.Summary.Distance = dist
		f.Summary.Calories = cal
		f.Summary.Duration = f.elapsed(ts)
		return
	}
	f.Summary.Distance, f.Summary.Calories, f.Summary.Duration = 0, 0, 0
}

// ReplaceLaps removes every lap record and inserts new ones each time the
// cumulative distance passes the next lap. distances are lap lengths in
// metres; the last one repeats until the end of the activity.
func (f *File) ReplaceLaps(distances []float32) error {
	if len(distances) == 0 {
		return ErrNoLaps
	}
	for _, d := range distances {
		if d <= 0 {
			return ErrNoLaps
		}
	}
	for _, id := range f.IDs(TagLap) {
		f.Delete(id)
	}

	tag, ok := f.Summary.Activity.PositionTag()
	if !ok {
		f.UpdateSummary()
		return nil
	}
	next, lap := distances[0], 0
	for _, id := range f.IDs(tag) {
		ts, dist, cal, ok := totals(f.nodes[id].payload)
		if !ok || dist < next {
			continue
		}
		f.InsertAfter(id, &Lap{TotalTime: f.elapsed(ts), TotalDistance: dist, TotalCalories: cal})
		for next <= dist {
			if lap < len(distances)-1 {
				lap++
			}
			next += distances[lap]
		}
	}
	f.UpdateSummary()
	return nil
}

// truncateAfter deletes everything after the first position record that
// follows marker, or after marker itself when none follows.
func (f *File) truncateAfter(marker RecordID) {
	cut := marker
	if tag, ok := f.Summary.Activity.PositionTag(); ok {
		for id := f.Next(marker); id != NoRecord; id = f.Next(id) {
			if f.nodes[id].payload.Tag() == tag {
				cut = id
				break
			}
		}
	}
	f.DeleteAfter(cut)
	f.UpdateSummary()
}

func (f *File) truncateAtLast(t Tag) bool {
	id, ok := f.LastID(t)
	if !ok {
		return false
	}
	f.truncateAfter(id)
	return true
}

// TruncateLaps drops everything recorded after the last lap.
func (f *File) TruncateLaps() bool { return f.truncateAtLast(TagLap) }

// TruncateRace drops everything recorded after the race finished.
func (f *File) TruncateRace() bool { return f.truncateAtLast(TagRaceResult) }

// TruncateIntervals drops everything recorded after the last interval
// finished.
func (f *File) TruncateIntervals() bool { return f.truncateAtLast(TagIntervalFinish) }

// TruncateGoal drops everything recorded after the goal was reached. It
// reports false when the goal was never completed.
func (f *File) TruncateGoal() bool {
	id, ok := f.LastID(TagGoalProgress)
	if !ok {
		return false
	}
	if g, ok := f.nodes[id].payload.(*GoalProgress); !ok || g.Percent < 100 {
		return false
	}
	f.truncateAfter(id)
	return true
}
