package ttbin

import (
	"iter"
	"time"
)

// RecordID addresses a record in a File. IDs stay valid until the record
// is deleted and are never reused.
type RecordID int

// NoRecord is the RecordID of a missing neighbour.
const NoRecord RecordID = -1

type node struct {
	payload    Payload
	prev, next RecordID
	deleted    bool
}

// Header is the fixed part of the file header.
type Header struct {
	FileVersion        uint16
	FirmwareVersion    [3]uint8
	ProductID          uint16
	StartTime          time.Time // UTC
	SoftwareVersion    [16]byte
	GPSFirmwareVersion [80]byte
	WatchTime          time.Time // UTC
	UTCOffset          int32     // seconds
	Reserved           uint8
}

// File is a parsed activity.
type File struct {
	Header
	Summary Summary

	nodes      []node
	head, tail RecordID
	count      int

	index      map[Tag][]RecordID
	indexDirty bool
}

// NewFile returns an empty activity.
func NewFile(h Header, activity ActivityType) *File {
	return &File{
		Header:  h,
		Summary: Summary{Activity: activity},
		head:    NoRecord,
		tail:    NoRecord,
		index:   make(map[Tag][]RecordID),
	}
}

// Len returns the number of records.
func (f *File) Len() int { return f.count }

// First returns the first record, or NoRecord.
func (f *File) First() RecordID { return f.head }

// Last returns the last record, or NoRecord.
func (f *File) Last() RecordID { return f.tail }

// Next returns the record after id, or NoRecord.
func (f *File) Next(id RecordID) RecordID { return f.nodes[id].next }

// Prev returns the record before id, or NoRecord.
func (f *File) Prev(id RecordID) RecordID { return f.nodes[id].prev }

// Payload returns the content of record id.
func (f *File) Payload(id RecordID) Payload { return f.nodes[id].payload }

// Records iterates the records in file order.
func (f *File) Records() iter.Seq2[RecordID, Payload] {
	return func(yield func(RecordID, Payload) bool) {
		for id := f.head; id != NoRecord; id = f.nodes[id].next {
			if !yield(id, f.nodes[id].payload) {
				return
			}
		}
	}
}

// Append adds p at the end of the file.
func (f *File) Append(p Payload) RecordID {
	id := f.alloc(p)
	f.link(id, f.tail, NoRecord)
	if !f.indexDirty {
		f.index[p.Tag()] = append(f.index[p.Tag()], id)
	}
	return id
}

// InsertAfter adds p after record at.
func (f *File) InsertAfter(at RecordID, p Payload) RecordID {
	id := f.alloc(p)
	f.link(id, at, f.nodes[at].next)
	f.indexDirty = true
	return id
}

// InsertBefore adds p before record at.
func (f *File) InsertBefore(at RecordID, p Payload) RecordID {
	id := f.alloc(p)
	f.link(id, f.nodes[at].prev, at)
	f.indexDirty = true
	return id
}

// Delete removes record id.
func (f *File) Delete(id RecordID) {
	n := &f.nodes[id]
	if n.deleted {
		return
	}
	if n.prev != NoRecord {
		f.nodes[n.prev].next = n.next
	} else {
		f.head = n.next
	}
	if n.next != NoRecord {
		f.nodes[n.next].prev = n.prev
	} else {
		f.tail = n.prev
	}
	n.deleted = true
	n.prev, n.next = NoRecord, NoRecord
	f.count--
	f.indexDirty = true
}

// DeleteAfter removes every record after id, from the tail backward.
func (f *File) DeleteAfter(id RecordID) {
	for f.tail != id && f.tail != NoRecord {
		f.Delete(f.tail)
	}
}

func (f *File) alloc(p Payload) RecordID {
	f.nodes = append(f.nodes, node{payload: p, prev: NoRecord, next: NoRecord})
	f.count++
	return RecordID(len(f.nodes) - 1)
}

func (f *File) link(id, prev, next RecordID) {
	f.nodes[id].prev, f.nodes[id].next = prev, next
	if prev != NoRecord {
		f.nodes[prev].next = id
	} else {
		f.head = id
	}
	if next != NoRecord {
		f.nodes[next].prev = id
	} else {
		f.tail = id
	}
}

func (f *File) reindex() {
	if !f.indexDirty {
		return
	}
	f.index = make(map[Tag][]RecordID)
	for id, p := range f.Records() {
		f.index[p.Tag()] = append(f.index[p.Tag()], id)
	}
	f.indexDirty = false
}

// IDs returns the records with tag t in file order.
func (f *File) IDs(t Tag) []RecordID {
	f.reindex()
	return f.index[t]
}

// LastID returns the last record with tag t.
func (f *File) LastID(t Tag) (RecordID, bool) {
	ids := f.IDs(t)
	if len(ids) == 0 {
		return NoRecord, false
	}
	return ids[len(ids)-1], true
}

// Tags returns the distinct tags present, in no particular order.
func (f *File) Tags() []Tag {
	f.reindex()
	tags := make([]Tag, 0, len(f.index))
	for t, ids := range f.index {
		if len(ids) > 0 {
			tags = append(tags, t)
		}
	}
	return tags
}

func view[T Payload](f *File, t Tag) []T {
	ids := f.IDs(t)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if p, ok := f.nodes[id].payload.(T); ok {
			out = append(out, p)
		}
	}
	return out
}

// Typed views of the per-tag indexes, in file order.

func (f *File) GPS() []*GPS {
	return view[*GPS](f, TagGPS)
}

func (f *File) Status() []*Status {
	return view[*Status](f, TagStatus)
}

func (f *File) HeartRates() []*HeartRate {
	return view[*HeartRate](f, TagHeartRate)
}

func (f *File) Laps() []*Lap {
	return view[*Lap](f, TagLap)
}

func (f *File) Treadmill() []*Treadmill {
	return view[*Treadmill](f, TagTreadmill)
}

func (f *File) Swims() []*Swim {
	return view[*Swim](f, TagSwim)
}

func (f *File) Gym() []*Gym {
	return view[*Gym](f, TagGym)
}

func (f *File) Cadence() []*CyclingCadence {
	return view[*CyclingCadence](f, TagCyclingCadence)
}

func (f *File) Altitude() []*Altitude {
	return view[*Altitude](f, TagAltitude)
}

func (f *File) TrainingSetups() []*TrainingSetup {
	return view[*TrainingSetup](f, TagTrainingSetup)
}

func (f *File) GoalProgress() []*GoalProgress {
	return view[*GoalProgress](f, TagGoalProgress)
}

func (f *File) IntervalSetups() []*IntervalSetup {
	return view[*IntervalSetup](f, TagIntervalSetup)
}

func (f *File) IntervalStarts() []*IntervalStart {
	return view[*IntervalStart](f, TagIntervalStart)
}

func (f *File) IntervalFinishes() []*IntervalFinish {
	return view[*IntervalFinish](f, TagIntervalFinish)
}

func (f *File) RaceSetups() []*RaceSetup {
	return view[*RaceSetup](f, TagRaceSetup)
}

func (f *File) RaceResults() []*RaceResult {
	return view[*RaceResult](f, TagRaceResult)
}

func (f *File) HeartRateRecovery() []*HeartRateRecovery {
	return view[*HeartRateRecovery](f, TagHeartRateRecovery)
}

func (f *File) PoolSize() []*PoolSize {
	return view[*PoolSize](f, TagPoolSize)
}

func (f *File) WheelSize() []*WheelSize {
	return view[*WheelSize](f, TagWheelSize)
}

// Unknown returns the records of tags this package does not decode.
func (f *File) Unknown() []*Unknown {
	var out []*Unknown
	for _, p := range f.Records() {
		if u, ok := p.(*Unknown); ok {
			out = append(out, u)
		}
	}
	return out
}
