package ttbin

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"
)

// Payload is the typed content of one record.
type Payload interface {
	Tag() Tag
	appendTo(b []byte, utcOffset int32) []byte
}

// fieldReader reads little-endian fields from a record payload. Callers
// check the payload length up front.
type fieldReader struct {
	b   []byte
	off int
}

func (r *fieldReader) u8() uint8 {
	v := r.b[r.off]
	r.off++
	return v
}

func (r *fieldReader) u16() uint16 {
	v := binary.LittleEndian.Uint16(r.b[r.off:])
	r.off += 2
	return v
}

func (r *fieldReader) i16() int16 { return int16(r.u16()) }

func (r *fieldReader) u32() uint32 {
	v := binary.LittleEndian.Uint32(r.b[r.off:])
	r.off += 4
	return v
}

func (r *fieldReader) i32() int32 { return int32(r.u32()) }

func (r *fieldReader) f32() float32 { return math.Float32frombits(r.u32()) }

func (r *fieldReader) bytes(dst []byte) {
	r.off += copy(dst, r.b[r.off:])
}

func appendU16(b []byte, v uint16) []byte  { return binary.LittleEndian.AppendUint16(b, v) }
func appendU32(b []byte, v uint32) []byte  { return binary.LittleEndian.AppendUint32(b, v) }
func appendF32(b []byte, v float32) []byte { return appendU32(b, math.Float32bits(v)) }

// Timestamps are local time on disk.
func toUTC(local uint32, utcOffset int32) time.Time {
	return time.Unix(int64(local)-int64(utcOffset), 0).UTC()
}

func toLocal(t time.Time, utcOffset int32) uint32 {
	return uint32(t.Unix() + int64(utcOffset))
}

// Status records mark state changes of the activity.
type Status struct {
	Status    uint8
	Activity  ActivityType
	Timestamp time.Time
}

func (*Status) Tag() Tag { return TagStatus }

func (p *Status) appendTo(b []byte, off int32) []byte {
	b = append(b, p.Status, byte(p.Activity))
	return appendU32(b, toLocal(p.Timestamp, off))
}

func decodeStatus(r *fieldReader, off int32) Payload {
	return &Status{Status: r.u8(), Activity: ActivityType(r.u8()), Timestamp: toUTC(r.u32(), off)}
}

// GPS is one position fix.
type GPS struct {
	Latitude           float64 // degrees
	Longitude          float64 // degrees
	Heading            float64 // degrees
	Speed              float64 // m/s
	Timestamp          time.Time
	Calories           uint16
	InstantSpeed       float32 // m/s
	CumulativeDistance float32 // m
	Cycles             uint8
}

func (*GPS) Tag() Tag { return TagGPS }

// NoFix reports a record without a position.
func (p *GPS) NoFix() bool { return p.Latitude == 0 && p.Longitude == 0 }

func (p *GPS) appendTo(b []byte, off int32) []byte {
	b = appendU32(b, uint32(int32(math.Round(p.Latitude*1e7))))
	b = appendU32(b, uint32(int32(math.Round(p.Longitude*1e7))))
	b = appendU16(b, uint16(math.Round(p.Heading*100)))
	b = appendU16(b, uint16(math.Round(p.Speed*100)))
	b = appendU32(b, toLocal(p.Timestamp, off))
	b = appendU16(b, p.Calories)
	b = appendF32(b, p.InstantSpeed)
	b = appendF32(b, p.CumulativeDistance)
	return append(b, p.Cycles)
}

// gpsNoTime marks a GPS record written before the receiver had a time.
const gpsNoTime = 0xffffffff

func decodeGPS(r *fieldReader, off int32) Payload {
	p := &GPS{
		Latitude:  float64(r.i32()) / 1e7,
		Longitude: float64(r.i32()) / 1e7,
		Heading:   float64(r.u16()) / 100,
		Speed:     float64(r.u16()) / 100,
	}
	ts := r.u32()
	if ts == gpsNoTime {
		return nil
	}
	p.Timestamp = toUTC(ts, off)
	p.Calories = r.u16()
	p.InstantSpeed = r.f32()
	p.CumulativeDistance = r.f32()
	p.Cycles = r.u8()
	return p
}

type HeartRate struct {
	HeartRate uint8
	Reserved  uint8
	Timestamp time.Time
}

func (*HeartRate) Tag() Tag { return TagHeartRate }

func (p *HeartRate) appendTo(b []byte, off int32) []byte {
	b = append(b, p.HeartRate, p.Reserved)
	return appendU32(b, toLocal(p.Timestamp, off))
}

func decodeHeartRate(r *fieldReader, off int32) Payload {
	return &HeartRate{HeartRate: r.u8(), Reserved: r.u8(), Timestamp: toUTC(r.u32(), off)}
}

// Summary holds the totals of an activity. It is written as the last record
// of a file.
type Summary struct {
	Activity ActivityType
	Distance float32 // m
	Duration uint32  // s
	Calories uint16
}

func (*Summary) Tag() Tag { return TagSummary }

func (p *Summary) appendTo(b []byte, _ int32) []byte {
	b = append(b, byte(p.Activity))
	b = appendF32(b, p.Distance)
	b = appendU32(b, p.Duration)
	return appendU16(b, p.Calories)
}

func decodeSummary(r *fieldReader, _ int32) Payload {
	return &Summary{Activity: ActivityType(r.u8()), Distance: r.f32(), Duration: r.u32(), Calories: r.u16()}
}

type PoolSize struct {
	Size uint32 // cm
}

func (*PoolSize) Tag() Tag { return TagPoolSize }

func (p *PoolSize) appendTo(b []byte, _ int32) []byte { return appendU32(b, p.Size) }

func decodePoolSize(r *fieldReader, _ int32) Payload { return &PoolSize{Size: r.u32()} }

type WheelSize struct {
	Size uint32 // mm
}

func (*WheelSize) Tag() Tag { return TagWheelSize }

func (p *WheelSize) appendTo(b []byte, _ int32) []byte { return appendU32(b, p.Size) }

func decodeWheelSize(r *fieldReader, _ int32) Payload { return &WheelSize{Size: r.u32()} }

// TrainingSetup describes the training program, including goals.
type TrainingSetup struct {
	Type     uint8
	ValueMin float32
	ValueMax float32
}

func (*TrainingSetup) Tag() Tag { return TagTrainingSetup }

func (p *TrainingSetup) appendTo(b []byte, _ int32) []byte {
	b = append(b, p.Type)
	b = appendF32(b, p.ValueMin)
	return appendF32(b, p.ValueMax)
}

func decodeTrainingSetup(r *fieldReader, _ int32) Payload {
	return &TrainingSetup{Type: r.u8(), ValueMin: r.f32(), ValueMax: r.f32()}
}

type Lap struct {
	TotalTime     uint32  // s since start
	TotalDistance float32 // m
	TotalCalories uint16
}

func (*Lap) Tag() Tag { return TagLap }

func (p *Lap) appendTo(b []byte, _ int32) []byte {
	b = appendU32(b, p.TotalTime)
	b = appendF32(b, p.TotalDistance)
	return appendU16(b, p.TotalCalories)
}

func decodeLap(r *fieldReader, _ int32) Payload {
	return &Lap{TotalTime: r.u32(), TotalDistance: r.f32(), TotalCalories: r.u16()}
}

type CyclingCadence struct {
	WheelRevolutions     uint32
	WheelRevolutionsTime uint16
	CrankRevolutions     uint16
	CrankRevolutionsTime uint16
}

func (*CyclingCadence) Tag() Tag { return TagCyclingCadence }

func (p *CyclingCadence) appendTo(b []byte, _ int32) []byte {
	b = appendU32(b, p.WheelRevolutions)
	b = appendU16(b, p.WheelRevolutionsTime)
	b = appendU16(b, p.CrankRevolutions)
	return appendU16(b, p.CrankRevolutionsTime)
}

func decodeCyclingCadence(r *fieldReader, _ int32) Payload {
	return &CyclingCadence{
		WheelRevolutions:     r.u32(),
		WheelRevolutionsTime: r.u16(),
		CrankRevolutions:     r.u16(),
		CrankRevolutionsTime: r.u16(),
	}
}

type Treadmill struct {
	Timestamp  time.Time
	Distance   float32 // m
	Calories   uint16
	Steps      uint32
	StepLength uint16 // cm
}

func (*Treadmill) Tag() Tag { return TagTreadmill }

func (p *Treadmill) appendTo(b []byte, off int32) []byte {
	b = appendU32(b, toLocal(p.Timestamp, off))
	b = appendF32(b, p.Distance)
	b = appendU16(b, p.Calories)
	b = appendU32(b, p.Steps)
	return appendU16(b, p.StepLength)
}

func decodeTreadmill(r *fieldReader, off int32) Payload {
	return &Treadmill{
		Timestamp:  toUTC(r.u32(), off),
		Distance:   r.f32(),
		Calories:   r.u16(),
		Steps:      r.u32(),
		StepLength: r.u16(),
	}
}

type Swim struct {
	Timestamp     time.Time
	TotalDistance float32 // m
	Frequency     uint8
	StrokeType    uint8
	Strokes       uint32
	CompletedLaps uint32
	TotalCalories uint16
}

func (*Swim) Tag() Tag { return TagSwim }

func (p *Swim) appendTo(b []byte, off int32) []byte {
	b = appendU32(b, toLocal(p.Timestamp, off))
	b = appendF32(b, p.TotalDistance)
	b = append(b, p.Frequency, p.StrokeType)
	b = appendU32(b, p.Strokes)
	b = appendU32(b, p.CompletedLaps)
	return appendU16(b, p.TotalCalories)
}

func decodeSwim(r *fieldReader, off int32) Payload {
	return &Swim{
		Timestamp:     toUTC(r.u32(), off),
		TotalDistance: r.f32(),
		Frequency:     r.u8(),
		StrokeType:    r.u8(),
		Strokes:       r.u32(),
		CompletedLaps: r.u32(),
		TotalCalories: r.u16(),
	}
}

type GoalProgress struct {
	Percent uint8
	Value   uint32
}

func (*GoalProgress) Tag() Tag { return TagGoalProgress }

func (p *GoalProgress) appendTo(b []byte, _ int32) []byte {
	return appendU32(append(b, p.Percent), p.Value)
}

func decodeGoalProgress(r *fieldReader, _ int32) Payload {
	return &GoalProgress{Percent: r.u8(), Value: r.u32()}
}

// IntervalPhase is one phase of an interval program.
type IntervalPhase struct {
	Type  uint8
	Value uint32
}

type IntervalSetup struct {
	Warmup   IntervalPhase
	Work     IntervalPhase
	Rest     IntervalPhase
	Cooldown IntervalPhase
	Sets     uint8
}

func (*IntervalSetup) Tag() Tag { return TagIntervalSetup }

func (p *IntervalSetup) appendTo(b []byte, _ int32) []byte {
	for _, ph := range []IntervalPhase{p.Warmup, p.Work, p.Rest, p.Cooldown} {
		b = appendU32(append(b, ph.Type), ph.Value)
	}
	return append(b, p.Sets)
}

func decodeIntervalSetup(r *fieldReader, _ int32) Payload {
	p := &IntervalSetup{}
	for _, ph := range []*IntervalPhase{&p.Warmup, &p.Work, &p.Rest, &p.Cooldown} {
		ph.Type = r.u8()
		ph.Value = r.u32()
	}
	p.Sets = r.u8()
	return p
}

type IntervalStart struct {
	Type uint8
}

func (*IntervalStart) Tag() Tag { return TagIntervalStart }

func (p *IntervalStart) appendTo(b []byte, _ int32) []byte { return append(b, p.Type) }

func decodeIntervalStart(r *fieldReader, _ int32) Payload { return &IntervalStart{Type: r.u8()} }

type IntervalFinish struct {
	Type          uint8
	TotalTime     uint32
	TotalDistance float32
	TotalCalories uint16
}

func (*IntervalFinish) Tag() Tag { return TagIntervalFinish }

func (p *IntervalFinish) appendTo(b []byte, _ int32) []byte {
	b = append(b, p.Type)
	b = appendU32(b, p.TotalTime)
	b = appendF32(b, p.TotalDistance)
	return appendU16(b, p.TotalCalories)
}

func decodeIntervalFinish(r *fieldReader, _ int32) Payload {
	return &IntervalFinish{Type: r.u8(), TotalTime: r.u32(), TotalDistance: r.f32(), TotalCalories: r.u16()}
}

type RaceSetup struct {
	RaceID   [16]byte
	Distance float32 // m
	Duration uint32  // s
	Name     string  // at most 16 bytes
}

func (*RaceSetup) Tag() Tag { return TagRaceSetup }

func (p *RaceSetup) appendTo(b []byte, _ int32) []byte {
	b = append(b, p.RaceID[:]...)
	b = appendF32(b, p.Distance)
	b = appendU32(b, p.Duration)
	var name [16]byte
	copy(name[:], p.Name)
	return append(b, name[:]...)
}

func decodeRaceSetup(r *fieldReader, _ int32) Payload {
	p := &RaceSetup{}
	r.bytes(p.RaceID[:])
	p.Distance = r.f32()
	p.Duration = r.u32()
	var name [16]byte
	r.bytes(name[:])
	p.Name = string(bytes.TrimRight(name[:], "\x00"))
	return p
}

type RaceResult struct {
	Duration uint32 // s
	Distance float32
	Calories uint16
}

func (*RaceResult) Tag() Tag { return TagRaceResult }

func (p *RaceResult) appendTo(b []byte, _ int32) []byte {
	b = appendU32(b, p.Duration)
	b = appendF32(b, p.Distance)
	return appendU16(b, p.Calories)
}

func decodeRaceResult(r *fieldReader, _ int32) Payload {
	return &RaceResult{Duration: r.u32(), Distance: r.f32(), Calories: r.u16()}
}

type Altitude struct {
	RelativeAltitude int16   // m
	TotalClimb       float32 // m
	Qualifier        uint8
}

func (*Altitude) Tag() Tag { return TagAltitude }

func (p *Altitude) appendTo(b []byte, _ int32) []byte {
	b = appendU16(b, uint16(p.RelativeAltitude))
	b = appendF32(b, p.TotalClimb)
	return append(b, p.Qualifier)
}

func decodeAltitude(r *fieldReader, _ int32) Payload {
	return &Altitude{RelativeAltitude: r.i16(), TotalClimb: r.f32(), Qualifier: r.u8()}
}

type HeartRateRecovery struct {
	Status    uint32
	HeartRate uint32
}

func (*HeartRateRecovery) Tag() Tag { return TagHeartRateRecovery }

func (p *HeartRateRecovery) appendTo(b []byte, _ int32) []byte {
	return appendU32(appendU32(b, p.Status), p.HeartRate)
}

func decodeHeartRateRecovery(r *fieldReader, _ int32) Payload {
	return &HeartRateRecovery{Status: r.u32(), HeartRate: r.u32()}
}

type Gym struct {
	Timestamp     time.Time
	TotalCalories uint16
	TotalCycles   uint32
}

func (*Gym) Tag() Tag { return TagGym }

func (p *Gym) appendTo(b []byte, off int32) []byte {
	b = appendU32(b, toLocal(p.Timestamp, off))
	b = appendU16(b, p.TotalCalories)
	return appendU32(b, p.TotalCycles)
}

func decodeGym(r *fieldReader, off int32) Payload {
	return &Gym{Timestamp: toUTC(r.u32(), off), TotalCalories: r.u16(), TotalCycles: r.u32()}
}

// Unknown preserves a record of a tag this package does not decode.
type Unknown struct {
	Type Tag
	Data []byte
}

func (p *Unknown) Tag() Tag { return p.Type }

func (p *Unknown) appendTo(b []byte, _ int32) []byte { return append(b, p.Data...) }

var decoders = map[Tag]func(*fieldReader, int32) Payload{
	TagStatus:            decodeStatus,
	TagGPS:               decodeGPS,
	TagHeartRate:         decodeHeartRate,
	TagSummary:           decodeSummary,
	TagPoolSize:          decodePoolSize,
	TagWheelSize:         decodeWheelSize,
	TagTrainingSetup:     decodeTrainingSetup,
	TagLap:               decodeLap,
	TagCyclingCadence:    decodeCyclingCadence,
	TagTreadmill:         decodeTreadmill,
	TagSwim:              decodeSwim,
	TagGoalProgress:      decodeGoalProgress,
	TagIntervalSetup:     decodeIntervalSetup,
	TagIntervalStart:     decodeIntervalStart,
	TagIntervalFinish:    decodeIntervalFinish,
	TagRaceSetup:         decodeRaceSetup,
	TagRaceResult:        decodeRaceResult,
	TagAltitude:          decodeAltitude,
	TagHeartRateRecovery: decodeHeartRateRecovery,
	TagGym:               decodeGym,
}
