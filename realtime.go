package tactus

import (
	"fmt"
	"time"
)

type (
	// Time is a position or duration in musical time, measured in ticks.
	// There are TicksPerQuarter ticks in a quarter note, so musical time is
	// independent of the tempo at which the composition is played.
	Time int64

	// RealTime is a position or duration on the playback time axis, in
	// nanoseconds since the start of the composition. It is not wall-clock
	// time: RealTime 0 is always the beginning of the composition,
	// regardless of when playback was started.
	RealTime int64
)

// TicksPerQuarter is the musical time resolution. 960 divides evenly by
// all the usual tuplet and dotted-note subdivisions.
const TicksPerQuarter Time = 960

func (t RealTime) Seconds() float64 { return float64(t) / float64(time.Second) }

func (t RealTime) Duration() time.Duration { return time.Duration(t) }

func RealTimeFromSeconds(sec float64) RealTime {
	return RealTime(sec * float64(time.Second))
}

func RealTimeFromDuration(d time.Duration) RealTime { return RealTime(d) }

func (t RealTime) String() string {
	return fmt.Sprintf("%.3fs", t.Seconds())
}

// Quarters returns the musical time in quarter notes.
func (t Time) Quarters() float64 { return float64(t) / float64(TicksPerQuarter) }

func TimeFromQuarters(quarters float64) Time {
	return Time(quarters * float64(TicksPerQuarter))
}
