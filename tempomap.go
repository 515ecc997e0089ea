package tactus

import (
	"math"
	"sort"
)

type (
	// TempoChange sets the tempo from At onwards, until the next change.
	TempoChange struct {
		At  Time
		BPM float64
	}

	// TimeSigChange sets the time signature from At onwards. At should
	// fall on a bar line of the previous signature; the mappers do not
	// enforce this but metronome accents assume it.
	TimeSigChange struct {
		At          Time
		Numerator   int
		Denominator int
	}

	// Metronome is the composition-level metronome configuration.
	Metronome struct {
		Enabled      bool
		Instrument   InstrumentID
		BarVelocity  int
		BeatVelocity int
	}
)

// DefaultBPM is used when a composition has no tempo changes at all.
const DefaultBPM = 120.0

func nsPerTick(bpm float64) float64 {
	return 60e9 / (bpm * float64(TicksPerQuarter))
}

// TempoAt returns the tempo in effect at musical time t.
func (c *Composition) TempoAt(t Time) float64 {
	bpm := DefaultBPM
	for _, tc := range c.Tempo {
		if tc.At > t {
			break
		}
		bpm = tc.BPM
	}
	return bpm
}

// RealTimeAt converts musical time to playback time by integrating the
// tempo map. The conversion is strictly increasing, so it preserves the
// order of events.
func (c *Composition) RealTimeAt(t Time) RealTime {
	var ret float64
	prevAt, prevBPM := Time(0), DefaultBPM
	if len(c.Tempo) > 0 && c.Tempo[0].At <= 0 {
		prevBPM = c.Tempo[0].BPM
	}
	for _, tc := range c.Tempo {
		if tc.At <= 0 {
			prevBPM = tc.BPM
			continue
		}
		if tc.At >= t {
			break
		}
		ret += float64(tc.At-prevAt) * nsPerTick(prevBPM)
		prevAt, prevBPM = tc.At, tc.BPM
	}
	ret += float64(t-prevAt) * nsPerTick(prevBPM)
	return RealTime(ret)
}

// TimeAt is the inverse of RealTimeAt.
func (c *Composition) TimeAt(rt RealTime) Time {
	var acc float64
	prevAt, prevBPM := Time(0), DefaultBPM
	if len(c.Tempo) > 0 && c.Tempo[0].At <= 0 {
		prevBPM = c.Tempo[0].BPM
	}
	for _, tc := range c.Tempo {
		if tc.At <= 0 {
			prevBPM = tc.BPM
			continue
		}
		span := float64(tc.At-prevAt) * nsPerTick(prevBPM)
		if acc+span > float64(rt) {
			break
		}
		acc += span
		prevAt, prevBPM = tc.At, tc.BPM
	}
	return prevAt + Time(math.Round((float64(rt)-acc)/nsPerTick(prevBPM)))
}

// TimeSignatureAt returns the time signature in effect at t; 4/4 when
// the composition defines none.
func (c *Composition) TimeSignatureAt(t Time) TimeSigChange {
	ret := TimeSigChange{At: 0, Numerator: 4, Denominator: 4}
	for _, ts := range c.TimeSignatures {
		if ts.At > t {
			break
		}
		ret = ts
	}
	return ret
}

// BeatLength returns the length of one beat of the given signature.
func (ts TimeSigChange) BeatLength() Time {
	if ts.Denominator <= 0 {
		return TicksPerQuarter
	}
	return TicksPerQuarter * 4 / Time(ts.Denominator)
}

// Beats calls yield for every beat in [from, to) with the beat's musical
// time and its index within the bar (0 = bar start). Bars restart at
// every time-signature change.
func (c *Composition) Beats(from, to Time, yield func(at Time, beatInBar int)) {
	sigs := append([]TimeSigChange{{At: 0, Numerator: 4, Denominator: 4}}, c.TimeSignatures...)
	sort.SliceStable(sigs, func(i, j int) bool { return sigs[i].At < sigs[j].At })
	for i, ts := range sigs {
		end := to
		if i+1 < len(sigs) && sigs[i+1].At < end {
			end = sigs[i+1].At
		}
		if end <= ts.At {
			continue
		}
		beat := ts.BeatLength()
		num := ts.Numerator
		if num <= 0 {
			num = 4
		}
		start := ts.At
		// first beat at or after from within this signature's span
		n := int64(0)
		if from > start {
			n = (int64(from-start) + int64(beat) - 1) / int64(beat)
		}
		for at := start + Time(n)*beat; at < end; at += beat {
			if at >= to {
				return
			}
			yield(at, int((int64(at-start)/int64(beat))%int64(num)))
			n++
		}
	}
}

// SetTempoChanges replaces the tempo map and notifies observers.
func (c *Composition) SetTempoChanges(changes []TempoChange) {
	c.Tempo = append([]TempoChange(nil), changes...)
	sort.SliceStable(c.Tempo, func(i, j int) bool { return c.Tempo[i].At < c.Tempo[j].At })
	c.notify(func(cb CompositionCallbacks) {
		if cb.TempoChanged != nil {
			cb.TempoChanged()
		}
	})
}

// AddTempoChange inserts a single tempo change, keeping the map sorted.
func (c *Composition) AddTempoChange(tc TempoChange) {
	c.Tempo = append(c.Tempo, tc)
	sort.SliceStable(c.Tempo, func(i, j int) bool { return c.Tempo[i].At < c.Tempo[j].At })
	c.notify(func(cb CompositionCallbacks) {
		if cb.TempoChanged != nil {
			cb.TempoChanged()
		}
	})
}

// SetTimeSignatures replaces the time-signature map and notifies
// observers.
func (c *Composition) SetTimeSignatures(changes []TimeSigChange) {
	c.TimeSignatures = append([]TimeSigChange(nil), changes...)
	sort.SliceStable(c.TimeSignatures, func(i, j int) bool {
		return c.TimeSignatures[i].At < c.TimeSignatures[j].At
	})
	c.notify(func(cb CompositionCallbacks) {
		if cb.TimeSignatureChanged != nil {
			cb.TimeSignatureChanged()
		}
	})
}

// SetMetronome replaces the metronome configuration and notifies
// observers.
func (c *Composition) SetMetronome(m Metronome) {
	if c.Metronome == m {
		return
	}
	c.Metronome = m
	c.notify(func(cb CompositionCallbacks) {
		if cb.MetronomeChanged != nil {
			cb.MetronomeChanged()
		}
	})
}
