package seq

import (
	"sort"

	"github.com/tactus-audio/tactus"
)

// RecordedTake accumulates note events captured while the transport is
// recording. Event times are absolute playback times (same axis as the
// mapped events the engine consumes), stamped by the input side. On
// flush the take is paired into notes and converted to a Segment, with
// times quantized onto the tick grid through the composition's tempo
// map.
type RecordedTake struct {
	Track  tactus.TrackID
	Start  tactus.Time
	events tactus.MappedEventList
}

func NewRecordedTake(track tactus.TrackID, start tactus.Time) *RecordedTake {
	return &RecordedTake{Track: track, Start: start}
}

// Add appends a captured event. Only note on/off events are kept; the
// router already classified everything else.
func (t *RecordedTake) Add(ev tactus.MappedEvent) {
	if ev.Kind&(tactus.NoteOn|tactus.NoteOff) == 0 {
		return
	}
	t.events = append(t.events, ev)
}

func (t *RecordedTake) Empty() bool { return len(t.events) == 0 }

// Segment pairs the take's note ons with their note offs and returns a
// detached segment ready for Composition.AddSegment. Notes still open at
// the end of the take are closed at the last captured event time. A note
// on for a pitch that is already sounding closes the earlier note first,
// the way a monophonic retrigger would.
func (t *RecordedTake) Segment(comp *tactus.Composition) *tactus.Segment {
	t.events.Sort()
	end := tactus.RealTime(0)
	if len(t.events) > 0 {
		end = t.events[len(t.events)-1].Time
	}

	type open struct {
		at       tactus.RealTime
		velocity int
	}
	sounding := make(map[int]open)
	var notes []tactus.Note
	closeNote := func(pitch int, o open, at tactus.RealTime) {
		start := comp.TimeAt(o.at)
		stop := comp.TimeAt(at)
		if stop <= start {
			stop = start + 1
		}
		notes = append(notes, tactus.Note{
			Time:     start,
			Duration: stop - start,
			Pitch:    pitch,
			Velocity: o.velocity,
		})
	}
	for _, ev := range t.events {
		switch ev.Kind {
		case tactus.NoteOn:
			if o, ok := sounding[ev.Data1]; ok {
				closeNote(ev.Data1, o, ev.Time)
			}
			sounding[ev.Data1] = open{at: ev.Time, velocity: ev.Data2}
		case tactus.NoteOff:
			if o, ok := sounding[ev.Data1]; ok {
				closeNote(ev.Data1, o, ev.Time)
				delete(sounding, ev.Data1)
			}
		}
	}
	for pitch, o := range sounding {
		closeNote(pitch, o, end)
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].Time < notes[j].Time })

	segEnd := t.Start
	for _, n := range notes {
		if e := n.Time + n.Duration; e > segEnd {
			segEnd = e
		}
	}
	if segEnd <= t.Start {
		segEnd = t.Start + tactus.TicksPerQuarter
	}
	seg := tactus.NewSegment(t.Track, t.Start, segEnd)
	for _, n := range notes {
		seg.InsertNote(n)
	}
	return seg
}
