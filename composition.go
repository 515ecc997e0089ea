package tactus

import (
	"errors"

	"github.com/google/uuid"
)

type (
	// Composition is the editable musical document: tracks, segments and
	// the composition-level change maps. All mutation happens on the
	// document goroutine; observers are called synchronously from the
	// mutating call.
	Composition struct {
		Tracks         []Track
		Segments       []*Segment
		Tempo          []TempoChange   `yaml:",omitempty"`
		TimeSignatures []TimeSigChange `yaml:",omitempty"`
		Metronome      Metronome       `yaml:",omitempty"`
		EndMarker      Time

		observers  map[ObserverID]CompositionCallbacks
		nextObsID  ObserverID
	}

	// ObserverID identifies a subscription made with Observe.
	ObserverID int

	// CompositionCallbacks is the observer interface, as a struct of
	// optional functions so a subscriber only fills in the callbacks it
	// needs. SegmentChanged carries the affected range in absolute ticks;
	// equal bounds mean the whole segment must be considered changed.
	CompositionCallbacks struct {
		SegmentAdded         func(*Segment)
		SegmentRemoved       func(*Segment)
		SegmentChanged       func(s *Segment, from, to Time)
		TempoChanged         func()
		TimeSignatureChanged func()
		TracksChanged        func()
		MetronomeChanged     func()
		EndMarkerChanged     func()
	}
)

var ErrSegmentAttached = errors.New("segment already belongs to a composition")

func NewComposition() *Composition {
	return &Composition{
		Tracks:    []Track{{ID: 0, Name: "Track 1"}},
		EndMarker: 64 * TicksPerQuarter,
	}
}

// Observe subscribes the given callbacks and returns an id that can be
// passed to Unobserve.
func (c *Composition) Observe(cb CompositionCallbacks) ObserverID {
	if c.observers == nil {
		c.observers = make(map[ObserverID]CompositionCallbacks)
	}
	c.nextObsID++
	c.observers[c.nextObsID] = cb
	return c.nextObsID
}

func (c *Composition) Unobserve(id ObserverID) {
	delete(c.observers, id)
}

func (c *Composition) notify(f func(CompositionCallbacks)) {
	for _, cb := range c.observers {
		f(cb)
	}
}

func (c *Composition) notifySegmentChanged(s *Segment, from, to Time) {
	c.notify(func(cb CompositionCallbacks) {
		if cb.SegmentChanged != nil {
			cb.SegmentChanged(s, from, to)
		}
	})
}

// AddSegment attaches a segment to the composition and notifies
// observers. The segment must not already belong to a composition.
func (c *Composition) AddSegment(s *Segment) error {
	if s.comp != nil {
		return ErrSegmentAttached
	}
	if s.ID == (uuid.UUID{}) {
		s.ID = uuid.New()
	}
	s.comp = c
	c.Segments = append(c.Segments, s)
	c.notify(func(cb CompositionCallbacks) {
		if cb.SegmentAdded != nil {
			cb.SegmentAdded(s)
		}
	})
	return nil
}

// RemoveSegment detaches a segment. Observers are notified synchronously
// so no stale per-segment state can outlive the removal.
func (c *Composition) RemoveSegment(s *Segment) {
	for i, seg := range c.Segments {
		if seg == s {
			c.Segments = append(c.Segments[:i], c.Segments[i+1:]...)
			s.comp = nil
			c.notify(func(cb CompositionCallbacks) {
				if cb.SegmentRemoved != nil {
					cb.SegmentRemoved(s)
				}
			})
			return
		}
	}
}

// SegmentsOverlapping returns the attached segments whose total span
// (including repeats) overlaps [from, to).
func (c *Composition) SegmentsOverlapping(from, to Time) []*Segment {
	var ret []*Segment
	for _, s := range c.Segments {
		if s.Start < to && s.TotalEnd() > from {
			ret = append(ret, s)
		}
	}
	return ret
}

// TrackByID returns the track with the given id, or nil.
func (c *Composition) TrackByID(id TrackID) *Track {
	for i := range c.Tracks {
		if c.Tracks[i].ID == id {
			return &c.Tracks[i]
		}
	}
	return nil
}

// AddTrack appends a track with a fresh id and notifies observers.
func (c *Composition) AddTrack(t Track) TrackID {
	maxID := TrackID(-1)
	for _, existing := range c.Tracks {
		if existing.ID > maxID {
			maxID = existing.ID
		}
	}
	t.ID = maxID + 1
	c.Tracks = append(c.Tracks, t)
	c.notify(func(cb CompositionCallbacks) {
		if cb.TracksChanged != nil {
			cb.TracksChanged()
		}
	})
	return t.ID
}

// RemoveTrack deletes a track and removes its segments.
func (c *Composition) RemoveTrack(id TrackID) {
	found := false
	for i := range c.Tracks {
		if c.Tracks[i].ID == id {
			c.Tracks = append(c.Tracks[:i], c.Tracks[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return
	}
	for _, s := range c.SegmentsOnTrack(id) {
		c.RemoveSegment(s)
	}
	c.notify(func(cb CompositionCallbacks) {
		if cb.TracksChanged != nil {
			cb.TracksChanged()
		}
	})
}

// SetTrack replaces the stored track with the same id.
func (c *Composition) SetTrack(t Track) {
	for i := range c.Tracks {
		if c.Tracks[i].ID == t.ID {
			c.Tracks[i] = t
			c.notify(func(cb CompositionCallbacks) {
				if cb.TracksChanged != nil {
					cb.TracksChanged()
				}
			})
			return
		}
	}
}

// SegmentsOnTrack returns all attached segments of a track.
func (c *Composition) SegmentsOnTrack(id TrackID) []*Segment {
	var ret []*Segment
	for _, s := range c.Segments {
		if s.Track == id {
			ret = append(ret, s)
		}
	}
	return ret
}

// SetEndMarker moves the end marker and notifies observers. The
// synchronization core treats this as a structural change.
func (c *Composition) SetEndMarker(t Time) {
	if c.EndMarker == t {
		return
	}
	c.EndMarker = t
	c.notify(func(cb CompositionCallbacks) {
		if cb.EndMarkerChanged != nil {
			cb.EndMarkerChanged()
		}
	})
}

// HasArmedAudioTrack reports whether any audio track is record-armed;
// decides if a disk-space preflight is meaningful before recording.
func (c *Composition) HasArmedAudioTrack() bool {
	for _, t := range c.Tracks {
		if t.Audio && t.Armed {
			return true
		}
	}
	return false
}

// attach restores the unexported owner pointers after unmarshalling.
func (c *Composition) attach() {
	for _, s := range c.Segments {
		s.comp = c
		if s.ID == (uuid.UUID{}) {
			s.ID = uuid.New()
		}
	}
}

// Copy makes a deep copy of the composition. Observers are not copied.
func (c *Composition) Copy() *Composition {
	ret := &Composition{
		Tracks:         append([]Track(nil), c.Tracks...),
		Tempo:          append([]TempoChange(nil), c.Tempo...),
		TimeSignatures: append([]TimeSigChange(nil), c.TimeSignatures...),
		Metronome:      c.Metronome,
		EndMarker:      c.EndMarker,
	}
	for _, s := range c.Segments {
		cp := s.Copy()
		cp.comp = ret
		ret.Segments = append(ret.Segments, cp)
	}
	return ret
}
