package tactus

import (
	"sort"

	"github.com/google/uuid"
)

type (
	// Note is a single note within a Segment. Time is in absolute
	// composition ticks, not relative to the segment start.
	Note struct {
		Time     Time
		Duration Time
		Pitch    int
		Velocity int
	}

	// Segment is a timed region of musical content belonging to a Track.
	// Segments are owned by a Composition; this core observes and reads
	// them but the editing surfaces create and destroy them. A Segment
	// removed from its Composition becomes detached and must no longer be
	// mapped.
	// The ID is runtime identity only (it keys the refresh ledger); it is
	// regenerated on load rather than persisted.
	Segment struct {
		ID        uuid.UUID `yaml:"-" json:"-"`
		Track     TrackID
		Start     Time
		End       Time
		Repeating bool `yaml:",omitempty"`
		RepeatEnd Time `yaml:",omitempty"`
		Transpose int  `yaml:",omitempty"`
		Notes     []Note

		comp *Composition
	}
)

func NewSegment(track TrackID, start, end Time) *Segment {
	return &Segment{ID: uuid.New(), Track: track, Start: start, End: end}
}

// Detached reports whether the segment has been removed from its owning
// Composition (or never belonged to one).
func (s *Segment) Detached() bool { return s.comp == nil }

// TotalEnd returns the end of the segment including repeats.
func (s *Segment) TotalEnd() Time {
	if s.Repeating && s.RepeatEnd > s.End {
		return s.RepeatEnd
	}
	return s.End
}

// NotesInRange calls yield for every sounding note whose start falls in
// [from, to), including repeat images, with transpose applied. Notes are
// yielded in time order.
func (s *Segment) NotesInRange(from, to Time, yield func(Note)) {
	length := s.End - s.Start
	if length <= 0 {
		return
	}
	repeats := int64(1)
	if s.Repeating && s.RepeatEnd > s.End {
		repeats = 1 + (int64(s.RepeatEnd-s.Start)-1)/int64(length)
	}
	for r := int64(0); r < repeats; r++ {
		offset := Time(r) * length
		for _, n := range s.Notes {
			t := n.Time + offset
			if t >= s.TotalEnd() || t >= to {
				break
			}
			if t < from {
				continue
			}
			yield(Note{
				Time:     t,
				Duration: n.Duration,
				Pitch:    n.Pitch + s.Transpose,
				Velocity: n.Velocity,
			})
		}
	}
}

// InsertNote adds a note, keeping Notes time-ordered, and notifies
// observers that the note's span needs remapping.
func (s *Segment) InsertNote(n Note) {
	i := sort.Search(len(s.Notes), func(i int) bool { return s.Notes[i].Time > n.Time })
	s.Notes = append(s.Notes, Note{})
	copy(s.Notes[i+1:], s.Notes[i:])
	s.Notes[i] = n
	if s.comp != nil {
		s.comp.notifySegmentChanged(s, n.Time, n.Time+n.Duration)
	}
}

// RemoveNotes deletes every note starting in [from, to) and notifies
// observers of the affected span.
func (s *Segment) RemoveNotes(from, to Time) {
	kept := s.Notes[:0]
	for _, n := range s.Notes {
		if n.Time >= from && n.Time < to {
			continue
		}
		kept = append(kept, n)
	}
	if len(kept) == len(s.Notes) {
		return
	}
	s.Notes = kept
	if s.comp != nil {
		s.comp.notifySegmentChanged(s, from, to)
	}
}

// SetTranspose changes the transposition of the whole segment. Equal
// bounds in the change notification mean the full segment is remapped.
func (s *Segment) SetTranspose(semitones int) {
	if s.Transpose == semitones {
		return
	}
	s.Transpose = semitones
	if s.comp != nil {
		s.comp.notifySegmentChanged(s, s.Start, s.Start)
	}
}

// SetRepeating changes the repeat flag and end.
func (s *Segment) SetRepeating(repeating bool, repeatEnd Time) {
	if s.Repeating == repeating && s.RepeatEnd == repeatEnd {
		return
	}
	s.Repeating = repeating
	s.RepeatEnd = repeatEnd
	if s.comp != nil {
		s.comp.notifySegmentChanged(s, s.Start, s.Start)
	}
}

// ShiftNotes moves all note timing by delta ticks.
func (s *Segment) ShiftNotes(delta Time) {
	if delta == 0 {
		return
	}
	for i := range s.Notes {
		s.Notes[i].Time += delta
	}
	if s.comp != nil {
		s.comp.notifySegmentChanged(s, s.Start, s.Start)
	}
}

// Copy makes a deep copy of a Segment. The copy is detached.
func (s *Segment) Copy() *Segment {
	notes := make([]Note, len(s.Notes))
	copy(notes, s.Notes)
	return &Segment{
		ID:        s.ID,
		Track:     s.Track,
		Start:     s.Start,
		End:       s.End,
		Repeating: s.Repeating,
		RepeatEnd: s.RepeatEnd,
		Transpose: s.Transpose,
		Notes:     notes,
	}
}
