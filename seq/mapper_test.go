package seq_test

import (
	"reflect"
	"testing"

	"github.com/tactus-audio/tactus"
	"github.com/tactus-audio/tactus/seq"
)

func mappedComposition() (*tactus.Composition, *tactus.Segment) {
	c := tactus.NewComposition()
	s := tactus.NewSegment(0, 0, 8*tactus.TicksPerQuarter)
	for i := 0; i < 8; i++ {
		s.InsertNote(tactus.Note{
			Time:     tactus.Time(i) * tactus.TicksPerQuarter,
			Duration: tactus.TicksPerQuarter / 2,
			Pitch:    60 + i,
			Velocity: 100,
		})
	}
	c.AddSegment(s)
	return c, s
}

func observe(c *tactus.Composition, m *seq.CompositionMapper) {
	c.Observe(tactus.CompositionCallbacks{
		SegmentAdded:   m.SegmentAdded,
		SegmentRemoved: m.SegmentRemoved,
		SegmentChanged: m.SegmentChanged,
	})
}

func TestEventsForRangeIdempotent(t *testing.T) {
	c, _ := mappedComposition()
	m := seq.NewCompositionMapper(c)
	observe(c, m)
	end := 8 * tactus.TicksPerQuarter
	first := m.EventsForRange(0, end)
	second := m.EventsForRange(0, end)
	if len(first) != 8 {
		t.Fatalf("got %d events, want 8", len(first))
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated mapping with no edits differs")
	}
}

func TestPartialRebuildKeepsOutsideEvents(t *testing.T) {
	c, s := mappedComposition()
	m := seq.NewCompositionMapper(c)
	observe(c, m)
	end := 8 * tactus.TicksPerQuarter
	before := m.EventsForRange(0, end)

	// edit only the fifth beat; events outside the dirty range must be
	// identical afterwards
	s.RemoveNotes(4*tactus.TicksPerQuarter, 5*tactus.TicksPerQuarter)
	after := m.EventsForRange(0, end)
	if len(after) != 7 {
		t.Fatalf("got %d events after removal, want 7", len(after))
	}
	rt := c.RealTimeAt(4 * tactus.TicksPerQuarter)
	wantBefore := before.Slice(0, rt).Copy()
	gotBefore := after.Slice(0, rt).Copy()
	if !reflect.DeepEqual(wantBefore, gotBefore) {
		t.Errorf("events before the dirty range changed")
	}
}

func TestEditDuringMappingStaysPending(t *testing.T) {
	c, s := mappedComposition()
	m := seq.NewCompositionMapper(c)
	observe(c, m)
	end := 8 * tactus.TicksPerQuarter
	m.EventsForRange(0, end)

	s.InsertNote(tactus.Note{Time: 100, Duration: 50, Pitch: 90, Velocity: 100})
	got := m.EventsForRange(0, end)
	if len(got) != 9 {
		t.Errorf("edit after mapping not picked up: %d events", len(got))
	}
}

func TestSegmentRemovalDropsState(t *testing.T) {
	c, s := mappedComposition()
	m := seq.NewCompositionMapper(c)
	observe(c, m)
	m.EventsForRange(0, 8*tactus.TicksPerQuarter)
	c.RemoveSegment(s)
	if m.HasSegment(s.ID) {
		t.Errorf("mapper state should not outlive the segment")
	}
	if got := m.EventsForRange(0, 8*tactus.TicksPerQuarter); len(got) != 0 {
		t.Errorf("removed segment still mapped: %v", got)
	}
}

func TestDetachedSegmentSkippedAndDropped(t *testing.T) {
	c, s := mappedComposition()
	m := seq.NewCompositionMapper(c)
	// no observer wired: the mapper hears nothing about the removal and
	// only notices the dangling segment while mapping
	m.EventsForRange(0, 8*tactus.TicksPerQuarter)
	c.RemoveSegment(s)
	if !s.Detached() {
		t.Fatal("removed segment should be detached")
	}
	if got := m.EventsForRange(0, 8*tactus.TicksPerQuarter); len(got) != 0 {
		t.Errorf("detached segment still mapped: %v", got)
	}
	if m.HasSegment(s.ID) {
		t.Errorf("detached segment's mapping was not torn down")
	}
}

func TestMutedTrackNotMapped(t *testing.T) {
	c, _ := mappedComposition()
	m := seq.NewCompositionMapper(c)
	observe(c, m)
	c.Observe(tactus.CompositionCallbacks{TracksChanged: m.ResetAll})
	track := *c.TrackByID(0)
	track.Muted = true
	c.SetTrack(track)
	if got := m.EventsForRange(0, 8*tactus.TicksPerQuarter); len(got) != 0 {
		t.Errorf("muted track still mapped: %d events", len(got))
	}
}

func TestTransposeAppliesToMapping(t *testing.T) {
	c, s := mappedComposition()
	m := seq.NewCompositionMapper(c)
	observe(c, m)
	m.EventsForRange(0, 8*tactus.TicksPerQuarter)
	s.SetTranspose(12)
	got := m.EventsForRange(0, tactus.TicksPerQuarter)
	if len(got) != 1 || got[0].Data1 != 72 {
		t.Errorf("transpose not applied: %v", got)
	}
}

func TestDeterministicAcrossSegments(t *testing.T) {
	c := tactus.NewComposition()
	for i := 0; i < 5; i++ {
		s := tactus.NewSegment(0, 0, tactus.TicksPerQuarter)
		s.InsertNote(tactus.Note{Time: 0, Duration: 100, Pitch: 60 + i, Velocity: 100})
		c.AddSegment(s)
	}
	m := seq.NewCompositionMapper(c)
	first := m.EventsForRange(0, tactus.TicksPerQuarter)
	for i := 0; i < 10; i++ {
		if got := m.EventsForRange(0, tactus.TicksPerQuarter); !reflect.DeepEqual(got, first) {
			t.Fatalf("tie order varies between calls")
		}
	}
}
