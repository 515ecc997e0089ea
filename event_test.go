package tactus_test

import (
	"reflect"
	"testing"

	"github.com/tactus-audio/tactus"
)

func TestEventKindValid(t *testing.T) {
	for _, k := range []tactus.EventKind{
		tactus.NoteOn, tactus.NoteOff, tactus.Controller, tactus.ProgramChange,
		tactus.PitchBend, tactus.System, tactus.MetronomeClick, tactus.TextEvent,
	} {
		if !k.Valid() {
			t.Errorf("kind %v should be valid", k)
		}
	}
	for _, k := range []tactus.EventKind{0, tactus.NoteOn | tactus.NoteOff, 1 << 15} {
		if k.Valid() {
			t.Errorf("kind %d should not be valid", k)
		}
	}
}

func TestMergeKeepsOrder(t *testing.T) {
	a := tactus.MappedEventList{
		{Kind: tactus.NoteOn, Time: 0, Data1: 60},
		{Kind: tactus.NoteOn, Time: 100, Data1: 62},
	}
	b := tactus.MappedEventList{
		{Kind: tactus.NoteOn, Time: 50, Data1: 61},
		{Kind: tactus.NoteOn, Time: 100, Data1: 63},
	}
	got := a.Merge(b)
	want := tactus.MappedEventList{
		{Kind: tactus.NoteOn, Time: 0, Data1: 60},
		{Kind: tactus.NoteOn, Time: 50, Data1: 61},
		{Kind: tactus.NoteOn, Time: 100, Data1: 62}, // receiver wins the tie
		{Kind: tactus.NoteOn, Time: 100, Data1: 63},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	// inputs untouched
	if len(a) != 2 || len(b) != 2 {
		t.Errorf("merge modified its inputs")
	}
}

func TestMergeEmpty(t *testing.T) {
	a := tactus.MappedEventList{{Kind: tactus.NoteOn, Time: 10}}
	if got := a.Merge(nil); !reflect.DeepEqual(got, a) {
		t.Errorf("merging with empty changed the list: %v", got)
	}
	if got := tactus.MappedEventList(nil).Merge(a); !reflect.DeepEqual(got, a) {
		t.Errorf("merging into empty lost events: %v", got)
	}
}

func TestSliceHalfOpen(t *testing.T) {
	l := tactus.MappedEventList{
		{Time: 0}, {Time: 10}, {Time: 20}, {Time: 30},
	}
	got := l.Slice(10, 30)
	if len(got) != 2 || got[0].Time != 10 || got[1].Time != 20 {
		t.Errorf("slice [10,30) = %v, want events at 10 and 20", got)
	}
	if len(l.Slice(40, 50)) != 0 {
		t.Errorf("slice beyond the end should be empty")
	}
}

func TestFilterMask(t *testing.T) {
	l := tactus.MappedEventList{
		{Kind: tactus.NoteOn, Data1: 60},
		{Kind: tactus.Controller, Data1: 7},
		{Kind: tactus.NoteOff, Data1: 60},
		{Kind: tactus.System, Data1: tactus.SystemTempo},
	}
	got := l.Filter(tactus.NoteOn | tactus.NoteOff)
	if len(got) != 2 || got[0].Kind != tactus.NoteOn || got[1].Kind != tactus.NoteOff {
		t.Errorf("filter returned %v", got)
	}
	if len(l.Filter(tactus.AnyEvent)) != len(l) {
		t.Errorf("AnyEvent mask should keep everything")
	}
}
