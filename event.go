package tactus

import "sort"

type (
	// EventKind tells what a MappedEvent represents. The kinds are bit
	// flags so that a set of kinds can be expressed as a single mask, for
	// filtering event lists.
	EventKind uint16

	// InstrumentID identifies the playback instrument (device & channel
	// assignment) an event is addressed to. The studio/device setup owns
	// the actual mapping; this core only carries the id through.
	InstrumentID int

	// MappedEvent is the flattened, engine-ready representation of a
	// single musical event. It is a pure value: two MappedEvents are the
	// same event if and only if all their fields are equal.
	//
	// The meaning of Data1 and Data2 depends on Kind: pitch & velocity for
	// notes, controller number & value for controllers, program number for
	// program changes, bend amount for pitch bends, accent & velocity for
	// metronome clicks.
	MappedEvent struct {
		Instrument InstrumentID
		Kind       EventKind
		Time       RealTime
		Duration   RealTime
		Data1      int
		Data2      int
	}

	// MappedEventList is a time-ordered list of MappedEvents. Events with
	// equal timestamps keep their insertion order; Merge and Slice
	// preserve it. The zero value is an empty, usable list.
	MappedEventList []MappedEvent
)

const (
	NoteOn EventKind = 1 << iota
	NoteOff
	Controller
	ProgramChange
	PitchBend
	System
	MetronomeClick
	TextEvent

	AnyEvent = NoteOn | NoteOff | Controller | ProgramChange | PitchBend |
		System | MetronomeClick | TextEvent
)

// System event subtypes, carried in Data1 of a System kind event.
const (
	SystemTempo = iota
	SystemTimeSignature
)

// Valid reports whether the kind is exactly one known kind. Events
// arriving from outside with zero or multiple bits set are malformed.
func (k EventKind) Valid() bool {
	return k != 0 && k&(k-1) == 0 && k&AnyEvent == k
}

func (k EventKind) String() string {
	switch k {
	case NoteOn:
		return "note-on"
	case NoteOff:
		return "note-off"
	case Controller:
		return "controller"
	case ProgramChange:
		return "program-change"
	case PitchBend:
		return "pitch-bend"
	case System:
		return "system"
	case MetronomeClick:
		return "metronome"
	case TextEvent:
		return "text"
	}
	return "unknown"
}

// Merge combines two time-ordered lists into a new time-ordered list.
// Neither input is modified. On equal timestamps, events of the receiver
// come before events of the other list, so merging is insertion-stable.
func (l MappedEventList) Merge(other MappedEventList) MappedEventList {
	if len(other) == 0 {
		return append(MappedEventList(nil), l...)
	}
	if len(l) == 0 {
		return append(MappedEventList(nil), other...)
	}
	ret := make(MappedEventList, 0, len(l)+len(other))
	i, j := 0, 0
	for i < len(l) && j < len(other) {
		if other[j].Time < l[i].Time {
			ret = append(ret, other[j])
			j++
		} else {
			ret = append(ret, l[i])
			i++
		}
	}
	ret = append(ret, l[i:]...)
	ret = append(ret, other[j:]...)
	return ret
}

// Slice returns the events with from <= Time < to, sharing the backing
// array with the receiver.
func (l MappedEventList) Slice(from, to RealTime) MappedEventList {
	lo := sort.Search(len(l), func(i int) bool { return l[i].Time >= from })
	hi := sort.Search(len(l), func(i int) bool { return l[i].Time >= to })
	return l[lo:hi]
}

// Filter returns a new list containing only the events whose kind is in
// the mask, in their original order. The receiver is not modified.
func (l MappedEventList) Filter(mask EventKind) MappedEventList {
	ret := make(MappedEventList, 0, len(l))
	for _, e := range l {
		if e.Kind&mask != 0 {
			ret = append(ret, e)
		}
	}
	return ret
}

// Sort orders the list by time, keeping the relative order of events
// with equal timestamps.
func (l MappedEventList) Sort() {
	sort.SliceStable(l, func(i, j int) bool { return l[i].Time < l[j].Time })
}

// Copy makes a deep copy of the list.
func (l MappedEventList) Copy() MappedEventList {
	return append(MappedEventList(nil), l...)
}
