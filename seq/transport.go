package seq

import (
	"time"

	"github.com/tactus-audio/tactus"
)

// Messages sent to the engine over Broker.ToEngine. Each transport
// command is a small fixed-shape value; the engine never receives
// pointers into the document.
type (
	// StartPlayMsg asks the engine to start consuming mapped events from
	// the given position. The engine has no tempo map, so every position
	// comes with its playback-time anchor precomputed.
	StartPlayMsg struct {
		From   tactus.Time
		FromRT tactus.RealTime
		End    tactus.Time
		EndRT  tactus.RealTime
	}

	// StopMsg stops playback. The engine releases anything sounding.
	StopMsg struct{}

	// RecordingMsg arms or disarms recording on the engine side. While
	// armed the engine keeps rolling past the end marker, so a take is
	// never cut short by the composition's length.
	RecordingMsg struct {
		Enabled bool
	}

	// JumpToMsg moves the playback pointer without changing the
	// transport state.
	JumpToMsg struct {
		Pos   tactus.Time
		PosRT tactus.RealTime
	}

	// LoopMsg sets or clears the loop range.
	LoopMsg struct {
		Loop Loop
	}

	// PanicMsg sends all-notes-off and controller resets to every
	// device. Fire and forget.
	PanicMsg struct{}

	// ResetNetworkMsg sends an FF system reset on all devices and all
	// channels, for recovering from catastrophic desync.
	ResetNetworkMsg struct{}

	// EventSliceMsg delivers freshly mapped events for an upcoming
	// window. The engine appends them to its pending queue.
	EventSliceMsg struct {
		From, To     tactus.Time
		FromRT, ToRT tactus.RealTime
		Events       tactus.MappedEventList
	}

	// StatusRequestMsg asks the engine for its current driver
	// capability. The reply channel must have capacity 1; the engine
	// replies with TrySend and never blocks on it.
	StatusRequestMsg struct {
		Reply chan DriverStatus
	}

	// DiskSpaceRequestMsg asks the engine how much space is left on the
	// recording volume. Same reply contract as StatusRequestMsg.
	DiskSpaceRequestMsg struct {
		Reply chan DiskSpace
	}
)

// NeedEventsMsg flows the other way: the engine puts it in MsgToSeq.Data
// when its pending queue runs low, asking the manager to map and push
// the next window.
type NeedEventsMsg struct {
	From, To tactus.Time
}

// Loop is a loop range in musical time, with the playback-time anchors
// precomputed for the engine. The zero value means no loop.
type Loop struct {
	Start, End     tactus.Time
	StartRT, EndRT tactus.RealTime
	Enabled        bool
}

// DriverStatus is the last known capability of the real-time engine.
type DriverStatus uint8

const (
	MidiOK DriverStatus = 1 << iota
	AudioOK
)

func (s DriverStatus) String() string {
	switch {
	case s&MidiOK != 0 && s&AudioOK != 0:
		return "midi+audio"
	case s&MidiOK != 0:
		return "midi only"
	case s&AudioOK != 0:
		return "audio only"
	}
	return "no drivers"
}

// DiskSpace is the engine's report of the recording volume.
type DiskSpace struct {
	AvailKB uint64
}

// Messages sent to the UI over Broker.ToUI. All one-way, non-blocking
// notifications.
type (
	PlayingMsg struct{ Playing bool }

	RecordingStateMsg struct{ Recording bool }

	CountingInMsg struct{ CountingIn bool }

	MetronomeActiveMsg struct{ Active bool }

	TempoChangedMsg struct{ BPM float64 }

	// WarningMsg surfaces a rate-limited warning to the warning widget.
	// Duration is how long the widget should keep it visible.
	WarningMsg struct {
		Text        string
		Informative string
		Duration    time.Duration
	}

	// MidiActivityMsg drives the MIDI in/out activity labels.
	MidiActivityMsg struct {
		In    bool
		Event tactus.MappedEvent
	}

	// InsertableNoteMsg surfaces step-entry note input to the editors.
	InsertableNoteMsg struct {
		On       bool
		Pitch    int
		Velocity int
	}

	// SelectProgramMsg tells the instrument panel to select a program
	// without re-sending it to the device, avoiding feedback loops.
	SelectProgramMsg struct {
		Program int
		BankLSB int
		BankMSB int
	}

	// ControllerEventMsg passes an unsolicited controller event through
	// to whoever is listening (e.g. a controller-mapping dialog).
	ControllerEventMsg struct {
		Event tactus.MappedEvent
	}

	PositionMsg struct{ Pos tactus.Time }
)
