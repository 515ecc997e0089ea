package seq

import (
	"sync/atomic"

	"github.com/tactus-audio/tactus"
)

// droppedEvents counts malformed inbound events the router discarded.
var droppedEvents atomic.Uint64

// DroppedEvents returns how many malformed inbound events have been
// discarded since the process started.
func DroppedEvents() uint64 { return droppedEvents.Load() }

// RecordedBatchMsg travels in MsgToSeq.Data: inbound note events that
// belong to the active take. The list is owned by the receiver.
type RecordedBatchMsg struct {
	Events tactus.MappedEventList
}

// ApplyFiltering returns the events of the list whose kind is in the
// mask, in their original order.
func ApplyFiltering(l tactus.MappedEventList, mask tactus.EventKind) tactus.MappedEventList {
	return l.Filter(mask)
}

// RunEventRouter consumes inbound event batches (from MIDI input or the
// engine) on broker.ToRouter and classifies each event: note events go
// to the active take while recording, or to the editors as insertable
// notes; program changes and controllers become UI selection signals.
// Malformed events are dropped and counted. Meant to be run in a
// goroutine; stops when it receives from broker.CloseRouter and closes
// broker.FinishedRouter on the way out.
func RunEventRouter(broker *Broker) {
	defer close(broker.FinishedRouter)
	for {
		select {
		case <-broker.CloseRouter:
			return
		case msg := <-broker.ToRouter:
			switch m := msg.(type) {
			case *tactus.MappedEventList:
				routeEvents(broker, *m, nil)
				broker.PutEventList(m)
			case tactus.MappedEventList:
				routeEvents(broker, m, nil)
			}
		}
	}
}

// routeEvents classifies one batch. When record is non-nil the caller
// wants recorded note events delivered synchronously (the manager's own
// entry point); otherwise they are batched and sent to the manager over
// ToSeq.
func routeEvents(broker *Broker, list tactus.MappedEventList, record func(tactus.MappedEvent)) {
	var recorded tactus.MappedEventList
	recording := broker.recordingLive.Load()
	insertable := broker.insertableNotes.Load()
	for i, ev := range list {
		if !ev.Kind.Valid() {
			droppedEvents.Add(1)
			continue
		}
		if i == 0 {
			TrySend(broker.ToUI, any(MidiActivityMsg{In: true, Event: ev}))
		}
		switch ev.Kind {
		case tactus.NoteOn, tactus.NoteOff:
			switch {
			case recording && record != nil:
				record(ev)
			case recording:
				recorded = append(recorded, ev)
			case insertable:
				TrySend(broker.ToUI, any(InsertableNoteMsg{
					On:       ev.Kind == tactus.NoteOn,
					Pitch:    ev.Data1,
					Velocity: ev.Data2,
				}))
			}
		case tactus.ProgramChange:
			TrySend(broker.ToUI, any(SelectProgramMsg{
				Program: ev.Data1,
				BankLSB: ev.Data2 & 0x7f,
				BankMSB: ev.Data2 >> 7,
			}))
		case tactus.Controller:
			TrySend(broker.ToUI, any(ControllerEventMsg{Event: ev}))
		}
		// pitch bends, system and text events are not routed anywhere
		// from the input side
	}
	if len(recorded) > 0 {
		TrySend(broker.ToSeq, MsgToSeq{Data: RecordedBatchMsg{Events: recorded}})
	}
}
