package engine

import (
	"github.com/tactus-audio/tactus"
	"github.com/tactus-audio/tactus/seq"
)

// NullMIDI is a MIDIOut that goes nowhere, for tests and for running
// without any MIDI hardware.
type NullMIDI struct{}

func (NullMIDI) SendEvent(tactus.MappedEvent) error { return nil }
func (NullMIDI) AllNotesOff()                       {}
func (NullMIDI) SystemReset()                       {}
func (NullMIDI) Status() seq.DriverStatus           { return 0 }
func (NullMIDI) SetTimeOrigin(tactus.RealTime)      {}
