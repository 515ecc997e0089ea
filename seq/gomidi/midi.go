package gomidi

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tactus-audio/tactus"
	"github.com/tactus-audio/tactus/seq"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

type (
	// RTMIDIContext is the rtmidi-backed MIDI endpoint. Input messages
	// are translated to mapped events and handed to the broker's event
	// router; the engine plays mapped events out through SendEvent.
	RTMIDIContext struct {
		broker *seq.Broker
		driver *rtmididrv.Driver

		mu         sync.Mutex
		in         drivers.In
		out        drivers.Out
		send       func(midi.Message) error
		originRT   tactus.RealTime
		originWall time.Time
		hasOrigin  bool
	}
)

// scanTimeout bounds the device scan; some backends hang on flaky
// hardware and a stuck scan must not stall the transport.
const scanTimeout = 2 * time.Second

// NewContext opens the rtmidi driver. A failed driver open is not an
// error here; the context just reports no MIDI capability.
func NewContext(broker *seq.Broker) *RTMIDIContext {
	c := &RTMIDIContext{broker: broker}
	c.driver, _ = rtmididrv.New()
	return c
}

// InputNames lists the names of the available input ports.
func (c *RTMIDIContext) InputNames() []string {
	ins, ok := c.scanIns()
	if !ok {
		return nil
	}
	ret := make([]string, len(ins))
	for i, in := range ins {
		ret[i] = in.String()
	}
	return ret
}

// OutputNames lists the names of the available output ports.
func (c *RTMIDIContext) OutputNames() []string {
	outs, ok := c.scanOuts()
	if !ok {
		return nil
	}
	ret := make([]string, len(outs))
	for i, out := range outs {
		ret[i] = out.String()
	}
	return ret
}

func (c *RTMIDIContext) scanIns() ([]drivers.In, bool) {
	if c.driver == nil {
		return nil, false
	}
	reply := make(chan []drivers.In, 1)
	go func() {
		ins, err := c.driver.Ins()
		if err != nil {
			ins = nil
		}
		reply <- ins
	}()
	return seq.TimeoutReceive(reply, scanTimeout)
}

func (c *RTMIDIContext) scanOuts() ([]drivers.Out, bool) {
	if c.driver == nil {
		return nil, false
	}
	reply := make(chan []drivers.Out, 1)
	go func() {
		outs, err := c.driver.Outs()
		if err != nil {
			outs = nil
		}
		reply <- outs
	}()
	return seq.TimeoutReceive(reply, scanTimeout)
}

// OpenInputByPrefix opens the first input whose name starts with the
// prefix, or the first input at all when the prefix is empty. The
// currently open input, if any, is closed first.
func (c *RTMIDIContext) OpenInputByPrefix(prefix string) error {
	ins, ok := c.scanIns()
	if !ok {
		return errors.New("midi input scan failed or timed out")
	}
	for _, in := range ins {
		if prefix != "" && !strings.HasPrefix(in.String(), prefix) {
			continue
		}
		return c.openInput(in)
	}
	return fmt.Errorf("no midi input matching %q", prefix)
}

func (c *RTMIDIContext) openInput(in drivers.In) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.in != nil && c.in.IsOpen() {
		c.in.Close()
	}
	if err := in.Open(); err != nil {
		return fmt.Errorf("opening midi input: %w", err)
	}
	if _, err := midi.ListenTo(in, c.handleMessage); err != nil {
		in.Close()
		return fmt.Errorf("listening to midi input: %w", err)
	}
	c.in = in
	return nil
}

// OpenOutputByPrefix opens the first output whose name starts with the
// prefix, or the first output at all when the prefix is empty.
func (c *RTMIDIContext) OpenOutputByPrefix(prefix string) error {
	outs, ok := c.scanOuts()
	if !ok {
		return errors.New("midi output scan failed or timed out")
	}
	for _, out := range outs {
		if prefix != "" && !strings.HasPrefix(out.String(), prefix) {
			continue
		}
		return c.openOutput(out)
	}
	return fmt.Errorf("no midi output matching %q", prefix)
}

func (c *RTMIDIContext) openOutput(out drivers.Out) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out != nil && c.out.IsOpen() {
		c.out.Close()
	}
	if err := out.Open(); err != nil {
		return fmt.Errorf("opening midi output: %w", err)
	}
	send, err := midi.SendTo(out)
	if err != nil {
		out.Close()
		return fmt.Errorf("preparing midi output: %w", err)
	}
	c.out = out
	c.send = send
	return nil
}

// SetTimeOrigin anchors incoming events on the playback time axis: an
// event arriving now is stamped rt, later arrivals rt plus wall-clock
// elapsed. The engine calls this when playback starts or jumps.
func (c *RTMIDIContext) SetTimeOrigin(rt tactus.RealTime) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.originRT = rt
	c.originWall = time.Now()
	c.hasOrigin = true
}

func (c *RTMIDIContext) stamp() tactus.RealTime {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasOrigin {
		return 0
	}
	return c.originRT + tactus.RealTimeFromDuration(time.Since(c.originWall))
}

// handleMessage runs on the driver's callback goroutine. Each message
// becomes a one-event batch borrowed from the broker's pool; a full
// router channel drops the batch rather than blocking the driver.
func (c *RTMIDIContext) handleMessage(msg midi.Message, timestampms int32) {
	var channel, key, velocity, controller, value, program uint8
	var bend int16
	var bendAbs uint16
	ev := tactus.MappedEvent{Time: c.stamp()}
	switch {
	case msg.GetNoteStart(&channel, &key, &velocity):
		ev.Kind = tactus.NoteOn
		ev.Data1 = int(key)
		ev.Data2 = int(velocity)
	case msg.GetNoteEnd(&channel, &key):
		ev.Kind = tactus.NoteOff
		ev.Data1 = int(key)
	case msg.GetControlChange(&channel, &controller, &value):
		ev.Kind = tactus.Controller
		ev.Data1 = int(controller)
		ev.Data2 = int(value)
	case msg.GetProgramChange(&channel, &program):
		ev.Kind = tactus.ProgramChange
		ev.Data1 = int(program)
	case msg.GetPitchBend(&channel, &bend, &bendAbs):
		ev.Kind = tactus.PitchBend
		ev.Data1 = int(bend)
	default:
		return
	}
	ev.Instrument = tactus.InstrumentID(channel) + 1
	list := c.broker.GetEventList()
	*list = append(*list, ev)
	if !seq.TrySend(c.broker.ToRouter, any(list)) {
		c.broker.PutEventList(list)
	}
}

// channelFor maps an instrument id onto a MIDI channel. Instruments are
// 1-based; zero and negatives land on channel 0.
func channelFor(id tactus.InstrumentID) uint8 {
	if id <= 0 {
		return 0
	}
	return uint8((int(id) - 1) % 16)
}

// SendEvent plays one mapped event on the open output. Kinds with no
// MIDI representation (metronome clicks, system events) are ignored.
func (c *RTMIDIContext) SendEvent(ev tactus.MappedEvent) error {
	c.mu.Lock()
	send := c.send
	c.mu.Unlock()
	if send == nil {
		return errors.New("no midi output open")
	}
	ch := channelFor(ev.Instrument)
	var msg midi.Message
	switch ev.Kind {
	case tactus.NoteOn:
		msg = midi.NoteOn(ch, uint8(ev.Data1), uint8(ev.Data2))
	case tactus.NoteOff:
		msg = midi.NoteOff(ch, uint8(ev.Data1))
	case tactus.Controller:
		msg = midi.ControlChange(ch, uint8(ev.Data1), uint8(ev.Data2))
	case tactus.ProgramChange:
		msg = midi.ProgramChange(ch, uint8(ev.Data1))
	case tactus.PitchBend:
		msg = midi.Pitchbend(ch, int16(ev.Data1))
	default:
		return nil
	}
	return send(msg)
}

// AllNotesOff silences every channel: all-notes-off plus a controller
// reset, the polite way to stop a runaway device.
func (c *RTMIDIContext) AllNotesOff() {
	c.mu.Lock()
	send := c.send
	c.mu.Unlock()
	if send == nil {
		return
	}
	for ch := uint8(0); ch < 16; ch++ {
		send(midi.ControlChange(ch, 123, 0)) // all notes off
		send(midi.ControlChange(ch, 121, 0)) // reset all controllers
	}
}

// SystemReset sends a full system reset, for recovering devices that
// all-notes-off cannot reach.
func (c *RTMIDIContext) SystemReset() {
	c.mu.Lock()
	send := c.send
	c.mu.Unlock()
	if send == nil {
		return
	}
	send(midi.Reset())
}

// Status reports the MIDI half of the engine's driver capability.
func (c *RTMIDIContext) Status() seq.DriverStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.send != nil {
		return seq.MidiOK
	}
	return 0
}

func (c *RTMIDIContext) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.in != nil && c.in.IsOpen() {
		c.in.Close()
	}
	if c.out != nil && c.out.IsOpen() {
		c.out.Close()
	}
	c.send = nil
	if c.driver != nil {
		c.driver.Close()
	}
}
