// Package engine is the playback half of the transport: it consumes
// mapped event windows pushed by the sequence manager, paces them on a
// wall-clock ticker and emits them to the MIDI output and the click
// audio. It talks to the rest of the application only through the
// broker, the same way the manager does, so neither side can stall the
// other.
package engine

import (
	"os"
	"time"

	"github.com/tactus-audio/tactus"
	"github.com/tactus-audio/tactus/seq"
)

type (
	// MIDIOut is the engine's view of a MIDI endpoint. The gomidi
	// adapter implements it; tests use NullMIDI or a recording fake.
	MIDIOut interface {
		SendEvent(tactus.MappedEvent) error
		AllNotesOff()
		SystemReset()
		Status() seq.DriverStatus
		SetTimeOrigin(tactus.RealTime)
	}

	// Options are the engine tunables. Zero values get defaults.
	Options struct {
		// TickInterval is the pacing resolution.
		TickInterval time.Duration
		// WindowTicks is how far ahead of the playhead the engine wants
		// mapped events queued.
		WindowTicks tactus.Time
		// RecordPath is the directory whose volume is checked when the
		// manager asks for disk space.
		RecordPath string
		// DiskAvail overrides the disk space probe, mainly for tests.
		DiskAvail func(path string) (kb uint64, err error)
	}

	engine struct {
		broker *seq.Broker
		midi   MIDIOut
		click  *ClickPlayer
		opt    Options

		playing   bool
		recording bool
		pos       tactus.Time
		posRT     tactus.RealTime
		end       tactus.Time
		bpm       float64
		loop      seq.Loop

		queue      tactus.MappedEventList
		queueIdx   int
		queuedTo   tactus.Time
		requested  bool
		noteOffs   tactus.MappedEventList
		lastTick   time.Time
		lastReport tactus.Time
		sendFailed bool
	}
)

// Run is the engine goroutine. It stops when it receives from
// broker.CloseEngine and closes broker.FinishedEngine on the way out.
// click may be nil when no audio output could be opened.
func Run(broker *seq.Broker, midi MIDIOut, click *ClickPlayer, opt Options) {
	defer close(broker.FinishedEngine)
	if opt.TickInterval == 0 {
		opt.TickInterval = 10 * time.Millisecond
	}
	if opt.WindowTicks == 0 {
		opt.WindowTicks = 4 * 4 * tactus.TicksPerQuarter
	}
	if opt.RecordPath == "" {
		opt.RecordPath = os.TempDir()
	}
	if opt.DiskAvail == nil {
		opt.DiskAvail = diskAvail
	}
	e := &engine{broker: broker, midi: midi, click: click, opt: opt, bpm: tactus.DefaultBPM}
	ticker := time.NewTicker(opt.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-broker.CloseEngine:
			e.silence()
			return
		case msg := <-broker.ToEngine:
			e.handle(msg)
		case now := <-ticker.C:
			e.advance(now)
		}
	}
}

func (e *engine) handle(msg any) {
	switch m := msg.(type) {
	case seq.StartPlayMsg:
		e.pos, e.posRT = m.From, m.FromRT
		e.end = m.End
		e.playing = true
		e.sendFailed = false
		e.lastTick = time.Now()
		e.midi.SetTimeOrigin(e.posRT)
	case seq.StopMsg:
		e.silence()
		e.playing = false
		e.resetQueue(e.pos)
	case seq.RecordingMsg:
		e.recording = m.Enabled
	case seq.JumpToMsg:
		e.silence()
		e.pos, e.posRT = m.Pos, m.PosRT
		e.resetQueue(m.Pos)
		e.midi.SetTimeOrigin(e.posRT)
	case seq.LoopMsg:
		e.loop = m.Loop
	case seq.PanicMsg:
		e.silence()
	case seq.ResetNetworkMsg:
		e.midi.SystemReset()
	case seq.EventSliceMsg:
		e.queue = append(e.queue, m.Events...)
		e.queuedTo = m.To
		e.requested = false
	case seq.StatusRequestMsg:
		status := e.midi.Status()
		if e.click != nil && e.click.Ready() {
			status |= seq.AudioOK
		}
		seq.TrySend(m.Reply, status)
	case seq.DiskSpaceRequestMsg:
		kb, err := e.opt.DiskAvail(e.opt.RecordPath)
		if err != nil {
			kb = 0
		}
		seq.TrySend(m.Reply, seq.DiskSpace{AvailKB: kb})
	}
}

// silence releases everything sounding: scheduled note offs go out
// immediately, then an all-notes-off sweep.
func (e *engine) silence() {
	for _, off := range e.noteOffs {
		e.midi.SendEvent(off)
	}
	e.noteOffs = e.noteOffs[:0]
	e.midi.AllNotesOff()
}

func (e *engine) resetQueue(from tactus.Time) {
	e.queue = e.queue[:0]
	e.queueIdx = 0
	e.queuedTo = from
	e.requested = false
}

// ticksIn converts a wall-clock duration to ticks at the current tempo.
func (e *engine) ticksIn(d time.Duration) tactus.Time {
	return tactus.Time(float64(d.Nanoseconds()) * e.bpm * float64(tactus.TicksPerQuarter) / 60e9)
}

func (e *engine) advance(now time.Time) {
	if !e.playing {
		e.lastTick = now
		return
	}
	elapsed := now.Sub(e.lastTick)
	e.lastTick = now
	e.posRT += tactus.RealTimeFromDuration(elapsed)
	e.pos += e.ticksIn(elapsed)

	e.emitDue()

	if e.loop.Enabled && e.pos >= e.loop.End {
		e.silence()
		e.pos, e.posRT = e.loop.Start, e.loop.StartRT
		e.resetQueue(e.loop.Start)
		e.midi.SetTimeOrigin(e.posRT)
	} else if e.pos >= e.end && !e.recording {
		// a recording take may run past the end marker; only plain
		// playback stops here
		e.silence()
		e.playing = false
		seq.TrySend(e.broker.ToSeq, seq.MsgToSeq{HasPosition: true, Position: e.end, Playing: false})
		return
	}

	if e.queuedTo-e.pos < e.opt.WindowTicks && !e.requested {
		seq.TrySend(e.broker.ToSeq, seq.MsgToSeq{Data: seq.NeedEventsMsg{
			From: e.queuedTo,
			To:   e.queuedTo + e.opt.WindowTicks,
		}})
		e.requested = true
	}
	if e.pos != e.lastReport {
		seq.TrySend(e.broker.ToSeq, seq.MsgToSeq{HasPosition: true, Position: e.pos, Playing: true})
		e.lastReport = e.pos
	}
}

// emitDue plays every queued event and scheduled note off whose time has
// come. Tempo events update the engine's tick pacing; they are why the
// manager merges the tempo track into every window.
func (e *engine) emitDue() {
	for e.queueIdx < len(e.queue) && e.queue[e.queueIdx].Time <= e.posRT {
		ev := e.queue[e.queueIdx]
		e.queueIdx++
		switch ev.Kind {
		case tactus.NoteOn:
			e.send(ev)
			if ev.Duration > 0 {
				e.scheduleOff(tactus.MappedEvent{
					Instrument: ev.Instrument,
					Kind:       tactus.NoteOff,
					Time:       ev.Time + ev.Duration,
					Data1:      ev.Data1,
				})
			}
		case tactus.NoteOff, tactus.Controller, tactus.ProgramChange, tactus.PitchBend:
			e.send(ev)
		case tactus.MetronomeClick:
			if e.click != nil {
				e.click.Play(ev.Data1 == 1, ev.Data2)
			}
		case tactus.System:
			if ev.Data1 == tactus.SystemTempo && ev.Data2 > 0 {
				e.bpm = float64(ev.Data2) / 100
			}
		}
	}
	for len(e.noteOffs) > 0 && e.noteOffs[0].Time <= e.posRT {
		e.send(e.noteOffs[0])
		e.noteOffs = e.noteOffs[1:]
	}
}

// send plays one event out, surfacing the first failure of a playback
// run as an alert. One alert per run; the manager rate-limits further.
func (e *engine) send(ev tactus.MappedEvent) {
	err := e.midi.SendEvent(ev)
	if err == nil || e.sendFailed {
		return
	}
	e.sendFailed = true
	seq.TrySend(e.broker.ToSeq, seq.MsgToSeq{Data: seq.Alert{
		Name:     "midi-send",
		Priority: seq.Warning,
		Message:  err.Error(),
		Duration: seq.DefaultAlertDuration,
	}})
}

func (e *engine) scheduleOff(off tactus.MappedEvent) {
	i := len(e.noteOffs)
	for i > 0 && e.noteOffs[i-1].Time > off.Time {
		i--
	}
	e.noteOffs = append(e.noteOffs, tactus.MappedEvent{})
	copy(e.noteOffs[i+1:], e.noteOffs[i:])
	e.noteOffs[i] = off
}
