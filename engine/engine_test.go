package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/tactus-audio/tactus"
	"github.com/tactus-audio/tactus/seq"
)

// captureMIDI records every event sent out.
type captureMIDI struct {
	mu     sync.Mutex
	events tactus.MappedEventList
	origin tactus.RealTime
}

func (c *captureMIDI) SendEvent(ev tactus.MappedEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}
func (c *captureMIDI) AllNotesOff()             {}
func (c *captureMIDI) SystemReset()             {}
func (c *captureMIDI) Status() seq.DriverStatus { return seq.MidiOK }
func (c *captureMIDI) SetTimeOrigin(rt tactus.RealTime) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.origin = rt
}

func (c *captureMIDI) sent() tactus.MappedEventList {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events.Copy()
}

func testEngine() (*engine, *captureMIDI) {
	midi := &captureMIDI{}
	e := &engine{
		broker: seq.NewBroker(),
		midi:   midi,
		opt: Options{
			TickInterval: 10 * time.Millisecond,
			WindowTicks:  4 * tactus.TicksPerQuarter,
		},
		bpm: tactus.DefaultBPM,
	}
	return e, midi
}

func second(n float64) tactus.RealTime {
	return tactus.RealTimeFromSeconds(n)
}

func TestEngineEmitsDueEvents(t *testing.T) {
	e, midi := testEngine()
	e.handle(seq.EventSliceMsg{
		From: 0, To: 8 * tactus.TicksPerQuarter, ToRT: second(4),
		Events: tactus.MappedEventList{
			{Kind: tactus.NoteOn, Time: 0, Duration: second(0.25), Data1: 60, Data2: 100},
			{Kind: tactus.NoteOn, Time: second(0.5), Duration: second(0.25), Data1: 62, Data2: 100},
		},
	})
	e.handle(seq.StartPlayMsg{From: 0, End: 8 * tactus.TicksPerQuarter, EndRT: second(4)})

	now := e.lastTick
	e.advance(now.Add(10 * time.Millisecond))
	got := midi.sent()
	if len(got) != 1 || got[0].Data1 != 60 {
		t.Fatalf("after 10 ms sent %v, want only the first note on", got)
	}
	// 300 ms in: the first note off (at 250 ms) is due, the second note is not
	e.advance(now.Add(300 * time.Millisecond))
	got = midi.sent()
	if len(got) != 2 || got[1].Kind != tactus.NoteOff || got[1].Data1 != 60 {
		t.Fatalf("after 300 ms sent %v, want note off for 60", got)
	}
	// 600 ms in: second note due
	e.advance(now.Add(600 * time.Millisecond))
	got = midi.sent()
	if len(got) != 3 || got[2].Data1 != 62 {
		t.Fatalf("after 600 ms sent %v, want note on for 62", got)
	}
}

func TestEngineStopSendsPendingOffs(t *testing.T) {
	e, midi := testEngine()
	e.handle(seq.EventSliceMsg{
		From: 0, To: 8 * tactus.TicksPerQuarter, ToRT: second(4),
		Events: tactus.MappedEventList{
			{Kind: tactus.NoteOn, Time: 0, Duration: second(2), Data1: 60, Data2: 100},
		},
	})
	e.handle(seq.StartPlayMsg{From: 0, End: 8 * tactus.TicksPerQuarter, EndRT: second(4)})
	e.advance(e.lastTick.Add(10 * time.Millisecond))
	e.handle(seq.StopMsg{})
	got := midi.sent()
	if len(got) != 2 || got[1].Kind != tactus.NoteOff {
		t.Fatalf("stop did not release the sounding note: %v", got)
	}
}

func TestEngineTempoEventChangesPacing(t *testing.T) {
	e, _ := testEngine()
	e.handle(seq.EventSliceMsg{
		From: 0, To: 8 * tactus.TicksPerQuarter, ToRT: second(4),
		Events: tactus.MappedEventList{
			{Kind: tactus.System, Time: 0, Data1: tactus.SystemTempo, Data2: 6000},
		},
	})
	e.handle(seq.StartPlayMsg{From: 0, End: 8 * tactus.TicksPerQuarter, EndRT: second(8)})
	// pace in 10 ms ticks like the real ticker; the tempo event lands on
	// the first tick and slows the remaining ones down
	now := e.lastTick
	for i := 0; i < 100; i++ {
		now = now.Add(10 * time.Millisecond)
		e.advance(now)
	}
	// one second at 60 BPM is one quarter; allow one tick of slack for
	// the 120 BPM default before the tempo event was consumed
	if e.pos < tactus.TicksPerQuarter-5 || e.pos > tactus.TicksPerQuarter+25 {
		t.Errorf("position after 1 s at 60 BPM = %d ticks, want about %d", e.pos, tactus.TicksPerQuarter)
	}
}

func TestEngineRequestsNextWindow(t *testing.T) {
	e, _ := testEngine()
	e.handle(seq.EventSliceMsg{From: 0, To: 2 * tactus.TicksPerQuarter, ToRT: second(1)})
	e.handle(seq.StartPlayMsg{From: 0, End: 64 * tactus.TicksPerQuarter, EndRT: second(32)})
	e.advance(e.lastTick.Add(10 * time.Millisecond))
	found := false
	for len(e.broker.ToSeq) > 0 {
		msg := <-e.broker.ToSeq
		if need, ok := msg.Data.(seq.NeedEventsMsg); ok {
			if need.From != 2*tactus.TicksPerQuarter {
				t.Errorf("window requested from %d, want %d", need.From, 2*tactus.TicksPerQuarter)
			}
			found = true
		}
	}
	if !found {
		t.Errorf("engine did not ask for the next window")
	}
	// no duplicate request until the window arrives
	e.advance(e.lastTick.Add(10 * time.Millisecond))
	for len(e.broker.ToSeq) > 0 {
		msg := <-e.broker.ToSeq
		if _, ok := msg.Data.(seq.NeedEventsMsg); ok {
			t.Errorf("duplicate window request while one is pending")
		}
	}
}

func TestEngineLoopWraps(t *testing.T) {
	e, midi := testEngine()
	q := tactus.TicksPerQuarter
	e.handle(seq.StartPlayMsg{From: q, FromRT: second(0.5), End: 64 * q, EndRT: second(32)})
	e.handle(seq.LoopMsg{Loop: seq.Loop{
		Start: q, End: 2 * q,
		StartRT: second(0.5), EndRT: second(1),
		Enabled: true,
	}})
	e.advance(e.lastTick.Add(time.Second))
	if e.pos != q || e.posRT != second(0.5) {
		t.Errorf("position did not wrap to the loop start: %d, %v", e.pos, e.posRT)
	}
	if midi.origin != second(0.5) {
		t.Errorf("loop wrap should re-anchor the input time origin, got %v", midi.origin)
	}
	if !e.playing {
		t.Errorf("loop wrap stopped playback")
	}
}

func TestEngineRecordingRollsPastEnd(t *testing.T) {
	e, _ := testEngine()
	e.handle(seq.RecordingMsg{Enabled: true})
	e.handle(seq.StartPlayMsg{From: 0, End: tactus.TicksPerQuarter, EndRT: second(0.5)})
	e.advance(e.lastTick.Add(time.Second))
	if !e.playing {
		t.Errorf("recording was cut short at the end marker")
	}
	if e.pos <= tactus.TicksPerQuarter {
		t.Errorf("position did not advance past the end marker: %d", e.pos)
	}
	e.handle(seq.RecordingMsg{Enabled: false})
	e.advance(e.lastTick.Add(10 * time.Millisecond))
	if e.playing {
		t.Errorf("engine kept playing past the end after the recording was disarmed")
	}
}

func TestEngineStopsAtEnd(t *testing.T) {
	e, _ := testEngine()
	e.handle(seq.StartPlayMsg{From: 0, End: tactus.TicksPerQuarter, EndRT: second(0.5)})
	e.advance(e.lastTick.Add(time.Second))
	if e.playing {
		t.Errorf("engine kept playing past the end marker")
	}
	foundStop := false
	for len(e.broker.ToSeq) > 0 {
		msg := <-e.broker.ToSeq
		if msg.HasPosition && !msg.Playing {
			foundStop = true
		}
	}
	if !foundStop {
		t.Errorf("engine did not report reaching the end")
	}
}

func TestEngineAnswersStatus(t *testing.T) {
	e, _ := testEngine()
	reply := make(chan seq.DriverStatus, 1)
	e.handle(seq.StatusRequestMsg{Reply: reply})
	status, ok := seq.TimeoutReceive(reply, time.Second)
	if !ok || status&seq.MidiOK == 0 {
		t.Errorf("status reply = %v, %v", status, ok)
	}
}

func TestEngineAnswersDiskSpace(t *testing.T) {
	e, _ := testEngine()
	e.opt.DiskAvail = func(string) (uint64, error) { return 12345, nil }
	reply := make(chan seq.DiskSpace, 1)
	e.handle(seq.DiskSpaceRequestMsg{Reply: reply})
	space, ok := seq.TimeoutReceive(reply, time.Second)
	if !ok || space.AvailKB != 12345 {
		t.Errorf("disk reply = %v, %v", space, ok)
	}
}
