package seq

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tactus-audio/tactus"
)

type (
	// TransportState is the state of the transport state machine. All
	// transitions happen under the manager's mutex; observers read a
	// consistent snapshot through State.
	TransportState int

	// Settings are the tunables of the synchronization core. Zero values
	// are replaced with the defaults on NewSequenceManager.
	Settings struct {
		// CountInBeats is the number of metronome beats before recording
		// starts. Zero means one full bar of the signature at the
		// position.
		CountInBeats int
		// MinDiskKBAvail is the least free space on the recording volume
		// for audio recording to be allowed to start.
		MinDiskKBAvail uint64
		// PreflightTimeout bounds the engine status and disk queries made
		// before starting playback or recording.
		PreflightTimeout time.Duration
		// WarningCooldown is the minimum interval between user-facing
		// warnings.
		WarningCooldown time.Duration
		// ResetDebounce is how long end-marker changes are allowed to
		// settle before the mappers are rebuilt.
		ResetDebounce time.Duration
		// SliceTicks is the length of one mapped event window pushed to
		// the engine.
		SliceTicks tactus.Time
	}

	// SequenceManager owns the transport state machine and keeps the
	// engine's view of the composition synchronized with the document.
	// It is driven from two directions: the document goroutine calls the
	// transport methods and mutates the composition (observer callbacks
	// land here synchronously), and Update drains the engine's messages.
	//
	// The manager never blocks on the engine: commands go out with
	// TrySend, and the preflight queries carry their own bounded
	// timeout.
	SequenceManager struct {
		broker   *Broker
		settings Settings

		mu       sync.Mutex
		comp     *tactus.Composition
		obsID    tactus.ObserverID
		state    TransportState
		position tactus.Time
		loop     Loop

		mapper    *CompositionMapper
		tempo     *TempoMapper
		timeSig   *TimeSigMapper
		metronome *MetronomeMapper

		// last known preflight answers, the fallback when the engine is
		// too busy to reply in time
		driverStatus DriverStatus
		diskSpace    DiskSpace

		rep         *reporter
		countdown   *time.Timer
		structReset *debounced
		take        *RecordedTake
	}
)

const (
	Stopped TransportState = iota
	Playing
	Recording
	CountingIn
)

func (s TransportState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Recording:
		return "recording"
	case CountingIn:
		return "counting in"
	}
	return "unknown"
}

// countInElapsedMsg travels in MsgToSeq.Data when the count-in timer
// fires. The timer goroutine never touches the document itself; the
// recording starts on whichever goroutine drains Update.
type countInElapsedMsg struct{}

var (
	ErrTransportBusy = errors.New("transport is not stopped")
	ErrNoSoundDriver = errors.New("no sound drivers available")
	ErrLowDiskSpace  = errors.New("not enough disk space for audio recording")
	ErrBadLoopRange  = errors.New("loop start is after loop end")
	ErrNoDocument    = errors.New("no composition loaded")
)

func DefaultSettings() Settings {
	return Settings{
		CountInBeats:     0,
		MinDiskKBAvail:   10 * 1024,
		PreflightTimeout: 500 * time.Millisecond,
		WarningCooldown:  5 * time.Second,
		ResetDebounce:    100 * time.Millisecond,
		SliceTicks:       4 * 4 * tactus.TicksPerQuarter,
	}
}

// NewSequenceManager creates a manager bound to the broker. No document
// is loaded; every transport method fails with ErrNoDocument until
// SetDocument is called.
func NewSequenceManager(broker *Broker, settings Settings) *SequenceManager {
	def := DefaultSettings()
	if settings.MinDiskKBAvail == 0 {
		settings.MinDiskKBAvail = def.MinDiskKBAvail
	}
	if settings.PreflightTimeout == 0 {
		settings.PreflightTimeout = def.PreflightTimeout
	}
	if settings.WarningCooldown == 0 {
		settings.WarningCooldown = def.WarningCooldown
	}
	if settings.ResetDebounce == 0 {
		settings.ResetDebounce = def.ResetDebounce
	}
	if settings.SliceTicks == 0 {
		settings.SliceTicks = def.SliceTicks
	}
	m := &SequenceManager{
		broker:   broker,
		settings: settings,
		rep:      newReporter(settings.WarningCooldown),
	}
	m.structReset = newDebounced(settings.ResetDebounce, m.resetMappers)
	return m
}

// SetDocument replaces the composition the manager synchronizes. The
// old document is fully torn down first: transport stopped, observer
// unsubscribed, mapper tables dropped. Passing nil just tears down.
func (m *SequenceManager) SetDocument(comp *tactus.Composition) {
	m.Stop()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.comp != nil {
		m.comp.Unobserve(m.obsID)
	}
	m.comp = comp
	m.mapper, m.tempo, m.timeSig, m.metronome = nil, nil, nil, nil
	m.position = 0
	if comp == nil {
		return
	}
	m.mapper = NewCompositionMapper(comp)
	m.tempo = NewTempoMapper(comp)
	m.timeSig = NewTimeSigMapper(comp)
	m.metronome = NewMetronomeMapper(comp, comp.Metronome.Instrument)
	m.obsID = comp.Observe(tactus.CompositionCallbacks{
		SegmentAdded:         m.mapper.SegmentAdded,
		SegmentRemoved:       m.mapper.SegmentRemoved,
		SegmentChanged:       m.mapper.SegmentChanged,
		TempoChanged:         m.tempoChanged,
		TimeSignatureChanged: m.timeSigChanged,
		TracksChanged:        m.mapper.ResetAll,
		MetronomeChanged:     m.metronomeChanged,
		EndMarkerChanged:     m.structReset.Trigger,
	})
	TrySend(m.broker.ToUI, any(TempoChangedMsg{BPM: comp.TempoAt(0)}))
}

// tempoChanged runs synchronously from the document mutation. The tick
// to playback-time conversion of every cached mapping is invalid now,
// so everything rebuilds.
func (m *SequenceManager) tempoChanged() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tempo.ResetAll()
	m.metronome.ResetAll()
	m.mapper.ResetAll()
	TrySend(m.broker.ToUI, any(TempoChangedMsg{BPM: m.comp.TempoAt(m.position)}))
}

func (m *SequenceManager) timeSigChanged() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeSig.ResetAll()
	m.metronome.ResetAll()
}

func (m *SequenceManager) metronomeChanged() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metronome.SetInstrument(m.comp.Metronome.Instrument)
	m.metronome.ResetAll()
	TrySend(m.broker.ToUI, any(MetronomeActiveMsg{Active: m.comp.Metronome.Enabled}))
}

// resetMappers is the debounced handler for structural changes such as
// end-marker moves.
func (m *SequenceManager) resetMappers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mapper == nil {
		return
	}
	m.mapper.ResetAll()
	m.tempo.ResetAll()
	m.timeSig.ResetAll()
	m.metronome.ResetAll()
}

// State returns the current transport state.
func (m *SequenceManager) State() TransportState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Position returns the last known playback position.
func (m *SequenceManager) Position() tactus.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

// Play starts playback from the current position. Only legal while
// stopped. Playback is refused only when neither MIDI nor audio output
// is available; a partially degraded engine plays with a warning.
func (m *SequenceManager) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.comp == nil {
		return ErrNoDocument
	}
	if m.state != Stopped {
		return fmt.Errorf("play: %w (%v)", ErrTransportBusy, m.state)
	}
	status := m.checkSoundDriverStatus()
	if status == 0 {
		m.warn("Cannot start playback", "No MIDI or audio output is available.")
		return ErrNoSoundDriver
	}
	if status&MidiOK == 0 {
		m.warn("MIDI output unavailable", "Playing with audio only; MIDI tracks will be silent.")
	} else if status&AudioOK == 0 {
		m.warn("Audio output unavailable", "Playing with MIDI only; audio tracks and the metronome will be silent.")
	}
	m.preparePlayback()
	m.primeEngine()
	TrySend(m.broker.ToEngine, any(m.startPlayMsg()))
	m.state = Playing
	TrySend(m.broker.ToUI, any(PlayingMsg{Playing: true}))
	return nil
}

// Record starts recording from the current position, optionally after a
// metronome count-in. Only legal while stopped; recording while already
// recording is a rejected no-op, not punch-out. With a count-in, the
// transition to Recording happens on the Update call after the
// countdown elapses.
func (m *SequenceManager) Record(countIn bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.comp == nil {
		return ErrNoDocument
	}
	if m.state != Stopped {
		return fmt.Errorf("record: %w (%v)", ErrTransportBusy, m.state)
	}
	status := m.checkSoundDriverStatus()
	if status == 0 {
		m.warn("Cannot start recording", "No MIDI or audio output is available.")
		return ErrNoSoundDriver
	}
	if m.comp.HasArmedAudioTrack() {
		space := m.checkDiskSpace()
		if space.AvailKB < m.settings.MinDiskKBAvail {
			m.warn("Not enough disk space",
				fmt.Sprintf("Audio recording needs at least %d KB free; %d KB available.",
					m.settings.MinDiskKBAvail, space.AvailKB))
			return ErrLowDiskSpace
		}
	}
	if countIn {
		m.state = CountingIn
		TrySend(m.broker.ToUI, any(CountingInMsg{CountingIn: true}))
		m.countdown = time.AfterFunc(m.countInDuration(), m.countdownFired)
		return nil
	}
	m.beginRecording()
	return nil
}

// countInDuration converts the configured count-in beats to wall time
// at the tempo and signature in effect at the position.
func (m *SequenceManager) countInDuration() time.Duration {
	ts := m.comp.TimeSignatureAt(m.position)
	beats := m.settings.CountInBeats
	if beats <= 0 {
		beats = ts.Numerator
	}
	ticks := tactus.Time(beats) * ts.BeatLength()
	rt := m.comp.RealTimeAt(m.position+ticks) - m.comp.RealTimeAt(m.position)
	return rt.Duration()
}

// countdownFired runs on the timer goroutine. It only posts a message;
// the document work of starting the recording happens in Update on the
// document goroutine, where handleToSeq re-checks the state in case
// Stop won the race.
func (m *SequenceManager) countdownFired() {
	TrySend(m.broker.ToSeq, MsgToSeq{Data: countInElapsedMsg{}})
}

// beginRecording starts the engine and the take. Caller holds the lock.
func (m *SequenceManager) beginRecording() {
	m.preparePlayback()
	m.take = NewRecordedTake(m.recordTrack(), m.position)
	m.broker.recordingLive.Store(true)
	m.primeEngine()
	TrySend(m.broker.ToEngine, any(RecordingMsg{Enabled: true}))
	TrySend(m.broker.ToEngine, any(m.startPlayMsg()))
	m.state = Recording
	TrySend(m.broker.ToUI, any(RecordingStateMsg{Recording: true}))
}

// startPlayMsg builds a start command with the position and end marker
// anchored on the playback time axis. Caller holds the lock.
func (m *SequenceManager) startPlayMsg() any {
	return StartPlayMsg{
		From:   m.position,
		FromRT: m.comp.RealTimeAt(m.position),
		End:    m.comp.EndMarker,
		EndRT:  m.comp.RealTimeAt(m.comp.EndMarker),
	}
}

// recordTrack picks the destination for recorded notes: the first armed
// non-audio track, or the first track at all.
func (m *SequenceManager) recordTrack() tactus.TrackID {
	for _, t := range m.comp.Tracks {
		if t.Armed && !t.Audio {
			return t.ID
		}
	}
	if len(m.comp.Tracks) > 0 {
		return m.comp.Tracks[0].ID
	}
	return 0
}

// Stop halts whatever the transport is doing. Stopping while stopped is
// a no-op. Stopping during a count-in cancels the pending recording
// without the transport ever having entered the recording state.
func (m *SequenceManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case Stopped:
		return
	case CountingIn:
		if m.countdown != nil {
			m.countdown.Stop()
			m.countdown = nil
		}
		m.state = Stopped
		TrySend(m.broker.ToUI, any(CountingInMsg{CountingIn: false}))
		return
	case Recording:
		TrySend(m.broker.ToEngine, any(StopMsg{}))
		TrySend(m.broker.ToEngine, any(RecordingMsg{Enabled: false}))
		m.broker.recordingLive.Store(false)
		m.flushTake()
		m.state = Stopped
		TrySend(m.broker.ToUI, any(RecordingStateMsg{Recording: false}))
		TrySend(m.broker.ToUI, any(PlayingMsg{Playing: false}))
	case Playing:
		TrySend(m.broker.ToEngine, any(StopMsg{}))
		m.state = Stopped
		TrySend(m.broker.ToUI, any(PlayingMsg{Playing: false}))
	}
}

// flushTake converts the finished take into a segment of the document.
// Caller holds the lock.
func (m *SequenceManager) flushTake() {
	take := m.take
	m.take = nil
	if take == nil || take.Empty() {
		return
	}
	seg := take.Segment(m.comp)
	m.comp.AddSegment(seg)
}

// JumpTo moves the playback position. The transport state is
// unaffected; jumping while playing keeps playing from the new spot.
func (m *SequenceManager) JumpTo(pos tactus.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pos < 0 {
		pos = 0
	}
	m.position = pos
	msg := JumpToMsg{Pos: pos}
	if m.comp != nil {
		msg.PosRT = m.comp.RealTimeAt(pos)
	}
	TrySend(m.broker.ToEngine, any(msg))
	TrySend(m.broker.ToUI, any(PositionMsg{Pos: pos}))
}

// SetLoop sets the loop range. Equal bounds clear the loop; a start
// after the end is rejected rather than silently swapped.
func (m *SequenceManager) SetLoop(start, end tactus.Time) error {
	if start > end {
		return ErrBadLoopRange
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loop = Loop{Start: start, End: end, Enabled: start < end}
	if m.comp != nil {
		m.loop.StartRT = m.comp.RealTimeAt(start)
		m.loop.EndRT = m.comp.RealTimeAt(end)
	}
	TrySend(m.broker.ToEngine, any(LoopMsg{Loop: m.loop}))
	return nil
}

// Loop returns the current loop range.
func (m *SequenceManager) Loop() Loop {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loop
}

// Panic asks the engine to silence everything: all notes off and
// controller resets on every device. Never blocks, works in any state.
func (m *SequenceManager) Panic() {
	TrySend(m.broker.ToEngine, any(PanicMsg{}))
}

// ResetMidiNetwork asks the engine to send a full system reset to all
// devices, for recovering from catastrophic desync.
func (m *SequenceManager) ResetMidiNetwork() {
	TrySend(m.broker.ToEngine, any(ResetNetworkMsg{}))
}

// SetInsertableNotes controls whether note input outside recording is
// surfaced to the editors as insert-note signals.
func (m *SequenceManager) SetInsertableNotes(enabled bool) {
	m.broker.insertableNotes.Store(enabled)
}

// CheckSoundDriverStatus queries the engine for its driver capability,
// falling back to the last known answer when the engine does not reply
// within the preflight timeout.
func (m *SequenceManager) CheckSoundDriverStatus() DriverStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkSoundDriverStatus()
}

func (m *SequenceManager) checkSoundDriverStatus() DriverStatus {
	reply := make(chan DriverStatus, 1)
	if TrySend(m.broker.ToEngine, any(StatusRequestMsg{Reply: reply})) {
		if v, ok := TimeoutReceive(reply, m.settings.PreflightTimeout); ok {
			m.driverStatus = v
		}
	}
	return m.driverStatus
}

func (m *SequenceManager) checkDiskSpace() DiskSpace {
	reply := make(chan DiskSpace, 1)
	if TrySend(m.broker.ToEngine, any(DiskSpaceRequestMsg{Reply: reply})) {
		if v, ok := TimeoutReceive(reply, m.settings.PreflightTimeout); ok {
			m.diskSpace = v
		}
	}
	return m.diskSpace
}

// preparePlayback fills in default instrument assignments so every
// playable track addresses some instrument. Caller holds the lock.
func (m *SequenceManager) preparePlayback() {
	for i := range m.comp.Tracks {
		t := &m.comp.Tracks[i]
		if !t.Audio && t.Instrument == 0 {
			t.Instrument = tactus.InstrumentID(t.ID) + 1
		}
	}
}

// primeEngine pushes the first mapped windows so the engine has events
// to play the moment it starts. Caller holds the lock.
func (m *SequenceManager) primeEngine() {
	m.sendSlice(m.position, m.position+2*m.settings.SliceTicks)
}

// sendSlice maps [from, to) through every mapper, merges the results
// into one ordered list and hands it to the engine. Caller holds the
// lock.
func (m *SequenceManager) sendSlice(from, to tactus.Time) {
	events := m.mapper.EventsForRange(from, to)
	events = events.Merge(m.tempo.Events(from, to))
	events = events.Merge(m.timeSig.Events(from, to))
	events = events.Merge(m.metronome.Events(from, to))
	TrySend(m.broker.ToEngine, any(EventSliceMsg{
		From: from, To: to,
		FromRT: m.comp.RealTimeAt(from), ToRT: m.comp.RealTimeAt(to),
		Events: events,
	}))
}

// ProcessAsynchronousMidi classifies a batch of inbound events exactly
// like the router goroutine would, but synchronously: recorded note
// events land in the active take before the call returns.
func (m *SequenceManager) ProcessAsynchronousMidi(list tactus.MappedEventList) {
	m.mu.Lock()
	defer m.mu.Unlock()
	routeEvents(m.broker, list, func(ev tactus.MappedEvent) {
		if m.state == Recording && m.take != nil {
			m.take.Add(ev)
		}
	})
}

// Update drains the engine's messages: position updates, requests for
// the next mapped window, recorded input and alerts. Call it
// periodically from the document goroutine; it never blocks.
func (m *SequenceManager) Update() {
	for {
		select {
		case msg := <-m.broker.ToSeq:
			m.handleToSeq(msg)
		default:
			return
		}
	}
}

func (m *SequenceManager) handleToSeq(msg MsgToSeq) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.HasPosition {
		m.position = msg.Position
		TrySend(m.broker.ToUI, any(PositionMsg{Pos: msg.Position}))
		if !msg.Playing && m.state == Playing {
			// engine reached the end of the composition
			m.state = Stopped
			TrySend(m.broker.ToUI, any(PlayingMsg{Playing: false}))
		}
	}
	switch data := msg.Data.(type) {
	case NeedEventsMsg:
		if m.mapper != nil {
			m.sendSlice(data.From, data.To)
		}
	case countInElapsedMsg:
		if m.state != CountingIn {
			// Stop cancelled the count-in after the timer fired
			return
		}
		TrySend(m.broker.ToUI, any(CountingInMsg{CountingIn: false}))
		m.beginRecording()
	case RecordedBatchMsg:
		if m.state == Recording && m.take != nil {
			for _, ev := range data.Events {
				m.take.Add(ev)
			}
		}
	case Alert:
		// error-priority alerts always get through; the cooldown only
		// throttles warnings
		if data.Priority < Error && !m.rep.allow() {
			return
		}
		d := data.Duration
		if d == 0 {
			d = DefaultAlertDuration
		}
		TrySend(m.broker.ToUI, any(WarningMsg{Text: data.Name, Informative: data.Message, Duration: d}))
	}
}

// warn delivers a rate-limited warning to the UI. Repeated faults
// within the cooldown stay silent. Caller holds the lock.
func (m *SequenceManager) warn(text, informative string) {
	if !m.rep.allow() {
		return
	}
	TrySend(m.broker.ToUI, any(WarningMsg{Text: text, Informative: informative, Duration: DefaultAlertDuration}))
}

// Close tears the manager down: transport stopped, document released,
// timers cancelled.
func (m *SequenceManager) Close() {
	m.SetDocument(nil)
	m.structReset.Stop()
	m.rep.stop()
}
