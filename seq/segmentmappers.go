package seq

import "github.com/tactus-audio/tactus"

type (
	// segmentMapperBase carries the shared reset bookkeeping of the
	// synthetic mappers: a cached list and a RefreshStatus, exactly like
	// a CompositionMapper entry, but with no backing Segment.
	segmentMapperBase struct {
		comp   *tactus.Composition
		cache  tactus.MappedEventList
		status RefreshStatus
	}

	// TempoMapper synthesizes System/tempo events from the composition's
	// tempo change list.
	TempoMapper struct{ segmentMapperBase }

	// TimeSigMapper synthesizes System/time-signature events from the
	// composition's time-signature change list.
	TimeSigMapper struct{ segmentMapperBase }

	// MetronomeMapper synthesizes click events on every beat, with bar
	// accents taken from the time-signature map. Clicks are placed in
	// musical time, so the mapping is sensitive to tempo changes too.
	MetronomeMapper struct {
		segmentMapperBase
		instrument tactus.InstrumentID
	}
)

func newSegmentMapperBase(comp *tactus.Composition) segmentMapperBase {
	return segmentMapperBase{comp: comp, status: NewRefreshStatus()}
}

// ResetAll schedules a full rebuild on the next Events call.
func (b *segmentMapperBase) ResetAll() { b.status.PushAll() }

// Reset schedules a rebuild of [from, to) on the next Events call.
// Equal bounds mean everything.
func (b *segmentMapperBase) Reset(from, to tactus.Time) { b.status.Push(from, to) }

func NewTempoMapper(comp *tactus.Composition) *TempoMapper {
	return &TempoMapper{newSegmentMapperBase(comp)}
}

// Events returns the tempo events within [from, to) in musical time.
// The output is a pure function of the current tempo map.
func (m *TempoMapper) Events(from, to tactus.Time) tactus.MappedEventList {
	if m.status.NeedsRefresh() {
		m.cache = m.rebuild()
		m.status.Clear()
	}
	return m.cache.Slice(m.comp.RealTimeAt(from), m.comp.RealTimeAt(to))
}

func (m *TempoMapper) rebuild() tactus.MappedEventList {
	changes := m.comp.Tempo
	if len(changes) == 0 {
		changes = []tactus.TempoChange{{At: 0, BPM: tactus.DefaultBPM}}
	}
	ret := make(tactus.MappedEventList, 0, len(changes))
	for _, tc := range changes {
		ret = append(ret, tactus.MappedEvent{
			Kind:  tactus.System,
			Time:  m.comp.RealTimeAt(tc.At),
			Data1: tactus.SystemTempo,
			Data2: int(tc.BPM * 100), // centiBPM, so fractional tempi survive the int payload
		})
	}
	ret.Sort()
	return ret
}

func NewTimeSigMapper(comp *tactus.Composition) *TimeSigMapper {
	return &TimeSigMapper{newSegmentMapperBase(comp)}
}

// Events returns the time-signature events within [from, to).
func (m *TimeSigMapper) Events(from, to tactus.Time) tactus.MappedEventList {
	if m.status.NeedsRefresh() {
		m.cache = m.rebuild()
		m.status.Clear()
	}
	return m.cache.Slice(m.comp.RealTimeAt(from), m.comp.RealTimeAt(to))
}

func (m *TimeSigMapper) rebuild() tactus.MappedEventList {
	sigs := m.comp.TimeSignatures
	if len(sigs) == 0 {
		sigs = []tactus.TimeSigChange{{At: 0, Numerator: 4, Denominator: 4}}
	}
	ret := make(tactus.MappedEventList, 0, len(sigs))
	for _, ts := range sigs {
		ret = append(ret, tactus.MappedEvent{
			Kind:  tactus.System,
			Time:  m.comp.RealTimeAt(ts.At),
			Data1: tactus.SystemTimeSignature,
			Data2: ts.Numerator<<8 | ts.Denominator,
		})
	}
	ret.Sort()
	return ret
}

func NewMetronomeMapper(comp *tactus.Composition, instrument tactus.InstrumentID) *MetronomeMapper {
	return &MetronomeMapper{newSegmentMapperBase(comp), instrument}
}

// SetInstrument changes the click instrument and forces a rebuild.
func (m *MetronomeMapper) SetInstrument(id tactus.InstrumentID) {
	if m.instrument == id {
		return
	}
	m.instrument = id
	m.ResetAll()
}

// Events returns the click events within [from, to). Data1 is 1 for a
// bar accent and 0 for a plain beat; Data2 is the click velocity.
func (m *MetronomeMapper) Events(from, to tactus.Time) tactus.MappedEventList {
	if m.status.NeedsRefresh() {
		m.cache = m.rebuild()
		m.status.Clear()
	}
	return m.cache.Slice(m.comp.RealTimeAt(from), m.comp.RealTimeAt(to))
}

func (m *MetronomeMapper) rebuild() tactus.MappedEventList {
	if !m.comp.Metronome.Enabled {
		return nil
	}
	var ret tactus.MappedEventList
	m.comp.Beats(0, m.comp.EndMarker, func(at tactus.Time, beatInBar int) {
		accent := 0
		velocity := m.comp.Metronome.BeatVelocity
		if beatInBar == 0 {
			accent = 1
			velocity = m.comp.Metronome.BarVelocity
		}
		ret = append(ret, tactus.MappedEvent{
			Instrument: m.instrument,
			Kind:       tactus.MetronomeClick,
			Time:       m.comp.RealTimeAt(at),
			Data1:      accent,
			Data2:      velocity,
		})
	})
	ret.Sort()
	return ret
}
