package seq

import (
	"bytes"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tactus-audio/tactus"
)

type (
	// CompositionMapper keeps, per segment, a cached fragment of mapped
	// events and a RefreshStatus ledger telling which part of the cache
	// is stale. Dirty marking is driven by composition observer
	// callbacks; the stale ranges are rebuilt lazily on the next
	// EventsForRange call, so a burst of edits costs one remap.
	//
	// Dirty marking and consumption may run on different goroutines; the
	// table mutex is held only for the coalesce/clear bookkeeping, never
	// across a remap. A generation counter per entry catches edits that
	// land while a remap is in flight.
	CompositionMapper struct {
		comp *tactus.Composition

		mu      sync.Mutex
		entries map[uuid.UUID]*segmentEntry
	}

	segmentEntry struct {
		seg    *tactus.Segment
		cache  tactus.MappedEventList
		status RefreshStatus
		gen    uint64
	}
)

func NewCompositionMapper(comp *tactus.Composition) *CompositionMapper {
	m := &CompositionMapper{comp: comp, entries: make(map[uuid.UUID]*segmentEntry)}
	for _, s := range comp.Segments {
		m.SegmentAdded(s)
	}
	return m
}

// SegmentAdded creates a fully dirty RefreshStatus for the segment. The
// segment is not mapped eagerly.
func (m *CompositionMapper) SegmentAdded(s *tactus.Segment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[s.ID] = &segmentEntry{seg: s, status: NewRefreshStatus(), gen: 1}
}

// SegmentChanged pushes [from, to) onto the segment's dirty range.
// Equal bounds mean the whole segment (see RefreshStatus.Push).
func (m *CompositionMapper) SegmentChanged(s *tactus.Segment, from, to tactus.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[s.ID]
	if !ok {
		return
	}
	e.status.Push(from, to)
	e.gen++
}

// SegmentRemoved drops the cached fragment and the RefreshStatus
// atomically. No per-segment state outlives this call.
func (m *CompositionMapper) SegmentRemoved(s *tactus.Segment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, s.ID)
}

// ResetAll drops every cache and rebuilds the entry table from the
// composition, marking everything fully dirty. Used for structural
// changes (tempo map, end marker, track layout).
func (m *CompositionMapper) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[uuid.UUID]*segmentEntry)
	for _, s := range m.comp.Segments {
		m.entries[s.ID] = &segmentEntry{seg: s, status: NewRefreshStatus(), gen: 1}
	}
}

// HasSegment reports whether the mapper currently tracks the segment.
func (m *CompositionMapper) HasSegment(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[id]
	return ok
}

// EventsForRange returns one merged, time-ordered list of all mapped
// events for segments overlapping [from, to) in musical time. Stale
// sub-ranges are rebuilt first by querying the segments directly.
// Repeated calls with no intervening edits return identical lists.
func (m *CompositionMapper) EventsForRange(from, to tactus.Time) tactus.MappedEventList {
	rtFrom := m.comp.RealTimeAt(from)
	rtTo := m.comp.RealTimeAt(to)

	m.mu.Lock()
	work := make([]*segmentEntry, 0, len(m.entries))
	for _, e := range m.entries {
		work = append(work, e)
	}
	m.mu.Unlock()
	// map iteration order is random; sort by id so merging ties
	// identically on every call
	sort.Slice(work, func(i, j int) bool {
		return bytes.Compare(work[i].seg.ID[:], work[j].seg.ID[:]) < 0
	})

	var ret tactus.MappedEventList
	for _, e := range work {
		if e.seg.Detached() {
			// recoverable: the segment went away under us; drop it
			log.Printf("seq: skipping detached segment %v, dropping its mapping", e.seg.ID)
			m.mu.Lock()
			delete(m.entries, e.seg.ID)
			m.mu.Unlock()
			continue
		}
		m.refresh(e)
		if e.seg.Start < to && e.seg.TotalEnd() > from {
			ret = ret.Merge(e.cache.Slice(rtFrom, rtTo))
		}
	}
	return ret
}

// refresh rebuilds the entry's stale range, if any. The table mutex is
// only held for snapshotting and for the clear; edits arriving during
// the remap bump the generation and keep the status dirty.
func (m *CompositionMapper) refresh(e *segmentEntry) {
	m.mu.Lock()
	if !e.status.NeedsRefresh() {
		m.mu.Unlock()
		return
	}
	full := e.status.NeedsFullRefresh()
	dFrom, dTo := e.status.Range()
	gen := e.gen
	m.mu.Unlock()

	var cache tactus.MappedEventList
	if full {
		cache = m.mapRange(e.seg, e.seg.Start, e.seg.TotalEnd())
	} else {
		// clamp the dirty range to the segment span, splice the rebuilt
		// part into the untouched remainder of the cache
		if dFrom < e.seg.Start {
			dFrom = e.seg.Start
		}
		if dTo > e.seg.TotalEnd() {
			dTo = e.seg.TotalEnd()
		}
		rtFrom := m.comp.RealTimeAt(dFrom)
		rtTo := m.comp.RealTimeAt(dTo)
		rebuilt := m.mapRange(e.seg, dFrom, dTo)
		cache = e.cache.Slice(0, rtFrom).Copy()
		cache = cache.Merge(rebuilt)
		cache = cache.Merge(e.cache.Slice(rtTo, tactus.RealTime(1<<62)))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e.cache = cache
	if e.gen == gen {
		e.status.Clear()
	}
}

// mapRange derives mapped events from the segment's notes in [from, to).
func (m *CompositionMapper) mapRange(s *tactus.Segment, from, to tactus.Time) tactus.MappedEventList {
	track := m.comp.TrackByID(s.Track)
	if track == nil || track.Muted || track.Audio {
		return nil
	}
	var ret tactus.MappedEventList
	s.NotesInRange(from, to, func(n tactus.Note) {
		start := m.comp.RealTimeAt(n.Time)
		ret = append(ret, tactus.MappedEvent{
			Instrument: track.Instrument,
			Kind:       tactus.NoteOn,
			Time:       start,
			Duration:   m.comp.RealTimeAt(n.Time+n.Duration) - start,
			Data1:      n.Pitch,
			Data2:      n.Velocity,
		})
	})
	ret.Sort()
	return ret
}
