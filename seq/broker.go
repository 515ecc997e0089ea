package seq

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tactus-audio/tactus"
)

type (
	// Broker is the centralized message broker between the document-side
	// SequenceManager, the real-time engine, the async event router and
	// the UI. Communication is many-to-one: one bounded channel per
	// recipient, and all sends across the realtime boundary are
	// non-blocking (TrySend), so neither side can stall the other.
	//
	// The broker also has a sync.Pool of *tactus.MappedEventList, from
	// which the engine and the MIDI input borrow lists to pass event
	// batches around without allocating on every block.
	//
	// For closing goroutines, the broker has a CloseXXX/FinishedXXX pair
	// per goroutine. CloseXXX has capacity 1 so requesting a close never
	// blocks; a dropped message means someone already requested it.
	// FinishedXXX is never sent to, only closed, so waiters can combine
	// <-FinishedXXX with a timeout to avoid deadlocks.
	Broker struct {
		ToSeq    chan MsgToSeq
		ToEngine chan any
		ToRouter chan any
		ToUI     chan any

		CloseEngine chan struct{}
		CloseRouter chan struct{}

		FinishedEngine chan struct{}
		FinishedRouter chan struct{}

		// recordingLive is set by the SequenceManager while the transport
		// is in the Recording state, so the router knows whether incoming
		// note events belong to the take or to step entry.
		recordingLive atomic.Bool

		// insertableNotes is true when note input outside recording
		// should be surfaced to the editors as insert-note signals.
		insertableNotes atomic.Bool

		listPool sync.Pool
	}

	// MsgToSeq is a message to the SequenceManager. Position updates are
	// the most frequent message, so they are not boxed; everything else
	// travels in Data.
	MsgToSeq struct {
		HasPosition bool
		Position    tactus.Time
		Playing     bool

		Data any
	}
)

func NewBroker() *Broker {
	return &Broker{
		ToSeq:          make(chan MsgToSeq, 1024),
		ToEngine:       make(chan any, 1024),
		ToRouter:       make(chan any, 1024),
		ToUI:           make(chan any, 1024),
		CloseEngine:    make(chan struct{}, 1),
		CloseRouter:    make(chan struct{}, 1),
		FinishedEngine: make(chan struct{}),
		FinishedRouter: make(chan struct{}),
		listPool:       sync.Pool{New: func() any { return &tactus.MappedEventList{} }},
	}
}

// GetEventList returns an empty event list from the pool. After the
// receiving side is done with it, it should be returned with
// PutEventList.
func (b *Broker) GetEventList() *tactus.MappedEventList {
	return b.listPool.Get().(*tactus.MappedEventList)
}

// PutEventList returns a list to the pool, resetting its length but
// keeping its capacity.
func (b *Broker) PutEventList(l *tactus.MappedEventList) {
	if len(*l) > 0 {
		*l = (*l)[:0]
	}
	b.listPool.Put(l)
}

// TrySend sends a value to a channel if it is not full. It is guaranteed
// to be non-blocking. Returns true if the value was sent.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TimeoutReceive blocks until a value is received from the channel or
// the timeout t elapses. ok is false on timeout or if the channel is
// closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}
