// Package selector
// Author: momentics <momentics@gmail.com>
//
// Selection keys, loop executors, and the selector pool itself: the
// fixed-size set of event-loop goroutines that own every registered
// channel's readiness notifications. Adapted from the teacher's
// internal/concurrency event loop shape and grounded in the original
// SelectorExecutor/Processor/Acceptor contracts.
package selector

import (
	"sync/atomic"

	"github.com/dsys/snio/reactor"
)

// Acceptor is notified when a listening channel has a pending connection.
type Acceptor interface {
	OnAcceptable(key *SelectionKey)
}

// Processor is notified when a channel's socket is ready for I/O, and when
// its key is cancelled (the channel is being torn down).
type Processor interface {
	OnReadable(key *SelectionKey)
	OnWritable(key *SelectionKey)
	OnClosed(key *SelectionKey, cause error)
}

// SelectionKey binds one file descriptor to its owning loop, reactor
// interest, and the processor/acceptor that handles its events. Only the
// owning loop goroutine may mutate Interest or call reactor.Modify for this
// key; every other goroutine must submit a task via Loop.Submit.
type SelectionKey struct {
	FD        uintptr
	Loop      *LoopExecutor
	Interest  reactor.FDEventType
	Acceptor  Acceptor
	Processor Processor

	cancelled atomic.Bool
}

// Cancelled reports whether Cancel has been called for this key.
func (k *SelectionKey) Cancelled() bool {
	return k.cancelled.Load()
}

// Cancel unregisters the key from its loop's reactor. Must run on the
// owning loop.
func (k *SelectionKey) Cancel() error {
	if !k.cancelled.CompareAndSwap(false, true) {
		return nil
	}
	return k.Loop.reactor.Unregister(k.FD)
}

// SetInterest updates the reactor's watch mask for this key. Must run on
// the owning loop; used for backpressure (disabling read/write interest).
func (k *SelectionKey) SetInterest(events reactor.FDEventType) error {
	if k.cancelled.Load() {
		return nil
	}
	k.Interest = events
	return k.Loop.reactor.Modify(k.FD, events)
}
