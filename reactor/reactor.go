// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral poll-mode event reactor abstraction. A Reactor owns one
// OS-level readiness mechanism (epoll, IOCP, or a portable fallback) and
// reports readiness for registered file descriptors to a per-fd callback.
// Exactly one selector-pool loop goroutine calls Poll on a given Reactor.

package reactor

// FDEventType is a bitmask of readiness conditions.
type FDEventType uint8

const (
	EventRead FDEventType = 1 << iota
	EventWrite
	EventError
)

// FDCallback is invoked with the set of conditions observed for fd.
type FDCallback func(fd uintptr, events FDEventType)

// Reactor multiplexes readiness across many file descriptors.
type Reactor interface {
	// Register adds fd to the watch set for the given interest, invoking cb
	// on readiness. Only the registering (owning) loop may call Register,
	// Modify, or Unregister for a given fd.
	Register(fd uintptr, events FDEventType, cb FDCallback) error

	// Modify changes the interest set for an already-registered fd.
	Modify(fd uintptr, events FDEventType) error

	// Unregister removes fd from the watch set.
	Unregister(fd uintptr) error

	// Poll blocks up to timeoutMs (negative blocks indefinitely) and
	// dispatches ready fds to their callbacks before returning. It returns
	// the number of fds that were ready.
	Poll(timeoutMs int) (int, error)

	// Close releases the underlying OS resources.
	Close() error
}
