// Package buffer
// Author: momentics <momentics@gmail.com>
//
// Bounded message buffers sitting between a channel's socket I/O and its
// application-facing producer/consumer. Two interchangeable
// implementations share one interface: a sequence-numbered ring whose
// claim, publish and wait paths take a mutex (adapted from
// internal/concurrency/ring.go's RingBuffer[T]) and a mutex/cond blocking
// queue, matching the original's ring-buffer and plain-blocking-queue
// channel variants.
package buffer

// Producer is the channel-internal side that claims slots, fills them
// with socket-read bytes, and publishes them for the consumer.
type Producer interface {
	// Next returns a reusable, fixed-capacity slot the caller has
	// exclusive access to until Publish is called. Blocks if the queue
	// is full.
	Next() []byte
	// Publish makes the most recently claimed slot visible to the
	// consumer, recording that only its first n bytes are meaningful;
	// the consumer's Next returns a slice trimmed to that length.
	Publish(n int)
	// AttachWakeup registers a callback fired whenever the queue
	// transitions from full to non-full, so the processor can re-enable
	// read interest.
	AttachWakeup(cb func())
	// Len reports the number of published, unconsumed slots.
	Len() int
	// Cap reports the fixed capacity.
	Cap() int
}

// Consumer is the application-facing side that waits for published slots
// and releases them back to the producer once consumed.
type Consumer interface {
	// Next blocks until a slot is published, or ctx-independent close;
	// ok is false once the queue is closed and drained.
	Next() (slot []byte, ok bool)
	// Release returns the most recently returned slot to the producer.
	Release()
	// AttachWakeup registers a callback fired whenever the queue
	// transitions from empty to non-empty, so the processor can
	// re-enable write interest on the output side.
	AttachWakeup(cb func())
	// Close unblocks any pending Next call and marks the queue closed.
	Close()
}

// Queue is implemented by a concrete buffer and split into its Producer
// and Consumer halves via the Producer()/Consumer() accessors — the two
// roles use colliding method names (Next) with different signatures, so
// they cannot be embedded into one interface directly.
type Queue interface {
	Producer() Producer
	Consumer() Consumer
	Close()
}
