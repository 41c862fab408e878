package channel

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/dsys/snio/codec"
	"github.com/dsys/snio/control"
	"github.com/dsys/snio/ratelimit"
	"github.com/dsys/snio/selector"
)

// queueKind selects the message-buffer implementation.
type queueKind int

const (
	queueRing queueKind = iota
	queueBlocking
)

// bufferAlloc selects the payload slot allocation strategy.
type bufferAlloc int

const (
	bufferHeap bufferAlloc = iota
	bufferDirect
)

// fanIn selects whether accepted connections share one input queue or
// each get their own, mirroring UseSingleInputBuffer/UseMultipleInputBuffers.
type fanIn int

const (
	fanInMultiple fanIn = iota
	fanInSingle
)

// Builder configures and constructs TCP, TLS, or UDP channels via
// functional options, adapted from the teacher's server.ServerOption
// pattern and the original's MessageChannels.TCPChannelBuilder.
type Builder struct {
	pool *selector.Pool

	bufferCapacity int
	sendBufSize    int
	recvBufSize    int

	alloc bufferAlloc
	queue queueKind
	fan   fanIn

	codec      codec.Codec
	messageLen int
	limiterFct ratelimit.Factory
	tlsConfig  *tls.Config
	metrics    *control.MetricsRegistry

	pollTimeout time.Duration
}

// Option configures a Builder.
type Option func(*Builder)

// NewBuilder starts a Builder with the teacher-observed defaults: a
// 256-slot buffer, 65535-byte socket buffers, ring-buffer queues, one
// input queue per channel, and no rate limiting.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		bufferCapacity: 256,
		sendBufSize:    65535,
		recvBufSize:    65535,
		alloc:          bufferHeap,
		queue:          queueRing,
		fan:            fanInMultiple,
		limiterFct:     ratelimit.NoLimitFactory(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithPool attaches the selector pool new channels register against. Required.
func WithPool(p *selector.Pool) Option {
	return func(b *Builder) { b.pool = p }
}

// WithBufferCapacity sets the number of slots per message queue.
func WithBufferCapacity(n int) Option {
	return func(b *Builder) { b.bufferCapacity = n }
}

// WithSendBufferSize sets the socket send buffer size (stream channels only).
func WithSendBufferSize(n int) Option {
	return func(b *Builder) { b.sendBufSize = n }
}

// WithReceiveBufferSize sets the socket receive buffer size (stream channels only).
func WithReceiveBufferSize(n int) Option {
	return func(b *Builder) { b.recvBufSize = n }
}

// UseDirectBuffer carves every payload slot out of one contiguous backing
// array instead of allocating each slot separately, trading one GC object
// per slot for a single allocation and slot locality.
func UseDirectBuffer() Option {
	return func(b *Builder) { b.alloc = bufferDirect }
}

// UseHeapBuffer selects plain GC-managed payload slots. Default.
func UseHeapBuffer() Option {
	return func(b *Builder) { b.alloc = bufferHeap }
}

// UseRingBuffer selects the sequence-numbered SPSC ring queue
// implementation. Default.
func UseRingBuffer() Option {
	return func(b *Builder) { b.queue = queueRing }
}

// UseBlockingQueue selects the mutex/cond queue implementation.
func UseBlockingQueue() Option {
	return func(b *Builder) { b.queue = queueBlocking }
}

// UseSingleInputBuffer shares one input queue across every channel a
// server acceptor accepts (fan-in).
func UseSingleInputBuffer() Option {
	return func(b *Builder) { b.fan = fanInSingle }
}

// UseMultipleInputBuffers gives each accepted channel its own input
// queue. Default.
func UseMultipleInputBuffers() Option {
	return func(b *Builder) { b.fan = fanInMultiple }
}

// WithMessageCodec sets an explicit codec instance.
func WithMessageCodec(c codec.Codec) Option {
	return func(b *Builder) { b.codec = c }
}

// WithMessageLength is shorthand for a default int-header codec with the
// given maximum body length.
func WithMessageLength(n int) Option {
	return func(b *Builder) { b.messageLen = n }
}

// WithRateLimiter sets an explicit limiter factory.
func WithRateLimiter(f ratelimit.Factory) Option {
	return func(b *Builder) { b.limiterFct = f }
}

// WithRateLimit is shorthand for a token-bucket limiter factory.
func WithRateLimit(value int64, unit ratelimit.Unit) Option {
	return func(b *Builder) { b.limiterFct = ratelimit.LimitFactory(value, unit) }
}

// WithTLSConfig sets the TLS configuration for TLS channels, providing
// certificates and roots in place of the original's SSLContext.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(b *Builder) { b.tlsConfig = cfg }
}

// WithMetrics attaches a registry every channel built from b reports
// counters to (frames transferred, UDP drops, rate-limit denials).
func WithMetrics(m *control.MetricsRegistry) Option {
	return func(b *Builder) { b.metrics = m }
}

// WithPollTimeout records d on the builder. No channel reads it: a
// rate-limit denial defers its retry by the wait the limiter reports.
func WithPollTimeout(d time.Duration) Option {
	return func(b *Builder) { b.pollTimeout = d }
}

func (b *Builder) resolveCodec() (codec.Codec, error) {
	if b.codec != nil {
		return b.codec, nil
	}
	length := b.messageLen
	ic, err := codec.NewIntHeaderCodec(length)
	if err != nil {
		return nil, err
	}
	return ic, nil
}

func (b *Builder) validate() error {
	if b.pool == nil {
		return fmt.Errorf("channel: builder requires WithPool")
	}
	if b.bufferCapacity <= 0 || b.bufferCapacity&(b.bufferCapacity-1) != 0 {
		if b.queue == queueRing {
			return fmt.Errorf("channel: ring buffer capacity must be a power of two, got %d", b.bufferCapacity)
		}
	}
	return nil
}
