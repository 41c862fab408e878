package channel

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/dsys/snio/buffer"
	"github.com/dsys/snio/codec"
	"github.com/dsys/snio/control"
	"github.com/dsys/snio/errs"
	"github.com/dsys/snio/future"
	"github.com/dsys/snio/ratelimit"
	"github.com/dsys/snio/reactor"
	"github.com/dsys/snio/selector"
)

// tlsHandshakeState tracks where a tlsProcessor is in its lifecycle.
// Go's tls.Conn folds NEED_UNWRAP/NEED_WRAP/NEED_TASK/FINISHED into its
// own Handshake/Read/Write, so this is only the two states this
// processor needs to distinguish: still handshaking, or transferring
// application data.
type tlsHandshakeState int32

const (
	tlsHandshaking tlsHandshakeState = iota
	tlsDataTransfer
)

// tlsProcessor is the TLS counterpart to tcpProcessor: same outer
// read/write/queue contract, with crypto/tls.Conn interposed for the
// wire-level encryption. The handshake runs tls.Conn's blocking
// HandshakeContext on a worker goroutine (see startHandshake), so the
// event-loop goroutine does not wait on it.
type tlsProcessor struct {
	conn   *tls.Conn
	rawFD  uintptr
	log    hclog.Logger
	worker *workerPool

	codec   codec.Codec
	limiter ratelimit.RateLimiter
	metrics *control.MetricsRegistry

	*provider

	state tlsHandshakeState

	inBuf  []byte
	inLen  int
	outBuf []byte
	outLen int
	outPos int

	readKey  *selector.SelectionKey
	writeKey *selector.SelectionKey

	connectFut    *future.Future
	closeReadFut  *future.Future
	closeWriteFut *future.Future
	closeFut      *future.Future

	handshakeInFlight bool
	closeSent         bool
}

func newTLSProcessor(conn *tls.Conn, c codec.Codec, lim ratelimit.RateLimiter, p *provider, metrics *control.MetricsRegistry, worker *workerPool, log hclog.Logger) *tlsProcessor {
	frame := c.FrameLength()
	if frame <= 0 || frame > 1<<20 {
		frame = 65536
	}
	return &tlsProcessor{
		conn:          conn,
		log:           log,
		worker:        worker,
		codec:         c,
		limiter:       lim,
		metrics:       metrics,
		provider:      p,
		inBuf:         make([]byte, frame*2),
		outBuf:        make([]byte, frame),
		connectFut:    future.New(),
		closeReadFut:  future.New(),
		closeWriteFut: future.New(),
	}
}

func (p *tlsProcessor) LocalAddr() net.Addr           { return p.conn.LocalAddr() }
func (p *tlsProcessor) RemoteAddr() net.Addr          { return p.conn.RemoteAddr() }
func (p *tlsProcessor) ConnectFuture() *future.Future { return p.connectFut }
func (p *tlsProcessor) CloseFuture() *future.Future   { return p.closeFut }
func (p *tlsProcessor) InputBuffer() buffer.Consumer  { return p.appIn }
func (p *tlsProcessor) OutputBuffer() buffer.Producer { return p.appOut }

func (p *tlsProcessor) bindKeys(readKey, writeKey *selector.SelectionKey) {
	p.readKey = readKey
	p.writeKey = writeKey
	// chnOut is the Producer handle the receive path fills; its wakeup
	// fires on the full-to-non-full transition Release causes, which is
	// exactly when read interest needs to come back on.
	p.chnOut.AttachWakeup(func() {
		p.readKey.Loop.Submit(func() {
			_ = p.readKey.SetInterest(p.readKey.Interest | reactor.EventRead)
		})
	})
	// chnIn is the Consumer handle the send path drains; its wakeup fires
	// when Publish makes the send queue non-empty.
	p.chnIn.AttachWakeup(func() { p.WakeupWriter() })
	p.startHandshake()
}

func (p *tlsProcessor) WakeupWriter() {
	if p.writeKey == nil || p.writeKey.Cancelled() {
		return
	}
	p.writeKey.Loop.Submit(func() {
		_ = p.writeKey.SetInterest(p.writeKey.Interest | reactor.EventWrite)
	})
}

// startHandshake dispatches the handshake attempt onto the background
// worker pool so certificate validation and key exchange (the engine's
// CPU-bound NEED_TASK-equivalent step) run off the event-loop goroutine,
// then posts the result back as a loop task. A task the worker pool's
// executor rejects runs inline on the calling goroutine instead.
func (p *tlsProcessor) startHandshake() {
	if p.handshakeInFlight {
		return
	}
	p.handshakeInFlight = true
	loop := p.readKey.Loop
	p.worker.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := p.conn.HandshakeContext(ctx)
		loop.Submit(func() {
			p.handshakeInFlight = false
			p.onHandshakeResult(err)
		})
	})
}

func (p *tlsProcessor) onHandshakeResult(err error) {
	if err == nil {
		p.state = tlsDataTransfer
		p.connectFut.Success()
		_ = p.readKey.SetInterest(reactor.EventRead)
		return
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		// Would-block during the handshake: rearm both read and write
		// interest and retry once more data/space arrives.
		_ = p.readKey.SetInterest(reactor.EventRead | reactor.EventWrite)
		return
	}
	p.fail(errs.TLS("tls handshake", err))
}

// OnReadable implements selector.Processor.
func (p *tlsProcessor) OnReadable(key *selector.SelectionKey) {
	if p.state == tlsHandshaking {
		p.startHandshake()
		return
	}

	n, err := p.conn.Read(p.inBuf[p.inLen:])
	if err != nil {
		if err == io.EOF {
			// Peer sent close_notify; finish our own half of the close
			// handshake before releasing the socket.
			p.initiateClose(nil)
			return
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return
		}
		p.fail(errs.TLS("tls read", err))
		return
	}
	p.inLen += n

	consumed := 0
	for {
		window := p.inBuf[consumed:p.inLen]
		ok, err := p.codec.HasNext(window)
		if err != nil {
			p.fail(err)
			return
		}
		if !ok {
			break
		}
		if p.chnOut.Len() >= p.chnOut.Cap() {
			_ = key.SetInterest(key.Interest &^ reactor.EventRead)
			break
		}
		slot := p.chnOut.Next()
		used, payloadLen, err := p.codec.Get(window, slot)
		if err != nil {
			p.fail(err)
			return
		}
		p.chnOut.Publish(payloadLen)
		consumed += used
		if p.metrics != nil {
			p.metrics.Inc("tls.frames.in", 1)
		}
	}
	copy(p.inBuf, p.inBuf[consumed:p.inLen])
	p.inLen -= consumed
}

// OnWritable implements selector.Processor.
func (p *tlsProcessor) OnWritable(key *selector.SelectionKey) {
	if p.state == tlsHandshaking {
		p.startHandshake()
		return
	}

	if p.outPos < p.outLen {
		p.flush(key)
		return
	}

	if p.appOut.Len() == 0 {
		_ = key.SetInterest(key.Interest &^ reactor.EventWrite)
		return
	}
	msg, ok := p.chnIn.Next()
	if !ok {
		_ = key.SetInterest(key.Interest &^ reactor.EventWrite)
		return
	}
	encLen := p.codec.GetEncodedLength(msg)
	if granted, wait := p.limiter.Acquire(encLen); !granted {
		if p.metrics != nil {
			p.metrics.Inc("tls.ratelimit.denied", 1)
		}
		time.AfterFunc(wait, p.WakeupWriter)
		_ = key.SetInterest(key.Interest &^ reactor.EventWrite)
		return
	}

	n, err := p.codec.Put(msg, p.outBuf)
	if err != nil {
		p.fail(err)
		return
	}
	p.chnIn.Release()
	p.outLen = n
	p.outPos = 0
	if p.metrics != nil {
		p.metrics.Inc("tls.frames.out", 1)
	}
	p.flush(key)
}

func (p *tlsProcessor) flush(key *selector.SelectionKey) {
	for p.outPos < p.outLen {
		n, err := p.conn.Write(p.outBuf[p.outPos:p.outLen])
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				_ = key.SetInterest(key.Interest | reactor.EventWrite)
				return
			}
			p.fail(errs.TLS("tls write", err))
			return
		}
		p.outPos += n
	}
}

// initiateClose sends our own close_notify (if not already sent) and
// releases the socket on a best-effort basis: an incomplete close
// handshake is logged but never blocks release beyond the bounded
// timeout already applied by crypto/tls internally to CloseWrite.
func (p *tlsProcessor) initiateClose(cause error) {
	if !p.closeSent {
		p.closeSent = true
		if err := p.conn.Close(); err != nil {
			p.log.Warn("tls close_notify incomplete", "error", err)
		}
	}
	p.fail(cause)
}

func (p *tlsProcessor) OnClosed(key *selector.SelectionKey, cause error) {
	p.initiateClose(cause)
}

func (p *tlsProcessor) fail(cause error) {
	p.closeReadFut.Fail(cause)
	p.closeWriteFut.Fail(cause)
	_ = p.Close()
}

// Close implements Channel. Idempotent via the underlying futures'
// sync.Once completion.
func (p *tlsProcessor) Close() error {
	if !p.closeSent {
		p.closeSent = true
		_ = p.conn.Close()
	}
	if p.readKey != nil {
		_ = p.readKey.Cancel()
	}
	p.appIn.Close()
	p.closeReadFut.Success()
	p.closeWriteFut.Success()
	if p.closeFut != nil {
		p.closeFut.Success()
	}
	return nil
}

// DialTLS connects to addr, performs a non-blocking-driven TLS handshake,
// and registers the resulting channel on b's pool.
func DialTLS(ctx context.Context, b *Builder, addr string) (Channel, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	if b.tlsConfig == nil {
		return nil, fmt.Errorf("channel: DialTLS requires WithTLSConfig")
	}
	c, err := b.resolveCodec()
	if err != nil {
		return nil, err
	}
	d := net.Dialer{}
	rawConn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("channel: dial %s: %w", addr, err)
	}
	fd, err := socketFD(rawConn.(*net.TCPConn))
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	tlsConn := tls.Client(rawConn, b.tlsConfig)

	pv := b.newProvider(nil)
	limiter := b.limiterFct()
	proc := newTLSProcessor(tlsConn, c, limiter, pv, b.metrics, sharedWorkerPool(), control.NewLogger("snio.channel.tls"))
	proc.rawFD = fd
	proc.closeFut = future.NewMerging(proc.closeReadFut, proc.closeWriteFut)

	key := &selector.SelectionKey{Loop: b.pool.Next(), Processor: proc}
	fut := b.pool.Register(key, fd, reactor.EventRead|reactor.EventWrite)
	go func() {
		if err := fut.Err(); err != nil {
			proc.connectFut.Fail(err)
			return
		}
		proc.bindKeys(key, key)
	}()

	return proc, nil
}
