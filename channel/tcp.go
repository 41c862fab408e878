package channel

import (
	"context"
	"fmt"
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

// tcpProcessor shuttles bytes between a connected TCP socket and the
// codec/queue layer. Adapted from AbstractProcessor's readRegistered/
// writeRegistered/wakeupWriter shape, generalized to this package's
// pluggable Codec instead of one fixed wire format.
type tcpProcessor struct {
	conn *net.TCPConn
	fd   uintptr
	log  hclog.Logger

	codec   codec.Codec
	limiter ratelimit.RateLimiter
	metrics *control.MetricsRegistry

	*provider

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

	closeListener CloseListener
}

func newTCPProcessor(conn *net.TCPConn, c codec.Codec, lim ratelimit.RateLimiter, p *provider, metrics *control.MetricsRegistry, log hclog.Logger) *tcpProcessor {
	frame := c.FrameLength()
	if frame <= 0 || frame > 1<<20 {
		frame = 65536
	}
	return &tcpProcessor{
		conn:          conn,
		log:           log,
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

func (p *tcpProcessor) LocalAddr() net.Addr           { return p.conn.LocalAddr() }
func (p *tcpProcessor) RemoteAddr() net.Addr          { return p.conn.RemoteAddr() }
func (p *tcpProcessor) ConnectFuture() *future.Future { return p.connectFut }
func (p *tcpProcessor) CloseFuture() *future.Future   { return p.closeFut }
func (p *tcpProcessor) InputBuffer() buffer.Consumer   { return p.appIn }
func (p *tcpProcessor) OutputBuffer() buffer.Producer  { return p.appOut }

// bindKeys wires selection keys once the pool has registered fd; called
// from a separate goroutine once the registration future has succeeded.
func (p *tcpProcessor) bindKeys(readKey, writeKey *selector.SelectionKey) {
	p.readKey = readKey
	p.writeKey = writeKey

	// A full receive queue disables read interest until the consumer
	// releases a slot; an empty send queue keeps write interest off
	// until the application publishes. Both wake-ups run on whatever
	// goroutine released/published, so they submit the interest change
	// as a task on the owning loop rather than touching the key. The
	// receive wakeup must be attached to chnOut, the Producer handle: it
	// is chnOut that a full queue blocks, so it is chnOut's wakeup that
	// fires on the full-to-non-full transition Release causes. The send
	// wakeup is attached to chnIn, the Consumer handle, whose wakeup
	// fires when Publish makes the send queue non-empty.
	p.chnOut.AttachWakeup(func() {
		p.readKey.Loop.Submit(func() {
			_ = p.readKey.SetInterest(p.readKey.Interest | reactor.EventRead)
		})
	})
	p.chnIn.AttachWakeup(func() {
		p.WakeupWriter()
	})
	p.connectFut.Success()
}

// WakeupWriter re-enables write interest, called from any goroutine when
// the application publishes a message; the actual interest-bit toggle
// happens on the owning loop via SetInterest.
func (p *tcpProcessor) WakeupWriter() {
	if p.writeKey == nil || p.writeKey.Cancelled() {
		return
	}
	p.writeKey.Loop.Submit(func() {
		_ = p.writeKey.SetInterest(p.writeKey.Interest | reactor.EventWrite)
	})
}

// OnReadable implements selector.Processor.
func (p *tcpProcessor) OnReadable(key *selector.SelectionKey) {
	n, err := p.conn.Read(p.inBuf[p.inLen:])
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return
		}
		p.fail(errs.IO("tcp read", err))
		return
	}
	if n == 0 {
		p.fail(errs.IO("tcp read: peer closed", nil))
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
			p.metrics.Inc("tcp.frames.in", 1)
		}
	}
	copy(p.inBuf, p.inBuf[consumed:p.inLen])
	p.inLen -= consumed
}

// OnWritable implements selector.Processor.
func (p *tcpProcessor) OnWritable(key *selector.SelectionKey) {
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
			p.metrics.Inc("tcp.ratelimit.denied", 1)
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
		p.metrics.Inc("tcp.frames.out", 1)
	}
	p.flush(key)
}

func (p *tcpProcessor) flush(key *selector.SelectionKey) {
	for p.outPos < p.outLen {
		n, err := p.conn.Write(p.outBuf[p.outPos:p.outLen])
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				_ = key.SetInterest(key.Interest | reactor.EventWrite)
				return
			}
			p.fail(errs.IO("tcp write", err))
			return
		}
		p.outPos += n
	}
}

// OnClosed implements selector.Processor.
func (p *tcpProcessor) OnClosed(key *selector.SelectionKey, cause error) {
	p.fail(cause)
}

func (p *tcpProcessor) fail(cause error) {
	p.closeReadFut.Fail(cause)
	p.closeWriteFut.Fail(cause)
	_ = p.Close()
	if p.closeListener != nil {
		p.closeListener.ChannelClosed(p, cause)
	}
}

// Close implements Channel. Idempotent via the underlying futures'
// sync.Once completion.
func (p *tcpProcessor) Close() error {
	if p.readKey != nil {
		_ = p.readKey.Cancel()
	}
	_ = p.conn.Close()
	p.appIn.Close()
	p.closeReadFut.Success()
	p.closeWriteFut.Success()
	if p.closeFut != nil {
		p.closeFut.Success()
	}
	return nil
}

// DialTCP connects to addr and registers the resulting channel on b's pool.
func DialTCP(ctx context.Context, b *Builder, addr string) (Channel, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	c, err := b.resolveCodec()
	if err != nil {
		return nil, err
	}
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("channel: dial %s: %w", addr, err)
	}
	tcpConn := conn.(*net.TCPConn)
	fd, err := socketFD(tcpConn)
	if err != nil {
		_ = tcpConn.Close()
		return nil, err
	}

	pv := b.newProvider(nil)
	limiter := b.limiterFct()
	proc := newTCPProcessor(tcpConn, c, limiter, pv, b.metrics, control.NewLogger("snio.channel.tcp"))
	proc.fd = fd
	proc.closeFut = future.NewMerging(proc.closeReadFut, proc.closeWriteFut)

	key := &selector.SelectionKey{Loop: b.pool.Next(), Processor: proc}
	fut := b.pool.Register(key, fd, reactor.EventRead)
	go func() {
		if err := fut.Err(); err != nil {
			proc.connectFut.Fail(err)
			return
		}
		proc.bindKeys(key, key)
	}()

	return proc, nil
}
