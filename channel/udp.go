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

// udpProcessor reads and writes one datagram per readiness event. Unlike
// tcpProcessor there is no stream to reassemble: a datagram that does not
// decode in one pass is simply dropped and counted, never buffered across
// events.
type udpProcessor struct {
	conn *net.UDPConn
	fd   uintptr
	log  hclog.Logger

	codec   codec.Codec
	limiter ratelimit.RateLimiter
	metrics *control.MetricsRegistry

	*provider

	datagram []byte
	outBuf   []byte

	readKey  *selector.SelectionKey
	writeKey *selector.SelectionKey

	connectFut *future.Future
	closeFut   *future.Future
}

func newUDPProcessor(conn *net.UDPConn, c codec.Codec, lim ratelimit.RateLimiter, p *provider, metrics *control.MetricsRegistry, log hclog.Logger) *udpProcessor {
	size := c.FrameLength()
	if size <= 0 || size > codec.MaxDatagramPayload {
		size = codec.MaxDatagramPayload
	}
	return &udpProcessor{
		conn:       conn,
		log:        log,
		codec:      c,
		limiter:    lim,
		metrics:    metrics,
		provider:   p,
		datagram:   make([]byte, size),
		outBuf:     make([]byte, size),
		connectFut: future.New(),
	}
}

func (p *udpProcessor) LocalAddr() net.Addr           { return p.conn.LocalAddr() }
func (p *udpProcessor) RemoteAddr() net.Addr          { return p.conn.RemoteAddr() }
func (p *udpProcessor) ConnectFuture() *future.Future { return p.connectFut }
func (p *udpProcessor) CloseFuture() *future.Future   { return p.closeFut }
func (p *udpProcessor) InputBuffer() buffer.Consumer  { return p.appIn }
func (p *udpProcessor) OutputBuffer() buffer.Producer { return p.appOut }

func (p *udpProcessor) bindKeys(readKey, writeKey *selector.SelectionKey) {
	p.readKey = readKey
	p.writeKey = writeKey
	p.chnIn.AttachWakeup(func() { p.WakeupWriter() })
	p.connectFut.Success()
}

func (p *udpProcessor) WakeupWriter() {
	if p.writeKey == nil || p.writeKey.Cancelled() {
		return
	}
	p.writeKey.Loop.Submit(func() {
		_ = p.writeKey.SetInterest(p.writeKey.Interest | reactor.EventWrite)
	})
}

// OnReadable implements selector.Processor: one datagram in, one message out.
func (p *udpProcessor) OnReadable(key *selector.SelectionKey) {
	n, _, err := p.conn.ReadFromUDP(p.datagram)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return
		}
		p.fail(errs.IO("udp read", err))
		return
	}
	window := p.datagram[:n]
	ok, err := p.codec.HasNext(window)
	if err != nil || !ok {
		p.drop()
		return
	}
	if p.chnOut.Len() >= p.chnOut.Cap() {
		p.drop()
		return
	}
	slot := p.chnOut.Next()
	_, payloadLen, err := p.codec.Get(window, slot)
	if err != nil {
		p.drop()
		return
	}
	p.chnOut.Publish(payloadLen)
	if p.metrics != nil {
		p.metrics.Inc("udp.frames.in", 1)
	}
}

func (p *udpProcessor) drop() {
	if p.metrics != nil {
		p.metrics.Inc("udp.drops", 1)
	}
}

// OnWritable implements selector.Processor: one message out as one datagram.
func (p *udpProcessor) OnWritable(key *selector.SelectionKey) {
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
			p.metrics.Inc("udp.ratelimit.denied", 1)
		}
		time.AfterFunc(wait, p.WakeupWriter)
		_ = key.SetInterest(key.Interest &^ reactor.EventWrite)
		return
	}
	n, err := p.codec.Put(msg, p.outBuf)
	if err != nil {
		p.chnIn.Release()
		return
	}
	p.chnIn.Release()
	if _, err := p.conn.Write(p.outBuf[:n]); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return
		}
		p.fail(errs.IO("udp write", err))
		return
	}
	if p.metrics != nil {
		p.metrics.Inc("udp.frames.out", 1)
	}
}

func (p *udpProcessor) OnClosed(key *selector.SelectionKey, cause error) {
	p.fail(cause)
}

func (p *udpProcessor) fail(cause error) {
	_ = p.closeWithCause(cause)
}

// Close implements Channel: an ordinary close, with no failure cause to
// report on CloseFuture.
func (p *udpProcessor) Close() error {
	return p.closeWithCause(nil)
}

// closeWithCause tears the processor down and completes closeFut with
// cause if one is given, or success otherwise. Idempotent via the
// underlying future's sync.Once completion.
func (p *udpProcessor) closeWithCause(cause error) error {
	if p.readKey != nil {
		_ = p.readKey.Cancel()
	}
	_ = p.conn.Close()
	p.appIn.Close()
	if p.closeFut != nil {
		if cause != nil {
			p.closeFut.Fail(cause)
		} else {
			p.closeFut.Success()
		}
	}
	return nil
}

// DialUDP connects to addr (fixes the datagram destination) and registers
// the resulting channel on b's pool.
func DialUDP(ctx context.Context, b *Builder, addr string) (Channel, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	c, err := b.resolveCodec()
	if err != nil {
		return nil, err
	}
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("channel: resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("channel: dial udp %s: %w", addr, err)
	}
	fd, err := socketFD(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	pv := b.newProvider(nil)
	limiter := b.limiterFct()
	proc := newUDPProcessor(conn, c, limiter, pv, b.metrics, control.NewLogger("snio.channel.udp"))
	proc.fd = fd
	proc.closeFut = future.New()

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
