package channel

import (
	"crypto/tls"
	"fmt"
	"net"

	"github.com/hashicorp/go-hclog"

	"github.com/dsys/snio/buffer"
	"github.com/dsys/snio/control"
	"github.com/dsys/snio/future"
	"github.com/dsys/snio/reactor"
	"github.com/dsys/snio/selector"
)

// serverAcceptor binds a listening socket and, for each accepted
// connection, builds a fresh provider and processor before handing the
// channel to the pool for registration. Adapted from the original's
// server-side MessageChannels builder path and SSLAcceptor.
type serverAcceptor struct {
	listener *net.TCPListener
	fd       uintptr
	builder  *Builder
	tlsCfg   *tls.Config
	log      hclog.Logger

	accept AcceptListener
	close  CloseListener

	sharedRecv buffer.Queue

	bindFut  *future.Future
	closeFut *future.Future
}

// BindTCP listens on addr and registers an acceptor on b's pool. Each
// accepted connection becomes a TCP channel built with b's settings.
func BindTCP(b *Builder, addr string, accept AcceptListener) (Channel, error) {
	return bindServer(b, addr, nil, accept)
}

// BindTLS listens on addr and registers an acceptor on b's pool. Each
// accepted connection performs a server-side TLS handshake using b's
// WithTLSConfig before becoming a TLS channel.
func BindTLS(b *Builder, addr string, accept AcceptListener) (Channel, error) {
	if b.tlsConfig == nil {
		return nil, fmt.Errorf("channel: BindTLS requires WithTLSConfig")
	}
	return bindServer(b, addr, b.tlsConfig, accept)
}

func bindServer(b *Builder, addr string, tlsCfg *tls.Config, accept AcceptListener) (Channel, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	laddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("channel: resolve %s: %w", addr, err)
	}
	ln, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		return nil, fmt.Errorf("channel: listen %s: %w", addr, err)
	}
	fd, err := socketFD(ln)
	if err != nil {
		_ = ln.Close()
		return nil, err
	}

	a := &serverAcceptor{
		listener: ln,
		fd:       fd,
		builder:  b,
		tlsCfg:   tlsCfg,
		log:      control.NewLogger("snio.channel.acceptor"),
		accept:   accept,
		bindFut:  future.New(),
		closeFut: future.New(),
	}
	if b.fan == fanInSingle {
		a.sharedRecv = b.newQueue()
	}

	key := &selector.SelectionKey{Loop: b.pool.Next(), Acceptor: a}
	fut := b.pool.Bind(key, fd, reactor.EventRead)
	go func() {
		if err := fut.Err(); err != nil {
			a.bindFut.Fail(err)
			return
		}
		a.bindFut.Success()
	}()

	return a, nil
}

func (a *serverAcceptor) LocalAddr() net.Addr           { return a.listener.Addr() }
func (a *serverAcceptor) RemoteAddr() net.Addr          { return nil }
func (a *serverAcceptor) ConnectFuture() *future.Future { return a.bindFut }
func (a *serverAcceptor) CloseFuture() *future.Future   { return a.closeFut }
func (a *serverAcceptor) InputBuffer() buffer.Consumer  { return nil }
func (a *serverAcceptor) OutputBuffer() buffer.Producer { return nil }

func (a *serverAcceptor) Close() error {
	err := a.listener.Close()
	a.closeFut.Success()
	return err
}

// OnAcceptable implements selector.Acceptor.
func (a *serverAcceptor) OnAcceptable(key *selector.SelectionKey) {
	conn, err := a.listener.AcceptTCP()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return
		}
		a.log.Error("accept failed", "error", err)
		return
	}

	fd, err := socketFD(conn)
	if err != nil {
		_ = conn.Close()
		a.log.Error("accepted socket fd extraction failed", "error", err)
		return
	}

	c, err := a.builder.resolveCodec()
	if err != nil {
		_ = conn.Close()
		return
	}
	limiter := a.builder.limiterFct()
	pv := a.builder.newProvider(a.sharedRecv)

	loop := a.builder.pool.Next()
	if a.tlsCfg != nil {
		srvCfg := a.tlsCfg.Clone()
		tlsConn := tls.Server(conn, srvCfg)
		proc := newTLSProcessor(tlsConn, c.Clone(), limiter, pv, a.builder.metrics, sharedWorkerPool(), control.NewLogger("snio.channel.tls"))
		proc.rawFD = fd
		proc.closeFut = future.NewMerging(proc.closeReadFut, proc.closeWriteFut)
		sk := &selector.SelectionKey{Loop: loop, Processor: proc}
		fut := a.builder.pool.Register(sk, fd, reactor.EventRead|reactor.EventWrite)
		go a.finishAccept(fut, proc.connectFut, func() { proc.bindKeys(sk, sk) }, conn.RemoteAddr(), proc)
		return
	}

	proc := newTCPProcessor(conn, c.Clone(), limiter, pv, a.builder.metrics, control.NewLogger("snio.channel.tcp"))
	proc.fd = fd
	proc.closeFut = future.NewMerging(proc.closeReadFut, proc.closeWriteFut)
	sk := &selector.SelectionKey{Loop: loop, Processor: proc}
	fut := a.builder.pool.Register(sk, fd, reactor.EventRead)
	go a.finishAccept(fut, proc.connectFut, func() { proc.bindKeys(sk, sk) }, conn.RemoteAddr(), proc)
}

func (a *serverAcceptor) finishAccept(regFut, connectFut *future.Future, bind func(), remote net.Addr, ch Channel) {
	if err := regFut.Err(); err != nil {
		connectFut.Fail(err)
		_ = ch.Close()
		return
	}
	bind()
	if err := connectFut.Err(); err != nil {
		_ = ch.Close()
		return
	}
	if a.accept != nil {
		a.accept.ConnectionAccepted(remote, ch)
	}
}
