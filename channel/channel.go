// Package channel
// Author: momentics <momentics@gmail.com>
//
// Message channels: TCP, TLS, and UDP processors sitting on top of a
// selector.Pool, plus the functional-options builder used to configure
// them. Adapted from the original's AbstractProcessor/MessageChannels
// design, generalized from that codebase's single fixed wire codec to
// this package's pluggable codec.Codec family.
package channel

import (
	"net"

	"github.com/dsys/snio/buffer"
	"github.com/dsys/snio/future"
)

// Channel is the application-facing handle for one connected or bound
// socket. All operations are safe to call from any goroutine; the
// underlying socket and selection keys are owned by one event-loop
// goroutine reached only through the selector pool's task queue.
type Channel interface {
	// LocalAddr and RemoteAddr report the socket's endpoints.
	LocalAddr() net.Addr
	RemoteAddr() net.Addr

	// ConnectFuture completes once the channel's selection keys are
	// registered and bound on its loop, for connecting and accepted
	// channels alike; a TLS channel's completes once its handshake has
	// also succeeded.
	ConnectFuture() *future.Future
	// CloseFuture completes once the channel has fully shut down and
	// released its socket.
	CloseFuture() *future.Future

	// InputBuffer returns the consumer side of the receive queue: the
	// application reads decoded messages from here.
	InputBuffer() buffer.Consumer
	// OutputBuffer returns the producer side of the send queue: the
	// application writes messages to be encoded and sent here.
	OutputBuffer() buffer.Producer

	// Close initiates shutdown. Idempotent: a second call observes the
	// already-completed CloseFuture.
	Close() error
}

// AcceptListener is notified for each connection a server Channel accepts.
type AcceptListener interface {
	ConnectionAccepted(remote net.Addr, ch Channel)
}

// CloseListener is notified when any channel it is attached to closes.
type CloseListener interface {
	ChannelClosed(ch Channel, cause error)
}
