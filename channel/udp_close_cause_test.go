package channel

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dsys/snio/control"
	"github.com/dsys/snio/future"
)

// TestUDPProcessorFailPropagatesCauseToCloseFuture verifies that a fatal
// UDP I/O error surfaces through CloseFuture(), the same contract
// tcpProcessor's fail already honors. Routing Close through a Success()
// that ignores its cause would leave CloseFuture().Err() nil here.
func TestUDPProcessorFailPropagatesCauseToCloseFuture(t *testing.T) {
	b := NewBuilder(WithMessageLength(64), UseRingBuffer())
	c, err := b.resolveCodec()
	require.NoError(t, err)

	laddr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	require.NoError(t, err)
	conn, err := net.ListenUDP("udp", laddr)
	require.NoError(t, err)
	defer conn.Close()

	pv := b.newProvider(nil)
	proc := newUDPProcessor(conn, c, b.limiterFct(), pv, nil, control.NewLogger("snio.channel.udp.test"))
	proc.closeFut = future.New()

	cause := errors.New("udp read: boom")
	proc.fail(cause)

	require.ErrorIs(t, proc.CloseFuture().Err(), cause)
}
