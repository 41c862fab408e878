package channel

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dsys/snio/selector"
)

// captureOnAccept hands the accepted channel to the test without draining
// it, so the test controls exactly when the receive queue is consumed.
type captureOnAccept struct{ accepted chan Channel }

func (c *captureOnAccept) ConnectionAccepted(remote net.Addr, ch Channel) {
	c.accepted <- ch
}

// TestTCPReceiveBackpressureRecovers fills a channel's receive queue past
// capacity, leaving it undrained long enough for read interest to be
// disabled, then drains it and confirms the remaining messages still
// arrive. This exercises the release-triggered wakeup that re-enables read
// interest — attaching the wakeup to the wrong buffer half (the consumer
// handle, which only fires on publish) would make this hang forever.
func TestTCPReceiveBackpressureRecovers(t *testing.T) {
	pool, err := selector.Open("bp", 1)
	require.NoError(t, err)
	defer pool.Close()

	const capacity = 4
	const total = capacity + 2

	b := NewBuilder(WithPool(pool), WithBufferCapacity(capacity), WithMessageLength(64), UseRingBuffer())

	listener := &captureOnAccept{accepted: make(chan Channel, 1)}
	srv, err := BindTCP(b, "127.0.0.1:0", listener)
	require.NoError(t, err)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cli, err := DialTCP(ctx, b, srv.LocalAddr().String())
	require.NoError(t, err)
	defer cli.Close()
	require.NoError(t, cli.ConnectFuture().Err())

	var serverCh Channel
	select {
	case serverCh = <-listener.accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
	}

	out := cli.OutputBuffer()
	for i := 0; i < total; i++ {
		slot := out.Next()
		n := copy(slot, []byte{byte(i)})
		out.Publish(n)
	}

	// Give the server loop time to read as many messages as the queue
	// will hold and disable read interest on the rest.
	time.Sleep(200 * time.Millisecond)

	in := serverCh.InputBuffer()
	readOne := func() byte {
		replyCh := make(chan []byte, 1)
		go func() {
			slot, ok := in.Next()
			if ok {
				replyCh <- slot
			}
		}()
		select {
		case slot := <-replyCh:
			v := slot[0]
			in.Release()
			return v
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for a queued or recovered message")
			return 0
		}
	}

	for i := 0; i < total; i++ {
		require.Equal(t, byte(i), readOne(), "message %d out of order or lost after backpressure recovery", i)
	}
}
