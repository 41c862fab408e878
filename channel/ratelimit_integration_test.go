package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dsys/snio/ratelimit"
	"github.com/dsys/snio/selector"
)

// TestTCPChannelHonorsRateLimit confirms a tightly capped rate limiter
// defers delivery of a second message rather than sending it immediately,
// by observing that the echoed second message arrives measurably later
// than the first.
func TestTCPChannelHonorsRateLimit(t *testing.T) {
	pool, err := selector.Open("rl-it", 1)
	require.NoError(t, err)
	defer pool.Close()

	// Enough burst for one short frame per second; a second publish must wait.
	b := NewBuilder(
		WithPool(pool),
		WithMessageLength(4096),
		UseRingBuffer(),
		WithRateLimit(10, ratelimit.BytesPerSecond),
	)

	listener := &echoOnAccept{accepted: make(chan Channel, 1)}
	srv, err := BindTCP(b, "127.0.0.1:0", listener)
	require.NoError(t, err)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cli, err := DialTCP(ctx, b, srv.LocalAddr().String())
	require.NoError(t, err)
	defer cli.Close()
	require.NoError(t, cli.ConnectFuture().Err())

	<-listener.accepted

	out := cli.OutputBuffer()
	in := cli.InputBuffer()

	readOne := func() []byte {
		replyCh := make(chan []byte, 1)
		go func() {
			reply, ok := in.Next()
			if ok {
				replyCh <- reply
			}
		}()
		select {
		case reply := <-replyCh:
			in.Release()
			return reply
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for echo reply")
			return nil
		}
	}

	start := time.Now()
	slot := out.Next()
	n := copy(slot, []byte("first"))
	out.Publish(n)
	_ = readOne()
	firstElapsed := time.Since(start)

	start2 := time.Now()
	slot = out.Next()
	n = copy(slot, []byte("second"))
	out.Publish(n)
	_ = readOne()
	secondElapsed := time.Since(start2)

	require.Greater(t, secondElapsed, firstElapsed,
		"second message should be delayed by the rate limiter relative to the unthrottled first")
}
