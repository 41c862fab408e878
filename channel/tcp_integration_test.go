package channel

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dsys/snio/selector"
)

// echoOnAccept mirrors cmd/echo's server loop, used here to drive the
// TCP echo and fragmentation scenarios end to end.
type echoOnAccept struct{ accepted chan Channel }

func (e *echoOnAccept) ConnectionAccepted(remote net.Addr, ch Channel) {
	go func() {
		in := ch.InputBuffer()
		out := ch.OutputBuffer()
		for {
			slot, ok := in.Next()
			if !ok {
				return
			}
			dst := out.Next()
			n := copy(dst, slot)
			in.Release()
			out.Publish(n)
		}
	}()
	e.accepted <- ch
}

func TestTCPEchoRoundTrip(t *testing.T) {
	pool, err := selector.Open("it", 1)
	require.NoError(t, err)
	defer pool.Close()

	b := NewBuilder(WithPool(pool), WithMessageLength(4096), UseRingBuffer())

	listener := &echoOnAccept{accepted: make(chan Channel, 1)}

	srv, err := BindTCP(b, "127.0.0.1:0", listener)
	require.NoError(t, err)
	require.NoError(t, srv.ConnectFuture().Err())
	defer srv.Close()

	addr := srv.LocalAddr().String()
	cli, err := DialTCP(context.Background(), b, addr)
	require.NoError(t, err)
	require.NoError(t, cli.ConnectFuture().Err())
	defer cli.Close()

	out := cli.OutputBuffer()
	in := cli.InputBuffer()

	msg := []byte("round trip payload")
	slot := out.Next()
	n := copy(slot, msg)
	out.Publish(n)

	select {
	case <-listener.accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
	}

	replyCh := make(chan []byte, 1)
	go func() {
		reply, ok := in.Next()
		if ok {
			replyCh <- reply
		}
	}()

	select {
	case reply := <-replyCh:
		require.Equal(t, msg, reply[:len(msg)])
		in.Release()
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echo reply")
	}
}

func TestTCPFragmentedFrameReassembly(t *testing.T) {
	pool, err := selector.Open("frag", 1)
	require.NoError(t, err)
	defer pool.Close()

	b := NewBuilder(WithPool(pool), WithMessageLength(8192), UseRingBuffer())
	listener := &echoOnAccept{accepted: make(chan Channel, 1)}

	srv, err := BindTCP(b, "127.0.0.1:0", listener)
	require.NoError(t, err)
	defer srv.Close()

	addr := srv.LocalAddr().String()
	cli, err := DialTCP(context.Background(), b, addr)
	require.NoError(t, err)
	require.NoError(t, cli.ConnectFuture().Err())
	defer cli.Close()

	<-listener.accepted

	big := make([]byte, 6000)
	for i := range big {
		big[i] = byte(i)
	}
	out := cli.OutputBuffer()
	slot := out.Next()
	n := copy(slot, big)
	out.Publish(n)

	in := cli.InputBuffer()
	replyCh := make(chan []byte, 1)
	go func() {
		reply, ok := in.Next()
		if ok {
			replyCh <- reply
		}
	}()

	select {
	case reply := <-replyCh:
		require.Equal(t, big, reply[:len(big)])
		in.Release()
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fragmented echo reply")
	}
}
