package channel

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dsys/snio/selector"
)

func selfSignedTLSConfig(t *testing.T) (*tls.Config, *tls.Config) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "snio-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	pool := x509.NewCertPool()
	pool.AddCert(cert)

	tlsCert := tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
	}
	serverCfg := &tls.Config{Certificates: []tls.Certificate{tlsCert}}
	clientCfg := &tls.Config{RootCAs: pool, ServerName: "localhost"}
	return serverCfg, clientCfg
}

func TestTLSHandshakeDataAndClose(t *testing.T) {
	serverCfg, clientCfg := selfSignedTLSConfig(t)

	pool, err := selector.Open("tls-it", 1)
	require.NoError(t, err)
	defer pool.Close()

	serverBuilder := NewBuilder(WithPool(pool), WithMessageLength(4096), UseRingBuffer(), WithTLSConfig(serverCfg))
	listener := &echoOnAccept{accepted: make(chan Channel, 1)}

	srv, err := BindTLS(serverBuilder, "127.0.0.1:0", listener)
	require.NoError(t, err)
	defer srv.Close()

	addr := srv.LocalAddr().String()
	clientBuilder := NewBuilder(WithPool(pool), WithMessageLength(4096), UseRingBuffer(), WithTLSConfig(clientCfg))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cli, err := DialTLS(ctx, clientBuilder, addr)
	require.NoError(t, err)

	connectErrCh := make(chan error, 1)
	go func() { connectErrCh <- cli.ConnectFuture().Err() }()
	select {
	case err := <-connectErrCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("tls handshake never completed")
	}
	defer cli.Close()

	select {
	case <-listener.accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("server never accepted the tls connection")
	}

	msg := []byte("encrypted payload")
	out := cli.OutputBuffer()
	slot := out.Next()
	n := copy(slot, msg)
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
		require.Equal(t, msg, reply[:len(msg)])
		in.Release()
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for tls echo reply")
	}

	require.NoError(t, cli.Close())
}
