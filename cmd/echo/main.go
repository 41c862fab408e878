// Command echo
// Author: momentics <momentics@gmail.com>
//
// TCP echo client/server demo exercising a selector.Pool, channel.Builder,
// and the default int-header codec end to end. Adapted from the
// TCPEchoClient/TCPOnewayServer demo pair.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dsys/snio/channel"
	"github.com/dsys/snio/control"
	"github.com/dsys/snio/selector"
)

func main() {
	mode := flag.String("mode", "server", "server or client")
	addr := flag.String("addr", "localhost:12345", "address to bind or dial")
	threads := flag.Int("threads", 1, "selector pool loop count")
	length := flag.Int("length", 1024, "maximum message body length")
	pollMS := flag.Int("poll-ms", 1, "initial reactor poll timeout in milliseconds")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address")
	flag.Parse()

	config := control.NewConfigStore()
	probes := control.NewDebugProbes()
	control.RegisterPlatformProbes(probes)
	metrics := control.NewMetricsRegistry()

	control.RegisterReloadHook(func() {
		log.Printf("config reloaded: %v", config.GetSnapshot())
	})

	pool, err := selector.Open("echo", *threads,
		selector.WithConfigStore(config),
		selector.WithDebugProbes(probes),
	)
	if err != nil {
		log.Fatalf("open pool: %v", err)
	}
	defer pool.Close()
	config.SetConfig(map[string]any{"poll_timeout_ms": *pollMS})

	builder := channel.NewBuilder(
		channel.WithPool(pool),
		channel.WithMessageLength(*length),
		channel.UseRingBuffer(),
		channel.WithMetrics(metrics),
	)

	if *metricsAddr != "" {
		exporter := control.NewExporter(metrics)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(exporter.Registry(), promhttp.HandlerOpts{}))
		go func() {
			for range time.Tick(5 * time.Second) {
				exporter.Refresh()
			}
		}()
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	switch *mode {
	case "server":
		go reportStatus(probes, metrics)
		runServer(builder, *addr)
	case "client":
		runClient(builder, *addr, *length)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(1)
	}
}

// reportStatus periodically logs the selector pool's per-loop pending task
// counts and the channel builder's transfer counters, exercising
// control.DebugProbes and control.MetricsRegistry for a running server.
func reportStatus(probes *control.DebugProbes, metrics *control.MetricsRegistry) {
	for range time.Tick(30 * time.Second) {
		log.Printf("debug: %v", probes.DumpState())
		log.Printf("metrics: %v", metrics.GetSnapshot())
	}
}

// echoListener copies every received message straight back to its
// channel's output queue, with one goroutine per accepted connection.
type echoListener struct{}

func (echoListener) ConnectionAccepted(remote net.Addr, ch channel.Channel) {
	log.Printf("accepted %s", remote)
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
}

func runServer(b *channel.Builder, addr string) {
	ch, err := channel.BindTCP(b, addr, echoListener{})
	if err != nil {
		log.Fatalf("bind %s: %v", addr, err)
	}
	if err := ch.ConnectFuture().Err(); err != nil {
		log.Fatalf("bind future: %v", err)
	}
	log.Printf("echo server listening on %s", addr)
	<-ch.CloseFuture().Done()
}

func runClient(b *channel.Builder, addr string, length int) {
	ctx := context.Background()
	ch, err := channel.DialTCP(ctx, b, addr)
	if err != nil {
		log.Fatalf("dial %s: %v", addr, err)
	}
	if err := ch.ConnectFuture().Err(); err != nil {
		log.Fatalf("connect future: %v", err)
	}

	out := ch.OutputBuffer()
	in := ch.InputBuffer()

	payload := make([]byte, length)
	for i := range payload {
		payload[i] = byte(i)
	}

	slot := out.Next()
	n := copy(slot, payload)
	out.Publish(n)

	reply, ok := in.Next()
	if !ok {
		log.Fatalf("channel closed before echo reply")
	}
	fmt.Printf("echoed %d bytes\n", len(reply))
	in.Release()

	_ = ch.Close()
}
