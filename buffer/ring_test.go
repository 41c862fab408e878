package buffer

import (
	"testing"
	"time"
)

func TestRingQueuePublishAndConsume(t *testing.T) {
	q := NewRingQueue(4, 8)
	p := q.Producer()
	c := q.Consumer()

	slot := p.Next()
	n := copy(slot, []byte("hello"))
	p.Publish(n)

	got, ok := c.Next()
	if !ok {
		t.Fatalf("expected a published slot")
	}
	if string(got) != "hello" {
		t.Fatalf("got %q", got)
	}
	c.Release()
}

func TestRingQueueBlocksProducerWhenFull(t *testing.T) {
	q := NewRingQueue(2, 8)
	p := q.Producer()
	c := q.Consumer()

	p.Next()
	p.Publish(0)
	p.Next()
	p.Publish(0)

	done := make(chan struct{})
	go func() {
		p.Next() // should block: capacity 2, both slots published and unreleased
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("producer should have blocked on a full queue")
	case <-time.After(50 * time.Millisecond):
	}

	c.Next()
	c.Release()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("producer should have unblocked after a release")
	}
}

func TestRingQueueWakeupCallbacks(t *testing.T) {
	q := NewRingQueue(2, 8)
	p := q.Producer()
	c := q.Consumer()

	producerWoken := make(chan struct{}, 1)
	consumerWoken := make(chan struct{}, 1)
	p.AttachWakeup(func() { producerWoken <- struct{}{} })
	c.AttachWakeup(func() { consumerWoken <- struct{}{} })

	p.Next()
	p.Publish(0)
	select {
	case <-consumerWoken:
	case <-time.After(time.Second):
		t.Fatalf("expected consumer wakeup on publish")
	}

	c.Next()
	c.Release()
	select {
	case <-producerWoken:
	case <-time.After(time.Second):
		t.Fatalf("expected producer wakeup on release")
	}
}

func TestRingQueueCloseUnblocksConsumer(t *testing.T) {
	q := NewRingQueue(2, 8)
	c := q.Consumer()
	done := make(chan bool, 1)
	go func() {
		_, ok := c.Next()
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	select {
	case ok := <-done:
		if ok {
			t.Fatalf("expected Next to report closed (ok=false)")
		}
	case <-time.After(time.Second):
		t.Fatalf("Close should unblock a pending consumer Next")
	}
}
