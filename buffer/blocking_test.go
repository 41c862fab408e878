package buffer

import (
	"testing"
	"time"
)

func TestBlockingQueuePublishAndConsume(t *testing.T) {
	q := NewBlockingQueue(4, 8)
	p := q.Producer()
	c := q.Consumer()

	slot := p.Next()
	n := copy(slot, []byte("world"))
	p.Publish(n)

	got, ok := c.Next()
	if !ok {
		t.Fatalf("expected a published slot")
	}
	if string(got) != "world" {
		t.Fatalf("got %q", got)
	}
	c.Release()
}

func TestBlockingQueueFIFOOrder(t *testing.T) {
	q := NewBlockingQueue(4, 8)
	p := q.Producer()
	c := q.Consumer()

	for i := 0; i < 3; i++ {
		slot := p.Next()
		slot[0] = byte(i)
		p.Publish(1)
	}
	for i := 0; i < 3; i++ {
		got, ok := c.Next()
		if !ok || got[0] != byte(i) {
			t.Fatalf("expected FIFO order, got %v at step %d", got[0], i)
		}
		c.Release()
	}
}

func TestBlockingQueueCloseUnblocksConsumer(t *testing.T) {
	q := NewBlockingQueue(2, 8)
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
