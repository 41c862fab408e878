package concurrency

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestExecutorRunsSubmittedTasks(t *testing.T) {
	ex := NewExecutor(4)
	defer ex.Close()

	var counter int64
	task := func() { atomic.AddInt64(&counter, 1) }

	for i := 0; i < 50; i++ {
		if err := ex.Submit(task); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt64(&counter) == 50 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if got := atomic.LoadInt64(&counter); got != 50 {
		t.Fatalf("executed %d tasks, want 50", got)
	}
}

func TestExecutorSubmitAfterCloseFails(t *testing.T) {
	ex := NewExecutor(2)
	ex.Close()

	if err := ex.Submit(func() {}); err != ErrExecutorClosed {
		t.Fatalf("Submit after Close = %v, want ErrExecutorClosed", err)
	}
}

func TestLockFreeQueueFIFOOrder(t *testing.T) {
	q := NewLockFreeQueue[int](4)
	for i := 0; i < 4; i++ {
		if !q.Enqueue(i) {
			t.Fatalf("Enqueue(%d) failed", i)
		}
	}
	if q.Enqueue(99) {
		t.Fatal("Enqueue into a full queue should fail")
	}
	for i := 0; i < 4; i++ {
		v, ok := q.Dequeue()
		if !ok || v != i {
			t.Fatalf("Dequeue() = %d, %v, want %d, true", v, ok, i)
		}
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatal("Dequeue from an empty queue should fail")
	}
}
