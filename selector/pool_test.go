package selector

import (
	"testing"
	"time"
)

func TestPoolOpenAndClose(t *testing.T) {
	p, err := Open("test", 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case <-p.CloseFuture().Done():
	case <-time.After(time.Second):
		t.Fatalf("expected close future to complete after Close")
	}
}

func TestPoolNextRoundRobins(t *testing.T) {
	p, err := Open("rr", 3)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	seen := map[*LoopExecutor]int{}
	for i := 0; i < 9; i++ {
		seen[p.Next()]++
	}
	if len(seen) != 3 {
		t.Fatalf("expected all 3 loops to be visited, saw %d", len(seen))
	}
	for l, count := range seen {
		if count != 3 {
			t.Fatalf("expected even round-robin distribution, loop %p got %d", l, count)
		}
	}
}

func TestLoopExecutorRunsSubmittedTasks(t *testing.T) {
	p, err := Open("tasks", 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	done := make(chan struct{})
	p.Next().Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected submitted task to run")
	}
}
