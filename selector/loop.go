package selector

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/hashicorp/go-hclog"

	"github.com/dsys/snio/reactor"
)

// task is a unit of key-mutating work that must run on its owning loop.
type task func()

// LoopExecutor owns one reactor and a growable FIFO of pending tasks.
// Exactly one goroutine (started by Pool.Open) calls run for a given
// LoopExecutor; every other goroutine reaches it only through Submit.
type LoopExecutor struct {
	id      int
	reactor reactor.Reactor
	log     hclog.Logger
	pollMS  atomic.Int64

	mu    sync.Mutex
	tasks *queue.Queue

	wake    chan struct{}
	stopCh  chan struct{}
	stopped int32

	backoffNs int64
}

func newLoopExecutor(id int, r reactor.Reactor, log hclog.Logger, pollMS int) *LoopExecutor {
	l := &LoopExecutor{
		id:        id,
		reactor:   r,
		log:       log,
		tasks:     queue.New(),
		wake:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		backoffNs: 1,
	}
	l.pollMS.Store(int64(pollMS))
	return l
}

// SetPollTimeout changes the reactor poll timeout this loop uses on its
// next iteration, for a control.ConfigStore-driven hot reload.
func (l *LoopExecutor) SetPollTimeout(ms int) {
	l.pollMS.Store(int64(ms))
}

// PendingTasks reports the number of tasks currently queued, for a
// control.DebugProbes snapshot.
func (l *LoopExecutor) PendingTasks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tasks.Length()
}

// Submit enqueues a task to run on this loop. Safe to call from any
// goroutine. It does not interrupt a Poll in progress: the task runs once
// the current Poll returns, at the latest after the poll timeout.
func (l *LoopExecutor) Submit(t task) {
	l.mu.Lock()
	l.tasks.Add(t)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Reactor exposes the loop's reactor for registration calls made while
// already running on this loop (e.g. from within a submitted task).
func (l *LoopExecutor) Reactor() reactor.Reactor {
	return l.reactor
}

const taskBatch = 256

func (l *LoopExecutor) drainTasks() int {
	n := 0
	for n < taskBatch {
		l.mu.Lock()
		if l.tasks.Length() == 0 {
			l.mu.Unlock()
			break
		}
		t := l.tasks.Remove().(task)
		l.mu.Unlock()
		l.runTask(t)
		n++
	}
	return n
}

func (l *LoopExecutor) runTask(t task) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("task panic", "loop", l.id, "recover", r)
		}
	}()
	t()
}

// run is the loop's main body: drain tasks, poll for readiness, repeat
// until stopped. Mirrors the teacher's EventLoop.Run/processBatch/
// adaptiveBackoff shape, but delegates readiness waiting to reactor.Poll
// instead of a busy-spun ring buffer.
func (l *LoopExecutor) run() {
	defer atomic.StoreInt32(&l.stopped, 1)
	for {
		select {
		case <-l.stopCh:
			return
		default:
		}

		processed := l.drainTasks()

		n, err := l.reactor.Poll(int(l.pollMS.Load()))
		if err != nil {
			l.log.Error("poll failed", "loop", l.id, "error", err)
		}

		select {
		case <-l.wake:
		default:
		}

		if processed == 0 && n == 0 {
			l.adaptiveBackoff()
		} else {
			atomic.StoreInt64(&l.backoffNs, 1)
		}
	}
}

func (l *LoopExecutor) adaptiveBackoff() {
	backoff := atomic.LoadInt64(&l.backoffNs)
	if backoff < 1000 {
		time.Sleep(time.Microsecond)
	} else {
		runtime.Gosched()
	}
	next := backoff * 2
	if next > 1_000_000 {
		next = 1_000_000
	}
	atomic.StoreInt64(&l.backoffNs, next)
}

func (l *LoopExecutor) stop() {
	close(l.stopCh)
	for atomic.LoadInt32(&l.stopped) == 0 {
		time.Sleep(time.Microsecond)
	}
	_ = l.reactor.Close()
}
