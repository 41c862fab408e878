package channel

import (
	"sync"

	"github.com/dsys/snio/internal/concurrency"
)

// workerPool runs TLS handshake CPU work (certificate validation, key
// exchange) off the event-loop goroutines, delegating to
// internal/concurrency.Executor's lock-free per-worker queues plus a
// global overflow queue.
type workerPool struct {
	exec *concurrency.Executor
}

func newWorkerPool(size int) *workerPool {
	return &workerPool{exec: concurrency.NewExecutor(size)}
}

// Submit enqueues a handshake task. A handshake must still run even if
// every worker queue is momentarily full, so a rejected task runs inline
// on the calling goroutine rather than being dropped.
func (wp *workerPool) Submit(t func()) {
	if err := wp.exec.Submit(t); err != nil {
		t()
	}
}

func (wp *workerPool) Close() {
	wp.exec.Close()
}

var (
	sharedWorker     *workerPool
	sharedWorkerOnce sync.Once
)

// sharedWorkerPool lazily starts the package-wide handshake worker pool,
// sized independently of the selector pool's loop count per the original
// design's delegated-task-engine-step prescription.
func sharedWorkerPool() *workerPool {
	sharedWorkerOnce.Do(func() {
		sharedWorker = newWorkerPool(0)
	})
	return sharedWorker
}
