package selector

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"

	"github.com/dsys/snio/control"
	"github.com/dsys/snio/future"
	"github.com/dsys/snio/reactor"
)

// Option configures a Pool at Open time.
type Option func(*options)

type options struct {
	pollMS int
	logger hclog.Logger
	config *control.ConfigStore
	probes *control.DebugProbes
}

// WithPollTimeout overrides the default 1ms reactor poll timeout.
func WithPollTimeout(ms int) Option {
	return func(o *options) { o.pollMS = ms }
}

// WithLogger overrides the pool's hclog logger.
func WithLogger(l hclog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithConfigStore attaches a control.ConfigStore whose "poll_timeout_ms"
// key drives every loop's poll timeout on each reload, without
// restarting the pool.
func WithConfigStore(cs *control.ConfigStore) Option {
	return func(o *options) { o.config = cs }
}

// WithDebugProbes registers a per-loop pending-task-count probe under
// "selector.pool.<name>" for runtime inspection.
func WithDebugProbes(dp *control.DebugProbes) Option {
	return func(o *options) { o.probes = dp }
}

// Pool owns a fixed set of event-loop goroutines and round-robins new
// channel registrations across them.
type Pool struct {
	name  string
	loops []*LoopExecutor
	next  atomic.Uint64

	log      hclog.Logger
	closed   atomic.Bool
	closeFut *future.Future

	wg sync.WaitGroup
}

// Open starts threads loops, each backed by a platform reactor.
func Open(name string, threads int, opts ...Option) (*Pool, error) {
	if threads <= 0 {
		return nil, fmt.Errorf("selector: threads must be > 0")
	}
	o := &options{pollMS: 1, logger: control.NewLogger("snio.pool").With("pool", name)}
	for _, opt := range opts {
		opt(o)
	}

	p := &Pool{
		name:     name,
		log:      o.logger,
		closeFut: future.New(),
	}

	loops := make([]*LoopExecutor, threads)
	for i := 0; i < threads; i++ {
		r, err := reactor.NewReactor()
		if err != nil {
			for j := 0; j < i; j++ {
				_ = loops[j].reactor.Close()
			}
			return nil, fmt.Errorf("selector: open loop %d: %w", i, err)
		}
		loops[i] = newLoopExecutor(i, r, o.logger.With("loop", i), o.pollMS)
	}
	p.loops = loops

	if o.config != nil {
		o.config.OnReload(func() {
			snap := o.config.GetSnapshot()
			ms, ok := snap["poll_timeout_ms"].(int)
			if !ok {
				return
			}
			for _, l := range p.loops {
				l.SetPollTimeout(ms)
			}
		})
	}
	if o.probes != nil {
		o.probes.RegisterProbe("selector.pool."+name, func() any {
			depths := make(map[int]int, len(p.loops))
			for _, l := range p.loops {
				depths[l.id] = l.PendingTasks()
			}
			return depths
		})
	}

	for _, l := range loops {
		l := l
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			l.run()
		}()
	}

	go func() {
		p.wg.Wait()
		p.closeFut.Success()
	}()

	return p, nil
}

// Next returns the next loop in round-robin order, for registering a new
// channel.
func (p *Pool) Next() *LoopExecutor {
	idx := p.next.Add(1) - 1
	return p.loops[idx%uint64(len(p.loops))]
}

// Bind submits a task on the target loop (via key.Loop, pre-assigned by
// the caller using Next) that registers a listening channel and its
// acceptor for OnAcceptable notifications.
func (p *Pool) Bind(key *SelectionKey, fd uintptr, events reactor.FDEventType) *future.Future {
	fut := future.New()
	key.Loop.Submit(func() {
		if p.closed.Load() {
			fut.Fail(fmt.Errorf("selector: pool closed"))
			return
		}
		cb := func(fd uintptr, ev reactor.FDEventType) {
			if ev&reactor.EventRead != 0 && key.Acceptor != nil {
				key.Acceptor.OnAcceptable(key)
			}
		}
		if err := key.Loop.reactor.Register(fd, events, cb); err != nil {
			fut.Fail(err)
			return
		}
		key.FD = fd
		key.Interest = events
		fut.Success()
	})
	return fut
}

// Connect submits a task that registers a connecting/connected channel's
// processor for OnReadable/OnWritable notifications.
func (p *Pool) Connect(key *SelectionKey, fd uintptr, events reactor.FDEventType) *future.Future {
	return p.register(key, fd, events)
}

// Register submits a task that registers an already-established channel's
// processor, without going through a connect handshake.
func (p *Pool) Register(key *SelectionKey, fd uintptr, events reactor.FDEventType) *future.Future {
	return p.register(key, fd, events)
}

func (p *Pool) register(key *SelectionKey, fd uintptr, events reactor.FDEventType) *future.Future {
	fut := future.New()
	key.Loop.Submit(func() {
		if p.closed.Load() {
			fut.Fail(fmt.Errorf("selector: pool closed"))
			return
		}
		cb := func(fd uintptr, ev reactor.FDEventType) {
			defer func() {
				if r := recover(); r != nil && key.Processor != nil {
					p.log.Error("processor panic", "fd", fd, "recover", r)
					key.Processor.OnClosed(key, fmt.Errorf("selector: processor panic: %v", r))
				}
			}()
			if ev&reactor.EventError != 0 && key.Processor != nil {
				key.Processor.OnClosed(key, fmt.Errorf("selector: fd error"))
				return
			}
			if ev&reactor.EventRead != 0 && key.Processor != nil {
				key.Processor.OnReadable(key)
			}
			if ev&reactor.EventWrite != 0 && key.Processor != nil {
				key.Processor.OnWritable(key)
			}
		}
		if err := key.Loop.reactor.Register(fd, events, cb); err != nil {
			fut.Fail(err)
			return
		}
		key.FD = fd
		key.Interest = events
		fut.Success()
	})
	return fut
}

// CancelBind enqueues a task on key's owning loop that cancels the key,
// runs task, and completes fut with task's result.
func (p *Pool) CancelBind(key *SelectionKey, fut *future.Future, task func() error) {
	key.Loop.Submit(func() {
		_ = key.Cancel()
		if err := task(); err != nil {
			fut.Fail(err)
			return
		}
		fut.Success()
	})
}

// CancelConnect enqueues cancellation tasks for a channel's paired
// read/write selection keys (they may share one loop or differ across
// loops for a split-direction channel) and completes both futures.
func (p *Pool) CancelConnect(readKey *SelectionKey, readFut *future.Future, writeKey *SelectionKey, writeFut *future.Future) {
	readKey.Loop.Submit(func() {
		_ = readKey.Cancel()
		readFut.Success()
	})
	if writeKey != nil && writeKey != readKey {
		writeKey.Loop.Submit(func() {
			_ = writeKey.Cancel()
			writeFut.Success()
		})
	} else if writeFut != nil {
		writeFut.Success()
	}
}

// CloseFuture completes once every loop goroutine has exited.
func (p *Pool) CloseFuture() *future.Future {
	return p.closeFut
}

// Close signals every loop to stop and blocks until all have exited.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, l := range p.loops {
		l.stop()
	}
	p.wg.Wait()
	return nil
}
