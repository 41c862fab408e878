package channel

import "github.com/dsys/snio/buffer"

// provider bundles the four buffer endpoints a processor needs: appOut/
// chnIn form the send path, chnOut/appIn form the receive path. Naming
// matches the original's MessageBufferProvider accessor names.
type provider struct {
	appOut buffer.Producer
	chnIn  buffer.Consumer
	chnOut buffer.Producer
	appIn  buffer.Consumer

	sendQueue buffer.Queue
	recvQueue buffer.Queue
}

// newProvider allocates the send and receive queues per the builder's
// queue-kind and buffer-capacity settings. recvQueue may be shared across
// channels when the builder requested a single fan-in input buffer.
func (b *Builder) newProvider(shared buffer.Queue) *provider {
	send := b.newQueue()
	recv := shared
	if recv == nil {
		recv = b.newQueue()
	}
	return &provider{
		appOut:    send.Producer(),
		chnIn:     send.Consumer(),
		chnOut:    recv.Producer(),
		appIn:     recv.Consumer(),
		sendQueue: send,
		recvQueue: recv,
	}
}

func (b *Builder) newQueue() buffer.Queue {
	slotSize := b.messageLen
	if slotSize <= 0 {
		slotSize = 65536
	}
	alloc := buffer.AllocHeap
	if b.alloc == bufferDirect {
		alloc = buffer.AllocDirect
	}
	switch b.queue {
	case queueBlocking:
		return buffer.NewBlockingQueueAlloc(b.bufferCapacity, slotSize, alloc)
	default:
		return buffer.NewRingQueueAlloc(b.bufferCapacity, slotSize, alloc)
	}
}
