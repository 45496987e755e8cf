package transcription

import "sync"

// JobQueue feeds message ids from producers to the single consumer.
// Enqueue must never block the request path. The interface leaves room
// for a durable implementation (a persisted work table) to replace the
// in-memory one without touching the consumer.
type JobQueue interface {
	Enqueue(messageId int64)
	Jobs() <-chan int64
	Close()
}

// MemoryQueue is an unbounded FIFO: a small pump goroutine moves ids
// from a growable buffer into the output channel, so Enqueue only ever
// appends under a mutex.
type MemoryQueue struct {
	mu     sync.Mutex
	buf    []int64
	wake   chan struct{}
	out    chan int64
	done   chan struct{}
	closed bool
}

func NewMemoryQueue() *MemoryQueue {
	q := &MemoryQueue{
		wake: make(chan struct{}, 1),
		out:  make(chan int64),
		done: make(chan struct{}),
	}
	go q.pump()
	return q
}

func (q *MemoryQueue) Enqueue(messageId int64) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.buf = append(q.buf, messageId)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) Jobs() <-chan int64 {
	return q.out
}

func (q *MemoryQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	close(q.done)
}

func (q *MemoryQueue) pump() {
	defer close(q.out)

	for {
		q.mu.Lock()
		var next int64
		have := len(q.buf) > 0
		if have {
			next = q.buf[0]
			q.buf = q.buf[1:]
		}
		q.mu.Unlock()

		if have {
			select {
			case q.out <- next:
			case <-q.done:
				return
			}
			continue
		}

		select {
		case <-q.wake:
		case <-q.done:
			return
		}
	}
}
