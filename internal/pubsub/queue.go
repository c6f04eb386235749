package pubsub

import "sync"

// Queue is an unbounded FIFO of messages for a single subscriber.
// Pushes never block, so a slow consumer delays nobody but itself.
type Queue struct {
	mu     sync.Mutex
	items  []Message
	closed bool

	// notify wakes a blocked Pop; buffered so a push never waits on
	// the consumer to be mid-select.
	notify chan struct{}
	done   chan struct{}
}

func newQueue() *Queue {
	return &Queue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push appends a message. Pushing to a closed queue silently drops the
// message and reports false.
func (q *Queue) Push(msg Message) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, msg)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Pop removes the oldest message, blocking until one arrives or the
// queue is closed. It reports false only when the queue is closed and
// drained.
func (q *Queue) Pop() (Message, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return msg, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return Message{}, false
		}

		select {
		case <-q.notify:
		case <-q.done:
			// Loop once more to drain anything racing with close.
		}
	}
}

// TryPop removes the oldest message without blocking.
func (q *Queue) TryPop() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Message{}, false
	}
	msg := q.items[0]
	q.items = q.items[1:]
	return msg, true
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the queue. Idempotent; a blocked Pop returns once the
// remaining messages are drained.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.done)
}
