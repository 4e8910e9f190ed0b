package controller

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Send after Close, and by Receive once a closed
// queue has been drained.
var ErrQueueClosed = errors.New("controller: queue closed")

// Queue is an unbounded FIFO of messages. Sending never blocks; receiving
// waits for the next message. Any number of goroutines may send, one receives.
type Queue struct {
	mu      sync.Mutex
	waiting []Message
	closed  bool
	ready   chan struct{}
	done    chan struct{}
}

func NewQueue() *Queue {
	return &Queue{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Send appends msg to the queue.
func (q *Queue) Send(msg Message) error {
	if msg == nil {
		return errors.New("controller: nil message")
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.waiting = append(q.waiting, msg)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// Receive blocks until a message is available, the queue is closed and
// empty, or ctx is done.
func (q *Queue) Receive(ctx context.Context) (Message, error) {
	for {
		q.mu.Lock()
		if len(q.waiting) > 0 {
			msg := q.waiting[0]
			q.waiting[0] = nil
			q.waiting = q.waiting[1:]
			q.mu.Unlock()
			return msg, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.done:
		case <-q.ready:
		}
	}
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

// Close stops the queue accepting messages. Messages already queued can
// still be received.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}
