package ssehub

import (
	"context"
	"sync"
)

// item is a single entry in a subscriber queue: either a wire frame or the
// stop sentinel that tells the consumer the subscription is over.
type item struct {
	frame []byte
	stop  bool
}

// queue is the unbounded FIFO delivery buffer for a single subscriber.
//
// Producers never block: push appends under the lock and nudges the notify
// channel. Only the owning stream loop may call pop. The stop sentinel
// travels through the buffer like any other item, so it cannot overtake
// frames that were published before it.
type queue struct {
	mu     sync.Mutex
	items  []item
	notify chan struct{}
}

func newQueue() *queue {
	return &queue{notify: make(chan struct{}, 1)}
}

func (q *queue) push(frame []byte) {
	q.mu.Lock()
	q.items = append(q.items, item{frame: frame})
	q.mu.Unlock()
	q.wake()
}

func (q *queue) pushStop() {
	q.mu.Lock()
	q.items = append(q.items, item{stop: true})
	q.mu.Unlock()
	q.wake()
}

// wake nudges a possibly-parked consumer. The notify channel has capacity
// one, a token already in flight is enough.
func (q *queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop blocks until an item is available or ctx is done. Stale wake tokens
// are possible after a previous pop drained multiple pushes, hence the loop.
func (q *queue) pop(ctx context.Context) (item, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			it := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return it, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return item{}, ctx.Err()
		}
	}
}

// depth reports the number of pending items, for diagnostics and tests.
func (q *queue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
