package watcher

import (
	"context"
	"sync"
)

// eventQueue is an unbounded FIFO between a backend goroutine and the
// consumer calling Next. Backends never block on a slow consumer.
type eventQueue struct {
	mu     sync.Mutex
	events []RawEvent
	err    error
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev RawEvent) {
	q.mu.Lock()
	if q.err != nil {
		q.mu.Unlock()
		return
	}
	q.events = append(q.events, ev)
	q.mu.Unlock()
	q.wake()
}

// fail records a terminal error. Only the first one is kept; events queued
// before it are still delivered.
func (q *eventQueue) fail(err error) {
	q.mu.Lock()
	if q.err == nil {
		q.err = err
	}
	q.mu.Unlock()
	q.wake()
}

func (q *eventQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) next(ctx context.Context) (RawEvent, error) {
	for {
		q.mu.Lock()
		if len(q.events) > 0 {
			ev := q.events[0]
			q.events[0] = RawEvent{}
			q.events = q.events[1:]
			q.mu.Unlock()
			return ev, nil
		}
		if q.err != nil {
			err := q.err
			q.mu.Unlock()
			return RawEvent{}, err
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return RawEvent{}, ctx.Err()
		case <-q.signal:
		}
	}
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
