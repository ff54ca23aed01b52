// Package delivery carries render results from a session to one consumer.
//
// A Channel is a bounded FIFO. The producer blocks while it is full, which
// throttles rendering to the pace of the viewer. When the consumer departs the
// producer's next push fails, which is how a session learns it should stop.
package delivery

import (
	"context"
	"sync"

	"github.com/conneroisu/glance/internal/errors"
	"github.com/conneroisu/glance/internal/types"
)

// DefaultCapacity is the number of results buffered before Push blocks.
const DefaultCapacity = 30

var (
	// ErrConsumerGone is returned by Push after the consumer called Close.
	ErrConsumerGone = errors.NewDeliveryError(errors.ErrCodeConsumerGone, "consumer disconnected")
	// ErrSendClosed is returned by Push after CloseSend.
	ErrSendClosed = errors.NewDeliveryError(errors.ErrCodeSendClosed, "send side closed")
)

// Channel is a bounded, ordered queue of render results.
type Channel struct {
	items chan types.RenderResult
	done  chan struct{}

	mu         sync.RWMutex
	sendClosed bool

	sendOnce sync.Once
	doneOnce sync.Once
}

// New creates a Channel buffering up to capacity results. A capacity below
// one selects DefaultCapacity.
func New(capacity int) *Channel {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Channel{
		items: make(chan types.RenderResult, capacity),
		done:  make(chan struct{}),
	}
}

// Push enqueues r, blocking while the channel is full. It fails with
// ErrConsumerGone once the consumer has departed, with ErrSendClosed after
// CloseSend, or with the context error.
func (c *Channel) Push(ctx context.Context, r types.RenderResult) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.sendClosed {
		return ErrSendClosed
	}

	select {
	case <-c.done:
		return ErrConsumerGone
	default:
	}

	select {
	case c.items <- r:
		return nil
	case <-c.done:
		return ErrConsumerGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseSend marks the end of the stream. Results() is closed once the
// buffered results have been received. Only the producer calls it, and it
// is safe to call more than once.
func (c *Channel) CloseSend() {
	c.sendOnce.Do(func() {
		c.mu.Lock()
		c.sendClosed = true
		close(c.items)
		c.mu.Unlock()
	})
}

// Results returns the receive side.
func (c *Channel) Results() <-chan types.RenderResult {
	return c.items
}

// Close signals that the consumer departed. Pending and future pushes fail.
func (c *Channel) Close() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Done is closed when the consumer departs.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Len reports the number of buffered results.
func (c *Channel) Len() int {
	return len(c.items)
}

// Cap reports the capacity.
func (c *Channel) Cap() int {
	return cap(c.items)
}
