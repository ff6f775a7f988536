// Package announce carries announcements from the announcer task to the
// presentation task.
package announce

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/saviobatista/sbs-approach/internal/types"
)

// ErrClosed is returned when publishing to a closed queue
var ErrClosed = errors.New("announcement queue closed")

// DefaultSize is the default queue capacity
const DefaultSize = 64

// Queue is a bounded multi-producer, single-consumer announcement queue.
// Every item handed out by Receive must be acknowledged with Done so that
// Flush can tell when the consumer has caught up.
type Queue struct {
	ch chan types.Announcement

	mu      sync.Mutex
	closed  bool
	pending int
	waiters []chan struct{}
}

// NewQueue creates a queue holding at most size items
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultSize
	}
	return &Queue{ch: make(chan types.Announcement, size)}
}

// Publish enqueues an announcement, blocking while the queue is full
func (q *Queue) Publish(ctx context.Context, a types.Announcement) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.pending++
	q.mu.Unlock()

	select {
	case q.ch <- a:
		return nil
	case <-ctx.Done():
		q.Done()
		return ctx.Err()
	}
}

// Receive waits up to timeout for the next announcement. It returns false
// when the timeout elapsed with nothing to show. A dequeued item is always
// returned, never discarded in favour of a context error.
func (q *Queue) Receive(ctx context.Context, timeout time.Duration) (types.Announcement, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case a := <-q.ch:
		return a, true, nil
	case <-timer.C:
		return types.Announcement{}, false, nil
	case <-ctx.Done():
		return types.Announcement{}, false, ctx.Err()
	}
}

// Done acknowledges one received announcement
func (q *Queue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending == 0 {
		return
	}
	q.pending--
	if q.pending == 0 {
		for _, w := range q.waiters {
			close(w)
		}
		q.waiters = nil
	}
}

// Close stops accepting new announcements. Items already queued can still
// be received.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Flush blocks until every published announcement has been acknowledged
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	if q.pending == 0 {
		q.mu.Unlock()
		return nil
	}
	w := make(chan struct{})
	q.waiters = append(q.waiters, w)
	q.mu.Unlock()

	select {
	case <-w:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of announcements waiting to be received
func (q *Queue) Len() int {
	return len(q.ch)
}
