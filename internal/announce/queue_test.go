package announce

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/saviobatista/sbs-approach/internal/types"
)

func ann(text string) types.Announcement {
	return types.Announcement{Callsign: text, Text: text}
}

func TestQueue_PublishReceive(t *testing.T) {
	q := NewQueue(4)
	ctx := context.Background()

	if err := q.Publish(ctx, ann("UAL123 from Chicago")); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}
	if q.Len() != 1 {
		t.Errorf("Expected 1 queued item, got %d", q.Len())
	}

	got, ok, err := q.Receive(ctx, time.Second)
	if err != nil || !ok {
		t.Fatalf("Receive() = ok %v, err %v", ok, err)
	}
	if got.Text != "UAL123 from Chicago" {
		t.Errorf("Expected UAL123 from Chicago, got %q", got.Text)
	}
	q.Done()
}

func TestQueue_ReceiveTimeout(t *testing.T) {
	q := NewQueue(1)

	start := time.Now()
	_, ok, err := q.Receive(context.Background(), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if ok {
		t.Error("Expected timeout with no item")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Receive returned before the timeout")
	}
}

func TestQueue_ReceiveCancelled(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, ok, err := q.Receive(ctx, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if ok {
		t.Error("Cancelled receive must not report an item")
	}
}

func TestQueue_ReceiveCancelledKeepsQueuedItem(t *testing.T) {
	q := NewQueue(1)
	if err := q.Publish(context.Background(), ann("UAL123")); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// both cases are ready, so either may win; the item must never vanish
	for i := 0; i < 100; i++ {
		a, ok, err := q.Receive(ctx, time.Minute)
		if ok {
			if err != nil {
				t.Fatalf("Received %q together with error %v", a.Text, err)
			}
			if a.Text != "UAL123" {
				t.Fatalf("Expected UAL123, got %q", a.Text)
			}
			q.Done()
			return
		}
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Expected context.Canceled, got %v", err)
		}
		if q.Len() != 1 {
			t.Fatalf("Cancelled receive dropped the queued item")
		}
	}

	a, ok, err := q.Receive(context.Background(), time.Second)
	if err != nil || !ok || a.Text != "UAL123" {
		t.Errorf("Expected the item still queued, got %q ok=%v err=%v", a.Text, ok, err)
	}
}

func TestQueue_PublishAfterClose(t *testing.T) {
	q := NewQueue(1)
	q.Close()

	if err := q.Publish(context.Background(), ann("UAL1")); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestQueue_PublishBlocksWhenFull(t *testing.T) {
	q := NewQueue(1)
	if err := q.Publish(context.Background(), ann("UAL1")); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Publish(ctx, ann("UAL2")); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}

	// The abandoned publish must not hold up a flush.
	go func() {
		_, _, _ = q.Receive(context.Background(), time.Second)
		q.Done()
	}()
	flushCtx, flushCancel := context.WithTimeout(context.Background(), time.Second)
	defer flushCancel()
	if err := q.Flush(flushCtx); err != nil {
		t.Errorf("Flush() failed: %v", err)
	}
}

func TestQueue_FlushWaitsForConsumer(t *testing.T) {
	q := NewQueue(8)
	ctx := context.Background()

	for _, cs := range []string{"UAL1", "UAL2", "UAL3"} {
		if err := q.Publish(ctx, ann(cs)); err != nil {
			t.Fatalf("Publish() failed: %v", err)
		}
	}
	q.Close()

	var (
		mu   sync.Mutex
		seen []string
	)
	go func() {
		for {
			a, ok, err := q.Receive(ctx, 50*time.Millisecond)
			if err != nil || !ok {
				return
			}
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			seen = append(seen, a.Text)
			mu.Unlock()
			q.Done()
		}
	}()

	flushCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := q.Flush(flushCtx); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Errorf("Expected 3 consumed announcements before flush returned, got %d", len(seen))
	}
}

func TestQueue_FlushEmpty(t *testing.T) {
	q := NewQueue(1)
	if err := q.Flush(context.Background()); err != nil {
		t.Errorf("Flush() on an empty queue failed: %v", err)
	}
}

func TestQueue_FlushCancelled(t *testing.T) {
	q := NewQueue(1)
	if err := q.Publish(context.Background(), ann("UAL1")); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := q.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := NewQueue(4)
	ctx := context.Background()

	const producers, each = 4, 25
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				if err := q.Publish(ctx, ann("X")); err != nil {
					t.Errorf("Publish() failed: %v", err)
					return
				}
			}
		}()
	}

	received := 0
	for received < producers*each {
		_, ok, err := q.Receive(ctx, time.Second)
		if err != nil || !ok {
			t.Fatalf("Receive() stalled after %d items", received)
		}
		q.Done()
		received++
	}
	wg.Wait()

	if err := q.Flush(ctx); err != nil {
		t.Errorf("Flush() failed: %v", err)
	}
}
