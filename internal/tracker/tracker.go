package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/saviobatista/sbs-approach/internal/announce"
	"github.com/saviobatista/sbs-approach/internal/types"
	"github.com/saviobatista/sbs-approach/pkg/logger"
)

// Registry is the aircraft store the tracker drives. airspace.Registry
// implements it.
type Registry interface {
	Ingest(id string, report types.PositionReport) error
	CollectAnnouncements() []types.Announcement
	EvictStale() int
	Len() int
}

// Publisher fans announcements out to other processes. nats.Client
// implements it.
type Publisher interface {
	PublishAnnouncement(a types.Announcement) error
}

// Pruner drops partial state older than a cutoff. parser.Assembler
// implements it.
type Pruner interface {
	Prune(maxAge time.Duration) int
}

// Toucher is told a loop is making progress. watchdog.Task implements it.
type Toucher interface {
	Touch()
}

type nopToucher struct{}

func (nopToucher) Touch() {}

// Tracker connects the registry to the announcement queue and runs the
// periodic announcer and evictor passes. Announcements collected from the
// registry but not yet queued are kept in a backlog, since the registry
// hands each one out only once.
type Tracker struct {
	mu      sync.Mutex
	backlog []types.Announcement

	registry   Registry
	queue      *announce.Queue
	publisher  Publisher
	pruners    []Pruner
	staleAfter time.Duration
	logger     *logger.Logger
}

// New creates a tracker
func New(registry Registry, queue *announce.Queue, staleAfter time.Duration, log *logger.Logger) *Tracker {
	if log == nil {
		log = logger.Nop()
	}
	return &Tracker{
		registry:   registry,
		queue:      queue,
		staleAfter: staleAfter,
		logger:     log.Named("tracker"),
	}
}

// WithPublisher mirrors every announcement to p
func (t *Tracker) WithPublisher(p Publisher) *Tracker {
	t.publisher = p
	return t
}

// WithPruner prunes p on every eviction pass
func (t *Tracker) WithPruner(p Pruner) *Tracker {
	t.pruners = append(t.pruners, p)
	return t
}

// Ingest hands a report to the registry. The registry logs and counts
// rejected reports, so the error is informational.
func (t *Tracker) Ingest(report types.PositionReport) error {
	return t.registry.Ingest(report.AircraftID, report)
}

// Announce queues the backlog and every newly due announcement. It blocks
// while the queue is full. If ctx ends first the unqueued announcements stay
// in the backlog for the next pass and the context error is returned.
func (t *Tracker) Announce(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	due := append(t.backlog, t.registry.CollectAnnouncements()...)
	t.backlog = nil
	for i, a := range due {
		if err := t.queue.Publish(ctx, a); err != nil {
			t.backlog = append([]types.Announcement(nil), due[i:]...)
			return i, fmt.Errorf("failed to queue announcement: %w", err)
		}
		if t.publisher != nil {
			if err := t.publisher.PublishAnnouncement(a); err != nil {
				t.logger.Warn("Failed to publish announcement",
					logger.String("text", a.Text),
					logger.Error(err))
			}
		}
	}
	return len(due), nil
}

// Backlog returns how many collected announcements are waiting to be queued
func (t *Tracker) Backlog() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.backlog)
}

// Evict removes stale aircraft and prunes partial state
func (t *Tracker) Evict() int {
	removed := t.registry.EvictStale()
	for _, p := range t.pruners {
		p.Prune(t.staleAfter)
	}
	if removed > 0 {
		t.logger.Debug("Evicted stale aircraft",
			logger.Int("removed", removed),
			logger.Int("remaining", t.registry.Len()))
	}
	return removed
}

// RunAnnouncer runs Announce every interval until ctx is done
func (t *Tracker) RunAnnouncer(ctx context.Context, every time.Duration, task Toucher) error {
	if task == nil {
		task = nopToucher{}
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		task.Touch()
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := t.Announce(ctx); err != nil && ctx.Err() == nil {
				return err
			}
		}
	}
}

// RunEvictor runs Evict every interval until ctx is done
func (t *Tracker) RunEvictor(ctx context.Context, every time.Duration, task Toucher) error {
	if task == nil {
		task = nopToucher{}
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		task.Touch()
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.Evict()
		}
	}
}
