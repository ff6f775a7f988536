package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saviobatista/sbs-approach/internal/types"
	"github.com/saviobatista/sbs-approach/pkg/logger"
)

// DefaultRetention is how long persisted snapshots are kept
const DefaultRetention = 90 * 24 * time.Hour

// ErrNoStore is returned by Persist when no store has been set
var ErrNoStore = errors.New("statistics store not set")

// Store persists statistics snapshots. db.Client implements it.
type Store interface {
	StoreSystemStats(ctx context.Context, s types.SystemStats) error
	DeleteSystemStatsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Stats tracks tracker counters. All counters are safe for concurrent use.
type Stats struct {
	reports            uint64
	rejectedReports    uint64
	identityViolations uint64
	clockViolations    uint64
	announcements      uint64
	evictions          uint64
	activeAircraft     uint64

	// Index 0 counts non-MSG lines, 1-8 the SBS transmission types
	messageTypes [9]uint64

	started time.Time
	now     func() time.Time

	mu     sync.RWMutex
	store  Store
	logger *logger.Logger
}

// New creates a new Stats instance
func New(log *logger.Logger) *Stats {
	if log == nil {
		log = logger.Nop()
	}
	return &Stats{
		started: time.Now(),
		now:     time.Now,
		logger:  log.Named("stats"),
	}
}

// SetStore sets where snapshots are persisted
func (s *Stats) SetStore(store Store) {
	s.mu.Lock()
	s.store = store
	s.mu.Unlock()
}

// IncrementReports counts an accepted report
func (s *Stats) IncrementReports() {
	atomic.AddUint64(&s.reports, 1)
}

// IncrementRejectedReports counts a report that failed validation
func (s *Stats) IncrementRejectedReports() {
	atomic.AddUint64(&s.rejectedReports, 1)
}

// IncrementIdentityViolations counts a callsign change for a tracked id
func (s *Stats) IncrementIdentityViolations() {
	atomic.AddUint64(&s.identityViolations, 1)
}

// IncrementClockViolations counts a report timestamped in the future
func (s *Stats) IncrementClockViolations() {
	atomic.AddUint64(&s.clockViolations, 1)
}

// IncrementAnnouncements counts an emitted announcement
func (s *Stats) IncrementAnnouncements() {
	atomic.AddUint64(&s.announcements, 1)
}

// AddEvictions counts evicted aircraft
func (s *Stats) AddEvictions(n uint64) {
	atomic.AddUint64(&s.evictions, n)
}

// SetActiveAircraft sets the number of tracked aircraft
func (s *Stats) SetActiveAircraft(n uint64) {
	atomic.StoreUint64(&s.activeAircraft, n)
}

// IncrementMessageType counts an SBS line by transmission type. Out of
// range types are ignored.
func (s *Stats) IncrementMessageType(msgType int) {
	if msgType >= 0 && msgType < len(s.messageTypes) {
		atomic.AddUint64(&s.messageTypes[msgType], 1)
	}
}

// Snapshot returns a copy of the current counters
func (s *Stats) Snapshot() types.SystemStats {
	now := s.now()
	snap := types.SystemStats{
		Time:               now,
		Reports:            atomic.LoadUint64(&s.reports),
		RejectedReports:    atomic.LoadUint64(&s.rejectedReports),
		IdentityViolations: atomic.LoadUint64(&s.identityViolations),
		ClockViolations:    atomic.LoadUint64(&s.clockViolations),
		Announcements:      atomic.LoadUint64(&s.announcements),
		Evictions:          atomic.LoadUint64(&s.evictions),
		ActiveAircraft:     atomic.LoadUint64(&s.activeAircraft),
		Uptime:             now.Sub(s.started),
	}
	for i := range s.messageTypes {
		snap.MessageTypes[i] = atomic.LoadUint64(&s.messageTypes[i])
	}
	return snap
}

// String returns a one-line summary of the counters
func (s *Stats) String() string {
	snap := s.Snapshot()
	return fmt.Sprintf(
		"reports=%d rejected=%d identity_violations=%d clock_violations=%d "+
			"announcements=%d evictions=%d active=%d uptime=%s",
		snap.Reports,
		snap.RejectedReports,
		snap.IdentityViolations,
		snap.ClockViolations,
		snap.Announcements,
		snap.Evictions,
		snap.ActiveAircraft,
		snap.Uptime.Truncate(time.Second),
	)
}

// Persist stores the current counters
func (s *Stats) Persist(ctx context.Context) error {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()
	if store == nil {
		return ErrNoStore
	}
	return store.StoreSystemStats(ctx, s.Snapshot())
}

// Prune removes snapshots older than retention
func (s *Stats) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()
	if store == nil {
		return 0, ErrNoStore
	}
	return store.DeleteSystemStatsBefore(ctx, s.now().Add(-retention))
}

// StartPersistence persists the counters every interval and prunes old
// snapshots, until ctx is done. A final snapshot is written on the way out.
func (s *Stats) StartPersistence(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.Persist(final); err != nil {
				s.logger.Error("Failed to persist final statistics", logger.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
			if err := s.Persist(ctx); err != nil {
				s.logger.Error("Failed to persist statistics", logger.Error(err))
				continue
			}
			if n, err := s.Prune(ctx, retention); err != nil {
				s.logger.Warn("Failed to prune statistics", logger.Error(err))
			} else if n > 0 {
				s.logger.Debug("Pruned statistics", logger.Int64("rows", n))
			}
		}
	}
}

// StartLogging logs the counters every interval until ctx is done
func (s *Stats) StartLogging(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.Snapshot()
			s.logger.Info("Statistics",
				logger.Uint64("reports", snap.Reports),
				logger.Uint64("rejected", snap.RejectedReports),
				logger.Uint64("identity_violations", snap.IdentityViolations),
				logger.Uint64("clock_violations", snap.ClockViolations),
				logger.Uint64("announcements", snap.Announcements),
				logger.Uint64("evictions", snap.Evictions),
				logger.Uint64("active_aircraft", snap.ActiveAircraft),
				logger.Duration("uptime", snap.Uptime))
		}
	}
}
