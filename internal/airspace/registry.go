package airspace

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/saviobatista/sbs-approach/internal/types"
	"github.com/saviobatista/sbs-approach/pkg/logger"
)

// DefaultStaleAfter is how long an aircraft may go unheard before eviction
const DefaultStaleAfter = 5 * time.Minute

// Recorder receives registry counters. stats.Stats implements it.
type Recorder interface {
	IncrementReports()
	IncrementRejectedReports()
	IncrementIdentityViolations()
	IncrementClockViolations()
	IncrementAnnouncements()
	AddEvictions(n uint64)
	SetActiveAircraft(n uint64)
}

type nopRecorder struct{}

func (nopRecorder) IncrementReports()            {}
func (nopRecorder) IncrementRejectedReports()    {}
func (nopRecorder) IncrementIdentityViolations() {}
func (nopRecorder) IncrementClockViolations()    {}
func (nopRecorder) IncrementAnnouncements()      {}
func (nopRecorder) AddEvictions(uint64)          {}
func (nopRecorder) SetActiveAircraft(uint64)     {}

// Config configures a Registry
type Config struct {
	Corridor   Corridor
	Origins    Origins
	StaleAfter time.Duration
	Now        func() time.Time
	Logger     *logger.Logger
	Recorder   Recorder
}

// Registry owns every tracked aircraft. One mutex guards the whole map and
// is held for the full duration of each operation, so a collection never
// sees a half-applied report and an eviction never races an announcement.
// The working set is tens of aircraft; if that ever grows, shard by id.
type Registry struct {
	mu       sync.Mutex
	aircraft map[string]*Aircraft

	corridor   Corridor
	origins    Origins
	staleAfter time.Duration
	now        func() time.Time
	logger     *logger.Logger
	recorder   Recorder
}

// NewRegistry creates an empty registry
func NewRegistry(cfg Config) (*Registry, error) {
	if err := cfg.Corridor.Validate(); err != nil {
		return nil, fmt.Errorf("invalid corridor: %w", err)
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}

	return &Registry{
		aircraft:   make(map[string]*Aircraft),
		corridor:   cfg.Corridor,
		origins:    cfg.Origins,
		staleAfter: cfg.StaleAfter,
		now:        cfg.Now,
		logger:     cfg.Logger.Named("registry"),
		recorder:   cfg.Recorder,
	}, nil
}

// Ingest applies a report to the aircraft with the given id, creating it on
// first sighting. Invalid reports and identity violations leave every
// aircraft untouched.
func (r *Registry) Ingest(id string, report types.PositionReport) error {
	r.recorder.IncrementReports()

	if report.AircraftID == "" {
		report.AircraftID = id
	}
	err := report.Validate()
	if err == nil && report.AircraftID != id {
		err = fmt.Errorf("report for %s ingested as %s", report.AircraftID, id)
	}
	if err != nil {
		r.recorder.IncrementRejectedReports()
		r.logger.Debug("Dropping report",
			logger.String("id", id),
			logger.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	a, exists := r.aircraft[id]
	if !exists {
		a = newAircraft(id, report, now)
		r.aircraft[id] = a
		r.recorder.SetActiveAircraft(uint64(len(r.aircraft)))
		r.logger.Debug("First sight",
			logger.String("id", id),
			logger.String("callsign", report.Callsign),
			logger.String("session_id", a.SessionID),
		)
		return nil
	}

	if err := a.Update(report, now, r.corridor, r.origins); err != nil {
		if errors.Is(err, ErrCallsignChanged) {
			r.recorder.IncrementIdentityViolations()
		}
		r.logger.Error("Rejected update", logger.String("id", id), logger.Error(err))
		return err
	}
	return nil
}

// CollectAnnouncements returns every announcement that is due. Order across
// aircraft is unspecified.
func (r *Registry) CollectAnnouncements() []types.Announcement {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var announcements []types.Announcement
	for id, a := range r.aircraft {
		ann, ok, err := a.Announcement(now, r.corridor, r.origins)
		if err != nil {
			r.recordError(id, err)
			continue
		}
		if ok {
			r.recorder.IncrementAnnouncements()
			r.logger.Info("Announcing",
				logger.String("id", id),
				logger.String("text", ann.Text),
				logger.String("gate", ann.Gate),
			)
			announcements = append(announcements, ann)
		}
	}
	return announcements
}

// EvictStale removes every aircraft that has not been heard from for longer
// than the stale threshold and returns how many were removed
func (r *Registry) EvictStale() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, a := range r.aircraft {
		stale, err := a.Stale(now, r.staleAfter)
		if err != nil {
			r.recordError(id, err)
			continue
		}
		if stale {
			a.expire()
			delete(r.aircraft, id)
			removed++
			r.logger.Debug("Evicted",
				logger.String("id", id),
				logger.String("callsign", a.Callsign),
			)
		}
	}

	if removed > 0 {
		r.recorder.AddEvictions(uint64(removed))
	}
	r.recorder.SetActiveAircraft(uint64(len(r.aircraft)))
	return removed
}

func (r *Registry) recordError(id string, err error) {
	if errors.Is(err, ErrClockSkew) {
		r.recorder.IncrementClockViolations()
	}
	r.logger.Error("Aircraft invariant violated", logger.String("id", id), logger.Error(err))
}

// Len returns the number of tracked aircraft
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.aircraft)
}

// Snapshot returns a copy of every tracked aircraft, sorted by id
func (r *Registry) Snapshot() []AircraftView {
	r.mu.Lock()
	defer r.mu.Unlock()

	views := make([]AircraftView, 0, len(r.aircraft))
	for _, a := range r.aircraft {
		views = append(views, a.view())
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	return views
}

// Corridor returns the corridor the registry tests against
func (r *Registry) Corridor() Corridor {
	return r.corridor
}
