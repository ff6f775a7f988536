// Package watchdog reports whether a set of periodic tasks is still making
// progress. It never restarts anything; an external supervisor watches the
// sentinel and acts on it.
package watchdog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/saviobatista/sbs-approach/pkg/logger"
)

// DefaultPeriod is how often Run checks the registered tasks
const DefaultPeriod = time.Second

// Task is the liveness record of one registered task
type Task struct {
	name     string
	interval time.Duration
	monitor  *Monitor

	mu        sync.Mutex
	lastTouch time.Time
}

// Touch records that the task made progress
func (t *Task) Touch() {
	now := t.monitor.now()
	t.mu.Lock()
	t.lastTouch = now
	t.mu.Unlock()
}

// Name returns the task name
func (t *Task) Name() string {
	return t.name
}

func (t *Task) overdue(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return now.Sub(t.lastTouch) > t.interval
}

// Option configures a Monitor
type Option func(*Monitor)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithPeriod sets the polling period of Run
func WithPeriod(d time.Duration) Option {
	return func(m *Monitor) { m.period = d }
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(m *Monitor) { m.logger = l.Named("watchdog") }
}

// Monitor tracks registered tasks and refreshes a sentinel while all of
// them are healthy
type Monitor struct {
	sentinel Sentinel
	now      func() time.Time
	period   time.Duration
	logger   *logger.Logger

	mu    sync.Mutex
	tasks []*Task
}

// NewMonitor creates a monitor signalling through sentinel
func NewMonitor(sentinel Sentinel, opts ...Option) *Monitor {
	if sentinel == nil {
		sentinel = NopSentinel{}
	}
	m := &Monitor{
		sentinel: sentinel,
		now:      time.Now,
		period:   DefaultPeriod,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a task that must touch at least once per interval. The task
// counts as freshly touched at registration.
func (m *Monitor) Register(name string, interval time.Duration) *Task {
	t := &Task{
		name:      name,
		interval:  interval,
		monitor:   m,
		lastTouch: m.now(),
	}

	m.mu.Lock()
	m.tasks = append(m.tasks, t)
	m.mu.Unlock()

	return t
}

// Overdue returns the names of tasks that missed their interval
func (m *Monitor) Overdue() []string {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var names []string
	for _, t := range m.tasks {
		if t.overdue(now) {
			names = append(names, t.name)
		}
	}
	sort.Strings(names)
	return names
}

// Healthy reports whether every registered task is within its interval
func (m *Monitor) Healthy() bool {
	return len(m.Overdue()) == 0
}

// Check performs one poll: refresh the sentinel when healthy, withhold it
// and log otherwise. It reports whether the sentinel was refreshed.
func (m *Monitor) Check(ctx context.Context) bool {
	if overdue := m.Overdue(); len(overdue) > 0 {
		m.logger.Warn("Tasks overdue, withholding liveness signal", logger.Strings("tasks", overdue))
		return false
	}
	if err := m.sentinel.Refresh(ctx); err != nil {
		m.logger.Error("Failed to refresh sentinel", logger.Error(err))
		return false
	}
	return true
}

// Run polls until ctx is cancelled
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
