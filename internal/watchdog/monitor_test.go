package watchdog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingSentinel struct {
	mu       sync.Mutex
	count    int
	failWith error
}

func (s *countingSentinel) Refresh(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.count++
	return nil
}

func (s *countingSentinel) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func TestMonitor_TouchingKeepsHealthy(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)}
	m := NewMonitor(nil, WithClock(clock.Now))
	task := m.Register("announcer", 5*time.Second)

	for i := 0; i < 30; i++ {
		clock.Advance(time.Second)
		if i%2 == 1 {
			task.Touch()
		}
		if !m.Healthy() {
			t.Fatalf("Expected healthy at step %d", i)
		}
	}
}

func TestMonitor_StopsTouching(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)}
	m := NewMonitor(nil, WithClock(clock.Now))
	task := m.Register("announcer", 5*time.Second)

	clock.Advance(2 * time.Second)
	task.Touch()

	clock.Advance(5 * time.Second)
	if !m.Healthy() {
		t.Error("Expected healthy exactly at the interval")
	}

	clock.Advance(time.Millisecond)
	if m.Healthy() {
		t.Error("Expected unhealthy after the interval elapsed")
	}
	if overdue := m.Overdue(); len(overdue) != 1 || overdue[0] != "announcer" {
		t.Errorf("Expected [announcer] overdue, got %v", overdue)
	}

	task.Touch()
	if !m.Healthy() {
		t.Error("Expected immediate recovery on touch")
	}
}

func TestMonitor_AnyOverdueTaskFailsClosed(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)}
	sentinel := &countingSentinel{}
	m := NewMonitor(sentinel, WithClock(clock.Now))
	fast := m.Register("announcer", 2*time.Second)
	m.Register("evictor", 20*time.Second)

	ctx := context.Background()
	if !m.Check(ctx) {
		t.Fatal("Expected sentinel refresh with fresh tasks")
	}

	clock.Advance(3 * time.Second)
	if m.Check(ctx) {
		t.Error("Expected signal withheld while a task is overdue")
	}
	if sentinel.Count() != 1 {
		t.Errorf("Expected 1 refresh, got %d", sentinel.Count())
	}

	fast.Touch()
	if !m.Check(ctx) {
		t.Error("Expected refresh after recovery")
	}
	if sentinel.Count() != 2 {
		t.Errorf("Expected 2 refreshes, got %d", sentinel.Count())
	}
}

func TestMonitor_SentinelError(t *testing.T) {
	sentinel := &countingSentinel{failWith: errors.New("device gone")}
	m := NewMonitor(sentinel)
	m.Register("announcer", time.Minute)

	if m.Check(context.Background()) {
		t.Error("Expected Check to report a failed refresh")
	}
}

func TestMonitor_Run(t *testing.T) {
	sentinel := &countingSentinel{}
	m := NewMonitor(sentinel, WithPeriod(5*time.Millisecond))
	m.Register("announcer", time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if err := m.Run(ctx); err != nil {
		t.Fatalf("Run() returned %v", err)
	}
	if sentinel.Count() == 0 {
		t.Error("Expected at least one refresh")
	}
}

func TestMonitor_NoTasksIsHealthy(t *testing.T) {
	if !NewMonitor(nil).Healthy() {
		t.Error("A monitor with no tasks should be healthy")
	}
}

func TestFileSentinel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchdog")
	s, err := OpenFileSentinel(path)
	if err != nil {
		t.Fatalf("OpenFileSentinel() failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh() failed: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read watchdog file: %v", err)
	}
	if string(data) != "X\nX\nX\n" {
		t.Errorf("Unexpected watchdog content %q", data)
	}
}

func TestOpenFileSentinel_BadPath(t *testing.T) {
	if _, err := OpenFileSentinel(filepath.Join(t.TempDir(), "missing", "watchdog")); err == nil {
		t.Error("Expected error for a missing directory")
	}
}
