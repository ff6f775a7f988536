package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/saviobatista/sbs-approach/internal/parser"
	"github.com/saviobatista/sbs-approach/internal/testutils"
	"github.com/saviobatista/sbs-approach/internal/types"
	"github.com/saviobatista/sbs-approach/pkg/logger"
)

// Mock NATS client for testing
type mockPublisher struct {
	mu        sync.Mutex
	published []*types.ReportEnvelope
	err       error
}

func (m *mockPublisher) PublishReport(env *types.ReportEnvelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, env)
	return nil
}

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}

// staticSource hands out its reports once, then waits for cancellation
type staticSource struct {
	reports []types.PositionReport
	err     error
}

func (s *staticSource) Run(ctx context.Context, handle func(types.PositionReport)) error {
	if s.err != nil {
		return s.err
	}
	for _, r := range s.reports {
		handle(r)
	}
	<-ctx.Done()
	return nil
}

func TestForwarder_Handle(t *testing.T) {
	tests := []struct {
		name              string
		publishErr        error
		expectedPublished uint64
		expectedFailed    uint64
	}{
		{"publish succeeds", nil, 1, 0},
		{"publish fails", errors.New("nats: no responders available for request"), 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &mockPublisher{err: tt.publishErr}
			now := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)
			fwd := NewForwarder(pub, "radar-1", logger.Nop())
			fwd.now = func() time.Time { return now }

			fwd.Handle(testutils.MockPositionReport("a1b2c3", "UAL123", 37.6, -122.34))

			published, failed := fwd.Counts()
			if published != tt.expectedPublished || failed != tt.expectedFailed {
				t.Errorf("Expected %d published and %d failed, got %d and %d",
					tt.expectedPublished, tt.expectedFailed, published, failed)
			}
			if tt.publishErr != nil {
				return
			}
			env := pub.published[0]
			if env.Source != "radar-1" || !env.ReceivedAt.Equal(now) || env.Report.Callsign != "UAL123" {
				t.Errorf("Unexpected envelope %+v", env)
			}
		})
	}
}

func TestRun(t *testing.T) {
	pub := &mockPublisher{}
	source := &staticSource{reports: []types.PositionReport{
		testutils.MockPositionReport("a1b2c3", "UAL123", 37.6, -122.34),
		testutils.MockPositionReport("d4e5f6", "DAL7", 37.5, -122.2),
	}}
	fwd := NewForwarder(pub, "radar-1", logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, source, fwd, parser.NewAssembler(), 5*time.Millisecond, time.Minute, logger.Nop())
	}()

	if err := testutils.WaitForCondition(func() bool { return pub.count() == 2 }, time.Second); err != nil {
		t.Errorf("Expected 2 published reports: %v", err)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("run() returned %v", err)
	}
}

func TestRun_SourceError(t *testing.T) {
	fwd := NewForwarder(&mockPublisher{}, "radar-1", logger.Nop())
	source := &staticSource{err: errors.New("no sources configured")}

	err := run(context.Background(), source, fwd, parser.NewAssembler(), time.Second, time.Minute, logger.Nop())
	if err == nil {
		t.Error("Expected source error")
	}
}
