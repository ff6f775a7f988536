package watchdog

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Sentinel is the external liveness signal
type Sentinel interface {
	Refresh(ctx context.Context) error
}

// NopSentinel does nothing
type NopSentinel struct{}

// Refresh implements Sentinel
func (NopSentinel) Refresh(context.Context) error { return nil }

// FileSentinel writes to a watchdog device or file on every refresh. Writes
// go straight to the file descriptor, unbuffered.
type FileSentinel struct {
	mu   sync.Mutex
	file *os.File
}

// OpenFileSentinel opens path for writing, creating it if needed
func OpenFileSentinel(path string) (*FileSentinel, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open watchdog file: %w", err)
	}
	return &FileSentinel{file: f}, nil
}

// Refresh implements Sentinel
func (s *FileSentinel) Refresh(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.WriteString("X\n"); err != nil {
		return fmt.Errorf("failed to write watchdog file: %w", err)
	}
	return nil
}

// Close closes the underlying file
func (s *FileSentinel) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
