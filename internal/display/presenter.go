package display

import (
	"context"
	"fmt"
	"time"

	"github.com/saviobatista/sbs-approach/internal/announce"
	"github.com/saviobatista/sbs-approach/pkg/logger"
)

const (
	// ClockLayout is what the board shows while idle
	ClockLayout = "2006-01-02 15:04"

	// DefaultShowFor is how long an announcement stays on the board
	DefaultShowFor = 10 * time.Second

	// ErrorBackoff is the pause after a board failure
	ErrorBackoff = 2 * time.Second
)

// Toucher is told the presenter is making progress. watchdog.Task implements it.
type Toucher interface {
	Touch()
}

type nopToucher struct{}

func (nopToucher) Touch() {}

// Presenter drives a Board from the announcement queue: the clock while
// idle, each announcement for ShowFor, colors taken in turn from Colors.
type Presenter struct {
	board   Board
	queue   *announce.Queue
	showFor time.Duration
	backoff time.Duration
	task    Toucher
	now     func() time.Time
	logger  *logger.Logger

	color int
}

// NewPresenter creates a presenter
func NewPresenter(board Board, queue *announce.Queue, showFor time.Duration, log *logger.Logger) *Presenter {
	if showFor <= 0 {
		showFor = DefaultShowFor
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Presenter{
		board:   board,
		queue:   queue,
		showFor: showFor,
		backoff: ErrorBackoff,
		task:    nopToucher{},
		now:     time.Now,
		logger:  log.Named("presenter"),
	}
}

// WithTask sets the liveness task touched every cycle
func (p *Presenter) WithTask(t Toucher) *Presenter {
	p.task = t
	return p
}

// Run presents until ctx is done. Board failures are logged and retried
// after ErrorBackoff.
func (p *Presenter) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := p.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error("Failed to drive display", logger.Error(err))
			if !sleep(ctx, p.backoff) {
				return nil
			}
		}
	}
}

// cycle shows the clock, waits up to showFor for an announcement and, if
// one arrives, shows and holds it
func (p *Presenter) cycle(ctx context.Context) error {
	p.task.Touch()

	if err := p.show(ctx, p.now().Format(ClockLayout)); err != nil {
		return fmt.Errorf("failed to show clock: %w", err)
	}

	a, ok, err := p.queue.Receive(ctx, p.showFor)
	if err != nil || !ok {
		return err
	}

	p.logger.Debug("Announcing", logger.String("text", a.Text))
	err = p.show(ctx, a.Text)
	p.queue.Done()
	if err != nil {
		return fmt.Errorf("failed to show announcement: %w", err)
	}

	p.task.Touch()
	sleep(ctx, p.showFor)
	return nil
}

func (p *Presenter) show(ctx context.Context, text string) error {
	color := Colors[p.color%len(Colors)]
	p.color++
	return p.board.Show(ctx, text, color)
}

// sleep waits for d and reports whether it ran to completion
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
