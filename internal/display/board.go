package display

import (
	"context"
	"fmt"
	"io"

	"github.com/saviobatista/sbs-approach/pkg/logger"
)

// Color is a text color a board can render
type Color int

const (
	Red Color = iota
	Green
	Blue
	Purple
	Yellow
)

// Colors is the cycle successive texts are shown in
var Colors = []Color{Red, Green, Blue, Purple, Yellow}

func (c Color) String() string {
	switch c {
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	case Purple:
		return "purple"
	case Yellow:
		return "yellow"
	default:
		return fmt.Sprintf("color(%d)", int(c))
	}
}

// Board is somewhere text is shown. Show replaces whatever was on it.
type Board interface {
	Show(ctx context.Context, text string, color Color) error
	Close() error
}

// LogBoard shows text as log entries and, if set, as lines on a writer
type LogBoard struct {
	out    io.Writer
	logger *logger.Logger
}

// NewLogBoard creates a LogBoard. out may be nil.
func NewLogBoard(log *logger.Logger, out io.Writer) *LogBoard {
	if log == nil {
		log = logger.Nop()
	}
	return &LogBoard{out: out, logger: log.Named("board")}
}

// Show logs text
func (b *LogBoard) Show(ctx context.Context, text string, color Color) error {
	b.logger.Info("Display", logger.String("text", text), logger.String("color", color.String()))
	if b.out == nil {
		return nil
	}
	if _, err := fmt.Fprintln(b.out, text); err != nil {
		return fmt.Errorf("failed to write to board: %w", err)
	}
	return nil
}

// Close is a no-op
func (b *LogBoard) Close() error {
	return nil
}
