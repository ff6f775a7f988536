package display

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
)

// DefaultScrollInterval is how often the terminal text moves one cell left
const DefaultScrollInterval = 120 * time.Millisecond

var terminalColors = map[Color]tcell.Color{
	Red:    tcell.ColorRed,
	Green:  tcell.ColorGreen,
	Blue:   tcell.ColorBlue,
	Purple: tcell.ColorPurple,
	Yellow: tcell.ColorYellow,
}

// TerminalBoard scrolls text leftwards across the middle row of a terminal
type TerminalBoard struct {
	screen tcell.Screen
	every  time.Duration

	mu     sync.Mutex
	text   []rune
	style  tcell.Style
	offset int

	closeOnce sync.Once
}

// NewTerminalBoard takes over the controlling terminal
func NewTerminalBoard() (*TerminalBoard, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("failed to create screen: %w", err)
	}
	return NewTerminalBoardWithScreen(screen)
}

// NewTerminalBoardWithScreen uses an already created screen, e.g. a
// simulation screen
func NewTerminalBoardWithScreen(screen tcell.Screen) (*TerminalBoard, error) {
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize screen: %w", err)
	}
	screen.SetStyle(tcell.StyleDefault.
		Background(tcell.ColorReset).
		Foreground(tcell.ColorReset))
	screen.Clear()

	return &TerminalBoard{
		screen: screen,
		every:  DefaultScrollInterval,
		style:  tcell.StyleDefault,
	}, nil
}

// Show replaces the text and restarts the scroll from the right edge
func (b *TerminalBoard) Show(ctx context.Context, text string, color Color) error {
	b.mu.Lock()
	b.text = []rune(text)
	b.style = tcell.StyleDefault.Foreground(terminalColors[color]).Bold(true)
	b.offset = 0
	b.mu.Unlock()

	b.draw()
	return nil
}

// Run scrolls the text until ctx is done. Resize events redraw the screen.
func (b *TerminalBoard) Run(ctx context.Context) error {
	go b.pollEvents()

	ticker := time.NewTicker(b.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.step()
		}
	}
}

// Close restores the terminal
func (b *TerminalBoard) Close() error {
	b.closeOnce.Do(b.screen.Fini)
	return nil
}

func (b *TerminalBoard) pollEvents() {
	for {
		ev := b.screen.PollEvent()
		if ev == nil {
			return
		}
		if _, ok := ev.(*tcell.EventResize); ok {
			b.screen.Sync()
			b.draw()
		}
	}
}

// step advances the scroll by one cell. Once the text has left the screen
// it enters again from the right.
func (b *TerminalBoard) step() {
	width, _ := b.screen.Size()

	b.mu.Lock()
	b.offset++
	if b.offset > width+len(b.text) {
		b.offset = 0
	}
	b.mu.Unlock()

	b.draw()
}

func (b *TerminalBoard) draw() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.screen.Clear()
	width, height := b.screen.Size()
	row := height / 2
	x := width - b.offset
	for i, r := range b.text {
		if col := x + i; col >= 0 && col < width {
			b.screen.SetContent(col, row, r, nil, b.style)
		}
	}
	b.screen.Show()
}
