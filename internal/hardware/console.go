package hardware

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// ConsoleDisplay draws the display content as a framed box on a writer.
type ConsoleDisplay struct {
	out    io.Writer
	width  int
	height int
	mu     sync.Mutex
}

// NewConsoleDisplay creates a display of width columns and height lines on out.
func NewConsoleDisplay(out io.Writer, width, height int) *ConsoleDisplay {
	return &ConsoleDisplay{
		out:    out,
		width:  width,
		height: height,
	}
}

// Render draws lines, truncated and padded to the display size.
func (d *ConsoleDisplay) Render(lines []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var b strings.Builder

	border := "+" + strings.Repeat("-", d.width) + "+\n"
	b.WriteString(border)

	for i := range d.height {
		line := ""
		if i < len(lines) {
			line = Fit(lines[i], d.width)
		}

		fmt.Fprintf(&b, "|%-*s|\n", d.width, line)
	}

	b.WriteString(border)

	if _, err := io.WriteString(d.out, b.String()); err != nil {
		return fmt.Errorf("write display: %w", err)
	}

	return nil
}

// Clear draws an empty frame.
func (d *ConsoleDisplay) Clear() error {
	return d.Render(nil)
}

// Close implements Display.
func (d *ConsoleDisplay) Close() error {
	return nil
}

// NopDisplay discards everything.
type NopDisplay struct{}

// Render implements Display.
func (NopDisplay) Render([]string) error { return nil }

// Clear implements Display.
func (NopDisplay) Clear() error { return nil }

// Close implements Display.
func (NopDisplay) Close() error { return nil }

// Fit truncates s to width runes.
func Fit(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}

	return string(runes[:width])
}
