package render

import (
	"fmt"
	"io"
	"strings"
)

// Writer applies frames to a terminal, rewriting only the lines that differ
// from the previous frame. Diffing is a flicker concern, not a correctness
// one: callers always hand it the fully recomputed frame.
type Writer struct {
	out  io.Writer
	prev []string
}

// NewWriter wraps out. The writer owns its previous-frame buffer; it must
// only be used from the session's control loop.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

// ChangedLines returns the indexes of next that differ from prev, including
// every index past the shorter frame.
func ChangedLines(prev, next []string) []int {
	var changed []int
	for i, line := range next {
		if i >= len(prev) || prev[i] != line {
			changed = append(changed, i)
		}
	}
	return changed
}

// WriteFrame draws the frame. The first frame is written whole; later
// frames move the cursor back to the top of the previous frame and rewrite
// changed lines only, clearing any leftover tail.
func (w *Writer) WriteFrame(lines []string) error {
	var b strings.Builder

	if len(w.prev) == 0 {
		for _, line := range lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		w.prev = append([]string(nil), lines...)
		_, err := io.WriteString(w.out, b.String())
		return err
	}

	fmt.Fprintf(&b, "\x1b[%dA", len(w.prev))
	for i, line := range lines {
		if i < len(w.prev) && w.prev[i] == line {
			b.WriteString("\x1b[1B")
			continue
		}
		b.WriteString("\r\x1b[2K")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if len(w.prev) > len(lines) {
		b.WriteString("\x1b[0J")
	}

	w.prev = append(w.prev[:0], lines...)
	_, err := io.WriteString(w.out, b.String())
	return err
}

// Reset forgets the previous frame, forcing the next one to be written
// whole (e.g. after a terminal resize).
func (w *Writer) Reset() { w.prev = nil }
