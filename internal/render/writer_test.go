package render

import (
	"bytes"
	"strings"
	"testing"
)

func TestChangedLines(t *testing.T) {
	prev := []string{"a", "b", "c"}
	next := []string{"a", "B", "c", "d"}

	got := ChangedLines(prev, next)
	want := []int{1, 3}
	if len(got) != len(want) {
		t.Fatalf("changed lines = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("changed lines = %v, want %v", got, want)
		}
	}

	if got := ChangedLines(next, next); got != nil {
		t.Fatalf("identical frames reported changes: %v", got)
	}
}

func TestWriterFirstFrameWholeThenDiff(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	if err := w.WriteFrame([]string{"header", "line one", "line two"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := buf.String(); got != "header\nline one\nline two\n" {
		t.Fatalf("first frame = %q", got)
	}

	buf.Reset()
	if err := w.WriteFrame([]string{"header", "line CHANGED", "line two"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "\x1b[3A") {
		t.Fatalf("second frame does not move cursor up: %q", out)
	}
	if !strings.Contains(out, "line CHANGED") {
		t.Fatalf("second frame missing changed line: %q", out)
	}
	if strings.Contains(out, "header") || strings.Contains(out, "line two") {
		t.Fatalf("second frame rewrote unchanged lines: %q", out)
	}
	if got := strings.Count(out, "\x1b[1B"); got != 2 {
		t.Fatalf("expected 2 cursor-down skips, got %d in %q", got, out)
	}
}

func TestWriterClearsShrunkTail(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	if err := w.WriteFrame([]string{"a", "b", "c"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf.Reset()
	if err := w.WriteFrame([]string{"a"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), "\x1b[0J") {
		t.Fatalf("shrunk frame did not clear tail: %q", buf.String())
	}
}

func TestWriterResetForcesFullRedraw(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	if err := w.WriteFrame([]string{"a"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Reset()
	buf.Reset()
	if err := w.WriteFrame([]string{"a"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := buf.String(); got != "a\n" {
		t.Fatalf("frame after reset = %q, want full redraw", got)
	}
}

func TestTruncateLine(t *testing.T) {
	cases := []struct {
		name string
		in   string
		cols int
		want string
	}{
		{"fits", "hello", 10, "hello"},
		{"clipped", "hello world", 5, "hello\x1b[0m"},
		{"zero cols passthrough", "hello", 0, "hello"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := TruncateLine(tc.in, tc.cols); got != tc.want {
				t.Fatalf("TruncateLine(%q, %d) = %q, want %q", tc.in, tc.cols, got, tc.want)
			}
		})
	}
}

func TestTruncateLineKeepsEscapes(t *testing.T) {
	styled := "\x1b[31mred and long text\x1b[0m"
	got := TruncateLine(styled, 3)
	if !strings.HasPrefix(got, "\x1b[31m") {
		t.Fatalf("escape stripped: %q", got)
	}
	if !strings.HasSuffix(got, "\x1b[0m") {
		t.Fatalf("style left open: %q", got)
	}
	if w := DisplayWidth(got); w != 3 {
		t.Fatalf("truncated width = %d, want 3", w)
	}
}

func TestDisplayWidth(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"plain", 5},
		{"\x1b[1mbold\x1b[0m", 4},
		{"🤖", 2},
		{"✓", 1},
	}
	for _, tc := range cases {
		if got := DisplayWidth(tc.in); got != tc.want {
			t.Fatalf("DisplayWidth(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
