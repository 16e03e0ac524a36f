// Package render turns a tree snapshot plus an animator phase into terminal
// frames. Frame building is pure; the Writer applies frames to a terminal by
// rewriting only the lines that changed.
package render

import (
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// Theme holds the lipgloss styles of one frame. The zero value renders
// unstyled text, which is also what tests use.
type Theme struct {
	Header  lipgloss.Style
	Dim     lipgloss.Style
	Accent  lipgloss.Style
	Success lipgloss.Style
	Failure lipgloss.Style
	Warn    lipgloss.Style
	Added   lipgloss.Style
	Removed lipgloss.Style
}

// DefaultTheme returns the colored theme, or the plain zero theme when color
// is off.
func DefaultTheme(color bool) Theme {
	if !color {
		return Theme{}
	}
	return Theme{
		Header:  lipgloss.NewStyle().Bold(true),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Accent:  lipgloss.NewStyle().Foreground(lipgloss.Color("44")),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Failure: lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		Warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		Added:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Removed: lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

// DetectColor reports whether styled output should be emitted on f.
// NO_COLOR always wins.
func DetectColor(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// DetectWidth probes the terminal width of f, falling back to COLUMNS and
// then 80.
func DetectWidth(f *os.File) int {
	if f != nil {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			return w
		}
	}
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if v, err := strconv.Atoi(cols); err == nil && v > 0 {
			return v
		}
	}
	return 80
}
