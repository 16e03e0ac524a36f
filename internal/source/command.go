package source

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"unicode"

	"agenttree/internal/event"
)

// Command spawns the agent CLI with stream-json output and feeds its stdout
// into the event channel. The subprocess's stderr is captured and surfaced
// through Err, never written to the terminal the frames own.
type Command struct {
	cmd    *exec.Cmd
	ch     chan event.Envelope
	done   chan struct{}
	err    error
	stderr bytes.Buffer
}

// NewCommand starts argv with ctx's lifetime. Cancelling ctx kills the
// subprocess, which ends the stream.
func NewCommand(ctx context.Context, argv []string) (*Command, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	c := &Command{
		cmd:  cmd,
		ch:   make(chan event.Envelope, chanBuffer),
		done: make(chan struct{}),
	}
	cmd.Stderr = &c.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", argv[0], err)
	}

	go func() {
		defer close(c.ch)
		defer close(c.done)
		scanErr := pump(stdout, event.NewParser(), c.ch)
		waitErr := cmd.Wait()
		switch {
		case waitErr != nil:
			text := strings.TrimSpace(c.stderr.String())
			if text == "" {
				text = waitErr.Error()
			}
			c.err = fmt.Errorf("%s: %s", argv[0], text)
		case scanErr != nil:
			c.err = scanErr
		}
	}()
	return c, nil
}

// Events returns the envelope channel; it closes when the process exits.
func (c *Command) Events() <-chan event.Envelope { return c.ch }

// Err reports the subprocess or scan failure once Events is closed.
func (c *Command) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close kills the subprocess if it is still running.
func (c *Command) Close() error {
	if c.cmd.Process != nil {
		return c.cmd.Process.Kill()
	}
	return nil
}

// Split tokenizes a command string respecting single/double quotes and
// backslash escapes, for flags that carry a whole command line.
func Split(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	args := make([]string, 0, 8)
	var current strings.Builder
	inSingle := false
	inDouble := false
	escaped := false
	flush := func() {
		if current.Len() == 0 {
			return
		}
		args = append(args, current.String())
		current.Reset()
	}
	for _, r := range trimmed {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && !inSingle:
			escaped = true
		case r == '\'' && !inDouble:
			inSingle = !inSingle
		case r == '"' && !inSingle:
			inDouble = !inDouble
		case unicode.IsSpace(r) && !inSingle && !inDouble:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	if escaped {
		current.WriteRune('\\')
	}
	flush()
	if inSingle || inDouble {
		// Fallback for malformed quoted strings.
		return strings.Fields(trimmed)
	}
	return args
}
