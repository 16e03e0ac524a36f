package source

import (
	"io"

	"agenttree/internal/event"
)

// Lines streams events from an io.Reader of JSONL, typically stdin or a
// session log file being followed.
type Lines struct {
	ch     chan event.Envelope
	done   chan struct{}
	err    error
	closer io.Closer
}

// NewLines starts reading r in the background. If r is also an io.Closer,
// Close closes it.
func NewLines(r io.Reader) *Lines {
	l := &Lines{
		ch:   make(chan event.Envelope, chanBuffer),
		done: make(chan struct{}),
	}
	if c, ok := r.(io.Closer); ok {
		l.closer = c
	}
	go func() {
		defer close(l.ch)
		defer close(l.done)
		l.err = pump(r, event.NewParser(), l.ch)
	}()
	return l
}

// Events returns the envelope channel; it closes at end of stream.
func (l *Lines) Events() <-chan event.Envelope { return l.ch }

// Err reports the scan error once Events is closed.
func (l *Lines) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}

// Close closes the underlying reader when it supports closing.
func (l *Lines) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
