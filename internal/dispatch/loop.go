package dispatch

import (
	"context"
	"time"

	"agenttree/internal/event"
	"agenttree/internal/render"
)

// DefaultTickInterval is the animator cadence; rendering cadence is pinned
// to it, decoupled from event arrival timing.
const DefaultTickInterval = 120 * time.Millisecond

// Sink receives fully built frames.
type Sink interface {
	WriteFrame(lines []string) error
}

// LoopOptions configures the plain-mode control loop.
type LoopOptions struct {
	TickInterval time.Duration
	Render       render.Options
}

// Run drives one session to completion: a single goroutine selects over the
// event channel and the animator ticker, applying exactly one mutation or
// spinner advance per item followed by one render. The tree and the sink's
// previous-frame buffer are owned by this loop alone, so no locking is
// needed anywhere in the core.
//
// The loop ends when the session drains (session-end event or source
// exhaustion) or ctx is cancelled (external interrupt); either way one final
// consistent frame is flushed first.
func Run(ctx context.Context, events <-chan event.Envelope, sink Sink, opts LoopOptions) (*Session, error) {
	interval := opts.TickInterval
	if interval <= 0 {
		interval = DefaultTickInterval
	}

	s := NewSession()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	flush := func(now time.Time) error {
		ro := opts.Render
		ro.Status = s.Status()
		return sink.WriteFrame(render.Frame(s.Tree(), s.SpinnerPhase(), now, ro))
	}

	if err := flush(time.Now()); err != nil {
		return s, err
	}

	for {
		select {
		case <-ctx.Done():
			s.Interrupt()
			err := flush(time.Now())
			return s, err

		case ev, ok := <-events:
			if !ok {
				s.EndOfStream()
				s.Close()
				err := flush(time.Now())
				return s, err
			}
			s.HandleEvent(ev)
			if s.Phase() == PhaseDraining {
				s.Close()
				err := flush(time.Now())
				return s, err
			}
			if err := flush(time.Now()); err != nil {
				return s, err
			}

		case <-ticker.C:
			if !s.Tick() {
				continue
			}
			if err := flush(time.Now()); err != nil {
				return s, err
			}
		}
	}
}
