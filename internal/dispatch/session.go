// Package dispatch owns the per-session control flow: the
// Idle→Active→Draining→Closed state machine and the serialized loop that
// merges runtime events and animator ticks into "mutate, then render" steps.
package dispatch

import (
	"agenttree/internal/event"
	"agenttree/internal/tree"
)

// Phase is the session lifecycle state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseActive
	PhaseDraining
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhaseDraining:
		return "draining"
	case PhaseClosed:
		return "closed"
	default:
		return "idle"
	}
}

// Session threads one session's state through dispatcher, tree and renderer:
// no process-wide singletons. It is not safe for concurrent use; exactly one
// loop owns it.
type Session struct {
	tree   *tree.Tree
	phase  Phase
	spin   int
	status string
}

// NewSession creates an idle session with an empty tree.
func NewSession() *Session {
	return &Session{tree: tree.New("")}
}

// Tree exposes the session's tree to the renderer and exporter.
func (s *Session) Tree() *tree.Tree { return s.tree }

// Phase returns the current lifecycle state.
func (s *Session) Phase() Phase { return s.phase }

// SpinnerPhase returns the animator phase used to pick a spinner glyph.
func (s *Session) SpinnerPhase() int { return s.spin }

// Status is the transient status-line text for the next frame.
func (s *Session) Status() string {
	if s.phase == PhaseIdle {
		return "Waiting for events…"
	}
	return s.status
}

// HandleEvent applies one event to the tree and advances the phase. Events
// after close are rejected (recorded, never fatal). Returns whether the
// event was accepted.
func (s *Session) HandleEvent(ev event.Envelope) bool {
	if s.phase == PhaseClosed {
		s.tree.AddDiagnostic(tree.DiagSessionClosed, ev.NodeID, "event after session close: "+ev.Kind.String())
		return false
	}
	if s.phase == PhaseIdle {
		s.phase = PhaseActive
	}

	s.tree.Apply(ev)

	switch ev.Kind {
	case event.KindToolStart:
		s.status = ev.Tool.String() + " running…"
	case event.KindThinkingStart:
		s.status = "Thinking…"
	case event.KindThinkingDone:
		s.status = ""
	case event.KindSubagentSpawn:
		s.status = "Sub-agent working… (" + ev.Target + ")"
	case event.KindToolDone:
		s.status = ""
	case event.KindSessionEnd:
		s.status = ""
		s.phase = PhaseDraining
	}
	return true
}

// Tick advances the spinner phase. Returns false when the session no longer
// animates (draining and closed sessions are frozen).
func (s *Session) Tick() bool {
	if s.phase == PhaseDraining || s.phase == PhaseClosed {
		return false
	}
	s.spin++
	return true
}

// EndOfStream handles the event source closing without an explicit session
// end: an active session drains so the loop can flush one final frame.
func (s *Session) EndOfStream() {
	if s.phase == PhaseIdle || s.phase == PhaseActive {
		s.phase = PhaseDraining
		s.status = ""
	}
}

// Interrupt is the external abort path: every still-running node fails with
// reason Interrupted and the session closes. The caller renders one final
// frame afterwards so the last frame never shows a live spinner.
func (s *Session) Interrupt() {
	if s.phase == PhaseClosed {
		return
	}
	s.tree.MarkRunningFailed(tree.ReasonInterrupted)
	s.status = ""
	s.phase = PhaseClosed
}

// Close finishes draining: completions the runtime never delivered settle
// as succeeded so the final frame holds no spinner. Idempotent.
func (s *Session) Close() {
	if s.phase != PhaseClosed {
		s.tree.MarkRunningDone()
		s.phase = PhaseClosed
	}
}
