// Package tree holds the execution tree of one agent session: an arena of
// nodes indexed by handles, mutated in place as events arrive. The tree only
// grows; nodes are never deleted while the session lives.
package tree

import (
	"time"

	"github.com/google/uuid"

	"agenttree/internal/event"
)

// Status is a node's lifecycle state. Succeeded and Failed are terminal.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool { return s == StatusSucceeded || s == StatusFailed }

// NodeKind distinguishes the displayable unit a node represents.
type NodeKind int

const (
	KindOrchestrator NodeKind = iota
	KindThinking
	KindToolCall
	KindSubAgent
)

// Handle is an index into the tree's node arena.
type Handle int

// None marks an absent handle (e.g. the root's parent).
const None Handle = -1

// Node is one displayable unit of agent activity. Children hold arena
// handles in arrival order; Parent is a back-reference used only for scoped
// id resolution, never for ownership.
type Node struct {
	ID     string
	Kind   NodeKind
	Tool   event.ToolType
	Target string

	Status     Status
	StartedAt  time.Time
	FinishedAt time.Time
	FailReason string

	Usage event.Usage
	Cost  float64

	Detail []string
	Diff   *event.Diff
	Result string

	Model   string
	Flagged bool

	Parent   Handle
	Children []Handle
}

// Elapsed returns the node's wall time: frozen once terminal, growing
// against now while running.
func (n *Node) Elapsed(now time.Time) time.Duration {
	if n.StartedAt.IsZero() {
		return 0
	}
	if n.Status.Terminal() && !n.FinishedAt.IsZero() {
		return n.FinishedAt.Sub(n.StartedAt)
	}
	return now.Sub(n.StartedAt)
}

// Diagnostic codes. All are recoverable: event handling never aborts the
// control loop.
const (
	DiagOrphanParent          = "OrphanParent"
	DiagUnknownNodeCompletion = "UnknownNodeCompletion"
	DiagDuplicateCompletion   = "DuplicateCompletion"
	DiagDuplicateStart        = "DuplicateStart"
	DiagSessionClosed         = "SessionClosed"
	DiagUnknownEvent          = "UnknownEvent"
)

// ReasonInterrupted is the FailReason stamped on nodes killed by an external
// interrupt.
const ReasonInterrupted = "Interrupted"

// Diagnostic records a malformed or out-of-order event that was degraded
// instead of crashing the loop.
type Diagnostic struct {
	Code   string
	NodeID string
	At     time.Time
	Detail string
}

// Tree is the execution tree of one session. It is exclusively owned by the
// session's control loop; no internal locking.
type Tree struct {
	sessionID string
	nodes     []Node
	root      Handle

	// scopes maps an owning sub-agent node id ("" = top scope) to that
	// scope's id index. Resolution checks the event's scope first, then the
	// top scope, so concurrently running sub-agents cannot collide.
	scopes map[string]map[string]Handle
	// scopeNode maps a scope key to the SubAgentRef node owning it.
	scopeNode map[string]Handle

	diags []Diagnostic
}

// New creates a session tree with a fresh orchestrator root. An empty
// session id gets a generated one.
func New(sessionID string) *Tree {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	t := &Tree{
		sessionID: sessionID,
		scopes:    map[string]map[string]Handle{"": {}},
		scopeNode: map[string]Handle{"": None},
	}
	t.root = t.alloc(Node{
		ID:        sessionID,
		Kind:      KindOrchestrator,
		Status:    StatusRunning,
		StartedAt: time.Now(),
		Parent:    None,
	})
	return t
}

// SessionID returns the session this tree belongs to.
func (t *Tree) SessionID() string { return t.sessionID }

// Root returns the orchestrator node handle.
func (t *Tree) Root() Handle { return t.root }

// Node returns the node behind a handle. The pointer stays valid for the
// tree's lifetime; the arena never shrinks.
func (t *Tree) Node(h Handle) *Node { return &t.nodes[h] }

// Len reports the number of allocated nodes, root included.
func (t *Tree) Len() int { return len(t.nodes) }

// Diagnostics returns every degraded event recorded so far.
func (t *Tree) Diagnostics() []Diagnostic { return t.diags }

// AddDiagnostic records a degraded condition detected outside the tree's
// own mutation rules (e.g. an event arriving after the session closed).
func (t *Tree) AddDiagnostic(code, nodeID, detail string) {
	t.diag(code, nodeID, detail)
}

func (t *Tree) alloc(n Node) Handle {
	t.nodes = append(t.nodes, n)
	return Handle(len(t.nodes) - 1)
}

func (t *Tree) diag(code, nodeID, detail string) {
	t.diags = append(t.diags, Diagnostic{Code: code, NodeID: nodeID, At: time.Now(), Detail: detail})
}

// Resolve finds the node an event references: the event's own scope first,
// then the top scope. Returns None when the id is unknown.
func (t *Tree) Resolve(scope, id string) Handle {
	if id == "" {
		return None
	}
	if idx, ok := t.scopes[scope]; ok {
		if h, ok := idx[id]; ok {
			return h
		}
	}
	if h, ok := t.scopes[""][id]; ok {
		return h
	}
	return None
}

// scopeParent returns the node new children of a scope attach under. An
// unknown scope is an orphan-parent condition: the node attaches to the root
// and is flagged.
func (t *Tree) scopeParent(scope, nodeID string) (Handle, bool) {
	if h, ok := t.scopeNode[scope]; ok {
		if h == None {
			return t.root, true
		}
		return h, true
	}
	t.diag(DiagOrphanParent, nodeID, "unknown owning scope "+scope)
	return t.root, false
}

// Apply mutates the tree according to one event. It never fails: malformed
// or out-of-order events degrade to diagnostics.
func (t *Tree) Apply(ev event.Envelope) {
	switch ev.Kind {
	case event.KindSessionStart:
		root := t.Node(t.root)
		if root.Model == "" {
			root.Model = ev.Model
		}
	case event.KindToolStart:
		t.applyStart(ev, KindToolCall)
	case event.KindThinkingStart:
		t.applyStart(ev, KindThinking)
	case event.KindSubagentSpawn:
		h := t.applyStart(ev, KindSubAgent)
		if h != None {
			if _, exists := t.scopes[ev.NodeID]; !exists {
				t.scopes[ev.NodeID] = map[string]Handle{}
				t.scopeNode[ev.NodeID] = h
			}
		}
	case event.KindToolDone, event.KindThinkingDone:
		t.applyDone(ev)
	case event.KindTokenUsage:
		t.applyUsage(ev)
	case event.KindSessionEnd:
		t.applyEnd(ev)
	case event.KindUnknown:
		t.diag(DiagUnknownEvent, ev.NodeID, clip(ev.Raw, 120))
	}
}

func (t *Tree) applyStart(ev event.Envelope, kind NodeKind) Handle {
	if existing := t.Resolve(ev.SessionID, ev.NodeID); existing != None {
		t.diag(DiagDuplicateStart, ev.NodeID, "start for existing node ignored")
		return None
	}

	parent, known := t.scopeParent(ev.SessionID, ev.NodeID)

	started := ev.Timestamp
	if started.IsZero() {
		started = time.Now()
	}
	h := t.alloc(Node{
		ID:        ev.NodeID,
		Kind:      kind,
		Tool:      ev.Tool,
		Target:    ev.Target,
		Status:    StatusRunning,
		StartedAt: started,
		Detail:    ev.Detail,
		Diff:      ev.Diff,
		Model:     ev.Model,
		Flagged:   !known,
		Parent:    parent,
	})
	p := t.Node(parent)
	p.Children = append(p.Children, h)

	scope := ev.SessionID
	if !known {
		scope = ""
	}
	if ev.NodeID != "" {
		t.scopes[scope][ev.NodeID] = h
	}
	return h
}

func (t *Tree) applyDone(ev event.Envelope) {
	h := t.Resolve(ev.SessionID, ev.NodeID)
	if h == None {
		t.diag(DiagUnknownNodeCompletion, ev.NodeID, "completion for unstarted node")
		return
	}
	n := t.Node(h)
	if n.Status.Terminal() {
		t.diag(DiagDuplicateCompletion, ev.NodeID, "completion for terminal node ignored")
		return
	}

	if ev.Failed {
		n.Status = StatusFailed
	} else {
		n.Status = StatusSucceeded
	}
	n.FinishedAt = ev.Timestamp
	if n.FinishedAt.IsZero() {
		n.FinishedAt = time.Now()
	}
	if ev.Result != "" {
		n.Result = ev.Result
	}
	if ev.Diff != nil {
		n.Diff = ev.Diff
	}
	if ev.Tokens > 0 {
		n.Usage.Add(event.Usage{Output: ev.Tokens})
	}
	if ev.Usage != nil {
		n.Usage.Add(*ev.Usage)
	}
	n.Cost += ev.Cost
}

// applyUsage accumulates tokens onto the referenced node, or onto the scope
// owner (sub-agent node or root) when the event names no node. Accumulation
// is add-only; counts never decrease.
func (t *Tree) applyUsage(ev event.Envelope) {
	if ev.Usage == nil && ev.Cost == 0 {
		return
	}
	h := t.Resolve(ev.SessionID, ev.NodeID)
	if h == None {
		if owner, ok := t.scopeNode[ev.SessionID]; ok && owner != None {
			h = owner
		} else {
			h = t.root
		}
	}
	n := t.Node(h)
	if ev.Usage != nil {
		n.Usage.Add(*ev.Usage)
	}
	n.Cost += ev.Cost
}

func (t *Tree) applyEnd(ev event.Envelope) {
	root := t.Node(t.root)
	if root.Status.Terminal() {
		t.diag(DiagDuplicateCompletion, root.ID, "session end for closed session ignored")
		return
	}
	if ev.Failed {
		root.Status = StatusFailed
	} else {
		root.Status = StatusSucceeded
	}
	root.FinishedAt = ev.Timestamp
	if root.FinishedAt.IsZero() {
		root.FinishedAt = time.Now()
	}
	if ev.Result != "" {
		root.Result = ev.Result
	}
	root.Cost += ev.Cost
	if ev.Usage != nil {
		root.Usage.Add(*ev.Usage)
	}
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

// MarkRunningFailed force-fails every non-terminal node (the external
// interrupt path) and returns the affected handles.
func (t *Tree) MarkRunningFailed(reason string) []Handle {
	now := time.Now()
	var hit []Handle
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.Status.Terminal() {
			continue
		}
		n.Status = StatusFailed
		n.FailReason = reason
		n.FinishedAt = now
		hit = append(hit, Handle(i))
	}
	return hit
}

// MarkRunningDone settles every non-terminal node as succeeded. Used when a
// session ends normally while the runtime never reported some completions.
func (t *Tree) MarkRunningDone() {
	now := time.Now()
	for i := range t.nodes {
		n := &t.nodes[i]
		if n.Status.Terminal() {
			continue
		}
		n.Status = StatusSucceeded
		n.FinishedAt = now
	}
}
