// Package event defines the typed events consumed by the execution tree and
// the parser that decodes the agent runtime's stream-json line protocol into
// them.
package event

import (
	"strconv"
	"strings"
	"time"
)

// Kind identifies one event variant. The set is closed: anything the parser
// cannot classify becomes KindUnknown so malformed input degrades to a
// diagnostic instead of being dropped.
type Kind int

const (
	KindUnknown Kind = iota
	KindSessionStart
	KindToolStart
	KindToolDone
	KindThinkingStart
	KindThinkingDone
	KindTokenUsage
	KindSubagentSpawn
	KindSessionEnd
)

func (k Kind) String() string {
	switch k {
	case KindSessionStart:
		return "session_start"
	case KindToolStart:
		return "tool_start"
	case KindToolDone:
		return "tool_done"
	case KindThinkingStart:
		return "thinking_start"
	case KindThinkingDone:
		return "thinking_done"
	case KindTokenUsage:
		return "token_usage"
	case KindSubagentSpawn:
		return "subagent_spawn"
	case KindSessionEnd:
		return "session_end"
	default:
		return "unknown"
	}
}

// ToolType is the semantic category of a tool invocation.
type ToolType int

const (
	ToolOther ToolType = iota
	ToolRead
	ToolWrite
	ToolEdit
	ToolBash
	ToolGlob
	ToolGrep
	ToolWebSearch
)

func (t ToolType) String() string {
	switch t {
	case ToolRead:
		return "Read"
	case ToolWrite:
		return "Write"
	case ToolEdit:
		return "Edit"
	case ToolBash:
		return "Bash"
	case ToolGlob:
		return "Glob"
	case ToolGrep:
		return "Grep"
	case ToolWebSearch:
		return "WebSearch"
	default:
		return "Tool"
	}
}

// Icon returns the display glyph for the tool category.
func (t ToolType) Icon() string {
	switch t {
	case ToolRead:
		return "📄"
	case ToolWrite:
		return "📝"
	case ToolEdit:
		return "✏️"
	case ToolBash:
		return "⚡"
	case ToolGlob:
		return "🔍"
	case ToolGrep:
		return "🔎"
	case ToolWebSearch:
		return "🌐"
	default:
		return "🔧"
	}
}

// ClassifyTool maps a runtime tool name to its category.
func ClassifyTool(name string) ToolType {
	switch name {
	case "Read", "NotebookRead":
		return ToolRead
	case "Write", "NotebookEdit":
		return ToolWrite
	case "Edit", "MultiEdit":
		return ToolEdit
	case "Bash":
		return ToolBash
	case "Glob":
		return ToolGlob
	case "Grep":
		return ToolGrep
	case "WebSearch", "WebFetch":
		return ToolWebSearch
	default:
		return ToolOther
	}
}

// Usage carries token counts attached by token-bearing events. All fields
// are deltas, accumulated (never overwritten) on the referenced node.
type Usage struct {
	Input         int
	Output        int
	CacheRead     int
	CacheCreation int
}

// Total is the input+output token count.
func (u Usage) Total() int { return u.Input + u.Output }

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.Input += other.Input
	u.Output += other.Output
	u.CacheRead += other.CacheRead
	u.CacheCreation += other.CacheCreation
}

// Diff summarizes an Edit tool invocation: removed/added line counts plus the
// snippet lines the renderer previews.
type Diff struct {
	LinesAdded   int
	LinesRemoved int
	Before       []string
	After        []string
}

// Envelope is one decoded event. NodeID references the node the event
// mutates; SessionID is the owning sub-agent scope ("" means the top-level
// session). Fields beyond the header are kind-specific and zero otherwise.
type Envelope struct {
	Kind      Kind
	NodeID    string
	SessionID string
	Timestamp time.Time

	Tool     ToolType
	ToolName string
	Target   string
	Detail   []string
	Diff     *Diff

	Usage *Usage
	Cost  float64

	Failed bool
	Result string

	Text   string
	Tokens int

	Model string
	Raw   string
}

// EstimateTokens approximates the token count of free text. The runtime does
// not report usage for individual thinking blocks, so a chars/4 heuristic
// stands in.
func EstimateTokens(text string) int {
	n := len([]rune(text)) / 4
	if n < 1 && text != "" {
		n = 1
	}
	return n
}

// FormatTokens renders a token count compactly (1234 -> "1.2k").
func FormatTokens(n int) string {
	if n >= 1_000_000 {
		return trimZero(float64(n)/1_000_000) + "M"
	}
	if n >= 1000 {
		return trimZero(float64(n)/1000) + "k"
	}
	return strconv.Itoa(n)
}

func trimZero(v float64) string {
	s := strings.TrimRight(strings.TrimRight(strconv.FormatFloat(v, 'f', 1, 64), "0"), ".")
	if s == "" {
		return "0"
	}
	return s
}
