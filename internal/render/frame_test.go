package render

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"agenttree/internal/event"
	"agenttree/internal/tree"
)

func buildTree(evs ...event.Envelope) *tree.Tree {
	t := tree.New("sess")
	for _, ev := range evs {
		t.Apply(ev)
	}
	return t
}

func toolStart(id string, tool event.ToolType, target string) event.Envelope {
	return event.Envelope{Kind: event.KindToolStart, NodeID: id, Tool: tool, Target: target}
}

func toolDone(id string, failed bool) event.Envelope {
	return event.Envelope{Kind: event.KindToolDone, NodeID: id, Failed: failed}
}

func frameText(lines []string) string { return strings.Join(lines, "\n") }

func TestFrameIsDeterministic(t *testing.T) {
	tr := buildTree(
		event.Envelope{Kind: event.KindSessionStart, Model: "claude-sonnet-4"},
		toolStart("t1", event.ToolBash, "go test ./..."),
		toolDone("t1", false),
		toolStart("t2", event.ToolRead, "main.go"),
	)
	now := time.Now()
	opts := Options{Width: 100}

	first := Frame(tr, 3, now, opts)
	second := Frame(tr, 3, now, opts)

	if len(first) != len(second) {
		t.Fatalf("frame lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("line %d differs:\n%q\n%q", i, first[i], second[i])
		}
	}
}

func TestFrameHeaderAndToolLines(t *testing.T) {
	tr := buildTree(
		event.Envelope{Kind: event.KindSessionStart, Model: "claude-sonnet-4-20250514"},
		toolStart("t1", event.ToolBash, "ls -la"),
		toolDone("t1", false),
	)
	text := frameText(Frame(tr, 0, time.Now(), Options{}))

	for _, want := range []string{"🤖 Orchestrator [sonnet]", "Bash: ls -la", "✓"} {
		if !strings.Contains(text, want) {
			t.Fatalf("frame missing %q:\n%s", want, text)
		}
	}
}

func TestFrameDiffPreview(t *testing.T) {
	tr := buildTree(event.Envelope{
		Kind:   event.KindToolStart,
		NodeID: "e1",
		Tool:   event.ToolEdit,
		Target: "server.go",
		Diff: &event.Diff{
			LinesAdded:   3,
			LinesRemoved: 1,
			Before:       []string{"return nil"},
			After:        []string{"if err != nil {", "return err", "}"},
		},
	})
	text := frameText(Frame(tr, 0, time.Now(), Options{}))

	for _, want := range []string{"(+3/-1 lines)", "- return nil", "+ if err != nil {"} {
		if !strings.Contains(text, want) {
			t.Fatalf("frame missing %q:\n%s", want, text)
		}
	}
}

func TestFrameDiffOverflowMarker(t *testing.T) {
	after := make([]string, 8)
	for i := range after {
		after[i] = fmt.Sprintf("line %d", i)
	}
	tr := buildTree(event.Envelope{
		Kind:   event.KindToolStart,
		NodeID: "e1",
		Tool:   event.ToolEdit,
		Diff:   &event.Diff{LinesAdded: 8, After: after},
	})
	text := frameText(Frame(tr, 0, time.Now(), Options{MaxDiffLines: 5}))

	if !strings.Contains(text, "… +3 more") {
		t.Fatalf("frame missing overflow marker:\n%s", text)
	}
	if strings.Contains(text, "line 5") {
		t.Fatalf("frame shows line past the cap:\n%s", text)
	}
}

func TestFrameCollapsedRun(t *testing.T) {
	evs := []event.Envelope{}
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("g%d", i)
		evs = append(evs, toolStart(id, event.ToolGrep, "pattern"), toolDone(id, false))
	}
	tr := buildTree(evs...)
	text := frameText(Frame(tr, 0, time.Now(), Options{}))

	if !strings.Contains(text, "Grep") || !strings.Contains(text, "×5") {
		t.Fatalf("frame missing collapsed grep run:\n%s", text)
	}
	if strings.Contains(text, "pattern") {
		t.Fatalf("collapsed run must not show individual targets:\n%s", text)
	}
}

func TestFrameCollapsedRunInFlight(t *testing.T) {
	evs := []event.Envelope{}
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("g%d", i)
		evs = append(evs, toolStart(id, event.ToolGrep, ""), toolDone(id, false))
	}
	evs = append(evs, toolStart("g4", event.ToolGrep, ""))
	tr := buildTree(evs...)
	text := frameText(Frame(tr, 0, time.Now(), Options{}))

	if !strings.Contains(text, "(4/5)") {
		t.Fatalf("frame missing in-flight run progress:\n%s", text)
	}
}

func TestFrameNestedSubAgent(t *testing.T) {
	tr := buildTree(
		event.Envelope{Kind: event.KindSubagentSpawn, NodeID: "task1", Target: "explore the repo"},
		event.Envelope{Kind: event.KindToolStart, NodeID: "s1", SessionID: "task1", Tool: event.ToolGlob, Target: "**/*.go"},
	)
	lines := Frame(tr, 0, time.Now(), Options{})

	agentIdx, subIdx := -1, -1
	for i, line := range lines {
		if strings.Contains(line, "explore the repo") {
			agentIdx = i
		}
		if strings.Contains(line, "**/*.go") {
			subIdx = i
		}
	}
	if agentIdx < 0 || subIdx < 0 {
		t.Fatalf("frame missing sub-agent or nested tool:\n%s", frameText(lines))
	}
	if subIdx <= agentIdx {
		t.Fatalf("nested tool rendered before its sub-agent")
	}
	agentIndent := strings.IndexAny(lines[agentIdx], "├└")
	subIndent := strings.IndexAny(lines[subIdx], "├└")
	if agentIndent < 0 || subIndent <= agentIndent {
		t.Fatalf("nested tool not indented deeper: agent %d, tool %d", agentIndent, subIndent)
	}
}

func TestFrameFooter(t *testing.T) {
	tr := buildTree(
		toolStart("t1", event.ToolBash, "make"),
		toolDone("t1", false),
		event.Envelope{Kind: event.KindTokenUsage, Usage: &event.Usage{Input: 12000, Output: 3400}},
		event.Envelope{Kind: event.KindSessionEnd, Cost: 0.1234},
	)
	text := frameText(Frame(tr, 0, time.Now(), Options{}))

	for _, want := range []string{"✅ Done", "Tools 1", "In 12k", "Out 3.4k", "$0.1234"} {
		if !strings.Contains(text, want) {
			t.Fatalf("footer missing %q:\n%s", want, text)
		}
	}
}

func TestFrameFooterFailed(t *testing.T) {
	tr := buildTree(
		toolStart("t1", event.ToolBash, "make"),
		toolDone("t1", true),
		event.Envelope{Kind: event.KindSessionEnd, Failed: true},
	)
	text := frameText(Frame(tr, 0, time.Now(), Options{}))

	if !strings.Contains(text, "❌ Failed") || !strings.Contains(text, "(1 failed)") {
		t.Fatalf("failed footer wrong:\n%s", text)
	}
}

func TestFrameStatusLineWhileActive(t *testing.T) {
	tr := buildTree(toolStart("t1", event.ToolBash, "sleep 5"))
	text := frameText(Frame(tr, 0, time.Now(), Options{Status: "Running Bash"}))

	if !strings.Contains(text, "Running Bash") {
		t.Fatalf("status line missing:\n%s", text)
	}
}

func TestFrameSpinnerAdvancesWithPhase(t *testing.T) {
	tr := buildTree(toolStart("t1", event.ToolBash, "sleep"))
	now := time.Now()

	a := frameText(Frame(tr, 0, now, Options{}))
	b := frameText(Frame(tr, 1, now, Options{}))

	if !strings.Contains(a, SpinnerFrames[0]) {
		t.Fatalf("phase 0 frame missing %q:\n%s", SpinnerFrames[0], a)
	}
	if !strings.Contains(b, SpinnerFrames[1]) {
		t.Fatalf("phase 1 frame missing %q:\n%s", SpinnerFrames[1], b)
	}
	if a == b {
		t.Fatalf("frames for different phases must differ")
	}
}

func TestFrameDiagnosticsLine(t *testing.T) {
	tr := buildTree(toolDone("ghost", false))
	text := frameText(Frame(tr, 0, time.Now(), Options{}))

	if !strings.Contains(text, "1 diagnostic(s), latest UnknownNodeCompletion") {
		t.Fatalf("diagnostics line missing:\n%s", text)
	}
}

func TestFrameRespectsWidth(t *testing.T) {
	tr := buildTree(toolStart("t1", event.ToolBash, strings.Repeat("x", 300)))
	lines := Frame(tr, 0, time.Now(), Options{Width: 40})

	for i, line := range lines {
		if w := DisplayWidth(line); w > 40 {
			t.Fatalf("line %d is %d cells wide: %q", i, w, line)
		}
	}
}
