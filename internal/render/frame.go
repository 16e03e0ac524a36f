package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"agenttree/internal/event"
	"agenttree/internal/tree"
)

const (
	branch = "├──"
	end    = "└──"
	pipe   = "│"

	defaultDiffLines = 5
)

// SpinnerFrames are the glyphs cycled through for running nodes. The frame
// is selected by animator phase, so rendering stays a pure function.
var SpinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Options configures one frame build.
type Options struct {
	Width        int
	MaxDiffLines int
	Theme        Theme
	Status       string
}

func (o Options) diffCap() int {
	if o.MaxDiffLines > 0 {
		return o.MaxDiffLines
	}
	return defaultDiffLines
}

// Frame builds the full display for one tick: header, collapsed tree,
// diagnostics, trailing aggregate and status. It is deterministic for a
// given (tree snapshot, phase, now, opts) and never mutates the tree.
func Frame(t *tree.Tree, phase int, now time.Time, opts Options) []string {
	f := &framer{t: t, now: now, opts: opts, theme: opts.Theme}
	f.spin = SpinnerFrames[((phase%len(SpinnerFrames))+len(SpinnerFrames))%len(SpinnerFrames)]

	root := t.Node(t.Root())
	f.header(root)
	f.children(t.Root(), "  ")
	f.diagnostics()
	f.footer(root)

	if opts.Width > 0 {
		for i, line := range f.lines {
			f.lines[i] = TruncateLine(line, opts.Width)
		}
	}
	return f.lines
}

type framer struct {
	t        *tree.Tree
	now      time.Time
	opts     Options
	theme    Theme
	spin     string
	lines    []string
	agentSeq int
}

func (f *framer) add(line string) { f.lines = append(f.lines, line) }

func (f *framer) header(root *tree.Node) {
	label := "🤖 Orchestrator"
	if root.Model != "" {
		label += " [" + shortModel(root.Model) + "]"
	}
	f.add("  " + f.theme.Header.Render(label))
	f.add("  " + f.theme.Dim.Render(pipe))
}

// children renders one sibling level with the collapsing pass applied,
// recursing into sub-agent nodes with a deepened prefix. Each nesting level
// collapses relative to its own siblings only.
func (f *framer) children(parent tree.Handle, prefix string) {
	kids := f.t.Node(parent).Children
	items := f.t.Collapse(kids)
	for i, item := range items {
		last := i == len(items)-1 && parent != f.t.Root()
		conn := branch
		if last {
			conn = end
		}
		if item.Collapsed {
			f.add(prefix + f.theme.Dim.Render(conn+" "+item.Tool.Icon()+" "+item.Tool.String()) +
				" " + f.theme.Accent.Render(fmt.Sprintf("×%d", item.Count())) + f.runStatus(item))
			continue
		}
		f.node(item.Node, prefix, conn, last)
	}
}

func (f *framer) node(h tree.Handle, prefix, conn string, last bool) {
	n := f.t.Node(h)
	childPrefix := prefix + pipe + "   "
	if last {
		childPrefix = prefix + "    "
	}

	switch n.Kind {
	case tree.KindSubAgent:
		f.agentSeq++
		label := fmt.Sprintf("🔀 %s", f.theme.Accent.Render(fmt.Sprintf("#%d", f.agentSeq)))
		meta := n.Target
		if n.Model != "" {
			meta = "[" + n.Model + "] " + meta
		}
		f.add(prefix + f.theme.Dim.Render(conn) + " " + label + " " + f.theme.Dim.Render(meta) + f.statusSuffix(n))
		f.children(h, childPrefix)
	case tree.KindThinking:
		label := fmt.Sprintf("⏺ Thinking: %s tokens", event.FormatTokens(n.Usage.Total()))
		f.add(prefix + f.theme.Dim.Render(conn+" "+label) + f.statusSuffix(n))
		f.preview(n, childPrefix)
	default:
		label := n.Tool.Icon() + " " + n.Tool.String()
		if n.Target != "" {
			label += ": " + n.Target
		}
		line := prefix + f.theme.Dim.Render(conn+" "+label) + f.statusSuffix(n)
		if n.Flagged {
			line += " " + f.theme.Warn.Render("⚠")
		}
		f.add(line)
		f.preview(n, childPrefix)
	}
}

// preview renders the indented detail block under a node: the edit diff
// capped per side with an overflow marker, or the generic detail lines.
func (f *framer) preview(n *tree.Node, prefix string) {
	if n.Diff != nil {
		d := n.Diff
		f.add(prefix + "  " + f.theme.Dim.Render(fmt.Sprintf("(+%d/-%d lines)", d.LinesAdded, d.LinesRemoved)))
		f.diffSide(d.Before, "- ", f.theme.Removed, prefix)
		f.diffSide(d.After, "+ ", f.theme.Added, prefix)
		return
	}
	for _, detail := range n.Detail {
		f.add(prefix + "  " + f.theme.Dim.Render(detail))
	}
}

func (f *framer) diffSide(lines []string, marker string, style lipgloss.Style, prefix string) {
	shown := lines
	capN := f.opts.diffCap()
	if len(shown) > capN {
		shown = shown[:capN]
	}
	for _, line := range shown {
		f.add(prefix + "  " + style.Render(marker+line))
	}
	if hidden := len(lines) - len(shown); hidden > 0 {
		f.add(prefix + "  " + f.theme.Dim.Render(fmt.Sprintf("… +%d more", hidden)))
	}
}

func (f *framer) statusSuffix(n *tree.Node) string {
	switch n.Status {
	case tree.StatusRunning:
		label := f.spin
		if e := fmtRunning(n.Elapsed(f.now)); e != "" {
			label += " " + e
		}
		return " " + f.theme.Dim.Render(label)
	case tree.StatusSucceeded:
		s := " " + f.theme.Success.Render("✓")
		if e := fmtElapsed(n.Elapsed(f.now)); e != "" {
			s += " " + f.theme.Dim.Render(e)
		}
		return s
	case tree.StatusFailed:
		s := " " + f.theme.Failure.Render("✗")
		if n.FailReason != "" {
			s += " " + f.theme.Failure.Render("("+n.FailReason+")")
		}
		return s
	default:
		return ""
	}
}

func (f *framer) runStatus(item tree.DisplayItem) string {
	switch item.AggregateStatus(f.t) {
	case tree.StatusRunning:
		return " " + f.theme.Dim.Render(fmt.Sprintf("%s (%d/%d)", f.spin, item.DoneCount(f.t), item.Count()))
	case tree.StatusFailed:
		return " " + f.theme.Failure.Render("✗")
	default:
		s := " " + f.theme.Success.Render("✓")
		if e := fmtElapsed(item.Elapsed(f.t, f.now)); e != "" {
			s += " " + f.theme.Dim.Render(e)
		}
		return s
	}
}

func (f *framer) diagnostics() {
	diags := f.t.Diagnostics()
	if len(diags) == 0 {
		return
	}
	latest := diags[len(diags)-1]
	f.add("  " + f.theme.Dim.Render(pipe))
	f.add("  " + f.theme.Dim.Render(branch) + " " +
		f.theme.Warn.Render(fmt.Sprintf("⚠ %d diagnostic(s), latest %s", len(diags), latest.Code)))
}

func (f *framer) footer(root *tree.Node) {
	agg := f.t.Aggregate()
	f.add("  " + f.theme.Dim.Render(pipe))

	if total := agg.Usage.Total(); total > 0 || agg.Cost > 0 {
		parts := []string{
			"In " + event.FormatTokens(agg.Usage.Input),
			"Out " + event.FormatTokens(agg.Usage.Output),
		}
		if agg.Usage.CacheRead > 0 {
			parts = append(parts, "Cache "+event.FormatTokens(agg.Usage.CacheRead))
		}
		line := "📊 Tokens: " + strings.Join(parts, " / ") + " (Total " + event.FormatTokens(total)
		if agg.Cost > 0 {
			line += fmt.Sprintf(" · $%.4f", agg.Cost)
		}
		line += ")"
		f.add("  " + f.theme.Dim.Render(pipe+"   "+line))
	}

	summary := fmt.Sprintf("Tools %d", agg.Tools)
	if failed := agg.ToolsByStatus[tree.StatusFailed]; failed > 0 {
		summary += fmt.Sprintf(" (%d failed)", failed)
	}
	if agg.Thinking > 0 {
		summary += fmt.Sprintf(", Thinking %d", agg.Thinking)
	}
	if agg.SubAgents > 0 {
		summary += fmt.Sprintf(", Sub-agents %d", agg.SubAgents)
	}

	switch root.Status {
	case tree.StatusSucceeded:
		f.add("  " + f.theme.Dim.Render(end) + " " + f.theme.Success.Render("✅ Done") + " " + f.theme.Dim.Render("("+summary+")"))
	case tree.StatusFailed:
		reason := "❌ Failed"
		if root.FailReason != "" {
			reason += " (" + root.FailReason + ")"
		}
		f.add("  " + f.theme.Dim.Render(end) + " " + f.theme.Failure.Render(reason) + " " + f.theme.Dim.Render("("+summary+")"))
	default:
		f.add("  " + f.theme.Dim.Render(end+" 📊 "+summary))
		if f.opts.Status != "" {
			f.add("    " + f.theme.Dim.Render(f.spin+" "+f.opts.Status))
		}
	}
}

func fmtElapsed(d time.Duration) string {
	if d < time.Second {
		return ""
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}

func fmtRunning(d time.Duration) string {
	if d < time.Second {
		return ""
	}
	return fmt.Sprintf("(%ds)", int(d.Seconds()))
}

func shortModel(model string) string {
	for _, name := range []string{"opus", "sonnet", "haiku"} {
		if strings.Contains(model, name) {
			return name
		}
	}
	if idx := strings.IndexByte(model, '-'); idx > 0 {
		return model[:idx]
	}
	return model
}
