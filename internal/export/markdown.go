// Package export serializes a closed session tree for downstream
// collaborators. The core hands the tree over here on close and keeps no
// copy.
package export

import (
	"fmt"
	"strings"
	"time"

	"agenttree/internal/event"
	"agenttree/internal/tree"
)

// Markdown renders the final tree summary: aggregate totals followed by an
// outline of every node with its status and elapsed time.
func Markdown(t *tree.Tree) string {
	var b strings.Builder
	now := time.Now()
	root := t.Node(t.Root())
	agg := t.Aggregate()

	b.WriteString("# Session summary\n\n")
	if root.Model != "" {
		fmt.Fprintf(&b, "- Model: %s\n", root.Model)
	}
	fmt.Fprintf(&b, "- Status: %s\n", root.Status)
	fmt.Fprintf(&b, "- Tool calls: %d (%d succeeded, %d failed)\n",
		agg.Tools, agg.ToolsByStatus[tree.StatusSucceeded], agg.ToolsByStatus[tree.StatusFailed])
	fmt.Fprintf(&b, "- Thinking steps: %d\n", agg.Thinking)
	fmt.Fprintf(&b, "- Sub-agents: %d\n", agg.SubAgents)
	fmt.Fprintf(&b, "- Tokens: %s in / %s out (total %s)\n",
		event.FormatTokens(agg.Usage.Input), event.FormatTokens(agg.Usage.Output),
		event.FormatTokens(agg.Usage.Total()))
	if agg.Cost > 0 {
		fmt.Fprintf(&b, "- Cost: $%.4f\n", agg.Cost)
	}

	if diags := t.Diagnostics(); len(diags) > 0 {
		b.WriteString("\n## Diagnostics\n\n")
		for _, d := range diags {
			fmt.Fprintf(&b, "- %s", d.Code)
			if d.NodeID != "" {
				fmt.Fprintf(&b, " (%s)", d.NodeID)
			}
			if d.Detail != "" {
				fmt.Fprintf(&b, ": %s", d.Detail)
			}
			b.WriteByte('\n')
		}
	}

	b.WriteString("\n## Timeline\n\n")
	writeOutline(&b, t, t.Root(), 0, now)
	return b.String()
}

func writeOutline(b *strings.Builder, t *tree.Tree, h tree.Handle, depth int, now time.Time) {
	for _, child := range t.Node(h).Children {
		n := t.Node(child)
		indent := strings.Repeat("  ", depth)
		label := nodeLabel(n)
		fmt.Fprintf(b, "%s- %s — %s", indent, label, n.Status)
		if e := n.Elapsed(now); e >= time.Second && n.Status.Terminal() {
			fmt.Fprintf(b, " (%.1fs)", e.Seconds())
		}
		if n.FailReason != "" {
			fmt.Fprintf(b, " [%s]", n.FailReason)
		}
		b.WriteByte('\n')
		writeOutline(b, t, child, depth+1, now)
	}
}

func nodeLabel(n *tree.Node) string {
	switch n.Kind {
	case tree.KindSubAgent:
		label := "Sub-agent"
		if n.Target != "" {
			label += ": " + n.Target
		}
		return label
	case tree.KindThinking:
		return fmt.Sprintf("Thinking (%s tokens)", event.FormatTokens(n.Usage.Total()))
	default:
		label := n.Tool.String()
		if n.Target != "" {
			label += ": " + n.Target
		}
		return label
	}
}
