package tree

import (
	"time"

	"agenttree/internal/event"
)

// CollapseThreshold is the minimum run length of consecutive same-type tool
// calls that folds into one summary line.
const CollapseThreshold = 4

// DisplayItem is one entry of a sibling list after the collapsing pass:
// either a single node or a synthetic summary standing in for a run.
type DisplayItem struct {
	Node      Handle
	Collapsed bool
	Tool      event.ToolType
	Members   []Handle
}

// Count is the number of nodes a collapsed item stands for.
func (d DisplayItem) Count() int { return len(d.Members) }

// AggregateStatus folds the member statuses: succeeded only when every
// member succeeded, failed when all are terminal and any failed, running
// otherwise (the run is still growing or members are in flight).
func (d DisplayItem) AggregateStatus(t *Tree) Status {
	allTerminal := true
	anyFailed := false
	for _, h := range d.Members {
		st := t.Node(h).Status
		if !st.Terminal() {
			allTerminal = false
		}
		if st == StatusFailed {
			anyFailed = true
		}
	}
	switch {
	case !allTerminal:
		return StatusRunning
	case anyFailed:
		return StatusFailed
	default:
		return StatusSucceeded
	}
}

// DoneCount reports how many members are terminal.
func (d DisplayItem) DoneCount(t *Tree) int {
	done := 0
	for _, h := range d.Members {
		if t.Node(h).Status.Terminal() {
			done++
		}
	}
	return done
}

// Elapsed sums member elapsed times.
func (d DisplayItem) Elapsed(t *Tree, now time.Time) time.Duration {
	var total time.Duration
	for _, h := range d.Members {
		total += t.Node(h).Elapsed(now)
	}
	return total
}

// Collapse computes the display sequence for one sibling list. A maximal run
// of CollapseThreshold or more consecutive tool calls sharing a tool type
// (targets ignored) folds into one summary item; shorter runs and non-tool
// nodes pass through. The pass is pure: it is recomputed per frame and never
// mutates the nodes, so a run's count grows live while matching nodes keep
// arriving contiguously.
func (t *Tree) Collapse(children []Handle) []DisplayItem {
	var items []DisplayItem
	flushRun := func(run []Handle) {
		if len(run) == 0 {
			return
		}
		if len(run) >= CollapseThreshold {
			items = append(items, DisplayItem{
				Node:      None,
				Collapsed: true,
				Tool:      t.Node(run[0]).Tool,
				Members:   run,
			})
			return
		}
		for _, h := range run {
			items = append(items, DisplayItem{Node: h, Members: []Handle{h}})
		}
	}

	var run []Handle
	for _, h := range children {
		n := t.Node(h)
		if n.Kind != KindToolCall {
			flushRun(run)
			run = nil
			items = append(items, DisplayItem{Node: h, Members: []Handle{h}})
			continue
		}
		if len(run) > 0 && t.Node(run[0]).Tool != n.Tool {
			flushRun(run)
			run = nil
		}
		run = append(run, h)
	}
	flushRun(run)
	return items
}
