package tree

import "agenttree/internal/event"

// Rollup is the session aggregate: derived by a full walk at render time,
// never stored on nodes.
type Rollup struct {
	Tools         int
	ToolsByStatus map[Status]int
	Thinking      int
	SubAgents     int
	Usage         event.Usage
	Cost          float64
}

// Aggregate walks the whole tree and sums counts, tokens and cost. Tree
// sizes are bounded by one interactive session, so the walk per frame is
// cheap.
func (t *Tree) Aggregate() Rollup {
	r := Rollup{ToolsByStatus: make(map[Status]int)}
	for i := range t.nodes {
		n := &t.nodes[i]
		switch n.Kind {
		case KindToolCall:
			r.Tools++
			r.ToolsByStatus[n.Status]++
		case KindThinking:
			r.Thinking++
		case KindSubAgent:
			r.SubAgents++
		}
		r.Usage.Add(n.Usage)
		r.Cost += n.Cost
	}
	return r
}
