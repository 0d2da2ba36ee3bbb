// Package overlay implements the tree-walk health subsystem described in
// spec §4.6/§6: a client that drives streaming health RPCs against each
// node in a broker's parent/child tree and composes their results into a
// human-oriented report, ghost-filling subtrees it cannot reach because
// an ancestor is offline or lost. Grounded on
// original_source/src/cmd/builtin/overlay.c and, for the per-node record
// shape, on the teacher's core/meta node/bucket metadata records.
package overlay

import "strconv"

// Status is a node's reported (or inferred) liveness state (spec §4.6).
type Status int

const (
	StatusFull Status = iota
	StatusPartial
	StatusDegraded
	StatusOffline
	StatusLost
)

func (s Status) String() string {
	switch s {
	case StatusFull:
		return "full"
	case StatusPartial:
		return "partial"
	case StatusDegraded:
		return "degraded"
	case StatusOffline:
		return "offline"
	case StatusLost:
		return "lost"
	default:
		return "unknown"
	}
}

// ParseStatus parses the wire-format status string from a health RPC
// response into a Status, defaulting to StatusLost for anything
// unrecognized so a malformed report fails closed rather than silently
// reading as healthy.
func ParseStatus(s string) Status {
	switch s {
	case "full":
		return StatusFull
	case "partial":
		return StatusPartial
	case "degraded":
		return StatusDegraded
	case "offline":
		return StatusOffline
	default:
		return StatusLost
	}
}

// Connector is the tree-drawing hint rendered to the left of a printed
// status line, one per ancestor level plus the node's own branch glyph,
// grounded on overlay.c's `enum connector { PIPE, TEE, ELBOW, BLANK }`.
type Connector int

const (
	connNone Connector = iota
	connPipe
	connTee
	connElbow
	connBlank
)

func (c Connector) glyph() string {
	switch c {
	case connPipe:
		return "│  "
	case connTee:
		return "├─ "
	case connElbow:
		return "└─ "
	case connBlank:
		return "   "
	default:
		return ""
	}
}

// connectorFor returns the branch glyph for the i'th of n children: TEE
// for every child but the last, ELBOW for the last (overlay.c's
// status_prefix_push rule).
func connectorFor(i, n int) Connector {
	if i == n-1 {
		return connElbow
	}
	return connTee
}

// stemFor returns the vertical-stem glyph a child's own descendants
// render under: PIPE if more siblings follow this one, BLANK otherwise.
func stemFor(i, n int) Connector {
	if i == n-1 {
		return connBlank
	}
	return connPipe
}

// childPrefix extends a parent's prefix with the parent's own stem glyph
// (so grandchildren align under the right column) plus the new child's
// branch glyph.
func childPrefix(prefix []Connector, i, n int) []Connector {
	cp := make([]Connector, len(prefix)+1)
	copy(cp, prefix)
	if k := len(prefix) - 1; k >= 0 {
		if prefix[k] == connElbow {
			cp[k] = connBlank
		} else {
			cp[k] = connPipe
		}
	}
	cp[len(prefix)] = connectorFor(i, n)
	return cp
}

// NodeView is one printed (or ghost-synthesized) entry in a Report (spec
// §3 "Overlay node view").
type NodeView struct {
	Rank        int
	Subtree     []int // this rank plus every descendant rank, set by Walker.Walk
	Status      Status
	Duration    float64 // time-in-state, seconds
	Error       string
	Ghost       bool // true if Status was inferred rather than reported
	Highlighted bool
	Print       bool // whether the active Filter asked for this node to print
	Prefix      []Connector
	Children    []*NodeView
}

// renderPrefix joins the connector stack into the left-hand tree
// drawing for one printed line.
func (n *NodeView) renderPrefix() string {
	s := ""
	for _, c := range n.Prefix {
		s += c.glyph()
	}
	return s
}

// Label returns the plain "rank N" identity text preceding the status.
// Ranks are not mapped to hostnames.
func (n *NodeView) Label() string { return "rank " + strconv.Itoa(n.Rank) }

// Report is the root of one completed Walk.
type Report struct {
	Root *NodeView
}

// Walk calls fn for every NodeView in the report, pre-order, regardless
// of its Print flag — used by subcmd_errors and by --highlight
// resolution, both of which need to see ghost and non-printed nodes too
// (testable property #10: "every node appears exactly once").
func (r *Report) Walk(fn func(*NodeView)) {
	var visit func(*NodeView)
	visit = func(n *NodeView) {
		if n == nil {
			return
		}
		fn(n)
		for _, c := range n.Children {
			visit(c)
		}
	}
	visit(r.Root)
}
