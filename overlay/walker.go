package overlay

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flux-framework/flux-go/handle"
	"github.com/flux-framework/flux-go/internal/fconfig"
	"github.com/flux-framework/flux-go/internal/ferrors"
	"github.com/flux-framework/flux-go/internal/flog"
	"github.com/flux-framework/flux-go/message"
)

// Filter is one of the walk's "map functions" (spec §4.6): given a
// node's reported view it decides whether the node should print and
// whether the walk should descend into its children.
type Filter func(NodeView) (print, descend bool)

// ShowTop prints the root only and never descends.
func ShowTop(NodeView) (bool, bool) { return true, false }

// ShowBadTrees descends only into partial/degraded subtrees and prints
// every non-full node it visits (spec S5).
func ShowBadTrees(n NodeView) (print, descend bool) {
	descend = n.Status == StatusPartial || n.Status == StatusDegraded
	print = n.Status != StatusFull
	return print, descend
}

// ShowAll prints every node and descends everywhere still alive.
func ShowAll(n NodeView) (bool, bool) { return true, true }

// healthChild is one entry of a health response's own `children` summary
// (spec §6): the probed rank's direct view of each child, without that
// child having been probed itself yet.
type healthChild struct {
	Rank     int     `json:"rank"`
	Status   string  `json:"status"`
	Duration float64 `json:"duration"`
	Error    string  `json:"error,omitempty"`
}

type healthWire struct {
	Rank     int           `json:"rank"`
	Status   string        `json:"status"`
	Duration float64       `json:"duration"`
	Children []healthChild `json:"children"`
}

// Walker drives the tree walk over a Handle's overlay.health RPC (spec
// §4.6). Construct with NewWalker; Walk is safe to call repeatedly.
type Walker struct {
	h   *handle.Handle
	cfg *fconfig.Context
	log *flog.Logger

	// NoGhost suppresses synthesized ghost entries for offline/lost
	// subtrees (the CLI's --no-ghost flag).
	NoGhost bool
	// Highlight marks ranks whose subtree intersects a --highlight
	// target (resolved by the caller, e.g. with ParseHighlight); nil
	// highlights nothing.
	Highlight map[int]bool
	// Timeout bounds a single rank's health probe; defaults to the
	// shared fconfig.Context's reactor timeout.
	Timeout time.Duration
}

// NewWalker returns a Walker issuing health/topology RPCs over h.
func NewWalker(h *handle.Handle, cfg *fconfig.Context) *Walker {
	return &Walker{
		h:       h,
		cfg:     cfg,
		log:     flog.Default.With("overlay"),
		Timeout: cfg.ReactorDefaultTimeout,
	}
}

// Walk probes topo's root and, per filter, its reachable descendants,
// producing a Report (spec §4.6's walk protocol). A probe failure at
// level 0 (the root) is fatal to the caller; failures deeper in the tree
// are captured per-rank and do not abort the walk (spec §7).
func (w *Walker) Walk(ctx context.Context, topo *Topology, filter Filter) (*Report, error) {
	resp, err := w.probe(ctx, topo.Rank)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Transport, 0, err, "health probe of root rank %d failed", topo.Rank)
	}
	root := w.buildNode(ctx, resp, topo, 0, nil, filter)
	w.markHighlights(root)
	var fill func(*NodeView) []int
	fill = func(n *NodeView) []int {
		if n == nil {
			return nil
		}
		s := []int{n.Rank}
		for _, c := range n.Children {
			s = append(s, fill(c)...)
		}
		n.Subtree = s
		return s
	}
	fill(root)
	return &Report{Root: root}, nil
}

// buildNode never returns an error: once the root has been probed
// successfully, every deeper failure is recorded on the affected
// NodeView instead of aborting the walk.
func (w *Walker) buildNode(ctx context.Context, resp *healthWire, topo *Topology, level int, prefix []Connector, filter Filter) *NodeView {
	n := &NodeView{
		Rank:     resp.Rank,
		Status:   ParseStatus(resp.Status),
		Duration: resp.Duration,
		Prefix:   prefix,
	}
	var descend bool
	n.Print, descend = filter(*n)
	if !descend || len(resp.Children) == 0 {
		return n
	}

	children := make([]*NodeView, len(resp.Children))
	g, gctx := errgroup.WithContext(ctx)
	for i, cs := range resp.Children {
		i, cs := i, cs
		cp := childPrefix(prefix, i, len(resp.Children))
		childTopo := topo.Find(cs.Rank)
		g.Go(func() error {
			children[i] = w.buildChild(gctx, cs, childTopo, level+1, cp, filter)
			return nil
		})
	}
	_ = g.Wait() // buildChild never returns an error (failures are per-rank)

	out := children[:0]
	for _, c := range children {
		if c != nil {
			out = append(out, c)
		}
	}
	n.Children = out
	return n
}

// buildChild resolves one reported child: an already-dead child
// (offline/lost, per its parent's own health response) is ghost-filled
// without contacting the network; a live one is probed directly.
func (w *Walker) buildChild(ctx context.Context, cs healthChild, topo *Topology, level int, prefix []Connector, filter Filter) *NodeView {
	status := ParseStatus(cs.Status)
	if status == StatusOffline || status == StatusLost {
		if w.NoGhost {
			return nil
		}
		n := w.ghostWalk(topo, level, prefix, status)
		if n != nil {
			n.Error = cs.Error
		}
		return n
	}

	resp, err := w.probe(ctx, cs.Rank)
	if err != nil {
		w.log.Warningf("health probe of rank %d failed: %v", cs.Rank, err)
		n := &NodeView{Rank: cs.Rank, Status: StatusLost, Error: err.Error(), Prefix: prefix, Print: true}
		if !w.NoGhost && topo != nil {
			for i, c := range topo.Children {
				n.Children = append(n.Children, w.ghostWalk(c, level+1, childPrefix(prefix, i, len(topo.Children)), StatusLost))
			}
		}
		return n
	}
	return w.buildNode(ctx, resp, topo, level, prefix, filter)
}

// ghostWalk walks the static topology under topo, marking every
// synthesized entry ghost=true and copying status down to descendants
// (spec §4.6 status_ghostwalk); it never talks to the network.
func (w *Walker) ghostWalk(topo *Topology, level int, prefix []Connector, status Status) *NodeView {
	if topo == nil {
		return nil
	}
	n := &NodeView{Rank: topo.Rank, Status: status, Ghost: true, Print: true, Prefix: prefix}
	for i, c := range topo.Children {
		cp := childPrefix(prefix, i, len(topo.Children))
		n.Children = append(n.Children, w.ghostWalk(c, level+1, cp, status))
	}
	return n
}

// markHighlights flags every NodeView on a path to a highlighted rank:
// a subtree "intersects the highlight" (spec §4.6 "Coloring") if its own
// rank or any descendant's rank is in w.Highlight.
func (w *Walker) markHighlights(root *NodeView) {
	if len(w.Highlight) == 0 {
		return
	}
	var mark func(*NodeView) bool
	mark = func(n *NodeView) bool {
		if n == nil {
			return false
		}
		hit := w.Highlight[n.Rank]
		for _, c := range n.Children {
			if mark(c) {
				hit = true
			}
		}
		n.Highlighted = hit
		return hit
	}
	mark(root)
}

// probe issues a single streaming overlay.health RPC against rank and
// returns its first response (spec §4.6: "issue a streaming health RPC
// to 'rank' ... for each response"). The stream is explicitly canceled
// afterward — a snapshot walk only needs one observation per rank.
func (w *Walker) probe(ctx context.Context, rank int) (*healthWire, error) {
	req, err := message.New(message.TypeRequest)
	if err != nil {
		return nil, err
	}
	if err := req.SetTopic("overlay.health"); err != nil {
		return nil, err
	}
	if err := req.SetNodeid(uint32(rank)); err != nil {
		return nil, err
	}

	ch, tag, err := w.h.SendStreamingRequest(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = w.h.CancelStreaming(tag)
		w.h.ReleaseTag(tag)
	}()

	timeout := w.Timeout
	if timeout <= 0 {
		timeout = w.cfg.ReactorDefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ferrors.New(ferrors.Transport, 0, "rank %d: health stream closed with no response", rank)
		}
		if errnum, _ := resp.Errnum(); errnum != 0 {
			payload, _ := resp.Payload()
			return nil, ferrors.New(ferrors.Application, int32(errnum), "rank %d: %s", rank, string(payload))
		}
		var hw healthWire
		if err := resp.UnpackTyped(&hw); err != nil {
			return nil, err
		}
		return &hw, nil
	case <-ctx.Done():
		return nil, ferrors.Wrap(ferrors.Timeout, 0, ctx.Err(), "rank %d: probe canceled", rank)
	case <-timer.C:
		return nil, ferrors.New(ferrors.Timeout, 0, "rank %d: health probe timed out after %s", rank, timeout)
	}
}

// Disconnect sends overlay.disconnect-subtree to parentRank, instructing
// it to drop the subtree rooted at targetRank (spec §4.6 "Disconnect").
func (w *Walker) Disconnect(parentRank, targetRank int) error {
	req, err := message.New(message.TypeRequest)
	if err != nil {
		return err
	}
	if err := req.SetTopic("overlay.disconnect-subtree"); err != nil {
		return err
	}
	if err := req.SetNodeid(uint32(parentRank)); err != nil {
		return err
	}
	if err := req.PackTyped(map[string]int{"rank": targetRank}); err != nil {
		return err
	}
	ch, err := w.h.SendRequest(req)
	if err != nil {
		return err
	}
	resp, ok := <-ch
	if !ok {
		return ferrors.New(ferrors.Transport, 0, "disconnect-subtree: no response from rank %d", parentRank)
	}
	if errnum, _ := resp.Errnum(); errnum != 0 {
		payload, _ := resp.Payload()
		return ferrors.New(ferrors.Application, int32(errnum), "disconnect-subtree rank %d: %s", parentRank, string(payload))
	}
	return nil
}
