package overlay

import (
	"github.com/flux-framework/flux-go/handle"
	"github.com/flux-framework/flux-go/internal/ferrors"
	"github.com/flux-framework/flux-go/message"
)

// Topology is the static, fixed parent/child broker tree a rank reports
// (spec §4.6 "Topology"). It is fetched once per Walk and not re-read
// mid-walk (SPEC_FULL.md §11, open question #2).
type Topology struct {
	Rank     int
	Size     int
	Children []*Topology
}

// topologyWire mirrors the overlay.topology RPC response shape (spec
// §6): nested { rank, size, children: [...] }.
type topologyWire struct {
	Rank     int            `json:"rank"`
	Size     int            `json:"size"`
	Children []topologyWire `json:"children"`
}

func fromWire(w topologyWire) *Topology {
	t := &Topology{Rank: w.Rank, Size: w.Size}
	for _, c := range w.Children {
		t.Children = append(t.Children, fromWire(c))
	}
	return t
}

// FetchTopology issues the overlay.topology RPC against rank and decodes
// the nested tree (spec §6 Topology RPC).
func FetchTopology(h *handle.Handle, rank int) (*Topology, error) {
	req, err := message.New(message.TypeRequest)
	if err != nil {
		return nil, err
	}
	if err := req.SetTopic("overlay.topology"); err != nil {
		return nil, err
	}
	if err := req.PackTyped(map[string]int{"rank": rank}); err != nil {
		return nil, err
	}

	ch, err := h.SendRequest(req)
	if err != nil {
		return nil, err
	}
	resp, ok := <-ch
	if !ok {
		return nil, ferrors.New(ferrors.Transport, 0, "overlay.topology: no response from rank %d", rank)
	}
	if errnum, _ := resp.Errnum(); errnum != 0 {
		payload, _ := resp.Payload()
		return nil, ferrors.New(ferrors.Application, int32(errnum), "overlay.topology rank %d: %s", rank, string(payload))
	}
	var w topologyWire
	if err := resp.UnpackTyped(&w); err != nil {
		return nil, err
	}
	return fromWire(w), nil
}

// Find locates the subtree rooted at rank within t, or nil.
func (t *Topology) Find(rank int) *Topology {
	if t == nil {
		return nil
	}
	if t.Rank == rank {
		return t
	}
	for _, c := range t.Children {
		if found := c.Find(rank); found != nil {
			return found
		}
	}
	return nil
}

// Descendants returns every rank in the subtree rooted at t, t.Rank
// included, in pre-order.
func (t *Topology) Descendants() []int {
	if t == nil {
		return nil
	}
	out := []int{t.Rank}
	for _, c := range t.Children {
		out = append(out, c.Descendants()...)
	}
	return out
}
