package overlay_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/flux-framework/flux-go/handle"
	"github.com/flux-framework/flux-go/internal/fconfig"
	"github.com/flux-framework/flux-go/message"
	"github.com/flux-framework/flux-go/overlay"
	"github.com/flux-framework/flux-go/transport/inproc"
)

// newFakeBroker wires a client/server handle pair and teaches the server
// to answer overlay.topology/overlay.health for the tree described in
// spec S5/S6: root 0 with children 1 (full) and 2 (lost, "socket
// closed").
func newFakeBroker() (client *handle.Handle, stop func()) {
	a, b := inproc.Pair(8)
	client = handle.New(a, fconfig.New())
	server := handle.New(b, fconfig.New())
	client.Start()
	server.Start()
	go client.Reactor().Run()
	go server.Reactor().Run()

	server.On(message.Match{TypeMask: message.TypeRequest, Topic: "overlay.topology"},
		func(h *handle.Handle, req *message.Message) error {
			resp, err := message.New(message.TypeResponse)
			Expect(err).NotTo(HaveOccurred())
			tag, _ := req.Matchtag()
			Expect(resp.SetMatchtag(tag)).To(Succeed())
			Expect(resp.PackTyped(map[string]any{
				"rank": 0, "size": 3,
				"children": []map[string]any{
					{"rank": 1, "size": 1, "children": []any{}},
					{"rank": 2, "size": 1, "children": []any{}},
				},
			})).To(Succeed())
			return h.Send(resp)
		})

	server.On(message.Match{TypeMask: message.TypeRequest, Topic: "overlay.health"},
		func(h *handle.Handle, req *message.Message) error {
			rank, _ := req.Nodeid()
			resp, err := message.New(message.TypeResponse)
			Expect(err).NotTo(HaveOccurred())
			tag, _ := req.Matchtag()
			Expect(resp.SetMatchtag(tag)).To(Succeed())
			switch rank {
			case 0:
				Expect(resp.PackTyped(map[string]any{
					"rank": 0, "status": "partial", "duration": 1.5,
					"children": []map[string]any{
						{"rank": 1, "status": "full", "duration": 2.0},
						{"rank": 2, "status": "lost", "duration": 0.0, "error": "socket closed"},
					},
				})).To(Succeed())
			case 1:
				Expect(resp.PackTyped(map[string]any{
					"rank": 1, "status": "full", "duration": 2.0, "children": []any{},
				})).To(Succeed())
			default:
				Expect(resp.SetErrnum(1)).To(Succeed())
			}
			return h.Send(resp)
		})

	return client, func() { client.Close(); server.Close() }
}

var _ = Describe("Overlay health walker", func() {
	var client *handle.Handle
	var stop func()
	var topo *overlay.Topology

	BeforeEach(func() {
		client, stop = newFakeBroker()
		var err error
		topo, err = overlay.FetchTopology(client, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(topo.Rank).To(Equal(0))
		Expect(topo.Children).To(HaveLen(2))
	})

	AfterEach(func() { stop() })

	It("reports the root as partial and ghost-fills the lost child under show_badtrees (spec S5)", func() {
		w := overlay.NewWalker(client, fconfig.New())
		report, err := w.Walk(context.Background(), topo, overlay.ShowBadTrees)
		Expect(err).NotTo(HaveOccurred())

		Expect(report.Root.Status).To(Equal(overlay.StatusPartial))
		Expect(report.Root.Print).To(BeTrue())
		Expect(report.Root.Children).To(HaveLen(2))

		var rank1, rank2 *overlay.NodeView
		for _, c := range report.Root.Children {
			switch c.Rank {
			case 1:
				rank1 = c
			case 2:
				rank2 = c
			}
		}
		Expect(rank1).NotTo(BeNil())
		Expect(rank1.Status).To(Equal(overlay.StatusFull))
		Expect(rank1.Print).To(BeFalse()) // full nodes are omitted by show_badtrees

		Expect(rank2).NotTo(BeNil())
		Expect(rank2.Status).To(Equal(overlay.StatusLost))
		Expect(rank2.Ghost).To(BeTrue())
		Expect(rank2.Print).To(BeTrue())
		Expect(rank2.Error).To(Equal("socket closed"))
	})

	It("prints every node exactly once under show_all (testable property #10)", func() {
		w := overlay.NewWalker(client, fconfig.New())
		report, err := w.Walk(context.Background(), topo, overlay.ShowAll)
		Expect(err).NotTo(HaveOccurred())

		seen := map[int]int{}
		report.Walk(func(n *overlay.NodeView) { seen[n.Rank]++ })
		Expect(seen).To(Equal(map[int]int{0: 1, 1: 1, 2: 1}))

		var printed []int
		report.Walk(func(n *overlay.NodeView) {
			if n.Print {
				printed = append(printed, n.Rank)
			}
		})
		Expect(printed).To(ConsistOf(0, 1, 2))
	})

	It("aggregates lost-with-error ranks under subcmd_errors", func() {
		w := overlay.NewWalker(client, fconfig.New())
		report, err := w.Walk(context.Background(), topo, overlay.ShowAll)
		Expect(err).NotTo(HaveOccurred())

		groups := overlay.Errors(report)
		Expect(groups).To(HaveLen(1))
		Expect(groups[0].Text).To(Equal("socket closed"))
		Expect(groups[0].Ranks).To(ConsistOf(2))
		Expect(groups[0].LostParentRanks).To(BeEmpty())
	})

	It("shows only the root under show_top", func() {
		w := overlay.NewWalker(client, fconfig.New())
		report, err := w.Walk(context.Background(), topo, overlay.ShowTop)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Root.Print).To(BeTrue())
		Expect(report.Root.Children).To(BeEmpty())
	})

	It("marks the path to a highlighted rank", func() {
		w := overlay.NewWalker(client, fconfig.New())
		w.Highlight = overlay.ParseHighlight("2", []int{0, 1, 2}, nil)
		report, err := w.Walk(context.Background(), topo, overlay.ShowAll)
		Expect(err).NotTo(HaveOccurred())

		Expect(report.Root.Highlighted).To(BeTrue()) // ancestor of rank 2
		for _, c := range report.Root.Children {
			if c.Rank == 2 {
				Expect(c.Highlighted).To(BeTrue())
			} else {
				Expect(c.Highlighted).To(BeFalse())
			}
		}
	})

	It("fails Walk fatally when the root itself cannot be probed", func() {
		// Probing a topology whose root rank the fake server doesn't know
		// about (3) triggers the server's default branch (errnum=1),
		// which must be fatal at level 0 (spec §4.6 failure semantics).
		badRoot := &overlay.Topology{Rank: 3}
		w := overlay.NewWalker(client, fconfig.New())
		w.Timeout = 200 * time.Millisecond
		_, err := w.Walk(context.Background(), badRoot, overlay.ShowAll)
		Expect(err).To(HaveOccurred())
	})
})
