// Command flux-broker-sim is a manual-exercise harness: it accepts TCP
// handle connections and answers overlay.topology/overlay.health for a
// synthetic rank tree, so flux-overlay can be driven end to end without
// a real broker. Grounded on the teacher's tools/node.go test-harness
// bootstrap (TCP accept loop driving a handle's reactor per connection).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/flux-framework/flux-go/handle"
	"github.com/flux-framework/flux-go/internal/fconfig"
	"github.com/flux-framework/flux-go/internal/flog"
	"github.com/flux-framework/flux-go/message"
	"github.com/flux-framework/flux-go/transport/tcp"
)

var log = flog.Default.With("broker-sim")

// simNode is one synthetic rank in the tree this harness serves.
type simNode struct {
	rank     int
	status   string // "full", "partial", "degraded", "offline", "lost"
	err      string
	children []*simNode
}

func (n *simNode) find(rank int) *simNode {
	if n.rank == rank {
		return n
	}
	for _, c := range n.children {
		if found := c.find(rank); found != nil {
			return found
		}
	}
	return nil
}

func (n *simNode) size() int {
	total := 1
	for _, c := range n.children {
		total += c.size()
	}
	return total
}

func main() {
	addr := pflag.StringP("listen", "l", "127.0.0.1:8765", "address to listen on")
	tree := pflag.StringP("tree", "t", "0:1,2;1:3", "tree spec: 'parent:child,child;parent:child,...'")
	bad := pflag.StringP("bad", "b", "", "comma-separated rank=status[:error] overrides, e.g. '2=lost:socket closed'")
	pflag.Parse()

	root, err := parseTree(*tree, *bad)
	if err != nil {
		fmt.Fprintln(os.Stderr, "flux-broker-sim:", err)
		os.Exit(1)
	}

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "flux-broker-sim:", err)
		os.Exit(1)
	}
	log.Infof("listening on %s, serving rank %d (%d ranks)", *addr, root.rank, root.size())

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Warningf("accept: %v", err)
			continue
		}
		go serve(conn, root)
	}
}

func serve(conn net.Conn, root *simNode) {
	tr := tcp.New(conn)
	h := handle.New(tr, fconfig.New())
	h.Start()
	defer h.Close()

	h.On(message.Match{TypeMask: message.TypeRequest, Topic: "overlay.topology"},
		func(h *handle.Handle, req *message.Message) error {
			return respondTopology(h, req, root)
		})
	h.On(message.Match{TypeMask: message.TypeRequest, Topic: "overlay.health"},
		func(h *handle.Handle, req *message.Message) error {
			return respondHealth(h, req, root)
		})
	h.On(message.Match{TypeMask: message.TypeRequest, Topic: "overlay.disconnect-subtree"},
		func(h *handle.Handle, req *message.Message) error {
			resp, err := message.New(message.TypeResponse)
			if err != nil {
				return err
			}
			tag, _ := req.Matchtag()
			if err := resp.SetMatchtag(tag); err != nil {
				return err
			}
			return h.Send(resp)
		})

	if err := h.Reactor().Run(); err != nil {
		log.Infof("connection closed: %v", err)
	}
}

type topologyWire struct {
	Rank     int            `json:"rank"`
	Size     int            `json:"size"`
	Children []topologyWire `json:"children"`
}

func toWire(n *simNode) topologyWire {
	w := topologyWire{Rank: n.rank, Size: n.size()}
	for _, c := range n.children {
		w.Children = append(w.Children, toWire(c))
	}
	return w
}

func respondTopology(h *handle.Handle, req *message.Message, root *simNode) error {
	var args struct {
		Rank int `json:"rank"`
	}
	if err := req.UnpackTyped(&args); err != nil {
		return err
	}
	resp, err := message.New(message.TypeResponse)
	if err != nil {
		return err
	}
	tag, _ := req.Matchtag()
	if err := resp.SetMatchtag(tag); err != nil {
		return err
	}
	n := root.find(args.Rank)
	if n == nil {
		return resp.SetErrnum(2)
	}
	if err := resp.PackTyped(toWire(n)); err != nil {
		return err
	}
	return h.Send(resp)
}

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

func respondHealth(h *handle.Handle, req *message.Message, root *simNode) error {
	rank, err := req.Nodeid()
	if err != nil {
		return err
	}
	resp, err := message.New(message.TypeResponse)
	if err != nil {
		return err
	}
	tag, _ := req.Matchtag()
	if err := resp.SetMatchtag(tag); err != nil {
		return err
	}

	n := root.find(int(rank))
	if n == nil {
		return resp.SetErrnum(2)
	}
	hw := healthWire{Rank: n.rank, Status: n.status, Duration: 0.001}
	for _, c := range n.children {
		hw.Children = append(hw.Children, healthChild{Rank: c.rank, Status: c.status, Duration: 0.001, Error: c.err})
	}
	if err := resp.PackTyped(hw); err != nil {
		return err
	}
	return h.Send(resp)
}

// parseTree builds a simNode tree from a "parent:child,child;..." spec and
// applies "rank=status[:error]" overrides, defaulting every rank to "full".
func parseTree(spec, overrides string) (*simNode, error) {
	nodes := map[int]*simNode{}
	get := func(rank int) *simNode {
		n, ok := nodes[rank]
		if !ok {
			n = &simNode{rank: rank, status: "full"}
			nodes[rank] = n
		}
		return n
	}

	var rootRank = -1
	for _, edge := range strings.Split(spec, ";") {
		edge = strings.TrimSpace(edge)
		if edge == "" {
			continue
		}
		parts := strings.SplitN(edge, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("bad tree edge %q", edge)
		}
		parentRank, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("bad parent rank in %q: %w", edge, err)
		}
		if rootRank == -1 {
			rootRank = parentRank
		}
		parent := get(parentRank)
		for _, childTok := range strings.Split(parts[1], ",") {
			childTok = strings.TrimSpace(childTok)
			if childTok == "" {
				continue
			}
			childRank, err := strconv.Atoi(childTok)
			if err != nil {
				return nil, fmt.Errorf("bad child rank in %q: %w", edge, err)
			}
			parent.children = append(parent.children, get(childRank))
		}
	}
	if rootRank == -1 {
		return nil, fmt.Errorf("empty tree spec")
	}

	for _, tok := range strings.Split(overrides, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		kv := strings.SplitN(tok, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("bad override %q", tok)
		}
		rank, err := strconv.Atoi(kv[0])
		if err != nil {
			return nil, fmt.Errorf("bad override rank in %q: %w", tok, err)
		}
		statusAndErr := strings.SplitN(kv[1], ":", 2)
		n := get(rank)
		n.status = statusAndErr[0]
		if len(statusAndErr) == 2 {
			n.err = statusAndErr[1]
		}
	}

	return get(rootRank), nil
}
