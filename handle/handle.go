// Package handle implements the per-peer façade described in spec §4.4:
// send/receive, publish/subscribe, a dispatch table, matchtag allocation
// bound to the tag pool, an auxiliary-object map, and a pluggable
// transport. Grounded on the teacher's xact/xreg registry idiom for the
// dispatch table and on cmn/cos's named-resource lifecycle pattern for
// aux-object destruction.
package handle

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/flux-framework/flux-go/internal/fconfig"
	"github.com/flux-framework/flux-go/internal/ferrors"
	"github.com/flux-framework/flux-go/internal/flog"
	"github.com/flux-framework/flux-go/message"
	"github.com/flux-framework/flux-go/reactor"
	"github.com/flux-framework/flux-go/tagpool"
	"github.com/flux-framework/flux-go/transport"
)

// Flags control handle-wide behavior (spec §4.4).
type Flags uint8

const (
	// FlagTrace logs every message as it is sent or received.
	FlagTrace Flags = 1 << iota
	// FlagCoproc permits handlers to suspend with an implicit Yield;
	// absent this flag, handlers must be non-blocking.
	FlagCoproc
)

// auxEntry mirrors message.Message's aux slot: a value plus an optional
// destructor run when the handle is destroyed.
type auxEntry struct {
	val     any
	destroy func(any)
}

// waiterEntry backs a pending RPC. A regular request's entry is removed
// after the first matching response; a streaming request's entry stays
// registered across multiple responses until one carries a non-zero
// errnum, matching spec §4.5's "service acknowledges [cancel] with an
// error reply that terminates the stream." The channel is closed when
// the entry is retired so a streaming caller can simply `range` over it.
type waiterEntry struct {
	ch        chan *message.Message
	streaming bool
}

// streamingBufSize sizes a streaming waiter's channel generously enough
// that the reactor goroutine delivering responses never blocks behind a
// slow consumer for long; a non-streaming RPC only ever receives one
// response so it uses a buffer of exactly 1.
const streamingBufSize = 64

// Handle owns a transport, a reactor, a tag pool, a dispatch table, and
// an aux map, per spec §4.4. Construct with New; destroy with Close.
type Handle struct {
	id    string
	cfg   *fconfig.Context
	log   *flog.Logger
	flags Flags

	tr transport.Transport
	r  *reactor.Reactor
	tp *tagpool.Pool

	mu      sync.Mutex
	table   *dispatchTable
	aux     map[string]auxEntry
	waiters map[uint32]*waiterEntry // keyed by matchtag, for RPC-style Recv
	parent  *Handle                 // set for child handles (spec §4.4 nested reactors)
	closed  bool
	seq     uint32 // Publish's per-handle event sequence counter

	mw *reactor.MessageWatcher
}

// New creates a Handle over tr, owning a fresh reactor and tag pool.
// cfg supplies rank/trace/coproc defaults (internal/fconfig); pass
// fconfig.New() when the caller has no process-wide context to share.
func New(tr transport.Transport, cfg *fconfig.Context) *Handle {
	h := &Handle{
		id:      uuid.NewString(),
		cfg:     cfg,
		log:     flog.Default.With("handle"),
		tr:      tr,
		r:       reactor.New(),
		tp:      tagpool.New(),
		table:   newDispatchTable(),
		aux:     make(map[string]auxEntry),
		waiters: make(map[uint32]*waiterEntry),
	}
	if cfg.TraceByDefault {
		h.flags |= FlagTrace
	}
	if cfg.CoprocByDefault {
		h.flags |= FlagCoproc
	}
	h.tp.SetGrowCB(h.onTagpoolGrow)
	h.mw = h.r.NewMessageWatcher(h.pullOne, h.onMessage)
	return h
}

// Identity returns the handle's process-unique identifier (spec §4.4's
// "identity query"), generated once at construction.
func (h *Handle) Identity() string { return h.id }

// Rank returns the broker rank this handle's process believes itself to
// be, cached in the shared fconfig.Context.
func (h *Handle) Rank() uint32 { return h.cfg.Rank }

func (h *Handle) SetFlags(f Flags) { h.mu.Lock(); h.flags = f; h.mu.Unlock() }
func (h *Handle) Flags() Flags     { h.mu.Lock(); defer h.mu.Unlock(); return h.flags }

// Reactor exposes the handle's owned reactor so callers can arm their
// own watchers/timers alongside message dispatch on the same loop.
func (h *Handle) Reactor() *reactor.Reactor { return h.r }

// onTagpoolGrow is the tagpool.GrowFunc; per spec §4.2/§4.4, a grow event
// gives the handle a chance to remap any tag-indexed state. Pending
// waiters are keyed by the tag value itself, which doubling growth never
// changes, so there is nothing to remap today — this hook exists so a
// future indexed-by-slot optimization has a place to plug in.
func (h *Handle) onTagpoolGrow(oldSize, newSize uint32, group bool) {
	h.log.Infof("tagpool grow: %d -> %d (group=%v)", oldSize, newSize, group)
}

// Start begins pumping inbound messages through the dispatch table. The
// caller runs Reactor().Run() to drive delivery; a future's Get runs its
// own private reactor, not this one.
func (h *Handle) Start() {
	h.r.Ref("handle")
	h.mw.Start()
}

// Close tears down the handle: stops the message pump, closes the
// transport, and runs every aux-entry destructor (spec §4.4's handle
// lifetime contract — "destroyed explicitly").
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	aux := h.aux
	h.aux = nil
	h.mu.Unlock()

	h.mw.Stop()
	h.r.Unref("handle")
	err := h.tr.Close()
	for _, e := range aux {
		if e.destroy != nil {
			e.destroy(e.val)
		}
	}
	return err
}

// AuxSet / AuxGet manage handle-scoped auxiliary data (spec §4.4), keyed
// by name, destroyed on Close.
func (h *Handle) AuxSet(name string, val any, destroy func(any)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.aux[name]; ok && old.destroy != nil {
		old.destroy(old.val)
	}
	h.aux[name] = auxEntry{val: val, destroy: destroy}
}

func (h *Handle) AuxGet(name string) (any, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.aux[name]
	if !ok {
		return nil, false
	}
	return e.val, true
}

// On registers a dispatch entry and returns an unregister token.
// Entries are matched most-recently-registered-first (spec §4.4).
func (h *Handle) On(match message.Match, fn HandlerFunc) *dispatchEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.table.register(match, fn)
}

// Off de-registers a dispatch entry.
func (h *Handle) Off(e *dispatchEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.table.unregister(e)
}

// pullOne is the reactor.MessageSource feeding the handle's
// MessageWatcher: it blocks on the transport for one encoded frame,
// decodes it, and hands back a *message.Message.
func (h *Handle) pullOne(stop <-chan struct{}) (any, bool) {
	ctx, cancel := contextFromStop(stop)
	defer cancel()
	b, err := h.tr.Recv(ctx)
	if err != nil {
		return nil, false
	}
	m, err := message.Decode(b)
	if err != nil {
		h.log.Warningf("decode error: %v", err)
		return h.pullOne(stop)
	}
	return m, true
}

func contextFromStop(stop <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// onMessage runs on the reactor goroutine for every decoded inbound
// message: it routes streaming/request-response replies to a waiting
// Recv, otherwise looks up the dispatch table (spec §4.4's "most
// recently registered entry" rule) and auto-responds ENOSYS when no
// entry matches a request.
func (h *Handle) onMessage(v any) {
	m := v.(*message.Message)
	if h.flags&FlagTrace != 0 {
		h.log.Infof("recv: %s", m.String())
	}

	if m.Type() == message.TypeResponse {
		if tag, err := m.Matchtag(); err == nil && tag != 0 {
			if h.deliverToWaiter(tag, m) {
				return
			}
		}
	}

	h.mu.Lock()
	entry := h.table.lookup(m)
	h.mu.Unlock()

	if entry == nil {
		if m.Type() == message.TypeRequest && !m.Flags().Has(message.FlagNoResponse) {
			h.respondENOSYS(m)
		}
		return
	}

	run := func() {
		if err := entry.handler(h, m); err != nil && m.Type() == message.TypeRequest &&
			!m.Flags().Has(message.FlagNoResponse) {
			h.respondError(m, err)
		}
	}
	if h.Flags()&FlagCoproc != 0 {
		// COPROC handlers run off the reactor goroutine so a Yield
		// inside them can block without stalling dispatch of other
		// messages; Yield itself resynchronizes through the reactor's
		// timer queue to preserve callback ordering on resume.
		h.r.Ref("coproc-task")
		go func() {
			defer h.r.Unref("coproc-task")
			run()
		}()
		return
	}
	run()
}

func (h *Handle) deliverToWaiter(tag uint32, m *message.Message) bool {
	h.mu.Lock()
	w, ok := h.waiters[tag]
	if !ok {
		h.mu.Unlock()
		return false
	}
	terminal := !w.streaming
	if w.streaming {
		if errnum, err := m.Errnum(); err == nil && errnum != 0 {
			terminal = true
		}
	}
	if terminal {
		delete(h.waiters, tag)
	}
	h.mu.Unlock()

	w.ch <- m
	if terminal {
		close(w.ch)
	}
	return true
}

func (h *Handle) respondENOSYS(req *message.Message) {
	resp, _ := message.New(message.TypeResponse)
	tag, _ := req.Matchtag()
	_ = resp.SetMatchtag(tag)
	_ = resp.SetErrnum(ferrors.ENOSYS)
	resp.SetCred(req.Cred())
	if err := h.sendRaw(resp); err != nil {
		h.log.Warningf("ENOSYS auto-response failed: %v", err)
	}
}

func (h *Handle) respondError(req *message.Message, cause error) {
	resp, _ := message.New(message.TypeResponse)
	tag, _ := req.Matchtag()
	_ = resp.SetMatchtag(tag)
	errno := uint32(1)
	if fe, ok := cause.(*ferrors.Error); ok && fe.Errno != 0 {
		errno = uint32(fe.Errno)
	}
	_ = resp.SetErrnum(errno)
	resp.SetCred(req.Cred())
	resp.SetPayload([]byte(cause.Error()))
	if err := h.sendRaw(resp); err != nil {
		h.log.Warningf("error response failed: %v", err)
	}
}

// Send encodes and sends m as-is (spec §4.4's raw send), without
// allocating a matchtag. Use SendRequest for request/response RPCs.
func (h *Handle) Send(m *message.Message) error { return h.sendRaw(m) }

func (h *Handle) sendRaw(m *message.Message) error {
	if h.flags&FlagTrace != 0 {
		h.log.Infof("send: %s", m.String())
	}
	return h.tr.Send(m.Encode())
}

// SendRequest allocates a regular matchtag, stamps it on req, sends it,
// and returns a channel that receives the single paired response (spec
// §4.4 / §4.1's request/response pairing).
func (h *Handle) SendRequest(req *message.Message) (<-chan *message.Message, error) {
	return h.sendRequest(req, false)
}

// SendStreamingRequest sets the streaming flag on req (spec §3 invariant
// 5: "zero or more responses followed by a fulfilling or error
// terminator") and returns a channel that delivers every response until
// one carries a non-zero errnum, at which point the channel is closed.
// The caller is responsible for calling ReleaseTag once done (normally
// after the channel closes, or after CancelStreaming).
func (h *Handle) SendStreamingRequest(req *message.Message) (<-chan *message.Message, uint32, error) {
	if err := req.AddFlag(message.FlagStreaming); err != nil {
		return nil, 0, err
	}
	ch, err := h.sendRequest(req, true)
	if err != nil {
		return nil, 0, err
	}
	tag, _ := req.Matchtag()
	return ch, tag, nil
}

func (h *Handle) sendRequest(req *message.Message, streaming bool) (<-chan *message.Message, error) {
	tag, err := h.tp.AllocRegular()
	if err != nil {
		return nil, err
	}
	if err := req.SetMatchtag(tag); err != nil {
		h.tp.FreeRegular(tag)
		return nil, err
	}
	bufSize := 1
	if streaming {
		bufSize = streamingBufSize
	}
	w := &waiterEntry{ch: make(chan *message.Message, bufSize), streaming: streaming}
	h.mu.Lock()
	h.waiters[tag] = w
	h.mu.Unlock()

	if err := h.sendRaw(req); err != nil {
		h.mu.Lock()
		delete(h.waiters, tag)
		h.mu.Unlock()
		h.tp.FreeRegular(tag)
		return nil, err
	}
	return w.ch, nil
}

// CancelStreaming sends a CONTROL/cancel on tag (spec §4.5) so the
// service terminates the stream with an error response; the caller still
// observes that terminal response on the channel SendStreamingRequest
// returned and should ReleaseTag afterward.
func (h *Handle) CancelStreaming(tag uint32) error {
	cancel, err := message.NewCancel(tag)
	if err != nil {
		return err
	}
	return h.sendRaw(cancel)
}

// ReleaseTag frees a regular matchtag once its response has been
// consumed (or the caller gives up waiting for it).
func (h *Handle) ReleaseTag(tag uint32) {
	h.mu.Lock()
	delete(h.waiters, tag)
	h.mu.Unlock()
	if tagpool.IsGroup(tag) {
		h.tp.FreeGroup(tag)
	} else {
		h.tp.FreeRegular(tag)
	}
}

// Publish sends an event on topic with an auto-incrementing sequence
// number (spec's event-topics surface, §6 RPC surfaces).
func (h *Handle) Publish(topic string, payload []byte) error {
	m, err := message.New(message.TypeEvent)
	if err != nil {
		return err
	}
	if err := m.SetTopic(topic); err != nil {
		return err
	}
	if payload != nil {
		m.SetPayload(payload)
	}
	h.mu.Lock()
	seq := h.nextSeq()
	h.mu.Unlock()
	if err := m.SetSequence(seq); err != nil {
		return err
	}
	return h.sendRaw(m)
}

// nextSeq must be called with h.mu held; it is a monotonic per-handle
// counter backing Publish's sequence aux slot.
func (h *Handle) nextSeq() uint32 {
	h.seq++
	return h.seq
}

// Subscribe registers a dispatch entry matching events on a topic
// prefix, the Go-side equivalent of the event service's subscribe RPC.
// The prefix is turned into a glob by appending "*" so "a.b" matches
// "a.b", "a.b.c", etc., per the RFC-3 style hierarchy spec §6 describes.
func (h *Handle) Subscribe(topicPrefix string, fn func(h *Handle, m *message.Message)) *dispatchEntry {
	pattern := topicPrefix
	if pattern != "" && pattern != "*" {
		pattern += "*"
	}
	match := message.Match{TypeMask: message.TypeEvent, Topic: pattern}
	return h.On(match, func(h *Handle, m *message.Message) error {
		fn(h, m)
		return nil
	})
}

// Unsubscribe removes a Subscribe-installed entry.
func (h *Handle) Unsubscribe(e *dispatchEntry) { h.Off(e) }

// Child creates a handle sharing this handle's transport and tag pool
// but owning its own reactor, without requiring a second transport
// connection (spec §4.4/§4.5 nested reactors). The child records its
// parent, but the parent does not track its children: closing the parent
// closes the shared transport and does not close the child, stop its
// reactor, or run its aux destructors.
func (h *Handle) Child() *Handle {
	child := &Handle{
		id:      uuid.NewString(),
		cfg:     h.cfg,
		log:     h.log.With("child"),
		tr:      h.tr,
		r:       reactor.New(),
		tp:      h.tp,
		table:   newDispatchTable(),
		aux:     make(map[string]auxEntry),
		waiters: make(map[uint32]*waiterEntry),
		parent:  h,
	}
	return child
}
