package handle

import (
	"github.com/flux-framework/flux-go/message"
)

// HandlerFunc processes one inbound request/event. For a request, the
// handler is responsible for eventually sending a response (e.g. with
// Handle.Send), or for returning an error, which the Handle turns into
// an error response, unless FlagNoResponse was set on the incoming
// message.
type HandlerFunc func(h *Handle, m *message.Message) error

// dispatchEntry is one registered (type-mask, topic-glob, handler)
// tuple (spec §4.4).
type dispatchEntry struct {
	match   message.Match
	handler HandlerFunc
}

// dispatchTable holds registered entries in registration order; lookup
// walks from most-recently-registered to least, matching spec.md §4.4's
// "most recently registered entry whose type-mask and topic-glob match"
// rule.
type dispatchTable struct {
	entries []*dispatchEntry
}

func newDispatchTable() *dispatchTable { return &dispatchTable{} }

// register appends a new entry and returns a token usable with
// unregister. Appending (rather than prepending) and walking in reverse
// on lookup gives last-registered entries priority without reshuffling
// existing tokens on every call.
func (t *dispatchTable) register(match message.Match, fn HandlerFunc) *dispatchEntry {
	e := &dispatchEntry{match: match, handler: fn}
	t.entries = append(t.entries, e)
	return e
}

func (t *dispatchTable) unregister(e *dispatchEntry) {
	for i, cur := range t.entries {
		if cur == e {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

// lookup returns the most recently registered entry matching m, or nil
// if there is no match (the caller auto-responds ENOSYS for requests).
func (t *dispatchTable) lookup(m *message.Message) *dispatchEntry {
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].match.Matches(m) {
			return t.entries[i]
		}
	}
	return nil
}
