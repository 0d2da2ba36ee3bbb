package message

import (
	"encoding/hex"
	"strings"

	"github.com/flux-framework/flux-go/internal/ferrors"
)

// EnableRouting inserts the empty delimiter frame and sets FlagRoute,
// idempotently (spec §4.1).
func (m *Message) EnableRouting() {
	if m.flags.Has(FlagRoute) {
		return
	}
	m.flags |= FlagRoute
	if m.route == nil {
		m.route = [][]byte{}
	}
}

// Push prepends an id frame to the routing stack (rejected if routing is
// not enabled). Pushes accumulate LIFO: the most recently pushed id is
// popped first, matching dealer-style hop bookkeeping.
func (m *Message) Push(id []byte) error {
	if !m.flags.Has(FlagRoute) {
		return ferrors.New(ferrors.Protocol, 0, "EINVAL: routing not enabled")
	}
	cp := append([]byte(nil), id...)
	m.route = append([][]byte{cp}, m.route...)
	return nil
}

// Pop removes the head id frame and returns its contents.
func (m *Message) Pop() ([]byte, error) {
	if !m.flags.Has(FlagRoute) {
		return nil, ferrors.New(ferrors.Protocol, 0, "EINVAL: routing not enabled")
	}
	if len(m.route) == 0 {
		return nil, ferrors.New(ferrors.Protocol, 0, "EPROTO: routing stack empty")
	}
	id := m.route[0]
	m.route = m.route[1:]
	return id, nil
}

// RouteCount returns the number of id frames currently on the stack.
func (m *Message) RouteCount() int { return len(m.route) }

// RouteFirst returns the head (most recently pushed) id frame.
func (m *Message) RouteFirst() ([]byte, bool) {
	if len(m.route) == 0 {
		return nil, false
	}
	return m.route[0], true
}

// RouteLast returns the id frame just before the delimiter (the first
// hop ever pushed).
func (m *Message) RouteLast() ([]byte, bool) {
	if len(m.route) == 0 {
		return nil, false
	}
	return m.route[len(m.route)-1], true
}

// RouteString renders the routing stack for diagnostics: id hex-fragments
// (truncated to 8 characters) joined with '!', head first.
func (m *Message) RouteString() string {
	if len(m.route) == 0 {
		return ""
	}
	parts := make([]string, len(m.route))
	for i, id := range m.route {
		h := hex.EncodeToString(id)
		if len(h) > 8 {
			h = h[:8]
		}
		parts[i] = h
	}
	return strings.Join(parts, "!")
}
