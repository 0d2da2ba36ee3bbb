// Package message implements the Flux wire envelope: an ordered list of
// opaque byte frames with a fixed binary codec, used by every peer
// regardless of implementation language. See SPEC_FULL.md §3 for the
// exact byte layout this package must reproduce.
package message

import (
	"sync/atomic"

	"github.com/flux-framework/flux-go/internal/ferrors"
)

// Type is the 4-bit message type enumeration stored in the proto frame.
type Type uint8

const (
	TypeRequest  Type = 0x01
	TypeResponse Type = 0x02
	TypeEvent    Type = 0x04
	TypeControl  Type = 0x08

	// TypeAny matches every type; also used as TypeMask.
	TypeAny  Type = 0x0f
	TypeMask Type = 0x0f
)

func (t Type) String() string {
	switch t {
	case TypeRequest:
		return "request"
	case TypeResponse:
		return "response"
	case TypeEvent:
		return "event"
	case TypeControl:
		return "control"
	default:
		return "unknown"
	}
}

// Flags is the per-message bitmask (spec §3).
type Flags uint8

const (
	FlagTopic Flags = 1 << iota
	FlagPayload
	FlagNoResponse
	FlagRoute
	FlagUpstream
	FlagPrivate
	FlagStreaming
	FlagUser1
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Role bits named in rolemask (spec §3).
const (
	RoleOwner uint32 = 1 << iota
	RoleUser
	RoleLocal
)

// Sentinels for userid and nodeid fields.
const (
	UserUnknown uint32 = 0xFFFFFFFF

	NodeAny      uint32 = 0xFFFFFFFF
	NodeUpstream uint32 = 0xFFFFFFFE
)

// ControlType distinguishes control sub-messages (spec §11, control.c).
type ControlType int32

const (
	ControlCancel   ControlType = 1
	ControlKeepalive ControlType = 2
)

// auxEntry is a named auxiliary value with an optional destructor, per
// the flux_msg_aux_set/get contract (SPEC_FULL.md §3).
type auxEntry struct {
	val     any
	destroy func(any)
}

// Message is the frame-list value type. The zero value is not valid;
// construct with New. Message is not safe for concurrent mutation, but
// Incref/Decref are safe to call from multiple goroutines (they only
// touch the shared refcount).
type Message struct {
	mtype    Type
	flags    Flags
	userid   uint32
	rolemask uint32
	aux1     uint32 // (nodeid | errnum | sequence | ctype) depending on type
	aux2     uint32 // (matchtag | status) depending on type

	topic   string
	payload []byte

	// route holds pushed peer ids, head = most recently pushed (LIFO).
	route [][]byte

	aux map[string]auxEntry

	// lastErr records the most recent Unpack failure (spec §4.1).
	lastErr string

	// jsonCache holds the payload string for the generic path.
	jsonCache *cachedJSON

	refs *atomic.Int32
}

// New creates a message of the given type with all other fields empty
// and the proto frame implicitly initialized. typ must be one of
// TypeRequest/TypeResponse/TypeEvent/TypeControl.
func New(typ Type) (*Message, error) {
	switch typ {
	case TypeRequest, TypeResponse, TypeEvent, TypeControl:
	default:
		return nil, ferrors.New(ferrors.Protocol, 0, "invalid message type %#x", typ)
	}
	m := &Message{
		mtype:    typ,
		userid:   UserUnknown,
		rolemask: 0,
		refs:     new(atomic.Int32),
	}
	m.refs.Store(1)
	return m, nil
}

func (m *Message) Type() Type   { return m.mtype }
func (m *Message) Flags() Flags { return m.flags }

// SetFlags validates the streaming/no-response mutual exclusion (spec
// invariant testable property #2) before storing.
func (m *Message) SetFlags(f Flags) error {
	if f.Has(FlagStreaming) && f.Has(FlagNoResponse) {
		return ferrors.ErrBothFlags
	}
	m.flags = f
	return nil
}

func (m *Message) AddFlag(f Flags) error { return m.SetFlags(m.flags | f) }

// Cred is the (userid, rolemask) credential pair attached to a message.
type Cred struct {
	UserID   uint32
	RoleMask uint32
}

func (m *Message) Cred() Cred { return Cred{UserID: m.userid, RoleMask: m.rolemask} }

func (m *Message) SetCred(c Cred) { m.userid = c.UserID; m.rolemask = c.RoleMask }

// Topic / SetTopic.
func (m *Message) Topic() (string, bool) { return m.topic, m.flags.Has(FlagTopic) }

func (m *Message) SetTopic(topic string) error {
	if topic == "" {
		return ferrors.New(ferrors.Protocol, 0, "EINVAL: empty topic")
	}
	m.topic = topic
	m.flags |= FlagTopic
	return nil
}

// Payload / SetPayload.
func (m *Message) Payload() ([]byte, bool) { return m.payload, m.flags.Has(FlagPayload) }

func (m *Message) SetPayload(p []byte) {
	m.payload = p
	m.jsonCache = nil
	if p == nil {
		m.flags &^= FlagPayload
		return
	}
	m.flags |= FlagPayload
}

// Nodeid / Matchtag / Errnum / Sequence access the per-type auxiliary
// scalar slots (spec §3): (nodeid, matchtag) for requests, (errnum,
// matchtag) for responses, (sequence, _) for events, (ctype, status) for
// control.

func (m *Message) Nodeid() (uint32, error) {
	if m.mtype != TypeRequest {
		return 0, ferrors.New(ferrors.Protocol, 0, "EPROTO: nodeid only valid on request")
	}
	return m.aux1, nil
}

func (m *Message) SetNodeid(id uint32) error {
	if m.mtype != TypeRequest {
		return ferrors.New(ferrors.Protocol, 0, "EPROTO: nodeid only valid on request")
	}
	m.aux1 = id
	return nil
}

func (m *Message) Matchtag() (uint32, error) {
	switch m.mtype {
	case TypeRequest, TypeResponse:
		return m.aux2, nil
	default:
		return 0, ferrors.New(ferrors.Protocol, 0, "EPROTO: matchtag only valid on request/response")
	}
}

func (m *Message) SetMatchtag(tag uint32) error {
	switch m.mtype {
	case TypeRequest, TypeResponse:
		m.aux2 = tag
		return nil
	default:
		return ferrors.New(ferrors.Protocol, 0, "EPROTO: matchtag only valid on request/response")
	}
}

func (m *Message) Errnum() (uint32, error) {
	if m.mtype != TypeResponse {
		return 0, ferrors.New(ferrors.Protocol, 0, "EPROTO: errnum only valid on response")
	}
	return m.aux1, nil
}

func (m *Message) SetErrnum(e uint32) error {
	if m.mtype != TypeResponse {
		return ferrors.New(ferrors.Protocol, 0, "EPROTO: errnum only valid on response")
	}
	m.aux1 = e
	return nil
}

func (m *Message) Sequence() (uint32, error) {
	if m.mtype != TypeEvent {
		return 0, ferrors.New(ferrors.Protocol, 0, "EPROTO: sequence only valid on event")
	}
	return m.aux1, nil
}

func (m *Message) SetSequence(seq uint32) error {
	if m.mtype != TypeEvent {
		return ferrors.New(ferrors.Protocol, 0, "EPROTO: sequence only valid on event")
	}
	m.aux1 = seq
	return nil
}

// Control accesses the (type, status) pair for TypeControl messages,
// backing the future cancellation path and the KEEPALIVE alias
// (SPEC_FULL.md §11, open question #1: KEEPALIVE is ControlKeepalive).
func (m *Message) Control() (ControlType, int32, error) {
	if m.mtype != TypeControl {
		return 0, 0, ferrors.New(ferrors.Protocol, 0, "EPROTO: control fields only valid on control message")
	}
	return ControlType(m.aux1), int32(m.aux2), nil
}

func (m *Message) SetControl(ctype ControlType, status int32) error {
	if m.mtype != TypeControl {
		return ferrors.New(ferrors.Protocol, 0, "EPROTO: control fields only valid on control message")
	}
	m.aux1, m.aux2 = uint32(ctype), uint32(status)
	return nil
}

// LastError returns the most recent Unpack failure text, cleared on the
// next successful Unpack. Distinct from the envelope's errnum (spec §4.1).
func (m *Message) LastError() string { return m.lastErr }

// Copy duplicates m. If withPayload is false the payload is dropped from
// the copy, matching flux_msg_copy's payload-drop option.
func (m *Message) Copy(withPayload bool) *Message {
	cp := *m
	cp.refs = new(atomic.Int32)
	cp.refs.Store(1)
	if m.route != nil {
		cp.route = make([][]byte, len(m.route))
		for i, r := range m.route {
			cp.route[i] = append([]byte(nil), r...)
		}
	}
	cp.aux = nil // aux map is not sent over the wire and is not copied
	if !withPayload {
		cp.payload = nil
		cp.flags &^= FlagPayload
		cp.jsonCache = nil
	} else if m.payload != nil {
		cp.payload = append([]byte(nil), m.payload...)
	}
	return &cp
}

// Incref returns a borrowed view of m with the shared refcount bumped.
func (m *Message) Incref() *Message {
	m.refs.Add(1)
	return m
}

// Decref decrements the shared refcount, running all aux destructors and
// releasing resources when it reaches zero.
func (m *Message) Decref() {
	if m.refs.Add(-1) == 0 {
		for _, e := range m.aux {
			if e.destroy != nil {
				e.destroy(e.val)
			}
		}
		m.aux = nil
	}
}

// AuxSet/AuxGet manage the per-message auxiliary map (convenience data
// never sent over the wire), per flux_msg_aux_set/get.
func (m *Message) AuxSet(name string, val any, destroy func(any)) {
	if m.aux == nil {
		m.aux = make(map[string]auxEntry)
	}
	if old, ok := m.aux[name]; ok && old.destroy != nil {
		old.destroy(old.val)
	}
	m.aux[name] = auxEntry{val: val, destroy: destroy}
}

func (m *Message) AuxGet(name string) (any, bool) {
	e, ok := m.aux[name]
	if !ok {
		return nil, false
	}
	return e.val, true
}
