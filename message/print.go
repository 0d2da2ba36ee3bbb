package message

import "fmt"

// Dump renders a diagnostic one-line summary of m, grounded on the
// teacher's habit of a compact String()/debug-dump method on wire types
// (e.g. transport.ObjHdr's String()).
func (m *Message) Dump() string {
	s := fmt.Sprintf("type=%s flags=%#02x userid=%#x rolemask=%#x", m.mtype, m.flags, m.userid, m.rolemask)
	if topic, ok := m.Topic(); ok {
		s += fmt.Sprintf(" topic=%q", topic)
	}
	if p, ok := m.Payload(); ok {
		s += fmt.Sprintf(" payload=%dB", len(p))
	}
	if m.flags.Has(FlagRoute) {
		s += fmt.Sprintf(" route=[%s]", m.RouteString())
	}
	switch m.mtype {
	case TypeRequest:
		s += fmt.Sprintf(" nodeid=%#x matchtag=%#x", m.aux1, m.aux2)
	case TypeResponse:
		s += fmt.Sprintf(" errnum=%d matchtag=%#x", m.aux1, m.aux2)
	case TypeEvent:
		s += fmt.Sprintf(" sequence=%d", m.aux1)
	case TypeControl:
		s += fmt.Sprintf(" ctype=%d status=%d", m.aux1, m.aux2)
	}
	return s
}

func (m *Message) String() string { return m.Dump() }
