package message

import "bytes"

// SenderMatch is a reusable snapshot of the fields needed to decide
// whether two messages came from the same sender, grounded on
// original_source/disconnect.h's flux_msg_match struct.
type SenderMatch struct {
	Matchtag  uint32
	RouteHead []byte
	Cred      Cred
}

// InitSenderMatch captures m's sender-identifying fields.
func InitSenderMatch(m *Message) SenderMatch {
	sm := SenderMatch{Cred: m.Cred()}
	if tag, err := m.Matchtag(); err == nil {
		sm.Matchtag = tag
	}
	if head, ok := m.RouteFirst(); ok {
		sm.RouteHead = head
	}
	return sm
}

// MatchSender reports whether msg came from the same sender as the
// snapshot (same route head and credentials), per flux_disconnect_match.
func (sm SenderMatch) MatchSender(msg *Message) bool {
	head, _ := msg.RouteFirst()
	if !bytes.Equal(sm.RouteHead, head) {
		return false
	}
	return sm.Cred == msg.Cred()
}

// MatchCancel reports whether msg is a cancel control referencing the
// snapshot's matchtag and coming from the same sender, per
// flux_cancel_match.
func (sm SenderMatch) MatchCancel(msg *Message) bool {
	tag, ok := msg.IsCancel()
	if !ok || tag != sm.Matchtag {
		return false
	}
	return sm.MatchSender(msg)
}

// MatchSender is the convenience one-shot form of InitSenderMatch(a).MatchSender(b).
func MatchSender(a, b *Message) bool { return InitSenderMatch(a).MatchSender(b) }

// CancelMatches is the convenience one-shot form for a cancel message
// against the original request it targets.
func CancelMatches(cancelMsg, origMsg *Message) bool {
	return InitSenderMatch(origMsg).MatchCancel(cancelMsg)
}
