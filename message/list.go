package message

import "sync"

// List is a small ordered collection of pending messages with bulk
// disconnect/cancel removal, grounded on original_source's msglist.c
// ("remove all messages in l with the same sender as msg").
type List struct {
	mu    sync.Mutex
	items []*Message
}

func NewList() *List { return &List{} }

func (l *List) Append(m *Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, m)
}

func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Disconnect removes and returns every message whose sender matches sm.
func (l *List) Disconnect(sm SenderMatch) []*Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	var removed, kept []*Message
	for _, m := range l.items {
		if sm.MatchSender(m) {
			removed = append(removed, m)
		} else {
			kept = append(kept, m)
		}
	}
	l.items = kept
	return removed
}

// Cancel removes and returns the first message matching the cancel
// request msg (same sender, same matchtag referenced), per
// flux_msglist_cancel.
func (l *List) Cancel(cancelMsg *Message) *Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, m := range l.items {
		if CancelMatches(cancelMsg, m) {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return m
		}
	}
	return nil
}

// Each iterates the list snapshot under lock.
func (l *List) Each(fn func(*Message)) {
	l.mu.Lock()
	items := append([]*Message(nil), l.items...)
	l.mu.Unlock()
	for _, m := range items {
		fn(m)
	}
}
