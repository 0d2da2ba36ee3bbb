package message

import "path/filepath"

// Match is a filter used by dispatch tables and blocking receives: a
// type-mask, an optional matchtag, and an optional topic glob (spec §4.1).
type Match struct {
	TypeMask Type
	Matchtag uint32 // 0 means "don't match on tag"
	Topic    string // "" or "*" matches all topics
}

// AnyMatch matches any message of any type.
var AnyMatch = Match{TypeMask: TypeAny}

// Matches reports whether m satisfies the filter.
func (f Match) Matches(m *Message) bool {
	if f.TypeMask != 0 && f.TypeMask&m.mtype == 0 {
		return false
	}
	if f.Matchtag != 0 {
		tag, err := m.Matchtag()
		if err != nil || tag != f.Matchtag {
			return false
		}
	}
	if f.Topic != "" && f.Topic != "*" {
		topic, _ := m.Topic()
		if !TopicGlobMatch(f.Topic, topic) {
			return false
		}
	}
	return true
}

// TopicGlobMatch implements spec §4.1's topic matching rule: empty or "*"
// matches everything; a pattern containing any of "*?[" is a shell-style
// glob; otherwise the comparison is byte-exact.
func TopicGlobMatch(glob, topic string) bool {
	if glob == "" || glob == "*" {
		return true
	}
	if hasGlobMeta(glob) {
		ok, err := filepath.Match(glob, topic)
		return err == nil && ok
	}
	return glob == topic
}

func hasGlobMeta(s string) bool {
	for _, c := range s {
		if c == '*' || c == '?' || c == '[' {
			return true
		}
	}
	return false
}
