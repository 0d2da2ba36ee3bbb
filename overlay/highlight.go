package overlay

import "strconv"

// HostOf resolves a rank to a hostname. This core never parses RFC-29
// hostlist syntax itself, so an unresolvable rank just returns ok=false.
// A nil HostOf (which is what cmd/flux-overlay passes) makes
// ParseHighlight ignore every token that is not a rank or rank range.
type HostOf func(rank int) (string, bool)

// ParseHighlight resolves a --highlight TARGET into the rank set the
// walker marks (spec §4.6): a comma-separated list of ranks, rank
// ranges ("3", "1,3-5"), and/or literal hostnames resolved against
// ranks via hostOf ("first rank on host" rule, applied by the caller
// when multiple ranks share a host).
func ParseHighlight(target string, ranks []int, hostOf HostOf) map[int]bool {
	out := make(map[int]bool)
	tok := make([]byte, 0, len(target))
	flush := func() {
		if len(tok) == 0 {
			return
		}
		addToken(out, string(tok), ranks, hostOf)
		tok = tok[:0]
	}
	for i := 0; i < len(target); i++ {
		if target[i] == ',' {
			flush()
			continue
		}
		tok = append(tok, target[i])
	}
	flush()
	return out
}

func addToken(out map[int]bool, tok string, ranks []int, hostOf HostOf) {
	if lo, hi, ok := parseRankRange(tok); ok {
		for r := lo; r <= hi; r++ {
			out[r] = true
		}
		return
	}
	if hostOf == nil {
		return
	}
	for _, r := range ranks {
		if h, ok := hostOf(r); ok && h == tok {
			out[r] = true
		}
	}
}

func parseRankRange(tok string) (lo, hi int, ok bool) {
	for i := 0; i < len(tok); i++ {
		if tok[i] == '-' && i > 0 {
			a, err1 := strconv.Atoi(tok[:i])
			b, err2 := strconv.Atoi(tok[i+1:])
			if err1 != nil || err2 != nil {
				return 0, 0, false
			}
			return a, b, true
		}
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, 0, false
	}
	return n, n, true
}
