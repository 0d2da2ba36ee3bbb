package overlay

// ErrorGroup aggregates every rank whose parent reported it `lost` with
// a given error text (spec §4.6 "Errors subcommand" / S6). Descendants
// of a grouped rank are reported separately, labeled "lost parent",
// since their own state was never actually observed.
type ErrorGroup struct {
	Text            string
	Ranks           []int
	LostParentRanks []int
}

// Errors implements subcmd_errors: walk the report, group every lost
// node carrying an error string by that text, and attach each group's
// descendants as lost-parent entries. Offline nodes (no error text) are
// never reported (spec S6: "Rank 8 is not reported").
func Errors(r *Report) []ErrorGroup {
	index := make(map[string]int)
	var groups []ErrorGroup

	r.Walk(func(n *NodeView) {
		if n.Status != StatusLost || n.Error == "" {
			return
		}
		i, ok := index[n.Error]
		if !ok {
			i = len(groups)
			index[n.Error] = i
			groups = append(groups, ErrorGroup{Text: n.Error})
		}
		groups[i].Ranks = append(groups[i].Ranks, n.Rank)
		groups[i].LostParentRanks = append(groups[i].LostParentRanks, descendantRanks(n)...)
	})
	return groups
}

func descendantRanks(n *NodeView) []int {
	var out []int
	for _, c := range n.Children {
		out = append(out, c.Rank)
		out = append(out, descendantRanks(c)...)
	}
	return out
}
