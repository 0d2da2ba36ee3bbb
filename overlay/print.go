package overlay

import (
	"fmt"
	"io"

	"github.com/flux-framework/flux-go/overlay/color"
)

// Print renders every NodeView with Print set, pre-order, one line each:
// "<prefix><label> <status> (<duration>s)[: <error>]", colorized per
// spec §4.6 (lost=red, offline=yellow, ghost=gray, highlighted=blue
// bold — non-ghost only for lost/offline, matching overlay.c's
// status_colorize which never recolors a synthesized entry as if it
// were a live report).
func (r *Report) Print(w io.Writer, scheme color.Scheme) {
	r.Walk(func(n *NodeView) {
		if !n.Print {
			return
		}
		fmt.Fprintln(w, n.line(scheme))
	})
}

func (n *NodeView) line(scheme color.Scheme) string {
	label := n.Label()
	if n.Highlighted {
		label = scheme.Highlight("%s", label)
	}
	status := n.Status.String()
	switch {
	case n.Ghost:
		status = scheme.Ghost("%s (ghost)", status)
	case n.Status == StatusLost:
		status = scheme.Lost("%s", status)
	case n.Status == StatusOffline:
		status = scheme.Offline("%s", status)
	}
	line := fmt.Sprintf("%s%s %s (%.3fs)", n.renderPrefix(), label, status, n.Duration)
	if n.Error != "" {
		line += ": " + n.Error
	}
	return line
}
