// Package color wraps github.com/fatih/color for the overlay walker's
// terminal output, grounded on the teacher's cmd/cli/teb.Init pattern of
// injecting a writer and a noColor switch instead of hardcoding
// os.Stdout / a package-global on-by-default color.
package color

import (
	"fmt"

	"github.com/fatih/color"
)

// Scheme holds the formatting functions the overlay walker renders
// status lines through (spec §4.6 "Coloring"): lost in red, offline in
// yellow, ghosted nodes in gray, highlighted ranks in blue bold.
type Scheme struct {
	Lost      func(format string, a ...any) string
	Offline   func(format string, a ...any) string
	Ghost     func(format string, a ...any) string
	Highlight func(format string, a ...any) string
}

// New builds a Scheme. plain disables coloring entirely (the CLI's
// --color=never, or output that isn't a terminal), matching teb.Init's
// noColor branch.
func New(plain bool) Scheme {
	if plain {
		return Scheme{Lost: fmt.Sprintf, Offline: fmt.Sprintf, Ghost: fmt.Sprintf, Highlight: fmt.Sprintf}
	}
	return Scheme{
		Lost:      color.New(color.FgRed).Sprintf,
		Offline:   color.New(color.FgYellow).Sprintf,
		Ghost:     color.New(color.FgHiBlack).Sprintf,
		Highlight: color.New(color.FgBlue, color.Bold).Sprintf,
	}
}
