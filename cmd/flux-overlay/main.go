// Command flux-overlay is the overlay-health CLI: top / badtrees / all
// status subcommands plus errors / disconnect, driving the overlay
// walker against a running handle (spec §4.6, §6). Grounded on the
// teacher's cmd/cli/cli/app.go urfave/cli wiring, reusing only its
// CLI-library idiom — none of aistore's bucket/object commands.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli"

	"github.com/flux-framework/flux-go/handle"
	"github.com/flux-framework/flux-go/internal/fconfig"
	"github.com/flux-framework/flux-go/overlay"
	"github.com/flux-framework/flux-go/overlay/color"
	"github.com/flux-framework/flux-go/transport/tcp"
)

const (
	flagNoGhost    = "no-ghost"
	flagColor      = "color"
	flagHighlight  = "highlight"
	flagRootRank   = "root"
	flagSocketAddr = "addr"
)

var (
	noGhostFlag   = cli.BoolFlag{Name: flagNoGhost, Usage: "suppress synthesized ghost entries for offline/lost subtrees"}
	colorFlag     = cli.StringFlag{Name: flagColor, Value: "auto", Usage: "colorize output: auto|always|never"}
	highlightFlag = cli.StringFlag{Name: flagHighlight, Usage: "highlight a rank idset, e.g. '1,3-5' (hostnames are not resolved)"}
	rootFlag      = cli.IntFlag{Name: flagRootRank, Value: 0, Usage: "root rank to walk from"}
	addrFlag      = cli.StringFlag{Name: flagSocketAddr, Usage: "broker TCP address (host:port) to dial", Required: true}
)

func main() {
	app := cli.NewApp()
	app.Name = "flux-overlay"
	app.Usage = "inspect and manage the broker overlay tree's health"
	app.Flags = []cli.Flag{addrFlag}
	app.Commands = []cli.Command{
		statusCmd(overlay.ShowTop, "top", "print only the root node's status"),
		statusCmd(overlay.ShowBadTrees, "badtrees", "descend and print only partial/degraded subtrees"),
		statusCmd(overlay.ShowAll, "all", "print the full tree"),
		errorsCmd,
		disconnectCmd,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "flux-overlay:", err)
		os.Exit(1)
	}
}

func statusCmd(filter overlay.Filter, name, usage string) cli.Command {
	return cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{noGhostFlag, colorFlag, highlightFlag, rootFlag},
		Action: func(c *cli.Context) error {
			h, w, err := dial(c)
			if err != nil {
				return err
			}
			defer h.Close()

			topo, err := overlay.FetchTopology(h, c.Int(flagRootRank))
			if err != nil {
				return err
			}
			w.NoGhost = c.Bool(flagNoGhost)
			if target := c.String(flagHighlight); target != "" {
				w.Highlight = overlay.ParseHighlight(target, topo.Descendants(), nil)
			}

			report, err := w.Walk(context.Background(), topo, filter)
			if err != nil {
				return err
			}
			report.Print(os.Stdout, colorScheme(c))
			return nil
		},
	}
}

var errorsCmd = cli.Command{
	Name:  "errors",
	Usage: "aggregate errors by text for every rank whose parent reported it lost",
	Flags: []cli.Flag{rootFlag},
	Action: func(c *cli.Context) error {
		h, w, err := dial(c)
		if err != nil {
			return err
		}
		defer h.Close()

		topo, err := overlay.FetchTopology(h, c.Int(flagRootRank))
		if err != nil {
			return err
		}
		report, err := w.Walk(context.Background(), topo, overlay.ShowAll)
		if err != nil {
			return err
		}
		for _, g := range overlay.Errors(report) {
			fmt.Printf("%v: %s", g.Ranks, g.Text)
			if len(g.LostParentRanks) > 0 {
				fmt.Printf(" (lost parent: %v)", g.LostParentRanks)
			}
			fmt.Println()
		}
		return nil
	},
}

var disconnectCmd = cli.Command{
	Name:      "disconnect",
	Usage:     "instruct a parent to drop a subtree",
	ArgsUsage: "PARENT_RANK TARGET_RANK",
	Action: func(c *cli.Context) error {
		h, w, err := dial(c)
		if err != nil {
			return err
		}
		defer h.Close()

		if c.NArg() != 2 {
			return cli.NewExitError("usage: flux-overlay disconnect PARENT_RANK TARGET_RANK", 1)
		}
		parent, err := strconv.Atoi(c.Args().Get(0))
		if err != nil {
			return err
		}
		target, err := strconv.Atoi(c.Args().Get(1))
		if err != nil {
			return err
		}
		return w.Disconnect(parent, target)
	},
}

func dial(c *cli.Context) (*handle.Handle, *overlay.Walker, error) {
	tr, err := tcp.Dial(c.GlobalString(flagSocketAddr))
	if err != nil {
		return nil, nil, err
	}
	cfg := fconfig.New()
	h := handle.New(tr, cfg)
	h.Start()
	go h.Reactor().Run()
	return h, overlay.NewWalker(h, cfg), nil
}

func colorScheme(c *cli.Context) color.Scheme {
	switch c.String(flagColor) {
	case "always":
		return color.New(false)
	case "never":
		return color.New(true)
	default:
		fi, _ := os.Stdout.Stat()
		isTerm := fi != nil && fi.Mode()&os.ModeCharDevice != 0
		return color.New(!isTerm)
	}
}
