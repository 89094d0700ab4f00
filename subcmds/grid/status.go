// Copyright (c) 2025 BVK Chaitanya

package grid

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/bvk/gridbot/api"
	"github.com/bvk/gridbot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Status struct {
	cmdutil.UserFlags

	levels  bool
	jsonOut bool
}

func (c *Status) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("status", flag.ContinueOnError)
	c.UserFlags.SetFlags(fset)
	fset.BoolVar(&c.levels, "levels", false, "when true, prints the order at every level")
	fset.BoolVar(&c.jsonOut, "json", false, "when true, prints the response in json format")
	return "status", fset, cli.CmdFunc(c.run)
}

func (c *Status) Purpose() string {
	return "Prints status of one or all grids"
}

func (c *Status) run(ctx context.Context, args []string) error {
	if len(args) > 1 {
		return fmt.Errorf("this command takes at most one (symbol) argument")
	}
	user, err := c.UserFlags.User()
	if err != nil {
		return err
	}
	req := &api.GridStatusRequest{
		User: user,
	}
	if len(args) == 1 {
		req.Symbol = args[0]
	}
	resp, err := cmdutil.Post[api.GridStatusResponse](ctx, &c.ClientFlags, api.GridStatusPath, req)
	if err != nil {
		return err
	}
	if c.jsonOut {
		return cmdutil.PrintJSON(ctx, resp)
	}

	stdout := cli.Stdout(ctx)
	for _, g := range resp.Grids {
		if err := printGrid(stdout, g); err != nil {
			return err
		}
		if c.levels {
			if err := printLevels(stdout, g); err != nil {
				return err
			}
		}
		fmt.Fprintln(stdout)
	}
	return nil
}

func printGrid(w io.Writer, g *api.GridStatus) error {
	tw := tabwriter.NewWriter(w, 0, 8, 1, ' ', 0)
	fmt.Fprintf(tw, "ID\t%s\n", g.ID)
	fmt.Fprintf(tw, "Symbol\t%s\n", g.Symbol)
	fmt.Fprintf(tw, "Status\t%s\n", g.Status)
	fmt.Fprintf(tw, "Range\t[%s, %s] %s\n", g.Lower, g.Upper, g.Spacing)
	fmt.Fprintf(tw, "Levels\t%d\n", g.NumLevels)
	fmt.Fprintf(tw, "Size\t%s\n", g.Size)
	fmt.Fprintf(tw, "Open orders\t%d\n", g.OpenOrders)
	fmt.Fprintf(tw, "Trades\t%d\n", g.CompletedTrades)
	fmt.Fprintf(tw, "Profit\t%s\n", g.RealizedProfit.StringFixed(4))
	if len(g.Leftovers) != 0 {
		fmt.Fprintf(tw, "Not canceled\t%s\n", strings.Join(g.Leftovers, ", "))
	}
	return tw.Flush()
}

func printLevels(w io.Writer, g *api.GridStatus) error {
	tw := tabwriter.NewWriter(w, 0, 8, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "Index\tPrice\tSide\tStatus\tOrder\tRetries\t\n")
	for _, l := range g.Levels {
		order := l.OrderID
		if l.Stuck {
			order = "STUCK: " + l.LastError
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t\n", l.Index, l.Price, l.Side, l.Status, order, l.Retries)
	}
	return tw.Flush()
}
