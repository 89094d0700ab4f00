// Copyright (c) 2025 BVK Chaitanya

package market

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/bvk/gridbot/api"
	"github.com/bvk/gridbot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Snapshot struct {
	cmdutil.ClientFlags
}

func (c *Snapshot) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	return "snapshot", fset, cli.CmdFunc(c.run)
}

func (c *Snapshot) Purpose() string {
	return "Prints the latest market snapshot of symbols"
}

func (c *Snapshot) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("this command takes one or more symbol arguments")
	}
	tw := tabwriter.NewWriter(cli.Stdout(ctx), 0, 8, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "Symbol\tLast\tChange%%\tOpen\tHigh\tLow\tBid\tAsk\tVolume\tTime\t\n")
	for _, symbol := range args {
		req := &api.MarketSnapshotRequest{
			Symbol: symbol,
		}
		resp, err := cmdutil.Post[api.MarketSnapshotResponse](ctx, &c.ClientFlags, api.MarketSnapshotPath, req)
		if err != nil {
			return fmt.Errorf("could not fetch snapshot for %q: %w", symbol, err)
		}
		change := "-"
		if resp.DayOpen.IsPositive() {
			change = resp.LastPrice.Sub(resp.DayOpen).Div(resp.DayOpen).Shift(2).StringFixed(2)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n", resp.Symbol, resp.LastPrice, change, resp.DayOpen, resp.DayHigh, resp.DayLow, resp.Bid, resp.Ask, resp.Volume24h, resp.ServerTime.Local().Format(time.TimeOnly))
	}
	return tw.Flush()
}
