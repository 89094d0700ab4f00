// Copyright (c) 2025 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/bvk/gridbot/api"
	"github.com/bvk/gridbot/subcmds/cmdutil"
	"github.com/bvk/gridbot/timerange"
	"github.com/visvasity/cli"
)

type Profit struct {
	cmdutil.UserFlags
}

func (c *Profit) Purpose() string {
	return "Prints realized grid profits over a calendar period"
}

func (c *Profit) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("profit", flag.ContinueOnError)
	c.UserFlags.SetFlags(fset)
	return "profit", fset, cli.CmdFunc(c.run)
}

func (c *Profit) Description() string {
	return fmt.Sprintf(`

Command "profit" summarizes the realized profit and fees of every grid of the
user. Optional period argument is one of %v. Whole history is summarized when
the period is not given.

`, timerange.Periods())
}

func (c *Profit) run(ctx context.Context, args []string) error {
	if len(args) > 1 {
		return fmt.Errorf("this command takes at most one (period) argument")
	}
	user, err := c.UserFlags.User()
	if err != nil {
		return err
	}
	req := &api.ProfitRequest{
		User: user,
	}
	if len(args) == 1 {
		req.Period = args[0]
	}
	resp, err := cmdutil.Post[api.ProfitResponse](ctx, &c.ClientFlags, api.ProfitPath, req)
	if err != nil {
		return err
	}

	stdout := cli.Stdout(ctx)
	if !resp.Begin.IsZero() {
		fmt.Fprintf(stdout, "Period %s: %s - %s\n", resp.Period, resp.Begin.Format(time.DateTime), resp.End.Format(time.DateTime))
	}
	tw := tabwriter.NewWriter(stdout, 0, 8, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "Grid\tTrades\tProfit\tFees\t\n")
	for _, item := range resp.Items {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t\n", item.GridID, item.Trades, item.Profit.StringFixed(4), item.Fees.StringFixed(4))
	}
	fmt.Fprintf(tw, "Total\t%d\t%s\t\t\n", resp.TotalTrades, resp.TotalProfit.StringFixed(4))
	return tw.Flush()
}
