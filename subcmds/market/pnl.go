// Copyright (c) 2025 BVK Chaitanya

package market

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/bvk/gridbot/api"
	"github.com/bvk/gridbot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type PnL struct {
	cmdutil.ClientFlags
}

func (c *PnL) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("pnl", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	return "pnl", fset, cli.CmdFunc(c.run)
}

func (c *PnL) Purpose() string {
	return "Prints the account value change since the latest daily balance snapshot"
}

func (c *PnL) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("this command takes no arguments")
	}
	resp, err := cmdutil.Post[api.PnLResponse](ctx, &c.ClientFlags, api.PnLPath, new(api.PnLRequest))
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	fmt.Fprintf(stdout, "current %s %s\n", resp.Current.StringFixed(2), resp.Quote)
	if resp.PreviousDay != "" {
		fmt.Fprintf(stdout, "previous %s %s (%s)\n", resp.Previous.StringFixed(2), resp.Quote, resp.PreviousDay)
		fmt.Fprintf(stdout, "pnl %s %s (%s%%)\n", resp.PnL.StringFixed(2), resp.Quote, resp.PnLPercent.StringFixed(2))
	}
	if len(resp.Unpriced) != 0 {
		fmt.Fprintf(stdout, "unpriced %s\n", strings.Join(resp.Unpriced, " "))
	}
	return nil
}
