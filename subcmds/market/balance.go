// Copyright (c) 2025 BVK Chaitanya

package market

import (
	"context"
	"flag"
	"fmt"
	"maps"
	"slices"

	"github.com/bvk/gridbot/api"
	"github.com/bvk/gridbot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Balance struct {
	cmdutil.ClientFlags
}

func (c *Balance) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("balance", flag.ContinueOnError)
	c.ClientFlags.SetFlags(fset)
	return "balance", fset, cli.CmdFunc(c.run)
}

func (c *Balance) Purpose() string {
	return "Prints non-zero available balances on the exchange"
}

func (c *Balance) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("this command takes no arguments")
	}
	resp, err := cmdutil.Post[api.MarketBalanceResponse](ctx, &c.ClientFlags, api.MarketBalancePath, new(api.MarketBalanceRequest))
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	for _, ccy := range slices.Sorted(maps.Keys(resp.Balances)) {
		fmt.Fprintf(stdout, "%s %s\n", ccy, resp.Balances[ccy])
	}
	return nil
}
