// Copyright (c) 2025 BVK Chaitanya

package grid

import (
	"context"
	"flag"
	"fmt"

	"github.com/bvk/gridbot/api"
	"github.com/bvk/gridbot/subcmds/cmdutil"
	"github.com/shopspring/decimal"
	"github.com/visvasity/cli"
)

type Start struct {
	cmdutil.UserFlags

	lower, upper float64
	levels       int
	size         float64
	budget       float64
	spacing      string
}

func (c *Start) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("start", flag.ContinueOnError)
	c.UserFlags.SetFlags(fset)
	fset.Float64Var(&c.lower, "lower", 0, "lowest grid price (derived from recent candles when zero)")
	fset.Float64Var(&c.upper, "upper", 0, "highest grid price (derived from recent candles when zero)")
	fset.IntVar(&c.levels, "levels", 0, "number of grid levels, including both bounds")
	fset.Float64Var(&c.size, "size", 0, "order size at every level in base currency")
	fset.Float64Var(&c.budget, "budget", 0, "total quote currency budget; used to derive size when size is zero")
	fset.StringVar(&c.spacing, "spacing", "", "arithmetic or geometric level spacing (default from the config)")
	return "start", fset, cli.CmdFunc(c.run)
}

func (c *Start) Purpose() string {
	return "Starts a grid on a symbol"
}

func (c *Start) Description() string {
	return `

Command "start" places a grid of limit buy orders below and limit sell orders
above the current price. Grid range is derived from recent candles when the
lower and upper prices are not given. Only one grid can be active per user and
symbol.

  $ gridbot grid start --levels=10 --size=0.001 BTCUSDT
  $ gridbot grid start --levels=5 --budget=500 --lower=90000 --upper=100000 BTCUSDT

`
}

func (c *Start) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("this command takes one (symbol) argument")
	}
	if (c.lower == 0) != (c.upper == 0) {
		return fmt.Errorf("lower and upper prices must be given together")
	}
	user, err := c.UserFlags.User()
	if err != nil {
		return err
	}
	req := &api.GridStartRequest{
		User:    user,
		Symbol:  args[0],
		Lower:   decimal.NewFromFloat(c.lower),
		Upper:   decimal.NewFromFloat(c.upper),
		Levels:  c.levels,
		Size:    decimal.NewFromFloat(c.size),
		Budget:  decimal.NewFromFloat(c.budget),
		Spacing: c.spacing,
	}
	resp, err := cmdutil.Post[api.GridStartResponse](ctx, &c.ClientFlags, api.GridStartPath, req)
	if err != nil {
		return err
	}
	return printGrid(cli.Stdout(ctx), resp.Grid)
}
