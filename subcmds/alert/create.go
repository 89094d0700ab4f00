// Copyright (c) 2025 BVK Chaitanya

package alert

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/bvk/gridbot/api"
	"github.com/bvk/gridbot/subcmds/cmdutil"
	"github.com/shopspring/decimal"
	"github.com/visvasity/cli"
)

type Create struct {
	cmdutil.UserFlags

	cooldown time.Duration
	note     string
}

func (c *Create) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("create", flag.ContinueOnError)
	c.UserFlags.SetFlags(fset)
	fset.DurationVar(&c.cooldown, "cooldown", 0, "minimum time between two notifications (default from the config)")
	fset.StringVar(&c.note, "note", "", "optional note included in the notification")
	return "create", fset, cli.CmdFunc(c.run)
}

func (c *Create) Purpose() string {
	return "Creates an alert rule on a symbol"
}

func (c *Create) Description() string {
	return `

Command "create" takes symbol, metric, comparison and threshold arguments.
Metric is one of "price" or "volume". Comparison is one of "above", "below" or
"change". Threshold of a "change" rule is a percentage.

  $ gridbot alert create BTCUSDT price above 100000
  $ gridbot alert create --cooldown=1h ETHUSDT price change 5

`
}

func (c *Create) run(ctx context.Context, args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("this command takes four (symbol, metric, comparison, threshold) arguments")
	}
	threshold, err := decimal.NewFromString(args[3])
	if err != nil {
		return fmt.Errorf("could not parse threshold %q: %w", args[3], err)
	}
	user, err := c.UserFlags.User()
	if err != nil {
		return err
	}
	req := &api.AlertCreateRequest{
		User:       user,
		Symbol:     args[0],
		Metric:     args[1],
		Comparison: args[2],
		Threshold:  threshold,
		Cooldown:   c.cooldown,
		Note:       c.note,
	}
	resp, err := cmdutil.Post[api.AlertCreateResponse](ctx, &c.ClientFlags, api.AlertCreatePath, req)
	if err != nil {
		return err
	}
	return printRules(cli.Stdout(ctx), []*api.AlertRule{resp.Rule})
}
