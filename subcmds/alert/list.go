// Copyright (c) 2025 BVK Chaitanya

package alert

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/bvk/gridbot/api"
	"github.com/bvk/gridbot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type List struct {
	cmdutil.UserFlags

	jsonOut bool
}

func (c *List) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("list", flag.ContinueOnError)
	c.UserFlags.SetFlags(fset)
	fset.BoolVar(&c.jsonOut, "json", false, "when true, prints the response in json format")
	return "list", fset, cli.CmdFunc(c.run)
}

func (c *List) Purpose() string {
	return "Prints alert rules of the user"
}

func (c *List) run(ctx context.Context, args []string) error {
	if len(args) > 1 {
		return fmt.Errorf("this command takes at most one (symbol) argument")
	}
	user, err := c.UserFlags.User()
	if err != nil {
		return err
	}
	req := &api.AlertListRequest{
		User: user,
	}
	if len(args) == 1 {
		req.Symbol = args[0]
	}
	resp, err := cmdutil.Post[api.AlertListResponse](ctx, &c.ClientFlags, api.AlertListPath, req)
	if err != nil {
		return err
	}
	if c.jsonOut {
		return cmdutil.PrintJSON(ctx, resp)
	}
	return printRules(cli.Stdout(ctx), resp.Rules)
}

func printRules(w io.Writer, rules []*api.AlertRule) error {
	tw := tabwriter.NewWriter(w, 0, 8, 1, ' ', 0)
	fmt.Fprintf(tw, "ID\tSymbol\tRule\tCooldown\tEnabled\tTriggered\tLast\tNote\n")
	for _, r := range rules {
		last := "-"
		if !r.LastTriggered.IsZero() {
			last = r.LastTriggered.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s %s %s\t%s\t%t\t%d\t%s\t%s\n", r.ID, r.Symbol, r.Metric, r.Comparison, r.Threshold, r.Cooldown, r.Enabled, r.TriggerCount, last, r.Note)
	}
	return tw.Flush()
}
