// Copyright (c) 2025 BVK Chaitanya

package alert

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/bvk/gridbot/api"
	"github.com/bvk/gridbot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type History struct {
	cmdutil.UserFlags

	limit int
}

func (c *History) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("history", flag.ContinueOnError)
	c.UserFlags.SetFlags(fset)
	fset.IntVar(&c.limit, "limit", 20, "maximum number of events")
	return "history", fset, cli.CmdFunc(c.run)
}

func (c *History) Purpose() string {
	return "Prints recently fired alerts"
}

func (c *History) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("this command takes no arguments")
	}
	user, err := c.UserFlags.User()
	if err != nil {
		return err
	}
	req := &api.AlertHistoryRequest{
		User:  user,
		Limit: c.limit,
	}
	resp, err := cmdutil.Post[api.AlertHistoryResponse](ctx, &c.ClientFlags, api.AlertHistoryPath, req)
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	for _, e := range resp.Events {
		fmt.Fprintf(stdout, "%s %s %s\n", e.Time.Local().Format(time.DateTime), e.RuleID, e.Message)
	}
	return nil
}
