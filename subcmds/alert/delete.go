// Copyright (c) 2025 BVK Chaitanya

package alert

import (
	"context"
	"flag"
	"fmt"

	"github.com/bvk/gridbot/api"
	"github.com/bvk/gridbot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Delete struct {
	cmdutil.UserFlags
}

func (c *Delete) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("delete", flag.ContinueOnError)
	c.UserFlags.SetFlags(fset)
	return "delete", fset, cli.CmdFunc(c.run)
}

func (c *Delete) Purpose() string {
	return "Deletes an alert rule"
}

func (c *Delete) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("this command takes one (rule-id) argument")
	}
	user, err := c.UserFlags.User()
	if err != nil {
		return err
	}
	req := &api.AlertDeleteRequest{
		User:   user,
		RuleID: args[0],
	}
	resp, err := cmdutil.Post[api.AlertDeleteResponse](ctx, &c.ClientFlags, api.AlertDeletePath, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.Stdout(ctx), "Deleted alert %s.\n", resp.Rule.ID)
	return nil
}
