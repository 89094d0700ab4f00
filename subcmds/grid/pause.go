// Copyright (c) 2025 BVK Chaitanya

package grid

import (
	"context"
	"flag"
	"fmt"

	"github.com/bvk/gridbot/api"
	"github.com/bvk/gridbot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Pause struct {
	cmdutil.UserFlags
}

func (c *Pause) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("pause", flag.ContinueOnError)
	c.UserFlags.SetFlags(fset)
	return "pause", fset, cli.CmdFunc(c.run)
}

func (c *Pause) Purpose() string {
	return "Pauses reconciliation of a grid"
}

func (c *Pause) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("this command takes one (symbol) argument")
	}
	user, err := c.UserFlags.User()
	if err != nil {
		return err
	}
	req := &api.GridPauseRequest{
		User:   user,
		Symbol: args[0],
	}
	resp, err := cmdutil.Post[api.GridPauseResponse](ctx, &c.ClientFlags, api.GridPausePath, req)
	if err != nil {
		return err
	}
	return printGrid(cli.Stdout(ctx), resp.Grid)
}
