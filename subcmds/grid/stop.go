// Copyright (c) 2025 BVK Chaitanya

package grid

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/bvk/gridbot/api"
	"github.com/bvk/gridbot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Stop struct {
	cmdutil.UserFlags
}

func (c *Stop) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("stop", flag.ContinueOnError)
	c.UserFlags.SetFlags(fset)
	return "stop", fset, cli.CmdFunc(c.run)
}

func (c *Stop) Purpose() string {
	return "Stops a grid and cancels its open orders"
}

func (c *Stop) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("this command takes one (symbol) argument")
	}
	user, err := c.UserFlags.User()
	if err != nil {
		return err
	}
	req := &api.GridStopRequest{
		User:   user,
		Symbol: args[0],
	}
	resp, err := cmdutil.Post[api.GridStopResponse](ctx, &c.ClientFlags, api.GridStopPath, req)
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	fmt.Fprintf(stdout, "Canceled %d orders.\n", resp.Canceled)
	if len(resp.Failed) != 0 {
		fmt.Fprintf(stdout, "Could not cancel orders: %s\n", strings.Join(resp.Failed, ", "))
	}
	return nil
}
