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

type Resume struct {
	cmdutil.UserFlags
}

func (c *Resume) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("resume", flag.ContinueOnError)
	c.UserFlags.SetFlags(fset)
	return "resume", fset, cli.CmdFunc(c.run)
}

func (c *Resume) Purpose() string {
	return "Resumes a paused grid"
}

func (c *Resume) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("this command takes one (symbol) argument")
	}
	user, err := c.UserFlags.User()
	if err != nil {
		return err
	}
	req := &api.GridResumeRequest{
		User:   user,
		Symbol: args[0],
	}
	resp, err := cmdutil.Post[api.GridResumeResponse](ctx, &c.ClientFlags, api.GridResumePath, req)
	if err != nil {
		return err
	}
	return printGrid(cli.Stdout(ctx), resp.Grid)
}
