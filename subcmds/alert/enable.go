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

// Enable implements both the enable and disable commands.
type Enable struct {
	cmdutil.UserFlags

	disable bool
}

// NewDisable returns the disable command.
func NewDisable() *Enable {
	return &Enable{disable: true}
}

func (c *Enable) name() string {
	if c.disable {
		return "disable"
	}
	return "enable"
}

func (c *Enable) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet(c.name(), flag.ContinueOnError)
	c.UserFlags.SetFlags(fset)
	return c.name(), fset, cli.CmdFunc(c.run)
}

func (c *Enable) Purpose() string {
	if c.disable {
		return "Disables an alert rule without deleting it"
	}
	return "Enables a disabled alert rule"
}

func (c *Enable) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("this command takes one (rule-id) argument")
	}
	user, err := c.UserFlags.User()
	if err != nil {
		return err
	}
	req := &api.AlertEnableRequest{
		User:    user,
		RuleID:  args[0],
		Enabled: !c.disable,
	}
	resp, err := cmdutil.Post[api.AlertEnableResponse](ctx, &c.ClientFlags, api.AlertEnablePath, req)
	if err != nil {
		return err
	}
	return printRules(cli.Stdout(ctx), []*api.AlertRule{resp.Rule})
}
