// Copyright (c) 2025 BVK Chaitanya

package db

import (
	"bufio"
	"context"
	"flag"
	"fmt"

	"github.com/bvk/gridbot/kvutil"
	"github.com/bvk/gridbot/subcmds/cmdutil"
	"github.com/bvkgo/kv"
	"github.com/visvasity/cli"
)

type Export struct {
	cmdutil.DBFlags

	dir string
}

func (c *Export) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("export", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	fset.StringVar(&c.dir, "dir", "/", "exports keys under this directory only, eg: /alerts")
	return "export", fset, cli.CmdFunc(c.run)
}

func (c *Export) Purpose() string {
	return "Writes database key-values to stdout as json lines"
}

func (c *Export) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}

	db, closer, err := c.DBFlags.GetDatabase(ctx)
	if err != nil {
		return err
	}
	defer closer()

	bw := bufio.NewWriter(cli.Stdout(ctx))
	begin, end := kvutil.PathRange(c.dir)
	export := func(ctx context.Context, r kv.Reader) error {
		return kvutil.ExportRange(ctx, r, begin, end, bw)
	}
	if err := kv.WithReader(ctx, db, export); err != nil {
		return err
	}
	return bw.Flush()
}
