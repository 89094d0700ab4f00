// Copyright (c) 2025 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"

	"github.com/bvk/gridbot/idgen"
	"github.com/visvasity/cli"
)

type IDGen struct {
	from  uint64
	count int
}

func (c *IDGen) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("idgen", flag.ContinueOnError)
	fset.Uint64Var(&c.from, "from", 0, "first client id offset")
	fset.IntVar(&c.count, "count", 10, "number of client ids to print")
	return "idgen", fset, cli.CmdFunc(c.run)
}

func (c *IDGen) Purpose() string {
	return "Prints client order references derived from a grid's client id seed"
}

func (c *IDGen) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("this command takes one (client id seed) argument")
	}
	if c.count <= 0 {
		return nil
	}
	stdout := cli.Stdout(ctx)
	n := 0
	for off, ref := range idgen.Refs(args[0], c.from) {
		fmt.Fprintf(stdout, "%d: %s\n", off, ref)
		if n++; n == c.count {
			break
		}
	}
	return nil
}
