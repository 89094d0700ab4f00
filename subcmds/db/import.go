// Copyright (c) 2025 BVK Chaitanya

package db

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/bvk/gridbot/kvutil"
	"github.com/bvk/gridbot/subcmds/cmdutil"
	"github.com/bvkgo/kv"
	"github.com/visvasity/cli"
)

type Import struct {
	cmdutil.DBFlags
}

func (c *Import) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("import", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	return "import", fset, cli.CmdFunc(c.run)
}

func (c *Import) Purpose() string {
	return "Adds json lines key-values from a file or stdin into the database"
}

func (c *Import) Description() string {
	return `

Command "import" reads key-value items in the "export" command's format and
writes them into the database in a single transaction. Existing keys are
overwritten and other keys are not modified. Input is read from stdin when
the file argument is "-" or empty.

`
}

func (c *Import) run(ctx context.Context, args []string) error {
	if len(args) > 1 {
		return fmt.Errorf("command takes at most one (input file) argument")
	}

	var input io.Reader = os.Stdin
	if len(args) == 1 && args[0] != "-" {
		fp, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("could not open input file: %w", err)
		}
		defer fp.Close()
		input = fp
	}

	db, closer, err := c.DBFlags.GetDatabase(ctx)
	if err != nil {
		return err
	}
	defer closer()

	imp := func(ctx context.Context, rw kv.ReadWriter) error {
		return kvutil.Import(ctx, bufio.NewReader(input), rw)
	}
	return kv.WithReadWriter(ctx, db, imp)
}
