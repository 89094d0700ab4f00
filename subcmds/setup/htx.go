// Copyright (c) 2025 BVK Chaitanya

package setup

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/bvk/gridbot/htx"
	"github.com/visvasity/cli"
	"golang.org/x/term"
)

type HTX struct {
	dataDir     string
	skipTesting bool

	accessKey string
	secretKey string
}

func (c *HTX) Purpose() string {
	return "Setup configures HTX exchange API keys"
}

func (c *HTX) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("htx", flag.ContinueOnError)
	fset.StringVar(&c.dataDir, "data-dir", "", "path to the data directory")
	fset.StringVar(&c.accessKey, "access-key", "", "HTX api access key")
	fset.StringVar(&c.secretKey, "secret-key", "", "HTX api secret key (prompted when empty)")
	fset.BoolVar(&c.skipTesting, "skip-testing", false, "don't test the parameters")
	return "htx", fset, cli.CmdFunc(c.run)
}

func (c *HTX) Description() string {
	return `

Command "htx" saves the HTX api keys in the secrets file. Api keys must have
the trading permission to place and cancel orders. Secret key is read from the
terminal when it is not given on the command line:

  $ gridbot setup htx --access-key=e2xxxxxx-99xxxxxx-84xxxxxx-7xxxx

Keys are tested by fetching the account balances unless --skip-testing is
given.

`
}

func (c *HTX) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}
	secretsPath, secrets, err := openSecrets(c.dataDir)
	if err != nil {
		return err
	}

	if len(c.secretKey) == 0 {
		fmt.Fprint(os.Stderr, "HTX secret key: ")
		data, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("could not read the secret key: %w", err)
		}
		c.secretKey = strings.TrimSpace(string(data))
	}

	secrets.HTX = &htx.Credentials{
		Key:    c.accessKey,
		Secret: c.secretKey,
	}
	if err := secrets.Check(); err != nil {
		return err
	}

	if !c.skipTesting {
		ex, err := htx.New(secrets.HTX.Key, secrets.HTX.Secret, nil)
		if err != nil {
			return err
		}
		defer ex.Close()

		balances, err := ex.GetBalances(ctx)
		if err != nil {
			return fmt.Errorf("could not verify the api keys: %w", err)
		}
		fmt.Fprintf(cli.Stdout(ctx), "HTX api keys are valid; %d currencies have non-zero balance.\n", len(balances))
	}

	return secrets.SaveFile(secretsPath)
}
