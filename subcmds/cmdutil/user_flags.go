// Copyright (c) 2025 BVK Chaitanya

package cmdutil

import (
	"flag"
	"fmt"
	"os"
	"os/user"
)

// UserEnv overrides the default user name for the grid and alert commands.
// Telegram commands run as the sender's telegram user name, so setting this
// to the owner's user name shares the grids between the two.
const UserEnv = "GRIDBOT_USER"

type UserFlags struct {
	ClientFlags

	user string
}

func (uf *UserFlags) SetFlags(fset *flag.FlagSet) {
	uf.ClientFlags.SetFlags(fset)
	fset.StringVar(&uf.user, "user", "", "owner of the grids and alerts (default=GRIDBOT_USER value or the login name)")
}

func (uf *UserFlags) User() (string, error) {
	if len(uf.user) != 0 {
		return uf.user, nil
	}
	if v := os.Getenv(UserEnv); len(v) != 0 {
		return v, nil
	}
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("could not determine the user name: %w", err)
	}
	return u.Username, nil
}
