// Copyright (c) 2025 BVK Chaitanya

package cmdutil

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/visvasity/cli"
)

// DefaultDataDir is the data directory name under the user's home.
const DefaultDataDir = ".gridbot"

// DataDir returns the absolute path of the data directory, creating it when
// it doesn't exist. Empty dir selects the default under the home directory.
func DataDir(dir string) (string, error) {
	if len(dir) == 0 {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine home directory: %w", err)
		}
		dir = filepath.Join(home, DefaultDataDir)
	}
	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("could not stat data directory %q: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return "", fmt.Errorf("could not create data directory %q: %w", dir, err)
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("could not determine data-dir %q absolute path: %w", dir, err)
	}
	return abs, nil
}

// PrintJSON writes the value as indented json to the command's stdout.
func PrintJSON(ctx context.Context, v any) error {
	js, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cli.Stdout(ctx), "%s\n", js)
	return err
}
