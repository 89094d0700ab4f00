// Copyright (c) 2025 BVK Chaitanya

package setup

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/bvk/gridbot/server"
	"github.com/bvk/gridbot/subcmds/cmdutil"
)

// openSecrets returns the secrets file path in the data directory and its
// current contents. Missing file is not an error.
func openSecrets(dir string) (string, *server.Secrets, error) {
	dataDir, err := cmdutil.DataDir(dir)
	if err != nil {
		return "", nil, err
	}
	secretsPath := filepath.Join(dataDir, "secrets.json")
	secrets, err := server.SecretsFromFile(secretsPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return "", nil, err
		}
		secrets = new(server.Secrets)
	}
	return secretsPath, secrets, nil
}
