// Copyright (c) 2025 BVK Chaitanya

package htx

import (
	"fmt"
	"os"
)

// Environment variables that hold the HTX api keys when they are not saved
// in the secrets file.
const (
	AccessKeyEnv = "HTX_ACCESS_KEY"
	SecretKeyEnv = "HTX_SECRET_KEY"
)

type Credentials struct {
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

func (v *Credentials) Check() error {
	if len(v.Key) == 0 {
		return fmt.Errorf("htx access key cannot be empty: %w", os.ErrInvalid)
	}
	if len(v.Secret) == 0 {
		return fmt.Errorf("htx secret key cannot be empty: %w", os.ErrInvalid)
	}
	return nil
}

// CredentialsFromEnv returns the api keys from the environment. Returns nil
// if either of the variables is empty.
func CredentialsFromEnv() *Credentials {
	key, secret := os.Getenv(AccessKeyEnv), os.Getenv(SecretKeyEnv)
	if len(key) == 0 || len(secret) == 0 {
		return nil
	}
	return &Credentials{Key: key, Secret: secret}
}
