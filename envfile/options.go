// Copyright (c) 2025 BVK Chaitanya

package envfile

import (
	"fmt"
	"os"
	"regexp"
)

// Option customizes Load and UpdateEnv.
type Option func(*options) error

type options struct {
	prefix string

	searchCwd     bool
	searchParents bool
	skipHome      bool

	overwrite bool
}

func (o *options) apply(opts []Option) error {
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return err
		}
	}
	return nil
}

// SearchCurrentDir makes UpdateEnv look for the file in the working directory
// before the home directory. When parents is true, all ancestors of the
// working directory are also searched, nearest first.
func SearchCurrentDir(parents bool) Option {
	return func(o *options) error {
		o.searchCwd = true
		o.searchParents = parents
		return nil
	}
}

// SkipHomeDir removes the home directory from the UpdateEnv search path.
func SkipHomeDir() Option {
	return func(o *options) error {
		o.skipHome = true
		return nil
	}
}

var nameRe = regexp.MustCompile("^[a-zA-Z][0-9a-zA-Z_]*$")

// VariableNamePrefix is prepended to every variable name from the file.
func VariableNamePrefix(prefix string) Option {
	return func(o *options) error {
		if !nameRe.MatchString(prefix) {
			return fmt.Errorf("variable name prefix %q has invalid characters: %w", prefix, os.ErrInvalid)
		}
		o.prefix = prefix
		return nil
	}
}

// OverwriteIfExists controls whether variables that already have a non-empty
// value in the environment are replaced.
func OverwriteIfExists(overwrite bool) Option {
	return func(o *options) error {
		o.overwrite = overwrite
		return nil
	}
}
