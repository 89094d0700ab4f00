// Copyright (c) 2025 BVK Chaitanya

// Package envfile loads KEY=VALUE files into the process environment. It is
// used to keep exchange api keys out of the shell history, eg: HTX_ACCESS_KEY
// and HTX_SECRET_KEY in ~/.gridbot.env file.
package envfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// Parse reads the variable assignments from the reader. Empty lines and lines
// starting with # are ignored. Lines may start with an "export" keyword and
// values may be double or single quoted.
func Parse(r io.Reader) (map[string]string, error) {
	vars := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for i := 1; scanner.Scan(); i++ {
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid/unrecognized variable assignment on line %d: %w", i, os.ErrInvalid)
		}
		key = strings.TrimSpace(key)
		if !nameRe.MatchString(key) {
			return nil, fmt.Errorf("invalid environment variable name %q on line %d: %w", key, i, os.ErrInvalid)
		}
		value = strings.TrimSpace(value)
		if n := len(value); n >= 2 {
			switch {
			case value[0] == '"' && value[n-1] == '"':
				v, err := strconv.Unquote(value)
				if err != nil {
					return nil, fmt.Errorf("invalid quoted value on line %d: %w", i, os.ErrInvalid)
				}
				value = v
			case value[0] == '\'' && value[n-1] == '\'':
				value = value[1 : n-1]
			}
		}
		vars[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return vars, nil
}

// Load updates the process environment with the variables from a file.
func Load(fpath string, opts ...Option) error {
	var o options
	if err := o.apply(opts); err != nil {
		return err
	}
	return o.load(fpath)
}

func (o *options) load(fpath string) error {
	fp, err := os.Open(fpath)
	if err != nil {
		return err
	}
	defer fp.Close()

	vars, err := Parse(fp)
	if err != nil {
		return fmt.Errorf("could not parse env file %q: %w", fpath, err)
	}
	for key, value := range vars {
		key = o.prefix + key
		if len(os.Getenv(key)) != 0 && !o.overwrite {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return nil
}

// searchPath returns the candidate file paths in the order of preference.
func (o *options) searchPath(filename string) ([]string, error) {
	var fpaths []string
	if o.searchCwd {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		fpaths = append(fpaths, filepath.Join(cwd, filename))
		if o.searchParents {
			for last, dir := cwd, filepath.Dir(cwd); dir != last; last, dir = dir, filepath.Dir(dir) {
				fpaths = append(fpaths, filepath.Join(dir, filename))
			}
		}
	}
	if !o.skipHome {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not determine home directory: %w", err)
		}
		if fpath := filepath.Join(home, filename); !slices.Contains(fpaths, fpath) {
			fpaths = append(fpaths, fpath)
		}
	}
	return fpaths, nil
}

// UpdateEnv updates current process's environment with the values read from
// the first env file found with the name. Only the home directory is searched
// by default.
func UpdateEnv(filename string, opts ...Option) error {
	if strings.ContainsRune(filename, os.PathSeparator) {
		return fmt.Errorf("file name contains path separator: %w", os.ErrInvalid)
	}
	var o options
	if err := o.apply(opts); err != nil {
		return err
	}
	fpaths, err := o.searchPath(filename)
	if err != nil {
		return err
	}
	for _, fpath := range fpaths {
		if err := o.load(fpath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
		return nil
	}
	return nil
}
