// Copyright (c) 2025 BVK Chaitanya

package db

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bvk/gridbot/kvutil"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/visvasity/cli"
)

type command interface {
	Command() (string, *flag.FlagSet, cli.CmdFunc)
}

func run(t *testing.T, c command, args ...string) (string, error) {
	_, fset, f := c.Command()
	require.NoError(t, fset.Parse(args))

	var sb strings.Builder
	err := f(cli.WithStdout(context.Background(), &sb), fset.Args())
	return sb.String(), err
}

type item struct {
	Name  string
	Count int
}

func writeBackup(t *testing.T) string {
	ctx := context.Background()
	db := kvmemdb.New()
	require.NoError(t, kvutil.SetDB(ctx, db, "/grids/alice/btcusdt", &item{Name: "btc", Count: 1}))
	require.NoError(t, kvutil.SetDB(ctx, db, "/grids/alice/ethusdt", &item{Name: "eth", Count: 2}))
	require.NoError(t, kvutil.SetDB(ctx, db, "/alerts/alice/1", &item{Name: "alert", Count: 3}))

	file := filepath.Join(t.TempDir(), "backup.json")
	require.NoError(t, kvutil.BackupDB(ctx, db, file))
	return file
}

func TestReadCommands(t *testing.T) {
	backup := writeBackup(t)

	out, err := run(t, new(List), "-from-backup", backup)
	require.NoError(t, err)
	assert.Equal(t, "/alerts/alice/1\n/grids/alice/btcusdt\n/grids/alice/ethusdt\n", out)

	out, err = run(t, new(List), "-from-backup", backup, "-dir", "/grids", "-print-template", "{{.Name}}={{.Count}}")
	require.NoError(t, err)
	assert.Equal(t, "/grids/alice/btcusdt btc=1\n/grids/alice/ethusdt eth=2\n", out)

	out, err = run(t, new(List), "-from-backup", backup, "-key-regexp", "eth")
	require.NoError(t, err)
	assert.Equal(t, "/grids/alice/ethusdt\n", out)

	out, err = run(t, new(Get), "-from-backup", backup, "/alerts/alice/1")
	require.NoError(t, err)
	assert.Contains(t, out, `"Name": "alert"`)

	_, err = run(t, new(Get), "-from-backup", backup, "/alerts/alice/2")
	assert.ErrorIs(t, err, os.ErrNotExist)

	out, err = run(t, new(Export), "-from-backup", backup, "-dir", "/alerts")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.Contains(t, out, `"key":"/alerts/alice/1"`)

	_, err = run(t, new(List), "-from-backup", backup, "-data-dir", t.TempDir())
	assert.ErrorIs(t, err, os.ErrInvalid)
}

func TestWriteCommands(t *testing.T) {
	backup := writeBackup(t)
	dataDir := t.TempDir()

	_, err := run(t, new(Import), "-data-dir", dataDir, backup)
	require.NoError(t, err)

	out, err := run(t, new(List), "-data-dir", dataDir)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "\n"))

	_, err = run(t, new(Delete), "-data-dir", dataDir, "/grids/alice/btcusdt")
	require.NoError(t, err)

	second := filepath.Join(t.TempDir(), "second.json")
	_, err = run(t, new(Backup), "-data-dir", dataDir, second)
	require.NoError(t, err)

	out, err = run(t, new(List), "-from-backup", second)
	require.NoError(t, err)
	assert.Equal(t, "/alerts/alice/1\n/grids/alice/ethusdt\n", out)

	// Restore replaces the database contents.
	_, err = run(t, new(Restore), "-data-dir", dataDir, backup)
	require.NoError(t, err)
	out, err = run(t, new(List), "-data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "/grids/alice/btcusdt")

	_, err = run(t, new(Restore), backup)
	assert.Error(t, err)
}
