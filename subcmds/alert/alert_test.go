// Copyright (c) 2025 BVK Chaitanya

package alert

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/bvk/gridbot/api"
	"github.com/bvk/gridbot/exchange/paper"
	"github.com/bvk/gridbot/server"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/visvasity/cli"
)

type command interface {
	Command() (string, *flag.FlagSet, cli.CmdFunc)
}

func startServer(t *testing.T) string {
	ex, err := paper.New(nil)
	require.NoError(t, err)
	t.Cleanup(func() { ex.Close() })
	ex.SetPrice("ethusdt", decimal.NewFromInt(2000))

	s, err := server.New(context.Background(), nil, kvmemdb.New(), ex, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	mux := http.NewServeMux()
	for k, v := range s.HandlerMap() {
		mux.Handle(k, v)
	}
	hs := httptest.NewServer(mux)
	t.Cleanup(hs.Close)

	u, err := url.Parse(hs.URL)
	require.NoError(t, err)
	return u.Port()
}

func run(t *testing.T, c command, port, user string, args ...string) (string, error) {
	_, fset, f := c.Command()
	require.NoError(t, fset.Parse(append([]string{"-connect-port", port, "-user", user}, args...)))

	var sb strings.Builder
	err := f(cli.WithStdout(context.Background(), &sb), fset.Args())
	return sb.String(), err
}

func TestAlertCommands(t *testing.T) {
	port := startServer(t)

	out, err := run(t, new(Create), port, "alice", "-note", "breakout", "ETHUSDT", "price", "above", "2500")
	require.NoError(t, err)
	assert.Contains(t, out, "breakout")

	_, err = run(t, new(Create), port, "alice", "ETHUSDT", "price", "sideways", "2500")
	assert.ErrorContains(t, err, "400")

	_, err = run(t, new(Create), port, "alice", "ETHUSDT", "price", "above", "lots")
	assert.Error(t, err)

	out, err = run(t, new(List), port, "alice", "-json")
	require.NoError(t, err)
	var list api.AlertListResponse
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list.Rules, 1)
	id := list.Rules[0].ID

	out, err = run(t, NewDisable(), port, "alice", id)
	require.NoError(t, err)
	assert.Contains(t, out, "false")

	out, err = run(t, new(Enable), port, "alice", id)
	require.NoError(t, err)
	assert.Contains(t, out, "true")

	_, err = run(t, new(Delete), port, "bob", id)
	assert.ErrorContains(t, err, "403")

	out, err = run(t, new(Delete), port, "alice", id)
	require.NoError(t, err)
	assert.Contains(t, out, id)

	out, err = run(t, new(History), port, "alice")
	require.NoError(t, err)
	assert.Empty(t, out)
}
