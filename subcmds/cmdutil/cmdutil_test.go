// Copyright (c) 2025 BVK Chaitanya

package cmdutil

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/visvasity/cli"
)

type echoRequest struct {
	Message string
}

type echoResponse struct {
	Reply string
}

func TestPost(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/echo", func(w http.ResponseWriter, r *http.Request) {
		req := new(echoRequest)
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Message == "" {
			http.Error(w, "empty message", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(&echoResponse{Reply: strings.ToUpper(req.Message)})
	})
	hs := httptest.NewServer(mux)
	defer hs.Close()
	u, err := url.Parse(hs.URL)
	require.NoError(t, err)

	var cf ClientFlags
	fset := flag.NewFlagSet("test", flag.ContinueOnError)
	cf.SetFlags(fset)
	require.NoError(t, fset.Parse([]string{"-connect-port", u.Port(), "-api-path", "/api"}))

	ctx := context.Background()
	resp, err := Post[echoResponse](ctx, &cf, "/echo", &echoRequest{Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "HELLO", resp.Reply)

	_, err = Post[echoResponse](ctx, &cf, "/echo", &echoRequest{})
	assert.ErrorContains(t, err, "400")
	assert.ErrorContains(t, err, "empty message")
	assert.ErrorIs(t, err, os.ErrInvalid)
}

func TestClientPort(t *testing.T) {
	var cf ClientFlags
	t.Setenv(ServerPortEnv, "")
	assert.Equal(t, 10000, cf.Port())

	t.Setenv(ServerPortEnv, "12345")
	assert.Equal(t, 12345, cf.Port())

	fset := flag.NewFlagSet("test", flag.ContinueOnError)
	cf.SetFlags(fset)
	require.NoError(t, fset.Parse([]string{"-connect-port", "20000"}))
	assert.Equal(t, 20000, cf.Port())
}

func TestUserFlags(t *testing.T) {
	var uf UserFlags
	fset := flag.NewFlagSet("test", flag.ContinueOnError)
	uf.SetFlags(fset)

	t.Setenv(UserEnv, "carol")
	user, err := uf.User()
	require.NoError(t, err)
	assert.Equal(t, "carol", user)

	require.NoError(t, fset.Parse([]string{"-user", "dave"}))
	user, err = uf.User()
	require.NoError(t, err)
	assert.Equal(t, "dave", user)
}

func TestServerFlags(t *testing.T) {
	sf := ServerFlags{IP: "127.0.0.1", Port: 8080}
	addr, err := sf.TCPAddr()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", addr.String())

	sf.IP = "localhost"
	_, err = sf.TCPAddr()
	assert.ErrorIs(t, err, os.ErrInvalid)

	sf.IP, sf.Port = "127.0.0.1", 0
	_, err = sf.TCPAddr()
	assert.ErrorIs(t, err, os.ErrInvalid)
}

func TestDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	got, err := DataDir(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)
	assert.DirExists(t, dir)

	home := t.TempDir()
	t.Setenv("HOME", home)
	got, err = DataDir("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, DefaultDataDir), got)
}

func TestPrintJSON(t *testing.T) {
	var sb strings.Builder
	ctx := cli.WithStdout(context.Background(), &sb)
	require.NoError(t, PrintJSON(ctx, &echoResponse{Reply: "ok"}))
	assert.Equal(t, "{\n  \"Reply\": \"ok\"\n}\n", sb.String())
}
