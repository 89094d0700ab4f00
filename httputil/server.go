// Copyright (c) 2023 BVK Chaitanya

package httputil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/bvk/gridbot/ctxutil"
	"github.com/bvk/gridbot/syncmap"
	"github.com/google/uuid"
)

// Server is a http server with a dynamic set of handlers that can serve on
// multiple listeners at the same time.
type Server struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	wg     sync.WaitGroup

	opts Options

	nextServerID atomic.Int64
	serverMap    syncmap.Map[int64, *http.Server]

	mux atomic.Pointer[http.ServeMux]

	mutex      sync.Mutex
	handlerMap map[string]http.Handler
}

// New creates a http server.
func New(opts *Options) (*Server, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	s := &Server{
		ctx:        ctx,
		cancel:     cancel,
		opts:       *opts,
		handlerMap: make(map[string]http.Handler),
	}
	s.mux.Store(http.NewServeMux())
	return s, nil
}

func (s *Server) Close() error {
	s.cancel(os.ErrClosed)
	for _, svr := range s.serverMap.Range {
		svr.Close()
	}
	s.wg.Wait()
	return nil
}

// StartTCP starts serving on a tcp address and returns an id that can be used
// to stop it. Port number in the addr is updated when it is zero.
func (s *Server) StartTCP(ctx context.Context, addr *net.TCPAddr) (int64, error) {
	l, err := net.Listen("tcp", addr.String())
	if err != nil {
		return -1, err
	}
	laddr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		l.Close()
		return -1, fmt.Errorf("created listener addr is not *net.TCPAddr type")
	}
	if addr.Port == 0 {
		addr.Port = laddr.Port
	}
	client := &http.Client{
		Timeout: s.opts.ServerCheckTimeout,
	}
	return s.start(ctx, l, client, l.Addr().String())
}

// start serves on the listener and waits till a test request succeeds
// through the client.
func (s *Server) start(ctx context.Context, l net.Listener, client *http.Client, host string) (id int64, status error) {
	defer func() {
		if status != nil {
			l.Close()
		}
	}()

	testPath := "/" + uuid.New().String()
	s.AddHandler(testPath, http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		slog.Debug("received http server test request", "addr", l.Addr(), "remote", r.RemoteAddr)
	}))
	defer s.RemoveHandler(testPath)

	server := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
		IdleTimeout:       s.opts.IdleTimeout,
		BaseContext: func(net.Listener) context.Context {
			return s.ctx
		},
	}
	defer func() {
		if status != nil {
			server.Close()
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		defer func() {
			if r := recover(); r != nil {
				slog.Error("CAUGHT PANIC", "panic", r)
				slog.Error(string(debug.Stack()))
				panic(r)
			}
		}()

		if err := server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "addr", l.Addr(), "err", err)
		}
	}()

	u := url.URL{Scheme: "http", Host: host, Path: testPath}

	tctx, tcancel := context.WithTimeout(ctx, s.opts.ServerCheckTimeout)
	defer tcancel()

	for tctx.Err() == nil {
		r, err := http.NewRequestWithContext(tctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return -1, fmt.Errorf("could not create test request: %w", err)
		}
		resp, err := client.Do(r)
		if err != nil {
			ctxutil.Sleep(tctx, s.opts.ServerCheckRetryInterval)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			break
		}
		ctxutil.Sleep(tctx, s.opts.ServerCheckRetryInterval)
	}
	if err := context.Cause(tctx); err != nil {
		return -1, fmt.Errorf("could not invoke test handler: %w", err)
	}

	id = s.nextServerID.Add(1) - 1
	s.serverMap.Store(id, server)
	return id, nil
}

func (s *Server) Stop(id int64) error {
	svr, ok := s.serverMap.LoadAndDelete(id)
	if !ok {
		return fmt.Errorf("http server %d not found: %w", id, os.ErrNotExist)
	}
	_ = svr.Close()
	return nil
}

func (s *Server) AddHandler(pattern string, handler http.Handler) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.handlerMap[pattern] = handler
	s.updateHandlerMux()
}

// RemoveHandler removes the handler for the pattern and returns false if no
// such handler exists.
func (s *Server) RemoveHandler(pattern string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.handlerMap[pattern]; !ok {
		return false
	}
	delete(s.handlerMap, pattern)
	s.updateHandlerMux()
	return true
}

func (s *Server) updateHandlerMux() {
	m := http.NewServeMux()
	for k, v := range s.handlerMap {
		m.Handle(k, v)
	}
	s.mux.Store(m)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.Load().ServeHTTP(w, r)
}
