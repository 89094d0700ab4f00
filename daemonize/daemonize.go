// Copyright (c) 2023 BVK Chaitanya

// Package daemonize respawns the current program as a background process.
package daemonize

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"log/syslog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bvk/gridbot/ctxutil"
	"golang.org/x/sys/unix"
)

// CheckFunc verifies that the background process is initialized. It returns
// a nil error on success. When it returns an error, the retry flag tells if
// the check should be repeated after a short wait.
type CheckFunc func(ctx context.Context, child *os.Process) (retry bool, err error)

// Daemonize respawns the current program in the background with the same
// command-line arguments. It must be called during the program startup
// before opening databases, starting servers, etc.
//
// The envKey environment variable identifies the background process and
// holds the parent's pid. It must not be used by any other program.
//
// Standard input and outputs of the background process are replaced with
// /dev/null and standard library log is redirected to syslog.
//
// When successful, Daemonize returns nil in the background process and exits
// the parent process (i.e., never returns). When unsuccessful, it returns a
// non-nil error in the parent process and the background process exits.
func Daemonize(ctx context.Context, envKey string, check CheckFunc) error {
	if len(envKey) == 0 {
		return fmt.Errorf("environment variable name cannot be empty: %w", os.ErrInvalid)
	}
	if v := os.Getenv(envKey); len(v) == 0 {
		if err := daemonizeParent(ctx, envKey, check); err != nil {
			return err
		}
		os.Exit(0)
	}
	if err := daemonizeChild(); err != nil {
		os.Exit(1)
	}
	return nil
}

func daemonizeParent(ctx context.Context, envKey string, check CheckFunc) error {
	binary, err := exec.LookPath(os.Args[0])
	if err != nil {
		return fmt.Errorf("failed to lookup binary: %w", err)
	}
	binaryPath, err := filepath.Abs(binary)
	if err != nil {
		return fmt.Errorf("could not determine absolute path for binary: %w", err)
	}

	file, err := os.OpenFile("/dev/null", os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open /dev/null: %w", err)
	}
	defer file.Close()

	// Receive signal when child-process dies.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGCHLD, os.Interrupt)
	defer stop()

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	attr := &os.ProcAttr{
		Dir:   cwd,
		Env:   append(os.Environ(), fmt.Sprintf("%s=%d", envKey, os.Getpid())),
		Files: []*os.File{file, file, file},
	}
	child, err := os.StartProcess(binaryPath, os.Args, attr)
	if err != nil {
		return fmt.Errorf("failed to start process: %w", err)
	}

	if check == nil {
		return nil
	}

	ctxutil.Sleep(ctx, time.Second)
	for ctx.Err() == nil {
		retry, err := check(ctx, child)
		if err == nil {
			return nil
		}
		if !retry {
			child.Kill()
			return err
		}
		slog.Warn("background process is not yet initialized", "pid", child.Pid, "err", err)
		ctxutil.Sleep(ctx, time.Second)
	}
	return fmt.Errorf("could not initialize the background process: %w", context.Cause(ctx))
}

func daemonizeChild() error {
	syslogger, err := syslog.New(syslog.LOG_INFO, filepath.Base(os.Args[0]))
	if err != nil {
		return fmt.Errorf("could not create syslog: %w", err)
	}
	log.SetOutput(syslogger)

	if _, err := unix.Setsid(); err != nil {
		return fmt.Errorf("could not set session id: %w", err)
	}
	return nil
}
