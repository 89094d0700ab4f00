// Copyright (c) 2023 BVK Chaitanya

package subcmds

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/bvk/gridbot/config"
	"github.com/bvk/gridbot/ctxutil"
	"github.com/bvk/gridbot/daemonize"
	"github.com/bvk/gridbot/envfile"
	"github.com/bvk/gridbot/httputil"
	"github.com/bvk/gridbot/htx"
	"github.com/bvk/gridbot/server"
	"github.com/bvk/gridbot/subcmds/cmdutil"
	"github.com/bvkgo/kv/kvhttp"
	"github.com/bvkgo/kvbadger"
	"github.com/dgraph-io/badger/v4"
	"github.com/nightlyone/lockfile"
	"github.com/visvasity/cli"
	"github.com/visvasity/sglog"
)

// EnvFileName is the optional environment file that is loaded before the
// secrets are resolved. It is searched in the current directory, its parents
// and the home directory.
const EnvFileName = ".gridbot.env"

type Run struct {
	cmdutil.ServerFlags

	background bool

	restart         bool
	shutdownTimeout time.Duration

	noPprof    bool
	noTelegram bool
	debug      bool
	logToFile  bool

	secretsPath string
	dataDir     string
}

func (c *Run) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("run", flag.ContinueOnError)
	c.ServerFlags.SetFlags(fset)
	fset.BoolVar(&c.background, "background", false, "runs the daemon in background")
	fset.BoolVar(&c.restart, "restart", false, "when true, kills any old instance")
	fset.DurationVar(&c.shutdownTimeout, "shutdown-timeout", 30*time.Second, "max timeout for shutdown when restarting")
	fset.BoolVar(&c.noPprof, "no-pprof", false, "when true net/http/pprof handler is not registered")
	fset.BoolVar(&c.noTelegram, "no-telegram", false, "when true, telegram bot is not started even if it is configured")
	fset.BoolVar(&c.debug, "debug", false, "when true, debug messages are also logged")
	fset.BoolVar(&c.logToFile, "log-to-file", true, "when true, logs are written to files under the data directory")
	fset.StringVar(&c.secretsPath, "secrets-file", "", "path to credentials file")
	fset.StringVar(&c.dataDir, "data-dir", "", "path to the data directory")
	return "run", fset, cli.CmdFunc(c.run)
}

func (c *Run) Purpose() string {
	return "Runs gridbot in foreground or background"
}

func (c *Run) Description() string {
	return `

Command "run" starts the gridbot service. Gridbot service restores the grids
saved in the database and resumes them automatically. Market monitor and alert
rules are also restored from the database.

SECRETS FILE

HTX api keys are required to place and cancel orders. They are read from the
secrets file in the data directory, which can be created with the "setup"
command. A example secrets file format is given below:

    {
        "htx":{
            "key":"111111111",
            "secret":"2222222222"
        }
    }

When the secrets file has no htx keys, HTX_ACCESS_KEY and HTX_SECRET_KEY
environment variables are used. These variables can also be defined in a
.gridbot.env file.

CONFIGURATION

Engine settings are loaded from the gridbot.yaml file in the data directory.
Every setting can be overridden with GRIDBOT_ prefixed environment variables.

`
}

func (c *Run) loadSecrets(dataDir string) (*server.Secrets, error) {
	if len(c.secretsPath) == 0 {
		c.secretsPath = filepath.Join(dataDir, "secrets.json")
	}
	secrets, err := server.SecretsFromFile(c.secretsPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("could not load secrets file %q: %w", c.secretsPath, err)
		}
		secrets = new(server.Secrets)
	}
	if secrets.HTX == nil {
		if err := envfile.UpdateEnv(EnvFileName, envfile.SearchCurrentDir(true)); err != nil {
			return nil, fmt.Errorf("could not load environment file %q: %w", EnvFileName, err)
		}
		secrets.HTX = htx.CredentialsFromEnv()
	}
	if secrets.HTX == nil {
		return nil, fmt.Errorf("htx api keys are not configured: %w", os.ErrNotExist)
	}
	if err := secrets.Check(); err != nil {
		return nil, err
	}
	return secrets, nil
}

func (c *Run) run(ctx context.Context, args []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dataDir, err := cmdutil.DataDir(c.dataDir)
	if err != nil {
		return err
	}

	addr, err := c.ServerFlags.TCPAddr()
	if err != nil {
		return err
	}

	// Health checker for the background process initialization. We need to
	// verify that responding http server is really our child and not an older
	// instance.
	check := func(ctx context.Context, child *os.Process) (bool, error) {
		client := http.Client{Timeout: time.Second}
		resp, err := client.Get(fmt.Sprintf("http://%s/pid", addr.String()))
		if err != nil {
			return true, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return true, fmt.Errorf("http status: %d", resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return true, err
		}
		if pid := string(data); pid != strconv.Itoa(child.Pid) {
			return c.restart, fmt.Errorf("is another instance already running? pid mismatch: want %d got %s", child.Pid, pid)
		}
		return false, nil
	}

	if c.background {
		if err := daemonize.Daemonize(ctx, "GRIDBOT_DAEMONIZE", check); err != nil {
			return err
		}
	}

	if c.logToFile {
		logDir := filepath.Join(dataDir, "logs")
		if err := os.MkdirAll(logDir, 0700); err != nil {
			return fmt.Errorf("could not create log directory %q: %w", logDir, err)
		}
		backend := sglog.NewBackend(&sglog.Options{
			LogDirs:              []string{logDir},
			LogFileReuseDuration: time.Hour,
		})
		defer backend.Close()

		if !c.debug {
			backend.SetLevel(slog.LevelInfo)
		}
		slog.SetDefault(slog.New(backend.Handler()))
	} else if c.debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	secrets, err := c.loadSecrets(dataDir)
	if err != nil {
		return err
	}
	cfg, err := config.Load(dataDir)
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}
	slog.Info("using data directory and secrets file", "data-dir", dataDir, "secrets-file", c.secretsPath)

	lockPath := filepath.Join(dataDir, "gridbot.lock")
	flock, err := lockfile.New(lockPath)
	if err != nil {
		return fmt.Errorf("could not create lock file %q: %w", lockPath, err)
	}
	if err := flock.TryLock(); err != nil {
		if !c.restart {
			return fmt.Errorf("could not get lock on file %q: %w", lockPath, err)
		}
		owner, err := flock.GetOwner()
		if err != nil {
			return fmt.Errorf("could not get current owner of the lock file: %w", err)
		}
		if err := owner.Signal(os.Interrupt); err == nil {
			slog.Info("waiting for the previous instance to shutdown", "pid", owner.Pid)
			if err := ctxutil.RetryTimeout(ctx, time.Second, c.shutdownTimeout, flock.TryLock); err != nil {
				if err := owner.Signal(os.Kill); err != nil {
					return fmt.Errorf("could not kill current owner of the lock file: %w", err)
				}
				ctxutil.Sleep(ctx, time.Millisecond)
			}
		}
		if err := flock.TryLock(); err != nil {
			return fmt.Errorf("could not get lock on file %q after killing previous instance: %w", lockPath, err)
		}
	}
	defer flock.Unlock()

	// Start HTTP server.
	s, err := httputil.New(nil /* opts */)
	if err != nil {
		return err
	}
	defer s.Close()

	tcpServer, err := s.StartTCP(ctx, addr)
	if err != nil {
		return fmt.Errorf("could not start http server on %s: %w", addr, err)
	}
	defer s.Stop(tcpServer)

	if !c.noPprof {
		s.AddHandler("/debug/pprof/heap", pprof.Handler("heap"))
		s.AddHandler("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		s.AddHandler("/debug/pprof/allocs", pprof.Handler("allocs"))
		s.AddHandler("/debug/pprof/block", pprof.Handler("block"))
		s.AddHandler("/debug/pprof/mutex", pprof.Handler("mutex"))
	}

	// Open the database.
	bopts := badger.DefaultOptions(dataDir)
	bopts.Logger = nil
	bdb, err := badger.Open(bopts)
	if err != nil {
		return fmt.Errorf("could not open the database: %w", err)
	}
	defer bdb.Close()
	db := kvbadger.New(bdb, cmdutil.IsGoodKey)

	s.AddHandler("/db/", http.StripPrefix("/db", kvhttp.Handler(db)))

	gw, err := htx.New(secrets.HTX.Key, secrets.HTX.Secret, cfg.HTXOptions())
	if err != nil {
		return fmt.Errorf("could not create htx exchange client: %w", err)
	}
	defer gw.Close()

	opts := cfg.ServerOptions()
	opts.NoTelegram = c.noTelegram
	bot, err := server.New(ctx, secrets, db, gw, opts)
	if err != nil {
		return err
	}
	defer bot.Close()

	apis := bot.HandlerMap()
	for k, v := range apis {
		s.AddHandler(k, v)
	}
	defer func() {
		for k := range apis {
			s.RemoveHandler(k)
		}
	}()

	if err := bot.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := bot.Stop(context.Background()); err != nil {
			slog.Warn("could not stop all grids (ignored)", "err", err)
		}
	}()

	slog.Info("started gridbot server", "addr", addr)
	s.AddHandler("/pid", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, strconv.Itoa(os.Getpid()))
	}))

	<-ctx.Done()
	slog.Info("gridbot server is shutting down")
	return nil
}
