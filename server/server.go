// Copyright (c) 2023 BVK Chaitanya

// Package server wires the grid engine, the alert manager and the market
// monitor to an exchange gateway and exposes them through a http json api and
// telegram commands.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bvk/gridbot/alert"
	"github.com/bvk/gridbot/api"
	"github.com/bvk/gridbot/ctxutil"
	"github.com/bvk/gridbot/exchange"
	"github.com/bvk/gridbot/grid"
	"github.com/bvk/gridbot/httputil"
	"github.com/bvk/gridbot/monitor"
	"github.com/bvk/gridbot/notify"
	"github.com/bvk/gridbot/pushover"
	"github.com/bvk/gridbot/telegram"
	"github.com/bvkgo/kv"
)

type Server struct {
	cg ctxutil.CloseGroup

	opts Options

	db kv.Database
	gw exchange.Gateway

	sink notify.Sink

	grids   *grid.Engine
	alerts  *alert.Manager
	monitor *monitor.Monitor

	telegramClient *telegram.Client
	pushoverClient *pushover.Client

	startTime time.Time

	closeOnce sync.Once

	lowBalanceMu           sync.Mutex
	alertFreezeDeadlineMap map[string]time.Time
}

// New creates a server over the database and the exchange gateway. Telegram
// and pushover notifications are enabled when their secrets are present.
func New(ctx context.Context, secrets *Secrets, db kv.Database, gw exchange.Gateway, opts *Options) (_ *Server, status error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	if secrets == nil {
		secrets = new(Secrets)
	}
	if err := secrets.Check(); err != nil {
		return nil, err
	}

	s := &Server{
		opts:                   *opts,
		db:                     db,
		gw:                     gw,
		startTime:              time.Now(),
		alertFreezeDeadlineMap: make(map[string]time.Time),
	}
	defer func() {
		if status != nil {
			s.Close()
		}
	}()

	sinks := notify.Multi{notify.LogSink{}}
	if secrets.Telegram != nil && !opts.NoTelegram {
		client, err := telegram.New(ctx, db, secrets.Telegram)
		if err != nil {
			return nil, fmt.Errorf("could not create telegram client: %w", err)
		}
		s.telegramClient = client
		sinks = append(sinks, client)
	}
	if secrets.Pushover != nil {
		client, err := pushover.New(secrets.Pushover)
		if err != nil {
			return nil, fmt.Errorf("could not create pushover client: %w", err)
		}
		s.pushoverClient = client
		sinks = append(sinks, client)
	}
	s.sink = sinks

	grids, err := grid.NewEngine(db, gw, s.sink, opts.Grid)
	if err != nil {
		return nil, fmt.Errorf("could not create grid engine: %w", err)
	}
	s.grids = grids

	alerts, err := alert.NewManager(db, s.sink, opts.Alert)
	if err != nil {
		return nil, fmt.Errorf("could not create alert manager: %w", err)
	}
	s.alerts = alerts

	mon, err := monitor.New(gw, grids, alerts, opts.Monitor)
	if err != nil {
		return nil, fmt.Errorf("could not create market monitor: %w", err)
	}
	s.monitor = mon

	if s.telegramClient != nil {
		if err := s.addTelegramCommands(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Close stops the background goroutines and releases the notification
// clients. Database and the gateway are owned by the caller.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.cg.Close()
		if s.monitor != nil {
			s.monitor.Close()
		}
		if s.telegramClient != nil {
			s.telegramClient.Close()
		}
	})
	return nil
}

// Start restores the grids saved in the database and starts the market
// monitor.
func (s *Server) Start(ctx context.Context) error {
	nlive, err := s.grids.Restore(ctx)
	if err != nil {
		return fmt.Errorf("could not restore grids: %w", err)
	}
	slog.Info("restored grids from the database", "live", nlive)

	if err := s.monitor.Start(ctx); err != nil {
		return err
	}
	if len(s.opts.LowBalanceLimits) != 0 {
		s.cg.Go(s.watchForLowBalance)
	}
	s.cg.Go(s.watchDailyBalance)

	s.SendMessage(ctx, time.Now(), "Gridbot started with %d live grids on %s.", nlive, s.gw.ExchangeName())
	return nil
}

// Stop is the counterpart of Start.
func (s *Server) Stop(ctx context.Context) error {
	s.SendMessage(ctx, time.Now(), "Gridbot is stopping.")
	return s.Close()
}

// SendMessage sends a message to the owner over the configured notification
// channels.
func (s *Server) SendMessage(ctx context.Context, at time.Time, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if s.telegramClient != nil {
		if err := s.telegramClient.SendMessage(ctx, at, msg); err != nil {
			slog.Warn("could not send telegram message (ignored)", "err", err)
		}
	}
	if s.pushoverClient != nil {
		if err := s.pushoverClient.SendMessage(ctx, at, msg); err != nil {
			slog.Warn("could not send pushover message (ignored)", "err", err)
		}
	}
	slog.Info(msg)
}

// HandlerMap returns the http handlers for the json api.
func (s *Server) HandlerMap() map[string]http.Handler {
	return map[string]http.Handler{
		api.GridStartPath:  httputil.HandlerFunc(s.doGridStart),
		api.GridStopPath:   httputil.HandlerFunc(s.doGridStop),
		api.GridPausePath:  httputil.HandlerFunc(s.doGridPause),
		api.GridResumePath: httputil.HandlerFunc(s.doGridResume),
		api.GridStatusPath: httputil.HandlerFunc(s.doGridStatus),

		api.AlertCreatePath:  httputil.HandlerFunc(s.doAlertCreate),
		api.AlertDeletePath:  httputil.HandlerFunc(s.doAlertDelete),
		api.AlertListPath:    httputil.HandlerFunc(s.doAlertList),
		api.AlertEnablePath:  httputil.HandlerFunc(s.doAlertEnable),
		api.AlertHistoryPath: httputil.HandlerFunc(s.doAlertHistory),

		api.MarketSnapshotPath:   httputil.HandlerFunc(s.doMarketSnapshot),
		api.MarketBalancePath:    httputil.HandlerFunc(s.doMarketBalance),
		api.MarketOrderPath:      httputil.HandlerFunc(s.doMarketOrder),
		api.MarketOpenOrdersPath: httputil.HandlerFunc(s.doMarketOpenOrders),
		api.MarketHistoryPath:    httputil.HandlerFunc(s.doMarketHistory),
		api.MarketCancelAllPath:  httputil.HandlerFunc(s.doMarketCancelAll),
		api.StatusPath:           httputil.HandlerFunc(s.doStatus),
		api.ProfitPath:           httputil.HandlerFunc(s.doProfit),
		api.PnLPath:              httputil.HandlerFunc(s.doPnL),
	}
}

func checkUser(user string) error {
	if len(user) == 0 {
		return fmt.Errorf("user cannot be empty: %w", os.ErrInvalid)
	}
	return nil
}
