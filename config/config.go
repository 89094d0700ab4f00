// Copyright (c) 2025 BVK Chaitanya

// Package config loads the engine configuration from the gridbot.yaml file
// in the data directory. Every setting can be overridden with an environment
// variable with GRIDBOT_ prefix, eg: GRIDBOT_MONITOR_INTERVAL=30s.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bvk/gridbot/alert"
	"github.com/bvk/gridbot/ctxutil"
	"github.com/bvk/gridbot/exchange"
	"github.com/bvk/gridbot/grid"
	"github.com/bvk/gridbot/gridcalc"
	"github.com/bvk/gridbot/htx"
	"github.com/bvk/gridbot/monitor"
	"github.com/bvk/gridbot/server"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	FileName  = "gridbot"
	FileType  = "yaml"
	EnvPrefix = "GRIDBOT"
)

type Config struct {
	Monitor MonitorConfig `mapstructure:"monitor"`
	Grid    GridConfig    `mapstructure:"grid"`
	Alert   AlertConfig   `mapstructure:"alert"`
	HTX     HTXConfig     `mapstructure:"htx"`
}

type MonitorConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	InstrumentTimeout time.Duration `mapstructure:"instrument_timeout"`
	MaxConcurrency    int           `mapstructure:"max_concurrency"`
	DriftInterval     time.Duration `mapstructure:"drift_interval"`
	DriftPercent      float64       `mapstructure:"drift_percent"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	DisableStreams    bool          `mapstructure:"disable_streams"`
}

type GridConfig struct {
	CandleInterval   string  `mapstructure:"candle_interval"`
	CandleCount      int     `mapstructure:"candle_count"`
	MinCandles       int     `mapstructure:"min_candles"`
	MinSpreadPercent float64 `mapstructure:"min_spread_percent"`
	Spacing          string  `mapstructure:"spacing"`
	PricePrecision   int32   `mapstructure:"price_precision"`
	SizePrecision    int32   `mapstructure:"size_precision"`
	MaxRetries       int     `mapstructure:"max_retries"`
	CancelOnPause    bool    `mapstructure:"cancel_on_pause"`
	MaxFills         int     `mapstructure:"max_fills"`

	GatewayAttempts int           `mapstructure:"gateway_attempts"`
	GatewayBackoff  time.Duration `mapstructure:"gateway_backoff"`

	StopCancelAttempts   int           `mapstructure:"stop_cancel_attempts"`
	StopCancelBackoff    time.Duration `mapstructure:"stop_cancel_backoff"`
	StopCancelMaxBackoff time.Duration `mapstructure:"stop_cancel_max_backoff"`

	RepairWarningInterval time.Duration `mapstructure:"repair_warning_interval"`
}

type AlertConfig struct {
	Baseline        string        `mapstructure:"baseline"`
	DefaultCooldown time.Duration `mapstructure:"default_cooldown"`
	MaxHistory      int           `mapstructure:"max_history"`

	// Timezone defines the day boundary for day-start baselines and the
	// calendar periods in profit summaries. Empty means local time.
	Timezone string `mapstructure:"timezone"`

	// LowBalance maps currencies to the balance limits that trigger a low
	// balance warning.
	LowBalance           map[string]float64 `mapstructure:"low_balance"`
	BalanceCheckInterval time.Duration      `mapstructure:"balance_check_interval"`

	// ValuationCurrency and BalanceHistoryDays control the daily balance
	// snapshots used for the daily pnl.
	ValuationCurrency  string `mapstructure:"valuation_currency"`
	BalanceHistoryDays int    `mapstructure:"balance_history_days"`
}

type HTXConfig struct {
	RestHost       string  `mapstructure:"rest_host"`
	WebsocketURL   string  `mapstructure:"websocket_url"`
	RequestsPerSec float64 `mapstructure:"requests_per_sec"`
}

var defaults = map[string]any{
	"monitor.interval":           time.Minute,
	"monitor.instrument_timeout": 20 * time.Second,
	"monitor.max_concurrency":    8,
	"monitor.drift_interval":     4 * time.Hour,
	"monitor.drift_percent":      5.0,
	"monitor.reconcile_interval": 15 * time.Second,
	"monitor.disable_streams":    false,

	"grid.candle_interval":         string(exchange.Interval4Hour),
	"grid.candle_count":            30,
	"grid.min_candles":             6,
	"grid.min_spread_percent":      1.0,
	"grid.spacing":                 string(gridcalc.Arithmetic),
	"grid.price_precision":         8,
	"grid.size_precision":          6,
	"grid.max_retries":             3,
	"grid.cancel_on_pause":         false,
	"grid.max_fills":               1000,
	"grid.repair_warning_interval": 4 * time.Hour,
	"grid.gateway_attempts":        3,
	"grid.gateway_backoff":         500 * time.Millisecond,
	"grid.stop_cancel_attempts":    5,
	"grid.stop_cancel_backoff":     time.Second,
	"grid.stop_cancel_max_backoff": 10 * time.Second,

	"alert.baseline":         string(alert.DayStart),
	"alert.default_cooldown": 5 * time.Minute,
	"alert.max_history":      100,
	"alert.timezone":         "",

	"alert.balance_check_interval": 15 * time.Minute,
	"alert.valuation_currency":     "usdt",
	"alert.balance_history_days":   30,

	"htx.rest_host":        "api.huobi.pro",
	"htx.websocket_url":    "wss://api.huobi.pro/ws",
	"htx.requests_per_sec": 10.0,
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName(FileName)
	v.SetConfigType(FileType)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

// Default returns the configuration with default values and environment
// overrides applied.
func Default() (*Config, error) {
	return decode(newViper())
}

// Load reads the gridbot.yaml file from the directory. Defaults are used when
// the file doesn't exist.
func Load(dir string) (*Config, error) {
	v := newViper()
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("could not read config file in %q: %w", dir, err)
		}
	}
	return decode(v)
}

// LoadFile reads the configuration from a file.
func LoadFile(file string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("could not read config file %q: %w", file, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("could not decode config: %w", err)
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Check() error {
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor interval must be positive: %w", os.ErrInvalid)
	}
	if c.Monitor.InstrumentTimeout <= 0 || c.Monitor.InstrumentTimeout > c.Monitor.Interval {
		return fmt.Errorf("instrument timeout must be positive and within the monitor interval: %w", os.ErrInvalid)
	}
	if c.Monitor.ReconcileInterval < 0 {
		return fmt.Errorf("reconcile interval cannot be negative: %w", os.ErrInvalid)
	}
	if c.Grid.MinSpreadPercent < 0 {
		return fmt.Errorf("min spread percent cannot be negative: %w", os.ErrInvalid)
	}
	if c.Monitor.DriftPercent < 0 {
		return fmt.Errorf("drift percent cannot be negative: %w", os.ErrInvalid)
	}
	if _, err := gridcalc.ParseSpacing(c.Grid.Spacing); err != nil {
		return err
	}
	if c.Grid.CandleCount < c.Grid.MinCandles {
		return fmt.Errorf("candle count %d is below the min candles %d: %w", c.Grid.CandleCount, c.Grid.MinCandles, os.ErrInvalid)
	}
	if c.Grid.MaxRetries < 1 {
		return fmt.Errorf("max retries must be positive: %w", os.ErrInvalid)
	}
	if _, err := alert.ParseBaseline(c.Alert.Baseline); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	for ccy, limit := range c.Alert.LowBalance {
		if limit < 0 {
			return fmt.Errorf("low balance limit for %q cannot be negative: %w", ccy, os.ErrInvalid)
		}
	}
	if c.HTX.RequestsPerSec <= 0 {
		return fmt.Errorf("htx requests per second must be positive: %w", os.ErrInvalid)
	}
	return nil
}

// Location returns the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Alert.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Alert.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q is invalid: %w", c.Alert.Timezone, os.ErrInvalid)
	}
	return loc, nil
}

// Spacing returns the default spacing for new grids.
func (c *Config) Spacing() gridcalc.Spacing {
	s, _ := gridcalc.ParseSpacing(c.Grid.Spacing)
	return s
}

func (c *Config) GridOptions() *grid.Options {
	return &grid.Options{
		CandleInterval: exchange.Interval(c.Grid.CandleInterval),
		CandleCount:    c.Grid.CandleCount,
		Calc: gridcalc.Options{
			MinCandles:       c.Grid.MinCandles,
			MinSpreadPercent: decimal.NewFromFloat(c.Grid.MinSpreadPercent),
			PricePrecision:   c.Grid.PricePrecision,
			SizePrecision:    c.Grid.SizePrecision,
		},
		MaxRetries:    c.Grid.MaxRetries,
		CancelOnPause: c.Grid.CancelOnPause,
		MaxFills:      c.Grid.MaxFills,

		RepairWarningInterval: c.Grid.RepairWarningInterval,
		GatewayBackoff: ctxutil.Backoff{
			Attempts: c.Grid.GatewayAttempts,
			Initial:  c.Grid.GatewayBackoff,
			Max:      10 * c.Grid.GatewayBackoff,
		},
		CancelBackoff: ctxutil.Backoff{
			Attempts: c.Grid.StopCancelAttempts,
			Initial:  c.Grid.StopCancelBackoff,
			Max:      c.Grid.StopCancelMaxBackoff,
		},
	}
}

func (c *Config) AlertOptions() *alert.Options {
	loc, _ := c.Location()
	return &alert.Options{
		DefaultCooldown: c.Alert.DefaultCooldown,
		Baseline:        alert.Baseline(c.Alert.Baseline),
		MaxHistory:      c.Alert.MaxHistory,
		Location:        loc,
	}
}

func (c *Config) MonitorOptions() *monitor.Options {
	return &monitor.Options{
		Interval:          c.Monitor.Interval,
		InstrumentTimeout: c.Monitor.InstrumentTimeout,
		MaxConcurrency:    c.Monitor.MaxConcurrency,
		DriftInterval:     c.Monitor.DriftInterval,
		DriftPercent:      decimal.NewFromFloat(c.Monitor.DriftPercent),
		ReconcileInterval: min(c.Monitor.ReconcileInterval, c.Monitor.Interval),
		DisableStreams:    c.Monitor.DisableStreams,
	}
}

func (c *Config) HTXOptions() *htx.Options {
	return &htx.Options{
		RestHost:       c.HTX.RestHost,
		WebsocketURL:   c.HTX.WebsocketURL,
		RequestsPerSec: c.HTX.RequestsPerSec,
	}
}

// ServerOptions returns the options for all engines of the server.
func (c *Config) ServerOptions() *server.Options {
	loc, _ := c.Location()
	opts := &server.Options{
		Grid:                 c.GridOptions(),
		Alert:                c.AlertOptions(),
		Monitor:              c.MonitorOptions(),
		Spacing:              c.Spacing(),
		Location:             loc,
		BalanceCheckInterval: c.Alert.BalanceCheckInterval,
		ValuationCurrency:    c.Alert.ValuationCurrency,
		BalanceHistoryDays:   c.Alert.BalanceHistoryDays,
	}
	if len(c.Alert.LowBalance) != 0 {
		opts.LowBalanceLimits = make(map[string]decimal.Decimal)
		for ccy, limit := range c.Alert.LowBalance {
			opts.LowBalanceLimits[strings.ToLower(ccy)] = decimal.NewFromFloat(limit)
		}
	}
	return opts
}
