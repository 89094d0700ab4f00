// Copyright (c) 2025 BVK Chaitanya

package internal

import (
	"fmt"
	"os"
	"time"
)

const (
	RestHost     = "api.huobi.pro"
	WebsocketURL = "wss://api.huobi.pro/ws"
)

type Options struct {
	// RestHost is the host name of the REST service. It is also part of the
	// signed payload.
	RestHost string

	// RestScheme is "https" except in tests.
	RestScheme string

	WebsocketURL string

	HTTPClientTimeout time.Duration

	// RequestsPerSec limits the rate of REST calls from this client.
	RequestsPerSec float64

	// WebsocketPingTimeout closes the market data connection if the server
	// sends no message for this long.
	WebsocketPingTimeout time.Duration
}

func (v *Options) setDefaults() {
	if v.RestHost == "" {
		v.RestHost = RestHost
	}
	if v.RestScheme == "" {
		v.RestScheme = "https"
	}
	if v.WebsocketURL == "" {
		v.WebsocketURL = WebsocketURL
	}
	if v.HTTPClientTimeout == 0 {
		v.HTTPClientTimeout = 10 * time.Second
	}
	if v.RequestsPerSec == 0 {
		v.RequestsPerSec = 10
	}
	if v.WebsocketPingTimeout == 0 {
		v.WebsocketPingTimeout = 30 * time.Second
	}
}

// Check validates the options.
func (v *Options) Check() error {
	if v.RequestsPerSec < 0 {
		return fmt.Errorf("requests per second cannot be negative: %w", os.ErrInvalid)
	}
	if v.HTTPClientTimeout < 0 {
		return fmt.Errorf("http client timeout cannot be negative: %w", os.ErrInvalid)
	}
	return nil
}
