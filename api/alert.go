// Copyright (c) 2025 BVK Chaitanya

package api

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AlertCreatePath  = "/alert/create"
	AlertDeletePath  = "/alert/delete"
	AlertListPath    = "/alert/list"
	AlertEnablePath  = "/alert/enable"
	AlertHistoryPath = "/alert/history"
)

type AlertRule struct {
	ID     string
	User   string
	Symbol string

	Metric     string
	Comparison string
	Threshold  decimal.Decimal
	Cooldown   time.Duration

	Enabled bool
	Note    string `json:",omitempty"`

	CreateTime    time.Time
	LastTriggered time.Time `json:",omitzero"`
	TriggerCount  int
}

type AlertCreateRequest struct {
	User   string
	Symbol string

	// Metric is "price" or "volume" and Comparison is "above", "below" or
	// "change".
	Metric     string
	Comparison string
	Threshold  decimal.Decimal

	// Cooldown is optional; zero selects the server's default.
	Cooldown time.Duration

	Note string
}

type AlertCreateResponse struct {
	Rule *AlertRule
}

type AlertDeleteRequest struct {
	User   string
	RuleID string
}

type AlertDeleteResponse struct {
	Rule *AlertRule
}

type AlertListRequest struct {
	User string

	// Symbol is optional.
	Symbol string
}

type AlertListResponse struct {
	Rules []*AlertRule
}

type AlertEnableRequest struct {
	User    string
	RuleID  string
	Enabled bool
}

type AlertEnableResponse struct {
	Rule *AlertRule
}

type AlertHistoryRequest struct {
	User  string
	Limit int
}

type AlertEvent struct {
	RuleID  string
	Symbol  string
	Value   decimal.Decimal
	Message string
	Time    time.Time
}

type AlertHistoryResponse struct {
	Events []*AlertEvent
}
