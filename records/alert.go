// Copyright (c) 2025 BVK Chaitanya

package records

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type AlertRule struct {
	ID     string `json:"id"`
	User   string `json:"user"`
	Symbol string `json:"symbol"`

	// Metric is one of "price" or "volume".
	Metric string `json:"metric"`

	// Comparison is one of "above", "below" or "change".
	Comparison string `json:"comparison"`

	Threshold decimal.Decimal `json:"threshold"`

	Cooldown Duration `json:"cooldown"`

	Enabled bool `json:"enabled"`

	Note string `json:"note,omitempty"`

	CreateTime    time.Time `json:"create_time"`
	LastTriggered time.Time `json:"last_triggered,omitzero"`
	TriggerCount  int       `json:"trigger_count"`
}

type AlertEvent struct {
	RuleID  string          `json:"rule_id"`
	User    string          `json:"user"`
	Symbol  string          `json:"symbol"`
	Value   decimal.Decimal `json:"value"`
	Message string          `json:"message"`
	Time    time.Time       `json:"time"`
}

// Duration is a time.Duration that is saved in its string form.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(bs []byte) error {
	var s string
	if err := json.Unmarshal(bs, &s); err != nil {
		var ns int64
		if err := json.Unmarshal(bs, &ns); err != nil {
			return err
		}
		*d = Duration(ns)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
