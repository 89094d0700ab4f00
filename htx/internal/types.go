// Copyright (c) 2025 BVK Chaitanya

package internal

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Response is the common envelope of all REST responses.
type Response struct {
	Status  string          `json:"status"`
	ErrCode string          `json:"err-code"`
	ErrMsg  string          `json:"err-msg"`
	Data    json.RawMessage `json:"data"`
	Tick    json.RawMessage `json:"tick"`
	TS      int64           `json:"ts"`
}

// APIError is returned when the exchange responds with an error status.
type APIError struct {
	HTTPStatus int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("htx api error (http-status %d): %s: %s", e.HTTPStatus, e.Code, e.Message)
}

// Error codes that callers act upon.
const (
	CodeInsufficientBalance = "account-frozen-balance-insufficient-error"
	CodeBalanceError        = "order-accountbalance-error"
	CodeRecordInvalid       = "base-record-invalid"
	CodeOrderNotFound       = "order-not-found"
	CodeOrderStateError     = "order-orderstate-error"
	CodeDuplicateClientID   = "order-duplicate-client-order-id"
	CodeTooManyRequests     = "api-request-too-frequent"
)

type Account struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	State string `json:"state"`
}

type BalanceItem struct {
	Currency string          `json:"currency"`
	Type     string          `json:"type"`
	Balance  decimal.Decimal `json:"balance"`
}

type AccountBalance struct {
	ID    int64          `json:"id"`
	Type  string         `json:"type"`
	State string         `json:"state"`
	List  []*BalanceItem `json:"list"`
}

// MergedTick is the response of /market/detail/merged. Amount is the 24h
// volume in the base currency and Vol is in the quote currency.
type MergedTick struct {
	ID     int64             `json:"id"`
	Open   decimal.Decimal   `json:"open"`
	Close  decimal.Decimal   `json:"close"`
	Low    decimal.Decimal   `json:"low"`
	High   decimal.Decimal   `json:"high"`
	Amount decimal.Decimal   `json:"amount"`
	Vol    decimal.Decimal   `json:"vol"`
	Count  int64             `json:"count"`
	Bid    []decimal.Decimal `json:"bid"`
	Ask    []decimal.Decimal `json:"ask"`
}

type Kline struct {
	ID     int64           `json:"id"`
	Open   decimal.Decimal `json:"open"`
	Close  decimal.Decimal `json:"close"`
	Low    decimal.Decimal `json:"low"`
	High   decimal.Decimal `json:"high"`
	Amount decimal.Decimal `json:"amount"`
	Vol    decimal.Decimal `json:"vol"`
	Count  int64           `json:"count"`
}

type PlaceOrderRequest struct {
	AccountID     string `json:"account-id"`
	Symbol        string `json:"symbol"`
	Type          string `json:"type"`
	Amount        string `json:"amount"`
	Price         string `json:"price,omitempty"`
	Source        string `json:"source,omitempty"`
	ClientOrderID string `json:"client-order-id,omitempty"`
}

// Order is the order detail returned by the v1 order endpoints.
type Order struct {
	ID              int64           `json:"id"`
	ClientOrderID   string          `json:"client-order-id"`
	Symbol          string          `json:"symbol"`
	AccountID       int64           `json:"account-id"`
	Type            string          `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	Price           decimal.Decimal `json:"price"`
	State           string          `json:"state"`
	FilledAmount    decimal.Decimal `json:"field-amount"`
	FilledCashValue decimal.Decimal `json:"field-cash-amount"`
	FilledFees      decimal.Decimal `json:"field-fees"`
	CreatedAt       int64           `json:"created-at"`
	FinishedAt      int64           `json:"finished-at"`
	CanceledAt      int64           `json:"canceled-at"`

	// The openOrders endpoint spells the filled fields differently.
	OpenFilledAmount    decimal.Decimal `json:"filled-amount"`
	OpenFilledCashValue decimal.Decimal `json:"filled-cash-amount"`
	OpenFilledFees      decimal.Decimal `json:"filled-fees"`
}

type BatchCancelResult struct {
	Success []string `json:"success"`
	Failed  []struct {
		OrderID      string `json:"order-id"`
		OrderState   int    `json:"order-state"`
		ErrorCode    string `json:"err-code"`
		ErrorMessage string `json:"err-msg"`
	} `json:"failed"`
}

type CancelOpenOrdersResult struct {
	SuccessCount int   `json:"success-count"`
	FailedCount  int   `json:"failed-count"`
	NextID       int64 `json:"next-id"`
}

// TickerUpdate is the "tick" payload of the market.$symbol.ticker websocket
// channel.
type TickerUpdate struct {
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Amount    decimal.Decimal `json:"amount"`
	Vol       decimal.Decimal `json:"vol"`
	Count     int64           `json:"count"`
	Bid       decimal.Decimal `json:"bid"`
	BidSize   decimal.Decimal `json:"bidSize"`
	Ask       decimal.Decimal `json:"ask"`
	AskSize   decimal.Decimal `json:"askSize"`
	LastPrice decimal.Decimal `json:"lastPrice"`
	LastSize  decimal.Decimal `json:"lastSize"`

	// Symbol and Timestamp are filled from the message envelope.
	Symbol    string `json:"-"`
	Timestamp int64  `json:"-"`
}

// websocketMessage is the decompressed form of all market websocket
// messages.
type websocketMessage struct {
	Ping   *int64          `json:"ping"`
	Ch     string          `json:"ch"`
	TS     int64           `json:"ts"`
	Tick   json.RawMessage `json:"tick"`
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Subbed string          `json:"subbed"`
	ErrMsg string          `json:"err-msg"`
}
