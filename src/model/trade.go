package model

import (
	"fmt"
	"time"
)

const (
	TradeStatusPending   = "pending"
	TradeStatusOpen      = "open"
	TradeStatusClosed    = "closed"
	TradeStatusCancelled = "cancelled"
)

const (
	OrderSideBuy  = "Buy"
	OrderSideSell = "Sell"

	PosSideLong  = "Long"
	PosSideShort = "Short"
)

const (
	ExitReasonSignalCancelled = "signal_cancelled"
	ExitReasonEntryExpired    = "entry_expired"
	ExitReasonStopLoss        = "stop_loss"
	ExitReasonTakeProfit      = "take_profit"
	ExitReasonManualClose     = "manual_close"
)

// Trade is the durable record for one signal-driven trade. It lives in the
// in-memory state map and is persisted as part of the snapshot each cycle.
type Trade struct {
	ID        string `json:"id"`
	Symbol    string `json:"symbol"`
	OrderSide string `json:"order_side"` // Buy / Sell
	PosSide   string `json:"pos_side"`   // Long / Short

	Trigger   float64   `json:"trigger"`
	TPPrices  []float64 `json:"tp_prices"`
	DCAPrices []float64 `json:"dca_prices"`
	SLPrice   *float64  `json:"sl_price,omitempty"`

	EntryOrderID string   `json:"entry_order_id"`
	TPOrderIDs   []string `json:"tp_order_ids,omitempty"`
	DCAOrderIDs  []string `json:"dca_order_ids,omitempty"`
	EntryPrice   *float64 `json:"entry_price,omitempty"`
	MessageID    string   `json:"message_id,omitempty"`
	BaseQty      float64  `json:"base_qty"`
	Leverage     int      `json:"leverage,omitempty"`

	PostOrdersPlaced bool   `json:"post_orders_placed"`
	DCAOrdersPlaced  bool   `json:"dca_orders_placed"`
	SLMovedToBE      bool   `json:"sl_moved_to_be"`
	TPFilled         []bool `json:"tp_filled,omitempty"`

	PlacedTS   *time.Time `json:"placed_ts,omitempty"`
	FilledTS   *time.Time `json:"filled_ts,omitempty"`
	ClosedTS   *time.Time `json:"closed_ts,omitempty"`
	ExitReason string     `json:"exit_reason,omitempty"`

	Status string `json:"status"`

	Raw string `json:"raw,omitempty"`
}

// TradeID builds the synthetic trade key: {symbol}|{side}|{creation-epoch}.
func TradeID(symbol, side string, at time.Time) string {
	return fmt.Sprintf("%s|%s|%d", symbol, side, at.Unix())
}

// IsActive reports whether the trade still counts against the concurrency
// and daily limits.
func (t *Trade) IsActive() bool {
	return t.Status == TradeStatusPending || t.Status == TradeStatusOpen
}

// IsTerminal reports whether the trade is eligible for pruning.
func (t *Trade) IsTerminal() bool {
	return t.Status == TradeStatusClosed || t.Status == TradeStatusCancelled
}
