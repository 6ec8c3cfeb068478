package engine

import (
	"time"

	logger "github.com/sirupsen/logrus"

	"signalcopier/src/model"
)

// CancelExpiredEntries cancels pending entries whose order sat unfilled
// longer than the entry TTL.
func (e *Engine) CancelExpiredEntries(now time.Time) {
	if e.params.EntryTTL <= 0 {
		return
	}

	for _, id := range e.store.TradeIDs(model.TradeStatusPending) {
		tr, ok := e.store.Trade(id)
		if !ok || tr.PlacedTS == nil {
			continue
		}
		if now.Sub(*tr.PlacedTS) < e.params.EntryTTL {
			continue
		}
		if err := e.CancelEntry(id, model.ExitReasonEntryExpired, now); err != nil {
			logger.WithField("trade", id).WithError(err).Error("expired entry cancel failed")
		}
	}
}

// PollPendingEntries is the fallback fill detector for pending trades: when
// the live position is non-zero the entry filled and the push event was
// missed or the bot was down.
func (e *Engine) PollPendingEntries() {
	for _, id := range e.store.TradeIDs(model.TradeStatusPending) {
		tr, ok := e.store.Trade(id)
		if !ok {
			continue
		}

		pos, err := e.exchange.Position(tr.Symbol)
		if err != nil {
			logger.WithField("trade", id).WithError(err).Warn("pending position poll failed")
			continue
		}
		// A positive average price confirms the fill is real; transient
		// zero-average responses must not zero the entry.
		if pos.Size == 0 || pos.AvgPrice <= 0 || pos.Side != tr.OrderSide {
			continue
		}

		e.OnExecution(model.ExecutionEvent{
			Symbol:    tr.Symbol,
			Side:      tr.OrderSide,
			OrderID:   tr.EntryOrderID,
			ExecPrice: pos.AvgPrice,
			ExecQty:   pos.Size,
			ExecType:  "Trade",
		})
	}
}

// EnsurePostEntryOrders places the protective orders for open trades that
// still lack them, e.g. after a restart from a snapshot taken between the
// fill event and the placement. The claim flags keep it idempotent.
func (e *Engine) EnsurePostEntryOrders() {
	for _, id := range e.store.TradeIDs(model.TradeStatusOpen) {
		tr, ok := e.store.Trade(id)
		if !ok {
			continue
		}
		if !tr.PostOrdersPlaced {
			if err := e.PlacePostEntryOrders(id); err != nil {
				logger.WithField("trade", id).WithError(err).Error("deferred post-entry placement failed")
			}
		}
		if !tr.DCAOrdersPlaced && len(tr.DCAPrices) > 0 {
			if err := e.PlaceDCAOrders(id); err != nil {
				logger.WithField("trade", id).WithError(err).Error("deferred dca placement failed")
			}
		}
	}
}

// CheckTPFillsFallback reconciles open trades against the exchange when push
// events were missed: disappeared TP orders are marked filled, and a flat
// position closes the trade.
func (e *Engine) CheckTPFillsFallback() {
	for _, id := range e.store.TradeIDs(model.TradeStatusOpen) {
		tr, ok := e.store.Trade(id)
		if !ok || !tr.PostOrdersPlaced {
			continue
		}

		pos, err := e.exchange.Position(tr.Symbol)
		if err != nil {
			logger.WithField("trade", id).WithError(err).Warn("open position poll failed")
			continue
		}

		orders, err := e.exchange.OpenOrders(tr.Symbol)
		if err != nil {
			logger.WithField("trade", id).WithError(err).Warn("open orders poll failed")
			continue
		}
		live := make(map[string]bool, len(orders))
		for _, o := range orders {
			live[o.OrderID] = true
		}

		for i, oid := range tr.TPOrderIDs {
			if i < len(tr.TPFilled) && !tr.TPFilled[i] && !live[oid] && pos.Size > 0 {
				e.markTPFilled(id, i)
			}
		}

		if pos.Size == 0 {
			reason := model.ExitReasonStopLoss
			if allTrue(tr.TPFilled) {
				reason = model.ExitReasonTakeProfit
			}
			e.CloseTrade(id, reason, time.Now().UTC())
		}
	}
}

// CheckPositionAlerts warns when an open trade moved against its entry past
// the alert threshold. Advisory only, nothing is closed.
func (e *Engine) CheckPositionAlerts() {
	if e.params.AlertLossPct <= 0 {
		return
	}

	for _, id := range e.store.TradeIDs(model.TradeStatusOpen) {
		tr, ok := e.store.Trade(id)
		if !ok || tr.EntryPrice == nil || *tr.EntryPrice <= 0 {
			continue
		}

		last, err := e.exchange.LastPrice(tr.Symbol)
		if err != nil || last <= 0 {
			continue
		}

		movePct := (last - *tr.EntryPrice) / *tr.EntryPrice * 100
		if tr.OrderSide == model.OrderSideSell {
			movePct = -movePct
		}
		if movePct <= -e.params.AlertLossPct {
			logger.WithFields(map[string]interface{}{
				"trade":    tr.ID,
				"symbol":   tr.Symbol,
				"move_pct": movePct,
			}).Warn("position moving against entry")
		}
	}
}

// StartupSync runs once after a restart to reconcile loaded snapshot state
// with what is actually on the exchange.
func (e *Engine) StartupSync() {
	e.PollPendingEntries()
	e.EnsurePostEntryOrders()

	for _, id := range e.store.TradeIDs(model.TradeStatusOpen) {
		tr, ok := e.store.Trade(id)
		if !ok {
			continue
		}

		pos, err := e.exchange.Position(tr.Symbol)
		if err != nil {
			logger.WithField("trade", id).WithError(err).Warn("startup position check failed")
			continue
		}
		if pos.Size == 0 {
			e.CloseTrade(id, model.ExitReasonManualClose, time.Now().UTC())
		}
	}

	logger.WithFields(map[string]interface{}{
		"active": e.store.ActiveCount(),
	}).Info("startup sync complete")
}

// CleanupClosedTrades prunes terminal trades past retention and stale daily
// counters.
func (e *Engine) CleanupClosedTrades(now time.Time) {
	if e.params.ClosedRetention > 0 {
		e.store.PruneTerminal(e.params.ClosedRetention, now)
	}
	e.store.PruneDailyCounts(7, now)
}

// LogDailyStats emits the heartbeat counters.
func (e *Engine) LogDailyStats(now time.Time) {
	logger.WithFields(map[string]interface{}{
		"active":       e.store.ActiveCount(),
		"trades_today": e.store.TradesToday(now),
	}).Info("heartbeat")
}

func allTrue(flags []bool) bool {
	if len(flags) == 0 {
		return false
	}
	for _, f := range flags {
		if !f {
			return false
		}
	}
	return true
}
