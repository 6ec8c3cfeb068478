package engine

import (
	"fmt"
	"math"
	"time"

	logger "github.com/sirupsen/logrus"

	"signalcopier/src/model"
	"signalcopier/src/risk"
)

// PlacePostEntryOrders places the take profits and the protective stop for a
// filled entry. Guarded by the post_orders_placed flag so the push handler
// and the poll fallback never double-place.
func (e *Engine) PlacePostEntryOrders(id string) error {
	var tr model.Trade
	claimed := e.store.Mutate(id, func(t *model.Trade) {
		if t.Status != model.TradeStatusOpen || t.PostOrdersPlaced {
			return
		}
		t.PostOrdersPlaced = true
		tr = *t
	})
	if !claimed || !tr.PostOrdersPlaced {
		return nil
	}

	_, _, closeSide, err := orderSides(sideFromOrderSide(tr.OrderSide))
	if err != nil {
		return err
	}

	entry := tr.Trigger
	if tr.EntryPrice != nil {
		entry = *tr.EntryPrice
	}

	if e.params.DryRun {
		logger.WithField("trade", tr.ID).Info("dry run, post-entry orders not sent")
		return nil
	}

	qtys := risk.SplitWeighted(tr.BaseQty, e.params.TPSplits, len(tr.TPPrices))
	tpIDs := make([]string, 0, len(tr.TPPrices))
	for i, price := range tr.TPPrices {
		ack, err := e.exchange.PlaceReduceLimit(tr.Symbol, closeSide, qtys[i], price, shortLinkID(fmt.Sprintf("tp%d", i+1)))
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"trade": tr.ID,
				"tp":    i + 1,
				"price": price,
			}).WithError(err).Error("take profit placement failed")
			continue
		}
		tpIDs = append(tpIDs, ack.OrderID)
	}

	if tr.SLPrice != nil {
		stop := risk.CapStopDistance(entry, *tr.SLPrice, tr.OrderSide, e.params.CapSLDistancePct)
		if err := e.exchange.SetStopLoss(tr.Symbol, stop); err != nil {
			logger.WithFields(map[string]interface{}{
				"trade": tr.ID,
				"stop":  stop,
			}).WithError(err).Error("stop loss placement failed")
		} else {
			e.store.Mutate(id, func(t *model.Trade) {
				t.SLPrice = &stop
			})
		}
	}

	e.store.Mutate(id, func(t *model.Trade) {
		t.TPOrderIDs = tpIDs
	})

	logger.WithFields(map[string]interface{}{
		"trade": tr.ID,
		"tps":   len(tpIDs),
	}).Info("post-entry orders placed")

	return nil
}

// PlaceDCAOrders places the averaging-down limit orders once per trade.
func (e *Engine) PlaceDCAOrders(id string) error {
	var tr model.Trade
	claimed := e.store.Mutate(id, func(t *model.Trade) {
		if !t.IsActive() || t.DCAOrdersPlaced || len(t.DCAPrices) == 0 {
			return
		}
		t.DCAOrdersPlaced = true
		tr = *t
	})
	if !claimed || !tr.DCAOrdersPlaced {
		return nil
	}

	if e.params.DryRun {
		logger.WithField("trade", tr.ID).Info("dry run, dca orders not sent")
		return nil
	}

	// DCA adds go the same direction as the entry. With no multipliers
	// configured the entry quantity is split evenly across the levels.
	qtys := risk.DCAQuantities(tr.BaseQty, e.params.DCAQtyMults, len(tr.DCAPrices))
	dcaIDs := make([]string, 0, len(tr.DCAPrices))
	for i, price := range tr.DCAPrices {
		ack, err := e.exchange.PlaceLimit(tr.Symbol, tr.OrderSide, qtys[i], price, shortLinkID(fmt.Sprintf("dca%d", i+1)))
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"trade": tr.ID,
				"dca":   i + 1,
				"price": price,
			}).WithError(err).Error("dca placement failed")
			continue
		}
		dcaIDs = append(dcaIDs, ack.OrderID)
	}

	e.store.Mutate(id, func(t *model.Trade) {
		t.DCAOrderIDs = dcaIDs
	})

	return nil
}

// UpdateTPOrders replaces the live take-profit ladder when an edited message
// moved the targets. Prices within tolerance of the current ones are left
// alone; any real difference cancels and re-places the whole ladder to keep
// quantities aligned.
func (e *Engine) UpdateTPOrders(id string, newTPs []float64) error {
	tr, ok := e.store.Trade(id)
	if !ok || !tr.IsActive() || len(newTPs) == 0 {
		return nil
	}

	if samePrices(tr.TPPrices, newTPs, e.params.TPTolerance) {
		return nil
	}

	for _, oid := range tr.TPOrderIDs {
		if e.params.DryRun {
			break
		}
		if err := e.exchange.CancelOrder(tr.Symbol, oid); err != nil {
			logger.WithFields(map[string]interface{}{
				"trade": tr.ID,
				"order": oid,
			}).WithError(err).Warn("stale take profit cancel failed")
		}
	}

	e.store.Mutate(id, func(t *model.Trade) {
		t.TPPrices = append([]float64(nil), newTPs...)
		t.TPFilled = make([]bool, len(newTPs))
		t.TPOrderIDs = nil
		t.PostOrdersPlaced = false
	})

	logger.WithFields(map[string]interface{}{
		"trade": tr.ID,
		"tps":   newTPs,
	}).Info("take profit ladder updated")

	// Re-place immediately when the position is already open; pending trades
	// pick the new ladder up on fill.
	if tr.Status == model.TradeStatusOpen {
		return e.PlacePostEntryOrders(id)
	}
	return nil
}

// MoveSL moves the protective stop, applying the distance cap against the
// live entry. The stop is always recorded on the trade; the exchange push
// happens only for open trades, a pending entry picks its stop up on fill.
// When latchBE is set the trade is marked as breakeven-latched so later
// amendments can no longer move the stop back into loss.
func (e *Engine) MoveSL(id string, price float64, latchBE bool) error {
	tr, ok := e.store.Trade(id)
	if !ok || !tr.IsActive() {
		return nil
	}

	entry := tr.Trigger
	if tr.EntryPrice != nil {
		entry = *tr.EntryPrice
	}
	stop := risk.CapStopDistance(entry, price, tr.OrderSide, e.params.CapSLDistancePct)

	e.store.Mutate(id, func(t *model.Trade) {
		t.SLPrice = &stop
		if latchBE {
			t.SLMovedToBE = true
		}
	})

	if tr.Status == model.TradeStatusOpen && !e.params.DryRun {
		if err := e.exchange.SetStopLoss(tr.Symbol, stop); err != nil {
			return fmt.Errorf("move stop for %s: %w", tr.ID, err)
		}
	}

	logger.WithFields(map[string]interface{}{
		"trade":     tr.ID,
		"stop":      stop,
		"breakeven": latchBE,
	}).Info("stop loss moved")

	return nil
}

// CancelEntry cancels an unfilled entry order and marks the trade cancelled.
func (e *Engine) CancelEntry(id, reason string, now time.Time) error {
	tr, ok := e.store.Trade(id)
	if !ok || tr.Status != model.TradeStatusPending {
		return nil
	}

	if !e.params.DryRun {
		if err := e.exchange.CancelOrder(tr.Symbol, tr.EntryOrderID); err != nil {
			return fmt.Errorf("cancel entry for %s: %w", tr.ID, err)
		}
		if err := e.exchange.CancelAllOrders(tr.Symbol); err != nil {
			logger.WithField("trade", tr.ID).WithError(err).Warn("cancel-all after entry cancel failed")
		}
	}

	e.store.Mutate(id, func(t *model.Trade) {
		t.Status = model.TradeStatusCancelled
		t.ExitReason = reason
		closed := now
		t.ClosedTS = &closed
	})

	logger.WithFields(map[string]interface{}{
		"trade":  tr.ID,
		"reason": reason,
	}).Info("entry cancelled")

	return nil
}

// CloseTrade finalizes a trade and clears whatever is still working on the
// exchange: remaining TPs, DCA adds and the position stop.
func (e *Engine) CloseTrade(id, reason string, now time.Time) {
	var tr model.Trade
	transitioned := e.store.Mutate(id, func(t *model.Trade) {
		if t.IsTerminal() {
			return
		}
		t.Status = model.TradeStatusClosed
		t.ExitReason = reason
		closed := now
		t.ClosedTS = &closed
		tr = *t
	})
	if !transitioned || tr.ID == "" {
		return
	}

	if !e.params.DryRun {
		if err := e.exchange.CancelAllOrders(tr.Symbol); err != nil {
			logger.WithField("trade", tr.ID).WithError(err).Warn("cancel-all on close failed")
		}
		if tr.SLPrice != nil {
			if err := e.exchange.SetStopLoss(tr.Symbol, 0); err != nil {
				logger.WithField("trade", tr.ID).WithError(err).Debug("clearing stop on close failed")
			}
		}
	}

	logger.WithFields(map[string]interface{}{
		"trade":  tr.ID,
		"reason": reason,
	}).Info("trade closed")
}

// CloseTradeMarket flattens the live position with a reduce-only market
// order before finalizing the trade record. Used when the signal itself is
// cancelled after entry.
func (e *Engine) CloseTradeMarket(id, reason string, now time.Time) error {
	tr, ok := e.store.Trade(id)
	if !ok || tr.Status != model.TradeStatusOpen {
		return nil
	}

	if e.params.DryRun {
		e.CloseTrade(id, reason, now)
		return nil
	}

	pos, err := e.exchange.Position(tr.Symbol)
	if err != nil {
		return fmt.Errorf("position before market close for %s: %w", tr.ID, err)
	}
	if pos.Size > 0 && pos.Side == tr.OrderSide {
		_, _, closeSide, err := orderSides(sideFromOrderSide(tr.OrderSide))
		if err != nil {
			return err
		}
		if _, err := e.exchange.PlaceMarketReduce(tr.Symbol, closeSide, pos.Size, shortLinkID("cls")); err != nil {
			return fmt.Errorf("market close for %s: %w", tr.ID, err)
		}
	}

	e.CloseTrade(id, reason, now)
	return nil
}

func samePrices(a, b []float64, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

func sideFromOrderSide(orderSide string) string {
	if orderSide == model.OrderSideBuy {
		return "buy"
	}
	return "sell"
}
