package engine

import (
	"time"

	logger "github.com/sirupsen/logrus"

	"signalcopier/src/model"
)

// OnExecution handles one private-stream fill event. Every transition checks
// current state under the store lock, so replays and poll-fallback overlap
// are harmless.
func (e *Engine) OnExecution(ev model.ExecutionEvent) {
	if ev.ExecType != "" && ev.ExecType != "Trade" {
		return
	}

	id, ok := e.store.FindActiveBySymbolSide(ev.Symbol, ev.Side)
	if !ok {
		// Reduce orders land on the opposite side of the position.
		id, ok = e.store.FindActiveBySymbolSide(ev.Symbol, "")
		if !ok {
			logger.WithFields(map[string]interface{}{
				"symbol": ev.Symbol,
				"order":  ev.OrderID,
			}).Debug("execution for unknown trade")
			return
		}
	}

	tr, ok := e.store.Trade(id)
	if !ok {
		return
	}

	switch {
	case ev.OrderID == tr.EntryOrderID:
		e.onEntryFill(id, ev)
	default:
		e.onReduceFill(id, tr, ev)
	}
}

func (e *Engine) onEntryFill(id string, ev model.ExecutionEvent) {
	filled := false
	e.store.Mutate(id, func(t *model.Trade) {
		if t.Status != model.TradeStatusPending {
			return
		}
		t.Status = model.TradeStatusOpen
		price := ev.ExecPrice
		t.EntryPrice = &price
		now := time.Now().UTC()
		t.FilledTS = &now
		filled = true
	})
	if !filled {
		return
	}

	logger.WithFields(map[string]interface{}{
		"trade": id,
		"price": ev.ExecPrice,
		"qty":   ev.ExecQty,
	}).Info("entry filled")

	if err := e.PlacePostEntryOrders(id); err != nil {
		logger.WithField("trade", id).WithError(err).Error("post-entry placement after fill failed")
	}
	if err := e.PlaceDCAOrders(id); err != nil {
		logger.WithField("trade", id).WithError(err).Error("dca placement after fill failed")
	}
}

func (e *Engine) onReduceFill(id string, tr model.Trade, ev model.ExecutionEvent) {
	tpIndex := -1
	for i, oid := range tr.TPOrderIDs {
		if oid == ev.OrderID {
			tpIndex = i
			break
		}
	}

	if tpIndex >= 0 {
		e.markTPFilled(id, tpIndex)
		return
	}

	for _, oid := range tr.DCAOrderIDs {
		if oid == ev.OrderID {
			logger.WithFields(map[string]interface{}{
				"trade": id,
				"price": ev.ExecPrice,
				"qty":   ev.ExecQty,
			}).Info("dca add filled")
			return
		}
	}

	// A closing fill we did not place ourselves: position stop or a manual
	// close. Confirm against the live position before declaring the trade
	// done, partial reduces leave it open.
	if ev.ClosedSize > 0 {
		pos, err := e.exchange.Position(tr.Symbol)
		if err != nil {
			logger.WithField("trade", id).WithError(err).Warn("position check after closing fill failed")
			return
		}
		if pos.Size == 0 {
			e.CloseTrade(id, model.ExitReasonStopLoss, time.Now().UTC())
		}
	}
}

func (e *Engine) markTPFilled(id string, index int) {
	allFilled := false
	first := false
	e.store.Mutate(id, func(t *model.Trade) {
		if index >= len(t.TPFilled) || t.TPFilled[index] {
			return
		}
		t.TPFilled[index] = true
		first = index == 0

		allFilled = len(t.TPFilled) > 0
		for _, f := range t.TPFilled {
			if !f {
				allFilled = false
				break
			}
		}
	})

	logger.WithFields(map[string]interface{}{
		"trade": id,
		"tp":    index + 1,
	}).Info("take profit filled")

	if allFilled {
		e.CloseTrade(id, model.ExitReasonTakeProfit, time.Now().UTC())
		return
	}

	// First target pays; stop goes to entry and stays there.
	if first {
		tr, ok := e.store.Trade(id)
		if ok && !tr.SLMovedToBE && tr.EntryPrice != nil {
			if err := e.MoveSL(id, *tr.EntryPrice, true); err != nil {
				logger.WithField("trade", id).WithError(err).Error("breakeven move failed")
			}
		}
	}
}

// OnOrder handles one private-stream order status event. Only terminal stop
// and entry-cancel transitions matter; fills arrive via OnExecution.
func (e *Engine) OnOrder(ev model.OrderEvent) {
	id, ok := e.store.FindActiveBySymbolSide(ev.Symbol, "")
	if !ok {
		return
	}
	tr, ok := e.store.Trade(id)
	if !ok {
		return
	}

	switch {
	case ev.StopOrder != "" && ev.OrderStatus == "Filled":
		e.CloseTrade(id, model.ExitReasonStopLoss, time.Now().UTC())
	case ev.OrderID == tr.EntryOrderID && terminalCancelStatus(ev.OrderStatus):
		e.store.Mutate(id, func(t *model.Trade) {
			if t.Status != model.TradeStatusPending {
				return
			}
			t.Status = model.TradeStatusCancelled
			t.ExitReason = model.ExitReasonManualClose
			now := time.Now().UTC()
			t.ClosedTS = &now
		})
		logger.WithField("trade", id).Info("entry order cancelled on exchange")
	}
}

func terminalCancelStatus(status string) bool {
	return status == "Cancelled" || status == "Deactivated" || status == "Rejected"
}
