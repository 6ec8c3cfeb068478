package executors

import (
	"context"
	"sort"
	"time"

	logger "github.com/sirupsen/logrus"

	"signalcopier/src/connectors"
	"signalcopier/src/model"
	"signalcopier/src/signal"
	"signalcopier/src/store"
)

// processNewMessages ingests everything newer than the cursor in ascending
// id order. The caps are checked before fetching at all: a bot at its limits
// leaves the cursor alone, so the skipped signals are picked up once
// capacity frees.
func (r *Runner) processNewMessages(ctx context.Context, now time.Time) error {
	if r.atCaps(now) {
		logger.Debug("trade caps reached, skipping message fetch")
		return nil
	}

	st := r.engine.Store()
	msgs, err := r.source.FetchAfter(ctx, r.cfg.ChannelID, st.Cursor(), r.cfg.FetchLimit)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	sort.Slice(msgs, func(i, j int) bool {
		return store.MessageIDLess(msgs[i].ID, msgs[j].ID)
	})

	for _, msg := range msgs {
		// Re-check inside the batch: earlier messages may have consumed the
		// remaining capacity. Stopping before the cursor moves keeps the
		// rest of the batch fetchable next cycle.
		if r.atCaps(now) {
			logger.Debug("trade caps reached mid-batch, deferring remaining messages")
			break
		}
		r.handleMessage(msg, now)
		st.AdvanceCursor(msg.ID)
	}
	return nil
}

func (r *Runner) atCaps(now time.Time) bool {
	st := r.engine.Store()
	if r.cfg.MaxOpenTrades > 0 && st.ActiveCount() >= r.cfg.MaxOpenTrades {
		return true
	}
	if r.cfg.MaxTradesPerDay > 0 && st.TradesToday(now) >= r.cfg.MaxTradesPerDay {
		return true
	}
	return false
}

// handleMessage classifies one message. Failures are per-message: a broken
// signal never blocks the rest of the batch or the cursor.
func (r *Runner) handleMessage(msg connectors.DiscordMessage, now time.Time) {
	text := connectors.ExtractText(msg)
	if text == "" {
		return
	}

	// A signal older than the lag window is not worth entering: the move
	// already happened. The cursor still advances past it.
	if r.cfg.MaxSignalLag > 0 {
		if ts := connectors.SnowflakeUnix(msg.ID); ts > 0 && now.Sub(time.Unix(ts, 0)) > r.cfg.MaxSignalLag {
			logger.WithField("message_id", msg.ID).Debug("stale message skipped")
			return
		}
	}

	if dca := signal.ParseDCATriggered(text); dca != nil {
		r.handleDCATrigger(dca)
		return
	}

	sig := r.parser.ParseNewSignal(text, r.cfg.QuoteAsset, r.cfg.AllowedCallers)
	if sig == nil {
		if signal.LooksLikeSignal(text) {
			logger.WithField("message_id", msg.ID).Debug("trade-like message did not parse")
		}
		return
	}
	sig.MessageID = msg.ID

	// Mark before placing: a crash between the two sides errs on never
	// duplicating an order.
	if r.engine.Store().MarkSeen(signal.Hash(sig)) {
		logger.WithFields(map[string]interface{}{
			"message_id": msg.ID,
			"symbol":     sig.Symbol,
		}).Info("duplicate signal skipped")
		return
	}

	if _, err := r.engine.OpenFromSignal(sig, now); err != nil {
		logger.WithFields(map[string]interface{}{
			"message_id": msg.ID,
			"symbol":     sig.Symbol,
		}).WithError(err).Error("signal execution failed")
	}
}

// handleDCATrigger applies an averaging-down announcement to the matching
// trade: the entry average moves and the recalculated targets replace the
// live ladder.
func (r *Runner) handleDCATrigger(dca *signal.DCATrigger) {
	orderSide := model.OrderSideBuy
	if dca.Side == signal.SideSell {
		orderSide = model.OrderSideSell
	}

	id, ok := r.engine.Store().FindActiveBySymbolSide(dca.Symbol, orderSide)
	if !ok {
		logger.WithFields(map[string]interface{}{
			"symbol": dca.Symbol,
			"dca":    dca.Index,
		}).Debug("dca trigger for unknown trade")
		return
	}

	if dca.NewAverage != nil {
		r.engine.Store().Mutate(id, func(t *model.Trade) {
			avg := *dca.NewAverage
			t.EntryPrice = &avg
		})
	}

	logger.WithFields(map[string]interface{}{
		"trade": id,
		"dca":   dca.Index,
	}).Info("dca trigger consumed")

	if len(dca.NewTPPrices) > 0 {
		if err := r.engine.UpdateTPOrders(id, dca.NewTPPrices); err != nil {
			logger.WithField("trade", id).WithError(err).Error("dca tp recalculation failed")
		}
	}
}
