package executors

import (
	"context"
	"math"
	"time"

	logger "github.com/sirupsen/logrus"

	"signalcopier/src/connectors"
	"signalcopier/src/model"
	"signalcopier/src/signal"
)

const amendTolerance = 1e-7

// checkAmendments re-fetches the origin message of every active trade and
// applies whatever the caller edited since: cancellation first, then stop,
// targets and DCA levels. Per-trade failures are logged and skipped.
func (r *Runner) checkAmendments(ctx context.Context, now time.Time) {
	st := r.engine.Store()

	for _, tr := range st.ActiveTrades() {
		if tr.MessageID == "" {
			continue
		}

		msg, err := r.source.FetchMessage(ctx, r.cfg.ChannelID, tr.MessageID)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"trade":      tr.ID,
				"message_id": tr.MessageID,
			}).WithError(err).Warn("amendment fetch failed")
			continue
		}

		text := connectors.ExtractText(*msg)
		if text == "" {
			continue
		}

		if signal.IsCancelled(text) {
			r.teardownCancelled(tr, now)
			continue
		}

		am := r.parser.ParseAmendment(text)
		r.applyAmendment(tr, am)
	}
}

func (r *Runner) teardownCancelled(tr model.Trade, now time.Time) {
	switch tr.Status {
	case model.TradeStatusPending:
		if err := r.engine.CancelEntry(tr.ID, model.ExitReasonSignalCancelled, now); err != nil {
			logger.WithField("trade", tr.ID).WithError(err).Error("cancelled signal teardown failed")
		}
	case model.TradeStatusOpen:
		if err := r.engine.CloseTradeMarket(tr.ID, model.ExitReasonSignalCancelled, now); err != nil {
			logger.WithField("trade", tr.ID).WithError(err).Error("cancelled signal close failed")
		}
	}
}

func (r *Runner) applyAmendment(tr model.Trade, am signal.Amendment) {
	// Stop edits. Once the stop sits at breakeven it stays there, whatever
	// the message says.
	if am.SLPrice != nil && !tr.SLMovedToBE {
		if tr.SLPrice == nil || math.Abs(*tr.SLPrice-*am.SLPrice) > amendTolerance {
			if err := r.engine.MoveSL(tr.ID, *am.SLPrice, false); err != nil {
				logger.WithField("trade", tr.ID).WithError(err).Error("amended stop move failed")
			}
		}
	}

	if len(am.TPPrices) > 0 {
		if err := r.engine.UpdateTPOrders(tr.ID, am.TPPrices); err != nil {
			logger.WithField("trade", tr.ID).WithError(err).Error("amended tp update failed")
		}
	}

	// DCA levels only ever appear: a signal that gained levels gets them
	// placed, existing levels are never rewritten.
	if len(tr.DCAPrices) == 0 && len(am.DCAPrices) > 0 {
		r.engine.Store().Mutate(tr.ID, func(t *model.Trade) {
			t.DCAPrices = append([]float64(nil), am.DCAPrices...)
		})
		if tr.Status == model.TradeStatusOpen {
			if err := r.engine.PlaceDCAOrders(tr.ID); err != nil {
				logger.WithField("trade", tr.ID).WithError(err).Error("amended dca placement failed")
			}
		}
	}
}
