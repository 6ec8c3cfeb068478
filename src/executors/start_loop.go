package executors

import (
	"context"
	"math/rand"
	"time"

	logger "github.com/sirupsen/logrus"

	"signalcopier/src/connectors"
	"signalcopier/src/engine"
	"signalcopier/src/model"
	"signalcopier/src/repository"
	"signalcopier/src/signal"
)

// loopFaultCooldown is slept after a failed cycle so a broken upstream does
// not get hammered.
const loopFaultCooldown = 3 * time.Second

// MessageSource is the slice of the chat client the loop reads from. The
// concrete implementation is connectors.DiscordClient.
type MessageSource interface {
	FetchAfter(ctx context.Context, channelID, afterID string, limit int) ([]connectors.DiscordMessage, error)
	FetchMessage(ctx context.Context, channelID, messageID string) (*connectors.DiscordMessage, error)
}

// Runner drives the periodic reconciliation cycle: maintenance, amendment
// checks, fill polling, new-message ingestion and the snapshot save.
type Runner struct {
	cfg    Config
	parser signal.Parser
	source MessageSource
	engine *engine.Engine
	states *repository.StateRepository

	lastAmendCheck time.Time
	lastHeartbeat  time.Time
}

func NewRunner(cfg Config, parser signal.Parser, source MessageSource, eng *engine.Engine, states *repository.StateRepository) *Runner {
	return &Runner{
		cfg:    cfg,
		parser: parser,
		source: source,
		engine: eng,
		states: states,
	}
}

// StartLoop blocks until ctx is cancelled. Each cycle is scheduled with a
// random jitter on top of the base period so restarts do not synchronize
// against upstream rate limits. A failed cycle logs, cools down and the loop
// carries on.
func (r *Runner) StartLoop(ctx context.Context) error {
	r.engine.StartupSync()
	r.lastHeartbeat = time.Now().UTC()
	exceptions := repository.NewExceptionRepository()

	for {
		delay := r.cfg.LoopPeriod
		if r.cfg.LoopJitter > 0 {
			delay += time.Duration(rand.Int63n(int64(r.cfg.LoopJitter)))
		}

		select {
		case <-ctx.Done():
			logger.Info("loop stopped")
			return nil
		case <-time.After(delay):
		}

		if err := r.runCycle(ctx, time.Now().UTC()); err != nil {
			logger.WithError(err).Error("cycle failed")
			exceptions.Record(ctx, "executors", "runCycle", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(loopFaultCooldown):
			}
		}
	}
}

// runCycle executes one full pass. Order matters: local maintenance first,
// then reconciliation against the exchange, then new work, snapshot last so
// every mutation of this pass is persisted.
func (r *Runner) runCycle(ctx context.Context, now time.Time) error {
	logger.Debug("cycle tick")

	r.engine.CancelExpiredEntries(now)
	r.engine.CleanupClosedTrades(now)

	if now.Sub(r.lastAmendCheck) >= r.cfg.AmendmentInterval {
		r.lastAmendCheck = now
		r.checkAmendments(ctx, now)
	}

	r.engine.PollPendingEntries()
	r.engine.EnsurePostEntryOrders()
	r.engine.CheckTPFillsFallback()
	r.engine.CheckPositionAlerts()

	if err := r.processNewMessages(ctx, now); err != nil {
		return err
	}

	if now.Sub(r.lastHeartbeat) >= r.cfg.HeartbeatInterval {
		r.lastHeartbeat = now
		r.engine.LogDailyStats(now)
	}

	return r.saveSnapshot(ctx)
}

func (r *Runner) saveSnapshot(ctx context.Context) error {
	raw, err := r.engine.Store().SnapshotJSON()
	if err != nil {
		return err
	}
	return r.states.Save(ctx, model.StateKey, raw)
}
