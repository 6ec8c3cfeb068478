package runner

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"signalcopier/src/connectors"
	"signalcopier/src/database"
	"signalcopier/src/engine"
	"signalcopier/src/executors"
	"signalcopier/src/listener"
	"signalcopier/src/model"
	"signalcopier/src/repository"
	"signalcopier/src/server"
	sig "signalcopier/src/signal"
	"signalcopier/src/store"
)

type Runner struct{}

// Start wires everything together and blocks until SIGINT/SIGTERM: snapshot
// load, exchange and chat clients, the push listener, the HTTP surface and
// the reconciliation loop.
func (r *Runner) Start() error {
	execCfg := executors.GetConfig()
	connCfg := connectors.GetConfig()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Failed to connect to main database")
		return err
	}

	states := repository.NewStateRepository()
	loaded, err := states.Load(ctx, model.StateKey)
	if err != nil {
		logrus.WithError(err).Error("Failed to load state snapshot")
		return err
	}
	st := store.New(loaded)

	bybit := connectors.NewBybitClient(
		execCfg.BybitAPIKey,
		execCfg.BybitAPISecret,
		connCfg.RestBaseURL(),
		connCfg.BybitRecvWindow,
	)
	discord := connectors.NewDiscordClient(execCfg.DiscordToken, connCfg.DiscordAPIBase)

	eng := engine.New(st, bybit, engine.Params{
		RiskPct:          execCfg.RiskPct,
		DefaultLeverage:  execCfg.DefaultLeverage,
		CapSLDistancePct: execCfg.CapSLDistancePct,
		MaxSLDistancePct: execCfg.MaxSLDistancePct,
		DefaultSLPct:     execCfg.DefaultSLPct,
		TPSplits:         execCfg.TPSplits,
		DCAQtyMults:      execCfg.DCAQtyMults,
		AlertLossPct:     execCfg.AlertLossPct,
		EntryTTL:         execCfg.EntryTTL,
		ClosedRetention:  execCfg.ClosedRetention,
		DryRun:           execCfg.DryRun,
	})

	if execCfg.DryRun {
		logrus.Warn("DRY_RUN enabled, no orders will be sent to the exchange")
	}

	ws := connectors.NewBybitWS(connCfg.PrivateWSURL(), execCfg.BybitAPIKey, execCfg.BybitAPISecret)
	execListener := listener.New(ws, eng)
	go execListener.Run(ctx)

	go server.StartServer(ctx, server.GetConfig().Port, st)

	parser := sig.New(execCfg.ParserVersion)
	loop := executors.NewRunner(execCfg, parser, discord, eng, states)

	logrus.WithFields(logrus.Fields{
		"channel": execCfg.ChannelID,
		"period":  execCfg.LoopPeriod,
	}).Info("Starting signal copier loop")

	if err := loop.StartLoop(ctx); err != nil {
		logrus.WithError(err).Error("Loop exited with error")
		return err
	}

	// Final snapshot so a clean shutdown loses nothing.
	raw, err := st.SnapshotJSON()
	if err == nil {
		if err := states.Save(context.Background(), model.StateKey, raw); err != nil {
			logrus.WithError(err).Error("Failed to save final snapshot")
		}
	}

	return nil
}
