package listener

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"signalcopier/src/connectors"
	"signalcopier/src/engine"
)

// reconnectDelay is slept between private-stream reconnect attempts.
const reconnectDelay = 3 * time.Second

// ExecutionListener keeps the private stream alive and feeds its events into
// the engine. The stream is an accelerator: every transition it triggers is
// also reachable through the poll fallback, so a dropped connection only
// costs latency.
type ExecutionListener struct {
	ws  *connectors.BybitWS
	eng *engine.Engine
}

func New(ws *connectors.BybitWS, eng *engine.Engine) *ExecutionListener {
	ws.OnExecution = eng.OnExecution
	ws.OnOrder = eng.OnOrder
	return &ExecutionListener{ws: ws, eng: eng}
}

// Run blocks until ctx is cancelled, reconnecting forever on failure.
func (l *ExecutionListener) Run(ctx context.Context) {
	for {
		err := l.ws.Run(ctx)
		if ctx.Err() != nil {
			logger.Info("execution listener stopped")
			return
		}

		logger.WithError(err).Debug("ws reconnecting")

		select {
		case <-ctx.Done():
			logger.Info("execution listener stopped")
			return
		case <-time.After(reconnectDelay):
		}
	}
}
