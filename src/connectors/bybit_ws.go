package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"

	"signalcopier/src/model"
)

const wsPingInterval = 20 * time.Second

// BybitWS consumes the private v5 stream and forwards execution and order
// updates to the registered handlers. One call to Run covers one connection:
// it returns when the socket drops, and the caller decides about reconnects.
type BybitWS struct {
	url       string
	apiKey    string
	apiSecret string

	OnExecution func(model.ExecutionEvent)
	OnOrder     func(model.OrderEvent)
}

func NewBybitWS(url, apiKey, apiSecret string) *BybitWS {
	return &BybitWS{
		url:       url,
		apiKey:    apiKey,
		apiSecret: apiSecret,
	}
}

type wsCommand struct {
	Op   string        `json:"op"`
	Args []interface{} `json:"args,omitempty"`
}

type wsEnvelope struct {
	Topic   string          `json:"topic"`
	Op      string          `json:"op"`
	Success *bool           `json:"success"`
	RetMsg  string          `json:"ret_msg"`
	Data    json.RawMessage `json:"data"`
}

func wsAuthSignature(secret string, expires int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "GET/realtime%d", expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// Run dials, authenticates, subscribes and then reads until the connection
// fails or ctx is cancelled.
func (w *BybitWS) Run(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}

	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("ws dial failed: %w", err)
	}
	defer conn.Close()

	expires := time.Now().Add(10 * time.Second).UnixMilli()
	auth := wsCommand{
		Op:   "auth",
		Args: []interface{}{w.apiKey, expires, wsAuthSignature(w.apiSecret, expires)},
	}
	if err := conn.WriteJSON(auth); err != nil {
		return fmt.Errorf("ws auth write failed: %w", err)
	}

	sub := wsCommand{
		Op:   "subscribe",
		Args: []interface{}{"execution", "order"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("ws subscribe write failed: %w", err)
	}

	// Close the socket when ctx ends so the read loop unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go w.pingLoop(ctx, conn)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("ws read failed: %w", err)
		}
		w.dispatch(msg)
	}
}

func (w *BybitWS) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSON(wsCommand{Op: "ping"}); err != nil {
				logger.WithError(err).Debug("ws ping write failed")
				return
			}
		}
	}
}

func (w *BybitWS) dispatch(msg []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		logger.WithError(err).Debug("ws message decode failed")
		return
	}

	if env.Success != nil && !*env.Success {
		logger.WithFields(map[string]interface{}{
			"op":      env.Op,
			"ret_msg": env.RetMsg,
		}).Warn("ws command rejected")
		return
	}

	switch env.Topic {
	case "execution":
		var events []model.ExecutionEvent
		if err := json.Unmarshal(env.Data, &events); err != nil {
			logger.WithError(err).Warn("ws execution payload decode failed")
			return
		}
		if w.OnExecution != nil {
			for _, ev := range events {
				w.OnExecution(ev)
			}
		}
	case "order":
		var events []model.OrderEvent
		if err := json.Unmarshal(env.Data, &events); err != nil {
			logger.WithError(err).Warn("ws order payload decode failed")
			return
		}
		if w.OnOrder != nil {
			for _, ev := range events {
				w.OnOrder(ev)
			}
		}
	}
}
