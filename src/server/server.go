package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"signalcopier/src/store"
)

// StartServer exposes the operational endpoints and blocks until ctx ends.
func StartServer(ctx context.Context, port string, st *store.TradeStore) {
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/healthcheck write error")
		}
	})

	r.Get("/trades", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, st.ActiveTrades())
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC()
		writeJSON(w, map[string]interface{}{
			"active_trades":   st.ActiveCount(),
			"trades_today":    st.TradesToday(now),
			"last_message_id": st.Cursor(),
		})
	})

	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Error("response encode error")
	}
}
