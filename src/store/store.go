package store

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"signalcopier/src/model"

	logger "github.com/sirupsen/logrus"
)

// TradeStore owns the shared bot state. The reconciliation loop and the
// execution event listener both mutate it concurrently; every
// read-modify-write runs under the store mutex so transitions and flag
// updates never interleave partially. Snapshot serialization takes the same
// mutex, so persisted state is never torn.
type TradeStore struct {
	mu    sync.Mutex
	state *model.State
}

// New wraps an existing state (from a loaded snapshot) or starts empty.
func New(state *model.State) *TradeStore {
	if state == nil {
		state = model.NewState()
	}
	if state.Trades == nil {
		state.Trades = make(map[string]*model.Trade)
	}
	if state.DailyCounts == nil {
		state.DailyCounts = make(map[string]int)
	}
	return &TradeStore{state: state}
}

// Put inserts or replaces a trade record.
func (s *TradeStore) Put(tr *model.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Trades[tr.ID] = tr
}

// Trade returns a copy of the trade with the given id.
func (s *TradeStore) Trade(id string) (model.Trade, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.state.Trades[id]
	if !ok {
		return model.Trade{}, false
	}
	return copyTrade(tr), true
}

// Mutate applies fn to the trade with the given id under the store lock.
// Returns false when the trade does not exist.
func (s *TradeStore) Mutate(id string, fn func(*model.Trade)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.state.Trades[id]
	if !ok {
		return false
	}
	fn(tr)
	return true
}

// TradeIDs returns the ids of trades whose status is one of the given
// statuses, or all ids when none are given.
func (s *TradeStore) TradeIDs(statuses ...string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, tr := range s.state.Trades {
		if len(statuses) == 0 {
			ids = append(ids, id)
			continue
		}
		for _, st := range statuses {
			if tr.Status == st {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids
}

// ActiveTrades returns copies of all pending/open trades.
func (s *TradeStore) ActiveTrades() []model.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Trade
	for _, tr := range s.state.Trades {
		if tr.IsActive() {
			out = append(out, copyTrade(tr))
		}
	}
	return out
}

// ActiveCount counts trades in pending or open status.
func (s *TradeStore) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, tr := range s.state.Trades {
		if tr.IsActive() {
			n++
		}
	}
	return n
}

// FindActiveBySymbolSide locates the active trade for a symbol and order
// side. Used to route push events and DCA-trigger bookkeeping.
func (s *TradeStore) FindActiveBySymbolSide(symbol, orderSide string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, tr := range s.state.Trades {
		if tr.IsActive() && tr.Symbol == symbol && (orderSide == "" || tr.OrderSide == orderSide) {
			return id, true
		}
	}
	return "", false
}

// -----------------------------
// DAILY COUNTERS
// -----------------------------

// TradesToday returns the trade count for the UTC day of now.
func (s *TradeStore) TradesToday(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DailyCounts[model.UTCDayKey(now)]
}

// IncTradesToday bumps the counter for the UTC day of now.
func (s *TradeStore) IncTradesToday(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.DailyCounts[model.UTCDayKey(now)]++
}

// PruneDailyCounts drops counter keys older than keepDays before now.
func (s *TradeStore) PruneDailyCounts(keepDays int, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := model.UTCDayKey(now.AddDate(0, 0, -keepDays))
	for k := range s.state.DailyCounts {
		if k < cutoff {
			delete(s.state.DailyCounts, k)
		}
	}
}

// -----------------------------
// DEDUP FINGERPRINTS
// -----------------------------

// MarkSeen records the fingerprint and reports whether it was already
// present. Check and insert happen in one critical section to close the
// race against duplicate delivery within the same batch.
func (s *TradeStore) MarkSeen(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range s.state.SeenHashes {
		if h == hash {
			return true
		}
	}

	s.state.SeenHashes = append(s.state.SeenHashes, hash)
	if over := len(s.state.SeenHashes) - model.SeenHashLimit; over > 0 {
		s.state.SeenHashes = s.state.SeenHashes[over:]
	}
	return false
}

// -----------------------------
// MESSAGE CURSOR
// -----------------------------

// Cursor returns the last-seen message id.
func (s *TradeStore) Cursor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.LastMessageID
}

// AdvanceCursor moves the cursor forward to id if it is numerically greater
// than the stored one. The cursor never moves backwards.
func (s *TradeStore) AdvanceCursor(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if MessageIDLess(s.state.LastMessageID, id) {
		s.state.LastMessageID = id
	}
}

// MessageIDLess compares two numeric message ids; an empty or unparsable id
// sorts first.
func MessageIDLess(a, b string) bool {
	av, aerr := strconv.ParseUint(a, 10, 64)
	bv, berr := strconv.ParseUint(b, 10, 64)
	if aerr != nil {
		return berr == nil
	}
	if berr != nil {
		return false
	}
	return av < bv
}

// -----------------------------
// MAINTENANCE / PERSISTENCE
// -----------------------------

// PruneTerminal removes closed/cancelled trades whose close timestamp is
// older than maxAge. Returns the number of removed records.
func (s *TradeStore) PruneTerminal(maxAge time.Duration, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, tr := range s.state.Trades {
		if !tr.IsTerminal() {
			continue
		}
		closedAt := tr.ClosedTS
		if closedAt != nil && now.Sub(*closedAt) > maxAge {
			delete(s.state.Trades, id)
			removed++
		}
	}

	if removed > 0 {
		logger.WithField("removed", removed).Debug("pruned terminal trades")
	}
	return removed
}

// SnapshotJSON serializes the full state under the store lock.
func (s *TradeStore) SnapshotJSON() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(s.state)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func copyTrade(tr *model.Trade) model.Trade {
	cp := *tr
	cp.TPPrices = append([]float64(nil), tr.TPPrices...)
	cp.DCAPrices = append([]float64(nil), tr.DCAPrices...)
	cp.TPFilled = append([]bool(nil), tr.TPFilled...)
	cp.TPOrderIDs = append([]string(nil), tr.TPOrderIDs...)
	cp.DCAOrderIDs = append([]string(nil), tr.DCAOrderIDs...)
	if tr.SLPrice != nil {
		v := *tr.SLPrice
		cp.SLPrice = &v
	}
	if tr.EntryPrice != nil {
		v := *tr.EntryPrice
		cp.EntryPrice = &v
	}
	return cp
}
