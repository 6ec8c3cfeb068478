package store

import (
	"fmt"
	"testing"
	"time"

	"signalcopier/src/model"
)

func newTrade(id, symbol, status string) *model.Trade {
	return &model.Trade{
		ID:        id,
		Symbol:    symbol,
		OrderSide: model.OrderSideSell,
		PosSide:   model.PosSideShort,
		Status:    status,
	}
}

func TestActiveCountAndDailyCaps(t *testing.T) {
	s := New(nil)

	s.Put(newTrade("a", "AGLDUSDT", model.TradeStatusPending))
	s.Put(newTrade("b", "BTCUSDT", model.TradeStatusOpen))
	s.Put(newTrade("c", "ETHUSDT", model.TradeStatusClosed))
	s.Put(newTrade("d", "SOLUSDT", model.TradeStatusCancelled))

	if got := s.ActiveCount(); got != 2 {
		t.Fatalf("expected 2 active trades, got %d", got)
	}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if got := s.TradesToday(now); got != 0 {
		t.Fatalf("expected 0 trades today, got %d", got)
	}
	s.IncTradesToday(now)
	s.IncTradesToday(now)
	if got := s.TradesToday(now); got != 2 {
		t.Fatalf("expected 2 trades today, got %d", got)
	}

	// Counter keys roll over at UTC midnight.
	nextDay := now.Add(13 * time.Hour)
	if got := s.TradesToday(nextDay); got != 0 {
		t.Fatalf("expected fresh counter on next UTC day, got %d", got)
	}
}

func TestMarkSeenBounded(t *testing.T) {
	s := New(nil)

	if s.MarkSeen("h1") {
		t.Fatalf("first sighting must not report already seen")
	}
	if !s.MarkSeen("h1") {
		t.Fatalf("second sighting must report already seen")
	}

	// The window holds the most recent N entries only.
	for i := 0; i < model.SeenHashLimit; i++ {
		s.MarkSeen(fmt.Sprintf("fill-%d", i))
	}
	if s.MarkSeen("h1") {
		t.Fatalf("expected h1 to have been evicted from the dedup window")
	}
}

func TestCursorMonotonic(t *testing.T) {
	s := New(nil)

	s.AdvanceCursor("5")
	s.AdvanceCursor("9")
	s.AdvanceCursor("7")

	if got := s.Cursor(); got != "9" {
		t.Fatalf("expected cursor 9, got %s", got)
	}

	// Numeric, not lexical, comparison.
	s.AdvanceCursor("10")
	if got := s.Cursor(); got != "10" {
		t.Fatalf("expected cursor 10, got %s", got)
	}
}

func TestMutateAndCopySemantics(t *testing.T) {
	s := New(nil)
	s.Put(newTrade("a", "AGLDUSDT", model.TradeStatusPending))

	ok := s.Mutate("a", func(tr *model.Trade) {
		tr.Status = model.TradeStatusOpen
		price := 0.398
		tr.EntryPrice = &price
	})
	if !ok {
		t.Fatalf("expected mutate to find trade")
	}

	got, ok := s.Trade("a")
	if !ok || got.Status != model.TradeStatusOpen {
		t.Fatalf("mutation not visible: %+v", got)
	}

	// Returned copies must not alias store internals.
	got.TPPrices = append(got.TPPrices, 1.23)
	*got.EntryPrice = 999
	again, _ := s.Trade("a")
	if len(again.TPPrices) != 0 || *again.EntryPrice != 0.398 {
		t.Fatalf("store state mutated through a returned copy: %+v", again)
	}

	if s.Mutate("missing", func(*model.Trade) {}) {
		t.Fatalf("expected mutate to report missing trade")
	}
}

func TestPruneTerminal(t *testing.T) {
	s := New(nil)
	now := time.Now()

	old := now.Add(-48 * time.Hour)
	recent := now.Add(-1 * time.Hour)

	closedOld := newTrade("old", "AGLDUSDT", model.TradeStatusClosed)
	closedOld.ClosedTS = &old
	closedRecent := newTrade("recent", "BTCUSDT", model.TradeStatusClosed)
	closedRecent.ClosedTS = &recent
	active := newTrade("active", "ETHUSDT", model.TradeStatusOpen)

	s.Put(closedOld)
	s.Put(closedRecent)
	s.Put(active)

	if removed := s.PruneTerminal(24*time.Hour, now); removed != 1 {
		t.Fatalf("expected 1 pruned trade, got %d", removed)
	}
	if _, ok := s.Trade("old"); ok {
		t.Fatalf("expected old terminal trade to be pruned")
	}
	if _, ok := s.Trade("recent"); !ok {
		t.Fatalf("recent terminal trade must survive")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := New(nil)
	s.Put(newTrade("a", "AGLDUSDT", model.TradeStatusPending))
	s.AdvanceCursor("123456")
	s.MarkSeen("hash-a")
	s.IncTradesToday(time.Now())

	raw, err := s.SnapshotJSON()
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	restored, err := model.StateFromJSON(raw)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	s2 := New(restored)
	if s2.Cursor() != "123456" {
		t.Fatalf("cursor lost in round trip: %s", s2.Cursor())
	}
	if !s2.MarkSeen("hash-a") {
		t.Fatalf("seen hashes lost in round trip")
	}
	if _, ok := s2.Trade("a"); !ok {
		t.Fatalf("trades lost in round trip")
	}
}
