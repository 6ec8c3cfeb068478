package executors

// Test index:
//  1. TestProcessMessagesAscending processes a batch in numeric id order and
//     advances the cursor to the max id seen.
//  2. TestCapsSkipFetch never fetches while the caps are exhausted.
//  3. TestDuplicateSignalSkipped places only one order for identical signals.
//  4. TestAmendmentCancellationPending tears down a cancelled pending entry.
//  5. TestAmendmentCancellationOpen flattens a cancelled open trade.
//  6. TestAmendmentBreakevenLatch ignores stop edits after the breakeven move.
//  7. TestAmendmentNewDCALevels places DCA orders gained through an edit.
//  8. TestDCATriggerMessage applies the new average and recalculated targets.
//  9. TestStaleMessageSkipped drops aged signals but still advances the cursor.
// 10. TestCapMidBatchDefersRemaining stops the batch at the cap so unconsumed
//     signals stay ahead of the cursor.
// 11. TestAmendmentStopPendingDeferred records an amended stop on a pending
//     trade without pushing it to the exchange.

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"signalcopier/src/connectors"
	"signalcopier/src/engine"
	"signalcopier/src/model"
	"signalcopier/src/signal"
	"signalcopier/src/store"
)

// ----- fakes -----

type loopExchange struct {
	mu sync.Mutex

	lastPrice float64
	position  connectors.PositionInfo

	entries       []string
	entryTriggers []float64
	tps           []float64
	dcas          []float64
	stops         []float64
	marketReduces []float64
	cancelled     []string

	nextID int
}

func newLoopExchange() *loopExchange {
	return &loopExchange{lastPrice: 100}
}

func (f *loopExchange) ack(prefix string) *connectors.OrderAck {
	f.nextID++
	return &connectors.OrderAck{OrderID: fmt.Sprintf("%s-%d", prefix, f.nextID)}
}

func (f *loopExchange) PlaceConditionalEntry(symbol, side string, qty, triggerPrice float64, triggerDirection int, orderLinkID string) (*connectors.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, symbol)
	f.entryTriggers = append(f.entryTriggers, triggerPrice)
	return f.ack("ent"), nil
}

func (f *loopExchange) PlaceReduceLimit(symbol, side string, qty, price float64, orderLinkID string) (*connectors.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tps = append(f.tps, price)
	return f.ack("tp"), nil
}

func (f *loopExchange) PlaceLimit(symbol, side string, qty, price float64, orderLinkID string) (*connectors.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dcas = append(f.dcas, price)
	return f.ack("dca"), nil
}

func (f *loopExchange) PlaceMarketReduce(symbol, side string, qty float64, orderLinkID string) (*connectors.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marketReduces = append(f.marketReduces, qty)
	return f.ack("cls"), nil
}

func (f *loopExchange) SetStopLoss(symbol string, price float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, price)
	return nil
}

func (f *loopExchange) SetLeverage(symbol string, leverage int) error { return nil }

func (f *loopExchange) CancelOrder(symbol, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *loopExchange) CancelAllOrders(symbol string) error { return nil }

func (f *loopExchange) OpenOrders(symbol string) ([]connectors.OpenOrder, error) {
	return nil, nil
}

func (f *loopExchange) Position(symbol string) (*connectors.PositionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pos := f.position
	return &pos, nil
}

func (f *loopExchange) LastPrice(symbol string) (float64, error) { return f.lastPrice, nil }
func (f *loopExchange) WalletEquity() (float64, error)           { return 1000, nil }

type fakeSource struct {
	batch      []connectors.DiscordMessage
	byID       map[string]connectors.DiscordMessage
	fetchCalls int
}

func (s *fakeSource) FetchAfter(ctx context.Context, channelID, afterID string, limit int) ([]connectors.DiscordMessage, error) {
	s.fetchCalls++
	return s.batch, nil
}

func (s *fakeSource) FetchMessage(ctx context.Context, channelID, messageID string) (*connectors.DiscordMessage, error) {
	msg, ok := s.byID[messageID]
	if !ok {
		return nil, fmt.Errorf("message %s not found", messageID)
	}
	return &msg, nil
}

// ----- helpers -----

func loopConfig() Config {
	return Config{
		ChannelID:         "chan",
		QuoteAsset:        "USDT",
		LoopPeriod:        time.Second,
		AmendmentInterval: time.Minute,
		HeartbeatInterval: time.Minute,
		FetchLimit:        50,
		RiskPct:           2,
		DefaultLeverage:   10,
		CapSLDistancePct:  10,
		EntryTTL:          time.Hour,
		ClosedRetention:   24 * time.Hour,
		MaxOpenTrades:     5,
		MaxTradesPerDay:   10,
	}
}

func newTestRunner(cfg Config, ex engine.Exchange, src *fakeSource) (*Runner, *store.TradeStore) {
	st := store.New(nil)
	eng := engine.New(st, ex, engine.Params{
		RiskPct:          cfg.RiskPct,
		DefaultLeverage:  cfg.DefaultLeverage,
		CapSLDistancePct: cfg.CapSLDistancePct,
		EntryTTL:         cfg.EntryTTL,
		ClosedRetention:  cfg.ClosedRetention,
	})
	return NewRunner(cfg, signal.New("v2"), src, eng, nil), st
}

func signalText(pair string, entry float64) string {
	return fmt.Sprintf("New Trade Signal\n🟢 LONG SIGNAL - %s\nEntry: $%v\nTP1: %v\nLeverage: 10x", pair, entry, entry*1.05)
}

// ----- tests -----

func TestProcessMessagesAscending(t *testing.T) {
	ex := newLoopExchange()
	src := &fakeSource{batch: []connectors.DiscordMessage{
		{ID: "5", Content: signalText("BTC/USDT", 50)},
		{ID: "9", Content: signalText("SOL/USDT", 90)},
		{ID: "7", Content: signalText("ETH/USDT", 70)},
	}}
	r, st := newTestRunner(loopConfig(), ex, src)

	if err := r.processNewMessages(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("processNewMessages failed: %v", err)
	}

	if len(ex.entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(ex.entries))
	}
	// Ascending numeric order, not arrival order.
	if ex.entryTriggers[0] != 50 || ex.entryTriggers[1] != 70 || ex.entryTriggers[2] != 90 {
		t.Fatalf("messages not processed in id order: %v", ex.entryTriggers)
	}
	if st.Cursor() != "9" {
		t.Fatalf("cursor = %q, want 9", st.Cursor())
	}
}

func TestCapsSkipFetch(t *testing.T) {
	ex := newLoopExchange()
	src := &fakeSource{batch: []connectors.DiscordMessage{
		{ID: "5", Content: signalText("BTC/USDT", 50)},
	}}
	cfg := loopConfig()
	cfg.MaxTradesPerDay = 1
	r, st := newTestRunner(cfg, ex, src)

	now := time.Now().UTC()
	st.IncTradesToday(now)

	if err := r.processNewMessages(context.Background(), now); err != nil {
		t.Fatalf("processNewMessages failed: %v", err)
	}
	if src.fetchCalls != 0 {
		t.Fatalf("fetch ran despite exhausted caps")
	}
	if st.Cursor() != "" {
		t.Fatalf("cursor moved while capped: %q", st.Cursor())
	}
}

func TestCapMidBatchDefersRemaining(t *testing.T) {
	ex := newLoopExchange()
	src := &fakeSource{batch: []connectors.DiscordMessage{
		{ID: "5", Content: signalText("BTC/USDT", 50)},
		{ID: "6", Content: signalText("ETH/USDT", 70)},
	}}
	cfg := loopConfig()
	cfg.MaxOpenTrades = 1
	r, st := newTestRunner(cfg, ex, src)

	if err := r.processNewMessages(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("processNewMessages failed: %v", err)
	}

	if len(ex.entries) != 1 {
		t.Fatalf("expected 1 entry at the cap, got %d", len(ex.entries))
	}
	// The second signal was never consumed, so the cursor must not pass it.
	if st.Cursor() != "5" {
		t.Fatalf("cursor advanced past unconsumed signal: got %q, want 5", st.Cursor())
	}
}

func TestDuplicateSignalSkipped(t *testing.T) {
	ex := newLoopExchange()
	text := signalText("BTC/USDT", 50)
	src := &fakeSource{batch: []connectors.DiscordMessage{
		{ID: "5", Content: text},
		{ID: "6", Content: text}, // repost with a new id, same content
	}}
	r, st := newTestRunner(loopConfig(), ex, src)

	if err := r.processNewMessages(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("processNewMessages failed: %v", err)
	}
	if len(ex.entries) != 1 {
		t.Fatalf("duplicate signal placed %d entries", len(ex.entries))
	}
	if st.Cursor() != "6" {
		t.Fatalf("cursor must advance past duplicates, got %q", st.Cursor())
	}
}

// snowflakeAt builds a message id whose embedded timestamp is ts.
func snowflakeAt(ts time.Time) string {
	const discordEpochMs = 1420070400000
	return strconv.FormatUint(uint64(ts.UnixMilli()-discordEpochMs)<<22, 10)
}

func TestStaleMessageSkipped(t *testing.T) {
	ex := newLoopExchange()
	now := time.Now().UTC()
	staleID := snowflakeAt(now.Add(-time.Hour))
	freshID := snowflakeAt(now.Add(-time.Minute))
	src := &fakeSource{batch: []connectors.DiscordMessage{
		{ID: staleID, Content: signalText("BTC/USDT", 50)},
		{ID: freshID, Content: signalText("ETH/USDT", 70)},
	}}
	cfg := loopConfig()
	cfg.MaxSignalLag = 15 * time.Minute
	r, st := newTestRunner(cfg, ex, src)

	if err := r.processNewMessages(context.Background(), now); err != nil {
		t.Fatalf("processNewMessages failed: %v", err)
	}

	if len(ex.entries) != 1 || ex.entryTriggers[0] != 70 {
		t.Fatalf("stale message traded: %v", ex.entryTriggers)
	}
	if st.Cursor() != freshID {
		t.Fatalf("cursor = %q, want %q", st.Cursor(), freshID)
	}
}

func placePendingTrade(t *testing.T, r *Runner, msgID string) string {
	t.Helper()

	sl := 120.0
	sig := &signal.Signal{
		Symbol:    "BTCUSDT",
		Side:      signal.SideBuy,
		Trigger:   100,
		TPPrices:  []float64{105, 110},
		SLPrice:   &sl,
		Leverage:  10,
		MessageID: msgID,
	}
	tr, err := r.engine.OpenFromSignal(sig, time.Now().UTC())
	if err != nil {
		t.Fatalf("OpenFromSignal failed: %v", err)
	}
	return tr.ID
}

func TestAmendmentCancellationPending(t *testing.T) {
	ex := newLoopExchange()
	src := &fakeSource{byID: map[string]connectors.DiscordMessage{
		"55": {ID: "55", Content: "LONG SIGNAL - BTC/USDT\n❌ TRADE CANCELLED"},
	}}
	r, st := newTestRunner(loopConfig(), ex, src)
	id := placePendingTrade(t, r, "55")

	r.checkAmendments(context.Background(), time.Now().UTC())

	tr, _ := st.Trade(id)
	if tr.Status != model.TradeStatusCancelled || tr.ExitReason != model.ExitReasonSignalCancelled {
		t.Fatalf("expected signal-cancelled teardown, got %s/%s", tr.Status, tr.ExitReason)
	}
	if len(ex.cancelled) == 0 {
		t.Fatalf("entry order not cancelled on exchange")
	}
}

func TestAmendmentCancellationOpen(t *testing.T) {
	ex := newLoopExchange()
	src := &fakeSource{byID: map[string]connectors.DiscordMessage{
		"55": {ID: "55", Content: "LONG SIGNAL - BTC/USDT\nCLOSED WITHOUT ENTRY"},
	}}
	r, st := newTestRunner(loopConfig(), ex, src)
	id := placePendingTrade(t, r, "55")

	// Simulate the fill so the trade is open with a live position.
	ex.position = connectors.PositionInfo{Symbol: "BTCUSDT", Side: model.OrderSideBuy, Size: 2, AvgPrice: 100}
	st.Mutate(id, func(tr *model.Trade) {
		tr.Status = model.TradeStatusOpen
		price := 100.0
		tr.EntryPrice = &price
	})

	r.checkAmendments(context.Background(), time.Now().UTC())

	tr, _ := st.Trade(id)
	if tr.Status != model.TradeStatusClosed || tr.ExitReason != model.ExitReasonSignalCancelled {
		t.Fatalf("expected market close, got %s/%s", tr.Status, tr.ExitReason)
	}
	if len(ex.marketReduces) != 1 || ex.marketReduces[0] != 2 {
		t.Fatalf("position not flattened: %v", ex.marketReduces)
	}
}

func TestAmendmentBreakevenLatch(t *testing.T) {
	ex := newLoopExchange()
	src := &fakeSource{byID: map[string]connectors.DiscordMessage{
		"55": {ID: "55", Content: "LONG SIGNAL - BTC/USDT\nEntry: 100\nSL: 80\nTP1: 105\nTP2: 110"},
	}}
	cfg := loopConfig()
	r, st := newTestRunner(cfg, ex, src)
	r.parser = signal.New("v1") // legacy family carries SL lines
	id := placePendingTrade(t, r, "55")

	st.Mutate(id, func(tr *model.Trade) {
		tr.Status = model.TradeStatusOpen
		price := 100.0
		tr.EntryPrice = &price
		tr.SLMovedToBE = true
		tr.SLPrice = &price
	})
	ex.position = connectors.PositionInfo{Symbol: "BTCUSDT", Side: model.OrderSideBuy, Size: 2, AvgPrice: 100}

	stopsBefore := len(ex.stops)
	r.checkAmendments(context.Background(), time.Now().UTC())

	if len(ex.stops) != stopsBefore {
		t.Fatalf("latched stop was moved by amendment")
	}
	tr, _ := st.Trade(id)
	if tr.SLPrice == nil || *tr.SLPrice != 100 {
		t.Fatalf("breakeven stop changed: %v", tr.SLPrice)
	}
}

func TestAmendmentStopPendingDeferred(t *testing.T) {
	ex := newLoopExchange()
	src := &fakeSource{byID: map[string]connectors.DiscordMessage{
		"55": {ID: "55", Content: "LONG SIGNAL - BTC/USDT\nEntry: 100\nSL: 95\nTP1: 105\nTP2: 110"},
	}}
	r, st := newTestRunner(loopConfig(), ex, src)
	r.parser = signal.New("v1") // legacy family carries SL lines
	id := placePendingTrade(t, r, "55")

	r.checkAmendments(context.Background(), time.Now().UTC())

	tr, _ := st.Trade(id)
	if tr.SLPrice == nil || *tr.SLPrice != 95 {
		t.Fatalf("amended stop not recorded on pending trade: %v", tr.SLPrice)
	}
	if len(ex.stops) != 0 {
		t.Fatalf("pending trade pushed a stop to the exchange: %v", ex.stops)
	}
}

func TestAmendmentNewDCALevels(t *testing.T) {
	ex := newLoopExchange()
	src := &fakeSource{byID: map[string]connectors.DiscordMessage{
		"55": {ID: "55", Content: "LONG SIGNAL - BTC/USDT\nEntry: 100\nTP1: 105\nTP2: 110\nDCA1: 95\nDCA2: 90"},
	}}
	r, st := newTestRunner(loopConfig(), ex, src)
	id := placePendingTrade(t, r, "55")

	st.Mutate(id, func(tr *model.Trade) {
		tr.Status = model.TradeStatusOpen
		price := 100.0
		tr.EntryPrice = &price
	})

	r.checkAmendments(context.Background(), time.Now().UTC())

	tr, _ := st.Trade(id)
	if len(tr.DCAPrices) != 2 {
		t.Fatalf("dca levels not stored: %v", tr.DCAPrices)
	}
	if len(ex.dcas) != 2 {
		t.Fatalf("dca orders not placed: %v", ex.dcas)
	}
}

func TestDCATriggerMessage(t *testing.T) {
	ex := newLoopExchange()
	src := &fakeSource{}
	r, st := newTestRunner(loopConfig(), ex, src)
	id := placePendingTrade(t, r, "55")

	st.Mutate(id, func(tr *model.Trade) {
		tr.Status = model.TradeStatusOpen
		price := 100.0
		tr.EntryPrice = &price
		tr.PostOrdersPlaced = true
		tr.TPOrderIDs = []string{"tp-a", "tp-b"}
	})

	src.batch = []connectors.DiscordMessage{{
		ID: "60",
		Content: "DCA 1 TRIGGERED\nLONG SIGNAL - BTC/USDT\n" +
			"New Average: 97.5\nTP1: 102 → 101\nTP2: 108 → 106",
	}}

	if err := r.processNewMessages(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("processNewMessages failed: %v", err)
	}

	tr, _ := st.Trade(id)
	if tr.EntryPrice == nil || *tr.EntryPrice != 97.5 {
		t.Fatalf("new average not applied: %v", tr.EntryPrice)
	}
	if len(tr.TPPrices) != 2 || tr.TPPrices[0] != 101 || tr.TPPrices[1] != 106 {
		t.Fatalf("recalculated targets not applied: %v", tr.TPPrices)
	}
	if len(ex.cancelled) != 2 {
		t.Fatalf("old tp ladder not cancelled: %v", ex.cancelled)
	}
}
