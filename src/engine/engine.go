package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"signalcopier/src/connectors"
	"signalcopier/src/model"
	"signalcopier/src/risk"
	"signalcopier/src/signal"
	"signalcopier/src/store"
)

// Exchange is the slice of the REST client the engine drives. The concrete
// implementation is connectors.BybitClient; tests plug in a fake.
type Exchange interface {
	PlaceConditionalEntry(symbol, side string, qty, triggerPrice float64, triggerDirection int, orderLinkID string) (*connectors.OrderAck, error)
	PlaceReduceLimit(symbol, side string, qty, price float64, orderLinkID string) (*connectors.OrderAck, error)
	PlaceLimit(symbol, side string, qty, price float64, orderLinkID string) (*connectors.OrderAck, error)
	PlaceMarketReduce(symbol, side string, qty float64, orderLinkID string) (*connectors.OrderAck, error)
	SetStopLoss(symbol string, price float64) error
	SetLeverage(symbol string, leverage int) error
	CancelOrder(symbol, orderID string) error
	CancelAllOrders(symbol string) error
	OpenOrders(symbol string) ([]connectors.OpenOrder, error)
	Position(symbol string) (*connectors.PositionInfo, error)
	LastPrice(symbol string) (float64, error)
	WalletEquity() (float64, error)
}

// Params are the trading knobs the engine applies on every decision.
type Params struct {
	RiskPct          float64
	DefaultLeverage  int
	CapSLDistancePct float64
	MaxSLDistancePct float64
	DefaultSLPct     float64
	TPSplits         []float64
	DCAQtyMults      []float64
	AlertLossPct     float64
	EntryTTL         time.Duration
	ClosedRetention  time.Duration
	TPTolerance      float64
	DryRun           bool
}

// dryRunOrderID marks orders that were sized and logged but never sent.
const dryRunOrderID = "DRY_RUN"

// Engine owns order placement and trade state transitions. All mutations of
// shared trade records go through the store so the reconciliation loop and
// the push listener can both call in safely.
type Engine struct {
	store    *store.TradeStore
	exchange Exchange
	params   Params
}

func New(st *store.TradeStore, ex Exchange, params Params) *Engine {
	if params.TPTolerance <= 0 {
		params.TPTolerance = 1e-7
	}
	return &Engine{
		store:    st,
		exchange: ex,
		params:   params,
	}
}

func (e *Engine) Store() *store.TradeStore {
	return e.store
}

// orderSides maps a signal side onto the exchange order side, the position
// side label and the side of the closing (reduce) orders.
func orderSides(signalSide string) (orderSide, posSide, closeSide string, err error) {
	switch signalSide {
	case signal.SideBuy:
		return model.OrderSideBuy, model.PosSideLong, model.OrderSideSell, nil
	case signal.SideSell:
		return model.OrderSideSell, model.PosSideShort, model.OrderSideBuy, nil
	default:
		return "", "", "", fmt.Errorf("unknown signal side %q", signalSide)
	}
}

func shortLinkID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:13])
}

// slWithinMaxDistance rejects a signalled stop that sits implausibly far from
// the trigger, usually a typo in the message. The rejected stop falls back to
// the default percentage.
func (e *Engine) slWithinMaxDistance(trigger, stop float64) bool {
	if e.params.MaxSLDistancePct <= 0 || trigger <= 0 {
		return true
	}
	distPct := math.Abs(trigger-stop) / trigger * 100
	return distPct <= e.params.MaxSLDistancePct
}

// OpenFromSignal sizes and places the conditional entry order for a fresh
// signal and records the resulting pending trade.
func (e *Engine) OpenFromSignal(sig *signal.Signal, now time.Time) (*model.Trade, error) {
	orderSide, posSide, _, err := orderSides(sig.Side)
	if err != nil {
		return nil, err
	}

	last, err := e.exchange.LastPrice(sig.Symbol)
	if err != nil {
		return nil, fmt.Errorf("last price for %s: %w", sig.Symbol, err)
	}

	triggerDirection := connectors.TriggerFall
	if sig.Trigger > last {
		triggerDirection = connectors.TriggerRise
	}

	equity, err := e.exchange.WalletEquity()
	if err != nil {
		return nil, fmt.Errorf("wallet equity: %w", err)
	}

	leverage := sig.Leverage
	if leverage <= 0 {
		leverage = e.params.DefaultLeverage
	}

	qty := risk.CalcBaseQty(equity, e.params.RiskPct, leverage, sig.Trigger)
	if qty <= 0 {
		return nil, fmt.Errorf("zero quantity for %s (equity %.2f)", sig.Symbol, equity)
	}

	ack := &connectors.OrderAck{OrderID: dryRunOrderID}
	if e.params.DryRun {
		logger.WithFields(map[string]interface{}{
			"symbol":  sig.Symbol,
			"side":    orderSide,
			"qty":     qty,
			"trigger": sig.Trigger,
		}).Info("dry run, entry order not sent")
	} else {
		if err := e.exchange.SetLeverage(sig.Symbol, leverage); err != nil {
			logger.WithFields(map[string]interface{}{
				"symbol":   sig.Symbol,
				"leverage": leverage,
			}).WithError(err).Warn("set leverage failed, keeping current")
		}

		ack, err = e.exchange.PlaceConditionalEntry(
			sig.Symbol, orderSide, qty, sig.Trigger, triggerDirection, shortLinkID("ent"))
		if err != nil {
			return nil, fmt.Errorf("entry order for %s: %w", sig.Symbol, err)
		}
	}

	var slPrice *float64
	if sig.SLPrice != nil && e.slWithinMaxDistance(sig.Trigger, *sig.SLPrice) {
		capped := risk.CapStopDistance(sig.Trigger, *sig.SLPrice, orderSide, e.params.CapSLDistancePct)
		slPrice = &capped
	} else if e.params.DefaultSLPct > 0 {
		derived := risk.InitialStopFromPct(sig.Trigger, orderSide, e.params.DefaultSLPct)
		slPrice = &derived
	}

	placed := now
	tr := &model.Trade{
		ID:           model.TradeID(sig.Symbol, orderSide, now),
		Symbol:       sig.Symbol,
		OrderSide:    orderSide,
		PosSide:      posSide,
		Trigger:      sig.Trigger,
		TPPrices:     append([]float64(nil), sig.TPPrices...),
		DCAPrices:    append([]float64(nil), sig.DCAPrices...),
		SLPrice:      slPrice,
		EntryOrderID: ack.OrderID,
		MessageID:    sig.MessageID,
		BaseQty:      qty,
		Leverage:     leverage,
		TPFilled:     make([]bool, len(sig.TPPrices)),
		PlacedTS:     &placed,
		Status:       model.TradeStatusPending,
		Raw:          sig.Raw,
	}

	e.store.Put(tr)
	e.store.IncTradesToday(now)

	logger.WithFields(map[string]interface{}{
		"trade":    tr.ID,
		"symbol":   tr.Symbol,
		"side":     tr.OrderSide,
		"trigger":  tr.Trigger,
		"qty":      tr.BaseQty,
		"leverage": tr.Leverage,
		"tps":      len(tr.TPPrices),
		"dcas":     len(tr.DCAPrices),
	}).Info("entry order placed")

	return tr, nil
}
