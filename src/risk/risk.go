package risk

import (
	"github.com/shopspring/decimal"

	"signalcopier/src/model"
)

// ----- position sizing -----

// CalcBaseQty converts the configured equity fraction into a base-asset
// quantity at the given price: equity * riskPct/100 * leverage / price.
// Returns zero when any input is non-positive.
func CalcBaseQty(equity, riskPct float64, leverage int, price float64) float64 {
	if equity <= 0 || riskPct <= 0 || leverage <= 0 || price <= 0 {
		return 0
	}

	qty := decimal.NewFromFloat(equity).
		Mul(decimal.NewFromFloat(riskPct)).
		Div(decimal.NewFromInt(100)).
		Mul(decimal.NewFromInt(int64(leverage))).
		Div(decimal.NewFromFloat(price))

	f, _ := qty.Float64()
	return f
}

// SplitTPQuantities divides the position across n take profits. The split is
// even, with any rounding remainder folded into the last slice so the sum
// equals the full size.
func SplitTPQuantities(totalQty float64, n int) []float64 {
	if n <= 0 || totalQty <= 0 {
		return nil
	}

	total := decimal.NewFromFloat(totalQty)
	slice := total.Div(decimal.NewFromInt(int64(n))).RoundDown(8)

	out := make([]float64, n)
	running := decimal.Zero
	for i := 0; i < n-1; i++ {
		out[i], _ = slice.Float64()
		running = running.Add(slice)
	}
	out[n-1], _ = total.Sub(running).Float64()
	return out
}

// SplitWeighted divides the position across n take profits using the
// configured weight list. Weights are normalized by their sum, so "50,30,20"
// and "5,3,2" split identically. A missing or mismatched weight list falls
// back to the even split.
func SplitWeighted(totalQty float64, weights []float64, n int) []float64 {
	if n <= 0 || totalQty <= 0 {
		return nil
	}
	if len(weights) != n {
		return SplitTPQuantities(totalQty, n)
	}

	sum := decimal.Zero
	for _, w := range weights {
		if w <= 0 {
			return SplitTPQuantities(totalQty, n)
		}
		sum = sum.Add(decimal.NewFromFloat(w))
	}

	total := decimal.NewFromFloat(totalQty)
	out := make([]float64, n)
	running := decimal.Zero
	for i := 0; i < n-1; i++ {
		slice := total.Mul(decimal.NewFromFloat(weights[i])).Div(sum).RoundDown(8)
		out[i], _ = slice.Float64()
		running = running.Add(slice)
	}
	out[n-1], _ = total.Sub(running).Float64()
	return out
}

// DCAQuantities sizes the averaging-down adds. With a multiplier list each
// level gets baseQty * mult; otherwise the base quantity is split evenly
// across the levels.
func DCAQuantities(baseQty float64, mults []float64, n int) []float64 {
	if n <= 0 || baseQty <= 0 {
		return nil
	}
	if len(mults) < n {
		return SplitTPQuantities(baseQty, n)
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		if mults[i] <= 0 {
			return SplitTPQuantities(baseQty, n)
		}
		q := decimal.NewFromFloat(baseQty).Mul(decimal.NewFromFloat(mults[i])).RoundDown(8)
		out[i], _ = q.Float64()
	}
	return out
}

// ----- stop placement -----

// CapStopDistance clamps a stop to at most maxPct percent away from entry.
// A long's stop sits below entry, a short's above; a stop already inside the
// cap is returned unchanged. maxPct <= 0 disables the cap.
func CapStopDistance(entry, stop float64, orderSide string, maxPct float64) float64 {
	if maxPct <= 0 || entry <= 0 {
		return stop
	}

	e := decimal.NewFromFloat(entry)
	frac := decimal.NewFromFloat(maxPct).Div(decimal.NewFromInt(100))

	switch orderSide {
	case model.OrderSideBuy:
		floor := e.Mul(decimal.NewFromInt(1).Sub(frac))
		if decimal.NewFromFloat(stop).LessThan(floor) {
			f, _ := floor.Float64()
			return f
		}
	case model.OrderSideSell:
		ceil := e.Mul(decimal.NewFromInt(1).Add(frac))
		if decimal.NewFromFloat(stop).GreaterThan(ceil) {
			f, _ := ceil.Float64()
			return f
		}
	}
	return stop
}

// InitialStopFromPct derives the protective stop for a fresh entry when the
// signal itself carries no stop: pct percent against the position.
func InitialStopFromPct(entry float64, orderSide string, pct float64) float64 {
	e := decimal.NewFromFloat(entry)
	frac := decimal.NewFromFloat(pct).Div(decimal.NewFromInt(100))

	var stop decimal.Decimal
	switch orderSide {
	case model.OrderSideBuy:
		stop = e.Mul(decimal.NewFromInt(1).Sub(frac))
	case model.OrderSideSell:
		stop = e.Mul(decimal.NewFromInt(1).Add(frac))
	default:
		return 0
	}

	f, _ := stop.Float64()
	return f
}
