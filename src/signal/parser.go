package signal

import (
	"regexp"
	"strconv"
	"strings"
)

// -----------------------------
// GRAMMAR
// -----------------------------
// Signal embeds look like:
//
//	AO Trading • New Trade Signal
//	🔴 SHORT SIGNAL - AGLD/USDT
//	Leverage: 25x • Trader: Ziad
//	📊 Entry: 0.398
//	🎯 Profit Targets:
//	TP1: 0.39402
//	TP2: 0.389244
//	📊 DCA Levels:
//	DCA1: 0.98382
//	📝 Notes: Caller: Ziad

const num = `([0-9]+(?:\.[0-9]+)?)`

var (
	reSymbolSide = regexp.MustCompile(`(?i)(LONG|SHORT)\s+SIGNAL\s*[-–—]\s*([A-Z0-9]+)/([A-Z]+)`)
	reEntry      = regexp.MustCompile(`(?i)Entry:\s*\$?` + num)
	reTP         = regexp.MustCompile(`(?i)TP(\d+):\s*\$?` + num)
	reDCA        = regexp.MustCompile(`(?i)DCA(\d+):\s*\$?` + num)
	reLeverage   = regexp.MustCompile(`(?i)Leverage:\s*(\d+)x`)
	reCaller     = regexp.MustCompile(`(?i)Caller:\s*(\w+)`)
	reTrader     = regexp.MustCompile(`(?i)Trader:\s*(\w+)`)
	reStopLoss   = regexp.MustCompile(`(?i)(?:SL|Stop\s*Loss):\s*\$?` + num)

	reClosed    = regexp.MustCompile(`(?i)TRADE\s+CLOSED|closed\s+at\s+breakeven|TRADE\s+CANCELLED|⏳\s*closed`)
	reNewSignal = regexp.MustCompile(`(?i)NEW\s+SIGNAL|New\s+Trade\s+Signal`)

	reDCATriggered = regexp.MustCompile(`(?i)DCA\s*(\d+)\s+TRIGGERED`)
	reNewAverage   = regexp.MustCompile(`(?i)New\s+Average:\s*\$?` + num)
	reRecalcTP     = regexp.MustCompile(`(?i)TP(\d+):[^→]+→\s*\$?` + num)
)

// collectIndexed gathers "TPn: price" style matches into a list ordered by
// their 1-based index. The list length equals the maximum index seen, with
// unfilled lower positions left at zero and then stripped. A non-trailing
// index gap therefore yields a shorter list, not a sparse one.
func collectIndexed(re *regexp.Regexp, text string) []float64 {
	var ordered []float64
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 {
			continue
		}
		price, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		for len(ordered) < idx {
			ordered = append(ordered, 0)
		}
		ordered[idx-1] = price
	}

	out := make([]float64, 0, len(ordered))
	for _, p := range ordered {
		if p > 0 {
			out = append(out, p)
		}
	}
	return out
}

// callerFrom extracts the caller name, trying the Notes line first and the
// Trader line second.
func callerFrom(text string) string {
	if m := reCaller.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := reTrader.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

func callerAllowed(caller string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	if caller == "" {
		return false
	}
	for _, a := range allowed {
		if strings.EqualFold(caller, a) {
			return true
		}
	}
	return false
}

// parseCommon handles everything both parser families share: marker and
// closed checks, side/symbol, entry, TP/DCA ladders, leverage and caller.
func parseCommon(text, quote string, allowedCallers []string) *Signal {
	if !reNewSignal.MatchString(text) {
		return nil
	}
	if reClosed.MatchString(text) {
		return nil
	}

	ms := reSymbolSide.FindStringSubmatch(text)
	if ms == nil {
		return nil
	}

	sideWord := strings.ToUpper(ms[1])
	base := strings.ToUpper(ms[2])
	quoteFromSignal := strings.ToUpper(ms[3])
	_ = quote // quote asset in the signal line wins over the configured one

	side := SideBuy
	if sideWord == "SHORT" {
		side = SideSell
	}

	caller := callerFrom(text)
	if !callerAllowed(caller, allowedCallers) {
		return nil
	}

	me := reEntry.FindStringSubmatch(text)
	if me == nil {
		return nil
	}
	trigger, err := strconv.ParseFloat(me[1], 64)
	if err != nil || trigger <= 0 {
		return nil
	}

	sig := &Signal{
		Base:      base,
		Symbol:    base + quoteFromSignal,
		Side:      side,
		Trigger:   trigger,
		TPPrices:  collectIndexed(reTP, text),
		DCAPrices: collectIndexed(reDCA, text),
		Trader:    caller,
		Raw:       text,
	}

	if ml := reLeverage.FindStringSubmatch(text); ml != nil {
		if lev, err := strconv.Atoi(ml[1]); err == nil {
			sig.Leverage = lev
		}
	}

	return sig
}

// parseAmendmentCommon re-extracts TP and DCA ladders without requiring the
// new-signal marker. It never rejects.
func parseAmendmentCommon(text string) Amendment {
	return Amendment{
		TPPrices:  collectIndexed(reTP, text),
		DCAPrices: collectIndexed(reDCA, text),
	}
}

// -----------------------------
// EMBED FAMILY (v2, default)
// -----------------------------

// embedParser parses the embed signal family. This family never carries a
// stop-loss; the exchange-facing side applies a fixed-percentage fallback.
type embedParser struct{}

func (embedParser) ParseNewSignal(text, quote string, allowedCallers []string) *Signal {
	return parseCommon(text, quote, allowedCallers)
}

func (embedParser) ParseAmendment(text string) Amendment {
	return parseAmendmentCommon(text)
}

// -----------------------------
// LEGACY FAMILY (v1)
// -----------------------------

// legacyParser additionally recognizes an explicit SL / Stop Loss line.
type legacyParser struct{}

func (legacyParser) ParseNewSignal(text, quote string, allowedCallers []string) *Signal {
	sig := parseCommon(text, quote, allowedCallers)
	if sig == nil {
		return nil
	}
	if m := reStopLoss.FindStringSubmatch(text); m != nil {
		if sl, err := strconv.ParseFloat(m[1], 64); err == nil && sl > 0 {
			sig.SLPrice = &sl
		}
	}
	return sig
}

func (legacyParser) ParseAmendment(text string) Amendment {
	am := parseAmendmentCommon(text)
	if m := reStopLoss.FindStringSubmatch(text); m != nil {
		if sl, err := strconv.ParseFloat(m[1], 64); err == nil && sl > 0 {
			am.SLPrice = &sl
		}
	}
	return am
}

// -----------------------------
// DCA TRIGGERED FAMILY
// -----------------------------

// ParseDCATriggered parses a "DCA n TRIGGERED" announcement carrying the new
// average entry and recalculated take-profit prices. Returns nil when the
// text is not a DCA-triggered message.
func ParseDCATriggered(text string) *DCATrigger {
	md := reDCATriggered.FindStringSubmatch(text)
	if md == nil {
		return nil
	}
	idx, err := strconv.Atoi(md[1])
	if err != nil {
		return nil
	}

	ms := reSymbolSide.FindStringSubmatch(text)
	if ms == nil {
		return nil
	}

	side := SideBuy
	if strings.ToUpper(ms[1]) == "SHORT" {
		side = SideSell
	}

	ev := &DCATrigger{
		Index:       idx,
		Symbol:      strings.ToUpper(ms[2]) + strings.ToUpper(ms[3]),
		Side:        side,
		NewTPPrices: collectIndexed(reRecalcTP, text),
	}

	if ma := reNewAverage.FindStringSubmatch(text); ma != nil {
		if avg, err := strconv.ParseFloat(ma[1], 64); err == nil {
			ev.NewAverage = &avg
		}
	}

	return ev
}

// IsCancelled reports whether the refreshed text of an origin message marks
// the trade as cancelled or closed without entry.
func IsCancelled(text string) bool {
	up := strings.ToUpper(text)
	return strings.Contains(up, "TRADE CANCELLED") || strings.Contains(up, "CLOSED WITHOUT ENTRY")
}

// LooksLikeSignal reports whether a non-parsing text still contains
// trade-like keywords, used to log suspicious near-misses.
func LooksLikeSignal(text string) bool {
	up := strings.ToUpper(text)
	return strings.Contains(up, "SIGNAL") || strings.Contains(up, "ENTRY")
}
