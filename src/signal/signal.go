package signal

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Signal is a parsed trading intent extracted from one chat message.
type Signal struct {
	Base      string    `json:"base"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"` // buy / sell
	Trigger   float64   `json:"trigger"`
	TPPrices  []float64 `json:"tp_prices"`
	DCAPrices []float64 `json:"dca_prices"`
	SLPrice   *float64  `json:"sl_price,omitempty"`
	Leverage  int       `json:"leverage,omitempty"`
	Trader    string    `json:"trader,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Raw       string    `json:"raw,omitempty"`
}

// Amendment holds the re-parsed stop-loss / take-profit / DCA values of an
// already-consumed signal message. Fields are empty or nil when the message
// no longer carries the corresponding pattern.
type Amendment struct {
	SLPrice   *float64  `json:"sl_price,omitempty"`
	TPPrices  []float64 `json:"tp_prices"`
	DCAPrices []float64 `json:"dca_prices"`
}

// DCATrigger is a parsed averaging-down announcement: one DCA level fired
// and the message carries the new average entry plus recalculated targets.
type DCATrigger struct {
	Index       int       `json:"dca_index"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	NewAverage  *float64  `json:"new_average,omitempty"`
	NewTPPrices []float64 `json:"new_tp_prices"`
}

// Parser extracts structured intents from free-text signal messages.
// Implementations are pure and safe for concurrent use.
type Parser interface {
	ParseNewSignal(text, quote string, allowedCallers []string) *Signal
	ParseAmendment(text string) Amendment
}

// New selects a parser variant. "v1" is the legacy plain-text family that
// carries an explicit stop-loss line; anything else selects the embed
// family ("v2", the default), which never carries a stop-loss.
func New(version string) Parser {
	if version == "v1" {
		return legacyParser{}
	}
	return embedParser{}
}
