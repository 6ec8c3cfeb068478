package signal

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
)

// Hash derives the deduplication fingerprint of a signal. It digests only
// the economically relevant tuple (symbol, side, trigger, TP list, DCA
// list), so re-posts of the same trade collide even when the raw text
// differs.
func Hash(sig *Signal) string {
	var b strings.Builder
	b.WriteString(sig.Symbol)
	b.WriteByte('|')
	b.WriteString(sig.Side)
	b.WriteByte('|')
	b.WriteString(formatPrice(sig.Trigger))
	b.WriteByte('|')
	b.WriteString(formatPrices(sig.TPPrices))
	b.WriteByte('|')
	b.WriteString(formatPrices(sig.DCAPrices))

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func formatPrices(ps []float64) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = formatPrice(p)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
