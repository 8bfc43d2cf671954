// Package symbol converts between the BASE/QUOTE form used as the internal
// key (ledger rows, candle cache, dashboard) and the concatenated exchange form.
package symbol

import "strings"

// quotes are tried in order when no separator is present, so longer stable
// quotes win over BTC/ETH/BNB suffixes.
var quotes = []string{"USDT", "BUSD", "USDC", "TUSD", "FDUSD", "BTC", "ETH", "BNB"}

type Symbol struct {
	Base  string
	Quote string
}

func (s Symbol) valid() bool { return s.Base != "" && s.Quote != "" }

// Internal returns BASE/QUOTE, or "" when either side is missing.
func (s Symbol) Internal() string {
	if !s.valid() {
		return ""
	}
	return s.Base + "/" + s.Quote
}

// Binance returns BASEQUOTE, or "" when either side is missing.
func (s Symbol) Binance() string {
	if !s.valid() {
		return ""
	}
	return s.Base + s.Quote
}

// Parse accepts BTCUSDT, btc/usdt and the futures form BTC/USDT:USDT.
func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	if s == "" {
		return Symbol{}
	}
	if base, quote, ok := strings.Cut(s, "/"); ok {
		return Symbol{Base: strings.TrimSpace(base), Quote: strings.TrimSpace(quote)}
	}
	for _, quote := range quotes {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{Base: s[:len(s)-len(quote)], Quote: quote}
		}
	}
	return Symbol{}
}

func IsValid(s string) bool {
	return Parse(s).valid()
}

func Normalize(s string) string {
	return Parse(s).Internal()
}

// ToBinance returns the REST form. Input that does not parse is upper-cased
// with separators stripped and left for the exchange to reject.
func ToBinance(s string) string {
	if out := Parse(s).Binance(); out != "" {
		return out
	}
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "/", "")
}

// NormalizeList normalises and de-duplicates, keeping first-seen order.
// Entries that do not parse are kept upper-cased so validation can name them.
func NormalizeList(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		norm := Normalize(s)
		if norm == "" {
			norm = strings.ToUpper(strings.TrimSpace(s))
			if norm == "" {
				continue
			}
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}
