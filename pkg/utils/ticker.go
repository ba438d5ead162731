package utils

import (
	"strings"
)

// CleanTicker trims whitespace and a leading $ from a user-input ticker
// ("$BTC" is common notation in chat and spreadsheets).
func CleanTicker(ticker string) string {
	ticker = strings.TrimSpace(ticker)
	ticker = strings.TrimPrefix(ticker, "$")
	return ticker
}

// SplitTickers parses a comma-separated ticker list into clean tickers.
// Original case is preserved because it carries meaning: the "k" in kPEPE
// marks a thousand-denominated perp and must survive until normalization.
// Empty fragments are dropped and case-insensitive duplicates removed
// while preserving first-seen order, so "btc, ,BTC,eth" yields
// ["btc", "eth"].
func SplitTickers(input string) []string {
	parts := strings.Split(input, ",")
	tickers := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		t := CleanTicker(p)
		key := strings.ToUpper(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		tickers = append(tickers, t)
	}
	return tickers
}

// NormalizeSymbol strips exchange decorations from a ticker for matching:
// a leading "k" (thousand-denominated perp symbols like kPEPE), a leading
// "t" (testnet/wrapped variants like tBTC), and a "-token" suffix. The
// prefixes are matched case-sensitively so KAS is not touched. The result
// is upper-cased.
func NormalizeSymbol(symbol string) string {
	symbol = strings.TrimPrefix(symbol, "k")
	symbol = strings.TrimPrefix(symbol, "t")
	symbol = strings.TrimSuffix(symbol, "-token")
	return strings.ToUpper(symbol)
}

// ParseOverrides parses a comma-separated list of manual "TICKER:id" pairs
// into a map keyed by upper-case ticker. Fragments without a colon are
// skipped; whitespace around either side is ignored.
func ParseOverrides(input string) map[string]string {
	overrides := make(map[string]string)
	for _, pair := range strings.Split(input, ",") {
		ticker, id, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		ticker = strings.ToUpper(CleanTicker(ticker))
		id = strings.TrimSpace(id)
		if ticker == "" || id == "" {
			continue
		}
		overrides[ticker] = id
	}
	return overrides
}
