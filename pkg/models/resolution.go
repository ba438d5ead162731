package models

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// MatchStrategy identifies how a ticker was matched to a catalog entry.
// The values are part of the response contract, so they stay stable.
type MatchStrategy string

const (
	// MatchOverride means a user-supplied ticker:id pair decided the result.
	MatchOverride MatchStrategy = "override"

	// MatchCommonMapping means the pre-generated ticker mapping decided it.
	MatchCommonMapping MatchStrategy = "common_mapping"

	// MatchExactSymbol is a case-insensitive symbol equality match.
	MatchExactSymbol MatchStrategy = "exact_symbol"

	// MatchExactID means the ticker (lower-cased) equals the catalog ID.
	MatchExactID MatchStrategy = "exact_id_match"

	// MatchHyphenatedID means the ID with hyphens removed equals the ticker.
	MatchHyphenatedID MatchStrategy = "id_is_hyphenated_ticker"

	// MatchIDBoundary means the ticker appears in the ID between hyphen
	// boundaries.
	MatchIDBoundary MatchStrategy = "id_contains_ticker_with_boundaries"

	// MatchNameParts means the hyphen-split parts of the display name
	// concatenate to the ticker ("Look-Bro" → LOOKBRO).
	MatchNameParts MatchStrategy = "name_parts_form_ticker"

	// MatchNamePrefix means the ticker equals the first hyphen-part of the
	// display name.
	MatchNamePrefix MatchStrategy = "name_starts_with_ticker"

	// MatchNameWord means the ticker appears as a whole word in the
	// display name.
	MatchNameWord MatchStrategy = "name_contains_ticker_as_word"

	// MatchNormalized means the match succeeded only after stripping
	// exchange prefixes ("k", "t") or the "-token" suffix.
	MatchNormalized MatchStrategy = "normalized_symbol"
)

// Exact reports whether the strategy is an exact-symbol class match, i.e.
// not considered fuzzy in the response.
func (s MatchStrategy) Exact() bool {
	switch s {
	case MatchOverride, MatchCommonMapping, MatchExactSymbol:
		return true
	}
	return false
}

// Match is one scored search candidate for a ticker.
type Match struct {
	Coin      Coin                `json:"coin"`
	Strategy  MatchStrategy       `json:"strategy"`
	Score     float64             `json:"score"`
	MarketCap decimal.NullDecimal `json:"market_cap"`
}

// Resolution is one output row of a ticker resolution: the queried ticker
// and the CoinGecko identity it resolved to, if any.
type Resolution struct {
	Ticker        string        `json:"ticker"`
	TokenID       string        `json:"token_id"`
	Name          string        `json:"name,omitempty"`
	Link          string        `json:"link"`
	Found         bool          `json:"found"`
	FuzzyMatch    bool          `json:"fuzzy_match"`
	MatchedTicker string        `json:"matched_ticker,omitempty"`
	Strategy      MatchStrategy `json:"match_type,omitempty"`
	Score         float64       `json:"match_score,omitempty"`
}

// CoinURL is the public CoinGecko page for a catalog ID.
func CoinURL(id string) string {
	return "https://www.coingecko.com/en/coins/" + id
}

// ResolutionCSVHeader is the column set for CSV export, in order.
var ResolutionCSVHeader = []string{"ticker", "token_id", "name", "link", "fuzzy_match", "matched_ticker"}

// CSVRow renders the resolution as a CSV record matching ResolutionCSVHeader.
func (r Resolution) CSVRow() []string {
	return []string{
		r.Ticker,
		r.TokenID,
		r.Name,
		r.Link,
		strconv.FormatBool(r.FuzzyMatch),
		r.MatchedTicker,
	}
}
