package models

import (
	"github.com/shopspring/decimal"
)

// Coin is a single entry from the CoinGecko catalog (/coins/list).
// Symbol is the trading ticker ("btc"); ID is the catalog slug ("bitcoin")
// that the rest of the CoinGecko API keys on.
type Coin struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// CoinMarket is one row from /coins/markets: a catalog entry together with
// its market snapshot. MarketCap is nullable — CoinGecko reports null for
// coins without a tracked market.
type CoinMarket struct {
	ID            string              `json:"id"`
	Symbol        string              `json:"symbol"`
	Name          string              `json:"name"`
	MarketCap     decimal.NullDecimal `json:"market_cap"`
	MarketCapRank int                 `json:"market_cap_rank,omitempty"`
}

// MarketCapFloat returns the market cap as a float64, or 0 when unknown.
// Ranking math works on the float value; exact comparisons use the decimal.
func (m CoinMarket) MarketCapFloat() float64 {
	if !m.MarketCap.Valid {
		return 0
	}
	return m.MarketCap.Decimal.InexactFloat64()
}

// CompareMarketCap orders two market rows by market cap. It returns a
// positive value when m has the larger cap, negative when other does, and
// zero on equality. A null cap always loses to a known cap.
func (m CoinMarket) CompareMarketCap(other CoinMarket) int {
	return CompareCaps(m.MarketCap, other.MarketCap)
}

// CompareCaps orders two nullable market caps: null loses to any known
// value, two nulls tie.
func CompareCaps(a, b decimal.NullDecimal) int {
	switch {
	case a.Valid && !b.Valid:
		return 1
	case !a.Valid && b.Valid:
		return -1
	case !a.Valid && !b.Valid:
		return 0
	default:
		return a.Decimal.Cmp(b.Decimal)
	}
}
