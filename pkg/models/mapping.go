package models

import "time"

// Mapping is the persisted ticker → CoinGecko ID table, regenerated
// offline from the top coins by market cap. Entries keys are upper-case
// tickers; values are catalog IDs.
type Mapping struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Source      string            `json:"source"`
	TopCoins    int               `json:"top_coins"`
	Entries     map[string]string `json:"entries"`
}

// Len returns the number of mapping entries.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Entries)
}
