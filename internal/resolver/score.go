package resolver

import (
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/seenimoa/geckomap/internal/catalog"
	"github.com/seenimoa/geckomap/pkg/models"
)

// Base scores per strategy. Market cap adds a logarithmic bonus on top,
// so a weak strategy hit on a major coin can outrank a stronger hit on a
// dead one — but never an exact symbol match, which shadows everything.
const (
	scoreExactSymbol  = 100.0
	scoreExactID      = 95.0
	scoreHyphenatedID = 95.0
	scoreIDBoundary   = 90.0
	scoreNameParts    = 85.0
	scoreNamePrefix   = 75.0
	scoreNameWord     = 50.0
)

// candidate is a strategy hit before scoring.
type candidate struct {
	coin     models.Coin
	strategy models.MatchStrategy
	base     float64
}

// collectCandidates gathers every strategy hit for a ticker against the
// snapshot. A coin may appear under more than one strategy; ranking keeps
// its best occurrence.
func collectCandidates(ticker string, snap *catalog.Snapshot) []candidate {
	upper := strings.ToUpper(ticker)
	lower := strings.ToLower(ticker)
	var cands []candidate

	// Exact symbol hits. Symbols are shared, so this can be many coins.
	for _, coin := range snap.SymbolMatches(upper) {
		cands = append(cands, candidate{coin, models.MatchExactSymbol, scoreExactSymbol})
	}

	// ID hits: exact ids, hyphen-bounded containment, or ids whose
	// hyphens removed spell the ticker. Loose substrings match far too
	// much ("sol" sits inside hundreds of ids).
	needle := "-" + lower + "-"
	for _, coin := range snap.Coins {
		switch {
		case coin.ID == lower:
			cands = append(cands, candidate{coin, models.MatchExactID, scoreExactID})
		case strings.Contains("-"+coin.ID+"-", needle):
			cands = append(cands, candidate{coin, models.MatchIDBoundary, scoreIDBoundary})
		case strings.ReplaceAll(coin.ID, "-", "") == lower:
			cands = append(cands, candidate{coin, models.MatchHyphenatedID, scoreHyphenatedID})
		}
	}

	// Name hits.
	for _, coin := range snap.Coins {
		name := strings.ToUpper(coin.Name)
		parts := strings.Split(name, "-")
		words := strings.Split(name, " ")

		// Ticker as a whole hyphen-part or word of the name, unless it
		// is also buried inside a longer fragment.
		if slices.Contains(parts, upper) || slices.Contains(words, upper) {
			if !buriedInLongerWord(upper, parts, words) {
				cands = append(cands, candidate{coin, models.MatchNameWord, scoreNameWord})
			}
		}

		if strings.Contains(name, "-") {
			if upper == parts[0] {
				cands = append(cands, candidate{coin, models.MatchNamePrefix, scoreNamePrefix})
			} else if strings.Join(parts, "") == upper {
				cands = append(cands, candidate{coin, models.MatchNameParts, scoreNameParts})
			}
		}
	}

	return cands
}

// buriedInLongerWord reports whether the ticker also appears as a short
// substring of some longer name fragment, which makes a whole-word hit
// too ambiguous to trust ("SOL" inside "SOLUTION"). Short here means
// under 70% of the fragment's length.
func buriedInLongerWord(upper string, lists ...[]string) bool {
	for _, list := range lists {
		for _, p := range list {
			if upper != p && strings.Contains(p, upper) && float64(len(upper)) < float64(len(p))*0.7 {
				return true
			}
		}
	}
	return false
}

// rank scores candidates and returns them ordered best-first, one entry
// per coin. When any exact symbol hit exists, only exact symbol hits are
// considered: a perfect symbol match must never lose to a heuristic hit
// on a bigger coin. Equal scores order by market cap; full ties keep
// catalog order.
func (r *Resolver) rank(ticker string, cands []candidate, caps map[string]models.CoinMarket) []models.Match {
	if len(cands) == 0 {
		return nil
	}

	exact := make([]candidate, 0, len(cands))
	for _, c := range cands {
		if c.strategy == models.MatchExactSymbol {
			exact = append(exact, c)
		}
	}
	if len(exact) > 0 {
		cands = exact
	}

	short := r.shortTicker(ticker)
	matches := make([]models.Match, 0, len(cands))
	for _, c := range cands {
		base := c.base
		// A short ticker is one typo away from everything; halve every
		// strategy that doesn't pin the symbol or id exactly.
		if short && c.strategy != models.MatchExactSymbol && c.strategy != models.MatchExactID {
			base *= 0.5
		}

		market := caps[c.coin.ID]
		score := base
		if mcap := market.MarketCapFloat(); mcap > 0 {
			score += math.Log10(math.Max(mcap, 1)) * 10
		}

		matches = append(matches, models.Match{
			Coin:      c.coin,
			Strategy:  c.strategy,
			Score:     score,
			MarketCap: market.MarketCap,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return models.CompareCaps(matches[i].MarketCap, matches[j].MarketCap) > 0
	})

	seen := make(map[string]struct{}, len(matches))
	deduped := matches[:0]
	for _, m := range matches {
		if _, ok := seen[m.Coin.ID]; ok {
			continue
		}
		seen[m.Coin.ID] = struct{}{}
		deduped = append(deduped, m)
	}
	matches = deduped

	if n := r.cfg.MaxResults; n > 0 && len(matches) > n {
		matches = matches[:n]
	}
	return matches
}

// pickWinner applies the false-positive rejections to a ranked list and
// returns the surviving best match.
func (r *Resolver) pickWinner(ticker string, matches []models.Match) (models.Match, bool) {
	if len(matches) == 0 {
		return models.Match{}, false
	}
	best := matches[0]

	if best.Strategy != models.MatchExactSymbol {
		// A short fuzzy winner needs an anchor: its symbol or id must
		// equal the ticker unless the score already cleared 100.
		if r.shortTicker(ticker) && best.Score < 100 &&
			!strings.EqualFold(best.Coin.Symbol, ticker) &&
			best.Coin.ID != strings.ToLower(ticker) {
			return models.Match{}, false
		}
		if best.Score < r.threshold() {
			return models.Match{}, false
		}
	}
	return best, true
}

func (r *Resolver) shortTicker(ticker string) bool {
	n := r.cfg.ShortTickerLen
	if n <= 0 {
		n = 3
	}
	return len(ticker) <= n
}

func (r *Resolver) threshold() float64 {
	if r.cfg.FuzzyThreshold <= 0 {
		return 50
	}
	return r.cfg.FuzzyThreshold
}
