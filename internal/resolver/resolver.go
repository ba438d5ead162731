// Package resolver maps free-form tickers to CoinGecko catalog ids. It
// tries the cheap paths first — manual overrides, then the bundled
// common-ticker mapping — and only searches the full coin catalog for
// tickers neither covers, ranking hits by strategy strength and market cap.
package resolver

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/seenimoa/geckomap/internal/catalog"
	"github.com/seenimoa/geckomap/internal/coingecko"
	"github.com/seenimoa/geckomap/internal/config"
	"github.com/seenimoa/geckomap/internal/logger"
	"github.com/seenimoa/geckomap/pkg/models"
	"github.com/seenimoa/geckomap/pkg/utils"
)

// Resolver resolves tickers against the catalog. Safe for concurrent use.
type Resolver struct {
	catalog *catalog.Catalog
	client  *coingecko.Client
	cfg     config.SearchConfig
}

// New returns a Resolver backed by the given catalog and CoinGecko client.
func New(cat *catalog.Catalog, client *coingecko.Client, cfg config.SearchConfig) *Resolver {
	return &Resolver{catalog: cat, client: client, cfg: cfg}
}

// pendingSearch tracks one ticker that fell through to a catalog search.
// norm holds the normalized fallback form ("" when it adds nothing), alt
// its candidates.
type pendingSearch struct {
	row   int
	norm  string
	cands []candidate
	alt   []candidate
}

// Resolve maps each ticker to its best catalog id. Overrides win
// unconditionally, then the common mapping (raw ticker first, normalized
// form second), then a scored catalog search. Market caps for all search
// candidates are fetched in one batched call. Unresolvable tickers come
// back with Found=false; one result per input ticker, in input order.
func (r *Resolver) Resolve(ctx context.Context, tickers []string, overrides map[string]string) []models.Resolution {
	results := make([]models.Resolution, 0, len(tickers))
	var pending []pendingSearch

	// The snapshot is loaded lazily: a request covered entirely by
	// overrides and the common mapping never touches the API.
	var snap *catalog.Snapshot
	snapLoaded := false

	for _, raw := range tickers {
		ticker := utils.CleanTicker(raw)
		if ticker == "" {
			continue
		}

		if id, ok := overrides[strings.ToUpper(ticker)]; ok {
			results = append(results, overrideRow(ticker, id))
			continue
		}
		if id, ok := r.catalog.CommonID(ticker); ok {
			results = append(results, commonRow(ticker, ticker, id, models.MatchCommonMapping, false))
			continue
		}

		norm := utils.NormalizeSymbol(ticker)
		if norm == strings.ToUpper(ticker) {
			norm = ""
		} else if id, ok := r.catalog.CommonID(norm); ok {
			results = append(results, commonRow(ticker, norm, id, models.MatchNormalized, true))
			continue
		}

		if !snapLoaded {
			snapLoaded = true
			var err error
			if snap, err = r.catalog.Snapshot(ctx); err != nil {
				logger.Error("coin catalog unavailable, unmatched tickers stay unresolved", zap.Error(err))
			}
		}
		if snap == nil {
			results = append(results, missRow(ticker))
			continue
		}

		p := pendingSearch{row: len(results), norm: norm, cands: collectCandidates(ticker, snap)}
		if norm != "" {
			p.alt = collectCandidates(norm, snap)
		}
		pending = append(pending, p)
		results = append(results, missRow(ticker))
	}

	if len(pending) == 0 {
		return results
	}

	caps := r.fetchCaps(ctx, pending)

	for _, p := range pending {
		ticker := results[p.row].Ticker
		if m, ok := r.pickWinner(ticker, r.rank(ticker, p.cands, caps)); ok {
			results[p.row] = matchRow(ticker, m, m.Strategy)
			continue
		}
		if p.norm == "" {
			continue
		}
		if m, ok := r.pickWinner(p.norm, r.rank(p.norm, p.alt, caps)); ok {
			results[p.row] = matchRow(ticker, m, models.MatchNormalized)
		}
	}
	return results
}

// Search ranks every catalog match for one ticker, skipping the override
// and common-mapping shortcuts. Used by the search endpoint, where the
// caller wants alternatives rather than a single verdict.
func (r *Resolver) Search(ctx context.Context, ticker string) ([]models.Match, error) {
	ticker = utils.CleanTicker(ticker)
	if ticker == "" {
		return nil, fmt.Errorf("empty ticker")
	}
	snap, err := r.catalog.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	cands := collectCandidates(ticker, snap)
	if len(cands) == 0 {
		return nil, nil
	}
	caps := r.fetchCaps(ctx, []pendingSearch{{cands: cands}})
	return r.rank(ticker, cands, caps), nil
}

// fetchCaps pulls market data for every candidate of every pending ticker
// in one batched request. Cap data only tunes ranking, so failures degrade
// to strategy-only scores instead of failing the resolve.
func (r *Resolver) fetchCaps(ctx context.Context, pending []pendingSearch) map[string]models.CoinMarket {
	idset := make(map[string]struct{})
	for _, p := range pending {
		for _, c := range p.cands {
			idset[c.coin.ID] = struct{}{}
		}
		for _, c := range p.alt {
			idset[c.coin.ID] = struct{}{}
		}
	}
	if len(idset) == 0 {
		return nil
	}
	ids := make([]string, 0, len(idset))
	for id := range idset {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	caps, err := r.client.MarketsByIDs(ctx, "usd", ids)
	if err != nil {
		if len(caps) == 0 {
			logger.Warn("market caps unavailable, ranking on match strategy alone", zap.Error(err))
			return nil
		}
		logger.Warn("partial market cap data",
			zap.Int("fetched", len(caps)),
			zap.Int("requested", len(ids)),
			zap.Error(err))
	}
	return caps
}

// --- Row Construction ---

func missRow(ticker string) models.Resolution {
	return models.Resolution{Ticker: ticker}
}

func overrideRow(ticker, id string) models.Resolution {
	return models.Resolution{
		Ticker:   ticker,
		TokenID:  id,
		Link:     models.CoinURL(id),
		Found:    true,
		Strategy: models.MatchOverride,
	}
}

func commonRow(ticker, matched, id string, strategy models.MatchStrategy, fuzzy bool) models.Resolution {
	return models.Resolution{
		Ticker:        ticker,
		TokenID:       id,
		Link:          models.CoinURL(id),
		Found:         true,
		FuzzyMatch:    fuzzy,
		MatchedTicker: matched,
		Strategy:      strategy,
	}
}

func matchRow(ticker string, m models.Match, strategy models.MatchStrategy) models.Resolution {
	return models.Resolution{
		Ticker:        ticker,
		TokenID:       m.Coin.ID,
		Name:          m.Coin.Name,
		Link:          models.CoinURL(m.Coin.ID),
		Found:         true,
		FuzzyMatch:    strategy != models.MatchExactSymbol,
		MatchedTicker: m.Coin.Symbol,
		Strategy:      strategy,
		Score:         m.Score,
	}
}
