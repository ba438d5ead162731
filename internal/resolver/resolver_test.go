package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/geckomap/internal/catalog"
	"github.com/seenimoa/geckomap/internal/coingecko"
	"github.com/seenimoa/geckomap/internal/config"
	"github.com/seenimoa/geckomap/pkg/models"
)

var testCoins = []models.Coin{
	{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin"},
	{ID: "batcat", Symbol: "btc", Name: "Batcat"},
	{ID: "ethereum", Symbol: "eth", Name: "Ethereum"},
	{ID: "solana", Symbol: "sol", Name: "Solana"},
	{ID: "sol-wormhole", Symbol: "wsol", Name: "SOL Wormhole"},
	{ID: "look-bro", Symbol: "lkb", Name: "Look-Bro"},
	{ID: "pepe", Symbol: "pepe", Name: "Pepe"},
	{ID: "abc-chain", Symbol: "qqq", Name: "Abc Chain"},
	{ID: "ace", Symbol: "acex", Name: "AceCoin"},
	{ID: "zzz-coin", Symbol: "zzz", Name: "Zzz Coin"},
}

// Market caps as JSON fragments, "null" for untracked markets.
var testCapJSON = map[string]string{
	"bitcoin":      "1200000000000",
	"batcat":       "50000",
	"ethereum":     "400000000000",
	"solana":       "80000000000",
	"sol-wormhole": "900000000000",
	"look-bro":     "1000000",
	"pepe":         "4000000000",
	"abc-chain":    "10000",
	"ace":          "null",
	"zzz-coin":     "2000000",
}

func coinByID(id string) models.Coin {
	for _, c := range testCoins {
		if c.ID == id {
			return c
		}
	}
	return models.Coin{ID: id}
}

func capsFixture(t *testing.T) map[string]models.CoinMarket {
	t.Helper()
	caps := make(map[string]models.CoinMarket, len(testCapJSON))
	for id, s := range testCapJSON {
		m := models.CoinMarket{ID: id}
		if s != "null" {
			d, err := decimal.NewFromString(s)
			require.NoError(t, err)
			m.MarketCap = decimal.NewNullDecimal(d)
		}
		caps[id] = m
	}
	return caps
}

func newFixtureServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		switch r.URL.Path {
		case "/coins/list":
			json.NewEncoder(w).Encode(testCoins)
		case "/coins/markets":
			var rows []string
			for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
				capJSON, ok := testCapJSON[id]
				if !ok {
					continue
				}
				c := coinByID(id)
				rows = append(rows, fmt.Sprintf(`{"id":%q,"symbol":%q,"name":%q,"market_cap":%s}`,
					c.ID, c.Symbol, c.Name, capJSON))
			}
			fmt.Fprintf(w, "[%s]", strings.Join(rows, ","))
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &attempts
}

// newTestResolver wires a resolver against srvURL with a small mapping
// file, so the common-mapping shortcut only covers what a test opts into.
func newTestResolver(t *testing.T, srvURL string, search config.SearchConfig, entries map[string]string) *Resolver {
	t.Helper()
	client := coingecko.NewClient(config.CoinGeckoConfig{
		BaseURL:           srvURL,
		TimeoutSec:        5,
		RequestsPerMinute: 100000, // effectively unpaced for tests
		MaxRetries:        0,
	})
	if entries == nil {
		entries = map[string]string{"ZZZ": "zzz-coin"}
	}
	m := &models.Mapping{
		GeneratedAt: time.Now().UTC(),
		Source:      "test",
		TopCoins:    len(entries),
		Entries:     entries,
	}
	path := filepath.Join(t.TempDir(), "mapping.json")
	require.NoError(t, catalog.WriteMapping(m, path))

	cat, err := catalog.New(client, config.CatalogConfig{MappingFile: path, CacheTTLSec: 3600})
	require.NoError(t, err)
	return New(cat, client, search)
}

// ── Candidate Collection Tests ──

func TestCollectCandidates(t *testing.T) {
	snap := catalog.NewSnapshot(testCoins)

	tests := []struct {
		ticker string
		want   []string // "id/strategy" pairs, any order
	}{
		{"BTC", []string{"bitcoin/exact_symbol", "batcat/exact_symbol"}},
		{"btc", []string{"bitcoin/exact_symbol", "batcat/exact_symbol"}},
		// The whole-word hit on "SOL Wormhole" is suppressed: SOL is
		// buried inside the full name fragment.
		{"SOL", []string{"solana/exact_symbol", "sol-wormhole/id_contains_ticker_with_boundaries"}},
		{"LOOKBRO", []string{"look-bro/id_is_hyphenated_ticker", "look-bro/name_parts_form_ticker"}},
		{"LOOK", []string{"look-bro/id_contains_ticker_with_boundaries", "look-bro/name_starts_with_ticker"}},
		{"ABC", []string{"abc-chain/id_contains_ticker_with_boundaries"}},
		{"ACE", []string{"ace/exact_id_match"}},
		{"XYZNOPE", nil},
	}
	for _, tt := range tests {
		t.Run(tt.ticker, func(t *testing.T) {
			var got []string
			for _, c := range collectCandidates(tt.ticker, snap) {
				got = append(got, c.coin.ID+"/"+string(c.strategy))
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestBuriedInLongerWord(t *testing.T) {
	tests := []struct {
		name   string
		ticker string
		lists  [][]string
		want   bool
	}{
		{"short inside longer word", "SOL", [][]string{{"SOLUTION"}}, true},
		{"standalone word", "SOL", [][]string{{"SOL", "WORMHOLE"}}, false},
		{"buried in unsplit name", "SOL", [][]string{{"SOL WORMHOLE"}, {"SOL", "WORMHOLE"}}, true},
		{"exact fragment", "BITCOIN", [][]string{{"BITCOIN"}}, false},
		{"covers most of the word", "SOLANA", [][]string{{"SOLANART"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buriedInLongerWord(tt.ticker, tt.lists...))
		})
	}
}

// ── Ranking Tests ──

func TestRankExactSymbolShadows(t *testing.T) {
	snap := catalog.NewSnapshot(testCoins)
	r := &Resolver{}
	caps := capsFixture(t)

	// sol-wormhole has the bigger cap, but solana's exact symbol hit
	// excludes every heuristic candidate.
	matches := r.rank("SOL", collectCandidates("SOL", snap), caps)
	require.Len(t, matches, 1)
	assert.Equal(t, "solana", matches[0].Coin.ID)
	assert.Equal(t, models.MatchExactSymbol, matches[0].Strategy)
}

func TestRankOrdersByScoreThenCap(t *testing.T) {
	snap := catalog.NewSnapshot(testCoins)
	r := &Resolver{}
	caps := capsFixture(t)

	matches := r.rank("BTC", collectCandidates("BTC", snap), caps)
	require.Len(t, matches, 2)
	assert.Equal(t, "bitcoin", matches[0].Coin.ID)
	assert.Equal(t, "batcat", matches[1].Coin.ID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
	assert.InDelta(t, 220.79, matches[0].Score, 0.01)
}

func TestRankDampsShortTickerHeuristics(t *testing.T) {
	snap := catalog.NewSnapshot(testCoins)
	r := &Resolver{}
	caps := capsFixture(t)

	// id-boundary base 90 halves to 45 for a 3-char ticker, plus
	// log10(1e4)*10 = 40 of cap bonus.
	matches := r.rank("ABC", collectCandidates("ABC", snap), caps)
	require.Len(t, matches, 1)
	assert.InDelta(t, 85.0, matches[0].Score, 0.01)

	// Exact id hits are exempt from damping; ace has no tracked cap.
	matches = r.rank("ACE", collectCandidates("ACE", snap), caps)
	require.Len(t, matches, 1)
	assert.InDelta(t, 95.0, matches[0].Score, 0.01)
}

func TestRankDedupesCoinAcrossStrategies(t *testing.T) {
	snap := catalog.NewSnapshot(testCoins)
	r := &Resolver{}
	caps := capsFixture(t)

	// look-bro matches twice (hyphenated id 95, name parts 85); the
	// stronger occurrence survives: 95 + log10(1e6)*10 = 155.
	matches := r.rank("LOOKBRO", collectCandidates("LOOKBRO", snap), caps)
	require.Len(t, matches, 1)
	assert.Equal(t, models.MatchHyphenatedID, matches[0].Strategy)
	assert.InDelta(t, 155.0, matches[0].Score, 0.01)
}

func TestRankCapsResultCount(t *testing.T) {
	snap := catalog.NewSnapshot(testCoins)
	r := &Resolver{cfg: config.SearchConfig{MaxResults: 1}}

	matches := r.rank("BTC", collectCandidates("BTC", snap), capsFixture(t))
	require.Len(t, matches, 1)
	assert.Equal(t, "bitcoin", matches[0].Coin.ID)
}

func TestPickWinnerRejections(t *testing.T) {
	r := &Resolver{}

	_, ok := r.pickWinner("BTC", nil)
	assert.False(t, ok, "no candidates")

	// Short fuzzy winner under 100 with no symbol or id anchor.
	m := models.Match{Coin: models.Coin{ID: "abc-chain", Symbol: "qqq"}, Strategy: models.MatchIDBoundary, Score: 85}
	_, ok = r.pickWinner("ABC", []models.Match{m})
	assert.False(t, ok)

	// Same score anchored by the coin id passes.
	m = models.Match{Coin: models.Coin{ID: "abc", Symbol: "qqq"}, Strategy: models.MatchIDBoundary, Score: 85}
	_, ok = r.pickWinner("ABC", []models.Match{m})
	assert.True(t, ok)

	// Exact symbol is never second-guessed.
	m = models.Match{Coin: models.Coin{ID: "batcat", Symbol: "btc"}, Strategy: models.MatchExactSymbol, Score: 100}
	_, ok = r.pickWinner("BTC", []models.Match{m})
	assert.True(t, ok)

	// A raised threshold rejects fuzzy winners that default config keeps.
	strict := &Resolver{cfg: config.SearchConfig{FuzzyThreshold: 500}}
	m = models.Match{Coin: models.Coin{ID: "look-bro", Symbol: "lkb"}, Strategy: models.MatchHyphenatedID, Score: 155}
	_, ok = strict.pickWinner("LOOKBRO", []models.Match{m})
	assert.False(t, ok)
}

// ── Resolve Tests ──

func TestResolveExactSymbol(t *testing.T) {
	srv, _ := newFixtureServer(t)
	r := newTestResolver(t, srv.URL, config.SearchConfig{}, nil)

	rows := r.Resolve(context.Background(), []string{"BTC"}, nil)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "BTC", row.Ticker)
	assert.Equal(t, "bitcoin", row.TokenID)
	assert.Equal(t, "Bitcoin", row.Name)
	assert.Equal(t, "https://www.coingecko.com/en/coins/bitcoin", row.Link)
	assert.True(t, row.Found)
	assert.False(t, row.FuzzyMatch)
	assert.Equal(t, "btc", row.MatchedTicker)
	assert.Equal(t, models.MatchExactSymbol, row.Strategy)
	assert.InDelta(t, 220.79, row.Score, 0.01)
}

func TestResolveKeepsInputOrder(t *testing.T) {
	srv, _ := newFixtureServer(t)
	r := newTestResolver(t, srv.URL, config.SearchConfig{}, nil)

	rows := r.Resolve(context.Background(), []string{"BTC", "XYZNOPE", "LOOKBRO"}, nil)
	require.Len(t, rows, 3)

	assert.Equal(t, "bitcoin", rows[0].TokenID)

	assert.Equal(t, "XYZNOPE", rows[1].Ticker)
	assert.False(t, rows[1].Found)
	assert.Empty(t, rows[1].TokenID)

	assert.Equal(t, "look-bro", rows[2].TokenID)
	assert.True(t, rows[2].FuzzyMatch)
	assert.Equal(t, models.MatchHyphenatedID, rows[2].Strategy)
	assert.Equal(t, "lkb", rows[2].MatchedTicker)
	assert.InDelta(t, 155.0, rows[2].Score, 0.01)
}

func TestResolveNormalizedTicker(t *testing.T) {
	srv, _ := newFixtureServer(t)
	r := newTestResolver(t, srv.URL, config.SearchConfig{}, nil)

	// kPEPE itself matches nothing; stripping the thousand-denominated
	// perp prefix resolves PEPE.
	rows := r.Resolve(context.Background(), []string{"kPEPE"}, nil)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "kPEPE", row.Ticker)
	assert.Equal(t, "pepe", row.TokenID)
	assert.True(t, row.Found)
	assert.True(t, row.FuzzyMatch)
	assert.Equal(t, "pepe", row.MatchedTicker)
	assert.Equal(t, models.MatchNormalized, row.Strategy)
	assert.InDelta(t, 196.02, row.Score, 0.01)
}

func TestResolveShortTickerGuard(t *testing.T) {
	srv, _ := newFixtureServer(t)
	r := newTestResolver(t, srv.URL, config.SearchConfig{}, nil)

	rows := r.Resolve(context.Background(), []string{"ABC", "ACE"}, nil)
	require.Len(t, rows, 2)

	// abc-chain's damped boundary hit has neither symbol nor id equal to
	// the ticker; too risky for a 3-char ticker.
	assert.False(t, rows[0].Found)

	// ace matches by exact id, which anchors the short ticker.
	assert.True(t, rows[1].Found)
	assert.Equal(t, "ace", rows[1].TokenID)
	assert.Equal(t, models.MatchExactID, rows[1].Strategy)
	assert.True(t, rows[1].FuzzyMatch)
}

func TestResolveOverrideSkipsSearch(t *testing.T) {
	srv, attempts := newFixtureServer(t)
	r := newTestResolver(t, srv.URL, config.SearchConfig{}, nil)

	rows := r.Resolve(context.Background(), []string{"BTC"}, map[string]string{"BTC": "wrapped-bitcoin"})
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "wrapped-bitcoin", row.TokenID)
	assert.True(t, row.Found)
	assert.False(t, row.FuzzyMatch)
	assert.Empty(t, row.MatchedTicker)
	assert.Equal(t, models.MatchOverride, row.Strategy)
	assert.Zero(t, row.Score)

	assert.Equal(t, int32(0), attempts.Load(), "overridden tickers never hit the API")
}

func TestResolveCommonMappingSkipsSearch(t *testing.T) {
	srv, attempts := newFixtureServer(t)
	r := newTestResolver(t, srv.URL, config.SearchConfig{}, nil)

	rows := r.Resolve(context.Background(), []string{"ZZZ", "zzz"}, nil)
	require.Len(t, rows, 2)

	for i, row := range rows {
		assert.Equal(t, "zzz-coin", row.TokenID, "row %d", i)
		assert.True(t, row.Found)
		assert.False(t, row.FuzzyMatch)
		assert.Equal(t, models.MatchCommonMapping, row.Strategy)
	}
	// The matched ticker echoes the caller's casing.
	assert.Equal(t, "ZZZ", rows[0].MatchedTicker)
	assert.Equal(t, "zzz", rows[1].MatchedTicker)

	assert.Equal(t, int32(0), attempts.Load(), "common tickers never hit the API")
}

func TestResolveSkipsBlankTickers(t *testing.T) {
	srv, attempts := newFixtureServer(t)
	r := newTestResolver(t, srv.URL, config.SearchConfig{}, nil)

	rows := r.Resolve(context.Background(), []string{" ", "$"}, nil)
	assert.Empty(t, rows)
	assert.Equal(t, int32(0), attempts.Load())
}

func TestResolveFuzzyThreshold(t *testing.T) {
	srv, _ := newFixtureServer(t)
	r := newTestResolver(t, srv.URL, config.SearchConfig{FuzzyThreshold: 500}, nil)

	rows := r.Resolve(context.Background(), []string{"LOOKBRO", "BTC"}, nil)
	require.Len(t, rows, 2)

	assert.False(t, rows[0].Found, "fuzzy match under threshold")
	assert.True(t, rows[1].Found, "exact symbol bypasses the threshold")
}

func TestResolveWithoutMarketData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/coins/list" {
			json.NewEncoder(w).Encode(testCoins)
			return
		}
		http.Error(w, "markets down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := newTestResolver(t, srv.URL, config.SearchConfig{}, nil)

	// Without caps both btc coins score 100; catalog order breaks the
	// tie in bitcoin's favor.
	rows := r.Resolve(context.Background(), []string{"BTC"}, nil)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Found)
	assert.Equal(t, "bitcoin", rows[0].TokenID)
	assert.InDelta(t, 100.0, rows[0].Score, 0.01)
}

// ── Search Tests ──

func TestSearchRanked(t *testing.T) {
	srv, _ := newFixtureServer(t)
	r := newTestResolver(t, srv.URL, config.SearchConfig{}, nil)
	ctx := context.Background()

	matches, err := r.Search(ctx, "BTC")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "bitcoin", matches[0].Coin.ID)
	assert.Equal(t, "batcat", matches[1].Coin.ID)

	matches, err = r.Search(ctx, "SOL")
	require.NoError(t, err)
	require.Len(t, matches, 1, "exact symbol shadows heuristic hits")
	assert.Equal(t, "solana", matches[0].Coin.ID)

	matches, err = r.Search(ctx, "XYZNOPE")
	require.NoError(t, err)
	assert.Empty(t, matches)

	_, err = r.Search(ctx, "  ")
	assert.Error(t, err)
}
