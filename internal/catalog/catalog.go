// Package catalog maintains the in-memory coin data the resolver works
// from: a curated common ticker mapping answered without any API call,
// and a cached snapshot of the full CoinGecko coin list indexed for
// symbol and id lookups.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/seenimoa/geckomap/internal/coingecko"
	"github.com/seenimoa/geckomap/internal/config"
	"github.com/seenimoa/geckomap/internal/logger"
	"github.com/seenimoa/geckomap/pkg/models"
)

// Snapshot is an immutable point-in-time index of the full coin list.
// Once built it is never mutated; a refresh swaps in a new Snapshot.
type Snapshot struct {
	Coins     []models.Coin
	FetchedAt time.Time

	bySymbol map[string][]models.Coin
	byID     map[string]models.Coin
}

// SymbolMatches returns every coin whose symbol equals ticker, compared
// case-insensitively. CoinGecko symbols are not unique: dozens of coins
// can share one.
func (s *Snapshot) SymbolMatches(ticker string) []models.Coin {
	return s.bySymbol[strings.ToUpper(ticker)]
}

// Coin returns the coin with the given catalog id.
func (s *Snapshot) Coin(id string) (models.Coin, bool) {
	c, ok := s.byID[id]
	return c, ok
}

// Len returns the number of coins in the snapshot.
func (s *Snapshot) Len() int { return len(s.Coins) }

// Catalog owns the common ticker mapping and the coin list snapshot.
// Both are replaced wholesale, never mutated in place, so readers can
// hold results across requests without locking.
type Catalog struct {
	client *coingecko.Client
	cfg    config.CatalogConfig

	mu       sync.RWMutex
	snapshot *Snapshot
	mapping  *models.Mapping
	common   map[string]string // upper-case ticker → coin id

	group singleflight.Group
}

// New creates a catalog with the common mapping loaded: from
// cfg.MappingFile when set, otherwise the embedded default.
func New(client *coingecko.Client, cfg config.CatalogConfig) (*Catalog, error) {
	m, err := LoadMapping(cfg.MappingFile)
	if err != nil {
		return nil, fmt.Errorf("load ticker mapping: %w", err)
	}

	c := &Catalog{client: client, cfg: cfg}
	c.adopt(m)
	logger.Info("loaded ticker mapping",
		zap.Int("tickers", m.Len()), zap.String("source", m.Source))
	return c, nil
}

// adopt installs a mapping as the active common mapping.
func (c *Catalog) adopt(m *models.Mapping) {
	common := make(map[string]string, len(m.Entries))
	for ticker, id := range m.Entries {
		common[strings.ToUpper(ticker)] = id
	}

	c.mu.Lock()
	c.mapping = m
	c.common = common
	c.mu.Unlock()
}

// CommonID answers a ticker from the common mapping without touching the
// API. Lookup is case-insensitive.
func (c *Catalog) CommonID(ticker string) (string, bool) {
	c.mu.RLock()
	id, ok := c.common[strings.ToUpper(ticker)]
	c.mu.RUnlock()
	return id, ok
}

// Snapshot returns the current coin list snapshot, fetching it when
// missing or older than the configured TTL. Concurrent callers share a
// single fetch. When a refresh fails but an older snapshot exists, the
// stale snapshot is returned and the failure logged: slightly old
// catalog data still answers searches, nothing does not.
func (c *Catalog) Snapshot(ctx context.Context) (*Snapshot, error) {
	c.mu.RLock()
	snap := c.snapshot
	c.mu.RUnlock()
	if snap != nil && time.Since(snap.FetchedAt) < c.cfg.CacheTTL() {
		return snap, nil
	}

	v, err, _ := c.group.Do("coins_snapshot", func() (any, error) {
		c.mu.RLock()
		cur := c.snapshot
		c.mu.RUnlock()
		if cur != nil && time.Since(cur.FetchedAt) < c.cfg.CacheTTL() {
			return cur, nil
		}

		coins, err := c.client.ListCoins(ctx)
		if err != nil {
			if cur != nil {
				logger.Warn("coin list refresh failed, serving stale snapshot",
					zap.Error(err), zap.Time("fetched_at", cur.FetchedAt))
				return cur, nil
			}
			return nil, err
		}

		fresh := NewSnapshot(coins)
		c.mu.Lock()
		c.snapshot = fresh
		c.mu.Unlock()
		logger.Info("built coin snapshot", zap.Int("coins", fresh.Len()))
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// Warm pre-fetches the snapshot so the first search does not pay for the
// coin list download.
func (c *Catalog) Warm(ctx context.Context) error {
	_, err := c.Snapshot(ctx)
	return err
}

// NewSnapshot indexes a coin list for lookups. FetchedAt is set to now.
func NewSnapshot(coins []models.Coin) *Snapshot {
	bySymbol := make(map[string][]models.Coin)
	byID := make(map[string]models.Coin, len(coins))
	for _, coin := range coins {
		sym := strings.ToUpper(coin.Symbol)
		bySymbol[sym] = append(bySymbol[sym], coin)
		byID[coin.ID] = coin
	}
	return &Snapshot{
		Coins:     coins,
		FetchedAt: time.Now(),
		bySymbol:  bySymbol,
		byID:      byID,
	}
}

// Stats describes the catalog state for the status endpoint.
type Stats struct {
	CommonTickers      int       `json:"common_tickers"`
	MappingSource      string    `json:"mapping_source,omitempty"`
	MappingGeneratedAt time.Time `json:"mapping_generated_at"`
	MappingTopCoins    int       `json:"mapping_top_coins"`
	SnapshotCoins      int       `json:"snapshot_coins"`
	SnapshotAgeSec     int       `json:"snapshot_age_sec"`
}

// Stats reports mapping and snapshot counters.
func (c *Catalog) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{CommonTickers: len(c.common)}
	if c.mapping != nil {
		s.MappingSource = c.mapping.Source
		s.MappingGeneratedAt = c.mapping.GeneratedAt
		s.MappingTopCoins = c.mapping.TopCoins
	}
	if c.snapshot != nil {
		s.SnapshotCoins = c.snapshot.Len()
		s.SnapshotAgeSec = int(time.Since(c.snapshot.FetchedAt).Seconds())
	}
	return s
}
