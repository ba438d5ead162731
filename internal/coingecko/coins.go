package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/geckomap/internal/infra"
	"github.com/seenimoa/geckomap/internal/logger"
	"github.com/seenimoa/geckomap/pkg/models"
)

// --- CoinGecko v3 API types ---

type cgPingResponse struct {
	GeckoSays string `json:"gecko_says"`
}

type cgListCoin struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

type cgMarketCoin struct {
	ID            string              `json:"id"`
	Symbol        string              `json:"symbol"`
	Name          string              `json:"name"`
	MarketCap     decimal.NullDecimal `json:"market_cap"`
	MarketCapRank int                 `json:"market_cap_rank"`
}

// --- Public methods ---

// Ping checks API reachability and returns the server greeting.
func (c *Client) Ping(ctx context.Context) (string, error) {
	if cached, ok := c.cache.Get(infra.KeyPing); ok {
		return cached.(string), nil
	}

	data, err := c.doGet(ctx, "/ping", nil)
	if err != nil {
		return "", fmt.Errorf("coingecko ping: %w", err)
	}

	var resp cgPingResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("parse ping response: %w", err)
	}

	c.cache.SetWithTTL(infra.KeyPing, resp.GeckoSays, time.Minute)
	return resp.GeckoSays, nil
}

// ListCoins returns the full coin catalog: every id/symbol/name CoinGecko
// knows about, without platform contract addresses. The list runs to tens
// of thousands of entries and changes slowly, so it is cached.
func (c *Client) ListCoins(ctx context.Context) ([]models.Coin, error) {
	if cached, ok := c.cache.Get(infra.KeyCoinList); ok {
		return cached.([]models.Coin), nil
	}

	query := url.Values{}
	query.Set("include_platform", "false")

	data, err := c.doGet(ctx, "/coins/list", query)
	if err != nil {
		return nil, fmt.Errorf("coingecko coins list: %w", err)
	}

	var raw []cgListCoin
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse coins list: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrEmptyResponse
	}

	coins := make([]models.Coin, 0, len(raw))
	for _, r := range raw {
		coins = append(coins, models.Coin{ID: r.ID, Symbol: r.Symbol, Name: r.Name})
	}

	logger.Info("fetched coin list", zap.Int("coins", len(coins)))
	c.cache.Set(infra.KeyCoinList, coins)
	return coins, nil
}

// MarketsPage returns one page of coins ordered by market cap descending.
// Page numbering starts at 1.
func (c *Client) MarketsPage(ctx context.Context, vsCurrency string, page, perPage int) ([]models.CoinMarket, error) {
	cacheKey := infra.KeyMarkets + "page:" + strconv.Itoa(page) + ":" + strconv.Itoa(perPage) + ":" + vsCurrency
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.([]models.CoinMarket), nil
	}

	query := url.Values{}
	query.Set("vs_currency", vsCurrency)
	query.Set("order", "market_cap_desc")
	query.Set("per_page", strconv.Itoa(perPage))
	query.Set("page", strconv.Itoa(page))
	query.Set("sparkline", "false")

	data, err := c.doGet(ctx, "/coins/markets", query)
	if err != nil {
		return nil, fmt.Errorf("coingecko markets page %d: %w", page, err)
	}

	var raw []cgMarketCoin
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse markets page %d: %w", page, err)
	}

	markets := make([]models.CoinMarket, 0, len(raw))
	for _, r := range raw {
		markets = append(markets, toMarket(r))
	}

	c.cache.SetWithTTL(cacheKey, markets, 5*time.Minute)
	return markets, nil
}

// MarketsByIDs returns market data for the given coin ids, keyed by id.
// Requests are batched at the API cap and fetched concurrently. Failed
// batches are skipped rather than failing the whole call: the result map
// holds whatever succeeded and the joined batch errors come back alongside.
func (c *Client) MarketsByIDs(ctx context.Context, vsCurrency string, ids []string) (map[string]models.CoinMarket, error) {
	if len(ids) == 0 {
		return map[string]models.CoinMarket{}, nil
	}

	var (
		mu     sync.Mutex
		result = make(map[string]models.CoinMarket, len(ids))
		errs   []error
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, batch := range chunkIDs(ids, MaxIDsPerPage) {
		batch := batch
		g.Go(func() error {
			query := url.Values{}
			query.Set("vs_currency", vsCurrency)
			query.Set("ids", strings.Join(batch, ","))
			query.Set("per_page", strconv.Itoa(len(batch)))
			query.Set("page", "1")
			query.Set("sparkline", "false")

			data, err := c.doGet(ctx, "/coins/markets", query)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("markets batch of %d: %w", len(batch), err))
				mu.Unlock()
				return nil
			}

			var raw []cgMarketCoin
			if err := json.Unmarshal(data, &raw); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("parse markets batch: %w", err))
				mu.Unlock()
				return nil
			}

			mu.Lock()
			for _, r := range raw {
				result[r.ID] = toMarket(r)
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}

	logger.Debug("fetched market caps",
		zap.Int("requested", len(ids)), zap.Int("returned", len(result)))
	return result, errors.Join(errs...)
}

// --- Helpers ---

func toMarket(r cgMarketCoin) models.CoinMarket {
	return models.CoinMarket{
		ID:            r.ID,
		Symbol:        r.Symbol,
		Name:          r.Name,
		MarketCap:     r.MarketCap,
		MarketCapRank: r.MarketCapRank,
	}
}

// chunkIDs splits ids into batches of at most size entries.
func chunkIDs(ids []string, size int) [][]string {
	var batches [][]string
	for len(ids) > size {
		batches = append(batches, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		batches = append(batches, ids)
	}
	return batches
}
