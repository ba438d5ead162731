package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seenimoa/geckomap/internal/coingecko"
	"github.com/seenimoa/geckomap/internal/infra"
	"github.com/seenimoa/geckomap/internal/logger"
	"github.com/seenimoa/geckomap/pkg/models"
)

// Progress reports mapping generation progress, page by page.
type Progress struct {
	Page    int  `json:"page"`
	Pages   int  `json:"pages"`
	Scanned int  `json:"scanned"`
	Mapped  int  `json:"mapped"`
	Done    bool `json:"done"`
}

// GenerateMapping rebuilds the common ticker mapping from the top coins
// by market cap and installs it as the active mapping. Pages arrive
// cap-descending, so when several coins share a symbol the first one
// seen owns the ticker. onProgress, when non-nil, fires after each page.
//
// Any page failure aborts the whole run: a partial mapping would quietly
// shadow tickers that belong to unfetched pages. Concurrent calls share
// a single generation.
func (c *Catalog) GenerateMapping(ctx context.Context, onProgress func(Progress)) (*models.Mapping, error) {
	v, err, _ := c.group.Do(infra.KeyMappingGen, func() (any, error) {
		topCoins := c.cfg.TopCoins
		if topCoins <= 0 {
			topCoins = 2000
		}
		pageSize := c.cfg.PageSize
		if pageSize <= 0 {
			pageSize = 100
		}
		if pageSize > coingecko.MaxIDsPerPage {
			pageSize = coingecko.MaxIDsPerPage
		}
		pages := (topCoins + pageSize - 1) / pageSize

		entries := make(map[string]string, topCoins)
		scanned := 0
		for page := 1; page <= pages; page++ {
			markets, err := c.client.MarketsPage(ctx, "usd", page, pageSize)
			if err != nil {
				return nil, fmt.Errorf("fetch page %d/%d: %w", page, pages, err)
			}

			for _, m := range markets {
				scanned++
				ticker := strings.ToUpper(m.Symbol)
				if ticker == "" || m.ID == "" {
					continue
				}
				if _, taken := entries[ticker]; taken {
					continue // a higher-cap coin already owns this ticker
				}
				entries[ticker] = m.ID
			}

			if onProgress != nil {
				onProgress(Progress{Page: page, Pages: pages, Scanned: scanned, Mapped: len(entries)})
			}
			logger.Debug("mapping page processed",
				zap.Int("page", page), zap.Int("pages", pages), zap.Int("mapped", len(entries)))

			if len(markets) < pageSize {
				break // catalog ran out of coins before topCoins
			}
		}

		if len(entries) == 0 {
			return nil, fmt.Errorf("mapping generation produced no entries")
		}

		m := &models.Mapping{
			GeneratedAt: time.Now().UTC(),
			Source:      "coingecko:/coins/markets",
			TopCoins:    topCoins,
			Entries:     entries,
		}
		c.adopt(m)

		if onProgress != nil {
			onProgress(Progress{Page: pages, Pages: pages, Scanned: scanned, Mapped: len(entries), Done: true})
		}
		logger.Info("generated ticker mapping",
			zap.Int("tickers", len(entries)), zap.Int("scanned", scanned))
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Mapping), nil
}
