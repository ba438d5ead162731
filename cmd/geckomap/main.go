// geckomap — map exchange tickers to CoinGecko catalog IDs.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/seenimoa/geckomap/api"
	"github.com/seenimoa/geckomap/internal/catalog"
	"github.com/seenimoa/geckomap/internal/coingecko"
	"github.com/seenimoa/geckomap/internal/config"
	"github.com/seenimoa/geckomap/internal/logger"
	"github.com/seenimoa/geckomap/internal/resolver"
	"github.com/seenimoa/geckomap/pkg/models"
	"github.com/seenimoa/geckomap/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "geckomap",
	Short: "geckomap — map exchange tickers to CoinGecko catalog IDs",
	Long: `geckomap resolves free-form exchange tickers ("BTC", "kPEPE") to
CoinGecko catalog IDs ("bitcoin", "pepe") using a bundled common-ticker
mapping and best-effort search over the live coin catalog, ranked by
match strength and market capitalization.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real environment variables win over it.
		_ = godotenv.Load()

		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		level := cfg.Logging.Level
		if override, _ := cmd.Flags().GetString("log-level"); override != "" {
			level = override
		}
		logger.Init(level, cfg.Logging.Format)

		api.Version = version
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(statusCmd)
}

// newResolver builds the client/catalog/resolver stack for one-shot
// commands.
func newResolver() (*resolver.Resolver, error) {
	client := coingecko.NewClient(cfg.CoinGecko)
	cat, err := catalog.New(client, cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return resolver.New(cat, client, cfg.Search), nil
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("geckomap %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Serve Command ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := api.NewServer(cfg)
		if err != nil {
			return fmt.Errorf("server setup failed: %w", err)
		}
		if noUI, _ := cmd.Flags().GetBool("no-ui"); noUI {
			srv.SetServeUI(false)
		}

		fmt.Printf("🦎 geckomap listening on %s\n", cfg.API.Addr())
		return srv.ListenAndServe(cfg.API.Addr())
	},
}

func init() {
	serveCmd.Flags().Bool("no-ui", false, "disable the embedded web UI")
}

// --- Resolve Command ---

var resolveCmd = &cobra.Command{
	Use:   "resolve [tickers...]",
	Short: "Resolve tickers to CoinGecko catalog IDs",
	Long: `Resolve one or more tickers to CoinGecko catalog IDs.

Examples:
  geckomap resolve BTC ETH SOL
  geckomap resolve "BTC, kPEPE" --override kPEPE:pepe
  geckomap resolve BTC --format csv > mapping.csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tickers := utils.SplitTickers(strings.Join(args, ","))
		if len(tickers) == 0 {
			return fmt.Errorf("no tickers given")
		}

		overrideFlags, _ := cmd.Flags().GetStringArray("override")
		overrides := utils.ParseOverrides(strings.Join(overrideFlags, ","))

		res, err := newResolver()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		rows := res.Resolve(ctx, tickers, overrides)

		format, _ := cmd.Flags().GetString("format")
		return writeRows(os.Stdout, rows, format)
	},
}

func init() {
	resolveCmd.Flags().String("format", "text", "output format: text, json or csv")
	resolveCmd.Flags().StringArray("override", nil, "manual override TICKER:coingecko-id (repeatable)")
}

// writeRows prints resolution rows in the requested format.
func writeRows(w io.Writer, rows []models.Resolution, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "csv":
		cw := csv.NewWriter(w)
		if err := cw.Write(models.ResolutionCSVHeader); err != nil {
			return err
		}
		for _, row := range rows {
			if err := cw.Write(row.CSVRow()); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	case "text":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TICKER\tTOKEN ID\tNAME\tSTRATEGY\tFUZZY")
		for _, row := range rows {
			if !row.Found {
				fmt.Fprintf(tw, "%s\t—\t\t\t\n", row.Ticker)
				continue
			}
			fuzzy := ""
			if row.FuzzyMatch {
				fuzzy = "yes"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				row.Ticker, row.TokenID, row.Name, row.Strategy, fuzzy)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown format %q (want text, json or csv)", format)
	}
}

// --- Refresh Command ---

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Regenerate the common ticker mapping from CoinGecko",
	Long: `Rebuild the common ticker mapping from the top coins by market cap
and write it to a JSON file. Any upstream failure aborts the run; a
partial mapping would silently shadow tickers from unfetched pages.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if top, _ := cmd.Flags().GetInt("top"); top > 0 {
			cfg.Catalog.TopCoins = top
		}
		if pageSize, _ := cmd.Flags().GetInt("page-size"); pageSize > 0 {
			cfg.Catalog.PageSize = pageSize
		}

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = cfg.Catalog.MappingFile
		}
		if out == "" {
			out = "mapping.json"
		}

		client := coingecko.NewClient(cfg.CoinGecko)
		cat, err := catalog.New(client, cfg.Catalog)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
		defer cancel()

		fmt.Printf("🦎 Refreshing mapping from the top %d coins...\n", cfg.Catalog.TopCoins)
		m, err := cat.GenerateMapping(ctx, func(p catalog.Progress) {
			if p.Done {
				return
			}
			fmt.Printf("   page %d/%d — %d coins scanned, %d tickers mapped\n",
				p.Page, p.Pages, p.Scanned, p.Mapped)
		})
		if err != nil {
			return fmt.Errorf("mapping refresh failed: %w", err)
		}

		if err := catalog.WriteMapping(m, out); err != nil {
			return fmt.Errorf("write mapping: %w", err)
		}

		fmt.Printf("✅ %d tickers written to %s\n", m.Len(), out)
		return nil
	},
}

func init() {
	refreshCmd.Flags().String("out", "", "output file (default: configured mapping file, else mapping.json)")
	refreshCmd.Flags().Int("top", 0, "number of top coins to scan (default from config)")
	refreshCmd.Flags().Int("page-size", 0, "coins per page (default from config)")
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show upstream and catalog status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := coingecko.NewClient(cfg.CoinGecko)
		cat, err := catalog.New(client, cfg.Catalog)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  geckomap — Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:   %s (%s)\n", version, commit)

		if says, err := client.Ping(ctx); err != nil {
			fmt.Printf("  Upstream:  ❌ unreachable (%v)\n", err)
		} else {
			fmt.Printf("  Upstream:  ✅ %s\n", says)
		}
		fmt.Printf("  API Host:  %s\n", cfg.CoinGecko.Host())
		fmt.Println()

		stats := cat.Stats()
		fmt.Println("  Catalog:")
		fmt.Printf("    Common tickers:  %d\n", stats.CommonTickers)
		fmt.Printf("    Mapping source:  %s\n", stats.MappingSource)
		fmt.Printf("    Generated:       %s (top %d coins)\n",
			stats.MappingGeneratedAt.Format(time.RFC3339), stats.MappingTopCoins)
		fmt.Println()

		fmt.Println("  API Keys:")
		for _, k := range cfg.CheckAPIKeys() {
			status := "❌ not set (using public host)"
			if k.Configured {
				status = fmt.Sprintf("✅ set (%s)", k.Masked)
			}
			fmt.Printf("    %-20s %s\n", k.Name+":", status)
		}

		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}
