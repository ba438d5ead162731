// Package config handles configuration loading for geckomap.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	CoinGecko CoinGeckoConfig `mapstructure:"coingecko" yaml:"coingecko"`
	Search    SearchConfig    `mapstructure:"search"    yaml:"search"`
	Catalog   CatalogConfig   `mapstructure:"catalog"   yaml:"catalog"`
	API       APIConfig       `mapstructure:"api"       yaml:"api"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
}

// CoinGeckoConfig holds the upstream CoinGecko API settings.
// When APIKey is set, requests go to the pro host with the
// x-cg-pro-api-key header; otherwise the public host is used.
type CoinGeckoConfig struct {
	BaseURL           string `mapstructure:"base_url"            yaml:"base_url"`
	ProBaseURL        string `mapstructure:"pro_base_url"        yaml:"pro_base_url"`
	APIKey            string `mapstructure:"api_key"             yaml:"api_key"`
	TimeoutSec        int    `mapstructure:"timeout_sec"         yaml:"timeout_sec"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	MaxRetries        int    `mapstructure:"max_retries"         yaml:"max_retries"`
}

// Timeout returns the per-request timeout as a duration.
func (c CoinGeckoConfig) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// Host returns the base URL to use, honoring the pro host when a key is set.
func (c CoinGeckoConfig) Host() string {
	if c.APIKey != "" && c.ProBaseURL != "" {
		return c.ProBaseURL
	}
	return c.BaseURL
}

// SearchConfig holds the ticker matching parameters.
type SearchConfig struct {
	// FuzzyThreshold is the minimum final score a fuzzy (non exact-symbol)
	// winner must reach; lower-scoring candidates produce no result.
	FuzzyThreshold float64 `mapstructure:"fuzzy_threshold" yaml:"fuzzy_threshold"`
	// MaxResults caps how many ranked candidates a search returns.
	MaxResults int `mapstructure:"max_results" yaml:"max_results"`
	// ShortTickerLen is the length at or below which a ticker is treated
	// as short: fuzzy base scores are halved and weak winners rejected.
	ShortTickerLen int `mapstructure:"short_ticker_len" yaml:"short_ticker_len"`
}

// CatalogConfig holds the coin catalog and mapping refresh settings.
type CatalogConfig struct {
	// MappingFile overrides the embedded ticker mapping when set.
	MappingFile string `mapstructure:"mapping_file" yaml:"mapping_file"`
	// CacheTTLSec is how long the fetched coin list stays valid. Seconds.
	CacheTTLSec int `mapstructure:"cache_ttl_sec" yaml:"cache_ttl_sec"`
	// TopCoins is how many coins (by market cap) a refresh covers.
	TopCoins int `mapstructure:"top_coins" yaml:"top_coins"`
	// PageSize is the per-page size for refresh pagination. CoinGecko
	// caps /coins/markets pages at 250.
	PageSize int `mapstructure:"page_size" yaml:"page_size"`
}

// CacheTTL returns the catalog cache TTL as a duration.
func (c CatalogConfig) CacheTTL() time.Duration {
	if c.CacheTTLSec <= 0 {
		return time.Hour
	}
	return time.Duration(c.CacheTTLSec) * time.Second
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// Addr returns the host:port listen address.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.geckomap/config.yaml (home directory)
//  3. /etc/geckomap/config.yaml (system)
//
// Environment variables override config file values.
// Format: GECKOMAP_<SECTION>_<KEY>, e.g., GECKOMAP_API_PORT
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".geckomap"))
	v.AddConfigPath("/etc/geckomap")

	v.SetEnvPrefix("GECKOMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found — that's fine, use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)

	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("GECKOMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// CoinGecko defaults
	v.SetDefault("coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coingecko.pro_base_url", "https://pro-api.coingecko.com/api/v3")
	v.SetDefault("coingecko.timeout_sec", 30)
	v.SetDefault("coingecko.requests_per_minute", 10) // free tier is ~10-30/min
	v.SetDefault("coingecko.max_retries", 3)

	// Search defaults
	v.SetDefault("search.fuzzy_threshold", 50.0)
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.short_ticker_len", 3)

	// Catalog defaults
	v.SetDefault("catalog.cache_ttl_sec", 3600) // 1 hour
	v.SetDefault("catalog.top_coins", 2000)
	v.SetDefault("catalog.page_size", 100)

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("GECKOMAP_COINGECKO_API_KEY"); key != "" {
		cfg.CoinGecko.APIKey = key
	}
	// CG_API_KEY is the name the original updater scripts used.
	if key := os.Getenv("CG_API_KEY"); key != "" && cfg.CoinGecko.APIKey == "" {
		cfg.CoinGecko.APIKey = key
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
