// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rovshanmuradov/dashsync/internal/domain"
)

type Config struct {
	APIBaseURL     string        `mapstructure:"api_base_url"`
	MarketBaseURL  string        `mapstructure:"market_base_url"`
	PortfolioPath  string        `mapstructure:"portfolio_path"`
	TradesPath     string        `mapstructure:"trades_path"`
	PositionsPath  string        `mapstructure:"positions_path"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	TradeLimit     int           `mapstructure:"trade_limit"`
	RecentHours    int           `mapstructure:"recent_hours"`
	SignalLimit    int           `mapstructure:"signal_limit"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Retries        int           `mapstructure:"retries"`
	DefaultSymbols []string      `mapstructure:"default_symbols"`
	RecentSymbol   string        `mapstructure:"recent_symbol"`
	DebugLogging   bool          `mapstructure:"debug_logging"`
	LogFile        string        `mapstructure:"log_file"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`
	TracingHost    string        `mapstructure:"tracing_host"`
	TracingPort    int           `mapstructure:"tracing_port"`
}

const (
	DefaultAPIBaseURL     = "http://localhost:8000"
	DefaultMarketBaseURL  = "http://localhost:8000/api/market"
	DefaultPollInterval   = 30 * time.Second
	DefaultTradeLimit     = 20
	DefaultRecentHours    = 24
	DefaultSignalLimit    = 50
	DefaultRequestTimeout = 10 * time.Second
	DefaultRetries        = 2
	DefaultSymbolList     = "AAPL,MSFT,TSLA,GOOGL,AMZN"
	DefaultRecentSymbol   = "AAPL"
	DefaultLogFile        = "dashsync.log"

	// EnvPrefix prefixes every environment override, e.g. DASHSYNC_API_BASE_URL.
	EnvPrefix = "DASHSYNC"
)

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"api_base_url":    DefaultAPIBaseURL,
		"market_base_url": DefaultMarketBaseURL,
		"portfolio_path":  "/api/v1/portfolio",
		"trades_path":     "/api/v1/trades",
		"positions_path":  "/api/v1/positions",
		"poll_interval":   DefaultPollInterval,
		"trade_limit":     DefaultTradeLimit,
		"recent_hours":    DefaultRecentHours,
		"signal_limit":    DefaultSignalLimit,
		"request_timeout": DefaultRequestTimeout,
		"retries":         DefaultRetries,
		"default_symbols": DefaultSymbolList,
		"recent_symbol":   DefaultRecentSymbol,
		"debug_logging":   false,
		"log_file":        DefaultLogFile,
		"metrics_addr":    "",
		"tracing_host":    "",
		"tracing_port":    6831,
	}
}

// LoadConfig reads path (YAML, JSON or anything viper understands) and
// applies DASHSYNC_* environment overrides. An empty path means defaults
// plus environment only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	cfg.MarketBaseURL = strings.TrimRight(cfg.MarketBaseURL, "/")
	cfg.DefaultSymbols = normalizeList(cfg.DefaultSymbols)
	cfg.RecentSymbol = strings.ToUpper(strings.TrimSpace(cfg.RecentSymbol))

	return &cfg, validateConfig(&cfg)
}

// normalizeList accepts both a YAML list and a comma separated string
// that arrived as a single element.
func normalizeList(list []string) []string {
	return domain.ParseSymbols(strings.Join(list, ","))
}

func validateConfig(cfg *Config) error {
	if err := validateURL(cfg.APIBaseURL); err != nil {
		return fmt.Errorf("invalid api_base_url: %w", err)
	}
	if err := validateURL(cfg.MarketBaseURL); err != nil {
		return fmt.Errorf("invalid market_base_url: %w", err)
	}
	for key, path := range map[string]string{
		"portfolio_path": cfg.PortfolioPath,
		"trades_path":    cfg.TradesPath,
		"positions_path": cfg.PositionsPath,
	} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("%s must start with /", key)
		}
	}
	if len(cfg.DefaultSymbols) == 0 {
		return errors.New("default_symbols is empty")
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.PollInterval <= 0 {
		return errors.New("invalid poll_interval")
	}
	if cfg.RequestTimeout <= 0 {
		return errors.New("invalid request_timeout")
	}
	if cfg.TradeLimit <= 0 {
		return errors.New("invalid trade_limit")
	}
	if cfg.RecentHours <= 0 {
		return errors.New("invalid recent_hours")
	}
	if cfg.SignalLimit <= 0 {
		return errors.New("invalid signal_limit")
	}
	if cfg.Retries < 0 {
		return errors.New("invalid retries count")
	}
	if cfg.TracingHost != "" && (cfg.TracingPort <= 0 || cfg.TracingPort > 65535) {
		return errors.New("invalid tracing_port")
	}
	return nil
}

func validateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("invalid URL protocol")
	}
	if parsed.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// TracingEnabled reports whether a jaeger agent is configured.
func (c *Config) TracingEnabled() bool {
	return c.TracingHost != ""
}
