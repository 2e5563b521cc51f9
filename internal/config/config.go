package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config 是进程级配置根。
type Config struct {
	App      AppConfig      `yaml:"app"`
	Data     DataConfig     `yaml:"data"`
	Source   SourceConfig   `yaml:"source"`
	Backtest BacktestConfig `yaml:"backtest"`
	HTTP     HTTPConfig     `yaml:"http"`
}

type AppConfig struct {
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

type DataConfig struct {
	CandleDir string `yaml:"candle_dir"`
	ResultDir string `yaml:"result_dir"`
}

// SourceConfig 选择 K 线数据源。
type SourceConfig struct {
	Provider    string        `yaml:"provider"` // binance / kraken / csvfile
	RESTBaseURL string        `yaml:"rest_base_url"`
	CSVDir      string        `yaml:"csv_dir"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

type BacktestConfig struct {
	StrategyFile   string   `yaml:"strategy_file"`
	Symbols        []string `yaml:"symbols"`
	TopPairs       int      `yaml:"top_pairs"`   // symbols 为空时按成交额发现前 N 个交易对
	QuoteAsset     string   `yaml:"quote_asset"` // 交易对发现用的报价货币
	Timeframe      string   `yaml:"timeframe"`
	StartTS        int64    `yaml:"start_ts"`
	EndTS          int64    `yaml:"end_ts"`
	InitialCapital float64  `yaml:"initial_capital"`
	BarsPerYear    float64  `yaml:"bars_per_year"` // 0 表示按执行周期推导
	Concurrency    int      `yaml:"concurrency"`
	SummaryCSV     string   `yaml:"summary_csv"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Load 读取 yaml 配置并应用默认值。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Data.CandleDir == "" {
		c.Data.CandleDir = "data/candles"
	}
	if c.Data.ResultDir == "" {
		c.Data.ResultDir = "data/results"
	}
	if c.Source.Provider == "" {
		c.Source.Provider = "binance"
	}
	if c.Source.HTTPTimeout <= 0 {
		c.Source.HTTPTimeout = 15 * time.Second
	}
	if c.Backtest.StrategyFile == "" {
		c.Backtest.StrategyFile = "configs/strategies.yaml"
	}
	if c.Backtest.Timeframe == "" {
		c.Backtest.Timeframe = "1h"
	}
	if c.Backtest.InitialCapital <= 0 {
		c.Backtest.InitialCapital = 10000
	}
	if c.Backtest.Concurrency <= 0 {
		c.Backtest.Concurrency = 4
	}
	if c.Backtest.QuoteAsset == "" {
		c.Backtest.QuoteAsset = "USDT"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":9991"
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Source.Provider) {
	case "binance", "kraken":
	case "csvfile":
		if c.Source.CSVDir == "" {
			return fmt.Errorf("source.csv_dir is required when provider is csvfile")
		}
	default:
		return fmt.Errorf("unsupported source provider %q", c.Source.Provider)
	}
	if c.Backtest.BarsPerYear < 0 {
		return fmt.Errorf("backtest.bars_per_year cannot be negative")
	}
	if !c.HTTP.Enabled {
		if len(c.Backtest.Symbols) == 0 && c.Backtest.TopPairs <= 0 {
			return fmt.Errorf("backtest.symbols or backtest.top_pairs is required in batch mode")
		}
		if c.Backtest.StartTS <= 0 || c.Backtest.EndTS <= c.Backtest.StartTS {
			return fmt.Errorf("backtest.start_ts/end_ts range invalid")
		}
	}
	return nil
}
