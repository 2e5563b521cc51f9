package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"backlab/internal/backtest"
	"backlab/internal/config"
	"backlab/internal/gateway/binance"
	"backlab/internal/gateway/csvfile"
	"backlab/internal/gateway/kraken"
	"backlab/internal/logger"
	"backlab/internal/market"
	"backlab/internal/report"
	"backlab/internal/strategy"
)

// App 组装全部依赖：数据源、K 线缓存、策略注册表、模拟器与出口。
type App struct {
	cfg      *config.Config
	store    *backtest.Store
	results  *backtest.ResultStore
	registry *strategy.Registry
	source   backtest.CandleSource
	sim      *backtest.Simulator
}

func New(cfg *config.Config) (*App, error) {
	store, err := backtest.NewStore(cfg.Data.CandleDir)
	if err != nil {
		return nil, fmt.Errorf("init candle store: %w", err)
	}
	results, err := backtest.NewResultStore(cfg.Data.ResultDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("init result store: %w", err)
	}
	registry, err := strategy.NewRegistry(cfg.Backtest.StrategyFile)
	if err != nil {
		store.Close()
		results.Close()
		return nil, fmt.Errorf("init strategy registry: %w", err)
	}
	source, err := newSource(cfg.Source)
	if err != nil {
		store.Close()
		results.Close()
		return nil, err
	}
	sim, err := backtest.NewSimulator(backtest.SimulatorConfig{
		CandleStore:   store,
		Results:       results,
		Registry:      registry,
		MaxConcurrent: cfg.Backtest.Concurrency,
		BarsPerYear:   cfg.Backtest.BarsPerYear,
	})
	if err != nil {
		store.Close()
		results.Close()
		return nil, err
	}
	return &App{
		cfg:      cfg,
		store:    store,
		results:  results,
		registry: registry,
		source:   source,
		sim:      sim,
	}, nil
}

func newSource(cfg config.SourceConfig) (backtest.CandleSource, error) {
	switch strings.ToLower(cfg.Provider) {
	case "binance":
		return binance.New(binance.Config{RESTBaseURL: cfg.RESTBaseURL, HTTPTimeout: cfg.HTTPTimeout}), nil
	case "kraken":
		return kraken.New(kraken.Config{BaseURL: cfg.RESTBaseURL, HTTPTimeout: cfg.HTTPTimeout}), nil
	case "csvfile":
		return csvfile.New(cfg.CSVDir)
	default:
		return nil, fmt.Errorf("unsupported source provider %q", cfg.Provider)
	}
}

func (a *App) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.results != nil {
		_ = a.results.Close()
	}
}

// Run 根据配置进入 HTTP 服务模式或批量评估模式。
func (a *App) Run(ctx context.Context) error {
	a.sim.SetContext(ctx)
	if a.cfg.HTTP.Enabled {
		return a.serveHTTP(ctx)
	}
	return a.runBatch(ctx)
}

func (a *App) serveHTTP(ctx context.Context) error {
	srv, err := backtest.NewHTTPServer(backtest.HTTPConfig{
		Addr:      a.cfg.HTTP.Addr,
		Simulator: a.sim,
		Results:   a.results,
		Store:     a.store,
		Registry:  a.registry,
		Charts:    report.NewRenderer(),
	})
	if err != nil {
		return err
	}
	logger.Infof("[app] http server listening on %s", a.cfg.HTTP.Addr)
	return srv.Start(ctx)
}

// runBatch 对配置的 策略 x 币种 组合做一轮全量评估并导出汇总。
func (a *App) runBatch(ctx context.Context) error {
	bt := a.cfg.Backtest
	tf, err := backtest.ParseTimeframe(bt.Timeframe)
	if err != nil {
		return err
	}
	start, end := tf.AlignRange(bt.StartTS, bt.EndTS)

	generators, err := a.registry.Generators()
	if err != nil {
		return err
	}
	if len(generators) == 0 {
		return fmt.Errorf("no enabled strategies in %s", bt.StrategyFile)
	}

	symbols, err := a.resolveSymbols(ctx)
	if err != nil {
		return err
	}

	seriesBySymbol := make(map[string]market.Series, len(symbols))
	for _, symbol := range symbols {
		if err := a.store.EnsureRange(ctx, a.source, symbol, tf, start, end); err != nil {
			return err
		}
		candles, err := a.store.RangeCandles(ctx, symbol, tf.Key, start, end)
		if err != nil {
			return err
		}
		series, err := market.NewSeries(market.Clean(candles))
		if err != nil {
			return fmt.Errorf("%s: %w", symbol, err)
		}
		seriesBySymbol[symbol] = series
	}

	var jobs []backtest.Job
	for _, gen := range generators {
		for _, symbol := range symbols {
			jobs = append(jobs, backtest.Job{
				Symbol:    symbol,
				Generator: gen,
				Series:    seriesBySymbol[symbol],
			})
		}
	}
	barsPerYear := bt.BarsPerYear
	if barsPerYear <= 0 {
		barsPerYear = tf.BarsPerYear()
	}
	outcomes, err := backtest.EvaluateAll(ctx, jobs, bt.InitialCapital, barsPerYear, bt.Concurrency)
	if err != nil {
		return err
	}

	renderer := report.NewRenderer()
	for _, oc := range outcomes {
		logger.Infof("[app] %s/%s return=%.4f maxdd=%.4f trades=%d",
			oc.Strategy, oc.Symbol, oc.Report.TotalReturn, oc.Report.MaxDrawdown, oc.Report.TradeCount)
		dir := filepath.Join(a.cfg.Data.ResultDir, "reports", fmt.Sprintf("%s_%s", oc.Strategy, oc.Symbol))
		if err := renderer.ExportOutcome(ctx, dir, tf.Key, oc); err != nil {
			return err
		}
	}
	if bt.SummaryCSV != "" {
		if err := writeSummary(bt.SummaryCSV, outcomes); err != nil {
			return err
		}
		logger.Infof("[app] summary written to %s", bt.SummaryCSV)
	}
	return nil
}

// resolveSymbols 返回本轮评估的交易对列表。显式配置优先；为空时
// 按 24 小时成交额从数据源发现前 top_pairs 个报价货币交易对。
func (a *App) resolveSymbols(ctx context.Context) ([]string, error) {
	bt := a.cfg.Backtest
	if len(bt.Symbols) > 0 {
		out := make([]string, 0, len(bt.Symbols))
		for _, symbol := range bt.Symbols {
			out = append(out, strings.ToUpper(strings.TrimSpace(symbol)))
		}
		return out, nil
	}
	lister, ok := a.source.(backtest.PairLister)
	if !ok {
		return nil, fmt.Errorf("source %q cannot discover pairs, set backtest.symbols", a.cfg.Source.Provider)
	}
	symbols, err := lister.TopLiquidPairs(ctx, bt.QuoteAsset, bt.TopPairs)
	if err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no %s pairs discovered on %s", bt.QuoteAsset, a.cfg.Source.Provider)
	}
	logger.Infof("[app] discovered %d %s pairs by 24h volume", len(symbols), bt.QuoteAsset)
	return symbols, nil
}

func writeSummary(path string, outcomes []backtest.Outcome) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return report.WriteSummaryCSV(f, outcomes)
}
