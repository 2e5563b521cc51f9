package backtest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"backlab/internal/logger"
	"backlab/internal/market"
	"backlab/internal/strategy"

	"github.com/google/uuid"
)

// Simulate 把信号序列推演成资金曲线与成交记录。核心规则：
//
//   - 信号滞后一根执行：第 t 根收盘产生的信号在第 t+1 根开盘成交，
//     杜绝未来函数。
//   - 换向在同一根内原子完成：先按成交价平旧仓，再按同价开新仓。
//   - 仓位按成交时全部权益定价（qty = dir * equity / fill），
//     每根 K 线的权益 = cash + qty * close。
//   - 无手续费、无滑点（见设计非目标）。
//
// 输入只读；每次调用产生全新的曲线与成交日志。
func Simulate(series market.Series, signals []strategy.Signal, initialCapital float64) (EquityCurve, []Trade, error) {
	if series.Len() != len(signals) {
		return nil, nil, fmt.Errorf("series length %d != signals length %d: %w", series.Len(), len(signals), market.ErrInvalidData)
	}
	if initialCapital <= 0 {
		return nil, nil, fmt.Errorf("initial capital %v must be positive: %w", initialCapital, market.ErrInvalidParameter)
	}

	cash := initialCapital
	qty := 0.0
	dir := strategy.Flat
	var trades []Trade
	openIdx := -1

	curve := make(EquityCurve, 0, series.Len())
	peak := initialCapital

	for t := 0; t < series.Len(); t++ {
		bar := series.At(t)
		if t > 0 {
			target := signals[t-1]
			if target != dir {
				fill := bar.Open
				if openIdx >= 0 {
					// 平旧仓：现金吸收持仓市值，成交记录落账。
					cash += qty * fill
					tr := &trades[openIdx]
					tr.ExitTS = bar.OpenTime
					tr.ExitPrice = fill
					tr.PnL = qty * (fill - tr.EntryPrice)
					tr.PnLPct = tr.PnL / (absFloat(qty) * tr.EntryPrice)
					tr.Open = false
					openIdx = -1
					qty = 0
				}
				if target != strategy.Flat {
					equity := cash
					qty = target.Direction() * equity / fill
					cash = equity - qty*fill
					trades = append(trades, Trade{
						Side:       target.String(),
						EntryTS:    bar.OpenTime,
						EntryPrice: fill,
						Quantity:   qty,
						Open:       true,
					})
					openIdx = len(trades) - 1
				}
				dir = target
			}
		}
		equity := cash + qty*bar.Close
		if equity > peak {
			peak = equity
		}
		curve = append(curve, EquityPoint{
			TS:       bar.TS(),
			Equity:   equity,
			Drawdown: equity/peak - 1,
		})
	}

	// 收尾仍持有的仓位保留在日志中（Open=true），按最后收盘价
	// 记录浮动盈亏，不强制平仓。
	if openIdx >= 0 {
		last := series.At(series.Len() - 1)
		tr := &trades[openIdx]
		tr.PnL = qty * (last.Close - tr.EntryPrice)
		tr.PnLPct = tr.PnL / (absFloat(qty) * tr.EntryPrice)
	}
	return curve, trades, nil
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// SimulatorConfig 描述模拟服务依赖。
type SimulatorConfig struct {
	CandleStore   *Store
	Results       *ResultStore
	Registry      *strategy.Registry
	MaxConcurrent int
	BarsPerYear   float64 // 进程级年化根数覆盖，0 表示按周期推导
}

// Simulator 负责把历史 K 线 + 策略配置推演为持久化的回测结果。
type Simulator struct {
	store    *Store
	results  *ResultStore
	registry *strategy.Registry

	barsPerYear float64
	sem         chan struct{}
	baseCtx     context.Context
}

func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if cfg.CandleStore == nil {
		return nil, fmt.Errorf("candle store is required")
	}
	if cfg.Results == nil {
		return nil, fmt.Errorf("result store is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("strategy registry is required")
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if cfg.BarsPerYear < 0 {
		return nil, fmt.Errorf("bars per year %v cannot be negative", cfg.BarsPerYear)
	}
	return &Simulator{
		store:       cfg.CandleStore,
		results:     cfg.Results,
		registry:    cfg.Registry,
		barsPerYear: cfg.BarsPerYear,
		sem:         make(chan struct{}, maxConcurrent),
		baseCtx:     context.Background(),
	}, nil
}

func (s *Simulator) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

func (s *Simulator) ctx() context.Context {
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

// StartRun 创建回测任务并立即返回，模拟过程在后台进行。
func (s *Simulator) StartRun(req RunRequest) (Run, error) {
	if req.Symbol == "" {
		return Run{}, fmt.Errorf("symbol is required: %w", market.ErrInvalidParameter)
	}
	tf, err := ParseTimeframe(orDefault(req.Timeframe, "1h"))
	if err != nil {
		return Run{}, err
	}
	start, end := tf.AlignRange(req.StartTS, req.EndTS)
	if start <= 0 || end <= start {
		return Run{}, fmt.Errorf("start/end range invalid: %w", market.ErrInvalidParameter)
	}
	initialCapital := req.InitialCapital
	if initialCapital == 0 {
		initialCapital = 10000
	}
	if initialCapital <= 0 {
		return Run{}, fmt.Errorf("initial capital %v must be positive: %w", initialCapital, market.ErrInvalidParameter)
	}
	params, err := s.registry.Params(req.Strategy)
	if err != nil {
		return Run{}, err
	}
	// 参数此刻就校验，坏配置直接拒绝而不是留到后台失败。
	if _, err := strategy.New(req.Strategy, params); err != nil {
		return Run{}, err
	}
	// 年化根数优先级：请求 > 进程级配置 > 周期推导。
	barsPerYear := req.BarsPerYear
	if barsPerYear == 0 {
		barsPerYear = s.barsPerYear
	}
	if barsPerYear == 0 {
		barsPerYear = tf.BarsPerYear()
	}
	if barsPerYear < 0 {
		return Run{}, fmt.Errorf("bars_per_year %v must be positive: %w", barsPerYear, market.ErrInvalidParameter)
	}

	cfg := RunConfig{
		Strategy:       req.Strategy,
		Params:         params,
		Symbol:         strings.ToUpper(req.Symbol),
		Timeframe:      tf.Key,
		StartTS:        start,
		EndTS:          end,
		InitialCapital: initialCapital,
		BarsPerYear:    barsPerYear,
	}
	run := Run{
		ID:             uuid.NewString(),
		Symbol:         cfg.Symbol,
		Strategy:       cfg.Strategy,
		Timeframe:      cfg.Timeframe,
		Status:         RunStatusPending,
		StartTS:        start,
		EndTS:          end,
		InitialCapital: initialCapital,
		FinalEquity:    initialCapital,
		Config:         cfg,
	}
	if err := s.results.InsertRun(s.ctx(), run); err != nil {
		return Run{}, err
	}
	go s.runLoop(run.ID, cfg)
	return run, nil
}

func (s *Simulator) runLoop(runID string, cfg RunConfig) {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	ctx := s.ctx()
	_ = s.results.UpdateRunStatus(ctx, runID, RunStatusRunning, "loading candles")
	if err := s.execute(ctx, runID, cfg); err != nil {
		logger.Warnf("[backtest] run %s failed: %v", runID, err)
		_ = s.results.UpdateRunStatus(ctx, runID, RunStatusFailed, err.Error())
	}
}

func (s *Simulator) execute(ctx context.Context, runID string, cfg RunConfig) error {
	candles, err := s.store.RangeCandles(ctx, cfg.Symbol, cfg.Timeframe, cfg.StartTS, cfg.EndTS)
	if err != nil {
		return err
	}
	series, err := market.NewSeries(market.Clean(candles))
	if err != nil {
		return err
	}
	gen, err := strategy.New(cfg.Strategy, cfg.Params)
	if err != nil {
		return err
	}
	signals, err := gen.Generate(series)
	if err != nil {
		return err
	}
	curve, trades, err := Simulate(series, signals, cfg.InitialCapital)
	if err != nil {
		return err
	}
	for i := range trades {
		trades[i].Symbol = cfg.Symbol
	}
	report, err := ComputeMetrics(curve, trades, cfg.BarsPerYear)
	if err != nil {
		return err
	}
	if err := s.results.SaveOutcome(ctx, runID, curve, trades, report); err != nil {
		return err
	}
	logger.Infof("[backtest] run %s done: return=%.4f sharpe=%.2f maxdd=%.4f trades=%d",
		runID, report.TotalReturn, report.Sharpe, report.MaxDrawdown, report.TradeCount)
	return s.results.UpdateRunStatus(ctx, runID, RunStatusDone, fmt.Sprintf("completed at %s", time.Now().UTC().Format(time.RFC3339)))
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
