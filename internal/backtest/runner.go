package backtest

import (
	"context"
	"fmt"

	"backlab/internal/logger"
	"backlab/internal/market"
	"backlab/internal/strategy"

	"golang.org/x/sync/errgroup"
)

// Job 是批量评估中的一个单元：一个策略跑一个币种的数据。
type Job struct {
	Symbol    string
	Generator strategy.Generator
	Series    market.Series
}

// Outcome 汇总单个 Job 的推演结果。
type Outcome struct {
	Symbol   string
	Strategy string
	Curve    EquityCurve
	Trades   []Trade
	Report   MetricsReport
}

// EvaluateAll 并行推演一组 策略 x 币种 组合，结果顺序与 jobs 对应。
// 任一组合失败则整体失败。
func EvaluateAll(ctx context.Context, jobs []Job, initialCapital float64, barsPerYear float64, concurrency int) ([]Outcome, error) {
	if len(jobs) == 0 {
		return nil, nil
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	outcomes := make([]Outcome, len(jobs))
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			signals, err := job.Generator.Generate(job.Series)
			if err != nil {
				return fmt.Errorf("%s/%s generate: %w", job.Generator.Name(), job.Symbol, err)
			}
			curve, trades, err := Simulate(job.Series, signals, initialCapital)
			if err != nil {
				return fmt.Errorf("%s/%s simulate: %w", job.Generator.Name(), job.Symbol, err)
			}
			for t := range trades {
				trades[t].Symbol = job.Symbol
			}
			report, err := ComputeMetrics(curve, trades, barsPerYear)
			if err != nil {
				return fmt.Errorf("%s/%s metrics: %w", job.Generator.Name(), job.Symbol, err)
			}
			logger.Debugf("[backtest] %s/%s return=%.4f trades=%d", job.Generator.Name(), job.Symbol, report.TotalReturn, report.TradeCount)
			outcomes[i] = Outcome{
				Symbol:   job.Symbol,
				Strategy: job.Generator.Name(),
				Curve:    curve,
				Trades:   trades,
				Report:   report,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}
