package backtest

import (
	"fmt"
	"math"

	"backlab/internal/market"
)

// ComputeMetrics 从资金曲线与成交日志计算绩效报告。
//
// 夏普使用逐根简单收益率的总体标准差，按 barsPerYear 年化；
// 收益率零方差时夏普不可定义（Sharpe=0, SharpeDefined=false）。
// 胜率只统计已平仓的成交，零平仓时同样标记为不可定义。
func ComputeMetrics(curve EquityCurve, trades []Trade, barsPerYear float64) (MetricsReport, error) {
	if len(curve) < 2 {
		return MetricsReport{}, fmt.Errorf("equity curve needs at least 2 points, got %d: %w", len(curve), market.ErrInsufficientData)
	}
	if barsPerYear <= 0 {
		return MetricsReport{}, fmt.Errorf("bars per year %v must be positive: %w", barsPerYear, market.ErrInvalidParameter)
	}

	first := curve[0].Equity
	last := curve[len(curve)-1].Equity
	report := MetricsReport{
		TotalReturn: last/first - 1,
		FinalEquity: last,
	}

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			return MetricsReport{}, fmt.Errorf("equity reached zero at index %d: %w", i-1, market.ErrInvalidData)
		}
		returns = append(returns, curve[i].Equity/prev-1)
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	if std := math.Sqrt(variance); std > 0 {
		report.Sharpe = mean / std * math.Sqrt(barsPerYear)
		report.SharpeDefined = true
	}

	maxDD := 0.0
	peak := curve[0].Equity
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if dd := p.Equity/peak - 1; dd < maxDD {
			maxDD = dd
		}
	}
	report.MaxDrawdown = maxDD

	for _, tr := range trades {
		if tr.Open {
			report.OpenTrades++
			continue
		}
		if tr.PnL > 0 {
			report.Wins++
		} else {
			report.Losses++
		}
	}
	report.TradeCount = len(trades)
	if closed := report.Wins + report.Losses; closed > 0 {
		report.WinRate = float64(report.Wins) / float64(closed)
		report.WinRateDefined = true
	}
	return report, nil
}
