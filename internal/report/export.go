package report

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"backlab/internal/backtest"
	"backlab/internal/logger"
)

// ExportOutcome 把单个 策略 x 币种 组合的回测产出落盘到 dir：
// trades.csv、equity.csv 和一张 equity.png 快照。PNG 依赖无头浏览器，
// 环境缺失时降级为仅 CSV 并记录告警。
func (r *Renderer) ExportOutcome(ctx context.Context, dir, timeframe string, oc backtest.Outcome) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, "trades.csv"), func(w io.Writer) error {
		return WriteTradesCSV(w, oc.Trades)
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, "equity.csv"), func(w io.Writer) error {
		return WriteEquityCSV(w, oc.Curve)
	}); err != nil {
		return err
	}

	run := backtest.Run{
		Symbol:    oc.Symbol,
		Strategy:  oc.Strategy,
		Timeframe: timeframe,
		Report:    oc.Report,
	}
	png, err := r.EquityPNG(ctx, run, oc.Curve)
	if err != nil {
		logger.Warnf("[report] equity png for %s/%s skipped: %v", oc.Strategy, oc.Symbol, err)
		return nil
	}
	return os.WriteFile(filepath.Join(dir, "equity.png"), png, 0o644)
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
