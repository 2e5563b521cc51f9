package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"backlab/internal/backtest"
)

// WriteTradesCSV 把成交日志写成 CSV。价格与数量用 decimal 定点
// 格式化，避免 %f 的二进制尾差污染导出文件。
func WriteTradesCSV(w io.Writer, trades []backtest.Trade) error {
	writer := csv.NewWriter(w)
	header := []string{"symbol", "side", "entry_time", "exit_time", "entry_price", "exit_price", "quantity", "pnl", "pnl_pct", "open"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, tr := range trades {
		exitTime := ""
		exitPrice := ""
		if !tr.Open {
			exitTime = formatMillis(tr.ExitTS)
			exitPrice = formatDecimal(tr.ExitPrice, 8)
		}
		row := []string{
			tr.Symbol,
			tr.Side,
			formatMillis(tr.EntryTS),
			exitTime,
			formatDecimal(tr.EntryPrice, 8),
			exitPrice,
			formatDecimal(tr.Quantity, 8),
			formatDecimal(tr.PnL, 8),
			formatDecimal(tr.PnLPct, 6),
			fmt.Sprintf("%t", tr.Open),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteEquityCSV 导出资金曲线。
func WriteEquityCSV(w io.Writer, curve backtest.EquityCurve) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"time", "equity", "drawdown"}); err != nil {
		return err
	}
	for _, p := range curve {
		row := []string{
			formatMillis(p.TS),
			formatDecimal(p.Equity, 8),
			formatDecimal(p.Drawdown, 6),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteSummaryCSV 导出一批回测结果的绩效汇总，一行一个组合。
func WriteSummaryCSV(w io.Writer, outcomes []backtest.Outcome) error {
	writer := csv.NewWriter(w)
	header := []string{"strategy", "symbol", "total_return", "sharpe", "sharpe_defined", "max_drawdown", "win_rate", "win_rate_defined", "trades", "wins", "losses", "open_trades", "final_equity"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, oc := range outcomes {
		rep := oc.Report
		row := []string{
			oc.Strategy,
			oc.Symbol,
			formatDecimal(rep.TotalReturn, 6),
			formatDecimal(rep.Sharpe, 4),
			fmt.Sprintf("%t", rep.SharpeDefined),
			formatDecimal(rep.MaxDrawdown, 6),
			formatDecimal(rep.WinRate, 4),
			fmt.Sprintf("%t", rep.WinRateDefined),
			fmt.Sprintf("%d", rep.TradeCount),
			fmt.Sprintf("%d", rep.Wins),
			fmt.Sprintf("%d", rep.Losses),
			fmt.Sprintf("%d", rep.OpenTrades),
			formatDecimal(rep.FinalEquity, 2),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatDecimal(v float64, places int32) string {
	return decimal.NewFromFloat(v).Round(places).String()
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
