package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backlab/internal/backtest"
)

func TestWriteTradesCSV(t *testing.T) {
	trades := []backtest.Trade{
		{
			Symbol: "BTCUSDT", Side: "long",
			EntryTS: 1_700_000_000_000, ExitTS: 1_700_003_600_000,
			EntryPrice: 35000.5, ExitPrice: 35420.25,
			Quantity: 0.28571, PnL: 119.94, PnLPct: 0.012,
		},
		{
			Symbol: "BTCUSDT", Side: "short",
			EntryTS: 1_700_003_600_000, EntryPrice: 35420.25,
			Quantity: -0.28232, PnL: -42.1, PnLPct: -0.0042, Open: true,
		},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteTradesCSV(&buf, trades))

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"symbol", "side", "entry_time", "exit_time", "entry_price", "exit_price", "quantity", "pnl", "pnl_pct", "open"}, rows[0])

	closed := rows[1]
	assert.Equal(t, "long", closed[1])
	assert.Equal(t, "35000.5", closed[4])
	assert.Equal(t, "35420.25", closed[5])
	assert.Equal(t, "false", closed[9])

	open := rows[2]
	assert.Equal(t, "short", open[1])
	// 未平仓成交不输出离场时间和价格。
	assert.Equal(t, "", open[3])
	assert.Equal(t, "", open[5])
	assert.Equal(t, "true", open[9])
}

func TestWriteEquityCSV(t *testing.T) {
	curve := backtest.EquityCurve{
		{TS: 1_700_000_000_000, Equity: 10000, Drawdown: 0},
		{TS: 1_700_003_600_000, Equity: 9800, Drawdown: -0.02},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteEquityCSV(&buf, curve))

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "10000", rows[1][1])
	assert.Equal(t, "-0.02", rows[2][2])
}

func TestWriteSummaryCSV(t *testing.T) {
	outcomes := []backtest.Outcome{
		{
			Strategy: "sma_cross", Symbol: "BTCUSDT",
			Report: backtest.MetricsReport{
				TotalReturn: 0.125, Sharpe: 1.75, SharpeDefined: true,
				MaxDrawdown: -0.08, WinRate: 0.6, WinRateDefined: true,
				TradeCount: 10, Wins: 6, Losses: 4, FinalEquity: 11250,
			},
		},
		{
			Strategy: "vwap_reversion", Symbol: "ETHUSDT",
			Report: backtest.MetricsReport{TradeCount: 0, FinalEquity: 10000},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteSummaryCSV(&buf, outcomes))

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "sma_cross", rows[1][0])
	assert.Equal(t, "0.125", rows[1][2])
	assert.Equal(t, "true", rows[1][4])
	// 零成交组合的胜率标记为未定义。
	assert.Equal(t, "false", rows[2][7])
	assert.Equal(t, "0", rows[2][8])
}
