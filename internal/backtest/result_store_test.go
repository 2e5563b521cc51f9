package backtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRun(id string) Run {
	cfg := RunConfig{
		Strategy:       "sma_cross",
		Params:         map[string]any{"short_window": float64(5)},
		Symbol:         "BTCUSDT",
		Timeframe:      "1h",
		StartTS:        hourMs,
		EndTS:          100 * hourMs,
		InitialCapital: 10_000,
		BarsPerYear:    8760,
	}
	return Run{
		ID:             id,
		Symbol:         cfg.Symbol,
		Strategy:       cfg.Strategy,
		Timeframe:      cfg.Timeframe,
		Status:         RunStatusPending,
		StartTS:        cfg.StartTS,
		EndTS:          cfg.EndTS,
		InitialCapital: cfg.InitialCapital,
		FinalEquity:    cfg.InitialCapital,
		Config:         cfg,
	}
}

func TestResultStoreRunLifecycle(t *testing.T) {
	rs, err := NewResultStore(t.TempDir())
	require.NoError(t, err)
	defer rs.Close()
	ctx := context.Background()

	run := newTestRun("run-1")
	require.NoError(t, rs.InsertRun(ctx, run))

	got, err := rs.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusPending, got.Status)
	assert.Equal(t, "BTCUSDT", got.Symbol)
	assert.Equal(t, "sma_cross", got.Config.Strategy)
	assert.InDelta(t, 10_000, got.InitialCapital, 1e-9)

	require.NoError(t, rs.UpdateRunStatus(ctx, "run-1", RunStatusRunning, "loading candles"))
	got, err = rs.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, got.Status)
	assert.True(t, got.CompletedAt.IsZero())

	require.NoError(t, rs.UpdateRunStatus(ctx, "run-1", RunStatusDone, "completed"))
	got, err = rs.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusDone, got.Status)
	assert.False(t, got.CompletedAt.IsZero())
}

func TestResultStoreSaveOutcome(t *testing.T) {
	rs, err := NewResultStore(t.TempDir())
	require.NoError(t, err)
	defer rs.Close()
	ctx := context.Background()

	require.NoError(t, rs.InsertRun(ctx, newTestRun("run-2")))

	curve := EquityCurve{
		{TS: hourMs, Equity: 10_000, Drawdown: 0},
		{TS: 2 * hourMs, Equity: 10_500, Drawdown: 0},
		{TS: 3 * hourMs, Equity: 10_200, Drawdown: 10_200/10_500.0 - 1},
	}
	trades := []Trade{
		{Symbol: "BTCUSDT", Side: "long", EntryTS: hourMs, ExitTS: 2 * hourMs, EntryPrice: 100, ExitPrice: 105, Quantity: 100, PnL: 500, PnLPct: 0.05},
		{Symbol: "BTCUSDT", Side: "short", EntryTS: 2 * hourMs, EntryPrice: 105, Quantity: -100, PnL: -300, PnLPct: -0.028, Open: true},
	}
	report := MetricsReport{
		TotalReturn: 0.02, Sharpe: 1.5, SharpeDefined: true,
		MaxDrawdown: -0.0286, WinRate: 1, WinRateDefined: true,
		TradeCount: 2, Wins: 1, OpenTrades: 1, FinalEquity: 10_200,
	}
	require.NoError(t, rs.SaveOutcome(ctx, "run-2", curve, trades, report))

	got, err := rs.GetRun(ctx, "run-2")
	require.NoError(t, err)
	assert.InDelta(t, 10_200, got.FinalEquity, 1e-9)
	assert.True(t, got.Report.SharpeDefined)
	assert.InDelta(t, 1.5, got.Report.Sharpe, 1e-9)

	gotTrades, err := rs.ListTrades(ctx, "run-2", 0)
	require.NoError(t, err)
	require.Len(t, gotTrades, 2)
	assert.Equal(t, "long", gotTrades[0].Side)
	assert.False(t, gotTrades[0].Open)
	assert.True(t, gotTrades[1].Open)

	gotCurve, err := rs.ListEquity(ctx, "run-2", 0)
	require.NoError(t, err)
	require.Len(t, gotCurve, 3)
	assert.Equal(t, curve[0].TS, gotCurve[0].TS)
	assert.InDelta(t, curve[2].Drawdown, gotCurve[2].Drawdown, 1e-9)
}

func TestResultStoreListEquityUnlimited(t *testing.T) {
	rs, err := NewResultStore(t.TempDir())
	require.NoError(t, err)
	defer rs.Close()
	ctx := context.Background()

	require.NoError(t, rs.InsertRun(ctx, newTestRun("run-long")))

	// 超过两万个点的长曲线必须能整条取回，图表渲染依赖全量。
	const points = 20_050
	curve := make(EquityCurve, points)
	for i := range curve {
		curve[i] = EquityPoint{TS: int64(i+1) * hourMs, Equity: 10_000 + float64(i)}
	}
	require.NoError(t, rs.SaveOutcome(ctx, "run-long", curve, nil, MetricsReport{FinalEquity: curve[points-1].Equity}))

	got, err := rs.ListEquity(ctx, "run-long", 0)
	require.NoError(t, err)
	require.Len(t, got, points)
	assert.Equal(t, curve[points-1].TS, got[points-1].TS)

	limited, err := rs.ListEquity(ctx, "run-long", 100)
	require.NoError(t, err)
	assert.Len(t, limited, 100)
}

func TestResultStoreListRunsNewestFirst(t *testing.T) {
	rs, err := NewResultStore(t.TempDir())
	require.NoError(t, err)
	defer rs.Close()
	ctx := context.Background()

	require.NoError(t, rs.InsertRun(ctx, newTestRun("run-a")))
	require.NoError(t, rs.InsertRun(ctx, newTestRun("run-b")))

	runs, err := rs.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	ids := []string{runs[0].ID, runs[1].ID}
	assert.ElementsMatch(t, []string{"run-a", "run-b"}, ids)
}

func TestResultStoreGetRunMissing(t *testing.T) {
	rs, err := NewResultStore(t.TempDir())
	require.NoError(t, err)
	defer rs.Close()

	_, err = rs.GetRun(context.Background(), "nope")
	assert.Error(t, err)
}
