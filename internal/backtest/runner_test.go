package backtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backlab/internal/market"
	"backlab/internal/strategy"
)

func exitPtr(v float64) *float64 { return &v }

func TestEvaluateAllKeepsJobOrder(t *testing.T) {
	genA, err := strategy.NewSMACross(strategy.SMACrossConfig{ShortWindow: 2, LongWindow: 3})
	require.NoError(t, err)
	genB, err := strategy.NewVWAPReversion(strategy.VWAPReversionConfig{EntryThreshold: 0.02, ExitThreshold: exitPtr(0.005)})
	require.NoError(t, err)

	series := testSeries(t, []float64{10, 11, 12, 11, 10, 12, 13})
	jobs := []Job{
		{Symbol: "BTCUSDT", Generator: genA, Series: series},
		{Symbol: "ETHUSDT", Generator: genA, Series: series},
		{Symbol: "BTCUSDT", Generator: genB, Series: series},
	}
	outcomes, err := EvaluateAll(context.Background(), jobs, 10_000, 8760, 2)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.Equal(t, "BTCUSDT", outcomes[0].Symbol)
	assert.Equal(t, strategy.NameSMACross, outcomes[0].Strategy)
	assert.Equal(t, "ETHUSDT", outcomes[1].Symbol)
	assert.Equal(t, strategy.NameVWAPReversion, outcomes[2].Strategy)
	for i, oc := range outcomes {
		assert.Len(t, oc.Curve, series.Len(), "outcome %d", i)
		for _, tr := range oc.Trades {
			assert.Equal(t, oc.Symbol, tr.Symbol)
		}
	}
	// 同一组合在不同下标重复时结果一致。
	assert.Equal(t, outcomes[0].Report, outcomes[1].Report)
}

func TestEvaluateAllPropagatesFailure(t *testing.T) {
	gen, err := strategy.NewSMACross(strategy.SMACrossConfig{ShortWindow: 2, LongWindow: 3})
	require.NoError(t, err)

	short := testSeries(t, []float64{10, 11})
	_, err = EvaluateAll(context.Background(), []Job{{Symbol: "BTCUSDT", Generator: gen, Series: short}}, 10_000, 8760, 2)
	assert.ErrorIs(t, err, market.ErrInsufficientData)
}

func TestEvaluateAllEmptyJobs(t *testing.T) {
	outcomes, err := EvaluateAll(context.Background(), nil, 10_000, 8760, 2)
	require.NoError(t, err)
	assert.Nil(t, outcomes)
}
