package backtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backlab/internal/market"
)

const hourMs = int64(3_600_000)

func hourCandle(openTime int64, close float64) market.Candle {
	return market.Candle{
		OpenTime:  openTime,
		CloseTime: openTime + hourMs - 1,
		Open:      close,
		High:      close + 1,
		Low:       close - 1,
		Close:     close,
		Volume:    50,
		Trades:    10,
	}
}

func TestStoreInsertAndRange(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	candles := []market.Candle{
		hourCandle(1*hourMs, 100),
		hourCandle(2*hourMs, 101),
		hourCandle(3*hourMs, 102),
	}
	n, err := store.InsertCandles(ctx, "btcusdt", "1h", candles)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := store.RangeCandles(ctx, "BTCUSDT", "1h", 1*hourMs, 2*hourMs)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 100, got[0].Close, 1e-12)
	assert.InDelta(t, 101, got[1].Close, 1e-12)
}

func TestStoreUpsertOverwrites(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	_, err = store.InsertCandles(ctx, "BTCUSDT", "1h", []market.Candle{hourCandle(hourMs, 100)})
	require.NoError(t, err)
	updated := hourCandle(hourMs, 105)
	_, err = store.InsertCandles(ctx, "BTCUSDT", "1h", []market.Candle{updated})
	require.NoError(t, err)

	got, err := store.RangeCandles(ctx, "BTCUSDT", "1h", hourMs, hourMs)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 105, got[0].Close, 1e-12)
}

func TestStoreManifest(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	_, err = store.InsertCandles(ctx, "ethusdt", "4h", []market.Candle{
		hourCandle(4*hourMs, 2000),
		hourCandle(8*hourMs, 2010),
	})
	require.NoError(t, err)

	m, err := store.Manifest(ctx, "ETHUSDT", "4h")
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", m.Symbol)
	assert.Equal(t, "4h", m.Timeframe)
	assert.Equal(t, int64(2), m.Rows)
	assert.Equal(t, 4*hourMs, m.MinTime)
	assert.Equal(t, 8*hourMs, m.MaxTime)
	assert.NotEmpty(t, m.Path)
}

func TestStoreRangeRequiresPositiveBounds(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.RangeCandles(context.Background(), "BTCUSDT", "1h", 0, hourMs)
	assert.ErrorIs(t, err, market.ErrInvalidParameter)
}

func TestMissingGaps(t *testing.T) {
	have := map[int64]struct{}{
		2 * hourMs: {},
		3 * hourMs: {},
		6 * hourMs: {},
	}
	gaps := missingGaps(have, 1*hourMs, 7*hourMs, hourMs)
	require.Len(t, gaps, 3)
	assert.Equal(t, gap{start: 1 * hourMs, end: 1 * hourMs}, gaps[0])
	assert.Equal(t, gap{start: 4 * hourMs, end: 5 * hourMs}, gaps[1])
	assert.Equal(t, gap{start: 7 * hourMs, end: 7 * hourMs}, gaps[2])

	assert.Empty(t, missingGaps(map[int64]struct{}{hourMs: {}}, hourMs, hourMs, hourMs))
}

// stubSource 记录请求并返回区间内的合成 K 线。
type stubSource struct {
	calls []FetchRequest
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Fetch(ctx context.Context, req FetchRequest) ([]market.Candle, error) {
	s.calls = append(s.calls, req)
	var out []market.Candle
	for ts := req.Start; ts <= req.End; ts += hourMs {
		out = append(out, hourCandle(ts, 100+float64(ts/hourMs)))
	}
	return out, nil
}

func TestEnsureRangeFillsOnlyGaps(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	tf, err := ParseTimeframe("1h")
	require.NoError(t, err)

	// 预置中间一段，EnsureRange 只应拉取两端缺口。
	_, err = store.InsertCandles(ctx, "BTCUSDT", "1h", []market.Candle{
		hourCandle(3*hourMs, 103),
		hourCandle(4*hourMs, 104),
	})
	require.NoError(t, err)

	src := &stubSource{}
	require.NoError(t, store.EnsureRange(ctx, src, "BTCUSDT", tf, 1*hourMs, 6*hourMs))
	require.Len(t, src.calls, 2)
	assert.Equal(t, int64(1*hourMs), src.calls[0].Start)
	assert.Equal(t, int64(2*hourMs), src.calls[0].End)
	assert.Equal(t, int64(5*hourMs), src.calls[1].Start)
	assert.Equal(t, int64(6*hourMs), src.calls[1].End)

	got, err := store.RangeCandles(ctx, "BTCUSDT", "1h", 1*hourMs, 6*hourMs)
	require.NoError(t, err)
	assert.Len(t, got, 6)

	// 第二次调用已无缺口，不再访问数据源。
	src.calls = nil
	require.NoError(t, store.EnsureRange(ctx, src, "BTCUSDT", tf, 1*hourMs, 6*hourMs))
	assert.Empty(t, src.calls)
}
