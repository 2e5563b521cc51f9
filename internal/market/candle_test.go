package market

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkCandle(openTime int64, close float64) Candle {
	return Candle{
		OpenTime:  openTime,
		CloseTime: openTime + 59_999,
		Open:      close,
		High:      close + 1,
		Low:       close - 0.5,
		Close:     close,
		Volume:    10,
	}
}

func TestNewSeriesOwnsCopy(t *testing.T) {
	candles := []Candle{mkCandle(1000, 10), mkCandle(61_000, 11)}
	s, err := NewSeries(candles)
	require.NoError(t, err)

	candles[0].Close = 999
	assert.InDelta(t, 10, s.At(0).Close, 1e-12)
	assert.Equal(t, 2, s.Len())
}

func TestNewSeriesRejectsEmpty(t *testing.T) {
	_, err := NewSeries(nil)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestNewSeriesRejectsUnorderedTimestamps(t *testing.T) {
	candles := []Candle{mkCandle(61_000, 10), mkCandle(1000, 11)}
	_, err := NewSeries(candles)
	assert.ErrorIs(t, err, ErrInvalidData)

	// 重复时间戳同样非法。
	candles = []Candle{mkCandle(1000, 10), mkCandle(1000, 11)}
	_, err = NewSeries(candles)
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestNewSeriesRejectsBadPrices(t *testing.T) {
	bad := mkCandle(1000, 10)
	bad.Low = -1
	_, err := NewSeries([]Candle{bad})
	assert.ErrorIs(t, err, ErrInvalidData)

	bad = mkCandle(1000, 10)
	bad.Close = math.NaN()
	_, err = NewSeries([]Candle{bad})
	assert.ErrorIs(t, err, ErrInvalidData)

	bad = mkCandle(1000, 10)
	bad.Volume = -5
	_, err = NewSeries([]Candle{bad})
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestSeriesAccessors(t *testing.T) {
	candles := []Candle{mkCandle(1000, 10), mkCandle(61_000, 11), mkCandle(121_000, 12)}
	s, err := NewSeries(candles)
	require.NoError(t, err)

	assert.Equal(t, []float64{10, 11, 12}, s.Closes())
	assert.Equal(t, []float64{10, 11, 12}, s.Opens())
	assert.Equal(t, []float64{10, 10, 10}, s.Volumes())

	out := s.Candles()
	out[0].Close = 0
	assert.InDelta(t, 10, s.At(0).Close, 1e-12)
}

func TestCandleTSPrefersCloseTime(t *testing.T) {
	c := mkCandle(1000, 10)
	assert.Equal(t, c.CloseTime, c.TS())
	c.CloseTime = 0
	assert.Equal(t, c.OpenTime, c.TS())
}

func TestCleanDropsPlaceholders(t *testing.T) {
	good := mkCandle(1000, 10)
	zeroVol := mkCandle(61_000, 11)
	zeroVol.Volume = 0
	flat := mkCandle(121_000, 12)
	flat.Open, flat.High, flat.Low, flat.Close = 12, 12, 12, 12

	in := []Candle{good, zeroVol, flat, mkCandle(181_000, 13)}
	out := Clean(in)
	require.Len(t, out, 2)
	assert.Equal(t, int64(1000), out[0].OpenTime)
	assert.Equal(t, int64(181_000), out[1].OpenTime)
	// 输入不变。
	assert.Len(t, in, 4)
}
