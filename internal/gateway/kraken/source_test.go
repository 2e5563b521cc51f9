package kraken

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backlab/internal/backtest"
	"backlab/internal/market"
)

const ohlcResponse = `{
  "error": [],
  "result": {
    "XXBTZUSD": [
      [1700000000, "35000.0", "35100.0", "34900.0", "35050.0", "35010.3", "12.5", 420],
      [1700003600, "35050.0", "35300.0", "35000.0", "35250.0", "35140.8", "8.25", 310]
    ],
    "last": 1700003600
  }
}`

func newTestSource(t *testing.T, handler http.HandlerFunc) *Source {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL})
}

func TestFetchParsesOHLC(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0/public/OHLC", r.URL.Path)
		assert.Equal(t, "XBTUSD", r.URL.Query().Get("pair"))
		assert.Equal(t, "60", r.URL.Query().Get("interval"))
		_, _ = w.Write([]byte(ohlcResponse))
	})

	candles, err := src.Fetch(context.Background(), backtest.FetchRequest{Symbol: "xbtusd", Interval: "1h"})
	require.NoError(t, err)
	require.Len(t, candles, 2)

	first := candles[0]
	assert.Equal(t, int64(1_700_000_000_000), first.OpenTime)
	assert.Equal(t, int64(1_700_003_599_999), first.CloseTime)
	assert.InDelta(t, 35000, first.Open, 1e-9)
	assert.InDelta(t, 35050, first.Close, 1e-9)
	assert.InDelta(t, 12.5, first.Volume, 1e-9)
	assert.Equal(t, int64(420), first.Trades)
}

func TestFetchFiltersByRange(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(ohlcResponse))
	})

	candles, err := src.Fetch(context.Background(), backtest.FetchRequest{
		Symbol: "XBTUSD", Interval: "1h",
		Start: 1_700_003_600_000, End: 1_700_003_600_000,
	})
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.InDelta(t, 35250, candles[0].Close, 1e-9)
}

func TestFetchAPIError(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":["EQuery:Unknown asset pair"],"result":{}}`))
	})

	_, err := src.Fetch(context.Background(), backtest.FetchRequest{Symbol: "NOPE", Interval: "1h"})
	assert.ErrorIs(t, err, market.ErrInvalidData)
	assert.Contains(t, err.Error(), "Unknown asset pair")
}

func TestFetchHTTPError(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := src.Fetch(context.Background(), backtest.FetchRequest{Symbol: "XBTUSD", Interval: "1h"})
	assert.Error(t, err)
}

func TestFetchRejectsUnknownInterval(t *testing.T) {
	src := New(Config{})
	_, err := src.Fetch(context.Background(), backtest.FetchRequest{Symbol: "XBTUSD", Interval: "2h"})
	assert.ErrorIs(t, err, market.ErrInvalidParameter)
}

const tickerResponse = `{
  "error": [],
  "result": {
    "XXBTZUSD": {"v": ["10.0", "100.0"], "p": ["35000.0", "35000.0"]},
    "XETHZUSD": {"v": ["50.0", "2000.0"], "p": ["2000.0", "2000.0"]},
    "ADAUSD":   {"v": ["100.0", "9000000.0"], "p": ["0.5", "0.5"]},
    "XXBTZEUR": {"v": ["10.0", "999999.0"], "p": ["33000.0", "33000.0"]}
  }
}`

func TestTopLiquidPairsSortsByQuoteVolume(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0/public/Ticker", r.URL.Path)
		_, _ = w.Write([]byte(tickerResponse))
	})

	// 24h 成交额 ADA=4.5M > ETH=4M > BTC=3.5M，EUR 对被过滤。
	pairs, err := src.TopLiquidPairs(context.Background(), "usd", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"ADAUSD", "XETHZUSD", "XXBTZUSD"}, pairs)
}

func TestTopLiquidPairsHonorsLimit(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(tickerResponse))
	})

	pairs, err := src.TopLiquidPairs(context.Background(), "USD", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"ADAUSD", "XETHZUSD"}, pairs)
}

func TestTopLiquidPairsRequiresQuote(t *testing.T) {
	src := New(Config{})
	_, err := src.TopLiquidPairs(context.Background(), " ", 10)
	assert.ErrorIs(t, err, market.ErrInvalidParameter)
}

func TestTopLiquidPairsAPIError(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":["EService:Unavailable"],"result":{}}`))
	})

	_, err := src.TopLiquidPairs(context.Background(), "USD", 10)
	assert.ErrorIs(t, err, market.ErrInvalidData)
}
