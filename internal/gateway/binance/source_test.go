package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backlab/internal/market"
)

const statsResponse = `[
  {"symbol": "BTCUSDT", "quoteVolume": "3500000.0"},
  {"symbol": "ETHUSDT", "quoteVolume": "4000000.0"},
  {"symbol": "ADAUSDT", "quoteVolume": "4500000.0"},
  {"symbol": "ETHBTC",  "quoteVolume": "9999999.0"}
]`

func newTestSource(t *testing.T, handler http.HandlerFunc) *Source {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{RESTBaseURL: srv.URL})
}

func TestTopLiquidPairsSortsByQuoteVolume(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/ticker/24hr", r.URL.Path)
		_, _ = w.Write([]byte(statsResponse))
	})

	// 24h 成交额 ADA > ETH > BTC，BTC 报价的对被过滤。
	pairs, err := src.TopLiquidPairs(context.Background(), "usdt", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"ADAUSDT", "ETHUSDT", "BTCUSDT"}, pairs)
}

func TestTopLiquidPairsHonorsLimit(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(statsResponse))
	})

	pairs, err := src.TopLiquidPairs(context.Background(), "USDT", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"ADAUSDT", "ETHUSDT"}, pairs)
}

func TestTopLiquidPairsRequiresQuote(t *testing.T) {
	src := New(Config{})
	_, err := src.TopLiquidPairs(context.Background(), "", 10)
	assert.ErrorIs(t, err, market.ErrInvalidParameter)
}
