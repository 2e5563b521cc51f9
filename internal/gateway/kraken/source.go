package kraken

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"backlab/internal/backtest"
	"backlab/internal/logger"
	"backlab/internal/market"

	"github.com/tidwall/gjson"
)

// Config 控制 Kraken 公共行情接口访问。
type Config struct {
	BaseURL     string
	HTTPTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.kraken.com"
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 15 * time.Second
	}
	return c
}

// Source 通过 Kraken 公共 OHLC 接口拉取历史 K 线。
// Kraken 的 interval 以分钟计，时间戳以秒计，这里统一换算成毫秒。
type Source struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Source {
	final := cfg.withDefaults()
	return &Source{cfg: final, client: &http.Client{Timeout: final.HTTPTimeout}}
}

func (s *Source) Name() string { return "kraken" }

var intervalMinutes = map[string]int64{
	"5m":  5,
	"15m": 15,
	"30m": 30,
	"1h":  60,
	"4h":  240,
	"1d":  1440,
}

func (s *Source) Fetch(ctx context.Context, req backtest.FetchRequest) ([]market.Candle, error) {
	pair := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if pair == "" {
		return nil, fmt.Errorf("symbol is required: %w", market.ErrInvalidParameter)
	}
	minutes, ok := intervalMinutes[strings.ToLower(strings.TrimSpace(req.Interval))]
	if !ok {
		return nil, fmt.Errorf("unsupported kraken interval %q: %w", req.Interval, market.ErrInvalidParameter)
	}

	params := url.Values{}
	params.Set("pair", pair)
	params.Set("interval", fmt.Sprintf("%d", minutes))
	if req.Start > 0 {
		// since 为开区间，往前退一根保证首根落在区间内。
		params.Set("since", fmt.Sprintf("%d", req.Start/1000-minutes*60))
	}

	body, err := s.getPublic(ctx, "/0/public/OHLC", params)
	if err != nil {
		return nil, fmt.Errorf("kraken ohlc %s: %w", pair, err)
	}
	// result 里除 last 外只有一个 key，名字是交易所内部 pair 代号。
	var rows gjson.Result
	gjson.GetBytes(body, "result").ForEach(func(key, value gjson.Result) bool {
		if key.String() == "last" {
			return true
		}
		rows = value
		return false
	})
	if !rows.IsArray() {
		return nil, fmt.Errorf("kraken ohlc %s: no data rows: %w", pair, market.ErrInvalidData)
	}

	stepMs := minutes * 60 * 1000
	var out []market.Candle
	for _, row := range rows.Array() {
		cols := row.Array()
		if len(cols) < 8 {
			continue
		}
		openTime := cols[0].Int() * 1000
		if req.Start > 0 && openTime < req.Start {
			continue
		}
		if req.End > 0 && openTime > req.End {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  openTime,
			CloseTime: openTime + stepMs - 1,
			Open:      cols[1].Float(),
			High:      cols[2].Float(),
			Low:       cols[3].Float(),
			Close:     cols[4].Float(),
			Volume:    cols[6].Float(),
			Trades:    cols[7].Int(),
		})
	}
	logger.Debugf("[kraken] fetched %d candles for %s %dm", len(out), pair, minutes)
	return out, nil
}

// TopLiquidPairs 返回报价货币为 quote、按 24 小时成交额从高到低的
// 交易对。Ticker 接口不带 pair 参数时返回全部可交易对，按内部代号
// 命名（如 XXBTZUSD），用后缀匹配报价货币即可覆盖 Z 前缀写法。
func (s *Source) TopLiquidPairs(ctx context.Context, quote string, limit int) ([]string, error) {
	quote = strings.ToUpper(strings.TrimSpace(quote))
	if quote == "" {
		return nil, fmt.Errorf("quote currency is required: %w", market.ErrInvalidParameter)
	}
	if limit <= 0 {
		limit = 100
	}

	body, err := s.getPublic(ctx, "/0/public/Ticker", nil)
	if err != nil {
		return nil, fmt.Errorf("kraken ticker: %w", err)
	}

	type pairVolume struct {
		name        string
		quoteVolume float64
	}
	var ranked []pairVolume
	gjson.GetBytes(body, "result").ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if !strings.HasSuffix(name, quote) {
			return true
		}
		// v[1] 是 24h 基础货币成交量，p[1] 是 24h 加权均价，
		// 两者乘积即报价货币成交额。
		ranked = append(ranked, pairVolume{
			name:        name,
			quoteVolume: value.Get("v.1").Float() * value.Get("p.1").Float(),
		})
		return true
	})
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].quoteVolume > ranked[j].quoteVolume })
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]string, len(ranked))
	for i, p := range ranked {
		out[i] = p.name
	}
	if len(out) < limit {
		logger.Warnf("[kraken] found only %d pairs quoted in %s (wanted %d)", len(out), quote, limit)
	}
	return out, nil
}

// getPublic 调公共接口并剥掉 Kraken 的响应信封（error 数组）。
func (s *Source) getPublic(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := s.cfg.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	if errs := gjson.GetBytes(body, "error"); errs.IsArray() && len(errs.Array()) > 0 {
		return nil, fmt.Errorf("%s: %w", errs.Array()[0].String(), market.ErrInvalidData)
	}
	return body, nil
}
