package binance

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"backlab/internal/backtest"
	"backlab/internal/logger"
	"backlab/internal/market"

	"github.com/adshao/go-binance/v2/futures"
)

const maxBatchLimit = 1500

// Config 控制 REST 访问参数。
type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.RESTBaseURL == "" {
		c.RESTBaseURL = "https://fapi.binance.com"
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 15 * time.Second
	}
	return c
}

// Source 基于 go-binance SDK 拉取合约历史 K 线。
type Source struct {
	cfg    Config
	client *futures.Client
}

func New(cfg Config) *Source {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = strings.TrimSpace(final.RESTBaseURL)
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	return &Source{cfg: final, client: client}
}

func (s *Source) Name() string { return "binance" }

// Fetch 按 [Start, End] 分批拉取 K 线。Binance 单次最多 1500 根，
// 超出部分用上一批最后一根的 open_time 推进游标。
func (s *Source) Fetch(ctx context.Context, req backtest.FetchRequest) ([]market.Candle, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required: %w", market.ErrInvalidParameter)
	}
	interval := strings.ToLower(strings.TrimSpace(req.Interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required: %w", market.ErrInvalidParameter)
	}
	limit := req.Limit
	if limit <= 0 || limit > maxBatchLimit {
		limit = maxBatchLimit
	}

	var out []market.Candle
	cursor := req.Start
	for {
		svc := s.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit)
		if cursor > 0 {
			svc = svc.StartTime(cursor)
		}
		if req.End > 0 {
			svc = svc.EndTime(req.End)
		}
		kls, err := svc.Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("binance klines %s %s: %w", symbol, interval, err)
		}
		if len(kls) == 0 {
			break
		}
		for _, kl := range kls {
			if kl == nil {
				continue
			}
			out = append(out, market.Candle{
				OpenTime:  kl.OpenTime,
				CloseTime: kl.CloseTime,
				Open:      parseFloat(kl.Open),
				High:      parseFloat(kl.High),
				Low:       parseFloat(kl.Low),
				Close:     parseFloat(kl.Close),
				Volume:    parseFloat(kl.Volume),
				Trades:    kl.TradeNum,
			})
		}
		last := kls[len(kls)-1]
		if len(kls) < limit || (req.End > 0 && last.OpenTime >= req.End) {
			break
		}
		cursor = last.OpenTime + 1
	}
	logger.Debugf("[binance] fetched %d candles for %s %s", len(out), symbol, interval)
	return dropUnclosed(out, req.End), nil
}

// TopLiquidPairs 返回报价货币为 quote、按 24 小时成交额从高到低的
// 合约交易对。
func (s *Source) TopLiquidPairs(ctx context.Context, quote string, limit int) ([]string, error) {
	quote = strings.ToUpper(strings.TrimSpace(quote))
	if quote == "" {
		return nil, fmt.Errorf("quote currency is required: %w", market.ErrInvalidParameter)
	}
	if limit <= 0 {
		limit = 100
	}

	stats, err := s.client.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance 24h ticker: %w", err)
	}

	type pairVolume struct {
		symbol      string
		quoteVolume float64
	}
	var ranked []pairVolume
	for _, st := range stats {
		if st == nil || !strings.HasSuffix(st.Symbol, quote) {
			continue
		}
		ranked = append(ranked, pairVolume{symbol: st.Symbol, quoteVolume: parseFloat(st.QuoteVolume)})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].quoteVolume > ranked[j].quoteVolume })
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]string, len(ranked))
	for i, p := range ranked {
		out[i] = p.symbol
	}
	if len(out) < limit {
		logger.Warnf("[binance] found only %d pairs quoted in %s (wanted %d)", len(out), quote, limit)
	}
	return out, nil
}

// dropUnclosed 丢弃 close_time 落在未来的最后一根（交易所返回的半成品）。
func dropUnclosed(candles []market.Candle, end int64) []market.Candle {
	if len(candles) == 0 {
		return candles
	}
	now := time.Now().UnixMilli()
	cutoff := now
	if end > 0 && end < now {
		return candles
	}
	last := candles[len(candles)-1]
	if last.CloseTime >= cutoff {
		return candles[:len(candles)-1]
	}
	return candles
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
