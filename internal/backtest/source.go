package backtest

import (
	"context"

	"backlab/internal/market"
)

// FetchRequest 描述一次远端 K 线请求。
type FetchRequest struct {
	Symbol   string
	Interval string
	Start    int64 // Unix ms
	End      int64 // Unix ms（可选；0 表示不限制）
	Limit    int
}

// CandleSource 统一不同交易所/文件数据源的拉取行为。
type CandleSource interface {
	Fetch(ctx context.Context, req FetchRequest) ([]market.Candle, error)
	Name() string
}

// PairLister 按 24 小时成交额发现流动性最好的交易对。
// quote 为报价货币（如 USD、USDT），返回结果按成交额从高到低排序。
type PairLister interface {
	TopLiquidPairs(ctx context.Context, quote string, limit int) ([]string, error)
}
