package backtest

import (
	"encoding/json"
	"time"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// RunConfig 记录本次模拟的参数快照，便于重放。
type RunConfig struct {
	Strategy       string         `json:"strategy"`
	Params         map[string]any `json:"params,omitempty"`
	Symbol         string         `json:"symbol"`
	Timeframe      string         `json:"timeframe"`
	StartTS        int64          `json:"start_ts"`
	EndTS          int64          `json:"end_ts"`
	InitialCapital float64        `json:"initial_capital"`
	BarsPerYear    float64        `json:"bars_per_year"`
}

// MetricsReport 汇总一条资金曲线的绩效统计。
// 夏普与胜率在无法定义时（零方差、零平仓）值为 0 且 Defined=false，
// 不抛除零错误。
type MetricsReport struct {
	TotalReturn    float64 `json:"total_return"`
	Sharpe         float64 `json:"sharpe"`
	SharpeDefined  bool    `json:"sharpe_defined"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	WinRate        float64 `json:"win_rate"`
	WinRateDefined bool    `json:"win_rate_defined"`
	TradeCount     int     `json:"trade_count"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	OpenTrades     int     `json:"open_trades"`
	FinalEquity    float64 `json:"final_equity"`
}

// Trade 记录一次完整（或仍持有中）的仓位。
type Trade struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"` // long/short
	EntryTS    int64   `json:"entry_ts"`
	ExitTS     int64   `json:"exit_ts,omitempty"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price,omitempty"`
	Quantity   float64 `json:"quantity"`
	PnL        float64 `json:"pnl"`
	PnLPct     float64 `json:"pnl_pct"`
	Open       bool    `json:"open"`
}

// EquityPoint 是资金曲线上的一个点。Drawdown 为相对历史峰值的
// 回撤（<= 0）。
type EquityPoint struct {
	TS       int64   `json:"ts"`
	Equity   float64 `json:"equity"`
	Drawdown float64 `json:"drawdown"`
}

// EquityCurve 与价格序列逐根对齐，首点为初始资金。
type EquityCurve []EquityPoint

// Equities 返回纯资金数组。
func (c EquityCurve) Equities() []float64 {
	out := make([]float64, len(c))
	for i, p := range c {
		out[i] = p.Equity
	}
	return out
}

// Run 表示一次模拟任务。
type Run struct {
	ID             string        `json:"id"`
	Symbol         string        `json:"symbol"`
	Strategy       string        `json:"strategy"`
	Timeframe      string        `json:"timeframe"`
	Status         string        `json:"status"`
	Message        string        `json:"message"`
	StartTS        int64         `json:"start_ts"`
	EndTS          int64         `json:"end_ts"`
	InitialCapital float64       `json:"initial_capital"`
	FinalEquity    float64       `json:"final_equity"`
	Config         RunConfig     `json:"config"`
	Report         MetricsReport `json:"report"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	CompletedAt    time.Time     `json:"completed_at"`
}

// MarshalConfig 返回 config JSON。
func (r Run) MarshalConfig() ([]byte, error) {
	return json.Marshal(r.Config)
}

// MarshalReport 返回 report JSON。
func (r Run) MarshalReport() ([]byte, error) {
	return json.Marshal(r.Report)
}

// RunRequest 为 HTTP 提交使用。
type RunRequest struct {
	Symbol         string  `json:"symbol" binding:"required"`
	Strategy       string  `json:"strategy" binding:"required"`
	Timeframe      string  `json:"timeframe"`
	StartTS        int64   `json:"start_ts" binding:"required"`
	EndTS          int64   `json:"end_ts" binding:"required"`
	InitialCapital float64 `json:"initial_capital"`
	BarsPerYear    float64 `json:"bars_per_year"` // 0 表示按周期推导
}
