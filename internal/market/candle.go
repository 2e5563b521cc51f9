package market

import (
	"fmt"
	"math"
)

// Candle 表示一根 K 线（时间戳为 Unix 毫秒）。
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

// TS 返回用于对外展示的时间戳：优先收盘时间。
func (c Candle) TS() int64 {
	if c.CloseTime > 0 {
		return c.CloseTime
	}
	return c.OpenTime
}

// Series 是一段经过校验的 K 线序列：开盘时间严格递增、
// 价格为正、成交量非负且无 NaN。构造后只读。
type Series struct {
	candles []Candle
}

// NewSeries 校验并封装 K 线序列。校验失败返回 ErrInvalidData。
func NewSeries(candles []Candle) (Series, error) {
	if len(candles) == 0 {
		return Series{}, fmt.Errorf("empty series: %w", ErrInsufficientData)
	}
	var prev int64 = math.MinInt64
	for i, c := range candles {
		if c.OpenTime <= prev {
			return Series{}, fmt.Errorf("bar %d: open_time %d not strictly increasing: %w", i, c.OpenTime, ErrInvalidData)
		}
		prev = c.OpenTime
		for _, p := range []float64{c.Open, c.High, c.Low, c.Close} {
			if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
				return Series{}, fmt.Errorf("bar %d: bad price %v: %w", i, p, ErrInvalidData)
			}
		}
		if math.IsNaN(c.Volume) || math.IsInf(c.Volume, 0) || c.Volume < 0 {
			return Series{}, fmt.Errorf("bar %d: bad volume %v: %w", i, c.Volume, ErrInvalidData)
		}
	}
	// 持有自己的拷贝，调用方之后改动原切片不影响序列。
	owned := make([]Candle, len(candles))
	copy(owned, candles)
	return Series{candles: owned}, nil
}

// Len 返回序列长度。
func (s Series) Len() int { return len(s.candles) }

// At 返回第 i 根 K 线。
func (s Series) At(i int) Candle { return s.candles[i] }

// Candles 返回序列的拷贝。
func (s Series) Candles() []Candle {
	out := make([]Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// Closes 返回收盘价数组。
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.Close
	}
	return out
}

// Opens 返回开盘价数组。
func (s Series) Opens() []float64 {
	out := make([]float64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.Open
	}
	return out
}

// Volumes 返回成交量数组。
func (s Series) Volumes() []float64 {
	out := make([]float64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.Volume
	}
	return out
}

// Clean 去掉零成交量和四价相等的占位 K 线（交易所补洞数据），
// 返回新切片，输入不变。
func Clean(candles []Candle) []Candle {
	out := make([]Candle, 0, len(candles))
	for _, c := range candles {
		if c.Volume <= 0 {
			continue
		}
		if c.Open == c.High && c.High == c.Low && c.Low == c.Close {
			continue
		}
		out = append(out, c)
	}
	return out
}
