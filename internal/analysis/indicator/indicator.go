package indicator

import (
	"fmt"
	"math"

	"backlab/internal/market"
)

// Value 是指标序列中的一个点。回看窗口未满时 Valid 为 false，
// 用显式哨兵而不是 0/NaN，避免预热期误产生信号。
type Value struct {
	Float float64
	Valid bool
}

// Series 与输入 K 线逐下标对齐。
type Series []Value

// At 返回第 i 个点；越界视为无效。
func (s Series) At(i int) Value {
	if i < 0 || i >= len(s) {
		return Value{}
	}
	return s[i]
}

// FirstValid 返回第一个有效下标，全部无效时返回 -1。
func (s Series) FirstValid() int {
	for i, v := range s {
		if v.Valid {
			return i
		}
	}
	return -1
}

func valid(f float64) Value { return Value{Float: f, Valid: true} }

func checkWindow(window, n int) error {
	if window <= 0 {
		return fmt.Errorf("window %d must be positive: %w", window, market.ErrInvalidParameter)
	}
	if window > n {
		return fmt.Errorf("window %d exceeds series length %d: %w", window, n, market.ErrInsufficientData)
	}
	return nil
}

func checkValues(name string, values []float64, allowZero bool) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s[%d] is not finite: %w", name, i, market.ErrInvalidData)
		}
		if v < 0 || (!allowZero && v == 0) {
			return fmt.Errorf("%s[%d] = %v out of range: %w", name, i, v, market.ErrInvalidData)
		}
	}
	return nil
}

// SMA 计算简单移动平均：下标 < window-1 的点无效。
func SMA(closes []float64, window int) (Series, error) {
	if err := checkWindow(window, len(closes)); err != nil {
		return nil, err
	}
	if err := checkValues("close", closes, false); err != nil {
		return nil, err
	}
	out := make(Series, len(closes))
	sum := 0.0
	for i, c := range closes {
		sum += c
		if i >= window {
			sum -= closes[i-window]
		}
		if i >= window-1 {
			out[i] = valid(sum / float64(window))
		}
	}
	return out, nil
}

// RSI 计算 Wilder 平滑的相对强弱指标，取值 [0,100]；
// 下标 < window 的点无效（需要 window 个涨跌差）。
func RSI(closes []float64, window int) (Series, error) {
	if err := checkWindow(window, len(closes)); err != nil {
		return nil, err
	}
	if window >= len(closes) {
		return nil, fmt.Errorf("rsi needs %d bars, got %d: %w", window+1, len(closes), market.ErrInsufficientData)
	}
	if err := checkValues("close", closes, false); err != nil {
		return nil, err
	}
	out := make(Series, len(closes))
	var avgGain, avgLoss float64
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		if i <= window {
			avgGain += gain / float64(window)
			avgLoss += loss / float64(window)
			if i < window {
				continue
			}
		} else {
			// Wilder 平滑：首个均值之后按 (prev*(n-1)+cur)/n 递推。
			avgGain = (avgGain*float64(window-1) + gain) / float64(window)
			avgLoss = (avgLoss*float64(window-1) + loss) / float64(window)
		}
		switch {
		case avgLoss == 0 && avgGain == 0:
			out[i] = valid(50)
		case avgLoss == 0:
			out[i] = valid(100)
		default:
			rs := avgGain / avgLoss
			out[i] = valid(100 - 100/(1+rs))
		}
	}
	return out, nil
}

// Bands 是布林带的三条对齐序列。
type Bands struct {
	Middle Series
	Upper  Series
	Lower  Series
}

// Bollinger 计算布林带：中轨为 SMA，上下轨为 ±numStd 倍滚动标准差。
// 标准差使用总体口径（除以 n），保证确定性。
func Bollinger(closes []float64, window int, numStd float64) (Bands, error) {
	if numStd <= 0 || math.IsNaN(numStd) {
		return Bands{}, fmt.Errorf("num_std %v must be positive: %w", numStd, market.ErrInvalidParameter)
	}
	middle, err := SMA(closes, window)
	if err != nil {
		return Bands{}, err
	}
	upper := make(Series, len(closes))
	lower := make(Series, len(closes))
	for i := window - 1; i < len(closes); i++ {
		mean := middle[i].Float
		var ss float64
		for j := i - window + 1; j <= i; j++ {
			d := closes[j] - mean
			ss += d * d
		}
		sd := math.Sqrt(ss / float64(window))
		upper[i] = valid(mean + numStd*sd)
		lower[i] = valid(mean - numStd*sd)
	}
	return Bands{Middle: middle, Upper: upper, Lower: lower}, nil
}

// VWAP 计算自序列起点锚定的成交量加权均价。
// 累计成交量为零的前缀保持无效，不做除零。
func VWAP(closes, volumes []float64) (Series, error) {
	if len(closes) == 0 {
		return nil, fmt.Errorf("empty series: %w", market.ErrInsufficientData)
	}
	if len(closes) != len(volumes) {
		return nil, fmt.Errorf("closes/volumes length mismatch %d != %d: %w", len(closes), len(volumes), market.ErrInvalidData)
	}
	if err := checkValues("close", closes, false); err != nil {
		return nil, err
	}
	if err := checkValues("volume", volumes, true); err != nil {
		return nil, err
	}
	out := make(Series, len(closes))
	var cumPV, cumVol float64
	for i := range closes {
		cumPV += closes[i] * volumes[i]
		cumVol += volumes[i]
		if cumVol > 0 {
			out[i] = valid(cumPV / cumVol)
		}
	}
	return out, nil
}
