package strategy

import (
	"fmt"

	"backlab/internal/analysis/indicator"
	"backlab/internal/market"
)

const rsiMidpoint = 50.0

// RSIBollingerConfig 控制 RSI 与布林带参数。
type RSIBollingerConfig struct {
	RSIWindow  int     `mapstructure:"rsi_window" yaml:"rsi_window"`
	Oversold   float64 `mapstructure:"rsi_oversold" yaml:"rsi_oversold"`
	Overbought float64 `mapstructure:"rsi_overbought" yaml:"rsi_overbought"`
	BBWindow   int     `mapstructure:"bb_window" yaml:"bb_window"`
	BBStd      float64 `mapstructure:"bb_std" yaml:"bb_std"`
}

// RSIBollinger 为共振策略：RSI 超卖且收盘触及下轨转多，
// RSI 超买且收盘触及上轨转空。持仓期间唯一的离场规则是
// RSI 回穿中值 50（多头上穿、空头下穿），回到 Flat。
type RSIBollinger struct {
	cfg RSIBollingerConfig
}

// NewRSIBollinger 校验阈值并构造策略。默认 14 / 40 / 60 / 20 / 2.0。
func NewRSIBollinger(cfg RSIBollingerConfig) (*RSIBollinger, error) {
	if cfg.RSIWindow == 0 {
		cfg.RSIWindow = 14
	}
	if cfg.Oversold == 0 {
		cfg.Oversold = 40
	}
	if cfg.Overbought == 0 {
		cfg.Overbought = 60
	}
	if cfg.BBWindow == 0 {
		cfg.BBWindow = 20
	}
	if cfg.BBStd == 0 {
		cfg.BBStd = 2
	}
	if cfg.RSIWindow <= 0 {
		return nil, fmt.Errorf("rsi_window %d must be positive: %w", cfg.RSIWindow, market.ErrInvalidParameter)
	}
	if cfg.BBWindow <= 0 {
		return nil, fmt.Errorf("bb_window %d must be positive: %w", cfg.BBWindow, market.ErrInvalidParameter)
	}
	if cfg.BBStd <= 0 {
		return nil, fmt.Errorf("bb_std %v must be positive: %w", cfg.BBStd, market.ErrInvalidParameter)
	}
	if cfg.Oversold < 0 || cfg.Overbought > 100 || cfg.Oversold >= cfg.Overbought {
		return nil, fmt.Errorf("rsi thresholds %v/%v inconsistent: %w", cfg.Oversold, cfg.Overbought, market.ErrInvalidParameter)
	}
	return &RSIBollinger{cfg: cfg}, nil
}

func (s *RSIBollinger) Name() string { return NameRSIBollinger }

func (s *RSIBollinger) MinLookback() int {
	if s.cfg.RSIWindow+1 > s.cfg.BBWindow {
		return s.cfg.RSIWindow + 1
	}
	return s.cfg.BBWindow
}

func (s *RSIBollinger) Generate(series market.Series) ([]Signal, error) {
	if err := checkLookback(s, series); err != nil {
		return nil, err
	}
	closes := series.Closes()
	rsi, err := indicator.RSI(closes, s.cfg.RSIWindow)
	if err != nil {
		return nil, err
	}
	bands, err := indicator.Bollinger(closes, s.cfg.BBWindow, s.cfg.BBStd)
	if err != nil {
		return nil, err
	}
	out := make([]Signal, series.Len())
	state := Flat
	prevRSI := indicator.Value{}
	for i := range out {
		rv := rsi.At(i)
		up, lo := bands.Upper.At(i), bands.Lower.At(i)
		if !rv.Valid || !up.Valid || !lo.Valid {
			out[i] = Flat
			continue
		}
		switch state {
		case Flat:
			if rv.Float < s.cfg.Oversold && closes[i] <= lo.Float {
				state = Long
			} else if rv.Float > s.cfg.Overbought && closes[i] >= up.Float {
				state = Short
			}
		case Long:
			if prevRSI.Valid && prevRSI.Float < rsiMidpoint && rv.Float >= rsiMidpoint {
				state = Flat
			}
		case Short:
			if prevRSI.Valid && prevRSI.Float > rsiMidpoint && rv.Float <= rsiMidpoint {
				state = Flat
			}
		}
		prevRSI = rv
		out[i] = state
	}
	return out, nil
}
