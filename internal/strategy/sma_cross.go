package strategy

import (
	"fmt"

	"backlab/internal/analysis/indicator"
	"backlab/internal/market"
)

// SMACrossConfig 控制快慢均线窗口。
type SMACrossConfig struct {
	ShortWindow int `mapstructure:"short_window" yaml:"short_window"`
	LongWindow  int `mapstructure:"long_window" yaml:"long_window"`
}

// SMACross 为均线金叉/死叉策略：快线上穿慢线转多、下穿转空，
// 信号在下一次交叉前保持不变（显式状态机，而不是逐根独立判断）。
type SMACross struct {
	cfg SMACrossConfig
}

// NewSMACross 校验窗口并构造策略。默认 10/50。
func NewSMACross(cfg SMACrossConfig) (*SMACross, error) {
	if cfg.ShortWindow == 0 {
		cfg.ShortWindow = 10
	}
	if cfg.LongWindow == 0 {
		cfg.LongWindow = 50
	}
	if cfg.ShortWindow <= 0 {
		return nil, fmt.Errorf("short_window %d must be positive: %w", cfg.ShortWindow, market.ErrInvalidParameter)
	}
	if cfg.LongWindow <= cfg.ShortWindow {
		return nil, fmt.Errorf("long_window %d must exceed short_window %d: %w", cfg.LongWindow, cfg.ShortWindow, market.ErrInvalidParameter)
	}
	return &SMACross{cfg: cfg}, nil
}

func (s *SMACross) Name() string { return NameSMACross }

func (s *SMACross) MinLookback() int { return s.cfg.LongWindow }

// Generate 逐根推进交叉状态机。交叉通过比较相邻 K 线上
// (short-long) 的符号检测；慢线预热结束时快线已在慢线上方
// 也记为一次上穿（此前状态视为下方）。
func (s *SMACross) Generate(series market.Series) ([]Signal, error) {
	if err := checkLookback(s, series); err != nil {
		return nil, err
	}
	closes := series.Closes()
	short, err := indicator.SMA(closes, s.cfg.ShortWindow)
	if err != nil {
		return nil, err
	}
	long, err := indicator.SMA(closes, s.cfg.LongWindow)
	if err != nil {
		return nil, err
	}
	out := make([]Signal, series.Len())
	state := Flat
	prevAbove := false
	for i := range out {
		sv, lv := short.At(i), long.At(i)
		if !sv.Valid || !lv.Valid {
			out[i] = Flat
			continue
		}
		above := sv.Float > lv.Float
		if above && !prevAbove {
			state = Long
		} else if !above && prevAbove {
			state = Short
		}
		prevAbove = above
		out[i] = state
	}
	return out, nil
}
