package strategy

import (
	"fmt"

	"backlab/internal/analysis/indicator"
	"backlab/internal/market"
)

// VWAPReversionConfig 控制进出场偏离阈值。
// exit_threshold 用指针区分"显式配 0"与"未配置"：
// 显式 0 表示价格回到 VWAP 本身才平仓。
type VWAPReversionConfig struct {
	EntryThreshold float64  `mapstructure:"entry_threshold" yaml:"entry_threshold"`
	ExitThreshold  *float64 `mapstructure:"exit_threshold" yaml:"exit_threshold"`
}

// VWAPReversion 为均值回归策略：收盘价相对锚定 VWAP 的偏离
// 超过 entry 阈值时逆向建仓，回落到 ±exit 区间内平仓。
type VWAPReversion struct {
	entry float64
	exit  float64
}

// NewVWAPReversion 校验阈值并构造策略。默认 0.02 / 0.005。
// exit 必须严格小于 entry，否则刚建仓就会立刻离场。
func NewVWAPReversion(cfg VWAPReversionConfig) (*VWAPReversion, error) {
	entry := cfg.EntryThreshold
	if entry == 0 {
		entry = 0.02
	}
	if entry <= 0 {
		return nil, fmt.Errorf("entry_threshold %v must be positive: %w", entry, market.ErrInvalidParameter)
	}
	exit := 0.0
	if cfg.ExitThreshold != nil {
		exit = *cfg.ExitThreshold
	} else if entry > 0.005 {
		exit = 0.005
	}
	if exit < 0 || exit >= entry {
		return nil, fmt.Errorf("exit_threshold %v must be in [0, entry_threshold): %w", exit, market.ErrInvalidParameter)
	}
	return &VWAPReversion{entry: entry, exit: exit}, nil
}

func (s *VWAPReversion) Name() string { return NameVWAPReversion }

func (s *VWAPReversion) MinLookback() int { return 1 }

func (s *VWAPReversion) Generate(series market.Series) ([]Signal, error) {
	if err := checkLookback(s, series); err != nil {
		return nil, err
	}
	closes := series.Closes()
	vwap, err := indicator.VWAP(closes, series.Volumes())
	if err != nil {
		return nil, err
	}
	out := make([]Signal, series.Len())
	state := Flat
	for i := range out {
		vv := vwap.At(i)
		if !vv.Valid {
			out[i] = Flat
			continue
		}
		dev := (closes[i] - vv.Float) / vv.Float
		switch state {
		case Flat:
			if dev < -s.entry {
				state = Long
			} else if dev > s.entry {
				state = Short
			}
		case Long:
			if dev >= -s.exit {
				state = Flat
			}
		case Short:
			if dev <= s.exit {
				state = Flat
			}
		}
		out[i] = state
	}
	return out, nil
}
