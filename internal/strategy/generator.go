package strategy

import (
	"fmt"

	"backlab/internal/market"

	"github.com/mitchellh/mapstructure"
)

// Generator 根据价格序列生成与之等长的信号序列。
// 预热期（所需指标尚无效的下标）必须输出 Flat。
type Generator interface {
	Name() string
	// MinLookback 返回产生首个非 Flat 信号所需的最少 K 线数。
	MinLookback() int
	Generate(series market.Series) ([]Signal, error)
}

// 已注册的策略名。
const (
	NameSMACross      = "sma_cross"
	NameRSIBollinger  = "rsi_bb"
	NameVWAPReversion = "vwap_reversion"
)

// Names 返回全部策略名。
func Names() []string {
	return []string{NameSMACross, NameRSIBollinger, NameVWAPReversion}
}

// New 按名称与参数表构造策略。参数经 mapstructure 弱类型解码，
// 非法配置返回包装了 ErrInvalidParameter 的错误。
func New(name string, params map[string]any) (Generator, error) {
	switch name {
	case NameSMACross:
		var cfg SMACrossConfig
		if err := decodeParams(params, &cfg); err != nil {
			return nil, err
		}
		return NewSMACross(cfg)
	case NameRSIBollinger:
		var cfg RSIBollingerConfig
		if err := decodeParams(params, &cfg); err != nil {
			return nil, err
		}
		return NewRSIBollinger(cfg)
	case NameVWAPReversion:
		var cfg VWAPReversionConfig
		if err := decodeParams(params, &cfg); err != nil {
			return nil, err
		}
		return NewVWAPReversion(cfg)
	default:
		return nil, fmt.Errorf("unknown strategy %q: %w", name, market.ErrInvalidParameter)
	}
}

func decodeParams(params map[string]any, dest any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dest,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("decode params: %v: %w", err, market.ErrInvalidParameter)
	}
	return nil
}

func checkLookback(g Generator, series market.Series) error {
	if series.Len() < g.MinLookback() {
		return fmt.Errorf("%s needs %d bars, got %d: %w", g.Name(), g.MinLookback(), series.Len(), market.ErrInsufficientData)
	}
	return nil
}
