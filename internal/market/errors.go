package market

import "errors"

// 三类可检查错误：所有核心组件的失败都会包装其中之一，
// 调用方通过 errors.Is 区分处理。
var (
	// ErrInvalidParameter 表示策略/指标配置非法（窗口 <= 0、阈值冲突等）。
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidData 表示输入序列本身损坏（时间戳乱序、负价格、NaN 等）。
	ErrInvalidData = errors.New("invalid data")

	// ErrInsufficientData 表示序列长度不足以覆盖所需回看窗口，
	// 调用方可以选择跳过或补数据，而不是当作损坏处理。
	ErrInsufficientData = errors.New("insufficient data")
)
