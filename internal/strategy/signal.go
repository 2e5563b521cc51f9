package strategy

// Signal 是某根 K 线上的离散仓位信号。
type Signal int8

const (
	Short Signal = -1
	Flat  Signal = 0
	Long  Signal = 1
)

func (s Signal) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}

// Direction 返回 -1/0/+1 的方向数值。
func (s Signal) Direction() float64 { return float64(s) }
