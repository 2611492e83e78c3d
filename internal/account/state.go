package account

// Side 表示仓位方向。
type Side string

const (
	SideNone  Side = "NONE"
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Position 描述单一标的的持仓。Qty 恒为非负数量，方向由 Side 表达；
// 空仓时 Qty 与 AvgPrice 均为零。
type Position struct {
	Symbol   string  `json:"symbol"`
	Qty      float64 `json:"qty"`
	AvgPrice float64 `json:"avg_price"`
	Side     Side    `json:"side"`
}

// Flat 返回指定标的的空仓。
func Flat(symbol string) Position {
	return Position{Symbol: symbol, Side: SideNone}
}

// IsFlat 判断是否为空仓。
func (p Position) IsFlat() bool {
	return p.Side == SideNone || p.Qty == 0
}

// UnrealizedPnL 按给定市场价计算持仓浮动盈亏。
func (p Position) UnrealizedPnL(price float64) float64 {
	switch p.Side {
	case SideLong:
		return (price - p.AvgPrice) * p.Qty
	case SideShort:
		return (p.AvgPrice - price) * p.Qty
	default:
		return 0
	}
}

// State 是单账户的资金状态，净值 = 现金 + 持仓浮动盈亏。
// 状态为值类型，外部读者只能拿到快照副本。
type State struct {
	Cash     float64  `json:"cash"`
	Equity   float64  `json:"equity"`
	Position Position `json:"position"`
}

// NewState 以初始资金开立账户，仓位为空。
func NewState(symbol string, initialCash float64) State {
	return State{
		Cash:     initialCash,
		Equity:   initialCash,
		Position: Flat(symbol),
	}
}

// MarkEquity 按给定市场价重新估值净值，返回更新后的副本。
func (s State) MarkEquity(price float64) State {
	s.Equity = s.Cash + s.Position.UnrealizedPnL(price)
	return s
}
