package execution

import (
	"errors"

	"paper-trader/internal/account"
)

// Action 表示交易动作。
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// ErrInsufficientFunds 表示可用资金不足以完成本次成交，
// 属于预期内的正常结果，账户状态不会被改动。
var ErrInsufficientFunds = errors.New("execution: 可用资金不足")

// Context 是一次执行周期的只读快照，引擎不会修改它。
type Context struct {
	Symbol       string           `json:"symbol"`
	CurrentPrice float64          `json:"current_price"`
	Position     account.Position `json:"position"`
	Cash         float64          `json:"cash"`
	Equity       float64          `json:"equity"`
}

// Snapshot 由账户状态与最新市场价构建执行上下文，
// 净值按该价格重新估值，保证上下文内部自洽。
func Snapshot(symbol string, price float64, st account.State) Context {
	marked := st.MarkEquity(price)
	return Context{
		Symbol:       symbol,
		CurrentPrice: price,
		Position:     marked.Position,
		Cash:         marked.Cash,
		Equity:       marked.Equity,
	}
}

// Result 描述一次模拟成交的结果。Price 为含滑点的成交价；
// PnL 仅在平仓或反手时给出；失败时回显调用前的账户数值。
type Result struct {
	Success  bool             `json:"success"`
	Action   Action           `json:"action"`
	Qty      float64          `json:"qty"`
	Price    float64          `json:"price"`
	Cash     float64          `json:"cash"`
	Position account.Position `json:"position"`
	Equity   float64          `json:"equity"`
	PnL      *float64         `json:"pnl,omitempty"`
}

// State 把结果折算回账户状态，仅对成功结果有意义。
func (r Result) State() account.State {
	return account.State{
		Cash:     r.Cash,
		Equity:   r.Equity,
		Position: r.Position,
	}
}
