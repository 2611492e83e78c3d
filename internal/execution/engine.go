package execution

import (
	"fmt"

	"go.uber.org/zap"

	"paper-trader/internal/account"
)

// Config 控制成交建模参数：滑点按比例对成交价做不利偏移，
// 手续费按成交名义价值比例收取。
type Config struct {
	Slippage float64
	TakerFee float64
}

// Engine 是纯函数式的模拟撮合引擎：自身不持有账户状态，
// 输入动作、数量与上下文，输出新的账户数值或失败。
type Engine struct {
	cfg    Config
	logger *zap.Logger
}

// NewEngine 创建模拟撮合引擎。
func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Execute 执行一次模拟成交。qty 为绝对数量，须非负；
// 资金不足时返回 ErrInsufficientFunds，结果回显调用前的账户数值。
func (e *Engine) Execute(action Action, qty float64, ectx Context) (Result, error) {
	switch action {
	case ActionHold:
		return Result{
			Success:  true,
			Action:   ActionHold,
			Cash:     ectx.Cash,
			Position: ectx.Position,
			Equity:   ectx.Equity,
		}, nil
	case ActionBuy:
		return e.buy(qty, ectx)
	case ActionSell:
		return e.sell(qty, ectx)
	default:
		return e.fail(action, qty, 0, ectx), fmt.Errorf("execution: 不支持的交易动作 %q", action)
	}
}

// buy 处理买入：空仓/多头为建仓或加仓，空头为平空，数量超出则反手开多。
func (e *Engine) buy(qty float64, ectx Context) (Result, error) {
	fill := ectx.CurrentPrice * (1 + e.cfg.Slippage)

	if ectx.Position.Side == account.SideShort {
		return e.coverShort(qty, fill, ectx)
	}

	cost := qty * fill
	fee := cost * e.cfg.TakerFee
	required := cost + fee
	if required > ectx.Cash {
		e.logger.Debug("买入资金不足",
			zap.Float64("required", required),
			zap.Float64("cash", ectx.Cash),
		)
		return e.fail(ActionBuy, qty, fill, ectx),
			fmt.Errorf("%w: 需要 %.8f, 可用 %.8f", ErrInsufficientFunds, required, ectx.Cash)
	}

	pos := ectx.Position
	newQty := pos.Qty + qty
	avg := fill
	if pos.Side == account.SideLong && newQty > 0 {
		avg = (pos.AvgPrice*pos.Qty + fill*qty) / newQty
	}
	newPos := account.Position{Symbol: ectx.Symbol, Qty: newQty, AvgPrice: avg, Side: account.SideLong}
	if newQty == 0 {
		newPos = account.Flat(ectx.Symbol)
	}
	return e.settle(ActionBuy, qty, fill, ectx.Cash-required, newPos, ectx, nil), nil
}

// coverShort 以买入对冲空头：不足量为部分平仓，等量为完全平仓，
// 超量则先平后反手开多。反手腿的资金检查使用平仓盈亏入账后的现金，
// 检查不通过时整笔作废，状态回到调用前。
func (e *Engine) coverShort(qty, fill float64, ectx Context) (Result, error) {
	pos := ectx.Position
	shortQty := pos.Qty

	if qty < shortQty {
		fee := qty * fill * e.cfg.TakerFee
		pnl := (pos.AvgPrice-fill)*qty - fee
		newPos := pos
		newPos.Qty = shortQty - qty
		return e.settle(ActionBuy, qty, fill, ectx.Cash+pnl, newPos, ectx, &pnl), nil
	}

	fee := shortQty * fill * e.cfg.TakerFee
	pnl := (pos.AvgPrice-fill)*shortQty - fee
	closedCash := ectx.Cash + pnl

	remainder := qty - shortQty
	if remainder == 0 {
		return e.settle(ActionBuy, qty, fill, closedCash, account.Flat(ectx.Symbol), ectx, &pnl), nil
	}

	cost := remainder * fill
	openFee := cost * e.cfg.TakerFee
	required := cost + openFee
	if required > closedCash {
		e.logger.Debug("反手开多资金不足",
			zap.Float64("required", required),
			zap.Float64("cash_after_close", closedCash),
		)
		return e.fail(ActionBuy, qty, fill, ectx),
			fmt.Errorf("%w: 反手需要 %.8f, 平仓后可用 %.8f", ErrInsufficientFunds, required, closedCash)
	}
	newPos := account.Position{Symbol: ectx.Symbol, Qty: remainder, AvgPrice: fill, Side: account.SideLong}
	return e.settle(ActionBuy, qty, fill, closedCash-required, newPos, ectx, &pnl), nil
}

// sell 处理卖出：空仓/空头为开空或加空，多头为平多，数量超出则反手开空。
// 开空收入直接入账，不做资金预检。
func (e *Engine) sell(qty float64, ectx Context) (Result, error) {
	fill := ectx.CurrentPrice * (1 - e.cfg.Slippage)

	if ectx.Position.Side == account.SideLong {
		return e.closeLong(qty, fill, ectx)
	}

	proceeds := qty * fill
	fee := proceeds * e.cfg.TakerFee

	pos := ectx.Position
	newQty := pos.Qty + qty
	avg := fill
	if pos.Side == account.SideShort && newQty > 0 {
		avg = (pos.AvgPrice*pos.Qty + fill*qty) / newQty
	}
	newPos := account.Position{Symbol: ectx.Symbol, Qty: newQty, AvgPrice: avg, Side: account.SideShort}
	if newQty == 0 {
		newPos = account.Flat(ectx.Symbol)
	}
	return e.settle(ActionSell, qty, fill, ectx.Cash+proceeds-fee, newPos, ectx, nil), nil
}

// closeLong 以卖出了结多头：不足量为部分平仓，等量为完全平仓，
// 超量则先平后反手开空，反手腿同样只入账收入、不做资金预检。
func (e *Engine) closeLong(qty, fill float64, ectx Context) (Result, error) {
	pos := ectx.Position
	longQty := pos.Qty

	if qty < longQty {
		fee := qty * fill * e.cfg.TakerFee
		pnl := (fill-pos.AvgPrice)*qty - fee
		newPos := pos
		newPos.Qty = longQty - qty
		return e.settle(ActionSell, qty, fill, ectx.Cash+pnl, newPos, ectx, &pnl), nil
	}

	fee := longQty * fill * e.cfg.TakerFee
	pnl := (fill-pos.AvgPrice)*longQty - fee
	closedCash := ectx.Cash + pnl

	remainder := qty - longQty
	if remainder == 0 {
		return e.settle(ActionSell, qty, fill, closedCash, account.Flat(ectx.Symbol), ectx, &pnl), nil
	}

	proceeds := remainder * fill
	openFee := proceeds * e.cfg.TakerFee
	newPos := account.Position{Symbol: ectx.Symbol, Qty: remainder, AvgPrice: fill, Side: account.SideShort}
	return e.settle(ActionSell, qty, fill, closedCash+proceeds-openFee, newPos, ectx, &pnl), nil
}

// settle 汇总一次成功成交：净值按成交前的市场价重新估值，而非成交价。
func (e *Engine) settle(action Action, qty, fill, newCash float64, newPos account.Position, ectx Context, pnl *float64) Result {
	equity := newCash + newPos.UnrealizedPnL(ectx.CurrentPrice)
	e.logger.Debug("模拟成交",
		zap.String("action", string(action)),
		zap.Float64("qty", qty),
		zap.Float64("fill", fill),
		zap.Float64("cash", newCash),
		zap.Float64("equity", equity),
	)
	return Result{
		Success:  true,
		Action:   action,
		Qty:      qty,
		Price:    fill,
		Cash:     newCash,
		Position: newPos,
		Equity:   equity,
		PnL:      pnl,
	}
}

// fail 返回保持调用前账户数值的失败结果。
func (e *Engine) fail(action Action, qty, fill float64, ectx Context) Result {
	return Result{
		Success:  false,
		Action:   action,
		Qty:      qty,
		Price:    fill,
		Cash:     ectx.Cash,
		Position: ectx.Position,
		Equity:   ectx.Equity,
	}
}
