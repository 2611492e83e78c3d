package execution

import (
	"errors"
	"testing"

	"paper-trader/internal/account"
)

const testSymbol = "BTC/USDT:USDT"

func makeContext(side account.Side, qty, avg, price, cash float64) Context {
	pos := account.Position{Symbol: testSymbol, Qty: qty, AvgPrice: avg, Side: side}
	if side == account.SideNone {
		pos = account.Flat(testSymbol)
	}
	return Context{
		Symbol:       testSymbol,
		CurrentPrice: price,
		Position:     pos,
		Cash:         cash,
		Equity:       cash + pos.UnrealizedPnL(price),
	}
}

func assertEquityIdentity(t *testing.T, res Result, price float64) {
	t.Helper()
	want := res.Cash + res.Position.UnrealizedPnL(price)
	if diff := abs(res.Equity - want); diff > 1e-9 {
		t.Errorf("equity identity violated: equity=%f cash+unrealized=%f", res.Equity, want)
	}
}

func TestEngineExecute_HoldKeepsStateUnchanged(t *testing.T) {
	engine := NewEngine(Config{Slippage: 0.01, TakerFee: 0.001}, nil)
	ectx := makeContext(account.SideLong, 2, 100, 110, 500)

	res, err := engine.Execute(ActionHold, 5, ectx)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success for HOLD")
	}
	if res.Qty != 0 {
		t.Errorf("expected qty=0 for HOLD, got %f", res.Qty)
	}
	if res.Cash != ectx.Cash || res.Equity != ectx.Equity || res.Position != ectx.Position {
		t.Errorf("HOLD mutated state: %+v", res)
	}
	if res.PnL != nil {
		t.Errorf("HOLD must not realize pnl")
	}
}

func TestEngineExecute_BuyOpensLong(t *testing.T) {
	engine := NewEngine(Config{Slippage: 0.01, TakerFee: 0.001}, nil)
	ectx := makeContext(account.SideNone, 0, 0, 100, 1000)

	res, err := engine.Execute(ActionBuy, 2, ectx)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}

	fill := 100 * 1.01
	if diff := abs(res.Price - fill); diff > 1e-9 {
		t.Errorf("unexpected fill price: got %f want %f", res.Price, fill)
	}
	required := 2*fill + 2*fill*0.001
	if diff := abs(res.Cash - (1000 - required)); diff > 1e-9 {
		t.Errorf("unexpected cash: got %f want %f", res.Cash, 1000-required)
	}
	if res.Position.Side != account.SideLong || res.Position.Qty != 2 {
		t.Errorf("unexpected position: %+v", res.Position)
	}
	if diff := abs(res.Position.AvgPrice - fill); diff > 1e-9 {
		t.Errorf("opening avg price must equal fill: got %f", res.Position.AvgPrice)
	}
	if res.PnL != nil {
		t.Errorf("opening must not realize pnl")
	}
	assertEquityIdentity(t, res, ectx.CurrentPrice)
}

func TestEngineExecute_AccumulatedBuysTrackVWAP(t *testing.T) {
	engine := NewEngine(Config{}, nil)
	state := account.NewState(testSymbol, 10000)

	steps := []struct {
		price float64
		qty   float64
	}{
		{100, 1},
		{110, 3},
		{120, 1},
	}

	var sumNotional, sumQty float64
	for _, step := range steps {
		ectx := Snapshot(testSymbol, step.price, state)
		res, err := engine.Execute(ActionBuy, step.qty, ectx)
		if err != nil {
			t.Fatalf("buy %f@%f failed: %v", step.qty, step.price, err)
		}
		assertEquityIdentity(t, res, step.price)
		state = res.State()
		sumNotional += step.price * step.qty
		sumQty += step.qty
	}

	wantAvg := sumNotional / sumQty
	if diff := abs(state.Position.AvgPrice - wantAvg); diff > 1e-9 {
		t.Errorf("unexpected vwap: got %f want %f", state.Position.AvgPrice, wantAvg)
	}
	if state.Position.Qty != sumQty {
		t.Errorf("unexpected qty: got %f want %f", state.Position.Qty, sumQty)
	}
	if diff := abs(state.Cash - (10000 - sumNotional)); diff > 1e-9 {
		t.Errorf("unexpected cash: got %f", state.Cash)
	}
}

func TestEngineExecute_InsufficientFundsKeepsState(t *testing.T) {
	engine := NewEngine(Config{}, nil)
	ectx := makeContext(account.SideNone, 0, 0, 100, 100)

	res, err := engine.Execute(ActionBuy, 2, ectx)
	if err == nil {
		t.Fatalf("expected insufficient funds error")
	}
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if res.Success {
		t.Fatalf("expected success=false")
	}
	if res.Cash != ectx.Cash || res.Equity != ectx.Equity || res.Position != ectx.Position {
		t.Errorf("failed buy must echo pre-call state exactly: %+v", res)
	}
}

func TestEngineExecute_PartialCoverShort(t *testing.T) {
	engine := NewEngine(Config{TakerFee: 0.001}, nil)
	ectx := makeContext(account.SideShort, 3, 100, 90, 1000)

	res, err := engine.Execute(ActionBuy, 1, ectx)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	fee := 1 * 90.0 * 0.001
	wantPnL := (100-90)*1 - fee
	if res.PnL == nil {
		t.Fatalf("expected realized pnl on partial cover")
	}
	if diff := abs(*res.PnL - wantPnL); diff > 1e-9 {
		t.Errorf("unexpected pnl: got %f want %f", *res.PnL, wantPnL)
	}
	if diff := abs(res.Cash - (1000 + wantPnL)); diff > 1e-9 {
		t.Errorf("unexpected cash: got %f", res.Cash)
	}
	if res.Position.Side != account.SideShort || res.Position.Qty != 2 || res.Position.AvgPrice != 100 {
		t.Errorf("partial cover must keep side and avg: %+v", res.Position)
	}
	assertEquityIdentity(t, res, ectx.CurrentPrice)
}

func TestEngineExecute_FullCloseWithoutFlip(t *testing.T) {
	engine := NewEngine(Config{}, nil)
	ectx := makeContext(account.SideShort, 2, 100, 90, 1000)

	res, err := engine.Execute(ActionBuy, 2, ectx)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if res.Position.Side != account.SideNone || res.Position.Qty != 0 || res.Position.AvgPrice != 0 {
		t.Errorf("exact-qty close must flatten the position: %+v", res.Position)
	}
	if res.PnL == nil || abs(*res.PnL-20) > 1e-9 {
		t.Errorf("unexpected pnl: %+v", res.PnL)
	}
	if diff := abs(res.Cash - 1020); diff > 1e-9 {
		t.Errorf("unexpected cash: got %f", res.Cash)
	}
	assertEquityIdentity(t, res, ectx.CurrentPrice)
}

func TestEngineExecute_SellFlipsLongToShort(t *testing.T) {
	engine := NewEngine(Config{}, nil)
	ectx := makeContext(account.SideLong, 1, 100, 110, 1000)

	res, err := engine.Execute(ActionSell, 3, ectx)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if res.PnL == nil || abs(*res.PnL-10) > 1e-9 {
		t.Fatalf("expected close pnl 10, got %+v", res.PnL)
	}
	if res.Position.Side != account.SideShort || res.Position.Qty != 2 {
		t.Errorf("expected SHORT qty=2, got %+v", res.Position)
	}
	if diff := abs(res.Position.AvgPrice - 110); diff > 1e-9 {
		t.Errorf("flip remainder must open at fill price, got %f", res.Position.AvgPrice)
	}
	// 现金 = 1000 + 平仓盈亏 10 + 反手收入 220
	if diff := abs(res.Cash - 1230); diff > 1e-9 {
		t.Errorf("unexpected cash: got %f want 1230", res.Cash)
	}
	assertEquityIdentity(t, res, ectx.CurrentPrice)
}

func TestEngineExecute_FlipChecksCashAfterClose(t *testing.T) {
	engine := NewEngine(Config{}, nil)
	// 平仓盈亏入账前现金不足以反手，入账后刚好足够。
	ectx := makeContext(account.SideShort, 1, 120, 100, 90)

	res, err := engine.Execute(ActionBuy, 2, ectx)
	if err != nil {
		t.Fatalf("flip should pass the cash check with post-close cash: %v", err)
	}
	if res.Position.Side != account.SideLong || res.Position.Qty != 1 {
		t.Errorf("expected LONG qty=1, got %+v", res.Position)
	}
	if res.PnL == nil || abs(*res.PnL-20) > 1e-9 {
		t.Errorf("expected close pnl 20, got %+v", res.PnL)
	}
	// 现金 = 90 + 20 - 100
	if diff := abs(res.Cash - 10); diff > 1e-9 {
		t.Errorf("unexpected cash: got %f want 10", res.Cash)
	}
	assertEquityIdentity(t, res, ectx.CurrentPrice)
}

func TestEngineExecute_FlipFailureRevertsToPreCall(t *testing.T) {
	engine := NewEngine(Config{}, nil)
	ectx := makeContext(account.SideShort, 1, 120, 100, 50)

	res, err := engine.Execute(ActionBuy, 2, ectx)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if res.Success {
		t.Fatalf("expected success=false")
	}
	// 必须回到调用前的空头仓位，而不是平仓后的中间状态。
	if res.Cash != 50 || res.Position != ectx.Position || res.Equity != ectx.Equity {
		t.Errorf("failed flip must revert to pre-call state: %+v", res)
	}
}

func TestEngineExecute_SellOpensShortWithoutCashCheck(t *testing.T) {
	engine := NewEngine(Config{Slippage: 0.01, TakerFee: 0.001}, nil)
	ectx := makeContext(account.SideNone, 0, 0, 100, 0)

	res, err := engine.Execute(ActionSell, 2, ectx)
	if err != nil {
		t.Fatalf("opening a short must not require cash: %v", err)
	}

	fill := 100 * 0.99
	proceeds := 2 * fill
	fee := proceeds * 0.001
	if diff := abs(res.Cash - (proceeds - fee)); diff > 1e-9 {
		t.Errorf("unexpected cash: got %f want %f", res.Cash, proceeds-fee)
	}
	if res.Position.Side != account.SideShort || res.Position.Qty != 2 {
		t.Errorf("unexpected position: %+v", res.Position)
	}
	if diff := abs(res.Position.AvgPrice - fill); diff > 1e-9 {
		t.Errorf("unexpected avg price: got %f want %f", res.Position.AvgPrice, fill)
	}
	assertEquityIdentity(t, res, ectx.CurrentPrice)
}

func TestEngineExecute_SellAddsToShortVWAP(t *testing.T) {
	engine := NewEngine(Config{}, nil)
	ectx := makeContext(account.SideShort, 1, 100, 120, 1000)

	res, err := engine.Execute(ActionSell, 1, ectx)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if res.Position.Side != account.SideShort || res.Position.Qty != 2 {
		t.Errorf("unexpected position: %+v", res.Position)
	}
	if diff := abs(res.Position.AvgPrice - 110); diff > 1e-9 {
		t.Errorf("unexpected short vwap: got %f want 110", res.Position.AvgPrice)
	}
	if res.PnL != nil {
		t.Errorf("adding to a short must not realize pnl")
	}
	assertEquityIdentity(t, res, ectx.CurrentPrice)
}

func TestEngineExecute_ZeroQtyIsNoOp(t *testing.T) {
	engine := NewEngine(Config{Slippage: 0.01, TakerFee: 0.001}, nil)

	flat := makeContext(account.SideNone, 0, 0, 100, 1000)
	res, err := engine.Execute(ActionBuy, 0, flat)
	if err != nil {
		t.Fatalf("zero-qty buy failed: %v", err)
	}
	if !res.Position.IsFlat() || res.Cash != 1000 {
		t.Errorf("zero-qty buy from flat must stay flat: %+v", res)
	}

	long := makeContext(account.SideLong, 2, 100, 100, 1000)
	res, err = engine.Execute(ActionBuy, 0, long)
	if err != nil {
		t.Fatalf("zero-qty accumulate failed: %v", err)
	}
	if res.Position != long.Position || res.Cash != 1000 {
		t.Errorf("zero-qty accumulate must keep position: %+v", res)
	}
}

func TestEngineExecute_UnknownActionFails(t *testing.T) {
	engine := NewEngine(Config{}, nil)
	ectx := makeContext(account.SideNone, 0, 0, 100, 1000)

	res, err := engine.Execute(Action("NOPE"), 1, ectx)
	if err == nil {
		t.Fatalf("expected error for unknown action")
	}
	if res.Success {
		t.Fatalf("expected success=false")
	}
	if res.Cash != ectx.Cash || res.Position != ectx.Position {
		t.Errorf("unknown action must not mutate state")
	}
}

func TestSnapshot_RemarksEquity(t *testing.T) {
	state := account.State{
		Cash:   1000,
		Equity: -1, // 陈旧净值，必须被重新估值覆盖
		Position: account.Position{
			Symbol:   testSymbol,
			Qty:      2,
			AvgPrice: 100,
			Side:     account.SideLong,
		},
	}

	ectx := Snapshot(testSymbol, 110, state)
	if diff := abs(ectx.Equity - 1020); diff > 1e-9 {
		t.Errorf("snapshot must re-mark equity at the given price: got %f want 1020", ectx.Equity)
	}
	if ectx.CurrentPrice != 110 || ectx.Cash != 1000 {
		t.Errorf("unexpected snapshot: %+v", ectx)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
