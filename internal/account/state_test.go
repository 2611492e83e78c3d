package account

import "testing"

func TestUnrealizedPnL(t *testing.T) {
	cases := []struct {
		name  string
		pos   Position
		price float64
		want  float64
	}{
		{"long profit", Position{Qty: 2, AvgPrice: 100, Side: SideLong}, 110, 20},
		{"long loss", Position{Qty: 2, AvgPrice: 100, Side: SideLong}, 90, -20},
		{"short profit", Position{Qty: 3, AvgPrice: 100, Side: SideShort}, 90, 30},
		{"short loss", Position{Qty: 3, AvgPrice: 100, Side: SideShort}, 110, -30},
		{"flat", Flat("BTC/USDT:USDT"), 110, 0},
	}

	for _, tc := range cases {
		if got := tc.pos.UnrealizedPnL(tc.price); got != tc.want {
			t.Errorf("%s: got %f want %f", tc.name, got, tc.want)
		}
	}
}

func TestNewState(t *testing.T) {
	st := NewState("ETH/USDT:USDT", 5000)
	if st.Cash != 5000 || st.Equity != 5000 {
		t.Errorf("unexpected initial balances: %+v", st)
	}
	if !st.Position.IsFlat() || st.Position.Symbol != "ETH/USDT:USDT" {
		t.Errorf("initial position must be flat: %+v", st.Position)
	}
}

func TestMarkEquity(t *testing.T) {
	st := State{
		Cash:     1000,
		Equity:   1000,
		Position: Position{Symbol: "BTC/USDT:USDT", Qty: 1, AvgPrice: 100, Side: SideShort},
	}

	marked := st.MarkEquity(80)
	if marked.Equity != 1020 {
		t.Errorf("unexpected marked equity: got %f want 1020", marked.Equity)
	}
	// 原值不受影响，State 是值语义。
	if st.Equity != 1000 {
		t.Errorf("MarkEquity must not mutate the receiver")
	}
}
