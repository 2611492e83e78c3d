package ai

import (
	"math"
	"strings"
	"testing"

	"paper-trader/internal/account"
	"paper-trader/internal/execution"
	"paper-trader/internal/feature"
)

func TestParseDecisionPlainJSON(t *testing.T) {
	content := `{"action": "BUY", "qty": 0.25, "reason": "trend up"}`

	decision, err := ParseDecision(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Action != execution.ActionBuy {
		t.Fatalf("unexpected action %q", decision.Action)
	}
	if decision.Qty != 0.25 {
		t.Fatalf("unexpected qty %v", decision.Qty)
	}
	if decision.Reason != "trend up" {
		t.Fatalf("unexpected reason %q", decision.Reason)
	}
}

func TestParseDecisionFencedJSON(t *testing.T) {
	content := "决策如下：\n```json\n{\"action\": \"SELL\", \"qty\": 0.5, \"reason\": \"趋势走弱\"}\n```\n"

	decision, err := ParseDecision(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Action != execution.ActionSell {
		t.Fatalf("unexpected action %q", decision.Action)
	}
	if decision.Qty != 0.5 {
		t.Fatalf("unexpected qty %v", decision.Qty)
	}
}

func TestParseDecisionWithoutJSON(t *testing.T) {
	if _, err := ParseDecision("抱歉，我无法给出决策。"); err == nil {
		t.Fatal("expected error for content without JSON")
	}
}

func TestParseDecisionMalformedJSON(t *testing.T) {
	if _, err := ParseDecision(`{"action": "BUY", "qty": }`); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestNormalizeCleansActionAndReason(t *testing.T) {
	decision := Decision{Action: " buy ", Qty: 0.3, Reason: " trend up "}

	normalized, err := decision.Normalize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if normalized.Action != execution.ActionBuy {
		t.Fatalf("unexpected action %q", normalized.Action)
	}
	if normalized.Reason != "trend up" {
		t.Fatalf("unexpected reason %q", normalized.Reason)
	}
	if normalized.Qty != 0.3 {
		t.Fatalf("unexpected qty %v", normalized.Qty)
	}
}

func TestNormalizeRejectsUnknownAction(t *testing.T) {
	decision := Decision{Action: "LIQUIDATE", Qty: 0.3}

	normalized, err := decision.Normalize()
	if err == nil {
		t.Fatal("expected validation error for unknown action")
	}
	if normalized.Action != execution.ActionHold {
		t.Fatalf("expected hold fallback, got %q", normalized.Action)
	}
	if normalized.Qty != 0 {
		t.Fatalf("expected zero qty on fallback, got %v", normalized.Qty)
	}
	if normalized.Reason == "" {
		t.Fatal("expected fallback reason to be populated")
	}
}

func TestNormalizeRejectsInvalidQty(t *testing.T) {
	for _, qty := range []float64{-0.1, 1.5, math.NaN(), math.Inf(1)} {
		decision := Decision{Action: execution.ActionBuy, Qty: qty}

		normalized, err := decision.Normalize()
		if err == nil {
			t.Fatalf("expected validation error for qty %v", qty)
		}
		if normalized.Action != execution.ActionHold {
			t.Fatalf("expected hold fallback for qty %v, got %q", qty, normalized.Action)
		}
	}
}

func TestNormalizeForcesZeroQtyOnHold(t *testing.T) {
	decision := Decision{Action: "hold", Qty: 0.9, Reason: "wait and see"}

	normalized, err := decision.Normalize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if normalized.Action != execution.ActionHold {
		t.Fatalf("unexpected action %q", normalized.Action)
	}
	if normalized.Qty != 0 {
		t.Fatalf("expected zero qty for hold, got %v", normalized.Qty)
	}
}

func TestOrderQtySizing(t *testing.T) {
	decision := Decision{Action: execution.ActionBuy, Qty: 0.5}

	if got := decision.OrderQty(10000, 100); got != 50 {
		t.Fatalf("expected qty 50, got %v", got)
	}
	if got := decision.OrderQty(10000, 0); got != 0 {
		t.Fatalf("expected zero qty at zero price, got %v", got)
	}
	if got := decision.OrderQty(-100, 100); got != 0 {
		t.Fatalf("expected zero qty at non-positive equity, got %v", got)
	}
	if got := HoldDecision("wait").OrderQty(10000, 100); got != 0 {
		t.Fatalf("expected zero qty for hold, got %v", got)
	}
}

func TestBuildPromptIncludesAccountState(t *testing.T) {
	state := execution.Snapshot("BTC/USDT:USDT", 50000, account.NewState("BTC/USDT:USDT", 10000))

	prompt, err := BuildPrompt(feature.FeatureSet{Symbol: "BTC/USDT:USDT"}, state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, fragment := range []string{"BTC/USDT:USDT", `"action": "BUY|SELL|HOLD"`, "NONE"} {
		if !strings.Contains(prompt, fragment) {
			t.Fatalf("prompt missing fragment %q", fragment)
		}
	}
}
