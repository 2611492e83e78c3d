package ai

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"paper-trader/internal/execution"
)

// Decision 是大模型给出的交易指令。
// Qty 为希望动用的净值比例，取值 [0,1]。
type Decision struct {
	Action execution.Action `json:"action"`
	Qty    float64          `json:"qty"`
	Reason string           `json:"reason"`
}

// HoldDecision 构造一个观望决策。
func HoldDecision(reason string) Decision {
	return Decision{Action: execution.ActionHold, Qty: 0, Reason: reason}
}

// Validate 检查动作与数量是否构成合法指令。
func (d Decision) Validate() error {
	switch d.Action {
	case execution.ActionBuy, execution.ActionSell, execution.ActionHold:
	default:
		return fmt.Errorf("action 字段取值非法: %s", string(d.Action))
	}

	if math.IsNaN(d.Qty) || math.IsInf(d.Qty, 0) {
		return fmt.Errorf("qty 必须为有限数值，当前为 %v", d.Qty)
	}
	if d.Qty < 0 || d.Qty > 1 {
		return fmt.Errorf("qty 必须位于 [0,1]，当前为 %v", d.Qty)
	}

	return nil
}

// Normalize 清理字段并返回可执行的决策。
// 原始决策非法时降级为观望，并返回导致降级的校验错误。
func (d Decision) Normalize() (Decision, error) {
	d.Action = execution.Action(strings.ToUpper(strings.TrimSpace(string(d.Action))))
	d.Reason = strings.TrimSpace(d.Reason)

	if err := d.Validate(); err != nil {
		return HoldDecision(fmt.Sprintf("决策非法，降级为观望: %v", err)), err
	}

	if d.Action == execution.ActionHold {
		d.Qty = 0
	}

	return d, nil
}

// OrderQty 将净值比例换算为以标的计价的下单数量。
// 观望、价格非正或净值非正时返回 0。
func (d Decision) OrderQty(equity, price float64) float64 {
	if d.Action == execution.ActionHold {
		return 0
	}
	if price <= 0 || equity <= 0 {
		return 0
	}
	return d.Qty * equity / price
}

// ParseDecision 从模型原始输出中提取并解析决策 JSON。
func ParseDecision(content string) (Decision, error) {
	payload, err := extractJSON(content)
	if err != nil {
		return Decision{}, err
	}

	var decision Decision
	if err := json.Unmarshal(payload, &decision); err != nil {
		return Decision{}, fmt.Errorf("ai: 决策 JSON 解析失败: %w", err)
	}
	return decision, nil
}

// extractJSON 截取首个 { 到最后一个 } 之间的内容，容忍 JSON 外的说明文字或代码块围栏。
func extractJSON(content string) ([]byte, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("ai: 模型输出中没有 JSON 对象: %s", content)
	}
	return []byte(content[start : end+1]), nil
}
