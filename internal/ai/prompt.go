package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"paper-trader/internal/execution"
	"paper-trader/internal/feature"
)

const decisionTemplate = `
你是一名加密货币量化交易员，负责管理一个模拟交易账户。请基于下面的市场特征与账户状况，决定下一步交易动作。

市场特征（JSON）：
{{ .FeaturesJSON }}

账户状况：
- 交易对: {{ .State.Symbol }}
- 最新价格: {{ printf "%.4f" .State.CurrentPrice }}
- 可用现金: {{ printf "%.2f" .State.Cash }}
- 账户净值: {{ printf "%.2f" .State.Equity }}
- 持仓方向: {{ .State.Position.Side }}
- 持仓数量: {{ printf "%.6f" .State.Position.Qty }}
- 持仓均价: {{ printf "%.4f" .State.Position.AvgPrice }}

决策要求：
1. 先确认趋势与动量是否指向高胜率方向；
2. 结合持仓与净值决定买入、卖出或观望；
3. qty 为本次动作动用的净值比例，取值范围 [0,1]；
4. 没有把握时返回 HOLD，不要勉强交易。

只输出一个 JSON 对象，不要附加任何其他文字，格式：
{
  "action": "BUY|SELL|HOLD",
  "qty": 0.0-1.0,
  "reason": "..."
}

补充说明：
- action=HOLD 时 qty 必须为 0；qty 不得超过 1。
- reason 用一句话说明关键依据。
`

var tmpl = template.Must(template.New("decision").Parse(decisionTemplate))

type promptContext struct {
	State        execution.Context
	FeaturesJSON string
}

// BuildPrompt 将特征与账户快照渲染成提示词。
func BuildPrompt(features feature.FeatureSet, state execution.Context) (string, error) {
	encoded, err := json.MarshalIndent(features, "", "  ")
	if err != nil {
		return "", fmt.Errorf("ai: 序列化特征失败: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, promptContext{
		State:        state,
		FeaturesJSON: string(encoded),
	})
	if err != nil {
		return "", fmt.Errorf("ai: 渲染提示词失败: %w", err)
	}
	return buf.String(), nil
}
