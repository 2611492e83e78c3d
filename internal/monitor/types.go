package monitor

import (
	"time"

	"paper-trader/internal/account"
	"paper-trader/internal/ai"
	"paper-trader/internal/execution"
)

// EventType 标识监控事件的类别。
type EventType string

const (
	EventDecision  EventType = "decision"
	EventExecution EventType = "execution"
	EventAccount   EventType = "account"
	EventError     EventType = "error"
)

// Event 是写入事件表的统一载体。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// DecisionPayload 记录一次AI决策。
type DecisionPayload struct {
	CycleID  string      `json:"cycle_id"`
	Symbol   string      `json:"symbol"`
	Decision ai.Decision `json:"decision"`
}

// ExecutionPayload 记录一次模拟成交。
type ExecutionPayload struct {
	CycleID   string           `json:"cycle_id"`
	Symbol    string           `json:"symbol"`
	Result    execution.Result `json:"result"`
	ElapsedMs int64            `json:"elapsed_ms"`
}

// AccountPayload 追踪账户状态轨迹。
type AccountPayload struct {
	CycleID string        `json:"cycle_id"`
	State   account.State `json:"state"`
}

// ErrorPayload 携带异常信息与现场上下文。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// DailyStatus 描述单个交易日的净值变化。
type DailyStatus struct {
	TradingDate   string  `json:"trading_date"`
	StartEquity   float64 `json:"start_equity"`
	CurrentEquity float64 `json:"current_equity"`
	ChangePercent float64 `json:"change_percent"`
}
