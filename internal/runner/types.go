package runner

import (
	"context"
	"time"

	"paper-trader/internal/ai"
	"paper-trader/internal/execution"
)

// TickSource 抽象定时信号源。
type TickSource interface {
	OnTick(fn func()) int
	OffTick(id int)
}

// PriceOracle 提供最新市场价，无数据时返回 0。
type PriceOracle interface {
	CurrentPrice() float64
}

// DecisionProvider 依据账户与行情快照产出交易决策。
type DecisionProvider interface {
	Decide(ctx context.Context, state execution.Context) (ai.Decision, error)
}

// Options 控制调度器行为。
type Options struct {
	Name          string
	Symbol        string
	InitialCash   float64
	Cooldown      time.Duration
	DecideTimeout time.Duration
}

// Deps 聚合调度器的外部依赖。
type Deps struct {
	Ticks    TickSource
	Oracle   PriceOracle
	Provider DecisionProvider
	Engine   execution.Executor
	OnResult ResultFunc
}

// CycleResult 汇总一次执行周期的全部信息。
type CycleResult struct {
	ID        string
	Symbol    string
	Decision  ai.Decision
	Result    execution.Result
	Err       error
	StartedAt time.Time
	Elapsed   time.Duration
}

// ResultFunc 在每个执行周期结束后被调用。
type ResultFunc func(ctx context.Context, res CycleResult)
