package backtest

import (
	"context"

	"paper-trader/internal/ai"
	"paper-trader/internal/exchange"
	"paper-trader/internal/execution"
	"paper-trader/internal/feature"
)

// SnapshotProvider 逐条供给历史快照，耗尽时返回 ok=false。
type SnapshotProvider interface {
	Next(ctx context.Context) (exchange.MarketSnapshot, bool, error)
}

// DecisionProvider 基于特征与账户上下文给出决策，便于在回测中注入不同策略源。
type DecisionProvider interface {
	Decide(ctx context.Context, features feature.FeatureSet, state execution.Context) (ai.Decision, error)
}
