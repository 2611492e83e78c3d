package backtest

import (
	"context"
	"errors"

	"paper-trader/internal/ai"
	"paper-trader/internal/exchange"
	"paper-trader/internal/execution"
	"paper-trader/internal/feature"
)

// SliceSnapshotProvider 按序回放内存中的快照序列，耗尽后返回结束标记。
type SliceSnapshotProvider struct {
	queue  []exchange.MarketSnapshot
	cursor int
}

// NewSliceSnapshotProvider 包装一段历史快照作为回测数据源。
func NewSliceSnapshotProvider(snaps []exchange.MarketSnapshot) *SliceSnapshotProvider {
	return &SliceSnapshotProvider{queue: snaps}
}

// Next 返回下一张快照，序列耗尽时 ok 为 false。
func (p *SliceSnapshotProvider) Next(ctx context.Context) (exchange.MarketSnapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return exchange.MarketSnapshot{}, false, err
	}
	if p.cursor >= len(p.queue) {
		return exchange.MarketSnapshot{}, false, nil
	}

	snap := p.queue[p.cursor]
	p.cursor++
	return snap, true, nil
}

// DecisionProviderFunc 把普通函数适配成决策提供者，便于脚本化回测。
type DecisionProviderFunc func(ctx context.Context, features feature.FeatureSet, state execution.Context) (ai.Decision, error)

// Decide 调用底层函数。
func (f DecisionProviderFunc) Decide(ctx context.Context, features feature.FeatureSet, state execution.Context) (ai.Decision, error) {
	if f == nil {
		return ai.Decision{}, errors.New("backtest: 决策函数为 nil")
	}
	return f(ctx, features, state)
}
