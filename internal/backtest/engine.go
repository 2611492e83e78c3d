package backtest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"paper-trader/internal/account"
	"paper-trader/internal/execution"
	"paper-trader/internal/feature"
)

// Result 聚合一次回测运行的全部产出。
type Result struct {
	Metrics     Metrics
	EquityCurve []float64
	Trades      int
	Rejected    int
	FinalState  account.State
}

// Engine 顺序回放历史快照，用真实撮合语义驱动账户状态演化。
type Engine struct {
	cfg       Config
	provider  SnapshotProvider
	extractor *feature.Extractor
	decision  DecisionProvider
	executor  execution.Executor
	logger    *zap.Logger
}

// NewEngine 组装回测引擎，依赖缺失时直接报错。
func NewEngine(cfg Config, provider SnapshotProvider, extractor *feature.Extractor, decision DecisionProvider, executor execution.Executor, logger *zap.Logger) (*Engine, error) {
	if provider == nil {
		return nil, fmt.Errorf("backtest: 快照源不能为空")
	}
	if extractor == nil {
		return nil, fmt.Errorf("backtest: 特征提取器不能为空")
	}
	if decision == nil {
		return nil, fmt.Errorf("backtest: 决策源不能为空")
	}
	if executor == nil {
		return nil, fmt.Errorf("backtest: 执行器不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		cfg:       cfg.normalize(),
		provider:  provider,
		extractor: extractor,
		decision:  decision,
		executor:  executor,
		logger:    logger,
	}, nil
}

// Run 执行完整回测。每根快照产出一个净值点：成交步取成交后净值，
// 跳过步按当根收盘价对持仓做市值重估。
func (e *Engine) Run(ctx context.Context) (Result, error) {
	state := account.NewState(e.cfg.Symbol, e.cfg.InitialCash)
	curve := []float64{state.Equity}
	trades := 0
	rejected := 0

	for {
		snapshot, ok, err := e.provider.Next(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("backtest: 读取快照失败: %w", err)
		}
		if !ok {
			break
		}
		if len(snapshot.Candles1H) == 0 {
			e.logger.Warn("快照缺少1小时K线，跳过该步")
			continue
		}

		price := snapshot.Candles1H[len(snapshot.Candles1H)-1].Close
		if price <= 0 {
			e.logger.Warn("快照收盘价非法，跳过该步", zap.Float64("price", price))
			continue
		}

		ectx := execution.Snapshot(e.cfg.Symbol, price, state)

		features, err := e.extractor.Extract(ctx, snapshot)
		if err != nil {
			e.logger.Warn("特征计算失败，跳过该样本", zap.Error(err))
			curve = append(curve, ectx.Equity)
			continue
		}

		decision, err := e.decision.Decide(ctx, features, ectx)
		if err != nil {
			e.logger.Warn("决策生成失败，跳过该样本", zap.Error(err))
			curve = append(curve, ectx.Equity)
			continue
		}

		normalized, normErr := decision.Normalize()
		if normErr != nil {
			e.logger.Warn("决策字段非法，按观望处理", zap.Error(normErr))
		}

		qty := normalized.OrderQty(ectx.Equity, ectx.CurrentPrice)
		result, execErr := e.executor.Execute(normalized.Action, qty, ectx)
		if execErr != nil {
			rejected++
			e.logger.Debug("执行被拒绝，账户状态保持不变", zap.Error(execErr))
			curve = append(curve, ectx.Equity)
			continue
		}

		if normalized.Action != execution.ActionHold && qty > 0 {
			trades++
		}
		state = result.State()
		curve = append(curve, result.Equity)
	}

	return Result{
		Metrics:     calculateMetrics(curve),
		EquityCurve: curve,
		Trades:      trades,
		Rejected:    rejected,
		FinalState:  state,
	}, nil
}
