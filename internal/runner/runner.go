package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paper-trader/internal/account"
	"paper-trader/internal/execution"
)

// Runner 把定时信号转化为完整的决策执行周期：
// 取价、请求决策、换算下单数量、调用执行引擎并维护模拟账户状态。
// 同一时刻至多运行一个周期，冷却期内的信号被直接丢弃。
type Runner struct {
	opts     Options
	ticks    TickSource
	oracle   PriceOracle
	provider DecisionProvider
	engine   execution.Executor
	onResult ResultFunc
	logger   *zap.Logger

	mu            sync.Mutex
	running       bool
	executing     bool
	lastExecution time.Time
	state         account.State
	tickID        int
	runCtx        context.Context
}

// New 创建调度器并初始化模拟账户。
func New(opts Options, deps Deps, logger *zap.Logger) (*Runner, error) {
	if deps.Ticks == nil {
		return nil, errors.New("runner: 定时信号源不能为空")
	}
	if deps.Oracle == nil {
		return nil, errors.New("runner: 价格源不能为空")
	}
	if deps.Provider == nil {
		return nil, errors.New("runner: 决策提供方不能为空")
	}
	if deps.Engine == nil {
		return nil, errors.New("runner: 执行引擎不能为空")
	}
	if opts.Symbol == "" {
		return nil, errors.New("runner: symbol 不能为空")
	}
	if opts.InitialCash < 0 {
		return nil, fmt.Errorf("runner: initial_cash 不能为负，当前为 %v", opts.InitialCash)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		opts:     opts,
		ticks:    deps.Ticks,
		oracle:   deps.Oracle,
		provider: deps.Provider,
		engine:   deps.Engine,
		onResult: deps.OnResult,
		logger:   logger,
		state:    account.NewState(opts.Symbol, opts.InitialCash),
	}, nil
}

// Start 注册定时回调并开始接收信号。重复调用为空操作。
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	r.running = true
	r.runCtx = ctx
	r.tickID = r.ticks.OnTick(r.handleTick)

	r.logger.Info("调度器已启动",
		zap.String("name", r.opts.Name),
		zap.String("symbol", r.opts.Symbol),
		zap.Duration("cooldown", r.opts.Cooldown),
		zap.Float64("initial_cash", r.opts.InitialCash),
	)
}

// Stop 注销定时回调。已在执行中的周期不会被中断。重复调用为空操作。
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	r.running = false
	r.ticks.OffTick(r.tickID)
	r.logger.Info("调度器已停止", zap.String("name", r.opts.Name))
}

// Snapshot 返回当前账户状态副本。
func (r *Runner) Snapshot() account.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LastExecution 返回最近一次周期的开始时间，从未执行过时为零值。
func (r *Runner) LastExecution() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastExecution
}

func (r *Runner) handleTick() {
	r.mu.Lock()

	if !r.running {
		r.mu.Unlock()
		return
	}
	if r.executing {
		r.mu.Unlock()
		r.logger.Debug("上一周期仍在执行，跳过本次信号")
		return
	}

	now := time.Now().UTC()
	if r.opts.Cooldown > 0 && !r.lastExecution.IsZero() {
		if elapsed := now.Sub(r.lastExecution); elapsed < r.opts.Cooldown {
			r.mu.Unlock()
			r.logger.Debug("冷却期未结束，跳过本次信号",
				zap.Duration("elapsed", elapsed),
				zap.Duration("cooldown", r.opts.Cooldown),
			)
			return
		}
	}

	r.executing = true
	r.lastExecution = now
	ctx := r.runCtx
	r.mu.Unlock()

	go r.runCycle(ctx, now)
}

func (r *Runner) runCycle(ctx context.Context, startedAt time.Time) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("执行周期发生 panic", zap.Any("panic", rec))
		}

		r.mu.Lock()
		r.executing = false
		r.mu.Unlock()
	}()

	cycleID := uuid.NewString()

	r.mu.Lock()
	state := r.state
	r.mu.Unlock()

	price := r.oracle.CurrentPrice()

	result := CycleResult{
		ID:        cycleID,
		Symbol:    r.opts.Symbol,
		StartedAt: startedAt,
	}

	if price <= 0 {
		result.Err = fmt.Errorf("runner: 当前无有效市场价: %v", price)
		result.Elapsed = time.Since(startedAt)
		r.logger.Warn("无有效市场价，跳过本周期",
			zap.String("cycle_id", cycleID),
			zap.Float64("price", price),
		)
		r.emit(ctx, result)
		return
	}

	ectx := execution.Snapshot(r.opts.Symbol, price, state)

	decideCtx := ctx
	if r.opts.DecideTimeout > 0 {
		var cancel context.CancelFunc
		decideCtx, cancel = context.WithTimeout(ctx, r.opts.DecideTimeout)
		defer cancel()
	}

	decision, err := r.provider.Decide(decideCtx, ectx)
	if err != nil {
		result.Err = fmt.Errorf("runner: 获取决策失败: %w", err)
		result.Elapsed = time.Since(startedAt)
		r.logger.Error("获取决策失败",
			zap.String("cycle_id", cycleID),
			zap.Error(err),
		)
		r.emit(ctx, result)
		return
	}

	normalized, normErr := decision.Normalize()
	if normErr != nil {
		r.logger.Warn("决策非法，已降级为观望",
			zap.String("cycle_id", cycleID),
			zap.Error(normErr),
		)
	}
	result.Decision = normalized

	qty := normalized.OrderQty(ectx.Equity, ectx.CurrentPrice)

	execResult, execErr := r.engine.Execute(normalized.Action, qty, ectx)
	result.Result = execResult
	result.Elapsed = time.Since(startedAt)

	if execErr != nil {
		result.Err = execErr
		r.logger.Warn("执行被拒绝，账户状态保持不变",
			zap.String("cycle_id", cycleID),
			zap.String("action", string(normalized.Action)),
			zap.Float64("qty", qty),
			zap.Error(execErr),
		)
		r.emit(ctx, result)
		return
	}

	r.mu.Lock()
	r.state = execResult.State()
	r.mu.Unlock()

	fields := []zap.Field{
		zap.String("cycle_id", cycleID),
		zap.String("action", string(execResult.Action)),
		zap.Float64("qty", execResult.Qty),
		zap.Float64("price", execResult.Price),
		zap.Float64("cash", execResult.Cash),
		zap.Float64("equity", execResult.Equity),
		zap.String("position_side", string(execResult.Position.Side)),
		zap.Float64("position_qty", execResult.Position.Qty),
		zap.Duration("elapsed", result.Elapsed),
	}
	if execResult.PnL != nil {
		fields = append(fields, zap.Float64("pnl", *execResult.PnL))
	}
	r.logger.Info("执行周期完成", fields...)

	r.emit(ctx, result)
}

func (r *Runner) emit(ctx context.Context, res CycleResult) {
	if r.onResult == nil {
		return
	}
	r.onResult(ctx, res)
}
