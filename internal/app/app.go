package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"paper-trader/internal/ai"
	"paper-trader/internal/config"
	"paper-trader/internal/exchange"
	"paper-trader/internal/execution"
	"paper-trader/internal/monitor"
	"paper-trader/internal/runner"
	"paper-trader/internal/store"
	"paper-trader/internal/ticker"
)

// App 负责装配各组件并驱动整个模拟盘的生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 注入配置、日志与存储，返回未启动的应用。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 组装行情、决策、撮合与监控各组件，阻塞运行直到 ctx 结束。
// 停机顺序与启动顺序相反：先停定时器，再注销调度器，最后停行情。
func (a *App) Run(ctx context.Context) error {
	symbol := a.cfg.Exchange.Market

	a.logger.Info("模拟盘交易系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("exchange", a.cfg.Exchange.Name),
		zap.String("market", symbol),
	)

	client, err := exchange.NewClient(a.cfg.Exchange, symbol, a.logger)
	if err != nil {
		return fmt.Errorf("初始化行情客户端失败: %w", err)
	}

	marketSvc := exchange.NewMarketDataService(client, a.logger)

	feed := exchange.NewPriceFeed(client, a.cfg.Exchange.FeedInterval, a.logger)
	feed.Start(ctx)
	defer feed.Stop()

	aiClient, err := ai.NewClient(a.cfg.OpenAI, marketSvc, a.logger)
	if err != nil {
		return fmt.Errorf("初始化AI客户端失败: %w", err)
	}

	engine := execution.NewEngine(execution.Config{
		Slippage: a.cfg.Engine.Slippage,
		TakerFee: a.cfg.Engine.TakerFee,
	}, a.logger)

	monitorSvc, err := monitor.NewService(a.store, a.logger)
	if err != nil {
		return fmt.Errorf("初始化监控服务失败: %w", err)
	}

	tracker, err := monitor.NewDailyTracker(a.store.DB(), a.logger)
	if err != nil {
		return fmt.Errorf("初始化每日权益跟踪失败: %w", err)
	}

	ticks := ticker.New(a.cfg.Scheduler.TickInterval, a.logger)

	run, err := runner.New(runner.Options{
		Name:          a.cfg.Scheduler.Name,
		Symbol:        symbol,
		InitialCash:   a.cfg.Scheduler.InitialCash,
		Cooldown:      a.cfg.Scheduler.Cooldown,
		DecideTimeout: a.cfg.Scheduler.DecideTimeout,
	}, runner.Deps{
		Ticks:    ticks,
		Oracle:   feed,
		Provider: aiClient,
		Engine:   engine,
		OnResult: a.recordCycle(monitorSvc, tracker),
	}, a.logger)
	if err != nil {
		return fmt.Errorf("初始化调度器失败: %w", err)
	}

	if a.cfg.Monitor.Enabled {
		newMonitorServer(a.cfg.Monitor.ListenAddr, monitorSvc, tracker, run, a.logger).Start(ctx)
	}

	run.Start(ctx)
	defer run.Stop()

	ticks.Start()
	defer ticks.Stop()

	<-ctx.Done()
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("运行被异常中断: %w", err)
	}
	a.logger.Info("收到退出信号，开始停机")
	return nil
}

// recordCycle 把每个执行周期的产出落入监控事件表与每日权益表。
func (a *App) recordCycle(svc *monitor.Service, tracker *monitor.DailyTracker) runner.ResultFunc {
	return func(ctx context.Context, res runner.CycleResult) {
		if res.Decision.Action != "" {
			svc.RecordDecision(ctx, res.ID, res.Symbol, res.Decision)
		}

		if res.Err != nil {
			svc.RecordError(ctx, "执行周期失败", res.Err, map[string]interface{}{
				"cycle_id": res.ID,
				"symbol":   res.Symbol,
			})
			if res.Result.Action != "" {
				svc.RecordExecution(ctx, res.ID, res.Symbol, res.Result, res.Elapsed)
			}
			return
		}

		svc.RecordExecution(ctx, res.ID, res.Symbol, res.Result, res.Elapsed)

		state := res.Result.State()
		svc.RecordAccount(ctx, res.ID, state)

		status, err := tracker.Update(ctx, res.StartedAt, state.Equity)
		if err != nil {
			a.logger.Warn("更新每日权益失败", zap.Error(err))
			return
		}
		a.logger.Info("当日权益快照",
			zap.String("trading_date", status.TradingDate),
			zap.Float64("equity", status.CurrentEquity),
			zap.Float64("change_percent", status.ChangePercent),
		)
	}
}
