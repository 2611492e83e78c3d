package exchange

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// tickerFetcher 抽象最新行情获取。
type tickerFetcher interface {
	FetchTicker(ctx context.Context) (Ticker, error)
}

var _ tickerFetcher = (*Client)(nil)

// PriceFeed 在后台按固定间隔轮询最新成交价并缓存，
// 供执行流程随时以非阻塞方式读取。行情中断期间沿用最后一次成功的价格。
type PriceFeed struct {
	fetcher  tickerFetcher
	interval time.Duration
	logger   *zap.Logger

	mu      sync.RWMutex
	last    Ticker
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPriceFeed 创建价格轮询器。
func NewPriceFeed(fetcher tickerFetcher, interval time.Duration, logger *zap.Logger) *PriceFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &PriceFeed{
		fetcher:  fetcher,
		interval: interval,
		logger:   logger,
	}
}

// Start 启动后台轮询。重复调用不产生额外协程。
func (f *PriceFeed) Start(ctx context.Context) {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	f.running = true
	f.cancel = cancel
	f.done = make(chan struct{})
	done := f.done
	f.mu.Unlock()

	go f.loop(loopCtx, done)
	f.logger.Info("价格轮询已启动", zap.Duration("interval", f.interval))
}

// Stop 停止轮询并等待后台协程退出。重复调用为空操作。
func (f *PriceFeed) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	cancel := f.cancel
	done := f.done
	f.mu.Unlock()

	cancel()
	<-done
	f.logger.Info("价格轮询已停止")
}

// CurrentPrice 返回缓存的最新成交价，尚未取得任何行情时返回 0。
func (f *PriceFeed) CurrentPrice() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.last.Last
}

// LastTicker 返回缓存的完整行情。
func (f *PriceFeed) LastTicker() Ticker {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.last
}

func (f *PriceFeed) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	f.refresh(ctx)

	timer := time.NewTimer(f.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		f.refresh(ctx)
		timer.Reset(f.interval)
	}
}

func (f *PriceFeed) refresh(ctx context.Context) {
	ticker, err := f.fetcher.FetchTicker(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if IsMaintenance(err) {
			f.logger.Info("交易所维护中，价格缓存暂停更新", zap.Error(err))
			return
		}
		f.logger.Warn("行情刷新失败，沿用上一次价格", zap.Error(err))
		return
	}

	if ticker.Last <= 0 {
		f.logger.Warn("收到非法最新价，忽略本次行情",
			zap.String("symbol", ticker.Symbol),
			zap.Float64("last", ticker.Last),
		)
		return
	}

	f.mu.Lock()
	f.last = ticker
	f.mu.Unlock()
}
