package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"paper-trader/internal/config"
)

const (
	defaultRetryBase = 500 * time.Millisecond
	defaultRetryCap  = 5 * time.Second
)

// Client 封装 ccxt 行情访问，统一做指数退避重试。
type Client struct {
	cfg    config.ExchangeConfig
	logger *zap.Logger
	api    *ccxt.Binanceusdm
	symbol string

	warmMu sync.Mutex
	warmed bool
}

// NewClient 构造 Binance USDⓈ-M 行情客户端。纸面交易只读行情，密钥可留空。
func NewClient(cfg config.ExchangeConfig, symbol string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	api := ccxt.NewBinanceusdm(ccxtOptions(cfg))
	if cfg.UseSandbox {
		api.SetSandboxMode(true)
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
		api:    api,
		symbol: symbol,
	}, nil
}

func ccxtOptions(cfg config.ExchangeConfig) map[string]interface{} {
	opts := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "future",
		},
	}
	if cfg.APIKey != "" {
		opts["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		opts["secret"] = cfg.APISecret
	}
	if cfg.APIPass != "" {
		opts["password"] = cfg.APIPass
	}
	return opts
}

// Symbol 返回客户端绑定的交易对。
func (c *Client) Symbol() string {
	return c.symbol
}

// FetchCandles 拉取指定周期的K线。
func (c *Client) FetchCandles(ctx context.Context, timeframe string, limit int64) ([]Candle, error) {
	if limit <= 0 {
		limit = 1
	}
	if err := c.warmMarkets(ctx); err != nil {
		return nil, err
	}

	var raw []ccxt.OHLCV
	err := c.withRetry(ctx, "fetch_ohlcv_"+timeframe, func() error {
		bars, fetchErr := c.api.FetchOHLCV(
			c.symbol,
			ccxt.WithFetchOHLCVTimeframe(timeframe),
			ccxt.WithFetchOHLCVLimit(limit),
		)
		if fetchErr != nil {
			return fetchErr
		}
		raw = bars
		return nil
	})
	if err != nil {
		return nil, err
	}

	return toCandles(raw), nil
}

// FetchTicker 拉取最新成交行情。
func (c *Client) FetchTicker(ctx context.Context) (Ticker, error) {
	if err := c.warmMarkets(ctx); err != nil {
		return Ticker{}, err
	}

	var raw ccxt.Ticker
	err := c.withRetry(ctx, "fetch_ticker", func() error {
		tk, fetchErr := c.api.FetchTicker(c.symbol)
		if fetchErr != nil {
			return fetchErr
		}
		raw = tk
		return nil
	})
	if err != nil {
		return Ticker{}, err
	}

	return convertTicker(c.symbol, raw), nil
}

// warmMarkets 首次调用前加载市场元数据，失败的加载会在下次调用时重来。
func (c *Client) warmMarkets(ctx context.Context) error {
	c.warmMu.Lock()
	defer c.warmMu.Unlock()

	if c.warmed {
		return nil
	}

	err := c.withRetry(ctx, "load_markets", func() error {
		_, loadErr := c.api.LoadMarkets()
		return loadErr
	})
	if err != nil {
		return err
	}

	c.warmed = true
	c.logger.Info("市场元数据加载完成", zap.String("symbol", c.symbol))
	return nil
}

func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	base := c.cfg.Retry.MinDelay
	if base <= 0 {
		base = defaultRetryBase
	}
	ceil := c.cfg.Retry.MaxDelay
	if ceil <= 0 {
		ceil = defaultRetryCap
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		began := time.Now()
		callErr := fn()
		if callErr == nil {
			if attempt > 1 {
				c.logger.Info("行情接口重试后恢复",
					zap.String("op", op),
					zap.Int("attempts", attempt),
					zap.Duration("elapsed", time.Since(began)),
				)
			}
			return nil
		}

		normalized, retry := c.inspectErr(callErr)

		if errors.Is(normalized, ErrMaintenance) {
			c.logger.Warn("交易所处于维护窗口，跳过重试",
				zap.String("op", op),
				zap.Error(normalized),
			)
			return normalized
		}

		if !retry || attempt >= c.cfg.Retry.MaxAttempts {
			c.logger.Error("行情接口调用失败",
				zap.String("op", op),
				zap.Int("attempts", attempt),
				zap.Duration("elapsed", time.Since(began)),
				zap.Error(normalized),
			)
			return normalized
		}

		wait := backoffDelay(attempt, base, ceil)
		c.logger.Warn("行情接口调用失败，准备退避重试",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalized),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// inspectErr 规范化交易所错误并判定是否可重试。
func (c *Client) inspectErr(err error) (error, bool) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var exErr *ccxt.Error
	if errors.As(err, &exErr) {
		if exErr.Type == ccxt.OnMaintenanceErrType {
			reason := strings.TrimSpace(exErr.Message)
			if reason == "" {
				reason = "exchange under maintenance"
			}
			return fmt.Errorf("%w: %s", ErrMaintenance, reason), false
		}
		return err, isTransientKind(exErr)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return err, true
	}

	return err, false
}

func isTransientKind(exErr *ccxt.Error) bool {
	switch exErr.Type {
	case ccxt.NetworkErrorErrType,
		ccxt.RequestTimeoutErrType,
		ccxt.ExchangeNotAvailableErrType,
		ccxt.RateLimitExceededErrType,
		ccxt.DDoSProtectionErrType,
		ccxt.BadResponseErrType,
		ccxt.NullResponseErrType:
		return true
	default:
		return false
	}
}

func backoffDelay(attempt int, base, ceil time.Duration) time.Duration {
	wait := base << uint(attempt-1)
	if wait <= 0 || wait > ceil {
		return ceil
	}
	return wait
}

func toCandles(raw []ccxt.OHLCV) []Candle {
	out := make([]Candle, len(raw))
	for i, bar := range raw {
		out[i] = Candle{
			Timestamp: time.UnixMilli(bar.Timestamp).UTC(),
			Open:      bar.Open,
			High:      bar.High,
			Low:       bar.Low,
			Close:     bar.Close,
			Volume:    bar.Volume,
		}
	}
	return out
}

func convertTicker(symbol string, t ccxt.Ticker) Ticker {
	last := derefFloat(t.Last)
	if last == 0 {
		last = derefFloat(t.Close)
	}
	if last == 0 {
		bid := derefFloat(t.Bid)
		ask := derefFloat(t.Ask)
		if bid > 0 && ask > 0 {
			last = (bid + ask) / 2
		}
	}

	var ts time.Time
	if t.Timestamp != nil {
		ts = time.UnixMilli(*t.Timestamp).UTC()
	} else {
		ts = time.Now().UTC()
	}

	return Ticker{
		Symbol:    symbol,
		Last:      last,
		Timestamp: ts,
	}
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
