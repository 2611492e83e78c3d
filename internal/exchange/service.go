package exchange

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MarketDataService 聚合K线与最新价获取。
type MarketDataService struct {
	client *Client
	logger *zap.Logger
}

// NewMarketDataService 包装行情客户端，提供并发快照拉取。
func NewMarketDataService(client *Client, logger *zap.Logger) *MarketDataService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarketDataService{client: client, logger: logger}
}

// GetSnapshot 并发拉取两个时间框架的K线与最新价，组装市场数据快照。
func (s *MarketDataService) GetSnapshot(ctx context.Context, req SnapshotRequest) (MarketSnapshot, error) {
	req = req.withDefaults()

	snapshot := MarketSnapshot{Symbol: s.client.Symbol()}

	group, groupCtx := errgroup.WithContext(ctx)
	fetch := func(timeframe string, limit int, dst *[]Candle) {
		group.Go(func() error {
			data, err := s.client.FetchCandles(groupCtx, timeframe, int64(limit))
			if err != nil {
				return err
			}
			*dst = data
			return nil
		})
	}

	fetch(Timeframe1h, req.Limit1H, &snapshot.Candles1H)
	fetch(Timeframe4h, req.Limit4H, &snapshot.Candles4H)

	group.Go(func() error {
		ticker, err := s.client.FetchTicker(groupCtx)
		if err != nil {
			return err
		}
		snapshot.LastPrice = ticker.Last
		return nil
	})

	if err := group.Wait(); err != nil {
		return MarketSnapshot{}, err
	}

	snapshot.RetrievedAt = time.Now().UTC()

	s.logger.Debug("市场快照就绪",
		zap.String("symbol", snapshot.Symbol),
		zap.Float64("last_price", snapshot.LastPrice),
		zap.Int("candles_1h", len(snapshot.Candles1H)),
		zap.Int("candles_4h", len(snapshot.Candles4H)),
	)

	return snapshot, nil
}
