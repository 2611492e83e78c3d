package exchange

import "time"

// 决策主周期与趋势过滤周期。
const (
	Timeframe1h = "1h"
	Timeframe4h = "4h"
)

const defaultCandleLimit = 200

// Candle 代表单根K线，时间戳为开盘时刻（UTC）。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Ticker 为最新成交行情。
type Ticker struct {
	Symbol    string
	Last      float64
	Timestamp time.Time
}

// MarketSnapshot 聚合最新价与两个时间框架的K线。
type MarketSnapshot struct {
	Symbol      string
	LastPrice   float64
	Candles1H   []Candle
	Candles4H   []Candle
	RetrievedAt time.Time
}

// SnapshotRequest 控制一次快照采集拉取的K线数量。
type SnapshotRequest struct {
	Limit1H int
	Limit4H int
}

// DefaultSnapshotRequest 给出决策周期使用的标准快照参数。
func DefaultSnapshotRequest() SnapshotRequest {
	return SnapshotRequest{
		Limit1H: defaultCandleLimit,
		Limit4H: defaultCandleLimit,
	}
}

// withDefaults 补齐未设置的拉取数量。
func (r SnapshotRequest) withDefaults() SnapshotRequest {
	def := DefaultSnapshotRequest()
	if r.Limit1H <= 0 {
		r.Limit1H = def.Limit1H
	}
	if r.Limit4H <= 0 {
		r.Limit4H = def.Limit4H
	}
	return r
}
