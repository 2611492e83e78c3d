package feature

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	talib "github.com/markcheno/go-talib"
	"go.uber.org/zap"

	"paper-trader/internal/exchange"
)

const (
	minCandles1H = 60
	minCandles4H = 30
)

// TrendFeatures 汇总均线排列、MACD 与高一级时间框架的趋势方向。
type TrendFeatures struct {
	EMA12                float64
	EMA26                float64
	EMA50                float64
	EMARank              string
	PriceAboveEMA12      bool
	PriceAboveEMA26      bool
	PriceAboveEMA50      bool
	MACDValue            float64
	MACDSignal           float64
	MACDHistogram        float64
	MACDHistogramChange  float64
	HigherTimeframeTrend string
}

// MomentumFeatures 汇总 RSI 与成交量动量。
type MomentumFeatures struct {
	RSIValue         float64
	RSIState         string
	VolumeRatio      float64
	VolumeAverage20  float64
	VolumeDivergence string
}

// VolatilityFeatures 汇总 ATR 与收益率波动水平。
type VolatilityFeatures struct {
	ATRAbsolute          float64
	ATRRelative          float64
	RecentVolatility     float64
	HistoricalVolatility float64
	VolatilityRatio      float64
}

// MarketStructureFeatures 描述近期价格运行区间。
type MarketStructureFeatures struct {
	RecentHigh float64
	RecentLow  float64
	PriceRange float64
}

// FeatureSet 是一次市场快照提取出的全部特征，供提示词拼装使用。
type FeatureSet struct {
	Symbol          string
	GeneratedAt     time.Time
	LastPrice       float64
	Trend           TrendFeatures
	Momentum        MomentumFeatures
	Volatility      VolatilityFeatures
	MarketStructure MarketStructureFeatures
}

// computed 保存单一时间框架的指标计算结果。
type computed struct {
	ema12     float64
	ema26     float64
	ema50     float64
	macd      float64
	macdSig   float64
	macdHist  float64
	prevHist  float64
	rsi       float64
	atrAbs    float64
	atrRel    float64
	volAvg20  float64
	volRatio  float64
	close     float64
	prevClose float64
	closes    []float64
	highs     []float64
	lows      []float64
}

type cacheEntry struct {
	key    string
	result computed
}

// Extractor 根据市场快照提取特征，带按时间框架的结果缓存。
type Extractor struct {
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewExtractor 构建带结果缓存的特征提取器。
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		logger: logger,
		cache:  make(map[string]cacheEntry),
	}
}

// Extract 依据市场快照计算特征集。
func (e *Extractor) Extract(ctx context.Context, snapshot exchange.MarketSnapshot) (FeatureSet, error) {
	if got := len(snapshot.Candles1H); got < minCandles1H {
		return FeatureSet{}, fmt.Errorf("feature: 1小时K线不足，需要 %d 根，实际 %d 根", minCandles1H, got)
	}
	if got := len(snapshot.Candles4H); got < minCandles4H {
		return FeatureSet{}, fmt.Errorf("feature: 4小时K线不足，需要 %d 根，实际 %d 根", minCandles4H, got)
	}
	if err := ctx.Err(); err != nil {
		return FeatureSet{}, err
	}

	res1h := e.compute(exchange.Timeframe1h, snapshot.Candles1H)
	res4h := e.compute(exchange.Timeframe4h, snapshot.Candles4H)

	features := FeatureSet{
		Symbol:          snapshot.Symbol,
		GeneratedAt:     snapshot.RetrievedAt.UTC(),
		LastPrice:       clean(snapshot.LastPrice),
		Trend:           assembleTrend(res1h, res4h),
		Momentum:        assembleMomentum(res1h),
		Volatility:      assembleVolatility(res1h),
		MarketStructure: assembleStructure(res1h),
	}

	e.logger.Debug("特征集生成完毕",
		zap.String("symbol", features.Symbol),
		zap.Time("generated_at", features.GeneratedAt),
	)

	return features, nil
}

// compute 按时间框架缓存最近一次计算结果，同一根收盘K线只算一次。
func (e *Extractor) compute(timeframe string, candles []exchange.Candle) computed {
	key := fmt.Sprintf("%s:%d:%d", timeframe, len(candles), candles[len(candles)-1].Timestamp.Unix())

	e.mu.Lock()
	if entry, ok := e.cache[timeframe]; ok && entry.key == key {
		e.mu.Unlock()
		return entry.result
	}
	e.mu.Unlock()

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}

	ema12 := talib.Ema(closes, 12)
	ema26 := talib.Ema(closes, 26)
	ema50 := talib.Ema(closes, 50)
	macd, macdSignal, macdHist := talib.Macd(closes, 12, 26, 9)
	rsi := talib.Rsi(closes, 14)
	atr := talib.Atr(highs, lows, closes, 14)

	lastClose := last(closes)
	atrAbs := last(atr)
	volAvg20 := average(tail(volumes, 20))

	result := computed{
		ema12:     last(ema12),
		ema26:     last(ema26),
		ema50:     last(ema50),
		macd:      last(macd),
		macdSig:   last(macdSignal),
		macdHist:  last(macdHist),
		prevHist:  prev(macdHist),
		rsi:       last(rsi),
		atrAbs:    atrAbs,
		atrRel:    safeDivide(atrAbs, lastClose),
		volAvg20:  volAvg20,
		volRatio:  safeDivide(last(volumes), volAvg20),
		close:     lastClose,
		prevClose: prev(closes),
		closes:    closes,
		highs:     highs,
		lows:      lows,
	}

	e.mu.Lock()
	e.cache[timeframe] = cacheEntry{key: key, result: result}
	e.mu.Unlock()

	return result
}

func assembleTrend(res1h, res4h computed) TrendFeatures {
	closePrice := clean(res1h.close)

	return TrendFeatures{
		EMA12:                clean(res1h.ema12),
		EMA26:                clean(res1h.ema26),
		EMA50:                clean(res1h.ema50),
		EMARank:              emaAlignment(res1h.ema12, res1h.ema26, res1h.ema50),
		PriceAboveEMA12:      closePrice > res1h.ema12,
		PriceAboveEMA26:      closePrice > res1h.ema26,
		PriceAboveEMA50:      closePrice > res1h.ema50,
		MACDValue:            clean(res1h.macd),
		MACDSignal:           clean(res1h.macdSig),
		MACDHistogram:        clean(res1h.macdHist),
		MACDHistogramChange:  clean(res1h.macdHist - res1h.prevHist),
		HigherTimeframeTrend: higherTrend(res4h),
	}
}

func assembleMomentum(res computed) MomentumFeatures {
	return MomentumFeatures{
		RSIValue:         clean(res.rsi),
		RSIState:         rsiZone(res.rsi),
		VolumeRatio:      clean(res.volRatio),
		VolumeAverage20:  clean(res.volAvg20),
		VolumeDivergence: volumePriceSignal(res),
	}
}

func assembleVolatility(res computed) VolatilityFeatures {
	recentVol, historicalVol, ratio := volatilityProfile(res.closes)

	return VolatilityFeatures{
		ATRAbsolute:          clean(res.atrAbs),
		ATRRelative:          clean(res.atrRel),
		RecentVolatility:     clean(recentVol),
		HistoricalVolatility: clean(historicalVol),
		VolatilityRatio:      clean(ratio),
	}
}

func assembleStructure(res computed) MarketStructureFeatures {
	low, high := recentRange(res.highs, res.lows)

	return MarketStructureFeatures{
		RecentHigh: clean(high),
		RecentLow:  clean(low),
		PriceRange: clean(high - low),
	}
}

func emaAlignment(fast, mid, slow float64) string {
	if fast > mid && mid > slow {
		return "bullish_alignment"
	}
	if fast < mid && mid < slow {
		return "bearish_alignment"
	}
	return "mixed_alignment"
}

func higherTrend(res computed) string {
	fast, slow := clean(res.ema12), clean(res.ema26)

	if fast == 0 && slow == 0 {
		return "unknown"
	}
	if fast > slow {
		return "bullish"
	}
	if fast < slow {
		return "bearish"
	}
	return "neutral"
}

func rsiZone(rsi float64) string {
	switch v := clean(rsi); {
	case v >= 70:
		return "overbought"
	case v <= 30:
		return "oversold"
	default:
		return "neutral"
	}
}

func volumePriceSignal(res computed) string {
	delta := clean(res.close - res.prevClose)
	heavy := clean(res.volRatio) > 1

	if delta == 0 {
		return "neutral"
	}
	if delta > 0 {
		if heavy {
			return "rally_with_volume"
		}
		return "rally_without_volume"
	}
	if heavy {
		return "selloff_with_volume"
	}
	return "selloff_without_volume"
}

// volatilityProfile 对比近 14 步与近 60 步收益率的标准差。
func volatilityProfile(closes []float64) (recent, historical, ratio float64) {
	rets := pctReturns(closes)
	if len(rets) == 0 {
		return 0, 0, 0
	}

	recent = stdDev(tail(rets, 14))
	historical = stdDev(tail(rets, 60))
	return recent, historical, safeDivide(recent, historical)
}

func pctReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	rets := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		rets = append(rets, closes[i]/closes[i-1]-1)
	}
	return rets
}

// recentRange 在最近 50 根K线内找最低价与最高价。
func recentRange(highs, lows []float64) (low, high float64) {
	n := min(50, len(highs), len(lows))
	if n == 0 {
		return 0, 0
	}

	low, high = lows[len(lows)-n], highs[len(highs)-n]
	for i := 1; i < n; i++ {
		if h := highs[len(highs)-n+i]; h > high {
			high = h
		}
		if l := lows[len(lows)-n+i]; l < low {
			low = l
		}
	}
	return low, high
}

func stdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}

	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return math.Sqrt(sq / float64(len(xs)))
}

func last(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}

func prev(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	return values[len(values)-2]
}

func tail(values []float64, n int) []float64 {
	if n <= 0 || len(values) == 0 {
		return nil
	}
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func safeDivide(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func clean(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
