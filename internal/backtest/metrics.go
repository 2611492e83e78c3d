package backtest

import "math"

// Metrics 描述一次回测的绩效汇总。
type Metrics struct {
	TotalReturn float64
	MaxDrawdown float64
	SharpeRatio float64
}

// calculateMetrics 从净值曲线推导分步收益并汇总指标。
func calculateMetrics(equity []float64) Metrics {
	if len(equity) == 0 {
		return Metrics{}
	}

	initial := equity[0]
	final := equity[len(equity)-1]
	totalReturn := 0.0
	if initial > 0 {
		totalReturn = final/initial - 1
	}

	return Metrics{
		TotalReturn: totalReturn,
		MaxDrawdown: computeDrawdown(equity),
		SharpeRatio: computeSharpe(stepReturns(equity)),
	}
}

func stepReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1]
		if prev == 0 {
			continue
		}
		returns = append(returns, equity[i]/prev-1)
	}
	return returns
}

// computeDrawdown 返回净值曲线从峰值到谷底的最大回撤幅度。
func computeDrawdown(equity []float64) float64 {
	var peak, worst float64
	for _, v := range equity {
		if v > peak {
			peak = v
			continue
		}
		if peak <= 0 {
			continue
		}
		if dd := 1 - v/peak; dd > worst {
			worst = dd
		}
	}
	return worst
}

// computeSharpe 以样本标准差计算夏普比率，按每步1小时折算年化。
func computeSharpe(returns []float64) float64 {
	n := len(returns)
	if n == 0 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(n)

	var sq float64
	for _, r := range returns {
		sq += (r - mean) * (r - mean)
	}
	denom := float64(n)
	if n > 1 {
		denom = float64(n - 1)
	}

	std := math.Sqrt(sq / denom)
	if std == 0 {
		return 0
	}

	hoursPerYear := 24.0 * 365
	return mean / std * math.Sqrt(hoursPerYear)
}
