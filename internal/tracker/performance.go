package tracker

import "math"

// epsilon keeps the Sharpe ratio finite on a flat return series.
const epsilon = 1e-7

// Performance summarizes a per-bar return series up to the latest bar.
type Performance struct {
	ReturnsMean     float64
	UnitSharpeRatio float64
	DrawDown        float64
	MaxDrawDown     float64
}

// DrawDown compounds the return series into a net-value curve and
// returns the per-bar drawdown from the running peak. Values are
// non-positive.
func DrawDown(returns []float64) []float64 {
	out := make([]float64, len(returns))
	netValue := 1.0
	peak := math.Inf(-1)
	for i, r := range returns {
		netValue *= 1 + r
		if netValue > peak {
			peak = netValue
		}
		out[i] = (netValue - peak) / peak
	}
	return out
}

// Summarize computes the running performance stats of a return series.
// The Sharpe ratio is per bar and unannualized; std is the population
// deviation.
func Summarize(returns []float64) Performance {
	if len(returns) == 0 {
		return Performance{}
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var sq float64
	for _, r := range returns {
		d := r - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(returns)))

	dd := DrawDown(returns)
	maxDD := 0.0
	for _, d := range dd {
		if d < maxDD {
			maxDD = d
		}
	}
	return Performance{
		ReturnsMean:     mean,
		UnitSharpeRatio: mean / (std + epsilon),
		DrawDown:        math.Abs(dd[len(dd)-1]),
		MaxDrawDown:     math.Abs(maxDD),
	}
}
