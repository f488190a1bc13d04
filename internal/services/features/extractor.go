package features

import (
	"math"
)

// LogReturns computes r_t = ln(p_t / p_{t-1}). Non-positive prices yield 0.
// It returns len(prices)-1 values, or nil if insufficient data.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// Mean returns the arithmetic mean, 0 for empty input.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev returns the sample standard deviation, 0 below two samples.
func StdDev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	sum, sum2 := 0.0, 0.0
	for _, x := range xs {
		sum += x
		sum2 += x * x
	}
	mean := sum / float64(n)
	variance := (sum2 - float64(n)*mean*mean) / float64(n-1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// Tail returns the last n values, or all of xs when shorter.
func Tail(xs []float64, n int) []float64 {
	if n <= 0 || n >= len(xs) {
		return xs
	}
	return xs[len(xs)-n:]
}

// SMA is the simple moving average of the last n values.
func SMA(xs []float64, n int) float64 {
	return Mean(Tail(xs, n))
}

// MeanAbsMove is the average absolute price change between consecutive values.
func MeanAbsMove(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	sum := 0.0
	for i := 1; i < len(prices); i++ {
		sum += math.Abs(prices[i] - prices[i-1])
	}
	return sum / float64(len(prices)-1)
}

// TrendStrength measures the net move of a window against its tick noise:
// |ln(last/first)| / (stdev(log returns) * sqrt(n)). Flat windows score 0.
func TrendStrength(prices []float64) float64 {
	rets := LogReturns(prices)
	if len(rets) == 0 || prices[0] <= 0 || prices[len(prices)-1] <= 0 {
		return 0
	}
	net := math.Abs(math.Log(prices[len(prices)-1] / prices[0]))
	sigma := StdDev(rets)
	if sigma == 0 {
		if net == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return net / (sigma * math.Sqrt(float64(len(rets))))
}

// Vector builds the feature map sent to remote scorers.
func Vector(prices, volumes []float64) map[string]float64 {
	rets := LogReturns(prices)
	out := map[string]float64{
		"ret_mean":  Mean(rets),
		"ret_std":   StdDev(rets),
		"trend":     TrendStrength(prices),
		"vol_mean":  Mean(volumes),
		"vol_last":  0,
		"n_samples": float64(len(prices)),
	}
	if len(volumes) > 0 {
		out["vol_last"] = volumes[len(volumes)-1]
	}
	if math.IsInf(out["trend"], 0) {
		out["trend"] = 0
	}
	return out
}

// Clamp bounds x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
