package backtest

import (
	"math"
	"time"
)

// tradingDaysPerYear annualizes daily log-return statistics.
const tradingDaysPerYear = 250

// NavSample is one day's net asset value.
type NavSample struct {
	Day time.Time
	Nav float64
}

// Stats summarizes a NAV series.
type Stats struct {
	Mean   float64 // annualized mean log-return
	Std    float64 // annualized standard deviation
	Sharpe float64
	Kelly  float64
}

// ComputeStats derives summary statistics from the daily log-returns of the
// NAV series. NaN returns are ignored; a zero-variance series yields NaN
// ratios rather than a division panic.
func ComputeStats(samples []NavSample) Stats {
	return StatsFromReturns(LogReturns(samples))
}

// StatsFromReturns derives summary statistics from an already computed series
// of daily log-returns.
func StatsFromReturns(returns []float64) Stats {
	mean := nanMean(returns)
	std := nanStd(returns)
	return Stats{
		Mean:   mean * tradingDaysPerYear,
		Std:    std * math.Sqrt(tradingDaysPerYear),
		Sharpe: mean / std * math.Sqrt(tradingDaysPerYear),
		Kelly:  mean / (std * std),
	}
}

// LogReturns returns the day-over-day log-returns of the series, one entry
// shorter than the input.
func LogReturns(samples []NavSample) []float64 {
	if len(samples) < 2 {
		return nil
	}
	returns := make([]float64, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		returns[i-1] = math.Log(samples[i].Nav) - math.Log(samples[i-1].Nav)
	}
	return returns
}

func nanMean(xs []float64) float64 {
	sum, n := 0.0, 0
	for _, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		sum += x
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func nanStd(xs []float64) float64 {
	mean := nanMean(xs)
	if math.IsNaN(mean) {
		return math.NaN()
	}
	sq, n := 0.0, 0
	for _, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		d := x - mean
		sq += d * d
		n++
	}
	return math.Sqrt(sq / float64(n))
}
