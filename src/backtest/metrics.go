package backtest

import (
	"math"
	"time"
)

// CashFlow is one dated flow from the investor's point of view: negative for
// contributions (money leaving the investor), positive for withdrawals and
// the terminal liquidation value.
type CashFlow struct {
	Date   time.Time
	Amount float64
}

const (
	xirrGuess   = 0.10
	xirrMaxIter = 50
	xirrTol     = 1.48e-8
	xirrMin     = -1.0
	xirrMax     = 10.0
)

// XIRR solves for the money-weighted annual return of irregularly dated cash
// flows: the rate r with sum(amount_i / (1+r)^(days_i/365)) == 0. The root is
// found with the secant method from an initial guess of 10% and the result is
// clamped to [-100%, +1000%] to reject pathological roots. Fewer than two
// flows or non-convergence yields 0.0; the function never fails the caller.
func XIRR(flows []CashFlow) float64 {
	if len(flows) < 2 {
		return 0.0
	}

	minDate := flows[0].Date
	for _, f := range flows[1:] {
		if f.Date.Before(minDate) {
			minDate = f.Date
		}
	}
	years := make([]float64, len(flows))
	amounts := make([]float64, len(flows))
	for i, f := range flows {
		years[i] = f.Date.Sub(minDate).Hours() / 24.0 / 365.0
		amounts[i] = f.Amount
	}

	npv := func(rate float64) float64 {
		if rate <= -1.0 {
			return math.Inf(1)
		}
		var sum float64
		for i := range amounts {
			sum += amounts[i] / math.Pow(1+rate, years[i])
		}
		return sum
	}

	// Secant iteration; the second start point offsets the guess slightly.
	x0 := xirrGuess
	x1 := x0 * (1 + 1e-4)
	f0 := npv(x0)
	f1 := npv(x1)
	for i := 0; i < xirrMaxIter; i++ {
		if f1 == f0 || math.IsNaN(f1) || math.IsInf(f1, 0) {
			return 0.0
		}
		x2 := x1 - f1*(x1-x0)/(f1-f0)
		if math.IsNaN(x2) || math.IsInf(x2, 0) {
			return 0.0
		}
		if math.Abs(x2-x1) < xirrTol {
			return clamp(x2, xirrMin, xirrMax)
		}
		x0, f0 = x1, f1
		x1 = x2
		f1 = npv(x1)
	}
	return 0.0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Drawdown describes the largest peak-to-trough decline of an equity curve.
// MaxDrawdown is <= 0; 0 means the series never declined from a running high,
// in which case the dates are zero values. Recovered is true when the value
// later reached the pre-drawdown peak again.
type Drawdown struct {
	MaxDrawdown float64
	Peak        time.Time
	Trough      time.Time
	Recovery    time.Time
	Recovered   bool
}

// MaxDrawdown computes the maximum drawdown of a value series with its peak,
// trough, and first recovery dates. Dates and values must be parallel slices
// in axis order; days with a non-positive running maximum are skipped.
func MaxDrawdown(dates []time.Time, values []float64) Drawdown {
	if len(values) == 0 || len(dates) != len(values) {
		return Drawdown{}
	}

	runMax := values[0]
	runMaxIdx := 0
	mdd := 0.0
	troughIdx := -1
	peakIdx := -1
	for i, v := range values {
		if v > runMax {
			runMax = v
			runMaxIdx = i
		}
		if runMax <= 0 {
			continue
		}
		dd := (v - runMax) / runMax
		if dd < mdd {
			mdd = dd
			troughIdx = i
			peakIdx = runMaxIdx
		}
	}
	if troughIdx < 0 {
		return Drawdown{}
	}

	d := Drawdown{
		MaxDrawdown: mdd,
		Peak:        dates[peakIdx],
		Trough:      dates[troughIdx],
	}
	peakValue := values[peakIdx]
	for i := troughIdx; i < len(values); i++ {
		if values[i] >= peakValue {
			d.Recovery = dates[i]
			d.Recovered = true
			break
		}
	}
	return d
}
