package executor

import (
	"github.com/shopspring/decimal"
)

// floorToStep rounds v down to a multiple of step.
func floorToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	s := decimal.NewFromFloat(step)
	return decimal.NewFromFloat(v).Div(s).Floor().Mul(s).InexactFloat64()
}

// ceilToStep rounds v up to a multiple of step.
func ceilToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	s := decimal.NewFromFloat(step)
	return decimal.NewFromFloat(v).Div(s).Ceil().Mul(s).InexactFloat64()
}

// roundToStep rounds v to the nearest multiple of step.
func roundToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	s := decimal.NewFromFloat(step)
	return decimal.NewFromFloat(v).Div(s).Round(0).Mul(s).InexactFloat64()
}

// subQty returns a-b computed on the decimal values of both.
func subQty(a, b float64) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).InexactFloat64()
}

// exceeds reports whether q is larger than limit.
func exceeds(q, limit float64) bool {
	return decimal.NewFromFloat(q).GreaterThan(decimal.NewFromFloat(limit))
}

// notional returns qty*price without binary rounding.
func notional(qty, price float64) decimal.Decimal {
	return decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(price))
}
