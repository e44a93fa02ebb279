package strategy

import (
	"math"

	"github.com/shopspring/decimal"
)

// pct returns (price - base) / base, or zero when base is not positive.
func pct(price, base float64) decimal.Decimal {
	if base <= 0 {
		return decimal.Zero
	}
	b := decimal.NewFromFloat(base)
	return decimal.NewFromFloat(price).Sub(b).DivRound(b, 10)
}

func atLeast(v decimal.Decimal, threshold float64) bool {
	return v.GreaterThanOrEqual(decimal.NewFromFloat(threshold))
}

func greaterThan(v decimal.Decimal, threshold float64) bool {
	return v.GreaterThan(decimal.NewFromFloat(threshold))
}

// RoundPrice rounds to cents, keeping four places for sub-dollar prices.
func RoundPrice(v float64) float64 {
	places := int32(2)
	if math.Abs(v) < 1 {
		places = 4
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// mulPrice returns base * factor rounded like a price.
func mulPrice(base, factor float64) float64 {
	f, _ := decimal.NewFromFloat(base).Mul(decimal.NewFromFloat(factor)).Float64()
	return RoundPrice(f)
}

// ScaleQty is floor(qty * ratio) with a one-share minimum.
func ScaleQty(qty int64, ratio float64) int64 {
	n := decimal.NewFromInt(qty).Mul(decimal.NewFromFloat(ratio)).Floor().IntPart()
	if n < 1 {
		return 1
	}
	return n
}

// WeightedCost is (oldQty*oldCost + addQty*fillPrice) / (oldQty + addQty).
func WeightedCost(oldQty int64, oldCost float64, addQty int64, fillPrice float64) float64 {
	newQty := oldQty + addQty
	if newQty <= 0 {
		return oldCost
	}
	total := decimal.NewFromInt(oldQty).Mul(decimal.NewFromFloat(oldCost)).
		Add(decimal.NewFromInt(addQty).Mul(decimal.NewFromFloat(fillPrice)))
	f, _ := total.DivRound(decimal.NewFromInt(newQty), 6).Float64()
	return f
}

// InitialStopLoss is min(trigger, cost * ratio); a missing trigger falls back to cost * ratio.
func InitialStopLoss(trigger, cost, ratio float64) float64 {
	stop := mulPrice(cost, ratio)
	if trigger > 0 && trigger < stop {
		return RoundPrice(trigger)
	}
	return stop
}

// FloorNotional truncates a dollar amount to whole cents.
func FloorNotional(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Truncate(2).Float64()
	return f
}
