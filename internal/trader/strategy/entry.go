package strategy

import (
	"fmt"
	"math"

	"golang-stock-trader/internal/trader/config"
	"golang-stock-trader/pkg/common"
)

// evaluateEntry is the breakout entry gate shared by every ruleset.
func evaluateEntry(cfg config.Strategy, tag string, in BuyInput) BuyDecision {
	pos := in.Position
	if !pos.BuyEnabled() {
		return BuyDecision{Reason: SkipBuyDisabled}
	}
	if pos.Bought() {
		return BuyDecision{Reason: SkipAlreadyBought}
	}
	trigger := pos.Trigger()
	if trigger <= 0 {
		return BuyDecision{Reason: SkipNoTrigger}
	}
	if inCooldown(cfg, in) {
		return BuyDecision{Reason: SkipCooldown}
	}

	price := in.Quote.Price
	dayChange := pct(price, in.Quote.PreviousClose)
	dayChangePct, _ := dayChange.Float64()
	if price <= trigger {
		return BuyDecision{Reason: SkipBelowTrigger, DayChangePct: dayChangePct}
	}
	if in.Quote.PreviousClose <= 0 || !greaterThan(dayChange, cfg.MinUpPct) {
		return BuyDecision{Reason: SkipWeakDay, DayChangePct: dayChangePct}
	}

	target := FloorNotional(math.Min(math.Min(cfg.TargetNotional, cfg.MaxNotional), in.BuyingPower*cfg.BuyingPowerUseRatio))
	if target < cfg.MinNotional || in.BuyingPower < cfg.MinBuyingPower || target <= 0 {
		return BuyDecision{Reason: SkipInsufficientBudget, DayChangePct: dayChangePct, TargetNotional: target}
	}

	return BuyDecision{
		Fire:           true,
		Reason:         "BREAKOUT",
		TargetNotional: target,
		DayChangePct:   dayChangePct,
		Intent: fmt.Sprintf("%s:BUY px=%.2f trg=%.2f up=%.2f%% nt=%.2f %s",
			tag, price, trigger, dayChangePct*100, target, in.Quote.Feed),
	}
}

// inCooldown is true while the last buy on this record is younger than the cooldown window.
func inCooldown(cfg config.Strategy, in BuyInput) bool {
	pos := in.Position
	if cfg.Cooldown <= 0 || !pos.LastOrderTime.Valid || !pos.LastOrderSide.Valid {
		return false
	}
	if pos.LastOrderSide.String != common.SideBuy {
		return false
	}
	return in.Now.Sub(pos.LastOrderTime.Time) < cfg.Cooldown
}
