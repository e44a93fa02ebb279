package strategy

import (
	"fmt"

	"golang-stock-trader/internal/entity"
	"golang-stock-trader/internal/trader/config"
	"golang-stock-trader/internal/trader/dto"
)

// bracket is ruleset A: the same breakout entry, then a full exit at the stop or the take-profit.
type bracket struct {
	cfg config.Strategy
}

func NewBracket(cfg config.Strategy) Strategy {
	return &bracket{cfg: cfg}
}

func (s *bracket) GetType() entity.StrategyType {
	return entity.StrategyTypeA
}

func (s *bracket) ClosesLookback() int { return 0 }

func (s *bracket) EvaluateBuy(in BuyInput) BuyDecision {
	return evaluateEntry(s.cfg, string(s.GetType()), in)
}

func (s *bracket) EvaluateSell(in SellInput) SellDecision {
	pos := in.Position
	cost := pos.Cost()
	if !pos.Bought() || !pos.SellEnabled() || pos.Qty <= 0 || cost <= 0 {
		return SellDecision{Action: SellActionNone, Reason: ReasonNotSellable}
	}

	price := in.Quote.Price
	upPct, _ := pct(price, cost).Float64()

	if in.FirstPass {
		if d, ok := hardStop(string(s.GetType()), pos, price); ok {
			d.UpPct = upPct
			return d
		}
	}

	if tp := pos.TakeProfit(); tp > 0 && price >= tp {
		return SellDecision{
			Action: SellActionTakeProfit,
			Reason: ReasonTakeProfit,
			Stage:  pos.CurrentStage(),
			Side:   dto.OrderSideSell,
			Qty:    pos.Qty,
			UpPct:  upPct,
			Intent: fmt.Sprintf("%s:TP px=%.2f >= tp=%.2f", s.GetType(), price, tp),
		}
	}

	if pos.StopLoss() <= 0 {
		return SellDecision{
			Action:   SellActionReseedStop,
			Reason:   ReasonReseed,
			Stage:    pos.CurrentStage(),
			StopLoss: InitialStopLoss(pos.Trigger(), cost, s.cfg.InitialStopRatio),
			UpPct:    upPct,
		}
	}

	return SellDecision{Action: SellActionNone, Reason: ReasonHold, Stage: pos.CurrentStage(), UpPct: upPct}
}
