package strategy

import (
	"fmt"
	"math"

	"golang-stock-trader/internal/entity"
	"golang-stock-trader/internal/trader/config"
	"golang-stock-trader/internal/trader/dto"
)

// stagedBreakout is ruleset B: breakout entry, ratcheting stage ladder with scale-in and
// scale-out, and a structural exit on a four-day close pattern.
type stagedBreakout struct {
	cfg    config.Strategy
	ladder Ladder
}

func NewStagedBreakout(cfg config.Strategy) Strategy {
	return &stagedBreakout{
		cfg:    cfg,
		ladder: NewLadder(cfg.Stages),
	}
}

func (s *stagedBreakout) GetType() entity.StrategyType {
	return entity.StrategyTypeB
}

func (s *stagedBreakout) ClosesLookback() int {
	if s.cfg.ClosesLookback < 4 {
		return 4
	}
	return s.cfg.ClosesLookback
}

func (s *stagedBreakout) EvaluateBuy(in BuyInput) BuyDecision {
	return evaluateEntry(s.cfg, string(s.GetType()), in)
}

func (s *stagedBreakout) EvaluateSell(in SellInput) SellDecision {
	pos := in.Position
	cost := pos.Cost()
	if !pos.Bought() || !pos.SellEnabled() || pos.Qty <= 0 || cost <= 0 {
		return SellDecision{Action: SellActionNone, Reason: ReasonNotSellable}
	}

	price := in.Quote.Price
	stop := pos.StopLoss()
	if in.FirstPass {
		if d, ok := hardStop(string(s.GetType()), pos, price); ok {
			return d
		}
	}

	base := in.BaseCost
	if base <= 0 {
		base = cost
	}
	upPct := pct(price, base)
	upPctF, _ := upPct.Float64()

	if st, ok := s.ladder.Next(pos.CurrentStage(), upPct); ok {
		d := SellDecision{
			Action:   SellActionAdvanceStage,
			Stage:    st.Stage,
			StopLoss: math.Max(stop, mulPrice(cost, st.StopMultiplier)),
			UpPct:    upPctF,
			Reason:   fmt.Sprintf("STAGE%d", st.Stage),
		}
		switch {
		case st.ScaleInRatio > 0:
			d.Side = dto.OrderSideBuy
			d.Qty = ScaleQty(pos.Qty, st.ScaleInRatio)
			d.Reason = fmt.Sprintf("STAGE%d_ADD%d", st.Stage, ratioPct(st.ScaleInRatio))
		case st.ScaleOutRatio > 0:
			d.Side = dto.OrderSideSell
			d.Qty = ScaleQty(pos.Qty, st.ScaleOutRatio)
			if d.Qty > pos.Qty {
				d.Qty = pos.Qty
			}
			d.Reason = fmt.Sprintf("STAGE%d_SELL%d", st.Stage, ratioPct(st.ScaleOutRatio))
		}
		d.Intent = fmt.Sprintf("%s:%s px=%.2f up=%.2f%%", s.GetType(), d.Reason, price, upPctF*100)
		return d
	}

	if d, ok := s.structuralExit(pos, price, in.Closes); ok {
		d.UpPct = upPctF
		return d
	}

	if stop <= 0 {
		return SellDecision{
			Action:   SellActionReseedStop,
			Reason:   ReasonReseed,
			Stage:    pos.CurrentStage(),
			StopLoss: InitialStopLoss(pos.Trigger(), cost, s.cfg.InitialStopRatio),
			UpPct:    upPctF,
		}
	}

	return SellDecision{Action: SellActionNone, Reason: ReasonHold, Stage: pos.CurrentStage(), UpPct: upPctF}
}

// structuralExit fires when the latest close undercuts the three closes before it.
func (s *stagedBreakout) structuralExit(pos entity.StockOperation, price float64, closes []float64) (SellDecision, bool) {
	if len(closes) < 4 {
		return SellDecision{}, false
	}
	c0 := closes[0]
	min3 := math.Min(closes[1], math.Min(closes[2], closes[3]))
	if c0 <= 0 || min3 <= 0 || !(c0 < min3) {
		return SellDecision{}, false
	}
	return SellDecision{
		Action: SellActionStructuralExit,
		Reason: ReasonStructuralExit,
		Stage:  StructuralExitStage,
		Side:   dto.OrderSideSell,
		Qty:    pos.Qty,
		Intent: fmt.Sprintf("%s:STAGE%d_EXIT c0=%.2f < min3=%.2f px=%.2f", s.GetType(), StructuralExitStage, c0, min3, price),
	}, true
}

// hardStop sells everything once price has fallen to the protective stop.
func hardStop(tag string, pos entity.StockOperation, price float64) (SellDecision, bool) {
	stop := pos.StopLoss()
	if stop <= 0 || price > stop {
		return SellDecision{}, false
	}
	return SellDecision{
		Action:   SellActionHardStop,
		Reason:   ReasonStop,
		Stage:    pos.CurrentStage(),
		StopLoss: stop,
		Side:     dto.OrderSideSell,
		Qty:      pos.Qty,
		Intent:   fmt.Sprintf("%s:STOP px=%.2f <= sl=%.2f", tag, price, stop),
	}, true
}

func ratioPct(r float64) int {
	return int(math.Round(r * 100))
}
