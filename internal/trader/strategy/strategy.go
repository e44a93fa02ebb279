package strategy

import (
	"time"

	"golang-stock-trader/internal/entity"
	"golang-stock-trader/internal/trader/dto"
)

// Strategy is one Stage Engine ruleset, selected by the record's stock_type.
// Implementations are pure: they never perform I/O and never mutate their input.
type Strategy interface {
	GetType() entity.StrategyType
	// ClosesLookback is how many daily closes EvaluateSell needs, zero for none.
	ClosesLookback() int
	EvaluateBuy(in BuyInput) BuyDecision
	EvaluateSell(in SellInput) SellDecision
}

// BuyInput is everything entry evaluation looks at.
type BuyInput struct {
	Position    entity.StockOperation
	Quote       dto.Quote
	BuyingPower float64
	Now         time.Time
}

// Buy skip reasons.
const (
	SkipBuyDisabled        = "BUY_DISABLED"
	SkipAlreadyBought      = "ALREADY_BOUGHT"
	SkipNoTrigger          = "NO_TRIGGER"
	SkipCooldown           = "COOLDOWN"
	SkipBelowTrigger       = "BELOW_TRIGGER"
	SkipWeakDay            = "WEAK_DAY_CHANGE"
	SkipInsufficientBudget = "INSUFFICIENT_BUYING_POWER"
)

// BuyDecision says whether to enter and with how much notional.
type BuyDecision struct {
	Fire           bool
	Reason         string
	TargetNotional float64
	DayChangePct   float64
	Intent         string
}

// SellInput is everything exit evaluation looks at. Position is re-read from the
// store after every trade; BaseCost stays fixed at the cost seen when the tick began.
type SellInput struct {
	Position  entity.StockOperation
	Quote     dto.Quote
	BaseCost  float64
	Closes    []float64
	FirstPass bool
}

// SellAction is the single step the engine asks the dispatcher to take.
type SellAction int

const (
	SellActionNone SellAction = iota
	SellActionHardStop
	SellActionTakeProfit
	SellActionAdvanceStage
	SellActionStructuralExit
	SellActionReseedStop
)

func (a SellAction) String() string {
	switch a {
	case SellActionHardStop:
		return "HARD_STOP"
	case SellActionTakeProfit:
		return "TAKE_PROFIT"
	case SellActionAdvanceStage:
		return "ADVANCE_STAGE"
	case SellActionStructuralExit:
		return "STRUCTURAL_EXIT"
	case SellActionReseedStop:
		return "RESEED_STOP"
	default:
		return "NONE"
	}
}

// Sell reasons recorded in the audit trail.
const (
	ReasonStop           = "STOP"
	ReasonTakeProfit     = "TAKE_PROFIT"
	ReasonStructuralExit = "STRUCTURAL_EXIT"
	ReasonReseed         = "RESEED_STOP"
	ReasonNotSellable    = "NOT_SELLABLE"
	ReasonHold           = "HOLD"
)

// StructuralExitStage is the label the structural exit carries. Stage 9 is not defined.
const StructuralExitStage = 10

// SellDecision describes one step. For AdvanceStage the new Stage and StopLoss must be
// persisted before the optional trade (Side, Qty) is submitted.
type SellDecision struct {
	Action   SellAction
	Reason   string
	Stage    int
	StopLoss float64
	Side     dto.OrderSide
	Qty      int64
	UpPct    float64
	Intent   string
}

// HasTrade reports whether the decision carries an order.
func (d SellDecision) HasTrade() bool {
	return d.Qty > 0 && d.Side != ""
}

// FullExit reports whether the decision liquidates the whole position.
func (d SellDecision) FullExit() bool {
	switch d.Action {
	case SellActionHardStop, SellActionTakeProfit, SellActionStructuralExit:
		return true
	}
	return false
}
