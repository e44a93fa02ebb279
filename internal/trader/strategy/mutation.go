package strategy

import (
	"time"

	"golang-stock-trader/internal/trader/dto"
	"golang-stock-trader/pkg/common"
	"golang-stock-trader/pkg/utils"
)

// TruncateIntent shortens s to maxLen characters, marking the cut with "...".
func TruncateIntent(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 3 || len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// OrderAudit is the last_order_* column group.
type OrderAudit struct {
	Side    string
	Time    time.Time
	OrderID string
	Intent  string
}

func (a OrderAudit) apply(m *dto.PositionMutation) {
	m.LastOrderSide = utils.ToPointer(a.Side)
	m.LastOrderTime = utils.ToPointer(a.Time)
	if a.OrderID != "" {
		m.LastOrderID = utils.ToPointer(a.OrderID)
	}
	m.LastOrderIntent = utils.ToPointer(a.Intent)
}

// EntryMutation opens a position at stage 0 with the initial protective stop.
func EntryMutation(qty int64, cost, stopLoss float64, sellEligible bool, audit OrderAudit) dto.PositionMutation {
	canSell := 0
	if sellEligible {
		canSell = 1
	}
	m := dto.PositionMutation{
		IsBought:      utils.ToPointer(1),
		CanBuy:        utils.ToPointer(0),
		CanSell:       utils.ToPointer(canSell),
		Qty:           utils.ToPointer(qty),
		CostPrice:     utils.ToPointer(RoundPrice(cost)),
		StopLossPrice: utils.ToPointer(stopLoss),
		Stage:         utils.ToPointer(0),
	}
	audit.apply(&m)
	return m
}

// RejectedOrderMutation records a refused order in the audit columns only. For buys the
// side and time also put the symbol into cooldown, throttling retries.
func RejectedOrderMutation(audit OrderAudit) dto.PositionMutation {
	var m dto.PositionMutation
	if audit.Side == "" {
		audit.Side = common.SideBuy
	}
	audit.OrderID = ""
	audit.apply(&m)
	return m
}

// StageMutation persists a fired stage together with its ratcheted stop.
func StageMutation(stage int, stopLoss float64) dto.PositionMutation {
	return dto.PositionMutation{
		Stage:         utils.ToPointer(stage),
		StopLossPrice: utils.ToPointer(stopLoss),
	}
}

// ReseedMutation restores a missing stop without trading.
func ReseedMutation(stopLoss float64) dto.PositionMutation {
	return dto.PositionMutation{StopLossPrice: utils.ToPointer(stopLoss)}
}

// ScaleInMutation adds shares and moves cost to the weighted average.
func ScaleInMutation(newQty int64, newCost float64, audit OrderAudit) dto.PositionMutation {
	m := dto.PositionMutation{
		Qty:       utils.ToPointer(newQty),
		CostPrice: utils.ToPointer(newCost),
	}
	audit.apply(&m)
	return m
}

// SellMutation reduces the quantity, running the full-exit cleanup when it reaches zero.
func SellMutation(remaining int64, audit OrderAudit) dto.PositionMutation {
	if remaining <= 0 {
		return FullExitMutation(audit)
	}
	m := dto.PositionMutation{Qty: utils.ToPointer(remaining)}
	audit.apply(&m)
	return m
}

// FullExitMutation returns the record to the flat state.
func FullExitMutation(audit OrderAudit) dto.PositionMutation {
	m := dto.PositionMutation{
		IsBought:      utils.ToPointer(0),
		CanSell:       utils.ToPointer(0),
		CanBuy:        utils.ToPointer(1),
		Qty:           utils.ToPointer(int64(0)),
		ClearStopLoss: true,
		ClearStage:    true,
	}
	audit.apply(&m)
	return m
}
