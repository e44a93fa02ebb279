package dto

import (
	"time"

	"golang-stock-trader/internal/entity"
)

// PositionMutation is a partial update of one position record. Nil fields are left untouched.
type PositionMutation struct {
	IsBought      *int
	CanBuy        *int
	CanSell       *int
	Qty           *int64
	CostPrice     *float64
	ClosePrice    *float64
	StopLossPrice *float64
	Stage         *int
	// ClearStopLoss and ClearStage write NULL; they win over the value fields.
	ClearStopLoss bool
	ClearStage    bool

	LastOrderSide   *string
	LastOrderTime   *time.Time
	LastOrderID     *string
	LastOrderIntent *string
}

// IsEmpty reports whether the mutation would write nothing.
func (m PositionMutation) IsEmpty() bool {
	return len(m.Columns()) == 0
}

// Columns maps the mutation to column assignments.
func (m PositionMutation) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if m.IsBought != nil {
		cols["is_bought"] = *m.IsBought
	}
	if m.CanBuy != nil {
		cols["can_buy"] = *m.CanBuy
	}
	if m.CanSell != nil {
		cols["can_sell"] = *m.CanSell
	}
	if m.Qty != nil {
		cols["qty"] = *m.Qty
	}
	if m.CostPrice != nil {
		cols["cost_price"] = *m.CostPrice
	}
	if m.ClosePrice != nil {
		cols["close_price"] = *m.ClosePrice
	}
	if m.ClearStopLoss {
		cols["stop_loss_price"] = nil
	} else if m.StopLossPrice != nil {
		cols["stop_loss_price"] = *m.StopLossPrice
	}
	if m.ClearStage {
		cols["stage"] = nil
	} else if m.Stage != nil {
		cols["stage"] = *m.Stage
	}
	if m.LastOrderSide != nil {
		cols["last_order_side"] = *m.LastOrderSide
	}
	if m.LastOrderTime != nil {
		cols["last_order_time"] = *m.LastOrderTime
	}
	if m.LastOrderID != nil {
		cols["last_order_id"] = *m.LastOrderID
	}
	if m.LastOrderIntent != nil {
		cols["last_order_intent"] = *m.LastOrderIntent
	}
	return cols
}

// Apply returns a copy of op with the mutation applied, mirroring what the store would hold.
func (m PositionMutation) Apply(op entity.StockOperation) entity.StockOperation {
	out := op
	if m.IsBought != nil {
		out.IsBought = ptr(*m.IsBought)
	}
	if m.CanBuy != nil {
		out.CanBuy = ptr(*m.CanBuy)
	}
	if m.CanSell != nil {
		out.CanSell = ptr(*m.CanSell)
	}
	if m.Qty != nil {
		out.Qty = *m.Qty
	}
	if m.CostPrice != nil {
		out.CostPrice = ptr(*m.CostPrice)
	}
	if m.ClosePrice != nil {
		out.ClosePrice = ptr(*m.ClosePrice)
	}
	if m.ClearStopLoss {
		out.StopLossPrice = nil
	} else if m.StopLossPrice != nil {
		out.StopLossPrice = ptr(*m.StopLossPrice)
	}
	if m.ClearStage {
		out.Stage = nil
	} else if m.Stage != nil {
		out.Stage = ptr(*m.Stage)
	}
	if m.LastOrderSide != nil {
		out.LastOrderSide.String, out.LastOrderSide.Valid = *m.LastOrderSide, true
	}
	if m.LastOrderTime != nil {
		out.LastOrderTime.Time, out.LastOrderTime.Valid = *m.LastOrderTime, true
	}
	if m.LastOrderID != nil {
		out.LastOrderID.String, out.LastOrderID.Valid = *m.LastOrderID, true
	}
	if m.LastOrderIntent != nil {
		out.LastOrderIntent.String, out.LastOrderIntent.Valid = *m.LastOrderIntent, true
	}
	return out
}

func ptr[T any](v T) *T { return &v }

// GetEligibleParam filters the rows the dispatcher evaluates in one round.
type GetEligibleParam struct {
	BuyAllowed    bool
	StrategyTypes []entity.StrategyType
}

// PositionResponse is the read API view of a position record.
type PositionResponse struct {
	Symbol          string     `json:"symbol"`
	StrategyType    string     `json:"strategy_type"`
	State           string     `json:"state"`
	TriggerPrice    *float64   `json:"trigger_price"`
	CostPrice       *float64   `json:"cost_price"`
	StopLossPrice   *float64   `json:"stop_loss_price"`
	TakeProfitPrice *float64   `json:"take_profit_price"`
	Stage           *int       `json:"stage"`
	Qty             int64      `json:"qty"`
	IsBought        bool       `json:"is_bought"`
	CanBuy          bool       `json:"can_buy"`
	CanSell         bool       `json:"can_sell"`
	LastOrderSide   string     `json:"last_order_side,omitempty"`
	LastOrderTime   *time.Time `json:"last_order_time,omitempty"`
	LastOrderID     string     `json:"last_order_id,omitempty"`
	LastOrderIntent string     `json:"last_order_intent,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewPositionResponse builds the API view of a record.
func NewPositionResponse(op entity.StockOperation) PositionResponse {
	resp := PositionResponse{
		Symbol:          op.StockCode,
		StrategyType:    string(op.StockType),
		State:           LifecycleState(op),
		TriggerPrice:    op.TriggerPrice,
		CostPrice:       op.CostPrice,
		StopLossPrice:   op.StopLossPrice,
		TakeProfitPrice: op.TakeProfitPrice,
		Stage:           op.Stage,
		Qty:             op.Qty,
		IsBought:        op.Bought(),
		CanBuy:          op.BuyEnabled(),
		CanSell:         op.SellEnabled(),
		LastOrderSide:   op.LastOrderSide.String,
		LastOrderID:     op.LastOrderID.String,
		LastOrderIntent: op.LastOrderIntent.String,
		UpdatedAt:       op.UpdatedAt,
	}
	if op.LastOrderTime.Valid {
		t := op.LastOrderTime.Time
		resp.LastOrderTime = &t
	}
	return resp
}

// LifecycleState names where a record sits in Flat -> Open(stage k) -> Exited.
func LifecycleState(op entity.StockOperation) string {
	switch {
	case op.Bought() && op.Qty > 0:
		return "OPEN"
	case op.BuyEnabled():
		return "FLAT"
	default:
		return "IDLE"
	}
}

// ErrorResponse represents a generic error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks"`
	TradeEnv string            `json:"trade_env"`
}

// GetPositionEventsParam filters the audit trail.
type GetPositionEventsParam struct {
	StockCode string
	StockType entity.StrategyType
	Events    []entity.PositionEventType
	Limit     int
}
