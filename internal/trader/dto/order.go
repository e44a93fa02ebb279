package dto

import (
	"encoding/json"
	"strconv"
	"time"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// SizeSpec is either a notional dollar amount or a whole share count; exactly one is set.
type SizeSpec struct {
	Notional float64
	Qty      int64
}

func NotionalSize(amount float64) SizeSpec { return SizeSpec{Notional: amount} }
func QtySize(qty int64) SizeSpec           { return SizeSpec{Qty: qty} }

func (s SizeSpec) IsNotional() bool { return s.Notional > 0 && s.Qty == 0 }

// OrderRequest is what the Execution Gateway submits.
type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	Size          SizeSpec
	ClientOrderID string
}

// Order is the brokerage's view of a submitted order.
type Order struct {
	ID             string
	ClientOrderID  string
	Symbol         string
	Side           OrderSide
	Status         string
	FilledQty      float64
	FilledAvgPrice float64
}

// BrokerPosition is an open position as reported by the brokerage.
type BrokerPosition struct {
	Symbol        string
	Qty           float64
	AvgEntryPrice float64
}

// OrderFill summarises a completed submission after the caller-side sizing policy ran.
type OrderFill struct {
	OrderID    string
	Qty        int64
	Notional   float64
	Price      float64
	PriceKnown bool
	UsedShares bool
}

// alpacaNumber decodes the brokerage's string-encoded decimals ("12.34" or null).
type alpacaNumber float64

func (n *alpacaNumber) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*n = 0
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var f float64
		if errF := json.Unmarshal(b, &f); errF != nil {
			return err
		}
		*n = alpacaNumber(f)
		return nil
	}
	if s == "" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*n = alpacaNumber(f)
	return nil
}

// AlpacaOrderRequest is the order submission body.
type AlpacaOrderRequest struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty,omitempty"`
	Notional      string `json:"notional,omitempty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	ExtendedHours bool   `json:"extended_hours"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

// AlpacaOrderResponse is the subset of the order object the core reads.
type AlpacaOrderResponse struct {
	ID             string       `json:"id"`
	ClientOrderID  string       `json:"client_order_id"`
	Symbol         string       `json:"symbol"`
	Side           string       `json:"side"`
	Status         string       `json:"status"`
	FilledQty      alpacaNumber `json:"filled_qty"`
	FilledAvgPrice alpacaNumber `json:"filled_avg_price"`
	SubmittedAt    time.Time    `json:"submitted_at"`
}

func (r AlpacaOrderResponse) ToOrder() Order {
	return Order{
		ID:             r.ID,
		ClientOrderID:  r.ClientOrderID,
		Symbol:         r.Symbol,
		Side:           OrderSide(r.Side),
		Status:         r.Status,
		FilledQty:      float64(r.FilledQty),
		FilledAvgPrice: float64(r.FilledAvgPrice),
	}
}

// AlpacaAccountResponse is the subset of the account object the core reads.
type AlpacaAccountResponse struct {
	BuyingPower *alpacaNumber `json:"buying_power"`
	Cash        *alpacaNumber `json:"cash"`
	Status      string        `json:"status"`
}

// AlpacaPositionResponse is one element of the positions list.
type AlpacaPositionResponse struct {
	Symbol        string       `json:"symbol"`
	Qty           alpacaNumber `json:"qty"`
	AvgEntryPrice alpacaNumber `json:"avg_entry_price"`
}

// AlpacaErrorResponse is the brokerage error body.
type AlpacaErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
