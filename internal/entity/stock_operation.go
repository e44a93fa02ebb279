package entity

import (
	"database/sql"
	"strings"
	"time"
)

type StrategyType string

const (
	// StrategyTypeA exits on a fixed stop or take-profit bracket.
	StrategyTypeA StrategyType = "A"
	// StrategyTypeB runs the staged ratchet ladder with structural exit.
	StrategyTypeB StrategyType = "B"
)

// ParseStrategyType normalises a raw stock_type column value.
func ParseStrategyType(s string) StrategyType {
	return StrategyType(strings.ToUpper(strings.TrimSpace(s)))
}

// StockOperation is the per-symbol, per-strategy position record.
// Flag and price columns are nullable because rows are seeded by an external ranking job.
type StockOperation struct {
	StockCode       string         `gorm:"primaryKey;column:stock_code;size:16" json:"stock_code"`
	StockType       StrategyType   `gorm:"primaryKey;column:stock_type;size:2" json:"stock_type"`
	TriggerPrice    *float64       `gorm:"column:trigger_price" json:"trigger_price"`
	ClosePrice      *float64       `gorm:"column:close_price" json:"close_price"`
	CostPrice       *float64       `gorm:"column:cost_price" json:"cost_price"`
	StopLossPrice   *float64       `gorm:"column:stop_loss_price" json:"stop_loss_price"`
	TakeProfitPrice *float64       `gorm:"column:take_profit_price" json:"take_profit_price"`
	Stage           *int           `gorm:"column:stage" json:"stage"`
	Qty             int64          `gorm:"column:qty;not null;default:0" json:"qty"`
	IsBought        *int           `gorm:"column:is_bought" json:"is_bought"`
	CanBuy          *int           `gorm:"column:can_buy" json:"can_buy"`
	CanSell         *int           `gorm:"column:can_sell" json:"can_sell"`
	LastOrderSide   sql.NullString `gorm:"column:last_order_side;size:8" json:"-"`
	LastOrderTime   sql.NullTime   `gorm:"column:last_order_time" json:"-"`
	LastOrderID     sql.NullString `gorm:"column:last_order_id;size:64" json:"-"`
	LastOrderIntent sql.NullString `gorm:"column:last_order_intent;size:80" json:"-"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (StockOperation) TableName() string {
	return "stock_operations"
}

func flagOn(f *int) bool {
	return f != nil && *f == 1
}

func floatOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func (s StockOperation) Bought() bool      { return flagOn(s.IsBought) }
func (s StockOperation) BuyEnabled() bool  { return flagOn(s.CanBuy) }
func (s StockOperation) SellEnabled() bool { return flagOn(s.CanSell) }

func (s StockOperation) Trigger() float64    { return floatOrZero(s.TriggerPrice) }
func (s StockOperation) Cost() float64       { return floatOrZero(s.CostPrice) }
func (s StockOperation) StopLoss() float64   { return floatOrZero(s.StopLossPrice) }
func (s StockOperation) TakeProfit() float64 { return floatOrZero(s.TakeProfitPrice) }

// CurrentStage is the highest actioned milestone; NULL reads as 0.
func (s StockOperation) CurrentStage() int {
	if s.Stage == nil {
		return 0
	}
	return *s.Stage
}
