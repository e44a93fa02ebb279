package entity

import (
	"time"

	"gorm.io/datatypes"
)

type PositionEventType string

const (
	PositionEventEntry         PositionEventType = "ENTRY"
	PositionEventStageAdvance  PositionEventType = "STAGE_ADVANCE"
	PositionEventScaleIn       PositionEventType = "SCALE_IN"
	PositionEventScaleOut      PositionEventType = "SCALE_OUT"
	PositionEventExit          PositionEventType = "EXIT"
	PositionEventStopReseed    PositionEventType = "STOP_RESEED"
	PositionEventOrderRejected PositionEventType = "ORDER_REJECTED"
	PositionEventSellUnlocked  PositionEventType = "SELL_UNLOCKED"
	PositionEventBrokerSync    PositionEventType = "BROKER_SYNC"
)

// PositionEvent is an append-only audit row for every lifecycle transition.
type PositionEvent struct {
	ID        int64             `gorm:"primaryKey" json:"id"`
	StockCode string            `gorm:"column:stock_code;size:16;index:idx_position_events_symbol" json:"stock_code"`
	StockType StrategyType      `gorm:"column:stock_type;size:2;index:idx_position_events_symbol" json:"stock_type"`
	Event     PositionEventType `gorm:"column:event;size:32" json:"event"`
	Stage     int               `gorm:"column:stage" json:"stage"`
	Price     float64           `gorm:"column:price" json:"price"`
	Qty       int64             `gorm:"column:qty" json:"qty"`
	OrderID   string            `gorm:"column:order_id;size:64" json:"order_id"`
	Reason    string            `gorm:"column:reason;size:255" json:"reason"`
	Payload   datatypes.JSON    `gorm:"column:payload" json:"payload" swaggertype:"object"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (PositionEvent) TableName() string {
	return "position_events"
}
