package entity

import "time"

// StockPrice is one daily OHLCV bar written by the ingestion job. Read-only here.
type StockPrice struct {
	Symbol string    `gorm:"primaryKey;column:symbol;size:16"`
	Date   time.Time `gorm:"primaryKey;column:date"`
	Open   float64   `gorm:"column:open"`
	High   float64   `gorm:"column:high"`
	Low    float64   `gorm:"column:low"`
	Close  float64   `gorm:"column:close"`
	Volume int64     `gorm:"column:volume"`
}

func (StockPrice) TableName() string {
	return "stock_prices_pool"
}
