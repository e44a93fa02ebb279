package dto

import "time"

// Quote is the live price and the previous session close for a symbol.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	PreviousClose float64   `json:"previous_close"`
	Feed          string    `json:"feed"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// DayChangePct is (price - previousClose) / previousClose, or 0 without a usable close.
func (q Quote) DayChangePct() float64 {
	if q.PreviousClose <= 0 {
		return 0
	}
	return (q.Price - q.PreviousClose) / q.PreviousClose
}

// SnapshotResponse mirrors the market-data snapshot endpoint.
type SnapshotResponse struct {
	LatestTrade *struct {
		Price float64 `json:"p"`
	} `json:"latestTrade"`
	LatestQuote *struct {
		BidPrice float64 `json:"bp"`
		AskPrice float64 `json:"ap"`
	} `json:"latestQuote"`
	PrevDailyBar *struct {
		Close float64 `json:"c"`
	} `json:"prevDailyBar"`
}
