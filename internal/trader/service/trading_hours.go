package service

import (
	"time"

	"golang-stock-trader/internal/trader/config"
	"golang-stock-trader/pkg/utils"
)

// TradingHours is the weekday session window in a fixed timezone.
type TradingHours struct {
	loc         *time.Location
	openMinute  int
	closeMinute int
}

func NewTradingHours(cfg config.TradingHours) (*TradingHours, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	open, err := config.ParseClock(cfg.Open)
	if err != nil {
		return nil, err
	}
	closeAt, err := config.ParseClock(cfg.Close)
	if err != nil {
		return nil, err
	}
	return &TradingHours{loc: loc, openMinute: open, closeMinute: closeAt}, nil
}

// IsOpen reports whether t falls on a weekday inside [open, close] local time.
func (h *TradingHours) IsOpen(t time.Time) bool {
	local := t.In(h.loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	second := local.Hour()*3600 + local.Minute()*60 + local.Second()
	return second >= h.openMinute*60 && second <= h.closeMinute*60
}

func (h *TradingHours) Location() *time.Location {
	return h.loc
}

// StartOfDay is local midnight of t in the session timezone.
func (h *TradingHours) StartOfDay(t time.Time) time.Time {
	return utils.StartOfDay(t.In(h.loc))
}
