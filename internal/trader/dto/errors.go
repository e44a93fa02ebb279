package dto

import (
	"errors"
	"fmt"
)

var (
	// ErrQuoteUnavailable means neither a trade price nor a bid/ask midpoint (or no previous close) could be derived.
	ErrQuoteUnavailable    = errors.New("quote unavailable")
	ErrUpstreamRateLimited = errors.New("upstream rate limited")
	ErrUpstreamError       = errors.New("upstream error")
	ErrAccountUnavailable  = errors.New("account unavailable")
	ErrOrderRejected       = errors.New("order rejected")
	ErrNotFractionable     = errors.New("asset not fractionable")
	ErrDuplicateOrder      = errors.New("duplicate client order id")
	ErrPositionNotFound    = errors.New("position not found")
	ErrInstanceLocked      = errors.New("another trader instance holds the lock")
)

// OrderRejectedError carries the brokerage's rejection reason.
type OrderRejectedError struct {
	StatusCode int
	Code       int
	Reason     string
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("order rejected (status=%d code=%d): %s", e.StatusCode, e.Code, e.Reason)
}

func (e *OrderRejectedError) Unwrap() error {
	return ErrOrderRejected
}
