package utils

import (
	"math/rand"
	"time"
)

// Jitter returns base plus a uniformly distributed extra in [0, max).
func Jitter(base, max time.Duration) time.Duration {
	if max <= 0 {
		return base
	}
	return base + time.Duration(rand.Int63n(int64(max)))
}

// RandomBetween returns a duration uniformly distributed in [min, max].
func RandomBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)+1))
}
