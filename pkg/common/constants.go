package common

const (
	RedisKeyLastPrice    = "last_price:%s"
	RedisKeyInstanceLock = "lock:trader:%s"

	SideBuy  = "buy"
	SideSell = "sell"

	TradingEnvPaper = "paper"
	TradingEnvLive  = "live"
)
