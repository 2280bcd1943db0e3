package constants

type ContextKey string

const (
	PoolKey      ContextKey = "pool"
	TxKey        ContextKey = "tx"
	LoggerKey    ContextKey = "logger"
	AppKey       ContextKey = "app"
	RequestStart ContextKey = "requestStart"
)
