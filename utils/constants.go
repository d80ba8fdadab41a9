package utils

import "time"

// ContextKey is the type used for request-scoped context values.
type ContextKey string

// Request-scoped context keys set by handlers and read by flows for
// audit metadata and timeout propagation.
const (
	RequestIDKey  ContextKey = "request_id"
	UserAgentKey  ContextKey = "user_agent"
	IPAddressKey  ContextKey = "ip_address"
	EndpointKey   ContextKey = "endpoint"
	TimeoutKey    ContextKey = "timeout"
	CancelFuncKey ContextKey = "cancel_func"
)

// Default operational constants
const (
	// DefaultRequestTimeout bounds one handler-initiated flow call.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultAuditAppendTimeout bounds the durable audit append inside a
	// calculation. The calculation fails if the append cannot complete.
	DefaultAuditAppendTimeout = 5 * time.Second

	// DefaultQuoteCacheTTL is how long a cached quote stays valid in redis.
	// Entries are keyed by snapshot version, so stale snapshots age out
	// naturally rather than being flushed.
	DefaultQuoteCacheTTL = 15 * time.Minute

	// USDCurrency is the currency code used for all amounts.
	USDCurrency = "USD"

	// CurrencyMinorUnitScale is the number of decimal places of the
	// currency minor unit (cents).
	CurrencyMinorUnitScale = 2
)
