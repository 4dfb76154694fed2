package redisx

import "time"

const (
	// Idempotent order placement: idem:order:place:{external_id} -> order_id
	KeyIdemPlaceOrder = "idem:order:place:%s"

	// Cached farmer dashboard totals: stats:farmer:{seller_id} -> JSON
	KeyFarmerTotals = "stats:farmer:%s"

	// Dedup of consumed events: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Per-user notification feed (list, newest first): notify:{user_id}
	KeyNotifications = "notify:%s"
)

var (
	TTLIdempotency   = 24 * time.Hour
	TTLStatsCache    = time.Minute
	TTLDedup         = 48 * time.Hour
	TTLNotifications = 7 * 24 * time.Hour
)
