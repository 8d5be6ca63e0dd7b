package redisx

import "time"

const (
	// Staged add-to-cart requests: set cart:{user_id}:{product_id} -> [{"size":..,"quantity":..}, ...]
	KeyStagedLine = "cart:%s:%s"

	// Cache status order: order_status:{order_id} -> {"order_id": "...", "payment_status": "...", ...}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStaging     = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
