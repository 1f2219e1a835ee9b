package redisx

import "time"

const (
	// Checkout idempotency: idem:checkout:{key} -> order_id
	KeyIdemCheckout = "idem:checkout:%s:%s" // buyer, client key

	// Cached order status: order_status:{order_id} -> {"payment_status": "...", ...}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Guest/account sessions: session:{id}
	KeySession = "session:%s"

	// Local (client side) cart keyed by session: cart:local:{session_id}
	KeyLocalCart = "cart:local:%s"

	// Catalog lookups: catalog:product:{id}
	KeyProduct = "catalog:product:%s"

	// Gateway bank list: gateway:banks:{currency}
	KeyBanks = "gateway:banks:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLLocalCart   = 30 * 24 * time.Hour
	TTLProduct     = 30 * time.Second
	TTLBanks       = 24 * time.Hour
)
