package domain

import "time"

// Lifecycle event names a participant can subscribe to.
const (
	EventTradeCreated   = "trade.created"
	EventEscrowFunded   = "escrow.funded"
	EventTradeFulfilled = "trade.fulfilled"
	EventTradeRejected  = "trade.rejected"
	EventTradeCancelled = "trade.cancelled"
	EventTradeSettled   = "trade.settled"
)

// Webhook represents a participant's subscription to a lifecycle event.
type Webhook struct {
	WebhookID string
	Identity  Identity
	Event     string
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time
}
