// Package queue defines message payloads exchanged over the message broker
// and the background consumer that reacts to order completions.
package queue

// OrderCompletedEvent arrives on the orders.completed queue whenever the
// shop marks an order as completed. It carries just enough to resync the
// affected customer; the spend figures are always recomputed from the order
// store, never taken from the message.
type OrderCompletedEvent struct {
	OrderID    uint64 `json:"order_id"`
	CustomerID uint64 `json:"customer_id"`
	Total      string `json:"total"`
	Currency   string `json:"currency"`
	OccurredAt string `json:"occurred_at"`
}

// TierChangedEvent is published whenever a sync assigns a customer a new
// tier. Downstream consumers can notify the customer or feed analytics
// without querying the primary database.
type TierChangedEvent struct {
	CustomerID    uint64 `json:"customer_id"`
	OldTier       string `json:"old_tier"`
	NewTier       string `json:"new_tier"`
	YearlySpend   string `json:"yearly_spend"`
	LifetimeSpend string `json:"lifetime_spend"`
	Source        string `json:"source"`
	ChangedAt     string `json:"changed_at"`
}
