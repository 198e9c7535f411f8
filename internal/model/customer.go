package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CustomerAttributes mirrors one row of the `customer_attributes` table.
// These are the externally persisted loyalty fields for a customer; the
// engine owns their values but not their storage.
//
// Fields:
//  CustomerID     – customer the row belongs to.
//  YearlySpend    – net spend over the trailing year, from completed orders.
//  LifetimeSpend  – net spend over all completed orders.
//  Tier           – current loyalty tier label.
//  ManualOverride – when true the tier is operator-set and sync must not
//                   change it (spend figures are still refreshed).
//  LastSyncedAt   – when the tier was last written by a sync (nullable).
type CustomerAttributes struct {
	CustomerID     uint64          // customer_attributes.customer_id
	YearlySpend    decimal.Decimal // customer_attributes.yearly_spend
	LifetimeSpend  decimal.Decimal // customer_attributes.lifetime_spend
	Tier           Tier            // customer_attributes.tier
	ManualOverride bool            // customer_attributes.manual_override
	LastSyncedAt   *time.Time      // customer_attributes.last_synced_at (nullable)
}

// SpendAggregate is one row of the paginated spend query: a customer id with
// its recomputed yearly and lifetime totals. Rows are always ordered by
// customer id ascending so that repeated fetches at the same offset are
// deterministic even while the underlying order data moves.
type SpendAggregate struct {
	CustomerID    uint64
	YearlySpend   decimal.Decimal
	LifetimeSpend decimal.Decimal
}
