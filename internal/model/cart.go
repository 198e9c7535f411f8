package model

import "github.com/shopspring/decimal"

// LineItem is one cart line as seen by the discount engine. Unit prices come
// in both forms because the eligible-subtotal setting decides per deployment
// whether the discount applies to net or gross prices.
type LineItem struct {
	ProductID    uint64          `json:"product_id"`
	Quantity     int             `json:"quantity"`
	UnitPriceNet decimal.Decimal `json:"unit_price_net"`
	UnitPrice    decimal.Decimal `json:"unit_price"` // tax inclusive
}

// Fee is a cart adjustment line. The loyalty discount is injected as a
// single negative taxable fee.
type Fee struct {
	Label   string          `json:"label"`
	Amount  decimal.Decimal `json:"amount"`
	Taxable bool            `json:"taxable"`
}

// Notice is a user-facing message produced while pricing the cart, such as
// the coupon-exclusion explanation.
type Notice struct {
	Type    string `json:"type"` // "notice" or "error"
	Message string `json:"message"`
}

// DiscountContext is the per-request result of a pricing pass. It exists for
// display and order-metadata purposes only and must never be trusted on a
// later pass: the tier is re-read from the attribute store every time.
type DiscountContext struct {
	Tier             Tier            `json:"tier"`
	TierLabel        string          `json:"tier_label"`
	DiscountPercent  decimal.Decimal `json:"discount_percent"`
	EligibleSubtotal decimal.Decimal `json:"eligible_subtotal"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
}
