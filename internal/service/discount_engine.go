package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nestwork/loyalty-discount-service/internal/model"
)

// Cart is the mutable cart collaborator the discount engine works against.
// The HTTP layer backs it with the cart submitted in the request; tests back
// it with a fake. Recalculate is the host's own totals pass and may call
// back into ApplyDiscount, which is why the engine guards against
// re-entrancy.
type Cart interface {
	CustomerID() uint64
	LineItems() []model.LineItem
	AddFee(fee model.Fee)
	ClearFees()
	AppliedCoupons() []string
	RemoveCoupon(code string)
	AddNotice(n model.Notice)
	Recalculate()
}

// EligibilityPolicy decides whether a product participates in loyalty
// discounting.
type EligibilityPolicy interface {
	IsEligible(ctx context.Context, productID uint64) (bool, error)
}

// Pass is the state of one pricing pass. It is created per request, carries
// the re-entrancy marker and a tier-lookup cache scoped to this pass only,
// and is thrown away afterwards. It must never be shared across requests:
// leaking either field across requests is exactly the stale-cache bug this
// design exists to prevent.
type Pass struct {
	calculating bool
	tierCache   map[uint64]model.Tier
	Context     *model.DiscountContext // result of the pass, nil when no discount applied
}

// NewPass returns a fresh pricing pass.
func NewPass() *Pass {
	return &Pass{tierCache: make(map[uint64]model.Tier)}
}

// DiscountEngine computes and applies the loyalty discount on every cart
// recalculation and enforces the coupon-exclusion rule. Any internal error
// degrades to "no discount": a broken calculation must never break checkout.
type DiscountEngine struct {
	attrs    AttributeStore
	policy   EligibilityPolicy
	settings SettingsSource
	log      *zap.Logger
}

// NewDiscountEngine wires a DiscountEngine.
func NewDiscountEngine(attrs AttributeStore, policy EligibilityPolicy, settings SettingsSource, log *zap.Logger) *DiscountEngine {
	return &DiscountEngine{attrs: attrs, policy: policy, settings: settings, log: log}
}

// feeLabel builds the single discount fee line's label, e.g.
// "Loyalty Silver Tier Discount (10%)".
func feeLabel(tier model.Tier, percent decimal.Decimal) string {
	return fmt.Sprintf("Loyalty %s Tier Discount (%s%%)", tier, percent.String())
}

// ApplyDiscount runs one pricing pass over the cart. It is invoked on every
// price/fee recalculation; all state it derives is recomputed from the
// attribute store, never reused from a previous pass.
func (d *DiscountEngine) ApplyDiscount(ctx context.Context, pass *Pass, cart Cart) {
	if pass.calculating {
		return
	}
	pass.calculating = true
	defer func() { pass.calculating = false }()

	if err := d.applyDiscount(ctx, pass, cart); err != nil {
		// Fail safe: clear whatever this pass added and charge full price.
		d.log.Warn("discount computation failed, applying no discount",
			zap.Uint64("customer_id", cart.CustomerID()),
			zap.Error(err))
		cart.ClearFees()
		pass.Context = nil
	}
}

func (d *DiscountEngine) applyDiscount(ctx context.Context, pass *Pass, cart Cart) error {
	pass.Context = nil
	cart.ClearFees()

	items := cart.LineItems()
	if len(items) == 0 || cart.CustomerID() == 0 {
		return nil
	}

	tier, err := d.tierFor(ctx, pass, cart.CustomerID())
	if err != nil {
		return err
	}
	if tier == model.TierNone {
		return nil
	}

	settings, err := d.settings.Load(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	percent := settings.Thresholds.DiscountPercentFor(tier)
	if !percent.IsPositive() {
		return nil
	}

	eligible, err := d.eligibleSubtotal(ctx, items, settings.UseNetPrice)
	if err != nil {
		return err
	}
	if !eligible.IsPositive() {
		return nil
	}

	amount := eligible.Mul(percent).Div(decimal.NewFromInt(100)).Round(2)

	// Coupons are removed before the fee goes in so the order of application
	// is never ambiguous.
	d.removeCoupons(cart, tier, percent)

	cart.AddFee(model.Fee{
		Label:   feeLabel(tier, percent),
		Amount:  amount.Neg(),
		Taxable: true,
	})

	pass.Context = &model.DiscountContext{
		Tier:             tier,
		TierLabel:        tier.String(),
		DiscountPercent:  percent,
		EligibleSubtotal: eligible,
		DiscountAmount:   amount,
	}
	return nil
}

// tierFor loads the customer's current tier, caching it for the lifetime of
// this pass only.
func (d *DiscountEngine) tierFor(ctx context.Context, pass *Pass, customerID uint64) (model.Tier, error) {
	if t, ok := pass.tierCache[customerID]; ok {
		return t, nil
	}
	t, err := d.attrs.GetTier(ctx, customerID)
	if err != nil {
		return model.TierNone, fmt.Errorf("load tier: %w", err)
	}
	pass.tierCache[customerID] = t
	return t, nil
}

// eligibleSubtotal sums the opted-in line items, net or gross per settings.
// Non-eligible items contribute zero.
func (d *DiscountEngine) eligibleSubtotal(ctx context.Context, items []model.LineItem, useNet bool) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		ok, err := d.policy.IsEligible(ctx, item.ProductID)
		if err != nil {
			return decimal.Zero, fmt.Errorf("eligibility of product %d: %w", item.ProductID, err)
		}
		if !ok {
			continue
		}
		unit := item.UnitPrice
		if useNet {
			unit = item.UnitPriceNet
		}
		total = total.Add(unit.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total, nil
}

// removeCoupons strips every applied coupon and shows the mutual-exclusion
// notice once.
func (d *DiscountEngine) removeCoupons(cart Cart, tier model.Tier, percent decimal.Decimal) {
	applied := cart.AppliedCoupons()
	if len(applied) == 0 {
		return
	}
	for _, code := range applied {
		cart.RemoveCoupon(code)
	}
	cart.AddNotice(model.Notice{
		Type:    "notice",
		Message: fmt.Sprintf("Coupons cannot be used with Loyalty %s Tier Discount (%s%%).", tier, percent.String()),
	})
	cart.Recalculate()
}

// ValidateCoupon enforces the exclusion rule on a coupon application
// attempt: rejected whenever the customer holds a tier and the cart contains
// at least one eligible item. The result is recomputed on every call, never
// cached.
func (d *DiscountEngine) ValidateCoupon(ctx context.Context, pass *Pass, cart Cart) (bool, *model.Notice, error) {
	if cart.CustomerID() == 0 {
		return true, nil, nil
	}
	tier, err := d.tierFor(ctx, pass, cart.CustomerID())
	if err != nil {
		return false, nil, err
	}
	if tier == model.TierNone {
		return true, nil, nil
	}
	for _, item := range cart.LineItems() {
		ok, err := d.policy.IsEligible(ctx, item.ProductID)
		if err != nil {
			return false, nil, fmt.Errorf("eligibility of product %d: %w", item.ProductID, err)
		}
		if ok {
			return false, &model.Notice{
				Type:    "error",
				Message: "Coupons cannot be used when Loyalty Discount is enabled for any product in your cart.",
			}, nil
		}
	}
	return true, nil, nil
}
