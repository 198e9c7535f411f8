package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Tier is a discrete loyalty level. Ordering matters: a higher value always
// means a better discount, and ties between numerically equal thresholds are
// resolved in favour of the higher rank.
type Tier int

const (
	TierNone Tier = iota
	TierBronze
	TierSilver
	TierGold
	TierPlatinum
)

var tierNames = [...]string{"None", "Bronze", "Silver", "Gold", "Platinum"}

// String returns the canonical display name of the tier ("None", "Bronze", ...).
func (t Tier) String() string {
	if t < TierNone || t > TierPlatinum {
		return tierNames[TierNone]
	}
	return tierNames[t]
}

// ParseTier converts a stored tier label back into a Tier. Comparison is
// case-insensitive because historical records were written with mixed casing.
// Unknown or empty labels map to TierNone.
func ParseTier(s string) Tier {
	s = strings.TrimSpace(s)
	for i, name := range tierNames {
		if strings.EqualFold(s, name) {
			return Tier(i)
		}
	}
	return TierNone
}

// MarshalText serializes a tier as its display name, which also makes
// ThresholdTable JSON keys readable ("Bronze" instead of "1").
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a tier label case-insensitively.
func (t *Tier) UnmarshalText(b []byte) error {
	*t = ParseTier(string(b))
	return nil
}

// AllTiers lists every tier in ascending rank order.
func AllTiers() []Tier {
	return []Tier{TierNone, TierBronze, TierSilver, TierGold, TierPlatinum}
}

// TierThreshold holds the entry requirements and the benefit for one tier.
type TierThreshold struct {
	MinSpend        decimal.Decimal `json:"min_spend"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

// ThresholdTable maps each tier to its minimum yearly spend and discount
// percentage. TierNone is pinned to {0, 0}. The table is read once at the
// start of a sync run and treated as immutable for that run; settings changes
// take effect on the next run.
type ThresholdTable map[Tier]TierThreshold

// DefaultThresholds returns the shipped threshold table:
// Bronze 500/5%, Silver 1000/10%, Gold 5000/15%, Platinum 10000/20%.
func DefaultThresholds() ThresholdTable {
	return ThresholdTable{
		TierNone:     {MinSpend: decimal.Zero, DiscountPercent: decimal.Zero},
		TierBronze:   {MinSpend: decimal.NewFromInt(500), DiscountPercent: decimal.NewFromInt(5)},
		TierSilver:   {MinSpend: decimal.NewFromInt(1000), DiscountPercent: decimal.NewFromInt(10)},
		TierGold:     {MinSpend: decimal.NewFromInt(5000), DiscountPercent: decimal.NewFromInt(15)},
		TierPlatinum: {MinSpend: decimal.NewFromInt(10000), DiscountPercent: decimal.NewFromInt(20)},
	}
}

// Validate checks that the table is usable for a sync run: every tier is
// present, TierNone sits at zero, and MinSpend is strictly increasing with
// rank. An empty or partial table is a configuration error that must abort a
// run before any record is touched.
func (tt ThresholdTable) Validate() error {
	if len(tt) == 0 {
		return ErrEmptyThresholds
	}
	prev := decimal.NewFromInt(-1)
	for _, t := range AllTiers() {
		th, ok := tt[t]
		if !ok {
			return ErrEmptyThresholds
		}
		if t == TierNone && (!th.MinSpend.IsZero() || !th.DiscountPercent.IsZero()) {
			return ErrInvalidThresholds
		}
		if t > TierBronze && th.MinSpend.LessThanOrEqual(prev) {
			return ErrInvalidThresholds
		}
		if th.DiscountPercent.IsNegative() || th.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
			return ErrInvalidThresholds
		}
		prev = th.MinSpend
	}
	return nil
}

// TierFor resolves the tier earned by the given yearly spend. Thresholds are
// evaluated from the highest rank down and the first tier whose MinSpend is
// covered wins, so equal thresholds resolve to the higher rank. Negative
// spend is coerced to zero. The function is pure and never fails: a tier
// missing from the table simply cannot be won.
func (tt ThresholdTable) TierFor(yearlySpend decimal.Decimal) Tier {
	if yearlySpend.IsNegative() {
		yearlySpend = decimal.Zero
	}
	for i := len(tierNames) - 1; i > 0; i-- {
		t := Tier(i)
		th, ok := tt[t]
		if !ok {
			continue
		}
		if yearlySpend.GreaterThanOrEqual(th.MinSpend) {
			return t
		}
	}
	return TierNone
}

// DiscountPercentFor returns the discount percentage granted by a tier, or
// zero when the tier has no entry.
func (tt ThresholdTable) DiscountPercentFor(t Tier) decimal.Decimal {
	th, ok := tt[t]
	if !ok {
		return decimal.Zero
	}
	return th.DiscountPercent
}
