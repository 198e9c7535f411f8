package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestTierForDefaults(t *testing.T) {
	tt := DefaultThresholds()

	cases := []struct {
		spend int64
		want  Tier
	}{
		{0, TierNone},
		{499, TierNone},
		{500, TierBronze},
		{999, TierBronze},
		{1000, TierSilver},
		{1200, TierSilver},
		{4999, TierSilver},
		{5000, TierGold},
		{9999, TierGold},
		{10000, TierPlatinum},
		{1000000, TierPlatinum},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, tt.TierFor(d(c.spend)), "spend %d", c.spend)
	}
}

func TestTierForIsMonotonic(t *testing.T) {
	tt := DefaultThresholds()
	prev := TierNone
	for spend := int64(0); spend <= 12000; spend += 100 {
		got := tt.TierFor(d(spend))
		assert.GreaterOrEqual(t, int(got), int(prev), "tier regressed at spend %d", spend)
		prev = got
	}
}

func TestTierForNegativeSpendIsNone(t *testing.T) {
	tt := DefaultThresholds()
	assert.Equal(t, TierNone, tt.TierFor(d(-50)))
}

func TestTierForEqualThresholdsPickHigherRank(t *testing.T) {
	tt := ThresholdTable{
		TierNone:     {MinSpend: decimal.Zero, DiscountPercent: decimal.Zero},
		TierBronze:   {MinSpend: d(500), DiscountPercent: d(5)},
		TierSilver:   {MinSpend: d(1000), DiscountPercent: d(10)},
		TierGold:     {MinSpend: d(1000), DiscountPercent: d(15)},
		TierPlatinum: {MinSpend: d(9000), DiscountPercent: d(20)},
	}
	// Gold and Silver share a threshold; the higher rank wins.
	assert.Equal(t, TierGold, tt.TierFor(d(1000)))
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultThresholds().Validate())

	assert.ErrorIs(t, ThresholdTable{}.Validate(), ErrEmptyThresholds)

	partial := DefaultThresholds()
	delete(partial, TierGold)
	assert.ErrorIs(t, partial.Validate(), ErrEmptyThresholds)

	nonIncreasing := DefaultThresholds()
	nonIncreasing[TierGold] = TierThreshold{MinSpend: d(1000), DiscountPercent: d(15)}
	assert.ErrorIs(t, nonIncreasing.Validate(), ErrInvalidThresholds)

	badPercent := DefaultThresholds()
	badPercent[TierSilver] = TierThreshold{MinSpend: d(1000), DiscountPercent: d(101)}
	assert.ErrorIs(t, badPercent.Validate(), ErrInvalidThresholds)

	pinnedNone := DefaultThresholds()
	pinnedNone[TierNone] = TierThreshold{MinSpend: d(1), DiscountPercent: decimal.Zero}
	assert.ErrorIs(t, pinnedNone.Validate(), ErrInvalidThresholds)
}

func TestParseTier(t *testing.T) {
	assert.Equal(t, TierSilver, ParseTier("Silver"))
	assert.Equal(t, TierSilver, ParseTier("silver"))
	assert.Equal(t, TierPlatinum, ParseTier("  PLATINUM "))
	assert.Equal(t, TierNone, ParseTier(""))
	assert.Equal(t, TierNone, ParseTier("diamond"))
}

func TestDiscountPercentFor(t *testing.T) {
	tt := DefaultThresholds()
	assert.True(t, tt.DiscountPercentFor(TierGold).Equal(d(15)))
	assert.True(t, tt.DiscountPercentFor(Tier(42)).IsZero())
}
