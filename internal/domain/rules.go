package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// IncrementTier applies Increment to prices in [From, To). A zero To is
// unbounded.
type IncrementTier struct {
	From      decimal.Decimal `json:"from"`
	To        decimal.Decimal `json:"to"`
	Increment decimal.Decimal `json:"increment"`
}

func DefaultIncrementTiers() []IncrementTier {
	return []IncrementTier{
		{From: decimal.Zero, To: decimal.NewFromInt(100), Increment: decimal.NewFromInt(5)},
		{From: decimal.NewFromInt(100), To: decimal.NewFromInt(500), Increment: decimal.NewFromInt(10)},
		{From: decimal.NewFromInt(500), Increment: decimal.NewFromInt(25)},
	}
}

// IncrementFor picks the tier covering price; prices beyond every tier use
// the last one.
func IncrementFor(tiers []IncrementTier, price decimal.Decimal) decimal.Decimal {
	for _, t := range tiers {
		if price.LessThan(t.From) {
			continue
		}
		if t.To.IsZero() || price.LessThan(t.To) {
			return t.Increment
		}
	}
	if len(tiers) == 0 {
		return decimal.NewFromInt(1)
	}
	return tiers[len(tiers)-1].Increment
}

// IncrementRuleProvider supplies the default bid increment for new auctions.
type IncrementRuleProvider interface {
	GetIncrementRule(ctx context.Context, startPrice decimal.Decimal) (decimal.Decimal, error)
}
