package memory

import (
	"auction-engine/internal/domain"
	"context"

	"github.com/shopspring/decimal"
)

type StaticIncrementRules struct {
	Tiers []domain.IncrementTier
}

func NewStaticIncrementRules() *StaticIncrementRules {
	return &StaticIncrementRules{Tiers: domain.DefaultIncrementTiers()}
}

func (r *StaticIncrementRules) GetIncrementRule(ctx context.Context, startPrice decimal.Decimal) (decimal.Decimal, error) {
	return domain.IncrementFor(r.Tiers, startPrice), nil
}
