package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"auction-engine/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

const incrementRulesKey = "bid_increment_rules"

type incrementRules struct {
	Tiers []domain.IncrementTier `json:"tiers"`
}

// IncrementRuleStore keeps the tiered default increments in Redis so every
// instance creates auctions with the same defaults.
type IncrementRuleStore struct {
	client *redis.Client
	mu     sync.RWMutex
	tiers  []domain.IncrementTier
}

func NewIncrementRuleStore(client *redis.Client) *IncrementRuleStore {
	return &IncrementRuleStore{client: client}
}

// LoadRules reads the tiers, seeding Redis with the defaults when absent.
func (s *IncrementRuleStore) LoadRules(ctx context.Context) error {
	data, err := s.client.Get(ctx, incrementRulesKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.setTiers(domain.DefaultIncrementTiers())
			return s.saveRules(ctx)
		}
		return err
	}

	var rules incrementRules
	if err := json.Unmarshal([]byte(data), &rules); err != nil {
		return err
	}
	s.setTiers(rules.Tiers)
	return nil
}

func (s *IncrementRuleStore) saveRules(ctx context.Context) error {
	s.mu.RLock()
	data, err := json.Marshal(incrementRules{Tiers: s.tiers})
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	// SetNX keeps rules another instance stored first
	return s.client.SetNX(ctx, incrementRulesKey, string(data), 0).Err()
}

func (s *IncrementRuleStore) setTiers(tiers []domain.IncrementTier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers = tiers
}

func (s *IncrementRuleStore) GetIncrementRule(ctx context.Context, startPrice decimal.Decimal) (decimal.Decimal, error) {
	s.mu.RLock()
	loaded := s.tiers != nil
	s.mu.RUnlock()

	if !loaded {
		if err := s.LoadRules(ctx); err != nil {
			return decimal.Zero, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.IncrementFor(s.tiers, startPrice), nil
}
