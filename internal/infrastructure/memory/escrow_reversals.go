package memory

import (
	"auction-engine/internal/domain"
	"context"
	"sort"
	"sync"
)

type EscrowReversalStore struct {
	mu        sync.Mutex
	reversals map[string]domain.EscrowReversal
}

func NewEscrowReversalStore() *EscrowReversalStore {
	return &EscrowReversalStore{reversals: make(map[string]domain.EscrowReversal)}
}

func (s *EscrowReversalStore) SaveReversal(ctx context.Context, reversal *domain.EscrowReversal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reversals[reversal.Ref]; !ok {
		s.reversals[reversal.Ref] = *reversal
	}
	return nil
}

// ListReversals returns the oldest reversals first.
func (s *EscrowReversalStore) ListReversals(ctx context.Context, limit int) ([]*domain.EscrowReversal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.EscrowReversal, 0, len(s.reversals))
	for _, r := range s.reversals {
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Ref < out[j].Ref
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *EscrowReversalStore) DeleteReversal(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reversals, ref)
	return nil
}
