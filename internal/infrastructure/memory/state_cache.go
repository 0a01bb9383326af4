package memory

import (
	"auction-engine/internal/domain"
	"context"
	"sync"
)

type StateCache struct {
	mu        sync.RWMutex
	snapshots map[string]domain.AuctionSnapshot
}

func NewStateCache() *StateCache {
	return &StateCache{snapshots: make(map[string]domain.AuctionSnapshot)}
}

func (c *StateCache) SetSnapshot(ctx context.Context, snapshot *domain.AuctionSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.snapshots[snapshot.AuctionID]; ok && cur.Version > snapshot.Version {
		return nil
	}
	c.snapshots[snapshot.AuctionID] = *snapshot
	return nil
}

func (c *StateCache) GetSnapshot(ctx context.Context, auctionID string) (*domain.AuctionSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.snapshots[auctionID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}
