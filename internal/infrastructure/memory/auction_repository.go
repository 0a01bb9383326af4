package memory

import (
	"auction-engine/internal/domain"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// AuctionRepository keeps aggregates in a map and hands out deep copies, so
// callers observe the same isolation they would get from a database.
type AuctionRepository struct {
	mu       sync.RWMutex
	auctions map[string]*domain.Auction
}

func NewAuctionRepository() *AuctionRepository {
	return &AuctionRepository{auctions: make(map[string]*domain.Auction)}
}

func (r *AuctionRepository) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.auctions[auction.ID]; exists {
		return fmt.Errorf("%w: auction %s already exists", domain.ErrInvalidAuction, auction.ID)
	}
	r.auctions[auction.ID] = auction.Clone()
	return nil
}

func (r *AuctionRepository) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.auctions[auctionID]
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	return a.Clone(), nil
}

func (r *AuctionRepository) UpdateAuction(ctx context.Context, auction *domain.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.auctions[auction.ID]
	if !ok {
		return domain.ErrAuctionNotFound
	}
	if stored.Version != auction.Version {
		return fmt.Errorf("%w: auction %s at version %d, expected %d",
			domain.ErrConcurrencyConflict, auction.ID, stored.Version, auction.Version)
	}

	auction.Version++
	r.auctions[auction.ID] = auction.Clone()
	return nil
}

func (r *AuctionRepository) FindAuctions(ctx context.Context, filter domain.AuctionFilter) ([]*domain.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Auction
	for _, stored := range r.auctions {
		a := stored.Clone()
		a.Reconcile(filter.Now)
		if !matches(a, filter) {
			continue
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].EndTime.Equal(out[j].EndTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].EndTime.Before(out[j].EndTime)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matches(a *domain.Auction, f domain.AuctionFilter) bool {
	if f.Status != nil && a.Status != *f.Status {
		return false
	}
	if f.BidderID != "" && !a.HasBidFrom(f.BidderID) {
		return false
	}
	if f.MinTopBid.Valid && a.CurrentTopBid.LessThan(f.MinTopBid.Decimal) {
		return false
	}
	if f.MaxTopBid.Valid && a.CurrentTopBid.GreaterThan(f.MaxTopBid.Decimal) {
		return false
	}
	return true
}

func (r *AuctionRepository) ActivateDueAuctions(ctx context.Context, now time.Time) (int64, error) {
	return r.flip(now, func(a *domain.Auction) bool {
		return a.Status == domain.AuctionUpcoming && !now.Before(a.StartTime) && now.Before(a.EndTime)
	}, domain.AuctionActive)
}

func (r *AuctionRepository) EndDueAuctions(ctx context.Context, now time.Time) (int64, error) {
	return r.flip(now, func(a *domain.Auction) bool {
		return (a.Status == domain.AuctionUpcoming || a.Status == domain.AuctionActive) && !now.Before(a.EndTime)
	}, domain.AuctionEnded)
}

func (r *AuctionRepository) flip(now time.Time, due func(a *domain.Auction) bool, to domain.AuctionStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, a := range r.auctions {
		if !due(a) {
			continue
		}
		a.Status = to
		a.UpdatedAt = now
		a.Version++
		n++
	}
	return n, nil
}

func (r *AuctionRepository) GetUnsettledAuctionIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, a := range r.auctions {
		if !a.IsProcessed && a.Status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
