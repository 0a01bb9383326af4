package services

import (
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"context"
	"time"
)

type EngineOptions struct {
	MaxBidRetries    int
	MaxSettleRetries int
	WalletTimeout    time.Duration
	NotifyTimeout    time.Duration
}

func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		MaxBidRetries:    5,
		MaxSettleRetries: 5,
		WalletTimeout:    5 * time.Second,
		NotifyTimeout:    3 * time.Second,
	}
}

// sideEffects runs the best effort work that follows a committed write:
// publishing events and refreshing the cached snapshot. Failures are logged
// and never reach the caller.
type sideEffects struct {
	eventPub   domain.EventPublisher
	stateCache domain.AuctionStateCache
	timeout    time.Duration
	log        logger.Logger
}

func (s *sideEffects) publish(ctx context.Context, events ...*domain.AuctionEvent) {
	for _, event := range events {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		err := s.eventPub.PublishAuctionEvent(pubCtx, event)
		cancel()
		if err != nil {
			s.log.Error("Failed to publish auction event", "type", event.Type, "auction_id", event.AuctionID, "error", err)
		}
	}
}

func (s *sideEffects) cache(ctx context.Context, auction *domain.Auction) {
	cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.stateCache.SetSnapshot(cacheCtx, domain.SnapshotOf(auction)); err != nil {
		s.log.Warn("Failed to cache auction snapshot", "auction_id", auction.ID, "error", err)
	}
}
