package services

import (
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type CreateAuctionInput struct {
	ProductRef       string
	Title            string
	Description      string
	StartPrice       decimal.Decimal
	ReservePrice     decimal.NullDecimal
	BidIncrement     decimal.NullDecimal
	StartTime        time.Time
	EndTime          time.Time
	FeePercentage    decimal.Decimal
	AutoExtend       bool
	ExtensionMinutes int
}

// AuctionManager owns auction creation and every read path.
type AuctionManager struct {
	auctionRepo    domain.AuctionRepository
	stateCache     domain.AuctionStateCache
	eventLog       domain.EventLogRepository
	incrementRules domain.IncrementRuleProvider
	clock          domain.Clock
	log            logger.Logger
}

func NewAuctionManager(
	auctionRepo domain.AuctionRepository,
	stateCache domain.AuctionStateCache,
	eventLog domain.EventLogRepository,
	incrementRules domain.IncrementRuleProvider,
	clock domain.Clock,
	log logger.Logger,
) *AuctionManager {
	return &AuctionManager{
		auctionRepo:    auctionRepo,
		stateCache:     stateCache,
		eventLog:       eventLog,
		incrementRules: incrementRules,
		clock:          clock,
		log:            log,
	}
}

func (am *AuctionManager) CreateAuction(ctx context.Context, in CreateAuctionInput) (*domain.Auction, error) {
	increment := in.BidIncrement.Decimal
	if !in.BidIncrement.Valid {
		rule, err := am.incrementRules.GetIncrementRule(ctx, in.StartPrice)
		if err != nil {
			return nil, fmt.Errorf("load increment rule: %w", err)
		}
		increment = rule
	}

	extension := in.ExtensionMinutes
	if extension == 0 {
		extension = 5
	}

	now := am.clock.Now()
	auction, err := domain.NewAuction(domain.NewAuctionParams{
		ID:               utils.GenerateID("auction"),
		ProductRef:       in.ProductRef,
		Title:            in.Title,
		Description:      in.Description,
		StartPrice:       in.StartPrice,
		ReservePrice:     in.ReservePrice,
		BidIncrement:     increment,
		StartTime:        in.StartTime.UTC(),
		EndTime:          in.EndTime.UTC(),
		FeePercentage:    in.FeePercentage,
		AutoExtend:       in.AutoExtend,
		ExtensionMinutes: extension,
	}, now)
	if err != nil {
		return nil, err
	}

	if err := am.auctionRepo.CreateAuction(ctx, auction); err != nil {
		return nil, fmt.Errorf("create auction: %w", err)
	}

	if err := am.stateCache.SetSnapshot(ctx, domain.SnapshotOf(auction)); err != nil {
		am.log.Warn("Failed to cache auction snapshot", "auction_id", auction.ID, "error", err)
	}

	am.log.Info("Auction created", "auction_id", auction.ID, "start_time", auction.StartTime,
		"end_time", auction.EndTime, "bid_increment", auction.BidIncrement)
	return auction, nil
}

// GetAuction returns the auction with its status derived from the clock.
func (am *AuctionManager) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	auction, err := am.auctionRepo.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	auction.Reconcile(am.clock.Now())
	return auction, nil
}

func (am *AuctionManager) ListAuctions(ctx context.Context, filter domain.AuctionFilter) ([]*domain.Auction, error) {
	now := am.clock.Now()
	filter.Now = now
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}

	auctions, err := am.auctionRepo.FindAuctions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find auctions: %w", err)
	}
	for _, a := range auctions {
		a.Reconcile(now)
	}
	return auctions, nil
}

// GetSnapshot serves the live summary from the cache when the cached copy
// cannot have gone stale by the clock alone.
func (am *AuctionManager) GetSnapshot(ctx context.Context, auctionID string) (*domain.AuctionSnapshot, error) {
	now := am.clock.Now()

	snapshot, err := am.stateCache.GetSnapshot(ctx, auctionID)
	if err != nil {
		am.log.Warn("Snapshot cache read failed", "auction_id", auctionID, "error", err)
	}
	if snapshot != nil && (snapshot.Status.IsTerminal() || now.Before(snapshot.EndTime)) && snapshot.Status != domain.AuctionUpcoming {
		return snapshot, nil
	}

	auction, err := am.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	snapshot = domain.SnapshotOf(auction)
	if err := am.stateCache.SetSnapshot(ctx, snapshot); err != nil {
		am.log.Warn("Failed to cache auction snapshot", "auction_id", auctionID, "error", err)
	}
	return snapshot, nil
}

func (am *AuctionManager) GetAuctionEvents(ctx context.Context, auctionID string) ([]*domain.AuctionEvent, error) {
	if _, err := am.auctionRepo.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	return am.eventLog.GetAuctionEvents(ctx, auctionID)
}
