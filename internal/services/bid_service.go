package services

import (
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"auction-engine/pkg/utils"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	escrowAttempts   = 3
	escrowRetryDelay = 100 * time.Millisecond
	reversalBatch    = 100
)

type BidService struct {
	auctionRepo domain.AuctionRepository
	wallet      domain.Wallet
	reversals   domain.EscrowReversalStore
	clock       domain.Clock
	effects     *sideEffects
	opts        EngineOptions
	log         logger.Logger
}

func NewBidService(
	auctionRepo domain.AuctionRepository,
	wallet domain.Wallet,
	reversals domain.EscrowReversalStore,
	eventPub domain.EventPublisher,
	stateCache domain.AuctionStateCache,
	clock domain.Clock,
	opts EngineOptions,
	log logger.Logger,
) *BidService {
	return &BidService{
		auctionRepo: auctionRepo,
		wallet:      wallet,
		reversals:   reversals,
		clock:       clock,
		effects:     &sideEffects{eventPub: eventPub, stateCache: stateCache, timeout: opts.NotifyTimeout, log: log},
		opts:        opts,
		log:         log,
	}
}

// PlaceBid escrows amount from the bidder and records the bid. A lost write
// race reverses the escrow and re-validates against the fresh auction state.
func (s *BidService) PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (*domain.Auction, error) {
	s.log.Info("Placing bid", "auction_id", auctionID, "user_id", bidderID, "amount", amount)

	for attempt := 1; attempt <= s.opts.MaxBidRetries; attempt++ {
		auction, placement, err := s.tryPlaceBid(ctx, auctionID, bidderID, amount)
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			s.log.Warn("Bid lost a write race, retrying", "auction_id", auctionID, "user_id", bidderID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		s.log.Info("Bid accepted", "auction_id", auctionID, "user_id", bidderID, "amount", amount,
			"version", auction.Version, "extended", placement.Extended)
		s.afterBid(ctx, auction, placement)
		return auction, nil
	}

	return nil, fmt.Errorf("place bid on auction %s after %d attempts: %w", auctionID, s.opts.MaxBidRetries, domain.ErrConcurrencyConflict)
}

func (s *BidService) tryPlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (*domain.Auction, *domain.BidPlacement, error) {
	auction, err := s.auctionRepo.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	auction.Reconcile(now)
	if err := auction.ValidateBid(amount); err != nil {
		return nil, nil, err
	}

	balance, err := s.balance(ctx, bidderID)
	if err != nil {
		return nil, nil, fmt.Errorf("read balance of %s: %w", bidderID, err)
	}
	if balance.LessThan(amount) {
		return nil, nil, &domain.InsufficientFundsError{Required: amount, Balance: balance}
	}

	ref := utils.GenerateID("bid")
	if err := s.escrow(ctx, bidderID, amount, ref); err != nil {
		return nil, nil, err
	}

	placement, err := auction.PlaceBid(bidderID, amount, now)
	if err == nil {
		err = auction.CheckInvariants()
	}
	if err == nil {
		err = s.auctionRepo.UpdateAuction(ctx, auction)
	}
	if err != nil {
		s.reverseEscrow(ctx, bidderID, amount, ref)
		return nil, nil, err
	}

	return auction, placement, nil
}

func (s *BidService) balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	walletCtx, cancel := context.WithTimeout(ctx, s.opts.WalletTimeout)
	defer cancel()
	return s.wallet.Balance(walletCtx, userID)
}

func (s *BidService) debit(ctx context.Context, userID string, amount decimal.Decimal, ref string) error {
	walletCtx, cancel := context.WithTimeout(ctx, s.opts.WalletTimeout)
	defer cancel()
	return s.wallet.Debit(walletCtx, userID, amount, ref)
}

// escrow debits amount under ref. A failed debit may still have been
// applied, so it is retried under the same ref until the wallet gives a
// definite answer. When it never does, the debit is queued for reversal.
func (s *BidService) escrow(ctx context.Context, userID string, amount decimal.Decimal, ref string) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = s.debit(ctx, userID, amount, ref)
		if err == nil {
			return nil
		}
		// a rejected replay means no earlier attempt landed either
		if errors.Is(err, domain.ErrInsufficientFunds) || errors.Is(err, domain.ErrInvalidAmount) {
			return err
		}

		s.log.Warn("Escrow debit failed", "user_id", userID, "amount", amount, "ref", ref,
			"attempt", attempt, "error", err)
		if attempt == escrowAttempts || !sleepCtx(ctx, escrowRetryDelay) {
			break
		}
	}

	s.queueReversal(ctx, userID, amount, ref, "debit outcome unknown")
	return fmt.Errorf("escrow bid: %w", err)
}

// reverseEscrow credits back a debit whose bid never got persisted. It runs
// even if the caller's context is already cancelled.
func (s *BidService) reverseEscrow(ctx context.Context, userID string, amount decimal.Decimal, ref string) {
	walletCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.WalletTimeout)
	defer cancel()

	if err := s.wallet.Credit(walletCtx, userID, amount, ref+"_reversal"); err != nil {
		s.log.Error("Failed to reverse bid escrow", "user_id", userID, "amount", amount, "ref", ref, "error", err)
		s.queueReversal(ctx, userID, amount, ref, "reversal credit failed")
	}
}

func (s *BidService) queueReversal(ctx context.Context, userID string, amount decimal.Decimal, ref, reason string) {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.WalletTimeout)
	defer cancel()

	err := s.reversals.SaveReversal(storeCtx, &domain.EscrowReversal{
		Ref:       ref,
		UserID:    userID,
		Amount:    amount,
		Reason:    reason,
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		// nothing else holds this debit now; the log line is the only record
		s.log.Error("Failed to queue escrow reversal", "user_id", userID, "amount", amount, "ref", ref,
			"reason", reason, "error", err)
		return
	}
	s.log.Warn("Queued escrow reversal", "user_id", userID, "amount", amount, "ref", ref, "reason", reason)
}

// ReplayReversals settles queued escrow reversals and returns how many were
// resolved. Entries that still fail stay queued for the next pass.
func (s *BidService) ReplayReversals(ctx context.Context) (int, error) {
	pending, err := s.reversals.ListReversals(ctx, reversalBatch)
	if err != nil {
		return 0, fmt.Errorf("list escrow reversals: %w", err)
	}

	resolved := 0
	for _, r := range pending {
		if err := s.replayReversal(ctx, r); err != nil {
			s.log.Warn("Escrow reversal still pending", "user_id", r.UserID, "ref", r.Ref, "error", err)
			continue
		}
		if err := s.reversals.DeleteReversal(ctx, r.Ref); err != nil {
			s.log.Error("Failed to clear escrow reversal", "ref", r.Ref, "error", err)
			continue
		}
		resolved++
	}
	return resolved, nil
}

func (s *BidService) replayReversal(ctx context.Context, r *domain.EscrowReversal) error {
	err := s.debit(ctx, r.UserID, r.Amount, r.Ref)
	if errors.Is(err, domain.ErrInsufficientFunds) {
		// the original debit never landed, nothing is held
		s.log.Info("Escrow debit never applied, dropping reversal", "user_id", r.UserID, "ref", r.Ref)
		return nil
	}
	if err != nil {
		return err
	}

	walletCtx, cancel := context.WithTimeout(ctx, s.opts.WalletTimeout)
	defer cancel()
	if err := s.wallet.Credit(walletCtx, r.UserID, r.Amount, r.ReversalRef()); err != nil {
		return err
	}
	s.log.Info("Escrow reversed", "user_id", r.UserID, "amount", r.Amount, "ref", r.Ref)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *BidService) afterBid(ctx context.Context, auction *domain.Auction, placement *domain.BidPlacement) {
	events := []*domain.AuctionEvent{{
		Type:      domain.EventBidPlaced,
		AuctionID: auction.ID,
		UserID:    placement.Bid.BidderID,
		Amount:    placement.Bid.Amount,
		Timestamp: placement.Bid.PlacedAt,
	}}
	if placement.Extended {
		endTime := auction.EndTime
		events = append(events, &domain.AuctionEvent{
			Type:      domain.EventAuctionExtended,
			AuctionID: auction.ID,
			UserID:    placement.Bid.BidderID,
			Amount:    placement.Bid.Amount,
			EndTime:   &endTime,
			Timestamp: placement.Bid.PlacedAt,
		})
	}

	s.effects.publish(ctx, events...)
	s.effects.cache(ctx, auction)
}
