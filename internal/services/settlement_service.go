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

type RefundResult struct {
	Seq        int             `json:"seq"`
	BidderID   string          `json:"bidder_id"`
	BidAmount  decimal.Decimal `json:"bid_amount"`
	Fee        decimal.Decimal `json:"fee"`
	Refund     decimal.Decimal `json:"refund"`
	RefundRef  string          `json:"refund_ref"`
	RefundedAt time.Time       `json:"refunded_at"`
}

// SettlementResult is derived from the persisted auction only, so settling
// an already processed auction reports the same outcome again.
type SettlementResult struct {
	AuctionID        string               `json:"auction_id"`
	Status           domain.AuctionStatus `json:"status"`
	WinnerID         string               `json:"winner_id,omitempty"`
	WinningBid       decimal.NullDecimal  `json:"winning_bid"`
	Refunds          []RefundResult       `json:"refunds"`
	PendingRefunds   int                  `json:"pending_refunds"`
	Processed        bool                 `json:"processed"`
	AlreadyProcessed bool                 `json:"already_processed"`
}

func resultOf(a *domain.Auction) *SettlementResult {
	res := &SettlementResult{
		AuctionID:      a.ID,
		Status:         a.Status,
		WinnerID:       a.WinnerID,
		WinningBid:     a.WinningBid,
		Refunds:        []RefundResult{},
		PendingRefunds: len(a.RefundCandidates()),
		Processed:      a.IsProcessed,
	}
	for i, b := range a.Bids {
		if b.Status != domain.BidRefunded {
			continue
		}
		fee, refund := a.RefundFor(b)
		r := RefundResult{Seq: i, BidderID: b.BidderID, BidAmount: b.Amount, Fee: fee, Refund: refund, RefundRef: b.RefundRef}
		if b.RefundedAt != nil {
			r.RefundedAt = *b.RefundedAt
		}
		res.Refunds = append(res.Refunds, r)
	}
	return res
}

type SettlementService struct {
	auctionRepo domain.AuctionRepository
	wallet      domain.Wallet
	notifier    domain.Notifier
	admins      domain.AdminDirectory
	clock       domain.Clock
	effects     *sideEffects
	opts        EngineOptions
	log         logger.Logger
}

func NewSettlementService(
	auctionRepo domain.AuctionRepository,
	wallet domain.Wallet,
	notifier domain.Notifier,
	admins domain.AdminDirectory,
	eventPub domain.EventPublisher,
	stateCache domain.AuctionStateCache,
	clock domain.Clock,
	opts EngineOptions,
	log logger.Logger,
) *SettlementService {
	return &SettlementService{
		auctionRepo: auctionRepo,
		wallet:      wallet,
		notifier:    notifier,
		admins:      admins,
		clock:       clock,
		effects:     &sideEffects{eventPub: eventPub, stateCache: stateCache, timeout: opts.NotifyTimeout, log: log},
		opts:        opts,
		log:         log,
	}
}

// Settle declares the winner of an ended auction and refunds every other
// held bid. It is safe to call repeatedly and from several instances.
func (s *SettlementService) Settle(ctx context.Context, auctionID string) (*SettlementResult, error) {
	return s.run(ctx, auctionID, "settle", func(a *domain.Auction, now time.Time) (bool, error) {
		return a.DecideOutcome(now)
	})
}

// CancelAuction stops an unsettled auction and refunds every held bid.
func (s *SettlementService) CancelAuction(ctx context.Context, auctionID, adminID string) (*SettlementResult, error) {
	isAdmin, err := s.admins.IsAdmin(ctx, adminID)
	if err != nil {
		return nil, fmt.Errorf("check admin %s: %w", adminID, err)
	}
	if !isAdmin {
		return nil, fmt.Errorf("%w: %s may not cancel auctions", domain.ErrForbidden, adminID)
	}

	s.log.Info("Cancelling auction", "auction_id", auctionID, "admin_id", adminID)
	return s.run(ctx, auctionID, "cancel", func(a *domain.Auction, now time.Time) (bool, error) {
		return false, a.Cancel(now)
	})
}

// run commits the outcome first and only then moves money, so the set of
// bids to refund is fixed before the first credit and every retry, from any
// instance, credits the same bids under the same refs.
func (s *SettlementService) run(ctx context.Context, auctionID, op string,
	decide func(a *domain.Auction, now time.Time) (bool, error)) (*SettlementResult, error) {

	auction, err := s.commitOutcome(ctx, auctionID, op, decide)
	if err != nil {
		return nil, err
	}
	if auction.IsProcessed {
		return alreadyProcessed(auction), nil
	}
	return s.settleRefunds(ctx, auction, op)
}

func alreadyProcessed(a *domain.Auction) *SettlementResult {
	res := resultOf(a)
	res.AlreadyProcessed = true
	return res
}

// commitOutcome writes the status change (and the winning mark) on its own.
// An auction whose outcome is already committed is returned as loaded.
func (s *SettlementService) commitOutcome(ctx context.Context, auctionID, op string,
	decide func(a *domain.Auction, now time.Time) (bool, error)) (*domain.Auction, error) {

	for attempt := 1; attempt <= s.opts.MaxSettleRetries; attempt++ {
		auction, err := s.auctionRepo.GetAuction(ctx, auctionID)
		if err != nil {
			return nil, err
		}

		now := s.clock.Now()
		auction.Reconcile(now)
		if auction.IsProcessed && op == "settle" {
			return auction, nil
		}

		before := auction.Status
		declared, err := decide(auction, now)
		if err != nil {
			return nil, err
		}
		if auction.Status == before {
			return auction, nil
		}

		if err := auction.CheckInvariants(); err != nil {
			s.log.Error("Refusing to persist inconsistent auction", "auction_id", auctionID, "op", op, "error", err)
			return nil, fmt.Errorf("%s auction %s: %w", op, auctionID, err)
		}

		err = s.auctionRepo.UpdateAuction(ctx, auction)
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			s.log.Warn("Outcome lost a write race, retrying", "auction_id", auctionID, "op", op, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s auction %s: %w", op, auctionID, err)
		}

		s.log.Info("Auction outcome committed", "auction_id", auctionID, "op", op, "status", auction.Status,
			"winner_id", auction.WinnerID)
		s.announceOutcome(ctx, auction, declared)
		return auction, nil
	}

	return nil, fmt.Errorf("%s auction %s after %d attempts: %w", op, auctionID, s.opts.MaxSettleRetries, domain.ErrConcurrencyConflict)
}

// settleRefunds credits the bids still held by a decided auction and
// records the refunds. A lost write reloads and credits what is left; the
// credits already sent are replayed with the same refs.
func (s *SettlementService) settleRefunds(ctx context.Context, auction *domain.Auction, op string) (*SettlementResult, error) {
	auctionID := auction.ID

	for attempt := 1; attempt <= s.opts.MaxSettleRetries; attempt++ {
		if attempt > 1 {
			reloaded, err := s.auctionRepo.GetAuction(ctx, auctionID)
			if err != nil {
				return nil, err
			}
			if reloaded.IsProcessed {
				return alreadyProcessed(reloaded), nil
			}
			auction = reloaded
		}
		if !auction.Status.IsDecided() {
			return nil, fmt.Errorf("%w: refunds of auction %s before its outcome, status %s",
				domain.ErrInvalidState, auctionID, auction.Status)
		}

		now := s.clock.Now()
		refunds, failed := s.refundActiveBids(ctx, auction, now)
		if failed == 0 {
			auction.MarkProcessed(now)
		}

		if err := auction.CheckInvariants(); err != nil {
			s.log.Error("Refusing to persist inconsistent auction", "auction_id", auctionID, "op", op, "error", err)
			return nil, fmt.Errorf("%s auction %s: %w", op, auctionID, err)
		}

		err := s.auctionRepo.UpdateAuction(ctx, auction)
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			s.log.Warn("Refund write lost a race, retrying", "auction_id", auctionID, "op", op, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s auction %s: %w", op, auctionID, err)
		}

		s.log.Info("Auction settled", "auction_id", auctionID, "op", op, "status", auction.Status,
			"winner_id", auction.WinnerID, "refunds", len(refunds), "failed_refunds", failed,
			"processed", auction.IsProcessed)
		s.announceRefunds(ctx, auction, refunds)

		res := resultOf(auction)
		if failed > 0 {
			return res, fmt.Errorf("%w: %d refunds of auction %s pending", domain.ErrSettlementIncomplete, failed, auctionID)
		}
		return res, nil
	}

	return nil, fmt.Errorf("%s auction %s after %d attempts: %w", op, auctionID, s.opts.MaxSettleRetries, domain.ErrConcurrencyConflict)
}

// refundActiveBids returns the escrow of every bid still held, minus the
// platform fee. A failed credit leaves its bid Active for the next pass.
func (s *SettlementService) refundActiveBids(ctx context.Context, auction *domain.Auction, now time.Time) ([]RefundResult, int) {
	var (
		refunds []RefundResult
		failed  int
	)

	for _, i := range auction.RefundCandidates() {
		bid := auction.Bids[i]
		fee, refund := auction.RefundFor(bid)
		ref := utils.RefundRef(auction.ID, i)

		if refund.IsPositive() {
			walletCtx, cancel := context.WithTimeout(ctx, s.opts.WalletTimeout)
			err := s.wallet.Credit(walletCtx, bid.BidderID, refund, ref)
			cancel()
			if err != nil {
				s.log.Error("Refund failed", "auction_id", auction.ID, "seq", i, "user_id", bid.BidderID,
					"amount", refund, "ref", ref, "error", err)
				failed++
				continue
			}
		}

		if err := auction.MarkRefunded(i, ref, now); err != nil {
			s.log.Error("Failed to mark bid refunded", "auction_id", auction.ID, "seq", i, "error", err)
			failed++
			continue
		}
		refunds = append(refunds, RefundResult{
			Seq:        i,
			BidderID:   bid.BidderID,
			BidAmount:  bid.Amount,
			Fee:        fee,
			Refund:     refund,
			RefundRef:  ref,
			RefundedAt: now,
		})
	}

	return refunds, failed
}

func (s *SettlementService) announceOutcome(ctx context.Context, a *domain.Auction, winnerDeclared bool) {
	if winnerDeclared {
		s.notify(ctx, a.WinnerID, func(nctx context.Context) error {
			return s.notifier.NotifyWin(nctx, a.WinnerID, domain.WinNotification{
				Type:       "auction_won",
				AuctionID:  a.ID,
				Title:      a.Title,
				WinningBid: a.WinningBid.Decimal,
			})
		})
	}

	if evt := outcomeEvent(a); evt != nil {
		s.effects.publish(ctx, evt)
	}
	s.effects.cache(ctx, a)
}

func (s *SettlementService) announceRefunds(ctx context.Context, a *domain.Auction, refunds []RefundResult) {
	var events []*domain.AuctionEvent
	for _, r := range refunds {
		s.notify(ctx, r.BidderID, func(nctx context.Context) error {
			return s.notifier.NotifyRefund(nctx, r.BidderID, domain.RefundNotification{
				Type:         "bid_refunded",
				AuctionID:    a.ID,
				Title:        a.Title,
				BidAmount:    r.BidAmount,
				Fee:          r.Fee,
				RefundAmount: r.Refund,
				RefundRef:    r.RefundRef,
			})
		})
		events = append(events, &domain.AuctionEvent{
			Type:      domain.EventBidRefunded,
			AuctionID: a.ID,
			UserID:    r.BidderID,
			Amount:    r.Refund,
			Timestamp: r.RefundedAt,
		})
	}

	s.effects.publish(ctx, events...)
	s.effects.cache(ctx, a)
}

func outcomeEvent(a *domain.Auction) *domain.AuctionEvent {
	evt := &domain.AuctionEvent{AuctionID: a.ID, Timestamp: a.UpdatedAt}
	switch a.Status {
	case domain.AuctionCompleted:
		evt.Type = domain.EventAuctionCompleted
		evt.UserID = a.WinnerID
		evt.Amount = a.WinningBid.Decimal
	case domain.AuctionExpired:
		evt.Type = domain.EventAuctionExpired
	case domain.AuctionCancelled:
		evt.Type = domain.EventAuctionCancelled
	default:
		return nil
	}
	return evt
}

func (s *SettlementService) notify(ctx context.Context, userID string, send func(ctx context.Context) error) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.NotifyTimeout)
	defer cancel()
	if err := send(nctx); err != nil {
		s.log.Warn("Notification failed", "user_id", userID, "error", err)
	}
}
