package services

import (
	"auction-engine/internal/domain"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceBidMinimumIncrement(t *testing.T) {
	f := newFixture(t)
	a := f.createAuction(t)
	f.fund("alice", "1000")
	f.fund("bob", "1000")
	f.clock.Set(start.Add(time.Minute))

	got := f.bid(t, a.ID, "alice", "100")
	assert.True(t, got.CurrentTopBid.Equal(dec("100")))

	_, err := f.bids.PlaceBid(context.Background(), a.ID, "bob", dec("105"))
	var low *domain.BidTooLowError
	require.ErrorAs(t, err, &low)
	assert.True(t, low.Minimum.Equal(dec("110")))
	assert.True(t, f.balance(t, "bob").Equal(dec("1000")), "rejected bid must not touch the wallet")

	got = f.bid(t, a.ID, "bob", "110")
	assert.True(t, got.CurrentTopBid.Equal(dec("110")))
	assert.Equal(t, "bob", got.CurrentTopBidderID)

	// both stay escrowed until settlement
	assert.True(t, f.balance(t, "alice").Equal(dec("900")))
	assert.True(t, f.balance(t, "bob").Equal(dec("890")))

	assert.Equal(t, []domain.AuctionEventType{domain.EventBidPlaced, domain.EventBidPlaced}, f.publisher.types())

	snap, err := f.cache.GetSnapshot(context.Background(), a.ID)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.True(t, snap.MinimumBid.Equal(dec("120")))
}

func TestPlaceBidStateChecks(t *testing.T) {
	f := newFixture(t)
	a := f.createAuction(t)
	f.fund("alice", "1000")

	f.clock.Set(start.Add(-time.Second))
	_, err := f.bids.PlaceBid(context.Background(), a.ID, "alice", dec("100"))
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	// past the end but not yet flipped by the scheduler
	f.clock.Set(start.Add(time.Hour))
	_, err = f.bids.PlaceBid(context.Background(), a.ID, "alice", dec("100"))
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.bids.PlaceBid(context.Background(), "missing", "alice", dec("100"))
	assert.ErrorIs(t, err, domain.ErrAuctionNotFound)

	assert.True(t, f.balance(t, "alice").Equal(dec("1000")))
}

func TestPlaceBidInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	a := f.createAuction(t)
	f.fund("carol", "80")
	f.clock.Set(start)

	_, err := f.bids.PlaceBid(context.Background(), a.ID, "carol", dec("100"))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	var insufficient *domain.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Balance.Equal(dec("80")))
	assert.True(t, insufficient.Shortfall().Equal(dec("20")))
	assert.Equal(t, 0, f.stored(t, a.ID).BidCount)
}

func TestPlaceBidRetriesAfterLostRace(t *testing.T) {
	f := newFixture(t)
	a := f.createAuction(t)
	f.fund("alice", "1000")
	f.clock.Set(start)

	f.repo.loseNext(2)
	got := f.bid(t, a.ID, "alice", "100")
	assert.Equal(t, 1, got.BidCount)

	// two escrows were reversed, one is held
	assert.True(t, f.balance(t, "alice").Equal(dec("900")))
	entries := f.wallet.Entries()
	require.Len(t, entries, 5)
}

func TestPlaceBidGivesUpAfterMaxRetries(t *testing.T) {
	f := newFixture(t)
	a := f.createAuction(t)
	f.fund("alice", "1000")
	f.clock.Set(start)

	f.repo.loseNext(100)
	_, err := f.bids.PlaceBid(context.Background(), a.ID, "alice", dec("100"))
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
	assert.True(t, f.balance(t, "alice").Equal(dec("1000")))
	assert.Equal(t, 0, f.stored(t, a.ID).BidCount)
}

func TestPlaceBidDebitAppliedDespiteTimeout(t *testing.T) {
	f := newFixture(t)
	a := f.createAuction(t)
	f.fund("alice", "1000")
	f.clock.Set(start)

	f.wallet.timeDebitsOut(1, true)
	got := f.bid(t, a.ID, "alice", "150")
	assert.Equal(t, 1, got.BidCount)

	// the retry under the same ref found the debit already applied
	assert.True(t, f.balance(t, "alice").Equal(dec("850")))
	assert.Len(t, f.wallet.Entries(), 1)
	pending, err := f.reversals.ListReversals(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPlaceBidQueuesReversalWhenDebitOutcomeUnknown(t *testing.T) {
	tests := []struct {
		name        string
		applied     bool
		heldBalance string
	}{
		{name: "debit landed", applied: true, heldBalance: "850"},
		{name: "debit never landed", applied: false, heldBalance: "1000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			a := f.createAuction(t)
			f.fund("alice", "1000")
			f.clock.Set(start)

			f.wallet.timeDebitsOut(escrowAttempts, tt.applied)
			_, err := f.bids.PlaceBid(ctx, a.ID, "alice", dec("150"))
			assert.ErrorIs(t, err, context.DeadlineExceeded)
			assert.Equal(t, 0, f.stored(t, a.ID).BidCount)
			assert.True(t, f.balance(t, "alice").Equal(dec(tt.heldBalance)))

			pending, err := f.reversals.ListReversals(ctx, 0)
			require.NoError(t, err)
			require.Len(t, pending, 1)
			assert.Equal(t, "alice", pending[0].UserID)
			assert.True(t, pending[0].Amount.Equal(dec("150")))

			resolved, err := f.bids.ReplayReversals(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, resolved)
			assert.True(t, f.balance(t, "alice").Equal(dec("1000")))

			// a second pass finds nothing left
			resolved, err = f.bids.ReplayReversals(ctx)
			require.NoError(t, err)
			assert.Zero(t, resolved)
			assert.True(t, f.balance(t, "alice").Equal(dec("1000")))
		})
	}
}

func TestReplayDropsReversalOfDebitThatNeverLanded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.createAuction(t)
	f.fund("alice", "1000")
	f.clock.Set(start)

	f.wallet.timeDebitsOut(escrowAttempts, false)
	_, err := f.bids.PlaceBid(ctx, a.ID, "alice", dec("150"))
	require.Error(t, err)

	// the funds were spent elsewhere before the replay
	require.NoError(t, f.wallet.Debit(ctx, "alice", dec("1000"), "spend_1"))
	resolved, err := f.bids.ReplayReversals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)
	assert.True(t, f.balance(t, "alice").IsZero())
	assert.Len(t, f.wallet.Entries(), 1)
}

func TestFailedEscrowReversalIsReplayedByTick(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.createAuction(t)
	f.fund("alice", "1000")
	f.clock.Set(start)

	// the first write loses and crediting the escrow back fails
	f.repo.loseNext(1)
	f.wallet.setFailing("alice", true)
	f.bid(t, a.ID, "alice", "150")
	assert.True(t, f.balance(t, "alice").Equal(dec("700")))

	pending, err := f.reversals.ListReversals(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// still failing: the reversal stays queued
	report := f.scheduler.Tick(ctx)
	assert.Zero(t, report.Reversed)

	f.wallet.setFailing("alice", false)
	report = f.scheduler.Tick(ctx)
	assert.Equal(t, 1, report.Reversed)
	assert.True(t, f.balance(t, "alice").Equal(dec("850")))
	pending, err = f.reversals.ListReversals(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPlaceBidAutoExtension(t *testing.T) {
	f := newFixture(t)
	a := f.createAuction(t, withAutoExtend(5))
	f.fund("alice", "1000")
	f.fund("bob", "1000")
	end := a.EndTime

	f.clock.Set(end.Add(-2 * time.Minute))
	got := f.bid(t, a.ID, "alice", "100")
	assert.Equal(t, end.Add(5*time.Minute), got.EndTime)
	assert.Contains(t, f.publisher.types(), domain.EventAuctionExtended)

	f.clock.Set(got.EndTime.Add(-6 * time.Minute))
	got = f.bid(t, a.ID, "bob", "110")
	assert.Equal(t, end.Add(5*time.Minute), got.EndTime)

	// a bid in the extended window after the original end is accepted
	f.clock.Set(end.Add(time.Minute))
	got = f.bid(t, a.ID, "alice", "120")
	assert.Equal(t, end.Add(10*time.Minute), got.EndTime)
}

func TestConcurrentBiddersConserveFunds(t *testing.T) {
	f := newFixture(t)
	a := f.createAuction(t)
	f.clock.Set(start)

	opts := DefaultEngineOptions()
	opts.MaxBidRetries = 1000
	f.bids.opts = opts

	bidders := 8
	for i := 0; i < bidders; i++ {
		f.fund(fmt.Sprintf("u%d", i), "10000")
	}

	var wg sync.WaitGroup
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("u%d", i)
			for round := 0; round < 10; round++ {
				amount := decimal.NewFromInt(int64(100 + round*80 + i*10))
				_, _ = f.bids.PlaceBid(context.Background(), a.ID, user, amount)
			}
		}(i)
	}
	wg.Wait()

	final := f.stored(t, a.ID)
	require.NoError(t, final.CheckInvariants())
	require.NotZero(t, final.BidCount)

	held := map[string]decimal.Decimal{}
	for _, b := range final.Bids {
		held[b.BidderID] = held[b.BidderID].Add(b.Amount)
	}
	for i := 0; i < bidders; i++ {
		user := fmt.Sprintf("u%d", i)
		spent := dec("10000").Sub(f.balance(t, user))
		assert.True(t, spent.Equal(held[user]), "user %s spent %s but holds %s", user, spent, held[user])
	}
}
