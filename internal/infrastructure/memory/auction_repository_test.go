package memory

import (
	"auction-engine/internal/domain"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func seedAuction(t *testing.T, repo *AuctionRepository, id string, start, end time.Time) *domain.Auction {
	t.Helper()
	a, err := domain.NewAuction(domain.NewAuctionParams{
		ID:               id,
		Title:            id,
		StartPrice:       decimal.NewFromInt(100),
		BidIncrement:     decimal.NewFromInt(10),
		StartTime:        start,
		EndTime:          end,
		FeePercentage:    decimal.NewFromInt(5),
		ExtensionMinutes: 5,
	}, base.Add(-24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.CreateAuction(context.Background(), a))
	return a
}

func TestUpdateAuctionVersionCheck(t *testing.T) {
	ctx := context.Background()
	repo := NewAuctionRepository()
	seedAuction(t, repo, "a1", base, base.Add(time.Hour))

	first, err := repo.GetAuction(ctx, "a1")
	require.NoError(t, err)
	second, err := repo.GetAuction(ctx, "a1")
	require.NoError(t, err)

	first.Title = "first"
	require.NoError(t, repo.UpdateAuction(ctx, first))
	assert.Equal(t, int64(1), first.Version)

	second.Title = "second"
	err = repo.UpdateAuction(ctx, second)
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	stored, err := repo.GetAuction(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "first", stored.Title)
}

func TestGetAuctionReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewAuctionRepository()
	seedAuction(t, repo, "a1", base, base.Add(time.Hour))

	a, err := repo.GetAuction(ctx, "a1")
	require.NoError(t, err)
	a.Title = "mutated"

	b, err := repo.GetAuction(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", b.Title)

	_, err = repo.GetAuction(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrAuctionNotFound)
}

func TestBulkTransitions(t *testing.T) {
	ctx := context.Background()
	repo := NewAuctionRepository()
	seedAuction(t, repo, "future", base.Add(time.Hour), base.Add(2*time.Hour))
	seedAuction(t, repo, "due", base.Add(-time.Minute), base.Add(time.Hour))
	seedAuction(t, repo, "over", base.Add(-2*time.Hour), base.Add(-time.Hour))

	n, err := repo.ActivateDueAuctions(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.EndDueAuctions(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	due, _ := repo.GetAuction(ctx, "due")
	over, _ := repo.GetAuction(ctx, "over")
	future, _ := repo.GetAuction(ctx, "future")
	assert.Equal(t, domain.AuctionActive, due.Status)
	assert.Equal(t, int64(1), due.Version)
	assert.Equal(t, domain.AuctionEnded, over.Status)
	assert.Equal(t, domain.AuctionUpcoming, future.Status)

	ids, err := repo.GetUnsettledAuctionIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"over"}, ids)
}

func TestFindAuctions(t *testing.T) {
	ctx := context.Background()
	repo := NewAuctionRepository()
	seedAuction(t, repo, "a1", base.Add(-time.Minute), base.Add(time.Hour))
	seedAuction(t, repo, "a2", base.Add(-time.Minute), base.Add(2*time.Hour))
	seedAuction(t, repo, "a3", base.Add(time.Hour), base.Add(3*time.Hour))

	a1, _ := repo.GetAuction(ctx, "a1")
	a1.Reconcile(base)
	_, err := a1.PlaceBid("u1", decimal.NewFromInt(150), base)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateAuction(ctx, a1))

	active := domain.AuctionActive
	tests := []struct {
		name   string
		filter domain.AuctionFilter
		want   []string
	}{
		{name: "all", filter: domain.AuctionFilter{}, want: []string{"a1", "a2", "a3"}},
		{name: "derived active", filter: domain.AuctionFilter{Status: &active}, want: []string{"a1", "a2"}},
		{name: "bidder", filter: domain.AuctionFilter{BidderID: "u1"}, want: []string{"a1"}},
		{name: "min top bid", filter: domain.AuctionFilter{MinTopBid: decimal.NewNullDecimal(decimal.NewFromInt(100))}, want: []string{"a1"}},
		{name: "max top bid", filter: domain.AuctionFilter{MaxTopBid: decimal.NewNullDecimal(decimal.NewFromInt(100))}, want: []string{"a2", "a3"}},
		{name: "paged", filter: domain.AuctionFilter{Limit: 1, Offset: 1}, want: []string{"a2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.filter.Now = base
			found, err := repo.FindAuctions(ctx, tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, a := range found {
				ids = append(ids, a.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}
