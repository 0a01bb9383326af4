package services

import (
	"auction-engine/internal/domain"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAuctionDefaultsIncrementFromRules(t *testing.T) {
	f := newFixture(t)

	a, err := f.manager.CreateAuction(context.Background(), CreateAuctionInput{
		Title:         "Desk lamp",
		StartPrice:    dec("250"),
		StartTime:     start,
		EndTime:       start.Add(time.Hour),
		FeePercentage: dec("5"),
	})
	require.NoError(t, err)
	assert.True(t, a.BidIncrement.Equal(dec("10")))
	assert.Equal(t, 5, a.ExtensionMinutes)
	assert.Equal(t, domain.AuctionUpcoming, a.Status)
}

func TestCreateAuctionRejectsBadWindow(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.CreateAuction(context.Background(), CreateAuctionInput{
		StartPrice:    dec("100"),
		StartTime:     start,
		EndTime:       start,
		FeePercentage: dec("5"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAuction)
}

func TestListAuctions(t *testing.T) {
	f := newFixture(t)
	first := f.createAuction(t)
	second := f.createAuction(t)
	f.fund("alice", "1000")

	f.clock.Set(start)
	f.bid(t, first.ID, "alice", "300")

	active := domain.AuctionActive
	found, err := f.manager.ListAuctions(context.Background(), domain.AuctionFilter{Status: &active})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = f.manager.ListAuctions(context.Background(), domain.AuctionFilter{BidderID: "alice"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, first.ID, found[0].ID)

	found, err = f.manager.ListAuctions(context.Background(), domain.AuctionFilter{
		MaxTopBid: decimal.NewNullDecimal(dec("100")),
	})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, second.ID, found[0].ID)
}

func TestGetAuctionDerivesStatus(t *testing.T) {
	f := newFixture(t)
	a := f.createAuction(t)

	f.clock.Set(a.EndTime.Add(time.Minute))
	got, err := f.manager.GetAuction(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionEnded, got.Status)

	_, err = f.manager.GetAuction(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrAuctionNotFound)
}

func TestGetSnapshot(t *testing.T) {
	f := newFixture(t)
	a := f.createAuction(t)
	f.fund("alice", "1000")

	f.clock.Set(start)
	f.bid(t, a.ID, "alice", "100")

	snap, err := f.manager.GetSnapshot(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionActive, snap.Status)
	assert.True(t, snap.CurrentTopBid.Equal(dec("100")))

	// once the clock passes the end the cached copy is not trusted
	f.clock.Set(a.EndTime)
	snap, err = f.manager.GetSnapshot(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionEnded, snap.Status)
}

func TestGetAuctionEvents(t *testing.T) {
	f := newFixture(t)
	a := f.createAuction(t)
	recorder := NewAuditRecorder(f.eventLog, f.settlement.log)

	require.NoError(t, recorder.Record(context.Background(), &domain.AuctionEvent{
		Type:      domain.EventBidPlaced,
		AuctionID: a.ID,
		UserID:    "alice",
		Amount:    dec("100"),
	}))

	events, err := f.manager.GetAuctionEvents(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "alice", events[0].UserID)

	_, err = f.manager.GetAuctionEvents(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrAuctionNotFound)
}
