package memory

import (
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusFanOut(t *testing.T) {
	bus := NewEventBus(8, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	got := map[string]int{}
	subscribe := func(name string) {
		go bus.SubscribeToAuctionEvents(ctx, func(e *domain.AuctionEvent) error {
			mu.Lock()
			got[name]++
			mu.Unlock()
			return nil
		})
	}
	subscribe("listener")
	subscribe("audit")

	require.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.subs) == 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.PublishAuctionEvent(ctx, &domain.AuctionEvent{Type: domain.EventBidPlaced, AuctionID: "a1"}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got["listener"] == 1 && got["audit"] == 1
	}, time.Second, 5*time.Millisecond)
}

func TestEventLogOrder(t *testing.T) {
	ctx := context.Background()
	log := NewEventLog()
	require.NoError(t, log.SaveAuctionEvent(ctx, &domain.AuctionEvent{Type: domain.EventBidPlaced, AuctionID: "a1"}))
	require.NoError(t, log.SaveAuctionEvent(ctx, &domain.AuctionEvent{Type: domain.EventAuctionCompleted, AuctionID: "a1"}))

	events, err := log.GetAuctionEvents(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventBidPlaced, events[0].Type)
	assert.Equal(t, domain.EventAuctionCompleted, events[1].Type)
}
