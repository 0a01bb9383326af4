package memory

import (
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"context"
	"sync"
)

// EventBus fans events out to every subscriber of this process. A slow
// subscriber loses events once its buffer is full.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[int]chan *domain.AuctionEvent
	nextID int
	buffer int
	log    logger.Logger
}

func NewEventBus(buffer int, log logger.Logger) *EventBus {
	return &EventBus{
		subs:   make(map[int]chan *domain.AuctionEvent),
		buffer: buffer,
		log:    log,
	}
}

func (b *EventBus) PublishAuctionEvent(ctx context.Context, event *domain.AuctionEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		evt := *event
		select {
		case ch <- &evt:
		default:
			b.log.Warn("Dropping event for slow subscriber", "subscriber", id, "type", event.Type, "auction_id", event.AuctionID)
		}
	}
	return nil
}

func (b *EventBus) SubscribeToAuctionEvents(ctx context.Context, handler domain.EventHandler) error {
	ch := make(chan *domain.AuctionEvent, b.buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()

	for {
		select {
		case event := <-ch:
			if err := handler(event); err != nil {
				b.log.Error("Event handler failed", "type", event.Type, "auction_id", event.AuctionID, "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
