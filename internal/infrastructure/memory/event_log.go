package memory

import (
	"auction-engine/internal/domain"
	"context"
	"sync"
)

type EventLog struct {
	mu     sync.RWMutex
	events map[string][]domain.AuctionEvent
}

func NewEventLog() *EventLog {
	return &EventLog{events: make(map[string][]domain.AuctionEvent)}
}

func (l *EventLog) SaveAuctionEvent(ctx context.Context, event *domain.AuctionEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events[event.AuctionID] = append(l.events[event.AuctionID], *event)
	return nil
}

func (l *EventLog) GetAuctionEvents(ctx context.Context, auctionID string) ([]*domain.AuctionEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stored := l.events[auctionID]
	out := make([]*domain.AuctionEvent, len(stored))
	for i := range stored {
		e := stored[i]
		out[i] = &e
	}
	return out, nil
}
