package services

import (
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"context"
)

// EventListener pushes auction events to the websocket clients watching the
// auction and hangs up on them once the auction is over.
type EventListener struct {
	broadcaster domain.AuctionBroadcaster
	log         logger.Logger
}

func NewEventListener(broadcaster domain.AuctionBroadcaster, log logger.Logger) *EventListener {
	return &EventListener{
		broadcaster: broadcaster,
		log:         log,
	}
}

func (el *EventListener) Start(ctx context.Context, subscriber domain.EventSubscriber) error {
	el.log.Info("Starting event listener")
	return subscriber.SubscribeToAuctionEvents(ctx, func(event *domain.AuctionEvent) error {
		return el.handleEvent(ctx, event)
	})
}

func (el *EventListener) handleEvent(ctx context.Context, event *domain.AuctionEvent) error {
	el.log.Debug("Handling auction event", "type", event.Type, "auction_id", event.AuctionID)

	// refunds are delivered to the bidder directly by the notifier
	if event.Type == domain.EventBidRefunded {
		return nil
	}

	if err := el.broadcaster.BroadcastToAuction(ctx, event.AuctionID, event); err != nil {
		el.log.Error("Failed to broadcast auction event", "type", event.Type, "auction_id", event.AuctionID, "error", err)
		return err
	}

	if event.Type.IsTerminal() {
		if err := el.broadcaster.CloseAuction(ctx, event.AuctionID); err != nil {
			el.log.Error("Failed to finalize connections for auction", "auction_id", event.AuctionID, "error", err)
			return err
		}
	}
	return nil
}
