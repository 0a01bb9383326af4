package services

import (
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"context"
)

// AuditRecorder appends every auction event to the event log.
type AuditRecorder struct {
	eventLog domain.EventLogRepository
	log      logger.Logger
}

func NewAuditRecorder(eventLog domain.EventLogRepository, log logger.Logger) *AuditRecorder {
	return &AuditRecorder{eventLog: eventLog, log: log}
}

func (ar *AuditRecorder) Start(ctx context.Context, subscriber domain.EventSubscriber) error {
	ar.log.Info("Starting audit recorder")
	return subscriber.SubscribeToAuctionEvents(ctx, func(event *domain.AuctionEvent) error {
		return ar.Record(ctx, event)
	})
}

func (ar *AuditRecorder) Record(ctx context.Context, event *domain.AuctionEvent) error {
	ar.log.Debug("Storing auction event", "type", event.Type, "auction_id", event.AuctionID, "user_id", event.UserID)
	return ar.eventLog.SaveAuctionEvent(context.WithoutCancel(ctx), event)
}
