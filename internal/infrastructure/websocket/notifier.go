package websocket

import (
	"auction-engine/internal/domain"
	"context"
)

// WebSocketNotifier pushes settlement outcomes and auction events to live
// clients. Users without an open connection simply miss the push.
type WebSocketNotifier struct {
	connManager domain.ConnectionManager
}

func NewWebSocketNotifier(connManager domain.ConnectionManager) *WebSocketNotifier {
	return &WebSocketNotifier{connManager: connManager}
}

func (n *WebSocketNotifier) NotifyWin(ctx context.Context, userID string, msg domain.WinNotification) error {
	return n.connManager.NotifyUser(userID, msg)
}

func (n *WebSocketNotifier) NotifyRefund(ctx context.Context, userID string, msg domain.RefundNotification) error {
	return n.connManager.NotifyUser(userID, msg)
}

func (n *WebSocketNotifier) BroadcastToAuction(ctx context.Context, auctionID string, message interface{}) error {
	return n.connManager.BroadcastToAuction(auctionID, message)
}

func (n *WebSocketNotifier) CloseAuction(ctx context.Context, auctionID string) error {
	return n.connManager.CloseAndUnregisterConnections(auctionID)
}
