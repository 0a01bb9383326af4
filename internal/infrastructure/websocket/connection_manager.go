package websocket

import (
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"encoding/json"
	"sync"
)

type connSet map[domain.WebSocketConnection]struct{}

// ConnectionManager indexes live connections by auction and by user. A user
// may hold several connections, even to the same auction.
type ConnectionManager struct {
	byAuction map[string]connSet
	byUser    map[string]connSet
	mutex     sync.RWMutex
	log       logger.Logger
}

func NewConnectionManager(log logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		byAuction: make(map[string]connSet),
		byUser:    make(map[string]connSet),
		log:       log,
	}
}

func (cm *ConnectionManager) RegisterConnection(conn domain.WebSocketConnection) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	add(cm.byAuction, conn.AuctionID(), conn)
	add(cm.byUser, conn.UserID(), conn)

	cm.log.Info("Connection registered", "user_id", conn.UserID(), "auction_id", conn.AuctionID())
	return nil
}

func (cm *ConnectionManager) UnregisterConnection(conn domain.WebSocketConnection) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	cm.remove(conn)

	cm.log.Info("Connection unregistered", "user_id", conn.UserID(), "auction_id", conn.AuctionID())
	return nil
}

func (cm *ConnectionManager) CloseAndUnregisterConnections(auctionID string) error {
	cm.mutex.Lock()
	conns := members(cm.byAuction[auctionID])
	for _, conn := range conns {
		cm.remove(conn)
	}
	cm.mutex.Unlock()

	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			cm.log.Warn("Failed to close connection", "user_id", conn.UserID(),
				"auction_id", auctionID, "error", err)
		}
	}

	cm.log.Info("Connections closed for auction", "auction_id", auctionID, "count", len(conns))
	return nil
}

func (cm *ConnectionManager) GetConnectionsForAuction(auctionID string) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return members(cm.byAuction[auctionID])
}

func (cm *ConnectionManager) GetConnectionsForUser(userID string) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return members(cm.byUser[userID])
}

func (cm *ConnectionManager) BroadcastToAuction(auctionID string, message interface{}) error {
	return cm.send(cm.GetConnectionsForAuction(auctionID), message)
}

func (cm *ConnectionManager) NotifyUser(userID string, message interface{}) error {
	return cm.send(cm.GetConnectionsForUser(userID), message)
}

// send delivers to every connection; a failing client does not stop the rest.
func (cm *ConnectionManager) send(conns []domain.WebSocketConnection, message interface{}) error {
	if len(conns) == 0 {
		return nil
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	for _, conn := range conns {
		if err := conn.Send(payload); err != nil {
			cm.log.Warn("Failed to send message", "user_id", conn.UserID(),
				"auction_id", conn.AuctionID(), "error", err)
		}
	}
	return nil
}

// remove must be called with the write lock held.
func (cm *ConnectionManager) remove(conn domain.WebSocketConnection) {
	drop(cm.byAuction, conn.AuctionID(), conn)
	drop(cm.byUser, conn.UserID(), conn)
}

func add(index map[string]connSet, key string, conn domain.WebSocketConnection) {
	set, ok := index[key]
	if !ok {
		set = make(connSet)
		index[key] = set
	}
	set[conn] = struct{}{}
}

func drop(index map[string]connSet, key string, conn domain.WebSocketConnection) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(index, key)
	}
}

func members(set connSet) []domain.WebSocketConnection {
	out := make([]domain.WebSocketConnection, 0, len(set))
	for conn := range set {
		out = append(out, conn)
	}
	return out
}
