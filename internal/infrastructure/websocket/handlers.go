package websocket

import (
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

type BidPlacer interface {
	PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (*domain.Auction, error)
}

type AuctionReader interface {
	GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error)
}

type clientMessage struct {
	Type   string          `json:"type"`
	Amount decimal.Decimal `json:"amount"`
}

type bidAccepted struct {
	Type          string          `json:"type"`
	AuctionID     string          `json:"auction_id"`
	Amount        decimal.Decimal `json:"amount"`
	CurrentTopBid decimal.Decimal `json:"current_top_bid"`
	EndTime       time.Time       `json:"end_time"`
}

type errorMessage struct {
	Type       string           `json:"type"`
	Code       string           `json:"code"`
	Message    string           `json:"message"`
	MinimumBid *decimal.Decimal `json:"minimum_bid,omitempty"`
}

// WebSocketHandler upgrades a request into a live auction session. The
// session receives every broadcast for the auction and may place bids.
type WebSocketHandler struct {
	bids        BidPlacer
	auctions    AuctionReader
	connManager domain.ConnectionManager
	upgrader    websocket.Upgrader
	log         logger.Logger
}

func NewWebSocketHandler(bids BidPlacer, auctions AuctionReader, connManager domain.ConnectionManager,
	allowOrigins []string, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		bids:        bids,
		auctions:    auctions,
		connManager: connManager,
		upgrader:    websocket.Upgrader{CheckOrigin: originChecker(allowOrigins)},
		log:         log,
	}
}

func originChecker(allowOrigins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, allowed := range allowOrigins {
			if allowed == "*" || allowed == origin {
				return true
			}
		}
		return false
	}
}

// Serve blocks until the client disconnects or the auction closes the
// session.
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request, auctionID, userID string) {
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	auction, err := h.auctions.GetAuction(r.Context(), auctionID)
	if errors.Is(err, domain.ErrAuctionNotFound) {
		http.Error(w, "auction not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("Failed to load auction", "auction_id", auctionID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if auction.Status != domain.AuctionUpcoming && auction.Status != domain.AuctionActive {
		http.Error(w, "auction has already ended", http.StatusConflict)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	conn := NewWebSocketConnection(ws, userID, auctionID)
	if err := h.connManager.RegisterConnection(conn); err != nil {
		h.log.Error("Failed to register connection", "error", err)
		conn.Close()
		return
	}
	defer func() {
		h.connManager.UnregisterConnection(conn)
		conn.Close()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go conn.keepAlive(ctx)

	h.readLoop(ctx, conn)
}

func (h *WebSocketHandler) readLoop(ctx context.Context, conn *WebSocketConnection) {
	ws := conn.conn
	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("Connection read failed", "user_id", conn.UserID(), "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.sendJSON(errorMessage{Type: "error", Code: "bad_request", Message: "malformed message"})
			continue
		}

		switch msg.Type {
		case "place_bid":
			h.handleBid(ctx, conn, msg.Amount)
		case "ping":
			conn.sendJSON(map[string]string{"type": "pong"})
		default:
			conn.sendJSON(errorMessage{Type: "error", Code: "bad_request", Message: "unknown message type"})
		}
	}
}

func (h *WebSocketHandler) handleBid(ctx context.Context, conn *WebSocketConnection, amount decimal.Decimal) {
	auction, err := h.bids.PlaceBid(ctx, conn.AuctionID(), conn.UserID(), amount)
	if err != nil {
		h.log.Info("Bid rejected", "auction_id", conn.AuctionID(), "user_id", conn.UserID(), "error", err)
		conn.sendJSON(bidError(err))
		return
	}

	conn.sendJSON(bidAccepted{
		Type:          "bid_accepted",
		AuctionID:     auction.ID,
		Amount:        amount,
		CurrentTopBid: auction.CurrentTopBid,
		EndTime:       auction.EndTime,
	})
}

func bidError(err error) errorMessage {
	msg := errorMessage{Type: "error", Code: "internal", Message: "failed to place bid"}

	var tooLow *domain.BidTooLowError
	switch {
	case errors.As(err, &tooLow):
		minimum := tooLow.Minimum
		msg.Code, msg.Message, msg.MinimumBid = "bid_too_low", err.Error(), &minimum
	case errors.Is(err, domain.ErrInsufficientFunds):
		msg.Code, msg.Message = "insufficient_funds", err.Error()
	case errors.Is(err, domain.ErrInvalidState):
		msg.Code, msg.Message = "invalid_state", err.Error()
	case errors.Is(err, domain.ErrInvalidAmount):
		msg.Code, msg.Message = "bad_request", err.Error()
	case errors.Is(err, domain.ErrAuctionNotFound):
		msg.Code, msg.Message = "not_found", err.Error()
	case errors.Is(err, domain.ErrConcurrencyConflict):
		msg.Code, msg.Message = "conflict", "auction is busy, try again"
	}
	return msg
}

// WebSocketConnection serializes writes; gorilla connections allow only one
// concurrent writer.
type WebSocketConnection struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	userID    string
	auctionID string
}

func NewWebSocketConnection(conn *websocket.Conn, userID, auctionID string) *WebSocketConnection {
	return &WebSocketConnection{
		conn:      conn,
		userID:    userID,
		auctionID: auctionID,
	}
}

func (wsc *WebSocketConnection) Send(payload []byte) error {
	wsc.writeMu.Lock()
	defer wsc.writeMu.Unlock()

	wsc.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return wsc.conn.WriteMessage(websocket.TextMessage, payload)
}

func (wsc *WebSocketConnection) sendJSON(message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return wsc.Send(payload)
}

func (wsc *WebSocketConnection) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wsc.writeMu.Lock()
			err := wsc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			wsc.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Close is safe to call more than once.
func (wsc *WebSocketConnection) Close() error {
	wsc.writeMu.Lock()
	defer wsc.writeMu.Unlock()

	wsc.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return wsc.conn.Close()
}

func (wsc *WebSocketConnection) UserID() string {
	return wsc.userID
}

func (wsc *WebSocketConnection) AuctionID() string {
	return wsc.auctionID
}
