package handlers

import (
	"auction-engine/internal/infrastructure/websocket"

	"github.com/labstack/echo/v4"
)

type WebSocketHandlers struct {
	wsHandler *websocket.WebSocketHandler
}

func NewWebSocketHandlers(wsHandler *websocket.WebSocketHandler) *WebSocketHandlers {
	return &WebSocketHandlers{wsHandler: wsHandler}
}

// HandleConnection holds the request open for the lifetime of the session.
func (h *WebSocketHandlers) HandleConnection(c echo.Context) error {
	h.wsHandler.Serve(c.Response(), c.Request(), c.Param("id"), c.QueryParam("user_id"))
	return nil
}
