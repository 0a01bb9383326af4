package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, auctions *AuctionHandler, ws *WebSocketHandlers, instanceID string) {
	e.Validator = NewRequestValidator()

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":    "healthy",
			"instance":  instanceID,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	auctions.Register(e.Group("/api/v1"))
	e.GET("/ws/auctions/:id", ws.HandleConnection)
}
