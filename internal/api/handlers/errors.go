package handlers

import (
	"auction-engine/internal/domain"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type errorResponse struct {
	Error      string           `json:"error"`
	MinimumBid *decimal.Decimal `json:"minimum_bid,omitempty"`
	Balance    *decimal.Decimal `json:"balance,omitempty"`
	Shortfall  *decimal.Decimal `json:"shortfall,omitempty"`
}

// statusFor maps the domain error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAuctionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBidTooLow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidAuction), errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *AuctionHandler) fail(c echo.Context, err error) error {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}

	var tooLow *domain.BidTooLowError
	if errors.As(err, &tooLow) {
		minimum := tooLow.Minimum
		resp.MinimumBid = &minimum
	}
	var insufficient *domain.InsufficientFundsError
	if errors.As(err, &insufficient) {
		balance, shortfall := insufficient.Balance, insufficient.Shortfall()
		resp.Balance, resp.Shortfall = &balance, &shortfall
	}

	if status == http.StatusInternalServerError {
		h.log.Error("Request failed", "path", c.Path(), "error", err)
		resp.Error = "internal error"
	}
	return c.JSON(status, resp)
}

func badRequest(c echo.Context, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("'%s' failed on '%s'", fe.Field(), fe.Tag()))
		}
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request: " + strings.Join(fields, ", ")})
	}
	return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
}
