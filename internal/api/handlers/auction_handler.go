package handlers

import (
	"auction-engine/internal/domain"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type AuctionHandler struct {
	auctionManager *services.AuctionManager
	bidService     *services.BidService
	settlement     *services.SettlementService
	admins         domain.AdminDirectory
	log            logger.Logger
}

type CreateAuctionRequest struct {
	ProductRef       string              `json:"product_ref" validate:"max=64"`
	Title            string              `json:"title" validate:"required,max=255"`
	Description      string              `json:"description"`
	StartPrice       decimal.Decimal     `json:"start_price" validate:"gt=0"`
	ReservePrice     decimal.NullDecimal `json:"reserve_price" validate:"omitempty,gte=0"`
	BidIncrement     decimal.NullDecimal `json:"bid_increment" validate:"omitempty,gte=1"`
	StartTime        time.Time           `json:"start_time" validate:"required"`
	EndTime          time.Time           `json:"end_time" validate:"required,gtfield=StartTime"`
	FeePercentage    decimal.Decimal     `json:"fee_percentage" validate:"gte=0,lte=100"`
	AutoExtend       bool                `json:"auto_extend"`
	ExtensionMinutes int                 `json:"extension_minutes" validate:"omitempty,min=1,max=1440"`
}

type PlaceBidRequest struct {
	BidderID string          `json:"bidder_id" validate:"required,max=64"`
	Amount   decimal.Decimal `json:"amount" validate:"gt=0"`
}

type AdminRequest struct {
	AdminID string `json:"admin_id" validate:"required"`
}

type BidResponse struct {
	Seq        int              `json:"seq"`
	BidderID   string           `json:"bidder_id"`
	Amount     decimal.Decimal  `json:"amount"`
	PlacedAt   time.Time        `json:"placed_at"`
	Status     domain.BidStatus `json:"status"`
	RefundRef  string           `json:"refund_ref,omitempty"`
	RefundedAt *time.Time       `json:"refunded_at,omitempty"`
}

type AuctionResponse struct {
	AuctionID          string               `json:"auction_id"`
	ProductRef         string               `json:"product_ref,omitempty"`
	Title              string               `json:"title"`
	Description        string               `json:"description,omitempty"`
	StartPrice         decimal.Decimal      `json:"start_price"`
	ReservePrice       decimal.NullDecimal  `json:"reserve_price"`
	BidIncrement       decimal.Decimal      `json:"bid_increment"`
	MinimumBid         decimal.Decimal      `json:"minimum_bid"`
	CurrentTopBid      decimal.Decimal      `json:"current_top_bid"`
	CurrentTopBidderID string               `json:"current_top_bidder_id,omitempty"`
	StartTime          time.Time            `json:"start_time"`
	EndTime            time.Time            `json:"end_time"`
	Status             domain.AuctionStatus `json:"status"`
	BidCount           int                  `json:"bid_count"`
	FeePercentage      decimal.Decimal      `json:"fee_percentage"`
	AutoExtend         bool                 `json:"auto_extend"`
	ExtensionMinutes   int                  `json:"extension_minutes"`
	WinnerID           string               `json:"winner_id,omitempty"`
	WinningBid         decimal.NullDecimal  `json:"winning_bid"`
	IsProcessed        bool                 `json:"is_processed"`
	Version            int64                `json:"version"`
	Bids               []BidResponse        `json:"bids,omitempty"`
}

func toAuctionResponse(a *domain.Auction, withBids bool) AuctionResponse {
	resp := AuctionResponse{
		AuctionID:          a.ID,
		ProductRef:         a.ProductRef,
		Title:              a.Title,
		Description:        a.Description,
		StartPrice:         a.StartPrice,
		ReservePrice:       a.ReservePrice,
		BidIncrement:       a.BidIncrement,
		MinimumBid:         a.MinimumBid(),
		CurrentTopBid:      a.CurrentTopBid,
		CurrentTopBidderID: a.CurrentTopBidderID,
		StartTime:          a.StartTime,
		EndTime:            a.EndTime,
		Status:             a.Status,
		BidCount:           a.BidCount,
		FeePercentage:      a.FeePercentage,
		AutoExtend:         a.AutoExtend,
		ExtensionMinutes:   a.ExtensionMinutes,
		WinnerID:           a.WinnerID,
		WinningBid:         a.WinningBid,
		IsProcessed:        a.IsProcessed,
		Version:            a.Version,
	}
	if withBids {
		for i, b := range a.Bids {
			resp.Bids = append(resp.Bids, BidResponse{
				Seq:        i,
				BidderID:   b.BidderID,
				Amount:     b.Amount,
				PlacedAt:   b.PlacedAt,
				Status:     b.Status,
				RefundRef:  b.RefundRef,
				RefundedAt: b.RefundedAt,
			})
		}
	}
	return resp
}

func NewAuctionHandler(
	auctionManager *services.AuctionManager,
	bidService *services.BidService,
	settlement *services.SettlementService,
	admins domain.AdminDirectory,
	log logger.Logger,
) *AuctionHandler {
	return &AuctionHandler{
		auctionManager: auctionManager,
		bidService:     bidService,
		settlement:     settlement,
		admins:         admins,
		log:            log,
	}
}

func (h *AuctionHandler) Register(g *echo.Group) {
	g.POST("/auctions", h.CreateAuction)
	g.GET("/auctions", h.ListAuctions)
	g.GET("/auctions/:id", h.GetAuction)
	g.GET("/auctions/:id/summary", h.GetSummary)
	g.GET("/auctions/:id/events", h.GetEvents)
	g.POST("/auctions/:id/bids", h.PlaceBid)
	g.POST("/auctions/:id/cancel", h.CancelAuction)
	g.POST("/auctions/:id/settle", h.SettleAuction)
}

func (h *AuctionHandler) CreateAuction(c echo.Context) error {
	var req CreateAuctionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, err)
	}

	auction, err := h.auctionManager.CreateAuction(c.Request().Context(), services.CreateAuctionInput{
		ProductRef:       req.ProductRef,
		Title:            req.Title,
		Description:      req.Description,
		StartPrice:       req.StartPrice,
		ReservePrice:     req.ReservePrice,
		BidIncrement:     req.BidIncrement,
		StartTime:        req.StartTime,
		EndTime:          req.EndTime,
		FeePercentage:    req.FeePercentage,
		AutoExtend:       req.AutoExtend,
		ExtensionMinutes: req.ExtensionMinutes,
	})
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(http.StatusCreated, toAuctionResponse(auction, false))
}

func (h *AuctionHandler) ListAuctions(c echo.Context) error {
	var (
		filter             domain.AuctionFilter
		status, minB, maxB string
	)
	err := echo.QueryParamsBinder(c).
		String("status", &status).
		String("bidder_id", &filter.BidderID).
		String("min_top_bid", &minB).
		String("max_top_bid", &maxB).
		Int("limit", &filter.Limit).
		Int("offset", &filter.Offset).
		BindError()
	if err != nil {
		return badRequest(c, err)
	}

	if status != "" {
		parsed, err := domain.ParseAuctionStatus(status)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		filter.Status = &parsed
	}
	if filter.MinTopBid, err = parseOptionalDecimal("min_top_bid", minB); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	if filter.MaxTopBid, err = parseOptionalDecimal("max_top_bid", maxB); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	if filter.Offset < 0 {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "offset must not be negative"})
	}

	auctions, err := h.auctionManager.ListAuctions(c.Request().Context(), filter)
	if err != nil {
		return h.fail(c, err)
	}

	resp := make([]AuctionResponse, 0, len(auctions))
	for _, a := range auctions {
		resp = append(resp, toAuctionResponse(a, false))
	}
	return c.JSON(http.StatusOK, resp)
}

func parseOptionalDecimal(name, raw string) (decimal.NullDecimal, error) {
	if raw == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return decimal.NewNullDecimal(d), nil
}

func (h *AuctionHandler) GetAuction(c echo.Context) error {
	auction, err := h.auctionManager.GetAuction(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, toAuctionResponse(auction, true))
}

func (h *AuctionHandler) GetSummary(c echo.Context) error {
	snapshot, err := h.auctionManager.GetSnapshot(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, snapshot)
}

func (h *AuctionHandler) GetEvents(c echo.Context) error {
	events, err := h.auctionManager.GetAuctionEvents(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	if events == nil {
		events = []*domain.AuctionEvent{}
	}
	return c.JSON(http.StatusOK, events)
}

func (h *AuctionHandler) PlaceBid(c echo.Context) error {
	var req PlaceBidRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, err)
	}

	auction, err := h.bidService.PlaceBid(c.Request().Context(), c.Param("id"), req.BidderID, req.Amount)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, toAuctionResponse(auction, false))
}

func (h *AuctionHandler) CancelAuction(c echo.Context) error {
	var req AdminRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, err)
	}

	result, err := h.settlement.CancelAuction(c.Request().Context(), c.Param("id"), req.AdminID)
	return h.settlementResponse(c, result, err)
}

// SettleAuction lets an administrator settle an ended auction ahead of the
// next scheduler tick.
func (h *AuctionHandler) SettleAuction(c echo.Context) error {
	var req AdminRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, err)
	}

	isAdmin, err := h.admins.IsAdmin(c.Request().Context(), req.AdminID)
	if err != nil {
		return h.fail(c, err)
	}
	if !isAdmin {
		return h.fail(c, fmt.Errorf("%w: %s may not settle auctions", domain.ErrForbidden, req.AdminID))
	}

	result, err := h.settlement.Settle(c.Request().Context(), c.Param("id"))
	return h.settlementResponse(c, result, err)
}

func (h *AuctionHandler) settlementResponse(c echo.Context, result *services.SettlementResult, err error) error {
	if errors.Is(err, domain.ErrSettlementIncomplete) && result != nil {
		// state was persisted; the scheduler retries the rest
		return c.JSON(http.StatusAccepted, result)
	}
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, result)
}
