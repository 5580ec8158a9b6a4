package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/evetabi/curvemarket/internal/domain"
	"github.com/evetabi/curvemarket/internal/repository"
	"github.com/evetabi/curvemarket/internal/service"
)

// MarketAdminHandler serves /admin/markets endpoints.
type MarketAdminHandler struct {
	marketSvc     *service.MarketService
	settlementSvc *service.SettlementService
	positionRepo  *repository.PositionRepository
	feeRepo       *repository.FeeRepository
}

// NewMarketAdminHandler creates a MarketAdminHandler.
func NewMarketAdminHandler(
	marketSvc *service.MarketService,
	settlementSvc *service.SettlementService,
	positionRepo *repository.PositionRepository,
	feeRepo *repository.FeeRepository,
) *MarketAdminHandler {
	return &MarketAdminHandler{
		marketSvc:     marketSvc,
		settlementSvc: settlementSvc,
		positionRepo:  positionRepo,
		feeRepo:       feeRepo,
	}
}

// List godoc
// GET /admin/markets?status=open&page=1&limit=50
func (h *MarketAdminHandler) List(c *gin.Context) {
	status := c.Query("status")
	page, limit := adminPagination(c)
	offset := (page - 1) * limit

	markets, total, err := h.marketSvc.List(c.Request.Context(), limit, offset, status)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondList(c, markets, total, page, limit)
}

// Detail godoc
// GET /admin/markets/:id
// Returns the market with its holders and accumulated fees.
func (h *MarketAdminHandler) Detail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}

	ctx := c.Request.Context()
	market, err := h.marketSvc.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrMarketNotFound) {
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}

	holders, _ := h.positionRepo.ListHoldersByMarket(ctx, id)
	treasuryFees, creatorFees, _ := h.feeRepo.MarketFees(ctx, id)

	respondSuccess(c, http.StatusOK, gin.H{
		"market":        market,
		"net_pool":      market.NetPool(),
		"holders":       holders,
		"holder_count":  len(holders),
		"treasury_fees": treasuryFees,
		"creator_fees":  creatorFees,
	})
}

// Resolve godoc
// POST /admin/markets/:id/resolve
// Body: {"winning_outcome": 0}
// The caller must be the protocol authority; role alone is not enough.
func (h *MarketAdminHandler) Resolve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}

	var body struct {
		WinningOutcome *int `json:"winning_outcome" binding:"required"`
	}
	if err = c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	receipt, err := h.settlementSvc.Resolve(c.Request.Context(), adminUserID(c), id, *body.WinningOutcome)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrMarketNotFound):
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
		case errors.Is(err, domain.ErrUnauthorized):
			respondError(c, http.StatusForbidden, "ERR_NOT_AUTHORITY", "caller is not the protocol authority")
		case errors.Is(err, domain.ErrMarketAlreadyResolved):
			respondError(c, http.StatusConflict, "ERR_ALREADY_RESOLVED", err.Error())
		case errors.Is(err, domain.ErrMarketClosed):
			respondError(c, http.StatusConflict, "ERR_MARKET_CLOSED", err.Error())
		case errors.Is(err, domain.ErrInvalidOutcome):
			respondError(c, http.StatusBadRequest, "ERR_INVALID_OUTCOME", err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		}
		return
	}
	respondSuccess(c, http.StatusOK, receipt)
}

// CloseSweep godoc
// POST /admin/markets/close-sweep
// Manually triggers the close sweep that normally runs on the scheduler.
func (h *MarketAdminHandler) CloseSweep(c *gin.Context) {
	closed, err := h.settlementSvc.CloseSettledMarkets(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"closed": closed})
}
