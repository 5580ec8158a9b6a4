package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/evetabi/curvemarket/internal/api/middleware"
	"github.com/evetabi/curvemarket/internal/domain"
	"github.com/evetabi/curvemarket/internal/service"
)

// MarketHandler serves market creation and query endpoints.
type MarketHandler struct {
	marketSvc *service.MarketService
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(marketSvc *service.MarketService) *MarketHandler {
	return &MarketHandler{marketSvc: marketSvc}
}

// Create godoc
// POST /api/markets [JWT]
// Body: {"title":"...","description":"...","outcomes":["YES","NO"],"end_time":"2026-09-01T12:00:00Z"}
func (h *MarketHandler) Create(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var body struct {
		Title       string    `json:"title"       binding:"required,min=3,max=200"`
		Description string    `json:"description" binding:"max=2000"`
		Outcomes    []string  `json:"outcomes"    binding:"required"`
		EndTime     time.Time `json:"end_time"    binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	market, err := h.marketSvc.Create(c.Request.Context(), domain.CreateMarketRequest{
		Creator:       userID,
		Title:         body.Title,
		Description:   body.Description,
		OutcomeLabels: body.Outcomes,
		EndTime:       body.EndTime,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidMarket):
			respondError(c, http.StatusBadRequest, "ERR_INVALID_MARKET", err.Error())
		case errors.Is(err, domain.ErrMarketExists):
			respondError(c, http.StatusConflict, "ERR_MARKET_EXISTS", err.Error())
		case errors.Is(err, domain.ErrInsufficientBalance):
			respondError(c, http.StatusPaymentRequired, "ERR_INSUFFICIENT_BALANCE", err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not create market")
		}
		return
	}
	respondSuccess(c, http.StatusCreated, market)
}

// GetByID godoc
// GET /api/markets/:id
func (h *MarketHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}

	market, err := h.marketSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrMarketNotFound) {
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch market")
		return
	}
	respondSuccess(c, http.StatusOK, market)
}

// GetPrices godoc
// GET /api/markets/:id/prices
// Returns the summary view with per-outcome spot prices.
func (h *MarketHandler) GetPrices(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}

	summary, err := h.marketSvc.GetSummary(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrMarketNotFound) {
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch prices")
		return
	}
	respondSuccess(c, http.StatusOK, summary)
}

// List godoc
// GET /api/markets?status=open&page=1&limit=20
func (h *MarketHandler) List(c *gin.Context) {
	status := c.Query("status")
	page, limit := parsePagination(c)
	offset := (page - 1) * limit

	markets, total, err := h.marketSvc.List(c.Request.Context(), limit, offset, status)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not list markets")
		return
	}
	respondList(c, markets, total, page, limit)
}

// GetHistory godoc
// GET /api/markets/history?page=1&limit=20
func (h *MarketHandler) GetHistory(c *gin.Context) {
	page, limit := parsePagination(c)
	offset := (page - 1) * limit

	markets, err := h.marketSvc.History(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch history")
		return
	}
	respondList(c, markets, len(markets), page, limit)
}

// parsePagination reads ?page and ?limit with sane bounds.
func parsePagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return
}
