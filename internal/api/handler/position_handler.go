package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/evetabi/curvemarket/internal/api/middleware"
	"github.com/evetabi/curvemarket/internal/domain"
	"github.com/evetabi/curvemarket/internal/service"
)

// PositionHandler serves the authenticated user's position endpoints.
type PositionHandler struct {
	tradeSvc *service.TradeService
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(tradeSvc *service.TradeService) *PositionHandler {
	return &PositionHandler{tradeSvc: tradeSvc}
}

// GetMyPositions godoc
// GET /api/positions/my?page=1&limit=20 [JWT]
func (h *PositionHandler) GetMyPositions(c *gin.Context) {
	userID := middleware.GetUserID(c)
	page, limit := parsePagination(c)
	offset := (page - 1) * limit

	positions, err := h.tradeSvc.Positions(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch positions")
		return
	}
	respondList(c, positions, len(positions), page, limit)
}

// GetByMarket godoc
// GET /api/positions/:marketId [JWT]
func (h *PositionHandler) GetByMarket(c *gin.Context) {
	userID := middleware.GetUserID(c)

	marketID, err := uuid.Parse(c.Param("marketId"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}

	pos, err := h.tradeSvc.Position(c.Request.Context(), userID, marketID)
	if err != nil {
		if errors.Is(err, domain.ErrPositionNotFound) {
			respondError(c, http.StatusNotFound, "ERR_NO_POSITION", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch position")
		return
	}
	respondSuccess(c, http.StatusOK, pos)
}
