package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evetabi/curvemarket/internal/api/middleware"
	"github.com/evetabi/curvemarket/internal/domain"
	"github.com/evetabi/curvemarket/internal/service"
)

// TradeHandler serves buy, sell, quote, and claim endpoints.
type TradeHandler struct {
	tradeSvc      *service.TradeService
	settlementSvc *service.SettlementService
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(tradeSvc *service.TradeService, settlementSvc *service.SettlementService) *TradeHandler {
	return &TradeHandler{tradeSvc: tradeSvc, settlementSvc: settlementSvc}
}

// tradeBody is the shared request shape for buys, sells, and quotes. Amounts
// travel as decimal strings so the JSON layer never touches floats.
type tradeBody struct {
	MarketID     string `json:"market_id" binding:"required"`
	Outcome      *int   `json:"outcome"   binding:"required"`
	Amount       string `json:"amount"`        // buy: collateral committed
	Shares       string `json:"shares"`        // sell: whole shares to burn
	MinSharesOut string `json:"min_shares_out"` // buy slippage floor, optional
	MinAmountOut string `json:"min_amount_out"` // sell slippage floor, optional
}

// Buy godoc
// POST /api/trades/buy [JWT]
// Body: {"market_id":"uuid","outcome":0,"amount":"100.00","min_shares_out":"0"}
func (h *TradeHandler) Buy(c *gin.Context) {
	userID := middleware.GetUserID(c)

	req, ok := h.bindBuy(c, userID)
	if !ok {
		return
	}

	receipt, err := h.tradeSvc.Buy(c.Request.Context(), req)
	if err != nil {
		respondTradeError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, receipt)
}

// Sell godoc
// POST /api/trades/sell [JWT]
// Body: {"market_id":"uuid","outcome":0,"shares":"1000","min_amount_out":"0"}
func (h *TradeHandler) Sell(c *gin.Context) {
	userID := middleware.GetUserID(c)

	req, ok := h.bindSell(c, userID)
	if !ok {
		return
	}

	receipt, err := h.tradeSvc.Sell(c.Request.Context(), req)
	if err != nil {
		respondTradeError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, receipt)
}

// QuoteBuy godoc
// POST /api/trades/quote/buy [JWT]
func (h *TradeHandler) QuoteBuy(c *gin.Context) {
	userID := middleware.GetUserID(c)

	req, ok := h.bindBuy(c, userID)
	if !ok {
		return
	}

	receipt, err := h.tradeSvc.QuoteBuy(c.Request.Context(), req)
	if err != nil {
		respondTradeError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, receipt)
}

// QuoteSell godoc
// POST /api/trades/quote/sell [JWT]
func (h *TradeHandler) QuoteSell(c *gin.Context) {
	userID := middleware.GetUserID(c)

	req, ok := h.bindSell(c, userID)
	if !ok {
		return
	}

	receipt, err := h.tradeSvc.QuoteSell(c.Request.Context(), req)
	if err != nil {
		respondTradeError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, receipt)
}

// Claim godoc
// POST /api/markets/:id/claim [JWT]
func (h *TradeHandler) Claim(c *gin.Context) {
	userID := middleware.GetUserID(c)

	marketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}

	receipt, err := h.settlementSvc.Claim(c.Request.Context(), userID, marketID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrMarketNotFound):
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
		case errors.Is(err, domain.ErrPositionNotFound):
			respondError(c, http.StatusNotFound, "ERR_NO_POSITION", err.Error())
		case errors.Is(err, domain.ErrMarketNotResolved):
			respondError(c, http.StatusConflict, "ERR_NOT_RESOLVED", err.Error())
		case errors.Is(err, domain.ErrMarketClosed):
			respondError(c, http.StatusConflict, "ERR_MARKET_CLOSED", err.Error())
		case errors.Is(err, domain.ErrTimelockActive):
			respondError(c, http.StatusConflict, "ERR_TIMELOCK_ACTIVE", err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not claim winnings")
		}
		return
	}
	respondSuccess(c, http.StatusOK, receipt)
}

// ClaimCreatorFees godoc
// POST /api/markets/:id/claim-fees [JWT]
func (h *TradeHandler) ClaimCreatorFees(c *gin.Context) {
	userID := middleware.GetUserID(c)

	marketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid market id")
		return
	}

	amount, err := h.settlementSvc.ClaimCreatorFees(c.Request.Context(), userID, marketID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrMarketNotFound):
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
		case errors.Is(err, domain.ErrUnauthorized):
			respondError(c, http.StatusForbidden, "ERR_NOT_CREATOR", "only the market creator may claim fees")
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not claim creator fees")
		}
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"amount": amount})
}

// ──────────────────────────────────────────────────────────────────────────────
// Binding helpers
// ──────────────────────────────────────────────────────────────────────────────

func (h *TradeHandler) bindBuy(c *gin.Context, userID uuid.UUID) (domain.BuyRequest, bool) {
	var body tradeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return domain.BuyRequest{}, false
	}

	marketID, err := uuid.Parse(body.MarketID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_MARKET_ID", "invalid market_id format")
		return domain.BuyRequest{}, false
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || !amount.IsPositive() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "amount must be a positive decimal string")
		return domain.BuyRequest{}, false
	}
	minShares := decimal.Zero
	if body.MinSharesOut != "" {
		if minShares, err = decimal.NewFromString(body.MinSharesOut); err != nil || minShares.IsNegative() {
			respondError(c, http.StatusBadRequest, "ERR_INVALID_MIN_SHARES", "min_shares_out must be a non-negative decimal string")
			return domain.BuyRequest{}, false
		}
	}

	return domain.BuyRequest{
		UserID:       userID,
		MarketID:     marketID,
		Outcome:      *body.Outcome,
		Amount:       amount,
		MinSharesOut: minShares,
	}, true
}

func (h *TradeHandler) bindSell(c *gin.Context, userID uuid.UUID) (domain.SellRequest, bool) {
	var body tradeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return domain.SellRequest{}, false
	}

	marketID, err := uuid.Parse(body.MarketID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_MARKET_ID", "invalid market_id format")
		return domain.SellRequest{}, false
	}
	shares, err := decimal.NewFromString(body.Shares)
	if err != nil || !shares.IsPositive() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_SHARES", "shares must be a positive decimal string")
		return domain.SellRequest{}, false
	}
	minAmount := decimal.Zero
	if body.MinAmountOut != "" {
		if minAmount, err = decimal.NewFromString(body.MinAmountOut); err != nil || minAmount.IsNegative() {
			respondError(c, http.StatusBadRequest, "ERR_INVALID_MIN_AMOUNT", "min_amount_out must be a non-negative decimal string")
			return domain.SellRequest{}, false
		}
	}

	return domain.SellRequest{
		UserID:       userID,
		MarketID:     marketID,
		Outcome:      *body.Outcome,
		Shares:       shares,
		MinAmountOut: minAmount,
	}, true
}

// respondTradeError maps engine and service errors onto the HTTP surface.
func respondTradeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrMarketNotFound):
		respondError(c, http.StatusNotFound, "ERR_MARKET_NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrMarketClosed):
		respondError(c, http.StatusConflict, "ERR_MARKET_CLOSED", err.Error())
	case errors.Is(err, domain.ErrInvalidOutcome):
		respondError(c, http.StatusBadRequest, "ERR_INVALID_OUTCOME", err.Error())
	case errors.Is(err, domain.ErrInvalidAmount):
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", err.Error())
	case errors.Is(err, domain.ErrSlippageExceeded):
		respondError(c, http.StatusConflict, "ERR_SLIPPAGE", err.Error())
	case errors.Is(err, domain.ErrWhaleCapExceeded):
		respondError(c, http.StatusConflict, "ERR_WHALE_CAP", err.Error())
	case errors.Is(err, domain.ErrInsufficientShares):
		respondError(c, http.StatusConflict, "ERR_INSUFFICIENT_SHARES", err.Error())
	case errors.Is(err, domain.ErrInsufficientBalance):
		respondError(c, http.StatusPaymentRequired, "ERR_INSUFFICIENT_BALANCE", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not execute trade")
	}
}
