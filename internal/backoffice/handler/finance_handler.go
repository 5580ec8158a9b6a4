package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/evetabi/curvemarket/internal/config"
	"github.com/evetabi/curvemarket/internal/repository"
)

// FinanceHandler serves /admin/finance endpoints.
type FinanceHandler struct {
	feeRepo    *repository.FeeRepository
	walletRepo *repository.WalletRepository
	cfg        *config.Config
}

// NewFinanceHandler creates a FinanceHandler.
func NewFinanceHandler(
	feeRepo *repository.FeeRepository,
	walletRepo *repository.WalletRepository,
	cfg *config.Config,
) *FinanceHandler {
	return &FinanceHandler{feeRepo: feeRepo, walletRepo: walletRepo, cfg: cfg}
}

// Report godoc
// GET /admin/finance/report?from=2026-01-01&to=2026-01-31
// Sums the fee ledger by source over a date range.
func (h *FinanceHandler) Report(c *gin.Context) {
	from, to, ok := parseDateRange(c)
	if !ok {
		return
	}

	report, err := h.feeRepo.Report(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, report)
}

// TreasuryIncome godoc
// GET /admin/finance/treasury?from=2026-01-01&to=2026-01-31
// Sums treasury wallet credits by transaction type over a date range.
func (h *FinanceHandler) TreasuryIncome(c *gin.Context) {
	from, to, ok := parseDateRange(c)
	if !ok {
		return
	}

	income, err := h.walletRepo.GetTreasuryIncome(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"from":   from,
		"to":     to,
		"income": income,
	})
}

// parseDateRange reads from/to query params (YYYY-MM-DD), defaulting to the
// last 30 days. `to` is inclusive. Writes the error response itself on failure.
func parseDateRange(c *gin.Context) (from, to time.Time, ok bool) {
	var err error
	if fromStr := c.Query("from"); fromStr != "" {
		from, err = time.Parse("2006-01-02", fromStr)
		if err != nil {
			respondError(c, http.StatusBadRequest, "ERR_INVALID_DATE", "from must be YYYY-MM-DD")
			return from, to, false
		}
	} else {
		from = time.Now().UTC().AddDate(0, -1, 0).Truncate(24 * time.Hour)
	}
	if toStr := c.Query("to"); toStr != "" {
		to, err = time.Parse("2006-01-02", toStr)
		if err != nil {
			respondError(c, http.StatusBadRequest, "ERR_INVALID_DATE", "to must be YYYY-MM-DD")
			return from, to, false
		}
		to = to.Add(24 * time.Hour) // inclusive
	} else {
		to = time.Now().UTC()
	}
	return from, to, true
}

// ── helper ────────────────────────────────────────────────────────────────────

// adminUserID extracts the admin's UUID from the gin context (set by adminJWTMiddleware).
func adminUserID(c *gin.Context) uuid.UUID {
	v, _ := c.Get("userID")
	s, _ := v.(string)
	id, _ := uuid.Parse(s)
	return id
}
