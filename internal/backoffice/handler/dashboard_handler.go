package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/evetabi/curvemarket/internal/config"
	"github.com/evetabi/curvemarket/internal/repository"
	"github.com/evetabi/curvemarket/internal/service"
	"github.com/evetabi/curvemarket/internal/ws"
)

// DashboardHandler serves the /admin/dashboard endpoint.
type DashboardHandler struct {
	marketSvc  *service.MarketService
	marketRepo *repository.MarketRepository
	walletRepo *repository.WalletRepository
	hub        *ws.Hub
	cfg        *config.Config
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(
	marketSvc *service.MarketService,
	marketRepo *repository.MarketRepository,
	walletRepo *repository.WalletRepository,
	hub *ws.Hub,
	cfg *config.Config,
) *DashboardHandler {
	return &DashboardHandler{
		marketSvc:  marketSvc,
		marketRepo: marketRepo,
		walletRepo: walletRepo,
		hub:        hub,
		cfg:        cfg,
	}
}

// Dashboard godoc
// GET /admin/dashboard
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()

	// ── Market counts ─────────────────────────────────────────────────────────
	counts, err := h.marketRepo.CountByStatus(ctx)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}

	// ── Open-market liquidity ─────────────────────────────────────────────────
	var vaultTotal, poolTotal decimal.Decimal
	openMarkets, err := h.marketRepo.GetOpen(ctx)
	if err == nil {
		for _, m := range openMarkets {
			vaultTotal = vaultTotal.Add(m.VaultBalance)
			poolTotal = poolTotal.Add(m.NetPool())
		}
	}

	// ── Treasury ──────────────────────────────────────────────────────────────
	var treasuryBalance decimal.Decimal
	if wallet, werr := h.walletRepo.GetTreasuryWallet(ctx); werr == nil {
		treasuryBalance = wallet.Balance
	}

	// ── WS connections ────────────────────────────────────────────────────────
	var wsConnections int
	if h.hub != nil {
		wsConnections = h.hub.ConnectedCount()
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"timestamp":        time.Now().UTC(),
		"market_counts":    counts,
		"open_vault_total": vaultTotal,
		"open_pool_total":  poolTotal,
		"treasury_balance": treasuryBalance,
		"ws_connections":   wsConnections,
	})
}
