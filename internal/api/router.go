package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/evetabi/curvemarket/internal/api/handler"
	"github.com/evetabi/curvemarket/internal/api/middleware"
	"github.com/evetabi/curvemarket/internal/config"
	"github.com/evetabi/curvemarket/internal/service"
	"github.com/evetabi/curvemarket/internal/ws"
)

// RouterDeps bundles every dependency needed to build the router.
// Populated once in main() and passed to SetupRouter.
type RouterDeps struct {
	AuthSvc       *service.AuthService
	MarketSvc     *service.MarketService
	TradeSvc      *service.TradeService
	SettlementSvc *service.SettlementService
	WalletSvc     *service.WalletService
	Hub           *ws.Hub
	Cfg           *config.Config
}

// SetupRouter creates and configures the main Gin engine with all routes,
// middleware, CORS, and rate limiting rules.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// ── CORS ─────────────────────────────────────────────────────────────────
	r.Use(corsMiddleware(deps.Cfg))

	// ── Health check ─────────────────────────────────────────────────────────
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ── Handlers ─────────────────────────────────────────────────────────────
	userH := handler.NewUserHandler(deps.AuthSvc, deps.WalletSvc)
	marketH := handler.NewMarketHandler(deps.MarketSvc)
	tradeH := handler.NewTradeHandler(deps.TradeSvc, deps.SettlementSvc)
	positionH := handler.NewPositionHandler(deps.TradeSvc)
	walletH := handler.NewWalletHandler(deps.WalletSvc)

	// ── JWT middleware (shared) ───────────────────────────────────────────────
	jwtMW := middleware.JWTMiddleware(deps.AuthSvc)

	// ── Rate limiters ─────────────────────────────────────────────────────────
	authRL := middleware.RateLimitMiddleware(10, 20)  // auth lane: 10 req/s, small burst
	tradeRL := middleware.RateLimitMiddleware(30, 60) // trade lane: 30 req/s, burst for resolution rushes

	api := r.Group("/api")
	{
		// ── Auth (public, strict rate limit) ─────────────────────────────────
		auth := api.Group("/auth")
		auth.Use(authRL)
		{
			auth.POST("/register", userH.Register)
			auth.POST("/login", userH.Login)
			auth.POST("/refresh", userH.Refresh)
		}

		// ── Markets (reads public, creation authenticated) ───────────────────
		markets := api.Group("/markets")
		{
			markets.GET("/history", marketH.GetHistory)
			markets.GET("", marketH.List)
			markets.GET("/:id", marketH.GetByID)
			markets.GET("/:id/prices", marketH.GetPrices)
		}

		// ── Authenticated routes ──────────────────────────────────────────────
		authed := api.Group("")
		authed.Use(jwtMW)
		{
			// Profile
			authed.GET("/me", userH.Me)

			// Market creation, claims, creator fees
			authed.POST("/markets", marketH.Create)
			authed.POST("/markets/:id/claim", tradeH.Claim)
			authed.POST("/markets/:id/claim-fees", tradeH.ClaimCreatorFees)

			// Trades
			trades := authed.Group("/trades")
			trades.Use(tradeRL)
			{
				trades.POST("/buy", tradeH.Buy)
				trades.POST("/sell", tradeH.Sell)
				trades.POST("/quote/buy", tradeH.QuoteBuy)
				trades.POST("/quote/sell", tradeH.QuoteSell)
			}

			// Positions
			positions := authed.Group("/positions")
			{
				positions.GET("/my", positionH.GetMyPositions)
				positions.GET("/:marketId", positionH.GetByMarket)
			}

			// Wallet
			wallet := authed.Group("/wallet")
			{
				wallet.GET("/balance", walletH.GetBalance)
				wallet.GET("/transactions", walletH.GetTransactions)
			}
		}
	}

	// ── WebSocket ─────────────────────────────────────────────────────────────
	if deps.Hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			deps.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	return r
}

// ── CORS helper ───────────────────────────────────────────────────────────────

// corsMiddleware returns a gin middleware that sets appropriate CORS headers.
// In development all origins are allowed; in production only configured origins.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if !cfg.IsProd() {
			// Development: allow any origin
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			// Production: allow only evetabi.com (and www.)
			allowed := map[string]bool{
				"https://evetabi.com":     true,
				"https://www.evetabi.com": true,
			}
			if allowed[origin] {
				c.Header("Access-Control-Allow-Origin", origin)
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
