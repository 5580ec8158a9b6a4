// Package main is the entry point for the evetabi curve-market API server.
// It wires together all services and starts the HTTP server alongside the
// WebSocket hub and background scheduler.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/shopspring/decimal"

	"github.com/evetabi/curvemarket/internal/api"
	"github.com/evetabi/curvemarket/internal/config"
	"github.com/evetabi/curvemarket/internal/curve"
	"github.com/evetabi/curvemarket/internal/engine"
	"github.com/evetabi/curvemarket/internal/repository"
	"github.com/evetabi/curvemarket/internal/scheduler"
	"github.com/evetabi/curvemarket/internal/service"
	"github.com/evetabi/curvemarket/internal/ws"
)

func main() {
	// ── 1. Logger ─────────────────────────────────────────────────────────────
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting evetabi curvemarket server", "env", cfg.Server.Env, "port", cfg.Server.Port)

	// ── 2. Database ───────────────────────────────────────────────────────────
	db, err := sqlx.Connect("postgres", cfg.DB.DSN)
	if err != nil {
		logger.Error("database connection failed", "err", err)
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	if err = db.Ping(); err != nil {
		logger.Error("database ping failed", "err", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	// ── 3. Migrations ─────────────────────────────────────────────────────────
	if err = runMigrations(db, "migrations"); err != nil {
		logger.Error("migrations failed", "err", err)
		os.Exit(1)
	}
	logger.Info("migrations applied")

	// ── 4. Curve + engine ─────────────────────────────────────────────────────
	crv, err := curve.New(curveParams(cfg))
	if err != nil {
		logger.Error("invalid curve parameters", "err", err)
		os.Exit(1)
	}
	eng := engine.New(crv, engineConfig(cfg))

	// ── 5. Repositories ───────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	marketRepo := repository.NewMarketRepository(db)
	positionRepo := repository.NewPositionRepository(db)
	feeRepo := repository.NewFeeRepository(db)
	protocolRepo := repository.NewProtocolRepository(db)

	// ── 6. Services ───────────────────────────────────────────────────────────
	authSvc := service.NewAuthService(db, userRepo, walletRepo, cfg)
	marketSvc := service.NewMarketService(db, marketRepo, walletRepo, feeRepo, eng, cfg)
	tradeSvc := service.NewTradeService(db, marketRepo, positionRepo, walletRepo, feeRepo, protocolRepo, eng)
	settlementSvc := service.NewSettlementService(db, marketRepo, positionRepo, walletRepo, feeRepo, protocolRepo, eng, cfg)
	walletSvc := service.NewWalletService(walletRepo)

	// ── 7. WebSocket Hub ──────────────────────────────────────────────────────
	jwtSecret := []byte(cfg.JWT.AccessSecret)
	var allowedOrigins []string
	if ori := os.Getenv("WS_ALLOWED_ORIGINS"); ori != "" {
		for _, o := range strings.Split(ori, ",") {
			allowedOrigins = append(allowedOrigins, strings.TrimSpace(o))
		}
	}
	hub := ws.NewHub(jwtSecret, allowedOrigins)

	// Wire WS broadcaster into the trading path
	marketSvc.SetBroadcaster(hub)
	tradeSvc.SetBroadcaster(hub)
	settlementSvc.SetBroadcaster(hub)

	// ── 8. Root context + signal handling ─────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 9. Start WS Hub ───────────────────────────────────────────────────────
	go hub.Run()
	logger.Info("websocket hub started")

	// ── 10. Scheduler ─────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(marketSvc, settlementSvc, hub, cfg, logger)
	sched.Start(ctx)

	// ── 11. HTTP Router ───────────────────────────────────────────────────────
	router := api.SetupRouter(api.RouterDeps{
		AuthSvc:       authSvc,
		MarketSvc:     marketSvc,
		TradeSvc:      tradeSvc,
		SettlementSvc: settlementSvc,
		WalletSvc:     walletSvc,
		Hub:           hub,
		Cfg:           cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── 12. Start server ──────────────────────────────────────────────────────
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
			stop() // trigger graceful shutdown
		}
	}()

	// ── 13. Graceful shutdown ─────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received, draining connections…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "err", err)
	}

	db.Close()
	logger.Info("server stopped cleanly")
}

// curveParams converts the float env config into exact decimal curve params.
func curveParams(cfg *config.Config) curve.Params {
	return curve.Params{
		TotalSupply: decimal.NewFromFloat(cfg.Curve.TotalSupply),
		Phase1End:   decimal.NewFromFloat(cfg.Curve.Phase1End),
		Phase2End:   decimal.NewFromFloat(cfg.Curve.Phase2End),
		PStart:      decimal.NewFromFloat(cfg.Curve.PStart),
		PAnchorEnd:  decimal.NewFromFloat(cfg.Curve.PAnchorEnd),
		PBridgeEnd:  decimal.NewFromFloat(cfg.Curve.PBridgeEnd),
		PMax:        decimal.NewFromFloat(cfg.Curve.PMax),
		K:           decimal.NewFromFloat(cfg.Curve.K),
	}
}

func engineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		FeeRate:           decimal.NewFromFloat(cfg.Fees.FeeRate),
		BotFeeRate:        decimal.NewFromFloat(cfg.Fees.BotFeeRate),
		ResolutionFeeRate: decimal.NewFromFloat(cfg.Fees.ResolutionFeeRate),
		WhaleCapPct:       decimal.NewFromFloat(cfg.Guard.WhaleCapPct),
		MaxAmount:         decimal.NewFromFloat(cfg.Guard.MaxAmount),
		ClaimTimelock:     cfg.Guard.ClaimTimelock,
		SlotDuration:      cfg.Guard.SlotDuration,
	}
}

// runMigrations reads all *.sql files from dir, sorted by name, and executes
// them sequentially.  Idempotent: SQL files should use IF NOT EXISTS / ON CONFLICT.
func runMigrations(db *sqlx.DB, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("runMigrations: read dir %q: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("runMigrations: read %q: %w", f, err)
		}
		if _, err = db.Exec(string(data)); err != nil {
			return fmt.Errorf("runMigrations: exec %q: %w", f, err)
		}
		slog.Info("migration applied", "file", filepath.Base(f))
	}
	return nil
}
