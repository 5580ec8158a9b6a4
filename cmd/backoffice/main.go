// Package main is the entry point for the evetabi curvemarket back-office
// admin server. Runs on its own port and exposes admin-only endpoints
// protected by RBAC and an optional IP allowlist.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/evetabi/curvemarket/internal/backoffice"
	"github.com/evetabi/curvemarket/internal/config"
	"github.com/evetabi/curvemarket/internal/curve"
	"github.com/evetabi/curvemarket/internal/engine"
	"github.com/evetabi/curvemarket/internal/repository"
	"github.com/evetabi/curvemarket/internal/service"
)

func main() {
	// ── Logger ────────────────────────────────────────────────────────────────
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting evetabi backoffice server",
		"env", cfg.Server.Env, "port", cfg.Server.BackofficePort)

	// ── Database ──────────────────────────────────────────────────────────────
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

	// ── Curve + engine ────────────────────────────────────────────────────────
	crv, err := curve.New(curve.Params{
		TotalSupply: decimal.NewFromFloat(cfg.Curve.TotalSupply),
		Phase1End:   decimal.NewFromFloat(cfg.Curve.Phase1End),
		Phase2End:   decimal.NewFromFloat(cfg.Curve.Phase2End),
		PStart:      decimal.NewFromFloat(cfg.Curve.PStart),
		PAnchorEnd:  decimal.NewFromFloat(cfg.Curve.PAnchorEnd),
		PBridgeEnd:  decimal.NewFromFloat(cfg.Curve.PBridgeEnd),
		PMax:        decimal.NewFromFloat(cfg.Curve.PMax),
		K:           decimal.NewFromFloat(cfg.Curve.K),
	})
	if err != nil {
		logger.Error("invalid curve parameters", "err", err)
		os.Exit(1)
	}
	eng := engine.New(crv, engine.Config{
		FeeRate:           decimal.NewFromFloat(cfg.Fees.FeeRate),
		BotFeeRate:        decimal.NewFromFloat(cfg.Fees.BotFeeRate),
		ResolutionFeeRate: decimal.NewFromFloat(cfg.Fees.ResolutionFeeRate),
		WhaleCapPct:       decimal.NewFromFloat(cfg.Guard.WhaleCapPct),
		MaxAmount:         decimal.NewFromFloat(cfg.Guard.MaxAmount),
		ClaimTimelock:     cfg.Guard.ClaimTimelock,
		SlotDuration:      cfg.Guard.SlotDuration,
	})

	// ── Repositories ──────────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	marketRepo := repository.NewMarketRepository(db)
	positionRepo := repository.NewPositionRepository(db)
	feeRepo := repository.NewFeeRepository(db)
	protocolRepo := repository.NewProtocolRepository(db)

	// ── Services ──────────────────────────────────────────────────────────────
	authSvc := service.NewAuthService(db, userRepo, walletRepo, cfg)
	marketSvc := service.NewMarketService(db, marketRepo, walletRepo, feeRepo, eng, cfg)
	settlementSvc := service.NewSettlementService(db, marketRepo, positionRepo, walletRepo, feeRepo, protocolRepo, eng, cfg)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Router ────────────────────────────────────────────────────────────────
	router := backoffice.SetupBackofficeRouter(backoffice.BackofficeDeps{
		AuthSvc:       authSvc,
		MarketSvc:     marketSvc,
		SettlementSvc: settlementSvc,
		UserRepo:      userRepo,
		WalletRepo:    walletRepo,
		MarketRepo:    marketRepo,
		PositionRepo:  positionRepo,
		FeeRepo:       feeRepo,
		ProtocolRepo:  protocolRepo,
		Hub:           nil, // backoffice does not directly serve WS
		Cfg:           cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.BackofficePort,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── Start ─────────────────────────────────────────────────────────────────
	go func() {
		logger.Info("backoffice http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("backoffice server error", "err", err)
			stop()
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("backoffice shutdown error", "err", err)
	}

	db.Close()
	logger.Info("backoffice server stopped cleanly")
}
