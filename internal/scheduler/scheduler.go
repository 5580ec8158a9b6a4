// Package scheduler manages the two background goroutines that keep the
// market lifecycle moving without operator action:
//  1. closeSweepLoop    – archives resolved markets whose dispute window passed.
//  2. snapshotLoop      – pushes curve spot prices for open markets to WS clients.
package scheduler

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/evetabi/curvemarket/internal/config"
	"github.com/evetabi/curvemarket/internal/service"
)

// ──────────────────────────────────────────────────────────────────────────────
// Scheduler
// ──────────────────────────────────────────────────────────────────────────────

// Scheduler runs the background lifecycle loops. Call Start(ctx) once from
// main(); cancel the context to shut it down gracefully.
type Scheduler struct {
	marketSvc     *service.MarketService
	settlementSvc *service.SettlementService
	hub           service.Broadcaster
	cfg           *config.Config
	logger        *slog.Logger

	snapshotEvery time.Duration
	sweepEvery    time.Duration
}

// NewScheduler creates a Scheduler with default loop intervals.
func NewScheduler(
	marketSvc *service.MarketService,
	settlementSvc *service.SettlementService,
	hub service.Broadcaster,
	cfg *config.Config,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		marketSvc:     marketSvc,
		settlementSvc: settlementSvc,
		hub:           hub,
		cfg:           cfg,
		logger:        logger,
		snapshotEvery: 2 * time.Second,
		sweepEvery:    time.Minute,
	}
}

// Start launches the background goroutines. It returns immediately;
// all loops run until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.closeSweepLoop(ctx)
	go s.snapshotLoop(ctx)
	s.logger.Info("scheduler started",
		"sweep_every", s.sweepEvery, "snapshot_every", s.snapshotEvery)
}

// ──────────────────────────────────────────────────────────────────────────────
// closeSweepLoop
// ──────────────────────────────────────────────────────────────────────────────

// closeSweepLoop periodically archives resolved markets whose dispute window
// has passed. Closed markets reject all further trades and claims.
func (s *Scheduler) closeSweepLoop(ctx context.Context) {
	defer s.recoverAndLog("closeSweepLoop")

	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("closeSweepLoop: shutting down")
			return
		case <-ticker.C:
			closed, err := s.settlementSvc.CloseSettledMarkets(ctx)
			if err != nil {
				s.logger.Error("closeSweepLoop: sweep failed", "err", err)
				continue
			}
			if closed > 0 {
				s.logger.Info("close sweep archived markets", "count", closed)
			}
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// snapshotLoop
// ──────────────────────────────────────────────────────────────────────────────

// snapshotLoop broadcasts the spot prices of every open market so clients can
// refresh charts and countdowns without polling the REST API.
func (s *Scheduler) snapshotLoop(ctx context.Context) {
	defer s.recoverAndLog("snapshotLoop")

	ticker := time.NewTicker(s.snapshotEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("snapshotLoop: shutting down")
			return
		case <-ticker.C:
			s.broadcastSnapshot(ctx)
		}
	}
}

// broadcastSnapshot is the inner body of snapshotLoop, extracted so that the
// defer/recover in the loop catches panics correctly.
func (s *Scheduler) broadcastSnapshot(ctx context.Context) {
	if s.hub == nil {
		return
	}

	markets, err := s.marketSvc.OpenSummaries(ctx)
	if err != nil {
		s.logger.Warn("snapshotLoop: could not load open markets", "err", err)
		return
	}
	if len(markets) == 0 {
		return
	}
	s.hub.BroadcastCurveSnapshot(markets)
}

// ──────────────────────────────────────────────────────────────────────────────
// recoverAndLog
// ──────────────────────────────────────────────────────────────────────────────

// recoverAndLog keeps a crashed loop from taking down the process.
func (s *Scheduler) recoverAndLog(loop string) {
	if r := recover(); r != nil {
		s.logger.Error("scheduler loop panicked",
			"loop", loop, "panic", r, "stack", string(debug.Stack()))
	}
}
