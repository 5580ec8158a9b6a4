package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/evetabi/curvemarket/internal/config"
	"github.com/evetabi/curvemarket/internal/domain"
	"github.com/evetabi/curvemarket/internal/engine"
	"github.com/evetabi/curvemarket/internal/repository"
)

// SettlementService handles resolution, winner claims, creator fee payouts,
// and the close sweep that archives settled markets.
type SettlementService struct {
	db           *sqlx.DB
	marketRepo   *repository.MarketRepository
	positionRepo *repository.PositionRepository
	walletRepo   *repository.WalletRepository
	feeRepo      *repository.FeeRepository
	protocolRepo *repository.ProtocolRepository
	engine       *engine.Engine
	cfg          *config.Config
	broadcaster  Broadcaster
}

// NewSettlementService creates a SettlementService.
func NewSettlementService(
	db *sqlx.DB,
	marketRepo *repository.MarketRepository,
	positionRepo *repository.PositionRepository,
	walletRepo *repository.WalletRepository,
	feeRepo *repository.FeeRepository,
	protocolRepo *repository.ProtocolRepository,
	eng *engine.Engine,
	cfg *config.Config,
) *SettlementService {
	return &SettlementService{
		db:           db,
		marketRepo:   marketRepo,
		positionRepo: positionRepo,
		walletRepo:   walletRepo,
		feeRepo:      feeRepo,
		protocolRepo: protocolRepo,
		engine:       eng,
		cfg:          cfg,
	}
}

// SetBroadcaster injects the WebSocket hub after construction.
func (s *SettlementService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// ──────────────────────────────────────────────────────────────────────────────
// Resolve
// ──────────────────────────────────────────────────────────────────────────────

// Resolve settles a market on the winning outcome. Only the protocol
// authority may call it; the resolution fee is credited to the treasury in
// the same transaction.
func (s *SettlementService) Resolve(ctx context.Context, callerID, marketID uuid.UUID, winningOutcome int) (*domain.ResolveReceipt, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("settlement_service.Resolve begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// ── 1. Lock the market; in-flight trades finish before we settle
	market, err := s.marketRepo.GetByIDForUpdate(ctx, tx, marketID)
	if err != nil {
		return nil, err
	}

	// ── 2. Authority check against protocol state
	proto, err := s.protocolRepo.Get(ctx)
	if err != nil {
		return nil, err
	}

	// ── 3. Run the engine
	receipt, err := s.engine.Resolve(market, proto, callerID, winningOutcome)
	if err != nil {
		return nil, err
	}

	// ── 4. Persist settlement and move the resolution fee to the treasury
	if err = s.marketRepo.SaveResolution(ctx, tx, market); err != nil {
		return nil, err
	}
	if receipt.ResolutionFee.IsPositive() {
		if err = s.walletRepo.AddTreasuryBalance(ctx, tx, receipt.ResolutionFee); err != nil {
			return nil, err
		}
		entry := &domain.FeeEntry{
			ID:             uuid.New(),
			MarketID:       market.ID,
			UserID:         callerID,
			Source:         domain.FeeSourceResolution,
			TreasuryAmount: receipt.ResolutionFee,
			CreatorAmount:  decimal.Zero,
			RecordedAt:     receipt.ResolvedAt,
		}
		if err = s.feeRepo.Record(ctx, tx, entry); err != nil {
			return nil, err
		}
		if err = logTreasuryTxn(ctx, tx, domain.TxProtocolFee, receipt.ResolutionFee, &market.ID, "Resolution fee"); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("settlement_service.Resolve commit: %w", err)
	}

	s.postResolvedAsync(receipt)
	return receipt, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Claim
// ──────────────────────────────────────────────────────────────────────────────

// Claim pays out a user's pro-rata slice of the winner pool and burns their
// position. Claiming twice is a zero-payout no-op.
func (s *SettlementService) Claim(ctx context.Context, userID, marketID uuid.UUID) (*domain.ClaimReceipt, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("settlement_service.Claim begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// ── 1. Lock the market, then the position
	market, err := s.marketRepo.GetByIDForUpdate(ctx, tx, marketID)
	if err != nil {
		return nil, err
	}
	pos, err := s.positionRepo.GetForUpdate(ctx, tx, userID, marketID)
	if err != nil {
		return nil, err
	}

	// ── 2. Run the engine
	receipt, err := s.engine.Claim(market, pos)
	if err != nil {
		return nil, err
	}

	// ── 3. Persist vault and burned position, credit the payout
	if err = s.marketRepo.SaveVault(ctx, tx, market); err != nil {
		return nil, err
	}
	if err = s.positionRepo.Save(ctx, tx, pos); err != nil {
		return nil, err
	}
	if receipt.Payout.IsPositive() {
		if err = s.walletRepo.AddBalance(ctx, tx, userID, receipt.Payout); err != nil {
			return nil, err
		}
		desc := fmt.Sprintf("Winner payout for outcome %d", receipt.Outcome)
		if err = logUserTxn(ctx, tx, userID, domain.TxClaim, receipt.Payout, &market.ID, desc); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("settlement_service.Claim commit: %w", err)
	}

	s.postClaimedAsync(receipt)
	return receipt, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Creator fees
// ──────────────────────────────────────────────────────────────────────────────

// ClaimCreatorFees pays a market's accrued creator fees out to its creator.
func (s *SettlementService) ClaimCreatorFees(ctx context.Context, callerID, marketID uuid.UUID) (decimal.Decimal, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("settlement_service.ClaimCreatorFees begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	market, err := s.marketRepo.GetByIDForUpdate(ctx, tx, marketID)
	if err != nil {
		return decimal.Zero, err
	}

	amount, err := s.engine.ClaimCreatorFees(market, callerID)
	if err != nil {
		return decimal.Zero, err
	}
	if !amount.IsPositive() {
		_ = tx.Rollback()
		return decimal.Zero, nil
	}

	if err = s.marketRepo.SaveVault(ctx, tx, market); err != nil {
		return decimal.Zero, err
	}
	if err = s.walletRepo.AddBalance(ctx, tx, callerID, amount); err != nil {
		return decimal.Zero, err
	}
	if err = logUserTxn(ctx, tx, callerID, domain.TxCreatorFee, amount, &market.ID, "Creator fee payout"); err != nil {
		return decimal.Zero, err
	}

	if err = tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("settlement_service.ClaimCreatorFees commit: %w", err)
	}
	return amount, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Close sweep
// ──────────────────────────────────────────────────────────────────────────────

// CloseSettledMarkets archives every resolved market whose dispute window has
// passed. The scheduler calls it periodically; one failing market does not
// stop the sweep.
func (s *SettlementService) CloseSettledMarkets(ctx context.Context) (int, error) {
	cutoff := s.engine.Now().Add(-s.cfg.Guard.CloseWindow)
	due, err := s.marketRepo.GetResolvedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, market := range due {
		if err := s.engine.Close(market); err != nil {
			slog.Warn("close sweep skipped market", "market_id", market.ID, "error", err)
			continue
		}
		if err := s.marketRepo.Close(ctx, market); err != nil {
			slog.Warn("close sweep failed to persist", "market_id", market.ID, "error", err)
			continue
		}
		closed++
	}
	return closed, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Internals
// ──────────────────────────────────────────────────────────────────────────────

func (s *SettlementService) postResolvedAsync(receipt *domain.ResolveReceipt) {
	if s.broadcaster == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("resolve broadcast panicked", "panic", r, "market_id", receipt.MarketID)
			}
		}()
		s.broadcaster.BroadcastMarketResolved(receipt)
	}()
}

func (s *SettlementService) postClaimedAsync(receipt *domain.ClaimReceipt) {
	if s.broadcaster == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("claim broadcast panicked", "panic", r, "market_id", receipt.MarketID)
			}
		}()
		s.broadcaster.BroadcastRewardClaimed(receipt)
	}()
}
