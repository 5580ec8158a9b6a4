package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/evetabi/curvemarket/internal/config"
	"github.com/evetabi/curvemarket/internal/domain"
	"github.com/evetabi/curvemarket/internal/engine"
	"github.com/evetabi/curvemarket/internal/repository"
)

// maxOutcomes bounds per-market outcome count; each outcome costs a curve
// ledger row and a position share row per holder.
const maxOutcomes = 16

// MarketService handles market creation and read endpoints.
type MarketService struct {
	db          *sqlx.DB
	marketRepo  *repository.MarketRepository
	walletRepo  *repository.WalletRepository
	feeRepo     *repository.FeeRepository
	engine      *engine.Engine
	cfg         *config.Config
	broadcaster Broadcaster
}

// NewMarketService creates a MarketService.
func NewMarketService(
	db *sqlx.DB,
	marketRepo *repository.MarketRepository,
	walletRepo *repository.WalletRepository,
	feeRepo *repository.FeeRepository,
	eng *engine.Engine,
	cfg *config.Config,
) *MarketService {
	return &MarketService{
		db:         db,
		marketRepo: marketRepo,
		walletRepo: walletRepo,
		feeRepo:    feeRepo,
		engine:     eng,
		cfg:        cfg,
	}
}

// SetBroadcaster injects the WebSocket hub after construction.
func (s *MarketService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// ──────────────────────────────────────────────────────────────────────────────
// Create
// ──────────────────────────────────────────────────────────────────────────────

// Create opens a new market. The id is derived from (creator, title), so the
// same creator cannot open the same market twice. The flat creation fee is
// debited from the creator and credited to the treasury in the same
// transaction as the market insert.
func (s *MarketService) Create(ctx context.Context, req domain.CreateMarketRequest) (*domain.Market, error) {
	if err := validateCreateRequest(req, s.engine.Now()); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	market := &domain.Market{
		ID:                   domain.DeriveMarketID(req.Creator, req.Title),
		Creator:              req.Creator,
		Title:                strings.TrimSpace(req.Title),
		Description:          strings.TrimSpace(req.Description),
		Status:               domain.StatusOpen,
		Outcomes:             make([]domain.OutcomeState, len(req.OutcomeLabels)),
		VaultBalance:         decimal.Zero,
		CreatorFeesClaimable: decimal.Zero,
		EndTime:              req.EndTime.UTC(),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	for i, label := range req.OutcomeLabels {
		market.Outcomes[i] = domain.OutcomeState{
			Index:        i,
			Label:        strings.TrimSpace(label),
			SharesIssued: decimal.Zero,
		}
	}

	creationFee := decimal.NewFromFloat(s.cfg.Fees.CreationFee)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("market_service.Create begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// ── 1. Charge the creation fee; the whole fee goes to the treasury
	if creationFee.IsPositive() {
		if err = s.walletRepo.DeductBalance(ctx, tx, req.Creator, creationFee); err != nil {
			return nil, err
		}
		if err = s.walletRepo.AddTreasuryBalance(ctx, tx, creationFee); err != nil {
			return nil, err
		}
	}

	// ── 2. Insert the market and its outcome ledger
	if err = s.marketRepo.CreateTx(ctx, tx, market); err != nil {
		return nil, err
	}

	// ── 3. Fee ledger and audit trail
	if creationFee.IsPositive() {
		entry := &domain.FeeEntry{
			ID:             uuid.New(),
			MarketID:       market.ID,
			UserID:         req.Creator,
			Source:         domain.FeeSourceCreation,
			TreasuryAmount: creationFee,
			CreatorAmount:  decimal.Zero,
			RecordedAt:     now,
		}
		if err = s.feeRepo.Record(ctx, tx, entry); err != nil {
			return nil, err
		}
		if err = logUserTxn(ctx, tx, req.Creator, domain.TxCreationFee, creationFee.Neg(), &market.ID, "Market creation fee"); err != nil {
			return nil, err
		}
		if err = logTreasuryTxn(ctx, tx, domain.TxProtocolFee, creationFee, &market.ID, "Market creation fee"); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("market_service.Create commit: %w", err)
	}

	s.postCreatedAsync(market)
	return market, nil
}

func validateCreateRequest(req domain.CreateMarketRequest, now time.Time) error {
	if strings.TrimSpace(req.Title) == "" {
		return fmt.Errorf("empty title: %w", domain.ErrInvalidMarket)
	}
	if len(req.OutcomeLabels) < 2 || len(req.OutcomeLabels) > maxOutcomes {
		return fmt.Errorf("%d outcomes, need 2..%d: %w",
			len(req.OutcomeLabels), maxOutcomes, domain.ErrInvalidMarket)
	}
	seen := make(map[string]struct{}, len(req.OutcomeLabels))
	for _, label := range req.OutcomeLabels {
		trimmed := strings.TrimSpace(label)
		if trimmed == "" {
			return fmt.Errorf("blank outcome label: %w", domain.ErrInvalidMarket)
		}
		if _, dup := seen[trimmed]; dup {
			return fmt.Errorf("duplicate outcome label %q: %w", trimmed, domain.ErrInvalidMarket)
		}
		seen[trimmed] = struct{}{}
	}
	if !req.EndTime.After(now) {
		return fmt.Errorf("end time %s is in the past: %w", req.EndTime, domain.ErrInvalidMarket)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────────────────────────────────

// GetByID returns a market with its outcomes.
func (s *MarketService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Market, error) {
	return s.marketRepo.GetByID(ctx, id)
}

// GetSummary returns the lightweight market view with current spot prices.
func (s *MarketService) GetSummary(ctx context.Context, id uuid.UUID) (*domain.MarketSummary, error) {
	market, err := s.marketRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	summary := s.Summarize(market)
	return &summary, nil
}

// Summarize builds a summary with per-outcome spot prices off the curve.
func (s *MarketService) Summarize(market *domain.Market) domain.MarketSummary {
	prices := make([]decimal.Decimal, len(market.Outcomes))
	for i, o := range market.Outcomes {
		price, err := s.engine.Curve().Spot(o.SharesIssued)
		if err != nil {
			// issuance can equal total supply; spot is undefined there
			price = decimal.Zero
		}
		prices[i] = price
	}
	return market.ToSummary(s.engine.Now(), prices)
}

// OpenSummaries returns summaries with spot prices for every open market
// (the scheduler broadcasts these as the periodic curve snapshot).
func (s *MarketService) OpenSummaries(ctx context.Context) ([]*domain.MarketSummary, error) {
	markets, err := s.marketRepo.GetOpen(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]*domain.MarketSummary, len(markets))
	for i, m := range markets {
		summary := s.Summarize(m)
		summaries[i] = &summary
	}
	return summaries, nil
}

// List returns paginated markets with an optional status filter.
func (s *MarketService) List(ctx context.Context, limit, offset int, status string) ([]*domain.Market, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.marketRepo.List(ctx, limit, offset, status)
}

// History returns settled markets, newest resolution first.
func (s *MarketService) History(ctx context.Context, limit, offset int) ([]*domain.Market, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.marketRepo.GetHistory(ctx, limit, offset)
}

// ──────────────────────────────────────────────────────────────────────────────
// Internals
// ──────────────────────────────────────────────────────────────────────────────

func (s *MarketService) postCreatedAsync(market *domain.Market) {
	if s.broadcaster == nil {
		return
	}
	summary := s.Summarize(market)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("market created broadcast panicked", "panic", r, "market_id", market.ID)
			}
		}()
		s.broadcaster.BroadcastMarketCreated(&summary)
	}()
}
