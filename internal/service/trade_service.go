package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/evetabi/curvemarket/internal/domain"
	"github.com/evetabi/curvemarket/internal/engine"
	"github.com/evetabi/curvemarket/internal/repository"
)

// TradeService orchestrates buys and sells: it locks the market row, runs the
// engine against the loaded state, and persists every side effect in one
// atomic transaction. The market lock is always taken first, then the
// position, then the wallet, so concurrent trades cannot deadlock.
type TradeService struct {
	db           *sqlx.DB
	marketRepo   *repository.MarketRepository
	positionRepo *repository.PositionRepository
	walletRepo   *repository.WalletRepository
	feeRepo      *repository.FeeRepository
	protocolRepo *repository.ProtocolRepository
	engine       *engine.Engine
	broadcaster  Broadcaster
}

// NewTradeService creates a TradeService.
func NewTradeService(
	db *sqlx.DB,
	marketRepo *repository.MarketRepository,
	positionRepo *repository.PositionRepository,
	walletRepo *repository.WalletRepository,
	feeRepo *repository.FeeRepository,
	protocolRepo *repository.ProtocolRepository,
	eng *engine.Engine,
) *TradeService {
	return &TradeService{
		db:           db,
		marketRepo:   marketRepo,
		positionRepo: positionRepo,
		walletRepo:   walletRepo,
		feeRepo:      feeRepo,
		protocolRepo: protocolRepo,
		engine:       eng,
	}
}

// SetBroadcaster injects the WebSocket hub after construction (the hub needs
// services to exist first, so the dependency cycle is broken here).
func (s *TradeService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// ──────────────────────────────────────────────────────────────────────────────
// Buy
// ──────────────────────────────────────────────────────────────────────────────

// Buy purchases outcome shares with a fee-inclusive collateral amount.
func (s *TradeService) Buy(ctx context.Context, req domain.BuyRequest) (*domain.TradeReceipt, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("trade_service.Buy begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// ── 1. Lock the market row; this serialises all activity on one market
	market, err := s.marketRepo.GetByIDForUpdate(ctx, tx, req.MarketID)
	if err != nil {
		return nil, err
	}

	// ── 2. Lock (or create) the trader's position
	pos, err := s.positionRepo.GetOrCreateForUpdate(ctx, tx, req.UserID, req.MarketID, len(market.Outcomes))
	if err != nil {
		return nil, err
	}

	// ── 3. Protocol state for the fee split
	proto, err := s.protocolRepo.Get(ctx)
	if err != nil {
		return nil, err
	}

	// ── 4. Run the engine against the loaded state
	receipt, err := s.engine.Buy(market, pos, proto, req)
	if err != nil {
		return nil, err
	}

	// ── 5. Dust budget: nothing was charged or issued, commit and return
	if receipt.Shares.IsZero() {
		if err = tx.Commit(); err != nil {
			return nil, fmt.Errorf("trade_service.Buy commit: %w", err)
		}
		return receipt, nil
	}

	// ── 6. Move the money: debit trader, credit treasury its fee share
	if err = s.walletRepo.DeductBalance(ctx, tx, req.UserID, receipt.Gross); err != nil {
		return nil, err
	}
	if receipt.TreasuryFee.IsPositive() {
		if err = s.walletRepo.AddTreasuryBalance(ctx, tx, receipt.TreasuryFee); err != nil {
			return nil, err
		}
	}

	// ── 7. Persist market, outcome ledger, and position
	if err = s.marketRepo.SaveTradeState(ctx, tx, market, req.Outcome); err != nil {
		return nil, err
	}
	if err = s.positionRepo.Save(ctx, tx, pos); err != nil {
		return nil, err
	}

	// ── 8. Fee ledger and wallet audit trail
	if err = s.recordTradeFees(ctx, tx, market, receipt); err != nil {
		return nil, err
	}
	desc := fmt.Sprintf("Buy %s shares of outcome %d", receipt.Shares, receipt.Outcome)
	if err = logUserTxn(ctx, tx, req.UserID, domain.TxBuy, receipt.Gross.Neg(), &market.ID, desc); err != nil {
		return nil, err
	}
	if receipt.TreasuryFee.IsPositive() {
		if err = logTreasuryTxn(ctx, tx, domain.TxProtocolFee, receipt.TreasuryFee, &market.ID, "Trade fee share"); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("trade_service.Buy commit: %w", err)
	}

	s.postTradeAsync(receipt)
	return receipt, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Sell
// ──────────────────────────────────────────────────────────────────────────────

// Sell burns whole shares back into the curve and credits the net proceeds.
func (s *TradeService) Sell(ctx context.Context, req domain.SellRequest) (*domain.TradeReceipt, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("trade_service.Sell begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// ── 1. Lock the market row
	market, err := s.marketRepo.GetByIDForUpdate(ctx, tx, req.MarketID)
	if err != nil {
		return nil, err
	}

	// ── 2. Lock the position; a user who never traded has nothing to sell
	pos, err := s.positionRepo.GetForUpdate(ctx, tx, req.UserID, req.MarketID)
	if err != nil {
		if errors.Is(err, domain.ErrPositionNotFound) {
			return nil, domain.ErrInsufficientShares
		}
		return nil, err
	}

	// ── 3. Protocol state for the fee split
	proto, err := s.protocolRepo.Get(ctx)
	if err != nil {
		return nil, err
	}

	// ── 4. Run the engine
	receipt, err := s.engine.Sell(market, pos, proto, req)
	if err != nil {
		return nil, err
	}

	// ── 5. Move the money: credit seller, credit treasury its fee share
	if err = s.walletRepo.AddBalance(ctx, tx, req.UserID, receipt.Net); err != nil {
		return nil, err
	}
	if receipt.TreasuryFee.IsPositive() {
		if err = s.walletRepo.AddTreasuryBalance(ctx, tx, receipt.TreasuryFee); err != nil {
			return nil, err
		}
	}

	// ── 6. Persist market, outcome ledger, and position
	if err = s.marketRepo.SaveTradeState(ctx, tx, market, req.Outcome); err != nil {
		return nil, err
	}
	if err = s.positionRepo.Save(ctx, tx, pos); err != nil {
		return nil, err
	}

	// ── 7. Fee ledger and wallet audit trail
	if err = s.recordTradeFees(ctx, tx, market, receipt); err != nil {
		return nil, err
	}
	desc := fmt.Sprintf("Sell %s shares of outcome %d", receipt.Shares, receipt.Outcome)
	if err = logUserTxn(ctx, tx, req.UserID, domain.TxSell, receipt.Net, &market.ID, desc); err != nil {
		return nil, err
	}
	if receipt.TreasuryFee.IsPositive() {
		if err = logTreasuryTxn(ctx, tx, domain.TxProtocolFee, receipt.TreasuryFee, &market.ID, "Trade fee share"); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("trade_service.Sell commit: %w", err)
	}

	s.postTradeAsync(receipt)
	return receipt, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Quotes
// ──────────────────────────────────────────────────────────────────────────────

// QuoteBuy prices a prospective buy without locking or mutating anything.
// Concurrent trades can change the real execution, so the quote is advisory.
func (s *TradeService) QuoteBuy(ctx context.Context, req domain.BuyRequest) (*domain.TradeReceipt, error) {
	market, pos, proto, err := s.loadQuoteState(ctx, req.UserID, req.MarketID)
	if err != nil {
		return nil, err
	}
	return s.engine.QuoteBuy(market, pos, proto, req)
}

// QuoteSell prices a prospective sell without locking or mutating anything.
func (s *TradeService) QuoteSell(ctx context.Context, req domain.SellRequest) (*domain.TradeReceipt, error) {
	market, pos, proto, err := s.loadQuoteState(ctx, req.UserID, req.MarketID)
	if err != nil {
		return nil, err
	}
	return s.engine.QuoteSell(market, pos, proto, req)
}

func (s *TradeService) loadQuoteState(ctx context.Context, userID, marketID uuid.UUID) (*domain.Market, *domain.UserPosition, *domain.ProtocolState, error) {
	market, err := s.marketRepo.GetByID(ctx, marketID)
	if err != nil {
		return nil, nil, nil, err
	}
	pos, err := s.positionRepo.GetByUserAndMarket(ctx, userID, marketID)
	if err != nil {
		if !errors.Is(err, domain.ErrPositionNotFound) {
			return nil, nil, nil, err
		}
		pos = domain.NewPosition(userID, marketID, len(market.Outcomes))
	}
	proto, err := s.protocolRepo.Get(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	return market, pos, proto, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Positions
// ──────────────────────────────────────────────────────────────────────────────

// Positions returns a user's positions across all markets, newest first.
func (s *TradeService) Positions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.UserPosition, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.positionRepo.ListByUser(ctx, userID, limit, offset)
}

// Position returns a user's position in one market.
func (s *TradeService) Position(ctx context.Context, userID, marketID uuid.UUID) (*domain.UserPosition, error) {
	return s.positionRepo.GetByUserAndMarket(ctx, userID, marketID)
}

// ──────────────────────────────────────────────────────────────────────────────
// Internals
// ──────────────────────────────────────────────────────────────────────────────

// recordTradeFees writes the trade's fee split to the immutable fee ledger.
func (s *TradeService) recordTradeFees(ctx context.Context, tx *sqlx.Tx, market *domain.Market, receipt *domain.TradeReceipt) error {
	entry := &domain.FeeEntry{
		ID:             uuid.New(),
		MarketID:       market.ID,
		UserID:         receipt.UserID,
		Source:         domain.FeeSourceTrade,
		TreasuryAmount: receipt.TreasuryFee,
		CreatorAmount:  receipt.CreatorFee,
		RecordedAt:     receipt.ExecutedAt,
	}
	return s.feeRepo.Record(ctx, tx, entry)
}

// postTradeAsync fans the trade event out to WebSocket clients after commit.
// Broadcast failures never affect the already committed trade.
func (s *TradeService) postTradeAsync(receipt *domain.TradeReceipt) {
	if s.broadcaster == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("trade broadcast panicked", "panic", r, "market_id", receipt.MarketID)
			}
		}()
		s.broadcaster.BroadcastTradeExecuted(receipt)
	}()
}
