package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/evetabi/curvemarket/internal/domain"
)

// Broadcaster pushes realtime events to connected WebSocket clients. The hub
// implements it; services hold a nil-safe reference injected after startup.
type Broadcaster interface {
	BroadcastMarketCreated(market *domain.MarketSummary)
	BroadcastTradeExecuted(receipt *domain.TradeReceipt)
	BroadcastMarketResolved(receipt *domain.ResolveReceipt)
	BroadcastRewardClaimed(receipt *domain.ClaimReceipt)
	BroadcastCurveSnapshot(markets []*domain.MarketSummary)
}

// logUserTxn writes a wallet audit row inside tx. delta is the signed balance
// change already applied by the caller; the row records the balance before and
// after from the transaction's own view of the wallet.
func logUserTxn(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, typ domain.TxType, delta decimal.Decimal, refID *uuid.UUID, description string) error {
	var w struct {
		ID      uuid.UUID       `db:"id"`
		Balance decimal.Decimal `db:"balance"`
	}
	if err := tx.GetContext(ctx, &w,
		`SELECT id, balance FROM wallets WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("logUserTxn wallet: %w", err)
	}

	txn := &domain.Transaction{
		ID:            uuid.New(),
		WalletID:      w.ID,
		Type:          typ,
		Amount:        delta.Abs(),
		BalanceBefore: w.Balance.Sub(delta),
		BalanceAfter:  w.Balance,
		RefID:         refID,
		Description:   description,
		CreatedAt:     time.Now().UTC(),
	}
	query := `
		INSERT INTO wallet_transactions
			(id, wallet_id, type, amount, balance_before, balance_after, ref_id, description, created_at)
		VALUES
			(:id, :wallet_id, :type, :amount, :balance_before, :balance_after, :ref_id, :description, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, txn); err != nil {
		return fmt.Errorf("logUserTxn insert: %w", err)
	}
	return nil
}

// logTreasuryTxn mirrors logUserTxn for the protocol treasury wallet.
func logTreasuryTxn(ctx context.Context, tx *sqlx.Tx, typ domain.TxType, delta decimal.Decimal, refID *uuid.UUID, description string) error {
	var w struct {
		ID      uuid.UUID       `db:"id"`
		Balance decimal.Decimal `db:"balance"`
	}
	if err := tx.GetContext(ctx, &w,
		`SELECT id, balance FROM wallets WHERE wallet_type = 'treasury'`); err != nil {
		return fmt.Errorf("logTreasuryTxn wallet: %w", err)
	}

	txn := &domain.Transaction{
		ID:            uuid.New(),
		WalletID:      w.ID,
		Type:          typ,
		Amount:        delta.Abs(),
		BalanceBefore: w.Balance.Sub(delta),
		BalanceAfter:  w.Balance,
		RefID:         refID,
		Description:   description,
		CreatedAt:     time.Now().UTC(),
	}
	query := `
		INSERT INTO wallet_transactions
			(id, wallet_id, type, amount, balance_before, balance_after, ref_id, description, created_at)
		VALUES
			(:id, :wallet_id, :type, :amount, :balance_before, :balance_after, :ref_id, :description, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, txn); err != nil {
		return fmt.Errorf("logTreasuryTxn insert: %w", err)
	}
	return nil
}
