package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/evetabi/curvemarket/internal/domain"
)

// WalletRepository handles all database operations for Wallets and Transactions.
type WalletRepository struct {
	db *sqlx.DB
}

// NewWalletRepository creates a new WalletRepository.
func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Create inserts a new wallet row (called on registration).
func (r *WalletRepository) Create(ctx context.Context, w *domain.Wallet) error {
	query := `
		INSERT INTO wallets (id, user_id, wallet_type, balance, created_at, updated_at)
		VALUES (:id, :user_id, :wallet_type, :balance, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, w); err != nil {
		return fmt.Errorf("wallet_repo.Create: %w", err)
	}
	return nil
}

// GetByUserID fetches the wallet belonging to a specific user.
func (r *WalletRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	var w domain.Wallet
	err := r.db.GetContext(ctx, &w, `SELECT * FROM wallets WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("wallet_repo.GetByUserID: %w", err)
	}
	return &w, nil
}

// GetTreasuryWallet fetches the protocol treasury wallet (wallet_type='treasury').
func (r *WalletRepository) GetTreasuryWallet(ctx context.Context) (*domain.Wallet, error) {
	var w domain.Wallet
	err := r.db.GetContext(ctx, &w, `SELECT * FROM wallets WHERE wallet_type = 'treasury'`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("wallet_repo.GetTreasuryWallet: %w", err)
	}
	return &w, nil
}

// DeductBalance subtracts amount from a user's balance inside a transaction.
// Uses FOR UPDATE to prevent races; returns ErrInsufficientBalance when the
// balance would go negative.
func (r *WalletRepository) DeductBalance(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount decimal.Decimal) error {
	var balance decimal.Decimal
	err := tx.GetContext(ctx, &balance,
		`SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE`,
		userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrWalletNotFound
		}
		return fmt.Errorf("wallet_repo.DeductBalance lock: %w", err)
	}

	if balance.LessThan(amount) {
		return domain.ErrInsufficientBalance
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE wallets SET balance = balance - $1, updated_at = now() WHERE user_id = $2`,
		amount, userID)
	if err != nil {
		return fmt.Errorf("wallet_repo.DeductBalance update: %w", err)
	}
	return nil
}

// AddBalance credits amount to a user's wallet inside a transaction.
func (r *WalletRepository) AddBalance(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE wallets SET balance = balance + $1, updated_at = now() WHERE user_id = $2`,
		amount, userID)
	if err != nil {
		return fmt.Errorf("wallet_repo.AddBalance: %w", err)
	}
	return nil
}

// AddTreasuryBalance credits the protocol treasury wallet inside a transaction.
func (r *WalletRepository) AddTreasuryBalance(ctx context.Context, tx *sqlx.Tx, amount decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE wallets SET balance = balance + $1, updated_at = now() WHERE wallet_type = 'treasury'`,
		amount)
	if err != nil {
		return fmt.Errorf("wallet_repo.AddTreasuryBalance: %w", err)
	}
	return nil
}

// LogTransaction inserts an audit record into wallet_transactions inside a transaction.
func (r *WalletRepository) LogTransaction(ctx context.Context, tx *sqlx.Tx, txn *domain.Transaction) error {
	query := `
		INSERT INTO wallet_transactions
			(id, wallet_id, type, amount, balance_before, balance_after, ref_id, description, created_at)
		VALUES
			(:id, :wallet_id, :type, :amount, :balance_before, :balance_after, :ref_id, :description, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, txn); err != nil {
		return fmt.Errorf("wallet_repo.LogTransaction: %w", err)
	}
	return nil
}

// GetTransactions returns paginated transaction history for a user's wallet.
func (r *WalletRepository) GetTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	var txns []*domain.Transaction
	err := r.db.SelectContext(ctx, &txns, `
		SELECT wt.*
		FROM wallet_transactions wt
		JOIN wallets w ON w.id = wt.wallet_id
		WHERE w.user_id = $1
		ORDER BY wt.created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("wallet_repo.GetTransactions: %w", err)
	}
	return txns, nil
}

// GetTreasuryIncome sums treasury credits by transaction type for a date range
// (finance report).
func (r *WalletRepository) GetTreasuryIncome(ctx context.Context, from, to time.Time) (map[string]decimal.Decimal, error) {
	type row struct {
		Type  string          `db:"type"`
		Total decimal.Decimal `db:"total"`
	}
	var rows []row
	err := r.db.SelectContext(ctx, &rows, `
		SELECT wt.type, COALESCE(SUM(wt.amount), 0) AS total
		FROM wallet_transactions wt
		JOIN wallets w ON w.id = wt.wallet_id
		WHERE w.wallet_type = 'treasury'
		  AND wt.created_at >= $1 AND wt.created_at < $2
		GROUP BY wt.type`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("wallet_repo.GetTreasuryIncome: %w", err)
	}
	income := make(map[string]decimal.Decimal, len(rows))
	for _, rw := range rows {
		income[rw.Type] = rw.Total
	}
	return income, nil
}
