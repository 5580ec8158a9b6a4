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

// PositionRepository handles all database operations for UserPositions and
// their per-outcome share rows.
type PositionRepository struct {
	db *sqlx.DB
}

// NewPositionRepository creates a new PositionRepository.
func NewPositionRepository(db *sqlx.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// GetOrCreateForUpdate fetches the (user, market) position with its row
// locked, creating an empty one if none exists yet. Must run inside the same
// transaction that holds the market lock; the market lock is always taken
// first, so the lock order is fixed and deadlock-free.
func (r *PositionRepository) GetOrCreateForUpdate(ctx context.Context, tx *sqlx.Tx, userID, marketID uuid.UUID, outcomeCount int) (*domain.UserPosition, error) {
	pos, err := r.getForUpdate(ctx, tx, userID, marketID)
	if err == nil {
		return pos, nil
	}
	if !errors.Is(err, domain.ErrPositionNotFound) {
		return nil, err
	}

	pos = domain.NewPosition(userID, marketID, outcomeCount)
	now := time.Now().UTC()
	pos.CreatedAt, pos.UpdatedAt = now, now

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO positions
			(id, user_id, market_id, invested, withdrawn, last_trade_slot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		pos.ID, pos.UserID, pos.MarketID, pos.Invested, pos.Withdrawn,
		pos.LastTradeSlot, pos.CreatedAt, pos.UpdatedAt); err != nil {
		return nil, fmt.Errorf("position_repo.GetOrCreateForUpdate insert: %w", err)
	}
	for i := range pos.Shares {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO position_shares (position_id, outcome_index, shares)
			VALUES ($1, $2, $3)`,
			pos.ID, i, pos.Shares[i]); err != nil {
			return nil, fmt.Errorf("position_repo.GetOrCreateForUpdate shares: %w", err)
		}
	}
	return pos, nil
}

// GetForUpdate fetches a locked position, returning ErrPositionNotFound when
// the user never traded this market.
func (r *PositionRepository) GetForUpdate(ctx context.Context, tx *sqlx.Tx, userID, marketID uuid.UUID) (*domain.UserPosition, error) {
	return r.getForUpdate(ctx, tx, userID, marketID)
}

func (r *PositionRepository) getForUpdate(ctx context.Context, tx *sqlx.Tx, userID, marketID uuid.UUID) (*domain.UserPosition, error) {
	var pos domain.UserPosition
	err := tx.GetContext(ctx, &pos,
		`SELECT * FROM positions WHERE user_id = $1 AND market_id = $2 FOR UPDATE`,
		userID, marketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPositionNotFound
		}
		return nil, fmt.Errorf("position_repo.getForUpdate: %w", err)
	}
	if err := r.loadShares(ctx, tx, &pos); err != nil {
		return nil, err
	}
	return &pos, nil
}

// Save persists a position's balances and share rows inside a transaction.
func (r *PositionRepository) Save(ctx context.Context, tx *sqlx.Tx, pos *domain.UserPosition) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE positions
		SET invested        = $1,
		    withdrawn       = $2,
		    last_trade_slot = $3,
		    claimed_at      = $4,
		    updated_at      = now()
		WHERE id = $5`,
		pos.Invested, pos.Withdrawn, pos.LastTradeSlot, pos.ClaimedAt, pos.ID)
	if err != nil {
		return fmt.Errorf("position_repo.Save position: %w", err)
	}

	for i := range pos.Shares {
		if _, err := tx.ExecContext(ctx, `
			UPDATE position_shares
			SET shares = $1
			WHERE position_id = $2 AND outcome_index = $3`,
			pos.Shares[i], pos.ID, i); err != nil {
			return fmt.Errorf("position_repo.Save shares %d: %w", i, err)
		}
	}
	return nil
}

// GetByUserAndMarket fetches a position without locking (read endpoints).
func (r *PositionRepository) GetByUserAndMarket(ctx context.Context, userID, marketID uuid.UUID) (*domain.UserPosition, error) {
	var pos domain.UserPosition
	err := r.db.GetContext(ctx, &pos,
		`SELECT * FROM positions WHERE user_id = $1 AND market_id = $2`, userID, marketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPositionNotFound
		}
		return nil, fmt.Errorf("position_repo.GetByUserAndMarket: %w", err)
	}
	if err := r.loadShares(ctx, r.db, &pos); err != nil {
		return nil, err
	}
	return &pos, nil
}

// ListByUser returns all of a user's positions, newest first.
func (r *PositionRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.UserPosition, error) {
	var positions []*domain.UserPosition
	err := r.db.SelectContext(ctx, &positions,
		`SELECT * FROM positions WHERE user_id = $1 ORDER BY updated_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("position_repo.ListByUser: %w", err)
	}
	for _, pos := range positions {
		if err := r.loadShares(ctx, r.db, pos); err != nil {
			return nil, err
		}
	}
	return positions, nil
}

// ListHoldersByMarket returns every position holding shares in a market.
// The close sweep uses it to check for unclaimed winnings.
func (r *PositionRepository) ListHoldersByMarket(ctx context.Context, marketID uuid.UUID) ([]*domain.UserPosition, error) {
	var positions []*domain.UserPosition
	err := r.db.SelectContext(ctx, &positions, `
		SELECT DISTINCT p.*
		FROM positions p
		JOIN position_shares ps ON ps.position_id = p.id
		WHERE p.market_id = $1 AND ps.shares > 0
		ORDER BY p.created_at ASC`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("position_repo.ListHoldersByMarket: %w", err)
	}
	for _, pos := range positions {
		if err := r.loadShares(ctx, r.db, pos); err != nil {
			return nil, err
		}
	}
	return positions, nil
}

// loadShares attaches the per-outcome share vector in outcome order.
func (r *PositionRepository) loadShares(ctx context.Context, q sqlx.QueryerContext, pos *domain.UserPosition) error {
	type row struct {
		OutcomeIndex int             `db:"outcome_index"`
		Shares       decimal.Decimal `db:"shares"`
	}
	var rows []row
	err := sqlx.SelectContext(ctx, q, &rows, `
		SELECT outcome_index, shares
		FROM position_shares
		WHERE position_id = $1
		ORDER BY outcome_index ASC`, pos.ID)
	if err != nil {
		return fmt.Errorf("position_repo.loadShares: %w", err)
	}

	size := len(rows)
	if size > 0 {
		size = rows[len(rows)-1].OutcomeIndex + 1
	}
	pos.Shares = make([]decimal.Decimal, size)
	for i := range pos.Shares {
		pos.Shares[i] = decimal.Zero
	}
	for _, rw := range rows {
		pos.Shares[rw.OutcomeIndex] = rw.Shares
	}
	return nil
}
