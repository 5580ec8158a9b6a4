package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/evetabi/curvemarket/internal/domain"
)

// ProtocolRepository handles the single-row protocol state.
type ProtocolRepository struct {
	db *sqlx.DB
}

// NewProtocolRepository creates a new ProtocolRepository.
func NewProtocolRepository(db *sqlx.DB) *ProtocolRepository {
	return &ProtocolRepository{db: db}
}

// Get fetches the protocol state. The row is seeded by migrations, so a
// missing row means the database was never migrated.
func (r *ProtocolRepository) Get(ctx context.Context) (*domain.ProtocolState, error) {
	var p domain.ProtocolState
	err := r.db.GetContext(ctx, &p, `SELECT * FROM protocol_state LIMIT 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("protocol_repo.Get: protocol state not seeded")
		}
		return nil, fmt.Errorf("protocol_repo.Get: %w", err)
	}
	return &p, nil
}

// SetAuthority rotates the resolution authority (back-office operation).
func (r *ProtocolRepository) SetAuthority(ctx context.Context, authorityID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE protocol_state SET authority_id = $1, updated_at = now()`,
		authorityID); err != nil {
		return fmt.Errorf("protocol_repo.SetAuthority: %w", err)
	}
	return nil
}

// SetTreasury rotates the treasury account (back-office operation).
func (r *ProtocolRepository) SetTreasury(ctx context.Context, treasuryID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE protocol_state SET treasury_id = $1, updated_at = now()`,
		treasuryID); err != nil {
		return fmt.Errorf("protocol_repo.SetTreasury: %w", err)
	}
	return nil
}
