package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/evetabi/curvemarket/internal/domain"
)

// MarketRepository handles all database operations for Markets and their
// per-outcome share ledgers.
type MarketRepository struct {
	db *sqlx.DB
}

// NewMarketRepository creates a new MarketRepository.
func NewMarketRepository(db *sqlx.DB) *MarketRepository {
	return &MarketRepository{db: db}
}

// Create inserts a market and its outcome rows atomically. The market id is
// derived from (creator, title), so a duplicate creation attempt violates the
// primary key and surfaces as ErrMarketExists.
func (r *MarketRepository) Create(ctx context.Context, m *domain.Market) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("market_repo.Create begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = r.CreateTx(ctx, tx, m); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("market_repo.Create commit: %w", err)
	}
	return nil
}

// CreateTx inserts a market and its outcome rows inside an existing
// transaction, so the caller can make the creation fee atomic with the insert.
func (r *MarketRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, m *domain.Market) error {
	query := `
		INSERT INTO markets
			(id, creator_id, title, description, status, vault_balance,
			 creator_fees_claimable, last_trade_slot, end_time, created_at, updated_at)
		VALUES
			(:id, :creator_id, :title, :description, :status, :vault_balance,
			 :creator_fees_claimable, :last_trade_slot, :end_time, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, m); err != nil {
		if isPgUniqueViolation(err, "markets_pkey") {
			return domain.ErrMarketExists
		}
		return fmt.Errorf("market_repo.CreateTx market: %w", err)
	}

	for i := range m.Outcomes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO market_outcomes (market_id, outcome_index, label, shares_issued)
			VALUES ($1, $2, $3, $4)`,
			m.ID, m.Outcomes[i].Index, m.Outcomes[i].Label, m.Outcomes[i].SharesIssued); err != nil {
			return fmt.Errorf("market_repo.CreateTx outcome %d: %w", i, err)
		}
	}
	return nil
}

// GetByID fetches a market with its outcomes, without locking.
func (r *MarketRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Market, error) {
	var m domain.Market
	err := r.db.GetContext(ctx, &m, `SELECT * FROM markets WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMarketNotFound
		}
		return nil, fmt.Errorf("market_repo.GetByID: %w", err)
	}
	if err := r.loadOutcomes(ctx, r.db, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetByIDForUpdate fetches a market inside tx with its row locked FOR UPDATE.
// Every money-moving operation goes through this lock, which serialises all
// trades, claims, and the resolution of one market while leaving other
// markets fully parallel.
func (r *MarketRepository) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*domain.Market, error) {
	var m domain.Market
	err := tx.GetContext(ctx, &m, `SELECT * FROM markets WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMarketNotFound
		}
		return nil, fmt.Errorf("market_repo.GetByIDForUpdate: %w", err)
	}
	if err := r.loadOutcomes(ctx, tx, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// SaveTradeState persists a market's post-trade balances and the traded
// outcome's issuance inside an existing transaction.
func (r *MarketRepository) SaveTradeState(ctx context.Context, tx *sqlx.Tx, m *domain.Market, outcomeIndex int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE markets
		SET vault_balance          = $1,
		    creator_fees_claimable = $2,
		    last_trade_slot        = $3,
		    updated_at             = now()
		WHERE id = $4`,
		m.VaultBalance, m.CreatorFeesClaimable, m.LastTradeSlot, m.ID)
	if err != nil {
		return fmt.Errorf("market_repo.SaveTradeState market: %w", err)
	}

	out := m.Outcome(outcomeIndex)
	_, err = tx.ExecContext(ctx, `
		UPDATE market_outcomes
		SET shares_issued = $1
		WHERE market_id = $2 AND outcome_index = $3`,
		out.SharesIssued, m.ID, outcomeIndex)
	if err != nil {
		return fmt.Errorf("market_repo.SaveTradeState outcome: %w", err)
	}
	return nil
}

// SaveResolution persists the settlement decided by the engine.
func (r *MarketRepository) SaveResolution(ctx context.Context, tx *sqlx.Tx, m *domain.Market) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE markets
		SET status          = $1,
		    winning_outcome = $2,
		    winner_pool     = $3,
		    vault_balance   = $4,
		    resolved_at     = $5,
		    updated_at      = now()
		WHERE id = $6 AND status = 'open'`,
		string(m.Status), m.WinningOutcome, m.WinnerPool, m.VaultBalance, m.ResolvedAt, m.ID)
	if err != nil {
		return fmt.Errorf("market_repo.SaveResolution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMarketAlreadyResolved
	}
	return nil
}

// SaveVault persists vault and creator-fee balances after a claim or a
// creator fee payout inside an existing transaction.
func (r *MarketRepository) SaveVault(ctx context.Context, tx *sqlx.Tx, m *domain.Market) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE markets
		SET vault_balance          = $1,
		    creator_fees_claimable = $2,
		    updated_at             = now()
		WHERE id = $3`,
		m.VaultBalance, m.CreatorFeesClaimable, m.ID)
	if err != nil {
		return fmt.Errorf("market_repo.SaveVault: %w", err)
	}
	return nil
}

// Close archives a resolved market.
func (r *MarketRepository) Close(ctx context.Context, m *domain.Market) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE markets
		SET status     = 'closed',
		    closed_at  = $1,
		    updated_at = now()
		WHERE id = $2 AND status = 'resolved'`,
		m.ClosedAt, m.ID)
	if err != nil {
		return fmt.Errorf("market_repo.Close: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMarketNotResolved
	}
	return nil
}

// List returns a paginated slice of markets filtered by optional status.
// status="" returns all statuses.
// Returns (markets, totalCount, error).
func (r *MarketRepository) List(ctx context.Context, limit, offset int, status string) ([]*domain.Market, int, error) {
	var markets []*domain.Market
	var total int

	if status != "" {
		if err := r.db.GetContext(ctx, &total,
			`SELECT COUNT(*) FROM markets WHERE status = $1`, status); err != nil {
			return nil, 0, fmt.Errorf("market_repo.List count: %w", err)
		}
		if err := r.db.SelectContext(ctx, &markets,
			`SELECT * FROM markets WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			status, limit, offset); err != nil {
			return nil, 0, fmt.Errorf("market_repo.List select: %w", err)
		}
	} else {
		if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM markets`); err != nil {
			return nil, 0, fmt.Errorf("market_repo.List count: %w", err)
		}
		if err := r.db.SelectContext(ctx, &markets,
			`SELECT * FROM markets ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			limit, offset); err != nil {
			return nil, 0, fmt.Errorf("market_repo.List select: %w", err)
		}
	}

	if err := r.loadOutcomesBulk(ctx, markets); err != nil {
		return nil, 0, err
	}
	return markets, total, nil
}

// GetHistory returns settled markets in descending resolution order.
func (r *MarketRepository) GetHistory(ctx context.Context, limit, offset int) ([]*domain.Market, error) {
	var markets []*domain.Market
	err := r.db.SelectContext(ctx, &markets,
		`SELECT * FROM markets
		 WHERE status IN ('resolved','closed')
		 ORDER BY resolved_at DESC
		 LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("market_repo.GetHistory: %w", err)
	}
	if err := r.loadOutcomesBulk(ctx, markets); err != nil {
		return nil, err
	}
	return markets, nil
}

// GetOpen returns all currently open markets (for curve snapshot broadcasts).
func (r *MarketRepository) GetOpen(ctx context.Context) ([]*domain.Market, error) {
	var markets []*domain.Market
	err := r.db.SelectContext(ctx, &markets,
		`SELECT * FROM markets WHERE status = 'open' ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("market_repo.GetOpen: %w", err)
	}
	if err := r.loadOutcomesBulk(ctx, markets); err != nil {
		return nil, err
	}
	return markets, nil
}

// GetResolvedBefore returns resolved markets whose resolution happened at or
// before the cutoff (i.e. due for the close sweep).
func (r *MarketRepository) GetResolvedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Market, error) {
	var markets []*domain.Market
	err := r.db.SelectContext(ctx, &markets,
		`SELECT * FROM markets WHERE status = 'resolved' AND resolved_at <= $1 ORDER BY resolved_at ASC`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("market_repo.GetResolvedBefore: %w", err)
	}
	if err := r.loadOutcomesBulk(ctx, markets); err != nil {
		return nil, err
	}
	return markets, nil
}

// CountByStatus returns market counts per lifecycle state (dashboard).
func (r *MarketRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	type row struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	var rows []row
	err := r.db.SelectContext(ctx, &rows,
		`SELECT status, COUNT(*) AS count FROM markets GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("market_repo.CountByStatus: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Outcome loading
// ──────────────────────────────────────────────────────────────────────────────

// loadOutcomes attaches the outcome ledger to a single market. q is either
// the pool or an open transaction.
func (r *MarketRepository) loadOutcomes(ctx context.Context, q sqlx.QueryerContext, m *domain.Market) error {
	err := sqlx.SelectContext(ctx, q, &m.Outcomes, `
		SELECT outcome_index, label, shares_issued
		FROM market_outcomes
		WHERE market_id = $1
		ORDER BY outcome_index ASC`, m.ID)
	if err != nil {
		return fmt.Errorf("market_repo.loadOutcomes: %w", err)
	}
	return nil
}

// loadOutcomesBulk attaches outcomes to many markets with a single query.
func (r *MarketRepository) loadOutcomesBulk(ctx context.Context, markets []*domain.Market) error {
	if len(markets) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(markets))
	byID := make(map[uuid.UUID]*domain.Market, len(markets))
	for i, m := range markets {
		ids[i] = m.ID
		byID[m.ID] = m
	}

	query, args, err := sqlx.In(`
		SELECT market_id, outcome_index, label, shares_issued
		FROM market_outcomes
		WHERE market_id IN (?)
		ORDER BY market_id, outcome_index ASC`, ids)
	if err != nil {
		return fmt.Errorf("market_repo.loadOutcomesBulk in: %w", err)
	}

	type row struct {
		MarketID uuid.UUID `db:"market_id"`
		domain.OutcomeState
	}
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("market_repo.loadOutcomesBulk select: %w", err)
	}
	for _, rw := range rows {
		m := byID[rw.MarketID]
		m.Outcomes = append(m.Outcomes, rw.OutcomeState)
	}
	return nil
}
