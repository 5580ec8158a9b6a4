package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/evetabi/curvemarket/internal/domain"
)

// FeeRepository handles the immutable fee ledger.
type FeeRepository struct {
	db *sqlx.DB
}

// NewFeeRepository creates a new FeeRepository.
func NewFeeRepository(db *sqlx.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

// Record inserts a fee ledger row inside a transaction. Entries with a zero
// total are skipped (dust trades, treasury-created markets' creator half).
func (r *FeeRepository) Record(ctx context.Context, tx *sqlx.Tx, entry *domain.FeeEntry) error {
	if entry.Total().IsZero() {
		return nil
	}
	query := `
		INSERT INTO fee_ledger
			(id, market_id, user_id, source, treasury_amount, creator_amount, recorded_at)
		VALUES
			(:id, :market_id, :user_id, :source, :treasury_amount, :creator_amount, :recorded_at)`
	if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("fee_repo.Record: %w", err)
	}
	return nil
}

// FeeReport aggregates ledger totals per source for a date range.
type FeeReport struct {
	From          time.Time                  `json:"from"`
	To            time.Time                  `json:"to"`
	TreasuryTotal decimal.Decimal            `json:"treasury_total"`
	CreatorTotal  decimal.Decimal            `json:"creator_total"`
	BySource      map[string]decimal.Decimal `json:"by_source"`
	EntryCount    int                        `json:"entry_count"`
}

// Report sums the fee ledger for a date range, split by source.
func (r *FeeRepository) Report(ctx context.Context, from, to time.Time) (*FeeReport, error) {
	type row struct {
		Source   string          `db:"source"`
		Treasury decimal.Decimal `db:"treasury"`
		Creator  decimal.Decimal `db:"creator"`
		Count    int             `db:"count"`
	}
	var rows []row
	err := r.db.SelectContext(ctx, &rows, `
		SELECT source,
		       COALESCE(SUM(treasury_amount), 0) AS treasury,
		       COALESCE(SUM(creator_amount), 0)  AS creator,
		       COUNT(*)                          AS count
		FROM fee_ledger
		WHERE recorded_at >= $1 AND recorded_at < $2
		GROUP BY source`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("fee_repo.Report: %w", err)
	}

	report := &FeeReport{
		From:          from,
		To:            to,
		TreasuryTotal: decimal.Zero,
		CreatorTotal:  decimal.Zero,
		BySource:      make(map[string]decimal.Decimal, len(rows)),
	}
	for _, rw := range rows {
		report.TreasuryTotal = report.TreasuryTotal.Add(rw.Treasury)
		report.CreatorTotal = report.CreatorTotal.Add(rw.Creator)
		report.BySource[rw.Source] = rw.Treasury.Add(rw.Creator)
		report.EntryCount += rw.Count
	}
	return report, nil
}

// MarketFees sums the fees one market has produced (market detail view).
func (r *FeeRepository) MarketFees(ctx context.Context, marketID uuid.UUID) (treasury, creator decimal.Decimal, err error) {
	type row struct {
		Treasury decimal.Decimal `db:"treasury"`
		Creator  decimal.Decimal `db:"creator"`
	}
	var rw row
	err = r.db.GetContext(ctx, &rw, `
		SELECT COALESCE(SUM(treasury_amount), 0) AS treasury,
		       COALESCE(SUM(creator_amount), 0)  AS creator
		FROM fee_ledger
		WHERE market_id = $1`,
		marketID)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("fee_repo.MarketFees: %w", err)
	}
	return rw.Treasury, rw.Creator, nil
}
