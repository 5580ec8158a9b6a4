package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// ProtocolState
// ──────────────────────────────────────────────────────────────────────────────

// ProtocolState is the single-row protocol configuration: which account may
// resolve markets and which account collects the protocol's fee share.
type ProtocolState struct {
	AuthorityID uuid.UUID `json:"authority_id" db:"authority_id"`
	TreasuryID  uuid.UUID `json:"treasury_id"  db:"treasury_id"`
	UpdatedAt   time.Time `json:"updated_at"   db:"updated_at"`
}

// IsAuthority reports whether the given user may resolve markets.
func (p *ProtocolState) IsAuthority(userID uuid.UUID) bool {
	return p.AuthorityID == userID
}

// ResolveReceipt records the outcome of a market resolution: which outcome
// won, how much the 2% resolution fee took, and the pool winners will share.
type ResolveReceipt struct {
	MarketID       uuid.UUID       `json:"market_id"`
	WinningOutcome int             `json:"winning_outcome"`
	ResolutionFee  decimal.Decimal `json:"resolution_fee"`
	WinnerPool     decimal.Decimal `json:"winner_pool"`
	ResolvedAt     time.Time       `json:"resolved_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Fee ledger
// ──────────────────────────────────────────────────────────────────────────────

// FeeSource identifies which operation produced a fee ledger row.
type FeeSource string

const (
	FeeSourceTrade      FeeSource = "trade"      // buy/sell trading fee
	FeeSourceResolution FeeSource = "resolution" // 2% of the net pool at resolution
	FeeSourceCreation   FeeSource = "creation"   // flat market creation fee
)

// FeeEntry is an immutable fee ledger row. TreasuryAmount + CreatorAmount is
// the full fee taken by the operation that produced the row.
type FeeEntry struct {
	ID             uuid.UUID       `json:"id"              db:"id"`
	MarketID       uuid.UUID       `json:"market_id"       db:"market_id"`
	UserID         uuid.UUID       `json:"user_id"         db:"user_id"`
	Source         FeeSource       `json:"source"          db:"source"`
	TreasuryAmount decimal.Decimal `json:"treasury_amount" db:"treasury_amount"`
	CreatorAmount  decimal.Decimal `json:"creator_amount"  db:"creator_amount"`
	RecordedAt     time.Time       `json:"recorded_at"     db:"recorded_at"`
}

// Total returns the full fee the entry records.
func (f *FeeEntry) Total() decimal.Decimal {
	return f.TreasuryAmount.Add(f.CreatorAmount)
}
