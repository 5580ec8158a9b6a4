// Package domain defines the core business entities and types for the
// bonding-curve prediction market system.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	StatusOpen     MarketStatus = "open"     // accepting trades
	StatusResolved MarketStatus = "resolved" // winner determined, claims allowed after timelock
	StatusClosed   MarketStatus = "closed"   // dispute window over, archived
)

// MoneyScale is the number of decimal places stored for currency amounts
// (matching DB DECIMAL(30,12)). All payouts round DOWN to this scale.
const MoneyScale = 12

// marketNamespace is the fixed UUIDv5 namespace for deterministic market ids.
var marketNamespace = uuid.MustParse("7b7f2f3e-1d0a-4c5b-9f6e-2a8d4c1b0e9f")

// DeriveMarketID deterministically derives a market id from its creator and
// title. Two creation attempts with the same (creator, title) pair collide on
// the primary key, which is how duplicate markets are rejected.
func DeriveMarketID(creator uuid.UUID, title string) uuid.UUID {
	name := make([]byte, 0, len(creator)+len(title))
	name = append(name, creator[:]...)
	name = append(name, []byte(title)...)
	return uuid.NewSHA1(marketNamespace, name)
}

// ──────────────────────────────────────────────────────────────────────────────
// OutcomeState
// ──────────────────────────────────────────────────────────────────────────────

// OutcomeState is the per-outcome share ledger of a market. Each outcome has
// its own independent bonding curve position (shares issued so far).
type OutcomeState struct {
	Index        int             `json:"index"          db:"outcome_index"`
	Label        string          `json:"label"          db:"label"`
	SharesIssued decimal.Decimal `json:"shares_issued"  db:"shares_issued"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Market
// ──────────────────────────────────────────────────────────────────────────────

// Market represents a single multi-outcome prediction market backed by
// per-outcome bonding curves and one shared collateral vault.
//
// VaultBalance holds every unit of collateral the market controls, including
// creator fees that have accrued but not yet been claimed; the pool that
// winners share is VaultBalance minus CreatorFeesClaimable.
type Market struct {
	ID                   uuid.UUID        `json:"id"                      db:"id"`
	Creator              uuid.UUID        `json:"creator"                 db:"creator_id"`
	Title                string           `json:"title"                   db:"title"`
	Description          string           `json:"description"             db:"description"`
	Status               MarketStatus     `json:"status"                  db:"status"`
	Outcomes             []OutcomeState   `json:"outcomes"                db:"-"`
	VaultBalance         decimal.Decimal  `json:"vault_balance"           db:"vault_balance"`
	CreatorFeesClaimable decimal.Decimal  `json:"creator_fees_claimable"  db:"creator_fees_claimable"`
	WinningOutcome       *int             `json:"winning_outcome"         db:"winning_outcome"`
	WinnerPool           *decimal.Decimal `json:"winner_pool"             db:"winner_pool"`
	LastTradeSlot        int64            `json:"last_trade_slot"         db:"last_trade_slot"`
	EndTime              time.Time        `json:"end_time"                db:"end_time"`
	ResolvedAt           *time.Time       `json:"resolved_at"             db:"resolved_at"`
	ClosedAt             *time.Time       `json:"closed_at"               db:"closed_at"`
	CreatedAt            time.Time        `json:"created_at"              db:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"              db:"updated_at"`
}

// IsOpen returns true while the market is in the open state.
func (m *Market) IsOpen() bool {
	return m.Status == StatusOpen
}

// IsResolved returns true after the market has been settled.
func (m *Market) IsResolved() bool {
	return m.Status == StatusResolved
}

// TradingOpen returns true when trades are accepted at the given instant:
// the market must be open and its end time must not have passed.
func (m *Market) TradingOpen(now time.Time) bool {
	return m.Status == StatusOpen && now.Before(m.EndTime)
}

// Outcome returns the outcome state at index i, or nil if i is out of range.
func (m *Market) Outcome(i int) *OutcomeState {
	if i < 0 || i >= len(m.Outcomes) {
		return nil
	}
	return &m.Outcomes[i]
}

// NetPool returns the vault value that belongs to traders: everything in the
// vault except the creator's accrued, unclaimed fees.
func (m *Market) NetPool() decimal.Decimal {
	return m.VaultBalance.Sub(m.CreatorFeesClaimable)
}

// TotalSharesIssued returns the sum of shares issued across all outcomes.
func (m *Market) TotalSharesIssued() decimal.Decimal {
	total := decimal.Zero
	for _, o := range m.Outcomes {
		total = total.Add(o.SharesIssued)
	}
	return total
}

// TimeLeft returns the duration remaining until trading ends.
// Returns 0 if the end time has already passed.
func (m *Market) TimeLeft(now time.Time) time.Duration {
	remaining := m.EndTime.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ──────────────────────────────────────────────────────────────────────────────
// Value objects
// ──────────────────────────────────────────────────────────────────────────────

// CreateMarketRequest carries the validated inputs for creating a market.
type CreateMarketRequest struct {
	Creator       uuid.UUID
	Title         string
	Description   string
	OutcomeLabels []string
	EndTime       time.Time
}

// ──────────────────────────────────────────────────────────────────────────────
// MarketSummary — lightweight read model for WS broadcasts and list endpoints
// ──────────────────────────────────────────────────────────────────────────────

// OutcomeSummary pairs an outcome with its current spot price.
type OutcomeSummary struct {
	Index        int             `json:"index"`
	Label        string          `json:"label"`
	SharesIssued decimal.Decimal `json:"shares_issued"`
	SpotPrice    decimal.Decimal `json:"spot_price"`
}

// MarketSummary is a derived, read-only view of a Market used for broadcasting.
type MarketSummary struct {
	ID           uuid.UUID        `json:"id"`
	Title        string           `json:"title"`
	Status       MarketStatus     `json:"status"`
	Outcomes     []OutcomeSummary `json:"outcomes"`
	VaultBalance decimal.Decimal  `json:"vault_balance"`
	EndTime      time.Time        `json:"end_time"`
	TimeLeftSec  int64            `json:"time_left_sec"`
}

// ToSummary builds a MarketSummary from the market and per-outcome spot
// prices. prices must be indexed like m.Outcomes; missing entries render as
// zero.
func (m *Market) ToSummary(now time.Time, prices []decimal.Decimal) MarketSummary {
	outcomes := make([]OutcomeSummary, len(m.Outcomes))
	for i, o := range m.Outcomes {
		price := decimal.Zero
		if i < len(prices) {
			price = prices[i]
		}
		outcomes[i] = OutcomeSummary{
			Index:        o.Index,
			Label:        o.Label,
			SharesIssued: o.SharesIssued,
			SpotPrice:    price,
		}
	}
	return MarketSummary{
		ID:           m.ID,
		Title:        m.Title,
		Status:       m.Status,
		Outcomes:     outcomes,
		VaultBalance: m.VaultBalance,
		EndTime:      m.EndTime,
		TimeLeftSec:  int64(m.TimeLeft(now).Seconds()),
	}
}
