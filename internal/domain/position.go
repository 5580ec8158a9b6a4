package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// UserPosition
// ──────────────────────────────────────────────────────────────────────────────

// UserPosition tracks one user's holdings inside one market: share counts per
// outcome plus lifetime cash flow totals for PnL display.
//
// Shares is indexed by outcome index and always sized to the market's outcome
// count. Claiming winnings burns the position's shares, so a second claim
// naturally pays zero.
type UserPosition struct {
	ID            uuid.UUID         `json:"id"              db:"id"`
	UserID        uuid.UUID         `json:"user_id"         db:"user_id"`
	MarketID      uuid.UUID         `json:"market_id"       db:"market_id"`
	Shares        []decimal.Decimal `json:"shares"          db:"-"`
	Invested      decimal.Decimal   `json:"invested"        db:"invested"`
	Withdrawn     decimal.Decimal   `json:"withdrawn"       db:"withdrawn"`
	LastTradeSlot int64             `json:"last_trade_slot" db:"last_trade_slot"`
	ClaimedAt     *time.Time        `json:"claimed_at"      db:"claimed_at"`
	CreatedAt     time.Time         `json:"created_at"      db:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"      db:"updated_at"`
}

// NewPosition returns an empty position for a market with outcomeCount outcomes.
func NewPosition(userID, marketID uuid.UUID, outcomeCount int) *UserPosition {
	shares := make([]decimal.Decimal, outcomeCount)
	for i := range shares {
		shares[i] = decimal.Zero
	}
	return &UserPosition{
		ID:        uuid.New(),
		UserID:    userID,
		MarketID:  marketID,
		Shares:    shares,
		Invested:  decimal.Zero,
		Withdrawn: decimal.Zero,
	}
}

// SharesOf returns the share count held in outcome i, zero when out of range.
func (p *UserPosition) SharesOf(i int) decimal.Decimal {
	if i < 0 || i >= len(p.Shares) {
		return decimal.Zero
	}
	return p.Shares[i]
}

// IsEmpty returns true when the position holds no shares in any outcome.
func (p *UserPosition) IsEmpty() bool {
	for _, s := range p.Shares {
		if s.IsPositive() {
			return false
		}
	}
	return true
}

// ──────────────────────────────────────────────────────────────────────────────
// Trade value objects
// ──────────────────────────────────────────────────────────────────────────────

// TradeSide distinguishes buys from sells in receipts and ledger rows.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// BuyRequest carries the validated inputs for a share purchase.
type BuyRequest struct {
	UserID       uuid.UUID
	MarketID     uuid.UUID
	Outcome      int
	Amount       decimal.Decimal // collateral the user commits, fee inclusive
	MinSharesOut decimal.Decimal // slippage floor; zero disables the check
}

// SellRequest carries the validated inputs for a share sale.
type SellRequest struct {
	UserID       uuid.UUID
	MarketID     uuid.UUID
	Outcome      int
	Shares       decimal.Decimal // whole shares to sell
	MinAmountOut decimal.Decimal // slippage floor; zero disables the check
}

// TradeReceipt is the engine's record of an executed trade. Every amount is
// already floor-rounded; Gross = Net + Fee and Fee = CreatorFee + TreasuryFee
// hold exactly.
type TradeReceipt struct {
	MarketID    uuid.UUID       `json:"market_id"`
	UserID      uuid.UUID       `json:"user_id"`
	Outcome     int             `json:"outcome"`
	Side        TradeSide       `json:"side"`
	Shares      decimal.Decimal `json:"shares"`
	Gross       decimal.Decimal `json:"gross"`  // buy: amount committed; sell: curve proceeds
	Fee         decimal.Decimal `json:"fee"`
	CreatorFee  decimal.Decimal `json:"creator_fee"`
	TreasuryFee decimal.Decimal `json:"treasury_fee"`
	Net         decimal.Decimal `json:"net"`    // buy: spent on the curve; sell: paid to the seller
	Refund      decimal.Decimal `json:"refund"` // unspent budget returned on a supply-ceiling clamp
	Slot        int64           `json:"slot"`
	ExecutedAt  time.Time       `json:"executed_at"`
}

// ClaimReceipt records the result of a winnings claim.
type ClaimReceipt struct {
	MarketID     uuid.UUID       `json:"market_id"`
	UserID       uuid.UUID       `json:"user_id"`
	Outcome      int             `json:"outcome"`
	SharesBurned decimal.Decimal `json:"shares_burned"`
	Payout       decimal.Decimal `json:"payout"`
	ClaimedAt    time.Time       `json:"claimed_at"`
}
