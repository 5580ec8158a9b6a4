package engine

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evetabi/curvemarket/internal/domain"
)

// ──────────────────────────────────────────────────────────────────────────────
// Resolve
// ──────────────────────────────────────────────────────────────────────────────

// Resolve settles a market on the given winning outcome. Only the protocol
// authority may resolve. The resolution fee comes off the net pool (vault
// minus unclaimed creator fees) and the remainder is frozen as the winner
// pool that claims will draw from pro rata.
//
// Resolution is allowed past the market's end time as well as before it;
// resolving twice is rejected.
func (e *Engine) Resolve(m *domain.Market, proto *domain.ProtocolState, callerID uuid.UUID, winningOutcome int) (*domain.ResolveReceipt, error) {
	if !proto.IsAuthority(callerID) {
		return nil, fmt.Errorf("resolve by %s: %w", callerID, domain.ErrUnauthorized)
	}
	switch m.Status {
	case domain.StatusResolved:
		return nil, domain.ErrMarketAlreadyResolved
	case domain.StatusClosed:
		return nil, domain.ErrMarketClosed
	}
	if m.Outcome(winningOutcome) == nil {
		return nil, fmt.Errorf("resolve on outcome %d: %w", winningOutcome, domain.ErrInvalidOutcome)
	}

	netPool := m.NetPool()
	resolutionFee := netPool.Mul(e.cfg.ResolutionFeeRate).RoundDown(domain.MoneyScale)
	winnerPool := netPool.Sub(resolutionFee)
	now := e.clock()

	m.Status = domain.StatusResolved
	m.WinningOutcome = &winningOutcome
	m.WinnerPool = &winnerPool
	m.VaultBalance = m.VaultBalance.Sub(resolutionFee)
	m.ResolvedAt = &now

	return &domain.ResolveReceipt{
		MarketID:       m.ID,
		WinningOutcome: winningOutcome,
		ResolutionFee:  resolutionFee,
		WinnerPool:     winnerPool,
		ResolvedAt:     now,
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Claim
// ──────────────────────────────────────────────────────────────────────────────

// Claim pays a position its pro-rata slice of the winner pool and burns the
// position's shares. The denominator is the winning outcome's shares issued
// at resolution time, which claims never decrement, so claim order cannot
// change anyone's payout. A position with no winning shares (including one
// that already claimed) settles as a zero-payout no-op.
func (e *Engine) Claim(m *domain.Market, pos *domain.UserPosition) (*domain.ClaimReceipt, error) {
	switch m.Status {
	case domain.StatusOpen:
		return nil, domain.ErrMarketNotResolved
	case domain.StatusClosed:
		return nil, domain.ErrMarketClosed
	}

	now := e.clock()
	if now.Before(m.ResolvedAt.Add(e.cfg.ClaimTimelock)) {
		return nil, fmt.Errorf("claim at %s, resolved %s: %w",
			now.Format("15:04:05"), m.ResolvedAt.Format("15:04:05"), domain.ErrTimelockActive)
	}

	winner := *m.WinningOutcome
	held := pos.SharesOf(winner)
	issued := m.Outcome(winner).SharesIssued

	payout := decimal.Zero
	if held.IsPositive() && issued.IsPositive() {
		payout = held.Div(issued).Mul(*m.WinnerPool).RoundDown(domain.MoneyScale)
	}

	m.VaultBalance = m.VaultBalance.Sub(payout)
	for i := range pos.Shares {
		pos.Shares[i] = decimal.Zero
	}
	pos.Withdrawn = pos.Withdrawn.Add(payout)
	pos.ClaimedAt = &now

	return &domain.ClaimReceipt{
		MarketID:     m.ID,
		UserID:       pos.UserID,
		Outcome:      winner,
		SharesBurned: held,
		Payout:       payout,
		ClaimedAt:    now,
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Close
// ──────────────────────────────────────────────────────────────────────────────

// Close archives a resolved market once its dispute window has passed.
// The scheduler calls this; closed markets reject trades and claims.
func (e *Engine) Close(m *domain.Market) error {
	switch m.Status {
	case domain.StatusOpen:
		return domain.ErrMarketNotResolved
	case domain.StatusClosed:
		return domain.ErrMarketClosed
	}
	now := e.clock()
	m.Status = domain.StatusClosed
	m.ClosedAt = &now
	return nil
}

// ClaimCreatorFees pays out a market's accrued creator fees and zeroes the
// claimable balance. Callable at any lifecycle stage; only the market's
// creator may claim.
func (e *Engine) ClaimCreatorFees(m *domain.Market, callerID uuid.UUID) (decimal.Decimal, error) {
	if m.Creator != callerID {
		return decimal.Zero, fmt.Errorf("creator fee claim by %s: %w", callerID, domain.ErrUnauthorized)
	}
	amount := m.CreatorFeesClaimable
	if !amount.IsPositive() {
		return decimal.Zero, nil
	}
	m.VaultBalance = m.VaultBalance.Sub(amount)
	m.CreatorFeesClaimable = decimal.Zero
	return amount, nil
}
