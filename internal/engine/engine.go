// Package engine implements the pure settlement core: trade execution against
// the bonding curve, fee collection, abuse guards, and the market lifecycle.
// The engine mutates in-memory domain entities only; persistence and locking
// are the caller's job, so every method assumes it runs with exclusive access
// to the market it is handed.
package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/evetabi/curvemarket/internal/curve"
	"github.com/evetabi/curvemarket/internal/domain"
)

// ──────────────────────────────────────────────────────────────────────────────
// Config
// ──────────────────────────────────────────────────────────────────────────────

// Config holds the engine's fee and guard parameters.
type Config struct {
	FeeRate           decimal.Decimal // standard trading fee (0.01 = 1%)
	BotFeeRate        decimal.Decimal // escalated fee for same-slot repeat trades
	ResolutionFeeRate decimal.Decimal // taken off the net pool at resolution
	WhaleCapPct       decimal.Decimal // max share of TotalSupply one wallet may hold per outcome
	MaxAmount         decimal.Decimal // per-trade collateral ceiling (overflow guard)
	ClaimTimelock     time.Duration   // delay between resolution and first claim
	SlotDuration      time.Duration   // width of one anti-bot time slot
}

// DefaultConfig returns production fee and guard parameters.
func DefaultConfig() Config {
	return Config{
		FeeRate:           decimal.NewFromFloat(0.01),
		BotFeeRate:        decimal.NewFromFloat(0.15),
		ResolutionFeeRate: decimal.NewFromFloat(0.02),
		WhaleCapPct:       decimal.NewFromFloat(0.05),
		MaxAmount:         decimal.NewFromInt(1_000_000_000),
		ClaimTimelock:     2 * time.Hour,
		SlotDuration:      400 * time.Millisecond,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Engine
// ──────────────────────────────────────────────────────────────────────────────

// Engine executes trades and lifecycle transitions. It is stateless apart
// from its configuration and safe for concurrent use as long as callers
// serialise access per market (one locked DB row = one market).
type Engine struct {
	curve *curve.Curve
	cfg   Config
	clock func() time.Time
}

// New creates an Engine over the given curve using the real clock.
func New(c *curve.Curve, cfg Config) *Engine {
	return &Engine{curve: c, cfg: cfg, clock: time.Now}
}

// WithClock returns a copy of the engine using the supplied clock.
// Tests use this to pin slots and the claim timelock.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	clone := *e
	clone.clock = clock
	return &clone
}

// Curve exposes the engine's bonding curve for read-only price queries.
func (e *Engine) Curve() *curve.Curve { return e.curve }

// Now returns the engine's current time.
func (e *Engine) Now() time.Time { return e.clock() }

// CurrentSlot returns the logical anti-bot slot for the current instant.
// Two trades from the same wallet in the same slot pay the escalated fee.
func (e *Engine) CurrentSlot() int64 {
	return e.clock().UnixNano() / int64(e.cfg.SlotDuration)
}

// whaleCap returns the max shares one wallet may hold in one outcome.
func (e *Engine) whaleCap() decimal.Decimal {
	return e.curve.TotalSupply().Mul(e.cfg.WhaleCapPct).Floor()
}

// ──────────────────────────────────────────────────────────────────────────────
// Buy
// ──────────────────────────────────────────────────────────────────────────────

// Buy executes a fee-inclusive purchase of outcome shares.
//
// Order of operations: the fee comes off the top, the remaining budget is
// inverted through the curve into whole shares, then the guards run — supply
// clamp, whale cap, slippage floor. No entity is mutated until every check
// has passed. A budget too small for a single share is a zero-effect
// success — nothing is charged and nothing is issued — unless the caller set
// a slippage floor, in which case zero shares cannot satisfy it and the buy
// fails like any other slippage miss.
func (e *Engine) Buy(m *domain.Market, pos *domain.UserPosition, proto *domain.ProtocolState, req domain.BuyRequest) (*domain.TradeReceipt, error) {
	q, err := e.quoteBuy(m, pos, proto, req)
	if err != nil {
		return nil, err
	}
	if q.Shares.IsZero() {
		return q, nil
	}

	out := m.Outcome(req.Outcome)
	out.SharesIssued = out.SharesIssued.Add(q.Shares)
	m.VaultBalance = m.VaultBalance.Add(q.Net).Add(q.CreatorFee)
	m.CreatorFeesClaimable = m.CreatorFeesClaimable.Add(q.CreatorFee)
	m.LastTradeSlot = q.Slot

	pos.Shares[req.Outcome] = pos.Shares[req.Outcome].Add(q.Shares)
	pos.Invested = pos.Invested.Add(q.Gross)
	pos.LastTradeSlot = q.Slot

	return q, nil
}

// QuoteBuy runs the full buy path without mutating anything. Used by the
// quote endpoint so the UI can show expected shares and fees.
func (e *Engine) QuoteBuy(m *domain.Market, pos *domain.UserPosition, proto *domain.ProtocolState, req domain.BuyRequest) (*domain.TradeReceipt, error) {
	return e.quoteBuy(m, pos, proto, req)
}

func (e *Engine) quoteBuy(m *domain.Market, pos *domain.UserPosition, proto *domain.ProtocolState, req domain.BuyRequest) (*domain.TradeReceipt, error) {
	if !req.Amount.IsPositive() || req.Amount.GreaterThan(e.cfg.MaxAmount) {
		return nil, fmt.Errorf("buy amount %s: %w", req.Amount, domain.ErrInvalidAmount)
	}
	now := e.clock()
	if !m.TradingOpen(now) {
		return nil, domain.ErrMarketClosed
	}
	out := m.Outcome(req.Outcome)
	if out == nil {
		return nil, fmt.Errorf("buy outcome %d: %w", req.Outcome, domain.ErrInvalidOutcome)
	}

	slot := e.CurrentSlot()
	rate := e.feeRateFor(pos, slot)
	fee := req.Amount.Mul(rate).RoundDown(domain.MoneyScale)
	creatorFee, treasuryFee := e.splitFee(fee, m.Creator, proto.TreasuryID)
	net := req.Amount.Sub(fee)

	shares, cost, err := e.curve.SharesFor(out.SharesIssued, net)
	if err != nil {
		return nil, fmt.Errorf("buy inversion: %w: %v", domain.ErrInvalidAmount, err)
	}
	if shares.IsZero() {
		// The slippage floor still binds: zero shares can never satisfy a
		// positive minimum.
		if req.MinSharesOut.IsPositive() {
			return nil, fmt.Errorf("buy yields 0 shares, floor %s: %w",
				req.MinSharesOut, domain.ErrSlippageExceeded)
		}
		// dust budget: zero-effect success, nothing charged
		return &domain.TradeReceipt{
			MarketID: m.ID, UserID: req.UserID, Outcome: req.Outcome,
			Side:   domain.SideBuy,
			Shares: decimal.Zero, Gross: decimal.Zero, Fee: decimal.Zero,
			CreatorFee: decimal.Zero, TreasuryFee: decimal.Zero,
			Net: decimal.Zero, Refund: decimal.Zero,
			Slot: slot, ExecutedAt: now,
		}, nil
	}

	// supply-ceiling clamp: refund the unspent curve budget. The fee stays
	// assessed on the full committed amount; only the net curve spend shrinks.
	refund := decimal.Zero
	netUsed := net
	if out.SharesIssued.Add(shares).Equal(e.curve.TotalSupply()) {
		refund = net.Sub(cost).RoundDown(domain.MoneyScale)
		netUsed = net.Sub(refund)
	}

	if pos.SharesOf(req.Outcome).Add(shares).GreaterThan(e.whaleCap()) {
		return nil, fmt.Errorf("buy of %s shares: %w", shares, domain.ErrWhaleCapExceeded)
	}
	if req.MinSharesOut.IsPositive() && shares.LessThan(req.MinSharesOut) {
		return nil, fmt.Errorf("buy yields %s shares, floor %s: %w",
			shares, req.MinSharesOut, domain.ErrSlippageExceeded)
	}

	return &domain.TradeReceipt{
		MarketID: m.ID, UserID: req.UserID, Outcome: req.Outcome,
		Side:   domain.SideBuy,
		Shares: shares, Gross: req.Amount.Sub(refund), Fee: fee,
		CreatorFee: creatorFee, TreasuryFee: treasuryFee,
		Net: netUsed, Refund: refund,
		Slot: slot, ExecutedAt: now,
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Sell
// ──────────────────────────────────────────────────────────────────────────────

// Sell burns whole shares back into the curve. Proceeds are the exact curve
// integral over the burned range; the trading fee is taken from those gross
// proceeds and the seller receives the remainder.
func (e *Engine) Sell(m *domain.Market, pos *domain.UserPosition, proto *domain.ProtocolState, req domain.SellRequest) (*domain.TradeReceipt, error) {
	q, err := e.quoteSell(m, pos, proto, req)
	if err != nil {
		return nil, err
	}

	out := m.Outcome(req.Outcome)
	out.SharesIssued = out.SharesIssued.Sub(q.Shares)
	m.VaultBalance = m.VaultBalance.Sub(q.Gross).Add(q.CreatorFee)
	m.CreatorFeesClaimable = m.CreatorFeesClaimable.Add(q.CreatorFee)
	m.LastTradeSlot = q.Slot

	pos.Shares[req.Outcome] = pos.Shares[req.Outcome].Sub(q.Shares)
	pos.Withdrawn = pos.Withdrawn.Add(q.Net)
	pos.LastTradeSlot = q.Slot

	return q, nil
}

// QuoteSell runs the full sell path without mutating anything.
func (e *Engine) QuoteSell(m *domain.Market, pos *domain.UserPosition, proto *domain.ProtocolState, req domain.SellRequest) (*domain.TradeReceipt, error) {
	return e.quoteSell(m, pos, proto, req)
}

func (e *Engine) quoteSell(m *domain.Market, pos *domain.UserPosition, proto *domain.ProtocolState, req domain.SellRequest) (*domain.TradeReceipt, error) {
	if !req.Shares.IsPositive() || !req.Shares.Equal(req.Shares.Floor()) ||
		req.Shares.GreaterThan(e.curve.TotalSupply()) {
		return nil, fmt.Errorf("sell of %s shares: %w", req.Shares, domain.ErrInvalidAmount)
	}
	now := e.clock()
	if !m.TradingOpen(now) {
		return nil, domain.ErrMarketClosed
	}
	out := m.Outcome(req.Outcome)
	if out == nil {
		return nil, fmt.Errorf("sell outcome %d: %w", req.Outcome, domain.ErrInvalidOutcome)
	}
	if pos.SharesOf(req.Outcome).LessThan(req.Shares) {
		return nil, fmt.Errorf("sell %s of %s held: %w",
			req.Shares, pos.SharesOf(req.Outcome), domain.ErrInsufficientShares)
	}

	gross, err := e.curve.Cost(out.SharesIssued.Sub(req.Shares), out.SharesIssued)
	if err != nil {
		return nil, fmt.Errorf("sell integration: %w: %v", domain.ErrInvalidAmount, err)
	}
	gross = gross.RoundDown(domain.MoneyScale)

	slot := e.CurrentSlot()
	rate := e.feeRateFor(pos, slot)
	fee := gross.Mul(rate).RoundDown(domain.MoneyScale)
	creatorFee, treasuryFee := e.splitFee(fee, m.Creator, proto.TreasuryID)
	net := gross.Sub(fee)

	if req.MinAmountOut.IsPositive() && net.LessThan(req.MinAmountOut) {
		return nil, fmt.Errorf("sell yields %s, floor %s: %w",
			net, req.MinAmountOut, domain.ErrSlippageExceeded)
	}

	return &domain.TradeReceipt{
		MarketID: m.ID, UserID: req.UserID, Outcome: req.Outcome,
		Side:   domain.SideSell,
		Shares: req.Shares, Gross: gross, Fee: fee,
		CreatorFee: creatorFee, TreasuryFee: treasuryFee,
		Net: net, Refund: decimal.Zero,
		Slot: slot, ExecutedAt: now,
	}, nil
}
