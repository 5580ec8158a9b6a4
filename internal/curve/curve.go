// Package curve implements the three-phase bonding curve that prices outcome
// shares: a flat anchor ramp, a quadratic bridge, and a clamped-linear
// ignition phase approaching the price ceiling. All arithmetic is
// shopspring/decimal; every function is pure and safe for concurrent use.
package curve

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrOutOfRange is returned when a supply position falls outside
// [0, TotalSupply]. Callers translate it to their own rejection error.
var ErrOutOfRange = errors.New("supply position outside curve domain")

var (
	two   = decimal.NewFromInt(2)
	three = decimal.NewFromInt(3)
)

// ──────────────────────────────────────────────────────────────────────────────
// Params
// ──────────────────────────────────────────────────────────────────────────────

// Params defines one bonding curve. Prices are per share; supply positions
// are share counts in [0, TotalSupply].
//
// Phase layout over issued supply s:
//
//	[0, Phase1End]           anchor:   linear from PStart to PAnchorEnd
//	(Phase1End, Phase2End]   bridge:   quadratic from PAnchorEnd to PBridgeEnd
//	(Phase2End, TotalSupply] ignition: PBridgeEnd + (PMax-PBridgeEnd)·min(1, K·x)
//	                                   where x = s - Phase2End
type Params struct {
	TotalSupply decimal.Decimal
	Phase1End   decimal.Decimal
	Phase2End   decimal.Decimal
	PStart      decimal.Decimal
	PAnchorEnd  decimal.Decimal
	PBridgeEnd  decimal.Decimal
	PMax        decimal.Decimal
	K           decimal.Decimal
}

// DefaultParams returns the production curve shape: 1B total supply, anchor
// phase over the first 90M shares, bridge to 110M, ignition beyond.
func DefaultParams() Params {
	return Params{
		TotalSupply: decimal.NewFromInt(1_000_000_000),
		Phase1End:   decimal.NewFromInt(90_000_000),
		Phase2End:   decimal.NewFromInt(110_000_000),
		PStart:      decimal.NewFromFloat(0.000001),
		PAnchorEnd:  decimal.NewFromFloat(0.0000027),
		PBridgeEnd:  decimal.NewFromFloat(0.000015),
		PMax:        decimal.NewFromFloat(0.95),
		K:           decimal.NewFromFloat(0.000000001),
	}
}

// Validate checks ordering and positivity of the curve shape.
func (p Params) Validate() error {
	switch {
	case !p.TotalSupply.IsPositive():
		return fmt.Errorf("curve: total supply must be positive, got %s", p.TotalSupply)
	case !p.Phase1End.IsPositive() || p.Phase1End.GreaterThanOrEqual(p.Phase2End):
		return fmt.Errorf("curve: need 0 < phase1End < phase2End, got %s / %s", p.Phase1End, p.Phase2End)
	case p.Phase2End.GreaterThanOrEqual(p.TotalSupply):
		return fmt.Errorf("curve: phase2End %s must be below total supply %s", p.Phase2End, p.TotalSupply)
	case !p.PStart.IsPositive():
		return fmt.Errorf("curve: start price must be positive, got %s", p.PStart)
	case p.PStart.GreaterThanOrEqual(p.PAnchorEnd),
		p.PAnchorEnd.GreaterThanOrEqual(p.PBridgeEnd),
		p.PBridgeEnd.GreaterThanOrEqual(p.PMax):
		return fmt.Errorf("curve: prices must strictly increase: %s < %s < %s < %s",
			p.PStart, p.PAnchorEnd, p.PBridgeEnd, p.PMax)
	case !p.K.IsPositive():
		return fmt.Errorf("curve: ignition constant must be positive, got %s", p.K)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Curve
// ──────────────────────────────────────────────────────────────────────────────

// Curve is an immutable, precomputed bonding curve.
type Curve struct {
	p Params

	slope1 decimal.Decimal // anchor phase price slope
	width2 decimal.Decimal // bridge phase supply width
	delta2 decimal.Decimal // bridge phase price gain
	delta3 decimal.Decimal // ignition phase price gain (to PMax)
	xClamp decimal.Decimal // ignition offset where K·x reaches 1
}

// New builds a Curve after validating its parameters.
func New(p Params) (*Curve, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Curve{
		p:      p,
		slope1: p.PAnchorEnd.Sub(p.PStart).Div(p.Phase1End),
		width2: p.Phase2End.Sub(p.Phase1End),
		delta2: p.PBridgeEnd.Sub(p.PAnchorEnd),
		delta3: p.PMax.Sub(p.PBridgeEnd),
		xClamp: decimal.NewFromInt(1).Div(p.K),
	}, nil
}

// Params returns a copy of the curve's parameters.
func (c *Curve) Params() Params { return c.p }

// TotalSupply returns the hard supply ceiling per outcome.
func (c *Curve) TotalSupply() decimal.Decimal { return c.p.TotalSupply }

// inDomain reports whether s is a valid supply position.
func (c *Curve) inDomain(s decimal.Decimal) bool {
	return !s.IsNegative() && s.LessThanOrEqual(c.p.TotalSupply)
}

// Spot returns the instantaneous price at supply position s.
//
// The three phases are continuous at their boundaries by construction: the
// bridge starts at the anchor's final price and the ignition phase starts at
// the bridge's final price.
func (c *Curve) Spot(s decimal.Decimal) (decimal.Decimal, error) {
	if !c.inDomain(s) {
		return decimal.Zero, fmt.Errorf("spot at %s: %w", s, ErrOutOfRange)
	}
	switch {
	case s.LessThanOrEqual(c.p.Phase1End):
		return c.p.PStart.Add(c.slope1.Mul(s)), nil
	case s.LessThanOrEqual(c.p.Phase2End):
		// PAnchorEnd + delta2·((s-Phase1End)/width2)²
		x := s.Sub(c.p.Phase1End).Div(c.width2)
		return c.p.PAnchorEnd.Add(c.delta2.Mul(x).Mul(x)), nil
	default:
		// PBridgeEnd + delta3·min(1, K·x)
		x := s.Sub(c.p.Phase2End)
		kx := c.p.K.Mul(x)
		if kx.GreaterThan(decimal.NewFromInt(1)) {
			return c.p.PMax, nil
		}
		return c.p.PBridgeEnd.Add(c.delta3.Mul(kx)), nil
	}
}

// Cost returns the exact collateral needed to move issued supply from s0 to
// s1 (s0 ≤ s1): the integral of the spot price over [s0, s1], evaluated in
// closed form per phase and summed across phase boundaries.
func (c *Curve) Cost(s0, s1 decimal.Decimal) (decimal.Decimal, error) {
	if !c.inDomain(s0) || !c.inDomain(s1) {
		return decimal.Zero, fmt.Errorf("cost over [%s, %s]: %w", s0, s1, ErrOutOfRange)
	}
	if s0.GreaterThan(s1) {
		return decimal.Zero, fmt.Errorf("cost over [%s, %s]: inverted interval: %w", s0, s1, ErrOutOfRange)
	}

	total := decimal.Zero

	// Anchor segment: ∫ PStart + slope1·s ds = PStart·Δ + slope1·(b²-a²)/2
	if a, b, ok := clip(s0, s1, decimal.Zero, c.p.Phase1End); ok {
		linear := c.p.PStart.Mul(b.Sub(a))
		quad := c.slope1.Mul(b.Mul(b).Sub(a.Mul(a))).Div(two)
		total = total.Add(linear).Add(quad)
	}

	// Bridge segment, in x = s - Phase1End:
	// ∫ PAnchorEnd + delta2·(x/width2)² dx = PAnchorEnd·Δ + delta2·(xb³-xa³)/(3·width2²)
	if a, b, ok := clip(s0, s1, c.p.Phase1End, c.p.Phase2End); ok {
		xa, xb := a.Sub(c.p.Phase1End), b.Sub(c.p.Phase1End)
		linear := c.p.PAnchorEnd.Mul(xb.Sub(xa))
		cubes := xb.Mul(xb).Mul(xb).Sub(xa.Mul(xa).Mul(xa))
		quad := c.delta2.Mul(cubes).Div(three.Mul(c.width2).Mul(c.width2))
		total = total.Add(linear).Add(quad)
	}

	// Ignition segment, in x = s - Phase2End; the price ramp clamps at xClamp.
	if a, b, ok := clip(s0, s1, c.p.Phase2End, c.p.TotalSupply); ok {
		xa, xb := a.Sub(c.p.Phase2End), b.Sub(c.p.Phase2End)

		// ramp part: ∫ PBridgeEnd + delta3·K·x dx
		if ra, rb, ok := clip(xa, xb, decimal.Zero, c.xClamp); ok {
			linear := c.p.PBridgeEnd.Mul(rb.Sub(ra))
			quad := c.delta3.Mul(c.p.K).Mul(rb.Mul(rb).Sub(ra.Mul(ra))).Div(two)
			total = total.Add(linear).Add(quad)
		}
		// clamped part: price is PMax flat
		if ca, cb, ok := clipAbove(xa, xb, c.xClamp); ok {
			total = total.Add(c.p.PMax.Mul(cb.Sub(ca)))
		}
	}

	return total, nil
}

// SharesFor returns the largest whole number of shares purchasable from
// supply position s0 with the given budget, together with the exact cost of
// those shares (cost ≤ budget). A budget too small for even one share returns
// (0, 0). A budget large enough to exhaust the supply returns all remaining
// shares and their exact cost, leaving the surplus with the caller.
//
// The inverse is found by bisection over whole shares: Cost is strictly
// increasing in the upper bound, so ~30 closed-form evaluations pin the
// answer exactly for any supply up to 2³⁰·1e9.
func (c *Curve) SharesFor(s0, budget decimal.Decimal) (shares, cost decimal.Decimal, err error) {
	if !c.inDomain(s0) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("sharesFor at %s: %w", s0, ErrOutOfRange)
	}
	if !budget.IsPositive() {
		return decimal.Zero, decimal.Zero, nil
	}

	remaining := c.p.TotalSupply.Sub(s0).Floor()
	if !remaining.IsPositive() {
		return decimal.Zero, decimal.Zero, nil
	}

	fullCost, err := c.Cost(s0, s0.Add(remaining))
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if fullCost.LessThanOrEqual(budget) {
		return remaining, fullCost, nil
	}

	lo, hi := decimal.Zero, remaining
	for lo.LessThan(hi) {
		mid := lo.Add(hi).Add(decimal.NewFromInt(1)).Div(two).Floor()
		midCost, err := c.Cost(s0, s0.Add(mid))
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		if midCost.LessThanOrEqual(budget) {
			lo = mid
		} else {
			hi = mid.Sub(decimal.NewFromInt(1))
		}
	}

	cost, err = c.Cost(s0, s0.Add(lo))
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return lo, cost, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// interval helpers
// ──────────────────────────────────────────────────────────────────────────────

// clip intersects [s0, s1] with [lo, hi]; ok is false for an empty result.
func clip(s0, s1, lo, hi decimal.Decimal) (a, b decimal.Decimal, ok bool) {
	a = decimal.Max(s0, lo)
	b = decimal.Min(s1, hi)
	if a.GreaterThanOrEqual(b) {
		return decimal.Zero, decimal.Zero, false
	}
	return a, b, true
}

// clipAbove intersects [s0, s1] with [lo, +inf); ok is false for an empty result.
func clipAbove(s0, s1, lo decimal.Decimal) (a, b decimal.Decimal, ok bool) {
	a = decimal.Max(s0, lo)
	if a.GreaterThanOrEqual(s1) {
		return decimal.Zero, decimal.Zero, false
	}
	return a, s1, true
}
