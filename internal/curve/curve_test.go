package curve

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func mustCurve(t *testing.T) *Curve {
	t.Helper()
	c, err := New(DefaultParams())
	if err != nil {
		t.Fatalf("New(DefaultParams()) failed: %v", err)
	}
	return c
}

func mustSpot(t *testing.T, c *Curve, s int64) decimal.Decimal {
	t.Helper()
	p, err := c.Spot(decimal.NewFromInt(s))
	if err != nil {
		t.Fatalf("Spot(%d) failed: %v", s, err)
	}
	return p
}

// withinRel reports whether got is within tol relative difference of want.
func withinRel(got, want, tol decimal.Decimal) bool {
	if want.IsZero() {
		return got.Abs().LessThanOrEqual(tol)
	}
	return got.Sub(want).Abs().Div(want.Abs()).LessThanOrEqual(tol)
}

// ──────────────────────────────────────────────────────────────────────────────
// Spot price
// ──────────────────────────────────────────────────────────────────────────────

func TestSpot_ReferencePoints(t *testing.T) {
	c := mustCurve(t)
	tol := decimal.NewFromFloat(0.0001)

	cases := []struct {
		name   string
		supply int64
		want   decimal.Decimal
	}{
		{"launch price", 0, decimal.NewFromFloat(0.000001)},
		{"anchor end", 90_000_000, decimal.NewFromFloat(0.0000027)},
		{"bridge end", 110_000_000, decimal.NewFromFloat(0.000015)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mustSpot(t, c, tc.supply)
			if !withinRel(got, tc.want, tol) {
				t.Errorf("Spot(%d) = %s, want ~%s", tc.supply, got, tc.want)
			}
		})
	}
}

func TestSpot_ContinuousAtPhaseBoundaries(t *testing.T) {
	c := mustCurve(t)
	maxGap := decimal.NewFromFloat(0.02) // 2% relative

	for _, boundary := range []int64{90_000_000, 110_000_000} {
		below := mustSpot(t, c, boundary-1)
		at := mustSpot(t, c, boundary)
		above := mustSpot(t, c, boundary+1)

		if !withinRel(below, at, maxGap) {
			t.Errorf("price jumps approaching %d: %s vs %s", boundary, below, at)
		}
		if !withinRel(above, at, maxGap) {
			t.Errorf("price jumps leaving %d: %s vs %s", boundary, at, above)
		}
	}
}

func TestSpot_MonotoneAndBounded(t *testing.T) {
	c := mustCurve(t)
	p := DefaultParams()

	prev := decimal.Zero
	for s := int64(0); s <= 1_000_000_000; s += 5_000_000 {
		price := mustSpot(t, c, s)
		if price.LessThan(prev) {
			t.Fatalf("price decreased at supply %d: %s < %s", s, price, prev)
		}
		if price.LessThan(p.PStart) || price.GreaterThanOrEqual(p.PMax) {
			t.Fatalf("price out of [PStart, PMax) at supply %d: %s", s, price)
		}
		prev = price
	}
}

func TestSpot_RejectsOutOfDomain(t *testing.T) {
	c := mustCurve(t)

	if _, err := c.Spot(decimal.NewFromInt(-1)); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Spot(-1) error = %v, want ErrOutOfRange", err)
	}
	if _, err := c.Spot(decimal.NewFromInt(1_000_000_001)); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Spot(supply+1) error = %v, want ErrOutOfRange", err)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Cost integral
// ──────────────────────────────────────────────────────────────────────────────

func TestCost_AdditiveAcrossPhases(t *testing.T) {
	c := mustCurve(t)
	tol := decimal.NewFromFloat(0.000000001)

	// one interval spanning all three phases vs its three pieces
	points := []int64{80_000_000, 90_000_000, 110_000_000, 130_000_000}
	whole, err := c.Cost(decimal.NewFromInt(points[0]), decimal.NewFromInt(points[3]))
	if err != nil {
		t.Fatalf("Cost failed: %v", err)
	}

	sum := decimal.Zero
	for i := 0; i < len(points)-1; i++ {
		piece, err := c.Cost(decimal.NewFromInt(points[i]), decimal.NewFromInt(points[i+1]))
		if err != nil {
			t.Fatalf("Cost piece failed: %v", err)
		}
		sum = sum.Add(piece)
	}

	if !withinRel(whole, sum, tol) {
		t.Errorf("Cost not additive across phases: whole %s, pieces %s", whole, sum)
	}
}

func TestCost_MatchesSpotForSmallStep(t *testing.T) {
	c := mustCurve(t)
	tol := decimal.NewFromFloat(0.001)

	// over one share the integral is within a hair of the spot price
	for _, s := range []int64{0, 50_000_000, 95_000_000, 150_000_000} {
		cost, err := c.Cost(decimal.NewFromInt(s), decimal.NewFromInt(s+1))
		if err != nil {
			t.Fatalf("Cost(%d, %d) failed: %v", s, s+1, err)
		}
		spot := mustSpot(t, c, s)
		if !withinRel(cost, spot, tol) {
			t.Errorf("Cost over one share at %d = %s, spot %s", s, cost, spot)
		}
	}
}

func TestCost_RejectsBadIntervals(t *testing.T) {
	c := mustCurve(t)

	if _, err := c.Cost(decimal.NewFromInt(10), decimal.NewFromInt(5)); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("inverted interval error = %v, want ErrOutOfRange", err)
	}
	if _, err := c.Cost(decimal.Zero, decimal.NewFromInt(1_000_000_001)); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("past-supply interval error = %v, want ErrOutOfRange", err)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Inverse
// ──────────────────────────────────────────────────────────────────────────────

func TestSharesFor_RoundTripsCost(t *testing.T) {
	c := mustCurve(t)

	cases := []struct {
		name   string
		start  int64
		shares int64
	}{
		{"anchor phase", 0, 5_000_000},
		{"crossing into bridge", 85_000_000, 10_000_000},
		{"crossing into ignition", 105_000_000, 20_000_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s0 := decimal.NewFromInt(tc.start)
			want := decimal.NewFromInt(tc.shares)

			exact, err := c.Cost(s0, s0.Add(want))
			if err != nil {
				t.Fatalf("Cost failed: %v", err)
			}

			shares, cost, err := c.SharesFor(s0, exact)
			if err != nil {
				t.Fatalf("SharesFor failed: %v", err)
			}
			if !shares.Equal(want) {
				t.Errorf("SharesFor(exact cost) = %s shares, want %s", shares, want)
			}
			if !cost.Equal(exact) {
				t.Errorf("SharesFor cost = %s, want %s", cost, exact)
			}

			// one hair less budget buys one share fewer
			shares, _, err = c.SharesFor(s0, exact.Sub(decimal.NewFromFloat(0.000000000001)))
			if err != nil {
				t.Fatalf("SharesFor failed: %v", err)
			}
			if !shares.Equal(want.Sub(decimal.NewFromInt(1))) {
				t.Errorf("SharesFor(exact - ε) = %s shares, want %s", shares, want.Sub(decimal.NewFromInt(1)))
			}
		})
	}
}

func TestSharesFor_DustBudgetBuysNothing(t *testing.T) {
	c := mustCurve(t)

	shares, cost, err := c.SharesFor(decimal.Zero, decimal.NewFromFloat(0.0000000001))
	if err != nil {
		t.Fatalf("SharesFor failed: %v", err)
	}
	if !shares.IsZero() || !cost.IsZero() {
		t.Errorf("dust budget bought %s shares for %s, want zero effect", shares, cost)
	}
}

func TestSharesFor_ClampsAtTotalSupply(t *testing.T) {
	c := mustCurve(t)
	s0 := decimal.NewFromInt(999_999_990)

	shares, cost, err := c.SharesFor(s0, decimal.NewFromInt(1_000_000))
	if err != nil {
		t.Fatalf("SharesFor failed: %v", err)
	}
	if !shares.Equal(decimal.NewFromInt(10)) {
		t.Errorf("shares = %s, want the 10 remaining", shares)
	}

	exact, err := c.Cost(s0, c.TotalSupply())
	if err != nil {
		t.Fatalf("Cost failed: %v", err)
	}
	if !cost.Equal(exact) {
		t.Errorf("clamped cost = %s, want exact remaining cost %s", cost, exact)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Params
// ──────────────────────────────────────────────────────────────────────────────

func TestParams_Validate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("default params must validate: %v", err)
	}

	bad := DefaultParams()
	bad.PAnchorEnd = bad.PBridgeEnd
	if err := bad.Validate(); err == nil {
		t.Error("non-increasing prices must fail validation")
	}

	bad = DefaultParams()
	bad.Phase2End = bad.TotalSupply
	if err := bad.Validate(); err == nil {
		t.Error("phase2End at total supply must fail validation")
	}

	bad = DefaultParams()
	bad.K = decimal.Zero
	if err := bad.Validate(); err == nil {
		t.Error("zero ignition constant must fail validation")
	}
}
