package service_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evetabi/curvemarket/internal/curve"
	"github.com/evetabi/curvemarket/internal/domain"
	"github.com/evetabi/curvemarket/internal/engine"
)

// The engine mutates plain domain entities and leaves serialization to the
// caller; in production that is the market row's FOR UPDATE lock inside each
// service transaction. These tests replicate that guard with a per-market
// mutex and run the real trade and claim paths under the race detector.

var concStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newConcEngine(t *testing.T, now time.Time) *engine.Engine {
	t.Helper()
	c, err := curve.New(curve.DefaultParams())
	if err != nil {
		t.Fatalf("curve.New failed: %v", err)
	}
	return engine.New(c, engine.DefaultConfig()).WithClock(func() time.Time { return now })
}

// TestConcurrentClaims_PayoutsAreOrderInsensitive resolves a market with 20
// equal winning holders and claims all of them concurrently. The pro-rata
// denominator is frozen at resolution, so every holder must receive the same
// slice regardless of claim order, and the payouts must never overdraw the
// winner pool.
func TestConcurrentClaims_PayoutsAreOrderInsensitive(t *testing.T) {
	const holders = 20

	resolvedAt := concStart
	// three hours past resolution: the two-hour claim timelock has elapsed
	e := newConcEngine(t, concStart.Add(3*time.Hour))

	winning := 0
	pool := decimal.NewFromInt(980)
	perHolder := decimal.NewFromInt(100)
	issued := perHolder.Mul(decimal.NewFromInt(holders))

	m := &domain.Market{
		ID:      uuid.New(),
		Creator: uuid.New(),
		Title:   "claim race",
		Status:  domain.StatusResolved,
		Outcomes: []domain.OutcomeState{
			{Index: 0, Label: "YES", SharesIssued: issued},
			{Index: 1, Label: "NO", SharesIssued: decimal.Zero},
		},
		VaultBalance:         pool,
		CreatorFeesClaimable: decimal.Zero,
		WinningOutcome:       &winning,
		WinnerPool:           &pool,
		ResolvedAt:           &resolvedAt,
	}

	positions := make([]*domain.UserPosition, holders)
	for i := range positions {
		positions[i] = domain.NewPosition(uuid.New(), m.ID, 2)
		positions[i].Shares[winning] = perHolder
	}

	var (
		marketMu sync.Mutex // stands in for the market row lock
		wg       sync.WaitGroup
		receipts = make([]*domain.ClaimReceipt, holders)
	)
	for i := range positions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			marketMu.Lock()
			defer marketMu.Unlock()
			rcpt, err := e.Claim(m, positions[i])
			if err != nil {
				t.Errorf("claim %d failed: %v", i, err)
				return
			}
			receipts[i] = rcpt
		}(i)
	}
	wg.Wait()

	want := perHolder.Div(issued).Mul(pool).RoundDown(domain.MoneyScale)
	total := decimal.Zero
	for i, rcpt := range receipts {
		if rcpt == nil {
			t.Fatalf("claim %d has no receipt", i)
		}
		if !rcpt.Payout.Equal(want) {
			t.Errorf("claim %d payout = %s, want %s", i, rcpt.Payout, want)
		}
		total = total.Add(rcpt.Payout)
	}
	if total.GreaterThan(pool) {
		t.Errorf("payouts %s exceed the winner pool %s", total, pool)
	}
	if m.VaultBalance.IsNegative() {
		t.Errorf("vault went negative: %s", m.VaultBalance)
	}

	// second round: shares are burned, every repeat claim settles at zero
	for i, pos := range positions {
		rcpt, err := e.Claim(m, pos)
		if err != nil {
			t.Fatalf("repeat claim %d failed: %v", i, err)
		}
		if !rcpt.Payout.IsZero() {
			t.Errorf("repeat claim %d paid %s, want 0", i, rcpt.Payout)
		}
	}
}

// TestConcurrentBuys_WhaleCapHoldsUnderRace fires racing buys from one wallet
// with enough combined budget to blow past the 5% holding cap. Serialized
// through the market lock, the real buy path must reject the breaching trade
// rather than let the wallet creep over the cap.
func TestConcurrentBuys_WhaleCapHoldsUnderRace(t *testing.T) {
	const workers = 10

	e := newConcEngine(t, concStart)
	proto := &domain.ProtocolState{AuthorityID: uuid.New(), TreasuryID: uuid.New()}
	m := &domain.Market{
		ID:      uuid.New(),
		Creator: uuid.New(),
		Title:   "whale race",
		Status:  domain.StatusOpen,
		Outcomes: []domain.OutcomeState{
			{Index: 0, Label: "YES", SharesIssued: decimal.Zero},
			{Index: 1, Label: "NO", SharesIssued: decimal.Zero},
		},
		VaultBalance:         decimal.Zero,
		CreatorFeesClaimable: decimal.Zero,
		EndTime:              concStart.Add(24 * time.Hour),
	}
	pos := domain.NewPosition(uuid.New(), m.ID, 2)

	cap := decimal.NewFromInt(50_000_000) // 5% of the 1B supply

	var (
		marketMu sync.Mutex
		wg       sync.WaitGroup
		rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			marketMu.Lock()
			defer marketMu.Unlock()
			_, err := e.Buy(m, pos, proto, domain.BuyRequest{
				UserID:   pos.UserID,
				MarketID: m.ID,
				Outcome:  0,
				Amount:   decimal.NewFromInt(30),
			})
			switch {
			case errors.Is(err, domain.ErrWhaleCapExceeded):
				rejected++
			case err != nil:
				t.Errorf("buy failed: %v", err)
			}
			if pos.Shares[0].GreaterThan(cap) {
				t.Errorf("holdings %s exceed the whale cap %s", pos.Shares[0], cap)
			}
		}()
	}
	wg.Wait()

	if rejected == 0 {
		t.Error("combined budget breaches the cap, expected at least one rejection")
	}
	if pos.Shares[0].GreaterThan(cap) {
		t.Errorf("final holdings %s exceed the whale cap %s", pos.Shares[0], cap)
	}
	if !m.Outcomes[0].SharesIssued.Equal(pos.Shares[0]) {
		t.Errorf("issued %s != position %s for a single-wallet market",
			m.Outcomes[0].SharesIssued, pos.Shares[0])
	}
}
