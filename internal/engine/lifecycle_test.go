package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evetabi/curvemarket/internal/domain"
)

// resolvedMarket builds a market with vault funds and issuance, resolves it
// on outcome 0, and advances the clock past the claim timelock.
func resolvedMarket(t *testing.T, e *Engine, clock *fakeClock, proto *domain.ProtocolState, vault decimal.Decimal, issued int64) *domain.Market {
	t.Helper()
	m := newTestMarket(uuid.New())
	m.VaultBalance = vault
	m.Outcomes[0].SharesIssued = decimal.NewFromInt(issued)

	if _, err := e.Resolve(m, proto, proto.AuthorityID, 0); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	clock.Advance(3 * time.Hour)
	return m
}

// ──────────────────────────────────────────────────────────────────────────────
// Resolve
// ──────────────────────────────────────────────────────────────────────────────

func TestResolve_AuthorityOnly(t *testing.T) {
	e, _ := newTestEngine(t)
	proto := newTestProto()
	m := newTestMarket(uuid.New())

	_, err := e.Resolve(m, proto, uuid.New(), 0)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if m.IsResolved() {
		t.Error("unauthorized resolve must not settle the market")
	}

	// the market's own creator is not the authority either
	if _, err := e.Resolve(m, proto, m.Creator, 0); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("creator resolve err = %v, want ErrUnauthorized", err)
	}
}

func TestResolve_TakesResolutionFeeOffNetPool(t *testing.T) {
	e, _ := newTestEngine(t)
	proto := newTestProto()
	m := newTestMarket(uuid.New())
	m.VaultBalance = decimal.NewFromInt(102)
	m.CreatorFeesClaimable = decimal.NewFromInt(2) // not part of the pool

	rcpt, err := e.Resolve(m, proto, proto.AuthorityID, 1)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if !rcpt.ResolutionFee.Equal(decimal.NewFromInt(2)) {
		t.Errorf("resolution fee = %s, want 2 (2%% of 100)", rcpt.ResolutionFee)
	}
	if !rcpt.WinnerPool.Equal(decimal.NewFromInt(98)) {
		t.Errorf("winner pool = %s, want 98", rcpt.WinnerPool)
	}
	if !m.VaultBalance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("vault = %s, want 100 after fee sweep", m.VaultBalance)
	}
	if m.WinningOutcome == nil || *m.WinningOutcome != 1 {
		t.Errorf("winning outcome = %v, want 1", m.WinningOutcome)
	}
	if !m.IsResolved() || m.ResolvedAt == nil {
		t.Error("market must be marked resolved with a timestamp")
	}
}

func TestResolve_RejectsDoubleResolution(t *testing.T) {
	e, _ := newTestEngine(t)
	proto := newTestProto()
	m := newTestMarket(uuid.New())

	if _, err := e.Resolve(m, proto, proto.AuthorityID, 0); err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}
	vault := m.VaultBalance

	_, err := e.Resolve(m, proto, proto.AuthorityID, 1)
	if !errors.Is(err, domain.ErrMarketAlreadyResolved) {
		t.Fatalf("err = %v, want ErrMarketAlreadyResolved", err)
	}
	if *m.WinningOutcome != 0 || !m.VaultBalance.Equal(vault) {
		t.Error("rejected re-resolution must not change the settlement")
	}
}

func TestResolve_RejectsInvalidOutcome(t *testing.T) {
	e, _ := newTestEngine(t)
	proto := newTestProto()
	m := newTestMarket(uuid.New())

	if _, err := e.Resolve(m, proto, proto.AuthorityID, 7); !errors.Is(err, domain.ErrInvalidOutcome) {
		t.Fatalf("err = %v, want ErrInvalidOutcome", err)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Claim
// ──────────────────────────────────────────────────────────────────────────────

func TestClaim_TimelockEnforced(t *testing.T) {
	e, clock := newTestEngine(t)
	proto := newTestProto()
	m := newTestMarket(uuid.New())
	m.VaultBalance = decimal.NewFromInt(100)
	m.Outcomes[0].SharesIssued = decimal.NewFromInt(100)

	if _, err := e.Resolve(m, proto, proto.AuthorityID, 0); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	pos := domain.NewPosition(uuid.New(), m.ID, 2)
	pos.Shares[0] = decimal.NewFromInt(100)

	// one hour in: still locked
	clock.Advance(time.Hour)
	if _, err := e.Claim(m, pos); !errors.Is(err, domain.ErrTimelockActive) {
		t.Fatalf("err = %v, want ErrTimelockActive", err)
	}
	if !pos.Shares[0].Equal(decimal.NewFromInt(100)) {
		t.Error("locked claim must not burn shares")
	}

	// exactly at the two hour mark: open
	clock.Advance(time.Hour)
	if _, err := e.Claim(m, pos); err != nil {
		t.Fatalf("claim at timelock expiry failed: %v", err)
	}
}

func TestClaim_ProRataAndOrderInsensitive(t *testing.T) {
	e, clock := newTestEngine(t)
	proto := newTestProto()

	// 100 vault -> 98 winner pool; 100 winning shares issued
	m := resolvedMarket(t, e, clock, proto, decimal.NewFromInt(100), 100)

	alice := domain.NewPosition(uuid.New(), m.ID, 2)
	alice.Shares[0] = decimal.NewFromInt(60)
	bob := domain.NewPosition(uuid.New(), m.ID, 2)
	bob.Shares[0] = decimal.NewFromInt(40)

	aliceRcpt, err := e.Claim(m, alice)
	if err != nil {
		t.Fatalf("alice claim failed: %v", err)
	}
	bobRcpt, err := e.Claim(m, bob)
	if err != nil {
		t.Fatalf("bob claim failed: %v", err)
	}

	if !aliceRcpt.Payout.Equal(decimal.NewFromFloat(58.8)) {
		t.Errorf("alice payout = %s, want 58.8 (60%% of 98)", aliceRcpt.Payout)
	}
	if !bobRcpt.Payout.Equal(decimal.NewFromFloat(39.2)) {
		t.Errorf("bob payout = %s, want 39.2 (40%% of 98)", bobRcpt.Payout)
	}
	if !m.VaultBalance.IsZero() {
		t.Errorf("vault after all claims = %s, want 0", m.VaultBalance)
	}
	if !alice.Shares[0].IsZero() || !bob.Shares[0].IsZero() {
		t.Error("claims must burn the positions' shares")
	}

	// the denominator never shrinks, so bob's payout did not depend on
	// alice claiming first
	if !m.Outcomes[0].SharesIssued.Equal(decimal.NewFromInt(100)) {
		t.Errorf("winning issuance = %s, want unchanged 100", m.Outcomes[0].SharesIssued)
	}
}

func TestClaim_DoubleClaimIsZeroNoOp(t *testing.T) {
	e, clock := newTestEngine(t)
	proto := newTestProto()
	m := resolvedMarket(t, e, clock, proto, decimal.NewFromInt(100), 100)

	pos := domain.NewPosition(uuid.New(), m.ID, 2)
	pos.Shares[0] = decimal.NewFromInt(100)

	first, err := e.Claim(m, pos)
	if err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	if !first.Payout.IsPositive() {
		t.Fatal("first claim must pay out")
	}
	vault := m.VaultBalance

	second, err := e.Claim(m, pos)
	if err != nil {
		t.Fatalf("second claim must be a no-op, got: %v", err)
	}
	if !second.Payout.IsZero() || !second.SharesBurned.IsZero() {
		t.Errorf("second claim paid %s for %s shares, want zero", second.Payout, second.SharesBurned)
	}
	if !m.VaultBalance.Equal(vault) {
		t.Error("second claim must not move vault funds")
	}
}

func TestClaim_LosingPositionSettlesAtZero(t *testing.T) {
	e, clock := newTestEngine(t)
	proto := newTestProto()
	m := resolvedMarket(t, e, clock, proto, decimal.NewFromInt(100), 100)

	loser := domain.NewPosition(uuid.New(), m.ID, 2)
	loser.Shares[1] = decimal.NewFromInt(500)

	rcpt, err := e.Claim(m, loser)
	if err != nil {
		t.Fatalf("losing claim failed: %v", err)
	}
	if !rcpt.Payout.IsZero() {
		t.Errorf("losing payout = %s, want 0", rcpt.Payout)
	}
	if !loser.Shares[1].IsZero() {
		t.Error("losing shares must be burned on settlement")
	}
}

func TestClaim_RequiresResolution(t *testing.T) {
	e, _ := newTestEngine(t)
	m := newTestMarket(uuid.New())
	pos := domain.NewPosition(uuid.New(), m.ID, 2)

	if _, err := e.Claim(m, pos); !errors.Is(err, domain.ErrMarketNotResolved) {
		t.Fatalf("err = %v, want ErrMarketNotResolved", err)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Close & creator fees
// ──────────────────────────────────────────────────────────────────────────────

func TestClose_Transitions(t *testing.T) {
	e, clock := newTestEngine(t)
	proto := newTestProto()

	m := newTestMarket(uuid.New())
	if err := e.Close(m); !errors.Is(err, domain.ErrMarketNotResolved) {
		t.Fatalf("close of open market err = %v, want ErrMarketNotResolved", err)
	}

	m = resolvedMarket(t, e, clock, proto, decimal.NewFromInt(100), 100)
	if err := e.Close(m); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if m.Status != domain.StatusClosed || m.ClosedAt == nil {
		t.Error("market must be closed with a timestamp")
	}

	if err := e.Close(m); !errors.Is(err, domain.ErrMarketClosed) {
		t.Errorf("double close err = %v, want ErrMarketClosed", err)
	}

	// claims are off once closed
	pos := domain.NewPosition(uuid.New(), m.ID, 2)
	pos.Shares[0] = decimal.NewFromInt(10)
	if _, err := e.Claim(m, pos); !errors.Is(err, domain.ErrMarketClosed) {
		t.Errorf("claim on closed market err = %v, want ErrMarketClosed", err)
	}
}

func TestClaimCreatorFees(t *testing.T) {
	e, _ := newTestEngine(t)
	m := newTestMarket(uuid.New())
	m.VaultBalance = decimal.NewFromInt(10)
	m.CreatorFeesClaimable = decimal.NewFromInt(3)

	if _, err := e.ClaimCreatorFees(m, uuid.New()); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("non-creator claim err = %v, want ErrUnauthorized", err)
	}

	amount, err := e.ClaimCreatorFees(m, m.Creator)
	if err != nil {
		t.Fatalf("ClaimCreatorFees failed: %v", err)
	}
	if !amount.Equal(decimal.NewFromInt(3)) {
		t.Errorf("claimed = %s, want 3", amount)
	}
	if !m.VaultBalance.Equal(decimal.NewFromInt(7)) {
		t.Errorf("vault = %s, want 7", m.VaultBalance)
	}
	if !m.CreatorFeesClaimable.IsZero() {
		t.Error("claimable must be zeroed")
	}

	again, err := e.ClaimCreatorFees(m, m.Creator)
	if err != nil || !again.IsZero() {
		t.Errorf("second claim = %s, %v; want zero no-op", again, err)
	}
}
