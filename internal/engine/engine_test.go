package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evetabi/curvemarket/internal/curve"
	"github.com/evetabi/curvemarket/internal/domain"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeClock is a mutable clock for pinning slots and the claim timelock.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestEngine(t *testing.T) (*Engine, *fakeClock) {
	t.Helper()
	c, err := curve.New(curve.DefaultParams())
	if err != nil {
		t.Fatalf("curve.New failed: %v", err)
	}
	clock := &fakeClock{now: testStart}
	return New(c, DefaultConfig()).WithClock(clock.Now), clock
}

func newTestMarket(creator uuid.UUID) *domain.Market {
	return &domain.Market{
		ID:      domain.DeriveMarketID(creator, "test market"),
		Creator: creator,
		Title:   "test market",
		Status:  domain.StatusOpen,
		Outcomes: []domain.OutcomeState{
			{Index: 0, Label: "YES", SharesIssued: decimal.Zero},
			{Index: 1, Label: "NO", SharesIssued: decimal.Zero},
		},
		VaultBalance:         decimal.Zero,
		CreatorFeesClaimable: decimal.Zero,
		EndTime:              testStart.Add(24 * time.Hour),
	}
}

func newTestProto() *domain.ProtocolState {
	return &domain.ProtocolState{AuthorityID: uuid.New(), TreasuryID: uuid.New()}
}

// ──────────────────────────────────────────────────────────────────────────────
// Buy
// ──────────────────────────────────────────────────────────────────────────────

func TestBuy_FeeComesOffTheTop(t *testing.T) {
	e, _ := newTestEngine(t)
	m := newTestMarket(uuid.New())
	proto := newTestProto()
	pos := domain.NewPosition(uuid.New(), m.ID, 2)

	rcpt, err := e.Buy(m, pos, proto, domain.BuyRequest{
		UserID:   pos.UserID,
		MarketID: m.ID,
		Outcome:  0,
		Amount:   decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	if !rcpt.Fee.Equal(decimal.NewFromFloat(0.01)) {
		t.Errorf("fee = %s, want 0.01", rcpt.Fee)
	}
	if !rcpt.Net.Equal(decimal.NewFromFloat(0.99)) {
		t.Errorf("net = %s, want 0.99", rcpt.Net)
	}
	if !rcpt.CreatorFee.Equal(decimal.NewFromFloat(0.005)) {
		t.Errorf("creator fee = %s, want 0.005", rcpt.CreatorFee)
	}
	if !rcpt.TreasuryFee.Equal(decimal.NewFromFloat(0.005)) {
		t.Errorf("treasury fee = %s, want 0.005", rcpt.TreasuryFee)
	}
	if !rcpt.Shares.IsPositive() {
		t.Error("a 1.0 buy on a fresh curve must issue shares")
	}

	// vault holds the curve spend plus the accrued creator fee
	wantVault := rcpt.Net.Add(rcpt.CreatorFee)
	if !m.VaultBalance.Equal(wantVault) {
		t.Errorf("vault = %s, want %s", m.VaultBalance, wantVault)
	}
	if !m.CreatorFeesClaimable.Equal(rcpt.CreatorFee) {
		t.Errorf("creator claimable = %s, want %s", m.CreatorFeesClaimable, rcpt.CreatorFee)
	}
	if !m.Outcomes[0].SharesIssued.Equal(rcpt.Shares) {
		t.Errorf("shares issued = %s, want %s", m.Outcomes[0].SharesIssued, rcpt.Shares)
	}
	if !pos.Shares[0].Equal(rcpt.Shares) {
		t.Errorf("position shares = %s, want %s", pos.Shares[0], rcpt.Shares)
	}
	if !pos.Invested.Equal(decimal.NewFromInt(1)) {
		t.Errorf("invested = %s, want 1", pos.Invested)
	}
}

func TestBuy_TreasuryCreatedMarketSendsFullFeeToTreasury(t *testing.T) {
	e, _ := newTestEngine(t)
	proto := newTestProto()
	m := newTestMarket(proto.TreasuryID)
	pos := domain.NewPosition(uuid.New(), m.ID, 2)

	rcpt, err := e.Buy(m, pos, proto, domain.BuyRequest{
		UserID: pos.UserID, MarketID: m.ID, Outcome: 0, Amount: decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if !rcpt.CreatorFee.IsZero() {
		t.Errorf("creator fee = %s, want 0 for treasury-created market", rcpt.CreatorFee)
	}
	if !rcpt.TreasuryFee.Equal(rcpt.Fee) {
		t.Errorf("treasury fee = %s, want full fee %s", rcpt.TreasuryFee, rcpt.Fee)
	}
	if !m.CreatorFeesClaimable.IsZero() {
		t.Errorf("creator claimable = %s, want 0", m.CreatorFeesClaimable)
	}
}

func TestBuy_SameSlotPaysBotFee(t *testing.T) {
	e, clock := newTestEngine(t)
	m := newTestMarket(uuid.New())
	proto := newTestProto()
	pos := domain.NewPosition(uuid.New(), m.ID, 2)

	req := domain.BuyRequest{UserID: pos.UserID, MarketID: m.ID, Outcome: 0, Amount: decimal.NewFromInt(1)}

	first, err := e.Buy(m, pos, proto, req)
	if err != nil {
		t.Fatalf("first buy failed: %v", err)
	}
	if !first.Fee.Equal(decimal.NewFromFloat(0.01)) {
		t.Fatalf("first fee = %s, want 0.01", first.Fee)
	}

	// same slot: escalated fee
	second, err := e.Buy(m, pos, proto, req)
	if err != nil {
		t.Fatalf("second buy failed: %v", err)
	}
	if !second.Fee.Equal(decimal.NewFromFloat(0.15)) {
		t.Errorf("same-slot fee = %s, want 0.15", second.Fee)
	}

	// next slot: back to standard
	clock.Advance(time.Second)
	third, err := e.Buy(m, pos, proto, req)
	if err != nil {
		t.Fatalf("third buy failed: %v", err)
	}
	if !third.Fee.Equal(decimal.NewFromFloat(0.01)) {
		t.Errorf("next-slot fee = %s, want 0.01", third.Fee)
	}
}

func TestBuy_SlippageRejectedWithoutMutation(t *testing.T) {
	e, _ := newTestEngine(t)
	m := newTestMarket(uuid.New())
	proto := newTestProto()
	pos := domain.NewPosition(uuid.New(), m.ID, 2)

	_, err := e.Buy(m, pos, proto, domain.BuyRequest{
		UserID:       pos.UserID,
		MarketID:     m.ID,
		Outcome:      0,
		Amount:       decimal.NewFromInt(1),
		MinSharesOut: decimal.NewFromInt(100_000_000_000),
	})
	if !errors.Is(err, domain.ErrSlippageExceeded) {
		t.Fatalf("err = %v, want ErrSlippageExceeded", err)
	}
	if !m.VaultBalance.IsZero() || !m.Outcomes[0].SharesIssued.IsZero() {
		t.Error("rejected buy must leave the market untouched")
	}
	if !pos.Invested.IsZero() || !pos.Shares[0].IsZero() {
		t.Error("rejected buy must leave the position untouched")
	}
}

func TestBuy_WhaleCapPerWalletPerOutcome(t *testing.T) {
	e, _ := newTestEngine(t)
	m := newTestMarket(uuid.New())
	proto := newTestProto()

	cap := decimal.NewFromInt(50_000_000) // 5% of 1B

	// wallet already at the cap minus one share: any multi-share buy breaks it
	whale := domain.NewPosition(uuid.New(), m.ID, 2)
	whale.Shares[0] = cap.Sub(decimal.NewFromInt(1))
	m.Outcomes[0].SharesIssued = whale.Shares[0]

	_, err := e.Buy(m, whale, proto, domain.BuyRequest{
		UserID: whale.UserID, MarketID: m.ID, Outcome: 0, Amount: decimal.NewFromInt(100),
	})
	if !errors.Is(err, domain.ErrWhaleCapExceeded) {
		t.Fatalf("err = %v, want ErrWhaleCapExceeded", err)
	}

	// a different wallet in the same outcome is capped independently
	other := domain.NewPosition(uuid.New(), m.ID, 2)
	if _, err := e.Buy(m, other, proto, domain.BuyRequest{
		UserID: other.UserID, MarketID: m.ID, Outcome: 0, Amount: decimal.NewFromInt(10),
	}); err != nil {
		t.Errorf("independent wallet under the cap must trade: %v", err)
	}

	// the whale may still buy the other outcome
	if _, err := e.Buy(m, whale, proto, domain.BuyRequest{
		UserID: whale.UserID, MarketID: m.ID, Outcome: 1, Amount: decimal.NewFromInt(10),
	}); err != nil {
		t.Errorf("cap is per outcome, other outcome must trade: %v", err)
	}
}

func TestBuy_SupplyCeilingClampRefundsUnspent(t *testing.T) {
	e, _ := newTestEngine(t)
	m := newTestMarket(uuid.New())
	proto := newTestProto()
	pos := domain.NewPosition(uuid.New(), m.ID, 2)

	total := decimal.NewFromInt(1_000_000_000)
	m.Outcomes[0].SharesIssued = total.Sub(decimal.NewFromInt(5))

	rcpt, err := e.Buy(m, pos, proto, domain.BuyRequest{
		UserID: pos.UserID, MarketID: m.ID, Outcome: 0, Amount: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if !rcpt.Shares.Equal(decimal.NewFromInt(5)) {
		t.Errorf("shares = %s, want the 5 remaining", rcpt.Shares)
	}
	if !rcpt.Refund.IsPositive() {
		t.Error("clamped buy must refund the unspent budget")
	}
	if !rcpt.Gross.Equal(rcpt.Net.Add(rcpt.Fee)) {
		t.Errorf("gross %s != net %s + fee %s", rcpt.Gross, rcpt.Net, rcpt.Fee)
	}
	// the fee basis is the committed amount, not the clamped curve spend
	if !rcpt.Fee.Equal(decimal.NewFromFloat(0.1)) {
		t.Errorf("fee = %s, want 0.1 on the full committed amount", rcpt.Fee)
	}
	if !m.Outcomes[0].SharesIssued.Equal(total) {
		t.Errorf("issued = %s, want exactly total supply", m.Outcomes[0].SharesIssued)
	}

	// the ceiling is hard: more money mints nothing further
	again, err := e.Buy(m, pos, proto, domain.BuyRequest{
		UserID: pos.UserID, MarketID: m.ID, Outcome: 0, Amount: decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("post-ceiling buy failed: %v", err)
	}
	if !again.Shares.IsZero() || !again.Gross.IsZero() {
		t.Errorf("post-ceiling buy minted %s shares for %s, want zero effect", again.Shares, again.Gross)
	}
}

func TestBuy_DustAmountIsZeroEffect(t *testing.T) {
	e, _ := newTestEngine(t)
	m := newTestMarket(uuid.New())
	proto := newTestProto()
	pos := domain.NewPosition(uuid.New(), m.ID, 2)

	rcpt, err := e.Buy(m, pos, proto, domain.BuyRequest{
		UserID: pos.UserID, MarketID: m.ID, Outcome: 0, Amount: decimal.NewFromFloat(0.0000001),
	})
	if err != nil {
		t.Fatalf("dust buy must succeed as a no-op: %v", err)
	}
	if !rcpt.Shares.IsZero() || !rcpt.Gross.IsZero() || !rcpt.Fee.IsZero() {
		t.Errorf("dust buy receipt not zero: %+v", rcpt)
	}
	if !m.VaultBalance.IsZero() || !pos.Invested.IsZero() {
		t.Error("dust buy must not move money")
	}
}

func TestBuy_DustAmountWithFloorRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	m := newTestMarket(uuid.New())
	proto := newTestProto()
	pos := domain.NewPosition(uuid.New(), m.ID, 2)

	// a budget too small to mint anything can never satisfy a positive floor
	_, err := e.Buy(m, pos, proto, domain.BuyRequest{
		UserID:       pos.UserID,
		MarketID:     m.ID,
		Outcome:      0,
		Amount:       decimal.NewFromFloat(0.0000001),
		MinSharesOut: decimal.NewFromInt(10),
	})
	if !errors.Is(err, domain.ErrSlippageExceeded) {
		t.Fatalf("err = %v, want ErrSlippageExceeded", err)
	}
	if !m.VaultBalance.IsZero() || !m.Outcomes[0].SharesIssued.IsZero() {
		t.Error("rejected dust buy must leave the market untouched")
	}
	if !pos.Invested.IsZero() || !pos.Shares[0].IsZero() {
		t.Error("rejected dust buy must leave the position untouched")
	}
}

func TestBuy_Rejections(t *testing.T) {
	e, clock := newTestEngine(t)
	m := newTestMarket(uuid.New())
	proto := newTestProto()
	pos := domain.NewPosition(uuid.New(), m.ID, 2)

	cases := []struct {
		name string
		req  domain.BuyRequest
		want error
	}{
		{"zero amount", domain.BuyRequest{Outcome: 0, Amount: decimal.Zero}, domain.ErrInvalidAmount},
		{"negative amount", domain.BuyRequest{Outcome: 0, Amount: decimal.NewFromInt(-5)}, domain.ErrInvalidAmount},
		{"amount above ceiling", domain.BuyRequest{Outcome: 0, Amount: decimal.NewFromInt(2_000_000_000)}, domain.ErrInvalidAmount},
		{"outcome out of range", domain.BuyRequest{Outcome: 9, Amount: decimal.NewFromInt(1)}, domain.ErrInvalidOutcome},
		{"negative outcome", domain.BuyRequest{Outcome: -1, Amount: decimal.NewFromInt(1)}, domain.ErrInvalidOutcome},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.Buy(m, pos, proto, tc.req); !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}

	t.Run("after end time", func(t *testing.T) {
		clock.Advance(48 * time.Hour)
		_, err := e.Buy(m, pos, proto, domain.BuyRequest{Outcome: 0, Amount: decimal.NewFromInt(1)})
		if !errors.Is(err, domain.ErrMarketClosed) {
			t.Errorf("err = %v, want ErrMarketClosed", err)
		}
	})
}

// ──────────────────────────────────────────────────────────────────────────────
// Sell
// ──────────────────────────────────────────────────────────────────────────────

func TestSell_GhostSellRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	m := newTestMarket(uuid.New())
	proto := newTestProto()
	pos := domain.NewPosition(uuid.New(), m.ID, 2)

	// the market has issuance, but this wallet holds nothing
	m.Outcomes[0].SharesIssued = decimal.NewFromInt(1_000_000)

	_, err := e.Sell(m, pos, proto, domain.SellRequest{
		UserID: pos.UserID, MarketID: m.ID, Outcome: 0, Shares: decimal.NewFromInt(100),
	})
	if !errors.Is(err, domain.ErrInsufficientShares) {
		t.Fatalf("err = %v, want ErrInsufficientShares", err)
	}
	if !m.Outcomes[0].SharesIssued.Equal(decimal.NewFromInt(1_000_000)) {
		t.Error("rejected sell must leave issuance untouched")
	}
}

func TestSell_RoundTripConservesVault(t *testing.T) {
	e, clock := newTestEngine(t)
	m := newTestMarket(uuid.New())
	proto := newTestProto()
	pos := domain.NewPosition(uuid.New(), m.ID, 2)

	buy, err := e.Buy(m, pos, proto, domain.BuyRequest{
		UserID: pos.UserID, MarketID: m.ID, Outcome: 0, Amount: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	clock.Advance(time.Second) // avoid the anti-bot rate

	sell, err := e.Sell(m, pos, proto, domain.SellRequest{
		UserID: pos.UserID, MarketID: m.ID, Outcome: 0, Shares: buy.Shares,
	})
	if err != nil {
		t.Fatalf("Sell failed: %v", err)
	}

	if !sell.Gross.Equal(sell.Net.Add(sell.Fee)) {
		t.Errorf("gross %s != net %s + fee %s", sell.Gross, sell.Net, sell.Fee)
	}
	if !m.Outcomes[0].SharesIssued.IsZero() {
		t.Errorf("issuance after full round trip = %s, want 0", m.Outcomes[0].SharesIssued)
	}
	if !pos.Shares[0].IsZero() {
		t.Errorf("position after full round trip = %s, want 0", pos.Shares[0])
	}

	// vault = deposits - withdrawals, down to the last unit
	wantVault := buy.Net.Add(buy.CreatorFee).Sub(sell.Gross).Add(sell.CreatorFee)
	if !m.VaultBalance.Equal(wantVault) {
		t.Errorf("vault = %s, want %s", m.VaultBalance, wantVault)
	}
	if m.VaultBalance.IsNegative() {
		t.Errorf("vault went negative: %s", m.VaultBalance)
	}
	if !pos.Withdrawn.Equal(sell.Net) {
		t.Errorf("withdrawn = %s, want %s", pos.Withdrawn, sell.Net)
	}
}

func TestSell_SlippageFloor(t *testing.T) {
	e, clock := newTestEngine(t)
	m := newTestMarket(uuid.New())
	proto := newTestProto()
	pos := domain.NewPosition(uuid.New(), m.ID, 2)

	buy, err := e.Buy(m, pos, proto, domain.BuyRequest{
		UserID: pos.UserID, MarketID: m.ID, Outcome: 0, Amount: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	clock.Advance(time.Second)

	_, err = e.Sell(m, pos, proto, domain.SellRequest{
		UserID:       pos.UserID,
		MarketID:     m.ID,
		Outcome:      0,
		Shares:       buy.Shares,
		MinAmountOut: decimal.NewFromInt(1_000_000),
	})
	if !errors.Is(err, domain.ErrSlippageExceeded) {
		t.Fatalf("err = %v, want ErrSlippageExceeded", err)
	}
}

func TestSell_RejectsFractionalShares(t *testing.T) {
	e, _ := newTestEngine(t)
	m := newTestMarket(uuid.New())
	proto := newTestProto()
	pos := domain.NewPosition(uuid.New(), m.ID, 2)
	pos.Shares[0] = decimal.NewFromInt(10)
	m.Outcomes[0].SharesIssued = decimal.NewFromInt(10)

	_, err := e.Sell(m, pos, proto, domain.SellRequest{
		UserID: pos.UserID, MarketID: m.ID, Outcome: 0, Shares: decimal.NewFromFloat(1.5),
	})
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
}
