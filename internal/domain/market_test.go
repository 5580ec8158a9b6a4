package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestDeriveMarketID_Deterministic(t *testing.T) {
	creator := uuid.New()

	a := DeriveMarketID(creator, "Will it rain tomorrow?")
	b := DeriveMarketID(creator, "Will it rain tomorrow?")
	if a != b {
		t.Fatalf("same (creator, title) must derive the same id: %s vs %s", a, b)
	}

	c := DeriveMarketID(creator, "Will it snow tomorrow?")
	if a == c {
		t.Fatal("different titles must derive different ids")
	}

	d := DeriveMarketID(uuid.New(), "Will it rain tomorrow?")
	if a == d {
		t.Fatal("different creators must derive different ids")
	}
}

func TestMarket_TradingOpen(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := &Market{Status: StatusOpen, EndTime: now.Add(time.Hour)}

	if !m.TradingOpen(now) {
		t.Error("open market before end time should accept trades")
	}
	if m.TradingOpen(now.Add(2 * time.Hour)) {
		t.Error("open market after end time should reject trades")
	}

	m.Status = StatusResolved
	if m.TradingOpen(now) {
		t.Error("resolved market should reject trades")
	}
}

func TestMarket_NetPool(t *testing.T) {
	m := &Market{
		VaultBalance:         decimal.NewFromFloat(100.5),
		CreatorFeesClaimable: decimal.NewFromFloat(0.5),
	}
	if got := m.NetPool(); !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("NetPool = %s, want 100", got)
	}
}

func TestMarket_Outcome(t *testing.T) {
	m := &Market{Outcomes: []OutcomeState{
		{Index: 0, Label: "YES"},
		{Index: 1, Label: "NO"},
	}}

	if o := m.Outcome(1); o == nil || o.Label != "NO" {
		t.Errorf("Outcome(1) = %+v, want NO", o)
	}
	if m.Outcome(-1) != nil || m.Outcome(2) != nil {
		t.Error("out-of-range outcome index must return nil")
	}
}

func TestMarket_TotalSharesIssued(t *testing.T) {
	m := &Market{Outcomes: []OutcomeState{
		{SharesIssued: decimal.NewFromInt(1000)},
		{SharesIssued: decimal.NewFromInt(250)},
	}}
	if got := m.TotalSharesIssued(); !got.Equal(decimal.NewFromInt(1250)) {
		t.Errorf("TotalSharesIssued = %s, want 1250", got)
	}
}

func TestPosition_SharesOf(t *testing.T) {
	p := NewPosition(uuid.New(), uuid.New(), 3)
	if !p.IsEmpty() {
		t.Error("fresh position should be empty")
	}

	p.Shares[2] = decimal.NewFromInt(7)
	if got := p.SharesOf(2); !got.Equal(decimal.NewFromInt(7)) {
		t.Errorf("SharesOf(2) = %s, want 7", got)
	}
	if !p.SharesOf(5).IsZero() {
		t.Error("out-of-range SharesOf must be zero")
	}
	if p.IsEmpty() {
		t.Error("position with shares should not be empty")
	}
}
