// Package ws holds WebSocket message types and the Hub implementation.
// messages.go defines all message structs broadcast to connected clients.
package ws

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evetabi/curvemarket/internal/domain"
)

// MsgType identifies the kind of WS message so clients can switch on it.
type MsgType string

const (
	MsgTypeCurveSnapshot  MsgType = "curve_snapshot"
	MsgTypeTradeExecuted  MsgType = "trade_executed"
	MsgTypeMarketCreated  MsgType = "market_created"
	MsgTypeMarketResolved MsgType = "market_resolved"
	MsgTypeRewardClaimed  MsgType = "reward_claimed"
	MsgTypeError          MsgType = "error"
)

// ──────────────────────────────────────────────────────────────────────────────
// CurveSnapshotMessage — periodic spot prices for every open market.
// ──────────────────────────────────────────────────────────────────────────────

// CurveSnapshotMessage carries the current summaries of all open markets so
// clients can refresh prices and countdowns without polling.
type CurveSnapshotMessage struct {
	Type      MsgType                 `json:"type"`
	Markets   []*domain.MarketSummary `json:"markets"`
	Timestamp time.Time               `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// TradeExecutedMessage — broadcast after each committed buy or sell.
// ──────────────────────────────────────────────────────────────────────────────

// TradeExecutedMessage notifies all clients that an outcome's issuance (and
// therefore its spot price) has moved. The trader's identity is not included.
type TradeExecutedMessage struct {
	Type      MsgType          `json:"type"`
	MarketID  uuid.UUID        `json:"market_id"`
	Outcome   int              `json:"outcome"`
	Side      domain.TradeSide `json:"side"`
	Shares    decimal.Decimal  `json:"shares"`
	Net       decimal.Decimal  `json:"net"`
	Timestamp time.Time        `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// MarketCreatedMessage — broadcast when a new market opens.
// ──────────────────────────────────────────────────────────────────────────────

// MarketCreatedMessage carries the summary of a freshly opened market.
type MarketCreatedMessage struct {
	Type      MsgType               `json:"type"`
	Market    *domain.MarketSummary `json:"market"`
	Timestamp time.Time             `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// MarketResolvedMessage — broadcast when a market is settled.
// ──────────────────────────────────────────────────────────────────────────────

// MarketResolvedMessage tells clients which outcome won and the pool size
// that winners will share once the claim timelock elapses.
type MarketResolvedMessage struct {
	Type           MsgType         `json:"type"`
	MarketID       uuid.UUID       `json:"market_id"`
	WinningOutcome int             `json:"winning_outcome"`
	WinnerPool     decimal.Decimal `json:"winner_pool"`
	ResolvedAt     time.Time       `json:"resolved_at"`
	Timestamp      time.Time       `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// RewardClaimedMessage — broadcast after a winnings claim pays out.
// ──────────────────────────────────────────────────────────────────────────────

// RewardClaimedMessage notifies clients that part of the winner pool left the
// vault. Payout amounts are public; the claimant's identity is not included.
type RewardClaimedMessage struct {
	Type      MsgType         `json:"type"`
	MarketID  uuid.UUID       `json:"market_id"`
	Outcome   int             `json:"outcome"`
	Payout    decimal.Decimal `json:"payout"`
	Timestamp time.Time       `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// ErrorMessage — sent to a single client on a non-fatal error.
// ──────────────────────────────────────────────────────────────────────────────

// ErrorMessage is sent directly to one client (not broadcast).
type ErrorMessage struct {
	Type    MsgType `json:"type"`
	Code    string  `json:"code"`
	Message string  `json:"message"`
}
