package domain

import (
	"errors"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors — compare with errors.Is()
// ──────────────────────────────────────────────────────────────────────────────

// Market errors
var (
	// ErrMarketNotFound is returned when no market matches the given criteria.
	ErrMarketNotFound = errors.New("market not found")

	// ErrMarketExists is returned when creating a market whose derived id
	// (creator, title) already exists.
	ErrMarketExists = errors.New("market already exists for this creator and title")

	// ErrMarketClosed is returned when a trade or claim is attempted outside
	// the market's valid window: trading after end_time or resolution, or
	// claiming after the market has been closed out.
	ErrMarketClosed = errors.New("market is closed for this operation")

	// ErrMarketAlreadyResolved is returned when trying to resolve an already-
	// resolved market.
	ErrMarketAlreadyResolved = errors.New("market is already resolved")

	// ErrMarketNotResolved is returned when a claim or close-out is attempted
	// on a market that has not been resolved yet.
	ErrMarketNotResolved = errors.New("market is not resolved")

	// ErrInvalidOutcome is returned when the outcome index is out of range for
	// the market.
	ErrInvalidOutcome = errors.New("invalid outcome index")

	// ErrInvalidMarket is returned for bad market creation parameters: too few
	// outcomes, a blank title, or an end time in the past.
	ErrInvalidMarket = errors.New("invalid market parameters")
)

// Trade errors
var (
	// ErrInvalidAmount is returned for zero, negative, or out-of-range trade
	// amounts and share counts (the engine's overflow guard).
	ErrInvalidAmount = errors.New("amount is zero, negative, or out of range")

	// ErrSlippageExceeded is returned when the computed output is worse than
	// the caller-supplied minimum.
	ErrSlippageExceeded = errors.New("output below caller's slippage floor")

	// ErrWhaleCapExceeded is returned when a buy would push one wallet's
	// holding in one outcome above the per-wallet supply cap.
	ErrWhaleCapExceeded = errors.New("per-wallet supply cap exceeded for this outcome")

	// ErrInsufficientShares is returned on a sell of more shares than the
	// caller holds ("ghost sell").
	ErrInsufficientShares = errors.New("insufficient shares for this outcome")

	// ErrTimelockActive is returned when a reward claim arrives before the
	// post-resolution timelock has elapsed.
	ErrTimelockActive = errors.New("claim timelock has not elapsed yet")
)

// User / wallet errors
var (
	// ErrUserNotFound is returned when no user matches the given criteria.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailTaken is returned on registration when the email already exists.
	ErrEmailTaken = errors.New("email address is already registered")

	// ErrUsernameTaken is returned on registration when the username already exists.
	ErrUsernameTaken = errors.New("username is already taken")

	// ErrInvalidCredentials is returned when login credentials are wrong.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrUserInactive is returned when a suspended/banned user attempts an action.
	ErrUserInactive = errors.New("user account is inactive")

	// ErrInsufficientBalance is returned when a user's available balance is too
	// low to fund a buy or the market creation fee.
	ErrInsufficientBalance = errors.New("insufficient wallet balance")

	// ErrWalletNotFound is returned when no wallet exists for the requested user.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrPositionNotFound is returned when a user has no position in a market.
	ErrPositionNotFound = errors.New("position not found")
)

// Auth errors
var (
	// ErrUnauthorized is returned when a valid token is not present, or when a
	// caller attempts an authority-only operation (market resolution, protocol
	// parameter changes) without being the protocol authority.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the authenticated user lacks the required role.
	ErrForbidden = errors.New("forbidden: insufficient permissions")

	// ErrTokenExpired is returned when a JWT or refresh token has passed its TTL.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenInvalid is returned when a token cannot be parsed or its signature
	// does not match.
	ErrTokenInvalid = errors.New("token is invalid")
)

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates
// ──────────────────────────────────────────────────────────────────────────────

// notFoundErrors collects all "entity not found" sentinel errors so that
// IsNotFound can stay in sync automatically.
var notFoundErrors = []error{
	ErrMarketNotFound,
	ErrUserNotFound,
	ErrWalletNotFound,
	ErrPositionNotFound,
}

// IsNotFound returns true when err (or any error in its chain) is one of the
// domain "not found" errors. Use this instead of comparing error values directly
// when you need to translate domain errors to HTTP 404 responses.
func IsNotFound(err error) bool {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict returns true for errors that represent a state conflict (e.g.
// duplicate market creation or double-resolution).
func IsConflict(err error) bool {
	conflictErrors := []error{
		ErrEmailTaken,
		ErrUsernameTaken,
		ErrMarketExists,
		ErrMarketAlreadyResolved,
		ErrMarketClosed,
		ErrTimelockActive,
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsRejectedTrade returns true for trade-precondition failures: the caller's
// request was understood but refused by one of the engine guards. These map to
// 4xx responses and must leave no state mutation behind.
func IsRejectedTrade(err error) bool {
	tradeErrors := []error{
		ErrInvalidAmount,
		ErrSlippageExceeded,
		ErrWhaleCapExceeded,
		ErrInsufficientShares,
		ErrInvalidOutcome,
	}
	for _, target := range tradeErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsAuthError returns true for authentication/authorisation errors.
func IsAuthError(err error) bool {
	authErrors := []error{
		ErrUnauthorized,
		ErrForbidden,
		ErrTokenExpired,
		ErrTokenInvalid,
		ErrInvalidCredentials,
	}
	for _, target := range authErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
