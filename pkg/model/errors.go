package model

import "errors"

// Quoting-stage errors. All of these are recoverable: the coordinator stays
// in Idle and the caller may retry with the same inputs.
var (
	// ErrQuoteUnavailable means the maker has no liquidity for the pair, or
	// the pair is not tradable at all.
	ErrQuoteUnavailable = errors.New("quote unavailable")

	// ErrNetwork covers connectivity failures and timeouts against the venue.
	ErrNetwork = errors.New("network failure")

	// ErrInvalidResponse means the venue returned a quote that fails its own
	// invariants. Such a quote must never be surfaced to the caller.
	ErrInvalidResponse = errors.New("invalid quote response")
)

// Handshake-stage errors. All of these fail the execution terminally: the
// RFQ is burned and a fresh quote is required.
var (
	ErrQuoteExpired      = errors.New("quote expired")
	ErrQuoteNotFound     = errors.New("quote not found")
	ErrHandshakeRejected = errors.New("handshake rejected")
	ErrExecutionRejected = errors.New("execution rejected")
)

// Coordinator guard errors.
var (
	// ErrSwapInProgress is returned when a second execution is attempted
	// while a non-terminal one exists.
	ErrSwapInProgress = errors.New("swap already in progress")

	// ErrNoQuote is returned when execution is requested with no accepted
	// quote held by the coordinator.
	ErrNoQuote = errors.New("no quote to execute")
)
