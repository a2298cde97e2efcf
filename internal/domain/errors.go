package domain

import "errors"

// Sentinel errors surfaced to API clients. Every one of these is locally
// recoverable by the caller; none are fatal to the process. Handlers map
// them to HTTP status codes, internal faults become ErrUnavailable.
var (
	// ErrRoomNotFound - no room exists with the given code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrPlayerNotFound - no player exists with the given id.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrRoomFinished - the room is terminal; joins and game actions are rejected.
	ErrRoomFinished = errors.New("room is finished")
	// ErrRoomInProgress - sync-mode rooms reject joiners after start.
	ErrRoomInProgress = errors.New("room already in progress")
	// ErrInvalidTransition - state machine rule violation (e.g. starting an
	// already-started room).
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrNotAuthorized - caller identity does not match the room creator.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrInsufficientData - the market window holds fewer trading days than
	// the session requires.
	ErrInsufficientData = errors.New("insufficient market data")
	// ErrMarketsClosed - action attempted on a non-trading day.
	ErrMarketsClosed = errors.New("markets are closed")
	// ErrRecommendationBlocked - buy attempted on a ticker whose
	// recommendation is not BUY or STRONG_BUY.
	ErrRecommendationBlocked = errors.New("buy blocked by recommendation")
	// ErrInsufficientCash - order total exceeds available cash.
	ErrInsufficientCash = errors.New("insufficient cash")
	// ErrInsufficientShares - sell exceeds held shares.
	ErrInsufficientShares = errors.New("insufficient shares")
	// ErrInvalidRequest - schema or range violation in a client payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnavailable - internal fault; clients should retry later.
	ErrUnavailable = errors.New("service unavailable")
)
