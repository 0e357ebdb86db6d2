package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure in the engine belongs to exactly one of these
// categories; specific errors below wrap their kind so callers can match
// either the precise error or the whole category with errors.Is.
var (
	ErrValidation    = errors.New("validation error")
	ErrAuthorization = errors.New("authorization error")
	ErrState         = errors.New("state error")
	ErrEconomic      = errors.New("economic error")
	ErrAccounting    = errors.New("accounting error")
)

// Error is a coded engine error bound to a taxonomy kind.
type Error struct {
	kind error
	code string
}

func (e *Error) Error() string { return e.code }
func (e *Error) Unwrap() error { return e.kind }

func coded(kind error, code string) *Error { return &Error{kind: kind, code: code} }

// Validation failures.
var (
	ErrInvalidQuestion       = coded(ErrValidation, "question must be 1-500 characters")
	ErrInvalidDescription    = coded(ErrValidation, "description must be at most 2000 characters")
	ErrInvalidOutcomeLabels  = coded(ErrValidation, "outcome labels must be 1-100 characters and distinct")
	ErrInvalidResolutionTime = coded(ErrValidation, "resolution time must be in the future and within 365 days")
	ErrInvalidEndTime        = coded(ErrValidation, "end time must be in the future and not after resolution time")
	ErrInvalidCurveParams    = coded(ErrValidation, "invalid curve parameters")
	ErrUnknownOutcome        = coded(ErrValidation, "outcome must be yes or no")
	ErrInvalidShareAmount    = coded(ErrValidation, "share amount must be positive")
	ErrInvalidParamValue     = coded(ErrValidation, "invalid parameter value")
)

// Authorization failures.
var (
	ErrUnauthorized = coded(ErrAuthorization, "caller lacks required role")
)

// State failures.
var (
	ErrInvalidState       = coded(ErrState, "action not valid in current market state")
	ErrResolutionTooEarly = coded(ErrState, "resolution time has not been reached")
	ErrBettingClosed      = coded(ErrState, "betting period has ended")
	ErrDisputeWindowOver  = coded(ErrState, "dispute window has closed")
	ErrDisputeWindowOpen  = coded(ErrState, "dispute window is still open")
	ErrDisputeActive      = coded(ErrState, "market already has an active dispute")
	ErrFactoryPaused      = coded(ErrState, "market creation is paused")
	ErrCreationDisabled   = coded(ErrState, "market creation is disabled")
	ErrCurveNotFound      = coded(ErrState, "curve not registered")
	ErrCurveInactive      = coded(ErrState, "curve is deactivated")
	ErrCurveExists        = coded(ErrState, "curve already registered")
)

// Economic failures.
var (
	ErrBetTooSmall        = coded(ErrEconomic, "bet below minimum")
	ErrBetTooLarge        = coded(ErrEconomic, "bet above maximum")
	ErrSlippageTooHigh    = coded(ErrEconomic, "executed odds below requested minimum")
	ErrInsufficientShares = coded(ErrEconomic, "insufficient shares to sell")
	ErrInsufficientBond   = coded(ErrEconomic, "bond below minimum")
	ErrInsufficientFunds  = coded(ErrEconomic, "insufficient funds")
	ErrTradeTooLarge      = coded(ErrEconomic, "trade too large for curve")
)

// Accounting failures.
var (
	ErrNoBondHeld     = coded(ErrAccounting, "no creator bond held")
	ErrAlreadyClaimed = coded(ErrAccounting, "payout already claimed")
	ErrNoWinnings     = coded(ErrAccounting, "no winnings to claim")
)

// Infrastructure sentinels shared by stores and caches.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrLockHeld      = errors.New("lock already held")
)

// StateTransitionError reports an attempted transition that the market
// lifecycle does not permit. It matches ErrInvalidState (and therefore
// ErrState) via errors.Is.
type StateTransitionError struct {
	From   MarketState
	Action string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s while market is %s", e.Action, e.From)
}

func (e *StateTransitionError) Unwrap() error { return ErrInvalidState }
