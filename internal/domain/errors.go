package domain

import (
	"errors"
	"fmt"
)

// EngineError is the unified error type for the move supervisor.
// Each error has a numeric code and human-readable message.
type EngineError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
}

// Is matches on code so wrapped copies compare equal to their sentinel.
func (e *EngineError) Is(target error) bool {
	var t *EngineError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewEngineError creates a new EngineError.
func NewEngineError(code int, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg}
}

// WrapEngineError creates an EngineError that includes a cause.
func WrapEngineError(code int, msg string, cause error) *EngineError {
	if cause == nil {
		return &EngineError{Code: code, Message: msg}
	}
	return &EngineError{Code: code, Message: fmt.Sprintf("%s: %v", msg, cause)}
}

// ---- Attempt outcomes, recovered by fallback (-32040 to -32069) ----

var (
	ErrEngineTimeout  = &EngineError{Code: -32040, Message: "decision engine exceeded its deadline"}
	ErrEngineCrashed  = &EngineError{Code: -32041, Message: "decision engine process terminated abnormally"}
	ErrEngineInvalid  = &EngineError{Code: -32042, Message: "decision engine returned an invalid answer"}
	ErrPoolExhausted  = &EngineError{Code: -32043, Message: "no worker slot available"}
	ErrUnknownEngine  = &EngineError{Code: -32044, Message: "decision engine not registered"}
	ErrWorkerProtocol = &EngineError{Code: -32045, Message: "worker protocol violation"}
)

// ---- Legality (-32070 to -32089) ----

var (
	ErrCardNotHeld    = &EngineError{Code: -32070, Message: "card is not in the seat's hand"}
	ErrMustFollowSuit = &EngineError{Code: -32071, Message: "seat must follow the led suit"}
	ErrInvalidCard    = &EngineError{Code: -32072, Message: "not a card of the standard deck"}
)

// ---- Configuration class, fatal (-32130 to -32159) ----

var (
	ErrStoreInit         = &EngineError{Code: -32130, Message: "failed to initialize store"}
	ErrStoreQuery        = &EngineError{Code: -32131, Message: "store query failed"}
	ErrStoreWrite        = &EngineError{Code: -32132, Message: "store write failed"}
	ErrDecisionNotFound  = &EngineError{Code: -32133, Message: "decision not found"}
	ErrTierNotRegistered = &EngineError{Code: -32135, Message: "difficulty tier not registered"}
	ErrConfigInvalid     = &EngineError{Code: -32136, Message: "invalid configuration"}
	ErrMalformedSnapshot = &EngineError{Code: -32137, Message: "malformed game state snapshot"}
)

// ---- API (-32160 to -32169) ----

var (
	ErrInvalidRequest    = &EngineError{Code: -32160, Message: "invalid move request"}
	ErrRateLimitExceeded = &EngineError{Code: -32161, Message: "move rate limit exceeded"}
)

// IsConfigurationError reports whether err belongs to the fatal class that the
// supervisor surfaces instead of recovering through fallback.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrTierNotRegistered) ||
		errors.Is(err, ErrConfigInvalid) ||
		errors.Is(err, ErrMalformedSnapshot)
}
