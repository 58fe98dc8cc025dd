package errors

import (
	"errors"
	"fmt"
	"math/big"
)

// Kind classifies an engine error.
type Kind uint

const (
	// KindUnknown represents an unclassified error
	KindUnknown Kind = iota
	// KindInvalidInput represents a zero or negative price, strike, notional or volatility
	KindInvalidInput
	// KindDivisionByZero represents zero volatility or zero sqrt(t) with nonzero time
	KindDivisionByZero
	// KindPriceUnavailable represents a price feed failure or a stale quote
	KindPriceUnavailable
	// KindDuplicateID represents an attempt to register an already known position id
	KindDuplicateID
	// KindNotFound represents a lookup of an unknown position or portfolio
	KindNotFound
	// KindLimitExceeded represents a failed admission or limit check
	KindLimitExceeded
	// KindLiquidationNotJustified represents a liquidation attempt without a qualifying condition
	KindLiquidationNotJustified
	// KindOverflow represents fixed-point arithmetic leaving the working range
	KindOverflow
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindDivisionByZero:
		return "division_by_zero"
	case KindPriceUnavailable:
		return "price_unavailable"
	case KindDuplicateID:
		return "duplicate_id"
	case KindNotFound:
		return "not_found"
	case KindLimitExceeded:
		return "limit_exceeded"
	case KindLiquidationNotJustified:
		return "liquidation_not_justified"
	case KindOverflow:
		return "overflow"
	}
	return "unknown"
}

// EngineError is the typed error value returned by every public engine operation.
type EngineError struct {
	Kind    Kind
	Message string
	Err     error

	// Limit and Excess are populated on KindLimitExceeded so the caller
	// can see which limit failed and by how much.
	Limit  string
	Excess *big.Int
}

func (e *EngineError) Error() string {
	if e.Limit != "" && e.Excess != nil {
		return fmt.Sprintf("%s: %s (limit %s exceeded by %s)", e.Kind, e.Message, e.Limit, e.Excess.String())
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match two EngineErrors by kind.
func (e *EngineError) Is(target error) bool {
	var t *EngineError
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// KindOf returns the Kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Wrap attaches a message to err without changing its kind.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &EngineError{Kind: KindOf(err), Message: message, Err: err}
}

// InvalidInput creates a new invalid input error.
func InvalidInput(format string, args ...interface{}) error {
	return &EngineError{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// DivisionByZero creates a new division by zero error.
func DivisionByZero(format string, args ...interface{}) error {
	return &EngineError{Kind: KindDivisionByZero, Message: fmt.Sprintf(format, args...)}
}

// PriceUnavailable creates a new price unavailable error.
func PriceUnavailable(format string, args ...interface{}) error {
	return &EngineError{Kind: KindPriceUnavailable, Message: fmt.Sprintf(format, args...)}
}

// DuplicateID creates a new duplicate id error.
func DuplicateID(id string) error {
	return &EngineError{Kind: KindDuplicateID, Message: "position already registered: " + id}
}

// NotFound creates a new not found error.
func NotFound(what, id string) error {
	return &EngineError{Kind: KindNotFound, Message: what + " not found: " + id}
}

// LimitExceeded creates an admission failure naming the breached limit and
// the amount by which it was exceeded.
func LimitExceeded(limit string, excess *big.Int, format string, args ...interface{}) error {
	return &EngineError{
		Kind:    KindLimitExceeded,
		Message: fmt.Sprintf(format, args...),
		Limit:   limit,
		Excess:  excess,
	}
}

// LiquidationNotJustified creates a rejected liquidation error.
func LiquidationNotJustified(id string) error {
	return &EngineError{Kind: KindLiquidationNotJustified, Message: "no qualifying liquidation condition for position " + id}
}

// Overflow creates a new arithmetic overflow error.
func Overflow(format string, args ...interface{}) error {
	return &EngineError{Kind: KindOverflow, Message: fmt.Sprintf(format, args...)}
}
