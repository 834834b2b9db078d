package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidOrder = errors.New("invalid order parameters")
	ErrWSDisconnect = errors.New("websocket disconnected")
	ErrEngineHalted = errors.New("execution engine halted")

	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInsufficientAsset = errors.New("insufficient asset balance")
	ErrUnknownSymbol     = errors.New("unknown symbol")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrPriceUnknown      = errors.New("price unknown")
	ErrDuplicateOrder    = errors.New("duplicate client order id")
)

// ValidationError is an expected, non-fatal rejection of an order intent.
// Err is one of the validation sentinels above.
type ValidationError struct {
	Symbol Symbol
	Side   OrderSide
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rejected %s %s: %v", e.Side, e.Symbol, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ExternalCallError wraps a failure of a broker or policy call. The intent is
// dropped and no state is mutated.
type ExternalCallError struct {
	Op  string
	Err error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("external call %s: %v", e.Op, e.Err)
}

func (e *ExternalCallError) Unwrap() error { return e.Err }

// ConsistencyError reports that a ledger commit and its order record
// diverged. It is fatal for the execution engine.
type ConsistencyError struct {
	OrderID string
	Err     error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("internal consistency violation (order %s): %v", e.OrderID, e.Err)
}

func (e *ConsistencyError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
