// Package errors provides custom error types for simulation-domain errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNoCostDecider        = errors.New("no transaction cost decider registered")
	ErrUnsupportedEffect    = errors.New("unsupported position effect")
	ErrMatchEffectReserved  = errors.New("position effect MATCH is reserved for the matcher")
	ErrInvalidPrice         = errors.New("invalid price")
	ErrZeroQuantity         = errors.New("zero order quantity")
	ErrOverfill             = errors.New("fill exceeds order quantity")
	ErrOrderFinal           = errors.New("order is in a final state")
	ErrTargetWeightExceeded = errors.New("total target weight exceeds 1")
	ErrNegativeTargetWeight = errors.New("target weight must not be negative")
	ErrNoMarketData         = errors.New("no market data")
	ErrSimulationDone       = errors.New("simulation already finished")
	ErrUnknownMatchingMode  = errors.New("unknown matching mode")
	ErrUnknownAccount       = errors.New("no account for instrument")
	ErrRunNotFound          = errors.New("run not found")
)

// OrderError represents an error related to a specific order.
type OrderError struct {
	OrderID     uint64
	OrderBookID string
	Err         error
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("order %d [%s]: %v", e.OrderID, e.OrderBookID, e.Err)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(orderID uint64, orderBookID string, err error) *OrderError {
	return &OrderError{OrderID: orderID, OrderBookID: orderBookID, Err: err}
}

// ConfigError represents a fatal configuration error. It aborts the
// current step; the simulation is not expected to resume after it.
type ConfigError struct {
	Detail string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("configuration error: %s", e.Detail)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(detail string, err error) *ConfigError {
	return &ConfigError{Detail: detail, Err: err}
}
