package basket

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
)

// ValidationError represents a request rejected before any state mutation
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: field=%s reason=%s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFoundError represents a lookup miss for an index, order, or symbol
type NotFoundError struct {
	Kind string // "index", "order", "symbol"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// InvalidStateError represents an operation against an order in a state
// that does not permit it
type InvalidStateError struct {
	PositionID int64
	Current    OrderStatus
	Operation  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: position=%d status=%s operation=%s",
		e.PositionID, e.Current, e.Operation)
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}
