package treasury

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrReservationConflict = errors.New("reservation conflict")
)

// ReservationConflictError reports a second reservation for a position with
// different parameters.
type ReservationConflictError struct {
	IndexID    string
	PositionID int64
}

func (e *ReservationConflictError) Error() string {
	return fmt.Sprintf("reservation conflict: index=%s position=%d already reserved with different parameters",
		e.IndexID, e.PositionID)
}

func (e *ReservationConflictError) Is(target error) bool {
	return target == ErrReservationConflict
}
