package ledger

import (
	"context"
	"errors"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrFillNotFound       = errors.New("fill not found")
	ErrIndexNotFound      = errors.New("index not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrSequenceRegression = errors.New("sequence regression")
	ErrFillConflict       = errors.New("fill conflict")
)

// OrderRepository defines the interface for position read model storage
type OrderRepository interface {
	// Save creates or updates an order view
	Save(ctx context.Context, order *OrderView) error

	// GetByPosition retrieves a position within an index
	GetByPosition(ctx context.Context, indexID string, positionID int64) (*OrderView, error)

	// ListByIndex retrieves positions of an index in arrival order
	ListByIndex(ctx context.Context, indexID string, limit int) ([]*OrderView, error)

	// ListByStatus retrieves positions of an index with the given status
	ListByStatus(ctx context.Context, indexID string, status OrderStatus, limit int) ([]*OrderView, error)

	// GetLastSequence returns the last applied sequence number for an index
	GetLastSequence(ctx context.Context, indexID string) (int64, error)

	// SetLastSequence updates the last applied sequence number for an index
	SetLastSequence(ctx context.Context, indexID string, sequence int64) error
}

// FillRepository defines the interface for fill report storage
type FillRepository interface {
	// Save creates a fill report view
	Save(ctx context.Context, fill *FillReportView) error

	// GetByID retrieves a fill report by fill_id
	GetByID(ctx context.Context, fillID string) (*FillReportView, error)

	// ListByIndex retrieves fill reports for an index
	// fromSequence: if > 0, only return fills with sequence >= fromSequence
	ListByIndex(ctx context.Context, indexID string, fromSequence int64, limit int) ([]*FillReportView, error)

	// ListByPosition retrieves fill reports for one position
	ListByPosition(ctx context.Context, indexID string, positionID int64, limit int) ([]*FillReportView, error)

	// GetLastSequence returns the last applied sequence number for an index
	GetLastSequence(ctx context.Context, indexID string) (int64, error)

	// SetLastSequence updates the last applied sequence number for an index
	SetLastSequence(ctx context.Context, indexID string, sequence int64) error
}

// IndexRepository defines the interface for index read model storage,
// including the rebalance history
type IndexRepository interface {
	// Save creates or updates an index view
	Save(ctx context.Context, index *IndexView) error

	// Get retrieves an index view
	Get(ctx context.Context, indexID string) (*IndexView, error)

	// List retrieves all index views
	List(ctx context.Context, limit int) ([]*IndexView, error)

	// SaveRebalance appends a rebalance report for an index
	SaveRebalance(ctx context.Context, rebalance *RebalanceView) error

	// ListRebalances retrieves the rebalance history of an index
	ListRebalances(ctx context.Context, indexID string, limit int) ([]*RebalanceView, error)

	// GetLastSequence returns the last applied sequence number for an index
	GetLastSequence(ctx context.Context, indexID string) (int64, error)

	// SetLastSequence updates the last applied sequence number for an index
	SetLastSequence(ctx context.Context, indexID string, sequence int64) error
}
