package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

func positionKey(indexID string, positionID int64) string {
	return fmt.Sprintf("%s|%d", indexID, positionID)
}

// MemoryOrderRepository is an in-memory implementation of OrderRepository
type MemoryOrderRepository struct {
	mu sync.RWMutex

	// Primary storage: index_id|position_id -> OrderView
	orders map[string]*OrderView

	// index_id -> positions in first-save order; updates mutate in place so
	// the listing order stays the arrival order
	byIndex map[string][]*OrderView

	// Last applied sequence per index
	lastSequence map[string]int64
}

// NewMemoryOrderRepository creates a new in-memory order repository
func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders:       make(map[string]*OrderView),
		byIndex:      make(map[string][]*OrderView),
		lastSequence: make(map[string]int64),
	}
}

// Save creates or updates an order view
func (r *MemoryOrderRepository) Save(ctx context.Context, order *OrderView) error {
	if order == nil {
		return ErrInvalidArgument
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := positionKey(order.IndexID, order.PositionID)
	orderCopy := cloneOrderView(order)

	if existing, exists := r.orders[key]; exists {
		*existing = *orderCopy
		return nil
	}

	r.orders[key] = orderCopy
	r.byIndex[orderCopy.IndexID] = append(r.byIndex[orderCopy.IndexID], orderCopy)
	return nil
}

// GetByPosition retrieves a position within an index
func (r *MemoryOrderRepository) GetByPosition(ctx context.Context, indexID string, positionID int64) (*OrderView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, exists := r.orders[positionKey(indexID, positionID)]
	if !exists {
		return nil, ErrOrderNotFound
	}

	return cloneOrderView(order), nil
}

// ListByIndex retrieves positions of an index in arrival order
func (r *MemoryOrderRepository) ListByIndex(ctx context.Context, indexID string, limit int) ([]*OrderView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	orders, exists := r.byIndex[indexID]
	if !exists {
		return []*OrderView{}, nil
	}

	if limit > 0 && len(orders) > limit {
		return cloneOrderViews(orders[:limit]), nil
	}

	return cloneOrderViews(orders), nil
}

// ListByStatus retrieves positions of an index with the given status
func (r *MemoryOrderRepository) ListByStatus(ctx context.Context, indexID string, status OrderStatus, limit int) ([]*OrderView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*OrderView
	for _, order := range r.byIndex[indexID] {
		if order.Status != status {
			continue
		}
		matched = append(matched, order)
		if limit > 0 && len(matched) == limit {
			break
		}
	}

	return cloneOrderViews(matched), nil
}

// GetLastSequence returns the last applied sequence number for an index
func (r *MemoryOrderRepository) GetLastSequence(ctx context.Context, indexID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.lastSequence[indexID], nil
}

// SetLastSequence updates the last applied sequence number for an index
func (r *MemoryOrderRepository) SetLastSequence(ctx context.Context, indexID string, sequence int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.lastSequence[indexID]
	if sequence < current {
		return fmt.Errorf("%w: index=%s current=%d new=%d", ErrSequenceRegression, indexID, current, sequence)
	}

	r.lastSequence[indexID] = sequence
	return nil
}

// MemoryFillRepository is an in-memory implementation of FillRepository
type MemoryFillRepository struct {
	mu sync.RWMutex

	// Primary storage: fill_id -> FillReportView
	fills map[string]*FillReportView

	// Indexes for efficient queries
	byIndex    map[string][]*FillReportView // index_id -> fills sorted by sequence
	byPosition map[string][]*FillReportView // index_id|position_id -> fills

	// Last applied sequence per index
	lastSequence map[string]int64
}

// NewMemoryFillRepository creates a new in-memory fill repository
func NewMemoryFillRepository() *MemoryFillRepository {
	return &MemoryFillRepository{
		fills:        make(map[string]*FillReportView),
		byIndex:      make(map[string][]*FillReportView),
		byPosition:   make(map[string][]*FillReportView),
		lastSequence: make(map[string]int64),
	}
}

// Save creates a fill report view
func (r *MemoryFillRepository) Save(ctx context.Context, fill *FillReportView) error {
	if fill == nil {
		return ErrInvalidArgument
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	fillCopy := cloneFillReportView(fill)

	// Idempotency: the same fill ID must not create duplicate index entries.
	if existing, exists := r.fills[fillCopy.FillID]; exists {
		if sameFill(existing, fillCopy) {
			return nil
		}
		return fmt.Errorf("%w: fill_id=%s", ErrFillConflict, fillCopy.FillID)
	}

	r.fills[fillCopy.FillID] = fillCopy

	r.byIndex[fillCopy.IndexID] = append(r.byIndex[fillCopy.IndexID], fillCopy)
	sort.Slice(r.byIndex[fillCopy.IndexID], func(i, j int) bool {
		return r.byIndex[fillCopy.IndexID][i].Sequence < r.byIndex[fillCopy.IndexID][j].Sequence
	})

	key := positionKey(fillCopy.IndexID, fillCopy.PositionID)
	r.byPosition[key] = append(r.byPosition[key], fillCopy)

	return nil
}

// GetByID retrieves a fill report by fill_id
func (r *MemoryFillRepository) GetByID(ctx context.Context, fillID string) (*FillReportView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fill, exists := r.fills[fillID]
	if !exists {
		return nil, ErrFillNotFound
	}

	return cloneFillReportView(fill), nil
}

// ListByIndex retrieves fill reports for an index
func (r *MemoryFillRepository) ListByIndex(ctx context.Context, indexID string, fromSequence int64, limit int) ([]*FillReportView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fills, exists := r.byIndex[indexID]
	if !exists {
		return []*FillReportView{}, nil
	}

	var filtered []*FillReportView
	if fromSequence > 0 {
		for _, fill := range fills {
			if fill.Sequence >= fromSequence {
				filtered = append(filtered, fill)
			}
		}
	} else {
		filtered = fills
	}

	if limit > 0 && len(filtered) > limit {
		return cloneFillReportViews(filtered[:limit]), nil
	}

	return cloneFillReportViews(filtered), nil
}

// ListByPosition retrieves fill reports for one position
func (r *MemoryFillRepository) ListByPosition(ctx context.Context, indexID string, positionID int64, limit int) ([]*FillReportView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fills, exists := r.byPosition[positionKey(indexID, positionID)]
	if !exists {
		return []*FillReportView{}, nil
	}

	if limit > 0 && len(fills) > limit {
		return cloneFillReportViews(fills[:limit]), nil
	}

	return cloneFillReportViews(fills), nil
}

// GetLastSequence returns the last applied sequence number for an index
func (r *MemoryFillRepository) GetLastSequence(ctx context.Context, indexID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.lastSequence[indexID], nil
}

// SetLastSequence updates the last applied sequence number for an index
func (r *MemoryFillRepository) SetLastSequence(ctx context.Context, indexID string, sequence int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.lastSequence[indexID]
	if sequence < current {
		return fmt.Errorf("%w: index=%s current=%d new=%d", ErrSequenceRegression, indexID, current, sequence)
	}

	r.lastSequence[indexID] = sequence
	return nil
}

// MemoryIndexRepository is an in-memory implementation of IndexRepository
type MemoryIndexRepository struct {
	mu sync.RWMutex

	// Primary storage: index_id -> IndexView
	indices map[string]*IndexView

	// index_id -> rebalance history sorted by sequence
	rebalances map[string][]*RebalanceView

	// Last applied sequence per index
	lastSequence map[string]int64
}

// NewMemoryIndexRepository creates a new in-memory index repository
func NewMemoryIndexRepository() *MemoryIndexRepository {
	return &MemoryIndexRepository{
		indices:      make(map[string]*IndexView),
		rebalances:   make(map[string][]*RebalanceView),
		lastSequence: make(map[string]int64),
	}
}

// Save creates or updates an index view
func (r *MemoryIndexRepository) Save(ctx context.Context, index *IndexView) error {
	if index == nil {
		return ErrInvalidArgument
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.indices[index.IndexID] = cloneIndexView(index)
	return nil
}

// Get retrieves an index view
func (r *MemoryIndexRepository) Get(ctx context.Context, indexID string) (*IndexView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	index, exists := r.indices[indexID]
	if !exists {
		return nil, ErrIndexNotFound
	}

	return cloneIndexView(index), nil
}

// List retrieves all index views ordered by index ID
func (r *MemoryIndexRepository) List(ctx context.Context, limit int) ([]*IndexView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.indices))
	for id := range r.indices {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*IndexView, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneIndexView(r.indices[id]))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// SaveRebalance appends a rebalance report for an index
func (r *MemoryIndexRepository) SaveRebalance(ctx context.Context, rebalance *RebalanceView) error {
	if rebalance == nil {
		return ErrInvalidArgument
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Idempotent retry: the same sequence is already recorded.
	for _, existing := range r.rebalances[rebalance.IndexID] {
		if existing.Sequence == rebalance.Sequence {
			return nil
		}
	}

	r.rebalances[rebalance.IndexID] = append(r.rebalances[rebalance.IndexID], cloneRebalanceView(rebalance))
	sort.Slice(r.rebalances[rebalance.IndexID], func(i, j int) bool {
		return r.rebalances[rebalance.IndexID][i].Sequence < r.rebalances[rebalance.IndexID][j].Sequence
	})
	return nil
}

// ListRebalances retrieves the rebalance history of an index
func (r *MemoryIndexRepository) ListRebalances(ctx context.Context, indexID string, limit int) ([]*RebalanceView, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history, exists := r.rebalances[indexID]
	if !exists {
		return []*RebalanceView{}, nil
	}

	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}

	out := make([]*RebalanceView, 0, len(history))
	for _, v := range history {
		out = append(out, cloneRebalanceView(v))
	}
	return out, nil
}

// GetLastSequence returns the last applied sequence number for an index
func (r *MemoryIndexRepository) GetLastSequence(ctx context.Context, indexID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.lastSequence[indexID], nil
}

// SetLastSequence updates the last applied sequence number for an index
func (r *MemoryIndexRepository) SetLastSequence(ctx context.Context, indexID string, sequence int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.lastSequence[indexID]
	if sequence < current {
		return fmt.Errorf("%w: index=%s current=%d new=%d", ErrSequenceRegression, indexID, current, sequence)
	}

	r.lastSequence[indexID] = sequence
	return nil
}

func cloneOrderView(in *OrderView) *OrderView {
	if in == nil {
		return nil
	}
	cp := *in
	return &cp
}

func cloneOrderViews(in []*OrderView) []*OrderView {
	out := make([]*OrderView, 0, len(in))
	for _, v := range in {
		out = append(out, cloneOrderView(v))
	}
	return out
}

func cloneFillReportView(in *FillReportView) *FillReportView {
	if in == nil {
		return nil
	}
	cp := *in
	cp.Legs = append([]FillLeg(nil), in.Legs...)
	return &cp
}

func cloneFillReportViews(in []*FillReportView) []*FillReportView {
	out := make([]*FillReportView, 0, len(in))
	for _, v := range in {
		out = append(out, cloneFillReportView(v))
	}
	return out
}

func cloneRebalanceView(in *RebalanceView) *RebalanceView {
	if in == nil {
		return nil
	}
	cp := *in
	cp.Deltas = append([]DeltaLeg(nil), in.Deltas...)
	cp.OldWeights = cloneWeights(in.OldWeights)
	cp.NewWeights = cloneWeights(in.NewWeights)
	return &cp
}

func cloneIndexView(in *IndexView) *IndexView {
	if in == nil {
		return nil
	}
	cp := *in
	cp.Composition = append([]AssetHolding(nil), in.Composition...)
	cp.Weights = cloneWeights(in.Weights)
	cp.Liquidity = make(map[string]LiquidityView, len(in.Liquidity))
	for k, v := range in.Liquidity {
		cp.Liquidity[k] = v
	}
	return &cp
}

func cloneWeights(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sameFill(a, b *FillReportView) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.FillID != b.FillID ||
		a.IndexID != b.IndexID ||
		a.PositionID != b.PositionID ||
		a.Sequence != b.Sequence ||
		a.OccurredAt != b.OccurredAt {
		return false
	}
	if !a.FillPercentage.Equal(b.FillPercentage) ||
		!a.AvgPrice.Equal(b.AvgPrice) ||
		!a.RealizedLoss.Equal(b.RealizedLoss) ||
		!a.FilledQuantity.Equal(b.FilledQuantity) {
		return false
	}
	if len(a.Legs) != len(b.Legs) {
		return false
	}
	for i := range a.Legs {
		if a.Legs[i].Symbol != b.Legs[i].Symbol ||
			!a.Legs[i].Quantity.Equal(b.Legs[i].Quantity) ||
			!a.Legs[i].ExecutionPrice.Equal(b.Legs[i].ExecutionPrice) {
			return false
		}
	}
	return true
}
