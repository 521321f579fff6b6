package engine

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mridulgoel03/ETF-trading-project/internal/basket"
	"github.com/mridulgoel03/ETF-trading-project/internal/treasury"
)

// Engine manages the worker pool and routes commands to it. Each index lives
// on exactly one worker; with a shared global admission window the pool
// collapses to a single worker so admission stays strictly ordered by
// arrival across indices.
type Engine struct {
	router  *Router
	workers []*Worker
	limiter *AdmissionLimiter

	arrivalSeq atomic.Int64
}

// Config holds configuration for the engine
type Config struct {
	Workers         int             // Worker pool size (default: 8, forced to 1 under global scope)
	QueueSize       int             // Command queue size per worker (default: 1024)
	IdempotencyTTL  time.Duration   // Idempotency record TTL (default: 24h)
	RateLimitCap    int             // Admissions allowed inside the window (default: 100)
	RateLimitWindow int64           // Window length in simulated time units (default: 10)
	RateLimitScope  RateLimitScope  // global or per_index (default: global)
	FeeRate         decimal.Decimal // Rebalance fee rate (default: 0.001)
	MinOrderValue   decimal.Decimal // Minimum order notional, zero disables the check
}

// DefaultConfig returns default engine configuration
func DefaultConfig() *Config {
	return &Config{
		Workers:         8,
		QueueSize:       1024,
		IdempotencyTTL:  24 * time.Hour,
		RateLimitCap:    100,
		RateLimitWindow: 10,
		RateLimitScope:  ScopeGlobal,
		FeeRate:         decimal.New(1, -3),
		MinOrderValue:   decimal.Zero,
	}
}

// New creates a new engine with the given configuration. The treasury and
// the sink may be nil.
func New(config *Config, treasurySvc treasury.Service, sink EventSink) *Engine {
	if config == nil {
		config = DefaultConfig()
	}

	workerCount := config.Workers
	if workerCount <= 0 {
		workerCount = 1
	}
	if config.RateLimitScope != ScopePerIndex {
		// One writer keeps global admission FIFO across indices.
		workerCount = 1
	}

	limiter := NewAdmissionLimiter(config.RateLimitScope, config.RateLimitCap, config.RateLimitWindow)
	router := NewRouter(workerCount)

	opts := basket.IndexOptions{
		FeeRate:       config.FeeRate,
		MinOrderValue: config.MinOrderValue,
	}

	workers := make([]*Worker, workerCount)
	for i := 0; i < workerCount; i++ {
		workers[i] = NewWorker(i, config.QueueSize, config.IdempotencyTTL, opts, limiter, treasurySvc, sink)
		workers[i].Start()
	}

	return &Engine{
		router:  router,
		workers: workers,
		limiter: limiter,
	}
}

// Submit routes a command to the owning worker and returns the result. Order
// submissions get their cross-index arrival sequence stamped here, before
// the command reaches any worker.
func (e *Engine) Submit(envelope *CommandEnvelope) *CommandExecResult {
	if envelope == nil {
		return e.workers[0].Submit(nil)
	}
	if envelope.CommandType == CommandTypeSubmit {
		if req, ok := envelope.Payload.(*basket.SubmitOrderRequest); ok && req.ArrivalSeq == 0 {
			req.ArrivalSeq = e.arrivalSeq.Add(1)
		}
	}

	workerID := e.router.Route(envelope.IndexID)
	worker := e.workers[workerID]

	return worker.Submit(envelope)
}

// ProcessQueue advances simulated time: every worker runs one tick pass and
// the per-worker results merge into one. Workers run in a fixed order, so a
// replay of the same command stream yields the same admissions and fills.
func (e *Engine) ProcessQueue(timestamp int64) (*TickResult, error) {
	merged := &TickResult{
		Timestamp: timestamp,
		Admitted:  []int64{},
		Fills:     []*basket.FillResult{},
	}

	for _, worker := range e.workers {
		result := worker.Submit(&CommandEnvelope{
			CommandType: CommandTypeTick,
			Payload:     &TickRequest{Timestamp: timestamp},
			CreatedAt:   time.Now(),
		})
		if result.Err != nil {
			return nil, result.Err
		}
		tick, ok := result.Result.(*TickResult)
		if !ok {
			continue
		}
		merged.Admitted = append(merged.Admitted, tick.Admitted...)
		merged.Fills = append(merged.Fills, tick.Fills...)
	}

	return merged, nil
}

// QueuedOrders returns the waiting orders of one index in arrival order.
func (e *Engine) QueuedOrders(indexID string) ([]basket.QueuedOrder, error) {
	result := e.Submit(&CommandEnvelope{
		CommandType: CommandTypeQueryQueue,
		IndexID:     indexID,
		Payload:     &basket.QueryIndexRequest{IndexID: indexID},
		CreatedAt:   time.Now(),
	})
	if result.Err != nil {
		return nil, result.Err
	}
	queued, ok := result.Result.([]basket.QueuedOrder)
	if !ok {
		return nil, nil
	}
	sort.Slice(queued, func(i, j int) bool {
		return queued[i].ArrivalSeq < queued[j].ArrivalSeq
	})
	return queued, nil
}

// AllQueuedOrders returns the waiting orders of every index, merged across
// workers and sorted by arrival.
func (e *Engine) AllQueuedOrders() ([]basket.QueuedOrder, error) {
	merged := []basket.QueuedOrder{}
	for _, worker := range e.workers {
		result := worker.Submit(&CommandEnvelope{
			CommandType: CommandTypeQueryQueue,
			Payload:     &basket.QueryIndexRequest{},
			CreatedAt:   time.Now(),
		})
		if result.Err != nil {
			return nil, result.Err
		}
		queued, ok := result.Result.([]basket.QueuedOrder)
		if !ok {
			continue
		}
		merged = append(merged, queued...)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].ArrivalSeq < merged[j].ArrivalSeq
	})
	return merged, nil
}

// AdmissionsInWindow reports how many admissions the window currently holds
// for the index at time t. Under global scope the index ID is ignored.
func (e *Engine) AdmissionsInWindow(indexID string, t int64) int {
	return e.limiter.Count(indexID, t)
}

// Stop gracefully stops all workers.
func (e *Engine) Stop() {
	for _, worker := range e.workers {
		worker.Stop()
	}
}

// GetWorkerID returns the worker ID for a given index (for testing)
func (e *Engine) GetWorkerID(indexID string) int {
	return e.router.Route(indexID)
}
