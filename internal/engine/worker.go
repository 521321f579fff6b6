package engine

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mridulgoel03/ETF-trading-project/internal/basket"
	"github.com/mridulgoel03/ETF-trading-project/internal/treasury"
)

const defaultIdempotencyCleanupInterval = time.Minute

// Worker owns a set of indices and processes their commands serially on one
// goroutine. Index state is only ever touched from the event loop, so the
// basket aggregate needs no locking of its own.
type Worker struct {
	id        int
	cmdQueue  chan *commandRequest
	indices   map[string]*basket.Index
	order     []string // index IDs in creation order, fixes tick iteration
	idemStore *IdempotencyStore
	opts      basket.IndexOptions
	limiter   *AdmissionLimiter
	treasury  treasury.Service
	sink      EventSink

	submitMu sync.RWMutex
	stopped  bool
	wg       sync.WaitGroup
}

// commandRequest wraps a command with a response channel
type commandRequest struct {
	envelope *CommandEnvelope
	respChan chan *CommandExecResult
}

// NewWorker creates a new worker
func NewWorker(id int, queueSize int, idemTTL time.Duration, opts basket.IndexOptions, limiter *AdmissionLimiter, treasurySvc treasury.Service, sink EventSink) *Worker {
	return &Worker{
		id:        id,
		cmdQueue:  make(chan *commandRequest, queueSize),
		indices:   make(map[string]*basket.Index),
		idemStore: NewIdempotencyStore(idemTTL),
		opts:      opts,
		limiter:   limiter,
		treasury:  treasurySvc,
		sink:      sink,
	}
}

// Start starts the worker's event loop in a goroutine
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.eventLoop()
}

// Stop gracefully stops the worker event loop.
func (w *Worker) Stop() {
	w.submitMu.Lock()
	if w.stopped {
		w.submitMu.Unlock()
		return
	}
	w.stopped = true
	close(w.cmdQueue)
	w.submitMu.Unlock()

	w.wg.Wait()
}

// Submit submits a command to the worker and waits for the result
func (w *Worker) Submit(envelope *CommandEnvelope) *CommandExecResult {
	if envelope == nil {
		return &CommandExecResult{
			Result:    nil,
			ErrorCode: ErrorCodeInvalidArgument,
			Err:       fmt.Errorf("command envelope is nil"),
		}
	}

	respChan := make(chan *CommandExecResult, 1)
	req := &commandRequest{
		envelope: envelope,
		respChan: respChan,
	}

	w.submitMu.RLock()
	if w.stopped {
		w.submitMu.RUnlock()
		return &CommandExecResult{
			Result:    nil,
			ErrorCode: ErrorCodeEngineStopped,
			Err:       fmt.Errorf("worker is stopped"),
		}
	}
	w.cmdQueue <- req
	w.submitMu.RUnlock()
	return <-respChan
}

// eventLoop is the main event loop that processes commands serially
func (w *Worker) eventLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(defaultIdempotencyCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case req, ok := <-w.cmdQueue:
			if !ok {
				return
			}
			if req == nil {
				continue
			}
			result := w.processCommand(req.envelope)
			req.respChan <- result
		case <-ticker.C:
			w.idemStore.Cleanup()
		}
	}
}

// processCommand processes a single command
func (w *Worker) processCommand(envelope *CommandEnvelope) *CommandExecResult {
	if envelope == nil {
		return &CommandExecResult{
			Result:    nil,
			ErrorCode: ErrorCodeInvalidArgument,
			Err:       fmt.Errorf("command envelope is nil"),
		}
	}

	// Ticks and queries carry no idempotency key; an empty key skips the
	// dedup path entirely.
	checkIdem := envelope.IdempotencyKey != ""
	idemKey := IdempotencyKey{
		IndexID:        envelope.IndexID,
		CommandType:    envelope.CommandType,
		IdempotencyKey: envelope.IdempotencyKey,
	}

	if checkIdem {
		cachedResult, err := w.idemStore.Check(idemKey, envelope.PayloadHash)
		if err != nil {
			// Conflict: same idempotency key with different payload
			return &CommandExecResult{
				Result:    nil,
				ErrorCode: ErrorCodeDuplicateRequest,
				Err:       err,
			}
		}
		if cachedResult != nil {
			// Duplicate: return a detached copy of the cached result
			return cloneCommandExecResult(cachedResult)
		}
	}

	var result *CommandExecResult

	switch envelope.CommandType {
	case CommandTypeCreateIndex:
		result = w.executeCreateIndex(envelope)
	case CommandTypeSubmit:
		result = w.executeSubmit(envelope)
	case CommandTypeCancel:
		result = w.executeCancel(envelope)
	case CommandTypeUpdatePrices:
		result = w.executeUpdatePrices(envelope)
	case CommandTypeSetLiquidity:
		result = w.executeSetLiquidity(envelope)
	case CommandTypeRebalance:
		result = w.executeRebalance(envelope)
	case CommandTypeTick:
		result = w.executeTick(envelope)
	case CommandTypeQueryOrder:
		result = w.executeQueryOrder(envelope)
	case CommandTypeQueryIndex:
		result = w.executeQueryIndex(envelope)
	case CommandTypeQueryPlan:
		result = w.executeQueryPlan(envelope)
	case CommandTypeQueryQueue:
		result = w.executeQueryQueue(envelope)
	default:
		result = &CommandExecResult{
			Result:    nil,
			ErrorCode: ErrorCodeInvalidArgument,
			Err:       fmt.Errorf("unknown command type: %s", envelope.CommandType),
		}
	}

	if checkIdem {
		w.idemStore.Store(idemKey, envelope.PayloadHash, cloneCommandExecResult(result))
	}

	return result
}

func (w *Worker) index(indexID string) (*basket.Index, *CommandExecResult) {
	idx, exists := w.indices[indexID]
	if !exists {
		return nil, &CommandExecResult{
			Result:    nil,
			ErrorCode: ErrorCodeNotFound,
			Err:       fmt.Errorf("index not found: %s", indexID),
		}
	}
	return idx, nil
}

// executeCreateIndex executes a create index command
func (w *Worker) executeCreateIndex(envelope *CommandEnvelope) *CommandExecResult {
	req, ok := envelope.Payload.(*basket.CreateIndexRequest)
	if !ok {
		return &CommandExecResult{
			Result:    nil,
			ErrorCode: ErrorCodeInvalidArgument,
			Err:       fmt.Errorf("invalid payload type for CREATE_INDEX command"),
		}
	}

	if _, exists := w.indices[req.IndexID]; exists {
		return &CommandExecResult{
			Result:    nil,
			ErrorCode: ErrorCodeIndexExists,
			Err:       fmt.Errorf("index already exists: %s", req.IndexID),
		}
	}

	idx, result, err := basket.NewIndex(req, w.opts)
	if err != nil {
		return &CommandExecResult{
			Result:    nil,
			ErrorCode: w.mapErrorCode(err),
			Err:       err,
		}
	}

	w.indices[req.IndexID] = idx
	w.order = append(w.order, req.IndexID)
	w.publish(req.IndexID, result.Events)

	return &CommandExecResult{
		Result:    result,
		ErrorCode: ErrorCodeNone,
		Err:       nil,
	}
}

// executeSubmit executes an order submit command. The order only enters the
// admission queue here; fills happen on ticks.
func (w *Worker) executeSubmit(envelope *CommandEnvelope) *CommandExecResult {
	req, ok := envelope.Payload.(*basket.SubmitOrderRequest)
	if !ok {
		return &CommandExecResult{
			Result:    nil,
			ErrorCode: ErrorCodeInvalidArgument,
			Err:       fmt.Errorf("invalid payload type for SUBMIT command"),
		}
	}

	idx, errResult := w.index(envelope.IndexID)
	if errResult != nil {
		return errResult
	}

	result, err := idx.Submit(req)
	if err != nil {
		return &CommandExecResult{
			Result:    nil,
			ErrorCode: w.mapErrorCode(err),
			Err:       err,
		}
	}

	if w.treasury != nil {
		reserveErr := w.treasury.ReserveOnSubmit(treasury.ReserveIntent{
			IndexID:    req.IndexID,
			PositionID: req.PositionID,
			Action:     string(req.Action),
			Notional:   req.Quantity.Mul(req.IndexPrice),
		})
		if reserveErr != nil {
			return &CommandExecResult{
				Result:    nil,
				ErrorCode: ErrorCodeInternalError,
				Err:       fmt.Errorf("reserve funds: %w", reserveErr),
			}
		}
	}

	w.publish(envelope.IndexID, result.Events)

	return &CommandExecResult{
		Result:    result,
		ErrorCode: ErrorCodeNone,
		Err:       nil,
	}
}

// executeCancel executes a cancel command. Cancels bypass the rate window and
// the liquidity model.
func (w *Worker) executeCancel(envelope *CommandEnvelope) *CommandExecResult {
	req, ok := envelope.Payload.(*basket.CancelOrderRequest)
	if !ok {
		return &CommandExecResult{
			Result:    nil,
			ErrorCode: ErrorCodeInvalidArgument,
			Err:       fmt.Errorf("invalid payload type for CANCEL command"),
		}
	}

	idx, errResult := w.index(envelope.IndexID)
	if errResult != nil {
		return errResult
	}

	result, err := idx.Cancel(req)
	if err != nil {
		return &CommandExecResult{
			Result:    nil,
			ErrorCode: w.mapErrorCode(err),
			Err:       err,
		}
	}

	if w.treasury != nil {
		// Best effort: the release intent cannot fail for a position the
		// index just cancelled.
		_ = w.treasury.ReleaseOnCancel(treasury.ReleaseIntent{
			IndexID:    req.IndexID,
			PositionID: req.PositionID,
		})
	}

	w.publish(envelope.IndexID, result.Events)

	return &CommandExecResult{
		Result:    result,
		ErrorCode: ErrorCodeNone,
		Err:       nil,
	}
}

// executeUpdatePrices executes a price update command
func (w *Worker) executeUpdatePrices(envelope *CommandEnvelope) *CommandExecResult {
	req, ok := envelope.Payload.(*basket.UpdatePricesRequest)
	if !ok {
		return &CommandExecResult{
			Result:    nil,
			ErrorCode: ErrorCodeInvalidArgument,
			Err:       fmt.Errorf("invalid payload type for UPDATE_PRICES command"),
		}
	}

	idx, errResult := w.index(envelope.IndexID)
	if errResult != nil {
		return errResult
	}

	result, err := idx.UpdatePrices(req.Prices, req.Timestamp)
	if err != nil {
		return &CommandExecResult{
			Result:    nil,
			ErrorCode: w.mapErrorCode(err),
			Err:       err,
		}
	}

	w.publish(envelope.IndexID, result.Events)

	return &CommandExecResult{
		Result:    result,
		ErrorCode: ErrorCodeNone,
		Err:       nil,
	}
}

// executeSetLiquidity executes a liquidity update command
func (w *Worker) executeSetLiquidity(envelope *CommandEnvelope) *CommandExecResult {
	req, ok := envelope.Payload.(*basket.SetLiquidityRequest)
	if !ok {
		return &CommandExecResult{
			Result:    nil,
			ErrorCode: ErrorCodeInvalidArgument,
			Err:       fmt.Errorf("invalid payload type for SET_LIQUIDITY command"),
		}
	}

	idx, errResult := w.index(envelope.IndexID)
	if errResult != nil {
		return errResult
	}

	result, err := idx.SetLiquidity(req.Liquidity, req.Timestamp)
	if err != nil {
		return &CommandExecResult{
			Result:    nil,
			ErrorCode: w.mapErrorCode(err),
			Err:       err,
		}
	}

	w.publish(envelope.IndexID, result.Events)

	return &CommandExecResult{
		Result:    result,
		ErrorCode: ErrorCodeNone,
		Err:       nil,
	}
}

// executeRebalance executes a rebalance command
func (w *Worker) executeRebalance(envelope *CommandEnvelope) *CommandExecResult {
	req, ok := envelope.Payload.(*basket.RebalanceRequest)
	if !ok {
		return &CommandExecResult{
			Result:    nil,
			ErrorCode: ErrorCodeInvalidArgument,
			Err:       fmt.Errorf("invalid payload type for REBALANCE command"),
		}
	}

	idx, errResult := w.index(envelope.IndexID)
	if errResult != nil {
		return errResult
	}

	result, err := idx.Rebalance(req)
	if err != nil {
		return &CommandExecResult{
			Result:    nil,
			ErrorCode: w.mapErrorCode(err),
			Err:       err,
		}
	}

	w.publish(envelope.IndexID, result.Events)

	return &CommandExecResult{
		Result:    result,
		ErrorCode: ErrorCodeNone,
		Err:       nil,
	}
}

// executeTick runs one processing pass over this worker's indices. Parked
// orders retry first since they already consumed admission capacity; then
// queue heads are admitted in arrival order across indices until the window
// saturates. Global saturation stops the whole pass, per-index saturation
// only removes that index from the round.
func (w *Worker) executeTick(envelope *CommandEnvelope) *CommandExecResult {
	req, ok := envelope.Payload.(*TickRequest)
	if !ok {
		return &CommandExecResult{
			Result:    nil,
			ErrorCode: ErrorCodeInvalidArgument,
			Err:       fmt.Errorf("invalid payload type for TICK command"),
		}
	}

	tick := &TickResult{
		Timestamp: req.Timestamp,
		Admitted:  []int64{},
		Fills:     []*basket.FillResult{},
	}

	for _, indexID := range w.order {
		idx := w.indices[indexID]
		result := idx.RetryAdmitted(req.Timestamp)
		w.settleFills(idx, result)
		w.publish(indexID, result.Events)
		tick.Fills = append(tick.Fills, result.Fills...)
	}

	saturated := make(map[string]bool)
	for {
		indexID, idx, head := w.nextAdmission(saturated)
		if idx == nil {
			break
		}
		if !w.limiter.TryAdmit(indexID, req.Timestamp) {
			if w.limiter.Scope() == ScopePerIndex {
				saturated[indexID] = true
				continue
			}
			break
		}

		result, err := idx.AdmitHead(req.Timestamp)
		if err != nil {
			return &CommandExecResult{
				Result:    nil,
				ErrorCode: ErrorCodeInternalError,
				Err:       err,
			}
		}
		tick.Admitted = append(tick.Admitted, head.PositionID)
		w.settleFills(idx, result)
		w.publish(indexID, result.Events)
		tick.Fills = append(tick.Fills, result.Fills...)
	}

	return &CommandExecResult{
		Result:    tick,
		ErrorCode: ErrorCodeNone,
		Err:       nil,
	}
}

// nextAdmission picks the index whose queue head arrived first, skipping
// indices whose window saturated during this pass.
func (w *Worker) nextAdmission(saturated map[string]bool) (string, *basket.Index, *basket.Order) {
	var bestID string
	var best *basket.Index
	var bestHead *basket.Order
	for _, indexID := range w.order {
		if saturated[indexID] {
			continue
		}
		idx := w.indices[indexID]
		head, ok := idx.PendingHead()
		if !ok {
			continue
		}
		if best == nil || head.ArrivalSeq < bestHead.ArrivalSeq {
			bestID = indexID
			best = idx
			bestHead = head
		}
	}
	return bestID, best, bestHead
}

// settleFills books the cash effect of positive fills with the treasury.
func (w *Worker) settleFills(idx *basket.Index, result *basket.CommandResult) {
	if w.treasury == nil {
		return
	}
	for _, fill := range result.Fills {
		if !fill.FilledQuantity.IsPositive() {
			continue
		}
		order, err := idx.Order(fill.PositionID)
		if err != nil {
			continue
		}
		executed := decimal.Zero
		for _, leg := range fill.Fills {
			executed = executed.Add(leg.QuantityFilled.Mul(leg.ExecutionPrice))
		}
		_ = w.treasury.SettleOnFill(treasury.SettleIntent{
			IndexID:       idx.ID,
			PositionID:    fill.PositionID,
			Action:        string(order.Action),
			ExecutedValue: executed,
		})
	}
}

// executeQueryOrder looks up one tracked position
func (w *Worker) executeQueryOrder(envelope *CommandEnvelope) *CommandExecResult {
	req, ok := envelope.Payload.(*basket.QueryOrderRequest)
	if !ok {
		return &CommandExecResult{
			Result:    nil,
			ErrorCode: ErrorCodeInvalidArgument,
			Err:       fmt.Errorf("invalid payload type for QUERY_ORDER command"),
		}
	}

	idx, errResult := w.index(req.IndexID)
	if errResult != nil {
		return errResult
	}

	order, err := idx.Order(req.PositionID)
	if err != nil {
		return &CommandExecResult{
			Result:    nil,
			ErrorCode: w.mapErrorCode(err),
			Err:       err,
		}
	}

	return &CommandExecResult{
		Result:    &order,
		ErrorCode: ErrorCodeNone,
		Err:       nil,
	}
}

// executeQueryIndex returns the serializable state of an index
func (w *Worker) executeQueryIndex(envelope *CommandEnvelope) *CommandExecResult {
	req, ok := envelope.Payload.(*basket.QueryIndexRequest)
	if !ok {
		return &CommandExecResult{
			Result:    nil,
			ErrorCode: ErrorCodeInvalidArgument,
			Err:       fmt.Errorf("invalid payload type for QUERY_INDEX command"),
		}
	}

	idx, errResult := w.index(req.IndexID)
	if errResult != nil {
		return errResult
	}

	state := idx.State()
	return &CommandExecResult{
		Result:    &state,
		ErrorCode: ErrorCodeNone,
		Err:       nil,
	}
}

// executeQueryPlan returns the most recent rebalance plan of an index
func (w *Worker) executeQueryPlan(envelope *CommandEnvelope) *CommandExecResult {
	req, ok := envelope.Payload.(*basket.QueryPlanRequest)
	if !ok {
		return &CommandExecResult{
			Result:    nil,
			ErrorCode: ErrorCodeInvalidArgument,
			Err:       fmt.Errorf("invalid payload type for QUERY_PLAN command"),
		}
	}

	idx, errResult := w.index(req.IndexID)
	if errResult != nil {
		return errResult
	}

	plan, err := idx.LastPlan()
	if err != nil {
		return &CommandExecResult{
			Result:    nil,
			ErrorCode: w.mapErrorCode(err),
			Err:       err,
		}
	}

	return &CommandExecResult{
		Result:    &plan,
		ErrorCode: ErrorCodeNone,
		Err:       nil,
	}
}

// executeQueryQueue returns the admission queue snapshot of an index. An
// empty index ID snapshots every index owned by this worker.
func (w *Worker) executeQueryQueue(envelope *CommandEnvelope) *CommandExecResult {
	req, ok := envelope.Payload.(*basket.QueryIndexRequest)
	if !ok {
		return &CommandExecResult{
			Result:    nil,
			ErrorCode: ErrorCodeInvalidArgument,
			Err:       fmt.Errorf("invalid payload type for QUERY_QUEUE command"),
		}
	}

	if req.IndexID == "" {
		queued := []basket.QueuedOrder{}
		for _, indexID := range w.order {
			queued = append(queued, w.indices[indexID].QueuedOrders()...)
		}
		return &CommandExecResult{
			Result:    queued,
			ErrorCode: ErrorCodeNone,
			Err:       nil,
		}
	}

	idx, errResult := w.index(req.IndexID)
	if errResult != nil {
		return errResult
	}

	return &CommandExecResult{
		Result:    idx.QueuedOrders(),
		ErrorCode: ErrorCodeNone,
		Err:       nil,
	}
}

func (w *Worker) publish(indexID string, events []basket.Event) {
	if w.sink == nil || len(events) == 0 {
		return
	}
	w.sink.Publish(indexID, events)
}

// mapErrorCode maps basket errors to command error codes
func (w *Worker) mapErrorCode(err error) ErrorCode {
	switch {
	case errors.Is(err, basket.ErrNotFound):
		return ErrorCodeNotFound
	case errors.Is(err, basket.ErrInvalidState):
		return ErrorCodeInvalidState
	case errors.Is(err, basket.ErrValidation):
		return ErrorCodeInvalidArgument
	default:
		return ErrorCodeInvalidArgument
	}
}

// ComputePayloadHash computes SHA256 hash of the payload
func ComputePayloadHash(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash), nil
}
