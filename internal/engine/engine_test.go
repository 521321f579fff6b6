package engine

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mridulgoel03/ETF-trading-project/internal/basket"
	"github.com/mridulgoel03/ETF-trading-project/internal/treasury"
)

func d(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return v
}

// soloCreateReq builds a single-asset index so cash math stays obvious:
// one unit of XOM at 10 gives NAV 10 and weight 1.
func soloCreateReq(indexID string) *basket.CreateIndexRequest {
	return &basket.CreateIndexRequest{
		IndexID:     indexID,
		ListedPrice: decimal.NewFromInt(10),
		Assets: []basket.AssetSpec{
			{
				Symbol:   "XOM",
				Quantity: decimal.NewFromInt(1),
				RefPrice: decimal.NewFromInt(10),
				Price:    decimal.NewFromInt(10),
			},
		},
		Timestamp: 0,
	}
}

func mustCreateIndex(t *testing.T, e *Engine, indexID string) {
	t.Helper()
	req := soloCreateReq(indexID)
	result := e.Submit(&CommandEnvelope{
		CommandID:   "cmd_create_" + indexID,
		CommandType: CommandTypeCreateIndex,
		IndexID:     indexID,
		Payload:     req,
		CreatedAt:   time.Now(),
	})
	if result.ErrorCode != ErrorCodeNone {
		t.Fatalf("create index %s failed: %v", indexID, result.Err)
	}
}

func mustSubmitOrder(t *testing.T, e *Engine, indexID string, positionID int64, action basket.Action, qty, price string, ts int64) {
	t.Helper()
	req := &basket.SubmitOrderRequest{
		PositionID: positionID,
		IndexID:    indexID,
		Action:     action,
		Quantity:   d(t, qty),
		IndexPrice: d(t, price),
		Timestamp:  ts,
	}
	result := e.Submit(&CommandEnvelope{
		CommandID:   fmt.Sprintf("cmd_submit_%s_%d", indexID, positionID),
		CommandType: CommandTypeSubmit,
		IndexID:     indexID,
		Payload:     req,
		CreatedAt:   time.Now(),
	})
	if result.ErrorCode != ErrorCodeNone {
		t.Fatalf("submit position %d failed: %v", positionID, result.Err)
	}
}

func queryOrder(t *testing.T, e *Engine, indexID string, positionID int64) *basket.Order {
	t.Helper()
	result := e.Submit(&CommandEnvelope{
		CommandID:   fmt.Sprintf("cmd_query_%s_%d", indexID, positionID),
		CommandType: CommandTypeQueryOrder,
		IndexID:     indexID,
		Payload:     &basket.QueryOrderRequest{IndexID: indexID, PositionID: positionID},
		CreatedAt:   time.Now(),
	})
	if result.ErrorCode != ErrorCodeNone {
		t.Fatalf("query position %d failed: %v", positionID, result.Err)
	}
	order, ok := result.Result.(*basket.Order)
	if !ok {
		t.Fatalf("query position %d returned %T", positionID, result.Result)
	}
	return order
}

func mustTick(t *testing.T, e *Engine, ts int64) *TickResult {
	t.Helper()
	tick, err := e.ProcessQueue(ts)
	if err != nil {
		t.Fatalf("tick at %d failed: %v", ts, err)
	}
	return tick
}

// TestRouting tests that routing is stable and deterministic
func TestRouting(t *testing.T) {
	router := NewRouter(8)

	indexID := "TECH3"
	workerID1 := router.Route(indexID)
	workerID2 := router.Route(indexID)
	workerID3 := router.Route(indexID)

	if workerID1 != workerID2 || workerID2 != workerID3 {
		t.Errorf("Same index should route to same worker: %d, %d, %d", workerID1, workerID2, workerID3)
	}

	indexIDs := []string{"TECH3", "ENERGY2", "HEALTH4", "FIN5", "RETAIL1"}
	workerIDs := make(map[int]bool)
	for _, id := range indexIDs {
		workerID := router.Route(id)
		workerIDs[workerID] = true
		if workerID < 0 || workerID >= 8 {
			t.Errorf("Worker ID out of range: %d for index %s", workerID, id)
		}
	}

	if len(workerIDs) < 2 {
		t.Logf("Warning: All indices routed to same worker (unlikely but possible)")
	}

	for _, id := range indexIDs {
		firstRoute := router.Route(id)
		for i := 0; i < 100; i++ {
			if router.Route(id) != firstRoute {
				t.Errorf("Routing not stable for index %s", id)
			}
		}
	}
}

// TestIdempotency tests the idempotency mechanism on submits
func TestIdempotency(t *testing.T) {
	engine := New(nil, nil, nil)
	defer engine.Stop()

	mustCreateIndex(t, engine, "SOLO")

	req1 := &basket.SubmitOrderRequest{
		PositionID: 1,
		IndexID:    "SOLO",
		Action:     basket.ActionBuy,
		Quantity:   decimal.NewFromInt(2),
		IndexPrice: decimal.NewFromInt(10),
		Timestamp:  1,
	}

	hash1, _ := ComputePayloadHash(req1)
	envelope1 := &CommandEnvelope{
		CommandID:      "cmd1",
		CommandType:    CommandTypeSubmit,
		IdempotencyKey: "idem_key_1",
		IndexID:        "SOLO",
		PayloadHash:    hash1,
		Payload:        req1,
		CreatedAt:      time.Now(),
	}

	// First submission - should execute
	result1 := engine.Submit(envelope1)
	if result1.ErrorCode != ErrorCodeNone {
		t.Fatalf("First submission failed: %v", result1.Err)
	}
	cmdResult1, ok := result1.Result.(*basket.CommandResult)
	if !ok {
		t.Fatalf("First submission returned %T", result1.Result)
	}
	if len(cmdResult1.Events) == 0 {
		t.Errorf("First submission should generate events")
	}

	// Second submission - same idempotency key, same payload
	envelope2 := &CommandEnvelope{
		CommandID:      "cmd2", // Different command ID
		CommandType:    CommandTypeSubmit,
		IdempotencyKey: "idem_key_1", // Same idempotency key
		IndexID:        "SOLO",
		PayloadHash:    hash1, // Same payload hash
		Payload:        req1,
		CreatedAt:      time.Now(),
	}

	result2 := engine.Submit(envelope2)
	if result2.ErrorCode != ErrorCodeNone {
		t.Errorf("Second submission should succeed (cached): %v", result2.Err)
	}
	cmdResult2, ok := result2.Result.(*basket.CommandResult)
	if !ok {
		t.Fatalf("Second submission returned %T", result2.Result)
	}
	if len(cmdResult1.Events) != len(cmdResult2.Events) {
		t.Errorf("Cached result should match original result")
	}

	// The order was only queued once
	queued, err := engine.QueuedOrders("SOLO")
	if err != nil {
		t.Fatalf("queued orders query failed: %v", err)
	}
	if len(queued) != 1 {
		t.Errorf("Expected 1 queued order, got %d", len(queued))
	}

	// Same idempotency key + different payload = conflict
	req3 := &basket.SubmitOrderRequest{
		PositionID: 3,
		IndexID:    "SOLO",
		Action:     basket.ActionBuy,
		Quantity:   decimal.NewFromInt(5), // Different quantity
		IndexPrice: decimal.NewFromInt(10),
		Timestamp:  1,
	}

	hash3, _ := ComputePayloadHash(req3)
	envelope3 := &CommandEnvelope{
		CommandID:      "cmd3",
		CommandType:    CommandTypeSubmit,
		IdempotencyKey: "idem_key_1", // Same idempotency key
		IndexID:        "SOLO",
		PayloadHash:    hash3, // Different payload hash
		Payload:        req3,
		CreatedAt:      time.Now(),
	}

	result3 := engine.Submit(envelope3)
	if result3.ErrorCode != ErrorCodeDuplicateRequest {
		t.Errorf("Expected DUPLICATE_REQUEST error, got: %s", result3.ErrorCode)
	}
	if result3.Err == nil {
		t.Errorf("Expected error for conflicting idempotency key")
	}
}

// TestIdempotencyScope tests that idempotency keys are scoped per index and
// command type
func TestIdempotencyScope(t *testing.T) {
	engine := New(nil, nil, nil)
	defer engine.Stop()

	mustCreateIndex(t, engine, "ALPHA")
	mustCreateIndex(t, engine, "BETA")

	submit := func(indexID string, positionID int64, key string) *CommandExecResult {
		req := &basket.SubmitOrderRequest{
			PositionID: positionID,
			IndexID:    indexID,
			Action:     basket.ActionBuy,
			Quantity:   decimal.NewFromInt(1),
			IndexPrice: decimal.NewFromInt(10),
			Timestamp:  1,
		}
		hash, _ := ComputePayloadHash(req)
		return engine.Submit(&CommandEnvelope{
			CommandID:      fmt.Sprintf("cmd_%s_%d", indexID, positionID),
			CommandType:    CommandTypeSubmit,
			IdempotencyKey: key,
			IndexID:        indexID,
			PayloadHash:    hash,
			Payload:        req,
			CreatedAt:      time.Now(),
		})
	}

	if result := submit("ALPHA", 1, "shared_key"); result.ErrorCode != ErrorCodeNone {
		t.Fatalf("First submission failed: %v", result.Err)
	}

	// Same key on a different index is a fresh command
	if result := submit("BETA", 2, "shared_key"); result.ErrorCode != ErrorCodeNone {
		t.Errorf("Submission on other index should succeed: %v", result.Err)
	}

	// Same key on a different command type is a fresh command
	cancelReq := &basket.CancelOrderRequest{PositionID: 1, IndexID: "ALPHA", Timestamp: 2}
	cancelHash, _ := ComputePayloadHash(cancelReq)
	cancelResult := engine.Submit(&CommandEnvelope{
		CommandID:      "cmd_cancel",
		CommandType:    CommandTypeCancel,
		IdempotencyKey: "shared_key",
		IndexID:        "ALPHA",
		PayloadHash:    cancelHash,
		Payload:        cancelReq,
		CreatedAt:      time.Now(),
	})
	if cancelResult.ErrorCode != ErrorCodeNone {
		t.Errorf("Cancel with reused key should succeed: %v", cancelResult.Err)
	}
}

// TestSubmitThenTickFillFlow tests that submits only queue and the fill
// happens on the processing tick, with the treasury tracking the cash.
func TestSubmitThenTickFillFlow(t *testing.T) {
	funds := treasury.NewMemoryService()
	engine := New(nil, funds, nil)
	defer engine.Stop()

	mustCreateIndex(t, engine, "SOLO")
	mustSubmitOrder(t, engine, "SOLO", 1, basket.ActionBuy, "2", "10", 1)

	// Before any tick the order is parked in the queue
	order := queryOrder(t, engine, "SOLO", 1)
	if order.Status != basket.OrderStatusPending {
		t.Errorf("Status before tick = %s, want PENDING", order.Status)
	}
	if order.AdmittedAt != -1 {
		t.Errorf("AdmittedAt before tick = %d, want -1", order.AdmittedAt)
	}

	balance, err := funds.GetBalance("SOLO")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if !balance.Reserved.Equal(d(t, "20")) {
		t.Errorf("Reserved before tick = %s, want 20", balance.Reserved)
	}

	tick := mustTick(t, engine, 2)
	if len(tick.Admitted) != 1 || tick.Admitted[0] != 1 {
		t.Fatalf("Admitted = %v, want [1]", tick.Admitted)
	}
	if len(tick.Fills) != 1 {
		t.Fatalf("Fills = %d, want 1", len(tick.Fills))
	}
	if !tick.Fills[0].FillPercentage.Equal(d(t, "100")) {
		t.Errorf("FillPercentage = %s, want 100", tick.Fills[0].FillPercentage)
	}

	order = queryOrder(t, engine, "SOLO", 1)
	if order.Status != basket.OrderStatusFilled {
		t.Errorf("Status after tick = %s, want FILLED", order.Status)
	}
	if order.AdmittedAt != 2 {
		t.Errorf("AdmittedAt after tick = %d, want 2", order.AdmittedAt)
	}

	// Two units of a 10-priced basket cost 20; the reservation is consumed
	balance, err = funds.GetBalance("SOLO")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if !balance.Spent.Equal(d(t, "20")) {
		t.Errorf("Spent after fill = %s, want 20", balance.Spent)
	}
	if !balance.Reserved.IsZero() {
		t.Errorf("Reserved after fill = %s, want 0", balance.Reserved)
	}
}

// TestCancelFlow tests cancels through the engine, including the release of
// reserved funds
func TestCancelFlow(t *testing.T) {
	funds := treasury.NewMemoryService()
	engine := New(nil, funds, nil)
	defer engine.Stop()

	mustCreateIndex(t, engine, "SOLO")
	mustSubmitOrder(t, engine, "SOLO", 1, basket.ActionBuy, "3", "10", 1)

	cancelReq := &basket.CancelOrderRequest{PositionID: 1, IndexID: "SOLO", Timestamp: 2}
	cancelResult := engine.Submit(&CommandEnvelope{
		CommandID:   "cmd_cancel",
		CommandType: CommandTypeCancel,
		IndexID:     "SOLO",
		Payload:     cancelReq,
		CreatedAt:   time.Now(),
	})
	if cancelResult.ErrorCode != ErrorCodeNone {
		t.Fatalf("Cancel failed: %v", cancelResult.Err)
	}

	order := queryOrder(t, engine, "SOLO", 1)
	if order.Status != basket.OrderStatusCancelled {
		t.Errorf("Status after cancel = %s, want CANCELLED", order.Status)
	}

	balance, err := funds.GetBalance("SOLO")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if !balance.Reserved.IsZero() {
		t.Errorf("Reserved after cancel = %s, want 0", balance.Reserved)
	}
	if !balance.Released.Equal(d(t, "30")) {
		t.Errorf("Released after cancel = %s, want 30", balance.Released)
	}

	// A cancelled order never reaches the solver
	tick := mustTick(t, engine, 3)
	if len(tick.Admitted) != 0 {
		t.Errorf("Admitted after cancel = %v, want none", tick.Admitted)
	}

	// Second cancel is rejected
	cancelResult2 := engine.Submit(&CommandEnvelope{
		CommandID:   "cmd_cancel2",
		CommandType: CommandTypeCancel,
		IndexID:     "SOLO",
		Payload:     cancelReq,
		CreatedAt:   time.Now(),
	})
	if cancelResult2.ErrorCode != ErrorCodeInvalidState {
		t.Errorf("Second cancel ErrorCode = %s, want INVALID_STATE", cancelResult2.ErrorCode)
	}
}

// TestGlobalWindowSaturation tests that a saturated global window holds the
// queue until old admissions expire
func TestGlobalWindowSaturation(t *testing.T) {
	config := DefaultConfig()
	config.RateLimitCap = 3
	config.RateLimitWindow = 10
	engine := New(config, nil, nil)
	defer engine.Stop()

	mustCreateIndex(t, engine, "SOLO")
	for pos := int64(1); pos <= 5; pos++ {
		mustSubmitOrder(t, engine, "SOLO", pos, basket.ActionBuy, "1", "10", 0)
	}

	tick := mustTick(t, engine, 0)
	if len(tick.Admitted) != 3 {
		t.Fatalf("Admitted at t=0 = %v, want 3 positions", tick.Admitted)
	}
	for i, want := range []int64{1, 2, 3} {
		if tick.Admitted[i] != want {
			t.Errorf("Admitted[%d] = %d, want %d", i, tick.Admitted[i], want)
		}
	}

	queued, err := engine.QueuedOrders("SOLO")
	if err != nil {
		t.Fatalf("queued orders query failed: %v", err)
	}
	if len(queued) != 2 {
		t.Fatalf("Queue after t=0 = %d orders, want 2", len(queued))
	}

	// Entries admitted at t=0 still occupy the window at t=10
	tick = mustTick(t, engine, 10)
	if len(tick.Admitted) != 0 {
		t.Errorf("Admitted at t=10 = %v, want none", tick.Admitted)
	}

	// At t=11 the old admissions fall out and the rest drain
	tick = mustTick(t, engine, 11)
	if len(tick.Admitted) != 2 {
		t.Fatalf("Admitted at t=11 = %v, want 2 positions", tick.Admitted)
	}
	if tick.Admitted[0] != 4 || tick.Admitted[1] != 5 {
		t.Errorf("Admitted at t=11 = %v, want [4 5]", tick.Admitted)
	}

	queued, err = engine.QueuedOrders("SOLO")
	if err != nil {
		t.Fatalf("queued orders query failed: %v", err)
	}
	if len(queued) != 0 {
		t.Errorf("Queue after t=11 = %d orders, want 0", len(queued))
	}
}

// TestCrossIndexArrivalOrder tests that a shared window admits strictly by
// arrival across indices
func TestCrossIndexArrivalOrder(t *testing.T) {
	config := DefaultConfig()
	config.RateLimitCap = 2
	config.RateLimitWindow = 10
	engine := New(config, nil, nil)
	defer engine.Stop()

	mustCreateIndex(t, engine, "ALPHA")
	mustCreateIndex(t, engine, "BETA")

	mustSubmitOrder(t, engine, "ALPHA", 1, basket.ActionBuy, "1", "10", 0)
	mustSubmitOrder(t, engine, "BETA", 2, basket.ActionBuy, "1", "10", 0)
	mustSubmitOrder(t, engine, "ALPHA", 3, basket.ActionBuy, "1", "10", 0)

	tick := mustTick(t, engine, 0)
	if len(tick.Admitted) != 2 {
		t.Fatalf("Admitted = %v, want 2 positions", tick.Admitted)
	}
	if tick.Admitted[0] != 1 || tick.Admitted[1] != 2 {
		t.Errorf("Admitted = %v, want [1 2]", tick.Admitted)
	}

	queued, err := engine.QueuedOrders("ALPHA")
	if err != nil {
		t.Fatalf("queued orders query failed: %v", err)
	}
	if len(queued) != 1 || queued[0].PositionID != 3 {
		t.Errorf("ALPHA queue = %v, want position 3", queued)
	}
	if queued[0].ArrivalSeq != 3 {
		t.Errorf("ArrivalSeq = %d, want 3", queued[0].ArrivalSeq)
	}
}

// TestPerIndexScopeIsolation tests that per-index windows do not starve each
// other
func TestPerIndexScopeIsolation(t *testing.T) {
	config := DefaultConfig()
	config.RateLimitScope = ScopePerIndex
	config.RateLimitCap = 1
	config.RateLimitWindow = 10
	config.Workers = 4
	engine := New(config, nil, nil)
	defer engine.Stop()

	mustCreateIndex(t, engine, "ALPHA")
	mustCreateIndex(t, engine, "BETA")

	mustSubmitOrder(t, engine, "ALPHA", 1, basket.ActionBuy, "1", "10", 0)
	mustSubmitOrder(t, engine, "ALPHA", 2, basket.ActionBuy, "1", "10", 0)
	mustSubmitOrder(t, engine, "BETA", 3, basket.ActionBuy, "1", "10", 0)

	tick := mustTick(t, engine, 0)
	admitted := make(map[int64]bool)
	for _, pos := range tick.Admitted {
		admitted[pos] = true
	}
	if len(admitted) != 2 || !admitted[1] || !admitted[3] {
		t.Errorf("Admitted = %v, want positions 1 and 3", tick.Admitted)
	}

	queued, err := engine.QueuedOrders("ALPHA")
	if err != nil {
		t.Fatalf("queued orders query failed: %v", err)
	}
	if len(queued) != 1 || queued[0].PositionID != 2 {
		t.Errorf("ALPHA queue = %v, want position 2", queued)
	}
}

// TestConcurrencyIsolation tests that different indices do not interfere
// under concurrent submissions
func TestConcurrencyIsolation(t *testing.T) {
	config := DefaultConfig()
	config.RateLimitScope = ScopePerIndex
	config.Workers = 4
	engine := New(config, nil, nil)
	defer engine.Stop()

	indexIDs := []string{"ALPHA", "BETA", "GAMMA", "DELTA"}
	for _, indexID := range indexIDs {
		mustCreateIndex(t, engine, indexID)
	}

	var wg sync.WaitGroup
	for i, indexID := range indexIDs {
		wg.Add(1)
		go func(i int, indexID string) {
			defer wg.Done()

			for j := 0; j < 10; j++ {
				positionID := int64(i*100 + j + 1)
				req := &basket.SubmitOrderRequest{
					PositionID: positionID,
					IndexID:    indexID,
					Action:     basket.ActionBuy,
					Quantity:   decimal.NewFromInt(1),
					IndexPrice: decimal.NewFromInt(10),
					Timestamp:  1,
				}
				result := engine.Submit(&CommandEnvelope{
					CommandID:   fmt.Sprintf("cmd_%s_%d", indexID, positionID),
					CommandType: CommandTypeSubmit,
					IndexID:     indexID,
					Payload:     req,
					CreatedAt:   time.Now(),
				})
				if result.ErrorCode != ErrorCodeNone {
					t.Errorf("Submit failed for %s position %d: %v", indexID, positionID, result.Err)
					return
				}
			}
		}(i, indexID)
	}
	wg.Wait()

	for _, indexID := range indexIDs {
		queued, err := engine.QueuedOrders(indexID)
		if err != nil {
			t.Fatalf("queued orders query failed for %s: %v", indexID, err)
		}
		if len(queued) != 10 {
			t.Errorf("%s queue = %d orders, want 10", indexID, len(queued))
		}
		for i := 1; i < len(queued); i++ {
			if queued[i-1].ArrivalSeq >= queued[i].ArrivalSeq {
				t.Errorf("%s queue not in arrival order at %d", indexID, i)
			}
		}
	}
}

// TestUnknownIndex tests commands against a missing index
func TestUnknownIndex(t *testing.T) {
	engine := New(nil, nil, nil)
	defer engine.Stop()

	req := &basket.SubmitOrderRequest{
		PositionID: 1,
		IndexID:    "GHOST",
		Action:     basket.ActionBuy,
		Quantity:   decimal.NewFromInt(1),
		IndexPrice: decimal.NewFromInt(10),
		Timestamp:  1,
	}
	result := engine.Submit(&CommandEnvelope{
		CommandID:   "cmd_submit",
		CommandType: CommandTypeSubmit,
		IndexID:     "GHOST",
		Payload:     req,
		CreatedAt:   time.Now(),
	})
	if result.ErrorCode != ErrorCodeNotFound {
		t.Errorf("Submit ErrorCode = %s, want NOT_FOUND", result.ErrorCode)
	}
}

// TestDuplicateIndexCreation tests that an index ID cannot be reused
func TestDuplicateIndexCreation(t *testing.T) {
	engine := New(nil, nil, nil)
	defer engine.Stop()

	mustCreateIndex(t, engine, "SOLO")

	result := engine.Submit(&CommandEnvelope{
		CommandID:   "cmd_create_again",
		CommandType: CommandTypeCreateIndex,
		IndexID:     "SOLO",
		Payload:     soloCreateReq("SOLO"),
		CreatedAt:   time.Now(),
	})
	if result.ErrorCode != ErrorCodeIndexExists {
		t.Errorf("ErrorCode = %s, want INDEX_EXISTS", result.ErrorCode)
	}
}

// TestEngineStopped tests that commands after Stop are rejected cleanly
func TestEngineStopped(t *testing.T) {
	engine := New(nil, nil, nil)
	mustCreateIndex(t, engine, "SOLO")
	engine.Stop()

	result := engine.Submit(&CommandEnvelope{
		CommandID:   "cmd_late",
		CommandType: CommandTypeQueryIndex,
		IndexID:     "SOLO",
		Payload:     &basket.QueryIndexRequest{IndexID: "SOLO"},
		CreatedAt:   time.Now(),
	})
	if result.ErrorCode != ErrorCodeEngineStopped {
		t.Errorf("ErrorCode = %s, want ENGINE_STOPPED", result.ErrorCode)
	}
}

// TestEventSinkReceivesCommittedEvents tests that every mutation publishes
// its events to the sink in sequence order
func TestEventSinkReceivesCommittedEvents(t *testing.T) {
	var mu sync.Mutex
	var captured []basket.Event

	sink := SinkFunc(func(indexID string, events []basket.Event) {
		mu.Lock()
		defer mu.Unlock()
		captured = append(captured, events...)
	})

	engine := New(nil, nil, sink)
	defer engine.Stop()

	mustCreateIndex(t, engine, "SOLO")
	mustSubmitOrder(t, engine, "SOLO", 1, basket.ActionBuy, "2", "10", 1)
	mustTick(t, engine, 2)

	mu.Lock()
	defer mu.Unlock()

	wantTypes := []string{"IndexCreated", "OrderQueued", "OrderAdmitted", "OrderFilled"}
	if len(captured) != len(wantTypes) {
		t.Fatalf("captured %d events, want %d", len(captured), len(wantTypes))
	}
	for i, want := range wantTypes {
		if captured[i].EventType() != want {
			t.Errorf("event %d type = %s, want %s", i, captured[i].EventType(), want)
		}
		if captured[i].Sequence() != int64(i+1) {
			t.Errorf("event %d sequence = %d, want %d", i, captured[i].Sequence(), i+1)
		}
	}
}

// TestCachedResultIsolation tests that mutating a returned result does not
// corrupt the idempotency cache
func TestCachedResultIsolation(t *testing.T) {
	engine := New(nil, nil, nil)
	defer engine.Stop()

	mustCreateIndex(t, engine, "SOLO")

	req := &basket.SubmitOrderRequest{
		PositionID: 1,
		IndexID:    "SOLO",
		Action:     basket.ActionBuy,
		Quantity:   decimal.NewFromInt(1),
		IndexPrice: decimal.NewFromInt(10),
		Timestamp:  1,
	}
	hash, _ := ComputePayloadHash(req)
	envelope := &CommandEnvelope{
		CommandID:      "cmd1",
		CommandType:    CommandTypeSubmit,
		IdempotencyKey: "isolation_key",
		IndexID:        "SOLO",
		PayloadHash:    hash,
		Payload:        req,
		CreatedAt:      time.Now(),
	}

	result1 := engine.Submit(envelope)
	if result1.ErrorCode != ErrorCodeNone {
		t.Fatalf("First submission failed: %v", result1.Err)
	}
	cmdResult1 := result1.Result.(*basket.CommandResult)
	cmdResult1.Events = nil

	result2 := engine.Submit(envelope)
	cmdResult2, ok := result2.Result.(*basket.CommandResult)
	if !ok {
		t.Fatalf("Second submission returned %T", result2.Result)
	}
	if len(cmdResult2.Events) != 1 {
		t.Errorf("Cached events = %d, want 1", len(cmdResult2.Events))
	}
}
