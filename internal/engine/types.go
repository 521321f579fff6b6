package engine

import (
	"time"

	"github.com/mridulgoel03/ETF-trading-project/internal/basket"
)

// CommandType represents the type of command
type CommandType string

const (
	CommandTypeCreateIndex  CommandType = "CREATE_INDEX"
	CommandTypeSubmit       CommandType = "SUBMIT"
	CommandTypeCancel       CommandType = "CANCEL"
	CommandTypeUpdatePrices CommandType = "UPDATE_PRICES"
	CommandTypeSetLiquidity CommandType = "SET_LIQUIDITY"
	CommandTypeRebalance    CommandType = "REBALANCE"
	CommandTypeTick         CommandType = "TICK"
	CommandTypeQueryOrder   CommandType = "QUERY_ORDER"
	CommandTypeQueryIndex   CommandType = "QUERY_INDEX"
	CommandTypeQueryPlan    CommandType = "QUERY_PLAN"
	CommandTypeQueryQueue   CommandType = "QUERY_QUEUE"
)

// CommandEnvelope wraps a command with metadata
type CommandEnvelope struct {
	CommandID      string      // Unique command ID
	CommandType    CommandType // Command discriminator
	IdempotencyKey string      // Idempotency key for deduplication, empty skips the check
	IndexID        string      // Target index
	PayloadHash    string      // Hash of payload for conflict detection
	Payload        any         // Actual command payload (basket request types)
	CreatedAt      time.Time   // Command creation time
}

// ErrorCode represents command execution error codes
type ErrorCode string

const (
	ErrorCodeNone             ErrorCode = ""
	ErrorCodeDuplicateRequest ErrorCode = "DUPLICATE_REQUEST"
	ErrorCodeInvalidArgument  ErrorCode = "INVALID_ARGUMENT"
	ErrorCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrorCodeInvalidState     ErrorCode = "INVALID_STATE"
	ErrorCodeIndexExists      ErrorCode = "INDEX_EXISTS"
	ErrorCodeInternalError    ErrorCode = "INTERNAL_ERROR"
	ErrorCodeEngineStopped    ErrorCode = "ENGINE_STOPPED"
)

// CommandExecResult represents the result of command execution
type CommandExecResult struct {
	Result    any       // Execution result (CommandResult, IndexState, Order, RebalancePlan, TickResult)
	ErrorCode ErrorCode // Error code if execution failed
	Err       error     // Detailed error message
}

// RateLimitScope selects whether the admission window is shared by all
// indices or tracked per index.
type RateLimitScope string

const (
	ScopeGlobal   RateLimitScope = "global"
	ScopePerIndex RateLimitScope = "per_index"
)

// TickRequest advances simulated time over the admission queue.
type TickRequest struct {
	Timestamp int64
}

// TickResult summarizes one processing pass.
type TickResult struct {
	Timestamp int64
	Admitted  []int64              // positions that passed the window this tick
	Fills     []*basket.FillResult // fills produced this tick, including retries
}

// EventSink receives committed domain events after a command mutates an
// index. Implementations must not block the caller for long; the engine
// worker publishes synchronously.
type EventSink interface {
	Publish(indexID string, events []basket.Event)
}

// MultiSink fans events out to several sinks in order.
type MultiSink []EventSink

func (m MultiSink) Publish(indexID string, events []basket.Event) {
	for _, sink := range m {
		sink.Publish(indexID, events)
	}
}

// SinkFunc adapts a function to the EventSink interface.
type SinkFunc func(indexID string, events []basket.Event)

func (f SinkFunc) Publish(indexID string, events []basket.Event) {
	f(indexID, events)
}
