package scenario

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mridulgoel03/ETF-trading-project/internal/basket"
	"github.com/mridulgoel03/ETF-trading-project/internal/engine"
	"github.com/mridulgoel03/ETF-trading-project/internal/treasury"
)

// assertTolerance bounds the decimal drift accepted by expected_nav and
// expected_fill_percentage checks.
var assertTolerance = decimal.New(1, -6)

// Report collects the outcome of one scenario run.
type Report struct {
	Scenario string
	Steps    int
	Failures []string
}

// OK reports whether every assertion of the scenario held.
func (r *Report) OK() bool { return len(r.Failures) == 0 }

// Runner replays one scenario against a dedicated engine instance. Orders
// without an explicit position id get sequential ids, and assertions without
// an explicit target refer to the order touched last.
type Runner struct {
	scenario *Scenario
	log      *logrus.Logger
	engine   *engine.Engine
	treasury treasury.Service

	nextPos   int64
	lastIndex string
	lastPos   int64
	failures  []string
}

// NewRunner builds a runner with a fresh engine configured from the scenario
// overrides. A nil logger falls back to the standard logger.
func NewRunner(s *Scenario, log *logrus.Logger) *Runner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	treasurySvc := treasury.NewMemoryService()
	return &Runner{
		scenario: s,
		log:      log,
		engine:   engine.New(engineConfig(s), treasurySvc, nil),
		treasury: treasurySvc,
	}
}

// Treasury exposes the cash ledger backing the run, for inspection after
// Run returns.
func (r *Runner) Treasury() treasury.Service { return r.treasury }

// engineConfig derives the engine configuration from the scenario overrides.
// One worker keeps replays deterministic across indices.
func engineConfig(s *Scenario) *engine.Config {
	cfg := engine.DefaultConfig()
	cfg.Workers = 1
	if s.RateLimit != nil {
		cfg.RateLimitCap = s.RateLimit.Cap
		cfg.RateLimitWindow = s.RateLimit.Window
		if s.RateLimit.Scope != "" {
			cfg.RateLimitScope = engine.RateLimitScope(s.RateLimit.Scope)
		}
	}
	if s.FeeRate != nil {
		cfg.FeeRate = *s.FeeRate
	}
	if s.MinOrderValue != nil {
		cfg.MinOrderValue = *s.MinOrderValue
	}
	return cfg
}

// Run seeds the indices, walks the timeline, and collects every assertion
// failure into the report. The engine is stopped before Run returns. The
// returned error covers setup problems only; assertion failures land in the
// report.
func (r *Runner) Run() (*Report, error) {
	defer r.engine.Stop()

	if err := r.scenario.Validate(); err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"scenario": r.scenario.Name,
		"indices":  len(r.scenario.Indices),
		"steps":    len(r.scenario.Timeline),
	}).Info("replaying scenario")

	for _, fix := range r.scenario.Indices {
		if err := r.seedIndex(fix); err != nil {
			return nil, err
		}
	}

	for i, ev := range r.scenario.Timeline {
		r.step(i, ev)
	}

	report := &Report{
		Scenario: r.scenario.Name,
		Steps:    len(r.scenario.Timeline),
		Failures: r.failures,
	}
	if report.OK() {
		r.log.WithField("scenario", r.scenario.Name).Info("scenario passed")
	} else {
		r.log.WithFields(logrus.Fields{
			"scenario": r.scenario.Name,
			"failures": len(report.Failures),
		}).Error("scenario failed")
	}
	return report, nil
}

func (r *Runner) seedIndex(fix IndexFixture) error {
	result := r.submit(engine.CommandTypeCreateIndex, fix.ID, &basket.CreateIndexRequest{
		IndexID:     fix.ID,
		ListedPrice: fix.Price,
		Assets:      fix.Assets,
		Liquidity:   liquidityProfiles(fix.Liquidity),
	})
	if result.ErrorCode != engine.ErrorCodeNone {
		return fmt.Errorf("seed index %s: %s: %w", fix.ID, result.ErrorCode, result.Err)
	}
	return nil
}

// step evaluates one timeline event: prices first, then the action for each
// repetition, then the assertions.
func (r *Runner) step(i int, ev TimelineEvent) {
	if len(ev.AssetPrices) > 0 {
		r.applyPrices(i, ev)
	}
	if ev.Action != "" {
		reps := ev.Repeat
		if reps <= 0 {
			reps = 1
		}
		for n := 0; n < reps; n++ {
			r.runAction(i, ev)
		}
	}
	r.assert(i, ev)
}

// applyPrices routes the observed prices to every index holding one of the
// symbols. Symbols no index holds are dropped.
func (r *Runner) applyPrices(i int, ev TimelineEvent) {
	for _, fix := range r.scenario.Indices {
		state, err := r.indexState(fix.ID)
		if err != nil {
			r.failf("step %d: query index %s: %v", i, fix.ID, err)
			continue
		}
		held := make(map[string]decimal.Decimal)
		for _, asset := range state.Composition {
			if price, ok := ev.AssetPrices[asset.Symbol]; ok {
				held[asset.Symbol] = price
			}
		}
		if len(held) == 0 {
			continue
		}
		result := r.submit(engine.CommandTypeUpdatePrices, fix.ID, &basket.UpdatePricesRequest{
			IndexID:   fix.ID,
			Prices:    held,
			Timestamp: ev.Timestamp,
		})
		if result.ErrorCode != engine.ErrorCodeNone {
			r.failf("step %d: update prices on %s: %s: %v", i, fix.ID, result.ErrorCode, result.Err)
		}
	}
}

func (r *Runner) runAction(i int, ev TimelineEvent) {
	var result *engine.CommandExecResult
	switch ev.Action {
	case ActionBuy:
		result = r.submitOrder(ev, basket.ActionBuy)
	case ActionSell:
		result = r.submitOrder(ev, basket.ActionSell)
	case ActionCancel:
		indexID := r.targetIndex(ev.Params)
		r.lastIndex, r.lastPos = indexID, ev.Params.PositionID
		result = r.submit(engine.CommandTypeCancel, indexID, &basket.CancelOrderRequest{
			PositionID: ev.Params.PositionID,
			IndexID:    indexID,
			Timestamp:  ev.Timestamp,
		})
	case ActionRebalance:
		indexID := r.targetIndex(ev.Params)
		result = r.submit(engine.CommandTypeRebalance, indexID, &basket.RebalanceRequest{
			IndexID:    indexID,
			NewWeights: ev.Params.Weights,
			Prices:     ev.Params.Prices,
			Timestamp:  ev.Timestamp,
		})
	case ActionSetLiquidity:
		indexID := r.targetIndex(ev.Params)
		result = r.submit(engine.CommandTypeSetLiquidity, indexID, &basket.SetLiquidityRequest{
			IndexID:   indexID,
			Liquidity: liquidityProfiles(ev.Params.Liquidity),
			Timestamp: ev.Timestamp,
		})
	case ActionProcessQueue:
		tick, err := r.engine.ProcessQueue(ev.Timestamp)
		if err != nil {
			r.failf("step %d: process_queue: %v", i, err)
			return
		}
		r.log.WithFields(logrus.Fields{
			"timestamp": ev.Timestamp,
			"admitted":  len(tick.Admitted),
			"fills":     len(tick.Fills),
		}).Debug("processed queue")
		return
	}
	r.checkResult(i, ev, result)
}

func (r *Runner) submitOrder(ev TimelineEvent, action basket.Action) *engine.CommandExecResult {
	params := ev.Params
	if params == nil {
		params = &ActionParams{}
	}
	indexID := r.targetIndex(params)
	pos := params.PositionID
	if pos <= 0 {
		r.nextPos++
		pos = r.nextPos
	} else if pos > r.nextPos {
		r.nextPos = pos
	}
	r.lastIndex, r.lastPos = indexID, pos
	return r.submit(engine.CommandTypeSubmit, indexID, &basket.SubmitOrderRequest{
		PositionID: pos,
		IndexID:    indexID,
		Action:     action,
		Quantity:   params.Quantity,
		IndexPrice: params.IndexPrice,
		Timestamp:  ev.Timestamp,
	})
}

func (r *Runner) checkResult(i int, ev TimelineEvent, result *engine.CommandExecResult) {
	if ev.ExpectedError != "" {
		if result.ErrorCode == engine.ErrorCodeNone {
			r.failf("step %d: %s succeeded, expected error %q", i, ev.Action, ev.ExpectedError)
		} else if !errorMatches(result, ev.ExpectedError) {
			r.failf("step %d: %s failed with %s (%v), expected %q", i, ev.Action, result.ErrorCode, result.Err, ev.ExpectedError)
		}
		return
	}
	if result.ErrorCode != engine.ErrorCodeNone {
		r.failf("step %d: %s: %s: %v", i, ev.Action, result.ErrorCode, result.Err)
	}
}

// errorMatches accepts either the engine error code or a fragment of the
// error message.
func errorMatches(result *engine.CommandExecResult, want string) bool {
	if string(result.ErrorCode) == want {
		return true
	}
	return result.Err != nil && strings.Contains(result.Err.Error(), want)
}

func (r *Runner) assert(i int, ev TimelineEvent) {
	indexID, pos := r.assertionTarget(ev.Params)

	if ev.ExpectedStatus != "" || ev.ExpectedFillPercentage != nil || ev.ExpectedPartialFill != nil || ev.ExpectedLossPositive != nil {
		order, err := r.order(indexID, pos)
		if err != nil {
			r.failf("step %d: query order %d on %s: %v", i, pos, indexID, err)
		} else {
			r.assertOrder(i, ev, order)
		}
	}

	if ev.ExpectedNAV != nil {
		state, err := r.indexState(indexID)
		if err != nil {
			r.failf("step %d: query index %s: %v", i, indexID, err)
		} else if !near(state.NAV, *ev.ExpectedNAV) {
			r.failf("step %d: nav %s, expected %s", i, state.NAV, *ev.ExpectedNAV)
		}
	}

	if ev.ExpectedQueue != nil {
		r.assertQueue(i, ev.ExpectedQueue)
	}
}

func (r *Runner) assertOrder(i int, ev TimelineEvent, order *basket.Order) {
	if ev.ExpectedStatus != "" && string(order.Status) != ev.ExpectedStatus {
		r.failf("step %d: position %d status %s, expected %s", i, order.PositionID, order.Status, ev.ExpectedStatus)
	}
	if ev.ExpectedFillPercentage != nil {
		pct := decimal.Zero
		if order.LastFill != nil {
			pct = order.LastFill.FillPercentage
		}
		if !near(pct, *ev.ExpectedFillPercentage) {
			r.failf("step %d: position %d fill percentage %s, expected %s", i, order.PositionID, pct, *ev.ExpectedFillPercentage)
		}
	}
	if ev.ExpectedPartialFill != nil {
		partial := order.Status == basket.OrderStatusPartiallyFilled
		if partial != *ev.ExpectedPartialFill {
			r.failf("step %d: position %d partial=%t, expected partial=%t", i, order.PositionID, partial, *ev.ExpectedPartialFill)
		}
	}
	if ev.ExpectedLossPositive != nil {
		positive := order.Loss.IsPositive()
		if positive != *ev.ExpectedLossPositive {
			r.failf("step %d: position %d loss %s, expected positive=%t", i, order.PositionID, order.Loss, *ev.ExpectedLossPositive)
		}
	}
}

func (r *Runner) assertQueue(i int, expected []string) {
	queued, err := r.engine.AllQueuedOrders()
	if err != nil {
		r.failf("step %d: query queue: %v", i, err)
		return
	}
	got := make([]string, len(queued))
	for j, q := range queued {
		got[j] = q.IndexID
	}
	if len(got) != len(expected) {
		r.failf("step %d: queue %v, expected %v", i, got, expected)
		return
	}
	for j := range got {
		if got[j] != expected[j] {
			r.failf("step %d: queue %v, expected %v", i, got, expected)
			return
		}
	}
}

// assertionTarget resolves the order an assertion refers to: explicit params
// win, otherwise the last touched order, otherwise the first index.
func (r *Runner) assertionTarget(params *ActionParams) (string, int64) {
	indexID, pos := r.lastIndex, r.lastPos
	if params != nil {
		if params.IndexID != "" {
			indexID = params.IndexID
		}
		if params.PositionID > 0 {
			pos = params.PositionID
		}
	}
	if indexID == "" {
		indexID = r.scenario.Indices[0].ID
	}
	return indexID, pos
}

func (r *Runner) targetIndex(params *ActionParams) string {
	if params != nil && params.IndexID != "" {
		return params.IndexID
	}
	return r.scenario.Indices[0].ID
}

func (r *Runner) order(indexID string, positionID int64) (*basket.Order, error) {
	result := r.submit(engine.CommandTypeQueryOrder, indexID, &basket.QueryOrderRequest{
		IndexID:    indexID,
		PositionID: positionID,
	})
	if result.ErrorCode != engine.ErrorCodeNone {
		return nil, result.Err
	}
	order, ok := result.Result.(*basket.Order)
	if !ok {
		return nil, fmt.Errorf("unexpected order query result %T", result.Result)
	}
	return order, nil
}

func (r *Runner) indexState(indexID string) (*basket.IndexState, error) {
	result := r.submit(engine.CommandTypeQueryIndex, indexID, &basket.QueryIndexRequest{IndexID: indexID})
	if result.ErrorCode != engine.ErrorCodeNone {
		return nil, result.Err
	}
	state, ok := result.Result.(*basket.IndexState)
	if !ok {
		return nil, fmt.Errorf("unexpected index query result %T", result.Result)
	}
	return state, nil
}

func (r *Runner) submit(commandType engine.CommandType, indexID string, payload any) *engine.CommandExecResult {
	return r.engine.Submit(&engine.CommandEnvelope{
		CommandID:   "replay_" + uuid.New().String(),
		CommandType: commandType,
		IndexID:     indexID,
		Payload:     payload,
		CreatedAt:   time.Now(),
	})
}

func (r *Runner) failf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.failures = append(r.failures, msg)
	r.log.WithField("scenario", r.scenario.Name).Error(msg)
}

func near(got, want decimal.Decimal) bool {
	return got.Sub(want).Abs().LessThanOrEqual(assertTolerance)
}
