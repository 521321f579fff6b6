package api

import (
	"encoding/binary"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mridulgoel03/ETF-trading-project/internal/basket"
	"github.com/mridulgoel03/ETF-trading-project/internal/engine"
	"github.com/mridulgoel03/ETF-trading-project/internal/treasury"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	engine   *engine.Engine
	treasury treasury.Service
}

// NewHandler creates a new API handler. The treasury may be nil.
func NewHandler(eng *engine.Engine, treasurySvc treasury.Service) *Handler {
	return &Handler{
		engine:   eng,
		treasury: treasurySvc,
	}
}

// CreateIndex handles POST /v1/indices
func (h *Handler) CreateIndex(c *gin.Context) {
	var req CreateIndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeInvalidArgument(c, "invalid request body: "+err.Error())
		return
	}
	if req.IndexID == "" {
		h.writeInvalidArgument(c, "index_id required")
		return
	}
	listedPrice, err := parseDecimal("listed_price", req.ListedPrice)
	if err != nil {
		h.writeInvalidArgument(c, err.Error())
		return
	}
	liquidity, err := parseLiquidity(req.Liquidity)
	if err != nil {
		h.writeInvalidArgument(c, err.Error())
		return
	}

	payload := &basket.CreateIndexRequest{
		IndexID:     req.IndexID,
		ListedPrice: listedPrice,
		Assets:      req.Assets,
		Liquidity:   liquidity,
		Timestamp:   req.Timestamp,
	}
	if err := payload.Validate(); err != nil {
		h.writeInvalidArgument(c, err.Error())
		return
	}

	result, ok := h.execute(c, engine.CommandTypeCreateIndex, req.IndexID, c.GetHeader("Idempotency-Key"), payload)
	if !ok {
		return
	}

	var created *basket.IndexCreatedEvent
	if cmdResult, isResult := result.Result.(*basket.CommandResult); isResult {
		for _, event := range cmdResult.Events {
			if e, isCreated := event.(*basket.IndexCreatedEvent); isCreated {
				created = e
				break
			}
		}
	}
	if created == nil {
		h.writeInternal(c, "index creation produced no event")
		return
	}

	c.JSON(http.StatusOK, IndexResponse{
		IndexID:      created.IndexIDValue,
		ListedPrice:  created.ListedPrice.String(),
		NAV:          created.NAV.String(),
		Composition:  assetViews(created.Composition),
		Weights:      decimalStrings(created.Weights),
		Liquidity:    liquidityDTOs(created.Liquidity),
		LastSequence: created.SequenceValue,
	})
}

// GetIndex handles GET /v1/indices/:id
func (h *Handler) GetIndex(c *gin.Context) {
	indexID := c.Param("id")
	result, ok := h.execute(c, engine.CommandTypeQueryIndex, indexID, "", &basket.QueryIndexRequest{IndexID: indexID})
	if !ok {
		return
	}
	state, isState := result.Result.(*basket.IndexState)
	if !isState {
		h.writeInternal(c, "unexpected index query result")
		return
	}
	c.JSON(http.StatusOK, IndexResponse{
		IndexID:      state.IndexID,
		ListedPrice:  state.ListedPrice.String(),
		NAV:          state.NAV.String(),
		Composition:  assetViews(state.Composition),
		Weights:      decimalStrings(state.Weights),
		Liquidity:    liquidityDTOs(state.Liquidity),
		LastSequence: state.LastSequence,
	})
}

// UpdatePrices handles PUT /v1/indices/:id/prices
func (h *Handler) UpdatePrices(c *gin.Context) {
	indexID := c.Param("id")
	var req UpdatePricesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeInvalidArgument(c, "invalid request body: "+err.Error())
		return
	}
	prices, err := parseDecimalMap("prices", req.Prices)
	if err != nil {
		h.writeInvalidArgument(c, err.Error())
		return
	}

	payload := &basket.UpdatePricesRequest{
		IndexID:   indexID,
		Prices:    prices,
		Timestamp: req.Timestamp,
	}
	if err := payload.Validate(); err != nil {
		h.writeInvalidArgument(c, err.Error())
		return
	}

	result, ok := h.execute(c, engine.CommandTypeUpdatePrices, indexID, c.GetHeader("Idempotency-Key"), payload)
	if !ok {
		return
	}

	resp := UpdatePricesResponse{IndexID: indexID}
	if cmdResult, isResult := result.Result.(*basket.CommandResult); isResult {
		for _, event := range cmdResult.Events {
			if e, isPrices := event.(*basket.PricesUpdatedEvent); isPrices {
				resp.NAV = e.NAV.String()
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

// SetLiquidity handles PUT /v1/indices/:id/liquidity
func (h *Handler) SetLiquidity(c *gin.Context) {
	indexID := c.Param("id")
	var req SetLiquidityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeInvalidArgument(c, "invalid request body: "+err.Error())
		return
	}
	liquidity, err := parseLiquidity(req.Liquidity)
	if err != nil {
		h.writeInvalidArgument(c, err.Error())
		return
	}

	payload := &basket.SetLiquidityRequest{
		IndexID:   indexID,
		Liquidity: liquidity,
		Timestamp: req.Timestamp,
	}
	if err := payload.Validate(); err != nil {
		h.writeInvalidArgument(c, err.Error())
		return
	}

	result, ok := h.execute(c, engine.CommandTypeSetLiquidity, indexID, c.GetHeader("Idempotency-Key"), payload)
	if !ok {
		return
	}

	resp := SetLiquidityResponse{IndexID: indexID, Liquidity: map[string]LiquidityProfileDTO{}}
	if cmdResult, isResult := result.Result.(*basket.CommandResult); isResult {
		for _, event := range cmdResult.Events {
			if e, isLiquidity := event.(*basket.LiquidityUpdatedEvent); isLiquidity {
				resp.Liquidity = liquidityDTOs(e.Liquidity)
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Rebalance handles POST /v1/indices/:id/rebalance
func (h *Handler) Rebalance(c *gin.Context) {
	indexID := c.Param("id")
	var req RebalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeInvalidArgument(c, "invalid request body: "+err.Error())
		return
	}
	if len(req.NewWeights) == 0 {
		h.writeInvalidArgument(c, "new_weights required")
		return
	}
	newWeights, err := parseDecimalMap("new_weights", req.NewWeights)
	if err != nil {
		h.writeInvalidArgument(c, err.Error())
		return
	}
	prices, err := parseDecimalMap("prices", req.Prices)
	if err != nil {
		h.writeInvalidArgument(c, err.Error())
		return
	}

	payload := &basket.RebalanceRequest{
		IndexID:    indexID,
		NewWeights: newWeights,
		Prices:     prices,
		Timestamp:  req.Timestamp,
	}

	result, ok := h.execute(c, engine.CommandTypeRebalance, indexID, c.GetHeader("Idempotency-Key"), payload)
	if !ok {
		return
	}

	var plan *basket.RebalancePlan
	if cmdResult, isResult := result.Result.(*basket.CommandResult); isResult {
		for _, event := range cmdResult.Events {
			if e, isRebalanced := event.(*basket.IndexRebalancedEvent); isRebalanced {
				plan = &e.Plan
				break
			}
		}
	}
	if plan == nil {
		h.writeInternal(c, "rebalance produced no plan")
		return
	}
	c.JSON(http.StatusOK, planResponse(plan))
}

// RebalanceReport handles GET /v1/indices/:id/rebalance-report
func (h *Handler) RebalanceReport(c *gin.Context) {
	indexID := c.Param("id")
	result, ok := h.execute(c, engine.CommandTypeQueryPlan, indexID, "", &basket.QueryPlanRequest{IndexID: indexID})
	if !ok {
		return
	}
	plan, isPlan := result.Result.(*basket.RebalancePlan)
	if !isPlan {
		h.writeInternal(c, "unexpected plan query result")
		return
	}
	c.JSON(http.StatusOK, planResponse(plan))
}

// SubmitOrder handles POST /v1/orders. Orders only enter the admission queue
// here; fills happen on ticks.
func (h *Handler) SubmitOrder(c *gin.Context) {
	var req SubmitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeInvalidArgument(c, "invalid request body: "+err.Error())
		return
	}
	if req.IndexID == "" {
		h.writeInvalidArgument(c, "index_id required")
		return
	}
	action := basket.Action(req.Action)
	if !action.IsValid() {
		h.writeInvalidArgument(c, "action must be BUY or SELL")
		return
	}
	quantity, err := parseDecimal("quantity", req.Quantity)
	if err != nil {
		h.writeInvalidArgument(c, err.Error())
		return
	}
	indexPrice, err := parseDecimal("index_price", req.IndexPrice)
	if err != nil {
		h.writeInvalidArgument(c, err.Error())
		return
	}

	idemKey := c.GetHeader("Idempotency-Key")
	if idemKey == "" {
		idemKey = req.IdempotencyKey
	}
	positionID := req.PositionID
	if positionID == 0 {
		positionID = derivePositionID(req.IndexID, idemKey)
	}

	payload := &basket.SubmitOrderRequest{
		PositionID: positionID,
		IndexID:    req.IndexID,
		Action:     action,
		Quantity:   quantity,
		IndexPrice: indexPrice,
		Timestamp:  req.Timestamp,
	}
	if err := payload.Validate(); err != nil {
		h.writeInvalidArgument(c, err.Error())
		return
	}

	result, ok := h.execute(c, engine.CommandTypeSubmit, req.IndexID, idemKey, payload)
	if !ok {
		return
	}

	resp := SubmitOrderResponse{
		PositionID: positionID,
		IndexID:    req.IndexID,
		Action:     string(action),
		Quantity:   quantity.String(),
		IndexPrice: indexPrice.String(),
		Status:     string(basket.OrderStatusPending),
	}
	if cmdResult, isResult := result.Result.(*basket.CommandResult); isResult {
		for _, event := range cmdResult.Events {
			if e, isQueued := event.(*basket.OrderQueuedEvent); isQueued {
				resp.PositionID = e.PositionID
				resp.ArrivalSeq = e.ArrivalSeq
				resp.Status = string(e.Status)
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

// CancelOrder handles DELETE /v1/orders/:position_id. Cancels bypass the rate
// window.
func (h *Handler) CancelOrder(c *gin.Context) {
	positionID, indexID, ok := h.orderParams(c)
	if !ok {
		return
	}
	var ts int64
	if raw := c.Query("timestamp"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.writeInvalidArgument(c, "timestamp must be an integer")
			return
		}
		ts = parsed
	}

	idemKey := c.GetHeader("Idempotency-Key")
	if idemKey == "" {
		// Repeated cancels of the same position replay the first result.
		idemKey = fmt.Sprintf("cancel_%s_%d", indexID, positionID)
	}

	payload := &basket.CancelOrderRequest{
		PositionID: positionID,
		IndexID:    indexID,
		Timestamp:  ts,
	}
	result, ok := h.execute(c, engine.CommandTypeCancel, indexID, idemKey, payload)
	if !ok {
		return
	}

	resp := CancelOrderResponse{
		PositionID: positionID,
		IndexID:    indexID,
		Status:     string(basket.OrderStatusCancelled),
	}
	if cmdResult, isResult := result.Result.(*basket.CommandResult); isResult {
		for _, event := range cmdResult.Events {
			if e, isCancelled := event.(*basket.OrderCancelledEvent); isCancelled {
				resp.PriorStatus = string(e.PriorStatus)
				resp.FilledQty = e.FilledQuantity.String()
				resp.RemainingQty = e.RemainingQuantity.String()
				resp.Loss = e.Loss.String()
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

// QueryOrder handles GET /v1/orders/:position_id
func (h *Handler) QueryOrder(c *gin.Context) {
	order, ok := h.queryOrder(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, OrderResponse{
		PositionID:   order.PositionID,
		IndexID:      order.IndexID,
		Action:       string(order.Action),
		Quantity:     order.Quantity.String(),
		IndexPrice:   order.IndexPrice.String(),
		Status:       string(order.Status),
		SubmittedAt:  order.SubmittedAt,
		AdmittedAt:   order.AdmittedAt,
		ArrivalSeq:   order.ArrivalSeq,
		FilledQty:    order.FilledQuantity().String(),
		RemainingQty: order.RemainingQuantity().String(),
		Loss:         order.Loss.String(),
	})
}

// FillReport handles GET /v1/orders/:position_id/fill-report
func (h *Handler) FillReport(c *gin.Context) {
	order, ok := h.queryOrder(c)
	if !ok {
		return
	}
	resp := FillReportResponse{
		PositionID:     order.PositionID,
		IndexID:        order.IndexID,
		Status:         string(order.Status),
		FillPercentage: "0",
		AvgPrice:       "0",
		Loss:           order.Loss.String(),
		FilledQty:      order.FilledQuantity().String(),
	}
	if order.LastFill != nil {
		resp.FillPercentage = order.LastFill.FillPercentage.String()
		resp.AvgPrice = order.LastFill.AvgPrice.String()
		for _, leg := range order.LastFill.Fills {
			resp.Fills = append(resp.Fills, FillLegDTO{
				Symbol:         leg.Symbol,
				QuantityFilled: leg.QuantityFilled.String(),
				ExecutionPrice: leg.ExecutionPrice.String(),
			})
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Tick handles POST /v1/ticks
func (h *Handler) Tick(c *gin.Context) {
	var req TickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeInvalidArgument(c, "invalid request body: "+err.Error())
		return
	}

	tick, err := h.engine.ProcessQueue(req.Timestamp)
	if err != nil {
		h.writeInternal(c, err.Error())
		return
	}

	resp := TickResponse{
		Timestamp: tick.Timestamp,
		Admitted:  tick.Admitted,
		Fills:     []TickFillDTO{},
	}
	for _, fill := range tick.Fills {
		resp.Fills = append(resp.Fills, TickFillDTO{
			PositionID:     fill.PositionID,
			FilledQty:      fill.FilledQuantity.String(),
			FillPercentage: fill.FillPercentage.String(),
			AvgPrice:       fill.AvgPrice.String(),
		})
	}
	c.JSON(http.StatusOK, resp)
}

// Queue handles GET /v1/queue. Without an index_id it snapshots every index.
func (h *Handler) Queue(c *gin.Context) {
	indexID := c.Query("index_id")
	if indexID != "" {
		result, ok := h.execute(c, engine.CommandTypeQueryQueue, indexID, "", &basket.QueryIndexRequest{IndexID: indexID})
		if !ok {
			return
		}
		queued, _ := result.Result.([]basket.QueuedOrder)
		c.JSON(http.StatusOK, queueResponse(queued))
		return
	}

	queued, err := h.engine.AllQueuedOrders()
	if err != nil {
		h.writeInternal(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, queueResponse(queued))
}

// TreasuryReport handles GET /v1/treasury/:id
func (h *Handler) TreasuryReport(c *gin.Context) {
	indexID := c.Param("id")
	if h.treasury == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    string(ErrorCodeNotFound),
			Message: "treasury not configured",
		})
		return
	}
	balance, err := h.treasury.GetBalance(indexID)
	if err != nil {
		h.writeInternal(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, TreasuryResponse{
		IndexID:    indexID,
		Reserved:   balance.Reserved.String(),
		Spent:      balance.Spent.String(),
		Released:   balance.Released.String(),
		Proceeds:   balance.Proceeds.String(),
		NetOutflow: balance.NetOutflow().String(),
	})
}

// execute wraps the payload into a command envelope and submits it. On engine
// failure it writes the mapped error response and reports false.
func (h *Handler) execute(c *gin.Context, commandType engine.CommandType, indexID, idemKey string, payload any) (*engine.CommandExecResult, bool) {
	payloadHash, err := engine.ComputePayloadHash(payload)
	if err != nil {
		h.writeInternal(c, "hash payload: "+err.Error())
		return nil, false
	}

	result := h.engine.Submit(&engine.CommandEnvelope{
		CommandID:      newCommandID(),
		CommandType:    commandType,
		IdempotencyKey: idemKey,
		IndexID:        indexID,
		PayloadHash:    payloadHash,
		Payload:        payload,
		CreatedAt:      time.Now(),
	})
	if result.ErrorCode != engine.ErrorCodeNone {
		status, resp := MapEngineErrorToHTTP(result.ErrorCode, result.Err)
		c.JSON(status, resp)
		return nil, false
	}
	return result, true
}

// queryOrder resolves the order addressed by the request path and index_id
// query parameter.
func (h *Handler) queryOrder(c *gin.Context) (*basket.Order, bool) {
	positionID, indexID, ok := h.orderParams(c)
	if !ok {
		return nil, false
	}
	result, ok := h.execute(c, engine.CommandTypeQueryOrder, indexID, "", &basket.QueryOrderRequest{
		IndexID:    indexID,
		PositionID: positionID,
	})
	if !ok {
		return nil, false
	}
	order, isOrder := result.Result.(*basket.Order)
	if !isOrder {
		h.writeInternal(c, "unexpected order query result")
		return nil, false
	}
	return order, true
}

func (h *Handler) orderParams(c *gin.Context) (int64, string, bool) {
	positionID, err := strconv.ParseInt(c.Param("position_id"), 10, 64)
	if err != nil || positionID <= 0 {
		h.writeInvalidArgument(c, "position_id must be a positive integer")
		return 0, "", false
	}
	indexID := c.Query("index_id")
	if indexID == "" {
		h.writeInvalidArgument(c, "index_id query parameter required")
		return 0, "", false
	}
	return positionID, indexID, true
}

func (h *Handler) writeInvalidArgument(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Code:    string(ErrorCodeInvalidArgument),
		Message: message,
	})
}

func (h *Handler) writeInternal(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Code:    string(ErrorCodeInternalError),
		Message: message,
	})
}

// newCommandID generates a unique command ID
func newCommandID() string {
	return "cmd_" + uuid.New().String()
}

// derivePositionID derives a position ID from the idempotency key, so a
// retried submit carries the same payload and replays instead of conflicting.
// Without a key the ID is random.
func derivePositionID(indexID, idempotencyKey string) int64 {
	var id uuid.UUID
	if idempotencyKey != "" {
		id = uuid.NewSHA1(uuid.NameSpaceDNS, []byte(indexID+"|"+idempotencyKey))
	} else {
		id = uuid.New()
	}
	v := int64(binary.BigEndian.Uint64(id[:8]) & math.MaxInt64)
	if v == 0 {
		v = 1
	}
	return v
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: invalid decimal %q", field, value)
	}
	return d, nil
}

func parseDecimalMap(field string, in map[string]string) (map[string]decimal.Decimal, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]decimal.Decimal, len(in))
	for symbol, value := range in {
		d, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("%s[%s]: invalid decimal %q", field, symbol, value)
		}
		out[symbol] = d
	}
	return out, nil
}

func parseLiquidity(in map[string]LiquidityProfileDTO) (map[string]basket.LiquidityProfile, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]basket.LiquidityProfile, len(in))
	for symbol, dto := range in {
		maxFillable, err := decimal.NewFromString(dto.MaxFillable)
		if err != nil {
			return nil, fmt.Errorf("liquidity_info[%s].max_fillable: invalid decimal %q", symbol, dto.MaxFillable)
		}
		priceImpact, err := decimal.NewFromString(dto.PriceImpact)
		if err != nil {
			return nil, fmt.Errorf("liquidity_info[%s].price_impact: invalid decimal %q", symbol, dto.PriceImpact)
		}
		out[symbol] = basket.LiquidityProfile{MaxFillable: maxFillable, PriceImpact: priceImpact}
	}
	return out, nil
}

func assetViews(in []basket.AssetState) []AssetView {
	out := make([]AssetView, 0, len(in))
	for _, asset := range in {
		out = append(out, AssetView{
			Symbol:   asset.Symbol,
			Quantity: asset.Quantity.String(),
			RefPrice: asset.RefPrice.String(),
			Price:    asset.Price.String(),
		})
	}
	return out
}

func decimalStrings(in map[string]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value.String()
	}
	return out
}

func liquidityDTOs(in map[string]basket.LiquidityProfile) map[string]LiquidityProfileDTO {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]LiquidityProfileDTO, len(in))
	for symbol, profile := range in {
		out[symbol] = LiquidityProfileDTO{
			MaxFillable: profile.MaxFillable.String(),
			PriceImpact: profile.PriceImpact.String(),
		}
	}
	return out
}

func planResponse(plan *basket.RebalancePlan) RebalancePlanResponse {
	resp := RebalancePlanResponse{
		IndexID:    plan.IndexID,
		Deltas:     make([]AssetDeltaDTO, 0, len(plan.Deltas)),
		TotalCost:  plan.TotalCost.String(),
		NAVBefore:  plan.NAVBefore.String(),
		NAVAfter:   plan.NAVAfter.String(),
		OldWeights: decimalStrings(plan.OldWeights),
		NewWeights: decimalStrings(plan.NewWeights),
	}
	for _, delta := range plan.Deltas {
		resp.Deltas = append(resp.Deltas, AssetDeltaDTO{
			Symbol:         delta.Symbol,
			Delta:          delta.Delta.String(),
			ExecutionPrice: delta.ExecutionPrice.String(),
		})
	}
	return resp
}

func queueResponse(queued []basket.QueuedOrder) QueueResponse {
	resp := QueueResponse{Orders: make([]QueuedOrderDTO, 0, len(queued))}
	for _, entry := range queued {
		resp.Orders = append(resp.Orders, QueuedOrderDTO{
			PositionID: entry.PositionID,
			IndexID:    entry.IndexID,
			ArrivalSeq: entry.ArrivalSeq,
		})
	}
	return resp
}
