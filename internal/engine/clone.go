package engine

import "github.com/mridulgoel03/ETF-trading-project/internal/basket"

// cloneCommandExecResult detaches a result from the idempotency cache so a
// caller mutating the returned slices cannot corrupt the cached copy.
func cloneCommandExecResult(in *CommandExecResult) *CommandExecResult {
	if in == nil {
		return nil
	}

	var clonedResult any
	switch r := in.Result.(type) {
	case *basket.CommandResult:
		clonedResult = cloneCommandResult(r)
	case *basket.Order:
		clonedResult = cloneOrder(r)
	case *TickResult:
		clonedResult = cloneTickResult(r)
	default:
		clonedResult = in.Result
	}

	return &CommandExecResult{
		Result:    clonedResult,
		ErrorCode: in.ErrorCode,
		Err:       in.Err,
	}
}

func cloneCommandResult(in *basket.CommandResult) *basket.CommandResult {
	if in == nil {
		return nil
	}

	out := &basket.CommandResult{
		OrderStatusChanges: append([]basket.OrderStatusChange(nil), in.OrderStatusChanges...),
		Fills:              make([]*basket.FillResult, 0, len(in.Fills)),
		Events:             make([]basket.Event, 0, len(in.Events)),
	}

	for _, fill := range in.Fills {
		out.Fills = append(out.Fills, cloneFillResult(fill))
	}
	for _, evt := range in.Events {
		out.Events = append(out.Events, cloneEvent(evt))
	}

	return out
}

func cloneFillResult(in *basket.FillResult) *basket.FillResult {
	if in == nil {
		return nil
	}

	cp := *in
	cp.Fills = append([]basket.AssetFill(nil), in.Fills...)
	return &cp
}

func cloneOrder(in *basket.Order) *basket.Order {
	if in == nil {
		return nil
	}

	cp := *in
	cp.LastFill = cloneFillResult(in.LastFill)
	return &cp
}

func cloneTickResult(in *TickResult) *TickResult {
	if in == nil {
		return nil
	}

	out := &TickResult{
		Timestamp: in.Timestamp,
		Admitted:  append([]int64(nil), in.Admitted...),
		Fills:     make([]*basket.FillResult, 0, len(in.Fills)),
	}
	for _, fill := range in.Fills {
		out.Fills = append(out.Fills, cloneFillResult(fill))
	}
	return out
}

func cloneEvent(evt basket.Event) basket.Event {
	switch e := evt.(type) {
	case *basket.IndexCreatedEvent:
		if e == nil {
			return nil
		}
		cp := *e
		return &cp
	case *basket.OrderQueuedEvent:
		if e == nil {
			return nil
		}
		cp := *e
		return &cp
	case *basket.OrderAdmittedEvent:
		if e == nil {
			return nil
		}
		cp := *e
		return &cp
	case *basket.OrderFilledEvent:
		if e == nil {
			return nil
		}
		cp := *e
		return &cp
	case *basket.OrderCancelledEvent:
		if e == nil {
			return nil
		}
		cp := *e
		return &cp
	case *basket.PricesUpdatedEvent:
		if e == nil {
			return nil
		}
		cp := *e
		return &cp
	case *basket.LiquidityUpdatedEvent:
		if e == nil {
			return nil
		}
		cp := *e
		return &cp
	case *basket.IndexRebalancedEvent:
		if e == nil {
			return nil
		}
		cp := *e
		return &cp
	default:
		return evt
	}
}
