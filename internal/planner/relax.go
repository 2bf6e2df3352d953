package planner

import (
	"context"
	"errors"
	"sort"

	"logiflow/internal/metrics"
	"logiflow/internal/model"
)

// Optimize plans one depot's pending orders with progressive relaxation.
// Orders without a usable location or weight are dropped up front; the rest
// are attempted whole, then with the newest 1, 2, 3... orders removed until a
// batch fits the fleet. The result always accounts for every input order:
// scheduled in routes, or listed in UnscheduledIDs.
func (o *Optimizer) Optimize(ctx context.Context, depot model.GeoPoint, orders []model.Order, fleet []model.Driver, planningLabel string) model.PlanResult {
	if len(orders) == 0 || len(fleet) == 0 {
		return model.PlanResult{
			Error:          "No commandes or drivers",
			Routes:         []model.Route{},
			UnscheduledIDs: []int64{},
			PlanningLabel:  planningLabel,
		}
	}

	valid := make([]model.Order, 0, len(orders))
	var invalidIDs []int64
	for _, ord := range orders {
		if ord.Plannable() {
			valid = append(valid, ord)
		} else {
			invalidIDs = append(invalidIDs, ord.ID)
			o.log.Warn("order dropped before planning", "order_id", ord.ID, "reason", "missing location or weight")
		}
	}

	// Newest first, so relaxation sacrifices the most recent work.
	sort.SliceStable(valid, func(i, j int) bool {
		if !valid[i].CreatedAt.Equal(valid[j].CreatedAt) {
			return valid[i].CreatedAt.After(valid[j].CreatedAt)
		}
		return valid[i].ID > valid[j].ID
	})

	var lastErr error
	for drop := 0; drop < len(valid); drop++ {
		batch := valid[drop:]
		br, err := o.OptimizeBatch(ctx, depot, batch, fleet)
		if err != nil {
			lastErr = err
			if errors.Is(err, ErrInvalidFleet) || errors.Is(err, ErrInvalidInput) {
				break
			}
			if ctx.Err() != nil {
				break
			}
			o.log.Info("batch infeasible, relaxing", "batch_size", len(batch), "dropped_so_far", drop, "err", err)
			continue
		}

		unscheduled := append([]int64{}, invalidIDs...)
		for _, ord := range valid[:drop] {
			unscheduled = append(unscheduled, ord.ID)
		}
		metrics.RelaxationDrops.Observe(float64(drop))
		metrics.PlanRuns.WithLabelValues("success").Inc()
		return model.PlanResult{
			Success:        true,
			Routes:         br.Routes,
			TotalDistanceM: br.TotalDistanceM,
			TotalTimeS:     br.TotalTimeS,
			VehiclesUsed:   br.VehiclesUsed,
			Scheduled:      len(batch),
			Unscheduled:    len(unscheduled),
			UnscheduledIDs: unscheduled,
			InvalidDropped: len(invalidIDs),
			PlanningLabel:  planningLabel,
		}
	}

	metrics.PlanRuns.WithLabelValues("failure").Inc()
	all := make([]int64, 0, len(orders))
	for _, ord := range orders {
		all = append(all, ord.ID)
	}
	msg := "no feasible plan"
	if lastErr != nil {
		msg = lastErr.Error()
	}
	return model.PlanResult{
		Error:          msg,
		Routes:         []model.Route{},
		Unscheduled:    len(all),
		UnscheduledIDs: all,
		InvalidDropped: len(invalidIDs),
		PlanningLabel:  planningLabel,
	}
}
