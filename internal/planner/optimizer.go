// Package planner turns a depot's pending orders and active fleet into
// driver routes. It owns two layers: OptimizeBatch, one constrained solver
// attempt over a fixed batch, and Optimize, the progressive relaxation
// controller that drops newest orders until a batch becomes feasible.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"logiflow/internal/metrics"
	"logiflow/internal/model"
	"logiflow/internal/osrm"
	"logiflow/internal/solver"
)

const (
	// DefaultServiceTimeMin is assumed per stop when the order carries none.
	DefaultServiceTimeMin = 10
	// DefaultMaxRouteDur caps a single driver's day, travel plus service.
	DefaultMaxRouteDur = 10 * time.Hour
	// DefaultSolveBudget bounds one solver attempt.
	DefaultSolveBudget = 10 * time.Second
)

// Optimizer wires the distance oracle and the routing engine together.
type Optimizer struct {
	matrices osrm.MatrixProvider
	engine   solver.Solver
	log      *slog.Logger

	// MaxRouteDur and SolveBudget override the defaults when positive.
	MaxRouteDur time.Duration
	SolveBudget time.Duration
}

func NewOptimizer(matrices osrm.MatrixProvider, engine solver.Solver, log *slog.Logger) *Optimizer {
	if log == nil {
		log = slog.Default()
	}
	return &Optimizer{matrices: matrices, engine: engine, log: log}
}

// OptimizeBatch runs one solver attempt over the given orders and fleet.
// All orders must be plannable and every driver capacity positive; the batch
// either routes every order or fails with ErrInfeasible.
func (o *Optimizer) OptimizeBatch(ctx context.Context, depot model.GeoPoint, orders []model.Order, fleet []model.Driver) (model.BatchResult, error) {
	if !depot.Valid() {
		return model.BatchResult{}, fmt.Errorf("%w: depot location", ErrInvalidInput)
	}
	for _, d := range fleet {
		if d.CapacityKg <= 0 {
			return model.BatchResult{}, fmt.Errorf("%w: driver %d capacity %.1fkg", ErrInvalidFleet, d.ID, d.CapacityKg)
		}
	}
	for _, ord := range orders {
		if !ord.Plannable() {
			return model.BatchResult{}, fmt.Errorf("%w: order %d not plannable", ErrInvalidInput, ord.ID)
		}
	}
	if len(orders) == 0 {
		return model.BatchResult{Success: true, Routes: []model.Route{}}, nil
	}
	if len(fleet) == 0 {
		return model.BatchResult{}, fmt.Errorf("%w: no vehicles", ErrInfeasible)
	}

	locations := make([]model.GeoPoint, 0, len(orders)+1)
	locations = append(locations, depot)
	for _, ord := range orders {
		locations = append(locations, *ord.Location)
	}

	dist, err := o.matrices.FetchMatrix(ctx, locations, osrm.MetricDistance)
	if err != nil {
		return model.BatchResult{}, err
	}
	dur, err := o.matrices.FetchMatrix(ctx, locations, osrm.MetricDuration)
	if err != nil {
		return model.BatchResult{}, err
	}
	if dist.Fallback {
		metrics.OracleFallbacks.WithLabelValues(string(osrm.MetricDistance)).Inc()
		o.log.Warn("distance matrix degraded to geometric fallback", "reason", dist.Reason)
	}
	if dur.Fallback {
		metrics.OracleFallbacks.WithLabelValues(string(osrm.MetricDuration)).Inc()
	}

	prob := o.buildProblem(dist.Matrix, dur.Matrix, orders, fleet)

	start := time.Now()
	sol, err := o.engine.Solve(ctx, prob)
	metrics.SolverDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, solver.ErrInfeasible) {
			return model.BatchResult{}, fmt.Errorf("%w: %d orders, %d vehicles", ErrInfeasible, len(orders), len(fleet))
		}
		return model.BatchResult{}, err
	}

	return extractRoutes(prob, sol, orders, fleet), nil
}

func (o *Optimizer) buildProblem(dist, dur osrm.Matrix, orders []model.Order, fleet []model.Driver) solver.Problem {
	n := len(orders) + 1
	service := make([]int64, n)
	demand := make([]int64, n)
	for i, ord := range orders {
		st := ord.ServiceTimeMin
		if st <= 0 {
			st = DefaultServiceTimeMin
		}
		service[i+1] = int64(st) * 60
		demand[i+1] = int64(math.Round(ord.WeightKg * 1000))
	}
	capacity := make([]int64, len(fleet))
	for i, d := range fleet {
		capacity[i] = int64(math.Round(d.CapacityKg * 1000))
	}

	maxDur := o.MaxRouteDur
	if maxDur <= 0 {
		maxDur = DefaultMaxRouteDur
	}
	budget := o.SolveBudget
	if budget <= 0 {
		budget = DefaultSolveBudget
	}
	return solver.Problem{
		DistM:        [][]int64(dist),
		DurS:         [][]int64(dur),
		ServiceSec:   service,
		DemandG:      demand,
		CapacityG:    capacity,
		MaxRouteDurS: int64(maxDur / time.Second),
		TimeBudget:   budget,
	}
}

// extractRoutes maps solver node indices back onto orders and drivers,
// skipping vehicles left without stops. Route duration is the cumulative
// value at the route's end, return leg included.
func extractRoutes(p solver.Problem, sol solver.Solution, orders []model.Order, fleet []model.Driver) model.BatchResult {
	res := model.BatchResult{Success: true, Routes: []model.Route{}}
	for vi, nodes := range sol.Routes {
		if len(nodes) == 0 {
			continue
		}
		route := model.Route{
			DriverID:  fleet[vi].ID,
			Stops:     make([]model.Stop, 0, len(nodes)),
			DistanceM: solver.RouteDistance(p, nodes),
			TimeS:     solver.RouteDuration(p, nodes),
			StopCount: len(nodes),
		}
		for seq, node := range nodes {
			ord := orders[node-1]
			route.Stops = append(route.Stops, model.Stop{
				OrderID:    ord.ID,
				VisitOrder: seq + 1,
				Lat:        ord.Location.Lat,
				Lon:        ord.Location.Lon,
			})
		}
		res.Routes = append(res.Routes, route)
		res.TotalDistanceM += route.DistanceM
		res.TotalTimeS += route.TimeS
	}
	res.VehiclesUsed = len(res.Routes)
	return res
}
