package planner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"logiflow/internal/model"
	"logiflow/internal/osrm"
	"logiflow/internal/solver"
)

// geoMatrices serves deterministic great-circle matrices and counts calls.
type geoMatrices struct {
	calls int
}

func (g *geoMatrices) FetchMatrix(ctx context.Context, locations []model.GeoPoint, metric osrm.Metric) (osrm.MatrixResult, error) {
	g.calls++
	dist := osrm.HaversineMatrix(locations)
	if metric == osrm.MetricDuration {
		return osrm.MatrixResult{Matrix: osrm.DurationFromDistance(dist)}, nil
	}
	return osrm.MatrixResult{Matrix: dist}, nil
}

func testOptimizer(m osrm.MatrixProvider) *Optimizer {
	o := NewOptimizer(m, solver.New(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	o.SolveBudget = 200 * time.Millisecond
	return o
}

var depotLoc = model.GeoPoint{Lat: 33.5731, Lon: -7.5898}

func order(id int64, weight float64, created time.Time) model.Order {
	// spread stops around the depot
	return model.Order{
		ID:        id,
		Location:  &model.GeoPoint{Lat: 33.57 + float64(id)*0.01, Lon: -7.59 + float64(id)*0.01},
		WeightKg:  weight,
		Status:    model.StatusPending,
		DepotID:   1,
		CreatedAt: created,
	}
}

func TestOptimizeBatchRoutesEveryOrder(t *testing.T) {
	o := testOptimizer(&geoMatrices{})
	now := time.Now()
	orders := []model.Order{order(1, 20, now), order(2, 20, now)}
	fleet := []model.Driver{{ID: 7, CapacityKg: 100, Active: true, DepotID: 1}}

	res, err := o.OptimizeBatch(context.Background(), depotLoc, orders, fleet)
	if err != nil {
		t.Fatalf("OptimizeBatch: %v", err)
	}
	if !res.Success || res.VehiclesUsed != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	r := res.Routes[0]
	if r.DriverID != 7 || r.StopCount != 2 {
		t.Fatalf("unexpected route: %+v", r)
	}
	for i, stop := range r.Stops {
		if stop.VisitOrder != i+1 {
			t.Fatalf("visit order must be 1-based sequential, got %+v", r.Stops)
		}
	}
	// duration includes both 10-minute default service times
	if r.TimeS < 1200 {
		t.Fatalf("route duration %ds misses service time", r.TimeS)
	}
	if res.TotalDistanceM != r.DistanceM || res.TotalTimeS != r.TimeS {
		t.Fatalf("totals disagree with single route: %+v", res)
	}
}

func TestOptimizeBatchRejectsBadFleet(t *testing.T) {
	o := testOptimizer(&geoMatrices{})
	orders := []model.Order{order(1, 1, time.Now())}
	fleet := []model.Driver{{ID: 1, CapacityKg: 0}}
	_, err := o.OptimizeBatch(context.Background(), depotLoc, orders, fleet)
	if !errors.Is(err, ErrInvalidFleet) {
		t.Fatalf("want ErrInvalidFleet, got %v", err)
	}
}

func TestOptimizeEmptyInputShortCircuits(t *testing.T) {
	m := &geoMatrices{}
	o := testOptimizer(m)

	res := o.Optimize(context.Background(), depotLoc, nil, []model.Driver{{ID: 1, CapacityKg: 100}}, "2026-09-01")
	if res.Success || res.Error != "No commandes or drivers" {
		t.Fatalf("unexpected result: %+v", res)
	}
	res = o.Optimize(context.Background(), depotLoc, []model.Order{order(1, 1, time.Now())}, nil, "2026-09-01")
	if res.Success || res.Error != "No commandes or drivers" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if m.calls != 0 {
		t.Fatalf("oracle must not be consulted on empty input, got %d calls", m.calls)
	}
}

func TestOptimizeDropsNewestFirst(t *testing.T) {
	o := testOptimizer(&geoMatrices{})
	base := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	// each order weighs 40kg; an 80kg fleet serves exactly two
	orders := []model.Order{
		order(1, 40, base),
		order(2, 40, base.Add(time.Hour)),
		order(3, 40, base.Add(2*time.Hour)),
	}
	fleet := []model.Driver{{ID: 1, CapacityKg: 80}}

	res := o.Optimize(context.Background(), depotLoc, orders, fleet, "2026-08-31")
	if !res.Success {
		t.Fatalf("expected success after relaxation: %+v", res)
	}
	if res.Scheduled != 2 || res.Unscheduled != 1 {
		t.Fatalf("want 2 scheduled / 1 unscheduled, got %+v", res)
	}
	if len(res.UnscheduledIDs) != 1 || res.UnscheduledIDs[0] != 3 {
		t.Fatalf("newest order (3) must be dropped first, got %v", res.UnscheduledIDs)
	}
}

func TestOptimizeReportsInvalidOrders(t *testing.T) {
	o := testOptimizer(&geoMatrices{})
	now := time.Now()
	broken := model.Order{ID: 99, Status: model.StatusPending, DepotID: 1, CreatedAt: now} // no location
	orders := []model.Order{order(1, 10, now), broken}
	fleet := []model.Driver{{ID: 1, CapacityKg: 100}}

	res := o.Optimize(context.Background(), depotLoc, orders, fleet, "2026-09-01")
	if !res.Success {
		t.Fatalf("expected success: %+v", res)
	}
	if res.InvalidDropped != 1 {
		t.Fatalf("want 1 invalid dropped, got %d", res.InvalidDropped)
	}
	if len(res.UnscheduledIDs) != 1 || res.UnscheduledIDs[0] != 99 {
		t.Fatalf("invalid order must be unscheduled, got %v", res.UnscheduledIDs)
	}
}

func TestOptimizeAllInvalidFails(t *testing.T) {
	o := testOptimizer(&geoMatrices{})
	orders := []model.Order{{ID: 5, Status: model.StatusPending, CreatedAt: time.Now()}}
	fleet := []model.Driver{{ID: 1, CapacityKg: 100}}

	res := o.Optimize(context.Background(), depotLoc, orders, fleet, "2026-09-01")
	if res.Success {
		t.Fatalf("expected failure: %+v", res)
	}
	if len(res.UnscheduledIDs) != 1 || res.UnscheduledIDs[0] != 5 {
		t.Fatalf("unscheduled must carry the full order set, got %v", res.UnscheduledIDs)
	}
}

func TestOptimizeInvalidFleetFailsFast(t *testing.T) {
	o := testOptimizer(&geoMatrices{})
	orders := []model.Order{order(1, 10, time.Now())}
	fleet := []model.Driver{{ID: 1, CapacityKg: -5}}

	res := o.Optimize(context.Background(), depotLoc, orders, fleet, "2026-09-01")
	if res.Success {
		t.Fatalf("expected failure: %+v", res)
	}
	if !strings.Contains(res.Error, "invalid fleet") {
		t.Fatalf("error should name the fleet problem, got %q", res.Error)
	}
}
