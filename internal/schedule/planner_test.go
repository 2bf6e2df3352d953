package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"logiflow/internal/events"
	"logiflow/internal/model"
	"logiflow/internal/osrm"
	"logiflow/internal/planner"
	"logiflow/internal/solver"
	"logiflow/internal/store"
)

type geoMatrices struct{}

func (geoMatrices) FetchMatrix(ctx context.Context, locations []model.GeoPoint, metric osrm.Metric) (osrm.MatrixResult, error) {
	dist := osrm.HaversineMatrix(locations)
	if metric == osrm.MetricDuration {
		return osrm.MatrixResult{Matrix: osrm.DurationFromDistance(dist)}, nil
	}
	return osrm.MatrixResult{Matrix: dist}, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	drivers  []int64
	managers []int64
}

func (r *recordingNotifier) NotifyDriver(ctx context.Context, driver model.Driver, route model.Route, day time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers = append(r.drivers, driver.ID)
	return nil
}

func (r *recordingNotifier) NotifyManager(ctx context.Context, depot model.Depot, drivers map[int64]model.Driver, plan model.PlanResult, day time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.managers = append(r.managers, depot.ID)
	return nil
}

func testPlanner(st store.Store, n *recordingNotifier, broker events.EventBroker) *DailyPlanner {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	opt := planner.NewOptimizer(geoMatrices{}, solver.New(), log)
	opt.SolveBudget = 200 * time.Millisecond
	return NewDailyPlanner(st, opt, n, broker, log, time.UTC)
}

func seedDepot(m *store.Memory, depotID, driverID, orderID int64) {
	m.PutDepot(model.Depot{ID: depotID, Name: "Depot", Location: model.GeoPoint{Lat: 33.57, Lon: -7.59}})
	m.PutDriver(model.Driver{ID: driverID, CapacityKg: 100, Active: true, DepotID: depotID})
	m.PutOrder(model.Order{ID: orderID, WeightKg: 5, Status: model.StatusPending, DepotID: depotID,
		Location: &model.GeoPoint{Lat: 33.58, Lon: -7.6}, CreatedAt: time.Now()})
}

func TestRunPlansAllDepots(t *testing.T) {
	m := store.NewMemory()
	seedDepot(m, 1, 10, 100)
	seedDepot(m, 2, 20, 200)
	n := &recordingNotifier{}
	broker := events.NewBroker()
	sub := broker.Subscribe("2")

	dp := testPlanner(m, n, broker)
	day := dp.PlanningDay(time.Now())
	if err := dp.Run(context.Background(), day); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(n.drivers) != 2 || len(n.managers) != 2 {
		t.Fatalf("both depots should notify: drivers=%v managers=%v", n.drivers, n.managers)
	}
	for _, depotID := range []int64{1, 2} {
		its, _ := m.ListItineraries(context.Background(), depotID, day)
		if len(its) != 1 {
			t.Fatalf("depot %d should have an itinerary", depotID)
		}
	}
	select {
	case evt := <-sub:
		if evt.Type != events.PlanCommitted {
			t.Fatalf("unexpected event %q", evt.Type)
		}
	default:
		t.Fatal("depot 2 commit event missing")
	}
}

func TestRunDepotFailureIsIsolated(t *testing.T) {
	m := store.NewMemory()
	seedDepot(m, 1, 10, 100)
	seedDepot(m, 2, 20, 200)
	m.SavePlanErr = errors.New("disk full") // first save (depot 1) fails
	n := &recordingNotifier{}

	dp := testPlanner(m, n, events.NewBroker())
	day := dp.PlanningDay(time.Now())
	if err := dp.Run(context.Background(), day); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// depot 1 rolled back: no notifications, order still pending
	for _, id := range n.managers {
		if id == 1 {
			t.Fatal("failed depot must not notify")
		}
	}
	pending, _ := m.ListPendingOrders(context.Background(), 1)
	if len(pending) != 1 {
		t.Fatalf("depot 1 order should stay pending, got %+v", pending)
	}

	// depot 2 still planned
	its, _ := m.ListItineraries(context.Background(), 2, day)
	if len(its) != 1 {
		t.Fatal("depot 2 should still be planned")
	}
	if len(n.managers) != 1 || n.managers[0] != 2 {
		t.Fatalf("only depot 2 should notify, got %v", n.managers)
	}
}

func TestRunSkipsDepotWithoutWork(t *testing.T) {
	m := store.NewMemory()
	m.PutDepot(model.Depot{ID: 1, Name: "Empty", Location: model.GeoPoint{Lat: 33.57, Lon: -7.59}})
	m.PutDriver(model.Driver{ID: 10, CapacityKg: 100, Active: true, DepotID: 1})
	n := &recordingNotifier{}

	dp := testPlanner(m, n, events.NewBroker())
	if err := dp.Run(context.Background(), dp.PlanningDay(time.Now())); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(n.managers) != 0 {
		t.Fatal("depot without orders must be skipped silently")
	}
}

func TestPlanningDay(t *testing.T) {
	dp := &DailyPlanner{Loc: time.UTC}
	now := time.Date(2026, 8, 31, 21, 0, 0, 0, time.UTC)
	day := dp.PlanningDay(now)
	if !day.Equal(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("planning day should be tomorrow midnight, got %v", day)
	}
}

func TestTargetDay(t *testing.T) {
	evening := time.Date(2026, 8, 31, 21, 30, 0, 0, time.UTC)
	if got := TargetDay(evening, time.UTC); got.Day() != 1 {
		t.Fatalf("after 21:00 the target day is tomorrow, got %v", got)
	}
	morning := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)
	if got := TargetDay(morning, time.UTC); got.Day() != 31 {
		t.Fatalf("before 21:00 the target day is today, got %v", got)
	}
}
