package store

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"logiflow/internal/model"
)

// Memory is an in-process Store for tests and local development.
type Memory struct {
	mu          sync.Mutex
	depots      map[int64]model.Depot
	orders      map[int64]model.Order
	drivers     map[int64]model.Driver
	itineraries map[string]model.Itinerary
	assignments map[string]model.Assignment

	// SavePlanErr, when set, makes the next SavePlan fail without writing.
	SavePlanErr error
}

func NewMemory() *Memory {
	return &Memory{
		depots:      map[int64]model.Depot{},
		orders:      map[int64]model.Order{},
		drivers:     map[int64]model.Driver{},
		itineraries: map[string]model.Itinerary{},
		assignments: map[string]model.Assignment{},
	}
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
func (m *Memory) Close() error                   { return nil }

func (m *Memory) PutDepot(d model.Depot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depots[d.ID] = d
}

func (m *Memory) PutOrder(o model.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

func (m *Memory) PutDriver(d model.Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[d.ID] = d
}

func (m *Memory) ListDepots(ctx context.Context) ([]model.Depot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Depot{}
	for _, d := range m.depots {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetDepot(ctx context.Context, id int64) (model.Depot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.depots[id]
	if !ok {
		return model.Depot{}, ErrNotFound
	}
	return d, nil
}

func (m *Memory) ListPendingOrders(ctx context.Context, depotID int64) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Order{}
	for _, o := range m.orders {
		if o.DepotID == depotID && o.Status == model.StatusPending {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) ListUnscheduledOrders(ctx context.Context, depotID int64) ([]model.Order, error) {
	return m.ListPendingOrders(ctx, depotID)
}

func (m *Memory) ListActiveDrivers(ctx context.Context, depotID int64) ([]model.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Driver{}
	for _, d := range m.drivers {
		if d.DepotID == depotID && d.Active {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetDriver(ctx context.Context, id int64) (model.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok {
		return model.Driver{}, ErrNotFound
	}
	return d, nil
}

func (m *Memory) SavePlan(ctx context.Context, depot model.Depot, plannedFor time.Time, plan model.PlanResult) ([]model.Itinerary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SavePlanErr != nil {
		err := m.SavePlanErr
		m.SavePlanErr = nil
		return nil, err
	}

	created := make([]model.Itinerary, 0, len(plan.Routes))
	for _, route := range plan.Routes {
		meta, err := json.Marshal(route)
		if err != nil {
			return nil, err
		}
		it := model.Itinerary{
			ID:         uuid.New().String(),
			PlannedFor: plannedFor,
			DepotID:    depot.ID,
			DriverID:   route.DriverID,
			DistanceKm: math.Round(float64(route.DistanceM)/10) / 100,
			TimeMin:    int(math.Round(float64(route.TimeS) / 60)),
			StopCount:  route.StopCount,
			Optimized:  true,
			Metadata:   meta,
			CreatedAt:  time.Now().UTC(),
		}
		m.itineraries[it.ID] = it
		for _, stop := range route.Stops {
			aid := uuid.New().String()
			m.assignments[aid] = model.Assignment{
				ID:         aid,
				OrderID:    stop.OrderID,
				DriverID:   route.DriverID,
				PlannedFor: plannedFor,
				Status:     model.StatusPreparing,
				VisitOrder: stop.VisitOrder,
			}
			if o, ok := m.orders[stop.OrderID]; ok && o.Status == model.StatusPending {
				o.Status = model.StatusPreparing
				m.orders[stop.OrderID] = o
			}
		}
		created = append(created, it)
	}
	return created, nil
}

func (m *Memory) ListItineraries(ctx context.Context, depotID int64, day time.Time) ([]model.Itinerary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Itinerary{}
	for _, it := range m.itineraries {
		if it.DepotID == depotID && sameDay(it.PlannedFor, day) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out, nil
}

func (m *Memory) GetItinerary(ctx context.Context, id string) (model.Itinerary, []model.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.itineraries[id]
	if !ok {
		return model.Itinerary{}, nil, ErrNotFound
	}
	assigns := []model.Assignment{}
	for _, a := range m.assignments {
		if a.DriverID == it.DriverID && sameDay(a.PlannedFor, it.PlannedFor) {
			assigns = append(assigns, a)
		}
	}
	sort.Slice(assigns, func(i, j int) bool { return assigns[i].VisitOrder < assigns[j].VisitOrder })
	return it, assigns, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
