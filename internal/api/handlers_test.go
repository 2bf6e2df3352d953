package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
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

func testServer(t *testing.T) (*Server, *store.Memory) {
	t.Helper()
	m := store.NewMemory()
	m.PutDepot(model.Depot{ID: 1, Name: "Casablanca Nord", Location: model.GeoPoint{Lat: 33.57, Lon: -7.59}})
	m.PutDriver(model.Driver{ID: 10, CapacityKg: 100, Active: true, DepotID: 1})
	m.PutOrder(model.Order{ID: 100, WeightKg: 5, Status: model.StatusPending, DepotID: 1,
		Location: &model.GeoPoint{Lat: 33.58, Lon: -7.6}, CreatedAt: time.Now()})

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	opt := planner.NewOptimizer(geoMatrices{}, solver.New(), log)
	opt.SolveBudget = 200 * time.Millisecond
	return NewServer(m, opt, events.NewBroker(), nil, nil, log, time.UTC), m
}

func doJSON(t *testing.T, h http.HandlerFunc, method, url string, wantStatus int) map[string]any {
	t.Helper()
	req := httptest.NewRequest(method, url, nil)
	rec := httptest.NewRecorder()
	h(rec, req)
	if rec.Code != wantStatus {
		t.Fatalf("%s %s: want %d, got %d (%s)", method, url, wantStatus, rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	return body
}

func TestDepotsHandler(t *testing.T) {
	s, _ := testServer(t)
	body := doJSON(t, s.DepotsHandler, http.MethodGet, "/v1/depots", http.StatusOK)
	items := body["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("want 1 depot, got %v", items)
	}
}

func TestOptimizeDebugHandler(t *testing.T) {
	s, _ := testServer(t)
	body := doJSON(t, s.OptimizeDebugHandler, http.MethodPost, "/v1/optimize/debug?depotId=1", http.StatusOK)
	if body["success"] != true {
		t.Fatalf("expected successful plan: %v", body)
	}
	if body["commandes_scheduled"] != float64(1) {
		t.Fatalf("want 1 scheduled, got %v", body["commandes_scheduled"])
	}
	// debug run must not persist
	s2 := s.Store
	orders, _ := s2.ListPendingOrders(context.Background(), 1)
	if len(orders) != 1 {
		t.Fatal("debug optimize must not change order status")
	}
}

func TestOptimizeDebugHandlerBadDepot(t *testing.T) {
	s, _ := testServer(t)
	body := doJSON(t, s.OptimizeDebugHandler, http.MethodPost, "/v1/optimize/debug?depotId=abc", http.StatusBadRequest)
	if body["type"] != problemType {
		t.Fatalf("problem body should carry the service type, got %v", body["type"])
	}
	doJSON(t, s.OptimizeDebugHandler, http.MethodPost, "/v1/optimize/debug?depotId=9", http.StatusNotFound)
}

func TestItinerariesHandlers(t *testing.T) {
	s, m := testServer(t)
	depot, _ := m.GetDepot(context.Background(), 1)
	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	its, err := m.SavePlan(context.Background(), depot, day, model.PlanResult{
		Success: true,
		Routes: []model.Route{{
			DriverID:  10,
			Stops:     []model.Stop{{OrderID: 100, VisitOrder: 1}},
			DistanceM: 5000,
			TimeS:     900,
			StopCount: 1,
		}},
	})
	if err != nil {
		t.Fatalf("SavePlan: %v", err)
	}

	body := doJSON(t, s.ItinerariesHandler, http.MethodGet, "/v1/itineraries?depotId=1&date=2026-09-01", http.StatusOK)
	items := body["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("want 1 itinerary, got %v", body["items"])
	}
	route := items[0].(map[string]any)["route"].(map[string]any)
	stops := route["commandes"].([]any)
	if len(stops) != 1 || stops[0].(map[string]any)["commande_id"] != float64(100) {
		t.Fatalf("listing must carry the decoded route, got %v", route)
	}
	doJSON(t, s.ItinerariesHandler, http.MethodGet, "/v1/itineraries?depotId=1&date=bogus", http.StatusBadRequest)
	doJSON(t, s.ItinerariesHandler, http.MethodGet, "/v1/itineraries", http.StatusBadRequest)

	body = doJSON(t, s.ItineraryByIDHandler, http.MethodGet, "/v1/itineraries/"+its[0].ID, http.StatusOK)
	if body["itinerary"] == nil || body["assignments"] == nil {
		t.Fatalf("itinerary detail incomplete: %v", body)
	}
	detail := body["itinerary"].(map[string]any)
	if detail["route"] == nil {
		t.Fatalf("detail must carry the decoded route, got %v", detail)
	}
	doJSON(t, s.ItineraryByIDHandler, http.MethodGet, "/v1/itineraries/nope", http.StatusNotFound)
}

func TestUnscheduledHandler(t *testing.T) {
	s, _ := testServer(t)
	body := doJSON(t, s.UnscheduledHandler, http.MethodGet, "/v1/itineraries/unscheduled?depotId=1", http.StatusOK)
	if len(body["items"].([]any)) != 1 {
		t.Fatalf("pending order should be listed, got %v", body["items"])
	}
}

func TestHealthAndReady(t *testing.T) {
	s, _ := testServer(t)
	doJSON(t, s.HealthHandler, http.MethodGet, "/healthz", http.StatusOK)
	doJSON(t, s.ReadyHandler, http.MethodGet, "/readyz", http.StatusOK)
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := testServer(t)
	req := httptest.NewRequest(http.MethodDelete, "/v1/itineraries?depotId=1", nil)
	rec := httptest.NewRecorder()
	s.ItinerariesHandler(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("want 405, got %d", rec.Code)
	}
}
