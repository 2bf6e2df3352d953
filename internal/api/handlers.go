package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"logiflow/internal/model"
	"logiflow/internal/schedule"
	"logiflow/internal/store"
)

// itineraryResponse augments the stored row with the route decoded from its
// metadata blob, which is what the UI actually renders.
type itineraryResponse struct {
	model.Itinerary
	Route *model.Route `json:"route,omitempty"`
}

func toItineraryResponse(it model.Itinerary) itineraryResponse {
	out := itineraryResponse{Itinerary: it}
	if len(it.Metadata) > 0 {
		var r model.Route
		if err := json.Unmarshal(it.Metadata, &r); err == nil {
			out.Route = &r
		}
	}
	return out
}

func toItineraryResponses(items []model.Itinerary) []itineraryResponse {
	out := make([]itineraryResponse, 0, len(items))
	for _, it := range items {
		out = append(out, toItineraryResponse(it))
	}
	return out
}

// DepotsHandler handles GET /v1/depots
func (s *Server) DepotsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	depots, err := s.Store.ListDepots(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List depots failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": depots})
}

// OptimizeDebugHandler handles POST /v1/optimize/debug?depotId=N. It runs
// the full relaxation pipeline against the depot's current pending orders
// and returns the plan without persisting anything.
func (s *Server) OptimizeDebugHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	depotID, err := strconv.ParseInt(r.URL.Query().Get("depotId"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid depotId", "depotId must be an integer", r.URL.Path)
		return
	}
	depot, err := s.Store.GetDepot(r.Context(), depotID)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Depot not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get depot failed", err.Error(), r.URL.Path)
		return
	}
	orders, err := s.Store.ListPendingOrders(r.Context(), depotID)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List orders failed", err.Error(), r.URL.Path)
		return
	}
	drivers, err := s.Store.ListActiveDrivers(r.Context(), depotID)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List drivers failed", err.Error(), r.URL.Path)
		return
	}

	day := schedule.TargetDay(time.Now(), s.Loc)
	plan := s.Optimizer.Optimize(r.Context(), depot.Location, orders, drivers, day.Format("2006-01-02"))
	writeJSON(w, http.StatusOK, plan)
}

// PlanningRunHandler handles POST /v1/planning/run. With a queue runner
// configured the run is enqueued; otherwise it executes in the background.
func (s *Server) PlanningRunHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	day := r.URL.Query().Get("date")
	if day != "" {
		if _, err := time.ParseInLocation("2006-01-02", day, s.Loc); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid date", "expected YYYY-MM-DD", r.URL.Path)
			return
		}
	}

	if s.Runner != nil {
		if err := s.Runner.EnqueueNow(r.Context(), day); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Enqueue failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"queued": true})
		return
	}
	if s.Planner == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Planning disabled", "no scheduler configured", r.URL.Path)
		return
	}
	target := s.Planner.PlanningDay(time.Now())
	if day != "" {
		target, _ = time.ParseInLocation("2006-01-02", day, s.Loc)
	}
	bg := context.WithoutCancel(r.Context())
	go func() {
		if err := s.Planner.Run(bg, target); err != nil {
			s.Log.Error("manual planning run failed", "err", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]any{"queued": false, "running": true})
}

// ItinerariesHandler handles GET /v1/itineraries?depotId=N&date=YYYY-MM-DD.
// Without a date, the operational day applies: after the nightly planning
// hour the listing already shows tomorrow.
func (s *Server) ItinerariesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	depotID, err := strconv.ParseInt(r.URL.Query().Get("depotId"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid depotId", "depotId must be an integer", r.URL.Path)
		return
	}
	day := schedule.TargetDay(time.Now(), s.Loc)
	if v := r.URL.Query().Get("date"); v != "" {
		day, err = time.ParseInLocation("2006-01-02", v, s.Loc)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid date", "expected YYYY-MM-DD", r.URL.Path)
			return
		}
	}
	items, err := s.Store.ListItineraries(r.Context(), depotID, day)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List itineraries failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": day.Format("2006-01-02"), "items": toItineraryResponses(items)})
}

// UnscheduledHandler handles GET /v1/itineraries/unscheduled?depotId=N
func (s *Server) UnscheduledHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	depotID, err := strconv.ParseInt(r.URL.Query().Get("depotId"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid depotId", "depotId must be an integer", r.URL.Path)
		return
	}
	items, err := s.Store.ListUnscheduledOrders(r.Context(), depotID)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List unscheduled failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// ItineraryByIDHandler handles GET /v1/itineraries/{id}
func (s *Server) ItineraryByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/itineraries/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not found", "", r.URL.Path)
		return
	}
	it, assigns, err := s.Store.GetItinerary(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Itinerary not found", "", r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get itinerary failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"itinerary": toItineraryResponse(it), "assignments": assigns})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.Ping(r.Context()); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Store not ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
