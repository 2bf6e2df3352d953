package store

import (
	"context"
	"errors"
	"time"

	"logiflow/internal/model"
)

// Store is the persistence interface shared by the API server and the
// planning scheduler.
type Store interface {
	// Depots
	ListDepots(ctx context.Context) ([]model.Depot, error)
	GetDepot(ctx context.Context, id int64) (model.Depot, error)

	// Planning inputs
	ListPendingOrders(ctx context.Context, depotID int64) ([]model.Order, error)
	ListActiveDrivers(ctx context.Context, depotID int64) ([]model.Driver, error)

	// SavePlan persists one depot's plan atomically: itinerary rows, order
	// assignments and the pending→preparing status flip all commit together
	// or not at all. Returns the created itineraries.
	SavePlan(ctx context.Context, depot model.Depot, plannedFor time.Time, plan model.PlanResult) ([]model.Itinerary, error)

	// Reporting
	ListItineraries(ctx context.Context, depotID int64, day time.Time) ([]model.Itinerary, error)
	GetItinerary(ctx context.Context, id string) (model.Itinerary, []model.Assignment, error)
	ListUnscheduledOrders(ctx context.Context, depotID int64) ([]model.Order, error)
	GetDriver(ctx context.Context, id int64) (model.Driver, error)

	Ping(ctx context.Context) error
	Close() error
}

var ErrNotFound = errors.New("store: not found")
