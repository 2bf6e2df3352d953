package model

import (
	"math"
	"time"
)

// OrderStatus is the delivery lifecycle of an order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPreparing OrderStatus = "preparing"
	StatusInTransit OrderStatus = "in_transit"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether both coordinates are finite numbers.
func (g GeoPoint) Valid() bool {
	return !math.IsNaN(g.Lat) && !math.IsInf(g.Lat, 0) &&
		!math.IsNaN(g.Lon) && !math.IsInf(g.Lon, 0)
}

// Order is a single parcel delivery request owned by a depot.
type Order struct {
	ID             int64       `json:"id"`
	Reference      string      `json:"reference,omitempty"`
	Address        string      `json:"address,omitempty"`
	Location       *GeoPoint   `json:"location"`
	WeightKg       float64     `json:"weight_kg"`
	ServiceTimeMin int         `json:"service_time_minutes,omitempty"`
	Status         OrderStatus `json:"status"`
	DepotID        int64       `json:"depot_id"`
	ClientEmail    string      `json:"client_email,omitempty"`
	TrackingCode   string      `json:"tracking_code,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Plannable reports whether the order carries everything the optimizer needs.
// Orders failing this are dropped before any solver work.
func (o Order) Plannable() bool {
	return o.Location != nil && o.Location.Valid() && o.WeightKg > 0
}

// Driver is a delivery vehicle/driver pair attached to a depot.
// CapacityKg is a required attribute; the planner hard-rejects fleets with
// non-positive capacities.
type Driver struct {
	ID         int64   `json:"id"`
	Email      string  `json:"email,omitempty"`
	Name       string  `json:"name,omitempty"`
	CapacityKg float64 `json:"capacity_kg"`
	Active     bool    `json:"active"`
	DepotID    int64   `json:"depot_id"`
}

// Depot is a physical dispatch location owning orders and drivers.
type Depot struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Address      string    `json:"address,omitempty"`
	Location     GeoPoint  `json:"location"`
	ManagerEmail string    `json:"manager_email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Stop is one visit within a planned route; VisitOrder is 1-based.
type Stop struct {
	OrderID    int64   `json:"commande_id"`
	VisitOrder int     `json:"order"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
}

// Route is the ordered stop sequence assigned to one driver for one day.
type Route struct {
	DriverID  int64  `json:"driver_id"`
	Stops     []Stop `json:"commandes"`
	DistanceM int64  `json:"distance_m"`
	TimeS     int64  `json:"time_s"`
	StopCount int    `json:"commandes_count"`
}

// BatchResult is the outcome of a single solver attempt over one batch of
// orders. Transient; callers persist derived records.
type BatchResult struct {
	Success        bool    `json:"success"`
	Routes         []Route `json:"routes"`
	TotalDistanceM int64   `json:"total_distance_m"`
	TotalTimeS     int64   `json:"total_time_s"`
	VehiclesUsed   int     `json:"total_vehicles_used"`
}

// PlanResult is the outcome of a full planning run for one depot, after
// progressive relaxation.
type PlanResult struct {
	Success        bool    `json:"success"`
	Error          string  `json:"error,omitempty"`
	Routes         []Route `json:"routes"`
	TotalDistanceM int64   `json:"total_distance_m"`
	TotalTimeS     int64   `json:"total_time_s"`
	VehiclesUsed   int     `json:"total_vehicles_used"`
	Scheduled      int     `json:"commandes_scheduled"`
	Unscheduled    int     `json:"commandes_unscheduled"`
	UnscheduledIDs []int64 `json:"unscheduled_ids"`
	InvalidDropped int     `json:"invalid_commandes_dropped"`
	PlanningLabel  string  `json:"planning_date,omitempty"`
}

// Itinerary is the persisted record of one driver's planned route for one
// day. Distance is stored in km and duration in minutes for reporting.
type Itinerary struct {
	ID         string    `json:"id"`
	PlannedFor time.Time `json:"date_planned"`
	DepotID    int64     `json:"depot_id"`
	DriverID   int64     `json:"driver_id"`
	DistanceKm float64   `json:"distance_km"`
	TimeMin    int       `json:"time_min"`
	StopCount  int       `json:"commandes_count"`
	Optimized  bool      `json:"optimized"`
	Metadata   []byte    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// Assignment links an order to the driver delivering it, with the optimized
// visit order for the planned day.
type Assignment struct {
	ID             string      `json:"id"`
	OrderID        int64       `json:"commande_id"`
	DriverID       int64       `json:"driver_id"`
	PlannedFor     time.Time   `json:"date_planned"`
	DeliveredAt    *time.Time  `json:"delivered_at,omitempty"`
	Status         OrderStatus `json:"status"`
	VisitOrder     int         `json:"visit_order"`
	ServiceTimeMin int         `json:"service_time_minutes"`
}
