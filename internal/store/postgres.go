package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"logiflow/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }
func (p *Postgres) Close() error                   { return p.db.Close() }

// MigrateDir applies every .sql file in dir in lexical order, once each,
// tracked in schema_migrations.
func (p *Postgres) MigrateDir(dir string) error {
	if _, err := p.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (filename text PRIMARY KEY, applied_at timestamptz NOT NULL DEFAULT now())`); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		var applied bool
		if err := p.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename=$1)`, name).Scan(&applied); err != nil {
			return err
		}
		if applied {
			continue
		}
		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(body)); err != nil {
			return fmt.Errorf("migrate %s: %w", name, err)
		}
		if _, err := p.db.Exec(`INSERT INTO schema_migrations (filename) VALUES ($1)`, name); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) ListDepots(ctx context.Context) ([]model.Depot, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, name, address, lat, lon, manager_email, created_at FROM depots ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Depot{}
	for rows.Next() {
		var d model.Depot
		var addr, email sql.NullString
		if err := rows.Scan(&d.ID, &d.Name, &addr, &d.Location.Lat, &d.Location.Lon, &email, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Address = addr.String
		d.ManagerEmail = email.String
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) GetDepot(ctx context.Context, id int64) (model.Depot, error) {
	var d model.Depot
	var addr, email sql.NullString
	err := p.db.QueryRowContext(ctx, `SELECT id, name, address, lat, lon, manager_email, created_at FROM depots WHERE id=$1`, id).
		Scan(&d.ID, &d.Name, &addr, &d.Location.Lat, &d.Location.Lon, &email, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.Address = addr.String
	d.ManagerEmail = email.String
	return d, nil
}

func (p *Postgres) ListPendingOrders(ctx context.Context, depotID int64) ([]model.Order, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, reference, address, lat, lon, weight_kg, service_time_minutes, status, depot_id, client_email, tracking_code, created_at
		FROM commandes WHERE depot_id=$1 AND status='pending' ORDER BY created_at, id`, depotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (p *Postgres) ListUnscheduledOrders(ctx context.Context, depotID int64) ([]model.Order, error) {
	return p.ListPendingOrders(ctx, depotID)
}

func scanOrders(rows *sql.Rows) ([]model.Order, error) {
	out := []model.Order{}
	for rows.Next() {
		var o model.Order
		var ref, addr, email, tracking sql.NullString
		var lat, lon sql.NullFloat64
		var svc sql.NullInt64
		if err := rows.Scan(&o.ID, &ref, &addr, &lat, &lon, &o.WeightKg, &svc, &o.Status, &o.DepotID, &email, &tracking, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Reference = ref.String
		o.Address = addr.String
		o.ClientEmail = email.String
		o.TrackingCode = tracking.String
		o.ServiceTimeMin = int(svc.Int64)
		if lat.Valid && lon.Valid {
			o.Location = &model.GeoPoint{Lat: lat.Float64, Lon: lon.Float64}
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *Postgres) ListActiveDrivers(ctx context.Context, depotID int64) ([]model.Driver, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, email, name, capacity_kg, active, depot_id FROM livreurs WHERE depot_id=$1 AND active ORDER BY id`, depotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Driver{}
	for rows.Next() {
		var d model.Driver
		var email, name sql.NullString
		if err := rows.Scan(&d.ID, &email, &name, &d.CapacityKg, &d.Active, &d.DepotID); err != nil {
			return nil, err
		}
		d.Email = email.String
		d.Name = name.String
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) GetDriver(ctx context.Context, id int64) (model.Driver, error) {
	var d model.Driver
	var email, name sql.NullString
	err := p.db.QueryRowContext(ctx, `SELECT id, email, name, capacity_kg, active, depot_id FROM livreurs WHERE id=$1`, id).
		Scan(&d.ID, &email, &name, &d.CapacityKg, &d.Active, &d.DepotID)
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	d.Email = email.String
	d.Name = name.String
	return d, nil
}

// SavePlan writes the plan inside one transaction. Units are converted for
// reporting: meters to km, seconds to whole minutes.
func (p *Postgres) SavePlan(ctx context.Context, depot model.Depot, plannedFor time.Time, plan model.PlanResult) ([]model.Itinerary, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	created := make([]model.Itinerary, 0, len(plan.Routes))
	for _, route := range plan.Routes {
		it := model.Itinerary{
			ID:         uuid.New().String(),
			PlannedFor: plannedFor,
			DepotID:    depot.ID,
			DriverID:   route.DriverID,
			DistanceKm: math.Round(float64(route.DistanceM)/10) / 100,
			TimeMin:    int(math.Round(float64(route.TimeS) / 60)),
			StopCount:  route.StopCount,
			Optimized:  true,
			CreatedAt:  time.Now().UTC(),
		}
		it.Metadata, err = json.Marshal(route)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO itineraires (id, date_planned, depot_id, livreur_id, distance_km, time_minutes, commandes_count, optimized, metadata, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			it.ID, it.PlannedFor, it.DepotID, it.DriverID, it.DistanceKm, it.TimeMin, it.StopCount, it.Optimized, it.Metadata, it.CreatedAt)
		if err != nil {
			return nil, err
		}

		for _, stop := range route.Stops {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO affectations (id, commande_id, livreur_id, date_planned, status, visit_order)
				VALUES ($1,$2,$3,$4,'preparing',$5)
				ON CONFLICT (commande_id, livreur_id)
				DO UPDATE SET date_planned=EXCLUDED.date_planned, status=EXCLUDED.status, visit_order=EXCLUDED.visit_order`,
				uuid.New().String(), stop.OrderID, route.DriverID, plannedFor, stop.VisitOrder)
			if err != nil {
				return nil, err
			}
			_, err = tx.ExecContext(ctx, `UPDATE commandes SET status='preparing' WHERE id=$1 AND status='pending'`, stop.OrderID)
			if err != nil {
				return nil, err
			}
		}
		created = append(created, it)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

func (p *Postgres) ListItineraries(ctx context.Context, depotID int64, day time.Time) ([]model.Itinerary, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, date_planned, depot_id, livreur_id, distance_km, time_minutes, commandes_count, optimized, metadata, created_at
		FROM itineraires WHERE depot_id=$1 AND date_planned::date=$2::date ORDER BY livreur_id`,
		depotID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Itinerary{}
	for rows.Next() {
		var it model.Itinerary
		if err := rows.Scan(&it.ID, &it.PlannedFor, &it.DepotID, &it.DriverID, &it.DistanceKm, &it.TimeMin, &it.StopCount, &it.Optimized, &it.Metadata, &it.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (p *Postgres) GetItinerary(ctx context.Context, id string) (model.Itinerary, []model.Assignment, error) {
	var it model.Itinerary
	err := p.db.QueryRowContext(ctx, `
		SELECT id, date_planned, depot_id, livreur_id, distance_km, time_minutes, commandes_count, optimized, metadata, created_at
		FROM itineraires WHERE id=$1`, id).
		Scan(&it.ID, &it.PlannedFor, &it.DepotID, &it.DriverID, &it.DistanceKm, &it.TimeMin, &it.StopCount, &it.Optimized, &it.Metadata, &it.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return it, nil, ErrNotFound
	}
	if err != nil {
		return it, nil, err
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, commande_id, livreur_id, date_planned, delivered_at, status, visit_order, COALESCE(service_time_minutes, 0)
		FROM affectations WHERE livreur_id=$1 AND date_planned::date=$2::date ORDER BY visit_order`,
		it.DriverID, it.PlannedFor)
	if err != nil {
		return it, nil, err
	}
	defer rows.Close()
	assigns := []model.Assignment{}
	for rows.Next() {
		var a model.Assignment
		var delivered sql.NullTime
		if err := rows.Scan(&a.ID, &a.OrderID, &a.DriverID, &a.PlannedFor, &delivered, &a.Status, &a.VisitOrder, &a.ServiceTimeMin); err != nil {
			return it, nil, err
		}
		if delivered.Valid {
			t := delivered.Time
			a.DeliveredAt = &t
		}
		assigns = append(assigns, a)
	}
	return it, assigns, rows.Err()
}
