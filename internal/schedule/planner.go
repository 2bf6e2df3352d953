// Package schedule owns the nightly planning run: a cron-driven job that
// plans every depot for the next day, persists each depot's plan in one
// transaction, and notifies drivers and managers after commit.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"logiflow/internal/events"
	"logiflow/internal/model"
	"logiflow/internal/notify"
	"logiflow/internal/planner"
	"logiflow/internal/store"
)

// DefaultTimezone anchors the 21:00 trigger and the planning day.
const DefaultTimezone = "Africa/Casablanca"

// DailyPlanner runs one planning cycle across all depots. A depot failing
// anywhere (solve, persist) is logged and skipped; the loop always reaches
// the remaining depots.
type DailyPlanner struct {
	Store     store.Store
	Optimizer *planner.Optimizer
	Notifier  notify.Notifier
	Broker    events.EventBroker
	Log       *slog.Logger
	Loc       *time.Location
}

func NewDailyPlanner(st store.Store, opt *planner.Optimizer, n notify.Notifier, broker events.EventBroker, log *slog.Logger, loc *time.Location) *DailyPlanner {
	if log == nil {
		log = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &DailyPlanner{Store: st, Optimizer: opt, Notifier: n, Broker: broker, Log: log, Loc: loc}
}

// PlanningDay is the calendar day a run at "now" plans for: the next day,
// at local midnight.
func (dp *DailyPlanner) PlanningDay(now time.Time) time.Time {
	local := now.In(dp.Loc)
	y, m, d := local.AddDate(0, 0, 1).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, dp.Loc)
}

// TargetDay is the operational day reports should show at "now": tomorrow
// once the nightly planning hour has passed, today before that.
func TargetDay(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)
	if local.Hour() >= PlanHour {
		day = day.AddDate(0, 0, 1)
	}
	return day
}

// Run plans every depot for the given day.
func (dp *DailyPlanner) Run(ctx context.Context, day time.Time) error {
	depots, err := dp.Store.ListDepots(ctx)
	if err != nil {
		return fmt.Errorf("list depots: %w", err)
	}
	dp.Log.Info("daily planning started", "day", day.Format("2006-01-02"), "depots", len(depots))
	for _, depot := range depots {
		if err := dp.runDepot(ctx, depot, day); err != nil {
			dp.Log.Error("depot planning failed", "depot_id", depot.ID, "err", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

func (dp *DailyPlanner) runDepot(ctx context.Context, depot model.Depot, day time.Time) error {
	orders, err := dp.Store.ListPendingOrders(ctx, depot.ID)
	if err != nil {
		return fmt.Errorf("list orders: %w", err)
	}
	drivers, err := dp.Store.ListActiveDrivers(ctx, depot.ID)
	if err != nil {
		return fmt.Errorf("list drivers: %w", err)
	}
	if len(orders) == 0 || len(drivers) == 0 {
		dp.Log.Info("depot skipped", "depot_id", depot.ID, "orders", len(orders), "drivers", len(drivers))
		return nil
	}

	plan := dp.Optimizer.Optimize(ctx, depot.Location, orders, drivers, day.Format("2006-01-02"))
	if !plan.Success {
		return fmt.Errorf("optimize: %s", plan.Error)
	}

	itineraries, err := dp.Store.SavePlan(ctx, depot, day, plan)
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	dp.Log.Info("plan committed",
		"depot_id", depot.ID,
		"routes", len(itineraries),
		"scheduled", plan.Scheduled,
		"unscheduled", plan.Unscheduled)

	// Everything below is post-commit and best effort.
	dp.afterCommit(ctx, depot, drivers, plan, day)
	return nil
}

func (dp *DailyPlanner) afterCommit(ctx context.Context, depot model.Depot, drivers []model.Driver, plan model.PlanResult, day time.Time) {
	byID := make(map[int64]model.Driver, len(drivers))
	for _, d := range drivers {
		byID[d.ID] = d
	}

	if dp.Notifier != nil {
		for _, route := range plan.Routes {
			d, ok := byID[route.DriverID]
			if !ok {
				continue
			}
			if err := dp.Notifier.NotifyDriver(ctx, d, route, day); err != nil {
				dp.Log.Warn("driver notification failed", "driver_id", d.ID, "err", err)
			}
		}
		if err := dp.Notifier.NotifyManager(ctx, depot, byID, plan, day); err != nil {
			dp.Log.Warn("manager notification failed", "depot_id", depot.ID, "err", err)
		}
	}

	if dp.Broker != nil {
		dp.Broker.Publish(strconv.FormatInt(depot.ID, 10), events.Event{
			Type: events.PlanCommitted,
			Data: map[string]any{
				"depot_id":              depot.ID,
				"planning_date":         plan.PlanningLabel,
				"routes":                len(plan.Routes),
				"commandes_scheduled":   plan.Scheduled,
				"commandes_unscheduled": plan.Unscheduled,
			},
		})
	}
}
