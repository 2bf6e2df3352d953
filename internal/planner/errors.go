package planner

import "errors"

var (
	// ErrInvalidInput marks a batch that cannot be optimized as given, e.g.
	// an order without a usable location.
	ErrInvalidInput = errors.New("planner: invalid input")

	// ErrInvalidFleet marks a fleet with a non-positive vehicle capacity.
	// Relaxation never retries on this; the fleet data must be fixed.
	ErrInvalidFleet = errors.New("planner: invalid fleet")

	// ErrInfeasible marks a batch no feasible assignment was found for.
	ErrInfeasible = errors.New("planner: infeasible batch")
)
