// Package solver implements a capacitated vehicle-routing solver with a hard
// per-route duration budget. It builds an initial solution by cheapest-arc
// insertion and improves it with a budgeted local search (relocate, swap,
// 2-opt, random ruin/recreate). The search is wall-clock bounded, so results
// may vary run to run; callers must treat routes as one good solution, not
// the optimum.
package solver

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// ErrInfeasible is returned when no assignment satisfying capacity and
// duration constraints was found within the time budget.
var ErrInfeasible = errors.New("solver: no feasible solution within budget")

// Problem is a routing model over a square cost matrix. Node 0 is the depot;
// nodes 1..n-1 are customers. All vehicles start and end at the depot.
type Problem struct {
	// DistM is the arc cost matrix in meters; it is the minimized objective.
	DistM [][]int64
	// DurS is the travel-time matrix in seconds, constraint only.
	DurS [][]int64
	// ServiceSec is per-node service time, added when departing the node.
	// ServiceSec[0] must be 0.
	ServiceSec []int64
	// DemandG is per-node demand in grams. DemandG[0] must be 0.
	DemandG []int64
	// CapacityG is per-vehicle capacity in grams.
	CapacityG []int64
	// MaxRouteDurS bounds cumulative travel+service per route.
	MaxRouteDurS int64
	// TimeBudget bounds the whole solve; defaults to 10s.
	TimeBudget time.Duration
	// Seed fixes the search RNG; 0 means time-based.
	Seed int64
}

// Solution holds one ordered customer list per vehicle. Vehicles may have
// empty routes.
type Solution struct {
	Routes [][]int
}

// Solver abstracts the routing engine so a different constrained solver can
// be substituted without touching the relaxation controller.
type Solver interface {
	Solve(ctx context.Context, p Problem) (Solution, error)
}

// Engine is the built-in local-search solver.
type Engine struct{}

func New() *Engine { return &Engine{} }

// Solve searches for a feasible minimum-distance assignment of all customers.
func (e *Engine) Solve(ctx context.Context, p Problem) (Solution, error) {
	n := len(p.DistM)
	nVehicles := len(p.CapacityG)
	empty := Solution{Routes: make([][]int, nVehicles)}
	for i := range empty.Routes {
		empty.Routes[i] = []int{}
	}
	if n <= 1 {
		return empty, nil
	}
	if nVehicles == 0 {
		return Solution{}, ErrInfeasible
	}

	budget := p.TimeBudget
	if budget <= 0 {
		budget = 10 * time.Second
	}
	deadline := time.Now().Add(budget)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	seed := p.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	customers := make([]int, 0, n-1)
	for i := 1; i < n; i++ {
		customers = append(customers, i)
	}

	// Seed solution: cheapest feasible insertion, retried with shuffled
	// insertion order while the budget allows.
	best, ok := insertAll(p, cloneRoutes(empty.Routes), customers)
	for !ok {
		if ctx.Err() != nil || !time.Now().Before(deadline) {
			return Solution{}, ErrInfeasible
		}
		shuffled := append([]int(nil), customers...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		best, ok = insertAll(p, cloneRoutes(empty.Routes), shuffled)
	}

	best = localDescent(p, best, deadline)
	bestCost := totalDistance(p, best)

	// Ruin and recreate around the incumbent until the budget runs out.
	for time.Now().Before(deadline) && ctx.Err() == nil {
		k := 1 + rng.Intn(3)
		cand, removed := ruin(best, k, rng)
		cand, ok := insertAll(p, cand, removed)
		if !ok {
			continue
		}
		cand = localDescent(p, cand, deadline)
		if c := totalDistance(p, cand); c < bestCost {
			best = cand
			bestCost = c
		}
	}

	return Solution{Routes: best}, nil
}

// RouteDistance is the accumulated arc cost of depot -> stops -> depot.
func RouteDistance(p Problem, route []int) int64 {
	var total int64
	prev := 0
	for _, node := range route {
		total += p.DistM[prev][node]
		prev = node
	}
	if len(route) > 0 {
		total += p.DistM[prev][0]
	}
	return total
}

// RouteDuration is the cumulative duration at the end of the tour: every
// travel leg including the return to depot, plus the service time spent
// departing each visited node.
func RouteDuration(p Problem, route []int) int64 {
	var total int64
	prev := 0
	for _, node := range route {
		total += p.DurS[prev][node] + p.ServiceSec[prev]
		prev = node
	}
	if len(route) > 0 {
		total += p.DurS[prev][0] + p.ServiceSec[prev]
	}
	return total
}

// RouteLoad is the total demand carried on the route.
func RouteLoad(p Problem, route []int) int64 {
	var total int64
	for _, node := range route {
		total += p.DemandG[node]
	}
	return total
}

func feasible(p Problem, vehicle int, route []int) bool {
	if RouteLoad(p, route) > p.CapacityG[vehicle] {
		return false
	}
	if p.MaxRouteDurS > 0 && RouteDuration(p, route) > p.MaxRouteDurS {
		return false
	}
	return true
}

func totalDistance(p Problem, routes [][]int) int64 {
	var total int64
	for _, r := range routes {
		total += RouteDistance(p, r)
	}
	return total
}

func cloneRoutes(routes [][]int) [][]int {
	out := make([][]int, len(routes))
	for i, r := range routes {
		out[i] = append([]int(nil), r...)
	}
	return out
}

// insertAll places every node at its cheapest feasible position across all
// routes, cheapest-delta first. Returns false when some node has no feasible
// slot.
func insertAll(p Problem, routes [][]int, nodes []int) ([][]int, bool) {
	pending := append([]int(nil), nodes...)
	for len(pending) > 0 {
		bestNode, bestRoute, bestPos := -1, -1, -1
		bestDelta := int64(math.MaxInt64)
		for ni, node := range pending {
			for vi, route := range routes {
				for pos := 0; pos <= len(route); pos++ {
					delta := insertionDelta(p, route, node, pos)
					if delta >= bestDelta {
						continue
					}
					cand := insertAt(route, node, pos)
					if !feasible(p, vi, cand) {
						continue
					}
					bestNode, bestRoute, bestPos = ni, vi, pos
					bestDelta = delta
				}
			}
		}
		if bestNode < 0 {
			return routes, false
		}
		routes[bestRoute] = insertAt(routes[bestRoute], pending[bestNode], bestPos)
		pending = append(pending[:bestNode], pending[bestNode+1:]...)
	}
	return routes, true
}

func insertionDelta(p Problem, route []int, node, pos int) int64 {
	prev, next := 0, 0
	if pos > 0 {
		prev = route[pos-1]
	}
	if pos < len(route) {
		next = route[pos]
	}
	return p.DistM[prev][node] + p.DistM[node][next] - p.DistM[prev][next]
}

func insertAt(route []int, node, pos int) []int {
	out := make([]int, 0, len(route)+1)
	out = append(out, route[:pos]...)
	out = append(out, node)
	out = append(out, route[pos:]...)
	return out
}

// ruin removes k random customers from the solution.
func ruin(routes [][]int, k int, rng *rand.Rand) ([][]int, []int) {
	type slot struct{ route, pos int }
	var slots []slot
	for vi, r := range routes {
		for pos := range r {
			slots = append(slots, slot{vi, pos})
		}
	}
	if len(slots) == 0 {
		return cloneRoutes(routes), nil
	}
	if k > len(slots) {
		k = len(slots)
	}
	rng.Shuffle(len(slots), func(i, j int) { slots[i], slots[j] = slots[j], slots[i] })
	picked := slots[:k]

	remove := make(map[int]map[int]bool)
	for _, s := range picked {
		if remove[s.route] == nil {
			remove[s.route] = map[int]bool{}
		}
		remove[s.route][s.pos] = true
	}

	out := make([][]int, len(routes))
	var removed []int
	for vi, r := range routes {
		out[vi] = make([]int, 0, len(r))
		for pos, node := range r {
			if remove[vi] != nil && remove[vi][pos] {
				removed = append(removed, node)
				continue
			}
			out[vi] = append(out[vi], node)
		}
	}
	return out, removed
}

// localDescent applies relocate, swap and intra-route 2-opt moves until no
// move improves total distance or the deadline passes.
func localDescent(p Problem, routes [][]int, deadline time.Time) [][]int {
	improved := true
	for improved && time.Now().Before(deadline) {
		improved = false
		if relocateImprove(p, routes) {
			improved = true
		}
		if swapImprove(p, routes) {
			improved = true
		}
		if twoOptImprove(p, routes) {
			improved = true
		}
	}
	return routes
}

// relocateImprove moves single nodes to a cheaper feasible position anywhere.
func relocateImprove(p Problem, routes [][]int) bool {
	any := false
	for a := range routes {
		for i := 0; i < len(routes[a]); i++ {
			node := routes[a][i]
			without := append(append([]int(nil), routes[a][:i]...), routes[a][i+1:]...)
			baseGain := RouteDistance(p, routes[a]) - RouteDistance(p, without)

			bestRoute, bestPos := -1, -1
			bestCost := int64(0)
			for b := range routes {
				target := routes[b]
				if b == a {
					target = without
				}
				for pos := 0; pos <= len(target); pos++ {
					delta := insertionDelta(p, target, node, pos)
					if bestRoute >= 0 && delta >= bestCost {
						continue
					}
					cand := insertAt(target, node, pos)
					if !feasible(p, b, cand) {
						continue
					}
					if bestRoute < 0 || delta < bestCost {
						bestRoute, bestPos, bestCost = b, pos, delta
					}
				}
			}
			if bestRoute < 0 || bestCost >= baseGain {
				continue
			}
			routes[a] = without
			target := routes[bestRoute]
			if bestRoute == a {
				target = without
			}
			routes[bestRoute] = insertAt(target, node, bestPos)
			any = true
			i--
		}
	}
	return any
}

// swapImprove exchanges node pairs between distinct routes.
func swapImprove(p Problem, routes [][]int) bool {
	any := false
	for a := 0; a < len(routes); a++ {
		for b := a + 1; b < len(routes); b++ {
			for i := 0; i < len(routes[a]); i++ {
				for j := 0; j < len(routes[b]); j++ {
					ca := append([]int(nil), routes[a]...)
					cb := append([]int(nil), routes[b]...)
					ca[i], cb[j] = cb[j], ca[i]
					if !feasible(p, a, ca) || !feasible(p, b, cb) {
						continue
					}
					before := RouteDistance(p, routes[a]) + RouteDistance(p, routes[b])
					after := RouteDistance(p, ca) + RouteDistance(p, cb)
					if after < before {
						routes[a], routes[b] = ca, cb
						any = true
					}
				}
			}
		}
	}
	return any
}

// twoOptImprove reverses intra-route segments when that shortens the tour.
func twoOptImprove(p Problem, routes [][]int) bool {
	any := false
	for vi := range routes {
		r := routes[vi]
		n := len(r)
		improved := true
		for improved {
			improved = false
			for i := 0; i < n-1; i++ {
				for k := i + 1; k < n; k++ {
					cand := append([]int(nil), r...)
					for x, y := i, k; x < y; x, y = x+1, y-1 {
						cand[x], cand[y] = cand[y], cand[x]
					}
					if !feasible(p, vi, cand) {
						continue
					}
					if RouteDistance(p, cand) < RouteDistance(p, r) {
						r = cand
						improved = true
						any = true
					}
				}
			}
		}
		routes[vi] = r
	}
	return any
}
