package solver

import (
	"context"
	"errors"
	"testing"
	"time"
)

// symmetric 4-node toy problem: depot at 0, customers 1..3
func toyProblem() Problem {
	dist := [][]int64{
		{0, 100, 200, 300},
		{100, 0, 120, 250},
		{200, 120, 0, 150},
		{300, 250, 150, 0},
	}
	dur := make([][]int64, len(dist))
	for i, row := range dist {
		dur[i] = make([]int64, len(row))
		for j, d := range row {
			dur[i][j] = d / 10
		}
	}
	return Problem{
		DistM:        dist,
		DurS:         dur,
		ServiceSec:   []int64{0, 600, 600, 600},
		DemandG:      []int64{0, 10000, 10000, 10000},
		CapacityG:    []int64{100000},
		MaxRouteDurS: 36000,
		TimeBudget:   300 * time.Millisecond,
		Seed:         1,
	}
}

func TestSolveAllCustomersRouted(t *testing.T) {
	p := toyProblem()
	sol, err := New().Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if len(sol.Routes) != 1 {
		t.Fatalf("want 1 vehicle, got %d", len(sol.Routes))
	}
	seen := map[int]bool{}
	for _, r := range sol.Routes {
		for _, n := range r {
			if seen[n] {
				t.Fatalf("node %d visited twice", n)
			}
			seen[n] = true
		}
	}
	for n := 1; n <= 3; n++ {
		if !seen[n] {
			t.Fatalf("node %d unrouted", n)
		}
	}
}

func TestSolveRespectsCapacity(t *testing.T) {
	p := toyProblem()
	p.CapacityG = []int64{15000} // fits one customer per route, only one vehicle
	_, err := New().Solve(context.Background(), p)
	if !errors.Is(err, ErrInfeasible) {
		t.Fatalf("want ErrInfeasible, got %v", err)
	}

	// three vehicles of the same size can carry one each
	p.CapacityG = []int64{15000, 15000, 15000}
	sol, err := New().Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	for vi, r := range sol.Routes {
		if RouteLoad(p, r) > p.CapacityG[vi] {
			t.Fatalf("vehicle %d overloaded", vi)
		}
	}
}

func TestSolveRespectsDuration(t *testing.T) {
	p := toyProblem()
	p.MaxRouteDurS = 700 // one stop (600s service) plus short legs
	p.CapacityG = []int64{100000, 100000, 100000}
	sol, err := New().Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	for _, r := range sol.Routes {
		if d := RouteDuration(p, r); d > p.MaxRouteDurS {
			t.Fatalf("route duration %d exceeds %d", d, p.MaxRouteDurS)
		}
	}
}

func TestSolveNoCustomers(t *testing.T) {
	p := toyProblem()
	p.DistM = [][]int64{{0}}
	p.DurS = [][]int64{{0}}
	p.ServiceSec = []int64{0}
	p.DemandG = []int64{0}
	sol, err := New().Solve(context.Background(), p)
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	for _, r := range sol.Routes {
		if len(r) != 0 {
			t.Fatalf("expected empty routes, got %v", sol.Routes)
		}
	}
}

func TestSolveNoVehicles(t *testing.T) {
	p := toyProblem()
	p.CapacityG = nil
	if _, err := New().Solve(context.Background(), p); !errors.Is(err, ErrInfeasible) {
		t.Fatalf("want ErrInfeasible, got %v", err)
	}
}

func TestRouteAccounting(t *testing.T) {
	p := toyProblem()
	route := []int{1, 2, 3}

	wantDist := p.DistM[0][1] + p.DistM[1][2] + p.DistM[2][3] + p.DistM[3][0]
	if got := RouteDistance(p, route); got != wantDist {
		t.Fatalf("RouteDistance: want %d, got %d", wantDist, got)
	}

	// cumulative duration at tour end: every leg plus service on departure
	wantDur := p.DurS[0][1] + p.DurS[1][2] + p.ServiceSec[1] + p.DurS[2][3] + p.ServiceSec[2] + p.DurS[3][0] + p.ServiceSec[3]
	if got := RouteDuration(p, route); got != wantDur {
		t.Fatalf("RouteDuration: want %d, got %d", wantDur, got)
	}

	if got := RouteLoad(p, route); got != 30000 {
		t.Fatalf("RouteLoad: want 30000, got %d", got)
	}

	if RouteDistance(p, nil) != 0 || RouteDuration(p, nil) != 0 {
		t.Fatal("empty route must cost nothing")
	}
}
