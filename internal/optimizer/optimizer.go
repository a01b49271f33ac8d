/*
Copyright 2025 The ThermoPlant Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package optimizer

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"

	"github.com/hbd-flex/thermoplant/api/plant"
	"github.com/hbd-flex/thermoplant/internal/logging"
)

// Penalty weights applied to the minimization score.
const (
	violationWeight   = 10.0
	nonConvergedPenal = 1000.0
	simFailureScore   = 1e12
)

// SimulateFunc runs one full steady-state solve with the decision
// variables applied and returns the result together with the summed
// magnitude of all violated constraint margins.
type SimulateFunc func(ctx context.Context, vars map[string]float64) (*plant.Result, float64, error)

// Problem describes one bounded search.
type Problem struct {
	Objective plant.Objective

	// Bounds maps decision-variable paths ("<unitId>.<param>") to their
	// [min, max] intervals.
	Bounds map[string][2]float64

	Simulate SimulateFunc

	// Seed makes the restart sequence reproducible. Derived from the
	// plant hash by the engine.
	Seed int64
}

// Options tune the search effort.
type Options struct {
	// Restarts is the number of seeded Nelder-Mead probes launched when
	// the descent phase ends infeasible. Zero means the default of 4.
	Restarts int

	// MajorIterations caps each optimization phase. Zero means the
	// default of 100.
	MajorIterations int

	Log logr.Logger
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.Restarts <= 0 {
		out.Restarts = 4
	}
	if out.MajorIterations <= 0 {
		out.MajorIterations = 100
	}
	return out
}

// Solution is the best operating point the search found.
type Solution struct {
	// Vars holds the decision variables of the returned point, clamped
	// into bounds.
	Vars map[string]float64

	// Result is the full simulation output at Vars.
	Result *plant.Result

	// Score is the raw objective value in minimization form, without
	// penalties.
	Score float64

	// Feasible is true when the point satisfies every constraint and the
	// balance converged.
	Feasible bool

	// Evaluations counts full plant solves spent on the search.
	Evaluations int
}

// candidate is one scored point, tracked under the search mutex.
type candidate struct {
	vars      []float64
	result    *plant.Result
	score     float64
	penalized float64
	feasible  bool
}

// better implements the selection order: feasibility first, then the
// penalized score, then the variable vector. The last tie-break keeps the
// winner independent of the order concurrent probes report in.
func better(a, b *candidate) bool {
	if b == nil {
		return true
	}
	if a.feasible != b.feasible {
		return a.feasible
	}
	if a.penalized != b.penalized {
		return a.penalized < b.penalized
	}
	for i := range a.vars {
		if a.vars[i] != b.vars[i] {
			return a.vars[i] < b.vars[i]
		}
	}
	return false
}

// search carries the shared state of one Minimize call.
type search struct {
	p     Problem
	names []string
	lo    []float64
	hi    []float64

	mu    sync.Mutex
	evals int
	best  *candidate
}

// Minimize runs the search and returns the best point found. An error is
// returned only when the search could not score a single point (every
// simulation failed) or the context was cancelled; an infeasible best
// point is a valid solution whose Result still carries its violations.
func Minimize(ctx context.Context, p Problem, opts Options) (*Solution, error) {
	if len(p.Bounds) == 0 {
		return nil, fmt.Errorf("optimizer needs at least one bounded decision variable")
	}
	o := opts.withDefaults()

	s := &search{p: p}
	s.names = make([]string, 0, len(p.Bounds))
	for name := range p.Bounds {
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)
	s.lo = make([]float64, len(s.names))
	s.hi = make([]float64, len(s.names))
	x0 := make([]float64, len(s.names))
	for i, name := range s.names {
		b := p.Bounds[name]
		s.lo[i], s.hi[i] = b[0], b[1]
		x0[i] = (b[0] + b[1]) / 2.0
	}

	// Phase 1: gradient descent from the box center.
	objective := func(x []float64) float64 { return s.score(ctx, x) }
	gradProblem := optimize.Problem{
		Func: objective,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, objective, x, &fd.Settings{Concurrent: true})
		},
	}
	settings := &optimize.Settings{MajorIterations: o.MajorIterations}
	if _, err := optimize.Minimize(gradProblem, x0, settings, &optimize.BFGS{}); err != nil {
		o.Log.V(logging.DEBUG).Info("descent phase ended early", "reason", err.Error())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Phase 2: seeded derivative-free restarts when descent ended
	// infeasible. Every restart runs to completion so the evaluated set,
	// and with it the selected point, never depends on scheduling.
	if b := s.snapshotBest(); b == nil || !b.feasible {
		if err := s.restarts(ctx, o); err != nil {
			return nil, err
		}
	}

	best := s.snapshotBest()
	if best == nil {
		return nil, fmt.Errorf("optimizer could not evaluate any candidate point")
	}

	sol := &Solution{
		Vars:        make(map[string]float64, len(s.names)),
		Result:      best.result,
		Score:       best.score,
		Feasible:    best.feasible,
		Evaluations: s.evaluations(),
	}
	for i, name := range s.names {
		sol.Vars[name] = best.vars[i]
	}
	o.Log.V(logging.DEBUG).Info("search finished",
		"objective", p.Objective,
		"feasible", sol.Feasible,
		"score", sol.Score,
		"evaluations", sol.Evaluations)
	return sol, nil
}

func (s *search) restarts(ctx context.Context, o Options) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < o.Restarts; i++ {
		rng := rand.New(rand.NewSource(s.p.Seed + int64(i)))
		start := make([]float64, len(s.names))
		for j := range start {
			start[j] = s.lo[j] + rng.Float64()*(s.hi[j]-s.lo[j])
		}
		g.Go(func() error {
			problem := optimize.Problem{
				Func: func(x []float64) float64 { return s.score(gctx, x) },
			}
			settings := &optimize.Settings{MajorIterations: o.MajorIterations}
			_, _ = optimize.Minimize(problem, start, settings, &optimize.NelderMead{})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// score simulates one candidate point: out-of-bounds coordinates are
// clamped for the solve and charged quadratically, violations and
// non-convergence are charged linearly on top of the objective.
func (s *search) score(ctx context.Context, x []float64) float64 {
	if ctx.Err() != nil {
		return simFailureScore
	}

	clamped := make([]float64, len(x))
	excursion := 0.0
	for i, v := range x {
		c := math.Min(math.Max(v, s.lo[i]), s.hi[i])
		span := math.Max(s.hi[i]-s.lo[i], 1e-9)
		d := (v - c) / span
		excursion += 100.0 * d * d
		clamped[i] = c
	}

	vars := make(map[string]float64, len(s.names))
	for i, name := range s.names {
		vars[name] = clamped[i]
	}

	result, violationMag, err := s.p.Simulate(ctx, vars)
	s.mu.Lock()
	s.evals++
	s.mu.Unlock()
	if err != nil {
		return simFailureScore + excursion
	}

	score := objectiveScore(s.p.Objective, &result.Summary)
	penalized := score + violationWeight*violationMag
	if !result.MassEnergyBalance.Converged {
		penalized += nonConvergedPenal
	}

	c := &candidate{
		vars:      clamped,
		result:    result,
		score:     score,
		penalized: penalized,
		feasible:  len(result.Violations) == 0,
	}
	s.mu.Lock()
	if better(c, s.best) {
		s.best = c
	}
	s.mu.Unlock()

	return penalized + excursion
}

func (s *search) snapshotBest() *candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.best
}

func (s *search) evaluations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evals
}

// objectiveScore maps a solved summary to the minimization score.
func objectiveScore(obj plant.Objective, sum *plant.PlantSummary) float64 {
	switch obj {
	case plant.ObjectiveMaxPower:
		return -sum.NetPowerMW
	case plant.ObjectiveMaxEfficiency:
		return -sum.NetEffLHVPct
	case plant.ObjectiveMaxRevenue:
		return -sum.RevenueUSDH
	case plant.ObjectiveMinHeatRate:
		if sum.NetPowerMW <= 0 {
			return simFailureScore
		}
		// kJ of fuel per kWh of net output.
		return 3600.0 * sum.FuelInputMW / sum.NetPowerMW
	default:
		return simFailureScore
	}
}
