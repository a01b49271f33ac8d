// Package optimizer implements the decision-variable search for optimize
// runs.
//
// The optimizer treats the simulation pipeline as a black box: each
// candidate point is a full steady-state solve, scored by the run
// objective in minimization form plus penalties for constraint
// violations, non-converged balances and bound excursions.
//
// Search Flow:
//
//  1. Quasi-Newton descent
//     - BFGS over concurrent finite-difference gradients
//     - Started from the center of the bounds box
//     - Candidate points outside the box are clamped for simulation and
//       charged a quadratic excursion penalty
//
//  2. Seeded restarts (only when descent ends infeasible)
//     - Nelder-Mead probes from random interior points
//     - Start points drawn from a generator seeded by the plant hash, so
//       identical inputs replay the identical search
//     - Restarts run concurrently and all run to completion, keeping
//       the selection independent of scheduling order
//
//  3. Selection
//     - Feasible candidates always beat infeasible ones
//     - Ties resolve to the lower penalized score
//     - With no feasible point anywhere in the box, the least-penalized
//       candidate is returned with its violations intact rather than
//       failing the run
//
// Example usage:
//
//	sol, err := optimizer.Minimize(ctx, optimizer.Problem{
//	    Objective: plant.ObjectiveMaxPower,
//	    Bounds:    map[string][2]float64{"GT1.load_pct": {50, 100}},
//	    Simulate:  simulateFn,
//	    Seed:      seed,
//	}, optimizer.Options{Log: log})
//	if err != nil {
//	    return err
//	}
//	log.Info("search finished",
//	    "vars", sol.Vars,
//	    "feasible", sol.Feasible,
//	    "evaluations", sol.Evaluations)
package optimizer
