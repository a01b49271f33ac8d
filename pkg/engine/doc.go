// Package engine is the public entry point of the simulation and
// optimization pipeline.
//
// One Engine instance carries the frozen unit registry, the defaults
// table and the logger, and is safe for concurrent runs. Each run flows
// through the same stages:
//
//	Graph Compilation → Block Solving → Recycle Closure → KPI Evaluation
//	     (compiler)        (solver)        (solver)          (kpi)
//
// with optimize runs wrapping the whole pipeline inside the
// decision-variable search (optimizer).
//
// Example usage:
//
//	eng, err := engine.New(engine.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//
//	result, err := eng.Run(ctx, graph, &plant.RunCase{
//	    Mode:      plant.ModeOptimize,
//	    Objective: plant.ObjectiveMaxPower,
//	    Bounds:    map[string][2]float64{"GT1.load_pct": {50, 100}},
//	})
//	if err != nil {
//	    return err
//	}
//
//	log.Info("run complete",
//	    "net_power_MW", result.Summary.NetPowerMW,
//	    "converged", result.MassEnergyBalance.Converged,
//	    "violations", len(result.Violations))
//
// Error Handling:
//
// Errors split into two channels by audience:
//   - Structural problems (bad run case, compile errors, cancellation)
//     return a Go error and no result.
//   - Physical problems (constraint violations, property range
//     excursions, non-converged balances) return a complete Result whose
//     Violations list and MassEnergyBalance block describe them.
//
// Determinism:
//
// Identical graph and run case inputs produce identical numeric results.
// Only the Meta block (run id, timestamp) differs between repeat runs;
// the plant hash in Meta is itself deterministic and seeds the
// optimizer's restart sequence.
package engine
