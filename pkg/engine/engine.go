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

package engine

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/hbd-flex/thermoplant/api/plant"
	"github.com/hbd-flex/thermoplant/internal/compiler"
	"github.com/hbd-flex/thermoplant/internal/defaults"
	"github.com/hbd-flex/thermoplant/internal/kpi"
	"github.com/hbd-flex/thermoplant/internal/logging"
	"github.com/hbd-flex/thermoplant/internal/optimizer"
	"github.com/hbd-flex/thermoplant/internal/solver"
	"github.com/hbd-flex/thermoplant/internal/units"
)

// SolverVersion is stamped into every result's meta block.
const SolverVersion = "0.4.0"

// Engine runs simulate and optimize cases against a fixed unit registry
// and defaults table. Safe for concurrent use.
type Engine struct {
	registry   *units.Registry
	table      *defaults.Table
	log        logr.Logger
	solveOpts  solver.Options
	searchOpts optimizer.Options
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger routes engine, solver and optimizer logging.
func WithLogger(log logr.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithRegistry replaces the built-in unit set. The registry must already
// be frozen.
func WithRegistry(reg *units.Registry) Option {
	return func(e *Engine) { e.registry = reg }
}

// WithDefaults replaces the built-in defaults table, e.g. with one layered
// from a site override file.
func WithDefaults(tbl *defaults.Table) Option {
	return func(e *Engine) { e.table = tbl }
}

// WithSolverOptions tunes recycle iteration limits and tolerances.
func WithSolverOptions(opts solver.Options) Option {
	return func(e *Engine) { e.solveOpts = opts }
}

// WithSearchOptions tunes the optimizer's effort.
func WithSearchOptions(opts optimizer.Options) Option {
	return func(e *Engine) { e.searchOpts = opts }
}

// New builds an engine with the built-in registry and defaults unless
// options say otherwise.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{log: logr.Discard()}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = units.Builtin()
	}
	if !e.registry.Frozen() {
		return nil, fmt.Errorf("engine requires a frozen unit registry")
	}
	if e.table == nil {
		tbl, err := defaults.Builtin()
		if err != nil {
			return nil, err
		}
		e.table = tbl
	}
	e.solveOpts.Log = e.log
	e.searchOpts.Log = e.log
	return e, nil
}

// Run dispatches on the run case mode.
func (e *Engine) Run(ctx context.Context, g *plant.PlantGraph, rc *plant.RunCase) (*plant.Result, error) {
	if rc == nil {
		return nil, fmt.Errorf("run case is required")
	}
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	if rc.Mode == plant.ModeOptimize {
		return e.Optimize(ctx, g, rc)
	}
	return e.Simulate(ctx, g, rc)
}

// Simulate evaluates the plant once at the operating point described by
// the graph and run case.
func (e *Engine) Simulate(ctx context.Context, g *plant.PlantGraph, rc *plant.RunCase) (*plant.Result, error) {
	result, _, err := e.solveOnce(ctx, g, rc)
	if err != nil {
		return nil, err
	}
	if err := e.stampMeta(result, g); err != nil {
		return nil, err
	}
	e.log.V(logging.DEBUG).Info("simulate finished",
		"net_power_MW", result.Summary.NetPowerMW,
		"violations", len(result.Violations),
		"run_id", result.Meta.RunID)
	return result, nil
}

// Optimize searches the bounded decision variables for the best feasible
// operating point. When no candidate is feasible the least-infeasible
// point is returned; its Violations list says why.
func (e *Engine) Optimize(ctx context.Context, g *plant.PlantGraph, rc *plant.RunCase) (*plant.Result, error) {
	if err := e.validateBounds(g, rc); err != nil {
		return nil, err
	}
	hash, err := g.Hash()
	if err != nil {
		return nil, err
	}

	sol, err := optimizer.Minimize(ctx, optimizer.Problem{
		Objective: rc.Objective,
		Bounds:    rc.Bounds,
		Seed:      seedFromHash(hash),
		Simulate: func(ctx context.Context, vars map[string]float64) (*plant.Result, float64, error) {
			return e.solveOnce(ctx, applyVars(g, vars), rc)
		},
	}, e.searchOpts)
	if err != nil {
		return nil, err
	}

	result := sol.Result
	if err := e.stampMeta(result, g); err != nil {
		return nil, err
	}
	e.log.V(logging.DEBUG).Info("optimize finished",
		"objective", rc.Objective,
		"vars", sol.Vars,
		"feasible", sol.Feasible,
		"evaluations", sol.Evaluations,
		"run_id", result.Meta.RunID)
	return result, nil
}

// solveOnce runs compile, solve and KPI evaluation for one operating
// point. The meta block is left for the caller: optimize runs evaluate
// many points but stamp only the winner.
func (e *Engine) solveOnce(ctx context.Context, g *plant.PlantGraph, rc *plant.RunCase) (*plant.Result, float64, error) {
	var toggles map[string]bool
	if rc != nil {
		toggles = rc.Toggles
	}
	plan, err := compiler.Compile(g, e.registry, e.table, toggles)
	if err != nil {
		return nil, 0, err
	}
	rep, err := solver.Solve(ctx, plan, e.solveOpts)
	if err != nil {
		return nil, 0, err
	}

	ev := &kpi.Evaluator{Defaults: e.table, Log: e.log}
	out := ev.Evaluate(plan, rep, rc)

	result := &plant.Result{
		Summary:           out.Summary,
		Violations:        out.Violations,
		UnitStates:        rep.States,
		MassEnergyBalance: rep.Balance,
		DistrictHeating:   out.DistrictHeating,
	}
	return result, out.ViolationMagnitude, nil
}

func (e *Engine) stampMeta(result *plant.Result, g *plant.PlantGraph) error {
	hash, err := g.Hash()
	if err != nil {
		return err
	}
	result.Meta = plant.Meta{
		TimestampUTC:  time.Now().UTC().Format(time.RFC3339),
		SolverVersion: SolverVersion,
		RunID:         uuid.NewString(),
		PlantHash:     hash,
	}
	return nil
}

// validateBounds rejects decision-variable paths that cannot steer the
// plant before any solve is spent on them.
func (e *Engine) validateBounds(g *plant.PlantGraph, rc *plant.RunCase) error {
	typeOf := make(map[string]string, len(g.Units))
	for _, u := range g.Units {
		typeOf[u.ID] = u.Type
	}
	for path := range rc.Bounds {
		unitID, param, err := plant.Endpoint(path)
		if err != nil {
			return fmt.Errorf("bounds %q: %w", path, err)
		}
		typeKey, ok := typeOf[unitID]
		if !ok {
			return fmt.Errorf("bounds %q: graph has no unit %q", path, unitID)
		}
		plugin, ok := e.registry.Lookup(typeKey)
		if !ok {
			return fmt.Errorf("bounds %q: unknown unit type %q", path, typeKey)
		}
		spec, ok := plugin.ParamSchema()[param]
		if !ok {
			return fmt.Errorf("bounds %q: unit type %q has no parameter %q", path, typeKey, param)
		}
		if spec.Type != units.ParamFloat {
			return fmt.Errorf("bounds %q: parameter %q is not numeric", path, param)
		}
	}
	return nil
}

// applyVars overlays decision variables on a deep copy of the graph. The
// input graph is never mutated.
func applyVars(g *plant.PlantGraph, vars map[string]float64) *plant.PlantGraph {
	out := *g
	out.Units = make([]plant.Unit, len(g.Units))
	for i, u := range g.Units {
		cp := u
		cp.Params = make(map[string]any, len(u.Params)+1)
		for k, v := range u.Params {
			cp.Params[k] = v
		}
		out.Units[i] = cp
	}
	out.Streams = append([]plant.Stream(nil), g.Streams...)

	for path, v := range vars {
		unitID, param, err := plant.Endpoint(path)
		if err != nil {
			continue // rejected by validateBounds already
		}
		for i := range out.Units {
			if out.Units[i].ID == unitID {
				out.Units[i].Params[param] = v
			}
		}
	}
	return &out
}

// seedFromHash folds the leading bytes of the plant hash into the restart
// seed, tying the search sequence to the plant identity.
func seedFromHash(hash string) int64 {
	raw, err := hex.DecodeString(hash)
	if err != nil || len(raw) < 8 {
		return 1
	}
	return int64(binary.BigEndian.Uint64(raw[:8]))
}
