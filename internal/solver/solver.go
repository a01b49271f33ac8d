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

// Package solver executes a compiled plan: forward block solving for
// acyclic sections and iterative closure for recycle groups. Each pass
// produces a fresh snapshot of port states; nothing is patched in place.
package solver

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/hbd-flex/thermoplant/api/plant"
	"github.com/hbd-flex/thermoplant/internal/compiler"
	"github.com/hbd-flex/thermoplant/internal/logging"
)

// Snapshot maps unit id -> port id -> the port's most recent state. Input
// ports carry the resolved upstream state, output ports the unit's own
// evaluation result.
type Snapshot map[string]map[string]plant.PortState

// UnitMargin is one constraint predicate result attributed to its unit.
type UnitMargin struct {
	Unit   string
	Name   string
	Margin float64
}

// Report is the full numeric outcome of one plan execution.
type Report struct {
	// States holds the final port states for every unit.
	States Snapshot

	// Metrics maps unit id to the scalar metrics its plugin reported.
	Metrics map[string]map[string]float64

	// Margins holds every constraint predicate result in plan order.
	Margins []UnitMargin

	// UnitErrors maps unit id to the evaluation error message for units
	// whose plugin failed (typically a property range excursion). Failed
	// units emit zero-flow outputs so the rest of the plant still solves.
	UnitErrors map[string]string

	// Balance aggregates recycle closure over all groups.
	Balance plant.MassEnergyBalance

	// Traces holds one convergence history per recycle group.
	Traces []ConvergenceTrace
}

// Options tune the recycle iteration.
type Options struct {
	// MaxIterations caps each recycle group's iteration count. Zero means
	// the default of 50.
	MaxIterations int

	// ClosureTolPct is the convergence threshold on the worst normalized
	// residual, in percent. Zero means the default of 0.5.
	ClosureTolPct float64

	Log logr.Logger
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.MaxIterations <= 0 {
		out.MaxIterations = 50
	}
	if out.ClosureTolPct <= 0 {
		out.ClosureTolPct = 0.5
	}
	if out.Log.GetSink() == nil {
		out.Log = logr.Discard()
	}
	return out
}

// Solve runs the plan to a steady state. It returns an error only for
// cancellation or internal inconsistency; physical trouble (range
// excursions, non-convergence) is reported in the Report instead so the
// caller can attach it to the result as violations.
func Solve(ctx context.Context, plan *compiler.Plan, opts Options) (*Report, error) {
	o := opts.withDefaults()
	report := &Report{
		States:     Snapshot{},
		Metrics:    map[string]map[string]float64{},
		UnitErrors: map[string]string{},
		Balance:    plant.MassEnergyBalance{Converged: true, Iterations: 1},
	}

	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !step.Recycle {
			evalInto(plan, step.Units[0], report.States, nil, report)
			continue
		}
		if err := solveRecycle(ctx, plan, step, report, o); err != nil {
			return nil, err
		}
	}

	o.Log.V(logging.DEBUG).Info("plan solved",
		"units", len(plan.Plugins),
		"converged", report.Balance.Converged,
		"closure_error_pct", report.Balance.ClosureErrorPct,
		"unit_errors", len(report.UnitErrors))
	return report, nil
}

// gatherInputs resolves a unit's input port states from the snapshot,
// with tear overrides (keyed "<unitId>.<portId>") taking precedence.
func gatherInputs(plan *compiler.Plan, unitID string, snap Snapshot, overrides map[string]plant.PortState) map[string]plant.PortState {
	inputs := map[string]plant.PortState{}
	for portID, src := range plan.Inbound[unitID] {
		if ov, ok := overrides[unitID+"."+portID]; ok {
			inputs[portID] = ov
			continue
		}
		if s, ok := snap[src.Unit][src.Port]; ok {
			inputs[portID] = s
		}
	}
	return inputs
}

// evalInto evaluates one unit and writes its ports into the snapshot. The
// inner map is always freshly allocated, so trial snapshots that share the
// outer map never alias accepted state. A failed evaluation records the
// error (when report is non-nil) and emits zero-flow outputs at ambient
// pressure so downstream units still see well-formed states.
func evalInto(plan *compiler.Plan, unitID string, snap Snapshot, overrides map[string]plant.PortState, report *Report) {
	inputs := gatherInputs(plan, unitID, snap, overrides)
	ports := map[string]plant.PortState{}
	for portID, st := range inputs {
		ports[portID] = st
	}

	eval, err := plan.Plugins[unitID].Evaluate(inputs, plan.Params[unitID], plan.Ambient)
	if err != nil {
		for portID, decl := range plan.Ports[unitID] {
			if decl.Direction == plant.DirectionOut {
				ports[portID] = plant.PortState{Medium: decl.Medium, PKPaAbs: plan.Ambient.PKPaAbs}
			}
		}
		snap[unitID] = ports
		if report != nil {
			report.UnitErrors[unitID] = fmt.Sprintf("%s: %v", plan.TypeOf(unitID), err)
			report.Metrics[unitID] = map[string]float64{}
		}
		return
	}

	for portID, st := range eval.Outputs {
		ports[portID] = st
	}
	snap[unitID] = ports

	if report != nil {
		report.Metrics[unitID] = eval.Metrics
		for _, m := range plan.Plugins[unitID].Constraints(eval, plan.Params[unitID]) {
			report.Margins = append(report.Margins, UnitMargin{Unit: unitID, Name: m.Name, Margin: m.Margin})
		}
	}
}
