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

package solver

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/hbd-flex/thermoplant/api/plant"
	"github.com/hbd-flex/thermoplant/internal/compiler"
	"github.com/hbd-flex/thermoplant/internal/logging"
	"github.com/hbd-flex/thermoplant/internal/thermo"
)

// initialTearState seeds a tear stream guess with a plausible operating
// condition for its medium. Only mass flow and enthalpy enter the solve
// vector; pressure and temperature are re-anchored from each accepted pass.
func initialTearState(m plant.Medium) plant.PortState {
	var tC, pKPa, mdot float64
	switch m {
	case plant.MediumSteam:
		tC, pKPa, mdot = 200.0, 500.0, 20.0
	case plant.MediumWater:
		tC, pKPa, mdot = 60.0, 1000.0, 20.0
	case plant.MediumHotWater:
		tC, pKPa, mdot = 90.0, 1000.0, 100.0
	case plant.MediumFuelGas:
		tC, pKPa, mdot = 25.0, 3000.0, 2.0
	default:
		tC, pKPa, mdot = 500.0, 101.3, 100.0
	}
	st, err := thermo.State(m, tC, pKPa, mdot)
	if err != nil {
		return plant.PortState{TC: tC, PKPaAbs: pKPa, MDotKgS: mdot, Medium: m}
	}
	return st
}

// recycleProblem evaluates one recycle group against a guess vector of
// [mDot, h] pairs, one pair per tear stream.
type recycleProblem struct {
	plan  *compiler.Plan
	step  compiler.Step
	outer Snapshot
	bases []plant.PortState
}

func newRecycleProblem(plan *compiler.Plan, step compiler.Step, outer Snapshot) *recycleProblem {
	rp := &recycleProblem{plan: plan, step: step, outer: outer}
	rp.bases = make([]plant.PortState, len(step.Tears))
	for i, tear := range step.Tears {
		decl := plan.Ports[tear.Source.Unit][tear.Source.Port]
		rp.bases[i] = initialTearState(decl.Medium)
	}
	return rp
}

func (rp *recycleProblem) initialGuess() []float64 {
	x := make([]float64, 2*len(rp.bases))
	for i, b := range rp.bases {
		x[2*i] = b.MDotKgS
		x[2*i+1] = b.HKJKg
	}
	return x
}

// overrides materializes the guess vector as tear destination states.
func (rp *recycleProblem) overrides(x []float64) map[string]plant.PortState {
	ov := make(map[string]plant.PortState, len(rp.step.Tears))
	for i, tear := range rp.step.Tears {
		st := rp.bases[i]
		st.MDotKgS = x[2*i]
		st.HKJKg = x[2*i+1]
		if tC, err := thermo.Temperature(st.Medium, st.HKJKg, st.PKPaAbs); err == nil {
			st.TC = tC
		}
		ov[tear.DestUnit+"."+tear.DestPort] = st
	}
	return ov
}

// sweep runs one pass over the group in internal order against a trial
// snapshot and returns the normalized residuals: mass imbalance relative
// to the guessed flow and energy imbalance relative to the guessed
// enthalpy flow.
func (rp *recycleProblem) sweep(x []float64) (r []float64, srcStates []plant.PortState, err error) {
	snap := make(Snapshot, len(rp.outer))
	for id, ports := range rp.outer {
		snap[id] = ports
	}
	ov := rp.overrides(x)

	for _, id := range rp.step.Units {
		inputs := gatherInputs(rp.plan, id, snap, ov)
		eval, evalErr := rp.plan.Plugins[id].Evaluate(inputs, rp.plan.Params[id], rp.plan.Ambient)
		if evalErr != nil {
			return nil, nil, evalErr
		}
		ports := make(map[string]plant.PortState, len(inputs)+len(eval.Outputs))
		for portID, st := range inputs {
			ports[portID] = st
		}
		for portID, st := range eval.Outputs {
			ports[portID] = st
		}
		snap[id] = ports
	}

	r = make([]float64, 2*len(rp.step.Tears))
	srcStates = make([]plant.PortState, len(rp.step.Tears))
	for i, tear := range rp.step.Tears {
		src := snap[tear.Source.Unit][tear.Source.Port]
		srcStates[i] = src

		mGuess, hGuess := x[2*i], x[2*i+1]
		r[2*i] = (src.MDotKgS - mGuess) / math.Max(math.Abs(mGuess), 1.0)
		r[2*i+1] = (src.MDotKgS*src.HKJKg - mGuess*hGuess) / math.Max(math.Abs(mGuess*hGuess), 100.0)
	}
	return r, srcStates, nil
}

// refreshBases re-anchors tear pressure and temperature on the states the
// last accepted pass actually computed.
func (rp *recycleProblem) refreshBases(srcStates []plant.PortState) {
	for i, src := range srcStates {
		if src.PKPaAbs > 0 {
			rp.bases[i].PKPaAbs = src.PKPaAbs
			rp.bases[i].TC = src.TC
		}
	}
}

// solveRecycle drives one recycle group to closure: damped Newton on the
// tear residuals with a finite-difference Jacobian, falling back to
// derivative-free Nelder-Mead on the squared residual norm when Newton
// stalls or the Jacobian cannot be solved.
func solveRecycle(ctx context.Context, plan *compiler.Plan, step compiler.Step, report *Report, o Options) error {
	rp := newRecycleProblem(plan, step, report.States)
	n := 2 * len(step.Tears)
	x := rp.initialGuess()
	trace := ConvergenceTrace{Units: append([]string(nil), step.Units...)}

	iter := 0
	closure := 100.0
	converged := false
	fallback := false
	prevNorm := math.Inf(1)
	increases := 0

	for iter < o.MaxIterations {
		if err := ctx.Err(); err != nil {
			return err
		}
		iter++

		r, src, err := rp.sweep(x)
		if err != nil {
			fallback = true
			break
		}
		closure = 100.0 * maxAbs(r)
		trace.Add(iter, closure, "newton")
		rp.refreshBases(src)
		if closure <= o.ClosureTolPct {
			converged = true
			break
		}

		norm := sumSquares(r)
		if norm >= prevNorm {
			increases++
		} else {
			increases = 0
		}
		prevNorm = norm
		if increases >= 2 {
			fallback = true
			break
		}

		jac := mat.NewDense(n, n, nil)
		badJac := false
		for j := 0; j < n; j++ {
			h := 1e-6 * math.Max(math.Abs(x[j]), 1.0)
			xp := append([]float64(nil), x...)
			xp[j] += h
			rj, _, err := rp.sweep(xp)
			if err != nil {
				badJac = true
				break
			}
			for i := 0; i < n; i++ {
				jac.Set(i, j, (rj[i]-r[i])/h)
			}
		}
		if badJac {
			fallback = true
			break
		}

		neg := mat.NewVecDense(n, nil)
		for i, ri := range r {
			neg.SetVec(i, -ri)
		}
		var dx mat.VecDense
		if err := dx.SolveVec(jac, neg); err != nil {
			fallback = true
			break
		}

		// Damped update: no variable moves more than half its magnitude
		// in one step, which keeps early wild Jacobians from overshooting
		// into unphysical states.
		for j := 0; j < n; j++ {
			d := dx.AtVec(j)
			limit := 0.5 * math.Max(math.Abs(x[j]), 1e-3)
			if d > limit {
				d = limit
			} else if d < -limit {
				d = -limit
			}
			x[j] += d
		}
	}

	if !converged && fallback && iter < o.MaxIterations {
		problem := optimize.Problem{
			Func: func(v []float64) float64 {
				r, _, err := rp.sweep(v)
				if err != nil {
					return 1e12
				}
				return sumSquares(r)
			},
		}
		settings := &optimize.Settings{MajorIterations: 50 * (o.MaxIterations - iter)}
		if res, _ := optimize.Minimize(problem, append([]float64(nil), x...), settings, &optimize.NelderMead{}); res != nil {
			copy(x, res.X)
		}
		if r, src, err := rp.sweep(x); err == nil {
			iter++
			closure = 100.0 * maxAbs(r)
			trace.Add(iter, closure, "nelder-mead")
			converged = closure <= o.ClosureTolPct
			if converged {
				rp.refreshBases(src)
			}
		}
	}

	// Final accepted pass writes states, metrics and margins through the
	// normal path, including error capture for any member that fails.
	ov := rp.overrides(x)
	for _, id := range step.Units {
		evalInto(plan, id, report.States, ov, report)
	}

	trace.Converged = converged
	report.Traces = append(report.Traces, trace)
	if iter > report.Balance.Iterations {
		report.Balance.Iterations = iter
	}
	if closure > report.Balance.ClosureErrorPct {
		report.Balance.ClosureErrorPct = closure
	}
	if !converged {
		report.Balance.Converged = false
	}

	o.Log.V(logging.DEBUG).Info("recycle group finished",
		"units", step.Units,
		"tears", len(step.Tears),
		"iterations", iter,
		"closure_error_pct", closure,
		"converged", converged)
	return nil
}

func maxAbs(v []float64) float64 {
	worst := 0.0
	for _, x := range v {
		if a := math.Abs(x); a > worst {
			worst = a
		}
	}
	return worst
}

func sumSquares(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x * x
	}
	return s
}
