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

// maxTracePoints bounds the per-group convergence history so a thrashing
// loop cannot grow a result without limit.
const maxTracePoints = 256

// TracePoint is one sample of a recycle group's convergence history.
type TracePoint struct {
	// Iteration is 1-based within the group's solve.
	Iteration int `json:"iteration"`

	// ClosureErrorPct is the worst normalized residual after this
	// iteration, in percent.
	ClosureErrorPct float64 `json:"closure_error_pct"`

	// Method is the step kind that produced the sample ("newton" or
	// "nelder-mead").
	Method string `json:"method"`
}

// ConvergenceTrace records how one recycle group closed.
type ConvergenceTrace struct {
	// Units lists the group members in solve order.
	Units []string `json:"units"`

	Points    []TracePoint `json:"points"`
	Converged bool         `json:"converged"`
}

// Add appends a sample, dropping the oldest once the cap is reached.
func (t *ConvergenceTrace) Add(iteration int, closurePct float64, method string) {
	if len(t.Points) >= maxTracePoints {
		t.Points = t.Points[1:]
	}
	t.Points = append(t.Points, TracePoint{
		Iteration:       iteration,
		ClosureErrorPct: closurePct,
		Method:          method,
	})
}

// Last returns the most recent sample, or a zero point for an empty trace.
func (t *ConvergenceTrace) Last() TracePoint {
	if len(t.Points) == 0 {
		return TracePoint{}
	}
	return t.Points[len(t.Points)-1]
}
