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

// Package kpi turns a solved plant into the result contract: plant-level
// summary figures, the optional district-heating block and the flat,
// deterministic list of constraint violations.
package kpi

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-logr/logr"

	"github.com/hbd-flex/thermoplant/api/plant"
	"github.com/hbd-flex/thermoplant/internal/compiler"
	"github.com/hbd-flex/thermoplant/internal/defaults"
	"github.com/hbd-flex/thermoplant/internal/logging"
	"github.com/hbd-flex/thermoplant/internal/solver"
)

// mmBtuPerMWh converts fuel energy priced in $/MMBtu to $/MWh.
const mmBtuPerMWh = 3.412

// unitErrorMagnitude is the violation weight charged for a unit whose
// evaluation failed outright.
const unitErrorMagnitude = 10.0

// Evaluator aggregates unit metrics into plant KPIs and checks the global
// constraint set.
type Evaluator struct {
	Defaults *defaults.Table
	Log      logr.Logger
}

// Outcome is the evaluated KPI block of one solved plant.
type Outcome struct {
	Summary plant.PlantSummary

	// Violations holds one formatted entry per failed check, sorted so
	// identical runs always produce identical output.
	Violations []string

	// ViolationMagnitude sums how far each failed check missed, in its
	// own units. Zero iff Violations is empty up to evaluation failures.
	// The optimizer uses it as a smooth penalty signal.
	ViolationMagnitude float64

	// DistrictHeating is nil for power-only plants.
	DistrictHeating *plant.DistrictHeating
}

// Evaluate computes the summary block, the violation list and, when the
// plant delivers heat, the district-heating block.
func (e *Evaluator) Evaluate(plan *compiler.Plan, rep *solver.Report, rc *plant.RunCase) Outcome {
	var out Outcome
	sum := &out.Summary

	ids := plan.UnitIDs()
	for _, id := range ids {
		m := rep.Metrics[id]
		switch plan.TypeOf(id) {
		case "GasTurbine":
			sum.GTPowerMW += m["shaft_power_MW"]
		case "SteamTurbine":
			sum.STPowerMW += m["shaft_power_MW"]
		}
		sum.FuelInputMW += m["fuel_MW_LHV"]
		sum.HeatOutMWth += m["heat_delivered_MWth"]
		sum.AuxLoadMW += m["aux_power_MW"]
	}
	sum.AuxLoadMW += e.Defaults.Param("auxiliary", "aux_load_MW", 5.0)
	sum.NetPowerMW = sum.GTPowerMW + sum.STPowerMW - sum.AuxLoadMW
	if sum.FuelInputMW > 0 {
		sum.NetEffLHVPct = 100.0 * sum.NetPowerMW / sum.FuelInputMW
	}
	if rc != nil && rc.Pricing != nil {
		p := rc.Pricing
		sum.RevenueUSDH = sum.NetPowerMW*p.PowerUSDMWh +
			sum.HeatOutMWth*p.HeatUSDMWh -
			sum.FuelInputMW*mmBtuPerMWh*p.FuelUSDMMBtu
	}

	out.DistrictHeating = e.districtHeating(plan, rep, ids)

	// Per-unit predicate failures.
	for _, m := range rep.Margins {
		if m.Margin < 0 {
			out.Violations = append(out.Violations,
				fmt.Sprintf("%s.%s >= 0 (margin %.3f)", m.Unit, m.Name, m.Margin))
			out.ViolationMagnitude += -m.Margin
		}
	}

	// Units that could not be evaluated at all.
	for id, msg := range rep.UnitErrors {
		out.Violations = append(out.Violations, fmt.Sprintf("%s evaluation failed: %s", id, msg))
		out.ViolationMagnitude += unitErrorMagnitude
	}

	if !rep.Balance.Converged {
		out.Violations = append(out.Violations,
			fmt.Sprintf("mass_energy_balance.converged = false (closure_error_pct %.3f)", rep.Balance.ClosureErrorPct))
		out.ViolationMagnitude += rep.Balance.ClosureErrorPct
	}

	globals, globalMag := e.globalViolations(plan, rep, rc, sum, out.DistrictHeating, ids)
	out.Violations = append(out.Violations, globals...)
	out.ViolationMagnitude += globalMag

	sort.Strings(out.Violations)
	e.Log.V(logging.DEBUG).Info("kpi evaluated",
		"net_power_MW", sum.NetPowerMW,
		"net_eff_LHV_pct", sum.NetEffLHVPct,
		"violations", len(out.Violations))
	return out
}

// districtHeating assembles the CHP block when the plant has a hot-water
// delivery loop. With several exchangers or tanks the first in plan order
// provides the temperatures and state of charge.
func (e *Evaluator) districtHeating(plan *compiler.Plan, rep *solver.Report, ids []string) *plant.DistrictHeating {
	dh := &plant.DistrictHeating{SOC: e.Defaults.Param("ThermalStorageTank", "soc_init", 0.5)}
	found := false
	socSet := false
	for _, id := range ids {
		switch plan.TypeOf(id) {
		case "HotWaterHX":
			if !found {
				dh.HeatSupplyC = rep.Metrics[id]["supply_T_C"]
				dh.HeatReturnC = rep.Metrics[id]["return_T_C"]
				found = true
			}
		case "ThermalStorageTank":
			if !socSet {
				dh.SOC = rep.Metrics[id]["soc"]
				socSet = true
			}
		}
	}
	if !found {
		return nil
	}
	return dh
}

// globalViolations checks the plant-wide constraint set: the built-in
// named limits from the defaults table and any paths the run case adds.
// Run-case entries override built-in thresholds of the same name.
func (e *Evaluator) globalViolations(plan *compiler.Plan, rep *solver.Report, rc *plant.RunCase, sum *plant.PlantSummary, dh *plant.DistrictHeating, ids []string) ([]string, float64) {
	var out []string
	mag := 0.0

	limit := func(name string, fallback float64) float64 {
		if rc != nil {
			if v, ok := rc.Constraints[name]; ok {
				return v
			}
		}
		return e.Defaults.Constraint(name, fallback)
	}

	// Hottest steam-touched metal in the plant, proxied by the HP
	// superheater outlet.
	metalT, hasMetal := 0.0, false
	for _, id := range ids {
		if plan.TypeOf(id) == "HRSG" {
			if t, ok := rep.Metrics[id]["hp_steam_T_C"]; ok {
				hasMetal = true
				if t > metalT {
					metalT = t
				}
			}
		}
	}
	if hasMetal {
		if lim := limit("METAL_max_T_C", 600.0); metalT > lim {
			out = append(out, fmt.Sprintf("METAL_max_T_C <= %.1f (value %.3f)", lim, metalT))
			mag += metalT - lim
		}
	}

	if dh != nil {
		if lim := limit("DHN_supply_min_C", 110.0); dh.HeatSupplyC < lim {
			out = append(out, fmt.Sprintf("DHN_supply_min_C >= %.1f (value %.3f)", lim, dh.HeatSupplyC))
			mag += lim - dh.HeatSupplyC
		}
		if lim := limit("DHN_return_max_C", 80.0); dh.HeatReturnC > lim {
			out = append(out, fmt.Sprintf("DHN_return_max_C <= %.1f (value %.3f)", lim, dh.HeatReturnC))
			mag += dh.HeatReturnC - lim
		}
	}

	if rc == nil {
		return out, mag
	}
	names := make([]string, 0, len(rc.Constraints))
	for name := range rc.Constraints {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		switch name {
		case "METAL_max_T_C", "DHN_supply_min_C", "DHN_return_max_C":
			continue // already applied as threshold overrides
		}
		threshold := rc.Constraints[name]
		value, ok := e.resolve(name, rep, sum)
		if !ok {
			out = append(out, fmt.Sprintf("constraint %s: path does not resolve", name))
			mag += 1.0
			continue
		}
		if upperBound(name) {
			if value > threshold {
				out = append(out, fmt.Sprintf("%s <= %.3f (value %.3f)", name, threshold, value))
				mag += value - threshold
			}
		} else if value < threshold {
			out = append(out, fmt.Sprintf("%s >= %.3f (value %.3f)", name, threshold, value))
			mag += threshold - value
		}
	}
	return out, mag
}

// upperBound decides the comparator from the constraint name: a final path
// segment mentioning "max" reads as a ceiling, anything else as a floor.
func upperBound(name string) bool {
	seg := name
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		seg = name[i+1:]
	}
	return strings.Contains(strings.ToLower(seg), "max")
}

// resolve maps a constraint path to its measured value. Three forms are
// accepted: a summary field name ("NET_power_MW"), a unit metric
// ("GT1.shaft_power_MW") and a port state field ("HRSG1.stack.T_C").
func (e *Evaluator) resolve(path string, rep *solver.Report, sum *plant.PlantSummary) (float64, bool) {
	parts := strings.Split(path, ".")
	switch len(parts) {
	case 1:
		return summaryField(sum, parts[0])
	case 2:
		m, ok := rep.Metrics[parts[0]]
		if !ok {
			return 0, false
		}
		v, ok := m[parts[1]]
		return v, ok
	case 3:
		st, ok := rep.States[parts[0]][parts[1]]
		if !ok {
			return 0, false
		}
		switch parts[2] {
		case "T_C":
			return st.TC, true
		case "P_kPa_abs":
			return st.PKPaAbs, true
		case "h_kJ_kg":
			return st.HKJKg, true
		case "m_dot_kg_s":
			return st.MDotKgS, true
		}
	}
	return 0, false
}

func summaryField(sum *plant.PlantSummary, name string) (float64, bool) {
	switch name {
	case "GT_power_MW":
		return sum.GTPowerMW, true
	case "ST_power_MW":
		return sum.STPowerMW, true
	case "AUX_load_MW":
		return sum.AuxLoadMW, true
	case "NET_power_MW":
		return sum.NetPowerMW, true
	case "NET_eff_LHV_pct":
		return sum.NetEffLHVPct, true
	case "fuel_input_MW_LHV":
		return sum.FuelInputMW, true
	case "heat_out_MWth":
		return sum.HeatOutMWth, true
	case "revenue_USD_h":
		return sum.RevenueUSDH, true
	}
	return 0, false
}
