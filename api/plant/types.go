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

// Package plant defines the data contracts shared between the engine core
// and its external collaborators (editor UI, transport, report export).
//
// All thermodynamic values use SI units and absolute pressure: temperatures
// in degrees Celsius, pressures in kPa absolute, specific enthalpies in
// kJ/kg, mass flows in kg/s.
package plant

import (
	"fmt"
	"strings"
)

// Medium identifies the working fluid carried by a port or stream.
type Medium string

const (
	MediumGas      Medium = "gas"
	MediumSteam    Medium = "steam"
	MediumWater    Medium = "water"
	MediumHotWater Medium = "hot_water"
	MediumFuelGas  Medium = "fuel_gas"
)

// KnownMedia lists every medium the property resolver supports.
var KnownMedia = []Medium{MediumGas, MediumSteam, MediumWater, MediumHotWater, MediumFuelGas}

// Valid reports whether m is one of the supported media.
func (m Medium) Valid() bool {
	for _, k := range KnownMedia {
		if m == k {
			return true
		}
	}
	return false
}

// PortDirection is the declared flow direction of a unit port.
type PortDirection string

const (
	DirectionIn  PortDirection = "in"
	DirectionOut PortDirection = "out"
)

// Ambient holds the site boundary conditions a run is evaluated against.
type Ambient struct {
	// TC is the dry-bulb ambient temperature in Celsius.
	TC float64 `json:"T_C" yaml:"T_C"`

	// RHPct is the relative humidity in percent.
	RHPct float64 `json:"RH_pct" yaml:"RH_pct"`

	// PKPaAbs is the absolute barometric pressure in kPa.
	PKPaAbs float64 `json:"P_kPa_abs" yaml:"P_kPa_abs"`
}

// DefaultAmbient returns the ISO-ish site conditions used when a graph
// omits the ambient block.
func DefaultAmbient() Ambient {
	return Ambient{TC: 30.0, RHPct: 60.0, PKPaAbs: 101.3}
}

// Unit is a single equipment model instance in the plant graph.
type Unit struct {
	// ID uniquely identifies the unit within its graph.
	ID string `json:"id"`

	// Type is the plugin registry key (e.g. "GasTurbine", "HRSG").
	Type string `json:"type"`

	// Params are the unit parameters, validated against the plugin's
	// declared parameter schema and merged with type defaults.
	Params map[string]any `json:"params,omitempty"`
}

// Stream is a directed edge connecting an output port to an input port.
// Endpoints use "<unitId>.<portId>" notation.
type Stream struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Endpoint splits a "<unitId>.<portId>" reference into its parts.
func Endpoint(ref string) (unitID, portID string, err error) {
	i := strings.IndexByte(ref, '.')
	if i <= 0 || i == len(ref)-1 {
		return "", "", fmt.Errorf("malformed port reference %q, want \"<unitId>.<portId>\"", ref)
	}
	return ref[:i], ref[i+1:], nil
}

// PlantGraph is the immutable topology input: units connected by streams
// under a set of ambient conditions. It is never mutated after compilation.
type PlantGraph struct {
	Meta    map[string]any `json:"meta,omitempty"`
	Ambient Ambient        `json:"ambient"`
	Units   []Unit         `json:"units"`
	Streams []Stream       `json:"streams"`
}

// Pricing carries the commodity prices used by the revenue KPI and the
// max_revenue objective.
type Pricing struct {
	PowerUSDMWh  float64 `json:"power_USD_MWh"`
	HeatUSDMWh   float64 `json:"heat_USD_MWh"`
	FuelUSDMMBtu float64 `json:"fuel_USD_MMBtu"`
}

// RunMode selects between a single steady-state evaluation and a
// decision-variable search.
type RunMode string

const (
	ModeSimulate RunMode = "simulate"
	ModeOptimize RunMode = "optimize"
)

// Objective names the quantity the optimizer drives.
type Objective string

const (
	ObjectiveMaxPower      Objective = "max_power"
	ObjectiveMinHeatRate   Objective = "min_heat_rate"
	ObjectiveMaxEfficiency Objective = "max_efficiency"
	ObjectiveMaxRevenue    Objective = "max_revenue"
)

// RunCase describes one operating point request: the mode, the objective,
// decision-variable bounds, named inequality constraints and plugin toggles.
type RunCase struct {
	Mode      RunMode   `json:"mode"`
	Objective Objective `json:"objective"`

	// Pricing is required when Objective is max_revenue.
	Pricing *Pricing `json:"pricing,omitempty"`

	// Bounds maps decision-variable dotted paths ("<unitId>.<param>")
	// to [min, max] intervals.
	Bounds map[string][2]float64 `json:"bounds,omitempty"`

	// Constraints maps named inequality paths to thresholds. Keys whose
	// last segment mentions "max" are upper bounds; everything else is a
	// lower bound.
	Constraints map[string]float64 `json:"constraints,omitempty"`

	// Toggles are boolean switches consulted by specific plugins,
	// keyed "<unitId>.<switch>" (e.g. "DB1.enabled").
	Toggles map[string]bool `json:"toggles,omitempty"`
}

// Validate checks the structural sanity of a run case before any numeric
// work starts.
func (rc *RunCase) Validate() error {
	switch rc.Mode {
	case ModeSimulate, ModeOptimize:
	default:
		return fmt.Errorf("unknown run mode %q", rc.Mode)
	}
	switch rc.Objective {
	case ObjectiveMaxPower, ObjectiveMinHeatRate, ObjectiveMaxEfficiency:
	case ObjectiveMaxRevenue:
		if rc.Pricing == nil {
			return fmt.Errorf("objective %q requires pricing", rc.Objective)
		}
	default:
		return fmt.Errorf("unknown objective %q", rc.Objective)
	}
	for path, b := range rc.Bounds {
		if b[0] > b[1] {
			return fmt.Errorf("bounds for %q are inverted: [%g, %g]", path, b[0], b[1])
		}
	}
	if rc.Mode == ModeOptimize && len(rc.Bounds) == 0 {
		return fmt.Errorf("optimize mode requires at least one bounds entry")
	}
	return nil
}

// PortState is the full steady-state condition at one unit port. A fresh
// snapshot is produced on every solver pass; states are never patched in
// place.
type PortState struct {
	TC      float64 `json:"T_C"`
	PKPaAbs float64 `json:"P_kPa_abs"`
	HKJKg   float64 `json:"h_kJ_kg"`
	MDotKgS float64 `json:"m_dot_kg_s"`
	Medium  Medium  `json:"medium"`
}

// PlantSummary is the aggregate KPI block of a Result.
type PlantSummary struct {
	GTPowerMW    float64 `json:"GT_power_MW"`
	STPowerMW    float64 `json:"ST_power_MW"`
	AuxLoadMW    float64 `json:"AUX_load_MW"`
	NetPowerMW   float64 `json:"NET_power_MW"`
	NetEffLHVPct float64 `json:"NET_eff_LHV_pct"`
	FuelInputMW  float64 `json:"fuel_input_MW_LHV"`
	HeatOutMWth  float64 `json:"heat_out_MWth"`
	RevenueUSDH  float64 `json:"revenue_USD_h"`
}

// MassEnergyBalance reports how well the recycle iteration closed.
type MassEnergyBalance struct {
	// ClosureErrorPct is the worst remaining mass/energy residual as a
	// percentage of the dominant through-flow. Always non-negative.
	ClosureErrorPct float64 `json:"closure_error_pct"`

	// Converged is false when any recycle group exhausted its iteration
	// cap. Callers must check this before trusting the summary.
	Converged bool `json:"converged"`

	// Iterations is the largest iteration count over all recycle groups,
	// or 1 for a purely acyclic graph.
	Iterations int `json:"iterations"`
}

// DistrictHeating is the optional CHP-side KPI block, present when the
// graph contains a hot-water delivery loop.
type DistrictHeating struct {
	// SOC is the thermal-storage state of charge in [0, 1].
	SOC float64 `json:"DHN_SOC"`

	HeatSupplyC float64 `json:"heat_supply_C"`
	HeatReturnC float64 `json:"heat_return_C"`
}

// Meta carries result provenance: when the run happened, which solver
// build produced it, and a content hash of the compiled plant graph.
type Meta struct {
	TimestampUTC  string `json:"timestamp_utc"`
	SolverVersion string `json:"solver_version"`
	RunID         string `json:"run_id"`
	PlantHash     string `json:"plant_hash"`
}

// Result is the complete output contract of one simulate or optimize run.
type Result struct {
	Summary PlantSummary `json:"summary"`

	// Violations holds one formatted entry per failed constraint
	// predicate, in deterministic order. Empty means fully feasible.
	Violations []string `json:"violations"`

	// UnitStates maps unit id -> port id -> the port's final PortState.
	UnitStates map[string]map[string]PortState `json:"unit_states"`

	MassEnergyBalance MassEnergyBalance `json:"mass_energy_balance"`

	// DistrictHeating is nil for power-only plants.
	DistrictHeating *DistrictHeating `json:"district_heating,omitempty"`

	Meta Meta `json:"meta"`
}
