package kpi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hbd-flex/thermoplant/api/plant"
	"github.com/hbd-flex/thermoplant/internal/compiler"
	"github.com/hbd-flex/thermoplant/internal/defaults"
	"github.com/hbd-flex/thermoplant/internal/solver"
	"github.com/hbd-flex/thermoplant/internal/units"
)

func solvePlant(t *testing.T, us []plant.Unit, ss []plant.Stream) (*compiler.Plan, *solver.Report, *Evaluator) {
	t.Helper()
	tbl, err := defaults.Builtin()
	require.NoError(t, err)
	g := &plant.PlantGraph{Ambient: plant.DefaultAmbient(), Units: us, Streams: ss}
	p, err := compiler.Compile(g, units.Builtin(), tbl, nil)
	require.NoError(t, err)
	rep, err := solver.Solve(context.Background(), p, solver.Options{})
	require.NoError(t, err)
	return p, rep, &Evaluator{Defaults: tbl}
}

func ccgtUnits(gtParams map[string]any) []plant.Unit {
	return []plant.Unit{
		{ID: "GT1", Type: "GasTurbine", Params: gtParams},
		{ID: "HRSG1", Type: "HRSG", Params: map[string]any{"lp_enabled": false}},
		{ID: "ST1", Type: "SteamTurbine"},
		{ID: "COND1", Type: "Condenser"},
	}
}

var ccgtStreams = []plant.Stream{
	{From: "GT1.exhaust", To: "HRSG1.flue_in"},
	{From: "HRSG1.hp_steam", To: "ST1.inlet"},
	{From: "ST1.outlet", To: "COND1.steam_in"},
}

func Test_Evaluate_SummaryAggregation(t *testing.T) {
	p, rep, ev := solvePlant(t, ccgtUnits(nil), ccgtStreams)

	rc := &plant.RunCase{
		Mode:      plant.ModeSimulate,
		Objective: plant.ObjectiveMaxRevenue,
		Pricing:   &plant.Pricing{PowerUSDMWh: 55.0, HeatUSDMWh: 25.0, FuelUSDMMBtu: 3.5},
	}
	out := ev.Evaluate(p, rep, rc)
	sum := out.Summary

	assert.InDelta(t, 41.625, sum.GTPowerMW, 1e-9)
	assert.Greater(t, sum.STPowerMW, 3.0)
	assert.InDelta(t, 114.0, sum.FuelInputMW, 1.0)
	assert.InDelta(t, 5.0, sum.AuxLoadMW, 1e-9)
	assert.InDelta(t, sum.GTPowerMW+sum.STPowerMW-sum.AuxLoadMW, sum.NetPowerMW, 1e-9)
	assert.InDelta(t, 100.0*sum.NetPowerMW/sum.FuelInputMW, sum.NetEffLHVPct, 1e-9)

	wantRevenue := sum.NetPowerMW*55.0 + sum.HeatOutMWth*25.0 - sum.FuelInputMW*3.412*3.5
	assert.InDelta(t, wantRevenue, sum.RevenueUSDH, 1e-9)

	assert.Empty(t, out.Violations)
	assert.Zero(t, out.ViolationMagnitude)
	assert.Nil(t, out.DistrictHeating, "power-only plant has no district heating block")
}

func Test_Evaluate_UnitPredicateViolation(t *testing.T) {
	p, rep, ev := solvePlant(t, ccgtUnits(map[string]any{"load_pct": 30.0}), ccgtStreams)

	out := ev.Evaluate(p, rep, nil)
	assert.Contains(t, out.Violations, "GT1.load_min_pct >= 0 (margin -10.000)")
	assert.GreaterOrEqual(t, out.ViolationMagnitude, 10.0)
}

func Test_Evaluate_GlobalConstraints(t *testing.T) {
	p, rep, ev := solvePlant(t, ccgtUnits(nil), ccgtStreams)

	rc := &plant.RunCase{
		Mode:      plant.ModeSimulate,
		Objective: plant.ObjectiveMaxPower,
		Constraints: map[string]float64{
			"NET_power_MW":       1000.0, // floor well above what the plant makes
			"GT1.shaft_power_MW": 10.0,   // satisfied floor
			"METAL_max_T_C":      500.0,  // tightened ceiling, HP steam runs 540
			"no.such.path":       1.0,
		},
	}
	out := ev.Evaluate(p, rep, rc)

	assert.Contains(t, out.Violations, "constraint no.such.path: path does not resolve")

	foundNet, foundMetal := false, false
	for _, v := range out.Violations {
		if len(v) >= 12 && v[:12] == "NET_power_MW" {
			foundNet = true
		}
		if len(v) >= 13 && v[:13] == "METAL_max_T_C" {
			foundMetal = true
		}
		assert.NotContains(t, v, "GT1.shaft_power_MW")
	}
	assert.True(t, foundNet, "expected NET_power_MW floor violation, got %v", out.Violations)
	assert.True(t, foundMetal, "expected METAL_max_T_C ceiling violation, got %v", out.Violations)
	assert.Greater(t, out.ViolationMagnitude, 40.0, "metal excess alone is 40 K")
}

func Test_Evaluate_DistrictHeatingBlock(t *testing.T) {
	p, rep, ev := solvePlant(t,
		[]plant.Unit{
			{ID: "GT1", Type: "GasTurbine"},
			{ID: "HRSG1", Type: "HRSG", Params: map[string]any{"lp_enabled": false}},
			{ID: "HX1", Type: "HotWaterHX"},
		},
		[]plant.Stream{
			{From: "GT1.exhaust", To: "HRSG1.flue_in"},
			{From: "HRSG1.hp_steam", To: "HX1.steam_in"},
		},
	)

	out := ev.Evaluate(p, rep, nil)
	require.NotNil(t, out.DistrictHeating)
	assert.InDelta(t, 0.5, out.DistrictHeating.SOC, 1e-9)
	assert.InDelta(t, 70.0, out.DistrictHeating.HeatReturnC, 1e-9)
	assert.Greater(t, out.DistrictHeating.HeatSupplyC, 110.0)
	assert.Greater(t, out.Summary.HeatOutMWth, 10.0)
	assert.Empty(t, out.Violations)
}

func Test_Evaluate_ViolationsAreSorted(t *testing.T) {
	p, rep, ev := solvePlant(t, ccgtUnits(map[string]any{"load_pct": 120.0}), ccgtStreams)

	rc := &plant.RunCase{
		Mode:        plant.ModeSimulate,
		Objective:   plant.ObjectiveMaxPower,
		Constraints: map[string]float64{"NET_power_MW": 1000.0},
	}
	out := ev.Evaluate(p, rep, rc)
	require.NotEmpty(t, out.Violations)
	assert.IsNonDecreasing(t, out.Violations)
}

func Test_UpperBound(t *testing.T) {
	assert.True(t, upperBound("METAL_max_T_C"))
	assert.True(t, upperBound("DHN_return_max_C"))
	assert.True(t, upperBound("COND1.cw_out_max_C"))
	assert.False(t, upperBound("DHN_supply_min_C"))
	assert.False(t, upperBound("NET_power_MW"))
	assert.False(t, upperBound("GT1.shaft_power_MW"))
}
