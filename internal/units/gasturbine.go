package units

import (
	"github.com/hbd-flex/thermoplant/api/plant"
	"github.com/hbd-flex/thermoplant/internal/thermo"
)

// GasTurbine models an open-cycle machine: electrical output derated with
// ambient temperature, fuel demand from an LHV efficiency, and an exhaust
// gas state that scales with load.
type GasTurbine struct{}

func (*GasTurbine) TypeKey() string { return "GasTurbine" }

func (*GasTurbine) ParamSchema() map[string]ParamSpec {
	return map[string]ParamSpec{
		"load_pct":          {Type: ParamFloat, Default: 100.0},
		"iso_rating_MW":     {Type: ParamFloat, Default: 45.0},
		"eta_LHV_pct":       {Type: ParamFloat, Default: 36.5},
		"exhaust_flow_kg_s": {Type: ParamFloat, Default: 125.0},
		"exhaust_T_C":       {Type: ParamFloat, Default: 545.0},
		"fuel_LHV_MJ_kg":    {Type: ParamFloat, Default: 47.1},
		"min_load_pct":      {Type: ParamFloat, Default: 40.0},
		"derate_pct_per_K":  {Type: ParamFloat, Default: 0.5},
	}
}

func (*GasTurbine) Ports(Params) map[string]PortDecl {
	return map[string]PortDecl{
		"fuel":    {Medium: plant.MediumFuelGas, Direction: plant.DirectionIn, Optional: true},
		"exhaust": {Medium: plant.MediumGas, Direction: plant.DirectionOut},
	}
}

func (g *GasTurbine) Evaluate(inputs map[string]plant.PortState, params Params, ambient plant.Ambient) (Evaluation, error) {
	load := params.Float("load_pct", 100.0)
	rating := params.Float("iso_rating_MW", 45.0)
	etaPct := params.Float("eta_LHV_pct", 36.5)
	exhaustFlow := params.Float("exhaust_flow_kg_s", 125.0)
	exhaustT := params.Float("exhaust_T_C", 545.0)
	lhv := params.Float("fuel_LHV_MJ_kg", 47.1)
	derate := params.Float("derate_pct_per_K", 0.5)

	// ISO rating holds at 15 C; hot ambients cost derate_pct_per_K of
	// output per kelvin above that.
	powerMW := rating * (load / 100.0) * (1.0 - derate/100.0*(ambient.TC-15.0))
	if powerMW < 0 {
		powerMW = 0
	}
	fuelMW := 0.0
	if etaPct > 0 {
		fuelMW = powerMW / (etaPct / 100.0)
	}
	fuelFlow := 0.0
	if lhv > 0 {
		fuelFlow = fuelMW / lhv
	}

	// A connected fuel stream caps the machine at what the supply can
	// deliver; left unconnected, fuel is assumed available on demand.
	if fuel, ok := inputs["fuel"]; ok && fuel.MDotKgS > 0 {
		if availMW := fuel.MDotKgS * lhv; availMW < fuelMW {
			fuelMW = availMW
			fuelFlow = fuel.MDotKgS
			powerMW = fuelMW * etaPct / 100.0
		}
	}

	// Exhaust flow follows inlet guide vanes: roughly 40 % of nominal at
	// zero load, linear up to full flow. Firing temperature drops at part
	// load, pulling exhaust temperature down with it.
	mExhaust := exhaustFlow * (0.4 + 0.6*load/100.0)
	tExhaust := exhaustT - 0.45*(100.0-load)

	exhaust, err := thermo.State(plant.MediumGas, tExhaust, ambient.PKPaAbs, mExhaust)
	if err != nil {
		return Evaluation{}, err
	}
	return Evaluation{
		Outputs: map[string]plant.PortState{"exhaust": exhaust},
		Metrics: map[string]float64{
			"shaft_power_MW": powerMW,
			"fuel_MW_LHV":    fuelMW,
			"fuel_flow_kg_s": fuelFlow,
			"exhaust_T_C":    tExhaust,
		},
	}, nil
}

func (*GasTurbine) Constraints(eval Evaluation, params Params) []Margin {
	load := params.Float("load_pct", 100.0)
	minLoad := params.Float("min_load_pct", 40.0)
	return []Margin{
		{Name: "load_min_pct", Margin: load - minLoad},
		{Name: "load_max_pct", Margin: 100.0 - load},
	}
}
