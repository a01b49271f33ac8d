package units

import (
	"github.com/hbd-flex/thermoplant/api/plant"
	"github.com/hbd-flex/thermoplant/internal/thermo"
)

// SteamTurbine is a single expansion stage: isentropic expansion to the
// outlet pressure degraded by an isentropic efficiency, with mechanical
// and generator losses applied to the shaft output. Chains of stages model
// HP/IP/LP sections with extractions taken off intermediate Splitters.
type SteamTurbine struct{}

func (*SteamTurbine) TypeKey() string { return "SteamTurbine" }

func (*SteamTurbine) ParamSchema() map[string]ParamSpec {
	return map[string]ParamSpec{
		"outlet_pressure_kPa":  {Type: ParamFloat, Default: 8.0},
		"eta_isentropic":       {Type: ParamFloat, Default: 0.88},
		"mech_efficiency":      {Type: ParamFloat, Default: 0.985},
		"generator_efficiency": {Type: ParamFloat, Default: 0.985},
		"min_flow_kg_s":        {Type: ParamFloat, Default: 3.0},
		"min_exhaust_quality":  {Type: ParamFloat, Default: 0.85},
	}
}

func (*SteamTurbine) Ports(Params) map[string]PortDecl {
	return map[string]PortDecl{
		"inlet":  {Medium: plant.MediumSteam, Direction: plant.DirectionIn},
		"outlet": {Medium: plant.MediumSteam, Direction: plant.DirectionOut},
	}
}

func (s *SteamTurbine) Evaluate(inputs map[string]plant.PortState, params Params, ambient plant.Ambient) (Evaluation, error) {
	in := inputs["inlet"]
	pOut := params.Float("outlet_pressure_kPa", 8.0)
	etaIs := params.Float("eta_isentropic", 0.88)
	etaMech := params.Float("mech_efficiency", 0.985)
	etaGen := params.Float("generator_efficiency", 0.985)

	hOut, tOut, err := thermo.IsentropicExpansion(in.TC, in.PKPaAbs, in.HKJKg, pOut, etaIs)
	if err != nil {
		return Evaluation{}, err
	}

	powerMW := in.MDotKgS * (in.HKJKg - hOut) * etaMech * etaGen / 1000.0
	quality, err := thermo.Quality(hOut, pOut)
	if err != nil {
		return Evaluation{}, err
	}

	out := plant.PortState{TC: tOut, PKPaAbs: pOut, HKJKg: hOut, MDotKgS: in.MDotKgS, Medium: plant.MediumSteam}
	return Evaluation{
		Outputs: map[string]plant.PortState{"outlet": out},
		Metrics: map[string]float64{
			"shaft_power_MW":   powerMW,
			"inlet_flow_kg_s":  in.MDotKgS,
			"exhaust_quality":  quality,
			"exhaust_T_C":      tOut,
			"enthalpy_drop_kJ": in.HKJKg - hOut,
		},
	}, nil
}

func (*SteamTurbine) Constraints(eval Evaluation, params Params) []Margin {
	minFlow := params.Float("min_flow_kg_s", 3.0)
	minQuality := params.Float("min_exhaust_quality", 0.85)
	return []Margin{
		{Name: "flow_min_kg_s", Margin: eval.Metrics["inlet_flow_kg_s"] - minFlow},
		{Name: "exhaust_quality_min", Margin: eval.Metrics["exhaust_quality"] - minQuality},
	}
}
