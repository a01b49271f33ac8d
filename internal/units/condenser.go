package units

import (
	"github.com/hbd-flex/thermoplant/api/plant"
	"github.com/hbd-flex/thermoplant/internal/thermo"
)

// Condenser condenses turbine exhaust at the configured vacuum against a
// cooling-water loop. Condensate leaves as saturated liquid; the
// cooling-water outlet temperature is checked against its permit limit.
type Condenser struct{}

func (*Condenser) TypeKey() string { return "Condenser" }

func (*Condenser) ParamSchema() map[string]ParamSpec {
	return map[string]ParamSpec{
		"vacuum_kPa_abs": {Type: ParamFloat, Default: 8.0},
		"cw_in_C":        {Type: ParamFloat, Default: 20.0},
		"cw_out_max_C":   {Type: ParamFloat, Default: 28.0},
		"cw_flow_kg_s":   {Type: ParamFloat, Default: 1800.0},
	}
}

func (*Condenser) Ports(Params) map[string]PortDecl {
	return map[string]PortDecl{
		"steam_in":   {Medium: plant.MediumSteam, Direction: plant.DirectionIn},
		"condensate": {Medium: plant.MediumWater, Direction: plant.DirectionOut},
	}
}

func (c *Condenser) Evaluate(inputs map[string]plant.PortState, params Params, ambient plant.Ambient) (Evaluation, error) {
	in := inputs["steam_in"]
	vacuum := params.Float("vacuum_kPa_abs", 8.0)
	cwIn := params.Float("cw_in_C", 20.0)
	cwFlow := params.Float("cw_flow_kg_s", 1800.0)

	tSat, err := thermo.SatTemperatureC(vacuum)
	if err != nil {
		return Evaluation{}, err
	}
	condensate, err := thermo.State(plant.MediumWater, tSat, vacuum, in.MDotKgS)
	if err != nil {
		return Evaluation{}, err
	}

	dutyKW := in.MDotKgS * (in.HKJKg - condensate.HKJKg)
	if dutyKW < 0 {
		dutyKW = 0
	}
	cwOut := cwIn
	if cwFlow > 0 {
		cwOut = cwIn + dutyKW/(cwFlow*4.186)
	}

	return Evaluation{
		Outputs: map[string]plant.PortState{"condensate": condensate},
		Metrics: map[string]float64{
			"heat_rejected_MW": dutyKW / 1000.0,
			"cw_out_C":         cwOut,
			"condensate_T_C":   tSat,
		},
	}, nil
}

func (*Condenser) Constraints(eval Evaluation, params Params) []Margin {
	cwOutMax := params.Float("cw_out_max_C", 28.0)
	return []Margin{
		{Name: "cw_out_max_C", Margin: cwOutMax - eval.Metrics["cw_out_C"]},
	}
}
