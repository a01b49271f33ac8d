package units

import (
	"github.com/hbd-flex/thermoplant/api/plant"
)

// Pump raises liquid pressure. The enthalpy rise uses the incompressible
// approximation h2 - h1 = v dP / eta with v = 0.001 m3/kg; the electrical
// demand is reported as auxiliary load.
type Pump struct{}

func (*Pump) TypeKey() string { return "Pump" }

func (*Pump) ParamSchema() map[string]ParamSpec {
	return map[string]ParamSpec{
		"discharge_pressure_kPa": {Type: ParamFloat, Default: 10500.0},
		"eta":                    {Type: ParamFloat, Default: 0.75},
	}
}

func (*Pump) Ports(Params) map[string]PortDecl {
	return map[string]PortDecl{
		"suction":   {Medium: plant.MediumWater, Direction: plant.DirectionIn},
		"discharge": {Medium: plant.MediumWater, Direction: plant.DirectionOut},
	}
}

func (p *Pump) Evaluate(inputs map[string]plant.PortState, params Params, ambient plant.Ambient) (Evaluation, error) {
	in := inputs["suction"]
	pOut := params.Float("discharge_pressure_kPa", 10500.0)
	eta := params.Float("eta", 0.75)

	dP := pOut - in.PKPaAbs
	if dP < 0 {
		dP = 0
		pOut = in.PKPaAbs
	}
	dh := 0.0
	if eta > 0 {
		dh = 0.001 * dP / eta
	}

	hOut := in.HKJKg + dh
	out := plant.PortState{
		TC:      hOut / 4.186,
		PKPaAbs: pOut,
		HKJKg:   hOut,
		MDotKgS: in.MDotKgS,
		Medium:  plant.MediumWater,
	}
	return Evaluation{
		Outputs: map[string]plant.PortState{"discharge": out},
		Metrics: map[string]float64{
			"aux_power_MW":    in.MDotKgS * dh / 1000.0,
			"suction_P_kPa":   in.PKPaAbs,
			"discharge_P_kPa": pOut,
		},
	}, nil
}

func (*Pump) Constraints(eval Evaluation, params Params) []Margin {
	// Crude cavitation guard: suction must stay above 5 kPa absolute.
	return []Margin{
		{Name: "suction_P_min_kPa", Margin: eval.Metrics["suction_P_kPa"] - 5.0},
	}
}
