package units

import (
	"math"

	"github.com/hbd-flex/thermoplant/api/plant"
	"github.com/hbd-flex/thermoplant/internal/thermo"
)

// ThermalStorageTank is a hot-water store evaluated at one steady
// operating point. In charge mode it absorbs heat from the loop at the
// configured rate and reports the state of charge the tank would reach
// after one hour of that operation; discharge is symmetric. Hold mode is
// a pass-through.
//
// The SOC predicate evaluates the unclamped end-of-hour SOC, so an
// operating point that would overcharge or fully drain the tank shows up
// as a violation rather than being silently truncated.
type ThermalStorageTank struct{}

func (*ThermalStorageTank) TypeKey() string { return "ThermalStorageTank" }

func (*ThermalStorageTank) ParamSchema() map[string]ParamSpec {
	return map[string]ParamSpec{
		"capacity_MWh":   {Type: ParamFloat, Default: 40.0},
		"soc_init":       {Type: ParamFloat, Default: 0.5},
		"rate_MW":        {Type: ParamFloat, Default: 10.0},
		"mode":           {Type: ParamString, Default: "hold"},
		"min_outlet_T_C": {Type: ParamFloat, Default: 60.0},
	}
}

func (*ThermalStorageTank) Ports(Params) map[string]PortDecl {
	return map[string]PortDecl{
		"in":  {Medium: plant.MediumHotWater, Direction: plant.DirectionIn},
		"out": {Medium: plant.MediumHotWater, Direction: plant.DirectionOut},
	}
}

func (t *ThermalStorageTank) Evaluate(inputs map[string]plant.PortState, params Params, ambient plant.Ambient) (Evaluation, error) {
	in := inputs["in"]
	capacity := params.Float("capacity_MWh", 40.0)
	socInit := params.Float("soc_init", 0.5)
	rate := params.Float("rate_MW", 10.0)
	mode := params.String("mode", "hold")
	minOutT := params.Float("min_outlet_T_C", 60.0)

	chargeMW := 0.0
	switch mode {
	case "charge":
		chargeMW = rate
		// Charging may not pull the loop below its minimum temperature.
		if in.MDotKgS > 0 {
			maxMW := in.MDotKgS * 4.186 * (in.TC - minOutT) / 1000.0
			if maxMW < 0 {
				maxMW = 0
			}
			chargeMW = math.Min(chargeMW, maxMW)
		}
	case "discharge":
		chargeMW = -rate
	}

	tOut := in.TC
	if in.MDotKgS > 0 {
		tOut = in.TC - chargeMW*1000.0/(in.MDotKgS*4.186)
	}
	out, err := thermo.State(plant.MediumHotWater, tOut, in.PKPaAbs, in.MDotKgS)
	if err != nil {
		return Evaluation{}, err
	}

	socRaw := socInit
	if capacity > 0 {
		socRaw = socInit + chargeMW/capacity
	}
	soc := math.Min(math.Max(socRaw, 0), 1)

	return Evaluation{
		Outputs: map[string]plant.PortState{"out": out},
		Metrics: map[string]float64{
			"soc":       soc,
			"soc_raw":   socRaw,
			"charge_MW": chargeMW,
		},
	}, nil
}

func (*ThermalStorageTank) Constraints(eval Evaluation, params Params) []Margin {
	socRaw := eval.Metrics["soc_raw"]
	return []Margin{
		{Name: "soc_range", Margin: math.Min(socRaw, 1-socRaw)},
	}
}
