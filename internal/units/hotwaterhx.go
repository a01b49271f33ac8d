package units

import (
	"github.com/hbd-flex/thermoplant/api/plant"
	"github.com/hbd-flex/thermoplant/internal/thermo"
)

// HotWaterHX is a steam-to-hot-water heating condenser: extraction steam
// condenses on the hot side and heats the district-heating return stream.
// The condensate leaves saturated at the steam pressure; the supply
// temperature is checked against the saturation approach.
type HotWaterHX struct{}

func (*HotWaterHX) TypeKey() string { return "HotWaterHX" }

func (*HotWaterHX) ParamSchema() map[string]ParamSpec {
	return map[string]ParamSpec{
		"supply_set_C":      {Type: ParamFloat, Default: 120.0},
		"approach_K":        {Type: ParamFloat, Default: 5.0},
		"return_T_C":        {Type: ParamFloat, Default: 70.0},
		"return_flow_kg_s":  {Type: ParamFloat, Default: 150.0},
		"loop_pressure_kPa": {Type: ParamFloat, Default: 1000.0},
	}
}

func (*HotWaterHX) Ports(Params) map[string]PortDecl {
	return map[string]PortDecl{
		"steam_in":   {Medium: plant.MediumSteam, Direction: plant.DirectionIn},
		"condensate": {Medium: plant.MediumWater, Direction: plant.DirectionOut},
		"return":     {Medium: plant.MediumHotWater, Direction: plant.DirectionIn, Optional: true},
		"supply":     {Medium: plant.MediumHotWater, Direction: plant.DirectionOut},
	}
}

func (hx *HotWaterHX) Evaluate(inputs map[string]plant.PortState, params Params, ambient plant.Ambient) (Evaluation, error) {
	steam := inputs["steam_in"]
	loopP := params.Float("loop_pressure_kPa", 1000.0)

	ret, hasReturn := inputs["return"]
	if !hasReturn {
		var err error
		ret, err = thermo.State(plant.MediumHotWater,
			params.Float("return_T_C", 70.0), loopP, params.Float("return_flow_kg_s", 150.0))
		if err != nil {
			return Evaluation{}, err
		}
	}

	tSat, err := thermo.SatTemperatureC(steam.PKPaAbs)
	if err != nil {
		return Evaluation{}, err
	}
	condensate, err := thermo.State(plant.MediumWater, tSat, steam.PKPaAbs, steam.MDotKgS)
	if err != nil {
		return Evaluation{}, err
	}

	dutyKW := steam.MDotKgS * (steam.HKJKg - condensate.HKJKg)
	if dutyKW < 0 {
		dutyKW = 0
	}

	tSupply := ret.TC
	if ret.MDotKgS > 0 {
		tSupply = ret.TC + dutyKW/(ret.MDotKgS*4.186)
	}
	supply, err := thermo.State(plant.MediumHotWater, tSupply, ret.PKPaAbs, ret.MDotKgS)
	if err != nil {
		return Evaluation{}, err
	}

	return Evaluation{
		Outputs: map[string]plant.PortState{
			"condensate": condensate,
			"supply":     supply,
		},
		Metrics: map[string]float64{
			"heat_delivered_MWth": dutyKW / 1000.0,
			"supply_T_C":          tSupply,
			"return_T_C":          ret.TC,
			"steam_sat_T_C":       tSat,
		},
	}, nil
}

func (*HotWaterHX) Constraints(eval Evaluation, params Params) []Margin {
	approach := params.Float("approach_K", 5.0)
	return []Margin{
		// Supply cannot approach the condensing steam closer than the
		// design approach.
		{Name: "approach_min_K", Margin: (eval.Metrics["steam_sat_T_C"] - eval.Metrics["supply_T_C"]) - approach},
	}
}
