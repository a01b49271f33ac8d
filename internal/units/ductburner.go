package units

import (
	"github.com/hbd-flex/thermoplant/api/plant"
	"github.com/hbd-flex/thermoplant/internal/thermo"
)

// DuctBurner fires supplementary fuel into the gas-turbine exhaust to
// raise HRSG inlet temperature to a target, subject to a maximum fuel
// duty. Disabled burners (toggle "enabled") pass the gas through.
type DuctBurner struct{}

func (*DuctBurner) TypeKey() string { return "DuctBurner" }

func (*DuctBurner) ParamSchema() map[string]ParamSpec {
	return map[string]ParamSpec{
		"enabled":        {Type: ParamBool, Default: true},
		"target_T_C":     {Type: ParamFloat, Default: 925.0},
		"fuel_LHV_MJ_kg": {Type: ParamFloat, Default: 47.1},
		"max_fuel_MW":    {Type: ParamFloat, Default: 60.0},
	}
}

func (*DuctBurner) Ports(Params) map[string]PortDecl {
	return map[string]PortDecl{
		"flue_in":  {Medium: plant.MediumGas, Direction: plant.DirectionIn},
		"flue_out": {Medium: plant.MediumGas, Direction: plant.DirectionOut},
	}
}

func (d *DuctBurner) Evaluate(inputs map[string]plant.PortState, params Params, ambient plant.Ambient) (Evaluation, error) {
	in := inputs["flue_in"]
	enabled := params.Bool("enabled", true)
	targetT := params.Float("target_T_C", 925.0)
	lhv := params.Float("fuel_LHV_MJ_kg", 47.1)
	maxFuelMW := params.Float("max_fuel_MW", 60.0)

	if !enabled || in.TC >= targetT || in.MDotKgS <= 0 {
		return Evaluation{
			Outputs: map[string]plant.PortState{"flue_out": in},
			Metrics: map[string]float64{"fuel_MW_LHV": 0, "fuel_MW_requested": 0},
		}, nil
	}

	hTarget, err := thermo.Enthalpy(plant.MediumGas, targetT, in.PKPaAbs)
	if err != nil {
		return Evaluation{}, err
	}
	requestedMW := in.MDotKgS * (hTarget - in.HKJKg) / 1000.0
	fuelMW := requestedMW
	if fuelMW > maxFuelMW {
		fuelMW = maxFuelMW
	}

	hOut := in.HKJKg + fuelMW*1000.0/in.MDotKgS
	tOut, err := thermo.Temperature(plant.MediumGas, hOut, in.PKPaAbs)
	if err != nil {
		return Evaluation{}, err
	}

	fuelFlow := 0.0
	if lhv > 0 {
		fuelFlow = fuelMW / lhv
	}
	out := plant.PortState{
		TC:      tOut,
		PKPaAbs: in.PKPaAbs,
		HKJKg:   hOut,
		MDotKgS: in.MDotKgS + fuelFlow,
		Medium:  plant.MediumGas,
	}
	return Evaluation{
		Outputs: map[string]plant.PortState{"flue_out": out},
		Metrics: map[string]float64{
			"fuel_MW_LHV":       fuelMW,
			"fuel_MW_requested": requestedMW,
			"flue_out_T_C":      tOut,
		},
	}, nil
}

func (*DuctBurner) Constraints(eval Evaluation, params Params) []Margin {
	maxFuelMW := params.Float("max_fuel_MW", 60.0)
	requested := eval.Metrics["fuel_MW_requested"]
	return []Margin{
		// Negative when the target temperature asked for more fuel than
		// the burner can deliver.
		{Name: "fuel_duty_max_MW", Margin: maxFuelMW - requested},
	}
}
