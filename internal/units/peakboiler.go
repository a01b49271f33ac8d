package units

import (
	"github.com/hbd-flex/thermoplant/api/plant"
	"github.com/hbd-flex/thermoplant/internal/thermo"
)

// PeakBoilerHW tops the hot-water supply up to its set temperature when
// the upstream heat exchangers fall short, burning fuel at a boiler
// efficiency and limited by a maximum thermal duty.
type PeakBoilerHW struct{}

func (*PeakBoilerHW) TypeKey() string { return "PeakBoilerHW" }

func (*PeakBoilerHW) ParamSchema() map[string]ParamSpec {
	return map[string]ParamSpec{
		"enabled":        {Type: ParamBool, Default: true},
		"supply_set_C":   {Type: ParamFloat, Default: 120.0},
		"eta_LHV":        {Type: ParamFloat, Default: 0.92},
		"max_duty_MWth":  {Type: ParamFloat, Default: 30.0},
		"fuel_LHV_MJ_kg": {Type: ParamFloat, Default: 47.1},
	}
}

func (*PeakBoilerHW) Ports(Params) map[string]PortDecl {
	return map[string]PortDecl{
		"in":  {Medium: plant.MediumHotWater, Direction: plant.DirectionIn},
		"out": {Medium: plant.MediumHotWater, Direction: plant.DirectionOut},
	}
}

func (b *PeakBoilerHW) Evaluate(inputs map[string]plant.PortState, params Params, ambient plant.Ambient) (Evaluation, error) {
	in := inputs["in"]
	enabled := params.Bool("enabled", true)
	setC := params.Float("supply_set_C", 120.0)
	eta := params.Float("eta_LHV", 0.92)
	maxDuty := params.Float("max_duty_MWth", 30.0)

	requestedMW := 0.0
	if enabled && in.TC < setC && in.MDotKgS > 0 {
		requestedMW = in.MDotKgS * 4.186 * (setC - in.TC) / 1000.0
	}
	dutyMW := requestedMW
	if dutyMW > maxDuty {
		dutyMW = maxDuty
	}

	tOut := in.TC
	if in.MDotKgS > 0 {
		tOut = in.TC + dutyMW*1000.0/(in.MDotKgS*4.186)
	}
	out, err := thermo.State(plant.MediumHotWater, tOut, in.PKPaAbs, in.MDotKgS)
	if err != nil {
		return Evaluation{}, err
	}

	fuelMW := 0.0
	if eta > 0 {
		fuelMW = dutyMW / eta
	}
	return Evaluation{
		Outputs: map[string]plant.PortState{"out": out},
		Metrics: map[string]float64{
			"heat_delivered_MWth": dutyMW,
			"duty_requested_MWth": requestedMW,
			"fuel_MW_LHV":         fuelMW,
			"supply_T_C":          tOut,
		},
	}, nil
}

func (*PeakBoilerHW) Constraints(eval Evaluation, params Params) []Margin {
	maxDuty := params.Float("max_duty_MWth", 30.0)
	return []Margin{
		{Name: "duty_max_MWth", Margin: maxDuty - eval.Metrics["duty_requested_MWth"]},
	}
}
