package units

import (
	"github.com/hbd-flex/thermoplant/api/plant"
	"github.com/hbd-flex/thermoplant/internal/thermo"
)

// HRSG is a multi-pressure heat recovery steam generator. Steam production
// is pinch-limited section by section: the HP superheater/evaporator may
// only cool the gas down to HP saturation plus the pinch, the HP
// economizer then draws its duty below the pinch point, and the optional
// LP section repeats the same construction at its own pressure. The stack
// temperature is whatever gas temperature remains, checked against the
// acid dew-point floor.
type HRSG struct{}

func (*HRSG) TypeKey() string { return "HRSG" }

func (*HRSG) ParamSchema() map[string]ParamSpec {
	return map[string]ParamSpec{
		"hp_pressure_kPa": {Type: ParamFloat, Default: 10000.0},
		"hp_steam_T_C":    {Type: ParamFloat, Default: 540.0},
		"lp_enabled":      {Type: ParamBool, Default: true},
		"lp_pressure_kPa": {Type: ParamFloat, Default: 500.0},
		"pinch_K":         {Type: ParamFloat, Default: 10.0},
		"approach_K":      {Type: ParamFloat, Default: 5.0},
		"stack_T_min_C":   {Type: ParamFloat, Default: 90.0},
		"feedwater_T_C":   {Type: ParamFloat, Default: 60.0},
	}
}

func (*HRSG) Ports(params Params) map[string]PortDecl {
	ports := map[string]PortDecl{
		"flue_in":   {Medium: plant.MediumGas, Direction: plant.DirectionIn},
		"feedwater": {Medium: plant.MediumWater, Direction: plant.DirectionIn, Optional: true},
		"hp_steam":  {Medium: plant.MediumSteam, Direction: plant.DirectionOut},
		"stack":     {Medium: plant.MediumGas, Direction: plant.DirectionOut},
	}
	if params.Bool("lp_enabled", true) {
		ports["lp_steam"] = PortDecl{Medium: plant.MediumSteam, Direction: plant.DirectionOut}
	}
	return ports
}

// section computes steam production for one pressure level: gas is cooled
// from hGasIn down to saturation plus pinch for superheat+evaporation,
// then the economizer duty is drawn on top. Returns the steam state and
// the gas enthalpy after the section.
func hrsgSection(flue plant.PortState, hGasIn float64, pKPa, tSteamC, pinchK, hFeedwater float64) (steam plant.PortState, hGasOut float64, err error) {
	tSat, err := thermo.SatTemperatureC(pKPa)
	if err != nil {
		return plant.PortState{}, 0, err
	}
	tSteam := tSteamC
	if tSteam < tSat {
		tSteam = tSat
	}
	hSteam, err := thermo.Enthalpy(plant.MediumSteam, tSteam, pKPa)
	if err != nil {
		return plant.PortState{}, 0, err
	}

	hGasPinch, err := thermo.Enthalpy(plant.MediumGas, tSat+pinchK, flue.PKPaAbs)
	if err != nil {
		return plant.PortState{}, 0, err
	}
	availKW := flue.MDotKgS * (hGasIn - hGasPinch)
	if availKW <= 0 || flue.MDotKgS <= 0 {
		// Gas too cold for this pressure level: no production.
		steam = plant.PortState{TC: tSteam, PKPaAbs: pKPa, HKJKg: hSteam, MDotKgS: 0, Medium: plant.MediumSteam}
		return steam, hGasIn, nil
	}

	hfSat := 4.186 * tSat
	mSteam := availKW / (hSteam - hfSat)

	econKW := mSteam * (hfSat - hFeedwater)
	if econKW < 0 {
		econKW = 0
	}
	hGasOut = hGasPinch - econKW/flue.MDotKgS

	steam = plant.PortState{TC: tSteam, PKPaAbs: pKPa, HKJKg: hSteam, MDotKgS: mSteam, Medium: plant.MediumSteam}
	return steam, hGasOut, nil
}

func (h *HRSG) Evaluate(inputs map[string]plant.PortState, params Params, ambient plant.Ambient) (Evaluation, error) {
	flue := inputs["flue_in"]
	hpP := params.Float("hp_pressure_kPa", 10000.0)
	hpT := params.Float("hp_steam_T_C", 540.0)
	lpEnabled := params.Bool("lp_enabled", true)
	lpP := params.Float("lp_pressure_kPa", 500.0)
	pinch := params.Float("pinch_K", 10.0)
	approach := params.Float("approach_K", 5.0)

	// Feedwater falls back to the documented default condition when the
	// port is unconnected (open-loop models without a condensate return).
	fw, hasFW := inputs["feedwater"]
	if !hasFW {
		var err error
		fw, err = thermo.State(plant.MediumWater, params.Float("feedwater_T_C", 60.0), hpP, 0)
		if err != nil {
			return Evaluation{}, err
		}
	}

	// HP steam temperature is capped by the gas inlet less the terminal
	// approach.
	tHP := hpT
	if limit := flue.TC - approach; limit < tHP {
		tHP = limit
	}

	hpSteam, hGas, err := hrsgSection(flue, flue.HKJKg, hpP, tHP, pinch, fw.HKJKg)
	if err != nil {
		return Evaluation{}, err
	}
	outputs := map[string]plant.PortState{"hp_steam": hpSteam}

	mLP := 0.0
	if lpEnabled {
		tSatLP, err := thermo.SatTemperatureC(lpP)
		if err != nil {
			return Evaluation{}, err
		}
		lpSteam, hGasLP, err := hrsgSection(flue, hGas, lpP, tSatLP+10.0, pinch, fw.HKJKg)
		if err != nil {
			return Evaluation{}, err
		}
		outputs["lp_steam"] = lpSteam
		mLP = lpSteam.MDotKgS
		hGas = hGasLP
	}

	tStack, err := thermo.Temperature(plant.MediumGas, hGas, flue.PKPaAbs)
	if err != nil {
		return Evaluation{}, err
	}
	stack := plant.PortState{TC: tStack, PKPaAbs: flue.PKPaAbs, HKJKg: hGas, MDotKgS: flue.MDotKgS, Medium: plant.MediumGas}
	outputs["stack"] = stack

	tSatHP, err := thermo.SatTemperatureC(hpP)
	if err != nil {
		return Evaluation{}, err
	}

	return Evaluation{
		Outputs: outputs,
		Metrics: map[string]float64{
			"heat_recovered_MW":  flue.MDotKgS * (flue.HKJKg - hGas) / 1000.0,
			"steam_raised_kg_s":  hpSteam.MDotKgS + mLP,
			"stack_T_C":          tStack,
			"hp_steam_T_C":       hpSteam.TC,
			"hp_sat_T_C":         tSatHP,
			"flue_in_T_C":        flue.TC,
			"feedwater_need_kgs": hpSteam.MDotKgS + mLP,
		},
	}, nil
}

func (*HRSG) Constraints(eval Evaluation, params Params) []Margin {
	pinch := params.Float("pinch_K", 10.0)
	approach := params.Float("approach_K", 5.0)
	stackMin := params.Float("stack_T_min_C", 90.0)
	return []Margin{
		// Gas inlet must clear HP saturation by pinch plus approach,
		// otherwise the level produces nothing.
		{Name: "pinch_HP_min_K", Margin: (eval.Metrics["flue_in_T_C"] - eval.Metrics["hp_sat_T_C"]) - (pinch + approach)},
		{Name: "approach_HP_min_K", Margin: eval.Metrics["hp_steam_T_C"] - eval.Metrics["hp_sat_T_C"] - approach},
		{Name: "stack_T_min_C", Margin: eval.Metrics["stack_T_C"] - stackMin},
	}
}
