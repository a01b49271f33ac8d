package units

import (
	"math"

	"github.com/hbd-flex/thermoplant/api/plant"
	"github.com/hbd-flex/thermoplant/internal/thermo"
)

// Mixer joins two streams of the same medium. Fan-in beyond one stream per
// input port is a compile error, so wider manifolds chain Mixers. The
// outlet enthalpy is the mass-weighted mixture and the outlet pressure the
// lower of the two inlets.
type Mixer struct{}

func (*Mixer) TypeKey() string { return "Mixer" }

func (*Mixer) ParamSchema() map[string]ParamSpec {
	return map[string]ParamSpec{
		"medium":                  {Type: ParamString, Default: "water"},
		"max_pressure_spread_pct": {Type: ParamFloat, Default: 15.0},
	}
}

func (*Mixer) Ports(params Params) map[string]PortDecl {
	m := plant.Medium(params.String("medium", "water"))
	return map[string]PortDecl{
		"in_a": {Medium: m, Direction: plant.DirectionIn},
		"in_b": {Medium: m, Direction: plant.DirectionIn, Optional: true},
		"out":  {Medium: m, Direction: plant.DirectionOut},
	}
}

func (mx *Mixer) Evaluate(inputs map[string]plant.PortState, params Params, ambient plant.Ambient) (Evaluation, error) {
	medium := plant.Medium(params.String("medium", "water"))
	a := inputs["in_a"]
	b, hasB := inputs["in_b"]
	if !hasB {
		return Evaluation{
			Outputs: map[string]plant.PortState{"out": a},
			Metrics: map[string]float64{"pressure_spread_pct": 0},
		}, nil
	}

	mOut := a.MDotKgS + b.MDotKgS
	hOut := a.HKJKg
	if mOut > 0 {
		hOut = (a.MDotKgS*a.HKJKg + b.MDotKgS*b.HKJKg) / mOut
	}
	pOut := math.Min(a.PKPaAbs, b.PKPaAbs)
	tOut, err := thermo.Temperature(medium, hOut, pOut)
	if err != nil {
		return Evaluation{}, err
	}

	spread := 0.0
	if pMax := math.Max(a.PKPaAbs, b.PKPaAbs); pMax > 0 {
		spread = 100.0 * math.Abs(a.PKPaAbs-b.PKPaAbs) / pMax
	}
	out := plant.PortState{TC: tOut, PKPaAbs: pOut, HKJKg: hOut, MDotKgS: mOut, Medium: medium}
	return Evaluation{
		Outputs: map[string]plant.PortState{"out": out},
		Metrics: map[string]float64{"pressure_spread_pct": spread},
	}, nil
}

func (*Mixer) Constraints(eval Evaluation, params Params) []Margin {
	maxSpread := params.Float("max_pressure_spread_pct", 15.0)
	return []Margin{
		{Name: "pressure_spread_max_pct", Margin: maxSpread - eval.Metrics["pressure_spread_pct"]},
	}
}

// Splitter divides one stream between two outlets at identical state.
// Both outlets are declared splitting ports, so they may fan out further.
type Splitter struct{}

func (*Splitter) TypeKey() string { return "Splitter" }

func (*Splitter) ParamSchema() map[string]ParamSpec {
	return map[string]ParamSpec{
		"medium":     {Type: ParamString, Default: "water"},
		"split_frac": {Type: ParamFloat, Default: 0.5},
	}
}

func (*Splitter) Ports(params Params) map[string]PortDecl {
	m := plant.Medium(params.String("medium", "water"))
	return map[string]PortDecl{
		"in":    {Medium: m, Direction: plant.DirectionIn},
		"out_a": {Medium: m, Direction: plant.DirectionOut, Splitting: true},
		"out_b": {Medium: m, Direction: plant.DirectionOut, Splitting: true},
	}
}

func (*Splitter) Evaluate(inputs map[string]plant.PortState, params Params, ambient plant.Ambient) (Evaluation, error) {
	in := inputs["in"]
	frac := params.Float("split_frac", 0.5)
	clamped := math.Min(math.Max(frac, 0), 1)

	outA := in
	outA.MDotKgS = in.MDotKgS * clamped
	outB := in
	outB.MDotKgS = in.MDotKgS * (1 - clamped)
	return Evaluation{
		Outputs: map[string]plant.PortState{"out_a": outA, "out_b": outB},
		Metrics: map[string]float64{"split_frac": frac},
	}, nil
}

func (*Splitter) Constraints(eval Evaluation, params Params) []Margin {
	frac := eval.Metrics["split_frac"]
	return []Margin{
		{Name: "split_frac_range", Margin: math.Min(frac, 1-frac)},
	}
}
