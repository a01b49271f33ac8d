/*
Copyright 2025 The ThermoPlant Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package thermo implements the property resolver: per-medium conversions
// between temperature, pressure and specific enthalpy.
//
// The correlations are deliberately simple and fully deterministic: ideal
// mixtures with constant specific heats for gas-side media, and a
// saturation-anchored formulation for water/steam built on the Antoine
// equation. They are accurate enough for heat-balance work; an external
// property package can replace this resolver behind the same functions.
//
// Every function is pure. Inputs outside a correlation's validity domain
// fail with *RangeError.
package thermo

import (
	"fmt"
	"math"

	"github.com/hbd-flex/thermoplant/api/plant"
)

// Specific heats in kJ/(kg·K).
const (
	cpFlueGas  = 1.075
	cpFuelGas  = 2.2
	cpWater    = 4.186
	cpSteam    = 2.1
	kPaPerMmHg = 0.133322
)

// Antoine coefficients for water, pressure in mmHg, temperature in Celsius.
const (
	antoineA = 8.07131
	antoineB = 1730.63
	antoineC = 233.426
)

// Isentropic exponent term (gamma-1)/gamma for superheated steam.
const steamIsentropicExp = 0.2248

// RangeError reports a physical state outside a correlation's validity
// domain. It carries the offending medium, variable and bound so callers
// can surface it as a per-unit violation.
type RangeError struct {
	Medium   plant.Medium
	Variable string
	Value    float64
	Min      float64
	Max      float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("property out of range: %s %s=%.3f outside [%.3f, %.3f]",
		e.Medium, e.Variable, e.Value, e.Min, e.Max)
}

func checkRange(m plant.Medium, variable string, v, min, max float64) error {
	if v < min || v > max {
		return &RangeError{Medium: m, Variable: variable, Value: v, Min: min, Max: max}
	}
	return nil
}

// SatTemperatureC returns the water saturation temperature at an absolute
// pressure, via the Antoine equation.
func SatTemperatureC(pKPaAbs float64) (float64, error) {
	if err := checkRange(plant.MediumSteam, "P_kPa_abs", pKPaAbs, 1.0, 22000.0); err != nil {
		return 0, err
	}
	pMmHg := pKPaAbs / kPaPerMmHg
	return antoineB/(antoineA-math.Log10(pMmHg)) - antoineC, nil
}

// SatPressureKPa returns the water saturation pressure at a temperature,
// via the Antoine equation.
func SatPressureKPa(tC float64) (float64, error) {
	if err := checkRange(plant.MediumSteam, "T_C", tC, 0.01, 370.0); err != nil {
		return 0, err
	}
	pMmHg := math.Pow(10, antoineA-antoineB/(antoineC+tC))
	return pMmHg * kPaPerMmHg, nil
}

// latentHeat approximates the heat of vaporization at a saturation
// temperature, decreasing toward the critical point.
func latentHeat(tSatC float64) float64 {
	l := 2257.0 - 2.9*(tSatC-100.0)
	if l < 100.0 {
		l = 100.0
	}
	return l
}

// saturatedVaporEnthalpy is h_g at a saturation temperature, with the
// liquid reference h=0 at 0 C.
func saturatedVaporEnthalpy(tSatC float64) float64 {
	return cpWater*tSatC + latentHeat(tSatC)
}

// Enthalpy converts (T, P) to specific enthalpy for the given medium.
func Enthalpy(m plant.Medium, tC, pKPaAbs float64) (float64, error) {
	if pKPaAbs <= 0 {
		return 0, &RangeError{Medium: m, Variable: "P_kPa_abs", Value: pKPaAbs, Min: 1e-9, Max: math.Inf(1)}
	}
	switch m {
	case plant.MediumGas:
		if err := checkRange(m, "T_C", tC, -50.0, 2000.0); err != nil {
			return 0, err
		}
		return cpFlueGas * tC, nil
	case plant.MediumFuelGas:
		if err := checkRange(m, "T_C", tC, -50.0, 600.0); err != nil {
			return 0, err
		}
		return cpFuelGas * tC, nil
	case plant.MediumWater, plant.MediumHotWater:
		tSat, err := SatTemperatureC(pKPaAbs)
		if err != nil {
			return 0, err
		}
		// Liquid must be subcooled (or saturated) at its pressure.
		if err := checkRange(m, "T_C", tC, 0.01, tSat); err != nil {
			return 0, err
		}
		return cpWater * tC, nil
	case plant.MediumSteam:
		tSat, err := SatTemperatureC(pKPaAbs)
		if err != nil {
			return 0, err
		}
		if err := checkRange(m, "T_C", tC, tSat, 700.0); err != nil {
			return 0, err
		}
		return saturatedVaporEnthalpy(tSat) + cpSteam*(tC-tSat), nil
	default:
		return 0, fmt.Errorf("unknown medium %q", m)
	}
}

// Temperature converts (h, P) back to temperature for the given medium.
// Steam enthalpies below the saturated-vapor line resolve to the
// saturation temperature (wet steam).
func Temperature(m plant.Medium, hKJKg, pKPaAbs float64) (float64, error) {
	if pKPaAbs <= 0 {
		return 0, &RangeError{Medium: m, Variable: "P_kPa_abs", Value: pKPaAbs, Min: 1e-9, Max: math.Inf(1)}
	}
	switch m {
	case plant.MediumGas:
		return hKJKg / cpFlueGas, nil
	case plant.MediumFuelGas:
		return hKJKg / cpFuelGas, nil
	case plant.MediumWater, plant.MediumHotWater:
		return hKJKg / cpWater, nil
	case plant.MediumSteam:
		tSat, err := SatTemperatureC(pKPaAbs)
		if err != nil {
			return 0, err
		}
		hg := saturatedVaporEnthalpy(tSat)
		if hKJKg <= hg {
			return tSat, nil
		}
		return tSat + (hKJKg-hg)/cpSteam, nil
	default:
		return 0, fmt.Errorf("unknown medium %q", m)
	}
}

// Quality returns the steam quality for (h, P): 1 for dry or superheated
// steam, proportionally less inside the dome.
func Quality(hKJKg, pKPaAbs float64) (float64, error) {
	tSat, err := SatTemperatureC(pKPaAbs)
	if err != nil {
		return 0, err
	}
	hf := cpWater * tSat
	hg := saturatedVaporEnthalpy(tSat)
	if hKJKg >= hg {
		return 1.0, nil
	}
	if hKJKg <= hf {
		return 0.0, nil
	}
	return (hKJKg - hf) / (hg - hf), nil
}

// IsentropicExpansion expands superheated steam from (tInC, pInKPa, hIn)
// down to pOutKPa with the given isentropic efficiency and returns the
// outlet enthalpy and temperature. Expansion ending inside the dome is
// handled as wet steam at the outlet saturation temperature.
func IsentropicExpansion(tInC, pInKPa, hIn, pOutKPa, etaIsentropic float64) (hOut, tOutC float64, err error) {
	if pOutKPa >= pInKPa {
		return 0, 0, &RangeError{
			Medium: plant.MediumSteam, Variable: "P_out_kPa_abs",
			Value: pOutKPa, Min: 0, Max: pInKPa,
		}
	}
	if etaIsentropic <= 0 || etaIsentropic > 1 {
		return 0, 0, &RangeError{
			Medium: plant.MediumSteam, Variable: "eta_isentropic",
			Value: etaIsentropic, Min: 0, Max: 1,
		}
	}

	tSatOut, err := SatTemperatureC(pOutKPa)
	if err != nil {
		return 0, 0, err
	}

	// Ideal-gas isentropic temperature drop, floored at saturation.
	tIsK := (tInC + 273.15) * math.Pow(pOutKPa/pInKPa, steamIsentropicExp)
	tIsC := tIsK - 273.15
	if tIsC < tSatOut {
		tIsC = tSatOut
	}
	hIs, err := Enthalpy(plant.MediumSteam, tIsC, pOutKPa)
	if err != nil {
		return 0, 0, err
	}

	hOut = hIn - etaIsentropic*(hIn-hIs)
	tOutC, err = Temperature(plant.MediumSteam, hOut, pOutKPa)
	if err != nil {
		return 0, 0, err
	}
	return hOut, tOutC, nil
}

// State builds a fully resolved PortState from temperature, pressure and
// mass flow, deriving enthalpy from the medium correlation.
func State(m plant.Medium, tC, pKPaAbs, mDotKgS float64) (plant.PortState, error) {
	h, err := Enthalpy(m, tC, pKPaAbs)
	if err != nil {
		return plant.PortState{}, err
	}
	return plant.PortState{TC: tC, PKPaAbs: pKPaAbs, HKJKg: h, MDotKgS: mDotKgS, Medium: m}, nil
}
