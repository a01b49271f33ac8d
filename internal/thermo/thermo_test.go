package thermo

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hbd-flex/thermoplant/api/plant"
)

func Test_Saturation_AtmosphericBoiling(t *testing.T) {
	tSat, err := SatTemperatureC(101.325)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, tSat, 0.3)

	pSat, err := SatPressureKPa(100.0)
	require.NoError(t, err)
	assert.InDelta(t, 101.325, pSat, 1.0)
}

func Test_Saturation_RoundTrip(t *testing.T) {
	for _, p := range []float64{8.0, 101.3, 500.0, 4000.0, 10000.0} {
		tSat, err := SatTemperatureC(p)
		require.NoError(t, err)
		back, err := SatPressureKPa(tSat)
		require.NoError(t, err)
		assert.InDelta(t, p, back, 0.01*p, "round trip at %g kPa", p)
	}
}

func Test_Enthalpy_Gas(t *testing.T) {
	h, err := Enthalpy(plant.MediumGas, 545.0, 101.3)
	require.NoError(t, err)
	assert.InDelta(t, 1.075*545.0, h, 1e-9)

	back, err := Temperature(plant.MediumGas, h, 101.3)
	require.NoError(t, err)
	assert.InDelta(t, 545.0, back, 1e-9)
}

func Test_Enthalpy_WaterRequiresSubcooling(t *testing.T) {
	// 150 C liquid needs more than atmospheric pressure.
	_, err := Enthalpy(plant.MediumWater, 150.0, 101.3)
	require.Error(t, err)
	var re *RangeError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "T_C", re.Variable)

	h, err := Enthalpy(plant.MediumWater, 150.0, 1000.0)
	require.NoError(t, err)
	assert.InDelta(t, 4.186*150.0, h, 1e-9)
}

func Test_Enthalpy_SteamRequiresSuperheat(t *testing.T) {
	// 100 C steam cannot exist at 10 MPa.
	_, err := Enthalpy(plant.MediumSteam, 100.0, 10000.0)
	assert.Error(t, err)

	tSat, err := SatTemperatureC(101.3)
	require.NoError(t, err)
	hg, err := Enthalpy(plant.MediumSteam, tSat, 101.3)
	require.NoError(t, err)
	// Saturated vapor near 100 C is about 2676 kJ/kg in the steam tables.
	assert.InDelta(t, 2676.0, hg, 30.0)
}

func Test_Temperature_WetSteamResolvesToSaturation(t *testing.T) {
	tSat, err := SatTemperatureC(8.0)
	require.NoError(t, err)

	tC, err := Temperature(plant.MediumSteam, 2300.0, 8.0)
	require.NoError(t, err)
	assert.InDelta(t, tSat, tC, 1e-9)
}

func Test_Quality(t *testing.T) {
	tSat, _ := SatTemperatureC(8.0)
	hf := 4.186 * tSat
	hg := saturatedVaporEnthalpy(tSat)

	q, err := Quality(hg+100.0, 8.0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, q)

	q, err = Quality(hf, 8.0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, q)

	q, err = Quality((hf+hg)/2.0, 8.0)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, q, 1e-9)
}

func Test_IsentropicExpansion(t *testing.T) {
	hIn, err := Enthalpy(plant.MediumSteam, 540.0, 10000.0)
	require.NoError(t, err)

	hOut, tOut, err := IsentropicExpansion(540.0, 10000.0, hIn, 8.0, 0.88)
	require.NoError(t, err)
	assert.Less(t, hOut, hIn)
	tSat, _ := SatTemperatureC(8.0)
	assert.GreaterOrEqual(t, tOut, tSat)
	assert.Less(t, tOut, 100.0, "deep vacuum exhaust leaves mildly superheated at most")

	// Perfect machine extracts more than a degraded one.
	hIdeal, _, err := IsentropicExpansion(540.0, 10000.0, hIn, 8.0, 1.0)
	require.NoError(t, err)
	assert.Less(t, hIdeal, hOut)
}

func Test_IsentropicExpansion_RejectsBadInputs(t *testing.T) {
	hIn, err := Enthalpy(plant.MediumSteam, 540.0, 10000.0)
	require.NoError(t, err)

	_, _, err = IsentropicExpansion(540.0, 10000.0, hIn, 12000.0, 0.88)
	assert.Error(t, err, "outlet pressure above inlet")

	_, _, err = IsentropicExpansion(540.0, 10000.0, hIn, 8.0, 0.0)
	assert.Error(t, err, "zero efficiency")
}

func Test_RangeError_Bounds(t *testing.T) {
	tests := []struct {
		name string
		call func() error
	}{
		{"gas too hot", func() error { _, err := Enthalpy(plant.MediumGas, 2500.0, 101.3); return err }},
		{"fuel gas too hot", func() error { _, err := Enthalpy(plant.MediumFuelGas, 700.0, 3000.0); return err }},
		{"pressure below saturation domain", func() error { _, err := SatTemperatureC(0.5); return err }},
		{"temperature above saturation domain", func() error { _, err := SatPressureKPa(400.0); return err }},
		{"non-positive pressure", func() error { _, err := Enthalpy(plant.MediumGas, 100.0, 0.0); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			var re *RangeError
			assert.True(t, errors.As(err, &re), "want *RangeError, got %T", err)
		})
	}
}

func Test_State(t *testing.T) {
	st, err := State(plant.MediumHotWater, 90.0, 1000.0, 150.0)
	require.NoError(t, err)
	assert.Equal(t, plant.MediumHotWater, st.Medium)
	assert.InDelta(t, 4.186*90.0, st.HKJKg, 1e-9)
	assert.Equal(t, 150.0, st.MDotKgS)
}
