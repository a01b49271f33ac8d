package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hbd-flex/thermoplant/api/plant"
	"github.com/hbd-flex/thermoplant/internal/compiler"
	"github.com/hbd-flex/thermoplant/internal/units"
)

func Test_New_RejectsUnfrozenRegistry(t *testing.T) {
	reg := units.NewRegistry()
	require.NoError(t, reg.Register(&units.GasTurbine{}))

	_, err := New(WithRegistry(reg))
	assert.Error(t, err)
}

func Test_Run_ValidatesRunCase(t *testing.T) {
	eng, err := New()
	require.NoError(t, err)
	g := ccgtGraph(nil)

	tests := []struct {
		name string
		rc   *plant.RunCase
	}{
		{name: "nil run case", rc: nil},
		{name: "unknown mode", rc: &plant.RunCase{Mode: "dispatch", Objective: plant.ObjectiveMaxPower}},
		{name: "unknown objective", rc: &plant.RunCase{Mode: plant.ModeSimulate, Objective: "max_entropy"}},
		{
			name: "revenue without pricing",
			rc:   &plant.RunCase{Mode: plant.ModeSimulate, Objective: plant.ObjectiveMaxRevenue},
		},
		{
			name: "optimize without bounds",
			rc:   &plant.RunCase{Mode: plant.ModeOptimize, Objective: plant.ObjectiveMaxPower},
		},
		{
			name: "inverted bounds",
			rc: &plant.RunCase{
				Mode: plant.ModeOptimize, Objective: plant.ObjectiveMaxPower,
				Bounds: map[string][2]float64{"GT1.load_pct": {100.0, 50.0}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.Run(context.Background(), g, tt.rc)
			assert.Error(t, err)
		})
	}
}

func Test_Optimize_ValidatesBoundPaths(t *testing.T) {
	eng, err := New()
	require.NoError(t, err)
	g := ccgtGraph(nil)

	tests := []struct {
		name string
		path string
	}{
		{name: "malformed path", path: "load_pct"},
		{name: "unknown unit", path: "GT9.load_pct"},
		{name: "unknown parameter", path: "GT1.blade_count"},
		{name: "non-numeric parameter", path: "HRSG1.lp_enabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := &plant.RunCase{
				Mode:      plant.ModeOptimize,
				Objective: plant.ObjectiveMaxPower,
				Bounds:    map[string][2]float64{tt.path: {0.0, 1.0}},
			}
			_, err := eng.Optimize(context.Background(), g, rc)
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "bounds")
		})
	}
}

func Test_Simulate_SurfacesCompileErrors(t *testing.T) {
	eng, err := New()
	require.NoError(t, err)

	g := &plant.PlantGraph{
		Ambient: plant.DefaultAmbient(),
		Units:   []plant.Unit{{ID: "X1", Type: "FluxCapacitor"}},
	}
	_, err = eng.Simulate(context.Background(), g, &plant.RunCase{
		Mode: plant.ModeSimulate, Objective: plant.ObjectiveMaxPower,
	})
	require.Error(t, err)

	var ce *compiler.CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, compiler.UnknownUnitType, ce.Kind)
}

func Test_ApplyVars_DoesNotMutateInput(t *testing.T) {
	g := ccgtGraph(map[string]any{"load_pct": 80.0})

	out := applyVars(g, map[string]float64{"GT1.load_pct": 60.0})
	assert.Equal(t, 60.0, out.Units[0].Params["load_pct"])
	assert.Equal(t, 80.0, g.Units[0].Params["load_pct"])
}

func Test_SeedFromHash_IsStable(t *testing.T) {
	g := ccgtGraph(nil)
	h1, err := g.Hash()
	require.NoError(t, err)
	h2, err := ccgtGraph(nil).Hash()
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Equal(t, seedFromHash(h1), seedFromHash(h2))
	assert.NotEqual(t, int64(1), seedFromHash(h1))
}
