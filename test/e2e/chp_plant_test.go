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

package e2e

import (
	"context"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hbd-flex/thermoplant/api/plant"
)

// chpPlantJSON is a full combined-heat-and-power site: gas turbine into a
// duct burner and dual-pressure HRSG, HP steam through a condensing turbine
// with a pumped condensate return, LP steam into the district-heating
// exchanger backed by a peak boiler and a storage tank.
const chpPlantJSON = `{
  "meta": {"description": "45 MW CCGT with district heating"},
  "ambient": {"T_C": 30.0, "RH_pct": 60.0, "P_kPa_abs": 101.3},
  "units": [
    {"id": "GT1", "type": "GasTurbine", "params": {"load_pct": 100.0}},
    {"id": "DB1", "type": "DuctBurner"},
    {"id": "HRSG1", "type": "HRSG"},
    {"id": "ST1", "type": "SteamTurbine"},
    {"id": "COND1", "type": "Condenser"},
    {"id": "PUMP1", "type": "Pump"},
    {"id": "HX1", "type": "HotWaterHX", "params": {"return_flow_kg_s": 25.0}},
    {"id": "PB1", "type": "PeakBoilerHW"},
    {"id": "TANK1", "type": "ThermalStorageTank"}
  ],
  "streams": [
    {"from": "GT1.exhaust", "to": "DB1.flue_in"},
    {"from": "DB1.flue_out", "to": "HRSG1.flue_in"},
    {"from": "HRSG1.hp_steam", "to": "ST1.inlet"},
    {"from": "ST1.outlet", "to": "COND1.steam_in"},
    {"from": "COND1.condensate", "to": "PUMP1.suction"},
    {"from": "PUMP1.discharge", "to": "HRSG1.feedwater"},
    {"from": "HRSG1.lp_steam", "to": "HX1.steam_in"},
    {"from": "HX1.supply", "to": "PB1.in"},
    {"from": "PB1.out", "to": "TANK1.in"}
  ]
}`

func loadGraph(raw string) *plant.PlantGraph {
	var g plant.PlantGraph
	Expect(json.Unmarshal([]byte(raw), &g)).To(Succeed())
	return &g
}

var _ = Describe("CHP plant", func() {
	var (
		ctx context.Context
		g   *plant.PlantGraph
	)

	BeforeEach(func() {
		ctx = context.Background()
		g = loadGraph(chpPlantJSON)
	})

	It("simulates the unfired winter dispatch to a feasible point", func() {
		rc := &plant.RunCase{
			Mode:      plant.ModeSimulate,
			Objective: plant.ObjectiveMaxPower,
			Toggles:   map[string]bool{"DB1.enabled": false},
		}

		result, err := eng.Run(ctx, g, rc)
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Violations).To(BeEmpty())
		Expect(result.MassEnergyBalance.Converged).To(BeTrue())
		Expect(result.MassEnergyBalance.Iterations).To(BeNumerically(">", 1), "condensate loop iterates")
		Expect(result.MassEnergyBalance.ClosureErrorPct).To(BeNumerically("<=", 0.5))

		Expect(result.Summary.GTPowerMW).To(BeNumerically("~", 41.625, 0.001))
		Expect(result.Summary.STPowerMW).To(BeNumerically(">", 8.0))
		Expect(result.Summary.NetPowerMW).To(BeNumerically(">", 44.0))
		Expect(result.Summary.HeatOutMWth).To(BeNumerically(">", 4.0))

		Expect(result.DistrictHeating).NotTo(BeNil())
		Expect(result.DistrictHeating.HeatSupplyC).To(BeNumerically(">=", 110.0))
		Expect(result.DistrictHeating.HeatReturnC).To(BeNumerically("~", 70.0, 0.5))
		Expect(result.DistrictHeating.SOC).To(BeNumerically("~", 0.5, 1e-9))

		Expect(result.Meta.RunID).NotTo(BeEmpty())
		Expect(result.Meta.PlantHash).To(HaveLen(64))
	})

	It("trades stack margin for steam power when the duct burner fires", func() {
		unfired, err := eng.Run(ctx, g, &plant.RunCase{
			Mode:      plant.ModeSimulate,
			Objective: plant.ObjectiveMaxPower,
			Toggles:   map[string]bool{"DB1.enabled": false},
		})
		Expect(err).NotTo(HaveOccurred())

		fired, err := eng.Run(ctx, g, &plant.RunCase{
			Mode:      plant.ModeSimulate,
			Objective: plant.ObjectiveMaxPower,
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(fired.Summary.STPowerMW).To(BeNumerically(">", unfired.Summary.STPowerMW+5.0))
		Expect(fired.Summary.FuelInputMW).To(BeNumerically(">", unfired.Summary.FuelInputMW+20.0))
		// Full supplementary firing overcommits the economizer and cools
		// the stack below its acid dew-point floor.
		Expect(fired.Violations).NotTo(BeEmpty())
	})

	It("optimizes gas turbine load to the upper bound for max power", func() {
		rc := &plant.RunCase{
			Mode:      plant.ModeOptimize,
			Objective: plant.ObjectiveMaxPower,
			Toggles:   map[string]bool{"DB1.enabled": false},
			Bounds:    map[string][2]float64{"GT1.load_pct": {60.0, 100.0}},
		}

		result, err := eng.Run(ctx, g, rc)
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Violations).To(BeEmpty())
		Expect(result.Summary.GTPowerMW).To(BeNumerically("~", 41.625, 0.1), "net power is monotone in load")
		Expect(result.MassEnergyBalance.Converged).To(BeTrue())
	})

	It("re-imports a solved snapshot without drift", func() {
		rc := &plant.RunCase{
			Mode:      plant.ModeSimulate,
			Objective: plant.ObjectiveMaxPower,
			Toggles:   map[string]bool{"DB1.enabled": false},
		}
		first, err := eng.Run(ctx, g, rc)
		Expect(err).NotTo(HaveOccurred())
		Expect(first.MassEnergyBalance.Converged).To(BeTrue())

		// Pin the converged condensate return as a boundary condition and
		// cut the loop: the snapshot graph is acyclic and must land on the
		// same operating point in a single pass.
		fw := first.UnitStates["PUMP1"]["discharge"]
		snap := loadGraph(chpPlantJSON)
		for i, u := range snap.Units {
			if u.ID == "HRSG1" {
				snap.Units[i].Params = map[string]any{"feedwater_T_C": fw.TC}
			}
		}
		kept := make([]plant.Stream, 0, len(snap.Streams))
		for _, s := range snap.Streams {
			if s.To != "HRSG1.feedwater" {
				kept = append(kept, s)
			}
		}
		snap.Streams = kept

		second, err := eng.Run(ctx, snap, rc)
		Expect(err).NotTo(HaveOccurred())

		Expect(second.MassEnergyBalance.Iterations).To(Equal(1))
		Expect(second.MassEnergyBalance.ClosureErrorPct).To(BeZero())
		Expect(second.Summary.STPowerMW).To(BeNumerically("~", first.Summary.STPowerMW, 0.1))
		Expect(second.Summary.NetPowerMW).To(BeNumerically("~", first.Summary.NetPowerMW, 0.1))
		Expect(second.Summary.HeatOutMWth).To(BeNumerically("~", first.Summary.HeatOutMWth, 0.1))
		Expect(second.DistrictHeating.HeatSupplyC).To(BeNumerically("~", first.DistrictHeating.HeatSupplyC, 0.5))
	})

	It("round-trips the result contract through JSON", func() {
		result, err := eng.Run(ctx, g, &plant.RunCase{
			Mode:      plant.ModeSimulate,
			Objective: plant.ObjectiveMaxPower,
			Toggles:   map[string]bool{"DB1.enabled": false},
		})
		Expect(err).NotTo(HaveOccurred())

		raw, err := json.Marshal(result)
		Expect(err).NotTo(HaveOccurred())

		var back plant.Result
		Expect(json.Unmarshal(raw, &back)).To(Succeed())
		Expect(back.Summary).To(Equal(result.Summary))
		Expect(back.DistrictHeating).To(Equal(result.DistrictHeating))
		Expect(back.UnitStates["HRSG1"]).To(HaveKey("hp_steam"))
	})
})
