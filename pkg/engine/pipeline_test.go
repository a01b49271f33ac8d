package engine

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hbd-flex/thermoplant/api/plant"
)

func ccgtGraph(gtParams map[string]any) *plant.PlantGraph {
	return &plant.PlantGraph{
		Ambient: plant.DefaultAmbient(),
		Units: []plant.Unit{
			{ID: "GT1", Type: "GasTurbine", Params: gtParams},
			{ID: "HRSG1", Type: "HRSG", Params: map[string]any{"lp_enabled": false}},
			{ID: "ST1", Type: "SteamTurbine"},
			{ID: "COND1", Type: "Condenser"},
		},
		Streams: []plant.Stream{
			{From: "GT1.exhaust", To: "HRSG1.flue_in"},
			{From: "HRSG1.hp_steam", To: "ST1.inlet"},
			{From: "ST1.outlet", To: "COND1.steam_in"},
		},
	}
}

func feedwaterLoopGraph() *plant.PlantGraph {
	g := ccgtGraph(nil)
	g.Units = append(g.Units, plant.Unit{ID: "PUMP1", Type: "Pump"})
	g.Streams = append(g.Streams,
		plant.Stream{From: "COND1.condensate", To: "PUMP1.suction"},
		plant.Stream{From: "PUMP1.discharge", To: "HRSG1.feedwater"},
	)
	return g
}

var _ = Describe("Engine pipeline", func() {
	var eng *Engine

	BeforeEach(func() {
		var err error
		eng, err = New()
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("simulate", func() {
		simCase := &plant.RunCase{Mode: plant.ModeSimulate, Objective: plant.ObjectiveMaxPower}

		It("solves an acyclic plant in a single pass", func() {
			result, err := eng.Simulate(context.Background(), ccgtGraph(nil), simCase)
			Expect(err).NotTo(HaveOccurred())

			Expect(result.MassEnergyBalance.Converged).To(BeTrue())
			Expect(result.MassEnergyBalance.Iterations).To(Equal(1))
			Expect(result.Summary.GTPowerMW).To(BeNumerically("~", 41.625, 1e-9))
			Expect(result.Summary.NetPowerMW).To(BeNumerically(">", 40.0))
			Expect(result.Summary.NetEffLHVPct).To(BeNumerically(">", 35.0))
			Expect(result.Violations).To(BeEmpty())
			Expect(result.UnitStates).To(HaveKey("HRSG1"))
		})

		It("closes a condensate recycle loop iteratively", func() {
			result, err := eng.Simulate(context.Background(), feedwaterLoopGraph(), simCase)
			Expect(err).NotTo(HaveOccurred())

			Expect(result.MassEnergyBalance.Converged).To(BeTrue())
			Expect(result.MassEnergyBalance.Iterations).To(BeNumerically(">", 1))
			Expect(result.MassEnergyBalance.ClosureErrorPct).To(BeNumerically("<=", 0.5))
		})

		It("produces identical numbers on repeat runs", func() {
			first, err := eng.Simulate(context.Background(), feedwaterLoopGraph(), simCase)
			Expect(err).NotTo(HaveOccurred())
			second, err := eng.Simulate(context.Background(), feedwaterLoopGraph(), simCase)
			Expect(err).NotTo(HaveOccurred())

			Expect(second.Summary).To(Equal(first.Summary))
			Expect(second.UnitStates).To(Equal(first.UnitStates))
			Expect(second.Violations).To(Equal(first.Violations))
			Expect(second.MassEnergyBalance).To(Equal(first.MassEnergyBalance))

			Expect(second.Meta.PlantHash).To(Equal(first.Meta.PlantHash))
			Expect(second.Meta.RunID).NotTo(Equal(first.Meta.RunID))
			Expect(first.Meta.SolverVersion).To(Equal(SolverVersion))
		})

		It("applies run case toggles to the named unit", func() {
			g := ccgtGraph(nil)
			g.Units = append(g.Units[:1], append([]plant.Unit{{ID: "DB1", Type: "DuctBurner"}}, g.Units[1:]...)...)
			g.Streams = []plant.Stream{
				{From: "GT1.exhaust", To: "DB1.flue_in"},
				{From: "DB1.flue_out", To: "HRSG1.flue_in"},
				{From: "HRSG1.hp_steam", To: "ST1.inlet"},
				{From: "ST1.outlet", To: "COND1.steam_in"},
			}

			fired, err := eng.Simulate(context.Background(), g, simCase)
			Expect(err).NotTo(HaveOccurred())

			unfired, err := eng.Simulate(context.Background(), g, &plant.RunCase{
				Mode:      plant.ModeSimulate,
				Objective: plant.ObjectiveMaxPower,
				Toggles:   map[string]bool{"DB1.enabled": false},
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(fired.Summary.FuelInputMW).To(BeNumerically(">", unfired.Summary.FuelInputMW+10.0))
			Expect(fired.Summary.STPowerMW).To(BeNumerically(">", unfired.Summary.STPowerMW))
		})

		It("reports violations instead of failing on bad operating points", func() {
			result, err := eng.Simulate(context.Background(), ccgtGraph(map[string]any{"load_pct": 30.0}), simCase)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Violations).To(ContainElement("GT1.load_min_pct >= 0 (margin -10.000)"))
		})
	})

	Describe("optimize", func() {
		It("drives gas turbine load to the power-maximizing bound", func() {
			optCase := &plant.RunCase{
				Mode:      plant.ModeOptimize,
				Objective: plant.ObjectiveMaxPower,
				Bounds:    map[string][2]float64{"GT1.load_pct": {50.0, 100.0}},
			}
			best, err := eng.Optimize(context.Background(), ccgtGraph(nil), optCase)
			Expect(err).NotTo(HaveOccurred())
			Expect(best.Violations).To(BeEmpty())

			simCase := &plant.RunCase{Mode: plant.ModeSimulate, Objective: plant.ObjectiveMaxPower}
			atLow, err := eng.Simulate(context.Background(), ccgtGraph(map[string]any{"load_pct": 50.0}), simCase)
			Expect(err).NotTo(HaveOccurred())
			atHigh, err := eng.Simulate(context.Background(), ccgtGraph(map[string]any{"load_pct": 100.0}), simCase)
			Expect(err).NotTo(HaveOccurred())

			// Net power grows with load, so the optimum sits at the top
			// of the bracket.
			Expect(best.Summary.NetPowerMW).To(BeNumerically(">", atLow.Summary.NetPowerMW))
			Expect(best.Summary.NetPowerMW).To(BeNumerically("~", atHigh.Summary.NetPowerMW, 0.5))
		})

		It("returns the least-infeasible point when constraints cannot be met", func() {
			optCase := &plant.RunCase{
				Mode:      plant.ModeOptimize,
				Objective: plant.ObjectiveMaxPower,
				Bounds:    map[string][2]float64{"GT1.load_pct": {50.0, 100.0}},
				Constraints: map[string]float64{
					"NET_power_MW": 10000.0, // no load can reach this floor
				},
			}
			best, err := eng.Optimize(context.Background(), ccgtGraph(nil), optCase)
			Expect(err).NotTo(HaveOccurred())
			Expect(best.Violations).NotTo(BeEmpty())
		})
	})
})
