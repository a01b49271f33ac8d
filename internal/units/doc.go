// Package units implements the unit-plugin registry and the reference set
// of equipment models the engine ships with.
//
// A plugin bundles four things: a unique type key, a parameter schema, a
// port spec, and a pure Evaluate function mapping input port states to
// output port states under given ambient conditions. Plugins additionally
// expose constraint predicates returning signed margins (negative means
// violated) which the KPI evaluator collects into the result's violation
// list.
//
// Reference unit set:
//
//   - GasTurbine: ambient-derated open-cycle machine; fuel demand from an
//     LHV efficiency, exhaust state scaled with load.
//   - DuctBurner: supplementary firing of HRSG inlet gas to a target
//     temperature, capped by a maximum fuel duty.
//   - HRSG: multi-pressure (HP + optional LP) heat recovery steam
//     generator with pinch, approach and stack-temperature predicates.
//   - SteamTurbine: single expansion stage with isentropic, mechanical
//     and generator efficiencies.
//   - Condenser: vacuum condensation against a cooling-water loop.
//   - Pump: condensate/feedwater pressure rise with auxiliary power.
//   - Mixer, Splitter: stream junctions; the medium is a parameter so one
//     plugin serves water, hot-water and steam manifolds.
//   - HotWaterHX: steam-to-hot-water heating condenser feeding a district
//     heating loop.
//   - PeakBoilerHW: supply-temperature top-up boiler on the hot-water
//     loop.
//   - ThermalStorageTank: steady-state charge/discharge of a stratified
//     hot-water store with a state-of-charge balance.
//
// Evaluate implementations must not retain or mutate shared state: the
// recycle solver re-runs them inside Newton iterations and the optimizer
// runs them concurrently across restarts.
package units
