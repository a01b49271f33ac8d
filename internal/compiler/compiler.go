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

// Package compiler validates a plant graph against the plugin registry and
// produces the execution plan: a deterministic sequence of solve steps,
// each either a single forward-solved unit or a recycle group that needs
// iterative closure.
package compiler

import (
	"fmt"
	"sort"

	"github.com/hbd-flex/thermoplant/api/plant"
	"github.com/hbd-flex/thermoplant/internal/defaults"
	"github.com/hbd-flex/thermoplant/internal/units"
)

// Source identifies the upstream end of a stream.
type Source struct {
	Unit string
	Port string
}

// Tear is a loop-closing stream inside a recycle group: its source unit
// appears at or after its destination in the group's internal order, so
// the recycle solver must guess the source state.
type Tear struct {
	Source   Source
	DestUnit string
	DestPort string
}

// Step is one entry of the execution plan. A step with Recycle=false holds
// exactly one unit; a recycle step lists the group members in internal
// quasi-topological order together with its tear streams.
type Step struct {
	Units   []string
	Recycle bool
	Tears   []Tear
}

// Plan is the compiled, immutable execution plan for one graph.
type Plan struct {
	Graph   *plant.PlantGraph
	Ambient plant.Ambient

	// Steps visit every unit exactly once, in dependency order.
	Steps []Step

	// Params holds the merged (defaults + graph + toggles) parameter set
	// per unit id.
	Params map[string]units.Params

	// Plugins maps unit id to its plugin implementation.
	Plugins map[string]units.Plugin

	// Ports holds the resolved port spec per unit id.
	Ports map[string]map[string]units.PortDecl

	// Inbound maps unit id -> input port -> upstream source.
	Inbound map[string]map[string]Source
}

// TypeOf returns the plugin type key for a unit id.
func (p *Plan) TypeOf(unitID string) string {
	if pl, ok := p.Plugins[unitID]; ok {
		return pl.TypeKey()
	}
	return ""
}

// UnitIDs returns every unit id in plan order.
func (p *Plan) UnitIDs() []string {
	var ids []string
	for _, s := range p.Steps {
		ids = append(ids, s.Units...)
	}
	return ids
}

// Compile validates the graph and produces its execution plan. The
// registry must be frozen; run-case toggles are projected into unit params
// ("<unitId>.<switch>" -> params[switch]) before port resolution so that
// toggled port specs (e.g. HRSG lp_enabled) take effect.
func Compile(graph *plant.PlantGraph, reg *units.Registry, tbl *defaults.Table, toggles map[string]bool) (*Plan, error) {
	if !reg.Frozen() {
		return nil, fmt.Errorf("registry must be frozen before compilation")
	}

	plan := &Plan{
		Graph:   graph,
		Ambient: graph.Ambient,
		Params:  map[string]units.Params{},
		Plugins: map[string]units.Plugin{},
		Ports:   map[string]map[string]units.PortDecl{},
		Inbound: map[string]map[string]Source{},
	}
	if plan.Ambient == (plant.Ambient{}) {
		plan.Ambient = tbl.Ambient
	}

	// Resolve units: unique ids, known types, valid merged params.
	for _, u := range graph.Units {
		if _, dup := plan.Plugins[u.ID]; dup {
			return nil, &CompileError{Kind: DuplicatePort, UnitID: u.ID, Detail: "duplicate unit id"}
		}
		plugin, ok := reg.Lookup(u.Type)
		if !ok {
			return nil, &CompileError{Kind: UnknownUnitType, UnitID: u.ID, Detail: fmt.Sprintf("unknown unit type %q", u.Type)}
		}
		params := units.Params(tbl.Merge(u.Type, u.Params))
		for key, v := range toggles {
			unitID, name, err := plant.Endpoint(key)
			if err != nil || unitID != u.ID {
				continue
			}
			params[name] = v
		}
		if err := units.ValidateParams(plugin.ParamSchema(), params); err != nil {
			return nil, &CompileError{Kind: InvalidParam, UnitID: u.ID, Detail: err.Error()}
		}
		plan.Plugins[u.ID] = plugin
		plan.Params[u.ID] = params
		plan.Ports[u.ID] = plugin.Ports(params)
		plan.Inbound[u.ID] = map[string]Source{}
	}

	// Resolve streams: endpoints, directions, media, fan-in/fan-out.
	fanOut := map[Source]int{}
	adjacency := map[string]map[string]bool{}
	for _, s := range graph.Streams {
		srcUnit, srcPort, err := plant.Endpoint(s.From)
		if err != nil {
			return nil, &CompileError{Kind: MissingPort, Detail: err.Error()}
		}
		dstUnit, dstPort, err := plant.Endpoint(s.To)
		if err != nil {
			return nil, &CompileError{Kind: MissingPort, Detail: err.Error()}
		}

		srcDecl, ok := plan.Ports[srcUnit][srcPort]
		if !ok {
			return nil, &CompileError{Kind: MissingPort, UnitID: srcUnit, PortID: srcPort, Detail: "stream source port not declared"}
		}
		dstDecl, ok := plan.Ports[dstUnit][dstPort]
		if !ok {
			return nil, &CompileError{Kind: MissingPort, UnitID: dstUnit, PortID: dstPort, Detail: "stream destination port not declared"}
		}
		if srcDecl.Direction != plant.DirectionOut {
			return nil, &CompileError{Kind: MissingPort, UnitID: srcUnit, PortID: srcPort, Detail: "stream source is not an output port"}
		}
		if dstDecl.Direction != plant.DirectionIn {
			return nil, &CompileError{Kind: MissingPort, UnitID: dstUnit, PortID: dstPort, Detail: "stream destination is not an input port"}
		}
		if srcDecl.Medium != dstDecl.Medium {
			return nil, &CompileError{
				Kind: MediumMismatch, UnitID: srcUnit, PortID: srcPort,
				Detail: fmt.Sprintf("%s.%s carries %q but %s.%s expects %q",
					srcUnit, srcPort, srcDecl.Medium, dstUnit, dstPort, dstDecl.Medium),
			}
		}

		if _, taken := plan.Inbound[dstUnit][dstPort]; taken {
			return nil, &CompileError{Kind: DuplicatePort, UnitID: dstUnit, PortID: dstPort, Detail: "input port already fed by another stream; insert a Mixer"}
		}
		plan.Inbound[dstUnit][dstPort] = Source{Unit: srcUnit, Port: srcPort}

		src := Source{Unit: srcUnit, Port: srcPort}
		fanOut[src]++
		if fanOut[src] > 1 && !srcDecl.Splitting {
			return nil, &CompileError{Kind: DuplicatePort, UnitID: srcUnit, PortID: srcPort, Detail: "output port fans out but is not a splitting port"}
		}

		if adjacency[srcUnit] == nil {
			adjacency[srcUnit] = map[string]bool{}
		}
		adjacency[srcUnit][dstUnit] = true
	}

	// Every required input port must be fed.
	for unitID, ports := range plan.Ports {
		for portID, decl := range ports {
			if decl.Direction != plant.DirectionIn || decl.Optional {
				continue
			}
			if _, fed := plan.Inbound[unitID][portID]; !fed {
				return nil, &CompileError{Kind: MissingPort, UnitID: unitID, PortID: portID, Detail: "required input port has no stream"}
			}
		}
	}

	ids := make([]string, 0, len(plan.Plugins))
	for id := range plan.Plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	components := stronglyConnected(ids, adjacency)
	plan.Steps = orderSteps(components, ids, adjacency, plan)
	return plan, nil
}

// stronglyConnected runs Tarjan's algorithm over the unit dependency
// graph. Iteration order is the sorted id list, so component discovery is
// deterministic.
func stronglyConnected(ids []string, adjacency map[string]map[string]bool) [][]string {
	index := map[string]int{}
	low := map[string]int{}
	onStack := map[string]bool{}
	var stack []string
	next := 0
	var components [][]string

	var strongConnect func(v string)
	strongConnect = func(v string) {
		index[v] = next
		low[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		neighbors := make([]string, 0, len(adjacency[v]))
		for w := range adjacency[v] {
			neighbors = append(neighbors, w)
		}
		sort.Strings(neighbors)
		for _, w := range neighbors {
			if _, seen := index[w]; !seen {
				strongConnect(w)
				if low[w] < low[v] {
					low[v] = low[w]
				}
			} else if onStack[w] && index[w] < low[v] {
				low[v] = index[w]
			}
		}

		if low[v] == index[v] {
			var comp []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			sort.Strings(comp)
			components = append(components, comp)
		}
	}

	for _, id := range ids {
		if _, seen := index[id]; !seen {
			strongConnect(id)
		}
	}
	return components
}

// orderSteps topologically sorts the SCC condensation with deterministic
// tie-breaking (ascending smallest member id) and builds the plan steps.
func orderSteps(components [][]string, ids []string, adjacency map[string]map[string]bool, plan *Plan) []Step {
	compOf := map[string]int{}
	for i, comp := range components {
		for _, id := range comp {
			compOf[id] = i
		}
	}

	// Condensation edges and in-degrees.
	succ := make(map[int]map[int]bool, len(components))
	inDeg := make([]int, len(components))
	for _, from := range ids {
		for to := range adjacency[from] {
			cf, ct := compOf[from], compOf[to]
			if cf == ct {
				continue
			}
			if succ[cf] == nil {
				succ[cf] = map[int]bool{}
			}
			if !succ[cf][ct] {
				succ[cf][ct] = true
				inDeg[ct]++
			}
		}
	}

	// Kahn over components; the ready set is kept sorted by the smallest
	// unit id in the component so the same graph always yields the same
	// plan.
	var ready []int
	for i := range components {
		if inDeg[i] == 0 {
			ready = append(ready, i)
		}
	}
	less := func(a, b int) bool { return components[a][0] < components[b][0] }
	sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })

	var steps []Step
	for len(ready) > 0 {
		c := ready[0]
		ready = ready[1:]
		steps = append(steps, buildStep(components[c], adjacency, plan))

		var released []int
		for n := range succ[c] {
			inDeg[n]--
			if inDeg[n] == 0 {
				released = append(released, n)
			}
		}
		ready = append(ready, released...)
		sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })
	}
	return steps
}

// buildStep wraps one SCC as a plan step. Components of size > 1, and
// self-loops, are recycle groups; they get an internal quasi-topological
// order and their tear streams identified.
func buildStep(comp []string, adjacency map[string]map[string]bool, plan *Plan) Step {
	selfLoop := len(comp) == 1 && adjacency[comp[0]][comp[0]]
	if len(comp) == 1 && !selfLoop {
		return Step{Units: comp}
	}

	order := internalOrder(comp, adjacency)
	pos := map[string]int{}
	for i, id := range order {
		pos[id] = i
	}

	inGroup := map[string]bool{}
	for _, id := range comp {
		inGroup[id] = true
	}

	var tears []Tear
	for _, id := range order {
		inbound := plan.Inbound[id]
		portIDs := make([]string, 0, len(inbound))
		for p := range inbound {
			portIDs = append(portIDs, p)
		}
		sort.Strings(portIDs)
		for _, portID := range portIDs {
			src := inbound[portID]
			if !inGroup[src.Unit] {
				continue
			}
			if pos[src.Unit] >= pos[id] {
				tears = append(tears, Tear{Source: src, DestUnit: id, DestPort: portID})
			}
		}
	}
	return Step{Units: order, Recycle: true, Tears: tears}
}

// internalOrder orders group members so that as many in-group edges as
// possible point forward: repeated selection of the member with no
// unresolved in-group predecessors, smallest id first; when only cyclic
// members remain, the smallest id breaks the cycle.
func internalOrder(comp []string, adjacency map[string]map[string]bool) []string {
	remaining := map[string]bool{}
	for _, id := range comp {
		remaining[id] = true
	}
	inDeg := map[string]int{}
	for _, from := range comp {
		for to := range adjacency[from] {
			if remaining[to] && to != from {
				inDeg[to]++
			}
		}
	}

	var order []string
	for len(remaining) > 0 {
		pick := ""
		for _, id := range comp {
			if remaining[id] && inDeg[id] == 0 {
				pick = id
				break
			}
		}
		if pick == "" {
			// Cyclic core: break at the smallest remaining id.
			for _, id := range comp {
				if remaining[id] {
					pick = id
					break
				}
			}
		}
		order = append(order, pick)
		delete(remaining, pick)
		for to := range adjacency[pick] {
			if remaining[to] && inDeg[to] > 0 {
				inDeg[to]--
			}
		}
	}
	return order
}
