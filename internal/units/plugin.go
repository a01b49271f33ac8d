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

package units

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hbd-flex/thermoplant/api/plant"
)

// ParamType restricts what a parameter schema entry accepts.
type ParamType string

const (
	ParamFloat  ParamType = "float"
	ParamBool   ParamType = "bool"
	ParamString ParamType = "string"
)

// ParamSpec declares one entry of a plugin's parameter schema.
type ParamSpec struct {
	Type     ParamType
	Required bool
	// Default is used when neither the graph nor the defaults table
	// supplies a value. Ignored for required parameters.
	Default any
}

// PortDecl declares one port of a plugin's port spec.
type PortDecl struct {
	Medium    plant.Medium
	Direction plant.PortDirection

	// Optional input ports fall back to a documented default upstream
	// condition when no stream feeds them.
	Optional bool

	// Splitting output ports may fan out to multiple destinations.
	Splitting bool
}

// Params is a unit's resolved parameter set: type defaults merged with
// graph values and run-case toggles.
type Params map[string]any

// Float reads a numeric parameter, tolerating JSON/YAML decoding variants.
func (p Params) Float(key string, fallback float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return fallback
}

// Bool reads a boolean parameter.
func (p Params) Bool(key string, fallback bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return fallback
}

// String reads a string parameter.
func (p Params) String(key, fallback string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return fallback
}

// Evaluation is the output of one unit evaluation: exactly one PortState
// per declared output port, plus scalar metrics (shaft_power_MW,
// fuel_MW_LHV, heat_delivered_MWth, ...) consumed by the KPI evaluator.
type Evaluation struct {
	Outputs map[string]plant.PortState
	Metrics map[string]float64
}

// Margin is the result of one constraint predicate: negative means
// violated, with the magnitude reported.
type Margin struct {
	Name   string
	Margin float64
}

// Plugin is the evaluation contract every unit model implements.
//
// Evaluate must be side-effect-free: identical inputs, params and ambient
// always produce identical outputs. The recycle solver's convergence
// reasoning and the optimizer's reproducibility both depend on this.
type Plugin interface {
	// TypeKey is the unique registry key ("GasTurbine", "HRSG", ...).
	TypeKey() string

	// ParamSchema declares the accepted parameters.
	ParamSchema() map[string]ParamSpec

	// Ports resolves the port spec for a parameter set. Most plugins
	// return a fixed spec; Mixer/Splitter resolve their medium from
	// params, and HRSG drops its LP section when disabled.
	Ports(params Params) map[string]PortDecl

	// Evaluate computes output port states from input port states.
	// Missing optional input ports are absent from inputs.
	Evaluate(inputs map[string]plant.PortState, params Params, ambient plant.Ambient) (Evaluation, error)

	// Constraints evaluates the plugin's constraint predicates against a
	// finished evaluation.
	Constraints(eval Evaluation, params Params) []Margin
}

// Registry maps type keys to unit plugins. It is closed (frozen) before
// compilation begins for a run, so no mid-run mutation is possible.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	frozen  bool
}

// NewRegistry returns an empty, mutable registry.
func NewRegistry() *Registry {
	return &Registry{plugins: map[string]Plugin{}}
}

// Register adds a plugin under its type key. Duplicate keys and
// registration after Freeze are errors.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("registry is frozen, cannot register %q", p.TypeKey())
	}
	key := p.TypeKey()
	if _, exists := r.plugins[key]; exists {
		return fmt.Errorf("unit type %q is already registered", key)
	}
	r.plugins[key] = p
	return nil
}

// Freeze makes the registry immutable. Compilation requires a frozen
// registry.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen reports whether the registry has been closed.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Lookup returns the plugin for a type key.
func (r *Registry) Lookup(typeKey string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[typeKey]
	return p, ok
}

// Types lists the registered type keys in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.plugins))
	for k := range r.plugins {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Builtin returns a frozen registry holding the reference unit set.
func Builtin() *Registry {
	r := NewRegistry()
	for _, p := range []Plugin{
		&GasTurbine{},
		&DuctBurner{},
		&HRSG{},
		&SteamTurbine{},
		&Condenser{},
		&Pump{},
		&Mixer{},
		&Splitter{},
		&HotWaterHX{},
		&PeakBoilerHW{},
		&ThermalStorageTank{},
	} {
		if err := r.Register(p); err != nil {
			// Builtin plugins have distinct hardcoded keys.
			panic(err)
		}
	}
	r.Freeze()
	return r
}

// ValidateParams checks a resolved parameter set against a schema:
// required entries present, types coercible.
func ValidateParams(schema map[string]ParamSpec, params Params) error {
	names := make([]string, 0, len(schema))
	for name := range schema {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := schema[name]
		v, present := params[name]
		if !present {
			if spec.Required {
				return fmt.Errorf("required parameter %q missing", name)
			}
			continue
		}
		switch spec.Type {
		case ParamFloat:
			switch v.(type) {
			case float64, float32, int, int64:
			default:
				return fmt.Errorf("parameter %q must be numeric, got %T", name, v)
			}
		case ParamBool:
			if _, ok := v.(bool); !ok {
				return fmt.Errorf("parameter %q must be boolean, got %T", name, v)
			}
		case ParamString:
			if _, ok := v.(string); !ok {
				return fmt.Errorf("parameter %q must be a string, got %T", name, v)
			}
		}
	}
	return nil
}
