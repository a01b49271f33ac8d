// Package defaults is the read-only lookup table consulted whenever a
// required unit parameter or initial estimate is absent from the input
// graph. The built-in table ships embedded in the binary; a site override
// file can be layered on top. When the table itself is silent, callers
// fall back to the baked-in value they pass to Param.
package defaults

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hbd-flex/thermoplant/api/plant"
)

//go:embed defaults.yaml
var builtinYAML []byte

// Table holds per-unit-type parameter defaults plus plant-wide constraint
// thresholds. Immutable after construction.
type Table struct {
	// Ambient are the site conditions assumed when the graph omits them.
	Ambient plant.Ambient `yaml:"ambient"`

	// Units maps a plugin type key to its default parameters.
	Units map[string]map[string]any `yaml:"units"`

	// Constraints are plant-wide constraint thresholds (e.g. METAL_max_T_C).
	Constraints map[string]float64 `yaml:"constraints"`
}

// Builtin parses the embedded defaults table.
func Builtin() (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(builtinYAML, &t); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("embedded defaults invalid: %w", err)
	}
	return &t, nil
}

// LoadFile reads a site override file (any format viper understands) and
// merges it over the built-in table. Entries in the file win.
func LoadFile(path string) (*Table, error) {
	base, err := Builtin()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading defaults override %s: %w", path, err)
	}

	// Decode against the json tags so the lowercased keys viper produces
	// still land on fields like Ambient.TC (tag "T_C").
	var override Table
	if err := v.Unmarshal(&override, func(dc *mapstructure.DecoderConfig) { dc.TagName = "json" }); err != nil {
		return nil, fmt.Errorf("decoding defaults override %s: %w", path, err)
	}
	base.merge(&override)
	if err := base.Validate(); err != nil {
		return nil, fmt.Errorf("defaults override %s invalid: %w", path, err)
	}
	return base, nil
}

// canonicalKey maps an override key onto an existing entry ignoring case.
// Viper lowercases configuration keys, so a file override of
// "GasTurbine.iso_rating_MW" arrives as "gasturbine.iso_rating_mw" and
// must still land on the built-in entry.
func canonicalKey[V any](m map[string]V, key string) string {
	if _, ok := m[key]; ok {
		return key
	}
	for k := range m {
		if strings.EqualFold(k, key) {
			return k
		}
	}
	return key
}

func (t *Table) merge(o *Table) {
	if o.Ambient != (plant.Ambient{}) {
		t.Ambient = o.Ambient
	}
	for typeKey, params := range o.Units {
		typeKey = canonicalKey(t.Units, typeKey)
		if t.Units[typeKey] == nil {
			t.Units[typeKey] = map[string]any{}
		}
		for k, v := range params {
			t.Units[typeKey][canonicalKey(t.Units[typeKey], k)] = v
		}
	}
	for k, v := range o.Constraints {
		if t.Constraints == nil {
			t.Constraints = map[string]float64{}
		}
		t.Constraints[canonicalKey(t.Constraints, k)] = v
	}
}

// Validate rejects tables with physically impossible entries. Efficiency
// style keys must stay in (0, 1].
func (t *Table) Validate() error {
	for typeKey, params := range t.Units {
		for name, raw := range params {
			f, ok := asFloat(raw)
			if !ok {
				continue
			}
			switch name {
			case "eta_isentropic", "mech_efficiency", "generator_efficiency", "eta", "eta_LHV":
				if f <= 0 || f > 1 {
					return fmt.Errorf("%s.%s must lie in (0, 1], got %g", typeKey, name, f)
				}
			}
			if name == "soc_init" && (f < 0 || f > 1) {
				return fmt.Errorf("%s.%s must lie in [0, 1], got %g", typeKey, name, f)
			}
		}
	}
	return nil
}

// UnitDefaults returns a copy of the default parameters for a unit type.
// Unknown types yield an empty map.
func (t *Table) UnitDefaults(typeKey string) map[string]any {
	out := make(map[string]any, len(t.Units[typeKey]))
	for k, v := range t.Units[typeKey] {
		out[k] = v
	}
	return out
}

// Merge overlays user parameters on the type defaults. User values win.
func (t *Table) Merge(typeKey string, userParams map[string]any) map[string]any {
	merged := t.UnitDefaults(typeKey)
	for k, v := range userParams {
		merged[k] = v
	}
	return merged
}

// Param resolves a single default parameter, falling back to the baked-in
// value when the table is silent.
func (t *Table) Param(typeKey, name string, fallback float64) float64 {
	if params, ok := t.Units[typeKey]; ok {
		if f, ok := asFloat(params[name]); ok {
			return f
		}
	}
	return fallback
}

// Constraint resolves a plant-wide constraint threshold with a baked-in
// fallback.
func (t *Table) Constraint(name string, fallback float64) float64 {
	if v, ok := t.Constraints[name]; ok {
		return v
	}
	return fallback
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
