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

package plant

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Hash computes a stable content hash of the graph for provenance.
//
// The hash covers ambient, units and streams; Meta is excluded so that
// cosmetic edits (descriptions, editor layout) do not change it. Units and
// streams are sorted before hashing, and encoding/json sorts map keys, so
// the hash is independent of input ordering and formatting.
func (g *PlantGraph) Hash() (string, error) {
	units := make([]Unit, len(g.Units))
	copy(units, g.Units)
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })

	streams := make([]Stream, len(g.Streams))
	copy(streams, g.Streams)
	sort.Slice(streams, func(i, j int) bool {
		if streams[i].From != streams[j].From {
			return streams[i].From < streams[j].From
		}
		return streams[i].To < streams[j].To
	})

	canonical := struct {
		Ambient Ambient  `json:"ambient"`
		Units   []Unit   `json:"units"`
		Streams []Stream `json:"streams"`
	}{g.Ambient, units, streams}

	data, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
