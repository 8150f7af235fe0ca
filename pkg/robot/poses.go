package robot

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Poses holds named joint configurations (teach points), keyed by name.
type Poses map[string]Joints

// Built-in teach points of the cell.
var DefaultPoses = Poses{
	"approach": {-0.029192272816793263, -0.7469827693751832, 1.3175094763385218, -0.5753325384906312, 0.9964199662208557, 4.718315124511719},
	"screw":    {-0.02115327516664678, -0.7476166051677247, 1.3301270643817347, -0.5728175205043335, 1.1413614749908447, 4.7532830238342285},
}

// UnmarshalJSON decodes {"name": [q0, q1, q2, q3, q4, q5]}. A pose with
// any other number of values is rejected rather than zero-filled.
func (p *Poses) UnmarshalJSON(data []byte) error {
	var raw map[string][]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return p.fromRaw(raw)
}

// UnmarshalYAML is the YAML form of UnmarshalJSON.
func (p *Poses) UnmarshalYAML(value *yaml.Node) error {
	var raw map[string][]float64
	if err := value.Decode(&raw); err != nil {
		return err
	}
	return p.fromRaw(raw)
}

func (p *Poses) fromRaw(raw map[string][]float64) error {
	poses := make(Poses, len(raw))
	for name, q := range raw {
		if len(q) != NumJoints {
			return fmt.Errorf("pose %q: want %d joints, got %d", name, NumJoints, len(q))
		}
		poses[name] = Joints(q)
	}
	if err := poses.Validate(); err != nil {
		return err
	}
	*p = poses
	return nil
}

// Validate checks that every pose has a name and finite joint values.
func (p Poses) Validate() error {
	for _, name := range p.Names() {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("pose with empty name")
		}
		if !p[name].Finite() {
			return fmt.Errorf("pose %q: non-finite joint value", name)
		}
	}
	return nil
}

// Names returns the pose names in sorted order.
func (p Poses) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Lookup returns the pose called name.
func (p Poses) Lookup(name string) (Joints, bool) {
	q, ok := p[name]
	return q, ok
}

// Merge returns p overlaid with other; poses in other win.
func (p Poses) Merge(other Poses) Poses {
	out := make(Poses, len(p)+len(other))
	for name, q := range p {
		out[name] = q
	}
	for name, q := range other {
		out[name] = q
	}
	return out
}
