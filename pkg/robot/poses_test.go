package robot

import (
	"encoding/json"
	"math"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestPoses_UnmarshalJSON(t *testing.T) {
	data := `{
		"home":  [0, -1.57, 0, -1.57, 0, 0],
		"above": [0.1, -1.2, 1.3, -0.5, 1.0, 4.7]
	}`

	var poses Poses
	if err := json.Unmarshal([]byte(data), &poses); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	q, ok := poses.Lookup("home")
	if !ok {
		t.Fatal("home pose missing")
	}
	if q[1] != -1.57 {
		t.Errorf("home[1] = %f, want -1.57", q[1])
	}

	names := poses.Names()
	if len(names) != 2 || names[0] != "above" || names[1] != "home" {
		t.Errorf("Names() = %v, want [above home]", names)
	}
}

func TestPoses_WrongJointCount(t *testing.T) {
	tests := []struct {
		name string
		json string
		yaml string
	}{
		{"too few", `{"bad": [1, 2, 3]}`, "bad: [1, 2, 3]"},
		{"too many", `{"bad": [1, 2, 3, 4, 5, 6, 7]}`, "bad: [1, 2, 3, 4, 5, 6, 7]"},
		{"empty", `{"bad": []}`, "bad: []"},
	}

	for _, tt := range tests {
		var fromJSON Poses
		if err := json.Unmarshal([]byte(tt.json), &fromJSON); err == nil {
			t.Errorf("%s: expected JSON error, got %v", tt.name, fromJSON)
		}
		var fromYAML Poses
		if err := yaml.Unmarshal([]byte(tt.yaml), &fromYAML); err == nil {
			t.Errorf("%s: expected YAML error, got %v", tt.name, fromYAML)
		}
	}
}

func TestPoses_Validate(t *testing.T) {
	tests := []struct {
		name    string
		poses   Poses
		wantErr bool
	}{
		{"defaults", DefaultPoses, false},
		{"empty name", Poses{" ": {}}, true},
		{"nan", Poses{"x": {math.NaN()}}, true},
		{"inf", Poses{"x": {0, math.Inf(-1)}}, true},
	}

	for _, tt := range tests {
		err := tt.poses.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestPoses_Merge(t *testing.T) {
	base := Poses{"a": {1}, "b": {2}}
	merged := base.Merge(Poses{"b": {3}, "c": {4}})

	want := map[string]float64{"a": 1, "b": 3, "c": 4}
	for name, v := range want {
		if merged[name][0] != v {
			t.Errorf("merged[%q][0] = %f, want %f", name, merged[name][0], v)
		}
	}
	if base["b"][0] != 2 {
		t.Error("Merge modified the receiver")
	}
}
