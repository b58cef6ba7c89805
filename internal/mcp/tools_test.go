package mcp

import (
	"testing"

	"github.com/aerolink/drone-mcp/internal/fault"
)

func TestCatalogCompiles(t *testing.T) {
	c, err := NewCatalog()
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	if got := len(c.List()); got != len(toolDescriptors) {
		t.Fatalf("catalog lists %d tools, want %d", got, len(toolDescriptors))
	}
	if _, err := c.Lookup("no_such_tool"); fault.KindOf(err) != fault.KindMethodNotFound {
		t.Fatalf("unknown tool kind = %v", fault.KindOf(err))
	}
}

func TestToolArgumentValidation(t *testing.T) {
	c, err := NewCatalog()
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}

	cases := []struct {
		name string
		tool string
		args map[string]interface{}
		ok   bool
	}{
		{"connect valid", "connect_drone", map[string]interface{}{"drone_id": "AA"}, true},
		{"connect missing id", "connect_drone", map[string]interface{}{}, false},
		{"connect bad id", "connect_drone", map[string]interface{}{"drone_id": "a b"}, false},
		{"move valid", "move", map[string]interface{}{"drone_id": "AA", "direction": "right", "distance_cm": float64(50)}, true},
		{"move bad direction", "move", map[string]interface{}{"drone_id": "AA", "direction": "sideways", "distance_cm": float64(50)}, false},
		{"move extra field", "move", map[string]interface{}{"drone_id": "AA", "direction": "right", "distance_cm": float64(50), "speed": float64(1)}, false},
		{"rotate without direction", "rotate", map[string]interface{}{"drone_id": "AA", "angle_deg": float64(90)}, true},
		{"emergency fleet wide", "emergency_stop", map[string]interface{}{}, true},
		{"nl valid", "execute_natural_language_command", map[string]interface{}{"text": "離陸して"}, true},
		{"nl empty text", "execute_natural_language_command", map[string]interface{}{"text": ""}, false},
		{"nl bad policy", "execute_natural_language_command", map[string]interface{}{"text": "離陸して", "failure_policy": "abort"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tool, err := c.Lookup(tc.tool)
			if err != nil {
				t.Fatalf("Lookup(%s): %v", tc.tool, err)
			}
			err = tool.Validate(tc.args)
			if tc.ok && err != nil {
				t.Fatalf("Validate rejected valid args: %v", err)
			}
			if !tc.ok && fault.KindOf(err) != fault.KindInvalidParams {
				t.Fatalf("Validate kind = %v, want invalid_params", fault.KindOf(err))
			}
		})
	}
}
