package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/aerolink/drone-mcp/internal/fault"
	"github.com/aerolink/drone-mcp/internal/nlp"
	"github.com/aerolink/drone-mcp/internal/security"
)

// ToolDescriptor is one entry of the tool catalog: a named, schema-typed
// operation with a minimum role. Dispatch is a map lookup; there is no
// dynamic method resolution.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema string
	MinRole     security.Role

	schema *jsonschema.Schema
}

// toolListEntry is the wire form of a descriptor for tools/list.
type toolListEntry struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema"`
	MinRole     string      `json:"min_role"`
}

const droneIDPattern = `^[A-Za-z0-9_\\-]+$`

var toolDescriptors = []ToolDescriptor{
	{
		Name:        "connect_drone",
		Description: "Establish a control link to a drone",
		MinRole:     security.RoleOperator,
		InputSchema: `{
			"type": "object",
			"properties": {
				"drone_id": {"type": "string", "pattern": "` + droneIDPattern + `"}
			},
			"required": ["drone_id"],
			"additionalProperties": false
		}`,
	},
	{
		Name:        "disconnect_drone",
		Description: "Release the control link to a drone",
		MinRole:     security.RoleOperator,
		InputSchema: `{
			"type": "object",
			"properties": {
				"drone_id": {"type": "string", "pattern": "` + droneIDPattern + `"}
			},
			"required": ["drone_id"],
			"additionalProperties": false
		}`,
	},
	{
		Name:        "takeoff",
		Description: "Take off and hover",
		MinRole:     security.RoleOperator,
		InputSchema: `{
			"type": "object",
			"properties": {
				"drone_id": {"type": "string", "pattern": "` + droneIDPattern + `"}
			},
			"required": ["drone_id"],
			"additionalProperties": false
		}`,
	},
	{
		Name:        "land",
		Description: "Land at the current position",
		MinRole:     security.RoleOperator,
		InputSchema: `{
			"type": "object",
			"properties": {
				"drone_id": {"type": "string", "pattern": "` + droneIDPattern + `"}
			},
			"required": ["drone_id"],
			"additionalProperties": false
		}`,
	},
	{
		Name:        "move",
		Description: "Move a flying drone in a direction by a distance in centimeters",
		MinRole:     security.RoleOperator,
		InputSchema: `{
			"type": "object",
			"properties": {
				"drone_id": {"type": "string", "pattern": "` + droneIDPattern + `"},
				"direction": {"type": "string", "enum": ["forward", "back", "left", "right", "up", "down"]},
				"distance_cm": {"type": "integer", "minimum": 1}
			},
			"required": ["drone_id", "direction", "distance_cm"],
			"additionalProperties": false
		}`,
	},
	{
		Name:        "rotate",
		Description: "Rotate a flying drone by an angle in degrees",
		MinRole:     security.RoleOperator,
		InputSchema: `{
			"type": "object",
			"properties": {
				"drone_id": {"type": "string", "pattern": "` + droneIDPattern + `"},
				"rotation_direction": {"type": "string", "enum": ["clockwise", "counter_clockwise"]},
				"angle_deg": {"type": "integer", "minimum": 1}
			},
			"required": ["drone_id", "angle_deg"],
			"additionalProperties": false
		}`,
	},
	{
		Name:        "set_altitude",
		Description: "Fly a drone to an absolute altitude in centimeters",
		MinRole:     security.RoleOperator,
		InputSchema: `{
			"type": "object",
			"properties": {
				"drone_id": {"type": "string", "pattern": "` + droneIDPattern + `"},
				"altitude_cm": {"type": "integer", "minimum": 1}
			},
			"required": ["drone_id", "altitude_cm"],
			"additionalProperties": false
		}`,
	},
	{
		Name:        "take_photo",
		Description: "Capture a photo from a flying drone",
		MinRole:     security.RoleOperator,
		InputSchema: `{
			"type": "object",
			"properties": {
				"drone_id": {"type": "string", "pattern": "` + droneIDPattern + `"}
			},
			"required": ["drone_id"],
			"additionalProperties": false
		}`,
	},
	{
		Name:        "start_video",
		Description: "Start video recording on a connected drone",
		MinRole:     security.RoleOperator,
		InputSchema: `{
			"type": "object",
			"properties": {
				"drone_id": {"type": "string", "pattern": "` + droneIDPattern + `"}
			},
			"required": ["drone_id"],
			"additionalProperties": false
		}`,
	},
	{
		Name:        "stop_video",
		Description: "Stop video recording on a connected drone",
		MinRole:     security.RoleOperator,
		InputSchema: `{
			"type": "object",
			"properties": {
				"drone_id": {"type": "string", "pattern": "` + droneIDPattern + `"}
			},
			"required": ["drone_id"],
			"additionalProperties": false
		}`,
	},
	{
		Name:        "emergency_stop",
		Description: "Immediately cut motors; fleet-wide when no drone id is given",
		MinRole:     security.RoleOperator,
		InputSchema: `{
			"type": "object",
			"properties": {
				"drone_id": {"type": "string", "pattern": "` + droneIDPattern + `"}
			},
			"additionalProperties": false
		}`,
	},
	{
		Name:        "get_drone_status",
		Description: "Read the status of one drone or of the whole fleet",
		MinRole:     security.RoleReadonly,
		InputSchema: `{
			"type": "object",
			"properties": {
				"drone_id": {"type": "string", "pattern": "` + droneIDPattern + `"}
			},
			"additionalProperties": false
		}`,
	},
	{
		Name:        "execute_natural_language_command",
		Description: "Parse a Japanese natural language command and execute the resulting plan",
		MinRole:     security.RoleOperator,
		InputSchema: `{
			"type": "object",
			"properties": {
				"text": {"type": "string", "minLength": 1},
				"drone_id": {"type": ["string", "null"], "pattern": "` + droneIDPattern + `"},
				"failure_policy": {"type": "string", "enum": ["stop_on_error", "continue", "rollback"]}
			},
			"required": ["text"],
			"additionalProperties": false
		}`,
	},
}

// toolAction maps direct tool names onto intent actions. The natural
// language tool resolves actions through the parser instead.
var toolAction = map[string]nlp.Action{
	"connect_drone":    nlp.ActionConnect,
	"disconnect_drone": nlp.ActionDisconnect,
	"takeoff":          nlp.ActionTakeoff,
	"land":             nlp.ActionLand,
	"move":             nlp.ActionMove,
	"rotate":           nlp.ActionRotate,
	"set_altitude":     nlp.ActionAltitudeSet,
	"take_photo":       nlp.ActionPhoto,
	"start_video":      nlp.ActionVideoStart,
	"stop_video":       nlp.ActionVideoStop,
	"emergency_stop":   nlp.ActionEmergencyStop,
	"get_drone_status": nlp.ActionStatusQuery,
}

// Catalog holds the compiled tool table.
type Catalog struct {
	tools map[string]*ToolDescriptor
	order []string
}

// NewCatalog compiles every tool schema. Compilation failure is a programming
// error surfaced at startup.
func NewCatalog() (*Catalog, error) {
	c := &Catalog{tools: make(map[string]*ToolDescriptor, len(toolDescriptors))}
	for i := range toolDescriptors {
		d := toolDescriptors[i]

		compiler := jsonschema.NewCompiler()
		url := d.Name + ".schema.json"
		if err := compiler.AddResource(url, strings.NewReader(d.InputSchema)); err != nil {
			return nil, fmt.Errorf("adding schema for %s: %w", d.Name, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compiling schema for %s: %w", d.Name, err)
		}
		d.schema = schema

		c.tools[d.Name] = &d
		c.order = append(c.order, d.Name)
	}
	return c, nil
}

// Lookup returns the descriptor for a tool name.
func (c *Catalog) Lookup(name string) (*ToolDescriptor, error) {
	d, ok := c.tools[name]
	if !ok {
		return nil, fault.Newf(fault.KindMethodNotFound, "unknown tool %q", name)
	}
	return d, nil
}

// Validate checks decoded arguments against the tool's schema.
func (d *ToolDescriptor) Validate(arguments interface{}) error {
	if arguments == nil {
		arguments = map[string]interface{}{}
	}
	if err := d.schema.Validate(arguments); err != nil {
		return fault.Wrap(fault.KindInvalidParams, "arguments do not match tool schema", err)
	}
	return nil
}

// List renders the catalog for tools/list, in declaration order.
func (c *Catalog) List() []toolListEntry {
	out := make([]toolListEntry, 0, len(c.order))
	for _, name := range c.order {
		d := c.tools[name]
		out = append(out, toolListEntry{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: rawSchema(d.InputSchema),
			MinRole:     d.MinRole.String(),
		})
	}
	return out
}

// rawSchema re-decodes a schema literal so tools/list emits it as an object,
// not a string.
func rawSchema(schema string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(schema), &v); err != nil {
		return schema
	}
	return v
}
