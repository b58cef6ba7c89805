// Package nlp implements the natural language command pipeline: normalization
// of Japanese input, tokenization, intent classification, parameter extraction
// and confidence scoring. Parsing is a pure function of (text, default drone
// id, configuration); identical inputs always yield identical output.
package nlp

// Action is one of the closed set of intents the pipeline recognizes.
type Action string

const (
	ActionConnect       Action = "connect"
	ActionDisconnect    Action = "disconnect"
	ActionTakeoff       Action = "takeoff"
	ActionLand          Action = "land"
	ActionMove          Action = "move"
	ActionRotate        Action = "rotate"
	ActionAltitudeSet   Action = "altitude_set"
	ActionPhoto         Action = "photo"
	ActionVideoStart    Action = "video_start"
	ActionVideoStop     Action = "video_stop"
	ActionStatusQuery   Action = "status_query"
	ActionEmergencyStop Action = "emergency_stop"
	ActionHelp          Action = "help"
	ActionUnknown       Action = "unknown"
)

// Direction of a move intent.
type Direction string

const (
	DirForward Direction = "forward"
	DirBack    Direction = "back"
	DirLeft    Direction = "left"
	DirRight   Direction = "right"
	DirUp      Direction = "up"
	DirDown    Direction = "down"
)

// RotationDirection of a rotate intent.
type RotationDirection string

const (
	RotClockwise        RotationDirection = "clockwise"
	RotCounterClockwise RotationDirection = "counter_clockwise"
)

// Parameters carries the extracted arguments of a parse. Values are recorded
// as extracted; range enforcement happens downstream so that out-of-range
// requests surface as precondition failures, not parse failures.
type Parameters struct {
	Direction         Direction         `json:"direction,omitempty"`
	DistanceCm        int               `json:"distance_cm,omitempty"`
	RotationDirection RotationDirection `json:"rotation_direction,omitempty"`
	AngleDeg          int               `json:"angle_deg,omitempty"`
	AltitudeCm        int               `json:"altitude_cm,omitempty"`
	DurationS         int               `json:"duration_s,omitempty"`
	TargetDroneID     string            `json:"target_drone_id,omitempty"`
}

// ParsedIntent is the immutable output of one parsed clause.
type ParsedIntent struct {
	Action       Action     `json:"action"`
	Parameters   Parameters `json:"parameters"`
	Confidence   float64    `json:"confidence"`
	RawText      string     `json:"raw_text"`
	SourceTokens []string   `json:"source_tokens"`
}

// Candidate is an alternative reading reported with low-confidence rejections.
type Candidate struct {
	Action     Action  `json:"action"`
	Confidence float64 `json:"confidence"`
}
