package router

import (
	"strings"

	"github.com/aerolink/drone-mcp/internal/fault"
	"github.com/aerolink/drone-mcp/internal/nlp"
)

// IntentFromCommand reverse-maps a command onto the intent it encodes. The
// mapping is total over commands the router produces: for every routable
// action, IntentFromCommand(command(intent)) yields the same action and
// parameters.
func IntentFromCommand(cmd *Command) (nlp.ParsedIntent, error) {
	intent := nlp.ParsedIntent{Confidence: 1.0}

	droneID, op := splitPath(cmd.Call.Path)
	intent.Parameters.TargetDroneID = droneID

	switch op {
	case "connect":
		intent.Action = nlp.ActionConnect
	case "disconnect":
		intent.Action = nlp.ActionDisconnect
	case "takeoff":
		intent.Action = nlp.ActionTakeoff
	case "land":
		intent.Action = nlp.ActionLand
	case "move":
		intent.Action = nlp.ActionMove
		body, ok := cmd.Call.Body.(moveBody)
		if !ok {
			return intent, fault.New(fault.KindInternal, "move command carries no move body")
		}
		intent.Parameters.Direction = nlp.Direction(body.Direction)
		intent.Parameters.DistanceCm = body.DistanceCm
	case "rotate":
		intent.Action = nlp.ActionRotate
		body, ok := cmd.Call.Body.(rotateBody)
		if !ok {
			return intent, fault.New(fault.KindInternal, "rotate command carries no rotate body")
		}
		intent.Parameters.RotationDirection = nlp.RotationDirection(body.RotationDirection)
		intent.Parameters.AngleDeg = body.AngleDeg
	case "altitude":
		intent.Action = nlp.ActionAltitudeSet
		body, ok := cmd.Call.Body.(altitudeBody)
		if !ok {
			return intent, fault.New(fault.KindInternal, "altitude command carries no altitude body")
		}
		intent.Parameters.AltitudeCm = body.TargetCm
	case "photo":
		intent.Action = nlp.ActionPhoto
	case "video/start":
		intent.Action = nlp.ActionVideoStart
	case "video/stop":
		intent.Action = nlp.ActionVideoStop
	case "emergency":
		intent.Action = nlp.ActionEmergencyStop
	case "":
		intent.Action = nlp.ActionStatusQuery
	default:
		return intent, fault.Newf(fault.KindInternal, "unrecognized command path %q", cmd.Call.Path)
	}
	return intent, nil
}

// splitPath decomposes a command path into (drone id, operation suffix).
// Fleet-wide paths yield an empty drone id.
func splitPath(path string) (string, string) {
	switch path {
	case "/drones":
		return "", ""
	case "/emergency":
		return "", "emergency"
	}
	rest := strings.TrimPrefix(path, "/drones/")
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		return rest[:idx], rest[idx+1:]
	}
	return rest, ""
}
