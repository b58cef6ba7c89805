package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/aerolink/drone-mcp/internal/backend"
	"github.com/aerolink/drone-mcp/internal/config"
	"github.com/aerolink/drone-mcp/internal/fault"
	"github.com/aerolink/drone-mcp/internal/nlp"
)

// moveBody is the request payload of a move command.
type moveBody struct {
	Direction  string `json:"direction"`
	DistanceCm int    `json:"distance_cm"`
}

// rotateBody is the request payload of a rotate command.
type rotateBody struct {
	RotationDirection string `json:"rotation_direction"`
	AngleDeg          int    `json:"angle_deg"`
}

// altitudeBody is the request payload of an altitude command.
type altitudeBody struct {
	TargetCm int `json:"target_cm"`
}

// Router builds BatchPlans from parsed intents.
type Router struct {
	commandTimeout time.Duration
}

// New creates a router. Command timeouts derive from the backend timeout.
func New(cfg *config.Config) *Router {
	return &Router{
		commandTimeout: time.Duration(cfg.Backend.TimeoutS) * time.Second,
	}
}

// simState tracks the simulated condition of one drone while walking a plan.
// Snapshot-known drones start from their reported state; drones the plan
// first touches with a connect become known from that point on.
type simState struct {
	known     bool
	connected bool
	flying    bool
}

// Plan converts a sequence of intents into a BatchPlan. Precondition failures
// do not abort planning; the offending command carries its error and fails at
// dispatch without a backend call.
func (r *Router) Plan(intents []nlp.ParsedIntent, snapshot map[string]backend.DroneStatus, policy FailurePolicy) (*BatchPlan, error) {
	if len(intents) == 0 {
		return nil, fault.New(fault.KindInvalidParams, "empty intent sequence")
	}
	if policy == "" {
		policy = StopOnError
	}

	states := make(map[string]*simState, len(snapshot))
	for id, st := range snapshot {
		states[id] = &simState{known: true, connected: st.Connected, flying: st.Flying}
	}
	state := func(droneID string) *simState {
		st, ok := states[droneID]
		if !ok {
			st = &simState{}
			states[droneID] = st
		}
		return st
	}

	lastConnect := make(map[string]string) // drone id -> command id
	lastTakeoff := make(map[string]string)

	plan := &BatchPlan{
		ID:     "batch-" + uuid.NewString(),
		Policy: policy,
	}

	for i, intent := range intents {
		cmd, err := r.command(fmt.Sprintf("c%d", i+1), intent)
		if err != nil {
			return nil, err
		}

		droneID := intent.Parameters.TargetDroneID
		st := state(droneID)
		r.checkPreconditions(cmd, st)
		advanceState(intent.Action, st)

		// Implicit ordering: everything after a connect waits for it;
		// movement waits for the most recent takeoff.
		if dep, ok := lastConnect[droneID]; ok && cmd.ID != dep {
			cmd.DependsOn = appendUnique(cmd.DependsOn, dep)
		}
		if requiresFlight(intent.Action) {
			if dep, ok := lastTakeoff[droneID]; ok {
				cmd.DependsOn = appendUnique(cmd.DependsOn, dep)
			}
		}
		switch intent.Action {
		case nlp.ActionConnect:
			lastConnect[droneID] = cmd.ID
		case nlp.ActionTakeoff:
			lastTakeoff[droneID] = cmd.ID
		}

		plan.Commands = append(plan.Commands, cmd)
	}

	plan.Mode = planMode(plan.Commands)
	return plan, nil
}

// planMode selects the execution mode: commands over one drone run strictly
// in plan order; multi-drone batches run their per-drone chains concurrently,
// or fully parallel when no command depends on another.
func planMode(commands []*Command) ExecutionMode {
	drones := make(map[string]struct{})
	hasDeps := false
	for _, cmd := range commands {
		drones[cmd.Intent.Parameters.TargetDroneID] = struct{}{}
		if len(cmd.DependsOn) > 0 {
			hasDeps = true
		}
	}
	switch {
	case len(drones) <= 1:
		return ModeSequential
	case hasDeps:
		return ModeMixed
	default:
		return ModeParallel
	}
}

// command maps one intent onto its backend call.
func (r *Router) command(id string, intent nlp.ParsedIntent) (*Command, error) {
	p := intent.Parameters
	droneID := p.TargetDroneID

	cmd := &Command{
		ID:      id,
		Intent:  intent,
		Timeout: r.commandTimeout,
	}

	needsDrone := intent.Action != nlp.ActionStatusQuery && intent.Action != nlp.ActionEmergencyStop
	if needsDrone && droneID == "" {
		return nil, fault.Newf(fault.KindInvalidParams, "%s requires a drone id", intent.Action)
	}

	switch intent.Action {
	case nlp.ActionConnect:
		cmd.Call = post(droneID, "/connect")
		cmd.Idempotent = true
	case nlp.ActionDisconnect:
		cmd.Call = post(droneID, "/disconnect")
		cmd.Idempotent = true
	case nlp.ActionTakeoff:
		cmd.Call = post(droneID, "/takeoff")
		cmd.Idempotent = true
	case nlp.ActionLand:
		cmd.Call = post(droneID, "/land")
		cmd.Idempotent = true
	case nlp.ActionMove:
		if p.Direction == "" || p.DistanceCm == 0 {
			return nil, fault.New(fault.KindInvalidParams, "move requires direction and distance")
		}
		cmd.Call = post(droneID, "/move")
		cmd.Call.Body = moveBody{Direction: string(p.Direction), DistanceCm: p.DistanceCm}
	case nlp.ActionRotate:
		if p.AngleDeg == 0 {
			return nil, fault.New(fault.KindInvalidParams, "rotate requires an angle")
		}
		cmd.Call = post(droneID, "/rotate")
		cmd.Call.Body = rotateBody{RotationDirection: string(p.RotationDirection), AngleDeg: p.AngleDeg}
	case nlp.ActionAltitudeSet:
		if p.AltitudeCm == 0 {
			return nil, fault.New(fault.KindInvalidParams, "altitude_set requires a target")
		}
		cmd.Call = post(droneID, "/altitude")
		cmd.Call.Body = altitudeBody{TargetCm: p.AltitudeCm}
		cmd.Idempotent = true
	case nlp.ActionPhoto:
		cmd.Call = post(droneID, "/photo")
	case nlp.ActionVideoStart:
		cmd.Call = post(droneID, "/video/start")
		cmd.Idempotent = true
	case nlp.ActionVideoStop:
		cmd.Call = post(droneID, "/video/stop")
		cmd.Idempotent = true
	case nlp.ActionEmergencyStop:
		if droneID == "" {
			cmd.Call = backend.Call{Method: http.MethodPost, Path: "/emergency", Endpoint: "/emergency"}
		} else {
			cmd.Call = post(droneID, "/emergency")
		}
		cmd.Idempotent = true
	case nlp.ActionStatusQuery:
		if droneID == "" {
			cmd.Call = backend.Call{Method: http.MethodGet, Path: "/drones", Endpoint: "/drones"}
		} else {
			cmd.Call = backend.Call{Method: http.MethodGet, Path: "/drones/" + droneID, Endpoint: "/drones/{id}"}
		}
		cmd.Idempotent = true
	default:
		return nil, fault.Newf(fault.KindInvalidParams, "intent %s is not routable", intent.Action)
	}

	cmd.Call.Timeout = cmd.Timeout
	cmd.Call.Idempotent = cmd.Idempotent
	return cmd, nil
}

func post(droneID, suffix string) backend.Call {
	return backend.Call{
		Method:   http.MethodPost,
		Path:     "/drones/" + droneID + "/" + trimSlash(suffix),
		Endpoint: suffix,
	}
}

func trimSlash(s string) string {
	if len(s) > 0 && s[0] == '/' {
		return s[1:]
	}
	return s
}

// checkPreconditions evaluates state and range requirements for a command
// against the simulated drone state. State checks are skipped for drones the
// gateway has no knowledge of; range checks always apply.
func (r *Router) checkPreconditions(cmd *Command, st *simState) {
	p := cmd.Intent.Parameters

	switch cmd.Intent.Action {
	case nlp.ActionTakeoff:
		cmd.Preconditions = []string{"connected", "not_flying"}
		if st.known {
			if !st.connected {
				cmd.PreconditionErr = fault.New(fault.KindPreconditionFailed, "takeoff requires a connected drone")
			} else if st.flying {
				cmd.PreconditionErr = fault.New(fault.KindPreconditionFailed, "drone is already flying")
			}
		}
	case nlp.ActionLand:
		cmd.Preconditions = []string{"flying"}
		if st.known && !st.flying {
			cmd.PreconditionErr = fault.New(fault.KindPreconditionFailed, "land requires a flying drone")
		}
	case nlp.ActionMove:
		cmd.Preconditions = []string{"flying", "distance_range"}
		if st.known && !st.flying {
			cmd.PreconditionErr = fault.New(fault.KindPreconditionFailed, "move requires a flying drone")
		} else if p.DistanceCm < MinDistanceCm || p.DistanceCm > MaxDistanceCm {
			cmd.PreconditionErr = fault.Newf(fault.KindPreconditionFailed,
				"distance %d cm outside [%d, %d]", p.DistanceCm, MinDistanceCm, MaxDistanceCm).
				WithAttribute("parameter", "distance_cm")
		}
	case nlp.ActionRotate:
		cmd.Preconditions = []string{"flying", "angle_range"}
		if st.known && !st.flying {
			cmd.PreconditionErr = fault.New(fault.KindPreconditionFailed, "rotate requires a flying drone")
		} else if p.AngleDeg < MinAngleDeg || p.AngleDeg > MaxAngleDeg {
			cmd.PreconditionErr = fault.Newf(fault.KindPreconditionFailed,
				"angle %d outside [%d, %d]", p.AngleDeg, MinAngleDeg, MaxAngleDeg).
				WithAttribute("parameter", "angle_deg")
		}
	case nlp.ActionAltitudeSet:
		cmd.Preconditions = []string{"flying", "altitude_range"}
		if st.known && !st.flying {
			cmd.PreconditionErr = fault.New(fault.KindPreconditionFailed, "altitude change requires a flying drone")
		} else if p.AltitudeCm < MinAltitudeCm || p.AltitudeCm > MaxAltitudeCm {
			cmd.PreconditionErr = fault.Newf(fault.KindPreconditionFailed,
				"altitude %d cm outside [%d, %d]", p.AltitudeCm, MinAltitudeCm, MaxAltitudeCm).
				WithAttribute("parameter", "altitude_cm")
		}
	case nlp.ActionPhoto:
		cmd.Preconditions = []string{"flying"}
		if st.known && !st.flying {
			cmd.PreconditionErr = fault.New(fault.KindPreconditionFailed, "photo requires a flying drone")
		}
	case nlp.ActionVideoStart, nlp.ActionVideoStop:
		cmd.Preconditions = []string{"connected"}
		if st.known && !st.connected {
			cmd.PreconditionErr = fault.New(fault.KindPreconditionFailed, "video control requires a connected drone")
		}
	}
}

// advanceState applies a command's intended effect to the simulated state so
// later commands in the same plan see it.
func advanceState(action nlp.Action, st *simState) {
	switch action {
	case nlp.ActionConnect:
		st.known = true
		st.connected = true
	case nlp.ActionDisconnect:
		st.known = true
		st.connected = false
		st.flying = false
	case nlp.ActionTakeoff:
		if st.known {
			st.flying = true
		}
	case nlp.ActionLand, nlp.ActionEmergencyStop:
		if st.known {
			st.flying = false
		}
	}
}

// requiresFlight reports whether an action needs an airborne drone and must
// therefore wait for the most recent takeoff.
func requiresFlight(action nlp.Action) bool {
	switch action {
	case nlp.ActionMove, nlp.ActionRotate, nlp.ActionAltitudeSet, nlp.ActionLand, nlp.ActionPhoto:
		return true
	}
	return false
}

func appendUnique(deps []string, id string) []string {
	for _, d := range deps {
		if d == id {
			return deps
		}
	}
	return append(deps, id)
}
