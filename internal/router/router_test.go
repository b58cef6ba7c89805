package router

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/aerolink/drone-mcp/internal/backend"
	"github.com/aerolink/drone-mcp/internal/config"
	"github.com/aerolink/drone-mcp/internal/fault"
	"github.com/aerolink/drone-mcp/internal/nlp"
)

func testRouter(t *testing.T) *Router {
	t.Helper()
	return New(config.DefaultConfig())
}

func intent(action nlp.Action, params nlp.Parameters) nlp.ParsedIntent {
	return nlp.ParsedIntent{Action: action, Parameters: params, Confidence: 1.0}
}

func TestPlanConnectTakeoffMove(t *testing.T) {
	r := testRouter(t)

	plan, err := r.Plan([]nlp.ParsedIntent{
		intent(nlp.ActionConnect, nlp.Parameters{TargetDroneID: "AA"}),
		intent(nlp.ActionTakeoff, nlp.Parameters{TargetDroneID: "AA"}),
		intent(nlp.ActionMove, nlp.Parameters{TargetDroneID: "AA", Direction: nlp.DirRight, DistanceCm: 50}),
	}, nil, StopOnError)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(plan.Commands) != 3 {
		t.Fatalf("expected 3 commands, got %d", len(plan.Commands))
	}

	connect, takeoff, move := plan.Commands[0], plan.Commands[1], plan.Commands[2]
	if connect.Call.Path != "/drones/AA/connect" {
		t.Errorf("connect path: %s", connect.Call.Path)
	}
	if len(connect.DependsOn) != 0 {
		t.Errorf("connect must have no dependencies: %v", connect.DependsOn)
	}
	if !contains(takeoff.DependsOn, connect.ID) {
		t.Errorf("takeoff must depend on connect: %v", takeoff.DependsOn)
	}
	if !contains(move.DependsOn, takeoff.ID) {
		t.Errorf("move must depend on takeoff: %v", move.DependsOn)
	}
	for _, cmd := range plan.Commands {
		if cmd.PreconditionErr != nil {
			t.Errorf("%s: unexpected precondition failure: %v", cmd.ID, cmd.PreconditionErr)
		}
	}
	if move.Idempotent {
		t.Error("move must not be idempotent")
	}
	if !takeoff.Idempotent {
		t.Error("takeoff must be idempotent")
	}
}

func TestPlanExecutionMode(t *testing.T) {
	r := testRouter(t)

	// A multi-step utterance over one drone runs strictly in order.
	plan, err := r.Plan([]nlp.ParsedIntent{
		intent(nlp.ActionConnect, nlp.Parameters{TargetDroneID: "AA"}),
		intent(nlp.ActionTakeoff, nlp.Parameters{TargetDroneID: "AA"}),
		intent(nlp.ActionMove, nlp.Parameters{TargetDroneID: "AA", Direction: nlp.DirRight, DistanceCm: 50}),
		intent(nlp.ActionMove, nlp.Parameters{TargetDroneID: "AA", Direction: nlp.DirLeft, DistanceCm: 50}),
	}, nil, StopOnError)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if plan.Mode != ModeSequential {
		t.Errorf("single-drone plan mode = %s, want %s", plan.Mode, ModeSequential)
	}

	// Per-drone chains over several drones order along their edges only.
	plan, err = r.Plan([]nlp.ParsedIntent{
		intent(nlp.ActionConnect, nlp.Parameters{TargetDroneID: "AA"}),
		intent(nlp.ActionTakeoff, nlp.Parameters{TargetDroneID: "AA"}),
		intent(nlp.ActionConnect, nlp.Parameters{TargetDroneID: "BB"}),
		intent(nlp.ActionTakeoff, nlp.Parameters{TargetDroneID: "BB"}),
	}, nil, StopOnError)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if plan.Mode != ModeMixed {
		t.Errorf("multi-drone plan mode = %s, want %s", plan.Mode, ModeMixed)
	}

	// Independent commands with no edges at all run fully parallel.
	plan, err = r.Plan([]nlp.ParsedIntent{
		intent(nlp.ActionStatusQuery, nlp.Parameters{TargetDroneID: "AA"}),
		intent(nlp.ActionStatusQuery, nlp.Parameters{TargetDroneID: "BB"}),
	}, nil, Continue)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if plan.Mode != ModeParallel {
		t.Errorf("independent plan mode = %s, want %s", plan.Mode, ModeParallel)
	}
}

// Camera work needs an airborne drone, so it waits for the takeoff the same
// way movement does.
func TestPlanPhotoDependsOnTakeoff(t *testing.T) {
	r := testRouter(t)

	plan, err := r.Plan([]nlp.ParsedIntent{
		intent(nlp.ActionConnect, nlp.Parameters{TargetDroneID: "AA"}),
		intent(nlp.ActionTakeoff, nlp.Parameters{TargetDroneID: "AA"}),
		intent(nlp.ActionPhoto, nlp.Parameters{TargetDroneID: "AA"}),
	}, nil, StopOnError)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	takeoff, photo := plan.Commands[1], plan.Commands[2]
	if !contains(photo.DependsOn, takeoff.ID) {
		t.Errorf("photo must depend on takeoff: %v", photo.DependsOn)
	}
}

func TestPlanDistanceRange(t *testing.T) {
	r := testRouter(t)

	cases := []struct {
		distance int
		rejected bool
	}{
		{20, false},
		{19, true},
		{500, false},
		{501, true},
		{9999, true},
	}
	for _, tc := range cases {
		plan, err := r.Plan([]nlp.ParsedIntent{
			intent(nlp.ActionConnect, nlp.Parameters{TargetDroneID: "AA"}),
			intent(nlp.ActionTakeoff, nlp.Parameters{TargetDroneID: "AA"}),
			intent(nlp.ActionMove, nlp.Parameters{TargetDroneID: "AA", Direction: nlp.DirForward, DistanceCm: tc.distance}),
		}, nil, StopOnError)
		if err != nil {
			t.Fatalf("distance %d: Plan failed: %v", tc.distance, err)
		}
		move := plan.Commands[2]
		got := move.PreconditionErr != nil
		if got != tc.rejected {
			t.Errorf("distance %d: rejected = %v, want %v", tc.distance, got, tc.rejected)
		}
		if tc.rejected && fault.KindOf(move.PreconditionErr) != fault.KindPreconditionFailed {
			t.Errorf("distance %d: expected precondition_failed, got %v", tc.distance, move.PreconditionErr)
		}
	}
}

func TestPlanAngleRange(t *testing.T) {
	r := testRouter(t)
	snapshot := map[string]backend.DroneStatus{
		"AA": {DroneID: "AA", Connected: true, Flying: true},
	}

	for _, tc := range []struct {
		angle    int
		rejected bool
	}{{360, false}, {361, true}, {1, false}} {
		plan, err := r.Plan([]nlp.ParsedIntent{
			intent(nlp.ActionRotate, nlp.Parameters{TargetDroneID: "AA", RotationDirection: nlp.RotClockwise, AngleDeg: tc.angle}),
		}, snapshot, StopOnError)
		if err != nil {
			t.Fatalf("angle %d: Plan failed: %v", tc.angle, err)
		}
		if got := plan.Commands[0].PreconditionErr != nil; got != tc.rejected {
			t.Errorf("angle %d: rejected = %v, want %v", tc.angle, got, tc.rejected)
		}
	}

	// An angle of zero never reaches precondition checks; the argument is
	// missing outright.
	_, err := r.Plan([]nlp.ParsedIntent{
		intent(nlp.ActionRotate, nlp.Parameters{TargetDroneID: "AA", AngleDeg: 0}),
	}, snapshot, StopOnError)
	if fault.KindOf(err) != fault.KindInvalidParams {
		t.Fatalf("angle 0: expected invalid_params, got %v", err)
	}
}

func TestPlanStatePreconditions(t *testing.T) {
	r := testRouter(t)

	// Takeoff against a known disconnected drone fails pre-flight.
	plan, err := r.Plan([]nlp.ParsedIntent{
		intent(nlp.ActionTakeoff, nlp.Parameters{TargetDroneID: "AA"}),
	}, map[string]backend.DroneStatus{"AA": {DroneID: "AA"}}, StopOnError)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if plan.Commands[0].PreconditionErr == nil {
		t.Fatal("takeoff of a disconnected drone must fail preconditions")
	}

	// Move while grounded fails; the same move while flying passes.
	flying := map[string]backend.DroneStatus{"AA": {DroneID: "AA", Connected: true, Flying: true}}
	grounded := map[string]backend.DroneStatus{"AA": {DroneID: "AA", Connected: true, Flying: false}}
	moveIntent := intent(nlp.ActionMove, nlp.Parameters{TargetDroneID: "AA", Direction: nlp.DirUp, DistanceCm: 40})

	plan, _ = r.Plan([]nlp.ParsedIntent{moveIntent}, grounded, StopOnError)
	if plan.Commands[0].PreconditionErr == nil {
		t.Fatal("move while grounded must fail preconditions")
	}
	plan, _ = r.Plan([]nlp.ParsedIntent{moveIntent}, flying, StopOnError)
	if plan.Commands[0].PreconditionErr != nil {
		t.Fatalf("move while flying must pass: %v", plan.Commands[0].PreconditionErr)
	}
}

func TestPlanUnknownDroneSkipsStateChecks(t *testing.T) {
	r := testRouter(t)

	// No snapshot entry: the backend is the authority, range checks still
	// apply.
	plan, err := r.Plan([]nlp.ParsedIntent{
		intent(nlp.ActionMove, nlp.Parameters{TargetDroneID: "ZZ", Direction: nlp.DirLeft, DistanceCm: 100}),
	}, nil, StopOnError)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if plan.Commands[0].PreconditionErr != nil {
		t.Fatalf("unknown drone state must not fail state checks: %v", plan.Commands[0].PreconditionErr)
	}
}

func TestPlanEmergencyFleetWide(t *testing.T) {
	r := testRouter(t)

	plan, err := r.Plan([]nlp.ParsedIntent{
		intent(nlp.ActionEmergencyStop, nlp.Parameters{}),
	}, nil, StopOnError)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if plan.Commands[0].Call.Path != "/emergency" {
		t.Fatalf("fleet-wide emergency path: %s", plan.Commands[0].Call.Path)
	}
}

func TestPlanStatusQuery(t *testing.T) {
	r := testRouter(t)

	plan, err := r.Plan([]nlp.ParsedIntent{
		intent(nlp.ActionStatusQuery, nlp.Parameters{TargetDroneID: "AA"}),
		intent(nlp.ActionStatusQuery, nlp.Parameters{}),
	}, nil, Continue)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if plan.Commands[0].Call.Path != "/drones/AA" || plan.Commands[0].Call.Method != "GET" {
		t.Errorf("single status call: %+v", plan.Commands[0].Call)
	}
	if plan.Commands[1].Call.Path != "/drones" {
		t.Errorf("fleet status call: %+v", plan.Commands[1].Call)
	}
}

func TestPlanRejectsUnroutable(t *testing.T) {
	r := testRouter(t)

	for _, action := range []nlp.Action{nlp.ActionHelp, nlp.ActionUnknown} {
		_, err := r.Plan([]nlp.ParsedIntent{
			intent(action, nlp.Parameters{TargetDroneID: "AA"}),
		}, nil, StopOnError)
		if fault.KindOf(err) != fault.KindInvalidParams {
			t.Errorf("%s: expected invalid_params, got %v", action, err)
		}
	}
}

// Round-trip: every command the router produces reverse-maps to an intent
// with identical action and parameters.
func TestCommandRoundTrip(t *testing.T) {
	r := testRouter(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	actions := []nlp.Action{
		nlp.ActionConnect, nlp.ActionDisconnect, nlp.ActionTakeoff, nlp.ActionLand,
		nlp.ActionMove, nlp.ActionRotate, nlp.ActionAltitudeSet, nlp.ActionPhoto,
		nlp.ActionVideoStart, nlp.ActionVideoStop, nlp.ActionStatusQuery, nlp.ActionEmergencyStop,
	}
	directions := []nlp.Direction{nlp.DirForward, nlp.DirBack, nlp.DirLeft, nlp.DirRight, nlp.DirUp, nlp.DirDown}
	rotations := []nlp.RotationDirection{nlp.RotClockwise, nlp.RotCounterClockwise}

	properties.Property("router commands reverse-map to their intent", prop.ForAll(
		func(actionIdx, dirIdx, rotIdx, distance, angle, altitude int, droneID string) bool {
			action := actions[actionIdx%len(actions)]
			in := nlp.ParsedIntent{Action: action, Confidence: 1.0}
			in.Parameters.TargetDroneID = droneID
			switch action {
			case nlp.ActionMove:
				in.Parameters.Direction = directions[dirIdx%len(directions)]
				in.Parameters.DistanceCm = distance
			case nlp.ActionRotate:
				in.Parameters.RotationDirection = rotations[rotIdx%len(rotations)]
				in.Parameters.AngleDeg = angle
			case nlp.ActionAltitudeSet:
				in.Parameters.AltitudeCm = altitude
			}

			cmd, err := r.command("c1", in)
			if err != nil {
				return false
			}
			out, err := IntentFromCommand(cmd)
			if err != nil {
				return false
			}
			return out.Action == in.Action && out.Parameters == in.Parameters
		},
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
		gen.IntRange(0, 1000),
		gen.IntRange(1, 9999),
		gen.IntRange(1, 720),
		gen.IntRange(1, 600),
		gen.RegexMatch("[A-Za-z0-9]{1,4}"),
	))

	properties.TestingRun(t)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
