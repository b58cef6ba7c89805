package mcp

import (
	"context"
	"encoding/json"

	"github.com/aerolink/drone-mcp/internal/audit"
	"github.com/aerolink/drone-mcp/internal/backend"
	"github.com/aerolink/drone-mcp/internal/executor"
	"github.com/aerolink/drone-mcp/internal/fault"
	"github.com/aerolink/drone-mcp/internal/nlp"
	"github.com/aerolink/drone-mcp/internal/router"
	"github.com/aerolink/drone-mcp/internal/security"
)

// handleToolCall runs one tools/call request: authenticate, rate limit,
// resolve the tool, validate arguments, authorize against the tool's role
// floor, then execute.
func (s *Server) handleToolCall(ctx context.Context, req *Request) outcome {
	var params struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return outcome{err: fault.Wrap(fault.KindInvalidParams, "malformed tools/call params", err)}
	}
	if params.Name == "" {
		return outcome{err: fault.New(fault.KindInvalidParams, "tools/call requires a tool name")}
	}

	principal, err := s.requirePrincipal(ctx, req.Params, security.RoleReadonly)
	if err != nil {
		return outcome{err: err}
	}
	if err := s.limiter.Allow(ctx, principal); err != nil {
		return outcome{err: err}
	}

	tool, err := s.catalog.Lookup(params.Name)
	if err != nil {
		return outcome{err: err}
	}
	args := params.Arguments
	if args == nil {
		args = map[string]interface{}{}
	}
	if err := tool.Validate(args); err != nil {
		return outcome{err: err}
	}
	if err := s.auth.Authorize(ctx, principal, tool.MinRole); err != nil {
		return outcome{err: err}
	}

	if params.Name == "execute_natural_language_command" {
		return s.callNaturalLanguage(ctx, principal, args)
	}
	return s.callDirect(ctx, principal, params.Name, args)
}

// callDirect executes one of the schema-typed tools through the same plan and
// execute path natural language commands take.
func (s *Server) callDirect(ctx context.Context, principal *security.Principal, name string, args map[string]interface{}) outcome {
	intent, err := intentFromArgs(name, args)
	if err != nil {
		return outcome{err: err}
	}

	plan, err := s.router.Plan([]nlp.ParsedIntent{intent}, s.fleet.Snapshot(), router.StopOnError)
	if err != nil {
		return outcome{err: err}
	}

	batch := s.exec.Execute(ctx, plan)
	s.fleet.Apply(plan, batch)
	s.recordStatuses(plan, batch)

	s.auditor.Log(ctx, audit.NewEvent(audit.EventCommandSucceeded).
		WithPrincipal(principal.ID).
		WithTool(name).
		WithDrone(intent.Parameters.TargetDroneID).
		WithResult(batchAuditResult(batch.Status)).
		WithDescription("tool call finished"))

	return result(batchPayload(batch, nil))
}

// callNaturalLanguage sanitizes, parses and executes a Japanese command
// sequence.
func (s *Server) callNaturalLanguage(ctx context.Context, principal *security.Principal, args map[string]interface{}) outcome {
	text, _ := args["text"].(string)
	defaultDroneID, _ := args["drone_id"].(string)
	policy := router.StopOnError
	if p, ok := args["failure_policy"].(string); ok && p != "" {
		policy = router.FailurePolicy(p)
	}

	clean, err := security.SanitizeInput(text)
	if err != nil {
		s.auditor.Log(ctx, audit.NewEvent(audit.EventSanitizerRejected).
			WithSeverity(audit.SeverityMedium).
			WithPrincipal(principal.ID).
			WithResult(audit.ResultDenied).
			WithError(err, string(fault.KindOf(err))))
		return outcome{err: err}
	}
	if defaultDroneID != "" {
		if defaultDroneID, err = security.SanitizeDroneID(defaultDroneID); err != nil {
			return outcome{err: err}
		}
	}

	intents, err := s.engine.Load().Parse(clean, defaultDroneID)
	if err != nil {
		if c, ok := fault.As(err).Attributes["confidence"].(float64); ok {
			s.metrics.ParseConfidence.Observe(c)
		}
		s.auditor.Log(ctx, audit.NewEvent(audit.EventParseRejected).
			WithPrincipal(principal.ID).
			WithResult(audit.ResultFailure).
			WithError(err, string(fault.KindOf(err))))
		return outcome{err: err}
	}
	for _, intent := range intents {
		s.metrics.ParseConfidence.Observe(intent.Confidence)
	}
	s.auditor.Log(ctx, audit.NewEvent(audit.EventParseAccepted).
		WithPrincipal(principal.ID).
		WithResult(audit.ResultSuccess).
		WithAttribute("intents", len(intents)))

	// A pure help request is answered locally; nothing reaches the backend.
	if allHelp(intents) {
		return result(map[string]interface{}{
			"status": string(executor.BatchSuccess),
			"parsed": intents,
			"help":   map[string]interface{}{"tools": s.catalog.List()},
		})
	}

	plan, err := s.router.Plan(intents, s.fleet.Snapshot(), policy)
	if err != nil {
		return outcome{err: err}
	}

	batch := s.exec.Execute(ctx, plan)
	s.fleet.Apply(plan, batch)
	s.recordStatuses(plan, batch)

	return result(batchPayload(batch, intents))
}

// intentFromArgs lifts schema-validated tool arguments into a ParsedIntent.
// Direct tool calls carry full confidence.
func intentFromArgs(name string, args map[string]interface{}) (nlp.ParsedIntent, error) {
	action, ok := toolAction[name]
	if !ok {
		return nlp.ParsedIntent{}, fault.Newf(fault.KindMethodNotFound, "unknown tool %q", name)
	}

	intent := nlp.ParsedIntent{Action: action, Confidence: 1.0}
	if id, ok := args["drone_id"].(string); ok {
		intent.Parameters.TargetDroneID = id
	}
	if dir, ok := args["direction"].(string); ok {
		intent.Parameters.Direction = nlp.Direction(dir)
	}
	if v, ok := argInt(args, "distance_cm"); ok {
		intent.Parameters.DistanceCm = v
	}
	if rot, ok := args["rotation_direction"].(string); ok {
		intent.Parameters.RotationDirection = nlp.RotationDirection(rot)
	} else if action == nlp.ActionRotate {
		intent.Parameters.RotationDirection = nlp.RotClockwise
	}
	if v, ok := argInt(args, "angle_deg"); ok {
		intent.Parameters.AngleDeg = v
	}
	if v, ok := argInt(args, "altitude_cm"); ok {
		intent.Parameters.AltitudeCm = v
	}
	return intent, nil
}

// argInt reads a JSON number argument as an int.
func argInt(args map[string]interface{}, key string) (int, bool) {
	v, ok := args[key].(float64)
	if !ok {
		return 0, false
	}
	return int(v), true
}

// batchPayload is the tools/call result shape shared by direct and natural
// language execution.
func batchPayload(batch *executor.BatchResult, intents []nlp.ParsedIntent) map[string]interface{} {
	payload := map[string]interface{}{
		"batch_id":   batch.BatchID,
		"status":     string(batch.Status),
		"executions": batch.Results,
	}
	if len(batch.Compensations) > 0 {
		payload["compensations"] = batch.Compensations
	}
	if intents != nil {
		payload["parsed"] = intents
	}
	return payload
}

// recordStatuses folds successful status query responses into the fleet
// table; backend responses are authoritative over simulated state.
func (s *Server) recordStatuses(plan *router.BatchPlan, batch *executor.BatchResult) {
	byID := make(map[string]executor.ExecutionResult, len(batch.Results))
	for _, r := range batch.Results {
		byID[r.CommandID] = r
	}

	for _, cmd := range plan.Commands {
		if cmd.Intent.Action != nlp.ActionStatusQuery {
			continue
		}
		r, ok := byID[cmd.ID]
		if !ok || r.Status != executor.StatusSuccess || len(r.BackendResponse) == 0 {
			continue
		}

		var single backend.DroneStatus
		if err := json.Unmarshal(r.BackendResponse, &single); err == nil && single.DroneID != "" {
			s.fleet.Record(single)
			continue
		}
		var fleet struct {
			Drones []backend.DroneStatus `json:"drones"`
		}
		if err := json.Unmarshal(r.BackendResponse, &fleet); err == nil {
			for _, d := range fleet.Drones {
				s.fleet.Record(d)
			}
			continue
		}
		var list []backend.DroneStatus
		if err := json.Unmarshal(r.BackendResponse, &list); err == nil {
			for _, d := range list {
				s.fleet.Record(d)
			}
		}
	}
}

func allHelp(intents []nlp.ParsedIntent) bool {
	for _, it := range intents {
		if it.Action != nlp.ActionHelp {
			return false
		}
	}
	return len(intents) > 0
}

func batchAuditResult(s executor.BatchStatus) audit.Result {
	if s == executor.BatchSuccess {
		return audit.ResultSuccess
	}
	return audit.ResultFailure
}
