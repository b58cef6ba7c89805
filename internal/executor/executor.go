// Package executor runs BatchPlans: dependency-ordered scheduling with
// bounded concurrency, retry of idempotent commands with exponential backoff,
// cancellation propagation and compensating rollback for the documented
// subset.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aerolink/drone-mcp/internal/audit"
	"github.com/aerolink/drone-mcp/internal/backend"
	"github.com/aerolink/drone-mcp/internal/config"
	"github.com/aerolink/drone-mcp/internal/fault"
	"github.com/aerolink/drone-mcp/internal/nlp"
	"github.com/aerolink/drone-mcp/internal/router"
)

// Status is the terminal state of one executed command.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// BatchStatus summarizes a whole batch.
type BatchStatus string

const (
	BatchSuccess BatchStatus = "success"
	BatchPartial BatchStatus = "partial"
	BatchFailed  BatchStatus = "failed"
)

// ExecutionResult is the single terminal record of one command.
type ExecutionResult struct {
	CommandID       string                 `json:"command_id"`
	Status          Status                 `json:"status"`
	BackendResponse json.RawMessage        `json:"backend_response,omitempty"`
	Error           map[string]interface{} `json:"error,omitempty"`
	ErrorKind       string                 `json:"error_kind,omitempty"`
	Attempts        int                    `json:"attempts"`
	DurationMs      int64                  `json:"duration_ms"`
}

// BatchResult aggregates per-command results in plan order, plus any
// compensating commands the rollback policy issued.
type BatchResult struct {
	BatchID       string            `json:"batch_id"`
	Status        BatchStatus       `json:"status"`
	Results       []ExecutionResult `json:"executions"`
	Compensations []ExecutionResult `json:"compensations,omitempty"`
}

// Backoff tuning for retryable failures.
const (
	retryBase   = 250 * time.Millisecond
	retryFactor = 2
	retryJitter = 0.2
	maxAttempts = 3
)

// Executor runs plans against the backend client.
type Executor struct {
	client      backend.Client
	auditor     audit.Logger
	concurrency int
}

// New creates an executor. Concurrency is bounded per batch.
func New(cfg *config.Config, client backend.Client, auditor audit.Logger) *Executor {
	concurrency := cfg.Protocol.WorkerPoolSize
	if concurrency < 1 {
		concurrency = 4
	}
	return &Executor{
		client:      client,
		auditor:     auditor,
		concurrency: concurrency,
	}
}

// commandState is the scheduling record of one command within a run.
type commandState struct {
	cmd    *router.Command
	done   chan struct{}
	result ExecutionResult
}

// Execute runs the plan to completion. Every command receives exactly one
// terminal result; cancellation marks pending commands skipped.
func (e *Executor) Execute(ctx context.Context, plan *router.BatchPlan) *BatchResult {
	e.auditor.Log(ctx, audit.NewEvent(audit.EventBatchStarted).
		WithDescription(fmt.Sprintf("batch %s: %d commands, policy %s", plan.ID, len(plan.Commands), plan.Policy)))

	states := make(map[string]*commandState, len(plan.Commands))
	for _, cmd := range plan.Commands {
		states[cmd.ID] = &commandState{cmd: cmd, done: make(chan struct{})}
	}

	sem := make(chan struct{}, e.concurrency)
	var abort abortFlag

	// Sequential plans run strictly in plan order: after a failure under
	// stop_on_error every later command is skipped, dependency edges or not.
	// Concurrent modes order commands along their dependency edges only.
	if plan.Mode == router.ModeParallel || plan.Mode == router.ModeMixed {
		var wg sync.WaitGroup
		for _, cmd := range plan.Commands {
			st := states[cmd.ID]
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer close(st.done)
				st.result = e.runCommand(ctx, plan, st.cmd, states, sem, &abort)
			}()
		}
		wg.Wait()
	} else {
		for _, cmd := range plan.Commands {
			st := states[cmd.ID]
			st.result = e.runCommand(ctx, plan, st.cmd, states, sem, &abort)
			close(st.done)
		}
	}

	result := &BatchResult{BatchID: plan.ID}
	succeeded, failed := 0, 0
	for _, cmd := range plan.Commands {
		r := states[cmd.ID].result
		result.Results = append(result.Results, r)
		switch r.Status {
		case StatusSuccess:
			succeeded++
		case StatusFailed:
			failed++
		}
	}

	switch {
	case failed == 0 && succeeded == len(plan.Commands):
		result.Status = BatchSuccess
	case succeeded == 0:
		result.Status = BatchFailed
	default:
		result.Status = BatchPartial
	}

	if plan.Policy == router.Rollback {
		result.Compensations = e.rollback(ctx, plan, states)
	}

	e.auditor.Log(ctx, audit.NewEvent(audit.EventBatchFinished).
		WithResult(batchAuditResult(result.Status)).
		WithDescription(fmt.Sprintf("batch %s: %s (%d ok, %d failed)", plan.ID, result.Status, succeeded, failed)))
	return result
}

// runCommand waits for dependencies, then dispatches with retry. Returns the
// command's terminal result.
func (e *Executor) runCommand(ctx context.Context, plan *router.BatchPlan, cmd *router.Command, states map[string]*commandState, sem chan struct{}, abort *abortFlag) ExecutionResult {
	// Dependencies must finish successfully before dispatch.
	for _, dep := range cmd.DependsOn {
		depState, ok := states[dep]
		if !ok {
			continue
		}
		select {
		case <-depState.done:
			if depState.result.Status != StatusSuccess {
				return e.skip(ctx, cmd, fmt.Sprintf("dependency %s did not succeed", dep))
			}
		case <-ctx.Done():
			return e.skip(ctx, cmd, "cancelled before dispatch")
		}
	}

	if abort.isSet() {
		return e.skip(ctx, cmd, "earlier command failed")
	}
	if ctx.Err() != nil {
		return e.skip(ctx, cmd, "cancelled before dispatch")
	}

	if cmd.PreconditionErr != nil {
		if plan.Policy != router.Continue {
			abort.set()
		}
		e.auditor.Log(ctx, audit.NewEvent(audit.EventCommandFailed).
			WithDrone(cmd.Intent.Parameters.TargetDroneID).
			WithDescription(string(cmd.Intent.Action)).
			WithError(cmd.PreconditionErr, string(cmd.PreconditionErr.Kind)))
		return ExecutionResult{
			CommandID: cmd.ID,
			Status:    StatusFailed,
			Error:     cmd.PreconditionErr.Data(),
			ErrorKind: string(cmd.PreconditionErr.Kind),
		}
	}

	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	case <-ctx.Done():
		return e.skip(ctx, cmd, "cancelled before dispatch")
	}

	e.auditor.Log(ctx, audit.NewEvent(audit.EventCommandStarted).
		WithDrone(cmd.Intent.Parameters.TargetDroneID).
		WithDescription(string(cmd.Intent.Action)))

	started := time.Now()
	raw, attempts, err := e.dispatch(ctx, cmd)
	elapsed := time.Since(started)

	if err != nil {
		fe := fault.As(err)
		if plan.Policy != router.Continue {
			abort.set()
		}
		e.auditor.Log(ctx, audit.NewEvent(audit.EventCommandFailed).
			WithDrone(cmd.Intent.Parameters.TargetDroneID).
			WithDescription(string(cmd.Intent.Action)).
			WithError(fe, string(fe.Kind)).
			WithDuration(elapsed))
		return ExecutionResult{
			CommandID:  cmd.ID,
			Status:     StatusFailed,
			Error:      fe.Data(),
			ErrorKind:  string(fe.Kind),
			Attempts:   attempts,
			DurationMs: elapsed.Milliseconds(),
		}
	}

	e.auditor.Log(ctx, audit.NewEvent(audit.EventCommandSucceeded).
		WithDrone(cmd.Intent.Parameters.TargetDroneID).
		WithDescription(string(cmd.Intent.Action)).
		WithResult(audit.ResultSuccess).
		WithDuration(elapsed))
	return ExecutionResult{
		CommandID:       cmd.ID,
		Status:          StatusSuccess,
		BackendResponse: raw,
		Attempts:        attempts,
		DurationMs:      elapsed.Milliseconds(),
	}
}

// dispatch issues the backend call, retrying only idempotent commands on
// retryable failures.
func (e *Executor) dispatch(ctx context.Context, cmd *router.Command) (json.RawMessage, int, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		raw, err := e.client.Do(ctx, cmd.Call)
		if err == nil {
			return raw, attempt, nil
		}
		lastErr = err

		if !cmd.Idempotent || !fault.IsRetryable(err) || attempt == maxAttempts {
			return nil, attempt, err
		}

		delay := backoff(attempt)
		if fe := fault.As(err); fe.RetryAfter > delay {
			delay = fe.RetryAfter
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, attempt, fault.Wrap(fault.KindCancelled, "cancelled during retry backoff", ctx.Err())
		}
	}
	return nil, maxAttempts, lastErr
}

// backoff returns the delay before the given retry attempt: base 250ms,
// factor 2, jitter plus or minus 20 percent.
func backoff(attempt int) time.Duration {
	d := retryBase
	for i := 1; i < attempt; i++ {
		d *= retryFactor
	}
	jitter := 1 + retryJitter*(2*rand.Float64()-1)
	return time.Duration(float64(d) * jitter)
}

func (e *Executor) skip(ctx context.Context, cmd *router.Command, reason string) ExecutionResult {
	e.auditor.Log(ctx, audit.NewEvent(audit.EventCommandSkipped).
		WithDrone(cmd.Intent.Parameters.TargetDroneID).
		WithDescription(fmt.Sprintf("%s: %s", cmd.Intent.Action, reason)))
	return ExecutionResult{
		CommandID: cmd.ID,
		Status:    StatusSkipped,
		Error:     fault.New(fault.KindCancelled, reason).Data(),
		ErrorKind: string(fault.KindCancelled),
	}
}

// rollback issues compensating commands: a land for every drone whose
// takeoff succeeded but whose subsequent move failed.
func (e *Executor) rollback(ctx context.Context, plan *router.BatchPlan, states map[string]*commandState) []ExecutionResult {
	tookOff := make(map[string]bool)
	needsLand := make(map[string]bool)
	for _, cmd := range plan.Commands {
		droneID := cmd.Intent.Parameters.TargetDroneID
		result := states[cmd.ID].result
		switch cmd.Intent.Action {
		case nlp.ActionTakeoff:
			if result.Status == StatusSuccess {
				tookOff[droneID] = true
			}
		case nlp.ActionMove:
			if result.Status == StatusFailed && tookOff[droneID] {
				needsLand[droneID] = true
			}
		case nlp.ActionLand:
			if result.Status == StatusSuccess {
				needsLand[droneID] = false
			}
		}
	}

	var compensations []ExecutionResult
	for _, cmd := range plan.Commands {
		droneID := cmd.Intent.Parameters.TargetDroneID
		if !needsLand[droneID] {
			continue
		}
		needsLand[droneID] = false

		call := backend.Call{
			Method:     http.MethodPost,
			Path:       "/drones/" + droneID + "/land",
			Endpoint:   "/land",
			Idempotent: true,
			Timeout:    cmd.Timeout,
		}
		started := time.Now()
		raw, err := e.client.Do(ctx, call)
		elapsed := time.Since(started)

		result := ExecutionResult{
			CommandID:  cmd.ID + "-rollback",
			Attempts:   1,
			DurationMs: elapsed.Milliseconds(),
		}
		eventType := audit.EventCommandSucceeded
		if err != nil {
			fe := fault.As(err)
			result.Status = StatusFailed
			result.Error = fe.Data()
			result.ErrorKind = string(fe.Kind)
			eventType = audit.EventCommandFailed
		} else {
			result.Status = StatusSuccess
			result.BackendResponse = raw
		}
		e.auditor.Log(ctx, audit.NewEvent(eventType).
			WithDrone(droneID).
			WithDescription("compensating land after failed move"))
		compensations = append(compensations, result)
	}
	return compensations
}

// abortFlag is a set-once flag shared by a batch's workers.
type abortFlag struct {
	flag atomic.Bool
}

func (a *abortFlag) set()        { a.flag.Store(true) }
func (a *abortFlag) isSet() bool { return a.flag.Load() }

func batchAuditResult(s BatchStatus) audit.Result {
	if s == BatchSuccess {
		return audit.ResultSuccess
	}
	return audit.ResultFailure
}
