package mcp

import (
	"sync"

	"github.com/aerolink/drone-mcp/internal/backend"
	"github.com/aerolink/drone-mcp/internal/executor"
	"github.com/aerolink/drone-mcp/internal/nlp"
	"github.com/aerolink/drone-mcp/internal/router"
)

// fleetState is the last known status snapshot per drone, fed from status
// query responses and from the observed effects of executed commands. The
// router validates preconditions against it.
type fleetState struct {
	mu     sync.RWMutex
	drones map[string]backend.DroneStatus
}

func newFleetState() *fleetState {
	return &fleetState{drones: make(map[string]backend.DroneStatus)}
}

// Snapshot returns a copy of the current state table.
func (f *fleetState) Snapshot() map[string]backend.DroneStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]backend.DroneStatus, len(f.drones))
	for id, st := range f.drones {
		out[id] = st
	}
	return out
}

// Record stores an authoritative status from the backend.
func (f *fleetState) Record(status backend.DroneStatus) {
	if status.DroneID == "" {
		return
	}
	f.mu.Lock()
	f.drones[status.DroneID] = status
	f.mu.Unlock()
}

// Apply folds the outcome of an executed batch into the table: each
// successful command advances the drone it touched the same way the router's
// plan simulation does.
func (f *fleetState) Apply(plan *router.BatchPlan, result *executor.BatchResult) {
	byID := make(map[string]executor.ExecutionResult, len(result.Results))
	for _, r := range result.Results {
		byID[r.CommandID] = r
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, cmd := range plan.Commands {
		r, ok := byID[cmd.ID]
		if !ok || r.Status != executor.StatusSuccess {
			continue
		}
		droneID := cmd.Intent.Parameters.TargetDroneID
		if droneID == "" {
			continue
		}
		st := f.drones[droneID]
		st.DroneID = droneID
		switch cmd.Intent.Action {
		case nlp.ActionConnect:
			st.Connected = true
		case nlp.ActionDisconnect:
			st.Connected = false
			st.Flying = false
		case nlp.ActionTakeoff:
			st.Flying = true
		case nlp.ActionLand, nlp.ActionEmergencyStop:
			st.Flying = false
		}
		f.drones[droneID] = st
	}

	// A successful compensating land grounds its drone.
	for _, comp := range result.Compensations {
		if comp.Status != executor.StatusSuccess {
			continue
		}
		for _, cmd := range plan.Commands {
			if comp.CommandID == cmd.ID+"-rollback" {
				droneID := cmd.Intent.Parameters.TargetDroneID
				st := f.drones[droneID]
				st.DroneID = droneID
				st.Flying = false
				f.drones[droneID] = st
			}
		}
	}
}
