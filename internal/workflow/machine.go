// Package workflow implements the per-project stage lattice and the
// orchestrator that drives projects through analysis, test generation,
// script generation and execution.
package workflow

import (
	"sync"

	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/core"
)

// Machine tracks each project's monotonic stage flags plus the
// non-monotonic in-flight marker. The lock is held only long enough to
// flip flags; dispatch work happens outside it, so reads never wait on
// a running stage.
type Machine struct {
	mu       sync.RWMutex
	projects map[core.ProjectID]*machineState
}

type machineState struct {
	flags     core.StageFlags
	inFlight  core.Stage // stage transition currently settling, "" when none
	executing bool       // execution dispatch in progress, drives the TestsRun state
	version   uint64
}

// Snapshot is a point-in-time view of one project's workflow.
type Snapshot struct {
	Flags    core.StageFlags
	State    core.WorkflowStateName
	InFlight core.Stage
	Version  uint64
}

// NewMachine creates an empty state machine.
func NewMachine() *Machine {
	return &Machine{projects: make(map[core.ProjectID]*machineState)}
}

func (m *Machine) ensure(id core.ProjectID) *machineState {
	ms, ok := m.projects[id]
	if !ok {
		ms = &machineState{flags: core.StageFlags{ProjectCreated: true}, version: 1}
		m.projects[id] = ms
	}
	return ms
}

func snapshotLocked(ms *machineState) Snapshot {
	return Snapshot{
		Flags:    ms.flags,
		State:    ms.flags.State(ms.executing),
		InFlight: ms.inFlight,
		Version:  ms.version,
	}
}

// Create registers a project with the projectCreated flag set. Creating
// an already-known project is a no-op.
func (m *Machine) Create(id core.ProjectID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(id)
}

// Restore seeds a project's flags, typically rebuilt from persisted
// state at startup. A flag set that violates the lattice ordering is
// rejected.
func (m *Machine) Restore(id core.ProjectID, flags core.StageFlags) error {
	flags.ProjectCreated = true
	if !flags.Valid() {
		return core.ErrState("INVALID_FLAGS", "stage flags violate lattice ordering")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[id] = &machineState{flags: flags, version: 1}
	return nil
}

// Snapshot returns the project's current derived state without blocking
// on in-flight transitions.
func (m *Machine) Snapshot(id core.ProjectID) Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ms, ok := m.projects[id]
	if !ok {
		return Snapshot{State: core.StateCreated}
	}
	return snapshotLocked(ms)
}

// Begin opens a stage transition. Returns began=false with the current
// snapshot when the stage already completed (idempotent re-trigger).
// Fails with StagePrecondition when the predecessor stage has not
// completed and with StageInFlight when another transition is settling;
// only one transition may be in flight per project.
func (m *Machine) Begin(id core.ProjectID, stage core.Stage) (bool, Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms := m.ensure(id)

	if ms.inFlight != "" {
		return false, snapshotLocked(ms), core.ErrState(core.CodeStageInFlight,
			"stage "+ms.inFlight.String()+" is already in flight").
			WithDetail("in_flight", ms.inFlight.String())
	}
	if ms.flags.CompletedStage(stage) {
		return false, snapshotLocked(ms), nil
	}
	if pred := core.Predecessor(stage); pred != "" && !ms.flags.CompletedStage(pred) {
		return false, snapshotLocked(ms), core.ErrStagePrecondition(stage, pred)
	}

	ms.inFlight = stage
	switch stage {
	case core.StageAnalysis:
		// Started is monotonic: a failed analysis leaves the project in
		// the analyzing state until retried or reset.
		ms.flags.AnalysisStarted = true
	case core.StageExecution:
		ms.executing = true
	}
	ms.version++
	return true, snapshotLocked(ms), nil
}

// Complete closes a stage transition, setting the stage's completion
// flag only when the dispatch succeeded. Failed transitions leave the
// lattice untouched so the caller may re-trigger.
func (m *Machine) Complete(id core.ProjectID, stage core.Stage, succeeded bool) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms := m.ensure(id)

	if ms.inFlight == stage {
		ms.inFlight = ""
	}
	if stage == core.StageExecution {
		ms.executing = false
	}
	if succeeded {
		switch stage {
		case core.StageAnalysis:
			ms.flags.AnalysisCompleted = true
		case core.StageTestGeneration:
			ms.flags.TestsGenerated = true
		case core.StageScriptGeneration:
			ms.flags.ScriptsGenerated = true
		case core.StageExecution:
			ms.flags.TestsRun = true
		}
	}
	ms.version++
	return snapshotLocked(ms)
}

// Reset atomically clears every flag except projectCreated. Resetting
// while a transition is in flight is refused rather than queued.
func (m *Machine) Reset(id core.ProjectID) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms := m.ensure(id)

	if ms.inFlight != "" {
		return snapshotLocked(ms), core.ErrState(core.CodeStageInFlight,
			"cannot reset while stage "+ms.inFlight.String()+" is in flight")
	}
	ms.flags = core.StageFlags{ProjectCreated: true}
	ms.executing = false
	ms.version++
	return snapshotLocked(ms), nil
}
