package workflow

import (
	"errors"
	"testing"

	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/core"
)

func TestMachine_HappyPath(t *testing.T) {
	m := NewMachine()
	m.Create(1)

	if snap := m.Snapshot(1); snap.State != core.StateCreated {
		t.Fatalf("state = %s, want created", snap.State)
	}

	steps := []struct {
		stage core.Stage
		state core.WorkflowStateName
	}{
		{core.StageAnalysis, core.StateAnalyzed},
		{core.StageTestGeneration, core.StateTestsGenerated},
		{core.StageScriptGeneration, core.StateScriptsGenerated},
		{core.StageExecution, core.StateResultsAvailable},
	}
	for _, step := range steps {
		began, _, err := m.Begin(1, step.stage)
		if err != nil {
			t.Fatalf("Begin(%s) error = %v", step.stage, err)
		}
		if !began {
			t.Fatalf("Begin(%s) did not begin", step.stage)
		}
		snap := m.Complete(1, step.stage, true)
		if snap.State != step.state {
			t.Errorf("after %s: state = %s, want %s", step.stage, snap.State, step.state)
		}
		if !snap.Flags.Valid() {
			t.Errorf("after %s: flags violate lattice: %+v", step.stage, snap.Flags)
		}
	}
}

func TestMachine_PreconditionGating(t *testing.T) {
	m := NewMachine()
	m.Create(1)

	// Each stage requires its predecessor, in order.
	for _, stage := range []core.Stage{core.StageTestGeneration, core.StageScriptGeneration, core.StageExecution} {
		_, _, err := m.Begin(1, stage)
		if !core.IsCategory(err, core.ErrCatPrecondition) {
			t.Errorf("Begin(%s) on fresh project: error = %v, want stage precondition", stage, err)
		}
	}

	// Completing analysis unlocks only test generation.
	m.Begin(1, core.StageAnalysis)
	m.Complete(1, core.StageAnalysis, true)

	if _, _, err := m.Begin(1, core.StageExecution); !core.IsCategory(err, core.ErrCatPrecondition) {
		t.Errorf("Begin(execution) after analysis: error = %v, want stage precondition", err)
	}
	if began, _, err := m.Begin(1, core.StageTestGeneration); err != nil || !began {
		t.Errorf("Begin(test_generation) after analysis: began=%v err=%v", began, err)
	}
}

func TestMachine_IdempotentRetrigger(t *testing.T) {
	m := NewMachine()
	m.Create(1)

	m.Begin(1, core.StageAnalysis)
	m.Complete(1, core.StageAnalysis, true)

	began, snap, err := m.Begin(1, core.StageAnalysis)
	if err != nil {
		t.Fatalf("re-trigger error = %v", err)
	}
	if began {
		t.Error("re-triggering a completed stage must not begin a new transition")
	}
	if snap.State != core.StateAnalyzed {
		t.Errorf("re-trigger snapshot state = %s, want analyzed", snap.State)
	}
}

func TestMachine_FailedStageLeavesLattice(t *testing.T) {
	m := NewMachine()
	m.Create(1)

	m.Begin(1, core.StageAnalysis)
	snap := m.Complete(1, core.StageAnalysis, false)

	if snap.Flags.AnalysisCompleted {
		t.Error("failed analysis must not set the completion flag")
	}
	// Started is monotonic: the project shows analyzing until retried.
	if snap.State != core.StateAnalyzing {
		t.Errorf("state = %s, want analyzing", snap.State)
	}

	// Explicit re-trigger is allowed.
	began, _, err := m.Begin(1, core.StageAnalysis)
	if err != nil || !began {
		t.Errorf("retry after failure: began=%v err=%v", began, err)
	}
}

func TestMachine_OneTransitionInFlight(t *testing.T) {
	m := NewMachine()
	m.Create(1)

	m.Begin(1, core.StageAnalysis)

	_, _, err := m.Begin(1, core.StageAnalysis)
	var domErr *core.DomainError
	if !errors.As(err, &domErr) || domErr.Code != core.CodeStageInFlight {
		t.Errorf("second Begin error = %v, want %s", err, core.CodeStageInFlight)
	}

	// Reads still work while the transition is open.
	if snap := m.Snapshot(1); snap.InFlight != core.StageAnalysis {
		t.Errorf("InFlight = %q, want analysis", snap.InFlight)
	}
}

func TestMachine_ExecutingMarker(t *testing.T) {
	m := NewMachine()
	m.Create(1)
	for _, stage := range []core.Stage{core.StageAnalysis, core.StageTestGeneration, core.StageScriptGeneration} {
		m.Begin(1, stage)
		m.Complete(1, stage, true)
	}

	m.Begin(1, core.StageExecution)
	if snap := m.Snapshot(1); snap.State != core.StateTestsRun {
		t.Errorf("state while executing = %s, want tests_run", snap.State)
	}

	// A failed run drops back to scripts_generated, not results_available.
	snap := m.Complete(1, core.StageExecution, false)
	if snap.State != core.StateScriptsGenerated {
		t.Errorf("state after failed run = %s, want scripts_generated", snap.State)
	}

	m.Begin(1, core.StageExecution)
	snap = m.Complete(1, core.StageExecution, true)
	if snap.State != core.StateResultsAvailable {
		t.Errorf("state after successful run = %s, want results_available", snap.State)
	}
}

func TestMachine_Reset(t *testing.T) {
	m := NewMachine()
	m.Create(1)
	for _, stage := range core.AllStages() {
		m.Begin(1, stage)
		m.Complete(1, stage, true)
	}

	before := m.Snapshot(1)
	snap, err := m.Reset(1)
	if err != nil {
		t.Fatalf("Reset error = %v", err)
	}
	if snap.State != core.StateCreated {
		t.Errorf("state after reset = %s, want created", snap.State)
	}
	if !snap.Flags.ProjectCreated {
		t.Error("reset must keep the projectCreated flag")
	}
	if snap.Flags.AnalysisStarted || snap.Flags.TestsRun {
		t.Errorf("reset left flags set: %+v", snap.Flags)
	}
	if snap.Version <= before.Version {
		t.Error("reset must advance the version counter")
	}
}

func TestMachine_ResetRefusedWhileInFlight(t *testing.T) {
	m := NewMachine()
	m.Create(1)
	m.Begin(1, core.StageAnalysis)

	if _, err := m.Reset(1); err == nil {
		t.Error("reset during an in-flight transition must be refused")
	}
}

func TestMachine_Restore(t *testing.T) {
	m := NewMachine()

	flags := core.StageFlags{
		ProjectCreated:    true,
		AnalysisStarted:   true,
		AnalysisCompleted: true,
	}
	if err := m.Restore(7, flags); err != nil {
		t.Fatalf("Restore error = %v", err)
	}
	if snap := m.Snapshot(7); snap.State != core.StateAnalyzed {
		t.Errorf("restored state = %s, want analyzed", snap.State)
	}

	// A hole in the lattice is rejected.
	bad := core.StageFlags{ProjectCreated: true, TestsGenerated: true}
	if err := m.Restore(8, bad); err == nil {
		t.Error("Restore must reject flags that violate lattice ordering")
	}
}

func TestMachine_VersionMonotonic(t *testing.T) {
	m := NewMachine()
	m.Create(1)

	v := m.Snapshot(1).Version
	m.Begin(1, core.StageAnalysis)
	if next := m.Snapshot(1).Version; next <= v {
		t.Errorf("Begin did not advance version: %d -> %d", v, next)
	} else {
		v = next
	}
	m.Complete(1, core.StageAnalysis, true)
	if next := m.Snapshot(1).Version; next <= v {
		t.Errorf("Complete did not advance version: %d -> %d", v, next)
	}
}
