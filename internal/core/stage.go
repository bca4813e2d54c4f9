package core

import "fmt"

// Stage represents one ordered step of the project pipeline.
type Stage string

const (
	// StageAnalysis is the first stage where agents analyze the codebase.
	// Analyzer, risk and environment agents produce independent records.
	StageAnalysis Stage = "analysis"

	// StageTestGeneration is the second stage where test cases are
	// generated, one sub-task per selected test category.
	StageTestGeneration Stage = "test_generation"

	// StageScriptGeneration is the third stage where framework-specific
	// test scripts are generated for the existing test cases.
	StageScriptGeneration Stage = "script_generation"

	// StageExecution is the final stage where generated tests run and
	// their outcomes stream back into the aggregator.
	StageExecution Stage = "execution"
)

// AllStages returns the stages in pipeline order.
func AllStages() []Stage {
	return []Stage{StageAnalysis, StageTestGeneration, StageScriptGeneration, StageExecution}
}

// StageOrder returns the numeric order of a stage (0-indexed), -1 if unknown.
func StageOrder(s Stage) int {
	switch s {
	case StageAnalysis:
		return 0
	case StageTestGeneration:
		return 1
	case StageScriptGeneration:
		return 2
	case StageExecution:
		return 3
	default:
		return -1
	}
}

// ValidStage checks whether a stage string is one of the pipeline stages.
func ValidStage(s Stage) bool {
	return StageOrder(s) >= 0
}

// ParseStage converts a string to a Stage with validation.
func ParseStage(s string) (Stage, error) {
	st := Stage(s)
	if !ValidStage(st) {
		return "", fmt.Errorf("invalid stage: %s", s)
	}
	return st, nil
}

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// WorkflowStateName is the derived, externally visible state of a
// project's pipeline.
type WorkflowStateName string

const (
	StateCreated          WorkflowStateName = "created"
	StateAnalyzing        WorkflowStateName = "analyzing"
	StateAnalyzed         WorkflowStateName = "analyzed"
	StateTestsGenerated   WorkflowStateName = "tests_generated"
	StateScriptsGenerated WorkflowStateName = "scripts_generated"
	StateTestsRun         WorkflowStateName = "tests_run"
	StateResultsAvailable WorkflowStateName = "results_available"
)

// StageFlags is the per-project monotonic flag lattice. A later flag may
// only be true when every earlier flag is true; flags are cleared only by
// an explicit reset, never individually.
type StageFlags struct {
	ProjectCreated    bool `json:"project_created"`
	AnalysisStarted   bool `json:"analysis_started"`
	AnalysisCompleted bool `json:"analysis_completed"`
	TestsGenerated    bool `json:"tests_generated"`
	ScriptsGenerated  bool `json:"scripts_generated"`
	TestsRun          bool `json:"tests_run"`
}

// Valid reports whether the lattice ordering holds.
func (f StageFlags) Valid() bool {
	seq := []bool{
		f.ProjectCreated,
		f.AnalysisStarted,
		f.AnalysisCompleted,
		f.TestsGenerated,
		f.ScriptsGenerated,
		f.TestsRun,
	}
	for i := 1; i < len(seq); i++ {
		if seq[i] && !seq[i-1] {
			return false
		}
	}
	return true
}

// State derives the visible workflow state from the flags. executing is
// true while a stage dispatch is settling; it distinguishes Analyzing and
// TestsRun from their completed successors without being part of the
// monotonic lattice.
func (f StageFlags) State(executing bool) WorkflowStateName {
	switch {
	case f.TestsRun:
		return StateResultsAvailable
	case f.ScriptsGenerated && executing:
		return StateTestsRun
	case f.ScriptsGenerated:
		return StateScriptsGenerated
	case f.TestsGenerated:
		return StateTestsGenerated
	case f.AnalysisCompleted:
		return StateAnalyzed
	case f.AnalysisStarted:
		return StateAnalyzing
	default:
		return StateCreated
	}
}

// CompletedStage reports whether the given stage has completed.
func (f StageFlags) CompletedStage(s Stage) bool {
	switch s {
	case StageAnalysis:
		return f.AnalysisCompleted
	case StageTestGeneration:
		return f.TestsGenerated
	case StageScriptGeneration:
		return f.ScriptsGenerated
	case StageExecution:
		return f.TestsRun
	default:
		return false
	}
}

// Predecessor returns the stage that must complete before s may run.
// Returns empty string for the first stage.
func Predecessor(s Stage) Stage {
	switch s {
	case StageTestGeneration:
		return StageAnalysis
	case StageScriptGeneration:
		return StageTestGeneration
	case StageExecution:
		return StageScriptGeneration
	default:
		return ""
	}
}
