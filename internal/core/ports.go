package core

import (
	"context"
	"encoding/json"
)

// AgentInvoker is the opaque agent execution backend. It may be a remote
// call; its latency and failure modes are absorbed by the dispatcher's
// retry and timeout policy. Output is untrusted until it passes the
// ingestion layer.
type AgentInvoker interface {
	// Invoke runs one sub-task through an agent of the given role and
	// returns its raw, unvalidated output.
	Invoke(ctx context.Context, role AgentRole, input InvocationInput) (json.RawMessage, error)
}

// InvocationInput is the read-only snapshot handed to an agent.
type InvocationInput struct {
	Stage    Stage            `json:"stage"`
	Project  Project          `json:"project"`
	Category string           `json:"category,omitempty"` // test category for fan-out sub-tasks
	Prior    []AnalysisRecord `json:"prior,omitempty"`     // prior-stage analysis results
}

// ProjectStore persists projects. CRUD only, no business logic.
type ProjectStore interface {
	SaveProject(ctx context.Context, p *Project) error
	LoadProject(ctx context.Context, id ProjectID) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
}

// TestCaseStore persists test cases.
type TestCaseStore interface {
	UpsertTestCase(ctx context.Context, tc *TestCase) error
	LoadTestCases(ctx context.Context, projectID ProjectID) ([]*TestCase, error)
}

// AnalysisStore persists analysis records.
type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, a *AnalysisRecord) error
	LoadAnalyses(ctx context.Context, projectID ProjectID) ([]*AnalysisRecord, error)
}

// Store aggregates the persistence ports the orchestrator consumes.
type Store interface {
	ProjectStore
	TestCaseStore
	AnalysisStore
}
