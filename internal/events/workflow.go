package events

// Event type identifiers.
const (
	TypeProjectCreated = "project_created"
	TypeProjectReset   = "project_reset"
	TypeStageStarted   = "stage_started"
	TypeStageCompleted = "stage_completed"
	TypeStageFailed    = "stage_failed"
	TypeAgentInvoked   = "agent_invoked"
	TypeAgentSettled   = "agent_settled"
	TypeTestOutcome    = "test_outcome"
)

// ProjectCreatedEvent fires when a project is registered.
type ProjectCreatedEvent struct {
	BaseEvent
	Name string `json:"name"`
}

// NewProjectCreatedEvent creates a project created event.
func NewProjectCreatedEvent(projectID int64, name string) ProjectCreatedEvent {
	return ProjectCreatedEvent{
		BaseEvent: NewBaseEvent(TypeProjectCreated, projectID),
		Name:      name,
	}
}

// ProjectResetEvent fires when a project's workflow flags are cleared.
type ProjectResetEvent struct {
	BaseEvent
}

// NewProjectResetEvent creates a project reset event.
func NewProjectResetEvent(projectID int64) ProjectResetEvent {
	return ProjectResetEvent{BaseEvent: NewBaseEvent(TypeProjectReset, projectID)}
}

// StageStartedEvent fires when a stage dispatch begins.
type StageStartedEvent struct {
	BaseEvent
	Stage    string `json:"stage"`
	Subtasks int    `json:"subtasks"`
}

// NewStageStartedEvent creates a stage started event.
func NewStageStartedEvent(projectID int64, stage string, subtasks int) StageStartedEvent {
	return StageStartedEvent{
		BaseEvent: NewBaseEvent(TypeStageStarted, projectID),
		Stage:     stage,
		Subtasks:  subtasks,
	}
}

// StageCompletedEvent fires when a stage settles with at least one
// successful sub-task. Issues counts the sub-tasks that failed.
type StageCompletedEvent struct {
	BaseEvent
	Stage     string `json:"stage"`
	Succeeded int    `json:"succeeded"`
	Issues    int    `json:"issues"`
	State     string `json:"state"`
	Version   uint64 `json:"version"`
}

// NewStageCompletedEvent creates a stage completed event.
func NewStageCompletedEvent(projectID int64, stage string, succeeded, issues int, state string, version uint64) StageCompletedEvent {
	return StageCompletedEvent{
		BaseEvent: NewBaseEvent(TypeStageCompleted, projectID),
		Stage:     stage,
		Succeeded: succeeded,
		Issues:    issues,
		State:     state,
		Version:   version,
	}
}

// StageFailedEvent fires when every sub-task of a stage failed.
type StageFailedEvent struct {
	BaseEvent
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// NewStageFailedEvent creates a stage failed event.
func NewStageFailedEvent(projectID int64, stage, errMsg string) StageFailedEvent {
	return StageFailedEvent{
		BaseEvent: NewBaseEvent(TypeStageFailed, projectID),
		Stage:     stage,
		Error:     errMsg,
	}
}

// AgentInvokedEvent fires when a sub-task invocation starts.
type AgentInvokedEvent struct {
	BaseEvent
	InvocationID string `json:"invocation_id"`
	AgentID      string `json:"agent_id"`
	Role         string `json:"role"`
	Attempt      int    `json:"attempt"`
}

// NewAgentInvokedEvent creates an agent invoked event.
func NewAgentInvokedEvent(projectID int64, invocationID, agentID, role string, attempt int) AgentInvokedEvent {
	return AgentInvokedEvent{
		BaseEvent:    NewBaseEvent(TypeAgentInvoked, projectID),
		InvocationID: invocationID,
		AgentID:      agentID,
		Role:         role,
		Attempt:      attempt,
	}
}

// AgentSettledEvent fires when a sub-task invocation settles.
type AgentSettledEvent struct {
	BaseEvent
	InvocationID string `json:"invocation_id"`
	AgentID      string `json:"agent_id"`
	Outcome      string `json:"outcome"` // "succeeded", "failed", "cancelled"
	Error        string `json:"error,omitempty"`
}

// NewAgentSettledEvent creates an agent settled event.
func NewAgentSettledEvent(projectID int64, invocationID, agentID, outcome, errMsg string) AgentSettledEvent {
	return AgentSettledEvent{
		BaseEvent:    NewBaseEvent(TypeAgentSettled, projectID),
		InvocationID: invocationID,
		AgentID:      agentID,
		Outcome:      outcome,
		Error:        errMsg,
	}
}

// TestOutcomeEvent fires when the aggregator accepts an outcome.
type TestOutcomeEvent struct {
	BaseEvent
	TestCaseID int64  `json:"test_case_id"`
	Status     string `json:"status"`
	Version    uint64 `json:"version"`
}

// NewTestOutcomeEvent creates a test outcome event.
func NewTestOutcomeEvent(projectID, testCaseID int64, status string, version uint64) TestOutcomeEvent {
	return TestOutcomeEvent{
		BaseEvent:  NewBaseEvent(TypeTestOutcome, projectID),
		TestCaseID: testCaseID,
		Status:     status,
		Version:    version,
	}
}
