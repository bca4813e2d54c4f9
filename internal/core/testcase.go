package core

import (
	"encoding/json"
	"time"
)

// TestCaseID uniquely identifies a test case.
type TestCaseID int64

// TestStatus tracks a test case through generation and execution.
type TestStatus string

const (
	TestStatusGenerated TestStatus = "generated"
	TestStatusPending   TestStatus = "pending"
	TestStatusRunning   TestStatus = "running"
	TestStatusPassed    TestStatus = "passed"
	TestStatusFailed    TestStatus = "failed"
)

// ValidTestStatus checks whether a status string is known.
func ValidTestStatus(s TestStatus) bool {
	switch s {
	case TestStatusGenerated, TestStatusPending, TestStatusRunning, TestStatusPassed, TestStatusFailed:
		return true
	default:
		return false
	}
}

// TestCase is created in bulk by the test-generation stage and mutated
// only by execution-result ingestion afterwards.
type TestCase struct {
	ID          TestCaseID      `json:"id"`
	ProjectID   ProjectID       `json:"project_id"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`     // "unit", "integration", "e2e", "security", "performance"
	Priority    string          `json:"priority"` // "high", "medium", "low"
	Framework   string          `json:"framework"`
	Status      TestStatus      `json:"status"`
	ExecutionMS *int64          `json:"execution_ms,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TestOutcome is one externally reported execution result. ReportedAt is
// the idempotence key together with the test case id: a later-timestamped
// outcome overwrites, an equal-or-earlier one is discarded.
type TestOutcome struct {
	TestCaseID  TestCaseID      `json:"test_case_id"`
	Status      TestStatus      `json:"status"`
	ExecutionMS *int64          `json:"execution_ms,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	ReportedAt  time.Time       `json:"reported_at"`
}

// Stats is a snapshot of per-project test statistics, computed fresh from
// current test-case state rather than accumulated incrementally.
type Stats struct {
	Total       int `json:"total"`
	Passed      int `json:"passed"`
	Failed      int `json:"failed"`
	Running     int `json:"running"`
	Pending     int `json:"pending"`
	SuccessRate int `json:"success_rate"`
}
