package core

import (
	"encoding/json"
	"time"
)

// AnalysisID uniquely identifies an analysis record.
type AnalysisID int64

// RecordStatus tracks an analysis record's dispatch outcome.
type RecordStatus string

const (
	RecordStatusRunning   RecordStatus = "running"
	RecordStatusCompleted RecordStatus = "completed"
	RecordStatusFailed    RecordStatus = "failed"
	RecordStatusCancelled RecordStatus = "cancelled"
)

// AnalysisRecord is written when a dispatch completes and is immutable
// afterwards; new runs create new records, never overwrite.
type AnalysisRecord struct {
	ID          AnalysisID      `json:"id"`
	ProjectID   ProjectID       `json:"project_id"`
	AgentID     string          `json:"agent_id"`
	Role        AgentRole       `json:"role"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      RecordStatus    `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}
