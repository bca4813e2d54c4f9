package core

import "time"

// ProjectID uniquely identifies a project.
type ProjectID int64

// AnalysisStatus tracks a project's analysis lifecycle.
type AnalysisStatus string

const (
	AnalysisStatusPending   AnalysisStatus = "pending"
	AnalysisStatusAnalyzing AnalysisStatus = "analyzing"
	AnalysisStatusCompleted AnalysisStatus = "completed"
	AnalysisStatusFailed    AnalysisStatus = "failed"
)

// SourceDescriptor identifies where a project's code comes from.
type SourceDescriptor struct {
	Type string `json:"type"` // "path", "git", "archive"
	URL  string `json:"url,omitempty"`
	Path string `json:"path,omitempty"`
	Ref  string `json:"ref,omitempty"`
}

// Project is the unit of orchestration. It is owned by the orchestrator
// for the duration of a pipeline run and mutated only through stage
// transitions.
type Project struct {
	ID             ProjectID        `json:"id"`
	Name           string           `json:"name"`
	Source         SourceDescriptor `json:"source"`
	AnalysisStatus AnalysisStatus   `json:"analysis_status"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// NewProject creates a pending project.
func NewProject(name string, src SourceDescriptor) *Project {
	now := time.Now()
	return &Project{
		Name:           name,
		Source:         src,
		AnalysisStatus: AnalysisStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Validate checks project invariants.
func (p *Project) Validate() error {
	if p.Name == "" {
		return ErrValidation("PROJECT_NAME_REQUIRED", "project name cannot be empty")
	}
	if p.Source.Type == "" {
		return ErrValidation("PROJECT_SOURCE_REQUIRED", "project source type cannot be empty")
	}
	return nil
}
