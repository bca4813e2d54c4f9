package aggregate

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/core"
)

// Report is a deterministic projection of the current test-case set plus
// snapshot statistics, reproducible from state alone.
type Report struct {
	ProjectID   core.ProjectID  `json:"project_id" yaml:"project_id"`
	ProjectName string          `json:"project_name,omitempty" yaml:"project_name,omitempty"`
	Stats       core.Stats      `json:"stats" yaml:"stats"`
	Version     uint64          `json:"version" yaml:"version"`
	GeneratedAt time.Time       `json:"generated_at" yaml:"generated_at"`
	Cases       []core.TestCase `json:"cases" yaml:"cases"`
}

// BuildReport assembles the report for a project. Cases are sorted by
// stable id order.
func (a *Aggregator) BuildReport(projectID core.ProjectID, projectName string) *Report {
	stats, version := a.SnapshotStats(projectID)
	return &Report{
		ProjectID:   projectID,
		ProjectName: projectName,
		Stats:       stats,
		Version:     version,
		GeneratedAt: time.Now(),
		Cases:       a.Cases(projectID),
	}
}

// WriteFile writes the report atomically. The encoding follows the file
// extension: .yaml/.yml produce YAML, everything else JSON.
func (r *Report) WriteFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(r)
	default:
		data, err = json.MarshalIndent(r, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
