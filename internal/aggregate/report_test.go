package aggregate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/core"
)

func TestBuildReport_StableOrder(t *testing.T) {
	a := New(nil)
	// Register out of id order.
	a.RegisterCases(1, []*core.TestCase{
		{ID: 3, ProjectID: 1, Name: "gamma"},
		{ID: 1, ProjectID: 1, Name: "alpha"},
		{ID: 2, ProjectID: 1, Name: "beta"},
	})
	a.RecordOutcome(1, core.TestOutcome{TestCaseID: 2, Status: core.TestStatusPassed, ReportedAt: time.Unix(1, 0)})

	r1 := a.BuildReport(1, "demo")
	r2 := a.BuildReport(1, "demo")

	for i, want := range []core.TestCaseID{1, 2, 3} {
		if r1.Cases[i].ID != want {
			t.Errorf("Cases[%d].ID = %d, want %d", i, r1.Cases[i].ID, want)
		}
	}
	// Deterministic projection: two builds from identical state agree
	// on everything but the build timestamp.
	r1.GeneratedAt, r2.GeneratedAt = time.Time{}, time.Time{}
	b1, _ := json.Marshal(r1)
	b2, _ := json.Marshal(r2)
	if string(b1) != string(b2) {
		t.Error("reports from identical state differ")
	}
}

func TestReport_WriteFile(t *testing.T) {
	a := New(nil)
	a.RegisterCases(1, []*core.TestCase{{ID: 1, ProjectID: 1, Name: "alpha"}})
	report := a.BuildReport(1, "demo")

	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "report.json")
	if err := report.WriteFile(jsonPath); err != nil {
		t.Fatalf("WriteFile(json) error = %v", err)
	}
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	var fromJSON Report
	if err := json.Unmarshal(data, &fromJSON); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}
	if fromJSON.ProjectName != "demo" {
		t.Errorf("ProjectName = %q, want demo", fromJSON.ProjectName)
	}

	yamlPath := filepath.Join(dir, "report.yaml")
	if err := report.WriteFile(yamlPath); err != nil {
		t.Fatalf("WriteFile(yaml) error = %v", err)
	}
	data, err = os.ReadFile(yamlPath)
	if err != nil {
		t.Fatal(err)
	}
	var fromYAML Report
	if err := yaml.Unmarshal(data, &fromYAML); err != nil {
		t.Fatalf("report is not valid YAML: %v", err)
	}
	if len(fromYAML.Cases) != 1 {
		t.Errorf("len(Cases) = %d, want 1", len(fromYAML.Cases))
	}
}
