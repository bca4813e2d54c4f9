package ingest

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/core"
)

func TestTestCases_DropsInvalidIDs(t *testing.T) {
	// 10 records, 3 with missing or invalid ids.
	records := make([]map[string]interface{}, 0, 10)
	for i := 1; i <= 7; i++ {
		records = append(records, map[string]interface{}{
			"id": i, "name": fmt.Sprintf("case %d", i), "type": "unit",
			"priority": "high", "framework": "jest",
		})
	}
	records = append(records,
		map[string]interface{}{"name": "no id"},
		map[string]interface{}{"id": -4, "name": "negative id"},
		map[string]interface{}{"id": "abc", "name": "non-numeric id"},
	)
	raw, _ := json.Marshal(records)

	cases, res := TestCases(42, raw)
	if len(cases) != 7 {
		t.Fatalf("len(cases) = %d, want 7", len(cases))
	}
	if res.Accepted != 7 || res.Dropped != 3 {
		t.Errorf("Result = %+v, want 7 accepted / 3 dropped", res)
	}
	for _, tc := range cases {
		if tc.ProjectID != 42 {
			t.Errorf("ProjectID = %d, want 42", tc.ProjectID)
		}
		if tc.Status != core.TestStatusGenerated {
			t.Errorf("Status = %s, want generated", tc.Status)
		}
	}
}

func TestTestCases_FieldFallbacks(t *testing.T) {
	raw := json.RawMessage(`[{"id": 5, "name": 123, "type": null, "priority": "  "}]`)

	cases, res := TestCases(1, raw)
	if res.Accepted != 1 {
		t.Fatalf("Accepted = %d, want 1", res.Accepted)
	}
	tc := cases[0]
	if tc.Name != FallbackTestName {
		t.Errorf("Name = %q, want %q", tc.Name, FallbackTestName)
	}
	if tc.Type != FallbackUnknown {
		t.Errorf("Type = %q, want %q", tc.Type, FallbackUnknown)
	}
	if tc.Priority != FallbackPriority {
		t.Errorf("Priority = %q, want %q", tc.Priority, FallbackPriority)
	}
	if tc.Framework != FallbackFramework {
		t.Errorf("Framework = %q, want %q", tc.Framework, FallbackFramework)
	}
}

func TestTestCases_WrappedObject(t *testing.T) {
	raw := json.RawMessage(`{"test_cases": [{"id": "9", "name": "login flow"}]}`)

	cases, res := TestCases(1, raw)
	if res.Accepted != 1 || len(cases) != 1 {
		t.Fatalf("expected 1 accepted, got %+v", res)
	}
	if cases[0].ID != 9 {
		t.Errorf("ID = %d, want 9 (numeric string coerced)", cases[0].ID)
	}
}

func TestTestCases_MalformedPayload(t *testing.T) {
	for _, raw := range []string{`not json`, `"just a string"`, `{"other": 1}`} {
		cases, res := TestCases(1, json.RawMessage(raw))
		if len(cases) != 0 {
			t.Errorf("payload %q produced %d cases, want 0", raw, len(cases))
		}
		if res.Dropped == 0 {
			t.Errorf("payload %q: drop not counted", raw)
		}
	}
}

func TestOutcomes_Coercion(t *testing.T) {
	raw := json.RawMessage(`{"results": [
		{"test_case_id": 1, "status": "PASSED", "execution_ms": 120, "reported_at": "2026-08-01T10:00:00Z"},
		{"id": 2, "status": "exploded", "duration_ms": -5},
		{"status": "failed"}
	]}`)

	outcomes, res := Outcomes(raw)
	if res.Accepted != 2 || res.Dropped != 1 {
		t.Fatalf("Result = %+v, want 2 accepted / 1 dropped", res)
	}

	first := outcomes[0]
	if first.Status != core.TestStatusPassed {
		t.Errorf("Status = %s, want passed (case-insensitive)", first.Status)
	}
	if first.ExecutionMS == nil || *first.ExecutionMS != 120 {
		t.Errorf("ExecutionMS = %v, want 120", first.ExecutionMS)
	}
	want, _ := time.Parse(time.RFC3339, "2026-08-01T10:00:00Z")
	if !first.ReportedAt.Equal(want) {
		t.Errorf("ReportedAt = %v, want %v", first.ReportedAt, want)
	}

	second := outcomes[1]
	if second.Status != core.TestStatusPending {
		t.Errorf("unknown status coerced to %s, want pending", second.Status)
	}
	if second.ExecutionMS != nil {
		t.Error("negative duration should stay absent")
	}
	if !second.ReportedAt.IsZero() {
		t.Error("missing timestamp should stay zero")
	}
}

func TestOutcomes_UnixTimestamps(t *testing.T) {
	raw := json.RawMessage(`[{"test_case_id": 3, "status": "failed", "timestamp": 1754000000}]`)
	outcomes, res := Outcomes(raw)
	if res.Accepted != 1 {
		t.Fatalf("Result = %+v", res)
	}
	if outcomes[0].ReportedAt.Unix() != 1754000000 {
		t.Errorf("ReportedAt = %v, want unix 1754000000", outcomes[0].ReportedAt)
	}
}

func TestPayload_Normalization(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"object without summary", `{"findings": ["slow query"]}`},
		{"bare array", `[1, 2]`},
		{"free text", `the model rambled here`},
		{"empty", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Payload(core.RoleRisk, json.RawMessage(tt.raw))

			var obj map[string]interface{}
			if err := json.Unmarshal(out, &obj); err != nil {
				t.Fatalf("normalized payload is not an object: %v", err)
			}
			if obj["role"] != "risk" {
				t.Errorf("role = %v, want risk", obj["role"])
			}
			if _, ok := obj["summary"].(string); !ok {
				t.Error("summary must always be a string")
			}
		})
	}
}

func TestPayload_PreservesSummary(t *testing.T) {
	out := Payload(core.RoleAnalyzer, json.RawMessage(`{"summary": "3 modules, 2 hotspots"}`))
	var obj map[string]interface{}
	_ = json.Unmarshal(out, &obj)
	if obj["summary"] != "3 modules, 2 hotspots" {
		t.Errorf("summary = %v, want preserved", obj["summary"])
	}
}
