// Package ingest is the single trust boundary for externally produced
// data. Agent responses are language-model-generated and carry no schema
// guarantee: every field is individually coerced or defaulted, a record
// is dropped only when its identifier is unusable, and every drop is
// counted so malformed batches stay observable.
package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/core"
)

// Fallback values for missing or mistyped string fields.
const (
	FallbackTestName  = "Unnamed Test"
	FallbackUnknown   = "unknown"
	FallbackPriority  = "medium"
	FallbackFramework = "unknown"
)

// Result reports what happened to a batch.
type Result struct {
	Accepted int
	Dropped  int
	Reasons  []string
}

func (r *Result) drop(reason string) {
	r.Dropped++
	r.Reasons = append(r.Reasons, reason)
}

// TestCases coerces a raw test-generation payload into typed test cases.
// Accepts either a bare JSON array or an object wrapping the array under
// "test_cases" or "tests". Records without a positive id are dropped.
func TestCases(projectID core.ProjectID, raw json.RawMessage) ([]*core.TestCase, Result) {
	var res Result
	items, err := recordList(raw, "test_cases", "tests")
	if err != nil {
		res.drop(err.Error())
		return nil, res
	}

	out := make([]*core.TestCase, 0, len(items))
	for i, item := range items {
		rec, ok := item.(map[string]interface{})
		if !ok {
			res.drop(fmt.Sprintf("record %d: not an object", i))
			continue
		}
		id, ok := coerceID(rec["id"])
		if !ok {
			res.drop(fmt.Sprintf("record %d: missing or invalid id", i))
			continue
		}

		tc := &core.TestCase{
			ID:        core.TestCaseID(id),
			ProjectID: projectID,
			Name:      coerceString(rec["name"], FallbackTestName),
			Type:      coerceString(rec["type"], FallbackUnknown),
			Priority:  coerceString(rec["priority"], FallbackPriority),
			Framework: coerceString(rec["framework"], FallbackFramework),
			Status:    core.TestStatusGenerated,
			CreatedAt: time.Now(),
		}
		out = append(out, tc)
		res.Accepted++
	}
	return out, res
}

// Outcomes coerces a raw execution report into typed test outcomes.
// An outcome without a positive test-case id is dropped; an unknown
// status falls back to pending so it can never flip a pass/fail wrongly;
// a missing report timestamp becomes the zero time, which last-writer-wins
// ordering then discards against any timestamped outcome.
func Outcomes(raw json.RawMessage) ([]core.TestOutcome, Result) {
	var res Result
	items, err := recordList(raw, "results", "outcomes")
	if err != nil {
		res.drop(err.Error())
		return nil, res
	}

	out := make([]core.TestOutcome, 0, len(items))
	for i, item := range items {
		rec, ok := item.(map[string]interface{})
		if !ok {
			res.drop(fmt.Sprintf("record %d: not an object", i))
			continue
		}
		id, ok := coerceID(firstPresent(rec, "test_case_id", "id"))
		if !ok {
			res.drop(fmt.Sprintf("record %d: missing or invalid test case id", i))
			continue
		}

		o := core.TestOutcome{
			TestCaseID: core.TestCaseID(id),
			Status:     coerceOutcomeStatus(rec["status"]),
			ReportedAt: coerceTime(firstPresent(rec, "reported_at", "timestamp")),
		}
		if ms, ok := coerceNonNegative(firstPresent(rec, "execution_ms", "duration_ms")); ok {
			o.ExecutionMS = &ms
		}
		if payload, ok := rec["result"]; ok {
			if b, err := json.Marshal(payload); err == nil {
				o.Result = b
			}
		}
		out = append(out, o)
		res.Accepted++
	}
	return out, res
}

// Payload normalizes a role-specific analysis payload into a JSON object
// guaranteed to carry role and summary fields. Non-object payloads are
// wrapped rather than rejected so one malformed response still yields a
// usable record.
func Payload(role core.AgentRole, raw json.RawMessage) json.RawMessage {
	obj := map[string]interface{}{}
	if len(raw) > 0 {
		var parsed interface{}
		if err := json.Unmarshal(raw, &parsed); err == nil {
			if m, ok := parsed.(map[string]interface{}); ok {
				obj = m
			} else {
				obj["content"] = parsed
			}
		} else {
			obj["content"] = strings.TrimSpace(string(raw))
		}
	}

	obj["role"] = string(role)
	obj["summary"] = coerceString(obj["summary"], FallbackUnknown)

	b, err := json.Marshal(obj)
	if err != nil {
		return json.RawMessage(`{"role":"` + string(role) + `","summary":"` + FallbackUnknown + `"}`)
	}
	return b
}

// recordList extracts the record array from raw, unwrapping the first
// matching key when the payload is an object instead of a bare array.
func recordList(raw json.RawMessage, keys ...string) ([]interface{}, error) {
	var parsed interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("payload is not valid JSON: %v", err)
	}

	switch v := parsed.(type) {
	case []interface{}:
		return v, nil
	case map[string]interface{}:
		for _, key := range keys {
			if arr, ok := v[key].([]interface{}); ok {
				return arr, nil
			}
		}
		return nil, fmt.Errorf("payload object has no %s array", strings.Join(keys, "/"))
	default:
		return nil, fmt.Errorf("payload is neither an array nor an object")
	}
}

// coerceID accepts positive integers encoded as JSON numbers or numeric
// strings. Anything else fails.
func coerceID(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n > 0 && n == float64(int64(n)) {
			return int64(n), true
		}
	case string:
		if id, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil && id > 0 {
			return id, true
		}
	}
	return 0, false
}

func coerceString(v interface{}, fallback string) string {
	if s, ok := v.(string); ok {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func coerceOutcomeStatus(v interface{}) core.TestStatus {
	if s, ok := v.(string); ok {
		st := core.TestStatus(strings.ToLower(strings.TrimSpace(s)))
		if core.ValidTestStatus(st) {
			return st
		}
	}
	return core.TestStatusPending
}

func coerceNonNegative(v interface{}) (int64, bool) {
	if n, ok := v.(float64); ok && n >= 0 {
		return int64(n), true
	}
	return 0, false
}

func coerceTime(v interface{}) time.Time {
	switch t := v.(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts
		}
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts
		}
	case float64:
		if t > 0 {
			// Unix seconds, with millisecond payloads tolerated.
			if t > 1e12 {
				return time.UnixMilli(int64(t))
			}
			return time.Unix(int64(t), 0)
		}
	}
	return time.Time{}
}

func firstPresent(rec map[string]interface{}, keys ...string) interface{} {
	for _, key := range keys {
		if v, ok := rec[key]; ok {
			return v
		}
	}
	return nil
}
