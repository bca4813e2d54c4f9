// Package aggregate ingests streaming test-execution outcomes and
// exposes a stable read model regardless of arrival order, duplication
// or partial batches.
package aggregate

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/core"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/events"
)

// caseState is the aggregator's view of one test case. lastReport is the
// idempotence watermark: outcomes at or before it are discarded.
type caseState struct {
	tc         core.TestCase
	lastReport time.Time
	reported   bool
}

// projectResults holds per-project aggregation state. version increases
// on every accepted mutation so pollers can detect change cheaply.
type projectResults struct {
	cases    map[core.TestCaseID]*caseState
	version  uint64
	rejected int
}

// Aggregator tracks test outcomes per project. Reads never block on
// stage-transition locks: the aggregator carries its own lock and
// snapshots are computed from current state, not incremental counters.
type Aggregator struct {
	mu       sync.RWMutex
	projects map[core.ProjectID]*projectResults
	bus      *events.Bus
}

// New creates an aggregator.
func New(bus *events.Bus) *Aggregator {
	return &Aggregator{
		projects: make(map[core.ProjectID]*projectResults),
		bus:      bus,
	}
}

func (a *Aggregator) project(id core.ProjectID) *projectResults {
	pr, ok := a.projects[id]
	if !ok {
		pr = &projectResults{cases: make(map[core.TestCaseID]*caseState)}
		a.projects[id] = pr
	}
	return pr
}

// RegisterCases seeds the aggregator with generated test cases. A case
// id already present keeps its recorded outcome; registration never
// regresses execution state.
func (a *Aggregator) RegisterCases(projectID core.ProjectID, cases []*core.TestCase) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pr := a.project(projectID)
	for _, tc := range cases {
		if _, exists := pr.cases[tc.ID]; exists {
			continue
		}
		pr.cases[tc.ID] = &caseState{tc: *tc}
	}
	pr.version++
}

// RecordOutcome applies one execution outcome. Idempotent per
// (testCaseID, reportedAt): a later-timestamped outcome overwrites, an
// equal-or-earlier one is discarded. Returns true when applied.
func (a *Aggregator) RecordOutcome(projectID core.ProjectID, o core.TestOutcome) bool {
	a.mu.Lock()
	pr := a.project(projectID)

	cs, ok := pr.cases[o.TestCaseID]
	if !ok {
		pr.rejected++
		a.mu.Unlock()
		return false
	}
	if cs.reported && !o.ReportedAt.After(cs.lastReport) {
		a.mu.Unlock()
		return false
	}

	cs.tc.Status = o.Status
	cs.tc.ExecutionMS = o.ExecutionMS
	cs.tc.Result = o.Result
	cs.lastReport = o.ReportedAt
	cs.reported = true
	pr.version++
	version := pr.version
	a.mu.Unlock()

	if a.bus != nil {
		a.bus.Publish(events.NewTestOutcomeEvent(int64(projectID), int64(o.TestCaseID), string(o.Status), version))
	}
	return true
}

// SnapshotStats computes statistics fresh from current per-case state.
// The returned version is the project's monotonic change counter.
func (a *Aggregator) SnapshotStats(projectID core.ProjectID) (core.Stats, uint64) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	pr, ok := a.projects[projectID]
	if !ok {
		return core.Stats{}, 0
	}

	var s core.Stats
	for _, cs := range pr.cases {
		s.Total++
		switch cs.tc.Status {
		case core.TestStatusPassed:
			s.Passed++
		case core.TestStatusFailed:
			s.Failed++
		case core.TestStatusRunning:
			s.Running++
		default:
			// generated and pending both await execution
			s.Pending++
		}
	}
	if s.Total > 0 {
		s.SuccessRate = int(math.Round(float64(s.Passed) / float64(s.Total) * 100))
	}
	return s, pr.version
}

// Cases returns the current test-case set in stable id order.
func (a *Aggregator) Cases(projectID core.ProjectID) []core.TestCase {
	a.mu.RLock()
	defer a.mu.RUnlock()

	pr, ok := a.projects[projectID]
	if !ok {
		return nil
	}
	out := make([]core.TestCase, 0, len(pr.cases))
	for _, cs := range pr.cases {
		out = append(out, cs.tc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RejectedCount returns how many outcomes referenced unknown test cases.
func (a *Aggregator) RejectedCount(projectID core.ProjectID) int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if pr, ok := a.projects[projectID]; ok {
		return pr.rejected
	}
	return 0
}

// Reset discards all aggregation state for a project.
func (a *Aggregator) Reset(projectID core.ProjectID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.projects, projectID)
}
