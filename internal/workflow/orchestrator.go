package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/aggregate"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/core"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/dispatch"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/events"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/ingest"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/logging"
)

// Config holds orchestrator tuning.
type Config struct {
	// TestCategories are the fan-out categories for the test-generation
	// stage, one sub-task each.
	TestCategories []string
	// EstimatePerCategory sizes the estimated-test-count hint returned by
	// the generate-tests trigger. Purely informational; the real count
	// comes from ingestion.
	EstimatePerCategory int
}

// DefaultConfig returns default orchestrator tuning.
func DefaultConfig() Config {
	return Config{
		TestCategories:      []string{"unit", "integration", "e2e", "security", "performance"},
		EstimatePerCategory: 5,
	}
}

// StageResult is what a stage trigger returns: the post-transition
// state plus how the dispatch settled.
type StageResult struct {
	ProjectID core.ProjectID         `json:"project_id"`
	Stage     core.Stage             `json:"stage"`
	State     core.WorkflowStateName `json:"state"`
	Version   uint64                 `json:"version"`
	Succeeded int                    `json:"succeeded"`
	Issues    []string               `json:"issues,omitempty"`

	// AlreadyComplete marks an idempotent re-trigger: the stage had
	// completed before and nothing was dispatched.
	AlreadyComplete bool `json:"already_complete,omitempty"`

	// Accepted and Dropped report ingestion counts for stages that
	// produce records (test generation, execution).
	Accepted int `json:"accepted,omitempty"`
	Dropped  int `json:"dropped,omitempty"`

	// EstimatedTests is a UI hint on the generate-tests response. It
	// never enters aggregation state.
	EstimatedTests int `json:"estimated_tests,omitempty"`
}

// WorkflowState is the poll read model for a project's pipeline.
type WorkflowState struct {
	ProjectID core.ProjectID         `json:"project_id"`
	State     core.WorkflowStateName `json:"state"`
	Flags     core.StageFlags        `json:"flags"`
	InFlight  core.Stage             `json:"in_flight,omitempty"`
	Version   uint64                 `json:"version"`
}

// Orchestrator drives projects through the pipeline. All stage triggers
// are synchronous: they return once the dispatch has settled, with the
// post-transition state. Callers poll GetWorkflowState and GetStats;
// the event bus is an observer, not a contract.
type Orchestrator struct {
	cfg        Config
	store      core.Store
	machine    *Machine
	dispatcher *dispatch.Dispatcher
	agg        *aggregate.Aggregator
	bus        *events.Bus
	logger     *logging.Logger
}

// New creates an orchestrator.
func New(cfg Config, store core.Store, d *dispatch.Dispatcher, agg *aggregate.Aggregator, bus *events.Bus, logger *logging.Logger) *Orchestrator {
	if len(cfg.TestCategories) == 0 {
		cfg.TestCategories = DefaultConfig().TestCategories
	}
	if cfg.EstimatePerCategory <= 0 {
		cfg.EstimatePerCategory = DefaultConfig().EstimatePerCategory
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		cfg:        cfg,
		store:      store,
		machine:    NewMachine(),
		dispatcher: d,
		agg:        agg,
		bus:        bus,
		logger:     logger,
	}
}

// Restore rebuilds workflow flags and aggregation state from the store,
// best effort, for projects persisted by a previous process.
func (o *Orchestrator) Restore(ctx context.Context) error {
	projects, err := o.store.ListProjects(ctx)
	if err != nil {
		return err
	}

	for _, p := range projects {
		flags := core.StageFlags{ProjectCreated: true}
		switch p.AnalysisStatus {
		case core.AnalysisStatusAnalyzing, core.AnalysisStatusFailed:
			flags.AnalysisStarted = true
		case core.AnalysisStatusCompleted:
			flags.AnalysisStarted = true
			flags.AnalysisCompleted = true
		}

		cases, err := o.store.LoadTestCases(ctx, p.ID)
		if err != nil {
			return err
		}
		if len(cases) > 0 && flags.AnalysisCompleted {
			flags.TestsGenerated = true
			for _, tc := range cases {
				if tc.Status == core.TestStatusPassed || tc.Status == core.TestStatusFailed {
					flags.ScriptsGenerated = true
					flags.TestsRun = true
					break
				}
			}
		}

		if err := o.machine.Restore(p.ID, flags); err != nil {
			return err
		}
		if len(cases) > 0 {
			o.agg.RegisterCases(p.ID, cases)
		}
		o.logger.WithProject(int64(p.ID)).Debug("restored project workflow",
			"state", flags.State(false))
	}
	return nil
}

// CreateProject validates, persists and registers a new project.
func (o *Orchestrator) CreateProject(ctx context.Context, name string, src core.SourceDescriptor) (*core.Project, error) {
	p := core.NewProject(name, src)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := o.store.SaveProject(ctx, p); err != nil {
		return nil, err
	}

	o.machine.Create(p.ID)
	o.publish(events.NewProjectCreatedEvent(int64(p.ID), p.Name))
	o.logger.WithProject(int64(p.ID)).Info("project created", "name", p.Name)
	return p, nil
}

// GetProject loads one project.
func (o *Orchestrator) GetProject(ctx context.Context, id core.ProjectID) (*core.Project, error) {
	return o.store.LoadProject(ctx, id)
}

// ListProjects lists all projects.
func (o *Orchestrator) ListProjects(ctx context.Context) ([]*core.Project, error) {
	return o.store.ListProjects(ctx)
}

// StartAnalysis fans the analysis stage out to the analyzer, risk and
// environment agents and settles them all before returning. The stage
// advances when at least one sub-task succeeds; every settled sub-task
// is persisted as an immutable analysis record.
func (o *Orchestrator) StartAnalysis(ctx context.Context, id core.ProjectID) (*StageResult, error) {
	p, err := o.store.LoadProject(ctx, id)
	if err != nil {
		return nil, err
	}

	began, snap, err := o.machine.Begin(id, core.StageAnalysis)
	if err != nil {
		return nil, err
	}
	if !began {
		return alreadyComplete(id, core.StageAnalysis, snap), nil
	}

	p.AnalysisStatus = core.AnalysisStatusAnalyzing
	p.UpdatedAt = time.Now()
	if err := o.store.SaveProject(ctx, p); err != nil {
		o.machine.Complete(id, core.StageAnalysis, false)
		return nil, err
	}

	tasks := make([]dispatch.SubTask, 0, 3)
	for _, role := range []core.AgentRole{core.RoleAnalyzer, core.RoleRisk, core.RoleEnvironment} {
		tasks = append(tasks, dispatch.SubTask{
			Role:  role,
			Input: core.InvocationInput{Stage: core.StageAnalysis, Project: *p},
		})
	}
	o.publish(events.NewStageStartedEvent(int64(id), core.StageAnalysis.String(), len(tasks)))

	outcome, dispErr := o.dispatcher.Dispatch(ctx, core.StageAnalysis, id, tasks)
	if outcome != nil {
		o.saveRecords(ctx, id, outcome.SubTasks)
	}
	if dispErr != nil {
		return nil, o.failAnalysis(ctx, p, dispErr)
	}

	o.machine.Complete(id, core.StageAnalysis, true)
	p.AnalysisStatus = core.AnalysisStatusCompleted
	p.UpdatedAt = time.Now()
	if err := o.store.SaveProject(ctx, p); err != nil {
		o.logger.WithProject(int64(id)).Warn("persisting analysis status", "error", err)
	}

	return o.completeStage(id, core.StageAnalysis, outcome), nil
}

// GenerateTests fans test generation out per category, ingests every
// successful payload through the trust boundary and persists the
// accepted cases.
func (o *Orchestrator) GenerateTests(ctx context.Context, id core.ProjectID) (*StageResult, error) {
	p, err := o.store.LoadProject(ctx, id)
	if err != nil {
		return nil, err
	}

	began, snap, err := o.machine.Begin(id, core.StageTestGeneration)
	if err != nil {
		return nil, err
	}
	if !began {
		return alreadyComplete(id, core.StageTestGeneration, snap), nil
	}

	prior, err := o.loadPrior(ctx, id)
	if err != nil {
		o.machine.Complete(id, core.StageTestGeneration, false)
		return nil, err
	}

	tasks := make([]dispatch.SubTask, 0, len(o.cfg.TestCategories))
	for _, category := range o.cfg.TestCategories {
		tasks = append(tasks, dispatch.SubTask{
			Role: core.RoleTest,
			Input: core.InvocationInput{
				Stage:    core.StageTestGeneration,
				Project:  *p,
				Category: category,
				Prior:    prior,
			},
		})
	}
	o.publish(events.NewStageStartedEvent(int64(id), core.StageTestGeneration.String(), len(tasks)))

	outcome, dispErr := o.dispatcher.Dispatch(ctx, core.StageTestGeneration, id, tasks)
	if dispErr != nil {
		o.machine.Complete(id, core.StageTestGeneration, false)
		o.publish(events.NewStageFailedEvent(int64(id), core.StageTestGeneration.String(), dispErr.Error()))
		return nil, dispErr
	}

	log := o.logger.WithProject(int64(id)).WithStage(core.StageTestGeneration.String())
	var accepted, dropped int
	var cases []*core.TestCase
	for _, sub := range outcome.SubTasks {
		if sub.Status != dispatch.SubTaskSucceeded {
			continue
		}
		batch, res := ingest.TestCases(id, sub.Output)
		accepted += res.Accepted
		dropped += res.Dropped
		for _, reason := range res.Reasons {
			log.Warn("dropped generated test case", "category", sub.Category, "reason", reason)
		}
		cases = append(cases, batch...)
	}

	for _, tc := range cases {
		if err := o.store.UpsertTestCase(ctx, tc); err != nil {
			log.Warn("persisting test case", "test_case_id", tc.ID, "error", err)
		}
	}
	o.agg.RegisterCases(id, cases)
	o.machine.Complete(id, core.StageTestGeneration, true)

	result := o.completeStage(id, core.StageTestGeneration, outcome)
	result.Accepted = accepted
	result.Dropped = dropped
	result.EstimatedTests = len(o.cfg.TestCategories) * o.cfg.EstimatePerCategory
	return result, nil
}

// GenerateScripts produces framework-specific test scripts, one
// sub-task per framework present in the generated cases. Script
// payloads are persisted as analysis records so the execution stage
// receives them as prior context.
func (o *Orchestrator) GenerateScripts(ctx context.Context, id core.ProjectID) (*StageResult, error) {
	p, err := o.store.LoadProject(ctx, id)
	if err != nil {
		return nil, err
	}

	began, snap, err := o.machine.Begin(id, core.StageScriptGeneration)
	if err != nil {
		return nil, err
	}
	if !began {
		return alreadyComplete(id, core.StageScriptGeneration, snap), nil
	}

	prior, err := o.loadPrior(ctx, id)
	if err != nil {
		o.machine.Complete(id, core.StageScriptGeneration, false)
		return nil, err
	}

	tasks := make([]dispatch.SubTask, 0)
	for _, framework := range o.frameworks(id) {
		tasks = append(tasks, dispatch.SubTask{
			Role: core.RoleTest,
			Input: core.InvocationInput{
				Stage:    core.StageScriptGeneration,
				Project:  *p,
				Category: framework,
				Prior:    prior,
			},
		})
	}
	o.publish(events.NewStageStartedEvent(int64(id), core.StageScriptGeneration.String(), len(tasks)))

	outcome, dispErr := o.dispatcher.Dispatch(ctx, core.StageScriptGeneration, id, tasks)
	if outcome != nil {
		o.saveRecords(ctx, id, outcome.SubTasks)
	}
	if dispErr != nil {
		o.machine.Complete(id, core.StageScriptGeneration, false)
		o.publish(events.NewStageFailedEvent(int64(id), core.StageScriptGeneration.String(), dispErr.Error()))
		return nil, dispErr
	}

	o.machine.Complete(id, core.StageScriptGeneration, true)
	return o.completeStage(id, core.StageScriptGeneration, outcome), nil
}

// RunTests executes the generated scripts, one sub-task per framework,
// and streams the reported outcomes through ingestion into the
// aggregator. While the dispatch is settling the derived state is
// TestsRun; once it completes, ResultsAvailable.
func (o *Orchestrator) RunTests(ctx context.Context, id core.ProjectID) (*StageResult, error) {
	p, err := o.store.LoadProject(ctx, id)
	if err != nil {
		return nil, err
	}

	began, snap, err := o.machine.Begin(id, core.StageExecution)
	if err != nil {
		return nil, err
	}
	if !began {
		return alreadyComplete(id, core.StageExecution, snap), nil
	}

	prior, err := o.loadPrior(ctx, id)
	if err != nil {
		o.machine.Complete(id, core.StageExecution, false)
		return nil, err
	}

	tasks := make([]dispatch.SubTask, 0)
	for _, framework := range o.frameworks(id) {
		tasks = append(tasks, dispatch.SubTask{
			Role: core.RoleTest,
			Input: core.InvocationInput{
				Stage:    core.StageExecution,
				Project:  *p,
				Category: framework,
				Prior:    prior,
			},
		})
	}
	o.publish(events.NewStageStartedEvent(int64(id), core.StageExecution.String(), len(tasks)))

	outcome, dispErr := o.dispatcher.Dispatch(ctx, core.StageExecution, id, tasks)
	if dispErr != nil {
		o.machine.Complete(id, core.StageExecution, false)
		o.publish(events.NewStageFailedEvent(int64(id), core.StageExecution.String(), dispErr.Error()))
		return nil, dispErr
	}

	log := o.logger.WithProject(int64(id)).WithStage(core.StageExecution.String())
	var accepted, dropped int
	for _, sub := range outcome.SubTasks {
		if sub.Status != dispatch.SubTaskSucceeded {
			continue
		}
		outcomes, res := ingest.Outcomes(sub.Output)
		accepted += res.Accepted
		dropped += res.Dropped
		for _, reason := range res.Reasons {
			log.Warn("dropped execution outcome", "framework", sub.Category, "reason", reason)
		}
		for _, to := range outcomes {
			o.agg.RecordOutcome(id, to)
		}
	}

	// Persist the post-aggregation view so execution state survives a
	// restart.
	for _, tc := range o.agg.Cases(id) {
		tc := tc
		if err := o.store.UpsertTestCase(ctx, &tc); err != nil {
			log.Warn("persisting test case", "test_case_id", tc.ID, "error", err)
		}
	}
	o.machine.Complete(id, core.StageExecution, true)

	result := o.completeStage(id, core.StageExecution, outcome)
	result.Accepted = accepted
	result.Dropped = dropped
	return result, nil
}

// ResetProject atomically clears every workflow flag except
// projectCreated and discards aggregation state. Persisted analysis
// records remain as history.
func (o *Orchestrator) ResetProject(ctx context.Context, id core.ProjectID) (*WorkflowState, error) {
	p, err := o.store.LoadProject(ctx, id)
	if err != nil {
		return nil, err
	}

	snap, err := o.machine.Reset(id)
	if err != nil {
		return nil, err
	}
	o.agg.Reset(id)

	p.AnalysisStatus = core.AnalysisStatusPending
	p.UpdatedAt = time.Now()
	if err := o.store.SaveProject(ctx, p); err != nil {
		o.logger.WithProject(int64(id)).Warn("persisting reset status", "error", err)
	}

	o.publish(events.NewProjectResetEvent(int64(id)))
	o.logger.WithProject(int64(id)).Info("project reset")
	return workflowState(id, snap), nil
}

// GetWorkflowState returns the derived workflow state without blocking
// on in-flight stage transitions.
func (o *Orchestrator) GetWorkflowState(ctx context.Context, id core.ProjectID) (*WorkflowState, error) {
	if _, err := o.store.LoadProject(ctx, id); err != nil {
		return nil, err
	}
	return workflowState(id, o.machine.Snapshot(id)), nil
}

// GetStats returns snapshot test statistics plus the project's version
// counter.
func (o *Orchestrator) GetStats(ctx context.Context, id core.ProjectID) (core.Stats, uint64, error) {
	if _, err := o.store.LoadProject(ctx, id); err != nil {
		return core.Stats{}, 0, err
	}
	stats, version := o.agg.SnapshotStats(id)
	return stats, version, nil
}

// GetReport builds the deterministic test report for a project.
func (o *Orchestrator) GetReport(ctx context.Context, id core.ProjectID) (*aggregate.Report, error) {
	p, err := o.store.LoadProject(ctx, id)
	if err != nil {
		return nil, err
	}
	return o.agg.BuildReport(id, p.Name), nil
}

// RunPipeline drives a project through every remaining stage in order.
// Used by the CLI's one-shot run mode.
func (o *Orchestrator) RunPipeline(ctx context.Context, id core.ProjectID) (*StageResult, error) {
	triggers := []func(context.Context, core.ProjectID) (*StageResult, error){
		o.StartAnalysis,
		o.GenerateTests,
		o.GenerateScripts,
		o.RunTests,
	}

	var last *StageResult
	for _, trigger := range triggers {
		result, err := trigger(ctx, id)
		if err != nil {
			return last, err
		}
		last = result
	}
	return last, nil
}

func (o *Orchestrator) failAnalysis(ctx context.Context, p *core.Project, dispErr error) error {
	o.machine.Complete(p.ID, core.StageAnalysis, false)

	// Cancellation is not failure: the project drops back to pending so
	// a later trigger starts clean.
	if core.IsCategory(dispErr, core.ErrCatCancelled) {
		p.AnalysisStatus = core.AnalysisStatusPending
	} else {
		p.AnalysisStatus = core.AnalysisStatusFailed
	}
	p.UpdatedAt = time.Now()
	if err := o.store.SaveProject(ctx, p); err != nil {
		o.logger.WithProject(int64(p.ID)).Warn("persisting analysis status", "error", err)
	}

	o.publish(events.NewStageFailedEvent(int64(p.ID), core.StageAnalysis.String(), dispErr.Error()))
	return dispErr
}

func (o *Orchestrator) completeStage(id core.ProjectID, stage core.Stage, outcome *dispatch.StageOutcome) *StageResult {
	snap := o.machine.Snapshot(id)
	o.publish(events.NewStageCompletedEvent(int64(id), stage.String(),
		outcome.Succeeded, len(outcome.Issues), string(snap.State), snap.Version))
	return &StageResult{
		ProjectID: id,
		Stage:     stage,
		State:     snap.State,
		Version:   snap.Version,
		Succeeded: outcome.Succeeded,
		Issues:    outcome.Issues,
	}
}

// saveRecords persists one immutable analysis record per settled
// sub-task. New runs create new records, never overwrite.
func (o *Orchestrator) saveRecords(ctx context.Context, id core.ProjectID, subs []dispatch.SubTaskOutcome) {
	now := time.Now()
	for _, sub := range subs {
		rec := &core.AnalysisRecord{
			ProjectID:   id,
			AgentID:     sub.AgentID,
			Role:        sub.Role,
			Status:      recordStatus(sub.Status),
			StartedAt:   now.Add(-sub.Duration),
			CompletedAt: &now,
		}
		if sub.Status == dispatch.SubTaskSucceeded {
			rec.Payload = ingest.Payload(sub.Role, sub.Output)
		} else {
			payload, _ := json.Marshal(map[string]string{"error": sub.Err})
			rec.Payload = payload
		}
		if err := o.store.SaveAnalysis(ctx, rec); err != nil {
			o.logger.WithProject(int64(id)).Warn("persisting analysis record",
				"role", sub.Role, "error", err)
		}
	}
}

// loadPrior loads the project's analysis records for use as sub-task
// context.
func (o *Orchestrator) loadPrior(ctx context.Context, id core.ProjectID) ([]core.AnalysisRecord, error) {
	records, err := o.store.LoadAnalyses(ctx, id)
	if err != nil {
		return nil, err
	}
	prior := make([]core.AnalysisRecord, 0, len(records))
	for _, rec := range records {
		prior = append(prior, *rec)
	}
	return prior, nil
}

// frameworks returns the distinct frameworks of the project's test
// cases in first-seen order, defaulting to one unknown bucket.
func (o *Orchestrator) frameworks(id core.ProjectID) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tc := range o.agg.Cases(id) {
		if !seen[tc.Framework] {
			seen[tc.Framework] = true
			out = append(out, tc.Framework)
		}
	}
	if len(out) == 0 {
		out = []string{ingest.FallbackFramework}
	}
	return out
}

func (o *Orchestrator) publish(ev events.Event) {
	if o.bus != nil {
		o.bus.Publish(ev)
	}
}

func recordStatus(s dispatch.SubTaskStatus) core.RecordStatus {
	switch s {
	case dispatch.SubTaskSucceeded:
		return core.RecordStatusCompleted
	case dispatch.SubTaskCancelled:
		return core.RecordStatusCancelled
	default:
		return core.RecordStatusFailed
	}
}

func alreadyComplete(id core.ProjectID, stage core.Stage, snap Snapshot) *StageResult {
	return &StageResult{
		ProjectID:       id,
		Stage:           stage,
		State:           snap.State,
		Version:         snap.Version,
		AlreadyComplete: true,
	}
}

func workflowState(id core.ProjectID, snap Snapshot) *WorkflowState {
	return &WorkflowState{
		ProjectID: id,
		State:     snap.State,
		Flags:     snap.Flags,
		InFlight:  snap.InFlight,
		Version:   snap.Version,
	}
}
