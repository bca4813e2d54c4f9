// Package dispatch fans stage work out to agents with bounded
// concurrency, per-invocation timeouts and retries, and settles every
// sub-task before evaluating the stage outcome.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/core"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/events"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/logging"
	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/registry"
)

// SubTaskStatus is the settled state of one fanned-out invocation.
type SubTaskStatus string

const (
	SubTaskSucceeded SubTaskStatus = "succeeded"
	SubTaskFailed    SubTaskStatus = "failed"
	SubTaskCancelled SubTaskStatus = "cancelled"
)

// SubTask is one unit of fanned-out work within a stage.
type SubTask struct {
	Role  core.AgentRole
	Input core.InvocationInput
}

// SubTaskOutcome records how one sub-task settled.
type SubTaskOutcome struct {
	InvocationID string
	Role         core.AgentRole
	AgentID      string
	Category     string
	Status       SubTaskStatus
	Output       json.RawMessage
	Err          string
	Attempts     int
	Duration     time.Duration
}

// StageOutcome is the settle-all result of a stage dispatch.
type StageOutcome struct {
	Stage     core.Stage
	SubTasks  []SubTaskOutcome
	Succeeded int
	Issues    []string
}

/// Success reports whether the stage may advance: at least one sub-task
// succeeded. Partial failures stay visible through Issues.
func (o *StageOutcome) Success() bool {
	return o.Succeeded > 0
}

// Config holds dispatcher tuning.
type Config struct {
	// MaxConcurrent bounds in-flight agent invocations across ALL
	// projects, not per stage.
	MaxConcurrent int64
	// InvocationTimeout is the per-invocation deadline. An invocation
	// exceeding it is recorded as a failed sub-task; siblings keep going.
	InvocationTimeout time.Duration
}

// DefaultConfig returns default dispatcher tuning.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:     4,
		InvocationTimeout: 2 * time.Minute,
	}
}

// Dispatcher invokes agents for pipeline stages.
type Dispatcher struct {
	cfg          Config
	agents       *registry.Registry
	invoker      core.AgentInvoker
	sem          *semaphore.Weighted
	retry        *RetryPolicy
	unavailRetry *RetryPolicy
	bus          *events.Bus
	logger       *logging.Logger
}

// Option configures a dispatcher.
type Option func(*Dispatcher)

// WithRetryPolicy overrides the transient-failure retry policy.
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(d *Dispatcher) { d.retry = p }
}

// WithUnavailableRetryPolicy overrides the agent-unavailable retry policy.
func WithUnavailableRetryPolicy(p *RetryPolicy) Option {
	return func(d *Dispatcher) { d.unavailRetry = p }
}

// New creates a dispatcher.
func New(cfg Config, agents *registry.Registry, invoker core.AgentInvoker, bus *events.Bus, logger *logging.Logger, opts ...Option) *Dispatcher {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if cfg.InvocationTimeout <= 0 {
		cfg.InvocationTimeout = DefaultConfig().InvocationTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Dispatcher{
		cfg:          cfg,
		agents:       agents,
		invoker:      invoker,
		sem:          semaphore.NewWeighted(cfg.MaxConcurrent),
		retry:        DefaultRetryPolicy(),
		unavailRetry: UnavailableRetryPolicy(),
		bus:          bus,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch fans the sub-tasks out with bounded parallelism and waits for
// every one to settle (success, failure or cancellation) before
// returning. A stage with zero successful sub-tasks yields a
// StageFailure error alongside the full outcome; individual failures
// never abort siblings.
func (d *Dispatcher) Dispatch(ctx context.Context, stage core.Stage, projectID core.ProjectID, tasks []SubTask) (*StageOutcome, error) {
	if len(tasks) == 0 {
		return nil, core.ErrValidation("NO_SUBTASKS", "dispatch requires at least one sub-task")
	}

	log := d.logger.WithProject(int64(projectID)).WithStage(stage.String())
	log.Info("dispatching stage", "subtasks", len(tasks))

	outcomes := make([]SubTaskOutcome, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(idx int, st SubTask) {
			defer wg.Done()
			outcomes[idx] = d.runSubTask(ctx, projectID, st)
		}(i, task)
	}
	wg.Wait()

	outcome := &StageOutcome{Stage: stage, SubTasks: outcomes}
	for _, sub := range outcomes {
		if sub.Status == SubTaskSucceeded {
			outcome.Succeeded++
		} else {
			outcome.Issues = append(outcome.Issues, sub.Err)
		}
	}

	log.Info("stage settled",
		"succeeded", outcome.Succeeded,
		"issues", len(outcome.Issues),
	)

	if ctx.Err() != nil && outcome.Succeeded == 0 {
		return outcome, core.ErrCancelled("stage dispatch cancelled").WithCause(ctx.Err())
	}
	if !outcome.Success() {
		return outcome, core.ErrStageFailure(stage, len(tasks))
	}
	return outcome, nil
}

// runSubTask drives one sub-task to a settled state: acquire an agent,
// invoke within the per-invocation deadline, retry transient failures
// with backoff, and classify the terminal result.
func (d *Dispatcher) runSubTask(ctx context.Context, projectID core.ProjectID, task SubTask) SubTaskOutcome {
	out := SubTaskOutcome{
		InvocationID: uuid.NewString(),
		Role:         task.Role,
		Category:     task.Input.Category,
	}
	start := time.Now()
	defer func() { out.Duration = time.Since(start) }()

	err := d.retry.ExecuteWithNotify(ctx, func(ctx context.Context) error {
		out.Attempts++

		if err := d.sem.Acquire(ctx, 1); err != nil {
			return core.ErrCancelled("waiting for dispatch slot").WithCause(err)
		}
		defer d.sem.Release(1)

		agent, err := d.acquireAgent(ctx, task.Role)
		if err != nil {
			return err
		}
		out.AgentID = agent.ID

		d.publish(events.NewAgentInvokedEvent(int64(projectID), out.InvocationID, agent.ID, string(task.Role), out.Attempts))

		invCtx, cancel := context.WithTimeout(ctx, d.cfg.InvocationTimeout)
		defer cancel()

		raw, err := d.invoker.Invoke(invCtx, task.Role, task.Input)
		if err != nil {
			classified := classifyInvokeError(invCtx, err)
			// A cancelled invocation says nothing about agent health.
			d.agents.Release(agent.ID, core.IsCategory(classified, core.ErrCatCancelled))
			return classified
		}

		d.agents.Release(agent.ID, true)
		out.Output = raw
		return nil
	}, func(attempt int, err error, delay time.Duration) {
		d.logger.WithProject(int64(projectID)).Warn("retrying sub-task",
			"invocation_id", out.InvocationID,
			"role", task.Role,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
	})

	switch {
	case err == nil:
		out.Status = SubTaskSucceeded
		d.publish(events.NewAgentSettledEvent(int64(projectID), out.InvocationID, out.AgentID, string(SubTaskSucceeded), ""))
	case errors.Is(err, context.Canceled) || core.IsCategory(err, core.ErrCatCancelled):
		out.Status = SubTaskCancelled
		out.Err = err.Error()
		d.publish(events.NewAgentSettledEvent(int64(projectID), out.InvocationID, out.AgentID, string(SubTaskCancelled), out.Err))
	default:
		out.Status = SubTaskFailed
		out.Err = err.Error()
		d.publish(events.NewAgentSettledEvent(int64(projectID), out.InvocationID, out.AgentID, string(SubTaskFailed), out.Err))
	}
	return out
}

// acquireAgent claims a ready agent for the role, retrying with the
// longer unavailable backoff while every agent of that role is busy.
func (d *Dispatcher) acquireAgent(ctx context.Context, role core.AgentRole) (core.AgentInfo, error) {
	var agent core.AgentInfo
	err := d.unavailRetry.Execute(ctx, func(_ context.Context) error {
		a, err := d.agents.Acquire(role)
		if err != nil {
			return err
		}
		agent = a
		return nil
	})
	return agent, err
}

// classifyInvokeError maps raw invoker failures into the domain
// taxonomy. Deadline hits become timeouts (retryable); already-typed
// domain errors pass through; anything else is transient network class.
func classifyInvokeError(ctx context.Context, err error) error {
	var domErr *core.DomainError
	if errors.As(err, &domErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return core.ErrTimeout("agent invocation exceeded deadline").WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return core.ErrCancelled("agent invocation cancelled").WithCause(err)
	}
	return core.ErrTransient("NETWORK", "agent invocation failed").WithCause(err)
}

func (d *Dispatcher) publish(ev events.Event) {
	if d.bus != nil {
		d.bus.Publish(ev)
	}
}
