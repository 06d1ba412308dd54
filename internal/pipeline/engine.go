// Package pipeline drives a PipelineRun through its definition's steps:
// sequential agent calls, bounded-parallel fan-out, and review pauses, with
// cancellation, fail-fast, and resume-from-pause semantics.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"cadence/internal/async"
	"cadence/internal/domain"
	"cadence/internal/executor"
	"cadence/internal/faults"
	"cadence/internal/logging"
	"cadence/internal/workspace"
)

// Result statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusPaused    = "paused"
	StatusCancelled = "cancelled"
)

const defaultMaxConcurrency = 3

// Agent executes one task. Satisfied by *executor.Executor.
type Agent interface {
	Execute(ctx context.Context, task *domain.Task, opts *executor.Options) executor.Result
}

// SquadResolver maps a skill to its output squad. Satisfied by
// skills.Registry.
type SquadResolver interface {
	SquadFor(skill string) string
}

// StepResult is the outcome of one pipeline step.
type StepResult struct {
	Index       int
	Type        domain.StepType
	Status      string
	TaskIDs     []string
	OutputPaths []string
	Results     []executor.Result
	Tokens      executor.Tokens
}

// Result is the outcome of one engine invocation. Execute never returns a
// bare error; failures land here with a coded Err and a matching run status.
type Result struct {
	Status      string
	RunID       string
	StepResults []StepResult
	Tokens      executor.Tokens
	Err         error
}

// Config parameterises one engine invocation.
type Config struct {
	GoalDescription   string
	Priority          domain.Priority
	InitialInputPaths []string
	MaxConcurrency    int
	OnStepComplete    func(StepResult)
	OnStatusChange    func(domain.RunStatus)
}

// Engine executes pipeline runs.
type Engine struct {
	ws     *workspace.Workspace
	agent  Agent
	squads SquadResolver
	logger *logging.Logger
	clock  func() time.Time
}

// New builds an Engine.
func New(ws *workspace.Workspace, agent Agent, squads SquadResolver, logger *logging.Logger) *Engine {
	return &Engine{
		ws:     ws,
		agent:  agent,
		squads: squads,
		logger: logging.OrNop(logger).WithModule("pipeline"),
		clock:  time.Now,
	}
}

// SetClock overrides the engine clock. Tests only.
func (e *Engine) SetClock(clock func() time.Time) { e.clock = clock }

// Execute drives run through definition's steps starting at the run's
// current step index. A paused run resumes by calling Execute again with
// InitialInputPaths set to the last completed step's outputs.
func (e *Engine) Execute(ctx context.Context, def *domain.PipelineDefinition, run *domain.PipelineRun, config Config) Result {
	result := Result{Status: StatusFailed, RunID: run.ID}
	logger := e.logger.With("run_id", run.ID, "pipeline_id", def.ID)

	if run.Status != domain.RunStatusPending && run.Status != domain.RunStatusPaused {
		result.Err = faults.Newf(faults.CodeAlreadyRunning, "run %s is %s", run.ID, run.Status)
		return result
	}
	if len(def.Steps) == 0 {
		e.finishRun(run, domain.RunStatusFailed, config)
		result.Err = faults.Newf(faults.CodeNoSteps, "pipeline %s has no steps", def.ID)
		return result
	}
	if ctx.Err() != nil {
		e.finishRun(run, domain.RunStatusCancelled, config)
		result.Err = faults.Wrap(faults.CodeAborted, "cancelled before first step", ctx.Err())
		return result
	}

	startIndex := run.CurrentStepIndex
	if startIndex < 0 || startIndex > len(def.Steps) {
		e.finishRun(run, domain.RunStatusFailed, config)
		result.Err = faults.Newf(faults.CodeInvalidStepIndex, "step index %d out of range", startIndex)
		return result
	}
	resuming := run.Status == domain.RunStatusPaused
	if resuming && startIndex < len(def.Steps) && def.Steps[startIndex].Type == domain.StepReview {
		startIndex++
	}
	if startIndex >= len(def.Steps) {
		// A trailing review step resumes into completion with no further work.
		e.finishRun(run, domain.RunStatusCompleted, config)
		result.Status = StatusCompleted
		return result
	}

	run.Status = domain.RunStatusRunning
	e.notifyStatus(run, config)
	logger.Info("run started", "step_index", startIndex, "steps", len(def.Steps), "resuming", resuming)

	currentInputs := config.InitialInputPaths
	for i := startIndex; i < len(def.Steps); i++ {
		if ctx.Err() != nil {
			e.finishRun(run, domain.RunStatusCancelled, config)
			result.Status = StatusCancelled
			result.Err = faults.Wrap(faults.CodeAborted, fmt.Sprintf("cancelled at step %d", i), ctx.Err())
			return result
		}
		run.CurrentStepIndex = i
		step := def.Steps[i]
		isFinal := i == len(def.Steps)-1

		var stepResult StepResult
		var err error
		switch step.Type {
		case domain.StepSequential:
			stepResult, err = e.runSequential(ctx, step, i, isFinal, run, config, currentInputs)
		case domain.StepParallel:
			stepResult, err = e.runParallel(ctx, step, i, isFinal, run, config, currentInputs)
		case domain.StepReview:
			stepResult = StepResult{
				Index:       i,
				Type:        domain.StepReview,
				Status:      StatusPaused,
				OutputPaths: currentInputs,
			}
			run.Status = domain.RunStatusPaused
			e.notifyStatus(run, config)
			result.StepResults = append(result.StepResults, stepResult)
			e.notifyStep(stepResult, config)
			result.Status = StatusPaused
			result.Err = faults.Newf(faults.CodePausedForReview, "awaiting review by %s", step.Reviewer)
			logger.Info("run paused for review", "step_index", i, "reviewer", step.Reviewer)
			return result
		default:
			err = faults.Newf(faults.CodeStepFailed, "unknown step type %q", step.Type)
		}

		result.StepResults = append(result.StepResults, stepResult)
		result.Tokens.Input += stepResult.Tokens.Input
		result.Tokens.Output += stepResult.Tokens.Output
		result.Tokens.Total += stepResult.Tokens.Total
		e.notifyStep(stepResult, config)

		if err != nil {
			e.finishRun(run, domain.RunStatusFailed, config)
			result.Err = err
			logger.Error("run failed", "step_index", i, "error", err)
			return result
		}
		currentInputs = stepResult.OutputPaths
	}

	e.finishRun(run, domain.RunStatusCompleted, config)
	result.Status = StatusCompleted
	logger.Info("run completed", "steps", len(result.StepResults), "tokens", result.Tokens.Total)
	return result
}

func (e *Engine) runSequential(ctx context.Context, step domain.PipelineStep, index int, isFinal bool, run *domain.PipelineRun, config Config, inputs []string) (StepResult, error) {
	stepResult := StepResult{Index: index, Type: domain.StepSequential, Status: StatusFailed}

	task, err := e.createTask(step.Skill, index, isFinal, run, config, inputs)
	if err != nil {
		return stepResult, err
	}
	stepResult.TaskIDs = []string{task.ID}

	res := e.agent.Execute(ctx, task, nil)
	stepResult.Results = []executor.Result{res}
	stepResult.Tokens = res.Tokens
	if res.Status != executor.StatusCompleted {
		return stepResult, faults.Wrap(faults.CodeStepFailed, fmt.Sprintf("step %d (%s)", index, step.Skill), res.Err)
	}

	stepResult.Status = StatusCompleted
	stepResult.OutputPaths = []string{res.OutputPath}
	return stepResult, nil
}

func (e *Engine) runParallel(ctx context.Context, step domain.PipelineStep, index int, isFinal bool, run *domain.PipelineRun, config Config, inputs []string) (StepResult, error) {
	stepResult := StepResult{Index: index, Type: domain.StepParallel, Status: StatusFailed}

	// All tasks are created and registered on the run before any executes.
	tasks := make([]*domain.Task, 0, len(step.Skills))
	for _, skill := range step.Skills {
		task, err := e.createTask(skill, index, isFinal, run, config, inputs)
		if err != nil {
			return stepResult, err
		}
		tasks = append(tasks, task)
		stepResult.TaskIDs = append(stepResult.TaskIDs, task.ID)
	}

	maxConcurrency := config.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}

	// First failure cancels the step context, which aborts every in-flight
	// sub-task and drops the not-yet-started ones at the semaphore.
	stepCtx, cancelStep := context.WithCancel(ctx)
	defer cancelStep()

	sem := semaphore.NewWeighted(int64(maxConcurrency))
	results := make([]executor.Result, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		i, task := i, task
		async.Go(e.logger, "parallel-step", func() {
			defer wg.Done()
			if err := sem.Acquire(stepCtx, 1); err != nil {
				results[i] = executor.Result{
					Status: executor.StatusFailed,
					TaskID: task.ID,
					Skill:  task.To,
					Err:    faults.Wrap(faults.CodeAborted, "sub-task dropped", err),
				}
				return
			}
			defer sem.Release(1)
			results[i] = e.agent.Execute(stepCtx, task, nil)
			if results[i].Status != executor.StatusCompleted {
				cancelStep()
			}
		})
	}
	wg.Wait()

	// Results stay in task-creation order regardless of completion order.
	// The reported error prefers a root-cause failure over the ABORTED
	// results that cancellation fanned out to the sibling sub-tasks.
	stepResult.Results = results
	var firstErr, abortedErr error
	for i, res := range results {
		stepResult.Tokens.Input += res.Tokens.Input
		stepResult.Tokens.Output += res.Tokens.Output
		stepResult.Tokens.Total += res.Tokens.Total
		if res.Status == executor.StatusCompleted {
			stepResult.OutputPaths = append(stepResult.OutputPaths, res.OutputPath)
			continue
		}
		wrapped := faults.Wrap(faults.CodeStepFailed, fmt.Sprintf("step %d (%s)", index, tasks[i].To), res.Err)
		if faults.HasCode(res.Err, faults.CodeAborted) {
			if abortedErr == nil {
				abortedErr = wrapped
			}
		} else if firstErr == nil {
			firstErr = wrapped
		}
	}
	if firstErr == nil {
		firstErr = abortedErr
	}
	if firstErr != nil {
		return stepResult, firstErr
	}

	stepResult.Status = StatusCompleted
	return stepResult, nil
}

// createTask materialises one step task, persists it, and appends its id to
// the run before execution so the run file always names every task it owns.
func (e *Engine) createTask(skill string, stepIndex int, isFinal bool, run *domain.PipelineRun, config Config, inputs []string) (*domain.Task, error) {
	now := e.clock().UTC().Truncate(time.Second)

	taskInputs := make([]domain.TaskInput, 0, len(inputs))
	for _, path := range inputs {
		taskInputs = append(taskInputs, domain.TaskInput{
			Path:        path,
			Description: "Output from previous pipeline step",
		})
	}

	next := domain.TaskNext{Type: domain.NextPipelineContinue, PipelineID: run.ID}
	if isFinal {
		next = domain.TaskNext{Type: domain.NextDirectorReview}
	}

	priority := config.Priority
	if priority == "" {
		priority = domain.PriorityP2
	}

	id := domain.NewTaskID(skill)
	task := &domain.Task{
		ID:           id,
		From:         "pipeline-engine",
		To:           skill,
		Priority:     priority,
		Status:       domain.TaskStatusPending,
		GoalID:       run.GoalID,
		PipelineID:   run.ID,
		Goal:         config.GoalDescription,
		Inputs:       taskInputs,
		Requirements: fmt.Sprintf("Execute the %s step of this pipeline.\n\nOverall goal: %s", skill, config.GoalDescription),
		Output: domain.TaskOutput{
			Path:   workspace.OutputPath(e.squads.SquadFor(skill), skill, id),
			Format: "markdown",
		},
		Next:      next,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := e.ws.WriteTask(task); err != nil {
		return nil, faults.Wrap(faults.CodeTaskCreationFailed, "create task for "+skill, err)
	}
	run.TaskIDs = append(run.TaskIDs, task.ID)
	return task, nil
}

// finishRun moves the run to a terminal status. CompletedAt is written
// before the status callback fires so observers see a consistent snapshot.
func (e *Engine) finishRun(run *domain.PipelineRun, status domain.RunStatus, config Config) {
	run.Status = status
	if status.IsTerminal() {
		now := e.clock().UTC()
		run.CompletedAt = &now
	}
	e.notifyStatus(run, config)
}

func (e *Engine) notifyStatus(run *domain.PipelineRun, config Config) {
	if config.OnStatusChange == nil {
		return
	}
	status := run.Status
	async.Invoke(e.logger, "onStatusChange", func() { config.OnStatusChange(status) })
}

func (e *Engine) notifyStep(stepResult StepResult, config Config) {
	if config.OnStepComplete == nil {
		return
	}
	async.Invoke(e.logger, "onStepComplete", func() { config.OnStepComplete(stepResult) })
}
