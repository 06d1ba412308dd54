// Package director turns templates and goals into running work: it resolves
// pipeline templates into engine runs, decomposes goals into phased task
// plans, and feeds the task queue that backs daemon mode.
package director

import (
	"context"
	"sync"
	"time"

	"cadence/internal/async"
	"cadence/internal/domain"
	"cadence/internal/faults"
	"cadence/internal/logging"
	"cadence/internal/pipeline"
	"cadence/internal/workspace"
)

// TaskQueue dispatches tasks to the queue worker.
type TaskQueue interface {
	EnqueueBatch(tasks []*domain.Task) error
}

// SquadResolver maps a skill to its output squad. Satisfied by
// skills.Registry.
type SquadResolver interface {
	SquadFor(skill string) string
}

// Activation describes a pipeline run the director has started. Tasks are
// created by the engine step by step, so the run's TaskIDs field, not this
// struct, is the authoritative task list.
type Activation struct {
	Definition *domain.PipelineDefinition
	Run        *domain.PipelineRun
}

// Director owns the template registry and goal decomposition.
type Director struct {
	ws     *workspace.Workspace
	engine *pipeline.Engine
	squads SquadResolver
	queue  TaskQueue
	logger *logging.Logger
	clock  func() time.Time

	mu             sync.Mutex
	templates      map[string]*domain.PipelineDefinition
	order          []string
	maxConcurrency int
	onRunComplete  func(runID string, result pipeline.Result)

	wg sync.WaitGroup
}

// New builds a Director. queue may be nil when no worker is running, e.g. in
// one-shot CLI mode.
func New(ws *workspace.Workspace, engine *pipeline.Engine, squads SquadResolver, queue TaskQueue, logger *logging.Logger) *Director {
	return &Director{
		ws:        ws,
		engine:    engine,
		squads:    squads,
		queue:     queue,
		logger:    logging.OrNop(logger).WithModule("director"),
		clock:     time.Now,
		templates: make(map[string]*domain.PipelineDefinition),
	}
}

// SetClock overrides the director clock. Tests only.
func (d *Director) SetClock(clock func() time.Time) { d.clock = clock }

// SetMaxConcurrency caps how many parallel-step sub-tasks a run may execute
// at once. Zero or negative keeps the engine default.
func (d *Director) SetMaxConcurrency(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.maxConcurrency = n
}

// OnRunComplete registers a callback fired after an asynchronously started
// run reaches a terminal state. Used to clear the scheduler's overlap gate.
func (d *Director) OnRunComplete(fn func(runID string, result pipeline.Result)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onRunComplete = fn
}

// RegisterTemplate validates and registers a pipeline template. Template ids
// are unique.
func (d *Director) RegisterTemplate(def *domain.PipelineDefinition) error {
	if err := def.Validate(); err != nil {
		return faults.Wrap(faults.CodeValidationError, "invalid pipeline template", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.templates[def.ID]; ok {
		return faults.Newf(faults.CodeAlreadyExists, "pipeline template %q already registered", def.ID)
	}
	d.templates[def.ID] = def
	d.order = append(d.order, def.ID)
	return nil
}

// Template returns a registered template by id.
func (d *Director) Template(id string) (*domain.PipelineDefinition, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	def, ok := d.templates[id]
	return def, ok
}

// Templates lists registered templates in registration order.
func (d *Director) Templates() []*domain.PipelineDefinition {
	d.mu.Lock()
	defer d.mu.Unlock()
	defs := make([]*domain.PipelineDefinition, 0, len(d.order))
	for _, id := range d.order {
		defs = append(defs, d.templates[id])
	}
	return defs
}

// StartPipeline resolves a template, creates the run, and executes it on a
// background goroutine. The returned activation carries the pending run; its
// status and task list evolve as the engine works.
func (d *Director) StartPipeline(ctx context.Context, template, description string, priority domain.Priority) (*Activation, error) {
	def, run, config, err := d.prepare(template, description, priority)
	if err != nil {
		return nil, err
	}

	d.wg.Add(1)
	async.Go(d.logger, "pipeline-run-"+run.ID, func() {
		defer d.wg.Done()
		result := d.engine.Execute(ctx, def, run, config)
		d.logger.Info("pipeline run finished",
			"run_id", run.ID, "template", def.ID, "status", result.Status, "tokens", result.Tokens.Total)
		d.mu.Lock()
		fn := d.onRunComplete
		d.mu.Unlock()
		if fn != nil {
			async.Invoke(d.logger, "on-run-complete", func() { fn(run.ID, result) })
		}
	})

	d.logger.Info("pipeline started", "run_id", run.ID, "template", def.ID, "priority", config.Priority)
	return &Activation{Definition: def, Run: run}, nil
}

// RunPipeline executes a template synchronously. One-shot CLI mode.
func (d *Director) RunPipeline(ctx context.Context, template, description string, priority domain.Priority) (pipeline.Result, error) {
	def, run, config, err := d.prepare(template, description, priority)
	if err != nil {
		return pipeline.Result{}, err
	}
	return d.engine.Execute(ctx, def, run, config), nil
}

// Wait blocks until every asynchronously started run has finished.
func (d *Director) Wait() { d.wg.Wait() }

func (d *Director) prepare(template, description string, priority domain.Priority) (*domain.PipelineDefinition, *domain.PipelineRun, pipeline.Config, error) {
	def, ok := d.Template(template)
	if !ok {
		return nil, nil, pipeline.Config{}, faults.Newf(faults.CodeNotFound, "pipeline template %q is not registered", template)
	}
	if priority == "" {
		priority = def.DefaultPriority
	}
	if priority == "" {
		priority = domain.PriorityP2
	}
	run := &domain.PipelineRun{
		ID:         domain.NewRunID(),
		PipelineID: def.ID,
		StartedAt:  d.clock().UTC(),
		Status:     domain.RunStatusPending,
	}
	d.mu.Lock()
	maxConcurrency := d.maxConcurrency
	d.mu.Unlock()
	config := pipeline.Config{
		GoalDescription: description,
		Priority:        priority,
		MaxConcurrency:  maxConcurrency,
	}
	return def, run, config, nil
}
