// Package executor runs a single task end to end: skill context assembly,
// prompt construction, model invocation with retry, response validation, and
// atomic artifact persistence.
package executor

import (
	"context"
	"errors"
	"strings"
	"time"

	"cadence/internal/domain"
	"cadence/internal/faults"
	"cadence/internal/llm"
	"cadence/internal/logging"
	"cadence/internal/skills"
	"cadence/internal/workspace"
)

// Result statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Tokens is the usage accounting for one execution. Zero on failure paths.
type Tokens struct {
	Input  int
	Output int
	Total  int
}

// Result is the outcome of one task execution. Execute never panics and
// never returns a bare error; failures land here with a coded Err.
type Result struct {
	Status     string
	TaskID     string
	Skill      string
	OutputPath string
	Tokens     Tokens
	Duration   time.Duration
	Err        error
	Warning    error
}

// Options override per-call execution knobs. Nil fields fall back to the
// executor config.
type Options struct {
	ModelTier  string
	Timeout    time.Duration
	MaxRetries *int
}

// Config holds the executor defaults.
type Config struct {
	ModelMap         map[string]string
	DefaultModelTier string
	MaxTokens        int
	Timeout          time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultModelTier == "" {
		c.DefaultModelTier = "standard"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 8192
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	return c
}

// Executor dispatches tasks to a model agent.
type Executor struct {
	ws       *workspace.Workspace
	registry skills.Registry
	client   llm.Client
	config   Config
	logger   *logging.Logger
}

// New builds an Executor.
func New(ws *workspace.Workspace, registry skills.Registry, client llm.Client, config Config, logger *logging.Logger) *Executor {
	return &Executor{
		ws:       ws,
		registry: registry,
		client:   client,
		config:   config.withDefaults(),
		logger:   logging.OrNop(logger).WithModule("executor"),
	}
}

type loadedInput struct {
	Path    string
	Content string
}

// Execute runs one task to completion or failure.
func (e *Executor) Execute(ctx context.Context, task *domain.Task, opts *Options) Result {
	start := time.Now()
	result := Result{Status: StatusFailed, TaskID: task.ID, Skill: task.To}
	logger := e.logger.With("task_id", task.ID, "skill", task.To)

	finish := func(r Result) Result {
		r.Duration = time.Since(start)
		return r
	}

	if !task.Status.IsExecutable() {
		result.Err = faults.Newf(faults.CodeTaskNotExecutable, "task %s is %s", task.ID, task.Status)
		return finish(result)
	}
	if ctx.Err() != nil {
		result.Err = faults.Wrap(faults.CodeAborted, "cancelled before start", ctx.Err())
		return finish(result)
	}

	if _, err := e.ws.UpdateTaskStatus(task.ID, domain.TaskStatusInProgress); err != nil {
		result.Err = err
		return finish(result)
	}
	// From here on, any failure moves the task to failed on a best-effort
	// basis so the original error is never masked.
	fail := func(err error) Result {
		if _, statusErr := e.ws.UpdateTaskStatus(task.ID, domain.TaskStatusFailed); statusErr != nil {
			logger.Warn("could not mark task failed", "error", statusErr)
		}
		logger.Error("execution failed", "error", err)
		result.Err = err
		return finish(result)
	}

	skill, ok := e.registry.Get(task.To)
	if !ok {
		return fail(faults.Newf(faults.CodeSkillNotFound, "skill %q is not registered", task.To))
	}

	// Product context is optional. A read failure is treated as absence.
	productContext := ""
	if content, err := e.ws.ReadFile(workspace.ContextPath); err == nil {
		productContext = content
	}

	inputs := make([]loadedInput, 0, len(task.Inputs))
	for _, in := range task.Inputs {
		content, err := e.ws.ReadFile(in.Path)
		if err != nil {
			return fail(faults.Wrap(faults.CodeInputNotFound, "input "+in.Path, err))
		}
		inputs = append(inputs, loadedInput{Path: in.Path, Content: content})
	}

	systemPrompt := buildSystemPrompt(skill)
	userMessage := buildUserMessage(task, productContext, inputs)
	model := e.resolveModel(skill, opts)

	timeout := e.config.Timeout
	if opts != nil && opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	maxRetries := e.config.MaxRetries
	if opts != nil && opts.MaxRetries != nil {
		maxRetries = *opts.MaxRetries
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.Info("dispatching task",
		"model", model,
		"prompt_tokens_estimate", skills.CountTokens(systemPrompt)+skills.CountTokens(userMessage))

	resp, err := e.invokeWithRetry(callCtx, llm.Request{
		SystemPrompt: systemPrompt,
		UserMessage:  userMessage,
		Model:        model,
		MaxTokens:    e.config.MaxTokens,
	}, maxRetries, logger)
	if err != nil {
		return fail(err)
	}

	if strings.TrimSpace(resp.Content) == "" {
		return fail(faults.New(faults.CodeResponseEmpty, "model returned empty content"))
	}
	if resp.StopReason == llm.StopMaxTokens {
		result.Warning = faults.New(faults.CodeResponseTruncated, "output hit the max token limit")
		logger.Warn("response truncated", "task_id", task.ID)
	}

	outputPath, err := e.persistOutput(task, skill, resp.Content)
	if err != nil {
		return fail(faults.Wrap(faults.CodeWorkspaceWriteFailed, "persist output", err))
	}

	if _, err := e.ws.UpdateTaskStatus(task.ID, domain.TaskStatusCompleted); err != nil {
		return fail(err)
	}

	result.Status = StatusCompleted
	result.OutputPath = outputPath
	result.Tokens = Tokens{
		Input:  resp.InputTokens,
		Output: resp.OutputTokens,
		Total:  resp.InputTokens + resp.OutputTokens,
	}
	logger.Info("task completed",
		"output_path", outputPath,
		"tokens", result.Tokens.Total,
		"duration_ms", time.Since(start).Milliseconds())
	return finish(result)
}

// invokeWithRetry calls the model client, retrying transient API errors with
// exponential backoff. Cancellation aborts immediately, including during the
// backoff sleep.
func (e *Executor) invokeWithRetry(ctx context.Context, req llm.Request, maxRetries int, logger *logging.Logger) (*llm.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := e.client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		if faults.HasCode(err, faults.CodeAborted) {
			return nil, err
		}
		if !faults.Retryable(err) || attempt >= maxRetries {
			return nil, err
		}

		delay := e.config.RetryDelay * (1 << attempt)
		logger.Warn("retrying model call",
			"attempt", attempt+1,
			"max_retries", maxRetries,
			"delay_ms", delay.Milliseconds(),
			"error", err)
		if sleepErr := sleepCtx(ctx, delay); sleepErr != nil {
			return nil, sleepErr
		}
	}
}

// sleepCtx is a cancellable sleep. Caller cancellation maps to ABORTED and
// deadline expiry to API_TIMEOUT.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return faults.Wrap(faults.CodeAPITimeout, "timed out during retry wait", ctx.Err())
		}
		return faults.Wrap(faults.CodeAborted, "cancelled during retry wait", ctx.Err())
	}
}

func (e *Executor) resolveModel(skill skills.Definition, opts *Options) string {
	tier := e.config.DefaultModelTier
	if skill.ModelTier != "" {
		tier = skill.ModelTier
	}
	if opts != nil && opts.ModelTier != "" {
		tier = opts.ModelTier
	}
	if model, ok := e.config.ModelMap[tier]; ok && model != "" {
		return model
	}
	if model, ok := e.config.ModelMap[e.config.DefaultModelTier]; ok && model != "" {
		return model
	}
	return tier
}

// persistOutput routes the artifact: foundation skills write into the path
// the task names (they populate shared context), everything else lands under
// outputs/{squad}/{skill}/.
func (e *Executor) persistOutput(task *domain.Task, skill skills.Definition, content string) (string, error) {
	if skill.Foundation && task.Output.Path != "" {
		if err := e.ws.WriteFile(task.Output.Path, content); err != nil {
			return "", err
		}
		return task.Output.Path, nil
	}
	squad := e.registry.SquadFor(task.To)
	return e.ws.WriteOutput(squad, task.To, task.ID, content)
}
