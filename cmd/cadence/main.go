// Command cadence runs the marketing workflow runtime: one-shot goals,
// one-shot pipeline runs, or the full daemon.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cadence/internal/budget"
	"cadence/internal/config"
	"cadence/internal/director"
	"cadence/internal/domain"
	"cadence/internal/executor"
	"cadence/internal/faults"
	"cadence/internal/llm"
	"cadence/internal/logging"
	"cadence/internal/pipeline"
	"cadence/internal/skills"
	"cadence/internal/workspace"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	pipeline   string
	daemon     bool
	dryRun     bool
	priority   string
	category   string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "cadence [goal]",
		Short: "Autonomous marketing workflow runtime",
		Long: `cadence decomposes marketing goals into agent tasks, runs pipeline
templates, and in daemon mode keeps the scheduler, event bus, task queue,
and webhook server running.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cmd.ErrOrStderr()})

			switch {
			case opts.daemon:
				return runDaemon(cmd.Context(), cfg, logger)
			case opts.pipeline != "":
				return runPipeline(cmd, cfg, logger, opts)
			case len(args) == 1:
				return runGoal(cmd, cfg, logger, args[0], opts)
			default:
				return fmt.Errorf("provide a goal string, --pipeline, or --daemon")
			}
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to a cadence.yaml config file")
	cmd.Flags().StringVar(&opts.pipeline, "pipeline", "", "run a pipeline template once and exit")
	cmd.Flags().BoolVar(&opts.daemon, "daemon", false, "run the scheduler, queue worker, event bus, and webhook server")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "show what would run without calling the model")
	cmd.Flags().StringVar(&opts.priority, "priority", "P2", "priority for the goal or run (P0..P3)")
	cmd.Flags().StringVar(&opts.category, "category", "content", "goal category (growth, content, conversion)")
	return cmd
}

// runtime bundles the wired subsystems shared by every mode.
type runtime struct {
	ws       *workspace.Workspace
	registry skills.Registry
	exec     *executor.Executor
	engine   *pipeline.Engine
	queue    *director.QueueManager
	director *director.Director
	tracker  *budget.Tracker
}

func buildRuntime(cfg *config.Config, logger *logging.Logger) (*runtime, error) {
	ws, err := workspace.New(cfg.Workspace.Root, logger)
	if err != nil {
		return nil, err
	}
	registry, err := skills.Load(cfg.Workspace.SkillsDir)
	if err != nil {
		return nil, err
	}
	tracker, err := budget.New(ws, budget.Config{
		TotalBudget:       cfg.Budget.TotalUSD,
		ThrottleModelTier: cfg.Budget.ThrottleModelTier,
	}, logger)
	if err != nil {
		return nil, err
	}

	client := llm.NewAnthropicClient(llm.Config{
		APIKey:  cfg.Model.APIKey,
		BaseURL: cfg.Model.BaseURL,
		Timeout: cfg.Executor.RequestTimeout,
	}, logger)
	exec := executor.New(ws, registry, client, executor.Config{
		ModelMap:         cfg.Model.TierMap,
		DefaultModelTier: cfg.Model.DefaultTier,
		MaxTokens:        cfg.Executor.MaxTokens,
		Timeout:          cfg.Executor.RequestTimeout,
		MaxRetries:       cfg.Executor.MaxRetries,
		RetryDelay:       cfg.Executor.RetryDelay,
	}, logger)
	engine := pipeline.New(ws, exec, registry, logger)
	queue := director.NewQueueManager(ws, exec, logger)

	dir := director.New(ws, engine, registry, queue, logger)
	dir.SetMaxConcurrency(cfg.Pipeline.MaxConcurrency)
	for _, def := range director.DefaultTemplates() {
		if err := dir.RegisterTemplate(def); err != nil {
			return nil, err
		}
	}

	return &runtime{
		ws:       ws,
		registry: registry,
		exec:     exec,
		engine:   engine,
		queue:    queue,
		director: dir,
		tracker:  tracker,
	}, nil
}

func parsePriority(raw string) (domain.Priority, error) {
	p := domain.Priority(raw)
	if !p.IsValid() {
		return "", faults.Newf(faults.CodeValidationError, "invalid priority %q, want P0..P3", raw)
	}
	return p, nil
}

func runPipeline(cmd *cobra.Command, cfg *config.Config, logger *logging.Logger, opts *options) error {
	priority, err := parsePriority(opts.priority)
	if err != nil {
		return err
	}
	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		return err
	}

	def, ok := rt.director.Template(opts.pipeline)
	if !ok {
		return faults.Newf(faults.CodeNotFound, "pipeline template %q is not registered", opts.pipeline)
	}
	if opts.dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "Pipeline %s (%s), priority %s\n", def.ID, def.Name, priority)
		for i, step := range def.Steps {
			fmt.Fprintf(cmd.OutOrStdout(), "  step %d: %s %s\n", i, step.Type, describeStep(step))
		}
		return nil
	}

	description := "Manual run of " + def.Name
	result, err := rt.director.RunPipeline(cmd.Context(), opts.pipeline, description, priority)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Run %s finished: %s, %d steps, %d tokens\n",
		result.RunID, result.Status, len(result.StepResults), result.Tokens.Total)
	if result.Status != pipeline.StatusCompleted {
		return result.Err
	}
	return nil
}

func describeStep(step domain.PipelineStep) string {
	switch step.Type {
	case domain.StepParallel:
		return fmt.Sprintf("%v", step.Skills)
	case domain.StepReview:
		return step.Reviewer
	default:
		return step.Skill
	}
}

func runGoal(cmd *cobra.Command, cfg *config.Config, logger *logging.Logger, description string, opts *options) error {
	priority, err := parsePriority(opts.priority)
	if err != nil {
		return err
	}
	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		return err
	}

	goal, err := rt.director.CreateGoal(description, opts.category, priority)
	if err != nil {
		return err
	}
	plan, err := rt.director.DecomposeGoal(goal)
	if err != nil {
		return err
	}

	if opts.dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "Goal %s (%s), priority %s\n", goal.ID, goal.Category, goal.Priority)
		for i, phase := range plan.Phases {
			fmt.Fprintf(cmd.OutOrStdout(), "  phase %d %s: %v\n", i, phase.Name, phase.Skills)
		}
		return nil
	}

	if _, err := rt.director.PlanGoalTasks(plan, goal); err != nil {
		return err
	}
	return executeGoal(cmd.Context(), cmd, rt, goal.ID)
}

// executeGoal drains the goal phase by phase: run every pending task, then
// promote the next phase, until nothing is left to promote.
func executeGoal(ctx context.Context, cmd *cobra.Command, rt *runtime, goalID string) error {
	failures := 0
	for {
		pending, err := rt.ws.ListTasks(workspace.TaskFilter{GoalID: goalID, Status: domain.TaskStatusPending})
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			promoted, err := rt.director.AdvanceGoal(goalID)
			if err != nil {
				return err
			}
			if promoted == 0 {
				break
			}
			continue
		}
		for _, task := range pending {
			result := rt.exec.Execute(ctx, task, nil)
			if result.Err != nil {
				failures++
				fmt.Fprintf(cmd.OutOrStdout(), "  task %s failed: %v\n", task.ID, result.Err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  task %s done -> %s\n", task.ID, result.OutputPath)
		}
	}
	if failures > 0 {
		return faults.Newf(faults.CodeStepFailed, "%d goal task(s) failed", failures)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Goal completed.")
	return nil
}
