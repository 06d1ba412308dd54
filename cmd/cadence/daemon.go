package main

import (
	"context"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"cadence/internal/config"
	"cadence/internal/director"
	"cadence/internal/domain"
	"cadence/internal/eventbus"
	"cadence/internal/executor"
	"cadence/internal/logging"
	"cadence/internal/observability"
	"cadence/internal/pipeline"
	"cadence/internal/scheduler"
	"cadence/internal/server"
)

// eventCooldownMs suppresses repeat event-triggered activations of the same
// template for fifteen minutes.
const eventCooldownMs = 15 * 60 * 1000

// schedulerDirector narrows the director to what the scheduler consumes.
type schedulerDirector struct {
	d *director.Director
}

func (a schedulerDirector) StartPipeline(ctx context.Context, template, description string, priority domain.Priority) (string, error) {
	activation, err := a.d.StartPipeline(ctx, template, description, priority)
	if err != nil {
		return "", err
	}
	return activation.Run.ID, nil
}

func (a schedulerDirector) CreateGoalFromSchedule(ctx context.Context, goalType, category, description string, priority domain.Priority) (string, error) {
	return a.d.CreateGoalFromSchedule(ctx, goalType, category, description, priority)
}

// busDirector narrows the director to what the event bus consumes.
type busDirector struct {
	d *director.Director
}

func (a busDirector) StartPipeline(ctx context.Context, template, description string, priority domain.Priority) (string, []*domain.Task, error) {
	activation, err := a.d.StartPipeline(ctx, template, description, priority)
	if err != nil {
		return "", nil, err
	}
	// The engine materialises tasks step by step; there is no up-front batch.
	return activation.Run.ID, nil, nil
}

func runDaemon(parent context.Context, cfg *config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		return err
	}
	metrics := observability.NewMetrics()

	sched := scheduler.New(rt.ws, schedulerDirector{rt.director}, rt.tracker.State, scheduler.Config{
		TickInterval:        cfg.Scheduler.TickInterval,
		CatchUpEnabled:      cfg.Scheduler.CatchUpEnabled,
		CatchUpLookbackDays: cfg.Scheduler.CatchUpLookbackDays,
	}, logger)
	sched.SetMetrics(metrics)

	bus := eventbus.New(busDirector{rt.director}, rt.queue, logger)
	var entries []domain.ScheduleEntry
	for _, def := range rt.director.Templates() {
		switch def.Trigger.Type {
		case domain.TriggerSchedule:
			entries = append(entries, domain.ScheduleEntry{
				ID:          def.ID,
				Name:        def.Name,
				Cron:        def.Trigger.Cron,
				PipelineID:  def.ID,
				Enabled:     true,
				Priority:    def.DefaultPriority,
				Description: def.Description,
			})
		case domain.TriggerEvent:
			bus.AddMapping(domain.EventMapping{
				EventType:        def.Trigger.EventType,
				PipelineTemplate: def.ID,
				Priority:         def.DefaultPriority,
				CooldownMs:       eventCooldownMs,
			})
		}
	}

	rt.director.OnRunComplete(func(runID string, result pipeline.Result) {
		sched.MarkRunCompleted(runID)
		metrics.PipelinesRun.WithLabelValues(result.Status).Inc()
		recordSpend(rt, cfg, metrics, "", result.Tokens)
	})
	rt.queue.OnTaskDone(func(result executor.Result) {
		metrics.TasksExecuted.WithLabelValues(result.Status).Inc()
		metrics.QueueDepth.Set(float64(rt.queue.Len()))
		recordSpend(rt, cfg, metrics, result.TaskID, result.Tokens)
	})

	rt.queue.SetBudget(rt.tracker.State)
	rt.queue.Start(ctx)
	defer rt.queue.Stop()
	if err := sched.Start(ctx, entries); err != nil {
		return err
	}
	defer sched.Stop()

	srv := server.New(server.BusSink{Bus: bus}, metrics, server.Config{
		Addr:  cfg.Webhook.Addr,
		Token: cfg.Webhook.Token,
	}, logger)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return srv.Start(groupCtx) })

	logger.Info("daemon running",
		"schedules", len(entries), "mappings", len(bus.Mappings()), "webhook_addr", cfg.Webhook.Addr)

	err = group.Wait()
	rt.director.Wait()
	logger.Info("daemon stopped")
	return err
}

// recordSpend charges token usage to the budget and mirrors it to metrics.
func recordSpend(rt *runtime, cfg *config.Config, metrics *observability.Metrics, taskID string, tokens executor.Tokens) {
	if tokens.Total == 0 {
		return
	}
	if err := rt.tracker.RecordTokens(taskID, "", cfg.Model.DefaultTier, tokens.Input, tokens.Output); err != nil {
		// Spend tracking is advisory; execution already happened.
		return
	}
	metrics.TokensUsed.WithLabelValues("input").Add(float64(tokens.Input))
	metrics.TokensUsed.WithLabelValues("output").Add(float64(tokens.Output))
	metrics.BudgetSpentUSD.Set(rt.tracker.Spent())
}
