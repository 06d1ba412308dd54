package director

import (
	"context"
	"sync"
	"time"

	"cadence/internal/async"
	"cadence/internal/domain"
	"cadence/internal/executor"
	"cadence/internal/logging"
	"cadence/internal/workspace"
)

const queueStopWaitLimit = 5 * time.Second

// Agent is the slice of the executor the queue worker consumes.
type Agent interface {
	Execute(ctx context.Context, task *domain.Task, opts *executor.Options) executor.Result
}

// QueueManager persists enqueued tasks and feeds them to a single worker
// goroutine. Enqueue order is execution order.
type QueueManager struct {
	ws     *workspace.Workspace
	agent  Agent
	logger *logging.Logger

	mu      sync.Mutex
	pending []*domain.Task

	wake       chan struct{}
	cancel     context.CancelFunc
	done       chan struct{}
	onTaskDone func(executor.Result)
	budget     func() domain.BudgetState
}

// NewQueueManager builds a QueueManager.
func NewQueueManager(ws *workspace.Workspace, agent Agent, logger *logging.Logger) *QueueManager {
	return &QueueManager{
		ws:     ws,
		agent:  agent,
		logger: logging.OrNop(logger).WithModule("queue"),
		wake:   make(chan struct{}, 1),
	}
}

// SetBudget attaches a budget provider. While the budget reports a model
// override (the throttle level), queued tasks run on that tier.
func (q *QueueManager) SetBudget(provider func() domain.BudgetState) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.budget = provider
}

// OnTaskDone registers a callback fired after each executed task.
func (q *QueueManager) OnTaskDone(fn func(executor.Result)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onTaskDone = fn
}

// EnqueueBatch persists each task and appends the batch to the queue. A
// write failure rejects the whole batch; nothing from it is queued.
func (q *QueueManager) EnqueueBatch(tasks []*domain.Task) error {
	for _, t := range tasks {
		if err := q.ws.WriteTask(t); err != nil {
			return err
		}
	}
	q.mu.Lock()
	q.pending = append(q.pending, tasks...)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	q.logger.Debug("batch enqueued", "tasks", len(tasks))
	return nil
}

// Len reports how many tasks are waiting.
func (q *QueueManager) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Start launches the worker goroutine.
func (q *QueueManager) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.done = make(chan struct{})
	async.Go(q.logger, "queue-worker", func() {
		defer close(q.done)
		q.loop(workerCtx)
	})
}

// Stop cancels the worker and waits, bounded, for the in-flight task.
func (q *QueueManager) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	if q.done != nil {
		select {
		case <-q.done:
		case <-time.After(queueStopWaitLimit):
			q.logger.Warn("queue stop timed out waiting for worker")
		}
	}
}

func (q *QueueManager) loop(ctx context.Context) {
	for {
		q.drain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}
	}
}

func (q *QueueManager) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		task := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		if !task.Status.IsExecutable() {
			q.logger.Debug("skipping non-executable task", "task_id", task.ID, "status", task.Status)
			continue
		}
		result := q.agent.Execute(ctx, task, q.execOptions())
		if result.Err != nil {
			q.logger.Error("queued task failed", "task_id", task.ID, "error", result.Err)
		} else {
			q.logger.Info("queued task finished", "task_id", task.ID, "status", result.Status, "output", result.OutputPath)
		}

		q.mu.Lock()
		fn := q.onTaskDone
		q.mu.Unlock()
		if fn != nil {
			async.Invoke(q.logger, "on-task-done", func() { fn(result) })
		}
	}
}

func (q *QueueManager) execOptions() *executor.Options {
	q.mu.Lock()
	provider := q.budget
	q.mu.Unlock()
	if provider == nil {
		return nil
	}
	if override := provider().ModelOverride; override != "" {
		return &executor.Options{ModelTier: override}
	}
	return nil
}
